package commands

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/fleetwright/fleetwright/pkg/actors"
	"github.com/fleetwright/fleetwright/pkg/fleetapi"
	"github.com/fleetwright/fleetwright/pkg/serverarray"
	"github.com/fleetwright/fleetwright/pkg/telemetry"
	"github.com/fleetwright/fleetwright/pkg/workflow"
)

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <workflow>",
		Short: "Revalidate a workflow document on every change",
		Long: `Watch a workflow document and revalidate it whenever it changes.

Useful while authoring: keep the watcher running in one terminal and
every save reports schema, structure, and actor option errors
immediately.`,
		Example: `  fleetwright watch flip.yaml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			log, err := newLogger()
			if err != nil {
				return err
			}
			parser, err := workflow.NewParser()
			if err != nil {
				return err
			}
			registry := actors.NewRegistry()
			if err := serverarray.Register(registry); err != nil {
				return err
			}
			runner := &workflow.Runner{
				Registry: registry,
				Client:   fleetapi.NewStaticClient(nil),
				Log:      log,
			}

			check := func() {
				doc, err := parser.ParseFile(path)
				if err == nil {
					err = runner.Validate(doc)
				}
				if err != nil {
					cmd.PrintErrf("%s: %v\n", path, err)
					return
				}
				cmd.Printf("%s: ok (%d steps)\n", path, len(doc.Steps))
			}
			check()

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer watcher.Close()
			// Watch the directory: editors replace files on save, which
			// breaks a watch on the file itself.
			if err := watcher.Add(filepath.Dir(path)); err != nil {
				return err
			}
			log.Infof("watching %s", path)

			return watchLoop(cmd, log, watcher, path, check)
		},
	}

	return cmd
}

func watchLoop(cmd *cobra.Command, log *telemetry.Logger, watcher *fsnotify.Watcher, path string, check func()) error {
	// Debounce: a save often arrives as several events back to back.
	var timer *time.Timer
	const delay = 200 * time.Millisecond

	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(delay, check)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("watch error")
		}
	}
}
