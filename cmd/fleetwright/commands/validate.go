package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fleetwright/fleetwright/pkg/actors"
	"github.com/fleetwright/fleetwright/pkg/fleetapi"
	"github.com/fleetwright/fleetwright/pkg/serverarray"
	"github.com/fleetwright/fleetwright/pkg/workflow"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <workflow>...",
		Short: "Validate workflow documents",
		Long: `Validate workflow documents without running them.

Each document is checked against the workflow schema, the step
structure rules, and every step's actor options. Validation needs no
platform access.`,
		Example: `  # Validate a single workflow
  fleetwright validate flip.yaml

  # Validate everything before a release
  fleetwright validate workflows/*.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			// Actor construction never touches the platform, so an empty
			// backend is enough to exercise every option check.
			runner := &workflow.Runner{
				Registry: registry,
				Client:   fleetapi.NewStaticClient(nil),
				Log:      log,
			}

			failed := 0
			for _, path := range args {
				doc, err := parser.ParseFile(path)
				if err == nil {
					err = runner.Validate(doc)
				}
				if err != nil {
					failed++
					cmd.PrintErrf("%s: %v\n", path, err)
					continue
				}
				cmd.Printf("%s: ok (%d steps)\n", path, len(doc.Steps))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed validation", failed, len(args))
			}
			return nil
		},
	}

	return cmd
}
