package commands

import (
	"github.com/spf13/cobra"

	"github.com/fleetwright/fleetwright/pkg/journal"
)

func newJournalCommand() *cobra.Command {
	var (
		journalPath string
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "journal [run-id]",
		Short: "Inspect recorded workflow runs",
		Long: `List recorded workflow runs, or show the step outcomes of one run.

The journal is written by 'fleetwright run --journal'.`,
		Example: `  # Recent runs
  fleetwright journal --journal ./journal.db

  # Step outcomes of one run
  fleetwright journal --journal ./journal.db 2f1c9a7e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := journal.NewStore(journal.Config{Path: journalPath})
			if err != nil {
				return err
			}
			if err := store.Init(ctx); err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				steps, err := store.Steps(ctx, args[0])
				if err != nil {
					return err
				}
				for _, step := range steps {
					line := ""
					if step.Array != "" {
						line = " array=" + step.Array
					}
					if step.Error != "" {
						line += " error=" + step.Error
					}
					cmd.Printf("%3d %-9s %-22s %s%s\n", step.Seq, step.Status, step.Actor, step.Description, line)
				}
				return nil
			}

			runs, err := store.Runs(ctx, limit)
			if err != nil {
				return err
			}
			for _, run := range runs {
				cmd.Printf("%s  %-9s dry=%-5t %s  %s\n",
					run.ID, run.Status, run.DryRun, run.StartedAt.Format("2006-01-02 15:04:05"), run.Document)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&journalPath, "journal", "journal.db", "SQLite journal database path")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")

	return cmd
}
