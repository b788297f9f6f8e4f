package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fleetwright/fleetwright/pkg/telemetry"
)

var (
	// Global flags
	logLevel  string
	logFormat string
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fleetwright",
		Short: "Fleetwright - server fleet lifecycle orchestration",
		Long: `Fleetwright drives lifecycle operations against server arrays on a
remote fleet platform: cloning, reconfiguring, launching, terminating,
destroying, and running scripts across fleets.

Operations are described as workflow documents (YAML or JSON) of steps,
each invoking one actor. Every workflow can run as a dry run first: the
same steps execute with identical logging, but nothing on the platform
is mutated.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newJournalCommand())

	return rootCmd
}

// newLogger builds the process logger from the persistent flags.
func newLogger() (*telemetry.Logger, error) {
	return telemetry.NewLogger(telemetry.LoggingConfig{
		Level:  logLevel,
		Format: logFormat,
		Output: "stderr",
	})
}
