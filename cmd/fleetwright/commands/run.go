package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fleetwright/fleetwright/pkg/actors"
	"github.com/fleetwright/fleetwright/pkg/fleetapi"
	"github.com/fleetwright/fleetwright/pkg/journal"
	"github.com/fleetwright/fleetwright/pkg/policy"
	"github.com/fleetwright/fleetwright/pkg/serverarray"
	"github.com/fleetwright/fleetwright/pkg/telemetry"
	"github.com/fleetwright/fleetwright/pkg/workflow"
)

func newRunCommand() *cobra.Command {
	var (
		dryRun        bool
		endpoint      string
		token         string
		statePath     string
		journalPath   string
		policyDir     string
		protected     []string
		pollInterval  time.Duration
		pollDeadline  time.Duration
		metricsListen string
		traceExporter string
	)

	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Run a workflow document",
		Long: `Execute a workflow document against the fleet platform.

Steps run in document order; parallel groups run their children
concurrently and join before the next step. With --dry, every actor
logs what it would do without mutating anything on the platform, and
arrays that do not exist yet are simulated so later steps can still
reference them.`,
		Example: `  # Preview a fleet flip without touching the platform
  fleetwright run --dry --state ./state.yaml flip.yaml

  # Run for real, journaling outcomes and enforcing local policies
  fleetwright run --state ./state.yaml --journal ./journal.db --policy-dir ./policies flip.yaml

  # Shield production arrays from terminate/destroy steps
  fleetwright run --state ./state.yaml --protect prod-web --protect prod-worker flip.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			log, err := newLogger()
			if err != nil {
				return err
			}

			parser, err := workflow.NewParser()
			if err != nil {
				return err
			}
			doc, err := parser.ParseFile(args[0])
			if err != nil {
				return err
			}

			if token == "" {
				token = os.Getenv("FLEET_PLATFORM_TOKEN")
			}
			client, err := newPlatformClient(fleetapi.Config{
				Endpoint: endpoint,
				Token:    token,
			}, statePath)
			if err != nil {
				return err
			}

			registry := actors.NewRegistry()
			if err := serverarray.Register(registry); err != nil {
				return err
			}

			gate, err := policy.NewGate(log)
			if err != nil {
				return err
			}
			if policyDir != "" {
				if err := gate.LoadDir(policyDir); err != nil {
					return err
				}
			}

			runner := &workflow.Runner{
				Registry:     registry,
				Client:       client,
				Log:          log,
				Gate:         gate,
				Protected:    protected,
				DryRun:       dryRun,
				PollInterval: pollInterval,
				PollDeadline: pollDeadline,
			}

			if metricsListen != "" {
				metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{
					Enabled:       true,
					ListenAddress: metricsListen,
					Path:          "/metrics",
					Namespace:     "fleetwright",
				})
				if err != nil {
					return err
				}
				if err := metrics.StartMetricsServer(); err != nil {
					return err
				}
				runner.Metrics = metrics
			}

			if traceExporter != "" {
				tracer, err := telemetry.NewTracer(telemetry.TracingConfig{
					Enabled:      true,
					Exporter:     traceExporter,
					Endpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
					SamplingRate: 1.0,
					Insecure:     true,
				}, "fleetwright", cmd.Root().Version, "cli")
				if err != nil {
					return err
				}
				defer tracer.Shutdown(ctx)
				runner.Tracer = tracer
			}

			if journalPath != "" {
				store, err := journal.NewStore(journal.Config{Path: journalPath})
				if err != nil {
					return err
				}
				if err := store.Init(ctx); err != nil {
					return err
				}
				defer store.Close()
				runner.Journal = store
			}

			result, runErr := runner.Run(ctx, doc)
			printResult(cmd, result)
			return runErr
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry", false, "simulate the run without mutating the platform")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "fleet platform API endpoint")
	cmd.Flags().StringVar(&token, "token", "", "fleet platform API token (or FLEET_PLATFORM_TOKEN)")
	cmd.Flags().StringVar(&statePath, "state", "", "platform state file served by the in-process backend")
	cmd.Flags().StringVar(&journalPath, "journal", "", "SQLite journal database path (empty disables journaling)")
	cmd.Flags().StringVar(&policyDir, "policy-dir", "", "directory of additional .rego policy rules")
	cmd.Flags().StringSliceVar(&protected, "protect", nil, "array names the policy gate shields from terminate/destroy")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 0, "convergence poll interval (default 60s)")
	cmd.Flags().DurationVar(&pollDeadline, "poll-deadline", 0, "give up waiting for convergence after this long (default: wait forever)")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address (empty disables)")
	cmd.Flags().StringVar(&traceExporter, "trace-exporter", "", "trace exporter (otlp, stdout; empty disables)")

	return cmd
}

// newPlatformClient builds the client the actors talk to. The module ships
// the in-process static backend only; a remote transport plugs in behind
// fleetapi.Client.
func newPlatformClient(cfg fleetapi.Config, statePath string) (fleetapi.Client, error) {
	if statePath != "" {
		state, err := fleetapi.LoadState(statePath)
		if err != nil {
			return nil, err
		}
		return fleetapi.NewStaticClient(state), nil
	}
	if cfg.Endpoint != "" {
		return nil, fmt.Errorf("no transport for endpoint %q is linked into this build; use --state", cfg.Endpoint)
	}
	return nil, fmt.Errorf("no platform configured: pass --state with a platform state file")
}

func printResult(cmd *cobra.Command, result *workflow.Result) {
	if result == nil || len(result.Steps) == 0 {
		return
	}
	cmd.Printf("run %s (dry_run=%t)\n", result.RunID, result.DryRun)
	for _, step := range result.Steps {
		line := fmt.Sprintf("  %-9s %s", step.Status, step.Desc)
		if step.Err != nil {
			line += fmt.Sprintf(": %v", step.Err)
		}
		cmd.Println(line)
	}
}
