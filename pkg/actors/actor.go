// Package actors provides the execution framework shared by all fleetwright
// lifecycle actors: the Actor interface, the per-run Runtime, declarative
// option decoding with validation, the classified error taxonomy, and the
// actor type registry.
package actors

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/fleetwright/fleetwright/pkg/fleetapi"
	"github.com/fleetwright/fleetwright/pkg/telemetry"
)

// DefaultPollInterval is the sleep between convergence poll samples when
// the runtime does not override it.
const DefaultPollInterval = 60 * time.Second

// Actor is one configured lifecycle operation, ready to run. Construction
// validates options and fails fast; Run performs the workflow.
type Actor interface {
	Run(ctx context.Context) error
}

// Runtime carries the collaborators every actor shares for one run. It is
// built once per run by the workflow runner and passed by reference into
// each actor constructor; actors never reach for ambient state.
type Runtime struct {
	// Client is the fleet platform client.
	Client fleetapi.Client

	// Log is the run-scoped logger.
	Log *telemetry.Logger

	// Metrics is the run-scoped metrics collector. May be nil.
	Metrics *telemetry.Metrics

	// DryRun suppresses every mutating remote call. Actors still walk
	// their full workflow so the log narrative matches a real run.
	DryRun bool

	// PollInterval is the sleep between convergence poll samples.
	// Zero means DefaultPollInterval.
	PollInterval time.Duration

	// PollDeadline bounds each convergence wait. Zero preserves the
	// historical wait-forever behavior.
	PollDeadline time.Duration
}

// Logger returns the runtime's logger, or a default one, tagged with the
// dry-run marker.
func (rt *Runtime) Logger() *telemetry.Logger {
	log := rt.Log
	if log == nil {
		log = telemetry.FromContext(context.Background())
	}
	return log.WithDryRun(rt.DryRun)
}

// Metric returns the runtime's metrics collector, or a no-op one.
func (rt *Runtime) Metric() *telemetry.Metrics {
	if rt.Metrics == nil {
		return &telemetry.Metrics{}
	}
	return rt.Metrics
}

// Interval returns the effective poll interval.
func (rt *Runtime) Interval() time.Duration {
	if rt.PollInterval > 0 {
		return rt.PollInterval
	}
	return DefaultPollInterval
}

var validate = validator.New()

// DecodeOptions decodes a raw option mapping from a workflow document into
// a typed option struct and validates it. Shape mismatches and failed
// validation tags both surface as configuration errors before any remote
// call is made.
func DecodeOptions(raw map[string]any, out any) error {
	buf, err := yaml.Marshal(raw)
	if err != nil {
		return NewConfigError("options are not encodable", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return NewConfigError("options do not match the actor's schema", err)
	}
	if err := validate.Struct(out); err != nil {
		return NewConfigError(fmt.Sprintf("invalid options: %v", err), nil)
	}
	return nil
}

// BoolOption resolves an optional boolean with a default, for options like
// exact/strict that default to true when omitted.
func BoolOption(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
