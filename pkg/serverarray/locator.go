package serverarray

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fleetwright/fleetwright/pkg/actors"
	"github.com/fleetwright/fleetwright/pkg/fleetapi"
	"github.com/fleetwright/fleetwright/pkg/telemetry"
)

// ExistencePolicy states what a lookup requires of its result.
type ExistencePolicy int

const (
	// PolicyNone never fails on presence or absence.
	PolicyNone ExistencePolicy = iota

	// PolicyMustExist fails with a not-found error when no array matches.
	PolicyMustExist

	// PolicyMustNotExist fails with an already-exists error when any
	// array matches.
	PolicyMustNotExist
)

// simulatedMinCount is the synthetic elasticity minimum given to fabricated
// handles so downstream launch-count arithmetic behaves sanely.
const simulatedMinCount = 4

// FindSpec describes one array lookup.
type FindSpec struct {
	// Name is the array name to search for.
	Name string

	// Policy is the existence requirement, enforced after simulation.
	Policy ExistencePolicy

	// AllowSimulated permits fabricating a simulated handle when the
	// array is missing and the runtime is in dry-run mode.
	AllowSimulated bool

	// Exact requires a full-name match; otherwise the name is treated as
	// a prefix and several arrays may match.
	Exact bool
}

// Locator finds server arrays by name and applies existence policy,
// fabricating simulated handles under dry run where permitted.
type Locator struct {
	rt  *actors.Runtime
	log *telemetry.Logger
}

// NewLocator creates a locator bound to the runtime.
func NewLocator(rt *actors.Runtime) *Locator {
	return &Locator{rt: rt, log: rt.Logger()}
}

// Find looks up arrays per spec. The returned slice has exactly one element
// for exact lookups and simulated handles; prefix lookups may return more.
func (l *Locator) Find(ctx context.Context, spec FindSpec) ([]*fleetapi.ServerArray, error) {
	switch spec.Policy {
	case PolicyMustExist:
		l.log.Debugf("verifying that array %q exists", spec.Name)
	case PolicyMustNotExist:
		l.log.Debugf("verifying that array %q does not exist", spec.Name)
	default:
		l.log.Debugf("searching for array named %q", spec.Name)
	}

	arrays, err := l.rt.Client.FindArrays(ctx, spec.Name, spec.Exact)
	l.rt.Metric().RecordRemoteCall("FindArrays", err)
	if err != nil {
		return nil, actors.NewTransportError(
			fmt.Sprintf("looking up array %q", spec.Name), err).WithArray(spec.Name)
	}

	if len(arrays) == 0 && l.rt.DryRun && spec.AllowSimulated {
		l.log.Infof("array %q not found, fabricating a simulated handle", spec.Name)
		l.rt.Metric().RecordArraySimulated()
		arrays = []*fleetapi.ServerArray{simulatedArray(spec.Name)}
	}

	// Policy enforcement happens after the simulation step: a simulated
	// handle satisfies must-exist, and a prior dry-run step that created
	// the array is why non-strict callers allow simulation at all.
	if len(arrays) > 0 && spec.Policy == PolicyMustNotExist {
		return nil, actors.NewAlreadyExistsError(
			fmt.Sprintf("array %q already exists", spec.Name)).WithArray(spec.Name)
	}
	if len(arrays) == 0 && spec.Policy == PolicyMustExist {
		return nil, actors.NewNotFoundError(
			fmt.Sprintf("array %q not found", spec.Name)).WithArray(spec.Name)
	}

	if len(arrays) > 1 {
		for _, a := range arrays {
			l.log.Infof("matching array found: %s", a.Name)
		}
	}

	return arrays, nil
}

// simulatedArray fabricates a handle for an array that does not exist yet.
// The synthetic elasticity bounds keep launch-count arithmetic sane.
func simulatedArray(name string) *fleetapi.ServerArray {
	return &fleetapi.ServerArray{
		ID:    uuid.NewString(),
		Name:  fmt.Sprintf("<simulated: %s>", name),
		State: "disabled",
		Elasticity: &fleetapi.ElasticityParams{
			Bounds: fleetapi.Bounds{MinCount: simulatedMinCount},
		},
		Simulated: true,
	}
}
