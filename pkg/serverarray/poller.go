package serverarray

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetwright/fleetwright/pkg/actors"
	"github.com/fleetwright/fleetwright/pkg/fleetapi"
	"github.com/fleetwright/fleetwright/pkg/telemetry"
)

// Poller drives convergence waits: it samples an array's instance state on
// the runtime's poll interval until a predicate holds. Dry runs never
// wait; the poller returns immediately without querying the platform.
//
// With no PollDeadline configured a wait is unbounded, preserving the
// historical behavior; the runtime can bound it, and cancelling ctx always
// ends the wait.
type Poller struct {
	rt  *actors.Runtime
	log *telemetry.Logger
}

// NewPoller creates a poller bound to the runtime.
func NewPoller(rt *actors.Runtime) *Poller {
	return &Poller{rt: rt, log: rt.Logger()}
}

// WaitUntilEmpty blocks until the array reports zero non-terminated
// instances. Already-terminated instances may linger in an unfiltered
// listing, so the list is narrowed to everything still alive.
func (p *Poller) WaitUntilEmpty(ctx context.Context, array *fleetapi.ServerArray) error {
	filters := []fleetapi.Filter{fleetapi.FilterStateNotTerminated}
	return p.waitUntil(ctx, array, "empty", filters, func(count int) bool {
		p.log.WithArray(array.Name).Infof("%d instances found", count)
		return count == 0
	})
}

// WaitUntilOperational blocks until the array reports at least target
// instances in the operational state.
func (p *Poller) WaitUntilOperational(ctx context.Context, array *fleetapi.ServerArray, target int) error {
	filters := []fleetapi.Filter{fleetapi.FilterStateOperational}
	return p.waitUntil(ctx, array, "operational", filters, func(count int) bool {
		p.log.WithArray(array.Name).Infof("%d instances found, waiting for %d", count, target)
		return count >= target
	})
}

func (p *Poller) waitUntil(ctx context.Context, array *fleetapi.ServerArray, predicate string, filters []fleetapi.Filter, done func(count int) bool) error {
	if p.rt.DryRun {
		return nil
	}

	if p.rt.PollDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.rt.PollDeadline)
		defer cancel()
	}

	for {
		instances, err := p.rt.Client.ListInstances(ctx, array, filters...)
		p.rt.Metric().RecordRemoteCall("ListInstances", err)
		if err != nil {
			return actors.NewTransportError(
				fmt.Sprintf("listing instances of array %q", array.Name), err).WithArray(array.Name)
		}
		p.rt.Metric().RecordPollIteration(predicate)

		if done(len(instances)) {
			return nil
		}

		p.log.Debug("sleeping before next poll")
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for array %q to converge: %w", array.Name, ctx.Err())
		case <-time.After(p.rt.Interval()):
		}
	}
}
