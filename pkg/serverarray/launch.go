package serverarray

import (
	"context"
	"fmt"

	"github.com/fleetwright/fleetwright/pkg/actors"
	"github.com/fleetwright/fleetwright/pkg/fleetapi"
	"github.com/fleetwright/fleetwright/pkg/telemetry"
)

// LaunchOptions configure the Launch actor.
type LaunchOptions struct {
	// Array is the name of the array (or name prefix, with Exact false)
	// to launch.
	Array string `yaml:"array" validate:"required"`

	// Count is the number of instances to launch. When omitted the actor
	// launches up to the array's configured minimum.
	Count *int `yaml:"count"`

	// Enable turns on the array's autoscaling before launching. Leaving
	// it false does not disable an already-enabled array.
	Enable bool `yaml:"enable"`

	// Exact requires a full-name match. Defaults to true.
	Exact *bool `yaml:"exact"`
}

// Launch boots instances in one or more arrays and waits until each array
// reports the target number of operational instances.
type Launch struct {
	rt      *actors.Runtime
	log     *telemetry.Logger
	locator *Locator
	poller  *Poller
	opts    LaunchOptions
}

// NewLaunch builds a Launch actor from raw workflow options. The actor must
// be told to either enable autoscaling or launch a positive explicit count;
// anything else would be a guaranteed no-op, so it fails construction.
func NewLaunch(rt *actors.Runtime, options map[string]any) (actors.Actor, error) {
	var opts LaunchOptions
	if err := actors.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	if !opts.Enable && (opts.Count == nil || *opts.Count <= 0) {
		return nil, actors.NewConfigError(
			"either set enable to true or supply a positive count", nil)
	}
	return &Launch{
		rt:      rt,
		log:     rt.Logger(),
		locator: NewLocator(rt),
		poller:  NewPoller(rt),
		opts:    opts,
	}, nil
}

// Run enables, launches, and then waits on every matched array, one barrier
// stage at a time.
func (l *Launch) Run(ctx context.Context) error {
	arrays, err := l.locator.Find(ctx, FindSpec{
		Name:           l.opts.Array,
		Policy:         PolicyNone,
		AllowSimulated: true,
		Exact:          actors.BoolOption(l.opts.Exact, true),
	})
	if err != nil {
		return err
	}
	if len(arrays) == 0 {
		return actors.NewNotFoundError(
			fmt.Sprintf("array %q not found", l.opts.Array)).WithArray(l.opts.Array)
	}

	if err := applyAll(ctx, arrays, l.enable); err != nil {
		return err
	}
	if err := applyAll(ctx, arrays, l.launch); err != nil {
		return err
	}
	return applyAll(ctx, arrays, l.waitOperational)
}

// enable turns on autoscaling when requested, so the platform tops the
// array up on its own schedule as well.
func (l *Launch) enable(ctx context.Context, array *fleetapi.ServerArray) error {
	if !l.opts.Enable {
		return nil
	}

	if skipMutation(l.rt, array) {
		l.log.Infof("would enable array %q", array.Name)
		return nil
	}

	l.log.Infof("enabling array %q", array.Name)
	params, err := FlattenParams("server_array", map[string]any{"state": "enabled"})
	if err != nil {
		return err
	}
	if _, err := l.rt.Client.UpdateArray(ctx, array, params); err != nil {
		l.rt.Metric().RecordRemoteCall("UpdateArray", err)
		return actors.NewTransportError(
			fmt.Sprintf("enabling array %q", array.Name), err).WithArray(array.Name)
	}
	l.rt.Metric().RecordRemoteCall("UpdateArray", nil)
	return nil
}

func (l *Launch) launch(ctx context.Context, array *fleetapi.ServerArray) error {
	minCount := array.MinCount()

	// The current operational count is always sampled, even with an
	// explicit count, so the no-op warning below can report real numbers
	// in every branch. Simulated arrays do not exist remotely; treat
	// them as empty.
	current := 0
	if !array.Simulated {
		instances, err := l.rt.Client.ListInstances(ctx, array, fleetapi.FilterStateOperational)
		l.rt.Metric().RecordRemoteCall("ListInstances", err)
		if err != nil {
			return actors.NewTransportError(
				fmt.Sprintf("listing instances of array %q", array.Name), err).WithArray(array.Name)
		}
		current = len(instances)
	}

	var count int
	if l.opts.Count != nil {
		count = *l.opts.Count
	} else {
		// Launch up to min_count, not min_count new instances.
		count = minCount - current
		if count < 0 {
			count = 0
		}
	}

	if l.rt.DryRun {
		l.log.Infof("would have launched %d instances of array %q", count, array.Name)
		return nil
	}

	if count < 1 {
		l.log.Warnf("array %q already has %d instances and min_count is %d",
			array.Name, current, minCount)
		return nil
	}

	l.log.Infof("launching %d instances of array %q", count, array.Name)
	err := l.rt.Client.LaunchInstances(ctx, array, count)
	l.rt.Metric().RecordRemoteCall("LaunchInstances", err)
	if err != nil {
		return actors.NewTransportError(
			fmt.Sprintf("launching instances of array %q", array.Name), err).WithArray(array.Name)
	}
	l.log.Infof("launched %d instances of array %q", count, array.Name)
	return nil
}

func (l *Launch) waitOperational(ctx context.Context, array *fleetapi.ServerArray) error {
	if l.rt.DryRun {
		l.log.Infof("pretending that array %q instances are launched", array.Name)
		return nil
	}

	target := array.MinCount()
	if l.opts.Count != nil {
		target = *l.opts.Count
	}
	return l.poller.WaitUntilOperational(ctx, array, target)
}
