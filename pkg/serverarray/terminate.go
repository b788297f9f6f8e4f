package serverarray

import (
	"context"
	"fmt"

	"github.com/fleetwright/fleetwright/pkg/actors"
	"github.com/fleetwright/fleetwright/pkg/fleetapi"
	"github.com/fleetwright/fleetwright/pkg/telemetry"
)

// TerminateOptions configure the Terminate and Destroy actors.
type TerminateOptions struct {
	// Array is the name of the array (or name prefix, with Exact false)
	// to terminate.
	Array string `yaml:"array" validate:"required"`

	// Exact requires a full-name match. Defaults to true.
	Exact *bool `yaml:"exact"`

	// Strict fails the run when the array does not exist. Defaults to
	// true.
	Strict *bool `yaml:"strict"`
}

// Terminate disables autoscaling on one or more arrays, terminates all of
// their instances, and waits until each array reports empty. Stages run as
// barriers: every array finishes a stage before any array starts the next.
type Terminate struct {
	rt      *actors.Runtime
	log     *telemetry.Logger
	locator *Locator
	poller  *Poller
	opts    TerminateOptions
}

// NewTerminate builds a Terminate actor from raw workflow options.
func NewTerminate(rt *actors.Runtime, options map[string]any) (actors.Actor, error) {
	var opts TerminateOptions
	if err := actors.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	return &Terminate{
		rt:      rt,
		log:     rt.Logger(),
		locator: NewLocator(rt),
		poller:  NewPoller(rt),
		opts:    opts,
	}, nil
}

// Run performs the terminate workflow against every matched array.
func (t *Terminate) Run(ctx context.Context) error {
	arrays, err := t.find(ctx)
	if err != nil {
		return err
	}
	return t.terminate(ctx, arrays)
}

func (t *Terminate) find(ctx context.Context) ([]*fleetapi.ServerArray, error) {
	return t.locator.Find(ctx, FindSpec{
		Name:           t.opts.Array,
		Policy:         strictPolicy(t.opts.Strict, PolicyMustExist),
		AllowSimulated: !actors.BoolOption(t.opts.Strict, true),
		Exact:          actors.BoolOption(t.opts.Exact, true),
	})
}

func (t *Terminate) terminate(ctx context.Context, arrays []*fleetapi.ServerArray) error {
	if err := applyAll(ctx, arrays, t.disable); err != nil {
		return err
	}
	if err := applyAll(ctx, arrays, t.terminateAll); err != nil {
		return err
	}
	return applyAll(ctx, arrays, t.waitEmpty)
}

// disable turns off autoscaling so no new instances launch while the
// existing ones are being terminated.
func (t *Terminate) disable(ctx context.Context, array *fleetapi.ServerArray) error {
	params, err := FlattenParams("server_array", map[string]any{"state": "disabled"})
	if err != nil {
		return err
	}

	if skipMutation(t.rt, array) {
		t.log.Infof("would have updated array %q with params: %v", array.Name, params)
		return nil
	}

	t.log.Infof("disabling array %q", array.Name)
	if _, err := t.rt.Client.UpdateArray(ctx, array, params); err != nil {
		t.rt.Metric().RecordRemoteCall("UpdateArray", err)
		return actors.NewTransportError(
			fmt.Sprintf("disabling array %q", array.Name), err).WithArray(array.Name)
	}
	t.rt.Metric().RecordRemoteCall("UpdateArray", nil)
	return nil
}

func (t *Terminate) terminateAll(ctx context.Context, array *fleetapi.ServerArray) error {
	if skipMutation(t.rt, array) {
		t.log.Infof("would have terminated all instances of array %q", array.Name)
		return nil
	}

	t.log.Infof("terminating all instances in array %q", array.Name)
	task, err := t.rt.Client.TerminateAllInstances(ctx, array)
	t.rt.Metric().RecordRemoteCall("TerminateAllInstances", err)
	if err != nil {
		return actors.NewTransportError(
			fmt.Sprintf("terminating instances of array %q", array.Name), err).WithArray(array.Name)
	}

	// The bulk-terminate job reports false failures when hosts are
	// already mid-transition, so its outcome is deliberately ignored.
	// The wait-until-empty stage is the real success condition.
	label := fmt.Sprintf("terminating instances of %q", array.Name)
	ok, err := t.rt.Client.AwaitTask(ctx, task, label, t.rt.Interval())
	t.rt.Metric().RecordTaskAwaited(ok)
	if err != nil {
		return actors.NewTransportError(
			fmt.Sprintf("waiting for bulk-terminate task on array %q", array.Name), err).
			WithArray(array.Name)
	}
	return nil
}

func (t *Terminate) waitEmpty(ctx context.Context, array *fleetapi.ServerArray) error {
	if t.rt.DryRun {
		t.log.Infof("pretending that array %q instances are terminated", array.Name)
		return nil
	}
	return t.poller.WaitUntilEmpty(ctx, array)
}

// Destroy terminates one or more arrays and then deletes them. It runs the
// full Terminate workflow first, re-locates the targets once their
// instances are gone, and issues a delete per array.
type Destroy struct {
	*Terminate
}

// NewDestroy builds a Destroy actor from raw workflow options. It accepts
// the same options as Terminate.
func NewDestroy(rt *actors.Runtime, options map[string]any) (actors.Actor, error) {
	actor, err := NewTerminate(rt, options)
	if err != nil {
		return nil, err
	}
	return &Destroy{Terminate: actor.(*Terminate)}, nil
}

// Run terminates and then deletes every matched array.
func (d *Destroy) Run(ctx context.Context) error {
	if err := d.Terminate.Run(ctx); err != nil {
		return err
	}

	arrays, err := d.find(ctx)
	if err != nil {
		return err
	}
	return applyAll(ctx, arrays, d.destroy)
}

func (d *Destroy) destroy(ctx context.Context, array *fleetapi.ServerArray) error {
	if skipMutation(d.rt, array) {
		d.log.Infof("pretending to destroy array %q", array.Name)
		return nil
	}

	d.log.Infof("destroying array %q", array.Name)
	err := d.rt.Client.DeleteArray(ctx, array)
	d.rt.Metric().RecordRemoteCall("DeleteArray", err)
	if err != nil {
		return actors.NewTransportError(
			fmt.Sprintf("destroying array %q", array.Name), err).WithArray(array.Name)
	}
	return nil
}
