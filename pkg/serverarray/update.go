package serverarray

import (
	"context"
	"fmt"
	"sort"

	"github.com/fleetwright/fleetwright/pkg/actors"
	"github.com/fleetwright/fleetwright/pkg/fleetapi"
	"github.com/fleetwright/fleetwright/pkg/telemetry"
)

// UpdateOptions configure the Update actor.
type UpdateOptions struct {
	// Array is the name of the array (or name prefix, with Exact false)
	// to patch.
	Array string `yaml:"array" validate:"required"`

	// Exact requires a full-name match. Defaults to true.
	Exact *bool `yaml:"exact"`

	// Params is a nested tree of array parameters to apply, e.g.
	// elasticity_params.bounds.min_count.
	Params map[string]any `yaml:"params"`

	// Inputs is a tree of next-instance launch inputs to apply.
	Inputs map[string]any `yaml:"inputs"`
}

// Update patches parameters and next-instance inputs on one or more server
// arrays. Option trees are encoded at construction so malformed structure
// fails before any remote call.
type Update struct {
	rt      *actors.Runtime
	log     *telemetry.Logger
	locator *Locator
	opts    UpdateOptions
	params  []fleetapi.Param
	inputs  []fleetapi.Param
}

// NewUpdate builds an Update actor from raw workflow options.
func NewUpdate(rt *actors.Runtime, options map[string]any) (actors.Actor, error) {
	var opts UpdateOptions
	if err := actors.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	params, err := FlattenParams("server_array", opts.Params)
	if err != nil {
		return nil, err
	}
	inputs, err := FlattenParams("inputs", opts.Inputs)
	if err != nil {
		return nil, err
	}
	return &Update{
		rt:      rt,
		log:     rt.Logger(),
		locator: NewLocator(rt),
		opts:    opts,
		params:  params,
		inputs:  inputs,
	}, nil
}

// Run locates the target arrays and applies the encoded params and inputs.
// A dry run reports what would change and, for real arrays, verifies that
// every supplied input is defined on the array.
func (u *Update) Run(ctx context.Context) error {
	arrays, err := u.locator.Find(ctx, FindSpec{
		Name:           u.opts.Array,
		Policy:         PolicyNone,
		AllowSimulated: true,
		Exact:          actors.BoolOption(u.opts.Exact, true),
	})
	if err != nil {
		return err
	}

	if u.rt.DryRun {
		u.log.Debug("not making any changes")
		if len(u.params) > 0 {
			u.log.Infof("params would be: %v", u.params)
		}
		if len(u.inputs) > 0 {
			u.log.Infof("inputs would be: %v", u.inputs)
			if err := applyAll(ctx, arrays, u.checkInputs); err != nil {
				return err
			}
		}
		return nil
	}

	if err := applyAll(ctx, arrays, u.updateParams); err != nil {
		return err
	}
	return applyAll(ctx, arrays, u.updateInputs)
}

// checkInputs verifies that every supplied input name exists on the array.
// Simulated handles have no inputs to check; warn and move on.
func (u *Update) checkInputs(ctx context.Context, array *fleetapi.ServerArray) error {
	if array.Simulated {
		u.log.WithArray(array.Name).Warn("cannot check inputs for a simulated array")
		return nil
	}

	defined, err := u.rt.Client.ArrayInputs(ctx, array)
	u.rt.Metric().RecordRemoteCall("ArrayInputs", err)
	if err != nil {
		return actors.NewTransportError(
			fmt.Sprintf("fetching inputs of array %q", array.Name), err).WithArray(array.Name)
	}

	known := make(map[string]bool, len(defined))
	for _, in := range defined {
		known[in.Name] = true
	}

	names := make([]string, 0, len(u.opts.Inputs))
	for name := range u.opts.Inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	ok := true
	for _, name := range names {
		if !known[name] {
			u.log.WithArray(array.Name).Errorf("input not found: %q", name)
			ok = false
		}
	}
	if !ok {
		return actors.NewConfigError("some supplied inputs do not exist on the array", nil).
			WithArray(array.Name)
	}
	return nil
}

func (u *Update) updateParams(ctx context.Context, array *fleetapi.ServerArray) error {
	if len(u.params) == 0 {
		return nil
	}

	u.log.Infof("updating array %q with params: %v", array.Name, u.params)
	_, err := u.rt.Client.UpdateArray(ctx, array, u.params)
	u.rt.Metric().RecordRemoteCall("UpdateArray", err)
	if err != nil {
		if fleetapi.IsRejection(err) {
			return actors.NewRemoteRejectionError(
				fmt.Sprintf("invalid parameters supplied to patch array %q", u.opts.Array), err).
				WithArray(array.Name)
		}
		return actors.NewTransportError(
			fmt.Sprintf("updating array %q", array.Name), err).WithArray(array.Name)
	}
	return nil
}

func (u *Update) updateInputs(ctx context.Context, array *fleetapi.ServerArray) error {
	if len(u.inputs) == 0 {
		return nil
	}

	u.log.Infof("updating array %q with inputs: %v", array.Name, u.inputs)
	err := u.rt.Client.UpdateArrayInputs(ctx, array, u.inputs)
	u.rt.Metric().RecordRemoteCall("UpdateArrayInputs", err)
	if err != nil {
		if fleetapi.IsRejection(err) {
			return actors.NewRemoteRejectionError(
				fmt.Sprintf("invalid inputs supplied to array %q", u.opts.Array), err).
				WithArray(array.Name)
		}
		return actors.NewTransportError(
			fmt.Sprintf("updating inputs of array %q", array.Name), err).WithArray(array.Name)
	}
	return nil
}
