package serverarray

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fleetwright/fleetwright/pkg/actors"
	"github.com/fleetwright/fleetwright/pkg/fleetapi"
	"github.com/fleetwright/fleetwright/pkg/telemetry"
)

// CloneOptions configure the Clone actor.
type CloneOptions struct {
	// Source is the name of the array to copy.
	Source string `yaml:"source" validate:"required"`

	// StrictSource fails the run when the source array does not exist.
	// Defaults to true; disable it when an earlier step creates the
	// source, so a dry run can fabricate a handle for it.
	StrictSource *bool `yaml:"strict_source"`

	// Dest is the name given to the copy.
	Dest string `yaml:"dest" validate:"required"`

	// StrictDest fails the run when the destination name is already
	// taken. Defaults to true; disable it when an earlier step destroys
	// the existing array.
	StrictDest *bool `yaml:"strict_dest"`
}

// Clone copies a server array and renames the copy. It is strict by default
// about the source existing and the destination not existing.
type Clone struct {
	rt      *actors.Runtime
	log     *telemetry.Logger
	locator *Locator
	opts    CloneOptions
}

// NewClone builds a Clone actor from raw workflow options.
func NewClone(rt *actors.Runtime, options map[string]any) (actors.Actor, error) {
	var opts CloneOptions
	if err := actors.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	return &Clone{
		rt:      rt,
		log:     rt.Logger(),
		locator: NewLocator(rt),
		opts:    opts,
	}, nil
}

// Run locates source and destination, clones the source, and renames the
// clone. Under dry run the clone is a fabricated handle and the rename call
// is skipped, but the narrative walks the same steps.
func (c *Clone) Run(ctx context.Context) error {
	sources, err := c.locator.Find(ctx, FindSpec{
		Name:           c.opts.Source,
		Policy:         strictPolicy(c.opts.StrictSource, PolicyMustExist),
		AllowSimulated: !actors.BoolOption(c.opts.StrictSource, true),
		Exact:          true,
	})
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return actors.NewNotFoundError(
			fmt.Sprintf("source array %q not found", c.opts.Source)).WithArray(c.opts.Source)
	}
	source := sources[0]

	// Sanity check only; the handle is discarded. A fabricated dest under
	// non-strict dry run is harmless for the same reason.
	if _, err := c.locator.Find(ctx, FindSpec{
		Name:           c.opts.Dest,
		Policy:         strictPolicy(c.opts.StrictDest, PolicyMustNotExist),
		AllowSimulated: !actors.BoolOption(c.opts.StrictDest, true),
		Exact:          true,
	}); err != nil {
		return err
	}

	c.log.Infof("cloning array %q", source.Name)
	var clone *fleetapi.ServerArray
	if c.rt.DryRun {
		clone = &fleetapi.ServerArray{
			ID:        uuid.NewString(),
			Name:      fmt.Sprintf("<simulated clone of %s>", c.opts.Source),
			Simulated: true,
		}
	} else {
		clone, err = c.rt.Client.CloneArray(ctx, source)
		c.rt.Metric().RecordRemoteCall("CloneArray", err)
		if err != nil {
			return actors.NewTransportError(
				fmt.Sprintf("cloning array %q", source.Name), err).WithArray(source.Name)
		}
	}

	params, err := FlattenParams("server_array", map[string]any{"name": c.opts.Dest})
	if err != nil {
		return err
	}
	c.log.Infof("renaming array %q to %q", clone.Name, c.opts.Dest)
	if skipMutation(c.rt, clone) {
		return nil
	}
	if _, err := c.rt.Client.UpdateArray(ctx, clone, params); err != nil {
		c.rt.Metric().RecordRemoteCall("UpdateArray", err)
		return actors.NewTransportError(
			fmt.Sprintf("renaming array %q", clone.Name), err).WithArray(clone.Name)
	}
	c.rt.Metric().RecordRemoteCall("UpdateArray", nil)
	return nil
}

// strictPolicy maps a strict flag (default true) to its existence policy;
// non-strict lookups never fail on presence or absence.
func strictPolicy(strict *bool, policy ExistencePolicy) ExistencePolicy {
	if actors.BoolOption(strict, true) {
		return policy
	}
	return PolicyNone
}

// skipMutation reports whether a mutating call against array must be
// suppressed: every dry run, and any simulated handle regardless of mode.
func skipMutation(rt *actors.Runtime, array *fleetapi.ServerArray) bool {
	return rt.DryRun || array.Simulated
}
