package serverarray

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fleetwright/fleetwright/pkg/actors"
	"github.com/fleetwright/fleetwright/pkg/fleetapi"
	"github.com/fleetwright/fleetwright/pkg/telemetry"
)

// inputSchemes are the value prefixes the platform accepts for script
// inputs, e.g. "text:my-elb" or "cred:DB_PASSWORD".
var inputSchemes = []string{"text", "ignore", "env", "cred", "key", "array"}

// defaultExpectedRuntime is the task poll interval when the workflow does
// not state how long the script is expected to take.
const defaultExpectedRuntime = 5 * time.Second

// ExecuteOptions configure the Execute actor.
type ExecuteOptions struct {
	// Array is the name of the array (or name prefix, with Exact false)
	// whose instances run the script.
	Array string `yaml:"array" validate:"required"`

	// Exact requires a full-name match. Defaults to true.
	Exact *bool `yaml:"exact"`

	// Script is the script name, or a namespaced "book::recipe".
	Script string `yaml:"script" validate:"required"`

	// ExpectedRuntime is the expected script duration in seconds, used as
	// the task poll interval. Defaults to 5.
	ExpectedRuntime int `yaml:"expected_runtime" validate:"omitempty,min=1"`

	// Inputs is a tree of script inputs; every leaf value must carry one
	// of the accepted scheme prefixes.
	Inputs map[string]any `yaml:"inputs"`
}

// Execute runs a script on every operational instance of one or more
// arrays, submitting one task per instance and awaiting all of them.
//
// The platform's own bulk-execute call is avoided on purpose: it gives no
// per-host progress and often runs on hosts that are mid-termination,
// producing false failures. Submitting per instance keeps each task
// individually observable.
type Execute struct {
	rt      *actors.Runtime
	log     *telemetry.Logger
	locator *Locator
	opts    ExecuteOptions
}

// NewExecute builds an Execute actor from raw workflow options. Beyond
// option typing there is nothing to validate upfront; script existence and
// input schemes are checked at run time.
func NewExecute(rt *actors.Runtime, options map[string]any) (actors.Actor, error) {
	var opts ExecuteOptions
	if err := actors.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	return &Execute{
		rt:      rt,
		log:     rt.Logger(),
		locator: NewLocator(rt),
		opts:    opts,
	}, nil
}

// Run executes the script on every matched array. A dry run verifies the
// script exists and the input schemes are valid, then reports what would
// run without submitting anything.
func (e *Execute) Run(ctx context.Context) error {
	inputs, err := FlattenParams("inputs", e.opts.Inputs)
	if err != nil {
		return err
	}

	// There is no way to test a real execution, so a dry run settles for
	// proving the script exists and the inputs are well-formed.
	if e.rt.DryRun {
		if err := e.checkScript(ctx); err != nil {
			return err
		}
		if err := e.checkInputs(); err != nil {
			return err
		}
	}

	arrays, err := e.locator.Find(ctx, FindSpec{
		Name:           e.opts.Array,
		Policy:         PolicyNone,
		AllowSimulated: true,
		Exact:          actors.BoolOption(e.opts.Exact, true),
	})
	if err != nil {
		return err
	}
	if len(arrays) == 0 {
		return actors.NewNotFoundError(
			fmt.Sprintf("array %q not found", e.opts.Array)).WithArray(e.opts.Array)
	}

	return applyAll(ctx, arrays, func(ctx context.Context, array *fleetapi.ServerArray) error {
		return e.executeArray(ctx, array, inputs)
	})
}

// checkScript verifies the named script or recipe exists. Names containing
// "::" are namespaced recipes and go through the cookbook lookup.
func (e *Execute) checkScript(ctx context.Context) error {
	var (
		script *fleetapi.Script
		err    error
	)
	if strings.Contains(e.opts.Script, "::") {
		script, err = e.rt.Client.FindCookbook(ctx, e.opts.Script)
		e.rt.Metric().RecordRemoteCall("FindCookbook", err)
	} else {
		script, err = e.rt.Client.FindScript(ctx, e.opts.Script)
		e.rt.Metric().RecordRemoteCall("FindScript", err)
	}
	if err != nil {
		return actors.NewTransportError(
			fmt.Sprintf("looking up script %q", e.opts.Script), err)
	}
	if script == nil {
		return actors.NewConfigError(
			fmt.Sprintf("script %q not found", e.opts.Script), nil)
	}
	return nil
}

// checkInputs verifies every input value starts with an accepted scheme
// prefix.
func (e *Execute) checkInputs() error {
	keys := make([]string, 0, len(e.opts.Inputs))
	for key := range e.opts.Inputs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	ok := true
	for _, key := range keys {
		value := fmt.Sprintf("%v", e.opts.Inputs[key])
		scheme, _, _ := strings.Cut(value, ":")
		if !validScheme(scheme) {
			e.log.Errorf("value for input %q must begin with one of %v", key, inputSchemes)
			ok = false
		}
	}
	if !ok {
		return actors.NewConfigError("one or more script inputs has a bad scheme prefix", nil)
	}
	return nil
}

func validScheme(scheme string) bool {
	for _, s := range inputSchemes {
		if scheme == s {
			return true
		}
	}
	return false
}

func (e *Execute) executeArray(ctx context.Context, array *fleetapi.ServerArray, inputs []fleetapi.Param) error {
	instances, err := e.operationalInstances(ctx, array)
	if err != nil {
		return err
	}

	if e.rt.DryRun {
		e.log.Infof("would have executed %q with inputs %v on %q",
			e.opts.Script, inputs, array.Name)
		return nil
	}

	e.log.Infof("executing %q on %d instances in array %q",
		e.opts.Script, len(instances), array.Name)
	executions, err := e.rt.Client.SubmitExecution(ctx, e.opts.Script, inputs, instances)
	e.rt.Metric().RecordRemoteCall("SubmitExecution", err)
	if err != nil {
		if fleetapi.IsClientError(err) {
			return actors.NewRemoteRejectionError(
				"invalid parameters supplied to execute script", err).WithArray(array.Name)
		}
		return actors.NewTransportError(
			fmt.Sprintf("executing %q on array %q", e.opts.Script, array.Name), err).
			WithArray(array.Name)
	}

	if err := e.awaitAll(ctx, array, executions); err != nil {
		return err
	}
	e.log.Infof("completed %d tasks", len(executions))
	return nil
}

// operationalInstances lists the array's non-terminated instances and
// returns the operational ones, warning about the rest. Simulated arrays
// have nothing running.
func (e *Execute) operationalInstances(ctx context.Context, array *fleetapi.ServerArray) ([]*fleetapi.Instance, error) {
	if array.Simulated {
		e.log.WithArray(array.Name).Infof("found 0 instances (in %s) in the operational state", array.Name)
		return nil, nil
	}

	all, err := e.rt.Client.ListInstances(ctx, array, fleetapi.FilterStateNotTerminated)
	e.rt.Metric().RecordRemoteCall("ListInstances", err)
	if err != nil {
		return nil, actors.NewTransportError(
			fmt.Sprintf("listing instances of array %q", array.Name), err).WithArray(array.Name)
	}

	var operational []*fleetapi.Instance
	skipped := 0
	for _, inst := range all {
		if inst.Operational() {
			operational = append(operational, inst)
		} else {
			skipped++
		}
	}

	if skipped > 0 {
		e.log.Warnf("found %d instances (in %s) in a non-operational state, "+
			"will not execute on these hosts", skipped, array.Name)
	}
	e.log.Infof("found %d instances (in %s) in the operational state",
		len(operational), array.Name)
	return operational, nil
}

// awaitAll polls every submitted task to a terminal status. No early abort:
// a failed task only fails the operation after all of them have finished.
func (e *Execute) awaitAll(ctx context.Context, array *fleetapi.ServerArray, executions []fleetapi.Execution) error {
	total := len(executions)
	e.log.Infof("queueing %d tasks", total)

	interval := defaultExpectedRuntime
	if e.opts.ExpectedRuntime > 0 {
		interval = time.Duration(e.opts.ExpectedRuntime) * time.Second
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
		first  error
	)
	for _, ex := range executions {
		wg.Add(1)
		go func(ex fleetapi.Execution) {
			defer wg.Done()
			label := fmt.Sprintf("executing %q on instance %s", e.opts.Script, ex.Instance.Name)
			ok, err := e.rt.Client.AwaitTask(ctx, ex.Task, label, interval)
			e.rt.Metric().RecordTaskAwaited(ok && err == nil)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if first == nil {
					first = actors.NewTransportError(
						fmt.Sprintf("waiting for task on instance %s", ex.Instance.Name), err).
						WithArray(array.Name)
				}
				return
			}
			if !ok {
				failed++
			}
		}(ex)
	}

	e.log.Infof("waiting for %d tasks to finish", total)
	wg.Wait()

	if first != nil {
		return first
	}
	if failed > 0 {
		e.log.Error("one or more tasks failed")
		return actors.NewTaskFailedError(
			fmt.Sprintf("%d of %d script tasks failed on array %q", failed, total, array.Name)).
			WithArray(array.Name)
	}
	return nil
}
