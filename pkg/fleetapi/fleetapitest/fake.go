// Package fleetapitest provides an in-memory fleetapi.Client for tests and
// offline runs. The fake records every call it receives so tests can assert
// on call ordering and on the absence of mutating calls in dry-run mode.
package fleetapitest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fleetwright/fleetwright/pkg/fleetapi"
)

// Call is one recorded client invocation.
type Call struct {
	// Method is the Client method name, e.g. "LaunchInstances".
	Method string

	// Array is the name of the array the call targeted, when applicable.
	Array string

	// Detail carries method-specific context (counts, script names).
	Detail string

	// At is when the call completed.
	At time.Time
}

// Mutating methods of the fleetapi.Client interface.
var mutatingMethods = map[string]bool{
	"CloneArray":            true,
	"UpdateArray":           true,
	"DeleteArray":           true,
	"LaunchInstances":       true,
	"TerminateAllInstances": true,
	"UpdateArrayInputs":     true,
	"SubmitExecution":       true,
}

// Fake is an in-memory fleetapi.Client.
//
// Zero value is usable; populate the exported fields to seed state and set
// Errors to inject per-method failures.
type Fake struct {
	mu sync.Mutex

	// Arrays are the arrays FindArrays matches against.
	Arrays []*fleetapi.ServerArray

	// Instances maps array ID to its current instances.
	Instances map[string][]*fleetapi.Instance

	// InstanceSeq maps array ID to a queue of ListInstances responses.
	// Each call pops one entry; when the queue is empty, Instances is
	// used. Lets convergence tests script a shrinking or growing fleet.
	InstanceSeq map[string][][]*fleetapi.Instance

	// Inputs maps array ID to its defined launch inputs.
	Inputs map[string][]fleetapi.Input

	// Scripts and Cookbooks are the known executables by name.
	Scripts   map[string]*fleetapi.Script
	Cookbooks map[string]*fleetapi.Script

	// TaskFailures marks task IDs whose AwaitTask result is failure.
	TaskFailures map[string]bool

	// Errors injects an error per method name.
	Errors map[string]error

	calls []Call
}

var _ fleetapi.Client = (*Fake)(nil)

func (f *Fake) record(method, array, detail string) {
	f.calls = append(f.calls, Call{Method: method, Array: array, Detail: detail, At: time.Now()})
}

func (f *Fake) injected(method string) error {
	if f.Errors == nil {
		return nil
	}
	return f.Errors[method]
}

// Calls returns a copy of every recorded call in completion order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallNames returns the recorded method names in order.
func (f *Fake) CallNames() []string {
	calls := f.Calls()
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Method
	}
	return names
}

// MutatingCalls returns only the calls that would change remote state.
func (f *Fake) MutatingCalls() []Call {
	var out []Call
	for _, c := range f.Calls() {
		if mutatingMethods[c.Method] {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears the recorded calls but keeps the seeded state.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *Fake) FindArrays(ctx context.Context, name string, exact bool) ([]*fleetapi.ServerArray, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("FindArrays", name, fmt.Sprintf("exact=%t", exact))
	if err := f.injected("FindArrays"); err != nil {
		return nil, err
	}
	var out []*fleetapi.ServerArray
	for _, a := range f.Arrays {
		if exact && a.Name == name {
			return []*fleetapi.ServerArray{a}, nil
		}
		if !exact && strings.HasPrefix(a.Name, name) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *Fake) CloneArray(ctx context.Context, array *fleetapi.ServerArray) (*fleetapi.ServerArray, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CloneArray", array.Name, "")
	if err := f.injected("CloneArray"); err != nil {
		return nil, err
	}
	clone := &fleetapi.ServerArray{
		ID:         array.ID + "-clone",
		Name:       "clone of " + array.Name,
		State:      "disabled",
		Elasticity: array.Elasticity,
	}
	f.Arrays = append(f.Arrays, clone)
	return clone, nil
}

func (f *Fake) UpdateArray(ctx context.Context, array *fleetapi.ServerArray, params []fleetapi.Param) (*fleetapi.ServerArray, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateArray", array.Name, paramString(params))
	if err := f.injected("UpdateArray"); err != nil {
		return nil, err
	}
	return array, nil
}

func (f *Fake) DeleteArray(ctx context.Context, array *fleetapi.ServerArray) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteArray", array.Name, "")
	return f.injected("DeleteArray")
}

func (f *Fake) ListInstances(ctx context.Context, array *fleetapi.ServerArray, filters ...fleetapi.Filter) ([]*fleetapi.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListInstances", array.Name, filterString(filters))
	if err := f.injected("ListInstances"); err != nil {
		return nil, err
	}
	instances := f.Instances[array.ID]
	if seq := f.InstanceSeq[array.ID]; len(seq) > 0 {
		instances = seq[0]
		f.InstanceSeq[array.ID] = seq[1:]
	}
	return applyFilters(instances, filters), nil
}

func (f *Fake) LaunchInstances(ctx context.Context, array *fleetapi.ServerArray, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("LaunchInstances", array.Name, fmt.Sprintf("count=%d", count))
	if err := f.injected("LaunchInstances"); err != nil {
		return err
	}
	// Launched instances come up operational immediately so convergence
	// waits observe the grown fleet on their next poll.
	if f.Instances == nil {
		f.Instances = make(map[string][]*fleetapi.Instance)
	}
	for i := 0; i < count; i++ {
		name := fmt.Sprintf("%s-launched-%d", array.ID, len(f.Instances[array.ID]))
		f.Instances[array.ID] = append(f.Instances[array.ID], &fleetapi.Instance{
			ID:    name,
			Name:  name,
			State: fleetapi.InstanceStateOperational,
		})
	}
	return nil
}

func (f *Fake) TerminateAllInstances(ctx context.Context, array *fleetapi.ServerArray) (*fleetapi.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("TerminateAllInstances", array.Name, "")
	if err := f.injected("TerminateAllInstances"); err != nil {
		return nil, err
	}
	return &fleetapi.Task{ID: "terminate-" + array.ID, Name: "multi_terminate"}, nil
}

func (f *Fake) ArrayInputs(ctx context.Context, array *fleetapi.ServerArray) ([]fleetapi.Input, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ArrayInputs", array.Name, "")
	if err := f.injected("ArrayInputs"); err != nil {
		return nil, err
	}
	return f.Inputs[array.ID], nil
}

func (f *Fake) UpdateArrayInputs(ctx context.Context, array *fleetapi.ServerArray, inputs []fleetapi.Param) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateArrayInputs", array.Name, paramString(inputs))
	return f.injected("UpdateArrayInputs")
}

func (f *Fake) FindScript(ctx context.Context, name string) (*fleetapi.Script, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("FindScript", "", name)
	if err := f.injected("FindScript"); err != nil {
		return nil, err
	}
	return f.Scripts[name], nil
}

func (f *Fake) FindCookbook(ctx context.Context, name string) (*fleetapi.Script, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("FindCookbook", "", name)
	if err := f.injected("FindCookbook"); err != nil {
		return nil, err
	}
	return f.Cookbooks[name], nil
}

func (f *Fake) SubmitExecution(ctx context.Context, script string, inputs []fleetapi.Param, instances []*fleetapi.Instance) ([]fleetapi.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SubmitExecution", "", fmt.Sprintf("%s on %d instances", script, len(instances)))
	if err := f.injected("SubmitExecution"); err != nil {
		return nil, err
	}
	execs := make([]fleetapi.Execution, len(instances))
	for i, inst := range instances {
		execs[i] = fleetapi.Execution{
			Instance: inst,
			Task:     &fleetapi.Task{ID: "exec-" + inst.ID, Name: script},
		}
	}
	return execs, nil
}

func (f *Fake) AwaitTask(ctx context.Context, task *fleetapi.Task, label string, interval time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("AwaitTask", "", task.ID)
	if err := f.injected("AwaitTask"); err != nil {
		return false, err
	}
	return !f.TaskFailures[task.ID], nil
}

func applyFilters(instances []*fleetapi.Instance, filters []fleetapi.Filter) []*fleetapi.Instance {
	out := make([]*fleetapi.Instance, 0, len(instances))
	for _, inst := range instances {
		keep := true
		for _, filter := range filters {
			switch filter {
			case fleetapi.FilterStateOperational:
				keep = keep && inst.State == fleetapi.InstanceStateOperational
			case fleetapi.FilterStateNotTerminated:
				keep = keep && inst.State != fleetapi.InstanceStateTerminated
			}
		}
		if keep {
			out = append(out, inst)
		}
	}
	return out
}

func paramString(params []fleetapi.Param) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = p.Key + "=" + p.Value
	}
	return strings.Join(parts, " ")
}

func filterString(filters []fleetapi.Filter) string {
	parts := make([]string, len(filters))
	for i, f := range filters {
		parts[i] = string(f)
	}
	return strings.Join(parts, ",")
}
