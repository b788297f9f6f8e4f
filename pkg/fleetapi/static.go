package fleetapi

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// State describes a fleet platform's resources for the static client: the
// arrays with their instances and inputs, plus the script library. It is
// the YAML shape behind `fleetwright run --state`.
type State struct {
	Arrays    []StateArray `yaml:"arrays"`
	Scripts   []string     `yaml:"scripts"`
	Cookbooks []string     `yaml:"cookbooks"`
}

// StateArray seeds one server array.
type StateArray struct {
	Name     string `yaml:"name"`
	State    string `yaml:"state"`
	MinCount int    `yaml:"min_count"`
	MaxCount int    `yaml:"max_count"`

	// Instances lists the state of each current instance,
	// e.g. [operational, operational, booting].
	Instances []string `yaml:"instances"`

	// Inputs are the array's defined launch inputs.
	Inputs []StateInput `yaml:"inputs"`
}

// StateInput seeds one launch input.
type StateInput struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// LoadState reads a platform state file.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading state file %s: %w", path, err)
	}
	var state State
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&state); err != nil {
		return nil, fmt.Errorf("parsing state file %s: %w", path, err)
	}
	return &state, nil
}

// StaticClient is an in-process Client serving a seeded platform state.
// Mutations apply to the in-memory state and launches complete instantly,
// which makes it a rehearsal backend for workflow documents: the actors
// exercise their full call sequences without a platform account. It is not
// a test double; tests use the richer fleetapitest.Fake.
type StaticClient struct {
	mu        sync.Mutex
	arrays    map[string]*ServerArray
	instances map[string][]*Instance
	inputs    map[string][]Input
	scripts   map[string]*Script
	cookbooks map[string]*Script
}

var _ Client = (*StaticClient)(nil)

// NewStaticClient builds a client over the given state.
func NewStaticClient(state *State) *StaticClient {
	c := &StaticClient{
		arrays:    make(map[string]*ServerArray),
		instances: make(map[string][]*Instance),
		inputs:    make(map[string][]Input),
		scripts:   make(map[string]*Script),
		cookbooks: make(map[string]*Script),
	}
	if state == nil {
		return c
	}
	for _, seed := range state.Arrays {
		array := &ServerArray{
			ID:    uuid.NewString(),
			Name:  seed.Name,
			State: seed.State,
			Elasticity: &ElasticityParams{
				Bounds: Bounds{MinCount: seed.MinCount, MaxCount: seed.MaxCount},
			},
		}
		if array.State == "" {
			array.State = "enabled"
		}
		c.arrays[array.ID] = array
		for i, instState := range seed.Instances {
			c.instances[array.ID] = append(c.instances[array.ID], &Instance{
				ID:    uuid.NewString(),
				Name:  fmt.Sprintf("%s-%d", seed.Name, i),
				State: instState,
			})
		}
		for _, in := range seed.Inputs {
			c.inputs[array.ID] = append(c.inputs[array.ID], Input{Name: in.Name, Value: in.Value})
		}
	}
	for _, name := range state.Scripts {
		c.scripts[name] = &Script{ID: uuid.NewString(), Name: name}
	}
	for _, name := range state.Cookbooks {
		c.cookbooks[name] = &Script{ID: uuid.NewString(), Name: name}
	}
	return c
}

func (c *StaticClient) lookup(array *ServerArray) (*ServerArray, error) {
	if got, ok := c.arrays[array.ID]; ok {
		return got, nil
	}
	return nil, &APIError{StatusCode: 404, Message: fmt.Sprintf("array %q not found", array.Name)}
}

func (c *StaticClient) FindArrays(_ context.Context, name string, exact bool) ([]*ServerArray, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*ServerArray
	for _, array := range c.arrays {
		if exact && array.Name == name {
			return []*ServerArray{copyArray(array)}, nil
		}
		if !exact && strings.HasPrefix(array.Name, name) {
			out = append(out, copyArray(array))
		}
	}
	return out, nil
}

func (c *StaticClient) CloneArray(_ context.Context, array *ServerArray) (*ServerArray, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	source, err := c.lookup(array)
	if err != nil {
		return nil, err
	}
	clone := copyArray(source)
	clone.ID = uuid.NewString()
	clone.Name = fmt.Sprintf("clone of %s", source.Name)
	clone.State = "disabled"
	c.arrays[clone.ID] = clone
	c.inputs[clone.ID] = append([]Input(nil), c.inputs[source.ID]...)
	return copyArray(clone), nil
}

func (c *StaticClient) UpdateArray(_ context.Context, array *ServerArray, params []Param) (*ServerArray, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	got, err := c.lookup(array)
	if err != nil {
		return nil, err
	}
	for _, p := range params {
		if err := applyParam(got, p); err != nil {
			return nil, err
		}
	}
	return copyArray(got), nil
}

// applyParam interprets the bracket-key wire grammar for the attributes the
// static backend models.
func applyParam(array *ServerArray, p Param) error {
	switch p.Key {
	case "server_array[name]":
		array.Name = p.Value
	case "server_array[state]":
		array.State = p.Value
	case "server_array[elasticity_params][bounds][min_count]":
		n, err := strconv.Atoi(p.Value)
		if err != nil {
			return &APIError{StatusCode: 422, Message: fmt.Sprintf("min_count: %v", err)}
		}
		if array.Elasticity == nil {
			array.Elasticity = &ElasticityParams{}
		}
		array.Elasticity.Bounds.MinCount = n
	case "server_array[elasticity_params][bounds][max_count]":
		n, err := strconv.Atoi(p.Value)
		if err != nil {
			return &APIError{StatusCode: 422, Message: fmt.Sprintf("max_count: %v", err)}
		}
		if array.Elasticity == nil {
			array.Elasticity = &ElasticityParams{}
		}
		array.Elasticity.Bounds.MaxCount = n
	default:
		// Unmodeled attributes are accepted and dropped, like a platform
		// that tolerates unknown form fields.
	}
	return nil
}

func (c *StaticClient) DeleteArray(_ context.Context, array *ServerArray) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	got, err := c.lookup(array)
	if err != nil {
		return err
	}
	for _, inst := range c.instances[got.ID] {
		if inst.State != InstanceStateTerminated {
			return &APIError{StatusCode: 422, Message: fmt.Sprintf("array %q still has instances", got.Name)}
		}
	}
	delete(c.arrays, got.ID)
	delete(c.instances, got.ID)
	delete(c.inputs, got.ID)
	return nil
}

func (c *StaticClient) ListInstances(_ context.Context, array *ServerArray, filters ...Filter) ([]*Instance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	got, err := c.lookup(array)
	if err != nil {
		return nil, err
	}
	var out []*Instance
	for _, inst := range c.instances[got.ID] {
		if matchFilters(inst, filters) {
			out = append(out, &Instance{ID: inst.ID, Name: inst.Name, State: inst.State})
		}
	}
	return out, nil
}

func matchFilters(inst *Instance, filters []Filter) bool {
	for _, f := range filters {
		switch {
		case strings.HasPrefix(string(f), "state=="):
			if inst.State != strings.TrimPrefix(string(f), "state==") {
				return false
			}
		case strings.HasPrefix(string(f), "state<>"):
			if inst.State == strings.TrimPrefix(string(f), "state<>") {
				return false
			}
		}
	}
	return true
}

func (c *StaticClient) LaunchInstances(_ context.Context, array *ServerArray, count int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	got, err := c.lookup(array)
	if err != nil {
		return err
	}
	// Instances boot instantly here; convergence polling sees them
	// operational on its first pass.
	base := len(c.instances[got.ID])
	for i := 0; i < count; i++ {
		c.instances[got.ID] = append(c.instances[got.ID], &Instance{
			ID:    uuid.NewString(),
			Name:  fmt.Sprintf("%s-%d", got.Name, base+i),
			State: InstanceStateOperational,
		})
	}
	return nil
}

func (c *StaticClient) TerminateAllInstances(_ context.Context, array *ServerArray) (*Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	got, err := c.lookup(array)
	if err != nil {
		return nil, err
	}
	c.instances[got.ID] = nil
	return &Task{ID: uuid.NewString(), Name: fmt.Sprintf("terminate %s", got.Name)}, nil
}

func (c *StaticClient) ArrayInputs(_ context.Context, array *ServerArray) ([]Input, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	got, err := c.lookup(array)
	if err != nil {
		return nil, err
	}
	return append([]Input(nil), c.inputs[got.ID]...), nil
}

func (c *StaticClient) UpdateArrayInputs(_ context.Context, array *ServerArray, inputs []Param) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	got, err := c.lookup(array)
	if err != nil {
		return err
	}
	for _, p := range inputs {
		name := strings.TrimSuffix(strings.TrimPrefix(p.Key, "inputs["), "]")
		replaced := false
		for i, in := range c.inputs[got.ID] {
			if in.Name == name {
				c.inputs[got.ID][i].Value = p.Value
				replaced = true
				break
			}
		}
		if !replaced {
			c.inputs[got.ID] = append(c.inputs[got.ID], Input{Name: name, Value: p.Value})
		}
	}
	return nil
}

func (c *StaticClient) FindScript(_ context.Context, name string) (*Script, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scripts[name], nil
}

func (c *StaticClient) FindCookbook(_ context.Context, name string) (*Script, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cookbooks[name], nil
}

func (c *StaticClient) SubmitExecution(_ context.Context, script string, _ []Param, instances []*Instance) ([]Execution, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scripts[script] == nil && c.cookbooks[script] == nil {
		return nil, &APIError{StatusCode: 422, Message: fmt.Sprintf("script %q not found", script)}
	}
	out := make([]Execution, len(instances))
	for i, inst := range instances {
		out[i] = Execution{
			Instance: inst,
			Task:     &Task{ID: uuid.NewString(), Name: fmt.Sprintf("run %s on %s", script, inst.Name)},
		}
	}
	return out, nil
}

func (c *StaticClient) AwaitTask(ctx context.Context, _ *Task, _ string, _ time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	// Every task submitted to the static backend completes on submission.
	return true, nil
}

func copyArray(array *ServerArray) *ServerArray {
	out := *array
	if array.Elasticity != nil {
		e := *array.Elasticity
		out.Elasticity = &e
	}
	return &out
}
