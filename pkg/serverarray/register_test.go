package serverarray

import (
	"context"
	"reflect"
	"testing"

	"github.com/fleetwright/fleetwright/pkg/actors"
	"github.com/fleetwright/fleetwright/pkg/fleetapi"
	"github.com/fleetwright/fleetwright/pkg/fleetapi/fleetapitest"
)

func TestRegister(t *testing.T) {
	reg := actors.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}

	want := []string{
		"serverarray.clone",
		"serverarray.destroy",
		"serverarray.execute",
		"serverarray.launch",
		"serverarray.terminate",
		"serverarray.update",
	}
	if got := reg.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names = %v, want %v", got, want)
	}

	rt := newTestRuntime(&fleetapitest.Fake{}, true)
	actor, err := reg.New("serverarray.terminate", rt, map[string]any{"array": "web", "strict": false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if actor == nil {
		t.Fatal("New returned nil actor")
	}
}

func TestRegisterTwice(t *testing.T) {
	reg := actors.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := Register(reg); err == nil {
		t.Error("second Register did not fail")
	}
}

// Running any actor twice in dry-run mode against the same seeded client
// state issues zero mutating calls both times and walks the exact same
// remote-call sequence.
func TestDryRunIdempotence(t *testing.T) {
	seed := func() *fleetapitest.Fake {
		array := seedArray("web", 2)
		return &fleetapitest.Fake{
			Arrays:    []*fleetapi.ServerArray{array},
			Instances: seedInstances(array.ID, fleetapi.InstanceStateOperational),
			Scripts:   map[string]*fleetapi.Script{"connect": {ID: "s1", Name: "connect"}},
		}
	}

	runs := []struct {
		name    string
		actor   string
		options map[string]any
	}{
		{name: "clone", actor: "serverarray.clone", options: map[string]any{"source": "web", "dest": "web-copy", "strict_dest": false}},
		{name: "update", actor: "serverarray.update", options: map[string]any{"array": "web", "params": map[string]any{"name": "renamed"}}},
		{name: "terminate", actor: "serverarray.terminate", options: map[string]any{"array": "web"}},
		{name: "destroy", actor: "serverarray.destroy", options: map[string]any{"array": "web"}},
		{name: "launch", actor: "serverarray.launch", options: map[string]any{"array": "web", "enable": true}},
		{name: "execute", actor: "serverarray.execute", options: map[string]any{"array": "web", "script": "connect"}},
	}

	reg := actors.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for _, tt := range runs {
		t.Run(tt.name, func(t *testing.T) {
			var sequences [][]string
			for i := 0; i < 2; i++ {
				fake := seed()
				rt := newTestRuntime(fake, true)
				actor, err := reg.New(tt.actor, rt, tt.options)
				if err != nil {
					t.Fatalf("New: %v", err)
				}
				if err := actor.Run(context.Background()); err != nil {
					t.Fatalf("Run #%d: %v", i+1, err)
				}
				if calls := fake.MutatingCalls(); len(calls) != 0 {
					t.Fatalf("run #%d issued mutating calls: %v", i+1, calls)
				}
				sequences = append(sequences, fake.CallNames())
			}
			if !reflect.DeepEqual(sequences[0], sequences[1]) {
				t.Errorf("call sequences differ: %v vs %v", sequences[0], sequences[1])
			}
		})
	}
}
