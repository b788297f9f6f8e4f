package serverarray

import (
	"context"
	"reflect"
	"testing"

	"github.com/fleetwright/fleetwright/pkg/actors"
	"github.com/fleetwright/fleetwright/pkg/fleetapi"
	"github.com/fleetwright/fleetwright/pkg/fleetapi/fleetapitest"
)

func TestTerminateRealRun(t *testing.T) {
	array := seedArray("web", 2)
	fake := &fleetapitest.Fake{
		Arrays: []*fleetapi.ServerArray{array},
		InstanceSeq: map[string][][]*fleetapi.Instance{
			array.ID: {
				{{ID: "i1", State: fleetapi.InstanceStateTerminating}},
				nil,
			},
		},
	}
	rt := newTestRuntime(fake, false)

	actor, err := NewTerminate(rt, map[string]any{"array": "web"})
	if err != nil {
		t.Fatalf("NewTerminate: %v", err)
	}
	if err := actor.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{
		"FindArrays",
		"UpdateArray",            // disable autoscaling
		"TerminateAllInstances",  // bulk terminate
		"AwaitTask",              // result ignored
		"ListInstances",          // poll: one left
		"ListInstances",          // poll: empty
	}
	if got := fake.CallNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestTerminateIgnoresBulkTaskFailure(t *testing.T) {
	// The bulk-terminate job reports false failures for hosts already
	// mid-transition; only the empty poll decides success.
	array := seedArray("web", 2)
	fake := &fleetapitest.Fake{
		Arrays:       []*fleetapi.ServerArray{array},
		TaskFailures: map[string]bool{"terminate-" + array.ID: true},
	}
	rt := newTestRuntime(fake, false)

	actor, err := NewTerminate(rt, map[string]any{"array": "web"})
	if err != nil {
		t.Fatalf("NewTerminate: %v", err)
	}
	if err := actor.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestTerminateDryRunIssuesNoMutations(t *testing.T) {
	array := seedArray("web", 2)
	fake := &fleetapitest.Fake{
		Arrays: []*fleetapi.ServerArray{array},
		Instances: map[string][]*fleetapi.Instance{
			array.ID: {{ID: "i1", State: fleetapi.InstanceStateOperational}},
		},
	}
	rt := newTestRuntime(fake, true)

	actor, err := NewTerminate(rt, map[string]any{"array": "web"})
	if err != nil {
		t.Fatalf("NewTerminate: %v", err)
	}
	if err := actor.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls := fake.MutatingCalls(); len(calls) != 0 {
		t.Errorf("dry run issued mutating calls: %v", calls)
	}
}

func TestTerminateStrictMissing(t *testing.T) {
	rt := newTestRuntime(&fleetapitest.Fake{}, false)

	actor, err := NewTerminate(rt, map[string]any{"array": "web"})
	if err != nil {
		t.Fatalf("NewTerminate: %v", err)
	}
	err = actor.Run(context.Background())
	if !actors.IsNotFound(err) {
		t.Errorf("err = %v, want not-found", err)
	}
}

func TestTerminateNonStrictMissingIsNoop(t *testing.T) {
	fake := &fleetapitest.Fake{}
	rt := newTestRuntime(fake, false)

	actor, err := NewTerminate(rt, map[string]any{"array": "web", "strict": false})
	if err != nil {
		t.Fatalf("NewTerminate: %v", err)
	}
	if err := actor.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls := fake.MutatingCalls(); len(calls) != 0 {
		t.Errorf("mutating calls for missing array: %v", calls)
	}
}

func TestDestroyRealRun(t *testing.T) {
	array := seedArray("web", 2)
	fake := &fleetapitest.Fake{Arrays: []*fleetapi.ServerArray{array}}
	rt := newTestRuntime(fake, false)

	actor, err := NewDestroy(rt, map[string]any{"array": "web"})
	if err != nil {
		t.Fatalf("NewDestroy: %v", err)
	}
	if err := actor.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	names := fake.CallNames()
	if names[len(names)-1] != "DeleteArray" {
		t.Errorf("last call = %q, want DeleteArray", names[len(names)-1])
	}
	if got := callCount(fake, "TerminateAllInstances"); got != 1 {
		t.Errorf("TerminateAllInstances calls = %d, want 1", got)
	}
	// Destroy re-locates its targets after terminating them.
	if got := callCount(fake, "FindArrays"); got != 2 {
		t.Errorf("FindArrays calls = %d, want 2", got)
	}
}

func TestDestroyDryRunIssuesNoMutations(t *testing.T) {
	fake := &fleetapitest.Fake{Arrays: []*fleetapi.ServerArray{seedArray("web", 2)}}
	rt := newTestRuntime(fake, true)

	actor, err := NewDestroy(rt, map[string]any{"array": "web"})
	if err != nil {
		t.Fatalf("NewDestroy: %v", err)
	}
	if err := actor.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls := fake.MutatingCalls(); len(calls) != 0 {
		t.Errorf("dry run issued mutating calls: %v", calls)
	}
}

func TestTerminatePrefixMatchStageBarriers(t *testing.T) {
	a := seedArray("web-a", 1)
	b := seedArray("web-b", 1)
	fake := &fleetapitest.Fake{Arrays: []*fleetapi.ServerArray{a, b}}
	rt := newTestRuntime(fake, false)

	actor, err := NewTerminate(rt, map[string]any{"array": "web", "exact": false})
	if err != nil {
		t.Fatalf("NewTerminate: %v", err)
	}
	if err := actor.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Both disables happen before either bulk terminate: the disable
	// stage is a barrier.
	lastDisable, firstTerminate := -1, -1
	for i, c := range fake.Calls() {
		switch c.Method {
		case "UpdateArray":
			lastDisable = i
		case "TerminateAllInstances":
			if firstTerminate == -1 {
				firstTerminate = i
			}
		}
	}
	if lastDisable == -1 || firstTerminate == -1 {
		t.Fatalf("missing stages in calls %v", fake.CallNames())
	}
	if lastDisable > firstTerminate {
		t.Errorf("disable at %d after terminate at %d", lastDisable, firstTerminate)
	}
}
