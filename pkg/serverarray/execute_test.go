package serverarray

import (
	"context"
	"strings"
	"testing"

	"github.com/fleetwright/fleetwright/pkg/actors"
	"github.com/fleetwright/fleetwright/pkg/fleetapi"
	"github.com/fleetwright/fleetwright/pkg/fleetapi/fleetapitest"
)

func executeFake(minCount int, states ...string) (*fleetapitest.Fake, *fleetapi.ServerArray) {
	array := seedArray("web", minCount)
	return &fleetapitest.Fake{
		Arrays:    []*fleetapi.ServerArray{array},
		Instances: seedInstances(array.ID, states...),
		Scripts:   map[string]*fleetapi.Script{"connect to elb": {ID: "s1", Name: "connect to elb"}},
		Cookbooks: map[string]*fleetapi.Script{"nginx::default": {ID: "c1", Name: "nginx::default"}},
	}, array
}

func TestExecuteRealRun(t *testing.T) {
	fake, _ := executeFake(2,
		fleetapi.InstanceStateOperational,
		fleetapi.InstanceStateOperational,
	)
	rt := newTestRuntime(fake, false)

	actor, err := NewExecute(rt, map[string]any{
		"array":  "web",
		"script": "connect to elb",
		"inputs": map[string]any{"ELB_NAME": "text:my-elb"},
	})
	if err != nil {
		t.Fatalf("NewExecute: %v", err)
	}
	if err := actor.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var submitted string
	for _, c := range fake.Calls() {
		if c.Method == "SubmitExecution" {
			submitted = c.Detail
		}
	}
	if !strings.Contains(submitted, "connect to elb on 2 instances") {
		t.Errorf("submit detail = %q", submitted)
	}
	if got := callCount(fake, "AwaitTask"); got != 2 {
		t.Errorf("AwaitTask calls = %d, want 2", got)
	}
}

func TestExecuteSkipsNonOperationalInstances(t *testing.T) {
	fake, _ := executeFake(3,
		fleetapi.InstanceStateOperational,
		fleetapi.InstanceStateBooting,
		fleetapi.InstanceStateTerminating,
	)
	rt := newTestRuntime(fake, false)

	actor, err := NewExecute(rt, map[string]any{"array": "web", "script": "connect to elb"})
	if err != nil {
		t.Fatalf("NewExecute: %v", err)
	}
	if err := actor.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, c := range fake.Calls() {
		if c.Method == "SubmitExecution" && !strings.Contains(c.Detail, "on 1 instances") {
			t.Errorf("submit detail = %q, want 1 instance", c.Detail)
		}
	}
}

func TestExecutePartialTaskFailure(t *testing.T) {
	fake, array := executeFake(4,
		fleetapi.InstanceStateOperational,
		fleetapi.InstanceStateOperational,
		fleetapi.InstanceStateOperational,
		fleetapi.InstanceStateOperational,
	)
	// Task #2 fails; the others succeed.
	fake.TaskFailures = map[string]bool{"exec-" + array.ID + "-i1": true}
	rt := newTestRuntime(fake, false)

	actor, err := NewExecute(rt, map[string]any{
		"array":            "web",
		"script":           "connect to elb",
		"expected_runtime": 1,
	})
	if err != nil {
		t.Fatalf("NewExecute: %v", err)
	}
	err = actor.Run(context.Background())
	if got := actors.ClassOf(err); got != actors.ClassTaskFailed {
		t.Fatalf("error class = %v, want %s", got, actors.ClassTaskFailed)
	}
	// Every task is polled to completion before the failure surfaces.
	if got := callCount(fake, "AwaitTask"); got != 4 {
		t.Errorf("AwaitTask calls = %d, want 4", got)
	}
}

func TestExecuteSubmissionRejected(t *testing.T) {
	fake, _ := executeFake(1, fleetapi.InstanceStateOperational)
	fake.Errors = map[string]error{
		"SubmitExecution": &fleetapi.APIError{StatusCode: 422, Message: "bad inputs"},
	}
	rt := newTestRuntime(fake, false)

	actor, err := NewExecute(rt, map[string]any{"array": "web", "script": "connect to elb"})
	if err != nil {
		t.Fatalf("NewExecute: %v", err)
	}
	err = actor.Run(context.Background())
	if got := actors.ClassOf(err); got != actors.ClassRemoteRejected {
		t.Errorf("error class = %v, want %s", got, actors.ClassRemoteRejected)
	}
}

func TestExecuteDryRunVerifiesScript(t *testing.T) {
	fake, _ := executeFake(1, fleetapi.InstanceStateOperational)
	rt := newTestRuntime(fake, true)

	actor, err := NewExecute(rt, map[string]any{"array": "web", "script": "connect to elb"})
	if err != nil {
		t.Fatalf("NewExecute: %v", err)
	}
	if err := actor.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := callCount(fake, "FindScript"); got != 1 {
		t.Errorf("FindScript calls = %d, want 1", got)
	}
	if calls := fake.MutatingCalls(); len(calls) != 0 {
		t.Errorf("dry run issued mutating calls: %v", calls)
	}
}

func TestExecuteDryRunMissingScript(t *testing.T) {
	fake, _ := executeFake(1, fleetapi.InstanceStateOperational)
	rt := newTestRuntime(fake, true)

	actor, err := NewExecute(rt, map[string]any{"array": "web", "script": "no such script"})
	if err != nil {
		t.Fatalf("NewExecute: %v", err)
	}
	err = actor.Run(context.Background())
	if !actors.IsConfig(err) {
		t.Errorf("err = %v, want config error", err)
	}
}

func TestExecuteDryRunCookbookLookup(t *testing.T) {
	fake, _ := executeFake(1, fleetapi.InstanceStateOperational)
	rt := newTestRuntime(fake, true)

	actor, err := NewExecute(rt, map[string]any{"array": "web", "script": "nginx::default"})
	if err != nil {
		t.Fatalf("NewExecute: %v", err)
	}
	if err := actor.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := callCount(fake, "FindCookbook"); got != 1 {
		t.Errorf("FindCookbook calls = %d, want 1", got)
	}
	if got := callCount(fake, "FindScript"); got != 0 {
		t.Errorf("FindScript calls = %d, want 0", got)
	}
}

func TestExecuteDryRunInputSchemes(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{name: "text", value: "text:my-elb"},
		{name: "cred", value: "cred:DB_PASSWORD"},
		{name: "env", value: "env:HOME"},
		{name: "ignore", value: "ignore:whatever"},
		{name: "key", value: "key:deploy"},
		{name: "array", value: "array:['text:a','text:b']"},
		{name: "unknown scheme", value: "blob:xyz", wantErr: true},
		{name: "no scheme", value: "my-elb", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, _ := executeFake(1, fleetapi.InstanceStateOperational)
			rt := newTestRuntime(fake, true)

			actor, err := NewExecute(rt, map[string]any{
				"array":  "web",
				"script": "connect to elb",
				"inputs": map[string]any{"ELB_NAME": tt.value},
			})
			if err != nil {
				t.Fatalf("NewExecute: %v", err)
			}
			err = actor.Run(context.Background())
			if tt.wantErr && !actors.IsConfig(err) {
				t.Errorf("err = %v, want config error", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Run: %v", err)
			}
		})
	}
}

func TestExecuteDryRunSimulatedArray(t *testing.T) {
	fake := &fleetapitest.Fake{
		Scripts: map[string]*fleetapi.Script{"connect to elb": {ID: "s1", Name: "connect to elb"}},
	}
	rt := newTestRuntime(fake, true)

	actor, err := NewExecute(rt, map[string]any{"array": "web", "script": "connect to elb"})
	if err != nil {
		t.Fatalf("NewExecute: %v", err)
	}
	if err := actor.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// A fabricated array has nothing running, so nothing is listed.
	if got := callCount(fake, "ListInstances"); got != 0 {
		t.Errorf("ListInstances calls = %d, want 0", got)
	}
}
