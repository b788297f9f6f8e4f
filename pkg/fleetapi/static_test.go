package fleetapi

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestState() *State {
	return &State{
		Arrays: []StateArray{
			{
				Name:      "web",
				State:     "enabled",
				MinCount:  2,
				MaxCount:  6,
				Instances: []string{"operational", "operational", "booting"},
				Inputs:    []StateInput{{Name: "REGION", Value: "text:us-east-1"}},
			},
			{Name: "web-canary", State: "disabled", MinCount: 1},
			{Name: "worker", State: "enabled", MinCount: 1},
		},
		Scripts:   []string{"deploy.sh"},
		Cookbooks: []string{"app::migrate"},
	}
}

func findOne(t *testing.T, c *StaticClient, name string) *ServerArray {
	t.Helper()
	arrays, err := c.FindArrays(context.Background(), name, true)
	if err != nil {
		t.Fatalf("FindArrays(%q): %v", name, err)
	}
	if len(arrays) != 1 {
		t.Fatalf("FindArrays(%q) returned %d arrays", name, len(arrays))
	}
	return arrays[0]
}

func TestStaticFindArrays(t *testing.T) {
	c := NewStaticClient(newTestState())
	ctx := context.Background()

	if got := findOne(t, c, "web"); got.MinCount() != 2 {
		t.Errorf("web min_count = %d, want 2", got.MinCount())
	}

	prefixed, err := c.FindArrays(ctx, "web", false)
	if err != nil {
		t.Fatalf("FindArrays: %v", err)
	}
	if len(prefixed) != 2 {
		t.Errorf("prefix match returned %d arrays, want 2", len(prefixed))
	}

	missing, err := c.FindArrays(ctx, "nothing", true)
	if err != nil || len(missing) != 0 {
		t.Errorf("missing array: got %v, %v", missing, err)
	}
}

func TestStaticCloneAndRename(t *testing.T) {
	c := NewStaticClient(newTestState())
	ctx := context.Background()

	source := findOne(t, c, "web")
	clone, err := c.CloneArray(ctx, source)
	if err != nil {
		t.Fatalf("CloneArray: %v", err)
	}
	if clone.ID == source.ID {
		t.Error("clone should get its own identity")
	}
	if clone.State != "disabled" {
		t.Errorf("clone state = %q, want disabled", clone.State)
	}
	// A fresh clone has no instances.
	instances, err := c.ListInstances(ctx, clone)
	if err != nil || len(instances) != 0 {
		t.Errorf("clone instances = %v, %v", instances, err)
	}
	// The clone inherits the source's inputs.
	inputs, err := c.ArrayInputs(ctx, clone)
	if err != nil || len(inputs) != 1 {
		t.Fatalf("clone inputs = %v, %v", inputs, err)
	}

	renamed, err := c.UpdateArray(ctx, clone, []Param{{Key: "server_array[name]", Value: "web-next"}})
	if err != nil {
		t.Fatalf("UpdateArray: %v", err)
	}
	if renamed.Name != "web-next" {
		t.Errorf("renamed to %q", renamed.Name)
	}
	findOne(t, c, "web-next")
}

func TestStaticUpdateParams(t *testing.T) {
	c := NewStaticClient(newTestState())
	ctx := context.Background()

	array := findOne(t, c, "worker")
	updated, err := c.UpdateArray(ctx, array, []Param{
		{Key: "server_array[state]", Value: "disabled"},
		{Key: "server_array[elasticity_params][bounds][min_count]", Value: "5"},
	})
	if err != nil {
		t.Fatalf("UpdateArray: %v", err)
	}
	if updated.State != "disabled" || updated.MinCount() != 5 {
		t.Errorf("updated = %q/%d", updated.State, updated.MinCount())
	}

	_, err = c.UpdateArray(ctx, array, []Param{
		{Key: "server_array[elasticity_params][bounds][min_count]", Value: "lots"},
	})
	if !IsRejection(err) {
		t.Errorf("non-numeric min_count should be rejected, got %v", err)
	}
}

func TestStaticInstanceLifecycle(t *testing.T) {
	c := NewStaticClient(newTestState())
	ctx := context.Background()
	array := findOne(t, c, "web")

	operational, err := c.ListInstances(ctx, array, FilterStateOperational)
	if err != nil || len(operational) != 2 {
		t.Fatalf("operational = %v, %v", operational, err)
	}

	if err := c.LaunchInstances(ctx, array, 3); err != nil {
		t.Fatalf("LaunchInstances: %v", err)
	}
	operational, err = c.ListInstances(ctx, array, FilterStateOperational)
	if err != nil || len(operational) != 5 {
		t.Fatalf("after launch operational = %d, %v", len(operational), err)
	}

	// Delete must be refused while instances exist.
	if err := c.DeleteArray(ctx, array); !IsClientError(err) {
		t.Errorf("DeleteArray with instances: got %v", err)
	}

	task, err := c.TerminateAllInstances(ctx, array)
	if err != nil {
		t.Fatalf("TerminateAllInstances: %v", err)
	}
	ok, err := c.AwaitTask(ctx, task, "terminating", time.Millisecond)
	if err != nil || !ok {
		t.Errorf("AwaitTask = %t, %v", ok, err)
	}
	remaining, err := c.ListInstances(ctx, array, FilterStateNotTerminated)
	if err != nil || len(remaining) != 0 {
		t.Errorf("after terminate remaining = %v, %v", remaining, err)
	}

	if err := c.DeleteArray(ctx, array); err != nil {
		t.Fatalf("DeleteArray: %v", err)
	}
	if arrays, _ := c.FindArrays(ctx, "web", true); len(arrays) != 0 {
		t.Error("deleted array still resolvable")
	}
}

func TestStaticInputs(t *testing.T) {
	c := NewStaticClient(newTestState())
	ctx := context.Background()
	array := findOne(t, c, "web")

	err := c.UpdateArrayInputs(ctx, array, []Param{
		{Key: "inputs[REGION]", Value: "text:eu-west-1"},
		{Key: "inputs[TIER]", Value: "text:canary"},
	})
	if err != nil {
		t.Fatalf("UpdateArrayInputs: %v", err)
	}

	inputs, err := c.ArrayInputs(ctx, array)
	if err != nil {
		t.Fatalf("ArrayInputs: %v", err)
	}
	byName := map[string]string{}
	for _, in := range inputs {
		byName[in.Name] = in.Value
	}
	if byName["REGION"] != "text:eu-west-1" || byName["TIER"] != "text:canary" {
		t.Errorf("inputs = %v", byName)
	}
}

func TestStaticExecutions(t *testing.T) {
	c := NewStaticClient(newTestState())
	ctx := context.Background()
	array := findOne(t, c, "web")

	if script, err := c.FindScript(ctx, "deploy.sh"); err != nil || script == nil {
		t.Errorf("FindScript = %v, %v", script, err)
	}
	if script, err := c.FindScript(ctx, "missing.sh"); err != nil || script != nil {
		t.Errorf("missing script = %v, %v", script, err)
	}
	if recipe, err := c.FindCookbook(ctx, "app::migrate"); err != nil || recipe == nil {
		t.Errorf("FindCookbook = %v, %v", recipe, err)
	}

	instances, err := c.ListInstances(ctx, array, FilterStateOperational)
	if err != nil {
		t.Fatal(err)
	}
	executions, err := c.SubmitExecution(ctx, "deploy.sh", nil, instances)
	if err != nil {
		t.Fatalf("SubmitExecution: %v", err)
	}
	if len(executions) != len(instances) {
		t.Fatalf("got %d executions for %d instances", len(executions), len(instances))
	}
	for _, exec := range executions {
		ok, err := c.AwaitTask(ctx, exec.Task, "deploying", time.Millisecond)
		if err != nil || !ok {
			t.Errorf("AwaitTask = %t, %v", ok, err)
		}
	}

	if _, err := c.SubmitExecution(ctx, "missing.sh", nil, instances); !IsClientError(err) {
		t.Errorf("unknown script should be rejected, got %v", err)
	}
}

func TestLoadState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	doc := `
arrays:
  - name: web
    state: enabled
    min_count: 2
    instances: [operational, booting]
scripts: [deploy.sh]
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	state, err := LoadState(path)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if len(state.Arrays) != 1 || state.Arrays[0].MinCount != 2 {
		t.Errorf("state = %+v", state)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("arrays:\n  - name: web\n    bogus: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadState(bad); err == nil {
		t.Error("unknown field should be rejected")
	}

	if _, err := LoadState(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}
