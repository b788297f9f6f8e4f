package serverarray

import (
	"context"
	"strings"
	"testing"

	"github.com/fleetwright/fleetwright/pkg/actors"
	"github.com/fleetwright/fleetwright/pkg/fleetapi"
	"github.com/fleetwright/fleetwright/pkg/fleetapi/fleetapitest"
)

func TestCloneRealRun(t *testing.T) {
	fake := &fleetapitest.Fake{Arrays: []*fleetapi.ServerArray{seedArray("template", 4)}}
	rt := newTestRuntime(fake, false)

	actor, err := NewClone(rt, map[string]any{
		"source": "template",
		"dest":   "web",
	})
	if err != nil {
		t.Fatalf("NewClone: %v", err)
	}
	if err := actor.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var cloned, renamed bool
	for _, c := range fake.Calls() {
		switch c.Method {
		case "CloneArray":
			cloned = true
		case "UpdateArray":
			renamed = true
			if !strings.Contains(c.Detail, "server_array[name]=web") {
				t.Errorf("rename params = %q", c.Detail)
			}
		}
	}
	if !cloned || !renamed {
		t.Errorf("cloned=%t renamed=%t, want both", cloned, renamed)
	}
}

func TestCloneDryRunIssuesNoMutations(t *testing.T) {
	fake := &fleetapitest.Fake{Arrays: []*fleetapi.ServerArray{seedArray("template", 4)}}
	rt := newTestRuntime(fake, true)

	actor, err := NewClone(rt, map[string]any{"source": "template", "dest": "web"})
	if err != nil {
		t.Fatalf("NewClone: %v", err)
	}
	if err := actor.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls := fake.MutatingCalls(); len(calls) != 0 {
		t.Errorf("dry run issued mutating calls: %v", calls)
	}
}

func TestCloneStrictSourceMissing(t *testing.T) {
	rt := newTestRuntime(&fleetapitest.Fake{}, false)

	actor, err := NewClone(rt, map[string]any{"source": "template", "dest": "web"})
	if err != nil {
		t.Fatalf("NewClone: %v", err)
	}
	err = actor.Run(context.Background())
	if !actors.IsNotFound(err) {
		t.Errorf("err = %v, want not-found", err)
	}
}

func TestCloneStrictDestExists(t *testing.T) {
	fake := &fleetapitest.Fake{Arrays: []*fleetapi.ServerArray{
		seedArray("template", 4),
		seedArray("web", 4),
	}}
	rt := newTestRuntime(fake, false)

	actor, err := NewClone(rt, map[string]any{"source": "template", "dest": "web"})
	if err != nil {
		t.Fatalf("NewClone: %v", err)
	}
	err = actor.Run(context.Background())
	if !actors.IsAlreadyExists(err) {
		t.Errorf("err = %v, want already-exists", err)
	}
	// The existence check fails before anything is copied.
	if calls := fake.MutatingCalls(); len(calls) != 0 {
		t.Errorf("mutating calls before failure: %v", calls)
	}
}

func TestCloneNonStrictSourceDryRun(t *testing.T) {
	// An earlier step creates the source, so a dry run has to fabricate it.
	rt := newTestRuntime(&fleetapitest.Fake{}, true)

	actor, err := NewClone(rt, map[string]any{
		"source":        "template",
		"strict_source": false,
		"dest":          "web",
	})
	if err != nil {
		t.Fatalf("NewClone: %v", err)
	}
	if err := actor.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestCloneMissingOptions(t *testing.T) {
	rt := newTestRuntime(&fleetapitest.Fake{}, false)
	_, err := NewClone(rt, map[string]any{"source": "template"})
	if !actors.IsConfig(err) {
		t.Errorf("err = %v, want config error", err)
	}
}
