package serverarray

import (
	"context"
	"strings"
	"testing"

	"github.com/fleetwright/fleetwright/pkg/actors"
	"github.com/fleetwright/fleetwright/pkg/fleetapi"
	"github.com/fleetwright/fleetwright/pkg/fleetapi/fleetapitest"
)

func TestLocatorPolicyMatrix(t *testing.T) {
	tests := []struct {
		name           string
		policy         ExistencePolicy
		allowSimulated bool
		matchFound     bool
		dry            bool

		wantClass     actors.Class
		wantSimulated bool
		wantCount     int
	}{
		{name: "must exist, match", policy: PolicyMustExist, matchFound: true, wantCount: 1},
		{name: "must exist, no match", policy: PolicyMustExist, wantClass: actors.ClassNotFound},
		{name: "must exist, no match, simulation off dry", policy: PolicyMustExist, dry: true, wantClass: actors.ClassNotFound},
		{name: "must exist, simulated satisfies", policy: PolicyMustExist, allowSimulated: true, dry: true, wantSimulated: true, wantCount: 1},
		{name: "must not exist, no match", policy: PolicyMustNotExist, wantCount: 0},
		{name: "must not exist, match", policy: PolicyMustNotExist, matchFound: true, wantClass: actors.ClassAlreadyExists},
		{name: "must not exist, simulated still collides", policy: PolicyMustNotExist, allowSimulated: true, dry: true, wantClass: actors.ClassAlreadyExists},
		{name: "none, match", policy: PolicyNone, matchFound: true, wantCount: 1},
		{name: "none, no match, no simulation", policy: PolicyNone, wantCount: 0},
		{name: "none, no match, simulation allowed but real run", policy: PolicyNone, allowSimulated: true, wantCount: 0},
		{name: "none, simulated", policy: PolicyNone, allowSimulated: true, dry: true, wantSimulated: true, wantCount: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fleetapitest.Fake{}
			if tt.matchFound {
				fake.Arrays = []*fleetapi.ServerArray{seedArray("web", 4)}
			}
			rt := newTestRuntime(fake, tt.dry)
			locator := NewLocator(rt)

			arrays, err := locator.Find(context.Background(), FindSpec{
				Name:           "web",
				Policy:         tt.policy,
				AllowSimulated: tt.allowSimulated,
				Exact:          true,
			})

			if tt.wantClass != "" {
				if err == nil {
					t.Fatalf("expected %s error, got arrays %v", tt.wantClass, arrays)
				}
				if got := actors.ClassOf(err); got != tt.wantClass {
					t.Fatalf("error class = %s, want %s", got, tt.wantClass)
				}
				return
			}
			if err != nil {
				t.Fatalf("Find: %v", err)
			}
			if len(arrays) != tt.wantCount {
				t.Fatalf("got %d arrays, want %d", len(arrays), tt.wantCount)
			}
			if tt.wantCount == 1 && arrays[0].Simulated != tt.wantSimulated {
				t.Errorf("Simulated = %t, want %t", arrays[0].Simulated, tt.wantSimulated)
			}
		})
	}
}

func TestLocatorSimulatedHandleShape(t *testing.T) {
	rt := newTestRuntime(&fleetapitest.Fake{}, true)

	arrays, err := NewLocator(rt).Find(context.Background(), FindSpec{
		Name:           "new-array",
		Policy:         PolicyNone,
		AllowSimulated: true,
		Exact:          true,
	})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(arrays) != 1 {
		t.Fatalf("got %d arrays, want 1", len(arrays))
	}

	a := arrays[0]
	if !a.Simulated {
		t.Error("handle not marked simulated")
	}
	if a.Name != "<simulated: new-array>" {
		t.Errorf("Name = %q", a.Name)
	}
	if a.ID == "" {
		t.Error("handle has no identity")
	}
	if got := a.MinCount(); got != 4 {
		t.Errorf("MinCount = %d, want 4", got)
	}
}

func TestLocatorSimulatedIdentitiesDiffer(t *testing.T) {
	rt := newTestRuntime(&fleetapitest.Fake{}, true)
	locator := NewLocator(rt)
	spec := FindSpec{Name: "a", Policy: PolicyNone, AllowSimulated: true, Exact: true}

	first, err := locator.Find(context.Background(), spec)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	second, err := locator.Find(context.Background(), spec)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if first[0].ID == second[0].ID {
		t.Error("two fabricated handles share an identity")
	}
}

func TestLocatorPrefixMatch(t *testing.T) {
	fake := &fleetapitest.Fake{Arrays: []*fleetapi.ServerArray{
		seedArray("web-a", 2),
		seedArray("web-b", 2),
		seedArray("db", 2),
	}}
	rt := newTestRuntime(fake, false)

	arrays, err := NewLocator(rt).Find(context.Background(), FindSpec{
		Name:   "web",
		Policy: PolicyNone,
		Exact:  false,
	})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(arrays) != 2 {
		t.Fatalf("got %d arrays, want 2", len(arrays))
	}
	for _, a := range arrays {
		if !strings.HasPrefix(a.Name, "web") {
			t.Errorf("unexpected match %q", a.Name)
		}
	}
}

func TestLocatorTransportError(t *testing.T) {
	fake := &fleetapitest.Fake{Errors: map[string]error{
		"FindArrays": &fleetapi.APIError{StatusCode: 500, Message: "boom"},
	}}
	rt := newTestRuntime(fake, false)

	_, err := NewLocator(rt).Find(context.Background(), FindSpec{Name: "web", Exact: true})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := actors.ClassOf(err); got != actors.ClassTransport {
		t.Errorf("error class = %s, want %s", got, actors.ClassTransport)
	}
}
