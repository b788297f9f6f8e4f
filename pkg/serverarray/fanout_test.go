package serverarray

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/fleetwright/fleetwright/pkg/fleetapi"
)

func TestApplyAllRunsEveryResource(t *testing.T) {
	arrays := make([]*fleetapi.ServerArray, 5)
	for i := range arrays {
		arrays[i] = &fleetapi.ServerArray{ID: string(rune('a' + i)), Name: string(rune('a' + i))}
	}

	boom := errors.New("boom")

	var (
		mu        sync.Mutex
		completed []string
	)
	var started atomic.Int32

	err := applyAll(context.Background(), arrays, func(ctx context.Context, a *fleetapi.ServerArray) error {
		started.Add(1)
		mu.Lock()
		completed = append(completed, a.Name)
		mu.Unlock()
		if a.Name == "c" {
			return boom
		}
		return nil
	})

	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if got := started.Load(); got != 5 {
		t.Errorf("started %d invocations, want 5", got)
	}
	// The failure is reported only after every invocation has completed.
	if len(completed) != 5 {
		t.Errorf("completed %d invocations before return, want 5", len(completed))
	}
}

func TestApplyAllSingleResource(t *testing.T) {
	array := &fleetapi.ServerArray{Name: "only"}
	calls := 0
	err := applyAll(context.Background(), []*fleetapi.ServerArray{array}, func(ctx context.Context, a *fleetapi.ServerArray) error {
		calls++
		if a != array {
			t.Errorf("op received %v, want the single handle", a)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("applyAll: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestApplyAllAllSucceed(t *testing.T) {
	arrays := []*fleetapi.ServerArray{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	var n atomic.Int32
	err := applyAll(context.Background(), arrays, func(ctx context.Context, a *fleetapi.ServerArray) error {
		n.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("applyAll: %v", err)
	}
	if n.Load() != 3 {
		t.Errorf("ran %d invocations, want 3", n.Load())
	}
}

func TestApplyAllEmpty(t *testing.T) {
	err := applyAll(context.Background(), nil, func(ctx context.Context, a *fleetapi.ServerArray) error {
		t.Error("op invoked for empty set")
		return nil
	})
	if err != nil {
		t.Fatalf("applyAll: %v", err)
	}
}
