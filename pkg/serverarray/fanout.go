package serverarray

import (
	"context"
	"sync"

	"github.com/fleetwright/fleetwright/pkg/fleetapi"
)

// applyAll runs op against every array concurrently and joins on the full
// set before returning. If any invocation fails, the others still run to
// completion and their side effects stay in place (rolling back remote
// changes that already applied is unsafe); the first failure to complete
// is returned once every invocation has finished.
//
// Actors compose applyAll calls into stages: the next stage never starts
// until the current stage's full set has completed.
func applyAll(ctx context.Context, arrays []*fleetapi.ServerArray, op func(context.Context, *fleetapi.ServerArray) error) error {
	if len(arrays) == 1 {
		return op(ctx, arrays[0])
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(arrays))

	for _, array := range arrays {
		wg.Add(1)
		go func(array *fleetapi.ServerArray) {
			defer wg.Done()
			if err := op(ctx, array); err != nil {
				errCh <- err
			}
		}(array)
	}

	wg.Wait()
	close(errCh)

	// Completion order, not slice order: the channel received errors as
	// invocations finished.
	for err := range errCh {
		return err
	}
	return nil
}
