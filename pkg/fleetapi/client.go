package fleetapi

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client is the operation surface of the remote fleet platform consumed by
// the lifecycle actors. Implementations own transport concerns (auth,
// retries, pagination); callers treat every returned error as a transport
// fault unless it is an *APIError carrying a client-side status.
type Client interface {
	// FindArrays looks up arrays by name. With exact set, the platform
	// matches the full name and returns at most one handle; otherwise the
	// name is treated as a prefix and several handles may come back. An
	// empty result is not an error.
	FindArrays(ctx context.Context, name string, exact bool) ([]*ServerArray, error)

	// CloneArray copies an existing array and returns the new handle.
	CloneArray(ctx context.Context, array *ServerArray) (*ServerArray, error)

	// UpdateArray applies flattened parameters to an array and returns the
	// refreshed handle.
	UpdateArray(ctx context.Context, array *ServerArray, params []Param) (*ServerArray, error)

	// DeleteArray destroys an array. The array must have no running
	// instances.
	DeleteArray(ctx context.Context, array *ServerArray) error

	// ListInstances returns the array's current instances, narrowed by the
	// given filters.
	ListInstances(ctx context.Context, array *ServerArray, filters ...Filter) ([]*Instance, error)

	// LaunchInstances asks the platform to boot count new instances.
	LaunchInstances(ctx context.Context, array *ServerArray, count int) error

	// TerminateAllInstances submits a bulk-terminate job and returns the
	// task tracking it.
	TerminateAllInstances(ctx context.Context, array *ServerArray) (*Task, error)

	// ArrayInputs returns the launch inputs defined on an array.
	ArrayInputs(ctx context.Context, array *ServerArray) ([]Input, error)

	// UpdateArrayInputs applies flattened next-instance inputs to an array.
	UpdateArrayInputs(ctx context.Context, array *ServerArray, inputs []Param) error

	// FindScript looks up a script by name. A nil handle with a nil error
	// means the script does not exist.
	FindScript(ctx context.Context, name string) (*Script, error)

	// FindCookbook looks up a namespaced recipe ("book::recipe"). A nil
	// handle with a nil error means the recipe does not exist.
	FindCookbook(ctx context.Context, name string) (*Script, error)

	// SubmitExecution starts the named script on each given instance and
	// returns one execution pair per instance.
	SubmitExecution(ctx context.Context, script string, inputs []Param, instances []*Instance) ([]Execution, error)

	// AwaitTask polls a task every interval until it reaches a terminal
	// status, returning whether it succeeded. Label decorates progress
	// logging. The wait ends early if ctx is cancelled.
	AwaitTask(ctx context.Context, task *Task, label string, interval time.Duration) (bool, error)
}

// APIError is a platform response with an HTTP status attached. Statuses in
// the 4xx range mark client-side rejections that the actors map to
// recoverable, user-actionable failures; anything else propagates as a
// transport fault.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fleet platform returned %d: %s", e.StatusCode, e.Message)
}

// IsClientError reports whether err is an *APIError with a 4xx status.
func IsClientError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
	}
	return false
}

// IsRejection reports whether err is a parameter-rejection response
// (HTTP 400 or 422).
func IsRejection(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 400 || apiErr.StatusCode == 422
	}
	return false
}
