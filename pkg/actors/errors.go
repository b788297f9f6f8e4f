package actors

import (
	"errors"
	"fmt"
)

// Class classifies an actor failure for reporting and recovery decisions.
type Class string

const (
	// ClassConfig marks malformed options: wrong shape, missing required
	// fields, disallowed input schemes. Raised before any remote call and
	// never retried.
	ClassConfig Class = "config"

	// ClassNotFound marks an existence-policy violation: a required
	// resource was not found.
	ClassNotFound Class = "not_found"

	// ClassAlreadyExists marks an existence-policy violation: a resource
	// that must not exist was found.
	ClassAlreadyExists Class = "already_exists"

	// ClassRemoteRejected marks a client-side rejection by the platform
	// (HTTP 400/422): user-actionable, distinct from transport faults.
	ClassRemoteRejected Class = "remote_rejected"

	// ClassTaskFailed marks one or more remote tasks finishing
	// unsuccessfully after every task was awaited.
	ClassTaskFailed Class = "task_failed"

	// ClassTransport marks everything else from the platform client:
	// network faults, auth failures, unmapped statuses. Fatal to the
	// current operation.
	ClassTransport Class = "transport"
)

// Error is a classified actor failure with optional actor/array context.
type Error struct {
	// Class is the failure classification.
	Class Class

	// Message is the human-readable failure message.
	Message string

	// Actor is the actor type that failed, if known.
	Actor string

	// Array is the array name involved, if any.
	Array string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Array != "" {
		msg = fmt.Sprintf("%s (array=%s)", msg, e.Array)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality for errors.Is: two actor errors match when
// their classes match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// WithActor adds actor context to the error.
func (e *Error) WithActor(actor string) *Error {
	e.Actor = actor
	return e
}

// WithArray adds array context to the error.
func (e *Error) WithArray(array string) *Error {
	e.Array = array
	return e
}

// NewConfigError creates a configuration error.
func NewConfigError(message string, err error) *Error {
	return &Error{Class: ClassConfig, Message: message, Err: err}
}

// NewNotFoundError creates a not-found existence-policy error.
func NewNotFoundError(message string) *Error {
	return &Error{Class: ClassNotFound, Message: message}
}

// NewAlreadyExistsError creates an already-exists existence-policy error.
func NewAlreadyExistsError(message string) *Error {
	return &Error{Class: ClassAlreadyExists, Message: message}
}

// NewRemoteRejectionError creates a platform-rejection error.
func NewRemoteRejectionError(message string, err error) *Error {
	return &Error{Class: ClassRemoteRejected, Message: message, Err: err}
}

// NewTaskFailedError creates a task-execution failure.
func NewTaskFailedError(message string) *Error {
	return &Error{Class: ClassTaskFailed, Message: message}
}

// NewTransportError wraps an unmapped platform client error.
func NewTransportError(message string, err error) *Error {
	return &Error{Class: ClassTransport, Message: message, Err: err}
}

// ClassOf returns the class of err, or ClassTransport for unclassified
// errors (anything not raised by an actor is treated as a fault of the
// platform boundary).
func ClassOf(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ClassTransport
}

// IsNotFound reports whether err is a not-found policy violation.
func IsNotFound(err error) bool {
	return ClassOf(err) == ClassNotFound
}

// IsAlreadyExists reports whether err is an already-exists policy violation.
func IsAlreadyExists(err error) bool {
	return ClassOf(err) == ClassAlreadyExists
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool {
	return ClassOf(err) == ClassConfig
}

// IsRecoverable reports whether the failure is user-actionable rather than
// fatal. Existence-policy violations, remote rejections, and task failures
// are recoverable; configuration errors and transport faults are not.
func IsRecoverable(err error) bool {
	switch ClassOf(err) {
	case ClassNotFound, ClassAlreadyExists, ClassRemoteRejected, ClassTaskFailed:
		return true
	}
	return false
}
