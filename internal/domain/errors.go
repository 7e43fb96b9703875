// Package domain defines core types, interfaces, and errors for view synchronization.
package domain

import (
	"errors"
	"fmt"
)

// NotFoundError indicates a dataset or table was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ConflictError indicates the resource being created already exists.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// PreconditionError indicates an operation was invoked on a resource in the
// wrong state, e.g. propagating access for a table that is not a view.
type PreconditionError struct {
	Message string
}

func (e *PreconditionError) Error() string { return e.Message }

// ValidationError indicates invalid input or configuration.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// RemoteIOError wraps a catalog or storage failure other than not-found.
// Transient errors (throttling, 5xx, per-operation timeouts) may be retried.
type RemoteIOError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *RemoteIOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteIOError) Unwrap() error { return e.Err }

// DeleteFailure records an orphan view or dataset that could not be removed.
// It is logged and reported, never returned up to the trigger.
type DeleteFailure struct {
	Kind     string // "view" or "dataset"
	Resource string
	Err      error
}

func (e *DeleteFailure) Error() string {
	return fmt.Sprintf("delete %s %s: %v", e.Kind, e.Resource, e.Err)
}

func (e *DeleteFailure) Unwrap() error { return e.Err }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrPrecondition creates a PreconditionError with a formatted message.
func ErrPrecondition(format string, args ...interface{}) *PreconditionError {
	return &PreconditionError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrRemoteIO wraps err as a RemoteIOError for the named operation.
func ErrRemoteIO(op string, transient bool, err error) *RemoteIOError {
	return &RemoteIOError{Op: op, Transient: transient, Err: err}
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is, or wraps, a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// IsTransient reports whether err is, or wraps, a transient RemoteIOError.
func IsTransient(err error) bool {
	var rio *RemoteIOError
	return errors.As(err, &rio) && rio.Transient
}
