package models

import (
	"errors"
	"fmt"
)

// ValidationError reports bad input. It is surfaced to the caller and never
// retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError with a formatted message.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing job, user or content row. Surfaced as 404
// at the REST boundary.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewNotFoundError creates a NotFoundError for the given resource and id.
func NewNotFoundError(resource string, id interface{}) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: fmt.Sprintf("%v", id)}
}

// ConflictError reports an illegal state transition. Surfaced as 409 and
// never retried.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// NewConflictError creates a ConflictError with a formatted message.
func NewConflictError(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// WorkersUnavailableError means the health probe found no live workers.
// Surfaced as 503; the caller should retry later.
type WorkersUnavailableError struct {
	Message string
}

func (e *WorkersUnavailableError) Error() string {
	return e.Message
}

// BackendConnectionError reports a network failure reaching the render
// backend. The task queue auto-retries these.
type BackendConnectionError struct {
	URL string
	Err error
}

func (e *BackendConnectionError) Error() string {
	return fmt.Sprintf("backend unreachable at %s: %v", e.URL, e.Err)
}

func (e *BackendConnectionError) Unwrap() error {
	return e.Err
}

// BackendWorkflowError means the backend returned a non-completed status or
// produced no outputs. The task queue auto-retries these.
type BackendWorkflowError struct {
	Status   string
	Messages []string
}

func (e *BackendWorkflowError) Error() string {
	if len(e.Messages) > 0 {
		return fmt.Sprintf("backend returned status %q: %v", e.Status, e.Messages)
	}
	return fmt.Sprintf("backend returned status %q", e.Status)
}

// TransientStoreError reports a transient storage failure. Retried by the
// task queue.
type TransientStoreError struct {
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("transient store failure: %v", e.Err)
}

func (e *TransientStoreError) Unwrap() error {
	return e.Err
}

// RenderTimeoutError means wait-for-outputs exceeded the configured ceiling.
// The job is marked failed and not retried.
type RenderTimeoutError struct {
	PromptID string
	Waited   string
}

func (e *RenderTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for backend prompt %s", e.Waited, e.PromptID)
}

// IsRetryable reports whether the task queue should re-deliver the task that
// produced err. Only backend-connection, backend-workflow and transient store
// failures qualify; everything else dead-ends immediately.
func IsRetryable(err error) bool {
	var connErr *BackendConnectionError
	var wfErr *BackendWorkflowError
	var storeErr *TransientStoreError
	return errors.As(err, &connErr) || errors.As(err, &wfErr) || errors.As(err, &storeErr)
}
