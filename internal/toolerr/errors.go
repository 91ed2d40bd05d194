// Package toolerr defines the errors shared by tools that run commands or
// touch files on behalf of the agent.
package toolerr

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors. Every typed error below unwraps to one of these so callers
// can branch with errors.Is and still recover the details with errors.As.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrPathEscape       = errors.New("path escapes workspace")
	ErrExecutionFailed  = errors.New("execution failed")
	ErrTimeout          = errors.New("operation timed out")
	ErrNotAvailable     = errors.New("tool not available")
	ErrPermissionDenied = errors.New("permission denied")
)

// InvalidInputError reports a malformed request rejected before execution.
type InvalidInputError struct {
	Message string
	// Field is set when the problem is a missing required field.
	Field string
}

func (e *InvalidInputError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("Failed to validate input: missing required field '%s'", e.Field)
	}
	return "Failed to validate input: " + e.Message
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// PathEscapeError carries the resolved path that fell outside the workspace.
type PathEscapeError struct {
	Path string
}

func (e *PathEscapeError) Error() string {
	return fmt.Sprintf("Failed to resolve path '%s': path escapes workspace", e.Path)
}

func (e *PathEscapeError) Unwrap() error { return ErrPathEscape }

// ExecutionFailedError is an OS or syscall failure, as opposed to a sandbox
// denial.
type ExecutionFailedError struct {
	Message string
	Err     error
}

func (e *ExecutionFailedError) Error() string {
	if e.Err != nil {
		return "Failed to execute tool: " + e.Message + ": " + e.Err.Error()
	}
	return "Failed to execute tool: " + e.Message
}

func (e *ExecutionFailedError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrExecutionFailed}
	}
	return []error{ErrExecutionFailed, e.Err}
}

// TimeoutError is returned when a command outlives its declared timeout.
type TimeoutError struct {
	Seconds uint64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Failed to execute tool: operation timed out after %ds", e.Seconds)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// NotAvailableError reports a tool or backend missing on this host.
type NotAvailableError struct {
	Message string
}

func (e *NotAvailableError) Error() string {
	return "Failed to locate tool: " + e.Message
}

func (e *NotAvailableError) Unwrap() error { return ErrNotAvailable }

// PermissionDeniedError is the diagnostic form of a sandbox denial or a
// refused approval.
type PermissionDeniedError struct {
	Message string
}

func (e *PermissionDeniedError) Error() string {
	return "Failed to authorize tool execution: " + e.Message
}

func (e *PermissionDeniedError) Unwrap() error { return ErrPermissionDenied }

func InvalidInput(msg string) error { return &InvalidInputError{Message: msg} }

func MissingField(field string) error { return &InvalidInputError{Field: field} }

func PathEscape(path string) error { return &PathEscapeError{Path: path} }

func ExecutionFailed(msg string, err error) error {
	return &ExecutionFailedError{Message: msg, Err: err}
}

// Timeout rounds d down to whole seconds.
func Timeout(d time.Duration) error {
	if d < 0 {
		d = 0
	}
	return &TimeoutError{Seconds: uint64(d / time.Second)}
}

func NotAvailable(msg string) error { return &NotAvailableError{Message: msg} }

func PermissionDenied(msg string) error { return &PermissionDeniedError{Message: msg} }
