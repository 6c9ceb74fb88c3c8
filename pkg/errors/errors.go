// Package errors provides structured error types for cratestack.
//
// Every failure that reaches the user carries a machine-readable code that
// places it in the release taxonomy:
//   - CONFIG_ERROR: invalid group/exclusion declarations, version skew,
//     reserved-name collisions
//   - GRAPH_ERROR: dependency cycles between path dependencies
//   - VCS_ERROR: dirty tree, disallowed branch, commit/tag/push failures
//   - PUBLISH_ERROR: registry rejection, verification failure, visibility
//     confirmation timeout
//   - USER_ABORT: a declined confirmation or prompt
//
// A failed push is the one VCS failure that is Recoverable: local commits and
// tags stay in place and the push can be retried.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeConfig, "group %q is defined twice", name)
//	if errors.Is(err, errors.ErrCodeConfig) {
//	    // Handle configuration error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeVCS, origErr, "commit failed")
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for the release taxonomy.
const (
	ErrCodeConfig  Code = "CONFIG_ERROR"
	ErrCodeGraph   Code = "GRAPH_ERROR"
	ErrCodeVCS     Code = "VCS_ERROR"
	ErrCodePublish Code = "PUBLISH_ERROR"
	ErrCodeAbort   Code = "USER_ABORT"

	// Input validation errors
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeInvalidManifest Code = "INVALID_MANIFEST"

	// Registry errors
	ErrCodeNetwork  Code = "NETWORK_ERROR"
	ErrCodeNotFound Code = "NOT_FOUND"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code        Code   // Machine-readable error code
	Message     string // Human-readable message
	Cause       error  // Underlying error (optional)
	Recoverable bool   // Local state is intact and the step can be retried
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// AsRecoverable marks e as recoverable and returns it.
func (e *Error) AsRecoverable() *Error {
	e.Recoverable = true
	return e
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsRecoverable reports whether the outermost *Error in the chain is
// marked recoverable.
func IsRecoverable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Recoverable
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message (and cause) without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Cause)
		}
		return e.Message
	}
	return err.Error()
}

// Aborted returns the canonical user-abort error for a declined prompt.
func Aborted(what string) *Error {
	return New(ErrCodeAbort, "%s", what)
}

// Interrupted returns the abort error for a cancelled context. The cause
// is kept so that errors.Is(err, context.Canceled) tells a signal apart
// from a declined prompt.
func Interrupted(cause error, format string, args ...any) *Error {
	return Wrap(ErrCodeAbort, cause, format, args...)
}
