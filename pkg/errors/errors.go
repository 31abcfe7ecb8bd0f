// Package errors provides structured error types for stackscan.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the CLI, the HTTP API, and library callers
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - INVALID_*: Input validation failures and malformed inputs (manifests, finding sets)
//   - AGENT_*: Agent lifecycle failures (spawn, crash, timeout)
//   - CACHE_*: Cache failures (always degraded to a miss by callers)
//   - NOT_FOUND / DUPLICATE_*: Lookup and uniqueness failures
//   - INTERNAL_*: Unexpected internal errors
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidFocus, "unknown focus %q", focus)
//	if errors.Is(err, errors.ErrCodeInvalidFocus) {
//	    // Handle validation error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeAgentSpawn, origErr, "start supervisor for %s", id)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeInvalidFocus    Code = "INVALID_FOCUS"
	ErrCodeInvalidSeverity Code = "INVALID_SEVERITY"
	ErrCodeInvalidManifest Code = "INVALID_MANIFEST"
	ErrCodeInvalidFindings Code = "INVALID_FINDINGS"
	ErrCodeInvalidPath     Code = "INVALID_PATH"

	// Scheduling errors
	ErrCodeCircularDependency Code = "CIRCULAR_DEPENDENCY"

	// Agent lifecycle errors
	ErrCodeAgentSpawn   Code = "AGENT_SPAWN"
	ErrCodeAgentTimeout Code = "AGENT_TIMEOUT"
	ErrCodeAgentCrash   Code = "AGENT_CRASH"

	// Cache errors
	ErrCodeCacheCorrupt Code = "CACHE_CORRUPT"

	// Lookup errors
	ErrCodeNotFound       Code = "NOT_FOUND"
	ErrCodeDuplicateAgent Code = "DUPLICATE_AGENT"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
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

// coder is implemented by domain errors that carry a code without being an *Error.
type coder interface {
	Code() Code
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error or a coded domain error
// with a matching code.
func Is(err error, code Code) bool {
	return GetCode(err) == code
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if no error in the chain carries a code.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var c coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
