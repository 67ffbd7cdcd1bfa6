// Package apperr provides coded application errors for the collab engine.
package apperr

import "fmt"

// Code identifies a class of failure that clients can act on.
type Code string

const (
	// General errors
	ErrInternal   Code = "INTERNAL_ERROR"
	ErrValidation Code = "VALIDATION_ERROR"
	ErrNotFound   Code = "NOT_FOUND"

	// Session errors
	ErrInvalidIdentifier Code = "INVALID_IDENTIFIER"
	ErrSessionNotFound   Code = "SESSION_NOT_FOUND"
	ErrSessionClosed     Code = "SESSION_CLOSED"

	// Change submission errors
	ErrInvalidTarget   Code = "INVALID_TARGET"
	ErrStaleDependency Code = "STALE_DEPENDENCY"
	ErrLogCorrupted    Code = "LOG_CORRUPTED"

	// Conflict resolution errors
	ErrConflictNotFound   Code = "CONFLICT_NOT_FOUND"
	ErrConflictClosed     Code = "CONFLICT_CLOSED"
	ErrMergeValueRequired Code = "MERGE_VALUE_REQUIRED"
	ErrUnknownStrategy    Code = "UNKNOWN_STRATEGY"

	// Transport errors
	ErrAuthFailed     Code = "AUTH_FAILED"
	ErrBadMessage     Code = "BAD_MESSAGE"
	ErrNotJoined      Code = "NOT_JOINED"
	ErrAlreadyJoined  Code = "ALREADY_JOINED"

	// Storage errors
	ErrDatabase Code = "DATABASE_ERROR"
)

// Error carries a code, a human-readable message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an existing error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	if e, ok := err.(*Error); ok {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the code from err, or ErrInternal if err is not coded.
func CodeOf(err error) Code {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ErrInternal
}
