// Package apperr defines the error kinds shared by the catalog, ingestion,
// platform and HTTP layers.
package apperr

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match with errors.Is.
var (
	// ErrNotFound indicates a referenced entity does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a natural-key collision on an explicit create
	ErrConflict = errors.New("conflict")

	// ErrUpstreamUnavailable indicates a network or HTTP failure talking to
	// the sports-data source or the channel platform
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrAuthFailure indicates bad credentials or repeated refresh failure
	ErrAuthFailure = errors.New("authentication failed")

	// ErrValidation indicates malformed input to a mutating operation
	ErrValidation = errors.New("validation failed")
)

// Error is a classified error with a human-readable message.
type Error struct {
	Kind    error
	Op      string
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is this error's kind
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// NotFound builds an ErrNotFound error for a resource and identifier.
func NotFound(op, resource string, id any) *Error {
	return &Error{Kind: ErrNotFound, Op: op, Message: fmt.Sprintf("%s %v not found", resource, id)}
}

// Conflict builds an ErrConflict error.
func Conflict(op, message string, err error) *Error {
	return &Error{Kind: ErrConflict, Op: op, Message: message, Err: err}
}

// Unavailable builds an ErrUpstreamUnavailable error.
func Unavailable(op string, err error) *Error {
	return &Error{Kind: ErrUpstreamUnavailable, Op: op, Err: err}
}

// Auth builds an ErrAuthFailure error.
func Auth(op string, err error) *Error {
	return &Error{Kind: ErrAuthFailure, Op: op, Err: err}
}

// Validation builds an ErrValidation error.
func Validation(op, message string) *Error {
	return &Error{Kind: ErrValidation, Op: op, Message: message}
}

// Message returns the human-readable part of err, without the op prefix
// when err is an *Error.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Message != "" {
			return e.Message
		}
		if e.Err != nil {
			return e.Err.Error()
		}
		return e.Kind.Error()
	}
	return err.Error()
}
