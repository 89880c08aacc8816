// Package apperr defines the error kinds shared by the café services and the
// HTTP layer that maps them to status codes.
package apperr

import (
	"errors"
	"fmt"
)

// Kind categorizes service errors.
type Kind string

const (
	// KindNotFound indicates a missing ingredient, menu item, order, booking or table.
	KindNotFound Kind = "not_found"
	// KindInsufficientStock indicates an availability check failed.
	KindInsufficientStock Kind = "insufficient_stock"
	// KindInvalidTransition indicates a status change that is not legal from the current state.
	KindInvalidTransition Kind = "invalid_transition"
	// KindPreconditionFailed indicates a required related state is missing.
	KindPreconditionFailed Kind = "precondition_failed"
	// KindValidation indicates malformed input.
	KindValidation Kind = "validation"
	// KindConflict indicates a uniqueness collision.
	KindConflict Kind = "conflict"
	// KindInternal indicates a storage or infrastructure failure.
	KindInternal Kind = "internal"
)

// Error is the error type returned by the service packages.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	// Details carries a structured payload (for example an availability report).
	Details interface{}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetails attaches a structured payload and returns the same error.
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps cause with a kind and message.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func NotFound(format string, args ...interface{}) *Error {
	return Newf(KindNotFound, format, args...)
}

func Validation(format string, args ...interface{}) *Error {
	return Newf(KindValidation, format, args...)
}

func InvalidTransition(format string, args ...interface{}) *Error {
	return Newf(KindInvalidTransition, format, args...)
}

func PreconditionFailed(format string, args ...interface{}) *Error {
	return Newf(KindPreconditionFailed, format, args...)
}

func InsufficientStock(format string, args ...interface{}) *Error {
	return Newf(KindInsufficientStock, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return Newf(KindConflict, format, args...)
}

// Internal wraps an unexpected failure.
func Internal(cause error, message string) *Error {
	return Wrap(KindInternal, cause, message)
}

// KindOf returns the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

func IsNotFound(err error) bool           { return Is(err, KindNotFound) }
func IsValidation(err error) bool         { return Is(err, KindValidation) }
func IsInvalidTransition(err error) bool  { return Is(err, KindInvalidTransition) }
func IsPreconditionFailed(err error) bool { return Is(err, KindPreconditionFailed) }
func IsInsufficientStock(err error) bool  { return Is(err, KindInsufficientStock) }
func IsConflict(err error) bool           { return Is(err, KindConflict) }

// DetailsOf returns the structured payload attached to err, if any.
func DetailsOf(err error) interface{} {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}
