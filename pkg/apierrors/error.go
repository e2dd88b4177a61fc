package apierrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for the request boundary.
type Kind string

const (
	KindUnauthorized     Kind = "unauthorized"
	KindForbidden        Kind = "forbidden"
	KindNotFound         Kind = "not_found"
	KindInvalidOperation Kind = "invalid_operation"
	KindAlreadyMember    Kind = "already_member"
	KindConflict         Kind = "conflict"
	KindValidation       Kind = "validation"
	KindFatal            Kind = "fatal"
	KindInternal         Kind = "internal"
)

// Error carries a kind, a message that is safe to show to the caller, and an
// optional internal cause that is only ever logged.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the internal cause to errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind around an internal cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func Unauthorized(message string) *Error     { return New(KindUnauthorized, message) }
func Forbidden(message string) *Error        { return New(KindForbidden, message) }
func NotFound(message string) *Error         { return New(KindNotFound, message) }
func InvalidOperation(message string) *Error { return New(KindInvalidOperation, message) }
func AlreadyMember(message string) *Error    { return New(KindAlreadyMember, message) }
func Conflict(message string) *Error         { return New(KindConflict, message) }
func Validation(message string) *Error       { return New(KindValidation, message) }

// Fatal marks a multi-write operation that stopped halfway and needs reconciliation.
func Fatal(message string, cause error) *Error { return Wrap(KindFatal, message, cause) }

// Internal wraps an unexpected storage or infrastructure failure.
func Internal(message string, cause error) *Error { return Wrap(KindInternal, message, cause) }

// KindOf returns the kind of err, or KindInternal for errors that carry none.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the caller-safe message of err.
func MessageOf(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return "Internal server error"
}

// HTTPStatus maps a kind to its response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidOperation, KindValidation:
		return http.StatusBadRequest
	case KindAlreadyMember, KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
