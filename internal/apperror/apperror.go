// Package apperror defines the domain error kinds shared by every layer.
//
// Services return *AppError values that wrap one of the sentinel errors
// below. Callers classify them with errors.Is (or KindOf), and only the HTTP
// layer turns a kind into a status code.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("Validation Error")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnavailable     = errors.New("unavailable")
)

// Kind is the wire name of an error category. These strings appear verbatim
// in the "error" field of JSON error responses.
type Kind string

const (
	KindUnauthenticated Kind = "Unauthenticated"
	KindForbidden       Kind = "Forbidden"
	KindNotFound        Kind = "NotFound"
	KindConflict        Kind = "Conflict"
	KindUnavailable     Kind = "Unavailable"
	KindInvalid         Kind = "Invalid"
	KindInternal        Kind = "Internal"
)

type AppError struct {
	Err     error  // sentinel identifying the kind
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying failure, kept for logs only
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the cause, so errors.Is matches
// either one (e.g. context.DeadlineExceeded behind an Unavailable).
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthenticated means the request carries no valid identity.
// HTTP handlers map this to 401 Unauthorized.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

// Unavailable reports a transient storage failure or timeout during op.
// The outcome of a write that fails this way is unknown to the caller, so
// clients should re-read state before retrying a toggle.
func Unavailable(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrUnavailable,
		Message: fmt.Sprintf("%s is temporarily unavailable, please retry", op),
		Cause:   cause,
	}
}

// KindOf classifies err. Errors that are not AppErrors are Internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	case errors.Is(err, ErrValidation):
		return KindInvalid
	default:
		return KindInternal
	}
}

// Retryable reports whether the same request may succeed if repeated.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsAppError reports whether err carries a domain classification.
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}
