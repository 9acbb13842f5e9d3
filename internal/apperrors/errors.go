// Package apperrors defines the domain error kinds shared by services and handlers.
package apperrors

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrConflict      = errors.New("conflict")
	ErrValidation    = errors.New("validation failed")
	ErrRateLimited   = errors.New("rate limited")
	ErrQuotaExceeded = errors.New("plan quota exceeded")
)

// Validation wraps ErrValidation with a user-facing message.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound with the missing resource name.
func NotFound(resource string) error {
	return fmt.Errorf("%s %w", resource, ErrNotFound)
}

// Forbidden wraps ErrForbidden with a reason.
func Forbidden(reason string) error {
	return fmt.Errorf("%w: %s", ErrForbidden, reason)
}

// FromSQL maps sql.ErrNoRows to a NotFound error for resource and passes
// anything else through.
func FromSQL(err error, resource string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return NotFound(resource)
	}
	return err
}

// HTTPStatus picks the status code a handler should answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrQuotaExceeded):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage hides internal failures from clients.
func PublicMessage(err error) string {
	if HTTPStatus(err) == http.StatusInternalServerError {
		return "Internal server error"
	}
	return err.Error()
}
