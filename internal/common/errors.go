// Package common defines the sentinel errors and small helpers shared across
// authd components. Callers should use errors.Is / errors.As to match these
// values; message text is never part of the contract.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")
	ErrorUnavailable   = errors.New("storage unavailable")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("insufficient permissions")

	// Access token errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Refresh token errors: unknown, expired and already-revoked tokens all
	// collapse into this one value so callers cannot probe session state.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

// AccountNotActiveError reports a login or refresh attempt against an
// identity whose status is not active. It carries the current status and
// matches ErrorForbidden under errors.Is.
type AccountNotActiveError struct {
	Status string
}

func (e *AccountNotActiveError) Error() string {
	return fmt.Sprintf("user account is %s", e.Status)
}

func (e *AccountNotActiveError) Unwrap() error {
	return ErrorForbidden
}
