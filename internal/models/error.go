package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Login rejections. The four kinds stay distinct server-side for
	// auditing; the handler layer decides what each reveals to the client.
	ErrRateLimited          = errors.New("too many login attempts")
	ErrInvalidCredentials   = errors.New("incorrect email or password")
	ErrAccountLocked        = errors.New("account locked due to suspicious activity")
	ErrUnverified           = errors.New("account not verified")
	ErrSubscriptionRequired = errors.New("subscription required")

	// Wallet errors
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInfrastructure marks store or network failures. Callers may retry;
	// it is never folded into a credential failure.
	ErrInfrastructure = errors.New("infrastructure error")

	// One-time code errors
	ErrCodeInvalid = errors.New("invalid or expired code")
)

// RetryableAuthError wraps a login rejection that carries a wait time
// (ErrRateLimited or ErrAccountLocked).
type RetryableAuthError struct {
	Err               error
	RetryAfterMinutes int
}

func (e *RetryableAuthError) Error() string {
	return fmt.Sprintf("%s: try again after %d minutes", e.Err, e.RetryAfterMinutes)
}

func (e *RetryableAuthError) Unwrap() error {
	return e.Err
}

// NewRetryableAuthError builds a RetryableAuthError for the given rejection kind.
func NewRetryableAuthError(kind error, minutes int) *RetryableAuthError {
	return &RetryableAuthError{Err: kind, RetryAfterMinutes: minutes}
}
