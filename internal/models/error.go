package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Validation errors surfaced to callers
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidIP    = errors.New("invalid ip address")
	ErrInvalidPhone = errors.New("invalid phone number")

	// ErrStoreUnavailable marks a Signal Store failure that callers degrade around
	ErrStoreUnavailable = errors.New("signal store unavailable")

	// ErrLoginBlocked is matched by LoginBlockedError via errors.Is
	ErrLoginBlocked = errors.New("login temporarily blocked")
)

// LoginBlockedError is the explicit, typed outcome returned when the guard refuses
// an authentication attempt. It carries enough for a Retry-After hint.
type LoginBlockedError struct {
	Reason       string
	BlockedUntil time.Time
}

func (e *LoginBlockedError) Error() string {
	return fmt.Sprintf("login blocked (%s) until %s", e.Reason, e.BlockedUntil.UTC().Format(time.RFC3339))
}

// Is lets errors.Is(err, ErrLoginBlocked) match
func (e *LoginBlockedError) Is(target error) bool {
	return target == ErrLoginBlocked
}

// RetryAfter returns the remaining block time relative to now, never negative
func (e *LoginBlockedError) RetryAfter(now time.Time) time.Duration {
	d := e.BlockedUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
