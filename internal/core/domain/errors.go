package domain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Error kinds shared by every layer. Use-case errors wrap one of these so the
// transport can classify them with errors.Is.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnavailable  = errors.New("unavailable")
)

// RateLimitedError carries the remediation a throttled caller needs.
type RateLimitedError struct {
	RetryAfter int
	Limit      uint
	Window     time.Duration
	Role       Role
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %ds (limit %d per %s for %s)", e.RetryAfter, e.Limit, e.Window, e.Role)
}

// Is lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// NewRateLimitedError computes the retry hint as ceil(resetAt-now) in seconds.
func NewRateLimitedError(tier Tier, role Role, resetAt, now time.Time) *RateLimitedError {
	retry := int(math.Ceil(resetAt.Sub(now).Seconds()))
	if retry < 0 {
		retry = 0
	}
	return &RateLimitedError{
		RetryAfter: retry,
		Limit:      tier.Limit,
		Window:     tier.Window,
		Role:       role,
	}
}

type unavailableError struct {
	err error
}

func (e *unavailableError) Error() string { return "unavailable: " + e.err.Error() }

func (e *unavailableError) Unwrap() []error { return []error{ErrUnavailable, e.err} }

// Unavailable marks err as a persistence or timeout failure. Errors already
// carrying a domain kind are returned unchanged.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrInvalidInput, ErrConflict, ErrUnauthorized, ErrForbidden, ErrNotFound, ErrRateLimited, ErrUnavailable} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return &unavailableError{err: err}
}

// IsTimeout reports whether err stems from a deadline or cancellation.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
