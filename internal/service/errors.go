package service

import (
	"errors"
	"fmt"
	"time"
)

// Verification and token errors are local, synchronous and never retried by
// the subsystem; callers must re-request a fresh code to recover. Handlers
// map each to a distinct machine-readable reason.
var (
	ErrNotFound        = errors.New("verification not found")
	ErrExpired         = errors.New("verification expired")
	ErrLimitExceeded   = errors.New("attempt limit exceeded")
	ErrAlreadyUsed     = errors.New("token already used")
	ErrPurposeMismatch = errors.New("token purpose mismatch")
	ErrInvalidPurpose  = errors.New("invalid purpose")
	ErrInvalidChannel  = errors.New("invalid channel")
)

// RateLimitedError is returned when a code is requested again before the
// resend cooldown has elapsed.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// InvalidCodeError is returned on a code mismatch, carrying how many
// attempts the record has left before it is permanently voided.
type InvalidCodeError struct {
	AttemptsRemaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid code, %d attempts remaining", e.AttemptsRemaining)
}
