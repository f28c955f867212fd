package service

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Error values double as the wire codes reported to clients.
var (
	ErrAuthRequired       = errors.New("auth_required")
	ErrInvalidInput       = errors.New("invalid_input")
	ErrInvalidItem        = errors.New("invalid_item")
	ErrRateLimited        = errors.New("rate_limited")
	ErrMissingToken       = errors.New("missing_token")
	ErrTokenInvalid       = errors.New("invalid")
	ErrTokenExpiredOrUsed = errors.New("expired_or_used")
	ErrWeakPassword       = errors.New("weak_password")
	ErrPasswordMismatch   = errors.New("mismatch")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrNotFound           = errors.New("not_found")
	ErrStorage            = errors.New("storage_failure")
)

// RateLimitedError carries the retry hint of a denied admission.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate_limited: retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfterSeconds rounds up and is never less than 1.
func (e *RateLimitedError) RetryAfterSeconds() int {
	secs := int(math.Ceil(e.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func storageFailure(err error) error {
	return fmt.Errorf("%w: %w", ErrStorage, err)
}
