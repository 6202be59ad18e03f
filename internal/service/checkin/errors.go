package checkin

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnauthorized   = errors.New("session required")
	ErrForbidden      = errors.New("door staff role required")
	ErrInvalidRequest = errors.New("code and eventSlug required")
	ErrRateLimited    = errors.New("too many scans")
)

// RateLimitedError carries the wait before the caller may scan again.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many scans, retry in %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }
