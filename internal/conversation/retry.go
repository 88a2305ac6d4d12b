package conversation

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// RetryPolicy bounds retries of transient provider failures. Non-transient
// errors (bad schema, auth) are returned immediately so the step's fallback
// can take over.
type RetryPolicy struct {
	MaxAttempts int
	BaseWait    time.Duration
	MaxWait     time.Duration
}

// DefaultRetryPolicy matches the worker defaults: three attempts with
// 500ms/1s/2s waits.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseWait:    500 * time.Millisecond,
		MaxWait:     5 * time.Second,
	}
}

// Do runs fn until it succeeds, fails non-transiently, or attempts run out.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	wait := p.BaseWait
	if wait <= 0 {
		wait = 500 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) || attempt == attempts {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		wait *= 2
		if p.MaxWait > 0 && wait > p.MaxWait {
			wait = p.MaxWait
		}
	}
	return lastErr
}

// IsTransient reports whether an error is worth retrying: rate limits,
// provider 5xx responses, timeouts and network failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"rate limit",
		"too many requests",
		"status 429",
		"status 500",
		"status 502",
		"status 503",
		"status 504",
		"throttl",
		"connection reset",
		"connection refused",
		"temporarily unavailable",
		"service unavailable",
		"internal server error",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
