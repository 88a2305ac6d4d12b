package conversation

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicyStopsOnNonTransient(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseWait: time.Millisecond}

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("invalid api key")
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call for a non-transient error, got %d", calls)
	}
}

func TestRetryPolicyRetriesTransient(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseWait: time.Millisecond}

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("status 503 service unavailable")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryPolicyExhaustsAttempts(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 2, BaseWait: time.Millisecond}

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("rate limit exceeded")
	})

	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestIsTransient(t *testing.T) {
	if IsTransient(errors.New("malformed response schema")) {
		t.Fatal("schema errors must not be treated as transient")
	}
	if !IsTransient(errors.New("Too Many Requests")) {
		t.Fatal("rate limit errors are transient")
	}
	if IsTransient(context.Canceled) {
		t.Fatal("cancellation is not transient")
	}
	if !IsTransient(context.DeadlineExceeded) {
		t.Fatal("timeouts are transient")
	}
}
