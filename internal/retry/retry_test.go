package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result := Do(context.Background(), DefaultConfig(), func() error {
		calls++
		return nil
	})
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if calls != 1 || result.Attempts != 1 {
		t.Errorf("calls = %d, attempts = %d, want 1 and 1", calls, result.Attempts)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	cfg := Linear(3, time.Millisecond)
	result := Do(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", result.Attempts)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	cfg := Linear(3, time.Millisecond)
	result := Do(context.Background(), cfg, func() error {
		calls++
		return errors.New("still failing")
	})
	if result.Err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoStopsOnPermanent(t *testing.T) {
	calls := 0
	cfg := Linear(5, time.Millisecond)
	sentinel := errors.New("bad request")
	result := Do(context.Background(), cfg, func() error {
		calls++
		return Permanent(sentinel)
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (permanent errors must not be retried)", calls)
	}
	if !errors.Is(result.Err, sentinel) {
		t.Errorf("result.Err = %v, want wrapped %v", result.Err, sentinel)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := Do(ctx, DefaultConfig(), func() error {
		t.Fatal("operation should not run with canceled context")
		return nil
	})
	if !errors.Is(result.Err, context.Canceled) {
		t.Errorf("result.Err = %v, want context.Canceled", result.Err)
	}
}

func TestDoWithValue(t *testing.T) {
	calls := 0
	cfg := Linear(2, time.Millisecond)
	value, result := DoWithValue(context.Background(), cfg, func() (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if value != "ok" {
		t.Errorf("value = %q, want %q", value, "ok")
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil error should not be retryable")
	}
	if !IsRetryable(errors.New("x")) {
		t.Error("plain error should be retryable")
	}
	if IsRetryable(Permanent(errors.New("x"))) {
		t.Error("permanent error should not be retryable")
	}
}
