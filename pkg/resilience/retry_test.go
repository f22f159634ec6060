package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "op", RetryConfig{
		MaxAttempts:  4,
		InitialDelay: time.Millisecond,
	}, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryExhaustsAndWrapsLastError(t *testing.T) {
	last := errors.New("still broken")
	err := Retry(context.Background(), "op", RetryConfig{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
	}, func() error { return last })
	if !errors.Is(err, last) {
		t.Errorf("got %v, want wrapped %v", err, last)
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Retry(ctx, "op", RetryConfig{
		MaxAttempts:  10,
		InitialDelay: 50 * time.Millisecond,
	}, func() error {
		attempts++
		cancel()
		return errors.New("failing")
	})
	if err == nil {
		t.Fatal("cancelled retry must error")
	}
	if attempts > 2 {
		t.Errorf("retry kept going after cancel: %d attempts", attempts)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	cfg := RetryConfig{
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       time.Second,
		Multiplier:     2,
		JitterFraction: 0.01,
	}
	d1 := Backoff(1, cfg)
	d3 := Backoff(3, cfg)
	d10 := Backoff(10, cfg)
	if d3 <= d1 {
		t.Errorf("backoff must grow: attempt1=%v attempt3=%v", d1, d3)
	}
	if d10 > time.Second {
		t.Errorf("backoff must cap at MaxDelay, got %v", d10)
	}
}
