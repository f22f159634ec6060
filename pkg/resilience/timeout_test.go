package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithTimeoutCompletesInTime(t *testing.T) {
	err := WithTimeout(context.Background(), time.Second, "fast", func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Errorf("WithTimeout: %v", err)
	}
}

func TestWithTimeoutExceeded(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want DeadlineExceeded", err)
	}
}

func TestWithTimeoutZeroMeansNoLimit(t *testing.T) {
	err := WithTimeout(context.Background(), 0, "unlimited", func(ctx context.Context) error {
		if _, hasDeadline := ctx.Deadline(); hasDeadline {
			return errors.New("unexpected deadline")
		}
		return nil
	})
	if err != nil {
		t.Errorf("WithTimeout: %v", err)
	}
}

func TestWithTimeoutPropagatesFnError(t *testing.T) {
	want := errors.New("fn failed")
	err := WithTimeout(context.Background(), time.Second, "failing", func(ctx context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("got %v, want %v", err, want)
	}
}
