package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout bounds fn to the given duration via a derived context. A
// non-positive timeout runs fn unbounded. When the limit is hit before fn
// returns, the error wraps context.DeadlineExceeded; fn keeps running in the
// background and its result is discarded.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	boundedCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn(boundedCtx)
	}()
	select {
	case err := <-errCh:
		return err
	case <-boundedCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
		}
		return fmt.Errorf("%s exceeded %v: %w", name, timeout, context.DeadlineExceeded)
	}
}
