package resilience

import (
	"context"
	"errors"
	"time"
)

// ExecuteWithTimeout runs op with a deadline. When the deadline elapses it
// returns ErrTimeout; cancellation of the parent context propagates as the
// context's own error.
//
// The operation runs on its own goroutine so a non-cooperative op cannot
// stall the caller past the deadline; such an op may outlive the return of
// this function until it observes its context.
func ExecuteWithTimeout(ctx context.Context, timeout time.Duration, op func(context.Context) error) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(ctx)
	}()

	select {
	case err := <-done:
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ctx.Err()
	}
}
