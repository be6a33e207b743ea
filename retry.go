package canteen

import (
	"context"
	"errors"
	log "log/slog"
	"net"
	"time"

	"github.com/sethvargo/go-retry"
)

// Retry executes task with Fibonacci backoff up to 5 retries.
// If retries are exhausted, gaveUpTask is invoked (when not nil) and the
// final error is returned. Used for coarse operational retries (broker
// connects, upstream calls); the deduction engine carries its own tighter
// backoff in the inventory package.
func Retry(ctx context.Context, task func(ctx context.Context) error, gaveUpTask func(ctx context.Context)) error {
	b := retry.NewFibonacci(1 * time.Second)
	if err := retry.Do(ctx, retry.WithMaxRetries(5, b), task); err != nil {
		log.Warn(err.Error() + ", gave up")
		if gaveUpTask != nil {
			gaveUpTask(ctx)
		}
		return err
	}
	return nil
}

// ShouldRetry reports whether the error is retryable (non-nil and not a
// known permanent failure).
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	// Context cancellations/timeouts are permanent from the caller's POV.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Client-caused failures never heal on their own.
	var ce Error
	if errors.As(err, &ce) && ce.HTTPStatus() < 500 {
		return false
	}
	// Network conditions (refused, reset, timeout) are worth retrying.
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return true
}
