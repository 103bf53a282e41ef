package model

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryPolicy bounds calls to external services: each attempt gets its own
// timeout and failed attempts back off linearly.
type RetryPolicy struct {
	MaxAttempts int
	Timeout     time.Duration
	Backoff     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Timeout:     60 * time.Second,
		Backoff:     300 * time.Millisecond,
	}
}

// Retry runs fn until it succeeds, the attempts are exhausted or ctx is done.
func Retry[T any](ctx context.Context, p RetryPolicy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		res, err := fn(attemptCtx)
		cancel()
		if err == nil {
			return res, nil
		}
		lastErr = err

		if attempt < attempts {
			slog.Debug("[RETRY] attempt failed", "op", op, "attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(time.Duration(attempt) * p.Backoff):
			}
		}
	}
	return zero, fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
}
