package analytics

import (
	"context"
	"log/slog"
	"time"

	"pulse/internal/apperrors"
)

const (
	defaultReadAttempts   = 3
	defaultReadRetryDelay = 50 * time.Millisecond
)

// WithReadRetry sets how many times a store read is attempted when it fails
// with a TransientStoreError, and the fixed delay between attempts.
func WithReadRetry(attempts int, delay time.Duration) Option {
	return func(e *Engine) {
		if attempts < 1 {
			attempts = 1
		}
		e.readAttempts = attempts
		e.readRetryDelay = delay
	}
}

// readWithRetry runs read until it succeeds, fails with a non-transient error,
// or runs out of attempts.
func readWithRetry[T any](ctx context.Context, e *Engine, op string, read func(context.Context) (T, error)) (T, error) {
	var (
		out T
		err error
	)
	for attempt := 1; attempt <= e.readAttempts; attempt++ {
		out, err = read(ctx)
		if err == nil {
			return out, nil
		}
		if !apperrors.IsTransient(err) || attempt == e.readAttempts {
			return out, err
		}

		e.logger.Warn("Store read failed, retrying",
			slog.String("op", op),
			slog.Any("error", err),
			slog.Int("attempt", attempt))

		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-time.After(e.readRetryDelay):
		}
	}
	return out, err
}
