package store

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/mattn/go-sqlite3"

	"sales-pipeline/internal/logging"
)

// RetryConfig defines how writes are retried while the database file is
// locked by another connection.
type RetryConfig struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// DefaultRetryConfig is used by Open.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:       4,
	InitialDelay:      200 * time.Millisecond,
	MaxDelay:          2 * time.Second,
	BackoffMultiplier: 2.0,
}

// delay returns the wait after the given failed attempt, with exponential
// backoff capped at MaxDelay.
func (c RetryConfig) delay(attempt int) time.Duration {
	d := time.Duration(float64(c.InitialDelay) * math.Pow(c.BackoffMultiplier, float64(attempt-1)))
	if d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// isRetryable reports whether err is SQLITE_BUSY or SQLITE_LOCKED.
func isRetryable(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// withRetry runs fn until it succeeds, fails with a non-retryable error, or
// runs out of attempts.
func withRetry(ctx context.Context, cfg RetryConfig, operation string, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !isRetryable(err) || attempt >= cfg.MaxAttempts {
			return err
		}

		wait := cfg.delay(attempt)
		logging.FromContext(ctx).Warn().
			Err(err).
			Str("operation", operation).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("Database busy, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
