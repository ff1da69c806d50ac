package git

import (
	"context"
	"time"
)

// RetryConfig controls retry behavior for git operations.
type RetryConfig struct {
	// MaxAttempts caps the total number of attempts
	MaxAttempts int

	// InitialBackoff is the delay before the first retry
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between retries
	MaxBackoff time.Duration

	// BackoffMultiply scales the backoff after each failed attempt
	BackoffMultiply float64
}

// TransientRetry retries once, for network hiccups and index lock contention.
var TransientRetry = RetryConfig{
	MaxAttempts:     2,
	InitialBackoff:  500 * time.Millisecond,
	MaxBackoff:      5 * time.Second,
	BackoffMultiply: 2.0,
}

// RetryResult is the outcome of a retried operation.
type RetryResult struct {
	Success  bool
	Attempts int

	// LastErr is the error from the final failed attempt, or the context
	// error when cancelled while waiting to retry.
	LastErr error
}

// RetryWithBackoff runs operation until it succeeds, the attempt cap is
// reached, or ctx is cancelled between attempts. Any error is treated as
// retryable; the callers on this path (pull over a flaky network, a briefly
// held index lock) cannot distinguish better.
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, operation func(ctx context.Context) error) RetryResult {
	res := RetryResult{}
	delay := cfg.InitialBackoff

	for {
		res.Attempts++
		if err := operation(ctx); err == nil {
			res.Success = true
			return res
		} else {
			res.LastErr = err
		}

		if res.Attempts >= cfg.MaxAttempts {
			return res
		}

		select {
		case <-ctx.Done():
			res.LastErr = ctx.Err()
			return res
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.BackoffMultiply)
		if delay > cfg.MaxBackoff {
			delay = cfg.MaxBackoff
		}
	}
}
