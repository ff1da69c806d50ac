package git

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:     attempts,
		InitialBackoff:  time.Millisecond,
		MaxBackoff:      5 * time.Millisecond,
		BackoffMultiply: 2.0,
	}
}

func TestRetryWithBackoff_SucceedsFirstTry(t *testing.T) {
	calls := 0
	res := RetryWithBackoff(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		return nil
	})
	if !res.Success || res.Attempts != 1 || calls != 1 {
		t.Errorf("result = %+v, calls = %d", res, calls)
	}
}

func TestRetryWithBackoff_RecoversAfterFailure(t *testing.T) {
	calls := 0
	res := RetryWithBackoff(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("index.lock exists")
		}
		return nil
	})
	if !res.Success || res.Attempts != 3 {
		t.Errorf("result = %+v", res)
	}
}

func TestRetryWithBackoff_Exhausted(t *testing.T) {
	boom := errors.New("network unreachable")
	res := RetryWithBackoff(context.Background(), fastRetry(2), func(context.Context) error {
		return boom
	})
	if res.Success {
		t.Error("exhausted retries must not report success")
	}
	if res.Attempts != 2 || !errors.Is(res.LastErr, boom) {
		t.Errorf("result = %+v", res)
	}
}

func TestRetryWithBackoff_CancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	res := RetryWithBackoff(ctx, fastRetry(3), func(context.Context) error {
		cancel()
		return errors.New("transient")
	})
	if res.Success {
		t.Error("cancelled retry must not report success")
	}
	if !errors.Is(res.LastErr, context.Canceled) {
		t.Errorf("LastErr = %v, want context.Canceled", res.LastErr)
	}
}

func TestTransientRetry_RetriesOnce(t *testing.T) {
	if TransientRetry.MaxAttempts != 2 {
		t.Errorf("MaxAttempts = %d, want 2 (one retry)", TransientRetry.MaxAttempts)
	}
}
