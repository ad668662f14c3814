package executor

import (
	"context"
	"time"
)

// RetryConfig bounds the retry loop around one page fetch. Fetches are
// pure reads, so repeating an identical request is always safe; whether a
// given failure is worth repeating is up to Retryable.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Retryable reports whether an error should be retried. Nil retries
	// every error.
	Retryable func(error) bool
}

// DefaultRetryConfig retries twice with short exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    1 * time.Second,
	}
}

// Do runs fn until it succeeds, attempts are exhausted, or ctx is done.
func (rc RetryConfig) Do(ctx context.Context, fn func() error) error {
	attempts := rc.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if werr := rc.wait(ctx, attempt); werr != nil {
				return werr
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		if rc.Retryable != nil && !rc.Retryable(err) {
			return err
		}
	}
	return err
}

func (rc RetryConfig) wait(ctx context.Context, attempt int) error {
	delay := rc.BaseDelay << (attempt - 1)
	if rc.MaxDelay > 0 && delay > rc.MaxDelay {
		delay = rc.MaxDelay
	}
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
