package classify

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/falcorrus/bao-tg-importer/pkg/llm"
)

// RetryPolicy controls how rate-limited requests are retried with exponential
// backoff. Errors for which Retryable returns false are returned immediately.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Retryable    func(error) bool

	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy returns 5 attempts, 2s initial delay doubling each time,
// retrying only rate-limit replies.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: 2 * time.Second,
		Multiplier:   2.0,
		Retryable:    llm.IsRateLimited,
	}
}

// ShouldRetry returns true if the error is retryable and attempt has not
// reached MaxAttempts.
func (p *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.MaxAttempts {
		return false
	}
	if p.Retryable == nil {
		return false
	}
	return p.Retryable(err)
}

// NextDelay returns the backoff delay for the given attempt number (1-indexed).
// The delay is InitialDelay * Multiplier^(attempt-1), capped at MaxDelay when
// MaxDelay is set.
func (p *RetryPolicy) NextDelay(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Execute runs fn until it succeeds, fails with a non-retryable error, or
// MaxAttempts is used up. onRetry, when non-nil, is called before each wait.
func (p *RetryPolicy) Execute(ctx context.Context, fn func() error, onRetry func(attempt int, delay time.Duration, err error)) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !p.ShouldRetry(err, attempt) {
			break
		}
		delay := p.NextDelay(attempt)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
		if err := p.wait(ctx, delay); err != nil {
			return err
		}
	}
	if p.Retryable != nil && p.Retryable(lastErr) {
		return fmt.Errorf("giving up after %d attempts: %w", p.MaxAttempts, lastErr)
	}
	return lastErr
}

func (p *RetryPolicy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
