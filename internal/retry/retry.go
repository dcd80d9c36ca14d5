// retry/retry.go
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPollTimeout is matched by errors.Is when PollUntil runs out of attempts
var ErrPollTimeout = errors.New("polling condition not met")

// Config bounds a retry or poll loop
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// OnAttempt is called after each failed attempt with the 1-based attempt
	// number, the error (nil for unmet poll conditions) and the upcoming delay.
	OnAttempt func(attempt int, err error, delay time.Duration)
}

// DefaultPollConfig is the invoice balance polling schedule
func DefaultPollConfig() Config {
	return Config{
		MaxAttempts:  10,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
	}
}

// Delay returns min(initial * 2^(attempt-1), max) for a 1-based attempt
func (c Config) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := c.InitialDelay
	for i := 1; i < attempt; i++ {
		if delay >= c.MaxDelay {
			break
		}
		delay *= 2
	}
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

func (c Config) attempts() int {
	if c.MaxAttempts < 1 {
		return 1
	}
	return c.MaxAttempts
}

// TimeoutError is returned by PollUntil when the condition never held
type TimeoutError[T any] struct {
	Attempts int
	Last     T
}

func (e *TimeoutError[T]) Error() string {
	return fmt.Sprintf("polling condition not met after %d attempts", e.Attempts)
}

// Unwrap lets errors.Is match ErrPollTimeout
func (e *TimeoutError[T]) Unwrap() error {
	return ErrPollTimeout
}

// WithBackoff runs op until it succeeds, shouldRetry rejects the error, or
// attempts run out. The last error is returned unchanged on exhaustion.
// A nil shouldRetry retries every error.
func WithBackoff[T any](ctx context.Context, cfg Config, op func(context.Context) (T, error), shouldRetry func(error) bool) (T, error) {
	var zero T
	maxAttempts := cfg.attempts()

	for attempt := 1; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if attempt >= maxAttempts || (shouldRetry != nil && !shouldRetry(err)) {
			return zero, err
		}

		delay := cfg.Delay(attempt)
		if cfg.OnAttempt != nil {
			cfg.OnAttempt(attempt, err, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

// PollUntil runs op until condition holds for its result. Errors from op end
// the loop immediately. Exhausting attempts returns a *TimeoutError holding
// the last observed result.
func PollUntil[T any](ctx context.Context, cfg Config, op func(context.Context) (T, error), condition func(T) bool) (T, error) {
	var last T
	maxAttempts := cfg.attempts()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := op(ctx)
		if err != nil {
			return last, err
		}
		last = result
		if condition(result) {
			return result, nil
		}
		if attempt == maxAttempts {
			break
		}

		delay := cfg.Delay(attempt)
		if cfg.OnAttempt != nil {
			cfg.OnAttempt(attempt, nil, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return last, err
		}
	}

	return last, &TimeoutError[T]{Attempts: maxAttempts, Last: last}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
