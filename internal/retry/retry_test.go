package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) Config {
	return Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestDelay_ExponentialCapped(t *testing.T) {
	cfg := DefaultPollConfig()

	assert.Equal(t, 200*time.Millisecond, cfg.Delay(1))
	assert.Equal(t, 400*time.Millisecond, cfg.Delay(2))
	assert.Equal(t, 800*time.Millisecond, cfg.Delay(3))
	assert.Equal(t, 1600*time.Millisecond, cfg.Delay(4))
	assert.Equal(t, 2*time.Second, cfg.Delay(5))
	assert.Equal(t, 2*time.Second, cfg.Delay(60))
}

func TestWithBackoff_SucceedsWithoutRetry(t *testing.T) {
	calls := 0
	got, err := WithBackoff(context.Background(), fastConfig(5), func(context.Context) (string, error) {
		calls++
		return "ok", nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, calls)
}

func TestWithBackoff_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	var delays []time.Duration
	cfg := fastConfig(5)
	cfg.OnAttempt = func(_ int, _ error, d time.Duration) { delays = append(delays, d) }

	got, err := WithBackoff(context.Background(), cfg, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, delays)
}

func TestWithBackoff_ExhaustionReturnsLastError(t *testing.T) {
	calls := 0
	_, err := WithBackoff(context.Background(), fastConfig(3), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("attempt failed")
	}, nil)

	require.Error(t, err)
	assert.Equal(t, "attempt failed", err.Error())
	assert.Equal(t, 3, calls)
	assert.False(t, errors.Is(err, ErrPollTimeout))
}

func TestWithBackoff_NonRetryableStopsImmediately(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	_, err := WithBackoff(context.Background(), fastConfig(5), func(context.Context) (int, error) {
		calls++
		return 0, permanent
	}, func(err error) bool { return !errors.Is(err, permanent) })

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour}

	_, err := WithBackoff(ctx, cfg, func(context.Context) (int, error) {
		cancel()
		return 0, errors.New("boom")
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestPollUntil_ReturnsWhenConditionHolds(t *testing.T) {
	calls := 0
	got, err := PollUntil(context.Background(), fastConfig(10), func(context.Context) (int, error) {
		calls++
		return calls, nil
	}, func(v int) bool { return v == 4 })

	require.NoError(t, err)
	assert.Equal(t, 4, got)
	assert.Equal(t, 4, calls)
}

func TestPollUntil_TimeoutCarriesLastResult(t *testing.T) {
	calls := 0
	got, err := PollUntil(context.Background(), fastConfig(3), func(context.Context) (int, error) {
		calls++
		return calls * 10, nil
	}, func(int) bool { return false })

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPollTimeout)
	var timeout *TimeoutError[int]
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 3, timeout.Attempts)
	assert.Equal(t, 30, timeout.Last)
	assert.Equal(t, 30, got)
	assert.Equal(t, 3, calls)
}

func TestPollUntil_OperationErrorAborts(t *testing.T) {
	upstream := errors.New("upstream down")
	calls := 0
	_, err := PollUntil(context.Background(), fastConfig(5), func(context.Context) (int, error) {
		calls++
		return 0, upstream
	}, func(int) bool { return true })

	assert.ErrorIs(t, err, upstream)
	assert.False(t, errors.Is(err, ErrPollTimeout))
	assert.Equal(t, 1, calls)
}
