package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateBackoffStrictlyIncreasesUntilCap(t *testing.T) {
	initial := 100 * time.Millisecond
	max := 10 * time.Second

	prev := time.Duration(0)
	for attempt := 0; attempt < 7; attempt++ {
		delay := CalculateBackoff(attempt, initial, max, 2.0)
		assert.Greater(t, delay, prev, "attempt %d", attempt)
		prev = delay
	}
	// Past the cap the delay plateaus.
	assert.Equal(t, max, CalculateBackoff(10, initial, max, 2.0))
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.Retryable = func(err error) bool { return !errors.Is(err, fatal) }

	err := Retry(context.Background(), cfg, func() error {
		calls++
		return fatal
	})
	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestRetryRecovers(t *testing.T) {
	calls := 0
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond

	result, err := RetryWithResult(context.Background(), cfg, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("flaky")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, calls)
}
