package indicators

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheComputesOncePerKey(t *testing.T) {
	cache := NewCache(16)
	latest := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	calls := 0
	compute := func() (decimal.Decimal, error) {
		calls++
		return decimal.NewFromInt(42), nil
	}

	for i := 0; i < 5; i++ {
		v, err := cache.GetOrCompute("BTC", "EMA_20", 20, latest, compute)
		require.NoError(t, err)
		assert.True(t, v.Equal(decimal.NewFromInt(42)))
	}

	assert.Equal(t, 1, calls, "compute should run once per distinct key")
}

func TestCacheDistinctKeysComputeSeparately(t *testing.T) {
	cache := NewCache(16)
	latest := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	calls := 0
	compute := func() (decimal.Decimal, error) {
		calls++
		return decimal.NewFromInt(int64(calls)), nil
	}

	_, err := cache.GetOrCompute("BTC", "EMA_20", 20, latest, compute)
	require.NoError(t, err)
	_, err = cache.GetOrCompute("ETH", "EMA_20", 20, latest, compute)
	require.NoError(t, err)
	_, err = cache.GetOrCompute("BTC", "EMA_60", 60, latest, compute)
	require.NoError(t, err)
	_, err = cache.GetOrCompute("BTC", "EMA_20", 20, latest.Add(time.Hour), compute)
	require.NoError(t, err)

	assert.Equal(t, 4, calls)
	assert.Equal(t, 4, cache.Len())
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewCache(2)
	latest := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	calls := map[string]int{}
	computeFor := func(symbol string) func() (decimal.Decimal, error) {
		return func() (decimal.Decimal, error) {
			calls[symbol]++
			return decimal.NewFromInt(1), nil
		}
	}

	_, _ = cache.GetOrCompute("A", "RSI_14", 14, latest, computeFor("A"))
	_, _ = cache.GetOrCompute("B", "RSI_14", 14, latest, computeFor("B"))
	// Touch A so B becomes the eviction candidate.
	_, _ = cache.GetOrCompute("A", "RSI_14", 14, latest, computeFor("A"))
	_, _ = cache.GetOrCompute("C", "RSI_14", 14, latest, computeFor("C"))

	assert.Equal(t, 2, cache.Len())

	_, _ = cache.GetOrCompute("A", "RSI_14", 14, latest, computeFor("A"))
	_, _ = cache.GetOrCompute("B", "RSI_14", 14, latest, computeFor("B"))

	assert.Equal(t, 1, calls["A"], "A should stay cached")
	assert.Equal(t, 2, calls["B"], "B should have been evicted and recomputed")
}

func TestCacheErrorNotCached(t *testing.T) {
	cache := NewCache(16)
	latest := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	calls := 0
	compute := func() (decimal.Decimal, error) {
		calls++
		if calls == 1 {
			return decimal.Zero, assert.AnError
		}
		return decimal.NewFromInt(7), nil
	}

	_, err := cache.GetOrCompute("BTC", "ATR_14", 14, latest, compute)
	require.Error(t, err)

	v, err := cache.GetOrCompute("BTC", "ATR_14", 14, latest, compute)
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.NewFromInt(7)))
	assert.Equal(t, 2, calls)
}
