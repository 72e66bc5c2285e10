package indicators

import (
	"fmt"

	"github.com/shopspring/decimal"

	apperrors "bithumb-trader/internal/errors"
	"bithumb-trader/internal/models"
)

// Engine computes indicators through a shared read-through cache. All
// methods return an InsufficientDataError when the series is too short;
// callers treat that as "not ready", not as failure.
type Engine struct {
	cache *Cache
}

// NewEngine creates an indicator engine with a cache of the given size.
func NewEngine(cacheSize int) *Engine {
	return &Engine{cache: NewCache(cacheSize)}
}

func (e *Engine) cached(symbol, name string, period int, candles []models.Candle, compute func() (decimal.Decimal, error)) (decimal.Decimal, error) {
	if len(candles) == 0 {
		return decimal.Zero, apperrors.NewInsufficientDataError(name, period, 0)
	}
	latest := candles[len(candles)-1].Timestamp
	return e.cache.GetOrCompute(symbol, name, period, latest, compute)
}

// EMA returns the cached EMA for the series at the latest candle.
func (e *Engine) EMA(symbol string, candles []models.Candle, period int) (decimal.Decimal, error) {
	return e.cached(symbol, fmt.Sprintf("EMA_%d", period), period, candles, func() (decimal.Decimal, error) {
		return EMA(candles, period)
	})
}

// PreviousEMA returns the EMA one candle back, or ok=false when the series
// is too short to look back. Not cached: it is only used for crossover
// detection against the current value.
func (e *Engine) PreviousEMA(candles []models.Candle, period int) (decimal.Decimal, bool) {
	if len(candles) <= period {
		return decimal.Zero, false
	}
	ema, err := EMA(candles[:len(candles)-1], period)
	if err != nil {
		return decimal.Zero, false
	}
	return ema, true
}

// RSI returns the cached RSI for the series at the latest candle.
func (e *Engine) RSI(symbol string, candles []models.Candle, period int) (decimal.Decimal, error) {
	return e.cached(symbol, fmt.Sprintf("RSI_%d", period), period, candles, func() (decimal.Decimal, error) {
		return RSI(candles, period)
	})
}

// ATR returns the cached ATR for the series at the latest candle.
func (e *Engine) ATR(symbol string, candles []models.Candle, period int) (decimal.Decimal, error) {
	return e.cached(symbol, fmt.Sprintf("ATR_%d", period), period, candles, func() (decimal.Decimal, error) {
		return ATR(candles, period)
	})
}

// VolumeRatio returns the cached volume ratio for the series at the latest
// candle.
func (e *Engine) VolumeRatio(symbol string, candles []models.Candle, period int) (decimal.Decimal, error) {
	return e.cached(symbol, fmt.Sprintf("VOLR_%d", period), period, candles, func() (decimal.Decimal, error) {
		return VolumeRatio(candles, period)
	})
}
