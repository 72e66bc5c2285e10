package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bithumb-trader/internal/models"
)

// Property: for any valid candle batch, saving and retrieving returns the
// same values exactly. Prices are stored as TEXT, so the comparison has no
// tolerance.
func TestProperty_CandleRoundTripConsistency(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "property.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	timeframeGen := gen.OneConstOf("1m", "5m", "30m", "1h", "4h", "1d")
	countGen := gen.IntRange(1, 20)
	priceGen := gen.Float64Range(100.0, 5000000.0)
	volumeGen := gen.Float64Range(0.001, 10000.0)

	run := 0

	properties.Property("save then retrieve returns identical candles", prop.ForAll(
		func(timeframe string, count int, basePrice, baseVolume float64) bool {
			ctx := context.Background()
			run++
			symbol := fmt.Sprintf("TEST_%d_KRW", run)

			candles := propertyCandles(symbol, count, basePrice, baseVolume)
			if err := store.SaveCandles(ctx, timeframe, candles); err != nil {
				t.Logf("Failed to save candles: %v", err)
				return false
			}

			from := candles[0].Timestamp.Add(-time.Second)
			to := candles[len(candles)-1].Timestamp.Add(time.Second)
			retrieved, err := store.GetCandles(ctx, symbol, timeframe, from, to)
			if err != nil {
				t.Logf("Failed to get candles: %v", err)
				return false
			}

			if len(retrieved) != len(candles) {
				t.Logf("Count mismatch: expected %d, got %d", len(candles), len(retrieved))
				return false
			}
			for i, orig := range candles {
				got := retrieved[i]
				if !got.Timestamp.Equal(orig.Timestamp) ||
					!got.Open.Equal(orig.Open) ||
					!got.High.Equal(orig.High) ||
					!got.Low.Equal(orig.Low) ||
					!got.Close.Equal(orig.Close) ||
					!got.Volume.Equal(orig.Volume) {
					t.Logf("Candle mismatch at %d: original=%+v retrieved=%+v", i, orig, got)
					return false
				}
			}
			return true
		},
		timeframeGen,
		countGen,
		priceGen,
		volumeGen,
	))

	properties.TestingRun(t)
}

// propertyCandles builds count candles with valid OHLC relationships.
func propertyCandles(symbol string, count int, basePrice, baseVolume float64) []models.Candle {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]models.Candle, count)
	for i := 0; i < count; i++ {
		variation := float64(i%10) * 0.01 * basePrice
		open := decimal.NewFromFloat(basePrice + variation)
		closeP := decimal.NewFromFloat(basePrice + variation*0.5)

		high := decimal.Max(open, closeP).Mul(decimal.RequireFromString("1.01"))
		low := decimal.Min(open, closeP).Mul(decimal.RequireFromString("0.99"))

		candles[i] = models.Candle{
			Symbol:    symbol,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closeP,
			Volume:    decimal.NewFromFloat(baseVolume + float64(i)),
		}
	}
	return candles
}
