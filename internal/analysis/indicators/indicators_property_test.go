package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"bithumb-trader/internal/models"
)

// candleGen generates valid candle data with realistic OHLCV values.
func candleGen() gopter.Gen {
	return gopter.CombineGens(
		gen.Float64Range(100.0, 1000.0), // open
		gen.Float64Range(100.0, 1000.0), // high
		gen.Float64Range(100.0, 1000.0), // low
		gen.Float64Range(100.0, 1000.0), // close
		gen.Float64Range(1000, 10000000), // volume
	).Map(func(vals []interface{}) models.Candle {
		open := vals[0].(float64)
		high := vals[1].(float64)
		low := vals[2].(float64)
		closeP := vals[3].(float64)
		volume := vals[4].(float64)

		// Enforce OHLC constraints: High >= max(Open, Close), Low <= min(Open, Close).
		high = math.Max(high, math.Max(open, closeP))
		low = math.Min(low, math.Min(open, closeP))
		if low > high {
			low, high = high, low
		}

		return models.Candle{
			Open:   decimal.NewFromFloat(open),
			High:   decimal.NewFromFloat(high),
			Low:    decimal.NewFromFloat(low),
			Close:  decimal.NewFromFloat(closeP),
			Volume: decimal.NewFromFloat(volume),
		}
	})
}

// candleSliceGen generates a slice of valid candles with ascending timestamps.
func candleSliceGen(minLen, maxLen int) gopter.Gen {
	return gen.SliceOfN(maxLen, candleGen()).Map(func(candles []models.Candle) []models.Candle {
		for len(candles) < minLen {
			candles = append(candles, candles[len(candles)-1])
		}
		base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		for i := range candles {
			candles[i].Timestamp = base.Add(time.Duration(i) * time.Hour)
		}
		return candles
	})
}

func TestProperty_RSIWithinBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("RSI values are within [0, 100]", prop.ForAll(
		func(candles []models.Candle) bool {
			rsi, err := RSI(candles, 14)
			if err != nil {
				// Insufficient data is acceptable
				return true
			}
			return !rsi.IsNegative() && rsi.LessThanOrEqual(decimal.NewFromInt(100))
		},
		candleSliceGen(20, 100),
	))

	properties.TestingRun(t)
}

func TestProperty_EMAMatchesRecurrence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("EMA equals SMA-seeded recurrence over closes", prop.ForAll(
		func(candles []models.Candle) bool {
			period := 10
			ema, err := EMA(candles, period)
			if err != nil {
				return true
			}

			// Independent float64 reference implementation.
			sum := 0.0
			for _, c := range candles[:period] {
				sum += c.Close.InexactFloat64()
			}
			expected := sum / float64(period)
			multiplier := 2.0 / float64(period+1)
			for _, c := range candles[period:] {
				expected = (c.Close.InexactFloat64()-expected)*multiplier + expected
			}

			return math.Abs(ema.InexactFloat64()-expected) < 0.01
		},
		candleSliceGen(15, 80),
	))

	properties.TestingRun(t)
}

func TestProperty_ATRIsNonNegative(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("ATR values are non-negative", prop.ForAll(
		func(candles []models.Candle) bool {
			atr, err := ATR(candles, 14)
			if err != nil {
				return true
			}
			return !atr.IsNegative()
		},
		candleSliceGen(20, 100),
	))

	properties.TestingRun(t)
}

func TestProperty_VolumeRatioNonNegative(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("Volume ratio is non-negative", prop.ForAll(
		func(candles []models.Candle) bool {
			ratio, err := VolumeRatio(candles, 10)
			if err != nil {
				return true
			}
			return !ratio.IsNegative()
		},
		candleSliceGen(12, 60),
	))

	properties.TestingRun(t)
}

func TestRSIMonotoneRiseIsHundred(t *testing.T) {
	candles := make([]models.Candle, 20)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		price := decimal.NewFromInt(int64(100 + i))
		candles[i] = models.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      price,
			High:      price.Add(decimal.NewFromInt(1)),
			Low:       price,
			Close:     price,
			Volume:    decimal.NewFromInt(1000),
		}
	}

	rsi, err := RSI(candles, 14)
	if err != nil {
		t.Fatalf("RSI: %v", err)
	}
	if !rsi.Equal(decimal.NewFromInt(100)) {
		t.Errorf("RSI on strictly rising closes = %s, want 100", rsi)
	}
}

func TestVolumeRatioZeroVolumeAverage(t *testing.T) {
	candles := make([]models.Candle, 12)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		candles[i] = models.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      decimal.NewFromInt(100),
			High:      decimal.NewFromInt(101),
			Low:       decimal.NewFromInt(99),
			Close:     decimal.NewFromInt(100),
			Volume:    decimal.Zero,
		}
	}

	ratio, err := VolumeRatio(candles, 10)
	if err != nil {
		t.Fatalf("VolumeRatio: %v", err)
	}
	if !ratio.IsZero() {
		t.Errorf("volume ratio with zero average = %s, want 0", ratio)
	}
}

func TestInsufficientDataErrors(t *testing.T) {
	candles := candlesOfLen(5)

	cases := []struct {
		name string
		call func() (decimal.Decimal, error)
	}{
		{"EMA", func() (decimal.Decimal, error) { return EMA(candles, 20) }},
		{"RSI", func() (decimal.Decimal, error) { return RSI(candles, 14) }},
		{"ATR", func() (decimal.Decimal, error) { return ATR(candles, 14) }},
		{"VolumeRatio", func() (decimal.Decimal, error) { return VolumeRatio(candles, 10) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.call(); err == nil {
				t.Errorf("%s on 5 candles should return an error", tc.name)
			}
		})
	}
}

func candlesOfLen(n int) []models.Candle {
	candles := make([]models.Candle, n)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		candles[i] = models.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      decimal.NewFromInt(100),
			High:      decimal.NewFromInt(102),
			Low:       decimal.NewFromInt(98),
			Close:     decimal.NewFromInt(101),
			Volume:    decimal.NewFromInt(1000),
		}
	}
	return candles
}
