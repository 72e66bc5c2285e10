package strategy

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bithumb-trader/internal/analysis/indicators"
	"bithumb-trader/internal/models"
)

// crossoverCandles builds a series whose short EMA crosses above the long
// EMA exactly at the last candle: a long decline followed by a steady
// recovery (alternating +1.0/-0.5 steps keep RSI mid-band), truncated at
// the first candle where the cross is verified against the indicator
// functions themselves. Constant volume keeps the ratio at 1.
func crossoverCandles(t *testing.T, params Parameters) []models.Candle {
	t.Helper()
	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	var all []models.Candle

	price := 200.0
	add := func(p float64) {
		d := decimal.NewFromFloat(p)
		all = append(all, models.Candle{
			Symbol:    "BTC",
			Timestamp: base.Add(time.Duration(len(all)) * time.Hour),
			Open:      d,
			High:      d.Add(decimal.NewFromFloat(0.5)),
			Low:       d.Sub(decimal.NewFromFloat(0.5)),
			Close:     d,
			Volume:    decimal.NewFromInt(1000),
		})
	}

	for i := 0; i < 70; i++ {
		price -= 0.3
		add(price)
	}
	for i := 0; i < 150; i++ {
		if i%2 == 0 {
			price += 1.0
		} else {
			price -= 0.5
		}
		add(price)
	}

	for i := params.LongEMAPeriod + 1; i < len(all); i++ {
		prefix := all[:i+1]
		curShort, err1 := indicators.EMA(prefix, params.ShortEMAPeriod)
		curLong, err2 := indicators.EMA(prefix, params.LongEMAPeriod)
		prevShort, err3 := indicators.EMA(prefix[:i], params.ShortEMAPeriod)
		prevLong, err4 := indicators.EMA(prefix[:i], params.LongEMAPeriod)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		if prevShort.LessThanOrEqual(prevLong) && curShort.GreaterThan(curLong) {
			return prefix
		}
	}
	t.Fatal("fixture never produced a golden cross")
	return nil
}

func TestGenerateBuySignalOnGoldenCross(t *testing.T) {
	params := DefaultParameters()
	gen := NewSignalGenerator(zerolog.Nop())
	candles := crossoverCandles(t, params)

	decision, err := gen.Generate("BTC", candles, models.NewPortfolioState(), params)
	require.NoError(t, err)

	// Precondition checks so the test fails loudly if the fixture drifts.
	require.NotNil(t, decision.RSI)
	require.NotNil(t, decision.VolumeRatio)
	require.Truef(t,
		decision.RSI.GreaterThanOrEqual(params.RSIBuyMin) && decision.RSI.LessThanOrEqual(params.RSIBuyMax),
		"fixture RSI %s outside buy band", decision.RSI)
	require.True(t, decision.VolumeRatio.GreaterThanOrEqual(params.VolumeRatioThreshold))

	assert.Equal(t, models.SignalBuy, decision.Signal)
	assert.True(t, decision.Strength.IsPositive(), "strength should be positive, got %s", decision.Strength)
	assert.True(t, decision.Strength.LessThanOrEqual(decimal.NewFromInt(1)))
	assert.Contains(t, decision.Reasons, "EMA golden cross")
}

func TestGenerateHoldsWithoutEnoughHistory(t *testing.T) {
	params := DefaultParameters()
	gen := NewSignalGenerator(zerolog.Nop())

	candles := flatCandles(10, 100)
	decision, err := gen.Generate("BTC", candles, models.NewPortfolioState(), params)
	require.NoError(t, err)

	assert.Equal(t, models.SignalHold, decision.Signal)
	assert.Nil(t, decision.RSI)
	assert.Nil(t, decision.ATR)
	assert.Nil(t, decision.VolumeRatio)
}

func TestGenerateErrorsOnEmptySeries(t *testing.T) {
	gen := NewSignalGenerator(zerolog.Nop())
	_, err := gen.Generate("BTC", nil, models.NewPortfolioState(), DefaultParameters())
	require.Error(t, err)
}

func TestGenerateSellOnStopLoss(t *testing.T) {
	params := DefaultParameters()
	gen := NewSignalGenerator(zerolog.Nop())

	// Flat series at 100, so stop loss fires for a position entered at 110
	// (100 <= 110 * 0.97).
	candles := flatCandles(80, 100)
	portfolio := models.NewPortfolioState(models.PortfolioPosition{
		Symbol:       "BTC",
		Quantity:     decimal.NewFromInt(1),
		AveragePrice: decimal.NewFromInt(110),
		EntryTime:    candles[0].Timestamp,
	})

	decision, err := gen.Generate("BTC", candles, portfolio, params)
	require.NoError(t, err)

	assert.Equal(t, models.SignalSell, decision.Signal)
	assert.Contains(t, decision.Reasons, "stop loss triggered")
}

func TestSellStrengthIsFiredOverFive(t *testing.T) {
	params := DefaultParameters()
	gen := NewSignalGenerator(zerolog.Nop())

	candles := flatCandles(80, 100)
	portfolio := models.NewPortfolioState(models.PortfolioPosition{
		Symbol:       "BTC",
		Quantity:     decimal.NewFromInt(1),
		AveragePrice: decimal.NewFromInt(110),
		EntryTime:    candles[0].Timestamp,
	})

	decision, err := gen.Generate("BTC", candles, portfolio, params)
	require.NoError(t, err)
	require.Equal(t, models.SignalSell, decision.Signal)

	fired := int64(len(decision.Reasons))
	expected := decimal.NewFromInt(fired).Div(decimal.NewFromInt(5))
	assert.True(t, decision.Strength.Equal(expected),
		"strength %s, want %s for %d fired triggers", decision.Strength, expected, fired)
}

func flatCandles(n int, price float64) []models.Candle {
	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	d := decimal.NewFromFloat(price)
	candles := make([]models.Candle, n)
	for i := range candles {
		candles[i] = models.Candle{
			Symbol:    "BTC",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      d,
			High:      d.Add(decimal.NewFromFloat(0.5)),
			Low:       d.Sub(decimal.NewFromFloat(0.5)),
			Close:     d,
			Volume:    decimal.NewFromInt(1000),
		}
	}
	return candles
}
