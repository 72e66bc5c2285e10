package performance

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bithumb-trader/internal/models"
)

func newAnalyzer() *Analyzer {
	return NewAnalyzer(DefaultAnalyzerConfig(), zerolog.Nop())
}

func curveOf(values ...int64) []models.EquityPoint {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]models.EquityPoint, len(values))
	for i, v := range values {
		points[i] = models.EquityPoint{
			Timestamp: start.AddDate(0, 0, i),
			Equity:    decimal.NewFromInt(v),
		}
	}
	return points
}

func trade(side models.OrderSide, qty, price int64, day int) models.Trade {
	return models.Trade{
		Symbol:    "BTC_KRW",
		Side:      side,
		Quantity:  decimal.NewFromInt(qty),
		Price:     decimal.NewFromInt(price),
		Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day),
	}
}

func TestFIFOPairingSplitsAcrossLots(t *testing.T) {
	trades := []models.Trade{
		trade(models.OrderSideBuy, 1, 100, 0),
		trade(models.OrderSideBuy, 1, 120, 1),
		trade(models.OrderSideSell, 2, 130, 3),
	}

	pairs := pairTrades(trades)
	require.Len(t, pairs, 2)

	// The oldest lot closes first.
	assert.InDelta(t, 30.0, pairs[0].PnL, 1e-9)
	assert.InDelta(t, 3.0, pairs[0].Duration, 1e-9)
	assert.InDelta(t, 10.0, pairs[1].PnL, 1e-9)
	assert.InDelta(t, 2.0, pairs[1].Duration, 1e-9)
}

func TestPairingProratesCommission(t *testing.T) {
	buy := trade(models.OrderSideBuy, 2, 100, 0)
	buy.Commission = decimal.NewFromInt(10)
	sellA := trade(models.OrderSideSell, 1, 110, 1)
	sellA.Commission = decimal.NewFromInt(2)
	sellB := trade(models.OrderSideSell, 1, 110, 2)
	sellB.Commission = decimal.NewFromInt(2)

	pairs := pairTrades([]models.Trade{buy, sellA, sellB})
	require.Len(t, pairs, 2)

	// Each half carries half the buy commission plus its own sell commission:
	// 110 - 100 - 5 - 2 = 3.
	assert.InDelta(t, 3.0, pairs[0].PnL, 1e-9)
	assert.InDelta(t, 3.0, pairs[1].PnL, 1e-9)
}

func TestSellWithoutLotIsIgnored(t *testing.T) {
	pairs := pairTrades([]models.Trade{trade(models.OrderSideSell, 1, 100, 0)})
	assert.Empty(t, pairs)
}

func TestMonotoneCurveHasNoDrawdown(t *testing.T) {
	m := newAnalyzer().Analyze(decimal.NewFromInt(100), nil, curveOf(100, 101, 103, 106, 110))

	assert.Equal(t, 0.0, m.MaxDrawdown)
	assert.Equal(t, 0.0, m.SortinoRatio, "no negative returns means no downside")
	assert.Equal(t, 0.0, m.DownsideDeviation)
	assert.Equal(t, 0.0, m.RecoveryFactor)
	assert.InDelta(t, 10.0, m.TotalReturn, 1e-9)
	assert.Greater(t, m.SharpeRatio, 0.0)
}

func TestDrawdownAndRecovery(t *testing.T) {
	m := newAnalyzer().Analyze(decimal.NewFromInt(100), nil, curveOf(100, 120, 90, 130))

	// Peak 120, trough 90: -25%.
	assert.InDelta(t, -25.0, m.MaxDrawdown, 1e-9)
	assert.InDelta(t, 30.0, m.TotalReturn, 1e-9)
	assert.InDelta(t, 30.0/25.0, m.RecoveryFactor, 1e-9)
	assert.Greater(t, m.CalmarRatio, 0.0)
}

func TestShortCurveYieldsZeroStatistics(t *testing.T) {
	m := newAnalyzer().Analyze(decimal.NewFromInt(100), nil, curveOf(100))

	assert.Equal(t, 0.0, m.TotalReturn)
	assert.Equal(t, 0.0, m.Volatility)
	assert.Equal(t, 0.0, m.SharpeRatio)
}

func TestTradeStatistics(t *testing.T) {
	trades := []models.Trade{
		trade(models.OrderSideBuy, 1, 100, 0),
		trade(models.OrderSideSell, 1, 110, 1), // +10
		trade(models.OrderSideBuy, 1, 100, 2),
		trade(models.OrderSideSell, 1, 95, 3), // -5
	}
	m := newAnalyzer().Analyze(decimal.NewFromInt(100), trades, curveOf(100, 110, 110, 105))

	assert.Equal(t, 2, m.TotalTrades)
	assert.Equal(t, 1, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.InDelta(t, 50.0, m.WinRate, 1e-9)
	assert.InDelta(t, 10.0, m.AvgWin, 1e-9)
	assert.InDelta(t, -5.0, m.AvgLoss, 1e-9)
	assert.InDelta(t, 2.0, m.ProfitFactor, 1e-9)
}

func TestProfitFactorZeroWithoutLosses(t *testing.T) {
	trades := []models.Trade{
		trade(models.OrderSideBuy, 1, 100, 0),
		trade(models.OrderSideSell, 1, 110, 1),
	}
	m := newAnalyzer().Analyze(decimal.NewFromInt(100), trades, curveOf(100, 110))
	assert.Equal(t, 0.0, m.ProfitFactor, "undefined denominator reports zero")
}

func TestQuantileInterpolates(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	assert.InDelta(t, 1.2, quantile(xs, 0.05), 1e-9)
	assert.InDelta(t, 3.0, quantile(xs, 0.5), 1e-9)
	assert.InDelta(t, 5.0, quantile(xs, 1.0), 1e-9)
}

func TestConsecutiveStreaks(t *testing.T) {
	wins, losses := consecutiveStreaks([]float64{0.1, 0.2, -0.1, -0.1, -0.3, 0.05, 0, 0.1})
	assert.Equal(t, 2, wins)
	assert.Equal(t, 3, losses)
}

func TestSampleStdMatchesDefinition(t *testing.T) {
	assert.InDelta(t, math.Sqrt(2.5), sampleStd([]float64{1, 2, 3, 4, 5}), 1e-9)
	assert.Equal(t, 0.0, sampleStd([]float64{7}))
}

func TestSummaryReportIncludesHeadlineNumbers(t *testing.T) {
	a := newAnalyzer()
	m := a.Analyze(decimal.NewFromInt(100), nil, curveOf(100, 120, 90, 130))
	report := a.SummaryReport(m)

	assert.Contains(t, report, "Total return:        30.00%")
	assert.Contains(t, report, "Max drawdown:        -25.00%")
	assert.Contains(t, report, "Round trips:         0")
}
