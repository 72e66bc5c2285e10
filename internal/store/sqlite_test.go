package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bithumb-trader/internal/models"
	"bithumb-trader/internal/strategy"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadParametersWritesDefaultsOnFirstRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	params, err := s.LoadParameters(ctx)
	require.NoError(t, err)
	assert.Equal(t, strategy.DefaultParameters().ShortEMAPeriod, params.ShortEMAPeriod)

	// A second load reads the now-persisted row.
	again, err := s.LoadParameters(ctx)
	require.NoError(t, err)
	assert.Equal(t, params, again)
}

func TestSaveParametersRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	params := strategy.DefaultParameters()
	params.ShortEMAPeriod = 12
	params.RSIBuyMin = decimal.NewFromInt(45)
	require.NoError(t, s.SaveParameters(ctx, params))

	loaded, err := s.LoadParameters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, loaded.ShortEMAPeriod)
	assert.True(t, loaded.RSIBuyMin.Equal(decimal.NewFromInt(45)))
}

func TestSaveParametersRejectsInvalid(t *testing.T) {
	s := newTestStore(t)

	params := strategy.DefaultParameters()
	params.LongEMAPeriod = params.ShortEMAPeriod
	assert.Error(t, s.SaveParameters(context.Background(), params))
}

func TestRecordAndListSignals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rsi := decimal.NewFromInt(62)
	stop := decimal.NewFromInt(48500)
	decision := models.SignalDecision{
		Symbol:    "BTC_KRW",
		Signal:    models.SignalBuy,
		Price:     decimal.NewFromInt(50000),
		Strength:  decimal.RequireFromString("0.7"),
		RSI:       &rsi,
		Reasons:   []string{"EMA golden cross", "RSI within buy band"},
		Timestamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	assessment := models.RiskAssessment{
		Quantity: decimal.RequireFromString("0.5"),
		Notional: decimal.NewFromInt(25000),
		StopLoss: &stop,
	}
	require.NoError(t, s.RecordSignal(ctx, decision, assessment, strategy.DefaultParameters()))

	records, err := s.RecentSignals(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "BTC_KRW", r.Symbol)
	assert.Equal(t, models.SignalBuy, r.Signal)
	assert.True(t, r.Price.Equal(decimal.NewFromInt(50000)))
	assert.True(t, r.Strength.Equal(decimal.RequireFromString("0.7")))
	assert.True(t, r.Quantity.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, []string{"EMA golden cross", "RSI within buy band"}, r.Reasons)
}

func TestRecordSignalWithNilIndicators(t *testing.T) {
	s := newTestStore(t)

	decision := models.SignalDecision{
		Symbol:    "ETH_KRW",
		Signal:    models.SignalSell,
		Price:     decimal.NewFromInt(3000),
		Strength:  decimal.RequireFromString("0.4"),
		Reasons:   []string{"stop loss triggered"},
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, s.RecordSignal(context.Background(), decision, models.RiskAssessment{}, strategy.DefaultParameters()))
}

func TestSaveCandlesUpsertsDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	candle := models.Candle{
		Symbol:    "BTC_KRW",
		Timestamp: ts,
		Open:      decimal.NewFromInt(100),
		High:      decimal.NewFromInt(110),
		Low:       decimal.NewFromInt(95),
		Close:     decimal.NewFromInt(105),
		Volume:    decimal.RequireFromString("12.5"),
	}
	require.NoError(t, s.SaveCandles(ctx, "1h", []models.Candle{candle}))

	candle.Close = decimal.NewFromInt(107)
	require.NoError(t, s.SaveCandles(ctx, "1h", []models.Candle{candle}))

	got, err := s.GetCandles(ctx, "BTC_KRW", "1h", ts.Add(-time.Minute), ts.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Close.Equal(decimal.NewFromInt(107)), "duplicate timestamps replace the row")
}

func TestLatestCandlesReturnsTailInOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	var candles []models.Candle
	for i := 0; i < 5; i++ {
		price := decimal.NewFromInt(int64(100 + i))
		candles = append(candles, models.Candle{
			Symbol:    "BTC_KRW",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    decimal.NewFromInt(1),
		})
	}
	require.NoError(t, s.SaveCandles(ctx, "1h", candles))

	got, err := s.LatestCandles(ctx, "BTC_KRW", "1h", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].Close.Equal(decimal.NewFromInt(102)))
	assert.True(t, got[2].Close.Equal(decimal.NewFromInt(104)))
}

func TestSaveCandlesEmptySliceIsNoop(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.SaveCandles(context.Background(), "1h", nil))
}
