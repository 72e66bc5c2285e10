package backtest

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "bithumb-trader/internal/errors"
	"bithumb-trader/internal/models"
)

var testStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func fillAt(side models.OrderSide, qty, price, commission string, minute int) FillEvent {
	return FillEvent{
		At:         testStart.Add(time.Duration(minute) * time.Minute),
		Symbol:     "BTC_KRW",
		Side:       side,
		Quantity:   decimal.RequireFromString(qty),
		FillPrice:  decimal.RequireFromString(price),
		Commission: decimal.RequireFromString(commission),
	}
}

func TestApplyFillOpensAndExtendsLong(t *testing.T) {
	p := NewPortfolio(decimal.NewFromInt(100000), decimal.Zero)

	p.ApplyFill(fillAt(models.OrderSideBuy, "2", "100", "0", 0))
	p.ApplyFill(fillAt(models.OrderSideBuy, "2", "110", "0", 1))

	position := p.Position("BTC_KRW")
	require.NotNil(t, position)
	assert.True(t, position.Quantity.Equal(decimal.NewFromInt(4)))
	assert.True(t, position.AveragePrice().Equal(decimal.NewFromInt(105)))
	assert.True(t, p.Cash().Equal(decimal.NewFromInt(100000-200-220)))
}

func TestApplyFillRealizesOnClose(t *testing.T) {
	p := NewPortfolio(decimal.NewFromInt(100000), decimal.Zero)

	p.ApplyFill(fillAt(models.OrderSideBuy, "3", "100", "0", 0))
	p.ApplyFill(fillAt(models.OrderSideSell, "1", "120", "0", 1))

	position := p.Position("BTC_KRW")
	assert.True(t, position.Quantity.Equal(decimal.NewFromInt(2)))
	assert.True(t, position.AveragePrice().Equal(decimal.NewFromInt(100)), "closing does not move the basis price")
	assert.True(t, position.RealizedPnL.Equal(decimal.NewFromInt(20)))

	require.NoError(t, p.SampleEquity(testStart.Add(2*time.Minute)))
}

func TestSellBeyondLongFlipsShort(t *testing.T) {
	p := NewPortfolio(decimal.NewFromInt(100000), decimal.Zero)

	p.ApplyFill(fillAt(models.OrderSideBuy, "1", "100", "0", 0))
	p.ApplyFill(fillAt(models.OrderSideSell, "2", "110", "0", 1))

	position := p.Position("BTC_KRW")
	assert.True(t, position.Quantity.Equal(decimal.NewFromInt(-1)), "excess quantity opens a short")
	assert.True(t, position.AveragePrice().Equal(decimal.NewFromInt(110)), "short basis is the flip price")
	assert.True(t, position.RealizedPnL.Equal(decimal.NewFromInt(10)))

	require.NoError(t, p.SampleEquity(testStart.Add(2*time.Minute)))
}

func TestShortCoverRealizesInverse(t *testing.T) {
	p := NewPortfolio(decimal.NewFromInt(100000), decimal.Zero)

	p.ApplyFill(fillAt(models.OrderSideSell, "2", "100", "0", 0))
	p.ApplyFill(fillAt(models.OrderSideBuy, "2", "90", "0", 1))

	position := p.Position("BTC_KRW")
	assert.True(t, position.IsFlat())
	assert.True(t, position.RealizedPnL.Equal(decimal.NewFromInt(20)), "covering below entry profits a short")

	require.NoError(t, p.SampleEquity(testStart.Add(2*time.Minute)))
}

func TestCommissionReducesCashAndEquity(t *testing.T) {
	p := NewPortfolio(decimal.NewFromInt(100000), decimal.RequireFromString("0.0025"))

	p.ApplyFill(fillAt(models.OrderSideBuy, "1", "10000", "25", 0))
	assert.True(t, p.Cash().Equal(decimal.NewFromInt(100000-10000-25)))
	assert.True(t, p.TotalCommission().Equal(decimal.NewFromInt(25)))

	require.NoError(t, p.SampleEquity(testStart.Add(time.Minute)))
	curve := p.EquityCurve()
	require.Len(t, curve, 1)
	assert.True(t, curve[0].Equity.Equal(decimal.NewFromInt(100000-25)))
}

func TestBuyingPowerIncludesCommission(t *testing.T) {
	p := NewPortfolio(decimal.NewFromInt(10025), decimal.RequireFromString("0.0025"))
	power := p.BuyingPower(decimal.NewFromInt(100))
	assert.True(t, power.Equal(decimal.NewFromInt(100)), "got %s", power)
}

func TestDrawdownTracksRunningPeak(t *testing.T) {
	p := NewPortfolio(decimal.NewFromInt(1000), decimal.Zero)
	p.ApplyFill(fillAt(models.OrderSideBuy, "10", "100", "0", 0))

	for i, price := range []int64{120, 90, 130} {
		p.UpdateMark("BTC_KRW", decimal.NewFromInt(price), testStart.Add(time.Duration(i+1)*time.Minute))
		require.NoError(t, p.SampleEquity(testStart.Add(time.Duration(i+1)*time.Minute)))
	}

	// Equity: 1200, 900, 1300. Peak 1200 before the trough: -25%.
	assert.True(t, p.MaxDrawdown().Equal(decimal.NewFromInt(-25)), "got %s", p.MaxDrawdown())
	curve := p.EquityCurve()
	assert.True(t, curve[2].Drawdown.IsZero(), "new peak resets drawdown")
}

// Any fill sequence must keep the ledger identity exact: cash plus marked
// positions equals initial capital plus realized and unrealized PnL minus
// commission, with no rounding drift.
func TestPropertyLedgerReconcilesUnderRandomFills(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	fillGen := gopter.CombineGens(
		gen.Bool(),
		gen.Float64Range(0.001, 50),
		gen.Float64Range(1, 100000),
	).Map(func(values []interface{}) FillEvent {
		side := models.OrderSideBuy
		if values[0].(bool) {
			side = models.OrderSideSell
		}
		qty := decimal.NewFromFloat(values[1].(float64))
		price := decimal.NewFromFloat(values[2].(float64))
		return FillEvent{
			Symbol:     "BTC_KRW",
			Side:       side,
			Quantity:   qty,
			FillPrice:  price,
			Commission: qty.Mul(price).Mul(decimal.RequireFromString("0.0025")),
		}
	})

	properties.Property("equity reconciles after every fill", prop.ForAll(
		func(fills []FillEvent) bool {
			p := NewPortfolio(decimal.NewFromInt(10000000), decimal.RequireFromString("0.0025"))
			for i, fill := range fills {
				fill.At = testStart.Add(time.Duration(i) * time.Minute)
				p.ApplyFill(fill)
				if err := p.SampleEquity(fill.At); err != nil {
					return false
				}
			}
			return true
		},
		gen.SliceOf(fillGen),
	))

	properties.TestingRun(t)
}

func TestSampleEquityRejectsCorruptLedger(t *testing.T) {
	p := NewPortfolio(decimal.NewFromInt(1000), decimal.Zero)
	p.ApplyFill(fillAt(models.OrderSideBuy, "1", "100", "0", 0))

	// Corrupt the cash balance behind the ledger's back.
	p.cash = p.cash.Add(decimal.NewFromInt(1))

	err := p.SampleEquity(testStart.Add(time.Minute))
	require.Error(t, err)
	var ledgerErr *apperrors.LedgerError
	assert.ErrorAs(t, err, &ledgerErr)
}
