package exchange

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "bithumb-trader/internal/errors"
	"bithumb-trader/internal/models"
)

func newPaper() *PaperGateway {
	g := NewPaperGateway(PaperConfig{
		QuoteAsset:     "KRW",
		InitialBalance: decimal.NewFromInt(10000000),
		CommissionRate: decimal.RequireFromString("0.0025"),
	})
	g.SetPrice("BTC_KRW", decimal.NewFromInt(50000))
	return g
}

func balanceOf(t *testing.T, g *PaperGateway, currency string) decimal.Decimal {
	t.Helper()
	accounts, err := g.GetAccounts(context.Background())
	require.NoError(t, err)
	for _, acc := range accounts {
		if acc.Currency == currency {
			return acc.Available
		}
	}
	return decimal.Zero
}

func TestFilledBuyCreditsBaseCurrency(t *testing.T) {
	g := newPaper()

	result, err := g.PlaceOrder(context.Background(), models.OrderRequest{
		Symbol:   "BTC_KRW",
		Side:     models.OrderSideBuy,
		Type:     models.OrderTypeMarket,
		Quantity: decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusFilled, result.Status)

	// Holdings land under the currency, the way the venue reports balances.
	assert.True(t, balanceOf(t, g, "BTC").Equal(decimal.NewFromInt(10)))
	assert.True(t, balanceOf(t, g, "BTC_KRW").IsZero())
}

func TestBuyThenSellMovesBalancesBothWays(t *testing.T) {
	g := newPaper()
	ctx := context.Background()

	_, err := g.PlaceOrder(ctx, models.OrderRequest{
		Symbol:   "BTC_KRW",
		Side:     models.OrderSideBuy,
		Type:     models.OrderTypeMarket,
		Quantity: decimal.NewFromInt(4),
	})
	require.NoError(t, err)

	result, err := g.PlaceOrder(ctx, models.OrderRequest{
		Symbol:   "BTC_KRW",
		Side:     models.OrderSideSell,
		Type:     models.OrderTypeMarket,
		Quantity: decimal.NewFromInt(4),
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFilled, result.Status)
	assert.True(t, balanceOf(t, g, "BTC").IsZero())

	// 10,000,000 minus commission on 200,000 notional each way.
	expected := decimal.NewFromInt(10000000).Sub(decimal.NewFromInt(1000))
	assert.True(t, balanceOf(t, g, "KRW").Equal(expected),
		"got %s", balanceOf(t, g, "KRW"))
}

func TestSellWithoutHoldingsRejected(t *testing.T) {
	g := newPaper()

	_, err := g.PlaceOrder(context.Background(), models.OrderRequest{
		Symbol:   "BTC_KRW",
		Side:     models.OrderSideSell,
		Type:     models.OrderTypeMarket,
		Quantity: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientHoldings)
}
