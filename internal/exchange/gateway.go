// Package exchange provides the venue gateway interface and implementations.
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"bithumb-trader/internal/models"
)

// Ticker is a point-in-time price snapshot for one symbol.
type Ticker struct {
	Symbol    string
	Price     decimal.Decimal
	High24h   decimal.Decimal
	Low24h    decimal.Decimal
	Volume24h decimal.Decimal
	Timestamp time.Time
}

// Account is one asset balance as reported by the venue.
type Account struct {
	Currency  string
	Balance   decimal.Decimal // total
	Locked    decimal.Decimal // tied up in open orders
	Available decimal.Decimal // balance minus locked
}

// OrderFilter narrows a GetOrders query. Zero values match everything.
type OrderFilter struct {
	Symbol string
	Status models.OrderStatus
	Since  time.Time
}

// Gateway defines the venue operations the core depends on. Every call is
// fallible; callers classify failures via the errors package helpers.
type Gateway interface {
	// Market data
	GetTicker(ctx context.Context, symbol string) (*Ticker, error)
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error)

	// Account
	GetAccounts(ctx context.Context) ([]Account, error)

	// Orders
	PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	GetOrders(ctx context.Context, filter OrderFilter) ([]models.OrderResult, error)
}
