package models

import (
	"time"

	"github.com/shopspring/decimal"

	apperrors "bithumb-trader/internal/errors"
)

// OrderRequest describes an order to be placed on the venue.
type OrderRequest struct {
	Symbol        string
	Side          OrderSide
	Type          OrderType
	Quantity      decimal.Decimal
	Price         *decimal.Decimal // required for LIMIT and STOP_LIMIT
	StopPrice     *decimal.Decimal // required for stop kinds
	TimeInForce   TimeInForce
	ClientOrderID string

	// Metadata linking the order back to the strategy run.
	StrategyID string
	SignalID   string
	Reason     string
}

// Validate checks the request invariants before it is allowed near the
// scheduler queue.
func (r OrderRequest) Validate() error {
	if r.Symbol == "" {
		return apperrors.NewValidationError("symbol", r.Symbol, "symbol is required")
	}
	if !r.Quantity.IsPositive() {
		return apperrors.NewValidationError("quantity", r.Quantity.String(), "quantity must be positive")
	}
	switch r.Type {
	case OrderTypeLimit, OrderTypeStopLimit:
		if r.Price == nil || !r.Price.IsPositive() {
			return apperrors.NewValidationError("price", nil, string(r.Type)+" orders require a positive price")
		}
	}
	switch r.Type {
	case OrderTypeStop, OrderTypeStopLimit, OrderTypeTrailingStop:
		if r.StopPrice == nil || !r.StopPrice.IsPositive() {
			return apperrors.NewValidationError("stop_price", nil, string(r.Type)+" orders require a positive stop price")
		}
	}
	return nil
}

// OrderResult tracks the venue-side outcome of a request.
type OrderResult struct {
	OrderID       string // venue order id
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	Type          OrderType
	Status        OrderStatus

	OriginalQuantity  decimal.Decimal
	ExecutedQuantity  decimal.Decimal
	RemainingQuantity decimal.Decimal

	Price        *decimal.Decimal
	AveragePrice *decimal.Decimal

	Commission decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time

	ErrorCode    string
	ErrorMessage string
}

// Fill represents a single execution against an order.
type Fill struct {
	FillID     string
	OrderID    string
	Symbol     string
	Side       OrderSide
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Commission decimal.Decimal
	Timestamp  time.Time
	IsMaker    bool
}

// Position is a venue-reconciled holding. It is rebuilt periodically from
// venue balances rather than derived purely from the scheduler's own fills,
// since deposits and manual trades change true holdings.
type Position struct {
	Symbol        string
	Quantity      decimal.Decimal
	AveragePrice  decimal.Decimal
	MarketPrice   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal
	EntryTime     time.Time
	LastUpdated   time.Time
}

// MarketValue returns quantity times the current mark price.
func (p Position) MarketValue() decimal.Decimal {
	return p.Quantity.Mul(p.MarketPrice)
}

// CostBasis returns quantity times the average entry price.
func (p Position) CostBasis() decimal.Decimal {
	return p.Quantity.Mul(p.AveragePrice)
}

// PnLPercent returns unrealized PnL as a percentage of cost basis.
func (p Position) PnLPercent() decimal.Decimal {
	basis := p.CostBasis()
	if basis.IsZero() {
		return decimal.Zero
	}
	return p.UnrealizedPnL.Div(basis).Mul(decimal.NewFromInt(100))
}
