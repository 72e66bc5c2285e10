package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is one executed fill as recorded by the backtest ledger and
// consumed by the performance analyzer.
type Trade struct {
	Symbol     string
	Side       OrderSide
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Commission decimal.Decimal
	Timestamp  time.Time
	FillID     string
}

// GrossAmount returns quantity times price.
func (t Trade) GrossAmount() decimal.Decimal {
	return t.Quantity.Mul(t.Price)
}

// NetAmount returns the cash moved by this trade: cost including
// commission for buys, proceeds net of commission for sells.
func (t Trade) NetAmount() decimal.Decimal {
	if t.Side == OrderSideBuy {
		return t.GrossAmount().Add(t.Commission)
	}
	return t.GrossAmount().Sub(t.Commission)
}

// EquityPoint is one sample of total portfolio value.
type EquityPoint struct {
	Timestamp time.Time
	Equity    decimal.Decimal
	Drawdown  decimal.Decimal // percent vs the running peak, <= 0
}
