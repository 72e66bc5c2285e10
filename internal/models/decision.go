package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalDecision is the write-once outcome of one strategy evaluation.
// Indicator fields are nil when the evaluation degraded to HOLD because
// there was not enough candle history.
type SignalDecision struct {
	Symbol      string
	Signal      SignalType
	Price       decimal.Decimal
	Strength    decimal.Decimal // clamped to [0, 1]
	RSI         *decimal.Decimal
	ATR         *decimal.Decimal
	VolumeRatio *decimal.Decimal
	Reasons     []string
	Timestamp   time.Time
}

// RiskAssessment pairs 1:1 with a non-HOLD SignalDecision. A zero quantity
// means risk limits blocked the trade.
type RiskAssessment struct {
	Quantity          decimal.Decimal
	Notional          decimal.Decimal
	RiskAmount        decimal.Decimal
	StopLoss          *decimal.Decimal
	TakeProfit        *decimal.Decimal
	TrailingStop      *decimal.Decimal
	PartialTakeProfit *decimal.Decimal
}

// Blocked reports whether the assessment refuses the trade.
func (a RiskAssessment) Blocked() bool { return a.Quantity.IsZero() }

// PortfolioPosition is the strategy-facing snapshot of one open holding.
type PortfolioPosition struct {
	Symbol       string
	Quantity     decimal.Decimal
	AveragePrice decimal.Decimal
	EntryTime    time.Time
}

// NotionalValue returns quantity times average entry price.
func (p PortfolioPosition) NotionalValue() decimal.Decimal {
	return p.Quantity.Mul(p.AveragePrice)
}

// PortfolioState is a read-mostly snapshot of open positions keyed by
// symbol, passed into decision calls.
type PortfolioState struct {
	positions map[string]PortfolioPosition
}

// NewPortfolioState builds a snapshot from the given positions.
func NewPortfolioState(positions ...PortfolioPosition) *PortfolioState {
	s := &PortfolioState{positions: make(map[string]PortfolioPosition, len(positions))}
	for _, p := range positions {
		s.positions[p.Symbol] = p
	}
	return s
}

// Get returns the position for symbol, or nil when none is open.
func (s *PortfolioState) Get(symbol string) *PortfolioPosition {
	if s == nil {
		return nil
	}
	if p, ok := s.positions[symbol]; ok {
		return &p
	}
	return nil
}

// OpenPositions returns the number of open positions.
func (s *PortfolioState) OpenPositions() int {
	if s == nil {
		return 0
	}
	return len(s.positions)
}

// All returns every open position.
func (s *PortfolioState) All() []PortfolioPosition {
	if s == nil {
		return nil
	}
	out := make([]PortfolioPosition, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	return out
}
