// Package models provides domain models for the trading application.
package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BaseAsset extracts the base currency from a BTC_KRW style symbol. Venue
// balances are keyed by currency, not by market symbol.
func BaseAsset(symbol string) string {
	if i := strings.Index(symbol, "_"); i > 0 {
		return symbol[:i]
	}
	return symbol
}

// SignalType represents the kind of trading signal.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket       OrderType = "MARKET"
	OrderTypeLimit        OrderType = "LIMIT"
	OrderTypeStop         OrderType = "STOP"
	OrderTypeStopLimit    OrderType = "STOP_LIMIT"
	OrderTypeTrailingStop OrderType = "TRAILING_STOP"
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusSubmitted       OrderStatus = "SUBMITTED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
	OrderStatusFailed          OrderStatus = "FAILED"
)

// IsTerminal reports whether no further transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired, OrderStatusFailed:
		return true
	}
	return false
}

// IsCancellable reports whether a cancel request is accepted in this state.
func (s OrderStatus) IsCancellable() bool {
	return s == OrderStatusPending || s == OrderStatusSubmitted
}

// TimeInForce represents how long an order remains active.
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"
	TimeInForceDay TimeInForce = "DAY"
)

// OrderPriority orders queued requests; higher values execute first.
type OrderPriority int

const (
	PriorityLow    OrderPriority = 1
	PriorityNormal OrderPriority = 2
	PriorityHigh   OrderPriority = 3
	PriorityUrgent OrderPriority = 4
)

// Candle represents OHLCV data for a time period. Immutable once built.
type Candle struct {
	Symbol    string
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// ParseCandle builds a Candle from the venue's raw array payload:
// [timestamp_ms, open, close, high, low, volume].
func ParseCandle(symbol string, payload []string) (Candle, error) {
	if len(payload) < 6 {
		return Candle{}, fmt.Errorf("candle payload needs 6 fields, got %d", len(payload))
	}
	ms, err := decimal.NewFromString(payload[0])
	if err != nil {
		return Candle{}, fmt.Errorf("parsing candle timestamp: %w", err)
	}
	fields := make([]decimal.Decimal, 5)
	for i, raw := range payload[1:6] {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return Candle{}, fmt.Errorf("parsing candle field %d: %w", i+1, err)
		}
		fields[i] = d
	}
	return Candle{
		Symbol:    symbol,
		Timestamp: time.UnixMilli(ms.IntPart()).UTC(),
		Open:      fields[0],
		Close:     fields[1],
		High:      fields[2],
		Low:       fields[3],
		Volume:    fields[4],
	}, nil
}

// CandleSeries is a time-ordered, deduplicated candle collection for one
// symbol. Timestamps are strictly increasing.
type CandleSeries struct {
	symbol  string
	candles []Candle
}

// NewCandleSeries creates a series for the given symbol.
func NewCandleSeries(symbol string, candles ...Candle) (*CandleSeries, error) {
	s := &CandleSeries{symbol: symbol}
	for _, c := range candles {
		if err := s.Append(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Symbol returns the symbol all candles in the series belong to.
func (s *CandleSeries) Symbol() string { return s.symbol }

// Append inserts a candle keeping timestamp order. Candles for other
// symbols are rejected; a candle with a duplicate timestamp replaces the
// existing one.
func (s *CandleSeries) Append(c Candle) error {
	if c.Symbol != s.symbol {
		return fmt.Errorf("candle symbol %s does not match series symbol %s", c.Symbol, s.symbol)
	}
	i := sort.Search(len(s.candles), func(i int) bool {
		return !s.candles[i].Timestamp.Before(c.Timestamp)
	})
	if i < len(s.candles) && s.candles[i].Timestamp.Equal(c.Timestamp) {
		s.candles[i] = c
		return nil
	}
	s.candles = append(s.candles, Candle{})
	copy(s.candles[i+1:], s.candles[i:])
	s.candles[i] = c
	return nil
}

// Candles returns the ordered candles. The returned slice must not be
// mutated by the caller.
func (s *CandleSeries) Candles() []Candle { return s.candles }

// Tail returns the last n candles (fewer if the series is shorter).
func (s *CandleSeries) Tail(n int) []Candle {
	if n >= len(s.candles) {
		return s.candles
	}
	return s.candles[len(s.candles)-n:]
}

// Len returns the number of candles in the series.
func (s *CandleSeries) Len() int { return len(s.candles) }
