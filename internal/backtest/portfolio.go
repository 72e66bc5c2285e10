package backtest

import (
	"time"

	"github.com/shopspring/decimal"

	apperrors "bithumb-trader/internal/errors"
	"bithumb-trader/internal/models"
)

// Position is one ledger holding. Quantity is signed: positive long,
// negative short. The cost basis is tracked directly rather than derived
// from a rounded average price so the equity identity reconciles exactly.
type Position struct {
	Symbol      string
	Quantity    decimal.Decimal
	Basis       decimal.Decimal // signed: cost paid for longs, negative entry proceeds for shorts
	MarketPrice decimal.Decimal
	RealizedPnL decimal.Decimal // net of commission, for reporting
	LastUpdated time.Time
}

// AveragePrice returns the weighted-average entry price, zero when flat.
func (p *Position) AveragePrice() decimal.Decimal {
	if p.Quantity.IsZero() {
		return decimal.Zero
	}
	return p.Basis.Div(p.Quantity).Abs()
}

// MarketValue returns signed quantity times the mark price.
func (p *Position) MarketValue() decimal.Decimal {
	return p.Quantity.Mul(p.MarketPrice)
}

// UnrealizedPnL returns mark value minus basis.
func (p *Position) UnrealizedPnL() decimal.Decimal {
	if p.Quantity.IsZero() {
		return decimal.Zero
	}
	return p.MarketValue().Sub(p.Basis)
}

// IsLong reports a positive quantity.
func (p *Position) IsLong() bool { return p.Quantity.IsPositive() }

// IsShort reports a negative quantity.
func (p *Position) IsShort() bool { return p.Quantity.IsNegative() }

// IsFlat reports a zero quantity.
func (p *Position) IsFlat() bool { return p.Quantity.IsZero() }

// Portfolio is the backtest ledger: cash, positions, trades, and the
// sampled equity curve. Single writer; the event loop owns it.
type Portfolio struct {
	initialCapital decimal.Decimal
	commissionRate decimal.Decimal

	cash      decimal.Decimal
	positions map[string]*Position

	trades      []models.Trade
	equityCurve []models.EquityPoint
	peakEquity  decimal.Decimal

	realizedGross   decimal.Decimal // realized PnL before commission
	totalCommission decimal.Decimal
}

// NewPortfolio creates a ledger seeded with the initial capital.
func NewPortfolio(initialCapital, commissionRate decimal.Decimal) *Portfolio {
	return &Portfolio{
		initialCapital: initialCapital,
		commissionRate: commissionRate,
		cash:           initialCapital,
		positions:      make(map[string]*Position),
		peakEquity:     initialCapital,
	}
}

// ApplyFill moves cash and position state for one execution.
func (p *Portfolio) ApplyFill(fill FillEvent) {
	position, ok := p.positions[fill.Symbol]
	if !ok {
		position = &Position{Symbol: fill.Symbol, MarketPrice: fill.FillPrice}
		p.positions[fill.Symbol] = position
	}

	p.applyToPosition(position, fill)

	notional := fill.Quantity.Mul(fill.FillPrice)
	if fill.Side == models.OrderSideBuy {
		p.cash = p.cash.Sub(notional).Sub(fill.Commission)
	} else {
		p.cash = p.cash.Add(notional).Sub(fill.Commission)
	}
	p.totalCommission = p.totalCommission.Add(fill.Commission)

	p.trades = append(p.trades, models.Trade{
		Symbol:     fill.Symbol,
		Side:       fill.Side,
		Quantity:   fill.Quantity,
		Price:      fill.FillPrice,
		Commission: fill.Commission,
		Timestamp:  fill.At,
		FillID:     fill.FillID,
	})
	position.LastUpdated = fill.At
}

// applyToPosition updates quantity, basis, and realized PnL. Fills that
// reverse an existing position first close it, then open the remainder in
// the new direction at the fill price.
func (p *Portfolio) applyToPosition(position *Position, fill FillEvent) {
	signedQty := fill.Quantity
	if fill.Side == models.OrderSideSell {
		signedQty = signedQty.Neg()
	}

	remaining := fill.Quantity
	closable := decimal.Zero
	opposing := (position.IsLong() && fill.Side == models.OrderSideSell) ||
		(position.IsShort() && fill.Side == models.OrderSideBuy)
	if opposing {
		closable = decimal.Min(position.Quantity.Abs(), fill.Quantity)
	}

	if closable.IsPositive() {
		// Release basis proportionally; a full close releases it exactly.
		var released decimal.Decimal
		if closable.Equal(position.Quantity.Abs()) {
			released = position.Basis
		} else {
			released = position.Basis.Mul(closable).Div(position.Quantity.Abs())
		}

		closeNotional := closable.Mul(fill.FillPrice)
		var gross decimal.Decimal
		if fill.Side == models.OrderSideSell {
			gross = closeNotional.Sub(released) // closing a long
		} else {
			gross = closeNotional.Neg().Sub(released) // covering a short
		}
		p.realizedGross = p.realizedGross.Add(gross)
		position.RealizedPnL = position.RealizedPnL.Add(gross.Sub(fill.Commission))

		if fill.Side == models.OrderSideSell {
			position.Quantity = position.Quantity.Sub(closable)
		} else {
			position.Quantity = position.Quantity.Add(closable)
		}
		position.Basis = position.Basis.Sub(released)
		remaining = remaining.Sub(closable)
	}

	if remaining.IsPositive() {
		// Extend (or open) in the fill's direction at the fill price.
		signedRemaining := remaining
		if fill.Side == models.OrderSideSell {
			signedRemaining = signedRemaining.Neg()
		}
		position.Quantity = position.Quantity.Add(signedRemaining)
		position.Basis = position.Basis.Add(signedRemaining.Mul(fill.FillPrice))
	}

	position.MarketPrice = fill.FillPrice
}

// UpdateMark updates the mark price for a symbol.
func (p *Portfolio) UpdateMark(symbol string, price decimal.Decimal, at time.Time) {
	if position, ok := p.positions[symbol]; ok {
		position.MarketPrice = price
		position.LastUpdated = at
	}
}

// TotalEquity returns cash plus the marked value of all positions.
func (p *Portfolio) TotalEquity() decimal.Decimal {
	equity := p.cash
	for _, position := range p.positions {
		if !position.IsFlat() {
			equity = equity.Add(position.MarketValue())
		}
	}
	return equity
}

// SampleEquity appends one equity curve point and verifies the ledger
// identity: cash plus marked positions must equal the initial capital
// plus realized and unrealized PnL minus commission, exactly. A mismatch
// means the ledger is corrupt and the run must abort.
func (p *Portfolio) SampleEquity(at time.Time) error {
	actual := p.TotalEquity()

	expected := p.initialCapital.Add(p.realizedGross).Sub(p.totalCommission)
	for _, position := range p.positions {
		if !position.IsFlat() {
			expected = expected.Add(position.UnrealizedPnL())
		}
	}
	if !actual.Equal(expected) {
		return apperrors.NewLedgerError(expected.String(), actual.String(), at.Format(time.RFC3339))
	}

	if actual.GreaterThan(p.peakEquity) {
		p.peakEquity = actual
	}
	drawdown := decimal.Zero
	if p.peakEquity.IsPositive() {
		drawdown = actual.Sub(p.peakEquity).Div(p.peakEquity).Mul(decimal.NewFromInt(100))
	}
	p.equityCurve = append(p.equityCurve, models.EquityPoint{
		Timestamp: at,
		Equity:    actual,
		Drawdown:  drawdown,
	})
	return nil
}

// BuyingPower returns the maximum quantity affordable at the given price
// with commission included.
func (p *Portfolio) BuyingPower(price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	denom := price.Mul(decimal.NewFromInt(1).Add(p.commissionRate))
	return p.cash.Div(denom)
}

// CanSell reports whether the symbol holds at least the given quantity.
func (p *Portfolio) CanSell(symbol string, quantity decimal.Decimal) bool {
	position, ok := p.positions[symbol]
	return ok && position.Quantity.GreaterThanOrEqual(quantity)
}

// Cash returns the current cash balance.
func (p *Portfolio) Cash() decimal.Decimal { return p.cash }

// Position returns the ledger position for a symbol, or nil.
func (p *Portfolio) Position(symbol string) *Position {
	return p.positions[symbol]
}

// Trades returns the recorded trade list.
func (p *Portfolio) Trades() []models.Trade { return p.trades }

// EquityCurve returns the sampled equity points.
func (p *Portfolio) EquityCurve() []models.EquityPoint { return p.equityCurve }

// TotalCommission returns cumulative commission paid.
func (p *Portfolio) TotalCommission() decimal.Decimal { return p.totalCommission }

// MaxDrawdown returns the most negative drawdown percentage sampled.
func (p *Portfolio) MaxDrawdown() decimal.Decimal {
	max := decimal.Zero
	for _, point := range p.equityCurve {
		if point.Drawdown.LessThan(max) {
			max = point.Drawdown
		}
	}
	return max
}

// Summary is the end-of-run portfolio snapshot.
type Summary struct {
	InitialCapital  decimal.Decimal
	FinalEquity     decimal.Decimal
	Cash            decimal.Decimal
	TotalReturnPct  decimal.Decimal
	RealizedPnL     decimal.Decimal
	UnrealizedPnL   decimal.Decimal
	TotalCommission decimal.Decimal
	ActivePositions int
	TotalTrades     int
}

// Summarize builds the end-of-run snapshot.
func (p *Portfolio) Summarize() Summary {
	equity := p.TotalEquity()
	s := Summary{
		InitialCapital:  p.initialCapital,
		FinalEquity:     equity,
		Cash:            p.cash,
		TotalCommission: p.totalCommission,
		TotalTrades:     len(p.trades),
	}
	if p.initialCapital.IsPositive() {
		s.TotalReturnPct = equity.Sub(p.initialCapital).Div(p.initialCapital).Mul(decimal.NewFromInt(100))
	}
	for _, position := range p.positions {
		s.RealizedPnL = s.RealizedPnL.Add(position.RealizedPnL)
		if !position.IsFlat() {
			s.UnrealizedPnL = s.UnrealizedPnL.Add(position.UnrealizedPnL())
			s.ActivePositions++
		}
	}
	return s
}
