package strategy

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bithumb-trader/internal/models"
)

// RiskManager sizes positions and determines protective levels. It is
// purely computational; all I/O and clocks live in callers.
type RiskManager struct {
	mu     sync.RWMutex
	params Parameters
	logger zerolog.Logger
}

// NewRiskManager creates a risk manager with the given parameters.
func NewRiskManager(params Parameters, logger zerolog.Logger) (*RiskManager, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &RiskManager{params: params, logger: logger}, nil
}

// Parameters returns the active parameter set.
func (r *RiskManager) Parameters() Parameters {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.params
}

// UpdateParameters swaps in a new parameter set after validation. The
// previous set stays in effect when validation fails.
func (r *RiskManager) UpdateParameters(params Parameters) error {
	if err := params.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.params = params
	r.mu.Unlock()
	return nil
}

// CanOpenNewPosition reports whether the concurrent-position limit allows
// another entry.
func (r *RiskManager) CanOpenNewPosition(portfolio *models.PortfolioState) bool {
	return portfolio.OpenPositions() < r.Parameters().MaxConcurrentPositions
}

// CorrelationScore returns open positions over the concurrent limit, a
// crude crowding proxy in [0, 1].
func (r *RiskManager) CorrelationScore(portfolio *models.PortfolioState) decimal.Decimal {
	open := portfolio.OpenPositions()
	if open == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(open)).Div(decimal.NewFromInt(int64(r.Parameters().MaxConcurrentPositions)))
}

// CalculatePositionSize returns the quantity for a new entry using
// risk-budget sizing: the allocation (min of capital cap, risk cap, and
// Kelly amount) divided by the per-unit risk (larger of the stop-loss
// distance and the ATR component).
func (r *RiskManager) CalculatePositionSize(equity, price decimal.Decimal, atr *decimal.Decimal) decimal.Decimal {
	params := r.Parameters()
	one := decimal.NewFromInt(1)

	kellyFraction := params.KellyWinRate.Sub(one.Sub(params.KellyWinRate).Div(params.KellyRewardRisk))
	if kellyFraction.IsNegative() {
		kellyFraction = decimal.Zero
	}
	kellyAmount := equity.Mul(kellyFraction)
	riskCap := equity.Mul(params.MaxRiskPerTrade)
	capitalCap := equity.Mul(params.CapitalAllocationPerPosition)

	allocation := capitalCap
	if riskCap.LessThan(allocation) {
		allocation = riskCap
	}
	if kellyAmount.IsPositive() && kellyAmount.LessThan(allocation) {
		allocation = kellyAmount
	}
	if !allocation.IsPositive() {
		return decimal.Zero
	}

	atrComponent := decimal.Zero
	if atr != nil {
		atrComponent = atr.Mul(params.ATRMultiplier)
	}
	unitRisk := price.Mul(params.StopLossPct)
	if atrComponent.GreaterThan(unitRisk) {
		unitRisk = atrComponent
	}
	if unitRisk.IsZero() {
		return decimal.Zero
	}
	return allocation.Div(unitRisk)
}

// StopLevels returns (stopLoss, takeProfit, trailingStop, partialTakeProfit)
// anchored to the position's average price for exits and to the current
// price for new entries. Trailing stop is nil without an ATR component.
func (r *RiskManager) StopLevels(price decimal.Decimal, atr *decimal.Decimal, position *models.PortfolioPosition) (stopLoss, takeProfit, trailingStop, partialTakeProfit *decimal.Decimal) {
	params := r.Parameters()

	anchor := price
	if position != nil {
		anchor = position.AveragePrice
	}
	atrComponent, trailingComponent := decimal.Zero, decimal.Zero
	if atr != nil {
		atrComponent = atr.Mul(params.ATRMultiplier)
		trailingComponent = atr.Mul(params.TrailingATRMultiplier)
	}

	stopDistance := anchor.Mul(params.StopLossPct)
	if atrComponent.GreaterThan(stopDistance) {
		stopDistance = atrComponent
	}
	sl := anchor.Sub(stopDistance)
	tp := anchor.Add(anchor.Mul(params.TargetProfitPct))
	ptp := anchor.Add(anchor.Mul(params.PartialTakeProfitPct))

	stopLoss, takeProfit, partialTakeProfit = &sl, &tp, &ptp
	if trailingComponent.IsPositive() {
		ts := price.Sub(trailingComponent)
		trailingStop = &ts
	}
	return stopLoss, takeProfit, trailingStop, partialTakeProfit
}

// Assess turns a decision into a sized, protected trade or a zero-quantity
// refusal when risk limits block it.
func (r *RiskManager) Assess(symbol string, signal models.SignalType, equity, price decimal.Decimal, atr *decimal.Decimal, portfolio *models.PortfolioState) models.RiskAssessment {
	params := r.Parameters()

	if signal == models.SignalBuy {
		if !r.CanOpenNewPosition(portfolio) {
			r.logger.Info().
				Int("limit", params.MaxConcurrentPositions).
				Msg("Entry refused, position limit reached")
			return models.RiskAssessment{}
		}
		crowding := r.CorrelationScore(portfolio)
		if crowding.GreaterThanOrEqual(params.CorrelationThreshold) {
			r.logger.Info().
				Str("score", crowding.String()).
				Str("threshold", params.CorrelationThreshold.String()).
				Msg("Entry refused, crowding limit reached")
			return models.RiskAssessment{}
		}

		quantity := r.CalculatePositionSize(equity, price, atr)
		stopLoss, takeProfit, trailingStop, partialTakeProfit := r.StopLevels(price, atr, nil)
		return models.RiskAssessment{
			Quantity:          quantity,
			Notional:          quantity.Mul(price),
			RiskAmount:        quantity.Mul(price).Mul(params.StopLossPct),
			StopLoss:          stopLoss,
			TakeProfit:        takeProfit,
			TrailingStop:      trailingStop,
			PartialTakeProfit: partialTakeProfit,
		}
	}

	position := portfolio.Get(symbol)
	if position == nil {
		r.logger.Warn().Str("symbol", symbol).Msg("Exit signal without an open position")
		return models.RiskAssessment{}
	}

	stopLoss, takeProfit, trailingStop, partialTakeProfit := r.StopLevels(price, atr, position)
	riskAmount := decimal.Zero
	if stopLoss != nil {
		if d := position.AveragePrice.Sub(*stopLoss); d.IsPositive() {
			riskAmount = position.Quantity.Mul(d)
		}
	}
	return models.RiskAssessment{
		Quantity:          position.Quantity,
		Notional:          position.Quantity.Mul(price),
		RiskAmount:        riskAmount,
		StopLoss:          stopLoss,
		TakeProfit:        takeProfit,
		TrailingStop:      trailingStop,
		PartialTakeProfit: partialTakeProfit,
	}
}
