package strategy

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bithumb-trader/internal/analysis/indicators"
	apperrors "bithumb-trader/internal/errors"
	"bithumb-trader/internal/models"
)

const sellTriggerCount = 5

// SignalGenerator produces BUY/SELL/HOLD decisions from candle data. Each
// evaluation is a pure function of (candles, portfolio, parameters); no
// state carries between calls apart from the indicator cache.
type SignalGenerator struct {
	indicators *indicators.Engine
	logger     zerolog.Logger
}

// NewSignalGenerator creates a signal generator with its own indicator cache.
func NewSignalGenerator(logger zerolog.Logger) *SignalGenerator {
	return &SignalGenerator{
		indicators: indicators.NewEngine(indicators.DefaultCacheSize),
		logger:     logger,
	}
}

type indicatorSet struct {
	emaShort  decimal.Decimal
	emaLong   decimal.Decimal
	prevShort decimal.Decimal
	prevLong  decimal.Decimal
	hasPrev   bool
	rsi       decimal.Decimal
	atr       decimal.Decimal
	volRatio  decimal.Decimal
}

// Generate evaluates the latest candle and returns a decision. Insufficient
// candle history degrades to HOLD with nil indicator fields; only an empty
// series is an error.
func (g *SignalGenerator) Generate(symbol string, candles []models.Candle, portfolio *models.PortfolioState, params Parameters) (models.SignalDecision, error) {
	if len(candles) == 0 {
		return models.SignalDecision{}, apperrors.NewValidationError("candles", len(candles), "candle data is required")
	}
	price := candles[len(candles)-1].Close
	timestamp := candles[len(candles)-1].Timestamp

	set, err := g.computeIndicators(symbol, candles, params)
	if err != nil {
		if errors.Is(err, apperrors.ErrInsufficientData) {
			g.logger.Debug().Str("symbol", symbol).Err(err).Msg("Indicators not ready, holding")
			return hold(symbol, price, timestamp, nil, nil, nil), nil
		}
		return models.SignalDecision{}, err
	}

	if position := portfolio.Get(symbol); position != nil {
		return g.evaluateSell(symbol, price, timestamp, set, position.AveragePrice, params, candles), nil
	}
	return g.evaluateBuy(symbol, price, timestamp, set, params), nil
}

func (g *SignalGenerator) computeIndicators(symbol string, candles []models.Candle, params Parameters) (indicatorSet, error) {
	var set indicatorSet
	var err error

	if set.emaShort, err = g.indicators.EMA(symbol, candles, params.ShortEMAPeriod); err != nil {
		return set, err
	}
	if set.emaLong, err = g.indicators.EMA(symbol, candles, params.LongEMAPeriod); err != nil {
		return set, err
	}
	prevShort, okShort := g.indicators.PreviousEMA(candles, params.ShortEMAPeriod)
	prevLong, okLong := g.indicators.PreviousEMA(candles, params.LongEMAPeriod)
	set.prevShort, set.prevLong = prevShort, prevLong
	set.hasPrev = okShort && okLong

	if set.rsi, err = g.indicators.RSI(symbol, candles, params.RSIPeriod); err != nil {
		return set, err
	}
	if set.atr, err = g.indicators.ATR(symbol, candles, params.ATRPeriod); err != nil {
		return set, err
	}
	if set.volRatio, err = g.indicators.VolumeRatio(symbol, candles, params.VolumeMAPeriod); err != nil {
		return set, err
	}
	return set, nil
}

func (g *SignalGenerator) evaluateBuy(symbol string, price decimal.Decimal, timestamp time.Time, set indicatorSet, params Parameters) models.SignalDecision {
	var reasons []string

	goldenCross := set.hasPrev &&
		set.prevShort.LessThanOrEqual(set.prevLong) &&
		set.emaShort.GreaterThan(set.emaLong)
	if goldenCross {
		reasons = append(reasons, "EMA golden cross")
	}

	rsiOK := set.rsi.GreaterThanOrEqual(params.RSIBuyMin) && set.rsi.LessThanOrEqual(params.RSIBuyMax)
	if rsiOK {
		reasons = append(reasons, "RSI within buy band")
	}

	volumeOK := set.volRatio.GreaterThanOrEqual(params.VolumeRatioThreshold)
	if volumeOK {
		reasons = append(reasons, "volume surge confirmed")
	}

	if !(goldenCross && rsiOK && volumeOK) {
		return hold(symbol, price, timestamp, &set.rsi, &set.atr, &set.volRatio)
	}

	// Strength: mean of EMA spread ratio, RSI position in the buy band,
	// and volume ratio capped at twice the threshold.
	spread := set.emaShort.Sub(set.emaLong).Div(set.emaLong)
	band := params.RSIBuyMax.Sub(params.RSIBuyMin)
	rsiPos := set.rsi.Sub(params.RSIBuyMin).Div(band)
	volComponent := set.volRatio.Div(params.VolumeRatioThreshold)
	if limit := decimal.NewFromInt(2); volComponent.GreaterThan(limit) {
		volComponent = limit
	}
	strength := spread.Add(rsiPos).Add(volComponent).Div(decimal.NewFromInt(3))

	return buildDecision(symbol, models.SignalBuy, price, strength, &set.rsi, &set.atr, &set.volRatio, reasons, timestamp)
}

func (g *SignalGenerator) evaluateSell(symbol string, price decimal.Decimal, timestamp time.Time, set indicatorSet, positionAvg decimal.Decimal, params Parameters, candles []models.Candle) models.SignalDecision {
	var reasons []string
	fired := 0

	if set.hasPrev && set.prevShort.GreaterThanOrEqual(set.prevLong) && set.emaShort.LessThan(set.emaLong) {
		fired++
		reasons = append(reasons, "EMA death cross")
	}

	one := decimal.NewFromInt(1)
	if price.GreaterThanOrEqual(positionAvg.Mul(one.Add(params.TargetProfitPct))) {
		fired++
		reasons = append(reasons, "target profit reached")
	}

	if price.LessThanOrEqual(positionAvg.Mul(one.Sub(params.StopLossPct))) {
		fired++
		reasons = append(reasons, "stop loss triggered")
	}

	recentHigh := highestHigh(candles, params.ATRPeriod)
	if price.LessThanOrEqual(recentHigh.Sub(set.atr.Mul(params.TrailingATRMultiplier))) {
		fired++
		reasons = append(reasons, "ATR trailing stop")
	}

	if set.rsi.LessThanOrEqual(params.RSISellThreshold) || set.rsi.GreaterThanOrEqual(params.RSIOverbought) {
		fired++
		reasons = append(reasons, "RSI exit signal")
	}

	if fired == 0 {
		return hold(symbol, price, timestamp, &set.rsi, &set.atr, &set.volRatio)
	}

	strength := decimal.NewFromInt(int64(fired)).Div(decimal.NewFromInt(sellTriggerCount))
	return buildDecision(symbol, models.SignalSell, price, strength, &set.rsi, &set.atr, &set.volRatio, reasons, timestamp)
}

func highestHigh(candles []models.Candle, window int) decimal.Decimal {
	if window > len(candles) {
		window = len(candles)
	}
	high := candles[len(candles)-window].High
	for _, c := range candles[len(candles)-window:] {
		if c.High.GreaterThan(high) {
			high = c.High
		}
	}
	return high
}

func buildDecision(symbol string, signal models.SignalType, price, strength decimal.Decimal, rsi, atr, volRatio *decimal.Decimal, reasons []string, timestamp time.Time) models.SignalDecision {
	one := decimal.NewFromInt(1)
	if strength.GreaterThan(one) {
		strength = one
	}
	if strength.IsNegative() {
		strength = decimal.Zero
	}
	return models.SignalDecision{
		Symbol:      symbol,
		Signal:      signal,
		Price:       price,
		Strength:    strength,
		RSI:         rsi,
		ATR:         atr,
		VolumeRatio: volRatio,
		Reasons:     reasons,
		Timestamp:   timestamp,
	}
}

func hold(symbol string, price decimal.Decimal, timestamp time.Time, rsi, atr, volRatio *decimal.Decimal) models.SignalDecision {
	return buildDecision(symbol, models.SignalHold, price, decimal.Zero, rsi, atr, volRatio, []string{"conditions not met"}, timestamp)
}
