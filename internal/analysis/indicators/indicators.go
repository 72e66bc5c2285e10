// Package indicators provides technical indicator calculations on candle
// series using fixed-precision decimal arithmetic.
package indicators

import (
	"github.com/shopspring/decimal"

	apperrors "bithumb-trader/internal/errors"
	"bithumb-trader/internal/models"
)

var (
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

// EMA calculates the exponential moving average of closing prices at the
// last candle. The seed is the simple average of the first period closes;
// the multiplier 2/(period+1) is applied incrementally over the remainder.
func EMA(candles []models.Candle, period int) (decimal.Decimal, error) {
	if len(candles) < period {
		return decimal.Zero, apperrors.NewInsufficientDataError("EMA", period, len(candles))
	}
	sum := decimal.Zero
	for _, c := range candles[:period] {
		sum = sum.Add(c.Close)
	}
	periodDec := decimal.NewFromInt(int64(period))
	ema := sum.Div(periodDec)
	multiplier := two.Div(periodDec.Add(decimal.NewFromInt(1)))
	for _, c := range candles[period:] {
		ema = c.Close.Sub(ema).Mul(multiplier).Add(ema)
	}
	return ema, nil
}

// RSI calculates the relative strength index at the last candle using
// Wilder's smoothing. Returns 100 when no losses occurred in the window.
func RSI(candles []models.Candle, period int) (decimal.Decimal, error) {
	if len(candles) < period+1 {
		return decimal.Zero, apperrors.NewInsufficientDataError("RSI", period+1, len(candles))
	}
	periodDec := decimal.NewFromInt(int64(period))

	gainSum, lossSum := decimal.Zero, decimal.Zero
	for i := 1; i <= period; i++ {
		change := candles[i].Close.Sub(candles[i-1].Close)
		if change.IsPositive() {
			gainSum = gainSum.Add(change)
		} else {
			lossSum = lossSum.Sub(change)
		}
	}
	avgGain := gainSum.Div(periodDec)
	avgLoss := lossSum.Div(periodDec)

	smoothing := periodDec.Sub(decimal.NewFromInt(1))
	for i := period + 1; i < len(candles); i++ {
		change := candles[i].Close.Sub(candles[i-1].Close)
		gain, loss := decimal.Zero, decimal.Zero
		if change.IsPositive() {
			gain = change
		} else {
			loss = change.Neg()
		}
		avgGain = avgGain.Mul(smoothing).Add(gain).Div(periodDec)
		avgLoss = avgLoss.Mul(smoothing).Add(loss).Div(periodDec)
	}

	if avgLoss.IsZero() {
		return hundred, nil
	}
	rs := avgGain.Div(avgLoss)
	return hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs))), nil
}

// ATR calculates the average true range at the last candle, Wilder-smoothed
// the same way as RSI's averages.
func ATR(candles []models.Candle, period int) (decimal.Decimal, error) {
	if len(candles) < period+1 {
		return decimal.Zero, apperrors.NewInsufficientDataError("ATR", period+1, len(candles))
	}
	trueRanges := make([]decimal.Decimal, 0, len(candles)-1)
	prevClose := candles[0].Close
	for _, c := range candles[1:] {
		tr := c.High.Sub(c.Low)
		if hc := c.High.Sub(prevClose).Abs(); hc.GreaterThan(tr) {
			tr = hc
		}
		if lc := c.Low.Sub(prevClose).Abs(); lc.GreaterThan(tr) {
			tr = lc
		}
		trueRanges = append(trueRanges, tr)
		prevClose = c.Close
	}

	periodDec := decimal.NewFromInt(int64(period))
	sum := decimal.Zero
	for _, tr := range trueRanges[:period] {
		sum = sum.Add(tr)
	}
	atr := sum.Div(periodDec)
	smoothing := periodDec.Sub(decimal.NewFromInt(1))
	for _, tr := range trueRanges[period:] {
		atr = atr.Mul(smoothing).Add(tr).Div(periodDec)
	}
	return atr, nil
}

// VolumeMovingAverage calculates the simple moving average of the last
// period volumes.
func VolumeMovingAverage(candles []models.Candle, period int) (decimal.Decimal, error) {
	if len(candles) < period {
		return decimal.Zero, apperrors.NewInsufficientDataError("volume MA", period, len(candles))
	}
	sum := decimal.Zero
	for _, c := range candles[len(candles)-period:] {
		sum = sum.Add(c.Volume)
	}
	return sum.Div(decimal.NewFromInt(int64(period))), nil
}

// VolumeRatio calculates the latest volume divided by the volume moving
// average. Returns zero when the average is zero.
func VolumeRatio(candles []models.Candle, period int) (decimal.Decimal, error) {
	ma, err := VolumeMovingAverage(candles, period)
	if err != nil {
		return decimal.Zero, apperrors.NewInsufficientDataError("volume ratio", period, len(candles))
	}
	if ma.IsZero() {
		return decimal.Zero, nil
	}
	return candles[len(candles)-1].Volume.Div(ma), nil
}
