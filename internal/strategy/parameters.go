// Package strategy implements the decision engine: signal generation,
// risk assessment, and the orchestration between them.
package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	apperrors "bithumb-trader/internal/errors"
)

// Parameters is the immutable set of tunable strategy thresholds. Values
// are validated eagerly; invalid sets are rejected, never clamped.
type Parameters struct {
	ShortEMAPeriod int `json:"short_ema_period"`
	LongEMAPeriod  int `json:"long_ema_period"`

	RSIPeriod        int             `json:"rsi_period"`
	RSIBuyMin        decimal.Decimal `json:"rsi_buy_min"`
	RSIBuyMax        decimal.Decimal `json:"rsi_buy_max"`
	RSISellThreshold decimal.Decimal `json:"rsi_sell_threshold"`
	RSIOverbought    decimal.Decimal `json:"rsi_overbought"`
	RSIOversold      decimal.Decimal `json:"rsi_oversold"`

	ATRPeriod             int             `json:"atr_period"`
	ATRMultiplier         decimal.Decimal `json:"atr_multiplier"`
	TrailingATRMultiplier decimal.Decimal `json:"trailing_atr_multiplier"`

	StopLossPct          decimal.Decimal `json:"stop_loss_pct"`
	TargetProfitPct      decimal.Decimal `json:"target_profit_pct"`
	PartialTakeProfitPct decimal.Decimal `json:"partial_take_profit_pct"`

	VolumeMAPeriod       int             `json:"volume_ma_period"`
	VolumeRatioThreshold decimal.Decimal `json:"volume_ratio_threshold"`

	MaxConcurrentPositions       int             `json:"max_concurrent_positions"`
	MaxRiskPerTrade              decimal.Decimal `json:"max_risk_per_trade"`
	CapitalAllocationPerPosition decimal.Decimal `json:"capital_allocation_per_position"`
	KellyWinRate                 decimal.Decimal `json:"kelly_win_rate"`
	KellyRewardRisk              decimal.Decimal `json:"kelly_reward_risk"`
	CorrelationThreshold         decimal.Decimal `json:"correlation_threshold"`

	ParameterRefreshMinutes int `json:"parameter_refresh_minutes"`
}

// DefaultParameters returns the stock parameter set.
func DefaultParameters() Parameters {
	return Parameters{
		ShortEMAPeriod:               20,
		LongEMAPeriod:                60,
		RSIPeriod:                    14,
		RSIBuyMin:                    decimal.NewFromInt(50),
		RSIBuyMax:                    decimal.NewFromInt(70),
		RSISellThreshold:             decimal.NewFromInt(45),
		RSIOverbought:                decimal.NewFromInt(70),
		RSIOversold:                  decimal.NewFromInt(30),
		ATRPeriod:                    14,
		ATRMultiplier:                decimal.NewFromInt(2),
		TrailingATRMultiplier:        decimal.NewFromInt(2),
		StopLossPct:                  decimal.RequireFromString("0.03"),
		TargetProfitPct:              decimal.RequireFromString("0.02"),
		PartialTakeProfitPct:         decimal.RequireFromString("0.01"),
		VolumeMAPeriod:               10,
		VolumeRatioThreshold:         decimal.RequireFromString("0.8"),
		MaxConcurrentPositions:       5,
		MaxRiskPerTrade:              decimal.RequireFromString("0.03"),
		CapitalAllocationPerPosition: decimal.RequireFromString("0.04"),
		KellyWinRate:                 decimal.RequireFromString("0.55"),
		KellyRewardRisk:              decimal.RequireFromString("1.8"),
		CorrelationThreshold:         decimal.RequireFromString("0.8"),
		ParameterRefreshMinutes:      10,
	}
}

// Validate checks the parameter invariants.
func (p Parameters) Validate() error {
	if p.ShortEMAPeriod <= 0 || p.LongEMAPeriod <= 0 {
		return invalidParams("EMA periods must be positive")
	}
	if p.ShortEMAPeriod >= p.LongEMAPeriod {
		return invalidParams("short EMA period must be less than long EMA period")
	}
	if p.RSIPeriod <= 1 {
		return invalidParams("RSI period must be at least 2")
	}
	if p.RSIBuyMin.GreaterThanOrEqual(p.RSIBuyMax) {
		return invalidParams("RSI buy band must have min < max")
	}
	if !p.MaxRiskPerTrade.IsPositive() || p.MaxRiskPerTrade.GreaterThan(decimal.RequireFromString("0.1")) {
		return invalidParams("max risk per trade must be in (0, 0.1]")
	}
	if p.MaxConcurrentPositions <= 0 {
		return invalidParams("max concurrent positions must be at least 1")
	}
	if p.CorrelationThreshold.IsNegative() || p.CorrelationThreshold.GreaterThan(decimal.NewFromInt(1)) {
		return invalidParams("correlation threshold must be in [0, 1]")
	}
	if p.ATRPeriod <= 0 || p.VolumeMAPeriod <= 0 {
		return invalidParams("ATR and volume MA periods must be positive")
	}
	if p.KellyRewardRisk.IsZero() {
		return invalidParams("Kelly reward/risk ratio must be non-zero")
	}
	return nil
}

func invalidParams(msg string) error {
	return fmt.Errorf("%w: %s", apperrors.ErrInvalidParameters, msg)
}
