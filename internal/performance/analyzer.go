// Package performance computes return, risk, and trade statistics from a
// backtest's equity curve and fill history.
package performance

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bithumb-trader/internal/models"
)

// Metrics is the full statistics set for one run. Percentages are in
// percent units; ratios are unitless. Statistics are float64: they feed
// reports, never the ledger.
type Metrics struct {
	TotalReturn      float64 // percent
	AnnualizedReturn float64 // percent
	DailyReturnMean  float64 // fraction per period
	DailyReturnStd   float64 // fraction per period

	MaxDrawdown       float64 // percent, <= 0
	Volatility        float64 // percent, annualized
	DownsideDeviation float64 // percent, annualized
	VaR95             float64 // percent
	VaR99             float64 // percent

	SharpeRatio      float64
	SortinoRatio     float64
	CalmarRatio      float64
	InformationRatio float64

	TotalTrades      int // closed round trips
	WinningTrades    int
	LosingTrades     int
	WinRate          float64 // percent
	AvgWin           float64 // currency
	AvgLoss          float64 // currency, <= 0
	ProfitFactor     float64
	AvgTradeDuration float64 // days

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	RecoveryFactor       float64
}

// AnalyzerConfig holds analyzer settings.
type AnalyzerConfig struct {
	RiskFreeRate   float64 // annual, e.g. 0.02
	PeriodsPerYear float64 // sampling periods per trading year
}

// DefaultAnalyzerConfig returns the standard configuration: 2% annual
// risk-free rate, 252 trading days.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{RiskFreeRate: 0.02, PeriodsPerYear: 252}
}

// Analyzer computes Metrics from run artifacts.
type Analyzer struct {
	cfg    AnalyzerConfig
	logger zerolog.Logger
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(cfg AnalyzerConfig, logger zerolog.Logger) *Analyzer {
	if cfg.PeriodsPerYear <= 0 {
		cfg.PeriodsPerYear = 252
	}
	return &Analyzer{cfg: cfg, logger: logger.With().Str("component", "performance").Logger()}
}

// Analyze computes the full metrics set. An equity curve with fewer than
// two points yields zero-valued return and risk statistics.
func (a *Analyzer) Analyze(initialCapital decimal.Decimal, trades []models.Trade, curve []models.EquityPoint) *Metrics {
	m := &Metrics{}

	equity := make([]float64, len(curve))
	for i, point := range curve {
		equity[i], _ = point.Equity.Float64()
	}
	returns := periodReturns(equity)

	if len(curve) >= 2 {
		m.TotalReturn = (equity[len(equity)-1] - equity[0]) / equity[0] * 100
		m.AnnualizedReturn = annualizedReturn(curve[0].Timestamp, curve[len(curve)-1].Timestamp, equity[0], equity[len(equity)-1])
		m.DailyReturnMean = mean(returns)
		m.DailyReturnStd = sampleStd(returns)

		m.MaxDrawdown = maxDrawdown(equity)
		m.Volatility = m.DailyReturnStd * math.Sqrt(a.cfg.PeriodsPerYear) * 100
		m.DownsideDeviation = a.downsideDeviation(returns)
		m.VaR95 = quantile(returns, 0.05) * 100
		m.VaR99 = quantile(returns, 0.01) * 100

		m.SharpeRatio = a.sharpe(returns)
		m.SortinoRatio = a.sortino(returns)
		if m.MaxDrawdown != 0 {
			m.CalmarRatio = m.AnnualizedReturn / math.Abs(m.MaxDrawdown)
		}
		m.InformationRatio = a.informationRatio(returns)

		m.MaxConsecutiveWins, m.MaxConsecutiveLosses = consecutiveStreaks(returns)
		if m.MaxDrawdown != 0 {
			m.RecoveryFactor = m.TotalReturn / math.Abs(m.MaxDrawdown)
		}
	}

	a.tradeStatistics(m, trades)

	a.logger.Debug().
		Int("trades", m.TotalTrades).
		Float64("total_return_pct", m.TotalReturn).
		Float64("sharpe", m.SharpeRatio).
		Msg("Performance analysis complete")
	return m
}

func periodReturns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (equity[i]-equity[i-1])/equity[i-1])
	}
	return returns
}

func annualizedReturn(start, end time.Time, first, last float64) float64 {
	days := end.Sub(start).Hours() / 24
	if days <= 0 || first <= 0 {
		return 0
	}
	years := days / 365.25
	return (math.Pow(last/first, 1/years) - 1) * 100
}

func maxDrawdown(equity []float64) float64 {
	peak := math.Inf(-1)
	worst := 0.0
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			dd := (e - peak) / peak * 100
			if dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

func (a *Analyzer) downsideDeviation(returns []float64) float64 {
	var negative []float64
	for _, r := range returns {
		if r < 0 {
			negative = append(negative, r)
		}
	}
	if len(negative) < 2 {
		return 0
	}
	return sampleStd(negative) * math.Sqrt(a.cfg.PeriodsPerYear) * 100
}

func (a *Analyzer) sharpe(returns []float64) float64 {
	excess := a.excessReturns(returns)
	std := sampleStd(excess)
	if std == 0 {
		return 0
	}
	return mean(excess) / std * math.Sqrt(a.cfg.PeriodsPerYear)
}

func (a *Analyzer) sortino(returns []float64) float64 {
	excess := a.excessReturns(returns)
	var negative []float64
	for _, r := range excess {
		if r < 0 {
			negative = append(negative, r)
		}
	}
	if len(negative) < 2 {
		return 0
	}
	std := sampleStd(negative)
	if std == 0 {
		return 0
	}
	return mean(excess) / std * math.Sqrt(a.cfg.PeriodsPerYear)
}

func (a *Analyzer) informationRatio(returns []float64) float64 {
	// No benchmark series; active return equals the raw return.
	std := sampleStd(returns)
	if std == 0 {
		return 0
	}
	return mean(returns) / std * math.Sqrt(a.cfg.PeriodsPerYear)
}

func (a *Analyzer) excessReturns(returns []float64) []float64 {
	perPeriod := a.cfg.RiskFreeRate / a.cfg.PeriodsPerYear
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - perPeriod
	}
	return excess
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStd is the n-1 standard deviation, zero for fewer than two samples.
func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

// quantile returns the p-quantile with linear interpolation between order
// statistics.
func quantile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func consecutiveStreaks(returns []float64) (maxWins, maxLosses int) {
	wins, losses := 0, 0
	for _, r := range returns {
		switch {
		case r > 0:
			wins++
			losses = 0
			if wins > maxWins {
				maxWins = wins
			}
		case r < 0:
			losses++
			wins = 0
			if losses > maxLosses {
				maxLosses = losses
			}
		default:
			wins, losses = 0, 0
		}
	}
	return maxWins, maxLosses
}

// roundTrip is one closed buy/sell pairing.
type roundTrip struct {
	Symbol   string
	Quantity float64
	PnL      float64
	Duration float64 // days
}

// buyLot is an open lot awaiting FIFO matching.
type buyLot struct {
	quantity   float64
	price      float64
	commission float64
	at         time.Time
}

// tradeStatistics fills trade-level metrics via FIFO round-trip pairing.
// Partially consumed buy lots stay at the front of the queue with their
// commission reduced pro rata.
func (a *Analyzer) tradeStatistics(m *Metrics, trades []models.Trade) {
	pairs := pairTrades(trades)
	m.TotalTrades = len(pairs)
	if len(pairs) == 0 {
		return
	}

	var grossProfit, grossLoss, winSum, lossSum, durationSum float64
	for _, pair := range pairs {
		durationSum += pair.Duration
		if pair.PnL > 0 {
			m.WinningTrades++
			winSum += pair.PnL
			grossProfit += pair.PnL
		} else if pair.PnL < 0 {
			m.LosingTrades++
			lossSum += pair.PnL
			grossLoss += -pair.PnL
		}
	}
	m.WinRate = float64(m.WinningTrades) / float64(len(pairs)) * 100
	if m.WinningTrades > 0 {
		m.AvgWin = winSum / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = lossSum / float64(m.LosingTrades)
	}
	if grossLoss > 0 {
		m.ProfitFactor = grossProfit / grossLoss
	}
	m.AvgTradeDuration = durationSum / float64(len(pairs))
}

func pairTrades(trades []models.Trade) []roundTrip {
	sorted := append([]models.Trade(nil), trades...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	lots := make(map[string][]buyLot)
	var pairs []roundTrip

	for _, trade := range sorted {
		qty, _ := trade.Quantity.Float64()
		price, _ := trade.Price.Float64()
		commission, _ := trade.Commission.Float64()

		if trade.Side == models.OrderSideBuy {
			lots[trade.Symbol] = append(lots[trade.Symbol], buyLot{
				quantity:   qty,
				price:      price,
				commission: commission,
				at:         trade.Timestamp,
			})
			continue
		}

		remaining := qty
		sellCommPerUnit := 0.0
		if qty > 0 {
			sellCommPerUnit = commission / qty
		}
		for remaining > 0 && len(lots[trade.Symbol]) > 0 {
			lot := &lots[trade.Symbol][0]
			matched := math.Min(remaining, lot.quantity)

			buyComm := 0.0
			if lot.quantity > 0 {
				buyComm = lot.commission * matched / lot.quantity
			}
			buyCost := matched*lot.price + buyComm
			sellProceeds := matched*price - sellCommPerUnit*matched

			pairs = append(pairs, roundTrip{
				Symbol:   trade.Symbol,
				Quantity: matched,
				PnL:      sellProceeds - buyCost,
				Duration: trade.Timestamp.Sub(lot.at).Hours() / 24,
			})

			lot.quantity -= matched
			lot.commission -= buyComm
			remaining -= matched
			if lot.quantity <= 0 {
				lots[trade.Symbol] = lots[trade.Symbol][1:]
			}
		}
	}
	return pairs
}

// SummaryReport renders a plain-text report of the metrics.
func (a *Analyzer) SummaryReport(m *Metrics) string {
	var b strings.Builder
	line := strings.Repeat("=", 50)
	section := strings.Repeat("-", 20)

	fmt.Fprintf(&b, "%s\nBacktest Performance Report\n%s\n\n", line, line)

	fmt.Fprintf(&b, "Returns\n%s\n", section)
	fmt.Fprintf(&b, "Total return:        %.2f%%\n", m.TotalReturn)
	fmt.Fprintf(&b, "Annualized return:   %.2f%%\n", m.AnnualizedReturn)
	fmt.Fprintf(&b, "Mean period return:  %.4f\n", m.DailyReturnMean)
	fmt.Fprintf(&b, "Return std dev:      %.4f\n\n", m.DailyReturnStd)

	fmt.Fprintf(&b, "Risk\n%s\n", section)
	fmt.Fprintf(&b, "Max drawdown:        %.2f%%\n", m.MaxDrawdown)
	fmt.Fprintf(&b, "Volatility (ann.):   %.2f%%\n", m.Volatility)
	fmt.Fprintf(&b, "Downside deviation:  %.2f%%\n", m.DownsideDeviation)
	fmt.Fprintf(&b, "VaR 95%%:             %.2f%%\n", m.VaR95)
	fmt.Fprintf(&b, "VaR 99%%:             %.2f%%\n\n", m.VaR99)

	fmt.Fprintf(&b, "Efficiency\n%s\n", section)
	fmt.Fprintf(&b, "Sharpe ratio:        %.3f\n", m.SharpeRatio)
	fmt.Fprintf(&b, "Sortino ratio:       %.3f\n", m.SortinoRatio)
	fmt.Fprintf(&b, "Calmar ratio:        %.3f\n", m.CalmarRatio)
	fmt.Fprintf(&b, "Information ratio:   %.3f\n\n", m.InformationRatio)

	fmt.Fprintf(&b, "Trades\n%s\n", section)
	fmt.Fprintf(&b, "Round trips:         %d\n", m.TotalTrades)
	fmt.Fprintf(&b, "Winners / losers:    %d / %d\n", m.WinningTrades, m.LosingTrades)
	fmt.Fprintf(&b, "Win rate:            %.1f%%\n", m.WinRate)
	fmt.Fprintf(&b, "Avg win / loss:      %.2f / %.2f\n", m.AvgWin, m.AvgLoss)
	fmt.Fprintf(&b, "Profit factor:       %.2f\n", m.ProfitFactor)
	fmt.Fprintf(&b, "Avg holding period:  %.1f days\n\n", m.AvgTradeDuration)

	fmt.Fprintf(&b, "Other\n%s\n", section)
	fmt.Fprintf(&b, "Max streak (W/L):    %d / %d\n", m.MaxConsecutiveWins, m.MaxConsecutiveLosses)
	fmt.Fprintf(&b, "Recovery factor:     %.2f\n", m.RecoveryFactor)

	return b.String()
}
