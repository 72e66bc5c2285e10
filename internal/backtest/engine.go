package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "bithumb-trader/internal/errors"
	"bithumb-trader/internal/models"
	"bithumb-trader/internal/performance"
	"bithumb-trader/internal/strategy"
)

// Config holds the simulator's run settings.
type Config struct {
	InitialCapital decimal.Decimal
	CommissionRate decimal.Decimal
	SlippageRate   decimal.Decimal
	Parameters     strategy.Parameters
}

// DefaultConfig returns a run configuration with venue-typical rates.
func DefaultConfig() Config {
	return Config{
		InitialCapital: decimal.NewFromInt(10000000),
		CommissionRate: decimal.RequireFromString("0.0025"),
		SlippageRate:   decimal.RequireFromString("0.001"),
		Parameters:     strategy.DefaultParameters(),
	}
}

// Result is the outcome of one simulator run.
type Result struct {
	Summary     Summary
	Trades      []models.Trade
	EquityCurve []models.EquityPoint
	Metrics     *performance.Metrics

	SignalsGenerated int
	OrdersPlaced     int
	OrdersFilled     int
	OrdersRejected   int
}

// Simulator replays candle history through the strategy and an event-driven
// execution model. Runs are deterministic and single-threaded.
type Simulator struct {
	cfg       Config
	logger    zerolog.Logger
	signals   *strategy.SignalGenerator
	risk      *strategy.RiskManager
	execution *ExecutionHandler
	portfolio *Portfolio

	queue   *eventQueue
	series  map[string][]models.Candle // full history per symbol, time-ordered
	visible map[string]int             // candles revealed to the strategy so far
	prices  map[string]decimal.Decimal
	// latest decision per symbol, read back when its signal event is handled
	decisions map[string]models.SignalDecision

	signalsGenerated int
	ordersPlaced     int
	ordersFilled     int
	ordersRejected   int
}

// NewSimulator creates a simulator for the given configuration.
func NewSimulator(cfg Config, logger zerolog.Logger) (*Simulator, error) {
	if err := cfg.Parameters.Validate(); err != nil {
		return nil, err
	}
	if !cfg.InitialCapital.IsPositive() {
		return nil, apperrors.NewValidationError("initial_capital", cfg.InitialCapital.String(), "must be positive")
	}
	risk, err := strategy.NewRiskManager(cfg.Parameters, logger)
	if err != nil {
		return nil, err
	}
	log := logger.With().Str("component", "backtest").Logger()
	return &Simulator{
		cfg:       cfg,
		logger:    log,
		signals:   strategy.NewSignalGenerator(log),
		risk:      risk,
		execution: NewExecutionHandler(cfg.SlippageRate, cfg.CommissionRate, log),
		portfolio: NewPortfolio(cfg.InitialCapital, cfg.CommissionRate),
		queue:     newEventQueue(),
		series:    make(map[string][]models.Candle),
		visible:   make(map[string]int),
		prices:    make(map[string]decimal.Decimal),
		decisions: make(map[string]models.SignalDecision),
	}, nil
}

// AddCandles loads history for one symbol. Candles must be time-ordered.
func (s *Simulator) AddCandles(symbol string, candles []models.Candle) error {
	for i := 1; i < len(candles); i++ {
		if !candles[i].Timestamp.After(candles[i-1].Timestamp) {
			return apperrors.NewValidationError("candles", symbol, "timestamps must be strictly increasing")
		}
	}
	s.series[symbol] = candles
	return nil
}

// Portfolio exposes the ledger, mainly for tests and reporting.
func (s *Simulator) Portfolio() *Portfolio { return s.portfolio }

// Run replays all loaded history and returns the run result. A ledger
// reconciliation failure aborts the run with the underlying error.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	if len(s.series) == 0 {
		return nil, apperrors.NewValidationError("series", nil, "no candle data loaded")
	}

	timestamps := s.collectTimestamps()
	s.logger.Info().
		Int("symbols", len(s.series)).
		Int("ticks", len(timestamps)).
		Str("initial_capital", s.cfg.InitialCapital.String()).
		Msg("Backtest started")

	for _, ts := range timestamps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for symbol, candles := range s.series {
			i := s.visible[symbol]
			if i < len(candles) && candles[i].Timestamp.Equal(ts) {
				s.queue.PushEvent(MarketEvent{At: ts, Candle: candles[i]})
			}
		}
		if err := s.drain(); err != nil {
			return nil, err
		}
		if err := s.evaluate(ts); err != nil {
			return nil, err
		}
		if err := s.drain(); err != nil {
			return nil, err
		}
		if err := s.portfolio.SampleEquity(ts); err != nil {
			return nil, err
		}
	}

	result := s.buildResult()
	s.logger.Info().
		Str("final_equity", result.Summary.FinalEquity.String()).
		Str("return_pct", result.Summary.TotalReturnPct.String()).
		Int("trades", result.Summary.TotalTrades).
		Msg("Backtest finished")
	return result, nil
}

// collectTimestamps returns the sorted union of candle timestamps.
func (s *Simulator) collectTimestamps() []time.Time {
	seen := make(map[int64]time.Time)
	for _, candles := range s.series {
		for _, c := range candles {
			seen[c.Timestamp.UnixNano()] = c.Timestamp
		}
	}
	out := make([]time.Time, 0, len(seen))
	for _, ts := range seen {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// drain processes queued events until the queue is empty.
func (s *Simulator) drain() error {
	for s.queue.Len() > 0 {
		switch e := s.queue.PopEvent().(type) {
		case MarketEvent:
			s.onMarket(e)
		case SignalEvent:
			s.onSignal(e)
		case OrderEvent:
			s.onOrder(e)
		case FillEvent:
			s.portfolio.ApplyFill(e)
			s.ordersFilled++
		}
	}
	return nil
}

func (s *Simulator) onMarket(e MarketEvent) {
	symbol := e.Candle.Symbol
	s.visible[symbol]++
	s.prices[symbol] = e.Candle.Close
	s.portfolio.UpdateMark(symbol, e.Candle.Close, e.At)
}

// evaluate runs the strategy on every symbol with a candle at this tick.
func (s *Simulator) evaluate(ts time.Time) error {
	state := s.portfolioState()
	for _, symbol := range s.sortedSymbols() {
		visible := s.visible[symbol]
		if visible == 0 {
			continue
		}
		history := s.series[symbol][:visible]
		if !history[len(history)-1].Timestamp.Equal(ts) {
			continue
		}

		decision, err := s.signals.Generate(symbol, history, state, s.cfg.Parameters)
		if err != nil {
			return err
		}
		if decision.Signal == models.SignalHold {
			continue
		}

		s.signalsGenerated++
		s.decisions[symbol] = decision
		side := models.OrderSideBuy
		if decision.Signal == models.SignalSell {
			side = models.OrderSideSell
		}
		reason := ""
		if len(decision.Reasons) > 0 {
			reason = decision.Reasons[0]
		}
		s.queue.PushEvent(SignalEvent{
			At:       ts,
			Symbol:   symbol,
			Side:     side,
			Strength: decision.Strength,
			Reason:   reason,
		})
	}
	return nil
}

// onSignal sizes the trade and emits an order, or drops the signal when
// risk limits or buying power block it.
func (s *Simulator) onSignal(e SignalEvent) {
	decision, ok := s.decisions[e.Symbol]
	if !ok {
		return
	}
	price := s.prices[e.Symbol]
	state := s.portfolioState()

	signal := models.SignalBuy
	if e.Side == models.OrderSideSell {
		signal = models.SignalSell
	}
	assessment := s.risk.Assess(e.Symbol, signal, s.portfolio.TotalEquity(), price, decision.ATR, state)
	if assessment.Blocked() {
		s.logger.Debug().Str("symbol", e.Symbol).Str("side", string(e.Side)).Msg("Signal blocked by risk limits")
		return
	}

	quantity := assessment.Quantity
	if e.Side == models.OrderSideBuy {
		// Cap at what remains affordable after slippage moves the price up.
		worstCase := price.Mul(decimal.NewFromInt(1).Add(s.cfg.SlippageRate))
		if power := s.portfolio.BuyingPower(worstCase); quantity.GreaterThan(power) {
			quantity = power
		}
	} else {
		position := s.portfolio.Position(e.Symbol)
		if position == nil || !position.IsLong() {
			return
		}
		if quantity.GreaterThan(position.Quantity) {
			quantity = position.Quantity
		}
	}
	if !quantity.IsPositive() {
		s.ordersRejected++
		return
	}

	s.ordersPlaced++
	s.queue.PushEvent(OrderEvent{
		At:       e.At,
		Symbol:   e.Symbol,
		Type:     models.OrderTypeMarket,
		Side:     e.Side,
		Quantity: quantity,
		OrderID:  fmt.Sprintf("bt_%s", uuid.New().String()),
	})
}

func (s *Simulator) onOrder(e OrderEvent) {
	fill := s.execution.Execute(e, s.prices[e.Symbol])
	if fill == nil {
		s.ordersRejected++
		return
	}
	s.queue.PushEvent(*fill)
}

// portfolioState snapshots ledger positions into the strategy-facing form.
func (s *Simulator) portfolioState() *models.PortfolioState {
	var positions []models.PortfolioPosition
	for symbol, position := range s.portfolio.positions {
		if position.IsFlat() {
			continue
		}
		positions = append(positions, models.PortfolioPosition{
			Symbol:       symbol,
			Quantity:     position.Quantity,
			AveragePrice: position.AveragePrice(),
			EntryTime:    position.LastUpdated,
		})
	}
	return models.NewPortfolioState(positions...)
}

func (s *Simulator) sortedSymbols() []string {
	symbols := make([]string, 0, len(s.series))
	for symbol := range s.series {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

func (s *Simulator) buildResult() *Result {
	analyzer := performance.NewAnalyzer(performance.DefaultAnalyzerConfig(), s.logger)
	return &Result{
		Summary:          s.portfolio.Summarize(),
		Trades:           s.portfolio.Trades(),
		EquityCurve:      s.portfolio.EquityCurve(),
		Metrics:          analyzer.Analyze(s.cfg.InitialCapital, s.portfolio.Trades(), s.portfolio.EquityCurve()),
		SignalsGenerated: s.signalsGenerated,
		OrdersPlaced:     s.ordersPlaced,
		OrdersFilled:     s.ordersFilled,
		OrdersRejected:   s.ordersRejected,
	}
}
