package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bithumb-trader/internal/logging"
	"bithumb-trader/internal/models"
)

// ParameterSource loads and saves the strategy parameter set.
type ParameterSource interface {
	LoadParameters(ctx context.Context) (Parameters, error)
	SaveParameters(ctx context.Context, params Parameters) error
}

// SignalRecorder persists an audit record of one non-HOLD evaluation.
// Recording is fire-and-forget; failures never fail a decision.
type SignalRecorder interface {
	RecordSignal(ctx context.Context, decision models.SignalDecision, assessment models.RiskAssessment, params Parameters) error
}

// Context carries the inputs of one strategy evaluation.
type Context struct {
	Symbol    string
	Candles   []models.Candle
	Equity    decimal.Decimal
	Portfolio *models.PortfolioState
	AsOf      time.Time
}

// Result pairs the decision with its risk assessment.
type Result struct {
	Signal models.SignalDecision
	Risk   models.RiskAssessment
}

// Engine wires parameters, signal generation, and risk assessment into one
// evaluation call. Parameters refresh from the source on a TTL.
type Engine struct {
	source   ParameterSource
	recorder SignalRecorder
	signals  *SignalGenerator
	risk     *RiskManager
	tracker  *PerformanceTracker
	logger   zerolog.Logger
	now      func() time.Time

	mu           sync.Mutex
	params       Parameters
	paramsExpiry time.Time
}

// NewEngine creates a strategy engine. The initial parameter set is loaded
// from the source; the recorder may be nil when auditing is not wanted.
func NewEngine(ctx context.Context, source ParameterSource, recorder SignalRecorder, logger zerolog.Logger) (*Engine, error) {
	params, err := source.LoadParameters(ctx)
	if err != nil {
		return nil, err
	}
	risk, err := NewRiskManager(params, logger)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		source:   source,
		recorder: recorder,
		signals:  NewSignalGenerator(logger),
		risk:     risk,
		tracker:  NewPerformanceTracker(),
		logger:   logger,
		now:      time.Now,
		params:   params,
	}
	e.paramsExpiry = e.now().Add(time.Duration(params.ParameterRefreshMinutes) * time.Minute)
	return e, nil
}

func (e *Engine) currentParameters(ctx context.Context) Parameters {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.now().Before(e.paramsExpiry) {
		return e.params
	}
	params, err := e.source.LoadParameters(ctx)
	if err != nil {
		// Stale parameters beat no parameters.
		e.logger.Warn().Err(err).Msg("Parameter refresh failed, keeping previous set")
		e.paramsExpiry = e.now().Add(time.Minute)
		return e.params
	}
	e.params = params
	e.paramsExpiry = e.now().Add(time.Duration(params.ParameterRefreshMinutes) * time.Minute)
	return e.params
}

// Evaluate runs one decision cycle for the context's symbol.
func (e *Engine) Evaluate(ctx context.Context, sc Context) (Result, error) {
	params := e.currentParameters(ctx)
	if err := e.risk.UpdateParameters(params); err != nil {
		return Result{}, err
	}

	decision, err := e.signals.Generate(sc.Symbol, sc.Candles, sc.Portfolio, params)
	if err != nil {
		return Result{}, err
	}
	assessment := e.risk.Assess(sc.Symbol, decision.Signal, sc.Equity, decision.Price, decision.ATR, sc.Portfolio)

	if decision.Signal != models.SignalHold && e.recorder != nil {
		go e.persistSignal(decision, assessment, params)
	}
	e.tracker.Record(decision)

	logging.LogSignal(e.logger, sc.Symbol, string(decision.Signal), decision.Strength.String(), decision.Price.String())
	return Result{Signal: decision, Risk: assessment}, nil
}

func (e *Engine) persistSignal(decision models.SignalDecision, assessment models.RiskAssessment, params Parameters) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.recorder.RecordSignal(ctx, decision, assessment, params); err != nil {
		e.logger.Error().Err(err).Str("symbol", decision.Symbol).Msg("Signal audit record failed")
	}
}

// Performance returns a snapshot of the signal counters.
func (e *Engine) Performance() TrackerSummary {
	return e.tracker.Summary()
}

// ResetPerformance clears the signal counters.
func (e *Engine) ResetPerformance() {
	e.tracker.Reset()
}

// PerformanceTracker counts emitted signals and their strengths.
type PerformanceTracker struct {
	mu                 sync.Mutex
	totalSignals       int
	buySignals         int
	sellSignals        int
	cumulativeStrength decimal.Decimal
	lastSignal         *models.SignalDecision
	lastUpdated        time.Time
}

// TrackerSummary is a point-in-time view of the tracker counters.
type TrackerSummary struct {
	Total           int
	Buy             int
	Sell            int
	AverageStrength decimal.Decimal
	LastSignal      models.SignalType
	LastUpdated     time.Time
}

// NewPerformanceTracker creates an empty tracker.
func NewPerformanceTracker() *PerformanceTracker {
	return &PerformanceTracker{}
}

// Record registers one decision. HOLD decisions update the last-signal
// pointer but not the counters.
func (t *PerformanceTracker) Record(decision models.SignalDecision) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if decision.Signal != models.SignalHold {
		t.totalSignals++
		switch decision.Signal {
		case models.SignalBuy:
			t.buySignals++
		case models.SignalSell:
			t.sellSignals++
		}
		t.cumulativeStrength = t.cumulativeStrength.Add(decision.Strength)
		t.lastUpdated = decision.Timestamp
	}
	t.lastSignal = &decision
}

// Summary returns the current counters.
func (t *PerformanceTracker) Summary() TrackerSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := TrackerSummary{
		Total:       t.totalSignals,
		Buy:         t.buySignals,
		Sell:        t.sellSignals,
		LastUpdated: t.lastUpdated,
	}
	if t.totalSignals > 0 {
		s.AverageStrength = t.cumulativeStrength.Div(decimal.NewFromInt(int64(t.totalSignals)))
	}
	if t.lastSignal != nil {
		s.LastSignal = t.lastSignal.Signal
	}
	return s
}

// Reset clears all counters.
func (t *PerformanceTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalSignals = 0
	t.buySignals = 0
	t.sellSignals = 0
	t.cumulativeStrength = decimal.Zero
	t.lastSignal = nil
	t.lastUpdated = time.Time{}
}
