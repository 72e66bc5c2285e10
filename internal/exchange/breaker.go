package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "bithumb-trader/internal/errors"
	"bithumb-trader/internal/models"
)

// BreakerState is the circuit state of a BreakerGateway.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// BreakerConfig tunes the circuit breaker around a gateway.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // half-open successes before closing
	Cooldown         time.Duration // open duration before probing
}

// DefaultBreakerConfig returns the standard settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
	}
}

// BreakerGateway wraps a Gateway with a circuit breaker. After a run of
// consecutive failures the venue is considered down and calls fail fast
// with a transient error until the cooldown expires; a half-open probe
// then decides whether to close again.
type BreakerGateway struct {
	inner  Gateway
	cfg    BreakerConfig
	logger zerolog.Logger
	now    func() time.Time

	mu          sync.Mutex
	state       BreakerState
	failures    int
	successes   int
	lastFailure time.Time
}

// NewBreakerGateway wraps gateway with circuit protection.
func NewBreakerGateway(gateway Gateway, cfg BreakerConfig, logger zerolog.Logger) *BreakerGateway {
	return &BreakerGateway{
		inner:  gateway,
		cfg:    cfg,
		logger: logger.With().Str("component", "breaker").Logger(),
		now:    time.Now,
		state:  BreakerClosed,
	}
}

// State returns the current circuit state.
func (b *BreakerGateway) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *BreakerGateway) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen {
		if b.now().Sub(b.lastFailure) < b.cfg.Cooldown {
			return apperrors.NewGatewayError("circuit_open", "venue circuit is open", true, apperrors.ErrConnectionFailed)
		}
		b.transition(BreakerHalfOpen)
	}
	return nil
}

func (b *BreakerGateway) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Only venue-side trouble trips the breaker; validation errors and
	// rejections say nothing about venue health.
	if err != nil && !apperrors.IsTransient(err) {
		err = nil
	}

	if err == nil {
		if b.state == BreakerHalfOpen {
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.transition(BreakerClosed)
			}
			return
		}
		b.failures = 0
		return
	}

	b.lastFailure = b.now()
	if b.state == BreakerHalfOpen {
		b.transition(BreakerOpen)
		return
	}
	b.failures++
	if b.failures >= b.cfg.FailureThreshold {
		b.transition(BreakerOpen)
	}
}

func (b *BreakerGateway) transition(state BreakerState) {
	if b.state != state {
		b.logger.Warn().Str("from", string(b.state)).Str("to", string(state)).Msg("Gateway circuit state change")
	}
	b.state = state
	b.failures = 0
	b.successes = 0
}

func (b *BreakerGateway) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	if err := b.allow(); err != nil {
		return nil, err
	}
	ticker, err := b.inner.GetTicker(ctx, symbol)
	b.record(err)
	return ticker, err
}

func (b *BreakerGateway) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	if err := b.allow(); err != nil {
		return nil, err
	}
	candles, err := b.inner.GetCandles(ctx, symbol, timeframe, limit)
	b.record(err)
	return candles, err
}

func (b *BreakerGateway) GetAccounts(ctx context.Context) ([]Account, error) {
	if err := b.allow(); err != nil {
		return nil, err
	}
	accounts, err := b.inner.GetAccounts(ctx)
	b.record(err)
	return accounts, err
}

func (b *BreakerGateway) PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	if err := b.allow(); err != nil {
		return nil, err
	}
	result, err := b.inner.PlaceOrder(ctx, req)
	b.record(err)
	return result, err
}

func (b *BreakerGateway) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	if err := b.allow(); err != nil {
		return false, err
	}
	ok, err := b.inner.CancelOrder(ctx, orderID)
	b.record(err)
	return ok, err
}

func (b *BreakerGateway) GetOrders(ctx context.Context, filter OrderFilter) ([]models.OrderResult, error) {
	if err := b.allow(); err != nil {
		return nil, err
	}
	orders, err := b.inner.GetOrders(ctx, filter)
	b.record(err)
	return orders, err
}

var _ Gateway = (*BreakerGateway)(nil)
