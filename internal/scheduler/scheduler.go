// Package scheduler queues, validates, and executes orders against the
// venue gateway with bounded concurrency.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "bithumb-trader/internal/errors"
	"bithumb-trader/internal/exchange"
	"bithumb-trader/internal/logging"
	"bithumb-trader/internal/models"
	"bithumb-trader/pkg/utils"
)

// commissionBuffer pads the required balance on buys so the venue's fee
// does not fail the order post-validation.
var commissionBuffer = decimal.RequireFromString("1.0025")

// Config holds scheduler tuning knobs.
type Config struct {
	MaxConcurrentOrders  int
	MaxRetries           int
	RetryInitialDelay    time.Duration
	RetryMaxDelay        time.Duration
	PositionSyncInterval time.Duration
	ShutdownTimeout      time.Duration
	QuoteAsset           string
}

// DefaultConfig returns the stock scheduler configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentOrders:  5,
		MaxRetries:           3,
		RetryInitialDelay:    100 * time.Millisecond,
		RetryMaxDelay:        10 * time.Second,
		PositionSyncInterval: time.Minute,
		ShutdownTimeout:      10 * time.Second,
		QuoteAsset:           "KRW",
	}
}

// FillObserver receives fill notifications.
type FillObserver func(models.Fill)

// OrderObserver receives order state transitions.
type OrderObserver func(models.OrderResult)

// PositionObserver receives position updates from sync passes.
type PositionObserver func(models.Position)

// Scheduler executes orders from a priority queue through a bounded worker
// pool. Higher priorities run first; ties run in submission order.
type Scheduler struct {
	gateway exchange.Gateway
	cfg     Config
	logger  zerolog.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	queue     *orderQueue
	orders    map[string]*models.OrderResult // keyed by client order id
	venueIDs  map[string]string              // venue order id -> client order id
	positions map[string]*models.Position
	inflight  int
	running   bool

	wg     sync.WaitGroup
	stopCh chan struct{}

	obsMu             sync.RWMutex
	fillObservers     []FillObserver
	orderObservers    []OrderObserver
	positionObservers []PositionObserver
}

// New creates a scheduler. Call Start before submitting.
func New(gateway exchange.Gateway, cfg Config, logger zerolog.Logger) *Scheduler {
	if cfg.MaxConcurrentOrders <= 0 {
		cfg.MaxConcurrentOrders = 1
	}
	s := &Scheduler{
		gateway:   gateway,
		cfg:       cfg,
		logger:    logger,
		queue:     newOrderQueue(),
		orders:    make(map[string]*models.OrderResult),
		venueIDs:  make(map[string]string),
		positions: make(map[string]*models.Position),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start launches the dispatcher and the position sync loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.dispatch(ctx)

	if s.cfg.PositionSyncInterval > 0 {
		s.wg.Add(1)
		go s.syncLoop(ctx)
	}

	s.logger.Info().
		Int("max_concurrent", s.cfg.MaxConcurrentOrders).
		Msg("Order scheduler started")
	return nil
}

// Stop halts intake and waits up to the shutdown timeout for in-flight
// orders to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.cond.Broadcast()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info().Msg("Order scheduler stopped")
		return nil
	case <-time.After(s.cfg.ShutdownTimeout):
		s.logger.Warn().Msg("Order scheduler shutdown timed out with orders in flight")
		return apperrors.ErrTimeout
	}
}

// Submit queues a request and returns its client order id immediately.
func (s *Scheduler) Submit(req models.OrderRequest, priority models.OrderPriority) (string, error) {
	if req.ClientOrderID == "" {
		req.ClientOrderID = fmt.Sprintf("order_%s", uuid.NewString()[:8])
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return "", apperrors.ErrSchedulerStopped
	}
	now := time.Now()
	s.orders[req.ClientOrderID] = &models.OrderResult{
		ClientOrderID:     req.ClientOrderID,
		Symbol:            req.Symbol,
		Side:              req.Side,
		Type:              req.Type,
		Status:            models.OrderStatusPending,
		OriginalQuantity:  req.Quantity,
		RemainingQuantity: req.Quantity,
		Price:             req.Price,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.queue.Push(req, priority, now)
	s.cond.Signal()

	s.logger.Info().
		Str("order_id", req.ClientOrderID).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Str("quantity", req.Quantity.String()).
		Int("priority", int(priority)).
		Msg("Order queued")
	return req.ClientOrderID, nil
}

// Cancel cancels the order with the given client or venue order id. Only
// PENDING and SUBMITTED orders are cancellable.
func (s *Scheduler) Cancel(ctx context.Context, orderID string) bool {
	s.mu.Lock()
	clientID := orderID
	if mapped, ok := s.venueIDs[orderID]; ok {
		clientID = mapped
	}
	order, ok := s.orders[clientID]
	if !ok {
		s.mu.Unlock()
		s.logger.Warn().Str("order_id", orderID).Msg("Cancel target not found")
		return false
	}
	if !order.Status.IsCancellable() {
		s.mu.Unlock()
		return false
	}

	// Still queued: drop it before a worker picks it up.
	if s.queue.Remove(clientID) {
		order.Status = models.OrderStatusCancelled
		order.UpdatedAt = time.Now()
		snapshot := *order
		s.mu.Unlock()
		s.notifyOrder(snapshot)
		return true
	}
	venueID := order.OrderID
	s.mu.Unlock()

	if venueID == "" {
		return false
	}
	ok, err := s.gateway.CancelOrder(ctx, venueID)
	if err != nil || !ok {
		s.logger.Error().Err(err).Str("order_id", orderID).Msg("Venue cancel failed")
		return false
	}
	s.mu.Lock()
	order.Status = models.OrderStatusCancelled
	order.UpdatedAt = time.Now()
	snapshot := *order
	s.mu.Unlock()
	s.notifyOrder(snapshot)
	return true
}

// Status returns the current result for a client or venue order id.
func (s *Scheduler) Status(orderID string) (models.OrderResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clientID := orderID
	if mapped, ok := s.venueIDs[orderID]; ok {
		clientID = mapped
	}
	order, ok := s.orders[clientID]
	if !ok {
		return models.OrderResult{}, false
	}
	return *order, true
}

// PendingOrders returns all orders not yet in a terminal state.
func (s *Scheduler) PendingOrders() []models.OrderResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.OrderResult
	for _, order := range s.orders {
		if !order.Status.IsTerminal() {
			out = append(out, *order)
		}
	}
	return out
}

// Position returns the synced position for a symbol.
func (s *Scheduler) Position(symbol string) (models.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[symbol]
	if !ok {
		return models.Position{}, false
	}
	return *p, true
}

// Positions returns all synced positions.
func (s *Scheduler) Positions() []models.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, *p)
	}
	return out
}

// OnFill registers a fill observer.
func (s *Scheduler) OnFill(fn FillObserver) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.fillObservers = append(s.fillObservers, fn)
}

// OnOrderUpdate registers an order transition observer.
func (s *Scheduler) OnOrderUpdate(fn OrderObserver) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.orderObservers = append(s.orderObservers, fn)
}

// OnPositionUpdate registers a position sync observer.
func (s *Scheduler) OnPositionUpdate(fn PositionObserver) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.positionObservers = append(s.positionObservers, fn)
}

func (s *Scheduler) dispatch(ctx context.Context) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		for s.running && (s.queue.Len() == 0 || s.inflight >= s.cfg.MaxConcurrentOrders) {
			s.cond.Wait()
		}
		if !s.running {
			s.mu.Unlock()
			return
		}
		item := s.queue.Pop()
		s.inflight++
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.process(ctx, item)
			s.mu.Lock()
			s.inflight--
			s.cond.Signal()
			s.mu.Unlock()
		}()
	}
}

func (s *Scheduler) process(ctx context.Context, item *queuedOrder) {
	req := item.request
	logger := logging.WithOrderID(s.logger, req.ClientOrderID)

	s.mu.Lock()
	order, ok := s.orders[req.ClientOrderID]
	if !ok || order.Status != models.OrderStatusPending {
		// Cancelled while queued.
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.validate(ctx, req); err != nil {
		logger.Error().Err(err).Msg("Order validation failed")
		s.finalize(req.ClientOrderID, models.OrderStatusRejected, nil, err)
		return
	}

	// Surface SUBMITTED before the venue call so observers see the same
	// transition for immediate fills as for resting orders.
	s.mu.Lock()
	order.Status = models.OrderStatusSubmitted
	order.UpdatedAt = time.Now()
	submitted := *order
	s.mu.Unlock()
	s.notifyOrder(submitted)

	retryCfg := utils.RetryConfig{
		MaxAttempts:   s.cfg.MaxRetries + 1,
		InitialDelay:  s.cfg.RetryInitialDelay,
		MaxDelay:      s.cfg.RetryMaxDelay,
		BackoffFactor: 2.0,
		Retryable:     apperrors.IsTransient,
	}
	result, err := utils.RetryWithResult(ctx, retryCfg, func() (*models.OrderResult, error) {
		return s.gateway.PlaceOrder(ctx, req)
	})
	if err != nil {
		logger.Error().Err(err).Msg("Order execution failed")
		s.finalize(req.ClientOrderID, models.OrderStatusFailed, nil, err)
		return
	}

	s.finalize(req.ClientOrderID, result.Status, result, nil)
	logging.LogOrder(s.logger, req.ClientOrderID, req.Symbol, string(req.Side), string(result.Status))

	if result.ExecutedQuantity.IsPositive() {
		fill := models.Fill{
			FillID:     uuid.NewString(),
			OrderID:    result.OrderID,
			Symbol:     result.Symbol,
			Side:       result.Side,
			Quantity:   result.ExecutedQuantity,
			Commission: result.Commission,
			Timestamp:  time.Now(),
		}
		if result.AveragePrice != nil {
			fill.Price = *result.AveragePrice
		}
		s.notifyFill(fill)
	}
}

// finalize records the terminal state of one processed order and notifies
// observers.
func (s *Scheduler) finalize(clientOrderID string, status models.OrderStatus, result *models.OrderResult, execErr error) {
	s.mu.Lock()
	order, ok := s.orders[clientOrderID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if result != nil {
		venueID := result.OrderID
		updated := *result
		updated.ClientOrderID = clientOrderID
		updated.CreatedAt = order.CreatedAt
		*order = updated
		if venueID != "" {
			s.venueIDs[venueID] = clientOrderID
		}
	}
	order.Status = status
	order.UpdatedAt = time.Now()
	if execErr != nil {
		order.ErrorMessage = execErr.Error()
	}
	snapshot := *order
	s.mu.Unlock()
	s.notifyOrder(snapshot)
}

// validate runs pre-trade checks against live venue state. Failures reject
// the order; they are never retried.
func (s *Scheduler) validate(ctx context.Context, req models.OrderRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	switch req.Side {
	case models.OrderSideBuy:
		return s.checkBuyingPower(ctx, req)
	case models.OrderSideSell:
		return s.checkHoldings(ctx, req)
	}
	return nil
}

func (s *Scheduler) checkBuyingPower(ctx context.Context, req models.OrderRequest) error {
	accounts, err := s.gateway.GetAccounts(ctx)
	if err != nil {
		return apperrors.Wrap(err, "querying balances")
	}
	available := decimal.Zero
	for _, acc := range accounts {
		if acc.Currency == s.cfg.QuoteAsset {
			available = acc.Available
			break
		}
	}

	var estPrice decimal.Decimal
	if req.Type == models.OrderTypeMarket {
		ticker, err := s.gateway.GetTicker(ctx, req.Symbol)
		if err != nil {
			return apperrors.Wrap(err, "querying ticker for market order estimate")
		}
		estPrice = ticker.Price
	} else {
		estPrice = *req.Price
	}

	required := req.Quantity.Mul(estPrice).Mul(commissionBuffer)
	if available.LessThan(required) {
		return apperrors.Wrapf(apperrors.ErrInsufficientFunds,
			"need %s %s, have %s", required, s.cfg.QuoteAsset, available)
	}
	return nil
}

func (s *Scheduler) checkHoldings(ctx context.Context, req models.OrderRequest) error {
	accounts, err := s.gateway.GetAccounts(ctx)
	if err != nil {
		return apperrors.Wrap(err, "querying balances")
	}
	currency := models.BaseAsset(req.Symbol)
	for _, acc := range accounts {
		if acc.Currency == currency {
			if acc.Available.GreaterThanOrEqual(req.Quantity) {
				return nil
			}
			return apperrors.Wrapf(apperrors.ErrInsufficientHoldings,
				"need %s %s, have %s", req.Quantity, currency, acc.Available)
		}
	}
	return apperrors.Wrapf(apperrors.ErrInsufficientHoldings, "no %s balance", currency)
}

func (s *Scheduler) notifyFill(fill models.Fill) {
	s.obsMu.RLock()
	observers := make([]FillObserver, len(s.fillObservers))
	copy(observers, s.fillObservers)
	s.obsMu.RUnlock()
	for _, fn := range observers {
		fn(fill)
	}
	logging.LogFill(s.logger, fill.OrderID, fill.Symbol, string(fill.Side), fill.Quantity.String(), fill.Price.String())
}

func (s *Scheduler) notifyOrder(order models.OrderResult) {
	s.obsMu.RLock()
	observers := make([]OrderObserver, len(s.orderObservers))
	copy(observers, s.orderObservers)
	s.obsMu.RUnlock()
	for _, fn := range observers {
		fn(order)
	}
}

func (s *Scheduler) notifyPosition(position models.Position) {
	s.obsMu.RLock()
	observers := make([]PositionObserver, len(s.positionObservers))
	copy(observers, s.positionObservers)
	s.obsMu.RUnlock()
	for _, fn := range observers {
		fn(position)
	}
}
