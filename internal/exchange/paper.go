package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "bithumb-trader/internal/errors"
	"bithumb-trader/internal/models"
)

// PaperGateway simulates a venue in memory: orders fill immediately at the
// posted ticker price (or the limit price when it admits), balances move
// with commission included. Used by tests and dry runs.
type PaperGateway struct {
	mu sync.RWMutex

	quoteAsset     string
	commissionRate decimal.Decimal

	prices   map[string]decimal.Decimal
	candles  map[string][]models.Candle
	balances map[string]decimal.Decimal
	orders   map[string]models.OrderResult

	orderCounter int
	now          func() time.Time
}

// PaperConfig configures the simulated venue.
type PaperConfig struct {
	QuoteAsset     string
	InitialBalance decimal.Decimal
	CommissionRate decimal.Decimal
}

// NewPaperGateway creates a paper gateway holding the configured quote
// balance.
func NewPaperGateway(cfg PaperConfig) *PaperGateway {
	quote := cfg.QuoteAsset
	if quote == "" {
		quote = "KRW"
	}
	g := &PaperGateway{
		quoteAsset:     quote,
		commissionRate: cfg.CommissionRate,
		prices:         make(map[string]decimal.Decimal),
		candles:        make(map[string][]models.Candle),
		balances:       make(map[string]decimal.Decimal),
		orders:         make(map[string]models.OrderResult),
		now:            time.Now,
	}
	g.balances[quote] = cfg.InitialBalance
	return g
}

// SetPrice posts the current price for a symbol.
func (g *PaperGateway) SetPrice(symbol string, price decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prices[symbol] = price
}

// SetCandles loads candle history for GetCandles to serve.
func (g *PaperGateway) SetCandles(symbol string, candles []models.Candle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.candles[symbol] = candles
}

// SetBalance overrides one asset balance.
func (g *PaperGateway) SetBalance(currency string, amount decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balances[currency] = amount
}

// GetTicker returns the posted price for the symbol.
func (g *PaperGateway) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	price, ok := g.prices[symbol]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrDataNotFound, "no price posted for %s", symbol)
	}
	return &Ticker{
		Symbol:    symbol,
		Price:     price,
		Timestamp: g.now(),
	}, nil
}

// GetCandles returns up to limit most recent candles for the symbol.
func (g *PaperGateway) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	series, ok := g.candles[symbol]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrDataNotFound, "no candles loaded for %s", symbol)
	}
	if limit > 0 && len(series) > limit {
		series = series[len(series)-limit:]
	}
	out := make([]models.Candle, len(series))
	copy(out, series)
	return out, nil
}

// GetAccounts returns all non-zero balances.
func (g *PaperGateway) GetAccounts(ctx context.Context) ([]Account, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	accounts := make([]Account, 0, len(g.balances))
	for currency, balance := range g.balances {
		if balance.IsZero() {
			continue
		}
		accounts = append(accounts, Account{
			Currency:  currency,
			Balance:   balance,
			Available: balance,
		})
	}
	return accounts, nil
}

// PlaceOrder fills the request immediately against the posted price.
func (g *PaperGateway) PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	price, ok := g.prices[req.Symbol]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrDataNotFound, "no price posted for %s", req.Symbol)
	}

	execPrice := price
	if req.Type == models.OrderTypeLimit {
		// Limit orders only fill when the market admits them.
		if req.Side == models.OrderSideBuy && price.GreaterThan(*req.Price) {
			return g.restingOrder(req), nil
		}
		if req.Side == models.OrderSideSell && price.LessThan(*req.Price) {
			return g.restingOrder(req), nil
		}
		execPrice = *req.Price
	}

	notional := execPrice.Mul(req.Quantity)
	commission := notional.Mul(g.commissionRate)

	// Holdings are keyed by base currency, matching how the venue reports
	// account balances.
	base := models.BaseAsset(req.Symbol)

	if req.Side == models.OrderSideBuy {
		cost := notional.Add(commission)
		if g.balances[g.quoteAsset].LessThan(cost) {
			return nil, apperrors.Wrapf(apperrors.ErrInsufficientFunds,
				"need %s, have %s", cost, g.balances[g.quoteAsset])
		}
		g.balances[g.quoteAsset] = g.balances[g.quoteAsset].Sub(cost)
		g.balances[base] = g.balances[base].Add(req.Quantity)
	} else {
		if g.balances[base].LessThan(req.Quantity) {
			return nil, apperrors.Wrapf(apperrors.ErrInsufficientHoldings,
				"need %s %s, have %s", req.Quantity, base, g.balances[base])
		}
		g.balances[base] = g.balances[base].Sub(req.Quantity)
		g.balances[g.quoteAsset] = g.balances[g.quoteAsset].Add(notional.Sub(commission))
	}

	result := models.OrderResult{
		OrderID:           g.nextOrderID(),
		ClientOrderID:     req.ClientOrderID,
		Symbol:            req.Symbol,
		Side:              req.Side,
		Type:              req.Type,
		Status:            models.OrderStatusFilled,
		OriginalQuantity:  req.Quantity,
		ExecutedQuantity:  req.Quantity,
		RemainingQuantity: decimal.Zero,
		AveragePrice:      &execPrice,
		Commission:        commission,
		CreatedAt:         g.now(),
		UpdatedAt:         g.now(),
	}
	g.orders[result.OrderID] = result
	return &result, nil
}

func (g *PaperGateway) restingOrder(req models.OrderRequest) *models.OrderResult {
	result := models.OrderResult{
		OrderID:           g.nextOrderID(),
		ClientOrderID:     req.ClientOrderID,
		Symbol:            req.Symbol,
		Side:              req.Side,
		Type:              req.Type,
		Status:            models.OrderStatusSubmitted,
		OriginalQuantity:  req.Quantity,
		RemainingQuantity: req.Quantity,
		Price:             req.Price,
		CreatedAt:         g.now(),
		UpdatedAt:         g.now(),
	}
	g.orders[result.OrderID] = result
	return &result
}

func (g *PaperGateway) nextOrderID() string {
	g.orderCounter++
	return fmt.Sprintf("PAPER-%d-%s", g.orderCounter, uuid.NewString()[:8])
}

// CancelOrder cancels a resting order. Filled orders cannot be cancelled.
func (g *PaperGateway) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	order, ok := g.orders[orderID]
	if !ok {
		return false, apperrors.ErrOrderNotFound
	}
	if !order.Status.IsCancellable() {
		return false, nil
	}
	order.Status = models.OrderStatusCancelled
	order.UpdatedAt = g.now()
	g.orders[orderID] = order
	return true, nil
}

// GetOrders returns orders matching the filter.
func (g *PaperGateway) GetOrders(ctx context.Context, filter OrderFilter) ([]models.OrderResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []models.OrderResult
	for _, order := range g.orders {
		if filter.Symbol != "" && order.Symbol != filter.Symbol {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if !filter.Since.IsZero() && order.CreatedAt.Before(filter.Since) {
			continue
		}
		out = append(out, order)
	}
	return out, nil
}

var _ Gateway = (*PaperGateway)(nil)
