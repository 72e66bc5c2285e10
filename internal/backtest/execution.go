package backtest

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bithumb-trader/internal/models"
)

// ExecutionHandler turns order events into fills against the current
// candle close, applying slippage and commission.
type ExecutionHandler struct {
	slippageRate   decimal.Decimal
	commissionRate decimal.Decimal
	logger         zerolog.Logger
}

// NewExecutionHandler creates a handler with the given slippage and
// commission rates (both fractions, e.g. 0.001 and 0.0025).
func NewExecutionHandler(slippageRate, commissionRate decimal.Decimal, logger zerolog.Logger) *ExecutionHandler {
	return &ExecutionHandler{
		slippageRate:   slippageRate,
		commissionRate: commissionRate,
		logger:         logger.With().Str("component", "execution").Logger(),
	}
}

// Execute fills the order against the market price, or returns nil when a
// limit order is not admissible at the slipped price.
func (h *ExecutionHandler) Execute(order OrderEvent, marketPrice decimal.Decimal) *FillEvent {
	slipped := h.slip(order.Side, marketPrice)

	fillPrice := slipped
	if order.Type == models.OrderTypeLimit && order.Price != nil {
		limit := *order.Price
		// Slippage works against the taker. A buy whose slipped price
		// exceeds the limit cannot fill; same for a sell below it.
		if order.Side == models.OrderSideBuy && slipped.GreaterThan(limit) {
			h.logger.Debug().
				Str("order_id", order.OrderID).
				Str("limit", limit.String()).
				Str("slipped", slipped.String()).
				Msg("limit buy not admissible")
			return nil
		}
		if order.Side == models.OrderSideSell && slipped.LessThan(limit) {
			h.logger.Debug().
				Str("order_id", order.OrderID).
				Str("limit", limit.String()).
				Str("slipped", slipped.String()).
				Msg("limit sell not admissible")
			return nil
		}
		fillPrice = limit
	}

	commission := order.Quantity.Mul(fillPrice).Mul(h.commissionRate)
	return &FillEvent{
		At:         order.At,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Quantity:   order.Quantity,
		FillPrice:  fillPrice,
		Commission: commission,
		OrderID:    order.OrderID,
		FillID:     uuid.New().String(),
	}
}

// slip moves the price against the order's side.
func (h *ExecutionHandler) slip(side models.OrderSide, price decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if side == models.OrderSideBuy {
		return price.Mul(one.Add(h.slippageRate))
	}
	return price.Mul(one.Sub(h.slippageRate))
}
