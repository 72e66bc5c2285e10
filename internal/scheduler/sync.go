package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"bithumb-trader/internal/logging"
	"bithumb-trader/internal/models"
)

func (s *Scheduler) syncLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.PositionSyncInterval)
	defer ticker.Stop()

	// One pass up front so positions exist before the first interval.
	s.SyncPositions(ctx)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SyncPositions(ctx)
		}
	}
}

// SyncPositions rebuilds position state wholesale from venue balances.
// External deposits, withdrawals, and manual trades change true holdings,
// so fills alone cannot be trusted as the source of truth. A balance with
// no known cost basis is marked at the current price.
func (s *Scheduler) SyncPositions(ctx context.Context) {
	start := time.Now()
	accounts, err := s.gateway.GetAccounts(ctx)
	if err != nil {
		logging.LogPositionSync(s.logger, 0, time.Since(start), err)
		return
	}

	now := time.Now()
	count := 0
	for _, acc := range accounts {
		if acc.Currency == s.cfg.QuoteAsset || !acc.Balance.IsPositive() {
			continue
		}
		symbol := fmt.Sprintf("%s_%s", acc.Currency, s.cfg.QuoteAsset)

		ticker, err := s.gateway.GetTicker(ctx, symbol)
		if err != nil {
			s.logger.Debug().Err(err).Str("symbol", symbol).Msg("No ticker during position sync")
			continue
		}
		price := ticker.Price

		s.mu.Lock()
		position, ok := s.positions[symbol]
		if ok {
			position.Quantity = acc.Balance
			position.MarketPrice = price
			position.UnrealizedPnL = price.Sub(position.AveragePrice).Mul(acc.Balance)
			position.LastUpdated = now
		} else {
			position = &models.Position{
				Symbol:        symbol,
				Quantity:      acc.Balance,
				AveragePrice:  price, // unknown basis, estimate at mark
				MarketPrice:   price,
				UnrealizedPnL: decimal.Zero,
				RealizedPnL:   decimal.Zero,
				EntryTime:     now,
				LastUpdated:   now,
			}
			s.positions[symbol] = position
		}
		snapshot := *position
		s.mu.Unlock()

		s.notifyPosition(snapshot)
		count++
	}
	logging.LogPositionSync(s.logger, count, time.Since(start), nil)
}
