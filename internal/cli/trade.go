package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"bithumb-trader/internal/exchange"
	"bithumb-trader/internal/models"
	"bithumb-trader/internal/scheduler"
	"bithumb-trader/pkg/utils"
)

func newTradeCmd(app *App) *cobra.Command {
	var (
		symbol   string
		side     string
		quantity string
		limit    string
		mark     string
		balance  string
	)

	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Submit a single order through the scheduler (paper mode)",
		Long: `Submit one order through the scheduler against a simulated venue.

The paper venue fills immediately at the posted mark price. Live trading
is intentionally not wired to this command.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			if app.Config.Trading.Mode != "paper" {
				return fmt.Errorf("trade command supports paper mode only, trading.mode is %q", app.Config.Trading.Mode)
			}

			orderSide := models.OrderSide(side)
			if orderSide != models.OrderSideBuy && orderSide != models.OrderSideSell {
				return fmt.Errorf("side must be BUY or SELL, got %q", side)
			}
			qty, err := decimal.NewFromString(quantity)
			if err != nil {
				return fmt.Errorf("invalid quantity: %w", err)
			}
			markPrice, err := decimal.NewFromString(mark)
			if err != nil {
				return fmt.Errorf("invalid mark price: %w", err)
			}
			initialBalance, err := decimal.NewFromString(balance)
			if err != nil {
				return fmt.Errorf("invalid balance: %w", err)
			}
			commissionRate, err := decimal.NewFromString(app.Config.Backtest.CommissionRate)
			if err != nil {
				return err
			}

			paper := exchange.NewPaperGateway(exchange.PaperConfig{
				QuoteAsset:     app.Config.Trading.QuoteAsset,
				InitialBalance: initialBalance,
				CommissionRate: commissionRate,
			})
			paper.SetPrice(symbol, markPrice)
			if orderSide == models.OrderSideSell {
				paper.SetBalance(models.BaseAsset(symbol), qty)
			}
			gateway := exchange.NewBreakerGateway(paper, exchange.DefaultBreakerConfig(), app.Logger)

			schedCfg := scheduler.Config{
				MaxConcurrentOrders:  app.Config.Scheduler.MaxConcurrentOrders,
				MaxRetries:           app.Config.Scheduler.MaxRetries,
				RetryInitialDelay:    app.Config.Scheduler.RetryInitialDelay,
				RetryMaxDelay:        app.Config.Scheduler.RetryMaxDelay,
				PositionSyncInterval: 0, // one-shot, no sync loop
				ShutdownTimeout:      app.Config.Scheduler.ShutdownTimeout,
				QuoteAsset:           app.Config.Trading.QuoteAsset,
			}

			sched := scheduler.New(gateway, schedCfg, app.Logger)
			if err := sched.Start(ctx); err != nil {
				return err
			}
			defer sched.Stop()

			req := models.OrderRequest{
				Symbol:   symbol,
				Side:     orderSide,
				Type:     models.OrderTypeMarket,
				Quantity: qty,
				Reason:   "manual",
			}
			if limit != "" {
				limitPrice, err := decimal.NewFromString(limit)
				if err != nil {
					return fmt.Errorf("invalid limit price: %w", err)
				}
				req.Type = models.OrderTypeLimit
				req.Price = &limitPrice
			}

			orderID, err := sched.Submit(req, models.PriorityNormal)
			if err != nil {
				return err
			}

			result, err := awaitTerminal(ctx, sched, orderID, 10*time.Second)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			printOrderResult(output, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "market symbol, e.g. BTC_KRW")
	cmd.Flags().StringVar(&side, "side", "BUY", "order side, BUY or SELL")
	cmd.Flags().StringVar(&quantity, "quantity", "", "order quantity")
	cmd.Flags().StringVar(&limit, "limit", "", "limit price (market order when omitted)")
	cmd.Flags().StringVar(&mark, "mark", "", "simulated mark price")
	cmd.Flags().StringVar(&balance, "balance", "10000000", "simulated quote balance")
	cmd.MarkFlagRequired("symbol")
	cmd.MarkFlagRequired("quantity")
	cmd.MarkFlagRequired("mark")

	return cmd
}

// awaitTerminal polls the scheduler until the order reaches a terminal
// state or the deadline passes. Resting limit orders report as SUBMITTED.
func awaitTerminal(ctx context.Context, sched *scheduler.Scheduler, orderID string, timeout time.Duration) (models.OrderResult, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		result, ok := sched.Status(orderID)
		// A SUBMITTED order with a venue id is resting on the book; without
		// one it is merely in flight to the venue.
		if ok && (result.Status.IsTerminal() || (result.Status == models.OrderStatusSubmitted && result.OrderID != "")) {
			return result, nil
		}
		if time.Now().After(deadline) {
			if ok {
				return result, nil
			}
			return models.OrderResult{}, errors.New("order did not settle before the deadline")
		}
		select {
		case <-ctx.Done():
			return models.OrderResult{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func printOrderResult(output *Output, result models.OrderResult) {
	output.Bold("Order %s: %s", result.ClientOrderID, result.Status)
	output.Printf("  %s %s %s\n", result.Side, utils.FormatQuantity(result.OriginalQuantity), result.Symbol)
	if result.AveragePrice != nil {
		output.Printf("  Avg price:  %s\n", utils.FormatKRW(*result.AveragePrice))
	}
	if result.ExecutedQuantity.IsPositive() {
		output.Printf("  Executed:   %s\n", utils.FormatQuantity(result.ExecutedQuantity))
		output.Printf("  Commission: %s\n", utils.FormatKRW(result.Commission))
	}
	switch {
	case result.Status == models.OrderStatusFilled:
		output.Success("Filled")
	case result.Status == models.OrderStatusSubmitted:
		output.Warn("Resting on the book (paper venue does not match resting orders)")
	case result.ErrorMessage != "":
		output.Error("%s", result.ErrorMessage)
	}
}
