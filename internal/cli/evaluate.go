package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"bithumb-trader/internal/models"
	"bithumb-trader/internal/strategy"
	"bithumb-trader/pkg/utils"
)

var errStoreUnavailable = errors.New("store is unavailable, check database.path")

func (a *App) requireStore() error {
	if a.Store == nil {
		return errStoreUnavailable
	}
	return nil
}

func newEvaluateCmd(app *App) *cobra.Command {
	var (
		symbol    string
		timeframe string
		limit     int
		equity    string
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run one strategy evaluation for a symbol from stored candles",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.requireStore(); err != nil {
				return err
			}
			ctx := cmd.Context()

			if timeframe == "" {
				timeframe = app.Config.Trading.Timeframe
			}
			equityValue, err := decimal.NewFromString(equity)
			if err != nil {
				return err
			}

			candles, err := app.Store.LatestCandles(ctx, symbol, timeframe, limit)
			if err != nil {
				return err
			}
			if len(candles) == 0 {
				output.Error("No stored candles for %s %s; import some with 'trader data import'", symbol, timeframe)
				return errors.New("no candle data")
			}

			engine, err := strategy.NewEngine(ctx, app.Store, app.Store, app.Logger)
			if err != nil {
				return err
			}

			result, err := engine.Evaluate(ctx, strategy.Context{
				Symbol:    symbol,
				Candles:   candles,
				Equity:    equityValue,
				Portfolio: models.NewPortfolioState(),
				AsOf:      candles[len(candles)-1].Timestamp,
			})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			printDecision(output, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "market symbol, e.g. BTC_KRW")
	cmd.Flags().StringVar(&timeframe, "timeframe", "", "candle timeframe (default from config)")
	cmd.Flags().IntVar(&limit, "limit", 200, "number of stored candles to evaluate")
	cmd.Flags().StringVar(&equity, "equity", "10000000", "account equity for position sizing")
	cmd.MarkFlagRequired("symbol")

	return cmd
}

func printDecision(output *Output, result strategy.Result) {
	d := result.Signal
	output.Bold("Decision: %s %s", d.Signal, d.Symbol)
	output.Printf("  Price:    %s\n", utils.FormatKRW(d.Price))
	output.Printf("  Strength: %s\n", d.Strength.StringFixed(2))
	if d.RSI != nil {
		output.Printf("  RSI:      %s\n", d.RSI.StringFixed(2))
	}
	if d.VolumeRatio != nil {
		output.Printf("  Vol mult: %s\n", d.VolumeRatio.StringFixed(2))
	}
	for _, reason := range d.Reasons {
		output.Dim("  - %s", reason)
	}

	if d.Signal == models.SignalHold {
		return
	}
	r := result.Risk
	if r.Blocked() {
		output.Warn("Risk limits block this trade")
		return
	}
	output.Println()
	output.Bold("Sizing")
	output.Printf("  Quantity: %s\n", utils.FormatQuantity(r.Quantity))
	output.Printf("  Notional: %s\n", utils.FormatKRW(r.Notional))
	output.Printf("  Risk:     %s\n", utils.FormatKRW(r.RiskAmount))
	if r.StopLoss != nil {
		output.Printf("  Stop:     %s\n", utils.FormatKRW(*r.StopLoss))
	}
	if r.TakeProfit != nil {
		output.Printf("  Target:   %s\n", utils.FormatKRW(*r.TakeProfit))
	}
	if r.TrailingStop != nil {
		output.Printf("  Trailing: %s\n", utils.FormatKRW(*r.TrailingStop))
	}
}
