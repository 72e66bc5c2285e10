package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"bithumb-trader/internal/backtest"
	"bithumb-trader/internal/performance"
	"bithumb-trader/pkg/utils"
)

func newBacktestCmd(app *App) *cobra.Command {
	var (
		symbol    string
		timeframe string
		limit     int
		capital   string
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay stored candle history through the strategy",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.requireStore(); err != nil {
				return err
			}
			ctx := cmd.Context()

			if timeframe == "" {
				timeframe = app.Config.Trading.Timeframe
			}

			params, err := app.Store.LoadParameters(ctx)
			if err != nil {
				return err
			}

			cfg := backtest.DefaultConfig()
			cfg.Parameters = params
			if cfg.InitialCapital, err = decimal.NewFromString(capital); err != nil {
				return err
			}
			if cfg.CommissionRate, err = decimal.NewFromString(app.Config.Backtest.CommissionRate); err != nil {
				return err
			}
			if cfg.SlippageRate, err = decimal.NewFromString(app.Config.Backtest.SlippageRate); err != nil {
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

			sim, err := backtest.NewSimulator(cfg, app.Logger)
			if err != nil {
				return err
			}
			if err := sim.AddCandles(symbol, candles); err != nil {
				return err
			}

			result, err := sim.Run(ctx)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(result)
			}

			s := result.Summary
			output.Bold("Backtest: %s %s over %d candles", symbol, timeframe, len(candles))
			output.Printf("  Initial capital: %s\n", utils.FormatKRW(s.InitialCapital))
			output.Printf("  Final equity:    %s\n", utils.FormatKRW(s.FinalEquity))
			output.Printf("  Return:          %s\n", utils.FormatPercent(s.TotalReturnPct))
			output.Printf("  Commission paid: %s\n", utils.FormatKRW(s.TotalCommission))
			output.Printf("  Signals/orders/fills: %d/%d/%d\n",
				result.SignalsGenerated, result.OrdersPlaced, result.OrdersFilled)
			output.Println()

			analyzerCfg := performance.DefaultAnalyzerConfig()
			analyzerCfg.RiskFreeRate = app.Config.Trading.RiskFreeRate
			analyzer := performance.NewAnalyzer(analyzerCfg, app.Logger)
			output.Println(analyzer.SummaryReport(result.Metrics))
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "market symbol, e.g. BTC_KRW")
	cmd.Flags().StringVar(&timeframe, "timeframe", "", "candle timeframe (default from config)")
	cmd.Flags().IntVar(&limit, "limit", 5000, "number of stored candles to replay")
	cmd.Flags().StringVar(&capital, "capital", "10000000", "starting capital")
	cmd.MarkFlagRequired("symbol")

	return cmd
}
