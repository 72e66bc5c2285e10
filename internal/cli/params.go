package cli

import (
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newParamsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "params",
		Short: "Show or update strategy parameters",
	}
	cmd.AddCommand(newParamsShowCmd(app))
	cmd.AddCommand(newParamsSetCmd(app))
	return cmd
}

func newParamsShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active parameter set",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.requireStore(); err != nil {
				return err
			}
			params, err := app.Store.LoadParameters(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(params)
			}

			output.Bold("Signal")
			output.Printf("  EMA periods:     %d / %d\n", params.ShortEMAPeriod, params.LongEMAPeriod)
			output.Printf("  RSI period:      %d (buy %s-%s, sell <=%s, overbought >=%s)\n",
				params.RSIPeriod, params.RSIBuyMin, params.RSIBuyMax, params.RSISellThreshold, params.RSIOverbought)
			output.Printf("  ATR period:      %d (x%s)\n", params.ATRPeriod, params.ATRMultiplier)
			output.Printf("  Volume MA:       %d (threshold %s)\n", params.VolumeMAPeriod, params.VolumeRatioThreshold)
			output.Println()
			output.Bold("Risk")
			output.Printf("  Stop loss:       %s\n", params.StopLossPct)
			output.Printf("  Target profit:   %s (partial %s)\n", params.TargetProfitPct, params.PartialTakeProfitPct)
			output.Printf("  Max positions:   %d (crowding threshold %s)\n", params.MaxConcurrentPositions, params.CorrelationThreshold)
			output.Printf("  Risk per trade:  %s (capital per position %s)\n", params.MaxRiskPerTrade, params.CapitalAllocationPerPosition)
			output.Printf("  Kelly:           win rate %s, reward/risk %s\n", params.KellyWinRate, params.KellyRewardRisk)
			output.Println()
			output.Printf("  Refresh every %d minutes\n", params.ParameterRefreshMinutes)
			return nil
		},
	}
}

func newParamsSetCmd(app *App) *cobra.Command {
	var (
		shortEMA     int
		longEMA      int
		rsiPeriod    int
		stopLoss     string
		targetProfit string
		maxPositions int
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update strategy parameters",
		Long:  "Update individual strategy parameters. Only flags you pass change; the rest keep their stored values.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.requireStore(); err != nil {
				return err
			}
			ctx := cmd.Context()

			params, err := app.Store.LoadParameters(ctx)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("short-ema") {
				params.ShortEMAPeriod = shortEMA
			}
			if flags.Changed("long-ema") {
				params.LongEMAPeriod = longEMA
			}
			if flags.Changed("rsi-period") {
				params.RSIPeriod = rsiPeriod
			}
			if flags.Changed("stop-loss") {
				if params.StopLossPct, err = decimal.NewFromString(stopLoss); err != nil {
					return err
				}
			}
			if flags.Changed("target-profit") {
				if params.TargetProfitPct, err = decimal.NewFromString(targetProfit); err != nil {
					return err
				}
			}
			if flags.Changed("max-positions") {
				params.MaxConcurrentPositions = maxPositions
			}

			if err := app.Store.SaveParameters(ctx, params); err != nil {
				output.Error("Parameters rejected: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(params)
			}
			output.Success("Parameters updated")
			return nil
		},
	}

	cmd.Flags().IntVar(&shortEMA, "short-ema", 0, "short EMA period")
	cmd.Flags().IntVar(&longEMA, "long-ema", 0, "long EMA period")
	cmd.Flags().IntVar(&rsiPeriod, "rsi-period", 0, "RSI period")
	cmd.Flags().StringVar(&stopLoss, "stop-loss", "", "stop loss fraction, e.g. 0.03")
	cmd.Flags().StringVar(&targetProfit, "target-profit", "", "target profit fraction, e.g. 0.02")
	cmd.Flags().IntVar(&maxPositions, "max-positions", 0, "maximum concurrent positions")

	return cmd
}
