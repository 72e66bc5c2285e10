package cli

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"bithumb-trader/internal/models"
	"bithumb-trader/pkg/utils"
)

func newDataCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Manage stored candle history",
	}
	cmd.AddCommand(newDataImportCmd(app))
	cmd.AddCommand(newDataShowCmd(app))
	return cmd
}

func newDataImportCmd(app *App) *cobra.Command {
	var (
		symbol    string
		timeframe string
	)

	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import candles from a CSV export",
		Long: `Import candles from a CSV file into the store.

Rows use the venue's candlestick field order:
timestamp_ms,open,close,high,low,volume`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.requireStore(); err != nil {
				return err
			}
			if timeframe == "" {
				timeframe = app.Config.Trading.Timeframe
			}

			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			reader := csv.NewReader(file)
			reader.FieldsPerRecord = -1

			var candles []models.Candle
			line := 0
			for {
				record, err := reader.Read()
				if err == io.EOF {
					break
				}
				if err != nil {
					return fmt.Errorf("reading %s: %w", args[0], err)
				}
				line++
				candle, err := models.ParseCandle(symbol, record)
				if err != nil {
					return fmt.Errorf("line %d: %w", line, err)
				}
				candles = append(candles, candle)
			}
			if len(candles) == 0 {
				return fmt.Errorf("no candle rows in %s", args[0])
			}

			if err := app.Store.SaveCandles(cmd.Context(), timeframe, candles); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"imported": len(candles), "symbol": symbol, "timeframe": timeframe})
			}
			output.Success("Imported %d candles for %s %s", len(candles), symbol, timeframe)
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "market symbol, e.g. BTC_KRW")
	cmd.Flags().StringVar(&timeframe, "timeframe", "", "candle timeframe (default from config)")
	cmd.MarkFlagRequired("symbol")

	return cmd
}

func newDataShowCmd(app *App) *cobra.Command {
	var (
		symbol    string
		timeframe string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the latest stored candles",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.requireStore(); err != nil {
				return err
			}
			if timeframe == "" {
				timeframe = app.Config.Trading.Timeframe
			}

			candles, err := app.Store.LatestCandles(cmd.Context(), symbol, timeframe, limit)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(candles)
			}

			output.Bold("%s %s (%d candles)", symbol, timeframe, len(candles))
			for _, c := range candles {
				output.Printf("  %s  O %s  H %s  L %s  C %s  V %s\n",
					c.Timestamp.Format("2006-01-02 15:04"),
					utils.FormatKRW(c.Open), utils.FormatKRW(c.High),
					utils.FormatKRW(c.Low), utils.FormatKRW(c.Close),
					utils.FormatQuantity(c.Volume))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "market symbol, e.g. BTC_KRW")
	cmd.Flags().StringVar(&timeframe, "timeframe", "", "candle timeframe (default from config)")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of candles to show")
	cmd.MarkFlagRequired("symbol")

	return cmd
}
