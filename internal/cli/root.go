// Package cli provides the command-line interface for the trading application.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"bithumb-trader/internal/config"
	"bithumb-trader/internal/store"
)

// Version information
const Version = "0.1.0"

// App holds the application dependencies shared by all commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Store  *store.SQLiteStore
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{Config: cfg, Logger: logger}

	dataStore, err := store.NewSQLiteStore(cfg.Database.Path, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to open store, persistence-backed commands unavailable")
	} else {
		app.Store = dataStore
	}

	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "Bithumb Trader - automated crypto trading CLI",
		Long: `Bithumb Trader is an automated trading system for the Bithumb exchange.

It generates EMA/RSI/volume signals with risk-budgeted sizing, schedules
orders with retry and position reconciliation, and replays candle history
through a deterministic backtest simulator.

Use 'trader help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/bithumb-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newEvaluateCmd(app))
	rootCmd.AddCommand(newBacktestCmd(app))
	rootCmd.AddCommand(newParamsCmd(app))
	rootCmd.AddCommand(newDataCmd(app))
	rootCmd.AddCommand(newTradeCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"version": Version})
				return
			}
			output.Printf("Bithumb Trader v%s\n", Version)
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			output.Bold("Trading")
			output.Printf("  Mode:        %s\n", app.Config.Trading.Mode)
			output.Printf("  Quote asset: %s\n", app.Config.Trading.QuoteAsset)
			output.Printf("  Timeframe:   %s\n", app.Config.Trading.Timeframe)
			output.Println()
			output.Bold("Scheduler")
			output.Printf("  Max concurrent orders: %d\n", app.Config.Scheduler.MaxConcurrentOrders)
			output.Printf("  Max retries:           %d\n", app.Config.Scheduler.MaxRetries)
			output.Printf("  Position sync:         %s\n", app.Config.Scheduler.PositionSyncInterval)
			output.Println()
			output.Bold("Database")
			output.Printf("  Path: %s\n", app.Config.Database.Path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
				return
			}
			output.Println(config.DefaultConfigDir())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("Configuration is valid")
			return nil
		},
	})

	return cmd
}
