// Package config provides configuration management for the trading application.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Trading   TradingConfig   `mapstructure:"trading"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Backtest  BacktestConfig  `mapstructure:"backtest"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

// TradingConfig holds trading-related configuration.
type TradingConfig struct {
	Mode         string `mapstructure:"mode"`          // "live", "paper"
	QuoteAsset   string `mapstructure:"quote_asset"`   // settlement currency, e.g. KRW
	Timeframe    string `mapstructure:"timeframe"`     // candle timeframe, e.g. 1h
	RiskFreeRate float64 `mapstructure:"risk_free_rate"` // annualized, for Sharpe/Sortino
}

// SchedulerConfig holds order scheduler configuration.
type SchedulerConfig struct {
	MaxConcurrentOrders int           `mapstructure:"max_concurrent_orders"`
	MaxRetries          int           `mapstructure:"max_retries"`
	RetryInitialDelay   time.Duration `mapstructure:"retry_initial_delay"`
	RetryMaxDelay       time.Duration `mapstructure:"retry_max_delay"`
	PositionSyncInterval time.Duration `mapstructure:"position_sync_interval"`
	ShutdownTimeout     time.Duration `mapstructure:"shutdown_timeout"`
}

// BacktestConfig holds backtest defaults.
type BacktestConfig struct {
	CommissionRate string `mapstructure:"commission_rate"` // decimal string, e.g. "0.0025"
	SlippageRate   string `mapstructure:"slippage_rate"`   // decimal string, e.g. "0.001"
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
	File    bool   `mapstructure:"file"`
}

// DatabaseConfig holds persistence configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/bithumb-trader"
	}
	return filepath.Join(home, ".config", "bithumb-trader")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.yaml: %w", err)
		}
		// Missing config file is fine, defaults apply.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("trading.mode", "paper")
	v.SetDefault("trading.quote_asset", "KRW")
	v.SetDefault("trading.timeframe", "1h")
	v.SetDefault("trading.risk_free_rate", 0.02)

	v.SetDefault("scheduler.max_concurrent_orders", 5)
	v.SetDefault("scheduler.max_retries", 3)
	v.SetDefault("scheduler.retry_initial_delay", 100*time.Millisecond)
	v.SetDefault("scheduler.retry_max_delay", 10*time.Second)
	v.SetDefault("scheduler.position_sync_interval", time.Minute)
	v.SetDefault("scheduler.shutdown_timeout", 10*time.Second)

	v.SetDefault("backtest.commission_rate", "0.0025")
	v.SetDefault("backtest.slippage_rate", "0.001")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)

	v.SetDefault("database.path", filepath.Join(DefaultConfigDir(), "trader.db"))
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
	if v := os.Getenv("TRADER_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("TRADER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Trading.Mode != "live" && c.Trading.Mode != "paper" {
		return fmt.Errorf("trading.mode must be live or paper, got %q", c.Trading.Mode)
	}
	if c.Scheduler.MaxConcurrentOrders <= 0 {
		return fmt.Errorf("scheduler.max_concurrent_orders must be positive, got %d", c.Scheduler.MaxConcurrentOrders)
	}
	if c.Scheduler.MaxRetries < 0 {
		return fmt.Errorf("scheduler.max_retries must not be negative, got %d", c.Scheduler.MaxRetries)
	}
	if c.Scheduler.RetryInitialDelay <= 0 {
		return fmt.Errorf("scheduler.retry_initial_delay must be positive, got %s", c.Scheduler.RetryInitialDelay)
	}
	return nil
}
