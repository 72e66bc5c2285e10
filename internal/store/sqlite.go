// Package store persists strategy parameters, signal audit records, and
// candle history in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "bithumb-trader/internal/errors"
	"bithumb-trader/internal/models"
	"bithumb-trader/internal/strategy"
)

// SQLiteStore implements strategy.ParameterSource and
// strategy.SignalRecorder on a single SQLite file. Prices are stored as
// TEXT so decimal values round-trip exactly.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db, logger: logger.With().Str("component", "store").Logger()}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS parameters (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		data TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS signals (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		signal TEXT NOT NULL,
		price TEXT NOT NULL,
		strength TEXT NOT NULL,
		rsi TEXT,
		atr TEXT,
		volume_ratio TEXT,
		reasons TEXT NOT NULL,
		quantity TEXT NOT NULL,
		notional TEXT NOT NULL,
		stop_loss TEXT,
		take_profit TEXT,
		parameters TEXT NOT NULL,
		signal_time DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_signals_symbol_time ON signals(symbol, signal_time);

	CREATE TABLE IF NOT EXISTS candles (
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		timestamp_ms INTEGER NOT NULL,
		open TEXT NOT NULL,
		high TEXT NOT NULL,
		low TEXT NOT NULL,
		close TEXT NOT NULL,
		volume TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (symbol, timeframe, timestamp_ms)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadParameters returns the persisted parameter set. On first run the
// defaults are written and returned.
func (s *SQLiteStore) LoadParameters(ctx context.Context) (strategy.Parameters, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM parameters WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		params := strategy.DefaultParameters()
		if err := s.SaveParameters(ctx, params); err != nil {
			return strategy.Parameters{}, err
		}
		s.logger.Info().Msg("No stored parameters, wrote defaults")
		return params, nil
	}
	if err != nil {
		return strategy.Parameters{}, apperrors.NewPersistenceError("load_parameters", err)
	}

	var params strategy.Parameters
	if err := json.Unmarshal([]byte(data), &params); err != nil {
		return strategy.Parameters{}, apperrors.NewPersistenceError("load_parameters", err)
	}
	if err := params.Validate(); err != nil {
		return strategy.Parameters{}, err
	}
	return params, nil
}

// SaveParameters validates and persists the parameter set.
func (s *SQLiteStore) SaveParameters(ctx context.Context, params strategy.Parameters) error {
	if err := params.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(params)
	if err != nil {
		return apperrors.NewPersistenceError("save_parameters", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO parameters (id, data, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(data), time.Now().UTC())
	if err != nil {
		return apperrors.NewPersistenceError("save_parameters", err)
	}
	return nil
}

// RecordSignal writes one audit record for a non-HOLD decision.
func (s *SQLiteStore) RecordSignal(ctx context.Context, decision models.SignalDecision, assessment models.RiskAssessment, params strategy.Parameters) error {
	reasons, err := json.Marshal(decision.Reasons)
	if err != nil {
		return apperrors.NewPersistenceError("record_signal", err)
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return apperrors.NewPersistenceError("record_signal", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO signals (
			id, symbol, signal, price, strength, rsi, atr, volume_ratio,
			reasons, quantity, notional, stop_loss, take_profit, parameters, signal_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(),
		decision.Symbol,
		string(decision.Signal),
		decision.Price.String(),
		decision.Strength.String(),
		decimalPtr(decision.RSI),
		decimalPtr(decision.ATR),
		decimalPtr(decision.VolumeRatio),
		string(reasons),
		assessment.Quantity.String(),
		assessment.Notional.String(),
		decimalPtr(assessment.StopLoss),
		decimalPtr(assessment.TakeProfit),
		string(paramsJSON),
		decision.Timestamp.UTC(),
	)
	if err != nil {
		return apperrors.NewPersistenceError("record_signal", err)
	}
	return nil
}

// SignalRecord is one persisted audit row.
type SignalRecord struct {
	ID       string
	Symbol   string
	Signal   models.SignalType
	Price    decimal.Decimal
	Strength decimal.Decimal
	Reasons  []string
	Quantity decimal.Decimal
	At       time.Time
}

// RecentSignals returns the latest audit records, newest first.
func (s *SQLiteStore) RecentSignals(ctx context.Context, limit int) ([]SignalRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, signal, price, strength, reasons, quantity, signal_time
		FROM signals ORDER BY signal_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperrors.NewPersistenceError("recent_signals", err)
	}
	defer rows.Close()

	var records []SignalRecord
	for rows.Next() {
		var r SignalRecord
		var price, strength, quantity, reasons string
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Signal, &price, &strength, &reasons, &quantity, &r.At); err != nil {
			return nil, apperrors.NewPersistenceError("recent_signals", err)
		}
		if r.Price, err = decimal.NewFromString(price); err != nil {
			return nil, apperrors.NewPersistenceError("recent_signals", err)
		}
		if r.Strength, err = decimal.NewFromString(strength); err != nil {
			return nil, apperrors.NewPersistenceError("recent_signals", err)
		}
		if r.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, apperrors.NewPersistenceError("recent_signals", err)
		}
		if err := json.Unmarshal([]byte(reasons), &r.Reasons); err != nil {
			return nil, apperrors.NewPersistenceError("recent_signals", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// SaveCandles upserts candles for one symbol and timeframe in a single
// transaction. Duplicate timestamps replace the stored row.
func (s *SQLiteStore) SaveCandles(ctx context.Context, timeframe string, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewPersistenceError("save_candles", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (symbol, timeframe, timestamp_ms, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, timeframe, timestamp_ms) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume`)
	if err != nil {
		return apperrors.NewPersistenceError("save_candles", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx,
			c.Symbol, timeframe, c.Timestamp.UnixMilli(),
			c.Open.String(), c.High.String(), c.Low.String(), c.Close.String(), c.Volume.String(),
		); err != nil {
			return apperrors.NewPersistenceError("save_candles", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.NewPersistenceError("save_candles", err)
	}
	return nil
}

// GetCandles returns candles in [from, to] in timestamp order.
func (s *SQLiteStore) GetCandles(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, timestamp_ms, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND timeframe = ? AND timestamp_ms BETWEEN ? AND ?
		ORDER BY timestamp_ms`,
		symbol, timeframe, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, apperrors.NewPersistenceError("get_candles", err)
	}
	defer rows.Close()
	return scanCandles(rows)
}

// LatestCandles returns the most recent limit candles in timestamp order.
func (s *SQLiteStore) LatestCandles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, timestamp_ms, open, high, low, close, volume
		FROM (
			SELECT * FROM candles
			WHERE symbol = ? AND timeframe = ?
			ORDER BY timestamp_ms DESC LIMIT ?
		) ORDER BY timestamp_ms`,
		symbol, timeframe, limit)
	if err != nil {
		return nil, apperrors.NewPersistenceError("latest_candles", err)
	}
	defer rows.Close()
	return scanCandles(rows)
}

func scanCandles(rows *sql.Rows) ([]models.Candle, error) {
	var candles []models.Candle
	for rows.Next() {
		var c models.Candle
		var ms int64
		var open, high, low, closeP, volume string
		if err := rows.Scan(&c.Symbol, &ms, &open, &high, &low, &closeP, &volume); err != nil {
			return nil, apperrors.NewPersistenceError("scan_candles", err)
		}
		c.Timestamp = time.UnixMilli(ms).UTC()
		var err error
		if c.Open, err = decimal.NewFromString(open); err != nil {
			return nil, apperrors.NewPersistenceError("scan_candles", err)
		}
		if c.High, err = decimal.NewFromString(high); err != nil {
			return nil, apperrors.NewPersistenceError("scan_candles", err)
		}
		if c.Low, err = decimal.NewFromString(low); err != nil {
			return nil, apperrors.NewPersistenceError("scan_candles", err)
		}
		if c.Close, err = decimal.NewFromString(closeP); err != nil {
			return nil, apperrors.NewPersistenceError("scan_candles", err)
		}
		if c.Volume, err = decimal.NewFromString(volume); err != nil {
			return nil, apperrors.NewPersistenceError("scan_candles", err)
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

func decimalPtr(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

var (
	_ strategy.ParameterSource = (*SQLiteStore)(nil)
	_ strategy.SignalRecorder  = (*SQLiteStore)(nil)
)
