// Package sqlitestore implements ports.StateStore on SQLite. Position state
// is a single upserted row per trading mode; trade history is append-only.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"kdjbot/internal/domain"
	"kdjbot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Store implements the ports.StateStore interface using SQLite.
type Store struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite store.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// New creates a new SQLite store instance and initializes the schema.
func New(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite store")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/kdjbot.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency between the bot and the report tool.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("%w: failed to ping database at '%s': %v", ports.ErrStoreUnavailable, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from a
	// single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, logger: cfg.Logger}

	if err := s.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite store ready", map[string]interface{}{"path": dbPath})

	return s, nil
}

func (s *Store) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS position_state (
		mode TEXT PRIMARY KEY,
		in_position INTEGER NOT NULL,
		side TEXT NOT NULL DEFAULT '',
		entry_price REAL NOT NULL DEFAULT 0,
		quantity REAL NOT NULL DEFAULT 0,
		last_action TEXT NOT NULL DEFAULT '',
		last_action_price REAL NOT NULL DEFAULT 0,
		leverage INTEGER NOT NULL DEFAULT 1,
		regime TEXT NOT NULL DEFAULT 'TRENDING',
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trade_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mode TEXT NOT NULL,
		kind TEXT NOT NULL,
		price REAL NOT NULL,
		quantity REAL NOT NULL,
		quote_value REAL NOT NULL,
		executed_at TIMESTAMP NOT NULL,
		realized_pnl REAL DEFAULT NULL,
		leverage INTEGER NOT NULL DEFAULT 1,
		details TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_trade_history_mode_time ON trade_history (mode, executed_at);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		s.logger.Info(context.Background(), "Closing SQLite store")
		return s.db.Close()
	}
	return nil
}

// LoadPositionState retrieves the persisted state for a mode.
// Returns nil, nil when no state has been saved yet.
func (s *Store) LoadPositionState(ctx context.Context, mode domain.TradingMode) (*domain.PositionState, error) {
	const query = `
	SELECT in_position, side, entry_price, quantity, last_action, last_action_price, leverage, regime
	FROM position_state
	WHERE mode = ?`

	var (
		state      domain.PositionState
		inPosition int
		side       string
		lastAction string
		regime     string
	)
	err := s.db.QueryRowContext(ctx, query, mode.Key()).Scan(
		&inPosition, &side, &state.EntryPrice, &state.Quantity,
		&lastAction, &state.LastActionPrice, &state.Leverage, &regime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Debug(ctx, "No persisted state for mode", map[string]interface{}{"mode": mode})
			return nil, nil
		}
		return nil, fmt.Errorf("%w: loading state for mode %s: %v", ports.ErrQueryFailed, mode, err)
	}

	state.InPosition = inPosition != 0
	state.Side = domain.PositionSide(side)
	state.LastAction = domain.TradeKind(lastAction)
	state.Regime = domain.Regime(regime)
	return &state, nil
}

// SavePositionState durably replaces the state for a mode. The upsert is a
// single statement, so a partially written record is never observable.
func (s *Store) SavePositionState(ctx context.Context, mode domain.TradingMode, state *domain.PositionState) error {
	const query = `
	INSERT INTO position_state (mode, in_position, side, entry_price, quantity, last_action, last_action_price, leverage, regime, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(mode) DO UPDATE SET
		in_position = excluded.in_position,
		side = excluded.side,
		entry_price = excluded.entry_price,
		quantity = excluded.quantity,
		last_action = excluded.last_action,
		last_action_price = excluded.last_action_price,
		leverage = excluded.leverage,
		regime = excluded.regime,
		updated_at = excluded.updated_at`

	inPosition := 0
	if state.InPosition {
		inPosition = 1
	}
	_, err := s.db.ExecContext(ctx, query,
		mode.Key(), inPosition, string(state.Side), state.EntryPrice, state.Quantity,
		string(state.LastAction), state.LastActionPrice, state.Leverage, string(state.Regime),
		time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: saving state for mode %s: %v", ports.ErrQueryFailed, mode, err)
	}
	s.logger.Debug(ctx, "Position state saved", map[string]interface{}{
		"mode":       mode,
		"inPosition": state.InPosition,
		"side":       state.Side,
	})
	return nil
}

// AppendTrade durably appends one trade record. Details are stored as JSON.
func (s *Store) AppendTrade(ctx context.Context, mode domain.TradingMode, trade *domain.Trade) error {
	const query = `
	INSERT INTO trade_history (mode, kind, price, quantity, quote_value, executed_at, realized_pnl, leverage, details)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	details := trade.Details
	if details == nil {
		details = map[string]interface{}{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to marshal trade details: %w", err)
	}

	var pnl sql.NullFloat64
	if trade.RealizedPnL != nil {
		pnl = sql.NullFloat64{Float64: *trade.RealizedPnL, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, query,
		mode.Key(), string(trade.Kind), trade.Price, trade.Quantity, trade.QuoteValue,
		trade.Timestamp, pnl, trade.Leverage, string(detailsJSON))
	if err != nil {
		return fmt.Errorf("%w: appending trade for mode %s: %v", ports.ErrQueryFailed, mode, err)
	}
	return nil
}

// LoadTrades retrieves all recorded trades for a mode, oldest first.
func (s *Store) LoadTrades(ctx context.Context, mode domain.TradingMode) ([]*domain.Trade, error) {
	const query = `
	SELECT kind, price, quantity, quote_value, executed_at, realized_pnl, leverage, details
	FROM trade_history
	WHERE mode = ?
	ORDER BY executed_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, mode.Key())
	if err != nil {
		return nil, fmt.Errorf("%w: querying trades for mode %s: %v", ports.ErrQueryFailed, mode, err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

func scanTrade(rows *sql.Rows) (*domain.Trade, error) {
	var (
		trade       domain.Trade
		kind        string
		pnl         sql.NullFloat64
		detailsJSON string
	)
	if err := rows.Scan(&kind, &trade.Price, &trade.Quantity, &trade.QuoteValue,
		&trade.Timestamp, &pnl, &trade.Leverage, &detailsJSON); err != nil {
		return nil, err
	}

	trade.Kind = domain.TradeKind(kind)
	if pnl.Valid {
		v := pnl.Float64
		trade.RealizedPnL = &v
	}
	if detailsJSON != "" {
		if err := json.Unmarshal([]byte(detailsJSON), &trade.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trade details: %w", err)
		}
	}
	if trade.Details == nil {
		trade.Details = map[string]interface{}{}
	}
	return &trade, nil
}
