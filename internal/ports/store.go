package ports

import (
	"context"

	"kdjbot/internal/domain"
)

// StateStore persists the bot's position state and append-only trade
// history. Spot and futures use independent namespaces keyed by mode.
// SavePositionState is all-or-nothing per call: a partially written state
// record is never observable.
type StateStore interface {
	// LoadPositionState retrieves the persisted state for a mode.
	// Returns nil, nil when no state has been saved yet.
	LoadPositionState(ctx context.Context, mode domain.TradingMode) (*domain.PositionState, error)

	// SavePositionState durably replaces the state for a mode.
	SavePositionState(ctx context.Context, mode domain.TradingMode, state *domain.PositionState) error

	// LoadTrades retrieves all recorded trades for a mode, oldest first.
	LoadTrades(ctx context.Context, mode domain.TradingMode) ([]*domain.Trade, error)

	// AppendTrade durably appends one trade record.
	AppendTrade(ctx context.Context, mode domain.TradingMode, trade *domain.Trade) error
}
