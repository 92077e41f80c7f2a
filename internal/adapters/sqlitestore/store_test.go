package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kdjbot/internal/adapters/logger"
	"kdjbot/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(Config{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: logger.NewStdLogger(logger.LevelError),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_RequiresLogger(t *testing.T) {
	_, err := New(Config{DBPath: filepath.Join(t.TempDir(), "x.db")})
	assert.Error(t, err)
}

func TestStore_PositionStateRoundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Nothing persisted yet.
	state, err := store.LoadPositionState(ctx, domain.ModeSpot)
	require.NoError(t, err)
	assert.Nil(t, state)

	saved := &domain.PositionState{
		InPosition:      true,
		Side:            domain.SideLong,
		EntryPrice:      50123.45,
		Quantity:        0.0025,
		LastAction:      domain.TradeBuy,
		LastActionPrice: 50123.45,
		Leverage:        1,
		Regime:          domain.RegimeRanging,
	}
	require.NoError(t, store.SavePositionState(ctx, domain.ModeSpot, saved))

	loaded, err := store.LoadPositionState(ctx, domain.ModeSpot)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, saved, loaded)

	// Upsert replaces the row rather than adding one.
	saved.Flatten()
	saved.LastAction = domain.TradeSell
	require.NoError(t, store.SavePositionState(ctx, domain.ModeSpot, saved))

	loaded, err = store.LoadPositionState(ctx, domain.ModeSpot)
	require.NoError(t, err)
	assert.False(t, loaded.InPosition)
	assert.Empty(t, loaded.Side)
	assert.Equal(t, domain.TradeSell, loaded.LastAction)
}

func TestStore_ModeNamespacesAreIndependent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	spotState := &domain.PositionState{InPosition: true, Side: domain.SideLong, EntryPrice: 100, Quantity: 1, Leverage: 1, Regime: domain.RegimeTrending}
	futState := &domain.PositionState{InPosition: true, Side: domain.SideShort, EntryPrice: 200, Quantity: 2, Leverage: 5, Regime: domain.RegimeTrending}

	require.NoError(t, store.SavePositionState(ctx, domain.ModeSpot, spotState))
	require.NoError(t, store.SavePositionState(ctx, domain.ModeFutures, futState))

	loadedSpot, err := store.LoadPositionState(ctx, domain.ModeSpot)
	require.NoError(t, err)
	loadedFut, err := store.LoadPositionState(ctx, domain.ModeFutures)
	require.NoError(t, err)

	assert.Equal(t, domain.SideLong, loadedSpot.Side)
	assert.Equal(t, domain.SideShort, loadedFut.Side)
	assert.Equal(t, 5, loadedFut.Leverage)

	// Trades are namespaced the same way.
	require.NoError(t, store.AppendTrade(ctx, domain.ModeSpot, domain.NewTrade(domain.TradeBuy, 100, 1, 1)))

	spotTrades, err := store.LoadTrades(ctx, domain.ModeSpot)
	require.NoError(t, err)
	futTrades, err := store.LoadTrades(ctx, domain.ModeFutures)
	require.NoError(t, err)
	assert.Len(t, spotTrades, 1)
	assert.Empty(t, futTrades)
}

func TestStore_TradeRoundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := domain.NewTrade(domain.TradeLong, 3000.5, 0.1, 3)
	entry.Details[domain.DetailOrderID] = int64(42)
	entry.Timestamp = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	exit := domain.NewTrade(domain.TradeCloseLong, 3100.0, 0.1, 3).WithPnL(9.95)
	exit.Details[domain.DetailFallbackValues] = true
	exit.Timestamp = time.Date(2026, 8, 1, 14, 0, 0, 0, time.UTC)

	require.NoError(t, store.AppendTrade(ctx, domain.ModeFutures, entry))
	require.NoError(t, store.AppendTrade(ctx, domain.ModeFutures, exit))

	trades, err := store.LoadTrades(ctx, domain.ModeFutures)
	require.NoError(t, err)
	require.Len(t, trades, 2)

	// Oldest first.
	assert.Equal(t, domain.TradeLong, trades[0].Kind)
	assert.Nil(t, trades[0].RealizedPnL)
	assert.Equal(t, 3, trades[0].Leverage)

	assert.Equal(t, domain.TradeCloseLong, trades[1].Kind)
	require.NotNil(t, trades[1].RealizedPnL)
	assert.InDelta(t, 9.95, *trades[1].RealizedPnL, 1e-9)
	assert.True(t, trades[1].Fallback())
}

func TestStore_StatePersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "restart.db")
	log := logger.NewStdLogger(logger.LevelError)
	ctx := context.Background()

	store, err := New(Config{DBPath: dbPath, Logger: log})
	require.NoError(t, err)

	state := &domain.PositionState{InPosition: true, Side: domain.SideLong, EntryPrice: 100, Quantity: 0.5, Leverage: 1, Regime: domain.RegimeTrending}
	require.NoError(t, store.SavePositionState(ctx, domain.ModeSpot, state))
	require.NoError(t, store.Close())

	reopened, err := New(Config{DBPath: dbPath, Logger: log})
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.LoadPositionState(ctx, domain.ModeSpot)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, state, loaded)
}
