package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kdjbot/internal/domain"
	"kdjbot/internal/ports"
)

type fakeStore struct {
	trades    []*domain.Trade
	appendErr error
	loadErr   error
}

func (f *fakeStore) LoadPositionState(ctx context.Context, mode domain.TradingMode) (*domain.PositionState, error) {
	return nil, nil
}

func (f *fakeStore) SavePositionState(ctx context.Context, mode domain.TradingMode, state *domain.PositionState) error {
	return nil
}

func (f *fakeStore) LoadTrades(ctx context.Context, mode domain.TradingMode) ([]*domain.Trade, error) {
	return f.trades, f.loadErr
}

func (f *fakeStore) AppendTrade(ctx context.Context, mode domain.TradingMode, trade *domain.Trade) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.trades = append(f.trades, trade)
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func TestLedger_LoadAndRecord(t *testing.T) {
	store := &fakeStore{trades: []*domain.Trade{
		domain.NewTrade(domain.TradeBuy, 100, 1, 1),
	}}
	l := New(domain.ModeSpot, store, nopLogger{})

	require.NoError(t, l.Load(context.Background()))
	assert.Len(t, l.Trades(), 1)

	l.Record(context.Background(), domain.NewTrade(domain.TradeSell, 105, 1, 1).WithPnL(5))
	assert.Len(t, l.Trades(), 2)
	assert.Len(t, store.trades, 2)
}

func TestLedger_LoadError(t *testing.T) {
	store := &fakeStore{loadErr: ports.ErrQueryFailed}
	l := New(domain.ModeSpot, store, nopLogger{})

	err := l.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrQueryFailed)
}

func TestLedger_RecordSurvivesStoreFailure(t *testing.T) {
	store := &fakeStore{appendErr: errors.New("disk full")}
	l := New(domain.ModeSpot, store, nopLogger{})

	l.Record(context.Background(), domain.NewTrade(domain.TradeBuy, 100, 1, 1))

	// In-memory history grows even though persistence failed.
	assert.Len(t, l.Trades(), 1)
	assert.Empty(t, store.trades)
}

func TestLedger_Aggregate(t *testing.T) {
	l := New(domain.ModeFutures, &fakeStore{}, nopLogger{})
	ctx := context.Background()

	l.Record(ctx, domain.NewTrade(domain.TradeLong, 100, 2, 3))                   // entry, value 200
	l.Record(ctx, domain.NewTrade(domain.TradeCloseLong, 110, 2, 3).WithPnL(20))  // exit, value 220
	l.Record(ctx, domain.NewTrade(domain.TradeShort, 110, 1, 3))                  // entry, value 110
	l.Record(ctx, domain.NewTrade(domain.TradeCloseShort, 115, 1, 3).WithPnL(-5)) // exit, value 115
	// An exit without fill data carries no P&L and must not skew TotalPnL.
	l.Record(ctx, domain.NewTrade(domain.TradeCloseLong, 100, 1, 3))

	s := l.Aggregate()
	assert.Equal(t, 5, s.TotalTrades)
	assert.Equal(t, 2, s.EntryTrades)
	assert.Equal(t, 3, s.ExitTrades)
	assert.InDelta(t, 15.0, s.TotalPnL, 1e-9)
	assert.InDelta(t, 310.0, s.TotalBuyVolume, 1e-9)
	assert.InDelta(t, 435.0, s.TotalSellVolume, 1e-9)
	assert.InDelta(t, 15.0/310.0*100, s.ROIPct, 1e-9)
}

func TestLedger_AggregateEmpty(t *testing.T) {
	l := New(domain.ModeSpot, &fakeStore{}, nopLogger{})
	s := l.Aggregate()
	assert.Zero(t, s.TotalTrades)
	assert.Zero(t, s.ROIPct)
}

func TestFormatReport(t *testing.T) {
	s := Summary{
		TotalPnL:        12.3456,
		TotalBuyVolume:  1000,
		TotalSellVolume: 1012.3456,
		ROIPct:          1.23456,
		TotalTrades:     4,
		EntryTrades:     2,
		ExitTrades:      2,
	}
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	report := FormatReport(s, domain.ModeSpot, domain.RegimeTrending, 512.5, now)
	assert.Contains(t, report, "PROFIT/LOSS REPORT: 2026-08-27 12:00:00")
	assert.Contains(t, report, "TRADING MODE: SPOT")
	assert.Contains(t, report, "MARKET CONDITION: TRENDING")
	assert.Contains(t, report, "Total Profit/Loss: 12.3456 USDT")
	assert.Contains(t, report, "ROI: 1.23%")
	assert.Contains(t, report, "Entry Trades: 2")
}
