package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kdjbot/config"
	"kdjbot/internal/domain"
	"kdjbot/internal/ports"
	"kdjbot/internal/risk"
	"kdjbot/internal/strategy"
)

// --- Mocks ---

type mockLogger struct{}

func (mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockStore struct {
	savedStates []*domain.PositionState
	trades      []*domain.Trade
}

func (m *mockStore) LoadPositionState(ctx context.Context, mode domain.TradingMode) (*domain.PositionState, error) {
	if len(m.savedStates) == 0 {
		return nil, nil
	}
	return m.savedStates[len(m.savedStates)-1], nil
}

func (m *mockStore) SavePositionState(ctx context.Context, mode domain.TradingMode, state *domain.PositionState) error {
	saved := *state
	m.savedStates = append(m.savedStates, &saved)
	return nil
}

func (m *mockStore) LoadTrades(ctx context.Context, mode domain.TradingMode) ([]*domain.Trade, error) {
	return m.trades, nil
}

func (m *mockStore) AppendTrade(ctx context.Context, mode domain.TradingMode, trade *domain.Trade) error {
	m.trades = append(m.trades, trade)
	return nil
}

type placedOrder struct {
	side     domain.OrderSide
	quantity float64
}

type mockGateway struct {
	price       float64
	candles     map[domain.Timeframe][]*domain.Candle
	balances    map[string]float64
	orderResult *ports.OrderResult
	orderErr    error
	openPos     *ports.OpenPosition
	lotStep     float64
	placed      []placedOrder
}

func (m *mockGateway) GetCurrentPrice(ctx context.Context, pair string) (float64, error) {
	return m.price, nil
}

func (m *mockGateway) GetCandles(ctx context.Context, pair string, tf domain.Timeframe, limit int) ([]*domain.Candle, error) {
	return m.candles[tf], nil
}

func (m *mockGateway) GetBalance(ctx context.Context, asset string) (float64, error) {
	return m.balances[asset], nil
}

func (m *mockGateway) GetOpenPosition(ctx context.Context, pair string) (*ports.OpenPosition, error) {
	return m.openPos, nil
}

func (m *mockGateway) PlaceMarketOrder(ctx context.Context, pair string, side domain.OrderSide, quantity float64) (*ports.OrderResult, error) {
	m.placed = append(m.placed, placedOrder{side: side, quantity: quantity})
	if m.orderErr != nil {
		return nil, m.orderErr
	}
	if m.orderResult != nil {
		return m.orderResult, nil
	}
	return &ports.OrderResult{OrderID: 1, ExecutedQty: quantity, CumQuoteQty: quantity * m.price}, nil
}

func (m *mockGateway) SetLeverage(ctx context.Context, pair string, leverage int) error { return nil }

func (m *mockGateway) GetMaxLeverage(ctx context.Context, pair string) (int, error) { return 20, nil }

func (m *mockGateway) GetLotStepSize(ctx context.Context, pair string) (float64, error) {
	return m.lotStep, nil
}

// --- Helpers ---

func newTestService(t *testing.T, mode domain.TradingMode, gw *mockGateway, store *mockStore) *TradingService {
	t.Helper()
	cfg := &config.Config{
		Symbol:        "BTCUSDT",
		Mode:          mode,
		Leverage:      1,
		CheckInterval: 30 * time.Second,
	}
	if mode == domain.ModeFutures {
		cfg.Leverage = 3
	}

	svc, err := NewTradingService(cfg, mockLogger{}, gw, store)
	require.NoError(t, err)

	// Fields normally populated by initialize.
	svc.state = &domain.PositionState{Leverage: cfg.Leverage, Regime: domain.RegimeTrending}
	svc.regime = strategy.NewRegimeDetector(domain.RegimeTrending)
	svc.kdjParams = svc.paramsForRegime(domain.RegimeTrending)
	svc.lotStep = gw.lotStep
	svc.lastReportTime = time.Now() // suppress the hourly report in tests
	return svc
}

// --- Tests ---

func TestNewTradingService_Validation(t *testing.T) {
	cfg := &config.Config{Symbol: "BTCUSDT", Mode: domain.ModeSpot, Leverage: 1}
	gw := &mockGateway{}
	store := &mockStore{}

	_, err := NewTradingService(nil, mockLogger{}, gw, store)
	assert.Error(t, err)

	_, err = NewTradingService(cfg, nil, gw, store)
	assert.Error(t, err)

	bad := *cfg
	bad.Symbol = ""
	_, err = NewTradingService(&bad, mockLogger{}, gw, store)
	assert.Error(t, err)

	_, err = NewTradingService(cfg, mockLogger{}, gw, store)
	assert.NoError(t, err)
}

func TestSplitSymbol(t *testing.T) {
	base, quote := splitSymbol("BTCUSDT")
	assert.Equal(t, "BTC", base)
	assert.Equal(t, "USDT", quote)

	base, quote = splitSymbol("ETHBTC")
	assert.Equal(t, "ETH", base)
	assert.Equal(t, "BTC", quote)
}

func TestFloorToStep(t *testing.T) {
	assert.InDelta(t, 0.123, floorToStep(0.12345, 0.001), 1e-12)
	assert.InDelta(t, 5, floorToStep(5.9, 1), 1e-12)
	// Zero step passes through.
	assert.InDelta(t, 0.12345, floorToStep(0.12345, 0), 1e-12)
}

func TestExtractFill(t *testing.T) {
	// Weighted average over fills takes priority.
	price, qty, fallback := extractFill(&ports.OrderResult{
		ExecutedQty: 2,
		CumQuoteQty: 999, // ignored when fills are present
		Fills: []ports.Fill{
			{Price: 100, Quantity: 1},
			{Price: 110, Quantity: 1},
		},
	}, 105, 2)
	assert.False(t, fallback)
	assert.InDelta(t, 105, price, 1e-9)
	assert.InDelta(t, 2, qty, 1e-9)

	// Cumulative quote value next.
	price, qty, fallback = extractFill(&ports.OrderResult{ExecutedQty: 2, CumQuoteQty: 210}, 100, 2)
	assert.False(t, fallback)
	assert.InDelta(t, 105, price, 1e-9)

	// Reported average price next.
	price, _, fallback = extractFill(&ports.OrderResult{ExecutedQty: 1, AvgPrice: 99.5}, 100, 1)
	assert.False(t, fallback)
	assert.InDelta(t, 99.5, price, 1e-9)

	// No executed quantity: requested values with the fallback flag.
	price, qty, fallback = extractFill(&ports.OrderResult{OrderID: 7}, 100, 3)
	assert.True(t, fallback)
	assert.InDelta(t, 100, price, 1e-9)
	assert.InDelta(t, 3, qty, 1e-9)
}

func TestEnterPosition_SpotHappyPath(t *testing.T) {
	gw := &mockGateway{
		price:    100,
		balances: map[string]float64{"USDT": 1000, "BTC": 7.5},
		orderResult: &ports.OrderResult{
			OrderID:     11,
			ExecutedQty: 7.5,
			CumQuoteQty: 750,
		},
	}
	store := &mockStore{}
	svc := newTestService(t, domain.ModeSpot, gw, store)
	ctx := context.Background()

	require.NoError(t, svc.enterPosition(ctx, 100, 7.5, domain.SideLong, 1000))

	require.Len(t, gw.placed, 1)
	assert.Equal(t, domain.Buy, gw.placed[0].side)

	assert.True(t, svc.state.InPosition)
	assert.Equal(t, domain.SideLong, svc.state.Side)
	assert.InDelta(t, 100, svc.state.EntryPrice, 1e-9)
	assert.InDelta(t, 7.5, svc.state.Quantity, 1e-9)
	assert.Equal(t, domain.TradeBuy, svc.state.LastAction)

	require.Len(t, store.trades, 1)
	assert.Equal(t, domain.TradeBuy, store.trades[0].Kind)
	assert.False(t, store.trades[0].Fallback())
	require.NotEmpty(t, store.savedStates)
	assert.True(t, store.savedStates[len(store.savedStates)-1].InPosition)
}

func TestEnterPosition_NoDirectionChangeWithoutFlat(t *testing.T) {
	gw := &mockGateway{price: 100, balances: map[string]float64{"USDT": 1000}}
	store := &mockStore{}
	svc := newTestService(t, domain.ModeFutures, gw, store)
	svc.state.InPosition = true
	svc.state.Side = domain.SideShort
	svc.state.EntryPrice = 100
	svc.state.Quantity = 1

	require.NoError(t, svc.enterPosition(context.Background(), 100, 1, domain.SideLong, 1000))

	// No order placed; the short position is untouched.
	assert.Empty(t, gw.placed)
	assert.True(t, svc.state.IsShort())
}

func TestEnterPosition_BalanceAdjusted(t *testing.T) {
	// Sizing asked for 10 units at 100 but only 500 quote available:
	// adjusted to 500*0.995/100 = 4.975 units.
	gw := &mockGateway{price: 100, balances: map[string]float64{"USDT": 500, "BTC": 4.975}}
	store := &mockStore{}
	svc := newTestService(t, domain.ModeSpot, gw, store)

	require.NoError(t, svc.enterPosition(context.Background(), 100, 10, domain.SideLong, 500))

	require.Len(t, gw.placed, 1)
	assert.InDelta(t, 4.975, gw.placed[0].quantity, 1e-9)
}

func TestEnterPosition_BelowMinNotionalAborts(t *testing.T) {
	gw := &mockGateway{price: 100, balances: map[string]float64{"USDT": 5}}
	store := &mockStore{}
	svc := newTestService(t, domain.ModeSpot, gw, store)

	require.NoError(t, svc.enterPosition(context.Background(), 100, 0.05, domain.SideLong, 5))
	assert.Empty(t, gw.placed)
	assert.False(t, svc.state.InPosition)
}

func TestEnterPosition_FallbackFillFlagsTrade(t *testing.T) {
	gw := &mockGateway{
		price:       100,
		balances:    map[string]float64{"USDT": 1000, "BTC": 2},
		orderResult: &ports.OrderResult{OrderID: 12}, // no fill data at all
	}
	store := &mockStore{}
	svc := newTestService(t, domain.ModeSpot, gw, store)

	require.NoError(t, svc.enterPosition(context.Background(), 100, 2, domain.SideLong, 1000))

	assert.True(t, svc.state.InPosition)
	assert.InDelta(t, 100, svc.state.EntryPrice, 1e-9) // requested price
	require.Len(t, store.trades, 1)
	assert.True(t, store.trades[0].Fallback())
}

func TestExitPosition_SpotHappyPath(t *testing.T) {
	gw := &mockGateway{
		price:    110,
		balances: map[string]float64{"USDT": 0, "BTC": 2},
		orderResult: &ports.OrderResult{
			OrderID:     21,
			ExecutedQty: 2,
			CumQuoteQty: 220,
		},
	}
	store := &mockStore{}
	svc := newTestService(t, domain.ModeSpot, gw, store)
	svc.state.InPosition = true
	svc.state.Side = domain.SideLong
	svc.state.EntryPrice = 100
	svc.state.Quantity = 2

	require.NoError(t, svc.exitPosition(context.Background(), 110, risk.ReasonTakeProfit))

	require.Len(t, gw.placed, 1)
	assert.Equal(t, domain.Sell, gw.placed[0].side)

	assert.False(t, svc.state.InPosition)
	assert.Equal(t, domain.TradeSell, svc.state.LastAction)

	require.Len(t, store.trades, 1)
	trade := store.trades[0]
	assert.Equal(t, domain.TradeSell, trade.Kind)
	require.NotNil(t, trade.RealizedPnL)
	assert.InDelta(t, 20, *trade.RealizedPnL, 1e-9) // 220 - 200
	assert.Equal(t, string(risk.ReasonTakeProfit), trade.Details["exit_reason"])
}

func TestExitPosition_ShortPnLMirrored(t *testing.T) {
	gw := &mockGateway{
		price: 90,
		orderResult: &ports.OrderResult{
			OrderID:     22,
			ExecutedQty: 1,
			AvgPrice:    90,
		},
	}
	store := &mockStore{}
	svc := newTestService(t, domain.ModeFutures, gw, store)
	svc.state.InPosition = true
	svc.state.Side = domain.SideShort
	svc.state.EntryPrice = 100
	svc.state.Quantity = 1

	require.NoError(t, svc.exitPosition(context.Background(), 90, risk.ReasonTakeProfit))

	require.Len(t, gw.placed, 1)
	assert.Equal(t, domain.Buy, gw.placed[0].side)

	require.Len(t, store.trades, 1)
	trade := store.trades[0]
	assert.Equal(t, domain.TradeCloseShort, trade.Kind)
	require.NotNil(t, trade.RealizedPnL)
	assert.InDelta(t, 10, *trade.RealizedPnL, 1e-9) // 100 - 90 on 1 unit
}

func TestExitPosition_InsufficientFundsForcesFlat(t *testing.T) {
	gw := &mockGateway{
		price:    100,
		balances: map[string]float64{"BTC": 2},
		orderErr: ports.ErrInsufficientFunds,
	}
	store := &mockStore{}
	svc := newTestService(t, domain.ModeSpot, gw, store)
	svc.state.InPosition = true
	svc.state.Side = domain.SideLong
	svc.state.EntryPrice = 100
	svc.state.Quantity = 2

	require.NoError(t, svc.exitPosition(context.Background(), 100, risk.ReasonTrailingStop))

	// The order was attempted, failed, and local state was corrected.
	require.Len(t, gw.placed, 1)
	assert.False(t, svc.state.InPosition)
	assert.Empty(t, store.trades)
	require.NotEmpty(t, store.savedStates)
	assert.False(t, store.savedStates[len(store.savedStates)-1].InPosition)
}

func TestExitPosition_FallbackRecordsNoPnL(t *testing.T) {
	gw := &mockGateway{
		price:       100,
		balances:    map[string]float64{"BTC": 2},
		orderResult: &ports.OrderResult{OrderID: 23}, // response lost fill data
	}
	store := &mockStore{}
	svc := newTestService(t, domain.ModeSpot, gw, store)
	svc.state.InPosition = true
	svc.state.Side = domain.SideLong
	svc.state.EntryPrice = 100
	svc.state.Quantity = 2

	require.NoError(t, svc.exitPosition(context.Background(), 100, risk.ReasonSignal))

	assert.False(t, svc.state.InPosition)
	require.Len(t, store.trades, 1)
	assert.True(t, store.trades[0].Fallback())
	assert.Nil(t, store.trades[0].RealizedPnL)
}

func TestManageOpenPosition_DustBalanceForcesFlat(t *testing.T) {
	gw := &mockGateway{price: 100, balances: map[string]float64{"BTC": 0.00001}}
	store := &mockStore{}
	svc := newTestService(t, domain.ModeSpot, gw, store)
	svc.state.InPosition = true
	svc.state.Side = domain.SideLong
	svc.state.EntryPrice = 100
	svc.state.Quantity = 2

	fused := strategy.FusedSignal{Signal: domain.SignalHold, Regime: domain.RegimeTrending}
	rp := domain.DefaultRiskParams()[domain.RegimeTrending]
	require.NoError(t, svc.manageOpenPosition(context.Background(), 100, fused, rp))

	assert.False(t, svc.state.InPosition)
	assert.Empty(t, gw.placed)
}

func TestReconcileStartupState_AdoptsLiveFuturesPosition(t *testing.T) {
	gw := &mockGateway{
		price:   100,
		openPos: &ports.OpenPosition{Side: domain.SideShort, Quantity: 0.4, EntryPrice: 101},
	}
	store := &mockStore{}
	svc := newTestService(t, domain.ModeFutures, gw, store)

	require.NoError(t, svc.reconcileStartupState(context.Background()))

	assert.True(t, svc.state.IsShort())
	assert.InDelta(t, 0.4, svc.state.Quantity, 1e-9)
	assert.InDelta(t, 101, svc.state.EntryPrice, 1e-9)
}

func TestReconcileStartupState_DropsStalePosition(t *testing.T) {
	gw := &mockGateway{price: 100} // no live position
	store := &mockStore{}
	svc := newTestService(t, domain.ModeFutures, gw, store)
	svc.state.InPosition = true
	svc.state.Side = domain.SideLong
	svc.state.EntryPrice = 100
	svc.state.Quantity = 1

	require.NoError(t, svc.reconcileStartupState(context.Background()))
	assert.False(t, svc.state.InPosition)
}

func TestSetCheckInterval(t *testing.T) {
	svc := newTestService(t, domain.ModeSpot, &mockGateway{}, &mockStore{})

	assert.Error(t, svc.SetCheckInterval(5*time.Second))
	require.NoError(t, svc.SetCheckInterval(time.Minute))
	assert.Equal(t, time.Minute, svc.interval())
}

func TestSetKDJParams(t *testing.T) {
	svc := newTestService(t, domain.ModeSpot, &mockGateway{}, &mockStore{})

	assert.Error(t, svc.SetKDJParams(domain.TimeframeFast, domain.KDJParams{KPeriod: 99, KSmooth: 3, DSmooth: 3}))
	assert.Error(t, svc.SetKDJParams(domain.Timeframe("BOGUS"), domain.KDJParams{KPeriod: 9, KSmooth: 3, DSmooth: 3}))

	params := domain.KDJParams{KPeriod: 11, KSmooth: 4, DSmooth: 4}
	require.NoError(t, svc.SetKDJParams(domain.TimeframeFast, params))
	assert.Equal(t, params, svc.kdjParams[domain.TimeframeFast])

	// Reset restores the regime preset.
	svc.ResetKDJParams()
	assert.Equal(t, domain.DefaultKDJParams()[domain.TimeframeFast], svc.kdjParams[domain.TimeframeFast])
}

func TestSetLeverage_SpotRejected(t *testing.T) {
	svc := newTestService(t, domain.ModeSpot, &mockGateway{}, &mockStore{})
	assert.Error(t, svc.SetLeverage(context.Background(), 5))
}

func TestSetLeverage_ClampedToExchangeMax(t *testing.T) {
	svc := newTestService(t, domain.ModeFutures, &mockGateway{}, &mockStore{})
	require.NoError(t, svc.SetLeverage(context.Background(), 50)) // mock max is 20
	assert.Equal(t, 20, svc.cfg.Leverage)
}

func TestSummary(t *testing.T) {
	store := &mockStore{}
	svc := newTestService(t, domain.ModeSpot, &mockGateway{}, store)
	require.NoError(t, svc.ledger.Load(context.Background()))

	svc.ledger.Record(context.Background(), domain.NewTrade(domain.TradeBuy, 100, 1, 1))
	svc.ledger.Record(context.Background(), domain.NewTrade(domain.TradeSell, 110, 1, 1).WithPnL(10))

	s := svc.Summary()
	assert.Equal(t, 2, s.TotalTrades)
	assert.InDelta(t, 10, s.TotalPnL, 1e-9)
	assert.InDelta(t, 10, s.ROIPct, 1e-9)
}
