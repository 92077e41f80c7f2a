// Package app orchestrates the trading bot: the evaluation loop, order
// execution and operator commands, wired to the exchange gateway and state
// store through their ports.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"kdjbot/config"
	"kdjbot/internal/domain"
	"kdjbot/internal/ledger"
	"kdjbot/internal/ports"
	"kdjbot/internal/risk"
	"kdjbot/internal/strategy"
	"kdjbot/internal/strategy/indicators"
)

const (
	// candleFetchLimit is how many candles each timeframe fetch requests,
	// enough for the longest KDJ window plus Bollinger history.
	candleFetchLimit = 100

	// minCheckInterval is the floor for the evaluation cadence.
	minCheckInterval = 10 * time.Second

	// cycleMaxAttempts bounds per-cycle retries before waiting for the next tick.
	cycleMaxAttempts = 3
	cycleRetryDelay  = 5 * time.Second

	// reportInterval is the cadence of the automatic profit report.
	reportInterval = time.Hour

	// dustBalance is the spot base-asset balance below which a position is
	// considered gone.
	dustBalance = 0.0001
)

// TradingService orchestrates the trading bot's operations.
type TradingService struct {
	cfg      *config.Config
	logger   ports.Logger
	exchange ports.ExchangeGateway
	store    ports.StateStore
	ledger   *ledger.Ledger
	regime   *strategy.RegimeDetector

	baseAsset  string
	quoteAsset string

	// State fields
	mu             sync.Mutex // Protects access to state fields below
	stop           context.CancelFunc
	state          *domain.PositionState
	kdjParams      map[domain.Timeframe]domain.KDJParams
	riskParams     map[domain.Regime]domain.RiskParams
	checkInterval  time.Duration
	lotStep        float64
	lastReportTime time.Time
}

// NewTradingService creates a new application service instance.
func NewTradingService(
	cfg *config.Config,
	logger ports.Logger,
	exchange ports.ExchangeGateway,
	store ports.StateStore,
) (*TradingService, error) {
	if cfg == nil || logger == nil || exchange == nil || store == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("configuration Symbol must be set")
	}
	if cfg.Leverage <= 0 {
		return nil, fmt.Errorf("configuration Leverage must be positive")
	}

	base, quote := splitSymbol(cfg.Symbol)
	if base == "" || quote == "" {
		return nil, fmt.Errorf("could not derive assets from symbol %q", cfg.Symbol)
	}

	interval := cfg.CheckInterval
	if interval < minCheckInterval {
		interval = minCheckInterval
	}

	return &TradingService{
		cfg:           cfg,
		logger:        logger,
		exchange:      exchange,
		store:         store,
		ledger:        ledger.New(cfg.Mode, store, logger),
		baseAsset:     base,
		quoteAsset:    quote,
		riskParams:    cfg.RiskParams(),
		checkInterval: interval,
	}, nil
}

// splitSymbol derives base and quote assets from a pair symbol. USDT quotes
// are the common case; everything else assumes a 3-letter quote.
func splitSymbol(symbol string) (base, quote string) {
	if strings.HasSuffix(symbol, "USDT") {
		return symbol[:len(symbol)-4], "USDT"
	}
	if len(symbol) > 3 {
		return symbol[:len(symbol)-3], symbol[len(symbol)-3:]
	}
	return "", ""
}

// Start begins the trading bot's main loop and blocks until the context is
// canceled or a shutdown signal arrives.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Trading Service...", map[string]interface{}{
		"symbol": s.cfg.Symbol,
		"mode":   s.cfg.Mode,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.stop = cancel
	s.mu.Unlock()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.initialize(ctx); err != nil {
		return err
	}

	// --- Main Loop ---
	// First evaluation runs immediately, then on the configured cadence.
	s.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case <-time.After(s.interval()):
			s.runCycle(ctx)
		}
	}
}

func (s *TradingService) interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkInterval
}

// initialize performs the startup sequence: leverage and lot-size setup,
// state restore and reconciliation against the live exchange.
func (s *TradingService) initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 1. Leverage (futures only), clamped to the exchange maximum.
	if s.cfg.Mode == domain.ModeFutures {
		maxLev, err := s.exchange.GetMaxLeverage(ctx, s.cfg.Symbol)
		if err != nil {
			s.logger.Warn(ctx, "Could not query max leverage, keeping configured value", map[string]interface{}{"leverage": s.cfg.Leverage})
		} else if s.cfg.Leverage > maxLev {
			s.logger.Warn(ctx, "Configured leverage exceeds exchange maximum, clamping", map[string]interface{}{
				"configured": s.cfg.Leverage,
				"maximum":    maxLev,
			})
			s.cfg.Leverage = maxLev
		}
		if err := s.exchange.SetLeverage(ctx, s.cfg.Symbol, s.cfg.Leverage); err != nil {
			s.logger.Error(ctx, err, "Failed to set leverage, continuing with exchange setting", map[string]interface{}{"leverage": s.cfg.Leverage})
		}
	}

	// 2. Lot step for quantity flooring.
	step, err := s.exchange.GetLotStepSize(ctx, s.cfg.Symbol)
	if err != nil {
		s.logger.Warn(ctx, "Could not fetch lot step size, quantities will not be floored", map[string]interface{}{"symbol": s.cfg.Symbol})
	} else {
		s.lotStep = step
	}

	// 3. Restore persisted state.
	state, err := s.store.LoadPositionState(ctx, s.cfg.Mode)
	if err != nil {
		return fmt.Errorf("failed to load position state: %w", err)
	}
	if state == nil {
		state = &domain.PositionState{Leverage: s.cfg.Leverage, Regime: domain.RegimeTrending}
		s.logger.Info(ctx, "No persisted state, starting flat")
	} else {
		s.logger.Info(ctx, "Restored persisted state", map[string]interface{}{
			"inPosition": state.InPosition,
			"side":       state.Side,
			"entryPrice": state.EntryPrice,
			"quantity":   state.Quantity,
			"regime":     state.Regime,
		})
	}
	s.state = state

	s.regime = strategy.NewRegimeDetector(state.Regime)
	s.kdjParams = s.paramsForRegime(s.regime.Current())

	// 4. Reconcile restored state against the live exchange.
	if err := s.reconcileStartupState(ctx); err != nil {
		return err
	}

	// 5. Trade history.
	if err := s.ledger.Load(ctx); err != nil {
		return err
	}

	for _, tf := range domain.AllTimeframes {
		p := s.kdjParams[tf]
		s.logger.Info(ctx, "KDJ parameters", map[string]interface{}{
			"timeframe": tf.Interval(),
			"kPeriod":   p.KPeriod,
			"kSmooth":   p.KSmooth,
			"dSmooth":   p.DSmooth,
		})
	}

	s.logger.Info(ctx, "Initialization complete", map[string]interface{}{
		"checkInterval": s.checkInterval.String(),
		"regime":        s.regime.Current(),
	})
	s.reportLocked(ctx, true)
	return nil
}

// paramsForRegime merges config overrides onto the regime preset.
func (s *TradingService) paramsForRegime(regime domain.Regime) map[domain.Timeframe]domain.KDJParams {
	params := domain.KDJParamsForRegime(regime)
	for tf, override := range s.cfg.KDJOverrides {
		params[tf] = override
	}
	return params
}

// reconcileStartupState verifies the restored position against live exchange
// data: a position the exchange no longer holds is dropped, and a live
// futures position missing from local state is adopted.
func (s *TradingService) reconcileStartupState(ctx context.Context) error {
	if s.cfg.Mode == domain.ModeFutures {
		live, err := s.exchange.GetOpenPosition(ctx, s.cfg.Symbol)
		if err != nil {
			return fmt.Errorf("failed to query open position during startup: %w", err)
		}

		switch {
		case s.state.InPosition && live == nil:
			s.logger.Warn(ctx, "Persisted position not found on exchange, correcting to flat")
			s.state.Flatten()
			return s.saveState(ctx)
		case !s.state.InPosition && live != nil:
			s.logger.Warn(ctx, "Exchange reports a position unknown to local state, adopting it", map[string]interface{}{
				"side":       live.Side,
				"quantity":   live.Quantity,
				"entryPrice": live.EntryPrice,
			})
			s.state.InPosition = true
			s.state.Side = live.Side
			s.state.Quantity = live.Quantity
			s.state.EntryPrice = live.EntryPrice
			return s.saveState(ctx)
		case s.state.InPosition && live != nil && diverges(s.state.Quantity, live.Quantity):
			s.logger.Warn(ctx, "Position quantity differs from exchange, using the smaller", map[string]interface{}{
				"local": s.state.Quantity,
				"live":  live.Quantity,
			})
			if live.Quantity < s.state.Quantity {
				s.state.Quantity = live.Quantity
			}
			return s.saveState(ctx)
		}
		return nil
	}

	// Spot: a restored position with a near-zero base balance is stale.
	if s.state.InPosition {
		balance, err := s.exchange.GetBalance(ctx, s.baseAsset)
		if err != nil {
			return fmt.Errorf("failed to query base balance during startup: %w", err)
		}
		if balance < dustBalance {
			s.logger.Warn(ctx, "Persisted position but base balance is nearly zero, correcting to flat", map[string]interface{}{
				"asset":   s.baseAsset,
				"balance": balance,
			})
			s.state.Flatten()
			return s.saveState(ctx)
		}
		if diverges(s.state.Quantity, balance) && balance < s.state.Quantity {
			s.logger.Warn(ctx, "Base balance below recorded position, adjusting", map[string]interface{}{
				"recorded": s.state.Quantity,
				"balance":  balance,
			})
			s.state.Quantity = balance
			return s.saveState(ctx)
		}
	}
	return nil
}

// diverges reports a relative difference above 1%.
func diverges(local, real float64) bool {
	if local <= 0 {
		return real > 0
	}
	diff := local - real
	if diff < 0 {
		diff = -diff
	}
	return diff > local*0.01
}

// saveState persists the current position state. Callers hold the mutex.
func (s *TradingService) saveState(ctx context.Context) error {
	s.state.Regime = s.regime.Current()
	if err := s.store.SavePositionState(ctx, s.cfg.Mode, s.state); err != nil {
		s.logger.Error(ctx, err, "Failed to persist position state")
		return err
	}
	return nil
}

// runCycle executes one evaluation with bounded retries. A cycle that keeps
// failing is abandoned until the next tick; the loop itself never dies.
func (s *TradingService) runCycle(ctx context.Context) {
	for attempt := 1; attempt <= cycleMaxAttempts; attempt++ {
		err := s.evaluateCycle(ctx)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}

		s.logger.Error(ctx, err, "Evaluation cycle failed", map[string]interface{}{
			"attempt":     attempt,
			"maxAttempts": cycleMaxAttempts,
		})
		if attempt < cycleMaxAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(cycleRetryDelay):
			}
		}
	}
	s.logger.Warn(ctx, "Evaluation cycle abandoned until next tick")
}

// evaluateCycle performs one full market evaluation: price, regime, KDJ
// across all timeframes, signal fusion, then position management or entry.
func (s *TradingService) evaluateCycle(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	price, err := s.exchange.GetCurrentPrice(ctx, s.cfg.Symbol)
	if err != nil {
		return err
	}

	slowestCandles, err := s.exchange.GetCandles(ctx, s.cfg.Symbol, domain.TimeframeSlowest, candleFetchLimit)
	if err != nil {
		return err
	}

	regime, changed := s.regime.Detect(slowestCandles)
	if changed {
		s.applyRegimeChange(ctx, regime)
	}

	signals := make(map[domain.Timeframe]strategy.TimeframeSignal, len(domain.AllTimeframes))
	for _, tf := range domain.AllTimeframes {
		candles := slowestCandles
		if tf != domain.TimeframeSlowest {
			candles, err = s.exchange.GetCandles(ctx, s.cfg.Symbol, tf, candleFetchLimit)
			if err != nil {
				return err
			}
		}

		frame, err := indicators.Compute(candles, s.kdjParams[tf])
		if err != nil {
			if errors.Is(err, ports.ErrInsufficientData) {
				s.logger.Warn(ctx, "Insufficient candle data for timeframe", map[string]interface{}{
					"timeframe": tf,
					"candles":   len(candles),
				})
				signals[tf] = strategy.UndefinedSignal(tf)
				continue
			}
			return err
		}
		sig := strategy.ClassifyFrame(tf, frame)
		signals[tf] = sig

		if !sig.Undefined() {
			s.logger.Debug(ctx, "Timeframe KDJ", map[string]interface{}{
				"timeframe": tf.Interval(),
				"K":         sig.K,
				"D":         sig.D,
				"J":         sig.J,
				"vote":      sig.Vote,
				"trend":     sig.Trend,
			})
		}
	}

	rp := s.riskParams[regime]
	fused := strategy.Fuse(signals, regime, rp.SignalThreshold, s.cfg.Mode)

	s.logger.Info(ctx, "Cycle analysis", map[string]interface{}{
		"price":     price,
		"mode":      s.cfg.Mode,
		"regime":    regime,
		"signal":    fused.Signal,
		"strength":  fused.Strength,
		"threshold": rp.SignalThreshold,
		"reasons":   strings.Join(fused.Reasons, "; "),
	})

	s.reportLocked(ctx, false)

	if s.state.InPosition {
		return s.manageOpenPosition(ctx, price, fused, rp)
	}
	return s.considerEntry(ctx, price, fused, signals, rp)
}

// applyRegimeChange switches the KDJ parameter preset and persists the new
// regime label. Callers hold the mutex.
func (s *TradingService) applyRegimeChange(ctx context.Context, regime domain.Regime) {
	s.logger.Info(ctx, "Market regime changed", map[string]interface{}{
		"regime":          regime,
		"signalThreshold": s.riskParams[regime].SignalThreshold,
		"takeProfitPct":   s.riskParams[regime].TakeProfitPct,
		"stopLossPct":     s.riskParams[regime].StopLossPct,
	})
	s.kdjParams = s.paramsForRegime(regime)
	if err := s.saveState(ctx); err != nil {
		s.logger.Warn(ctx, "Regime change not persisted, will retry on next state save")
	}
}

// manageOpenPosition evaluates the exit rules for the open position.
func (s *TradingService) manageOpenPosition(ctx context.Context, price float64, fused strategy.FusedSignal, rp domain.RiskParams) error {
	// A spot position whose base balance evaporated (manual withdrawal,
	// external sell) is corrected to flat before anything else.
	if s.cfg.Mode == domain.ModeSpot {
		balance, err := s.exchange.GetBalance(ctx, s.baseAsset)
		if err != nil {
			return err
		}
		if balance < dustBalance {
			s.logger.Warn(ctx, "Position open but base balance is nearly zero, correcting position state", map[string]interface{}{
				"asset":   s.baseAsset,
				"balance": balance,
			})
			s.state.Flatten()
			return s.saveState(ctx)
		}
	}

	profit := risk.ProfitPercent(s.state, price, s.cfg.Mode)
	s.logger.Info(ctx, "Open position status", map[string]interface{}{
		"side":       s.state.Side,
		"entryPrice": s.state.EntryPrice,
		"quantity":   s.state.Quantity,
		"profitPct":  profit,
	})

	shouldExit, reason := risk.EvaluateExit(s.state, price, fused.Signal, fused.Strength, rp, s.cfg.Mode)
	if !shouldExit {
		return nil
	}

	s.logger.Info(ctx, "Exit condition met", map[string]interface{}{
		"reason":    reason,
		"profitPct": profit,
	})
	return s.exitPosition(ctx, price, reason)
}

// considerEntry opens a position when the fused signal is strong enough and
// the higher-timeframe trends do not veto it.
func (s *TradingService) considerEntry(ctx context.Context, price float64, fused strategy.FusedSignal, signals map[domain.Timeframe]strategy.TimeframeSignal, rp domain.RiskParams) error {
	var side domain.PositionSide
	switch {
	case fused.Signal.IsBuySide() && fused.Strength >= rp.SignalThreshold:
		side = domain.SideLong
	case fused.Signal == domain.SignalShort && fused.Strength >= rp.SignalThreshold && s.cfg.Mode == domain.ModeFutures:
		side = domain.SideShort
	default:
		s.logger.Debug(ctx, "No strong signal, waiting for better opportunity", map[string]interface{}{
			"strength":  fused.Strength,
			"threshold": rp.SignalThreshold,
		})
		return nil
	}

	slowTrend := signals[domain.TimeframeSlow].Trend
	slowestTrend := signals[domain.TimeframeSlowest].Trend
	if risk.EntryVetoed(fused.Signal, slowTrend, slowestTrend, fused.Regime) {
		s.logger.Info(ctx, "Skipping entry despite signal strength: higher timeframe trends oppose it", map[string]interface{}{
			"signal":       fused.Signal,
			"slowTrend":    slowTrend,
			"slowestTrend": slowestTrend,
			"regime":       fused.Regime,
		})
		return nil
	}

	balance, err := s.exchange.GetBalance(ctx, s.quoteAsset)
	if err != nil {
		return err
	}
	quantity := risk.PositionSize(balance, price, rp.StopLossPct, s.cfg.Leverage, s.cfg.Mode)
	if quantity <= 0 {
		s.logger.Warn(ctx, "Position sizing produced zero quantity", map[string]interface{}{
			"balance": balance,
			"price":   price,
		})
		return nil
	}

	s.logger.Info(ctx, "Entry signal confirmed", map[string]interface{}{
		"signal":     fused.Signal,
		"strength":   fused.Strength,
		"threshold":  rp.SignalThreshold,
		"quantity":   quantity,
		"price":      price,
		"quoteValue": quantity * price,
	})
	return s.enterPosition(ctx, price, quantity, side, balance)
}

// shutdown persists state and prints the final report.
func (s *TradingService) shutdown() {
	// The loop context is gone; give persistence its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info(ctx, "Shutting down, persisting state...")
	if s.state != nil {
		if err := s.saveState(ctx); err != nil {
			s.logger.Error(ctx, err, "Final state save failed")
		}
	}
	s.reportLocked(ctx, true)
	s.logger.Info(ctx, "Trading Service stopped.")
}
