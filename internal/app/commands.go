package app

import (
	"context"
	"fmt"
	"time"

	"kdjbot/internal/domain"
	"kdjbot/internal/ledger"
)

// Operator commands. Each method is safe to call concurrently with the
// evaluation loop; changes take effect on the next cycle.

// SetCheckInterval changes the evaluation cadence. Intervals below the
// 10-second floor are rejected to keep the bot inside API rate limits.
func (s *TradingService) SetCheckInterval(interval time.Duration) error {
	if interval < minCheckInterval {
		return fmt.Errorf("check interval must be at least %s, got %s", minCheckInterval, interval)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkInterval = interval
	s.logger.Info(context.Background(), "Check interval updated", map[string]interface{}{"interval": interval.String()})
	return nil
}

// SetKDJParams overrides the KDJ parameters for one timeframe. The override
// lasts until the next regime change or an explicit reset.
func (s *TradingService) SetKDJParams(tf domain.Timeframe, params domain.KDJParams) error {
	if tf.Interval() == "" {
		return fmt.Errorf("unknown timeframe %q", tf)
	}
	if err := params.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kdjParams[tf] = params
	s.logger.Info(context.Background(), "KDJ parameters updated", map[string]interface{}{
		"timeframe": tf,
		"kPeriod":   params.KPeriod,
		"kSmooth":   params.KSmooth,
		"dSmooth":   params.DSmooth,
	})
	return nil
}

// ResetKDJParams restores the per-timeframe defaults (plus configured
// overrides) for the current regime.
func (s *TradingService) ResetKDJParams() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kdjParams = s.paramsForRegime(s.regime.Current())
	s.logger.Info(context.Background(), "KDJ parameters reset to regime defaults", map[string]interface{}{
		"regime": s.regime.Current(),
	})
}

// OptimizeKDJForRegime applies the preset tuned for the current market
// regime, discarding manual overrides.
func (s *TradingService) OptimizeKDJForRegime() map[domain.Timeframe]domain.KDJParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	regime := s.regime.Current()
	s.kdjParams = domain.KDJParamsForRegime(regime)
	s.logger.Info(context.Background(), "KDJ parameters optimized for regime", map[string]interface{}{"regime": regime})

	out := make(map[domain.Timeframe]domain.KDJParams, len(s.kdjParams))
	for tf, p := range s.kdjParams {
		out[tf] = p
	}
	return out
}

// SetLeverage changes the futures leverage, clamped to the exchange
// maximum. Takes effect for the next entry; an open position keeps the
// leverage it was entered with.
func (s *TradingService) SetLeverage(ctx context.Context, leverage int) error {
	if s.cfg.Mode != domain.ModeFutures {
		return fmt.Errorf("leverage can only be set in futures mode")
	}
	if leverage <= 0 {
		return fmt.Errorf("leverage must be positive, got %d", leverage)
	}

	maxLev, err := s.exchange.GetMaxLeverage(ctx, s.cfg.Symbol)
	if err == nil && leverage > maxLev {
		s.logger.Warn(ctx, "Requested leverage exceeds exchange maximum, clamping", map[string]interface{}{
			"requested": leverage,
			"maximum":   maxLev,
		})
		leverage = maxLev
	}

	if err := s.exchange.SetLeverage(ctx, s.cfg.Symbol, leverage); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Leverage = leverage
	return nil
}

// Stop requests a graceful shutdown of a running loop. State and a final
// report are written before Start returns. A no-op when the loop is not
// running.
func (s *TradingService) Stop() {
	s.mu.Lock()
	stop := s.stop
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// ProfitReport logs the aggregate profit/loss report. With force false the
// report is rate-limited to the hourly cadence.
func (s *TradingService) ProfitReport(ctx context.Context, force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reportLocked(ctx, force)
}

// Summary returns the current trade-history aggregates.
func (s *TradingService) Summary() ledger.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Aggregate()
}

// reportLocked writes the profit report to the log. Callers hold the mutex.
func (s *TradingService) reportLocked(ctx context.Context, force bool) {
	if !force && time.Since(s.lastReportTime) < reportInterval {
		return
	}
	s.lastReportTime = time.Now()

	// Balance lookup is best effort; the report is still useful without it.
	balance, err := s.exchange.GetBalance(ctx, s.quoteAsset)
	if err != nil {
		s.logger.Warn(ctx, "Could not fetch quote balance for report", map[string]interface{}{"asset": s.quoteAsset})
		balance = 0
	}

	report := ledger.FormatReport(s.ledger.Aggregate(), s.cfg.Mode, s.regime.Current(), balance, time.Now())
	s.logger.Info(ctx, report)
}
