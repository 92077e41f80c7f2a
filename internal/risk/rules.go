// Package risk holds the pure position-management rules: profit accounting,
// position sizing, exit evaluation and entry trend confirmation. Everything
// here is a pure function so the rules stay trivially testable.
package risk

import (
	"kdjbot/internal/domain"
)

const (
	// riskFraction is the share of the quote balance risked per trade.
	riskFraction = 0.05

	// maxBalanceFraction caps the position's quote value relative to the
	// available balance.
	maxBalanceFraction = 0.75

	// minNotional is the smallest acceptable order value in quote units,
	// with margin above the exchange's 10-unit minimum.
	minNotional = 11.0

	// emergencyMultiplier scales the stop loss into the emergency-exit
	// threshold.
	emergencyMultiplier = 2.0
)

// ExitReason explains why EvaluateExit decided to close a position.
type ExitReason string

const (
	ReasonEmergencyStop ExitReason = "EMERGENCY_STOP"
	ReasonTakeProfit    ExitReason = "TAKE_PROFIT"
	ReasonSignal        ExitReason = "OPPOSING_SIGNAL"
	ReasonTrailingStop  ExitReason = "TRAILING_STOP"
)

// ProfitPercent returns the fee-adjusted profit of the open position at the
// given price, in percent. Futures profits are amplified by leverage. The
// round-trip fee (entry plus exit) is subtracted so a position that merely
// returns to its entry price shows a small loss. Returns 0 when flat.
func ProfitPercent(state *domain.PositionState, price float64, mode domain.TradingMode) float64 {
	if state == nil || !state.InPosition || state.EntryPrice == 0 {
		return 0
	}

	var raw float64
	if state.IsShort() {
		raw = (state.EntryPrice - price) / state.EntryPrice * 100
	} else {
		raw = (price - state.EntryPrice) / state.EntryPrice * 100
	}

	if mode == domain.ModeFutures {
		raw *= float64(state.Leverage)
	}

	return raw - mode.FeeRate()*2*100
}

// PositionSize returns the base quantity to buy for a new position.
//
// The size risks riskFraction of the balance against the stop-loss distance,
// is leverage-amplified in futures mode, capped so the quote value never
// exceeds maxBalanceFraction of the balance, and finally raised to the
// exchange minimum notional when the result would be too small to place.
// Returns 0 when price or stop loss is not positive.
func PositionSize(quoteBalance, price, stopLossPct float64, leverage int, mode domain.TradingMode) float64 {
	if price <= 0 || stopLossPct <= 0 {
		return 0
	}

	size := quoteBalance * riskFraction / (price * stopLossPct / 100)

	if mode == domain.ModeFutures && leverage > 1 {
		size *= float64(leverage)
	}

	if maxValue := quoteBalance * maxBalanceFraction; size*price > maxValue {
		size = maxValue / price
	}

	if size*price < minNotional {
		size = minNotional / price
	}

	return size
}

// EvaluateExit decides whether the open position must be closed at the given
// price. Checks run in strict priority order: emergency stop, take profit,
// opposing signal at or above the regime threshold, then the trailing stop.
func EvaluateExit(state *domain.PositionState, price float64, signal domain.Signal, strength int, rp domain.RiskParams, mode domain.TradingMode) (bool, ExitReason) {
	if state == nil || !state.InPosition {
		return false, ""
	}

	profit := ProfitPercent(state, price, mode)

	if profit < -rp.StopLossPct*emergencyMultiplier {
		return true, ReasonEmergencyStop
	}

	if profit >= rp.TakeProfitPct {
		return true, ReasonTakeProfit
	}

	opposing := signal.IsSellSide()
	if state.IsShort() {
		opposing = signal.IsBuySide()
	}
	if opposing && strength >= rp.SignalThreshold {
		return true, ReasonSignal
	}

	// Trailing stop tightens as profit accrues: the stop distance shrinks to
	// half the current profit, never wider than the configured stop loss.
	trailingPct := rp.StopLossPct
	if profit > 0 {
		trailingPct = profit / 2
		if trailingPct > rp.StopLossPct {
			trailingPct = rp.StopLossPct
		}
	}

	if state.IsShort() {
		trailing := price * (1 + trailingPct/100)
		stop := state.EntryPrice * (1 + rp.StopLossPct/100)
		if trailing < stop {
			stop = trailing
		}
		if price >= stop {
			return true, ReasonTrailingStop
		}
	} else {
		trailing := price * (1 - trailingPct/100)
		stop := state.EntryPrice * (1 - rp.StopLossPct/100)
		if trailing > stop {
			stop = trailing
		}
		if price <= stop {
			return true, ReasonTrailingStop
		}
	}

	return false, ""
}

// EntryVetoed reports whether higher-timeframe trends block a new entry in
// the given direction. In trending markets the entry is blocked only when
// both the slowest and slow trends oppose it; in ranging markets the slow
// trend alone can block.
func EntryVetoed(direction domain.Signal, slowTrend, slowestTrend domain.Trend, regime domain.Regime) bool {
	var opposing domain.Trend
	switch {
	case direction.IsBuySide():
		opposing = domain.TrendBearish
	case direction.IsSellSide():
		opposing = domain.TrendBullish
	default:
		return false
	}

	if regime == domain.RegimeTrending {
		return slowestTrend == opposing && slowTrend == opposing
	}
	return slowTrend == opposing
}
