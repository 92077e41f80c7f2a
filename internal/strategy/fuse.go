package strategy

import (
	"fmt"

	"kdjbot/internal/domain"
)

// FusedSignal is the weighted combination of all timeframe readings for one
// evaluation cycle.
type FusedSignal struct {
	Signal      domain.Signal
	Strength    int      // absolute score; compared against the regime threshold
	RawStrength int      // signed score before thresholding
	Reasons     []string // human-readable contributions, in scoring order
	Regime      domain.Regime
}

// Fuse combines per-timeframe signals into one decision. The fast and medium
// votes pick the direction: a buy vote on either opens the buy branch, else a
// sell vote on either opens the sell branch, and only the entered branch
// accumulates score. Without a directional vote on those two timeframes the
// cycle holds at strength zero, whatever the slower timeframes say. The
// decision fires only when the absolute score reaches threshold. When the
// fast or medium timeframe is undefined the cycle is skipped entirely.
//
// In futures mode the directional labels become LONG/SHORT.
func Fuse(signals map[domain.Timeframe]TimeframeSignal, regime domain.Regime, threshold int, mode domain.TradingMode) FusedSignal {
	fast := signals[domain.TimeframeFast]
	medium := signals[domain.TimeframeMedium]
	slow := signals[domain.TimeframeSlow]
	slowest := signals[domain.TimeframeSlowest]

	if fast.Undefined() || medium.Undefined() {
		return FusedSignal{
			Signal:  domain.SignalHold,
			Reasons: []string{"insufficient data on fast timeframes"},
			Regime:  regime,
		}
	}

	score := 0
	var reasons []string
	add := func(delta int, format string, args ...interface{}) {
		score += delta
		reasons = append(reasons, fmt.Sprintf(format, args...))
	}

	switch {
	case fast.Vote == domain.VoteBuy || medium.Vote == domain.VoteBuy:
		// Fast timeframe vote carries the most weight: it times the action.
		if fast.Vote == domain.VoteBuy {
			add(3, "%s KDJ buy signal", fast.Timeframe.Interval())
		}
		if medium.Vote == domain.VoteBuy {
			add(2, "%s KDJ buy signal", medium.Timeframe.Interval())
		}
		if fast.GoldenCross {
			add(2, "%s golden cross", fast.Timeframe.Interval())
		}
		if medium.GoldenCross {
			add(1, "%s golden cross", medium.Timeframe.Interval())
		}

		// Higher timeframe confirmations.
		if slow.Trend == domain.TrendBullish {
			add(1, "%s trend bullish", slow.Timeframe.Interval())
		}
		if slowest.Trend == domain.TrendBullish {
			add(2, "%s trend bullish", slowest.Timeframe.Interval())
		}
		if slow.Vote == domain.VoteBuy {
			add(1, "%s KDJ buy signal", slow.Timeframe.Interval())
		}

		// J-line extremes mark entry points; the fast reading shadows the
		// medium one.
		if fast.JOversold {
			add(2, "%s J oversold (%.1f)", fast.Timeframe.Interval(), fast.J)
		} else if medium.JOversold {
			add(1, "%s J oversold (%.1f)", medium.Timeframe.Interval(), medium.J)
		}

		// Dampen when the dominant trend contradicts the direction.
		if slowest.Trend == domain.TrendBearish {
			add(-2, "%s trend contradicts buy", slowest.Timeframe.Interval())
		}

	case fast.Vote == domain.VoteSell || medium.Vote == domain.VoteSell:
		if fast.Vote == domain.VoteSell {
			add(-3, "%s KDJ sell signal", fast.Timeframe.Interval())
		}
		if medium.Vote == domain.VoteSell {
			add(-2, "%s KDJ sell signal", medium.Timeframe.Interval())
		}
		if fast.DeathCross {
			add(-2, "%s death cross", fast.Timeframe.Interval())
		}
		if medium.DeathCross {
			add(-1, "%s death cross", medium.Timeframe.Interval())
		}

		if slow.Trend == domain.TrendBearish {
			add(-1, "%s trend bearish", slow.Timeframe.Interval())
		}
		if slowest.Trend == domain.TrendBearish {
			add(-2, "%s trend bearish", slowest.Timeframe.Interval())
		}
		if slow.Vote == domain.VoteSell {
			add(-1, "%s KDJ sell signal", slow.Timeframe.Interval())
		}

		if fast.JOverbought {
			add(-2, "%s J overbought (%.1f)", fast.Timeframe.Interval(), fast.J)
		} else if medium.JOverbought {
			add(-1, "%s J overbought (%.1f)", medium.Timeframe.Interval(), medium.J)
		}

		if slowest.Trend == domain.TrendBullish {
			add(2, "%s trend contradicts sell", slowest.Timeframe.Interval())
		}
	}

	fused := FusedSignal{
		Signal:      domain.SignalHold,
		RawStrength: score,
		Regime:      regime,
		Reasons:     reasons,
	}
	if score < 0 {
		fused.Strength = -score
	} else {
		fused.Strength = score
	}

	switch {
	case score >= threshold:
		fused.Signal = domain.SignalBuy
		if mode == domain.ModeFutures {
			fused.Signal = domain.SignalLong
		}
	case score <= -threshold:
		fused.Signal = domain.SignalSell
		if mode == domain.ModeFutures {
			fused.Signal = domain.SignalShort
		}
	}

	return fused
}
