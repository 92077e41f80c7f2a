package strategy

import (
	"kdjbot/internal/domain"
	"kdjbot/internal/strategy/indicators"
)

// J-line extreme thresholds.
const (
	jOverboughtLevel = 80.0
	jOversoldLevel   = 20.0
)

// TimeframeSignal is one timeframe's directional reading, produced fresh
// each evaluation cycle.
type TimeframeSignal struct {
	Timeframe   domain.Timeframe
	Vote        domain.Vote
	Trend       domain.Trend
	GoldenCross bool
	DeathCross  bool
	JOverbought bool
	JOversold   bool
	K, D, J     float64
}

// Undefined reports whether the timeframe could not be evaluated. Callers
// treat this as "skip this timeframe", not as an error.
func (s TimeframeSignal) Undefined() bool { return s.Vote == domain.VoteUndefined }

// UndefinedSignal returns the sentinel reading for a timeframe with
// insufficient data.
func UndefinedSignal(tf domain.Timeframe) TimeframeSignal {
	return TimeframeSignal{Timeframe: tf, Vote: domain.VoteUndefined, Trend: domain.TrendUndefined}
}

// ClassifyFrame derives a timeframe's vote from the last two valid
// indicator points.
//
//   - golden cross: K crossed above D between the two observations
//   - death cross: K crossed below D
//   - trend: BULLISH when both K and D sit above the 50 line, BEARISH when
//     both sit below, NEUTRAL otherwise
//   - vote BUY on a golden cross, or K above D while J is oversold;
//     vote SELL on a death cross, or K below D while J is overbought
func ClassifyFrame(tf domain.Timeframe, frame *indicators.Frame) TimeframeSignal {
	prev, cur, ok := frame.LastTwoValid()
	if !ok {
		return UndefinedSignal(tf)
	}

	sig := TimeframeSignal{
		Timeframe: tf,
		K:         cur.K,
		D:         cur.D,
		J:         cur.J,
	}

	sig.GoldenCross = prev.K <= prev.D && cur.K > cur.D
	sig.DeathCross = prev.K >= prev.D && cur.K < cur.D

	switch {
	case cur.K > 50 && cur.D > 50:
		sig.Trend = domain.TrendBullish
	case cur.K < 50 && cur.D < 50:
		sig.Trend = domain.TrendBearish
	default:
		sig.Trend = domain.TrendNeutral
	}

	sig.JOverbought = cur.J > jOverboughtLevel
	sig.JOversold = cur.J < jOversoldLevel

	switch {
	case sig.GoldenCross || (cur.K > cur.D && sig.JOversold):
		sig.Vote = domain.VoteBuy
	case sig.DeathCross || (cur.K < cur.D && sig.JOverbought):
		sig.Vote = domain.VoteSell
	default:
		sig.Vote = domain.VoteHold
	}

	return sig
}
