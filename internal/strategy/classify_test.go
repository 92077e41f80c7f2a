package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kdjbot/internal/domain"
	"kdjbot/internal/strategy/indicators"
)

func frameFromPoints(points ...indicators.Point) *indicators.Frame {
	return &indicators.Frame{Points: points}
}

func TestClassifyFrame_InsufficientPoints(t *testing.T) {
	sig := ClassifyFrame(domain.TimeframeFast, frameFromPoints(indicators.Point{K: 50, D: 50, Valid: true}))
	assert.True(t, sig.Undefined())
	assert.Equal(t, domain.TrendUndefined, sig.Trend)
}

func TestClassifyFrame_GoldenCross(t *testing.T) {
	frame := frameFromPoints(
		indicators.Point{K: 25, D: 30, J: 15, Valid: true},
		indicators.Point{K: 35, D: 30, J: 45, Valid: true},
	)
	sig := ClassifyFrame(domain.TimeframeFast, frame)

	assert.Equal(t, domain.VoteBuy, sig.Vote)
	assert.True(t, sig.GoldenCross)
	assert.False(t, sig.DeathCross)
	assert.Equal(t, domain.TrendBearish, sig.Trend) // both lines below 50
}

func TestClassifyFrame_DeathCross(t *testing.T) {
	frame := frameFromPoints(
		indicators.Point{K: 75, D: 70, J: 85, Valid: true},
		indicators.Point{K: 65, D: 70, J: 55, Valid: true},
	)
	sig := ClassifyFrame(domain.TimeframeMedium, frame)

	assert.Equal(t, domain.VoteSell, sig.Vote)
	assert.True(t, sig.DeathCross)
	assert.Equal(t, domain.TrendBullish, sig.Trend)
}

func TestClassifyFrame_OversoldWithoutCross(t *testing.T) {
	// K already above D (no cross this bar) but J deeply oversold: still a buy.
	frame := frameFromPoints(
		indicators.Point{K: 22, D: 20, J: 10, Valid: true},
		indicators.Point{K: 25, D: 21, J: 12, Valid: true},
	)
	sig := ClassifyFrame(domain.TimeframeFast, frame)

	assert.Equal(t, domain.VoteBuy, sig.Vote)
	assert.False(t, sig.GoldenCross)
	assert.True(t, sig.JOversold)
}

func TestClassifyFrame_NeutralHold(t *testing.T) {
	frame := frameFromPoints(
		indicators.Point{K: 55, D: 48, J: 60, Valid: true},
		indicators.Point{K: 56, D: 49, J: 62, Valid: true},
	)
	sig := ClassifyFrame(domain.TimeframeSlow, frame)

	assert.Equal(t, domain.VoteHold, sig.Vote)
	assert.Equal(t, domain.TrendNeutral, sig.Trend) // D below 50, K above
}

// A strong uptrend across real computed frames should never produce a sell
// vote on any timeframe.
func TestClassifyFrame_UptrendNeverVotesSell(t *testing.T) {
	now := time.Now()
	candles := make([]*domain.Candle, 60)
	for i := range candles {
		c := 100.0 + float64(i)*2
		candles[i] = &domain.Candle{
			OpenTime: now.Add(time.Duration(i-60) * time.Hour),
			Open:     c - 1, High: c + 1, Low: c - 2, Close: c, Volume: 5,
		}
	}

	for tf, p := range domain.DefaultKDJParams() {
		frame, err := indicators.Compute(candles, p)
		require.NoError(t, err)
		sig := ClassifyFrame(tf, frame)
		assert.NotEqual(t, domain.VoteSell, sig.Vote, "timeframe %s", tf)
		assert.Equal(t, domain.TrendBullish, sig.Trend, "timeframe %s", tf)
	}
}
