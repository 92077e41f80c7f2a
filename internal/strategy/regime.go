package strategy

import (
	"kdjbot/internal/domain"
	"kdjbot/internal/strategy/indicators"
)

const (
	// regimeMinCandles is the minimum slowest-timeframe history required
	// before a classification is attempted.
	regimeMinCandles = 30

	// volatilityThreshold is the percent-change volatility above which the
	// market is considered trending.
	volatilityThreshold = 3.0

	// widthExpansionRatio flags band expansion: the latest Bollinger width
	// must exceed this multiple of the recent average width.
	widthExpansionRatio = 1.2

	// widthLookback is how many recent band widths the expansion check
	// averages over.
	widthLookback = 10
)

// RegimeDetector classifies the market as TRENDING or RANGING from
// slowest-timeframe candles. It holds the last classification so that
// short data outages do not flap the regime. Not safe for concurrent use;
// the evaluation loop is single-goroutine.
type RegimeDetector struct {
	current domain.Regime
}

// NewRegimeDetector returns a detector holding the given starting regime.
// TRENDING is the conventional default before any data arrives.
func NewRegimeDetector(initial domain.Regime) *RegimeDetector {
	if initial == "" {
		initial = domain.RegimeTrending
	}
	return &RegimeDetector{current: initial}
}

// Current returns the regime in effect.
func (rd *RegimeDetector) Current() domain.Regime { return rd.current }

// Detect classifies the market from slowest-timeframe candles and returns
// the regime in effect plus whether it changed. With fewer than
// regimeMinCandles candles the held regime is returned unchanged.
//
// The market is TRENDING when either the percent-change volatility exceeds
// volatilityThreshold or the latest Bollinger Band width exceeds
// widthExpansionRatio times the average of the last widthLookback widths;
// otherwise it is RANGING.
func (rd *RegimeDetector) Detect(candles []*domain.Candle) (domain.Regime, bool) {
	if len(candles) < regimeMinCandles {
		return rd.current, false
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	volatility := indicators.PercentChangeVolatility(closes)

	bands := indicators.BollingerSeries(closes, indicators.BollingerWindow, indicators.BollingerStdDevs)
	var widths []float64
	for _, b := range bands {
		if b.Valid {
			widths = append(widths, b.Width)
		}
	}

	expanding := false
	if n := len(widths); n > 0 {
		lookback := widthLookback
		if n < lookback {
			lookback = n
		}
		recent := widths[n-lookback:]
		var sum float64
		for _, w := range recent {
			sum += w
		}
		avg := sum / float64(lookback)
		expanding = avg > 0 && widths[n-1] > widthExpansionRatio*avg
	}

	next := domain.RegimeRanging
	if volatility > volatilityThreshold || expanding {
		next = domain.RegimeTrending
	}

	changed := next != rd.current
	rd.current = next
	return next, changed
}
