package indicators

import (
	"fmt"

	"kdjbot/internal/domain"
	"kdjbot/internal/ports"
)

const neutralRSV = 50.0

// Point holds the indicator values aligned to one candle. Valid is false
// while the KDJ rolling window has insufficient history; BandsValid is
// false while the Bollinger window has insufficient history.
type Point struct {
	K, D, J float64
	Valid   bool

	SMA, Upper, Lower, BandWidth float64
	BandsValid                   bool
}

// Frame is the derived indicator series aligned index-for-index to the
// candle sequence it was computed from.
type Frame struct {
	Points []Point
}

// LastTwoValid returns the two most recent valid KDJ points.
func (f *Frame) LastTwoValid() (prev, cur Point, ok bool) {
	n := len(f.Points)
	if n < 2 || !f.Points[n-1].Valid || !f.Points[n-2].Valid {
		return Point{}, Point{}, false
	}
	return f.Points[n-2], f.Points[n-1], true
}

// Compute derives the KDJ lines and Bollinger Bands for a candle sequence.
// Pure function of its inputs.
//
// RSV[i] = (close[i] - min(low, window)) / (max(high, window) - min(low, window)) * 100,
// substituting a neutral 50 when the window has no price range so that the
// downstream smoothing stays stable. K is an EMA of RSV with span KSmooth,
// D an EMA of K with span DSmooth, J = 3K - 2D. The EMA uses the standard
// recurrence with alpha = 2/(span+1), seeded by the first defined value.
func Compute(candles []*domain.Candle, p domain.KDJParams) (*Frame, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid KDJ parameters: %w", err)
	}
	// KPeriod+2 is the minimum needed to evaluate a crossover on the
	// latest two points.
	if len(candles) < p.KPeriod+2 {
		return nil, fmt.Errorf("%w: have %d candles, need %d", ports.ErrInsufficientData, len(candles), p.KPeriod+2)
	}

	n := len(candles)
	frame := &Frame{Points: make([]Point, n)}
	start := p.KPeriod - 1

	alphaK := 2.0 / float64(p.KSmooth+1)
	alphaD := 2.0 / float64(p.DSmooth+1)

	var k, d float64
	for i := start; i < n; i++ {
		lowMin := candles[i].Low
		highMax := candles[i].High
		for j := i - p.KPeriod + 1; j < i; j++ {
			if candles[j].Low < lowMin {
				lowMin = candles[j].Low
			}
			if candles[j].High > highMax {
				highMax = candles[j].High
			}
		}

		rsv := neutralRSV
		if highMax > lowMin {
			rsv = (candles[i].Close - lowMin) / (highMax - lowMin) * 100
		}

		if i == start {
			k = rsv
			d = k
		} else {
			k = alphaK*rsv + (1-alphaK)*k
			d = alphaD*k + (1-alphaD)*d
		}

		frame.Points[i] = Point{
			K:     k,
			D:     d,
			J:     3*k - 2*d,
			Valid: true,
		}
	}

	closes := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
	}
	for i, band := range BollingerSeries(closes, BollingerWindow, BollingerStdDevs) {
		if !band.Valid {
			continue
		}
		frame.Points[i].SMA = band.SMA
		frame.Points[i].Upper = band.Upper
		frame.Points[i].Lower = band.Lower
		frame.Points[i].BandWidth = band.Width
		frame.Points[i].BandsValid = true
	}

	return frame, nil
}
