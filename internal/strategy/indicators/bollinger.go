package indicators

import "math"

// Fixed Bollinger settings used across the bot.
const (
	BollingerWindow  = 20
	BollingerStdDevs = 2.0
)

// Band holds the Bollinger values at one index. Valid is false while the
// rolling window has insufficient history.
type Band struct {
	SMA   float64
	Upper float64
	Lower float64
	Width float64 // (Upper-Lower)/SMA * 100
	Valid bool
}

// BollingerSeries computes Bollinger Bands over a close-price series using
// the sample standard deviation. The result is aligned index-for-index to
// the input.
func BollingerSeries(closes []float64, window int, numStd float64) []Band {
	bands := make([]Band, len(closes))
	if window < 2 {
		return bands
	}
	for i := window - 1; i < len(closes); i++ {
		win := closes[i-window+1 : i+1]
		sma := mean(win)
		sd := sampleStd(win, sma)
		upper := sma + numStd*sd
		lower := sma - numStd*sd
		var width float64
		if sma != 0 {
			width = (upper - lower) / sma * 100
		}
		bands[i] = Band{SMA: sma, Upper: upper, Lower: lower, Width: width, Valid: true}
	}
	return bands
}

// PercentChangeVolatility returns the sample standard deviation of
// bar-to-bar percent changes of a close-price series, in percent.
func PercentChangeVolatility(closes []float64) float64 {
	if len(closes) < 3 {
		return 0
	}
	changes := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		changes = append(changes, (closes[i]-closes[i-1])/closes[i-1]*100)
	}
	if len(changes) < 2 {
		return 0
	}
	return sampleStd(changes, mean(changes))
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStd uses the n-1 denominator.
func sampleStd(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
