package domain

import "time"

// Candle represents a single OHLCV data point for one interval.
// Sequences are ordered oldest first and treated as immutable once fetched.
type Candle struct {
	OpenTime time.Time // Start time of the interval
	Open     float64   // Opening price
	High     float64   // Highest price
	Low      float64   // Lowest price
	Close    float64   // Closing price
	Volume   float64   // Trading volume
}
