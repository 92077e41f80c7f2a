package domain

import "fmt"

// Timeframe is one of the four fixed analysis horizons. Using a closed enum
// instead of raw interval strings keeps parameter lookups type-safe.
type Timeframe string

const (
	// TimeframeFast drives quick-action entry/exit signals.
	TimeframeFast Timeframe = "FAST"
	// TimeframeMedium times entries and exits.
	TimeframeMedium Timeframe = "MEDIUM"
	// TimeframeSlow confirms the medium-term direction.
	TimeframeSlow Timeframe = "SLOW"
	// TimeframeSlowest detects the prevailing trend and market regime.
	TimeframeSlowest Timeframe = "SLOWEST"
)

// AllTimeframes lists the analysis horizons fastest first.
var AllTimeframes = []Timeframe{TimeframeFast, TimeframeMedium, TimeframeSlow, TimeframeSlowest}

// Interval returns the exchange kline interval string for the timeframe.
func (tf Timeframe) Interval() string {
	switch tf {
	case TimeframeFast:
		return "5m"
	case TimeframeMedium:
		return "15m"
	case TimeframeSlow:
		return "1h"
	case TimeframeSlowest:
		return "4h"
	default:
		return ""
	}
}

// KDJParams holds the tunable KDJ settings for one timeframe.
type KDJParams struct {
	KPeriod int // rolling window for the raw stochastic value
	KSmooth int // EMA span smoothing RSV into K
	DSmooth int // EMA span smoothing K into D
}

// Validate checks the parameters against the accepted ranges.
func (p KDJParams) Validate() error {
	if p.KPeriod < 3 || p.KPeriod > 50 {
		return fmt.Errorf("K period %d out of range [3,50]", p.KPeriod)
	}
	if p.KSmooth < 1 || p.KSmooth > 10 {
		return fmt.Errorf("K smoothing %d out of range [1,10]", p.KSmooth)
	}
	if p.DSmooth < 1 || p.DSmooth > 10 {
		return fmt.Errorf("D smoothing %d out of range [1,10]", p.DSmooth)
	}
	return nil
}

// DefaultKDJParams returns the per-timeframe defaults. Longer horizons use
// longer periods to reduce noise.
func DefaultKDJParams() map[Timeframe]KDJParams {
	return map[Timeframe]KDJParams{
		TimeframeSlowest: {KPeriod: 21, KSmooth: 5, DSmooth: 5},
		TimeframeSlow:    {KPeriod: 14, KSmooth: 3, DSmooth: 3},
		TimeframeMedium:  {KPeriod: 9, KSmooth: 3, DSmooth: 3},
		TimeframeFast:    {KPeriod: 7, KSmooth: 3, DSmooth: 3},
	}
}

// KDJParamsForRegime returns the parameter preset tuned for a market regime:
// higher periods in trending markets to reduce noise, lower periods in
// ranging markets to catch more signals.
func KDJParamsForRegime(regime Regime) map[Timeframe]KDJParams {
	if regime == RegimeRanging {
		return map[Timeframe]KDJParams{
			TimeframeSlowest: {KPeriod: 14, KSmooth: 3, DSmooth: 3},
			TimeframeSlow:    {KPeriod: 9, KSmooth: 3, DSmooth: 3},
			TimeframeMedium:  {KPeriod: 7, KSmooth: 2, DSmooth: 2},
			TimeframeFast:    {KPeriod: 5, KSmooth: 2, DSmooth: 2},
		}
	}
	return DefaultKDJParams()
}
