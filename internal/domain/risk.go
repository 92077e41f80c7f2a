package domain

// RiskParams are the regime-dependent trading thresholds.
type RiskParams struct {
	SignalThreshold int     // minimum fused signal strength to act
	TakeProfitPct   float64 // take-profit target in percent
	StopLossPct     float64 // stop-loss distance in percent
}

// DefaultRiskParams returns the per-regime defaults. Trending markets use a
// lower threshold and wider take profit; ranging markets demand stronger
// signals and take profit sooner.
func DefaultRiskParams() map[Regime]RiskParams {
	return map[Regime]RiskParams{
		RegimeTrending: {SignalThreshold: 4, TakeProfitPct: 2.5, StopLossPct: 1.5},
		RegimeRanging:  {SignalThreshold: 6, TakeProfitPct: 1.5, StopLossPct: 1.0},
	}
}
