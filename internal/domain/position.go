package domain

// PositionState is the persisted snapshot of the bot's single position slot.
// Invariant: InPosition == false implies Side == "" and Quantity == 0.
// It is mutated only by the position manager on confirmed (or
// best-effort-fallback) fills and reconciled against live exchange balances.
type PositionState struct {
	InPosition      bool
	Side            PositionSide // LONG or SHORT; empty when flat
	EntryPrice      float64
	Quantity        float64
	LastAction      TradeKind
	LastActionPrice float64
	Leverage        int    // 1 in spot mode
	Regime          Regime // regime in effect when the state was last saved
}

// Flatten clears the position fields, restoring the flat-state invariant.
func (s *PositionState) Flatten() {
	s.InPosition = false
	s.Side = ""
	s.EntryPrice = 0
	s.Quantity = 0
}

// IsLong reports an open long position.
func (s *PositionState) IsLong() bool { return s.InPosition && s.Side == SideLong }

// IsShort reports an open short position.
func (s *PositionState) IsShort() bool { return s.InPosition && s.Side == SideShort }
