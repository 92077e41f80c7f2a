package domain

import "time"

// Detail keys used in Trade.Details.
const (
	DetailOrderID        = "order_id"
	DetailCommission     = "commission"
	DetailEntryPrice     = "entry_price"
	DetailProfitPct      = "profit_percentage"
	DetailFallbackValues = "fallback_values_used"
	DetailLeverage       = "leverage"
)

// Trade is an append-only record of one executed order. RealizedPnL is set
// only on exit trades, and only when fill data could be extracted from the
// exchange response; entries never carry P&L.
type Trade struct {
	Kind        TradeKind
	Price       float64
	Quantity    float64
	QuoteValue  float64 // Price * Quantity at record time
	Timestamp   time.Time
	RealizedPnL *float64
	Leverage    int
	Details     map[string]interface{}
}

// NewTrade builds a trade record with the derived quote value.
func NewTrade(kind TradeKind, price, quantity float64, leverage int) *Trade {
	return &Trade{
		Kind:       kind,
		Price:      price,
		Quantity:   quantity,
		QuoteValue: price * quantity,
		Timestamp:  time.Now().UTC(),
		Leverage:   leverage,
		Details:    map[string]interface{}{},
	}
}

// WithPnL attaches a realized P&L value.
func (t *Trade) WithPnL(pnl float64) *Trade {
	t.RealizedPnL = &pnl
	return t
}

// Fallback reports whether the record was derived from requested values
// rather than confirmed fill data.
func (t *Trade) Fallback() bool {
	v, ok := t.Details[DetailFallbackValues].(bool)
	return ok && v
}
