package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// TradingMode selects which market the bot operates on. Spot and futures
// use independent persisted state and trade-history namespaces.
type TradingMode string

const (
	ModeSpot    TradingMode = "SPOT"
	ModeFutures TradingMode = "FUTURES"
)

// FeeRate returns the taker fee rate assumed for the mode. Futures fees
// are lower than spot on Binance.
func (m TradingMode) FeeRate() float64 {
	if m == ModeFutures {
		return 0.0004
	}
	return 0.001
}

// Key returns the lower-case namespace key used by the state store.
func (m TradingMode) Key() string {
	if m == ModeFutures {
		return "futures"
	}
	return "spot"
}

// Regime is the coarse market-behavior label gating which risk thresholds apply.
type Regime string

const (
	RegimeTrending Regime = "TRENDING"
	RegimeRanging  Regime = "RANGING"
)

// PositionSide is the direction of an open position. Spot positions are
// always LONG; SHORT only occurs in futures mode.
type PositionSide string

const (
	SideLong  PositionSide = "LONG"
	SideShort PositionSide = "SHORT"
)

// Vote is a single timeframe's directional opinion.
type Vote string

const (
	VoteBuy       Vote = "BUY"
	VoteSell      Vote = "SELL"
	VoteHold      Vote = "HOLD"
	VoteUndefined Vote = "UNDEFINED"
)

// Trend describes the general direction of the K and D lines on one timeframe.
type Trend string

const (
	TrendBullish   Trend = "BULLISH"
	TrendBearish   Trend = "BEARISH"
	TrendNeutral   Trend = "NEUTRAL"
	TrendUndefined Trend = "UNDEFINED"
)

// Signal is the final fused decision for one evaluation cycle. BUY/SELL are
// used in spot mode; futures mode relabels them LONG/SHORT.
type Signal string

const (
	SignalBuy   Signal = "BUY"
	SignalSell  Signal = "SELL"
	SignalLong  Signal = "LONG"
	SignalShort Signal = "SHORT"
	SignalHold  Signal = "HOLD"
)

// IsBuySide reports whether the signal opens or favors long exposure.
func (s Signal) IsBuySide() bool { return s == SignalBuy || s == SignalLong }

// IsSellSide reports whether the signal opens or favors short exposure.
func (s Signal) IsSellSide() bool { return s == SignalSell || s == SignalShort }

// TradeKind identifies what a ledger entry did.
type TradeKind string

const (
	TradeBuy        TradeKind = "buy"
	TradeSell       TradeKind = "sell"
	TradeLong       TradeKind = "long"
	TradeShort      TradeKind = "short"
	TradeCloseLong  TradeKind = "close_long"
	TradeCloseShort TradeKind = "close_short"
)

// IsEntry reports whether the trade opened exposure.
func (k TradeKind) IsEntry() bool {
	return k == TradeBuy || k == TradeLong || k == TradeShort
}

// IsExit reports whether the trade closed exposure. Only exit trades may
// carry realized P&L.
func (k TradeKind) IsExit() bool {
	return k == TradeSell || k == TradeCloseLong || k == TradeCloseShort
}
