package ports

import (
	"context"

	"kdjbot/internal/domain"
)

// Fill is one partial execution reported with an order response.
type Fill struct {
	Price    float64
	Quantity float64
}

// OrderResult carries the essential details returned after placing a market
// order. ExecutedQty may be zero when the exchange response omitted the
// field; callers must fall back to the requested price/quantity and flag the
// resulting trade record.
type OrderResult struct {
	OrderID     int64
	ExecutedQty float64 // filled base quantity; 0 when not extractable
	CumQuoteQty float64 // cumulative quote value (spot); 0 when unknown
	AvgPrice    float64 // average fill price (futures); 0 when unknown
	Fills       []Fill  // per-fill breakdown when provided
}

// OpenPosition describes a live futures position reported by the exchange.
type OpenPosition struct {
	Side       domain.PositionSide
	Quantity   float64 // absolute position size
	EntryPrice float64
}

// ExchangeGateway defines the interface for interacting with the exchange.
// Implementations own authentication, rate-limit handling and bounded
// retry; calls surface transient failures as ErrRateLimited /
// ErrExchangeUnavailable after retries are exhausted.
type ExchangeGateway interface {
	// GetCurrentPrice retrieves the last ticker price for the pair.
	GetCurrentPrice(ctx context.Context, pair string) (float64, error)

	// GetCandles retrieves up to limit historical candles for one timeframe,
	// oldest first.
	GetCandles(ctx context.Context, pair string, tf domain.Timeframe, limit int) ([]*domain.Candle, error)

	// GetBalance retrieves the available balance for a specific asset.
	GetBalance(ctx context.Context, asset string) (float64, error)

	// GetOpenPosition retrieves the live position for the pair (futures
	// only). Returns nil, nil when no position is open.
	GetOpenPosition(ctx context.Context, pair string) (*OpenPosition, error)

	// PlaceMarketOrder places a market order for the given base quantity.
	PlaceMarketOrder(ctx context.Context, pair string, side domain.OrderSide, quantity float64) (*OrderResult, error)

	// SetLeverage sets the leverage for the pair (futures only).
	SetLeverage(ctx context.Context, pair string, leverage int) error

	// GetMaxLeverage returns the maximum leverage the exchange allows for
	// the pair (futures only).
	GetMaxLeverage(ctx context.Context, pair string) (int, error)

	// GetLotStepSize returns the lot size step for the pair, used to floor
	// order quantities to a valid precision. Returns 0 when unknown.
	GetLotStepSize(ctx context.Context, pair string) (float64, error)
}
