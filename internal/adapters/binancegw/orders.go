package binancegw

import (
	"context"
	"fmt"
	"strconv"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"

	"kdjbot/internal/domain"
	"kdjbot/internal/ports"
)

// PlaceMarketOrder places a market order for the given base quantity.
// Order placement is never retried: a timeout on the first attempt may
// still have filled, and a blind retry could double the position.
func (g *Gateway) PlaceMarketOrder(ctx context.Context, pair string, side domain.OrderSide, quantity float64) (*ports.OrderResult, error) {
	op := "PlaceMarketOrder"
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive, got %f", ports.ErrInvalidRequest, quantity)
	}
	qtyStr := strconv.FormatFloat(quantity, 'f', -1, 64)

	if g.mode == domain.ModeFutures {
		order, err := g.futuresClient.NewCreateOrderService().
			Symbol(pair).
			Side(futures.SideType(side)).
			Type(futures.OrderTypeMarket).
			Quantity(qtyStr).
			Do(ctx)
		if err != nil {
			return nil, g.handleError(ctx, err, op)
		}

		result := translateFuturesOrder(order)
		g.logger.Info(ctx, op+" successful", map[string]interface{}{
			"symbol":      pair,
			"side":        side,
			"quantity":    qtyStr,
			"orderID":     result.OrderID,
			"executedQty": result.ExecutedQty,
			"avgPrice":    result.AvgPrice,
		})
		return result, nil
	}

	order, err := g.spotClient.NewCreateOrderService().
		Symbol(pair).
		Side(binance.SideType(side)).
		Type(binance.OrderTypeMarket).
		Quantity(qtyStr).
		Do(ctx)
	if err != nil {
		return nil, g.handleError(ctx, err, op)
	}

	result := translateSpotOrder(order)
	g.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol":      pair,
		"side":        side,
		"quantity":    qtyStr,
		"orderID":     result.OrderID,
		"executedQty": result.ExecutedQty,
		"cumQuote":    result.CumQuoteQty,
	})
	return result, nil
}

// translateSpotOrder maps a spot order response into the gateway-neutral
// result. Unparseable numeric fields degrade to zero so the caller can fall
// back to requested values rather than failing an already-placed order.
func translateSpotOrder(order *binance.CreateOrderResponse) *ports.OrderResult {
	result := &ports.OrderResult{
		OrderID:     order.OrderID,
		ExecutedQty: parseFloatOrZero(order.ExecutedQuantity),
		CumQuoteQty: parseFloatOrZero(order.CummulativeQuoteQuantity),
	}
	for _, f := range order.Fills {
		result.Fills = append(result.Fills, ports.Fill{
			Price:    parseFloatOrZero(f.Price),
			Quantity: parseFloatOrZero(f.Quantity),
		})
	}
	return result
}

func translateFuturesOrder(order *futures.CreateOrderResponse) *ports.OrderResult {
	return &ports.OrderResult{
		OrderID:     order.OrderID,
		ExecutedQty: parseFloatOrZero(order.ExecutedQuantity),
		CumQuoteQty: parseFloatOrZero(order.CumQuote),
		AvgPrice:    parseFloatOrZero(order.AvgPrice),
	}
}

func parseFloatOrZero(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
