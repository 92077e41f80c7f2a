package binancegw

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"kdjbot/internal/domain"
	"kdjbot/internal/ports"
)

// GetCurrentPrice retrieves the last ticker price for the pair.
func (g *Gateway) GetCurrentPrice(ctx context.Context, pair string) (float64, error) {
	op := "GetCurrentPrice"
	var price float64

	err := g.withRetry(ctx, op, func() error {
		var raw string
		if g.mode == domain.ModeFutures {
			prices, err := g.futuresClient.NewListPricesService().Symbol(pair).Do(ctx)
			if err != nil {
				return g.handleError(ctx, err, op)
			}
			if len(prices) == 0 {
				return g.handleError(ctx, fmt.Errorf("no price data returned for symbol %s", pair), op)
			}
			raw = prices[0].Price
		} else {
			prices, err := g.spotClient.NewListPricesService().Symbol(pair).Do(ctx)
			if err != nil {
				return g.handleError(ctx, err, op)
			}
			if len(prices) == 0 {
				return g.handleError(ctx, fmt.Errorf("no price data returned for symbol %s", pair), op)
			}
			raw = prices[0].Price
		}

		p, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return g.handleError(ctx, fmt.Errorf("could not parse price '%s': %w", raw, err), op)
		}
		price = p
		return nil
	})
	return price, err
}

// GetCandles retrieves up to limit historical candles for one timeframe,
// oldest first.
func (g *Gateway) GetCandles(ctx context.Context, pair string, tf domain.Timeframe, limit int) ([]*domain.Candle, error) {
	op := "GetCandles"
	interval := tf.Interval()
	if interval == "" {
		return nil, fmt.Errorf("%w: unknown timeframe %q", ports.ErrInvalidRequest, tf)
	}

	var candles []*domain.Candle
	err := g.withRetry(ctx, op, func() error {
		candles = candles[:0]

		if g.mode == domain.ModeFutures {
			klines, err := g.futuresClient.NewKlinesService().
				Symbol(pair).Interval(interval).Limit(limit).Do(ctx)
			if err != nil {
				return g.handleError(ctx, err, op)
			}
			for _, k := range klines {
				c, err := parseCandle(k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume)
				if err != nil {
					return g.handleError(ctx, err, op)
				}
				candles = append(candles, c)
			}
			return nil
		}

		klines, err := g.spotClient.NewKlinesService().
			Symbol(pair).Interval(interval).Limit(limit).Do(ctx)
		if err != nil {
			return g.handleError(ctx, err, op)
		}
		for _, k := range klines {
			c, err := parseCandle(k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume)
			if err != nil {
				return g.handleError(ctx, err, op)
			}
			candles = append(candles, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return candles, nil
}

func parseCandle(openTime int64, open, high, low, closePrice, volume string) (*domain.Candle, error) {
	c := &domain.Candle{OpenTime: time.UnixMilli(openTime)}
	for _, f := range []struct {
		raw string
		dst *float64
	}{
		{open, &c.Open},
		{high, &c.High},
		{low, &c.Low},
		{closePrice, &c.Close},
		{volume, &c.Volume},
	} {
		v, err := strconv.ParseFloat(f.raw, 64)
		if err != nil {
			return nil, fmt.Errorf("could not parse kline field '%s': %w", f.raw, err)
		}
		*f.dst = v
	}
	return c, nil
}

// GetBalance retrieves the available balance for a specific asset.
func (g *Gateway) GetBalance(ctx context.Context, asset string) (float64, error) {
	op := "GetBalance"
	var balance float64

	err := g.withRetry(ctx, op, func() error {
		if g.mode == domain.ModeFutures {
			account, err := g.futuresClient.NewGetAccountService().Do(ctx)
			if err != nil {
				return g.handleError(ctx, err, op)
			}
			for _, bal := range account.Assets {
				if bal.Asset != asset {
					continue
				}
				b, err := strconv.ParseFloat(bal.AvailableBalance, 64)
				if err != nil {
					return g.handleError(ctx, fmt.Errorf("could not parse balance '%s' for asset %s: %w", bal.AvailableBalance, asset, err), op)
				}
				balance = b
				return nil
			}
			// Asset absent means a zero balance, not an error.
			balance = 0
			return nil
		}

		account, err := g.spotClient.NewGetAccountService().Do(ctx)
		if err != nil {
			return g.handleError(ctx, err, op)
		}
		for _, bal := range account.Balances {
			if bal.Asset != asset {
				continue
			}
			b, err := strconv.ParseFloat(bal.Free, 64)
			if err != nil {
				return g.handleError(ctx, fmt.Errorf("could not parse balance '%s' for asset %s: %w", bal.Free, asset, err), op)
			}
			balance = b
			return nil
		}
		balance = 0
		return nil
	})
	return balance, err
}

// GetOpenPosition retrieves the live futures position for the pair.
// Returns nil, nil when flat or in spot mode, where positions are implied
// by the base-asset balance.
func (g *Gateway) GetOpenPosition(ctx context.Context, pair string) (*ports.OpenPosition, error) {
	op := "GetOpenPosition"
	if g.mode != domain.ModeFutures {
		return nil, nil
	}

	var pos *ports.OpenPosition
	err := g.withRetry(ctx, op, func() error {
		risks, err := g.futuresClient.NewGetPositionRiskService().Symbol(pair).Do(ctx)
		if err != nil {
			return g.handleError(ctx, err, op)
		}
		for _, r := range risks {
			amt, err := strconv.ParseFloat(r.PositionAmt, 64)
			if err != nil {
				return g.handleError(ctx, fmt.Errorf("could not parse position amount '%s': %w", r.PositionAmt, err), op)
			}
			if amt == 0 {
				continue
			}
			entry, err := strconv.ParseFloat(r.EntryPrice, 64)
			if err != nil {
				return g.handleError(ctx, fmt.Errorf("could not parse entry price '%s': %w", r.EntryPrice, err), op)
			}

			side := domain.SideLong
			if amt < 0 {
				side = domain.SideShort
				amt = -amt
			}
			pos = &ports.OpenPosition{Side: side, Quantity: amt, EntryPrice: entry}
			return nil
		}
		pos = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pos, nil
}

// SetLeverage sets the leverage for the pair. No-op in spot mode.
func (g *Gateway) SetLeverage(ctx context.Context, pair string, leverage int) error {
	op := "SetLeverage"
	if g.mode != domain.ModeFutures {
		return nil
	}

	return g.withRetry(ctx, op, func() error {
		_, err := g.futuresClient.NewChangeLeverageService().
			Symbol(pair).Leverage(leverage).Do(ctx)
		if err != nil {
			return g.handleError(ctx, err, op)
		}
		g.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": pair, "leverage": leverage})
		return nil
	})
}

// GetMaxLeverage returns the maximum leverage the exchange allows for the
// pair. Spot mode is always 1.
func (g *Gateway) GetMaxLeverage(ctx context.Context, pair string) (int, error) {
	op := "GetMaxLeverage"
	if g.mode != domain.ModeFutures {
		return 1, nil
	}

	maxLeverage := 1
	err := g.withRetry(ctx, op, func() error {
		brackets, err := g.futuresClient.NewGetLeverageBracketService().Symbol(pair).Do(ctx)
		if err != nil {
			return g.handleError(ctx, err, op)
		}
		for _, lb := range brackets {
			if lb.Symbol != pair {
				continue
			}
			for _, b := range lb.Brackets {
				if b.InitialLeverage > maxLeverage {
					maxLeverage = b.InitialLeverage
				}
			}
		}
		return nil
	})
	return maxLeverage, err
}

// GetLotStepSize returns the lot size step for the pair, used to floor order
// quantities to a valid precision. Returns 0 when the filter is absent.
func (g *Gateway) GetLotStepSize(ctx context.Context, pair string) (float64, error) {
	op := "GetLotStepSize"
	var step float64

	err := g.withRetry(ctx, op, func() error {
		var raw string

		if g.mode == domain.ModeFutures {
			info, err := g.futuresClient.NewExchangeInfoService().Do(ctx)
			if err != nil {
				return g.handleError(ctx, err, op)
			}
			for _, s := range info.Symbols {
				if s.Symbol != pair {
					continue
				}
				if f := s.LotSizeFilter(); f != nil {
					raw = f.StepSize
				}
				break
			}
		} else {
			info, err := g.spotClient.NewExchangeInfoService().Symbol(pair).Do(ctx)
			if err != nil {
				return g.handleError(ctx, err, op)
			}
			for _, s := range info.Symbols {
				if s.Symbol != pair {
					continue
				}
				if f := s.LotSizeFilter(); f != nil {
					raw = f.StepSize
				}
				break
			}
		}

		if raw == "" {
			step = 0
			return nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return g.handleError(ctx, fmt.Errorf("could not parse step size '%s': %w", raw, err), op)
		}
		step = v
		return nil
	})
	return step, err
}
