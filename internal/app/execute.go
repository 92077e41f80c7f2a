package app

import (
	"context"
	"errors"
	"math"

	"kdjbot/internal/domain"
	"kdjbot/internal/ports"
	"kdjbot/internal/risk"
)

// minOrderNotional is the smallest order value the bot will place, with
// margin above the exchange's 10-quote minimum.
const minOrderNotional = 11.0

// floorToStep floors a quantity to the exchange lot step. A zero step
// leaves the quantity untouched.
func floorToStep(quantity, step float64) float64 {
	if step <= 0 {
		return quantity
	}
	return math.Floor(quantity/step) * step
}

// extractFill pulls the effective fill price and quantity out of an order
// result. When the response carries no executed quantity the requested
// values are returned and the fallback flag is set so the trade record can
// be marked.
func extractFill(result *ports.OrderResult, reqPrice, reqQty float64) (price, quantity float64, fallback bool) {
	if result == nil || result.ExecutedQty <= 0 {
		return reqPrice, reqQty, true
	}
	quantity = result.ExecutedQty

	// Preference order: per-fill weighted average, cumulative quote value,
	// reported average price, then the requested price.
	if len(result.Fills) > 0 {
		var totalQty, totalCost float64
		for _, f := range result.Fills {
			totalQty += f.Quantity
			totalCost += f.Quantity * f.Price
		}
		if totalQty > 0 {
			return totalCost / totalQty, quantity, false
		}
	}
	if result.CumQuoteQty > 0 {
		return result.CumQuoteQty / quantity, quantity, false
	}
	if result.AvgPrice > 0 {
		return result.AvgPrice, quantity, false
	}
	return reqPrice, quantity, false
}

// entryKind maps a position side to its entry trade kind for the mode.
func (s *TradingService) entryKind(side domain.PositionSide) domain.TradeKind {
	if s.cfg.Mode == domain.ModeFutures {
		if side == domain.SideShort {
			return domain.TradeShort
		}
		return domain.TradeLong
	}
	return domain.TradeBuy
}

// exitKind maps a position side to its exit trade kind for the mode.
func (s *TradingService) exitKind(side domain.PositionSide) domain.TradeKind {
	if s.cfg.Mode == domain.ModeFutures {
		if side == domain.SideShort {
			return domain.TradeCloseShort
		}
		return domain.TradeCloseLong
	}
	return domain.TradeSell
}

// enterPosition sizes, places and records an entry order. Order placement
// failures are logged and leave the bot flat; they are never retried
// blindly because the order may have partially gone through.
// Callers hold the mutex.
func (s *TradingService) enterPosition(ctx context.Context, price, quantity float64, side domain.PositionSide, quoteBalance float64) error {
	// Direction changes must pass through FLAT.
	if s.state.InPosition {
		s.logger.Warn(ctx, "Cannot open position while another is active", map[string]interface{}{
			"openSide":      s.state.Side,
			"requestedSide": side,
		})
		return nil
	}

	// Affordability check with a 0.5% safety margin against price movement
	// between sizing and execution.
	required := price * quantity
	if s.cfg.Mode == domain.ModeFutures {
		required /= float64(s.cfg.Leverage)
	}
	if quoteBalance < required {
		safeQty := quoteBalance * 0.995 / price
		if s.cfg.Mode == domain.ModeFutures {
			safeQty *= float64(s.cfg.Leverage)
		}
		if safeQty*price < minOrderNotional {
			s.logger.Warn(ctx, "Cannot place order: balance-adjusted quantity below minimum notional", map[string]interface{}{
				"balance":    quoteBalance,
				"required":   required,
				"adjustedTo": safeQty * price,
			})
			return nil
		}
		s.logger.Info(ctx, "Adjusting quantity to available balance", map[string]interface{}{
			"requested": quantity,
			"adjusted":  safeQty,
		})
		quantity = safeQty
	}

	quantity = floorToStep(quantity, s.lotStep)
	if quantity*price < minOrderNotional {
		s.logger.Warn(ctx, "Order value below minimum notional after lot flooring", map[string]interface{}{
			"quantity":   quantity,
			"quoteValue": quantity * price,
		})
		return nil
	}

	orderSide := domain.Buy
	if side == domain.SideShort {
		orderSide = domain.Sell
	}

	result, err := s.exchange.PlaceMarketOrder(ctx, s.cfg.Symbol, orderSide, quantity)
	if err != nil {
		if errors.Is(err, ports.ErrInsufficientFunds) || errors.Is(err, ports.ErrMinNotional) {
			s.logger.Warn(ctx, "Entry order rejected", map[string]interface{}{"reason": err.Error()})
			return nil
		}
		s.logger.Error(ctx, err, "Entry order failed")
		return nil
	}

	fillPrice, fillQty, fallback := extractFill(result, price, quantity)
	if fallback {
		s.logger.Warn(ctx, "Could not extract fill data from order, using requested values", map[string]interface{}{
			"orderID": result.OrderID,
		})
	}

	kind := s.entryKind(side)
	s.state.InPosition = true
	s.state.Side = side
	s.state.EntryPrice = fillPrice
	s.state.Quantity = fillQty
	s.state.LastAction = kind
	s.state.LastActionPrice = fillPrice
	s.state.Leverage = s.cfg.Leverage

	trade := domain.NewTrade(kind, fillPrice, fillQty, s.cfg.Leverage)
	trade.Details[domain.DetailOrderID] = result.OrderID
	trade.Details[domain.DetailCommission] = s.cfg.Mode.FeeRate() * fillPrice * fillQty
	trade.Details[domain.DetailLeverage] = s.cfg.Leverage
	if fallback {
		trade.Details[domain.DetailFallbackValues] = true
	}
	s.ledger.Record(ctx, trade)

	if err := s.saveState(ctx); err != nil {
		return err
	}

	s.logger.Info(ctx, "Position opened", map[string]interface{}{
		"side":       side,
		"entryPrice": fillPrice,
		"quantity":   fillQty,
		"leverage":   s.cfg.Leverage,
	})

	s.reconcileAfterEntry(ctx, fillQty)
	return nil
}

// reconcileAfterEntry cross-checks the recorded fill quantity against the
// exchange and keeps the smaller value when they diverge by more than 1%.
// Callers hold the mutex.
func (s *TradingService) reconcileAfterEntry(ctx context.Context, fillQty float64) {
	var real float64
	if s.cfg.Mode == domain.ModeFutures {
		live, err := s.exchange.GetOpenPosition(ctx, s.cfg.Symbol)
		if err != nil || live == nil {
			return
		}
		real = live.Quantity
	} else {
		balance, err := s.exchange.GetBalance(ctx, s.baseAsset)
		if err != nil {
			return
		}
		real = balance
	}

	if !diverges(fillQty, real) {
		return
	}
	s.logger.Warn(ctx, "Balance discrepancy detected after entry", map[string]interface{}{
		"recorded": fillQty,
		"real":     real,
	})
	if real < fillQty {
		s.state.Quantity = real
	}
	if err := s.saveState(ctx); err != nil {
		s.logger.Warn(ctx, "Reconciled quantity not persisted")
	}
}

// exitPosition closes the open position with a market order and records the
// realized P&L. An insufficient-funds rejection means the position no
// longer exists on the exchange, so local state is corrected to flat.
// Callers hold the mutex.
func (s *TradingService) exitPosition(ctx context.Context, price float64, reason risk.ExitReason) error {
	if !s.state.InPosition {
		s.logger.Warn(ctx, "Cannot close: not in position")
		return nil
	}

	// Close the actual holding, not the recorded one: spot sells the live
	// base balance, futures closes the recorded position amount.
	quantity := s.state.Quantity
	if s.cfg.Mode == domain.ModeSpot {
		balance, err := s.exchange.GetBalance(ctx, s.baseAsset)
		if err != nil {
			return err
		}
		if balance < dustBalance {
			s.logger.Warn(ctx, "Insufficient base balance for close, correcting position state", map[string]interface{}{
				"asset":   s.baseAsset,
				"balance": balance,
			})
			s.state.Flatten()
			return s.saveState(ctx)
		}
		quantity = balance
	}

	quantity = floorToStep(quantity, s.lotStep)
	if quantity <= 0 {
		s.logger.Warn(ctx, "Close quantity is zero after lot flooring, correcting position state")
		s.state.Flatten()
		return s.saveState(ctx)
	}

	orderSide := domain.Sell
	if s.state.IsShort() {
		orderSide = domain.Buy
	}

	result, err := s.exchange.PlaceMarketOrder(ctx, s.cfg.Symbol, orderSide, quantity)
	if err != nil {
		if errors.Is(err, ports.ErrInsufficientFunds) {
			s.logger.Warn(ctx, "Insufficient balance on close, position no longer exists on exchange, correcting to flat")
			s.state.Flatten()
			return s.saveState(ctx)
		}
		s.logger.Error(ctx, err, "Close order failed", map[string]interface{}{"reason": reason})
		return nil
	}

	fillPrice, fillQty, fallback := extractFill(result, price, quantity)
	kind := s.exitKind(s.state.Side)
	trade := domain.NewTrade(kind, fillPrice, fillQty, s.state.Leverage)
	trade.Details[domain.DetailOrderID] = result.OrderID
	trade.Details[domain.DetailLeverage] = s.state.Leverage
	trade.Details["exit_reason"] = string(reason)

	if fallback {
		// Requested values only: record the trade without a realized P&L
		// so the aggregate stays honest.
		trade.Details[domain.DetailFallbackValues] = true
		s.logger.Warn(ctx, "Could not extract fill data from close order, recording without realized P&L", map[string]interface{}{
			"orderID":         result.OrderID,
			"approxProfitPct": risk.ProfitPercent(s.state, price, s.cfg.Mode),
		})
	} else {
		entryValue := s.state.EntryPrice * s.state.Quantity
		exitValue := fillPrice * fillQty
		pnl := exitValue - entryValue
		if s.state.IsShort() {
			pnl = entryValue - exitValue
		}
		profitPct := risk.ProfitPercent(s.state, fillPrice, s.cfg.Mode)
		trade.WithPnL(pnl)
		trade.Details[domain.DetailEntryPrice] = s.state.EntryPrice
		trade.Details[domain.DetailProfitPct] = profitPct
		trade.Details[domain.DetailCommission] = s.cfg.Mode.FeeRate() * fillPrice * fillQty

		s.logger.Info(ctx, "Position closed", map[string]interface{}{
			"reason":    reason,
			"exitPrice": fillPrice,
			"quantity":  fillQty,
			"pnl":       pnl,
			"profitPct": profitPct,
		})
	}
	s.ledger.Record(ctx, trade)

	s.state.Flatten()
	s.state.LastAction = kind
	s.state.LastActionPrice = fillPrice
	if err := s.saveState(ctx); err != nil {
		return err
	}

	s.reportLocked(ctx, true)
	return nil
}
