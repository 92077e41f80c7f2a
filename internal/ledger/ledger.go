// Package ledger keeps the in-memory trade history and its aggregate
// statistics, mirrored into the state store. A store failure never blocks
// trading: the record stays in memory and the failure is only logged.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kdjbot/internal/domain"
	"kdjbot/internal/ports"
)

// Summary aggregates the full trade history.
type Summary struct {
	TotalPnL        float64
	TotalBuyVolume  float64 // quote value of all entries
	TotalSellVolume float64 // quote value of all exits
	ROIPct          float64 // TotalPnL over TotalBuyVolume
	TotalTrades     int
	EntryTrades     int
	ExitTrades      int
}

// Ledger is the append-only trade history for one trading mode.
type Ledger struct {
	mode   domain.TradingMode
	store  ports.StateStore
	logger ports.Logger
	trades []*domain.Trade
}

// New returns an empty ledger for the mode.
func New(mode domain.TradingMode, store ports.StateStore, logger ports.Logger) *Ledger {
	return &Ledger{mode: mode, store: store, logger: logger}
}

// Load replaces the in-memory history with the persisted one. Called once at
// startup before the evaluation loop begins.
func (l *Ledger) Load(ctx context.Context) error {
	trades, err := l.store.LoadTrades(ctx, l.mode)
	if err != nil {
		return fmt.Errorf("loading trade history: %w", err)
	}
	l.trades = trades
	l.logger.Info(ctx, "Trade history loaded", map[string]interface{}{
		"mode":   l.mode,
		"trades": len(trades),
	})
	return nil
}

// Record appends a trade to the history and persists it. A persistence
// failure is logged and swallowed; the in-memory history always grows.
func (l *Ledger) Record(ctx context.Context, trade *domain.Trade) {
	l.trades = append(l.trades, trade)

	if err := l.store.AppendTrade(ctx, l.mode, trade); err != nil {
		l.logger.Error(ctx, err, "Failed to persist trade record", map[string]interface{}{
			"kind":     trade.Kind,
			"price":    trade.Price,
			"quantity": trade.Quantity,
		})
	}
}

// Trades returns a copy of the history, oldest first.
func (l *Ledger) Trades() []*domain.Trade {
	out := make([]*domain.Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// Aggregate computes summary statistics over the full history. Only exit
// trades with a recorded P&L contribute to TotalPnL.
func (l *Ledger) Aggregate() Summary {
	var s Summary
	s.TotalTrades = len(l.trades)

	for _, t := range l.trades {
		switch {
		case t.Kind.IsEntry():
			s.EntryTrades++
			s.TotalBuyVolume += t.QuoteValue
		case t.Kind.IsExit():
			s.ExitTrades++
			s.TotalSellVolume += t.QuoteValue
			if t.RealizedPnL != nil {
				s.TotalPnL += *t.RealizedPnL
			}
		}
	}

	if s.TotalBuyVolume > 0 {
		s.ROIPct = s.TotalPnL / s.TotalBuyVolume * 100
	}
	return s
}

// FormatReport renders the human-readable profit/loss report written to the
// log on the hourly cadence and on demand.
func FormatReport(s Summary, mode domain.TradingMode, regime domain.Regime, quoteBalance float64, now time.Time) string {
	var b strings.Builder
	rule := strings.Repeat("=", 50)

	b.WriteString("\n" + rule + "\n")
	fmt.Fprintf(&b, "PROFIT/LOSS REPORT: %s\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "TRADING MODE: %s\n", mode)
	fmt.Fprintf(&b, "MARKET CONDITION: %s\n", regime)
	b.WriteString(strings.Repeat("-", 50) + "\n")
	fmt.Fprintf(&b, "Total Profit/Loss: %.4f USDT\n", s.TotalPnL)
	fmt.Fprintf(&b, "Total Buy Volume: %.4f USDT\n", s.TotalBuyVolume)
	fmt.Fprintf(&b, "Total Sell Volume: %.4f USDT\n", s.TotalSellVolume)
	fmt.Fprintf(&b, "ROI: %.2f%%\n", s.ROIPct)
	fmt.Fprintf(&b, "Total Trades: %d\n", s.TotalTrades)
	fmt.Fprintf(&b, "Entry Trades: %d\n", s.EntryTrades)
	fmt.Fprintf(&b, "Exit Trades: %d\n", s.ExitTrades)
	fmt.Fprintf(&b, "Current Quote Balance: %.4f\n", quoteBalance)
	b.WriteString(rule + "\n")

	return b.String()
}
