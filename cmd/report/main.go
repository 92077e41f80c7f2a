// Command report prints the profit/loss report for a bot database without
// touching the exchange. Useful for inspecting a stopped bot's history.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"kdjbot/internal/adapters/logger"
	"kdjbot/internal/adapters/sqlitestore"
	"kdjbot/internal/domain"
	"kdjbot/internal/ledger"
)

func main() {
	dbPath := flag.String("db", "./data/kdjbot.db", "path to the bot's SQLite database")
	modeStr := flag.String("mode", "SPOT", "trading mode to report on (SPOT or FUTURES)")
	flag.Parse()

	var mode domain.TradingMode
	switch strings.ToUpper(*modeStr) {
	case "SPOT":
		mode = domain.ModeSpot
	case "FUTURES":
		mode = domain.ModeFutures
	default:
		log.Fatalf("FATAL: -mode must be SPOT or FUTURES, got %q", *modeStr)
	}

	if _, err := os.Stat(*dbPath); err != nil {
		log.Fatalf("FATAL: cannot open database %q: %v", *dbPath, err)
	}

	appLogger := logger.NewStdLogger(logger.LevelError)
	store, err := sqlitestore.New(sqlitestore.Config{DBPath: *dbPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: failed to open state store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	led := ledger.New(mode, store, appLogger)
	if err := led.Load(ctx); err != nil {
		log.Fatalf("FATAL: failed to load trade history: %v", err)
	}

	// The persisted state carries the last known regime; default to
	// trending when the bot never saved one.
	regime := domain.RegimeTrending
	state, err := store.LoadPositionState(ctx, mode)
	if err == nil && state != nil && state.Regime != "" {
		regime = state.Regime
	}

	fmt.Println(ledger.FormatReport(led.Aggregate(), mode, regime, 0, time.Now()))

	if state != nil && state.InPosition {
		fmt.Printf("NOTE: an open %s position is recorded (entry %.2f, quantity %v); its unrealized P&L is not included.\n",
			state.Side, state.EntryPrice, state.Quantity)
	}
}
