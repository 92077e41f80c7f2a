package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"kdjbot/config"
	"kdjbot/internal/adapters/binancegw"
	"kdjbot/internal/adapters/logger"
	"kdjbot/internal/adapters/sqlitestore"
	"kdjbot/internal/app"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewZapLogger(logger.ZapConfig{
		Level:      cfg.LogLevel,
		FilePath:   cfg.LogFilePath,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
		Console:    cfg.LogToConsole,
	})
	defer func() { _ = appLogger.Sync() }()
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize State Store (SQLite Adapter)
	store, err := sqlitestore.New(sqlitestore.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize state store")
		log.Fatalf("FATAL: Failed to initialize state store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing state store")
		}
	}()
	appLogger.Info(context.Background(), "State store initialized")

	// 4. Initialize Exchange Gateway (Binance Adapter)
	gateway, err := binancegw.New(binancegw.Config{
		APIKey:      cfg.APIKey,
		SecretKey:   cfg.SecretKey,
		Mode:        cfg.Mode,
		UseTestnet:  cfg.IsTestnet,
		Logger:      appLogger,
		MaxAttempts: cfg.MaxAttempts,
		RetryMin:    cfg.RetryMin,
		RetryMax:    cfg.RetryMax,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance gateway")
		log.Fatalf("FATAL: Failed to initialize Binance gateway: %v", err)
	}
	appLogger.Info(context.Background(), "Binance gateway initialized")

	// 5. Initialize Application Service
	tradingService, err := app.NewTradingService(cfg, appLogger, gateway, store)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}
	appLogger.Info(context.Background(), "Trading service initialized")

	// 6. Start the Service
	if err := tradingService.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Trading service exited with error")
		log.Fatalf("FATAL: Trading service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
