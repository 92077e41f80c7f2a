package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"kdjbot/internal/adapters/logger"
	"kdjbot/internal/domain"
)

const minCheckInterval = 10 * time.Second

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Trading Parameters
	Symbol        string
	Mode          domain.TradingMode
	Leverage      int // futures only; forced to 1 in spot mode
	CheckInterval time.Duration

	// Risk overrides; zero means "use the regime default".
	TrendingSignalThreshold int
	RangingSignalThreshold  int
	TrendingTakeProfitPct   float64
	RangingTakeProfitPct    float64
	TrendingStopLossPct     float64
	RangingStopLossPct      float64

	// KDJ parameter overrides, zero means "use the per-timeframe default".
	KDJOverrides map[domain.Timeframe]domain.KDJParams

	// Database
	DBPath string

	// Logging
	LogLevel      logger.LogLevel
	LogFilePath   string
	LogToConsole  bool
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	// Exchange call retry settings
	RetryMin    time.Duration
	RetryMax    time.Duration
	MaxAttempts int
}

// RiskParams merges the configured overrides onto the regime defaults.
func (c *Config) RiskParams() map[domain.Regime]domain.RiskParams {
	params := domain.DefaultRiskParams()

	trending := params[domain.RegimeTrending]
	if c.TrendingSignalThreshold > 0 {
		trending.SignalThreshold = c.TrendingSignalThreshold
	}
	if c.TrendingTakeProfitPct > 0 {
		trending.TakeProfitPct = c.TrendingTakeProfitPct
	}
	if c.TrendingStopLossPct > 0 {
		trending.StopLossPct = c.TrendingStopLossPct
	}
	params[domain.RegimeTrending] = trending

	ranging := params[domain.RegimeRanging]
	if c.RangingSignalThreshold > 0 {
		ranging.SignalThreshold = c.RangingSignalThreshold
	}
	if c.RangingTakeProfitPct > 0 {
		ranging.TakeProfitPct = c.RangingTakeProfitPct
	}
	if c.RangingStopLossPct > 0 {
		ranging.StopLossPct = c.RangingStopLossPct
	}
	params[domain.RegimeRanging] = ranging

	return params
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	if cfg.APIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if cfg.SecretKey == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}

	// Trading Parameters
	cfg.Symbol = strings.ToUpper(getEnv("SYMBOL", "BTCUSDT"))
	if cfg.Symbol == "" {
		errs = append(errs, "SYMBOL must be set")
	}

	modeStr := strings.ToUpper(getEnv("TRADING_MODE", "SPOT"))
	switch modeStr {
	case "SPOT":
		cfg.Mode = domain.ModeSpot
	case "FUTURES":
		cfg.Mode = domain.ModeFutures
	default:
		errs = append(errs, fmt.Sprintf("TRADING_MODE must be SPOT or FUTURES, got %q", modeStr))
	}

	cfg.Leverage = getEnvAsInt("LEVERAGE", 1)
	if cfg.Leverage <= 0 {
		errs = append(errs, "LEVERAGE must be positive")
	}
	if cfg.Mode == domain.ModeSpot {
		cfg.Leverage = 1
	}

	intervalSeconds := getEnvAsInt("CHECK_INTERVAL_SECONDS", 30)
	cfg.CheckInterval = time.Duration(intervalSeconds) * time.Second
	if cfg.CheckInterval < minCheckInterval {
		errs = append(errs, fmt.Sprintf("CHECK_INTERVAL_SECONDS must be at least %d", int(minCheckInterval.Seconds())))
	}

	// Risk overrides (0 = regime default)
	cfg.TrendingSignalThreshold = getEnvAsInt("TRENDING_SIGNAL_THRESHOLD", 0)
	cfg.RangingSignalThreshold = getEnvAsInt("RANGING_SIGNAL_THRESHOLD", 0)
	cfg.TrendingTakeProfitPct = getEnvAsFloat("TRENDING_TAKE_PROFIT_PCT", 0)
	cfg.RangingTakeProfitPct = getEnvAsFloat("RANGING_TAKE_PROFIT_PCT", 0)
	cfg.TrendingStopLossPct = getEnvAsFloat("TRENDING_STOP_LOSS_PCT", 0)
	cfg.RangingStopLossPct = getEnvAsFloat("RANGING_STOP_LOSS_PCT", 0)

	// KDJ overrides per timeframe, e.g. KDJ_FAST="7,3,3"
	cfg.KDJOverrides = map[domain.Timeframe]domain.KDJParams{}
	for _, tf := range domain.AllTimeframes {
		key := "KDJ_" + string(tf)
		raw := getEnv(key, "")
		if raw == "" {
			continue
		}
		params, err := parseKDJParams(raw)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
			continue
		}
		if err := params.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
			continue
		}
		cfg.KDJOverrides[tf] = params
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/kdjbot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFilePath = getEnv("LOG_FILE", "./logs/trading_bot.log")
	cfg.LogToConsole = getEnvAsBool("LOG_CONSOLE", true)
	cfg.LogMaxSizeMB = getEnvAsInt("LOG_MAX_SIZE_MB", 50)
	cfg.LogMaxBackups = getEnvAsInt("LOG_MAX_BACKUPS", 5)
	cfg.LogMaxAgeDays = getEnvAsInt("LOG_MAX_AGE_DAYS", 28)

	// Exchange call retry settings
	cfg.MaxAttempts = getEnvAsInt("EXCHANGE_MAX_ATTEMPTS", 3)
	if cfg.MaxAttempts <= 0 {
		errs = append(errs, "EXCHANGE_MAX_ATTEMPTS must be positive")
	}
	cfg.RetryMin = time.Duration(getEnvAsInt("EXCHANGE_RETRY_MIN_SECONDS", 1)) * time.Second
	cfg.RetryMax = time.Duration(getEnvAsInt("EXCHANGE_RETRY_MAX_SECONDS", 30)) * time.Second
	if cfg.RetryMin <= 0 || cfg.RetryMax < cfg.RetryMin {
		errs = append(errs, "EXCHANGE_RETRY_MIN_SECONDS must be positive and not exceed EXCHANGE_RETRY_MAX_SECONDS")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// parseKDJParams parses "kPeriod,kSmooth,dSmooth".
func parseKDJParams(raw string) (domain.KDJParams, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 3 {
		return domain.KDJParams{}, fmt.Errorf("expected 3 comma-separated values, got %d", len(parts))
	}
	vals := make([]int, 3)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return domain.KDJParams{}, fmt.Errorf("invalid integer %q: %w", p, err)
		}
		vals[i] = v
	}
	return domain.KDJParams{KPeriod: vals[0], KSmooth: vals[1], DSmooth: vals[2]}, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
