// Package binancegw implements ports.ExchangeGateway on the Binance REST
// API, covering both spot and USD-M futures markets behind one interface.
package binancegw

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"

	"kdjbot/internal/domain"
	"kdjbot/internal/ports"
)

const (
	spotBaseURLTestnet    = "https://testnet.binance.vision"
	futuresBaseURLProd    = "https://fapi.binance.com"
	futuresBaseURLTestnet = "https://testnet.binancefuture.com"
)

// Gateway implements the ports.ExchangeGateway interface using the
// go-binance library. Exactly one of the underlying clients is active,
// selected by the trading mode.
type Gateway struct {
	mode          domain.TradingMode
	spotClient    *binance.Client
	futuresClient *futures.Client
	logger        ports.Logger
	maxAttempts   int
	retryMin      time.Duration
	retryMax      time.Duration
}

// Config holds configuration specific to the Binance gateway adapter.
type Config struct {
	APIKey      string
	SecretKey   string
	Mode        domain.TradingMode
	UseTestnet  bool
	Logger      ports.Logger
	MaxAttempts int           // per-call retry attempts; defaults to 3
	RetryMin    time.Duration // initial backoff delay; defaults to 1s
	RetryMax    time.Duration // backoff ceiling; defaults to 30s
}

// New creates a new Binance gateway adapter.
func New(cfg Config) (*Gateway, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance gateway")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Gateway will only work for public endpoints.")
	}

	g := &Gateway{
		mode:        cfg.Mode,
		logger:      cfg.Logger,
		maxAttempts: cfg.MaxAttempts,
		retryMin:    cfg.RetryMin,
		retryMax:    cfg.RetryMax,
	}
	if g.maxAttempts <= 0 {
		g.maxAttempts = 3
	}
	if g.retryMin <= 0 {
		g.retryMin = time.Second
	}
	if g.retryMax <= 0 {
		g.retryMax = 30 * time.Second
	}

	if cfg.Mode == domain.ModeFutures {
		client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
		if cfg.UseTestnet {
			client.BaseURL = futuresBaseURLTestnet
		} else {
			client.BaseURL = futuresBaseURLProd
		}
		g.futuresClient = client
		cfg.Logger.Info(context.Background(), "Binance futures gateway configured", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
		if cfg.UseTestnet {
			client.BaseURL = spotBaseURLTestnet
		}
		g.spotClient = client
		cfg.Logger.Info(context.Background(), "Binance spot gateway configured", map[string]interface{}{"testnet": cfg.UseTestnet})
	}

	return g, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (g *Gateway) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1013: // Filter failure (MIN_NOTIONAL, LOT_SIZE)
			mappedErr = ports.ErrMinNotional
		case -1021: // Timestamp outside of recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Invalid signature
			mappedErr = ports.ErrAuthenticationFailed
		case -1100, -1101, -1102, -1103, -1104, -1106, -1111, -1121, -1130:
			mappedErr = ports.ErrInvalidRequest
		case -2010: // New order rejected
			if strings.Contains(strings.ToLower(apiErr.Message), "insufficient") {
				mappedErr = ports.ErrInsufficientFunds
			} else {
				mappedErr = ports.ErrOrderPlacementFailed
			}
		case -2014, -2015: // API-key invalid / permissions
			mappedErr = ports.ErrInvalidAPIKeys
		case -2019, -3005, -3041: // Margin or balance insufficient
			mappedErr = ports.ErrInsufficientFunds
		case -4003, -4014, -4015: // Qty/price/leverage out of range
			mappedErr = ports.ErrInvalidRequest
		case -4047: // Exceeds max position at current leverage
			mappedErr = ports.ErrInsufficientFunds
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		g.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Non-API errors: network failures, context cancellation, parsing.
	var finalErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s canceled: %w", operation, err)
	case strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"),
		strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "no such host"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrExchangeUnavailable, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	g.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// retryable reports whether an error is worth retrying. Authentication,
// balance and request-shape problems will not improve on a second attempt.
func retryable(err error) bool {
	switch {
	case errors.Is(err, ports.ErrRateLimited),
		errors.Is(err, ports.ErrExchangeUnavailable),
		errors.Is(err, ports.ErrTimeout),
		errors.Is(err, ports.ErrUnknown):
		return true
	default:
		return false
	}
}

// withRetry runs fn with exponential backoff. Rate-limit errors escalate
// the wait to the backoff ceiling to let the limit window pass.
func (g *Gateway) withRetry(ctx context.Context, operation string, fn func() error) error {
	b := &backoff.Backoff{
		Min:    g.retryMin,
		Max:    g.retryMax,
		Factor: 2,
		Jitter: true,
	}

	var err error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt == g.maxAttempts {
			return err
		}

		delay := b.Duration()
		if errors.Is(err, ports.ErrRateLimited) {
			delay = g.retryMax
		}
		g.logger.Warn(ctx, "Retrying exchange call", map[string]interface{}{
			"operation": operation,
			"attempt":   attempt,
			"delay":     delay.String(),
		})

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s aborted during retry wait: %w", operation, ctx.Err())
		case <-time.After(delay):
		}
	}
	return err
}
