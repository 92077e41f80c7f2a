package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these standard errors
// so the core can branch with errors.Is without knowing the exchange SDK.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Exchange Specific Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInvalidAPIKeys       = errors.New("invalid API keys or permissions")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderPlacementFailed = errors.New("failed to place order")
	ErrMinNotional          = errors.New("order value below exchange minimum notional")
	ErrPositionConflict     = errors.New("conflicting position side already open")

	// Data Errors
	ErrInsufficientData = errors.New("not enough candle data for calculation")

	// Store Specific Errors
	ErrStoreUnavailable = errors.New("state store unavailable")
	ErrQueryFailed      = errors.New("state store query failed")
)
