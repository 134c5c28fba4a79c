package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these standard errors
// so core packages can branch with errors.Is.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Terminal / market-data errors
	ErrTerminalUnavailable  = errors.New("market-data terminal is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the market-data terminal")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrSymbolNotFound       = errors.New("symbol not known to the terminal")
	ErrInsufficientHistory  = errors.New("not enough bar history for the operation")
	ErrAuthenticationFailed = errors.New("terminal authentication failed (check API keys)")

	// Monitoring session errors
	ErrSessionActive = errors.New("a monitoring session is already active")
	ErrNoSession     = errors.New("no monitoring session is active")

	// Notification errors
	ErrNotificationFailed = errors.New("failed to deliver notification")
)
