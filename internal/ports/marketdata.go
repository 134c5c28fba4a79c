package ports

import (
	"context"
	"time"

	"levelwatch/internal/domain"
)

// ReleaseFunc releases one reference to the terminal connection. It must be
// called exactly once per successful Acquire.
type ReleaseFunc func()

// MarketDataClient defines the interface for the market-data terminal.
// This abstraction decouples the monitoring core from a specific terminal
// implementation.
//
// The connection is reference counted: every sequence of calls that needs the
// terminal brackets them with Acquire/release. The first acquirer establishes
// the link, the last releaser stamps it idle so the adapter can tear it down
// after an idle timeout. Concurrent acquisition from multiple workers is safe
// and never double-initializes or tears down an in-use connection.
type MarketDataClient interface {
	// Acquire takes a reference to the terminal connection, establishing it
	// if needed. The returned ReleaseFunc must be called when done.
	Acquire(ctx context.Context) (ReleaseFunc, error)

	// GetBars retrieves the most recent count bars for symbol/timeframe,
	// ordered by open time ascending. The newest bar may still be forming.
	GetBars(ctx context.Context, symbol string, tf domain.Timeframe, count int) ([]domain.Bar, error)

	// GetBarsRange retrieves the bars whose open time falls within
	// [start, end), ordered by open time ascending.
	GetBarsRange(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Bar, error)

	// GetInstrumentSpec retrieves the contract specification for a symbol.
	GetInstrumentSpec(ctx context.Context, symbol string) (*domain.InstrumentSpec, error)

	// GetQuote retrieves the current bid/ask for a symbol.
	GetQuote(ctx context.Context, symbol string) (*domain.Quote, error)

	// Ping checks connectivity to the terminal.
	Ping(ctx context.Context) error
}
