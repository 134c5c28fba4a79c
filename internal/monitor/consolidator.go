package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"levelwatch/internal/domain"
	"levelwatch/internal/levels"
	"levelwatch/internal/ports"
)

// consolidator is the single worker that batches freshly produced signals
// across all symbols into one notification per bar-close boundary. It wakes
// on a short tick, recognizes the first seconds after a boundary of the
// polling timeframe as the batch window, waits briefly for the symbol
// workers to finish writing, then sweeps and dispatches.
type consolidator struct {
	symbols  []string
	store    *Store
	notifier ports.Notifier
	client   ports.MarketDataClient
	cache    *levels.Cache
	logger   ports.Logger

	timeframe     domain.Timeframe
	tick          time.Duration
	windowSeconds int
	settleDelay   time.Duration
	proximityPct  float64
	now           func() time.Time
}

func (c *consolidator) run(ctx context.Context) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	var lastWindow time.Time
	for {
		select {
		case <-ctx.Done():
			c.logger.Info(ctx, "Signal consolidator stopped")
			return
		case <-ticker.C:
		}

		boundary, ok := c.batchWindow(c.now())
		if !ok || boundary.Equal(lastWindow) {
			continue
		}
		lastWindow = boundary

		// Give the symbol workers a moment to finish writing for this
		// boundary before sweeping.
		if !sleepCtx(ctx, c.settleDelay) {
			return
		}
		c.dispatch(ctx, boundary)
	}
}

// batchWindow reports whether now falls inside the batch window immediately
// following a bar-close boundary, and which boundary that is. Boundaries are
// minutes divisible by the timeframe's bar length with the seconds hand still
// below the window threshold.
func (c *consolidator) batchWindow(now time.Time) (time.Time, bool) {
	barMinutes := c.timeframe.Minutes()
	if barMinutes <= 0 || barMinutes > 60 {
		return time.Time{}, false
	}
	if now.Minute()%barMinutes != 0 || now.Second() >= c.windowSeconds {
		return time.Time{}, false
	}
	return now.Truncate(time.Duration(barMinutes) * time.Minute), true
}

// dispatch sweeps unconsumed signals and, if any exist, sends exactly one
// consolidated notification. An empty sweep is a normal outcome and stays
// silent.
func (c *consolidator) dispatch(ctx context.Context, boundary time.Time) {
	swept := c.store.SweepUnconsumed()
	if len(swept) == 0 {
		c.logger.Debug(ctx, "No new signals in batch window", map[string]interface{}{"boundary": boundary})
		return
	}

	subject := fmt.Sprintf("Signal batch %s: %d new signal(s)", boundary.Format("15:04"), len(swept))
	body := c.buildMessage(ctx, swept)

	if err := c.notifier.Notify(ctx, subject, body); err != nil {
		c.logger.Error(ctx, err, "Failed to dispatch consolidated notification", map[string]interface{}{
			"boundary": boundary, "signals": len(swept),
		})
		return
	}
	c.logger.Info(ctx, "Consolidated notification dispatched", map[string]interface{}{
		"boundary": boundary, "signals": len(swept),
	})
}

// buildMessage renders the plain-text notification body: a detail block per
// new signal followed by a status line per monitored symbol.
func (c *consolidator) buildMessage(ctx context.Context, swept []domain.Signal) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "=== NEW SIGNALS (%d) ===\n", len(swept))
	for _, sig := range swept {
		direction := "BUY"
		if sig.Pattern == domain.PatternBear {
			direction = "SELL"
		}
		fmt.Fprintf(&sb, "\n%s %s @ %.5f (bar %s)\n", sig.Symbol, direction, sig.Price, sig.BarTime.Format("2006-01-02 15:04"))
		fmt.Fprintf(&sb, "  Stop loss:    %.5f\n", sig.StopLoss)
		fmt.Fprintf(&sb, "  Position:     %.2f lots\n", sig.PositionSize)
		fmt.Fprintf(&sb, "  Risk amount:  %.2f\n", sig.RiskAmount)
		fmt.Fprintf(&sb, "  Levels:       %s\n", strings.Join(sig.TouchedLevels, ", "))
	}

	sb.WriteString("\n=== SUMMARY TABLE ===\n")
	for _, symbol := range c.symbols {
		fmt.Fprintf(&sb, "\n%s: ", symbol)
		var touched []string
		if latest, ok := c.store.Latest(symbol); ok {
			fmt.Fprintf(&sb, "last %s at %s (%.5f)", latest.Pattern, latest.BarTime.Format("15:04"), latest.Price)
			touched = latest.TouchedLevels
		} else {
			sb.WriteString("no signal")
		}

		if near := c.nearbyLevels(ctx, symbol, touched); near != "" {
			fmt.Fprintf(&sb, "\n  near: %s", near)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// nearbyLevels lists the levels currently within the proximity threshold of
// the symbol's mid price, skipping levels the latest signal already touched.
// Quote failures degrade to an empty list rather than failing the whole
// message.
func (c *consolidator) nearbyLevels(ctx context.Context, symbol string, exclude []string) string {
	release, err := c.client.Acquire(ctx)
	if err != nil {
		return ""
	}
	defer release()

	quote, err := c.client.GetQuote(ctx, symbol)
	if err != nil || quote.Mid() <= 0 {
		return ""
	}
	mid := quote.Mid()

	excluded := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		excluded[name] = true
	}

	levelSet := c.cache.GetLevels(ctx, symbol)
	var names []string
	for name, lvl := range levelSet {
		if excluded[name] {
			continue
		}
		dist := mid - lvl.Value
		if dist < 0 {
			dist = -dist
		}
		if dist/mid < c.proximityPct {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ""
	}

	levelSet.SortNamesByPriority(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%.5f", name, levelSet[name].Value)
	}
	return strings.Join(parts, ", ")
}
