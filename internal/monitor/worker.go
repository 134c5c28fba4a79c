package monitor

import (
	"context"
	"time"

	"github.com/jpillora/backoff"

	"levelwatch/internal/domain"
	"levelwatch/internal/levels"
	"levelwatch/internal/patterns"
	"levelwatch/internal/ports"
	"levelwatch/internal/risk"
)

// symbolWorker is the per-symbol polling loop. Each worker owns its own
// retry/backoff state and last-seen bar timestamp; the only shared resource
// it touches is the signal store. Errors are contained: a failing symbol
// backs off and retries without affecting any other worker.
type symbolWorker struct {
	symbol      string
	riskPct     float64
	accountSize float64

	client   ports.MarketDataClient
	cache    *levels.Cache
	detector *patterns.Detector
	sizer    *risk.Sizer
	store    *Store
	logger   ports.Logger

	pollInterval time.Duration
	errorBackoff *backoff.Backoff
	timeframe    domain.Timeframe
	barCount     int
	stopRangeMul float64
	now          func() time.Time
}

// run drives the worker state machine: initialize, then poll for new bar
// closes until the context is canceled. A fetch failure during
// initialization retries with backoff rather than terminating the worker.
func (w *symbolWorker) run(ctx context.Context) {
	w.logger.Info(ctx, "Symbol monitor started", map[string]interface{}{
		"symbol": w.symbol, "timeframe": string(w.timeframe),
	})

	var current []domain.Bar
	var lastSeen time.Time

	for {
		bars, err := w.fetchBars(ctx)
		if err == nil && len(bars) > 0 {
			current = bars
			lastSeen = bars[len(bars)-1].OpenTime
			w.errorBackoff.Reset()
			break
		}
		if err != nil {
			w.logger.Warn(ctx, "Initial bar fetch failed, retrying", map[string]interface{}{
				"symbol": w.symbol, "error": err.Error(),
			})
		}
		if !sleepCtx(ctx, w.errorBackoff.Duration()) {
			return
		}
	}

	// Warm the level cache so the first bar close does not pay the full
	// recompute cost inside its analysis window.
	w.cache.GetLevels(ctx, w.symbol)

	for {
		if !sleepCtx(ctx, w.pollInterval) {
			w.logger.Info(ctx, "Symbol monitor stopped", map[string]interface{}{"symbol": w.symbol})
			return
		}

		fresh, err := w.fetchBars(ctx)
		if err != nil {
			w.logger.Warn(ctx, "Bar fetch failed, backing off", map[string]interface{}{
				"symbol": w.symbol, "error": err.Error(),
			})
			if !sleepCtx(ctx, w.errorBackoff.Duration()) {
				return
			}
			continue
		}
		w.errorBackoff.Reset()
		if len(fresh) == 0 {
			continue
		}

		newest := fresh[len(fresh)-1]
		if newest.OpenTime.After(lastSeen) {
			// The previously newest bar has closed; analyze the series as it
			// stood before this poll.
			w.analyzeClosedBar(ctx, current)
			lastSeen = newest.OpenTime
		}
		current = fresh
	}
}

// analyzeClosedBar classifies the just-closed bar, and on a qualifying
// pattern at a significant level sizes the trade and records a Signal.
func (w *symbolWorker) analyzeClosedBar(ctx context.Context, bars []domain.Bar) {
	if len(bars) < 3 {
		w.logger.Debug(ctx, "Not enough history to analyze closed bar", map[string]interface{}{
			"symbol": w.symbol, "bars": len(bars),
		})
		return
	}

	closed := bars[len(bars)-1]
	levelSet := w.cache.GetLevels(ctx, w.symbol)

	pattern, touched := w.detector.Detect(ctx, bars, levelSet)
	w.logger.Info(ctx, "Bar closed", map[string]interface{}{
		"symbol":  w.symbol,
		"barTime": closed.OpenTime,
		"pattern": string(pattern),
		"touched": touched,
	})

	if pattern == domain.PatternNone || len(touched) == 0 {
		return
	}

	prev := bars[len(bars)-2]
	trueRange := maxF(closed.High, prev.High) - minF(closed.Low, prev.Low)
	stopDistance := w.stopRangeMul * trueRange
	if stopDistance <= 0 {
		// Degenerate two-bar range; fall back to a fixed fraction of price.
		stopDistance = closed.Close * 0.01
	}

	lots, stopPoints, riskAmount := w.sizer.Size(ctx, w.symbol, stopDistance, w.riskPct, w.accountSize)
	if lots <= 0 {
		w.logger.Warn(ctx, "Position sizing failed, signal attempt aborted", map[string]interface{}{
			"symbol": w.symbol, "barTime": closed.OpenTime,
		})
		return
	}

	stopLoss := closed.Close - stopDistance
	if pattern == domain.PatternBear {
		stopLoss = closed.Close + stopDistance
	}

	sig := domain.Signal{
		Symbol:        w.symbol,
		Pattern:       pattern,
		BarTime:       closed.OpenTime,
		DetectedAt:    w.now(),
		TouchedLevels: touched,
		Price:         closed.Close,
		StopLoss:      stopLoss,
		PositionSize:  lots,
		RiskAmount:    riskAmount,
	}

	if !w.store.Append(sig) {
		w.logger.Debug(ctx, "Duplicate signal for bar, not stored", map[string]interface{}{
			"symbol": w.symbol, "barTime": closed.OpenTime,
		})
		return
	}

	w.logger.Info(ctx, "Signal recorded", map[string]interface{}{
		"symbol":     w.symbol,
		"pattern":    string(pattern),
		"price":      closed.Close,
		"stopLoss":   stopLoss,
		"stopPoints": stopPoints,
		"lots":       lots,
		"riskAmount": riskAmount,
	})
}

func (w *symbolWorker) fetchBars(ctx context.Context) ([]domain.Bar, error) {
	release, err := w.client.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return w.client.GetBars(ctx, w.symbol, w.timeframe, w.barCount)
}

// sleepCtx sleeps for d, returning false if the context was canceled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
