package patterns

import (
	"context"
	"fmt"

	"levelwatch/internal/domain"
	"levelwatch/internal/ports"
)

const (
	defaultLookback     = 2
	defaultProximityPct = 0.10
	defaultBodyRatio    = 0.5
)

// Config holds the detector's threshold parameters.
type Config struct {
	// Lookback is how many candles before the current one are scanned for
	// level touches (default 2, i.e. candles i, i-1, i-2).
	Lookback int
	// ProximityPct is the near-miss threshold: a level outside a candle's
	// range still counts as touched when its distance to the nearer range
	// edge is within this fraction of the candle range.
	ProximityPct float64
	// BodyRatio is the minimum body-to-range ratio for an IFC candle.
	BodyRatio float64
}

// Detector classifies the most recent closed candle and collects the price
// levels its neighborhood touched. Detection is a pure function of the bar
// window and level set; the Detector only carries configuration.
type Detector struct {
	cfg    Config
	logger ports.Logger
}

// New creates a pattern detector.
func New(cfg Config, logger ports.Logger) (*Detector, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for the pattern detector")
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = defaultLookback
	}
	if cfg.ProximityPct <= 0 {
		cfg.ProximityPct = defaultProximityPct
	}
	if cfg.BodyRatio <= 0 {
		cfg.BodyRatio = defaultBodyRatio
	}
	if cfg.BodyRatio > 1 {
		return nil, fmt.Errorf("body ratio must be within (0, 1], got %v", cfg.BodyRatio)
	}
	return &Detector{cfg: cfg, logger: logger}, nil
}

// Detect classifies the last bar of the window and returns the touched level
// names ordered weekly-first. The window must end at the bar to classify and
// contain at least three bars; shorter windows defensively classify as none.
// An empty touched list with a non-none pattern means the pattern fired away
// from any significant level and must not produce a signal.
func (d *Detector) Detect(ctx context.Context, bars []domain.Bar, levels domain.LevelSet) (domain.PatternType, []string) {
	if len(bars) < 3 {
		d.logger.Debug(ctx, "Insufficient bars for pattern detection", map[string]interface{}{"bars": len(bars)})
		return domain.PatternNone, nil
	}

	cur := bars[len(bars)-1]
	prev := bars[len(bars)-2]
	prev2 := bars[len(bars)-3]

	pattern := classify(cur, prev, prev2, d.cfg.BodyRatio)
	if pattern == domain.PatternNone {
		return domain.PatternNone, nil
	}

	touched := d.touchedLevels(bars, levels, pattern)
	levels.SortNamesByPriority(touched)
	return pattern, touched
}

// classify applies the engulfing checks first, then IFC. If a candle somehow
// satisfies both directions, bull wins.
func classify(cur, prev, prev2 domain.Bar, bodyRatio float64) domain.PatternType {
	bullEngulfing := cur.Low < prev.Low && cur.High > prev.High && cur.Bullish() && cur.Close > prev.Close
	bearEngulfing := cur.Low < prev.Low && cur.High > prev.High && !cur.Bullish() && cur.Close < prev.Close

	largeBody := cur.Range() > 0 && cur.Body()/cur.Range() >= bodyRatio
	bullIFC := cur.Close > prev.High && cur.Close > prev2.High && largeBody && cur.Bullish()
	bearIFC := cur.Close < prev.Low && cur.Close < prev2.Low && largeBody && cur.Close < cur.Open

	switch {
	case bullEngulfing || bullIFC:
		return domain.PatternBull
	case bearEngulfing || bearIFC:
		return domain.PatternBear
	default:
		return domain.PatternNone
	}
}

// touchedLevels scans the current candle and up to Lookback prior candles for
// each level. A candle touches a level when the level lies inside its
// [low, high] range, or when it lies within ProximityPct of the range edge —
// the near-miss case additionally requires, on the current candle only, that
// the close sits on the side of the level the pattern direction implies.
func (d *Detector) touchedLevels(bars []domain.Bar, levels domain.LevelSet, pattern domain.PatternType) []string {
	first := len(bars) - 1 - d.cfg.Lookback
	if first < 0 {
		first = 0
	}
	curIdx := len(bars) - 1

	var touched []string
	for name, lvl := range levels {
		for i := curIdx; i >= first; i-- {
			if d.touches(bars[i], lvl.Value, pattern, i == curIdx) {
				touched = append(touched, name)
				break
			}
		}
	}
	return touched
}

func (d *Detector) touches(bar domain.Bar, level float64, pattern domain.PatternType, isCurrent bool) bool {
	// Exact touch: closed interval, so a level equal to the low or high counts.
	if level >= bar.Low && level <= bar.High {
		return true
	}

	barRange := bar.Range()
	if barRange <= 0 {
		return false
	}

	var dist float64
	if level > bar.High {
		dist = level - bar.High
	} else {
		dist = bar.Low - level
	}
	if dist > d.cfg.ProximityPct*barRange {
		return false
	}

	// Near-miss on the current candle must not contradict the close.
	if isCurrent {
		if pattern == domain.PatternBull {
			return bar.Close > level
		}
		return bar.Close < level
	}
	return true
}
