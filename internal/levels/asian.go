package levels

import (
	"fmt"
	"time"

	"levelwatch/internal/domain"
)

// Asian-session level names.
const (
	NameAsianHigh = "asian_high"
	NameAsianLow  = "asian_low"
	NameAsianMid  = "asian_mid"
)

// SessionWindow describes the Asian-session wall-clock window. The session
// spans two calendar days: it starts at StartHour on the evening before the
// target date and ends at EndHour on the target date. ReadyHour is the
// earliest hour of the target date at which the session counts as complete;
// before it the session category is withheld rather than served stale.
type SessionWindow struct {
	StartHour int // e.g. 20 for 20:00 the previous day
	EndHour   int // e.g. 2 for 02:00 the target day
	ReadyHour int // e.g. 3 for 03:00
}

// Validate checks the window hours are usable.
func (w SessionWindow) Validate() error {
	if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 0 || w.EndHour > 23 || w.ReadyHour < 0 || w.ReadyHour > 23 {
		return fmt.Errorf("session hours must be within 0-23, got start=%d end=%d ready=%d", w.StartHour, w.EndHour, w.ReadyHour)
	}
	if w.ReadyHour < w.EndHour {
		return fmt.Errorf("session ready hour %d must not precede end hour %d", w.ReadyHour, w.EndHour)
	}
	return nil
}

// Bounds returns the [start, end) interval of the session for the given
// target date.
func (w SessionWindow) Bounds(day time.Time) (time.Time, time.Time) {
	y, m, d := day.Date()
	end := time.Date(y, m, d, w.EndHour, 0, 0, 0, day.Location())
	start := end.AddDate(0, 0, -1)
	start = time.Date(start.Year(), start.Month(), start.Day(), w.StartHour, 0, 0, 0, day.Location())
	return start, end
}

// Complete reports whether the session for the given date has finished by
// now, i.e. the ready threshold has passed.
func (w SessionWindow) Complete(day, now time.Time) bool {
	y, m, d := day.Date()
	ready := time.Date(y, m, d, w.ReadyHour, 0, 0, 0, day.Location())
	return !now.Before(ready)
}

// sessionLevels aggregates hourly bars of one Asian session into its
// high/low/mid levels.
func sessionLevels(bars []domain.Bar, validFor time.Time) (domain.LevelSet, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars in session window")
	}

	high := bars[0].High
	low := bars[0].Low
	for _, b := range bars[1:] {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	mid := (high + low) / 2

	return domain.LevelSet{
		NameAsianHigh: {Name: NameAsianHigh, Value: high, Category: domain.CategoryAsianSession, ValidFor: validFor},
		NameAsianLow:  {Name: NameAsianLow, Value: low, Category: domain.CategoryAsianSession, ValidFor: validFor},
		NameAsianMid:  {Name: NameAsianMid, Value: mid, Category: domain.CategoryAsianSession, ValidFor: validFor},
	}, nil
}
