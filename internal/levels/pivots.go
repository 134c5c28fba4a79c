package levels

import (
	"time"

	"levelwatch/internal/domain"
)

// Level names served by the cache. Downstream consumers rely on these keys
// staying stable within a release.
const (
	NameTodayOpen      = "today_open"
	NameYesterdayOpen  = "yesterday_open"
	NameYesterdayHigh  = "yesterday_high"
	NameYesterdayLow   = "yesterday_low"
	NameYesterdayClose = "yesterday_close"
	NamePrevWeekHigh   = "prev_week_high"
	NamePrevWeekLow    = "prev_week_low"
)

// PivotPoints holds Fibonacci pivot levels derived from one prior period.
type PivotPoints struct {
	P  float64
	R1 float64
	R2 float64
	R3 float64
	S1 float64
	S2 float64
	S3 float64
}

// FibonacciPivots calculates pivot levels from the previous period's
// high/low/close. Resistance and support offsets use the 38.2%, 61.8% and
// 100% ratios of the period range.
func FibonacciPivots(high, low, close float64) PivotPoints {
	p := (high + low + close) / 3
	r := high - low

	return PivotPoints{
		P:  p,
		R1: p + 0.382*r,
		R2: p + 0.618*r,
		R3: p + r,
		S1: p - 0.382*r,
		S2: p - 0.618*r,
		S3: p - r,
	}
}

// toLevelSet expands the pivots into named levels with the given prefix
// ("daily_pivot" or "weekly_pivot") and category.
func (pp PivotPoints) toLevelSet(prefix string, cat domain.LevelCategory, validFor time.Time) domain.LevelSet {
	values := map[string]float64{
		"P": pp.P, "R1": pp.R1, "R2": pp.R2, "R3": pp.R3,
		"S1": pp.S1, "S2": pp.S2, "S3": pp.S3,
	}

	out := make(domain.LevelSet, len(values))
	for suffix, v := range values {
		name := prefix + "_" + suffix
		out[name] = domain.Level{Name: name, Value: v, Category: cat, ValidFor: validFor}
	}
	return out
}

// dailyLevels builds the daily-derived category from the two most recent
// daily bars. Pivots come from the last completed day (yesterday).
func dailyLevels(today, yesterday domain.Bar, validFor time.Time) domain.LevelSet {
	set := domain.LevelSet{
		NameTodayOpen:      {Name: NameTodayOpen, Value: today.Open, Category: domain.CategoryDaily, ValidFor: validFor},
		NameYesterdayOpen:  {Name: NameYesterdayOpen, Value: yesterday.Open, Category: domain.CategoryDaily, ValidFor: validFor},
		NameYesterdayHigh:  {Name: NameYesterdayHigh, Value: yesterday.High, Category: domain.CategoryDaily, ValidFor: validFor},
		NameYesterdayLow:   {Name: NameYesterdayLow, Value: yesterday.Low, Category: domain.CategoryDaily, ValidFor: validFor},
		NameYesterdayClose: {Name: NameYesterdayClose, Value: yesterday.Close, Category: domain.CategoryDaily, ValidFor: validFor},
	}

	pivots := FibonacciPivots(yesterday.High, yesterday.Low, yesterday.Close)
	set.Merge(pivots.toLevelSet("daily_pivot", domain.CategoryDailyPivot, validFor))
	return set
}

// weeklyLevels builds the weekly-derived category from the most recent
// completed week.
func weeklyLevels(prevWeek domain.Bar, validFor time.Time) domain.LevelSet {
	set := domain.LevelSet{
		NamePrevWeekHigh: {Name: NamePrevWeekHigh, Value: prevWeek.High, Category: domain.CategoryWeekly, ValidFor: validFor},
		NamePrevWeekLow:  {Name: NamePrevWeekLow, Value: prevWeek.Low, Category: domain.CategoryWeekly, ValidFor: validFor},
	}

	pivots := FibonacciPivots(prevWeek.High, prevWeek.Low, prevWeek.Close)
	set.Merge(pivots.toLevelSet("weekly_pivot", domain.CategoryWeeklyPivot, validFor))
	return set
}
