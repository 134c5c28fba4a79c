package domain

import (
	"sort"
	"time"
)

// LevelCategory tags a price level with the timeframe family it was derived
// from. The category carries an explicit display priority so downstream
// formatting never has to infer it from the level name.
type LevelCategory int

const (
	CategoryWeekly LevelCategory = iota
	CategoryWeeklyPivot
	CategoryDaily
	CategoryDailyPivot
	CategoryAsianSession
)

// String returns the category identifier used in logs and API payloads.
func (c LevelCategory) String() string {
	switch c {
	case CategoryWeekly:
		return "weekly"
	case CategoryWeeklyPivot:
		return "weekly_pivot"
	case CategoryDaily:
		return "daily"
	case CategoryDailyPivot:
		return "daily_pivot"
	case CategoryAsianSession:
		return "asian_session"
	default:
		return "unknown"
	}
}

// Priority orders categories for display, lower sorts first. Weekly-derived
// levels outrank daily and session levels.
func (c LevelCategory) Priority() int {
	return int(c)
}

// Level is one named reference price, valid for the date of the refresh cycle
// that produced it.
type Level struct {
	Name     string
	Value    float64
	Category LevelCategory
	ValidFor time.Time // date of the refresh cycle that produced the level
}

// LevelSet maps level names to levels. Absence of a key means the category
// that would produce it is currently unavailable; a LevelSet never contains
// placeholder values.
type LevelSet map[string]Level

// Merge copies every level of other into the set, replacing same-named keys.
func (ls LevelSet) Merge(other LevelSet) {
	for name, lvl := range other {
		ls[name] = lvl
	}
}

// Clone returns an independent copy of the set.
func (ls LevelSet) Clone() LevelSet {
	out := make(LevelSet, len(ls))
	for name, lvl := range ls {
		out[name] = lvl
	}
	return out
}

// SortNamesByPriority orders level names by category priority, then
// alphabetically. Names missing from the set keep their relative order at the
// end.
func (ls LevelSet) SortNamesByPriority(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		li, oki := ls[names[i]]
		lj, okj := ls[names[j]]
		if oki && okj {
			if li.Category.Priority() != lj.Category.Priority() {
				return li.Category.Priority() < lj.Category.Priority()
			}
			return names[i] < names[j]
		}
		return oki && !okj
	})
}
