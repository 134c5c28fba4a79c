package levels

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"levelwatch/internal/domain"
)

func TestFibonacciPivots(t *testing.T) {
	// H=110, L=90, C=100 -> P=100, R=20
	pp := FibonacciPivots(110, 90, 100)

	assert.InDelta(t, 100.0, pp.P, 1e-9)
	assert.InDelta(t, 107.64, pp.R1, 1e-9) // P + 0.382*20
	assert.InDelta(t, 112.36, pp.R2, 1e-9) // P + 0.618*20
	assert.InDelta(t, 120.0, pp.R3, 1e-9)  // P + 20
	assert.InDelta(t, 92.36, pp.S1, 1e-9)
	assert.InDelta(t, 87.64, pp.S2, 1e-9)
	assert.InDelta(t, 80.0, pp.S3, 1e-9)
}

func TestFibonacciPivotsZeroRange(t *testing.T) {
	pp := FibonacciPivots(100, 100, 100)
	assert.Equal(t, 100.0, pp.P)
	assert.Equal(t, 100.0, pp.R1)
	assert.Equal(t, 100.0, pp.S3)
}

func TestDailyLevels(t *testing.T) {
	validFor := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	today := domain.Bar{Open: 105}
	yesterday := domain.Bar{Open: 98, High: 110, Low: 90, Close: 100}

	set := dailyLevels(today, yesterday, validFor)

	require.Len(t, set, 12) // 5 named + 7 pivots
	assert.Equal(t, 105.0, set[NameTodayOpen].Value)
	assert.Equal(t, 98.0, set[NameYesterdayOpen].Value)
	assert.Equal(t, 110.0, set[NameYesterdayHigh].Value)
	assert.Equal(t, 90.0, set[NameYesterdayLow].Value)
	assert.Equal(t, 100.0, set[NameYesterdayClose].Value)
	assert.InDelta(t, 100.0, set["daily_pivot_P"].Value, 1e-9)
	assert.InDelta(t, 107.64, set["daily_pivot_R1"].Value, 1e-9)

	assert.Equal(t, domain.CategoryDaily, set[NameTodayOpen].Category)
	assert.Equal(t, domain.CategoryDailyPivot, set["daily_pivot_S2"].Category)
	assert.Equal(t, validFor, set[NameTodayOpen].ValidFor)
}

func TestWeeklyLevels(t *testing.T) {
	validFor := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	prevWeek := domain.Bar{High: 120, Low: 80, Close: 100}

	set := weeklyLevels(prevWeek, validFor)

	require.Len(t, set, 9) // 2 named + 7 pivots
	assert.Equal(t, 120.0, set[NamePrevWeekHigh].Value)
	assert.Equal(t, 80.0, set[NamePrevWeekLow].Value)
	assert.InDelta(t, 100.0, set["weekly_pivot_P"].Value, 1e-9)
	assert.Equal(t, domain.CategoryWeekly, set[NamePrevWeekHigh].Category)
	assert.Equal(t, domain.CategoryWeeklyPivot, set["weekly_pivot_R3"].Category)
}
