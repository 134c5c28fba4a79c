package levels

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"levelwatch/internal/domain"
)

func TestSessionWindowValidate(t *testing.T) {
	assert.NoError(t, SessionWindow{StartHour: 20, EndHour: 2, ReadyHour: 3}.Validate())
	assert.Error(t, SessionWindow{StartHour: 24, EndHour: 2, ReadyHour: 3}.Validate())
	assert.Error(t, SessionWindow{StartHour: 20, EndHour: 5, ReadyHour: 3}.Validate(),
		"ready hour before end hour must be rejected")
}

func TestSessionWindowBounds(t *testing.T) {
	w := SessionWindow{StartHour: 20, EndHour: 2, ReadyHour: 3}
	day := time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)

	start, end := w.Bounds(day)
	assert.Equal(t, time.Date(2026, 3, 9, 20, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC), end)
}

func TestSessionWindowComplete(t *testing.T) {
	w := SessionWindow{StartHour: 20, EndHour: 2, ReadyHour: 3}
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	assert.False(t, w.Complete(day, time.Date(2026, 3, 10, 2, 59, 0, 0, time.UTC)))
	assert.True(t, w.Complete(day, time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)))
	assert.True(t, w.Complete(day, time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)))
}

func TestSessionLevels(t *testing.T) {
	validFor := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	bars := []domain.Bar{
		{High: 101, Low: 99},
		{High: 104, Low: 100},
		{High: 103, Low: 98},
	}

	set, err := sessionLevels(bars, validFor)
	require.NoError(t, err)

	assert.Equal(t, 104.0, set[NameAsianHigh].Value)
	assert.Equal(t, 98.0, set[NameAsianLow].Value)
	assert.Equal(t, 101.0, set[NameAsianMid].Value)
	assert.Equal(t, domain.CategoryAsianSession, set[NameAsianHigh].Category)
}

func TestSessionLevelsEmpty(t *testing.T) {
	_, err := sessionLevels(nil, time.Now())
	assert.Error(t, err)
}
