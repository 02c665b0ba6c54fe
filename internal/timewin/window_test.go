package timewin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWeekOf_MondayStart(t *testing.T) {
	// 2026-01-07 is a Wednesday.
	w := WeekOf(time.Date(2026, 1, 7, 15, 30, 0, 0, time.UTC), Monday)
	assert.Equal(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, 2026, w.End.Year())
	assert.Equal(t, 11, w.End.Day())
	assert.Equal(t, time.Sunday, w.End.Weekday())
}

func TestWeekOf_SundayStart(t *testing.T) {
	w := WeekOf(time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC), Sunday)
	assert.Equal(t, time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Saturday, w.End.Weekday())
}

func TestWeekOf_OnBoundary(t *testing.T) {
	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	w := WeekOf(monday, Monday)
	assert.Equal(t, monday, w.Start)
}

func TestMonthOf(t *testing.T) {
	w := MonthOf(time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, 28, w.End.Day())
	assert.Equal(t, 28, w.Days())
}

func TestMonthsBetween(t *testing.T) {
	a := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 6, MonthsBetween(a, time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 5, MonthsBetween(a, time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0, MonthsBetween(a, a.AddDate(0, 0, -10)), "never negative")
}

func TestRollingWindows(t *testing.T) {
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	cur := Rolling(now, 30)
	prev := PreviousRolling(now, 30)
	assert.Equal(t, cur.Start, prev.End)
	assert.Equal(t, now, cur.End)
	assert.True(t, prev.Start.Before(prev.End))
}
