package coverage

import (
	"testing"
	"testing/quick"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/receipts/internal/model"
)

func d(s string) model.Date { return model.MustParseDate(s) }

func w(since, until string) model.TimeWindow {
	return model.TimeWindow{Since: d(since), Until: d(until)}
}

func TestMonthWindows(t *testing.T) {
	got := MonthWindows(d("2025-01-15"), d("2025-03-02"))
	assert.Equal(t, []model.TimeWindow{
		w("2025-01-15", "2025-02-01"),
		w("2025-02-01", "2025-03-01"),
		w("2025-03-01", "2025-03-02"),
	}, got)
}

func TestMonthWindowsAcrossYear(t *testing.T) {
	got := MonthWindows(d("2024-12-01"), d("2025-01-10"))
	assert.Equal(t, []model.TimeWindow{
		w("2024-12-01", "2025-01-01"),
		w("2025-01-01", "2025-01-10"),
	}, got)
}

func TestDayWindows(t *testing.T) {
	got := DayWindows(d("2025-01-01"), d("2025-01-04"))
	assert.Equal(t, []model.TimeWindow{
		w("2025-01-01", "2025-01-02"),
		w("2025-01-02", "2025-01-03"),
		w("2025-01-03", "2025-01-04"),
	}, got)
}

func TestWeekWindows(t *testing.T) {
	// 2025-01-15 is a Wednesday.
	got := WeekWindows(d("2025-01-15"), d("2025-01-30"), time.Monday)
	assert.Equal(t, []model.TimeWindow{
		w("2025-01-15", "2025-01-20"),
		w("2025-01-20", "2025-01-27"),
		w("2025-01-27", "2025-01-30"),
	}, got)

	// Starting on the week-start day yields a full first week.
	got = WeekWindows(d("2025-01-19"), d("2025-01-27"), time.Sunday)
	assert.Equal(t, []model.TimeWindow{
		w("2025-01-19", "2025-01-26"),
		w("2025-01-26", "2025-01-27"),
	}, got)
}

func TestEmptyAndInvertedRanges(t *testing.T) {
	same := d("2025-01-15")
	before := d("2025-01-10")

	assert.Empty(t, MonthWindows(same, same))
	assert.Empty(t, WeekWindows(same, same, time.Monday))
	assert.Empty(t, DayWindows(same, same))
	assert.Empty(t, MonthWindows(same, before))
	assert.Empty(t, WeekWindows(same, before, time.Monday))
	assert.Empty(t, DayWindows(same, before))
}

// checkCover verifies windows are contiguous, non-empty, ordered, and exactly
// reconstruct [since, until).
func checkCover(since, until model.Date, ws []model.TimeWindow) bool {
	if !since.Before(until) {
		return len(ws) == 0
	}
	if len(ws) == 0 || ws[0].Since != since || ws[len(ws)-1].Until != until {
		return false
	}
	for i, win := range ws {
		if !win.Since.Before(win.Until) {
			return false
		}
		if win.Contains(win.Until) || !win.Contains(win.Since) {
			return false
		}
		if i > 0 && ws[i-1].Until != win.Since {
			return false
		}
	}
	return true
}

func TestWindowsExactlyCoverRangeProperty(t *testing.T) {
	base := d("2024-01-01")
	prop := func(start uint16, span uint16, weekday uint8) bool {
		since := base.AddDays(int(start % 800))
		until := since.AddDays(int(span%400) - 20)
		ws := time.Weekday(weekday % 7)
		return checkCover(since, until, MonthWindows(since, until)) &&
			checkCover(since, until, WeekWindows(since, until, ws)) &&
			checkCover(since, until, DayWindows(since, until))
	}
	assert.NoError(t, quick.Check(prop, nil))
}

func TestUntilNeverContained(t *testing.T) {
	until := d("2025-03-02")
	for _, win := range MonthWindows(d("2025-01-15"), until) {
		assert.False(t, win.Contains(until))
	}
}
