// Package coverage splits reporting windows into query-sized sub-windows and
// rolls per-query fetch counts up into a tri-state completeness verdict.
package coverage

import (
	"time"

	"github.com/roach88/receipts/internal/model"
)

// MonthWindows splits [since, until) at calendar-month boundaries.
// The first and last windows are clipped to the requested range.
// since >= until yields nil.
//
// Example: MonthWindows(2025-01-15, 2025-03-02) →
// [01-15, 02-01), [02-01, 03-01), [03-01, 03-02)
func MonthWindows(since, until model.Date) []model.TimeWindow {
	return split(since, until, func(d model.Date) model.Date {
		return model.NewDate(d.Year, d.Month+1, 1)
	})
}

// WeekWindows splits [since, until) at boundaries falling on weekStart.
func WeekWindows(since, until model.Date, weekStart time.Weekday) []model.TimeWindow {
	return split(since, until, func(d model.Date) model.Date {
		ahead := (int(weekStart) - int(d.Weekday()) + 7) % 7
		if ahead == 0 {
			ahead = 7
		}
		return d.AddDays(ahead)
	})
}

// DayWindows splits [since, until) into one-day windows.
func DayWindows(since, until model.Date) []model.TimeWindow {
	return split(since, until, func(d model.Date) model.Date {
		return d.AddDays(1)
	})
}

// split walks from since to until, cutting at each boundary returned by next.
// next(d) must return a date strictly after d.
func split(since, until model.Date, next func(model.Date) model.Date) []model.TimeWindow {
	if !since.Before(until) {
		return nil
	}
	var out []model.TimeWindow
	for cur := since; cur.Before(until); {
		end := next(cur)
		if end.After(until) {
			end = until
		}
		out = append(out, model.TimeWindow{Since: cur, Until: end})
		cur = end
	}
	return out
}
