// Package planner splits a requested date range into provider-sized fetch
// windows. Providers cap ranged queries (31 days for the announcement search)
// and some only serve per-day pages, so the pipeline plans windows up front
// and walks them sequentially.
package planner

import (
	"time"

	"github.com/rotisserie/eris"
)

// DateRange is an inclusive [Start, End] window, dates only.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of calendar days the window covers, inclusive.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// SplitRange breaks [start, end] into consecutive windows of at most
// limitDays each. With limitDays of 1 every day gets its own window, which
// is how per-day listing providers are driven. Times are truncated to dates.
func SplitRange(start, end time.Time, limitDays int) ([]DateRange, error) {
	if limitDays < 1 {
		return nil, eris.Errorf("planner: window limit must be at least 1 day, got %d", limitDays)
	}

	start = truncate(start)
	end = truncate(end)
	if end.Before(start) {
		return nil, eris.Errorf("planner: end date %s precedes start date %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	var windows []DateRange
	for cur := start; !cur.After(end); {
		winEnd := cur.AddDate(0, 0, limitDays-1)
		if winEnd.After(end) {
			winEnd = end
		}
		windows = append(windows, DateRange{Start: cur, End: winEnd})
		cur = winEnd.AddDate(0, 0, 1)
	}
	return windows, nil
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
