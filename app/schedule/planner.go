package schedule

import (
	"fmt"
	"time"
)

// Plan computes one publish timestamp per item slot: slot i is published
// at start + i*intervalDays, evaluated in the given location so the
// sequence follows calendar days across DST transitions. The start date
// must be tomorrow or later relative to now; same-day scheduling is
// disallowed because the day's polling windows may already have elapsed.
// Planning is a pure computation; nothing is persisted or published here.
func Plan(count int, start time.Time, intervalDays int, loc *time.Location, now time.Time) ([]time.Time, error) {
	if count < 0 {
		return nil, fmt.Errorf("item count must be non-negative")
	}
	if intervalDays < 1 {
		return nil, fmt.Errorf("interval must be a positive number of days")
	}

	startLocal := start.In(loc)
	tomorrow := startOfDay(now.In(loc)).AddDate(0, 0, 1)
	if startOfDay(startLocal).Before(tomorrow) {
		return nil, fmt.Errorf("start date must be tomorrow or later")
	}

	dates := make([]time.Time, count)
	for i := range dates {
		dates[i] = startLocal.AddDate(0, 0, i*intervalDays)
	}

	return dates, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
