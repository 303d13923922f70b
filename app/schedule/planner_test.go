package schedule

import (
	"testing"
	"time"
)

func TestPlanExactDateArithmetic(t *testing.T) {
	loc := time.UTC
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, loc)
	start := time.Date(2025, 3, 11, 9, 0, 0, 0, loc)

	dates, err := Plan(3, start, 7, loc, now)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expected := []time.Time{
		start,
		start.AddDate(0, 0, 7),
		start.AddDate(0, 0, 14),
	}

	for i, date := range dates {
		if !date.Equal(expected[i]) {
			t.Errorf("Date %d: expected %v, got %v", i, expected[i], date)
		}
	}
}

func TestPlanRejectsSameDayStart(t *testing.T) {
	loc := time.UTC
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, loc)
	start := time.Date(2025, 3, 10, 23, 0, 0, 0, loc)

	_, err := Plan(1, start, 1, loc, now)
	if err == nil {
		t.Error("Expected error for same-day start date")
	}
}

func TestPlanRejectsPastStart(t *testing.T) {
	loc := time.UTC
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, loc)
	start := time.Date(2025, 3, 9, 9, 0, 0, 0, loc)

	_, err := Plan(1, start, 1, loc, now)
	if err == nil {
		t.Error("Expected error for past start date")
	}
}

func TestPlanRejectsNonPositiveInterval(t *testing.T) {
	loc := time.UTC
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, loc)
	start := time.Date(2025, 3, 11, 9, 0, 0, 0, loc)

	for _, interval := range []int{0, -1} {
		if _, err := Plan(1, start, interval, loc, now); err == nil {
			t.Errorf("Expected error for interval %d", interval)
		}
	}
}

func TestPlanTomorrowIsValid(t *testing.T) {
	loc := time.UTC
	now := time.Date(2025, 3, 10, 23, 59, 0, 0, loc)
	start := time.Date(2025, 3, 11, 0, 0, 0, 0, loc)

	dates, err := Plan(1, start, 1, loc, now)
	if err != nil {
		t.Fatalf("Expected tomorrow to be a valid start, got: %v", err)
	}
	if !dates[0].Equal(start) {
		t.Errorf("Expected %v, got %v", start, dates[0])
	}
}

func TestPlanEvaluatesInLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("Timezone data unavailable: %v", err)
	}

	// 2025-03-10 23:00 UTC is already 2025-03-10 19:00 in New York, so a
	// start on the 11th (New York) is tomorrow there.
	now := time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC)
	start := time.Date(2025, 3, 11, 9, 0, 0, 0, loc)

	dates, err := Plan(2, start, 1, loc, now)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if dates[1].Hour() != 9 {
		t.Errorf("Expected calendar-day stepping to keep local hour 9, got %d", dates[1].Hour())
	}
}

func TestPlanZeroItems(t *testing.T) {
	loc := time.UTC
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, loc)
	start := time.Date(2025, 3, 11, 9, 0, 0, 0, loc)

	dates, err := Plan(0, start, 1, loc, now)
	if err != nil {
		t.Fatalf("Expected no error for zero items, got: %v", err)
	}
	if len(dates) != 0 {
		t.Errorf("Expected empty plan, got %d dates", len(dates))
	}
}
