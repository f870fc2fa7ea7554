package domain

import (
	"testing"
	"time"
)

func TestWindowForDaily(t *testing.T) {
	now := time.Date(2025, time.March, 15, 13, 45, 12, 0, time.UTC)
	w := WindowFor(PeriodDaily, now)

	if got := w.Start; !got.Equal(time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected daily start: %v", got)
	}
	if got := w.End; !got.Equal(time.Date(2025, time.March, 15, 23, 59, 59, 0, time.UTC)) {
		t.Fatalf("unexpected daily end: %v", got)
	}
}

func TestWindowForMonthBoundary(t *testing.T) {
	lastInstant := time.Date(2025, time.January, 31, 23, 59, 59, 0, time.UTC)
	nextInstant := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)

	january := WindowFor(PeriodMonthly, lastInstant)
	february := WindowFor(PeriodMonthly, nextInstant)

	if january.Start.Equal(february.Start) {
		t.Fatal("expected Jan 31 23:59:59 and Feb 1 00:00:00 in different monthly windows")
	}
	if !january.Contains(lastInstant) {
		t.Fatal("expected closed interval to contain the final second")
	}
	if january.Contains(nextInstant) {
		t.Fatal("january window must not contain Feb 1")
	}
}

func TestWindowForYearBoundary(t *testing.T) {
	newYearsEve := time.Date(2024, time.December, 31, 23, 59, 59, 0, time.UTC)
	newYear := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	y2024 := WindowFor(PeriodYearly, newYearsEve)
	y2025 := WindowFor(PeriodYearly, newYear)

	if y2024.Start.Year() != 2024 || y2025.Start.Year() != 2025 {
		t.Fatalf("expected yearly windows 2024/2025, got %d/%d", y2024.Start.Year(), y2025.Start.Year())
	}

	// Both instants share a daily boundary pattern: Dec 31 belongs to its
	// own daily window, Jan 1 to the next one.
	d1 := WindowFor(PeriodDaily, newYearsEve)
	d2 := WindowFor(PeriodDaily, newYear)
	if d1.Start.Equal(d2.Start) {
		t.Fatal("expected different daily windows across midnight")
	}
}

func TestWindowForLeapFebruary(t *testing.T) {
	now := time.Date(2024, time.February, 10, 8, 0, 0, 0, time.UTC)
	w := WindowFor(PeriodMonthly, now)

	if got := w.End; !got.Equal(time.Date(2024, time.February, 29, 23, 59, 59, 0, time.UTC)) {
		t.Fatalf("expected leap February to end on the 29th, got %v", got)
	}
}

func TestWindowForNormalizesToUTC(t *testing.T) {
	zone := time.FixedZone("UTC+7", 7*3600)
	local := time.Date(2025, time.June, 1, 3, 0, 0, 0, zone) // May 31 20:00 UTC
	w := WindowFor(PeriodMonthly, local)

	if w.Start.Month() != time.May {
		t.Fatalf("expected window computed from UTC instant (May), got %v", w.Start.Month())
	}
}
