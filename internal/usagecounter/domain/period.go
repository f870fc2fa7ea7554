package domain

import "time"

// Window is the closed [Start, End] interval a counter aggregates over.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(w.Start) && !t.After(w.End)
}

// WindowFor computes the period window containing now. Windows are UTC:
// daily is midnight-to-midnight, monthly first-to-last day, yearly
// Jan 1 to Dec 31. End is the last whole second of the window so the
// interval is closed on both sides.
func WindowFor(period Period, now time.Time) Window {
	now = now.UTC()
	var start time.Time
	switch period {
	case PeriodDaily:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return Window{Start: start, End: start.AddDate(0, 0, 1).Add(-time.Second)}
	case PeriodYearly:
		start = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return Window{Start: start, End: start.AddDate(1, 0, 0).Add(-time.Second)}
	default: // monthly
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return Window{Start: start, End: start.AddDate(0, 1, 0).Add(-time.Second)}
	}
}
