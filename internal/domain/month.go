package domain

import (
	"time"
)

// MonthWindow describes one calendar month of the calculation range.
// Windows are generated once per run and never mutated.
type MonthWindow struct {
	ID               time.Time // First instant of the month (UTC)
	Label            string    // Display label, e.g. "Jan 2024"
	TransactionStart time.Time // Transactions dated on/after this instant belong to the month
	PositionStart    time.Time // Prior month end; positions strictly after this belong to the month
	End              time.Time // Last instant of the month
}

// MonthStart truncates t to the first instant of its month in UTC
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthEnd returns the last instant of t's month in UTC
func MonthEnd(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, 1, 0).Add(-time.Nanosecond)
}

// NewMonthWindow builds the window for the month containing t
func NewMonthWindow(t time.Time) MonthWindow {
	start := MonthStart(t)
	return MonthWindow{
		ID:               start,
		Label:            start.Format("Jan 2006"),
		TransactionStart: start,
		PositionStart:    start.Add(-time.Nanosecond),
		End:              MonthEnd(start),
	}
}

// GenerateMonths returns the ascending list of month windows from the month
// containing first up to and including the month containing last.
// Returns nil if last is before first.
func GenerateMonths(first, last time.Time) []MonthWindow {
	start := MonthStart(first)
	stop := MonthStart(last)
	if stop.Before(start) {
		return nil
	}

	months := make([]MonthWindow, 0)
	for m := start; !m.After(stop); m = m.AddDate(0, 1, 0) {
		months = append(months, NewMonthWindow(m))
	}
	return months
}

// ContainsPosition reports whether a position dated t falls into the window.
// Position windows run from the prior month end (exclusive) to the month end (inclusive).
func (w MonthWindow) ContainsPosition(t time.Time) bool {
	return t.After(w.PositionStart) && !t.After(w.End)
}

// ContainsTransaction reports whether a transaction dated t falls into the window
func (w MonthWindow) ContainsTransaction(t time.Time) bool {
	return !t.Before(w.TransactionStart) && !t.After(w.End)
}

// FindMonth returns the index of the window containing t for the given record kind,
// or -1 if no window matches. months must be ascending.
func FindMonth(months []MonthWindow, kind RecordKind, t time.Time) int {
	lo, hi := 0, len(months)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		w := months[mid]
		var inside bool
		if kind == RecordKindPosition {
			inside = w.ContainsPosition(t)
		} else {
			inside = w.ContainsTransaction(t)
		}
		if inside {
			return mid
		}
		if t.After(w.End) {
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return -1
}
