// Package timewin provides the canonical week, month and rolling-window
// boundary math used by the analysis engines and detectors.
package timewin

import "time"

// WeekStart identifies which weekday begins a week.
type WeekStart int

const (
	// Monday-start is the default week boundary for weekly metrics.
	Monday WeekStart = iota
	// Sunday-start is retained for budget-period math.
	Sunday
)

// Window is a half-open-ish inclusive time span [Start, End].
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Days returns the whole-day length of the window, minimum 1.
func (w Window) Days() int {
	d := int(w.End.Sub(w.Start).Hours()/24) + 1
	if d < 1 {
		return 1
	}
	return d
}

// StartOfDay truncates t to midnight in its location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last representable instant of t's day.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

// WeekOf returns the week containing t. Monday-start weeks run Monday
// 00:00 through Sunday 23:59:59.999; Sunday-start shift one day back.
func WeekOf(t time.Time, start WeekStart) Window {
	wd := int(t.Weekday()) // Sunday = 0
	var back int
	if start == Monday {
		back = (wd + 6) % 7
	} else {
		back = wd
	}
	s := StartOfDay(t.AddDate(0, 0, -back))
	return Window{Start: s, End: EndOfDay(s.AddDate(0, 0, 6))}
}

// MonthOf returns the calendar month containing t.
func MonthOf(t time.Time) Window {
	s := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return Window{Start: s, End: EndOfDay(s.AddDate(0, 1, -1))}
}

// YearOf returns the calendar year containing t.
func YearOf(t time.Time) Window {
	s := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	return Window{Start: s, End: EndOfDay(time.Date(t.Year(), time.December, 31, 0, 0, 0, 0, t.Location()))}
}

// Rolling returns the window of the last d days ending at now.
func Rolling(now time.Time, days int) Window {
	return Window{Start: now.AddDate(0, 0, -days), End: now}
}

// PreviousRolling returns the window of the same length immediately
// preceding Rolling(now, days), used for delta comparisons.
func PreviousRolling(now time.Time, days int) Window {
	return Window{Start: now.AddDate(0, 0, -2*days), End: now.AddDate(0, 0, -days)}
}

// MonthsBetween returns the number of whole months from a to b, never
// negative.
func MonthsBetween(a, b time.Time) int {
	if b.Before(a) {
		return 0
	}
	months := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	if b.Day() < a.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// MonthKey formats t as a yyyy-mm bucket key.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// PreviousWeek returns the week immediately before the week containing t.
func PreviousWeek(t time.Time, start WeekStart) Window {
	return WeekOf(t.AddDate(0, 0, -7), start)
}
