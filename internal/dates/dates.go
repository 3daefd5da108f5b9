// Package dates provides local calendar-day helpers.
//
// A calendar day is represented as a time.Time at midnight UTC carrying
// the civil year, month and day. This is the value pgx reads from and
// writes to DATE columns, so days compare with Equal and never shift
// across time zones.
package dates

import (
	"fmt"
	"time"
)

// Layout is the canonical textual form of a day.
const Layout = "2006-01-02"

// Day returns the civil date of t, in t's own location.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Today returns the civil date of now in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	return Day(now.In(loc))
}

// Format renders a day as YYYY-MM-DD.
func Format(day time.Time) string {
	return day.Format(Layout)
}

// Parse parses a YYYY-MM-DD day.
func Parse(s string) (time.Time, error) {
	d, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return d, nil
}

// ParseMonth parses a YYYY-MM month and returns its first day.
func ParseMonth(s string) (time.Time, error) {
	d, err := time.Parse("2006-01", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q (want YYYY-MM): %w", s, err)
	}
	return d, nil
}

// AddDays shifts a day by n calendar days.
func AddDays(day time.Time, n int) time.Time {
	return day.AddDate(0, 0, n)
}

// Range returns every day from start to end inclusive.
// It returns nil when end is before start.
func Range(start, end time.Time) []time.Time {
	start, end = Day(start), Day(end)
	if end.Before(start) {
		return nil
	}
	days := make([]time.Time, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// MonthRange returns the first day of day's month and the first day of
// the following month.
func MonthRange(day time.Time) (time.Time, time.Time) {
	first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first, first.AddDate(0, 1, 0)
}

// MonthToDate returns the first day of the current month and today, both inclusive.
func MonthToDate(now time.Time, loc *time.Location) (time.Time, time.Time) {
	today := Today(now, loc)
	first, _ := MonthRange(today)
	return first, today
}

// Clamp limits day to the inclusive interval [lo, hi].
func Clamp(day, lo, hi time.Time) time.Time {
	if day.Before(lo) {
		return lo
	}
	if day.After(hi) {
		return hi
	}
	return day
}

// At returns the instant at hour:minute on the given civil day in loc.
func At(day time.Time, hour, minute int, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
}
