// Package workdays does calendar-date arithmetic for leave ranges.
//
// Dates are carried as time.Time values at UTC midnight so they compare and
// store without a zone offset leaking in.
package workdays

import (
	"fmt"
	"strings"
	"time"
)

// Layout is the wire format for calendar dates.
const Layout = "2006-01-02"

// Date truncates t to its calendar date as seen in loc and returns it as UTC midnight.
func Date(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar date in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	return Date(now, loc)
}

// Parse reads a YYYY-MM-DD date. An empty string yields the zero time and no error.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want %s", s, Layout)
	}
	return t, nil
}

// IsWeekend reports whether d falls on a Saturday or Sunday.
func IsWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// Count returns the number of business days in [start, end], both inclusive.
// Saturdays and Sundays are excluded; public holidays are not considered.
// It returns 0 when end is before start.
func Count(start, end time.Time) int {
	start = Date(start, time.UTC)
	end = Date(end, time.UTC)
	if end.Before(start) {
		return 0
	}

	total := int(end.Sub(start).Hours()/24) + 1
	weeks, rest := total/7, total%7
	days := weeks * 5

	// walk the partial week
	wd := int(start.Weekday())
	for i := 0; i < rest; i++ {
		switch time.Weekday((wd + i) % 7) {
		case time.Saturday, time.Sunday:
		default:
			days++
		}
	}
	return days
}
