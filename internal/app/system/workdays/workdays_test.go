package workdays

import (
	"testing"
	"time"
)

func day(s string) time.Time {
	t, err := time.Parse(Layout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestCount(t *testing.T) {
	// 2025-03-03 is a Monday.
	tests := []struct {
		name       string
		start, end string
		want       int
	}{
		{"single weekday", "2025-03-03", "2025-03-03", 1},
		{"monday to friday", "2025-03-03", "2025-03-07", 5},
		{"monday to monday after weekend", "2025-03-03", "2025-03-10", 6},
		{"saturday only", "2025-03-08", "2025-03-08", 0},
		{"weekend", "2025-03-08", "2025-03-09", 0},
		{"friday to monday", "2025-03-07", "2025-03-10", 2},
		{"two full weeks", "2025-03-03", "2025-03-16", 10},
		{"sunday start", "2025-03-02", "2025-03-04", 2},
		{"end before start", "2025-03-07", "2025-03-03", 0},
		{"across month end", "2025-02-27", "2025-03-04", 4},
		{"leap day", "2024-02-28", "2024-03-01", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Count(day(tt.start), day(tt.end))
			if got != tt.want {
				t.Errorf("Count(%s, %s) = %d, want %d", tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestCount_NoWeekendMatchesCalendarDays(t *testing.T) {
	start := day("2025-03-03")
	for n := 0; n < 5; n++ {
		end := start.AddDate(0, 0, n)
		if got := Count(start, end); got != n+1 {
			t.Errorf("Count over %d calendar days = %d, want %d", n+1, got, n+1)
		}
	}
}

func TestCount_MatchesDayByDayWalk(t *testing.T) {
	start := day("2025-01-01")
	for span := 0; span < 60; span++ {
		end := start.AddDate(0, 0, span)
		want := 0
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			if !IsWeekend(d) {
				want++
			}
		}
		if got := Count(start, end); got != want {
			t.Fatalf("span %d: Count = %d, want %d", span, got, want)
		}
	}
}

func TestDate_UsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Skipf("tzdata not available: %v", err)
	}
	// 03:00 UTC on March 4 is still March 3 in Chicago.
	instant := time.Date(2025, 3, 4, 3, 0, 0, 0, time.UTC)
	got := Date(instant, loc)
	if !got.Equal(day("2025-03-03")) {
		t.Errorf("Date = %v, want 2025-03-03", got)
	}
	if got.Location() != time.UTC {
		t.Errorf("Date location = %v, want UTC", got.Location())
	}
}

func TestParse(t *testing.T) {
	got, err := Parse(" 2025-03-03 ")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !got.Equal(day("2025-03-03")) {
		t.Errorf("Parse = %v", got)
	}

	if z, err := Parse(""); err != nil || !z.IsZero() {
		t.Errorf("Parse(\"\") = %v, %v; want zero, nil", z, err)
	}

	if _, err := Parse("03/03/2025"); err == nil {
		t.Error("expected error for wrong layout")
	}
}
