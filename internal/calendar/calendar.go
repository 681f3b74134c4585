// Package calendar provides the date arithmetic used by recurrence expansion
// and archival: weekday tests, month week blocks, and day/time composition.
package calendar

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and document layout for calendar dates.
const DateLayout = "2006-01-02"

// Clock is a time of day.
type Clock struct {
	Hour   int
	Minute int
	Second int
}

// ParseClock parses "15:04" or "15:04:05".
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return Clock{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}
	return Clock{}, fmt.Errorf("calendar: invalid time of day %q", s)
}

func (c Clock) String() string {
	if c.Second != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
	}
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ParseDate parses a YYYY-MM-DD date as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("calendar: invalid date %q: %w", s, err)
	}
	return t, nil
}

// Combine places clock on the calendar day of day, in day's location.
func Combine(day time.Time, c Clock) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, c.Second, 0, day.Location())
}

// StartOfDay returns midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59 of t's day in t's location.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

// AddDays moves t by n calendar days, keeping the wall clock.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// IsWeekday reports whether t falls on Monday through Friday.
func IsWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// SameDay reports whether a and b fall on the same calendar day. b is
// compared in a's location.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// LastDayOfMonth returns the day number of the last day of t's month.
func LastDayOfMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

// InNthWeek reports whether t lies in the nth 7-day block of its month.
// n is 1..4 counted from the first day; n == -1 selects the last seven days,
// counted backwards from the month's last day.
func InNthWeek(t time.Time, n int) bool {
	day := t.Day()
	if n < 0 {
		return day > LastDayOfMonth(t)-7
	}
	if n == 0 {
		return false
	}
	first := 7*(n-1) + 1
	return day >= first && day < first+7
}
