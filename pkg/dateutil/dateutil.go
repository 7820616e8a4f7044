package dateutil

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for calendar dates
const DateLayout = "2006-01-02"

// Date returns the calendar date of t as midnight UTC.
// Attendance dates carry no timezone: 2024-03-02 in Tashkent and in Lisbon
// is the same record.
func Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfMonth returns the first calendar date of the month
func StartOfMonth(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// EndOfMonth returns the last calendar date of the month
func EndOfMonth(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month()+1, 0, 0, 0, 0, 0, time.UTC)
}

// DaysInMonth returns the number of days in the month
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// IsWeekend returns true if the date is Saturday or Sunday
func IsWeekend(date time.Time) bool {
	weekday := date.Weekday()
	return weekday == time.Saturday || weekday == time.Sunday
}

// IsSameDay returns true if two dates are on the same day
func IsSameDay(date1, date2 time.Time) bool {
	return date1.Year() == date2.Year() &&
		date1.Month() == date2.Month() &&
		date1.Day() == date2.Day()
}

// Format formats the calendar date as YYYY-MM-DD
func Format(date time.Time) string {
	return date.Format(DateLayout)
}

// ParseDate parses a calendar date in one of the accepted layouts.
// Timestamps are truncated to their calendar date.
func ParseDate(dateStr string) (time.Time, error) {
	dateStr = strings.TrimSpace(dateStr)

	formats := []string{
		DateLayout,
		"02.01.2006",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04:05.000Z07:00",
		"2006-01-02T15:04:05-0700",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return Date(t), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date %q (want YYYY-MM-DD)", dateStr)
}

// Days returns every calendar date in [from, to] in ascending order.
// An inverted range yields nil.
func Days(from, to time.Time) []time.Time {
	from, to = Date(from), Date(to)
	if to.Before(from) {
		return nil
	}

	days := make([]time.Time, 0, int(to.Sub(from).Hours()/24)+1)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Today returns today's calendar date in loc
func Today(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return Date(time.Now().In(loc))
}

