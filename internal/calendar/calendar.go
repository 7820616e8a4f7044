package calendar

import (
	"fmt"
	"time"
)

// DayType represents the type of day
type DayType int

const (
	DayTypeWorkday DayType = iota + 1
	DayTypeWeekend
	DayTypeHoliday
	DayTypeShortened
)

// String returns the file/wire name of the day type
func (t DayType) String() string {
	switch t {
	case DayTypeWorkday:
		return "workday"
	case DayTypeWeekend:
		return "weekend"
	case DayTypeHoliday:
		return "holiday"
	case DayTypeShortened:
		return "shortened"
	default:
		return fmt.Sprintf("DayType(%d)", int(t))
	}
}

// ParseDayType parses a day type name
func ParseDayType(s string) (DayType, error) {
	switch s {
	case "workday":
		return DayTypeWorkday, nil
	case "weekend":
		return DayTypeWeekend, nil
	case "holiday":
		return DayTypeHoliday, nil
	case "shortened":
		return DayTypeShortened, nil
	default:
		return 0, fmt.Errorf("unknown day type %q", s)
	}
}

// DayInfo represents information about a specific day
type DayInfo struct {
	Date      time.Time
	Type      DayType
	IsWorkday bool
	Note      string
}

// MonthInfo represents calendar information for a month
type MonthInfo struct {
	Year     int
	Month    time.Month
	WorkDays int
	Weekends int
	Holidays int
	Days     []DayInfo
}

// Calendar classifies calendar days
type Calendar interface {
	// GetDayInfo returns detailed info for a specific day
	GetDayInfo(date time.Time) (*DayInfo, error)

	// GetMonthInfo returns calendar info for the entire month
	GetMonthInfo(year int, month time.Month) (*MonthInfo, error)
}

func (m *MonthInfo) add(day DayInfo) {
	m.Days = append(m.Days, day)

	switch day.Type {
	case DayTypeWorkday, DayTypeShortened:
		m.WorkDays++
	case DayTypeWeekend:
		m.Weekends++
	case DayTypeHoliday:
		m.Holidays++
	}
}

func (m *MonthInfo) find(date time.Time) (*DayInfo, bool) {
	for i := range m.Days {
		day := m.Days[i]
		if day.Date.Year() == date.Year() &&
			day.Date.Month() == date.Month() &&
			day.Date.Day() == date.Day() {
			return &day, true
		}
	}
	return nil, false
}

func monthKey(year int, month time.Month) string {
	return fmt.Sprintf("%d-%02d", year, month)
}
