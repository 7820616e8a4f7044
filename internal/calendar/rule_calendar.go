package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/gb"
	"github.com/rickar/cal/v2/us"
	"github.com/username/attendance-bot/pkg/dateutil"
	"go.uber.org/zap"
)

// RuleCalendar implements Calendar from public holiday rules plus a list of
// school-specific dates. It never fails for a valid date.
type RuleCalendar struct {
	business *cal.BusinessCalendar
	extra    map[string]string // "YYYY-MM-DD" -> note
	logger   *zap.Logger
}

// countryHolidays returns the observed public holidays for a country code
func countryHolidays(country string) ([]*cal.Holiday, error) {
	switch strings.ToLower(country) {
	case "", "none":
		return nil, nil
	case "us":
		return []*cal.Holiday{
			us.NewYear,
			us.MlkDay,
			us.PresidentsDay,
			us.MemorialDay,
			us.Juneteenth,
			us.IndependenceDay,
			us.LaborDay,
			us.ThanksgivingDay,
			us.ChristmasDay,
		}, nil
	case "gb":
		return []*cal.Holiday{
			gb.NewYear,
			gb.GoodFriday,
			gb.EasterMonday,
			gb.EarlyMay,
			gb.SpringHoliday,
			gb.SummerHoliday,
			gb.ChristmasDay,
			gb.BoxingDay,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported holiday country %q", country)
	}
}

// NewRuleCalendar creates a RuleCalendar for country ("us", "gb" or "none")
// with extra holidays keyed by YYYY-MM-DD.
func NewRuleCalendar(country string, extra map[string]string, logger *zap.Logger) (*RuleCalendar, error) {
	holidays, err := countryHolidays(country)
	if err != nil {
		return nil, err
	}

	business := cal.NewBusinessCalendar()
	business.AddHoliday(holidays...)

	if extra == nil {
		extra = make(map[string]string)
	}

	logger.Info("Rule calendar initialized",
		zap.String("country", country),
		zap.Int("public_holidays", len(holidays)),
		zap.Int("extra_holidays", len(extra)))

	return &RuleCalendar{
		business: business,
		extra:    extra,
		logger:   logger,
	}, nil
}

// GetDayInfo returns detailed info for a specific day
func (rc *RuleCalendar) GetDayInfo(date time.Time) (*DayInfo, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, time.UTC)
	info := &DayInfo{
		Date: time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
	}

	if note, ok := rc.extra[day.Format("2006-01-02")]; ok {
		info.Type = DayTypeHoliday
		info.Note = note
		return info, nil
	}

	actual, observed, h := rc.business.IsHoliday(day)
	switch {
	case actual || observed:
		info.Type = DayTypeHoliday
		if h != nil {
			info.Note = h.Name
		}
	case dateutil.IsWeekend(day):
		info.Type = DayTypeWeekend
	default:
		info.Type = DayTypeWorkday
		info.IsWorkday = true
	}

	return info, nil
}

// GetMonthInfo returns calendar info for the entire month
func (rc *RuleCalendar) GetMonthInfo(year int, month time.Month) (*MonthInfo, error) {
	monthInfo := &MonthInfo{Year: year, Month: month}

	for d := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC); d.Month() == month; d = d.AddDate(0, 0, 1) {
		info, err := rc.GetDayInfo(d)
		if err != nil {
			return nil, err
		}
		monthInfo.add(*info)
	}

	return monthInfo, nil
}
