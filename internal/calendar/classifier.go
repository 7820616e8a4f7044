package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/username/attendance-bot/pkg/dateutil"
	"go.uber.org/zap"
)

// Override lists per-teacher exceptions to the school calendar
type Override struct {
	Holidays []time.Time
	Workdays []time.Time
}

// Classifier decides whether a day is a holiday for a teacher.
//
// Per-teacher workdays win over per-teacher holidays, which win over the
// underlying calendar. Weekends count as holidays only when weekendsAreHolidays
// is set.
type Classifier struct {
	calendar            Calendar
	weekendsAreHolidays bool
	holidays            map[string]map[string]struct{} // teacher -> YYYY-MM-DD
	workdays            map[string]map[string]struct{}
	logger              *zap.Logger
}

// NewClassifier creates a Classifier over cal
func NewClassifier(cal Calendar, weekendsAreHolidays bool, overrides map[string]Override, logger *zap.Logger) *Classifier {
	c := &Classifier{
		calendar:            cal,
		weekendsAreHolidays: weekendsAreHolidays,
		holidays:            make(map[string]map[string]struct{}),
		workdays:            make(map[string]map[string]struct{}),
		logger:              logger,
	}

	for teacherID, o := range overrides {
		c.holidays[teacherID] = dateSet(o.Holidays)
		c.workdays[teacherID] = dateSet(o.Workdays)
	}

	return c
}

func dateSet(dates []time.Time) map[string]struct{} {
	set := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		set[dateutil.Format(d)] = struct{}{}
	}
	return set
}

// IsHoliday reports whether date is a holiday for teacherID.
// An empty teacherID applies the school calendar only.
func (c *Classifier) IsHoliday(ctx context.Context, date time.Time, teacherID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	key := dateutil.Format(date)
	if _, ok := c.workdays[teacherID][key]; ok {
		return false, nil
	}
	if _, ok := c.holidays[teacherID][key]; ok {
		return true, nil
	}

	info, err := c.calendar.GetDayInfo(dateutil.Date(date))
	if err != nil {
		return false, fmt.Errorf("failed to classify %s: %w", key, err)
	}

	switch info.Type {
	case DayTypeHoliday:
		return true, nil
	case DayTypeWeekend:
		return c.weekendsAreHolidays, nil
	default:
		return false, nil
	}
}

// Holiday is a classified holiday with its calendar note
type Holiday struct {
	Date time.Time `json:"-"`
	Note string    `json:"note,omitempty"`
}

// MarshalJSON renders the date as YYYY-MM-DD
func (h Holiday) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Date string `json:"date"`
		Note string `json:"note,omitempty"`
	}{dateutil.Format(h.Date), h.Note})
}

// Holidays lists the holidays for teacherID between from and to inclusive
func (c *Classifier) Holidays(ctx context.Context, from, to time.Time, teacherID string) ([]Holiday, error) {
	var result []Holiday

	for _, d := range dateutil.Days(from, to) {
		isHoliday, err := c.IsHoliday(ctx, d, teacherID)
		if err != nil {
			return nil, err
		}
		if !isHoliday {
			continue
		}

		h := Holiday{Date: d}
		if info, err := c.calendar.GetDayInfo(d); err == nil {
			h.Note = info.Note
		}
		if _, ok := c.holidays[teacherID][dateutil.Format(d)]; ok && h.Note == "" {
			h.Note = "teacher override"
		}
		result = append(result, h)
	}

	c.logger.Debug("Holidays listed",
		zap.String("teacher_id", teacherID),
		zap.String("from", dateutil.Format(from)),
		zap.String("to", dateutil.Format(to)),
		zap.Int("count", len(result)))

	return result, nil
}
