package calendar

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// CompositeCalendar asks its sources in order and returns the first answer.
// Typically the isdayoff API first, then a local file or the country rules.
type CompositeCalendar struct {
	sources []Calendar
	logger  *zap.Logger
}

// NewCompositeCalendar creates a calendar that consults primary and, when it
// fails, fallback
func NewCompositeCalendar(primary, fallback Calendar, logger *zap.Logger) *CompositeCalendar {
	return &CompositeCalendar{
		sources: []Calendar{primary, fallback},
		logger:  logger,
	}
}

// GetMonthInfo returns the month from the first source that knows it
func (cc *CompositeCalendar) GetMonthInfo(year int, month time.Month) (*MonthInfo, error) {
	var errs []error
	for i, src := range cc.sources {
		info, err := src.GetMonthInfo(year, month)
		if err == nil {
			cc.answered(i, zap.String("month", fmt.Sprintf("%04d-%02d", year, month)))
			return info, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", sourceName(src), err))
		cc.logger.Warn("Holiday source failed",
			zap.String("source", sourceName(src)),
			zap.Int("year", year),
			zap.Int("month", int(month)),
			zap.Error(err))
	}
	return nil, fmt.Errorf("no holiday source answered for %04d-%02d: %w", year, month, errors.Join(errs...))
}

// GetDayInfo returns the day from the first source that knows it
func (cc *CompositeCalendar) GetDayInfo(date time.Time) (*DayInfo, error) {
	var errs []error
	for i, src := range cc.sources {
		info, err := src.GetDayInfo(date)
		if err == nil {
			cc.answered(i, zap.String("date", date.Format("2006-01-02")))
			return info, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", sourceName(src), err))
		cc.logger.Warn("Holiday source failed",
			zap.String("source", sourceName(src)),
			zap.String("date", date.Format("2006-01-02")),
			zap.Error(err))
	}
	return nil, fmt.Errorf("no holiday source answered for %s: %w", date.Format("2006-01-02"), errors.Join(errs...))
}

func (cc *CompositeCalendar) answered(i int, field zap.Field) {
	if i == 0 {
		return
	}
	cc.logger.Info("Holidays served by fallback source",
		zap.String("source", sourceName(cc.sources[i])),
		field)
}

// LoadFallback loads every file-backed source after the primary
func (cc *CompositeCalendar) LoadFallback() error {
	for _, src := range cc.sources[1:] {
		fc, ok := src.(*FileCalendar)
		if !ok {
			continue
		}
		if err := fc.Load(); err != nil {
			return fmt.Errorf("failed to load fallback calendar: %w", err)
		}
		cc.logger.Info("Fallback holiday file loaded", zap.String("file", fc.filePath))
	}
	return nil
}

func sourceName(c Calendar) string {
	switch c := c.(type) {
	case *IsDayOffCalendar:
		return "isdayoff"
	case *FileCalendar:
		return "file " + c.filePath
	case *RuleCalendar:
		return "rules"
	case *CompositeCalendar:
		return "composite"
	default:
		return fmt.Sprintf("%T", c)
	}
}
