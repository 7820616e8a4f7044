package calendar

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/username/attendance-bot/pkg/dateutil"
	"go.uber.org/zap"
)

// FileCalendar implements Calendar using a local text file.
//
// Format, one day per line, '#' starts a comment:
//
//	YYYY-MM-DD type [note]
//	2024-03-08 holiday International Women's Day
//
// Unlisted days of a listed month follow the weekly pattern. A month with
// no lines at all is an error, so a composite calendar can fall back.
type FileCalendar struct {
	filePath string
	logger   *zap.Logger
	mu       sync.RWMutex
	data     map[string]*MonthInfo // key: "YYYY-MM"
}

// NewFileCalendar creates a new FileCalendar instance
func NewFileCalendar(filePath string, logger *zap.Logger) *FileCalendar {
	return &FileCalendar{
		filePath: filePath,
		logger:   logger,
		data:     make(map[string]*MonthInfo),
	}
}

// Load loads calendar data from file
func (fc *FileCalendar) Load() error {
	file, err := os.Open(fc.filePath)
	if err != nil {
		return fmt.Errorf("failed to open calendar file: %w", err)
	}
	defer file.Close()

	data := make(map[string]*MonthInfo)
	scanner := bufio.NewScanner(file)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, " ", 3)
		if len(parts) < 2 {
			fc.logger.Warn("Invalid line format",
				zap.Int("line", lineNo),
				zap.String("text", line))
			continue
		}

		date, err := time.Parse("2006-01-02", parts[0])
		if err != nil {
			fc.logger.Warn("Failed to parse date",
				zap.Int("line", lineNo),
				zap.String("date", parts[0]),
				zap.Error(err))
			continue
		}

		dayType, err := ParseDayType(parts[1])
		if err != nil {
			fc.logger.Warn("Unknown day type",
				zap.Int("line", lineNo),
				zap.String("type", parts[1]))
			continue
		}

		note := ""
		if len(parts) == 3 {
			note = strings.TrimSpace(parts[2])
		}

		key := monthKey(date.Year(), date.Month())
		monthInfo, ok := data[key]
		if !ok {
			monthInfo = &MonthInfo{Year: date.Year(), Month: date.Month()}
			data[key] = monthInfo
		}

		monthInfo.add(DayInfo{
			Date:      date,
			Type:      dayType,
			IsWorkday: dayType == DayTypeWorkday || dayType == DayTypeShortened,
			Note:      note,
		})
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading calendar file: %w", err)
	}

	fc.mu.Lock()
	fc.data = data
	fc.mu.Unlock()

	fc.logger.Info("Calendar file loaded",
		zap.String("file", fc.filePath),
		zap.Int("months", len(data)))

	return nil
}

// GetMonthInfo returns calendar info for the entire month.
// Only the days listed in the file are returned.
func (fc *FileCalendar) GetMonthInfo(year int, month time.Month) (*MonthInfo, error) {
	key := monthKey(year, month)

	fc.mu.RLock()
	monthInfo, ok := fc.data[key]
	fc.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("month not found in calendar: %s", key)
	}

	return monthInfo, nil
}

// GetDayInfo returns detailed info for a specific day
func (fc *FileCalendar) GetDayInfo(date time.Time) (*DayInfo, error) {
	monthInfo, err := fc.GetMonthInfo(date.Year(), date.Month())
	if err != nil {
		return nil, err
	}

	if day, ok := monthInfo.find(date); ok {
		return day, nil
	}

	info := &DayInfo{
		Date:      time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
		Type:      DayTypeWorkday,
		IsWorkday: true,
	}
	if dateutil.IsWeekend(date) {
		info.Type = DayTypeWeekend
		info.IsWorkday = false
	}

	return info, nil
}
