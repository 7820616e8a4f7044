package calendar

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/username/attendance-bot/pkg/dateutil"
	"go.uber.org/zap"
)

const (
	isdayoffBaseURL    = "https://isdayoff.ru"
	defaultHTTPTimeout = 10 * time.Second
	defaultCacheTTL    = 24 * time.Hour
)

// IsDayOffCalendar implements Calendar using isdayoff.ru API
type IsDayOffCalendar struct {
	baseURL      string
	httpClient   *http.Client
	logger       *zap.Logger
	cache        map[string]*cachedMonth
	cacheMu      sync.RWMutex
	cacheTTL     time.Duration
	fallbackURL  string
	fallbackData map[int]*xmlCalendarYear // year → calendar data
}

type cachedMonth struct {
	data      *MonthInfo
	fetchedAt time.Time
}

// xmlCalendarYear represents xmlcalendar.ru JSON structure
type xmlCalendarYear struct {
	Year        int                `json:"year"`
	Months      []xmlCalendarMonth `json:"months"`
	Transitions []xmlTransition    `json:"transitions"`
}

type xmlCalendarMonth struct {
	Month int    `json:"month"`
	Days  string `json:"days"` // "1*,2,3+,4,8,9,..." where * = shortened, + = transferred
}

type xmlTransition struct {
	From string `json:"from"` // "MM.DD"
	To   string `json:"to"`   // "MM.DD"
}

// NewIsDayOffCalendar creates a new IsDayOffCalendar instance.
// An empty baseURL selects the public isdayoff.ru endpoint; fallbackURL
// may contain a {year} placeholder.
func NewIsDayOffCalendar(baseURL, fallbackURL string, cacheTTL time.Duration, logger *zap.Logger) *IsDayOffCalendar {
	if baseURL == "" {
		baseURL = isdayoffBaseURL
	}
	if cacheTTL == 0 {
		cacheTTL = defaultCacheTTL
	}

	return &IsDayOffCalendar{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
		logger:       logger,
		cache:        make(map[string]*cachedMonth),
		cacheTTL:     cacheTTL,
		fallbackURL:  fallbackURL,
		fallbackData: make(map[int]*xmlCalendarYear),
	}
}

// GetDayInfo returns detailed info for a specific day
func (c *IsDayOffCalendar) GetDayInfo(date time.Time) (*DayInfo, error) {
	monthInfo, err := c.GetMonthInfo(date.Year(), date.Month())
	if err != nil {
		return nil, err
	}

	if day, ok := monthInfo.find(date); ok {
		return day, nil
	}

	return nil, fmt.Errorf("day not found in month data: %s", date.Format("2006-01-02"))
}

// GetMonthInfo returns calendar info for the entire month
func (c *IsDayOffCalendar) GetMonthInfo(year int, month time.Month) (*MonthInfo, error) {
	key := monthKey(year, month)

	c.cacheMu.RLock()
	if cached, ok := c.cache[key]; ok {
		if time.Since(cached.fetchedAt) < c.cacheTTL {
			c.cacheMu.RUnlock()
			c.logger.Debug("Using cached month info", zap.String("month", key))
			return cached.data, nil
		}
	}
	c.cacheMu.RUnlock()

	monthInfo, err := c.fetchMonthFromAPI(year, month)
	if err != nil {
		c.logger.Warn("Failed to fetch month from API, trying fallback",
			zap.String("month", key),
			zap.Error(err))

		var fallbackErr error
		monthInfo, fallbackErr = c.fetchMonthFromFallback(year, month)
		if fallbackErr != nil {
			return nil, fmt.Errorf("API and fallback both failed: API=%w, Fallback=%v", err, fallbackErr)
		}

		c.logger.Info("Using fallback data", zap.String("month", key))
	}

	c.cacheMu.Lock()
	c.cache[key] = &cachedMonth{
		data:      monthInfo,
		fetchedAt: time.Now(),
	}
	c.cacheMu.Unlock()

	return monthInfo, nil
}

// fetchMonthFromAPI fetches entire month from isdayoff.ru bulk API
func (c *IsDayOffCalendar) fetchMonthFromAPI(year int, month time.Month) (*MonthInfo, error) {
	// https://isdayoff.ru/api/getdata?year=2025&month=11&pre=1
	url := fmt.Sprintf("%s/api/getdata?year=%d&month=%d&pre=1",
		c.baseURL, year, int(month))

	c.logger.Debug("Fetching month from isdayoff",
		zap.String("url", url))

	resp, err := c.httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch calendar data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	monthInfo, err := c.parseBulkResponse(year, month, strings.TrimSpace(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse bulk response: %w", err)
	}

	c.logger.Info("Month info fetched from API",
		zap.Int("year", year),
		zap.Int("month", int(month)),
		zap.Int("holidays", monthInfo.Holidays))

	return monthInfo, nil
}

// parseBulkResponse parses isdayoff.ru bulk response string
// Format: "211100011000001100000110000011" where:
// 0 = working day
// 1 = non-working day (holiday/weekend)
// 2 = shortened day
func (c *IsDayOffCalendar) parseBulkResponse(year int, month time.Month, data string) (*MonthInfo, error) {
	daysInMonth := dateutil.DaysInMonth(year, month)

	if len(data) != daysInMonth {
		return nil, fmt.Errorf("bulk data length mismatch: expected %d, got %d", daysInMonth, len(data))
	}

	monthInfo := &MonthInfo{
		Year:  year,
		Month: month,
		Days:  make([]DayInfo, 0, daysInMonth),
	}

	for i, code := range data {
		date := time.Date(year, month, i+1, 0, 0, 0, 0, time.UTC)
		day := DayInfo{Date: date}

		switch code {
		case '0':
			day.Type = DayTypeWorkday
			day.IsWorkday = true
		case '1':
			day.Type = nonWorkingType(date)
		case '2':
			day.Type = DayTypeShortened
			day.IsWorkday = true
		default:
			return nil, fmt.Errorf("unknown code '%c' at position %d", code, i)
		}

		monthInfo.add(day)
	}

	return monthInfo, nil
}

// nonWorkingType distinguishes a regular weekend from a public holiday
func nonWorkingType(date time.Time) DayType {
	if dateutil.IsWeekend(date) {
		return DayTypeWeekend
	}
	return DayTypeHoliday
}

// fetchMonthFromFallback fetches month from xmlcalendar.ru
func (c *IsDayOffCalendar) fetchMonthFromFallback(year int, month time.Month) (*MonthInfo, error) {
	if c.fallbackURL == "" {
		return nil, fmt.Errorf("no fallback configured")
	}

	c.cacheMu.RLock()
	yearData, exists := c.fallbackData[year]
	c.cacheMu.RUnlock()

	if !exists {
		var err error
		yearData, err = c.downloadFallbackYear(year)
		if err != nil {
			return nil, fmt.Errorf("failed to download fallback data: %w", err)
		}

		c.cacheMu.Lock()
		c.fallbackData[year] = yearData
		c.cacheMu.Unlock()
	}

	for i := range yearData.Months {
		if yearData.Months[i].Month == int(month) {
			return c.parseXMLCalendarMonth(year, month, &yearData.Months[i])
		}
	}

	return nil, fmt.Errorf("month %d not found in fallback data for year %d", month, year)
}

// downloadFallbackYear downloads entire year from xmlcalendar.ru
func (c *IsDayOffCalendar) downloadFallbackYear(year int) (*xmlCalendarYear, error) {
	url := strings.ReplaceAll(c.fallbackURL, "{year}", strconv.Itoa(year))

	c.logger.Info("Downloading fallback calendar data",
		zap.String("url", url),
		zap.Int("year", year))

	resp, err := c.httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fallback data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fallback API returned status %d", resp.StatusCode)
	}

	var yearData xmlCalendarYear
	if err := json.NewDecoder(resp.Body).Decode(&yearData); err != nil {
		return nil, fmt.Errorf("failed to parse fallback JSON: %w", err)
	}

	return &yearData, nil
}

// parseXMLCalendarMonth parses xmlcalendar.ru compact format
// Format: "1*,2,3+,4,8,9,15,16,22,23,29,30"
// * = shortened day, + = transferred day, others = weekends/holidays
func (c *IsDayOffCalendar) parseXMLCalendarMonth(year int, month time.Month, xmlMonth *xmlCalendarMonth) (*MonthInfo, error) {
	daysInMonth := dateutil.DaysInMonth(year, month)

	nonWorking := make(map[int]rune) // day → marker (* or + or 0)
	for _, part := range strings.Split(xmlMonth.Days, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		marker := rune(0)
		dayStr := part
		if strings.HasSuffix(part, "*") {
			marker = '*'
			dayStr = strings.TrimSuffix(part, "*")
		} else if strings.HasSuffix(part, "+") {
			marker = '+'
			dayStr = strings.TrimSuffix(part, "+")
		}

		day, err := strconv.Atoi(dayStr)
		if err != nil {
			c.logger.Warn("Failed to parse day number",
				zap.String("part", part),
				zap.Error(err))
			continue
		}

		nonWorking[day] = marker
	}

	monthInfo := &MonthInfo{
		Year:  year,
		Month: month,
		Days:  make([]DayInfo, 0, daysInMonth),
	}

	for d := 1; d <= daysInMonth; d++ {
		date := time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
		day := DayInfo{Date: date}

		marker, isNonWorking := nonWorking[d]
		switch {
		case marker == '*':
			day.Type = DayTypeShortened
			day.IsWorkday = true
		case isNonWorking:
			day.Type = nonWorkingType(date)
		default:
			day.Type = DayTypeWorkday
			day.IsWorkday = true
		}

		monthInfo.add(day)
	}

	return monthInfo, nil
}

// ClearCache clears the cache
func (c *IsDayOffCalendar) ClearCache() {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	c.cache = make(map[string]*cachedMonth)
	c.fallbackData = make(map[int]*xmlCalendarYear)
	c.logger.Info("Calendar cache cleared")
}
