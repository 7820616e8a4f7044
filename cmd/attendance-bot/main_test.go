package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/username/attendance-bot/internal/calendar"
	"github.com/username/attendance-bot/internal/config"
	"go.uber.org/zap"
)

func TestBuildCalendar(t *testing.T) {
	file := filepath.Join(t.TempDir(), "holidays.txt")
	if err := os.WriteFile(file, []byte("2024-03-08 holiday Women's Day\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		cfg     config.CalendarConfig
		check   func(t *testing.T, cal calendar.Calendar)
		wantErr bool
	}{
		{
			name: "rules",
			cfg:  config.CalendarConfig{Type: "rules", Country: "us"},
			check: func(t *testing.T, cal calendar.Calendar) {
				if _, ok := cal.(*calendar.RuleCalendar); !ok {
					t.Errorf("calendar = %T", cal)
				}
			},
		},
		{
			name: "file",
			cfg:  config.CalendarConfig{Type: "file", File: file},
			check: func(t *testing.T, cal calendar.Calendar) {
				info, err := cal.GetDayInfo(time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC))
				if err != nil || info.Type != calendar.DayTypeHoliday {
					t.Errorf("GetDayInfo() = %+v, %v", info, err)
				}
			},
		},
		{
			name: "isdayoff",
			cfg:  config.CalendarConfig{Type: "isdayoff"},
			check: func(t *testing.T, cal calendar.Calendar) {
				if _, ok := cal.(*calendar.IsDayOffCalendar); !ok {
					t.Errorf("calendar = %T", cal)
				}
			},
		},
		{
			name: "composite",
			cfg:  config.CalendarConfig{Type: "composite", File: file},
			check: func(t *testing.T, cal calendar.Calendar) {
				if _, ok := cal.(*calendar.CompositeCalendar); !ok {
					t.Errorf("calendar = %T", cal)
				}
			},
		},
		{name: "missing file", cfg: config.CalendarConfig{Type: "file", File: filepath.Join(t.TempDir(), "nope.txt")}, wantErr: true},
		{name: "unknown type", cfg: config.CalendarConfig{Type: "production-calendar"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal, err := buildCalendar(&tt.cfg, zap.NewNop())
			if (err != nil) != tt.wantErr {
				t.Fatalf("buildCalendar() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cal)
			}
		})
	}
}

func TestDateRange(t *testing.T) {
	from, to, err := dateRange("2024-03-01", "2024-03-31", time.UTC)
	if err != nil {
		t.Fatalf("dateRange() error = %v", err)
	}
	if from.Day() != 1 || to.Day() != 31 {
		t.Errorf("dateRange() = %v, %v", from, to)
	}

	from, to, err = dateRange("", "", time.UTC)
	if err != nil {
		t.Fatalf("dateRange() error = %v", err)
	}
	if from.Day() != 1 || from.Month() != to.Month() {
		t.Errorf("default range = %v, %v, want month-to-date", from, to)
	}

	if _, _, err := dateRange("yesterday", "", time.UTC); err == nil {
		t.Error("dateRange() expected error for bad date")
	}
}
