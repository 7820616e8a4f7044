package dateutil

import (
	"testing"
	"time"
)

func TestDate(t *testing.T) {
	tashkent := time.FixedZone("UZT", 5*60*60)
	input := time.Date(2024, 3, 2, 23, 30, 0, 0, tashkent)
	expected := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)

	result := Date(input)

	if !result.Equal(expected) {
		t.Errorf("Date(%v) = %v, want %v", input, result, expected)
	}
}

func TestMonthBounds(t *testing.T) {
	tests := []struct {
		name      string
		input     time.Time
		wantStart string
		wantEnd   string
		wantDays  int
	}{
		{"leap February", time.Date(2024, 2, 14, 9, 0, 0, 0, time.UTC), "2024-02-01", "2024-02-29", 29},
		{"December", time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), "2024-12-01", "2024-12-31", 31},
		{"April", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), "2025-04-01", "2025-04-30", 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(StartOfMonth(tt.input)); got != tt.wantStart {
				t.Errorf("StartOfMonth = %s, want %s", got, tt.wantStart)
			}
			if got := Format(EndOfMonth(tt.input)); got != tt.wantEnd {
				t.Errorf("EndOfMonth = %s, want %s", got, tt.wantEnd)
			}
			if got := DaysInMonth(tt.input.Year(), tt.input.Month()); got != tt.wantDays {
				t.Errorf("DaysInMonth = %d, want %d", got, tt.wantDays)
			}
		})
	}
}

func TestIsWeekend(t *testing.T) {
	tests := []struct {
		name  string
		input time.Time
		want  bool
	}{
		{"Saturday is weekend", time.Date(2025, 1, 18, 0, 0, 0, 0, time.UTC), true},
		{"Sunday is weekend", time.Date(2025, 1, 19, 0, 0, 0, 0, time.UTC), true},
		{"Monday is not weekend", time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC), false},
		{"Friday is not weekend", time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsWeekend(tt.input)

			if result != tt.want {
				t.Errorf("IsWeekend(%v) = %v, want %v",
					tt.input.Format("2006-01-02 Mon"), result, tt.want)
			}
		})
	}
}

func TestIsSameDay(t *testing.T) {
	tests := []struct {
		name  string
		date1 time.Time
		date2 time.Time
		want  bool
	}{
		{
			"Same date different time",
			time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
			time.Date(2025, 1, 15, 20, 0, 0, 0, time.UTC),
			true,
		},
		{
			"Different date",
			time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
			time.Date(2025, 1, 16, 10, 0, 0, 0, time.UTC),
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsSameDay(tt.date1, tt.date2)

			if result != tt.want {
				t.Errorf("IsSameDay(%v, %v) = %v, want %v",
					tt.date1, tt.date2, result, tt.want)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{
			"ISO format YYYY-MM-DD",
			"2025-01-15",
			time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
			false,
		},
		{
			"Dotted format DD.MM.YYYY",
			"15.01.2025",
			time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
			false,
		},
		{
			"ISO with time is truncated",
			"2025-01-15T10:30:00",
			time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
			false,
		},
		{
			"Backend timestamp",
			"2024-03-02T00:00:00.000Z",
			time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
			false,
		},
		{
			"Garbage",
			"yesterday-ish",
			time.Time{},
			true,
		},
		{
			"Empty",
			"",
			time.Time{},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseDate(tt.input)

			if (err != nil) != tt.wantErr {
				t.Errorf("ParseDate(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}

			if !tt.wantErr && !result.Equal(tt.want) {
				t.Errorf("ParseDate(%v) = %v, want %v", tt.input, result, tt.want)
			}
		})
	}
}

func TestDays(t *testing.T) {
	from := time.Date(2024, 2, 27, 15, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 2, 1, 0, 0, 0, time.UTC)

	days := Days(from, to)

	want := []string{"2024-02-27", "2024-02-28", "2024-02-29", "2024-03-01", "2024-03-02"}
	if len(days) != len(want) {
		t.Fatalf("Days() returned %d days, want %d", len(days), len(want))
	}
	for i, d := range days {
		if Format(d) != want[i] {
			t.Errorf("Days()[%d] = %s, want %s", i, Format(d), want[i])
		}
	}

	if got := Days(to, from); got != nil {
		t.Errorf("Days() on inverted range = %v, want nil", got)
	}

	single := Days(from, from)
	if len(single) != 1 {
		t.Errorf("Days() on single day returned %d days, want 1", len(single))
	}
}
