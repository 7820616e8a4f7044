package random

import (
	"testing"
	"time"
)

func TestRandomize(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		percent float64
		wantMin float64
		wantMax float64
	}{
		{
			name:    "1% randomization of 100",
			value:   100,
			percent: 1.0,
			wantMin: 99,
			wantMax: 101,
		},
		{
			name:    "5% randomization of 80",
			value:   80,
			percent: 5.0,
			wantMin: 76,
			wantMax: 84,
		},
		{
			name:    "0% randomization (no change)",
			value:   50,
			percent: 0,
			wantMin: 50,
			wantMax: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Run multiple times to check range
			for i := 0; i < 100; i++ {
				result := Randomize(tt.value, tt.percent)

				if result < tt.wantMin || result > tt.wantMax {
					t.Errorf("Randomize(%v, %v) = %v, want range [%v, %v]",
						tt.value, tt.percent, result, tt.wantMin, tt.wantMax)
				}
			}
		})
	}
}

func TestJitter(t *testing.T) {
	base := time.Second

	for i := 0; i < 100; i++ {
		got := Jitter(base, 20)
		if got < 800*time.Millisecond || got > 1200*time.Millisecond {
			t.Fatalf("Jitter(%v, 20) = %v, want range [800ms, 1.2s]", base, got)
		}
	}

	if got := Jitter(0, 20); got != 0 {
		t.Errorf("Jitter(0, 20) = %v, want 0", got)
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{"first attempt", 1, 500 * time.Millisecond},
		{"third attempt", 3, 1500 * time.Millisecond},
		{"zero treated as first", 0, 500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Backoff(tt.attempt, 500*time.Millisecond, 0)
			if got != tt.want {
				t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}
