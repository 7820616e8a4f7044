package random

import (
	"math"
	"math/rand"
	"time"
)

// Randomize applies ±percent randomization to value
// Example: Randomize(100, 1.0) returns value in range [99, 101]
func Randomize(value float64, percent float64) float64 {
	if percent <= 0 {
		return value
	}

	// Calculate variance
	variance := value * (percent / 100.0)

	// Generate random offset in range [-variance, +variance]
	offset := (rand.Float64()*2 - 1) * variance

	result := value + offset
	return math.Round(result*100) / 100
}

// Jitter applies ±percent randomization to a duration.
// Used to spread retries of concurrent clients hitting the same backend.
func Jitter(d time.Duration, percent float64) time.Duration {
	if d <= 0 {
		return d
	}
	return time.Duration(Randomize(float64(d), percent))
}

// Backoff returns the delay before retry number attempt (1-based):
// attempt * base, jittered by percent.
func Backoff(attempt int, base time.Duration, percent float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return Jitter(time.Duration(attempt)*base, percent)
}
