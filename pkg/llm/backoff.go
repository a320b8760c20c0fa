package llm

import (
	"math"
	"math/rand"
	"time"
)

// FullJitterBackoff computes the exponential-backoff-with-full-jitter
// delay for attempt (1-indexed): a uniform random duration between 0
// and min(max, initial*2^(attempt-1)). Spec §4.5 requires full jitter
// rather than the half-open [0.5,1.5] jitter band the core retry helper
// uses elsewhere, so retry storms spread across the whole window
// instead of clustering near the midpoint.
func FullJitterBackoff(attempt int, initial, max time.Duration) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	if max <= 0 {
		max = 10 * time.Second
	}
	cap := float64(initial) * math.Pow(2, float64(attempt-1))
	if cap > float64(max) {
		cap = float64(max)
	}
	return time.Duration(rand.Float64() * cap) // #nosec G404 -- jitter does not require cryptographic randomness
}
