package coordinator

import (
	"math/rand/v2"
	"time"
)

// DefaultJitterFraction is the share of the interval a scheduled run may move by
const DefaultJitterFraction = 0.1

// jitteredInterval returns interval moved by a random offset of at most
// ±fraction of interval
func jitteredInterval(interval time.Duration, fraction float64) time.Duration {
	spread := time.Duration(float64(interval) * fraction)
	if spread <= 0 {
		return interval
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for scheduling jitter
	offset := time.Duration(rand.Int64N(int64(2*spread)+1)) - spread
	return interval + offset
}
