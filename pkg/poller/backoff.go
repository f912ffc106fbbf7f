package poller

import (
	"math"
	"math/rand"
	"time"
)

// MissBackoff configures an optional wait after consecutive transient misses.
// The zero value disables it: a miss is retried immediately at the same
// offset, which is the historical behaviour.
type MissBackoff struct {
	// Initial is the wait after the first miss. Zero disables backoff.
	Initial time.Duration

	// Max caps the wait. Zero means the default cap of 30s.
	Max time.Duration

	// Multiplier grows the wait after each further miss.
	Multiplier float64
}

const defaultMissBackoffMax = 30 * time.Second

// DefaultMissBackoff returns a bounded exponential backoff suitable for
// deployments that prefer not to hammer a failing API.
func DefaultMissBackoff() MissBackoff {
	return MissBackoff{
		Initial:    1 * time.Second,
		Max:        defaultMissBackoffMax,
		Multiplier: 2.0,
	}
}

// Enabled reports whether misses are followed by a wait.
func (b MissBackoff) Enabled() bool {
	return b.Initial > 0
}

// delay returns the wait after the given number of consecutive misses
// (starting at 1), with ±20% jitter. It is zero when backoff is disabled.
// A non-positive Max falls back to the default cap, so the wait is always bounded.
func (b MissBackoff) delay(misses int) time.Duration {
	if !b.Enabled() || misses <= 0 {
		return 0
	}

	multiplier := b.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	limit := b.Max
	if limit <= 0 {
		limit = defaultMissBackoffMax
	}
	limit = max(limit, b.Initial)

	// Grow in float64 and clamp before converting back to a Duration.
	backoff := float64(b.Initial)
	for i := 1; i < misses && backoff < float64(limit); i++ {
		backoff = math.Min(backoff*multiplier, float64(limit))
	}

	// Add jitter (±20% randomness)
	return time.Duration(backoff * (0.8 + rand.Float64()*0.4))
}
