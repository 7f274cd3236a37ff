package session

import (
	"math/rand"
	"time"
)

// ReconnectBackoff tracks the reconnect attempt counter and computes the
// next wait. Grounded on dht/bootstrap.go's scheduleRetry: exponential
// backoff with jitter, capped, reset on success — generalized here from a
// 1.5x multiplier to a straight doubling per the connection supervisor's
// 2s/1s base.
type ReconnectBackoff struct {
	NetworkBase time.Duration
	OtherBase   time.Duration
	Max         time.Duration
	MaxAttempts int

	attempts int
}

// NewReconnectBackoff constructs a ReconnectBackoff with the spec's
// defaults: 2s base for a network error, 1s otherwise, doubling up to a
// 30s cap, 5 attempts before giving up.
func NewReconnectBackoff() *ReconnectBackoff {
	return &ReconnectBackoff{
		NetworkBase: 2 * time.Second,
		OtherBase:   1 * time.Second,
		Max:         30 * time.Second,
		MaxAttempts: 5,
	}
}

// Reset clears the attempt counter after a successful reconnect.
func (b *ReconnectBackoff) Reset() {
	b.attempts = 0
}

// Attempts returns how many consecutive failed attempts have occurred.
func (b *ReconnectBackoff) Attempts() int {
	return b.attempts
}

// Exhausted reports whether the attempt budget is used up.
func (b *ReconnectBackoff) Exhausted() bool {
	return b.attempts >= b.MaxAttempts
}

// Next records one more failed attempt and returns how long to wait
// before trying again. Call Exhausted first; Next does not itself refuse
// to advance past MaxAttempts.
func (b *ReconnectBackoff) Next(networkError bool) time.Duration {
	base := b.OtherBase
	if networkError {
		base = b.NetworkBase
	}
	b.attempts++
	wait := base << uint(b.attempts-1)
	if wait > b.Max || wait <= 0 {
		wait = b.Max
	}
	return wait
}

// jitterRange returns a random duration in [min, max), used by Query's
// rate-limit retry.
func jitterRange(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
