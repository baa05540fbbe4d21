package chat

import "time"

const (
	defaultRateEvents = 120
	defaultRateWindow = 10 * time.Second
)

// RateLimiter caps the inbound events of one connection to limit per sliding window.
// It keeps the times of the last limit accepted events in a ring. Only the
// connection's read loop calls Allow, so it is not synchronized.
type RateLimiter struct {
	window time.Duration
	times  []time.Time
	next   int // oldest slot once the ring is full
	filled bool
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = defaultRateEvents
	}
	if window <= 0 {
		window = defaultRateWindow
	}
	return &RateLimiter{window: window, times: make([]time.Time, limit)}
}

// Allow records an event at now and reports whether it fits in the window.
// Rejected events are not recorded.
func (r *RateLimiter) Allow(now time.Time) bool {
	if r.filled && r.times[r.next].After(now.Add(-r.window)) {
		return false
	}
	r.times[r.next] = now
	r.next++
	if r.next == len(r.times) {
		r.next = 0
		r.filled = true
	}
	return true
}
