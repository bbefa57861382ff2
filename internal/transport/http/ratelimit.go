package http

import (
	"time"

	"github.com/benbjohnson/clock"
)

// rateLimiter is a fixed one-minute window counter. It is owned by a single
// read loop and is not safe for concurrent use.
type rateLimiter struct {
	limit       int
	clock       clock.Clock
	windowStart time.Time
	counter     int
}

func newRateLimiter(limit int, clk clock.Clock) *rateLimiter {
	if clk == nil {
		clk = clock.New()
	}
	return &rateLimiter{limit: limit, clock: clk}
}

func (r *rateLimiter) allow() bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	now := r.clock.Now()
	if r.windowStart.IsZero() || now.Sub(r.windowStart) >= time.Minute {
		r.windowStart = now
		r.counter = 0
	}
	r.counter++
	return r.counter <= r.limit
}
