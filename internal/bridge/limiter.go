package bridge

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter hands out a token bucket per client id. Idle buckets are
// dropped by sweep.
type clientLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*limiterEntry
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiter{limit: limit, burst: burst, limiters: make(map[string]*limiterEntry)}
}

func (c *clientLimiter) allow(client string, now time.Time) bool {
	c.mu.Lock()
	e, ok := c.limiters[client]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(c.limit, c.burst)}
		c.limiters[client] = e
	}
	e.lastSeen = now
	c.mu.Unlock()
	return e.lim.AllowN(now, 1)
}

func (c *clientLimiter) sweep(idle time.Duration, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.limiters {
		if now.Sub(e.lastSeen) >= idle {
			delete(c.limiters, k)
		}
	}
}
