// Package ratelimit gates bursts of attempts per remote address with
// golang.org/x/time/rate token buckets, one limiter per key so one abusive
// client cannot exhaust every other client's share.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// PerKey hands out an independent token bucket per key, lazily created on
// first use and never evicted, which is acceptable for this service's key
// space (remote addresses seen during the process lifetime on one node).
type PerKey struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

// NewPerKey builds a PerKey limiter allowing r events/sec per key with the
// given burst.
func NewPerKey(r rate.Limit, burst int) *PerKey {
	return &PerKey{limiters: make(map[string]*rate.Limiter), r: r, burst: burst}
}

// Allow reports whether key may proceed right now, consuming a token if so.
func (p *PerKey) Allow(key string) bool {
	return p.limiterFor(key).Allow()
}

func (p *PerKey) limiterFor(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[key]
	if !ok {
		l = rate.NewLimiter(p.r, p.burst)
		p.limiters[key] = l
	}
	return l
}
