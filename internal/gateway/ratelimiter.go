package gateway

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a per-client-id requests-per-minute cap on RPC
// dispatch (spec §4.6 control plane; config.GatewayConfig.RateLimitRPM).
// rpm <= 0 disables limiting entirely; config.Default sets 20.
type RateLimiter struct {
	rpm   int
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewRateLimiter(rpm, burst int) *RateLimiter {
	return &RateLimiter{rpm: rpm, burst: burst, limiters: make(map[string]*rate.Limiter)}
}

func (r *RateLimiter) Enabled() bool { return r.rpm > 0 }

// Allow reports whether clientID may make another request right now,
// lazily creating its token bucket on first use.
func (r *RateLimiter) Allow(clientID string) bool {
	if !r.Enabled() {
		return true
	}
	r.mu.Lock()
	lim, ok := r.limiters[clientID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(r.rpm)/60.0), r.burst)
		r.limiters[clientID] = lim
	}
	r.mu.Unlock()
	return lim.Allow()
}
