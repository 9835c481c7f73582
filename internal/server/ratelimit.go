package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultRateLimitRequests is the number of requests allowed per key
	// within one window.
	DefaultRateLimitRequests = 10
	// DefaultRateLimitWindow is the sliding window length.
	DefaultRateLimitWindow = 60 * time.Second
)

// RateLimiter keeps a sliding log of request times per client key and
// optionally a process-wide token bucket.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	now         func() time.Time

	globalLimiter *rate.Limiter

	mu        sync.Mutex
	log       map[string][]time.Time
	lastPrune time.Time
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithRateLimitClock replaces time.Now.
func WithRateLimitClock(now func() time.Time) RateLimiterOption {
	return func(rl *RateLimiter) {
		if now != nil {
			rl.now = now
		}
	}
}

// WithGlobalLimit adds a process-wide token bucket of rps requests per
// second. A non-positive rps disables it.
func WithGlobalLimit(rps float64) RateLimiterOption {
	return func(rl *RateLimiter) {
		if rps <= 0 {
			rl.globalLimiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		rl.globalLimiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(maxRequests int, window time.Duration, opts ...RateLimiterOption) *RateLimiter {
	if maxRequests <= 0 {
		maxRequests = DefaultRateLimitRequests
	}
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	rl := &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
		log:         make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Allow records a request for key and reports whether it is within the
// limit. Rejected requests are not recorded.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)
	if now.Sub(rl.lastPrune) > rl.window {
		rl.pruneLocked(cutoff)
		rl.lastPrune = now
	}

	times := rl.log[key]
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	times = times[i:]

	if len(times) >= rl.maxRequests {
		rl.log[key] = times
		return false
	}

	// Check global rate limit
	if rl.globalLimiter != nil && !rl.globalLimiter.AllowN(now, 1) {
		rl.store(key, times)
		return false
	}

	rl.log[key] = append(times, now)
	return true
}

func (rl *RateLimiter) store(key string, times []time.Time) {
	if len(times) == 0 {
		delete(rl.log, key)
		return
	}
	rl.log[key] = times
}

// Prune drops keys whose log holds no request inside the window.
func (rl *RateLimiter) Prune() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.pruneLocked(rl.now().Add(-rl.window))
}

func (rl *RateLimiter) pruneLocked(cutoff time.Time) int {
	removed := 0
	for key, times := range rl.log {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(rl.log, key)
			removed++
		}
	}
	return removed
}

// Keys returns the number of tracked keys.
func (rl *RateLimiter) Keys() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.log)
}
