package server

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(10, time.Minute, WithRateLimitClock(clock.Now))

	for i := 0; i < 10; i++ {
		assert.True(t, rl.Allow("s1"), "request %d", i+1)
		clock.Advance(time.Second)
	}
	assert.False(t, rl.Allow("s1"), "11th request within the window")
	assert.True(t, rl.Allow("s2"), "keys are independent")

	clock.Advance(61 * time.Second)
	assert.True(t, rl.Allow("s1"), "accepted after the window has passed")
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(2, 10*time.Second, WithRateLimitClock(clock.Now))

	assert.True(t, rl.Allow("k"))
	clock.Advance(6 * time.Second)
	assert.True(t, rl.Allow("k"))
	assert.False(t, rl.Allow("k"))

	// The first request leaves the window; the second is still in it.
	clock.Advance(5 * time.Second)
	assert.True(t, rl.Allow("k"))
	assert.False(t, rl.Allow("k"))
}

func TestRateLimiter_RejectedNotRecorded(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(1, 10*time.Second, WithRateLimitClock(clock.Now))

	assert.True(t, rl.Allow("k"))
	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		assert.False(t, rl.Allow("k"))
	}
	clock.Advance(5 * time.Second)
	assert.True(t, rl.Allow("k"))
}

func TestRateLimiter_Prune(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(5, time.Minute, WithRateLimitClock(clock.Now))

	rl.Allow("a")
	rl.Allow("b")
	assert.Equal(t, 2, rl.Keys())

	clock.Advance(30 * time.Second)
	rl.Allow("b")
	clock.Advance(31 * time.Second)
	assert.Equal(t, 1, rl.Prune())
	assert.Equal(t, 1, rl.Keys())

	// Allow prunes idle keys once per window.
	clock.Advance(2 * time.Minute)
	rl.Allow("c")
	assert.Equal(t, 1, rl.Keys())
}

func TestRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	assert.Equal(t, DefaultRateLimitRequests, rl.maxRequests)
	assert.Equal(t, DefaultRateLimitWindow, rl.window)
	assert.Nil(t, rl.globalLimiter)
}

func TestRateLimiter_GlobalLimit(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(100, time.Minute, WithRateLimitClock(clock.Now), WithGlobalLimit(1))

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("b"), "global bucket is empty")
	assert.Equal(t, 1, rl.Keys(), "rejected key without history is not tracked")

	clock.Advance(time.Second)
	assert.True(t, rl.Allow("b"))
}
