package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	t   time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advanceTo(seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(seconds) * time.Second)
}

func TestSlidingWindow(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(Limit{Requests: 3, Period: 60 * time.Second}).WithClock(clock.now)

	// t=0, 20, 40: all allowed.
	for i, sec := range []int{0, 20, 40} {
		clock.advanceTo(sec)
		d := l.Check("/items", "ip:1.2.3.4")
		require.True(t, d.Allowed, "request %d at t=%d", i, sec)
		assert.Equal(t, 3, d.Limit)
		assert.Equal(t, 2-i, d.Remaining)
	}

	// t=50: denied; the t=0 request leaves the window at t=60.
	clock.advanceTo(50)
	d := l.Check("/items", "ip:1.2.3.4")
	require.False(t, d.Allowed)
	assert.Equal(t, 10*time.Second, d.RetryAfter, "block derives from the oldest timestamp, not the request time")
	assert.Equal(t, clock.now().Add(10*time.Second), d.ResetAt)

	// t=55: still blocked, retry shrinks.
	clock.advanceTo(55)
	d = l.Check("/items", "ip:1.2.3.4")
	require.False(t, d.Allowed)
	assert.Equal(t, 5*time.Second, d.RetryAfter)

	// t=61: the window slid; allowed again.
	clock.advanceTo(61)
	d = l.Check("/items", "ip:1.2.3.4")
	assert.True(t, d.Allowed)
}

func TestWindowsAreIndependentPerKey(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(Limit{Requests: 1, Period: 60 * time.Second}).WithClock(clock.now)

	require.True(t, l.Check("/items", "ip:1.1.1.1").Allowed)
	assert.False(t, l.Check("/items", "ip:1.1.1.1").Allowed)

	// Different identifier, same endpoint.
	assert.True(t, l.Check("/items", "ip:2.2.2.2").Allowed)
	// Same identifier, different endpoint.
	assert.True(t, l.Check("/health", "ip:1.1.1.1").Allowed)
}

func TestEndpointOverride(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(Limit{Requests: 100, Period: time.Minute}).WithClock(clock.now)
	l.Override("/items/scrape", Limit{Requests: 1, Period: time.Minute})

	require.True(t, l.Check("/items/scrape", "ip:1.1.1.1").Allowed)
	d := l.Check("/items/scrape", "ip:1.1.1.1")
	assert.False(t, d.Allowed)
	assert.Equal(t, 1, d.Limit)

	// The default limit still applies elsewhere.
	d = l.Check("/items", "ip:1.1.1.1")
	assert.True(t, d.Allowed)
	assert.Equal(t, 100, d.Limit)
}

func TestDenialNeverMutatesWindow(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(Limit{Requests: 2, Period: 60 * time.Second}).WithClock(clock.now)

	l.Check("/items", "ip:1.1.1.1")
	clock.advanceTo(10)
	l.Check("/items", "ip:1.1.1.1")

	// Hammer the saturated window; denials must not extend the block.
	for sec := 20; sec < 60; sec += 5 {
		clock.advanceTo(sec)
		d := l.Check("/items", "ip:1.1.1.1")
		require.False(t, d.Allowed)
		assert.Equal(t, time.Duration(60-sec)*time.Second, d.RetryAfter)
	}

	clock.advanceTo(61)
	assert.True(t, l.Check("/items", "ip:1.1.1.1").Allowed)
}

func TestConcurrentChecksNeverOveradmit(t *testing.T) {
	l := NewLimiter(Limit{Requests: 10, Period: time.Minute})

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check("/items", "ip:9.9.9.9").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, allowed, "the per-key lock must make read-count-write atomic")
}

func TestPurgeDropsIdleWindows(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(Limit{Requests: 3, Period: 60 * time.Second}).WithClock(clock.now)

	l.Check("/items", "ip:1.1.1.1")
	l.Check("/items", "ip:2.2.2.2")
	require.Equal(t, 2, l.Size())

	clock.advanceTo(121)
	l.Check("/items", "ip:2.2.2.2")
	l.Purge()

	assert.Equal(t, 1, l.Size(), "only the idle window expires")
}
