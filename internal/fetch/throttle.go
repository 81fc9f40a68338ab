package fetch

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Throttle spaces out requests to the same host with a jittered delay,
// so batch scrapes stay polite toward the target site.
type Throttle struct {
	minDelay time.Duration
	maxDelay time.Duration
	jitter   bool

	mu   sync.Mutex
	last map[string]time.Time
}

func NewThrottle(minDelay, maxDelay time.Duration) *Throttle {
	return &Throttle{
		minDelay: minDelay,
		maxDelay: maxDelay,
		jitter:   true,
		last:     make(map[string]time.Time),
	}
}

// Wait blocks until the host's slot comes up or the context is done.
// Concurrent callers for the same host are queued one delay apart.
func (t *Throttle) Wait(ctx context.Context, host string) error {
	t.mu.Lock()
	now := time.Now()
	slot := t.last[host].Add(t.calculateDelay())
	if slot.Before(now) {
		slot = now
	}
	t.last[host] = slot
	t.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

func (t *Throttle) calculateDelay() time.Duration {
	if !t.jitter || t.minDelay >= t.maxDelay {
		return t.minDelay
	}
	delta := t.maxDelay - t.minDelay
	return t.minDelay + time.Duration(rand.Int63n(int64(delta)))
}
