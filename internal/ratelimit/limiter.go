package ratelimit

import (
	"sync"
	"time"
)

// Limit is one endpoint's admission budget.
type Limit struct {
	Requests int
	Period   time.Duration
}

// Decision is the result of one admission check. A denied request is
// always recoverable by waiting RetryAfter; denial never corrupts the
// limiter's own state.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// window is the mutable state for one (identifier, endpoint) pair. Its
// own mutex serializes concurrent requests from the same identifier so
// two requests can never both read "count = limit-1" and both pass.
type window struct {
	mu           sync.Mutex
	timestamps   []time.Time
	blockedUntil time.Time
	lastSeen     time.Time
}

// Limiter admits requests through per-key sliding windows. Windows are
// created lazily on first request and purged once idle.
type Limiter struct {
	defaultLimit Limit
	overrides    map[string]Limit

	mu      sync.Mutex
	windows map[string]*window

	now func() time.Time
}

func NewLimiter(defaultLimit Limit) *Limiter {
	return &Limiter{
		defaultLimit: defaultLimit,
		overrides:    make(map[string]Limit),
		windows:      make(map[string]*window),
		now:          time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Override sets an endpoint-specific limit.
func (l *Limiter) Override(endpoint string, limit Limit) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides[endpoint] = limit
}

func (l *Limiter) limitFor(endpoint string) Limit {
	if lim, ok := l.overrides[endpoint]; ok {
		return lim
	}
	return l.defaultLimit
}

// Check runs one admission decision for (identifier, endpoint).
//
// The window slides: only timestamps within the trailing period count,
// so there is no fixed-bucket boundary burst. When the window is
// saturated the block expires at oldest_in_window + period — derived
// from the oldest timestamp, not the request time — which is exactly
// when the oldest request leaves the window.
func (l *Limiter) Check(endpoint, identifier string) Decision {
	l.mu.Lock()
	key := identifier + "|" + endpoint
	w, ok := l.windows[key]
	if !ok {
		w = &window{}
		l.windows[key] = w
	}
	limit := l.limitFor(endpoint)
	l.mu.Unlock()

	now := l.now()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastSeen = now

	if !w.blockedUntil.IsZero() {
		if now.Before(w.blockedUntil) {
			return Decision{
				Allowed:    false,
				Limit:      limit.Requests,
				Remaining:  0,
				ResetAt:    w.blockedUntil,
				RetryAfter: w.blockedUntil.Sub(now),
			}
		}
		w.blockedUntil = time.Time{}
	}

	// Drop timestamps older than the trailing period.
	cutoff := now.Add(-limit.Period)
	kept := w.timestamps[:0]
	for _, ts := range w.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.timestamps = kept

	if len(w.timestamps) >= limit.Requests {
		w.blockedUntil = w.timestamps[0].Add(limit.Period)
		return Decision{
			Allowed:    false,
			Limit:      limit.Requests,
			Remaining:  0,
			ResetAt:    w.blockedUntil,
			RetryAfter: w.blockedUntil.Sub(now),
		}
	}

	w.timestamps = append(w.timestamps, now)
	return Decision{
		Allowed:   true,
		Limit:     limit.Requests,
		Remaining: limit.Requests - len(w.timestamps),
		ResetAt:   w.timestamps[0].Add(limit.Period),
	}
}

// Purge drops windows idle for longer than their period, plus any whose
// block has lapsed. Size returns the live window count.
func (l *Limiter) Purge() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.windows {
		w.mu.Lock()
		idle := now.Sub(w.lastSeen) > l.defaultLimit.Period*2
		blocked := !w.blockedUntil.IsZero() && now.Before(w.blockedUntil)
		w.mu.Unlock()
		if idle && !blocked {
			delete(l.windows, key)
		}
	}
}

func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// StartJanitor purges idle windows until the stop channel closes.
func (l *Limiter) StartJanitor(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.Purge()
		}
	}
}
