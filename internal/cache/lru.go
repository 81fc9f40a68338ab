package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type lruEntry struct {
	value     string
	expiresAt time.Time
}

// LRUCache is the in-process fallback implementation, for deployments
// without Redis and for tests.
type LRUCache struct {
	inner *lru.Cache[string, lruEntry]
	now   func() time.Time
}

func NewLRUCache(size int) (*LRUCache, error) {
	inner, err := lru.New[string, lruEntry](size)
	if err != nil {
		return nil, err
	}
	return &LRUCache{inner: inner, now: time.Now}, nil
}

func (c *LRUCache) Get(_ context.Context, key string) (string, bool, error) {
	entry, ok := c.inner.Get(key)
	if !ok {
		return "", false, nil
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.inner.Remove(key)
		return "", false, nil
	}
	return entry.value, true, nil
}

func (c *LRUCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	entry := lruEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.inner.Add(key, entry)
	return nil
}

func (c *LRUCache) Clear(_ context.Context, key string) error {
	c.inner.Remove(key)
	return nil
}
