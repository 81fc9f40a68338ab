package cache

import (
	"context"
	"time"
)

// Cache is the engine's transient key-value port: storefront tokens,
// resolved handles, anything previously stuffed into an ambient option
// bag. Implementations are safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Clear(ctx context.Context, key string) error
}
