package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCache(t *testing.T) {
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		c, err := NewLRUCache(8)
		require.NoError(t, err)

		require.NoError(t, c.Set(ctx, "token", "abc123", 0))

		val, ok, err := c.Get(ctx, "token")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "abc123", val)
	})

	t.Run("miss", func(t *testing.T) {
		c, err := NewLRUCache(8)
		require.NoError(t, err)

		_, ok, err := c.Get(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ttl expiry", func(t *testing.T) {
		c, err := NewLRUCache(8)
		require.NoError(t, err)

		now := time.Now()
		c.now = func() time.Time { return now }

		require.NoError(t, c.Set(ctx, "token", "abc123", time.Minute))

		_, ok, err := c.Get(ctx, "token")
		require.NoError(t, err)
		require.True(t, ok)

		now = now.Add(2 * time.Minute)
		_, ok, err = c.Get(ctx, "token")
		require.NoError(t, err)
		assert.False(t, ok, "expired entry must read as a miss")
	})

	t.Run("clear", func(t *testing.T) {
		c, err := NewLRUCache(8)
		require.NoError(t, err)

		require.NoError(t, c.Set(ctx, "token", "abc123", 0))
		require.NoError(t, c.Clear(ctx, "token"))

		_, ok, err := c.Get(ctx, "token")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("evicts oldest past capacity", func(t *testing.T) {
		c, err := NewLRUCache(2)
		require.NoError(t, err)

		require.NoError(t, c.Set(ctx, "a", "1", 0))
		require.NoError(t, c.Set(ctx, "b", "2", 0))
		require.NoError(t, c.Set(ctx, "c", "3", 0))

		_, ok, err := c.Get(ctx, "a")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
