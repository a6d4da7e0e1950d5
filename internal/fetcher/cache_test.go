package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_TTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

	c := NewMemoryCache(time.Minute, 10)
	c.now = func() time.Time { return now }

	c.Set(ctx, "https://qu.edu/a", "alpha")
	got, ok := c.Get(ctx, "https://qu.edu/a")
	require.True(t, ok)
	assert.Equal(t, "alpha", got)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get(ctx, "https://qu.edu/a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry is dropped on read")
}

func TestMemoryCache_Eviction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

	c := NewMemoryCache(time.Minute, 2)
	c.now = func() time.Time { return now }

	c.Set(ctx, "a", "1")
	now = now.Add(time.Second)
	c.Set(ctx, "b", "2")
	now = now.Add(time.Second)
	c.Set(ctx, "c", "3")

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(ctx, "a")
	assert.False(t, ok, "entry closest to expiry is evicted")
	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)

	// Overwriting an existing key never evicts.
	c.Set(ctx, "c", "33")
	assert.Equal(t, 2, c.Len())
}

func TestMemoryCache_DefaultSize(t *testing.T) {
	t.Parallel()
	c := NewMemoryCache(time.Minute, 0)
	assert.Equal(t, defaultMemoryEntries, c.maxEntries)
}

func TestNewRedisCache_BadURL(t *testing.T) {
	t.Parallel()
	_, err := NewRedisCache(context.Background(), "not a redis url", time.Minute)
	assert.ErrorContains(t, err, "parse redis url")
}
