package index

import (
	"context"
	"sync"
	"sync/atomic"
)

// LoadFunc loads an index handle.
type LoadFunc func(ctx context.Context) (*Handle, error)

// Cache holds the process-wide index handle. The first successful load is
// kept until Reset; failed loads are not remembered, so a later Get retries
// after an external build. Concurrent callers wait for one load.
type Cache struct {
	mu     sync.Mutex // serializes loads
	load   LoadFunc
	handle atomic.Pointer[Handle]
}

// NewCache returns a Cache that loads with load.
func NewCache(load LoadFunc) *Cache {
	return &Cache{load: load}
}

// Get returns the cached handle, loading it on first use.
func (c *Cache) Get(ctx context.Context) (*Handle, error) {
	if h := c.handle.Load(); h != nil {
		return h, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if h := c.handle.Load(); h != nil {
		return h, nil
	}
	h, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	c.handle.Store(h)
	return h, nil
}

// Loaded returns the cached handle without loading, or nil.
func (c *Cache) Loaded() *Handle {
	return c.handle.Load()
}

// Reset drops the cached handle so the next Get reloads from disk. Call it
// after a rebuild in the same process.
func (c *Cache) Reset() {
	c.handle.Store(nil)
}
