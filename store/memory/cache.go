// Package memory provides an in-process personnel.Cache.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/warp/personnel-engine/generic"
	"github.com/warp/personnel-engine/personnel"
)

// =============================================================================
// MEMORY CACHE - In-memory implementation (for testing/dev)
// =============================================================================

type Cache struct {
	mu      sync.RWMutex
	clock   generic.Clock
	entries map[string]entry
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

var _ personnel.Cache = (*Cache)(nil)

// NewCache creates an empty cache whose expiry is measured on clock.
func NewCache(clock generic.Clock) *Cache {
	return &Cache{
		clock:   clock,
		entries: make(map[string]entry),
	}
}

// Set stores a copy of value. A non-positive ttl never expires.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = c.clock.Now().Add(ttl)
	}
	c.entries[key] = e
	return nil
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.expired(e) {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (c *Cache) expired(e entry) bool {
	return !e.expiresAt.IsZero() && !c.clock.Now().Before(e.expiresAt)
}
