package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ButyrinIA/blog/internal/cache"
)

type entry struct {
	value   []byte
	expires time.Time
}

const sweepInterval = time.Minute

// MemoryCache - кэш процесса. Просроченные записи удаляются при чтении
// и не реже раза в sweepInterval при записи.
type MemoryCache struct {
	entries   map[string]entry
	now       func() time.Time
	nextSweep time.Time
	mu        sync.RWMutex
}

var _ cache.Cache = (*MemoryCache)(nil)

func New() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expires) {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur.expires.Equal(e.expires) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !now.Before(c.nextSweep) {
		c.sweepLocked(now)
	}
	c.entries[key] = entry{
		value:   append([]byte(nil), value...),
		expires: now.Add(ttl),
	}
	return nil
}

func (c *MemoryCache) sweepLocked(now time.Time) {
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
	c.nextSweep = now.Add(sweepInterval)
}

// Len - число хранимых записей, включая еще не удаленные просроченные.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]entry)
	return nil
}

func (c *MemoryCache) Close() error {
	return nil
}
