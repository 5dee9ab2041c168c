package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(d)
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	t.Run("expires after ttl", func(t *testing.T) {
		clock := &fakeClock{cur: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
		c := New().WithClock(clock.Now)

		require.NoError(t, c.Set(ctx, "index_page:1", []byte("page"), 20*time.Second))

		val, ok, err := c.Get(ctx, "index_page:1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("page"), val)

		clock.Advance(19 * time.Second)
		_, ok, _ = c.Get(ctx, "index_page:1")
		assert.True(t, ok, "Запись еще жива")

		clock.Advance(time.Second)
		_, ok, _ = c.Get(ctx, "index_page:1")
		assert.False(t, ok, "Запись должна истечь через 20 секунд")
	})

	t.Run("write sweeps expired entries", func(t *testing.T) {
		clock := &fakeClock{cur: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
		c := New().WithClock(clock.Now)

		for i := 0; i < 10000; i++ {
			require.NoError(t, c.Set(ctx, fmt.Sprintf("index_page:%d", i), []byte("page"), 20*time.Second))
		}
		assert.Equal(t, 10000, c.Len())

		clock.Advance(time.Hour)
		require.NoError(t, c.Set(ctx, "index_page:1", []byte("page"), 20*time.Second))
		assert.Equal(t, 1, c.Len(), "Просроченные записи удаляются при записи")

		require.NoError(t, c.Set(ctx, "long", []byte("v"), time.Hour))
		clock.Advance(30 * time.Second)
		require.NoError(t, c.Set(ctx, "other", []byte("v"), time.Hour))
		assert.Equal(t, 3, c.Len(), "Между проходами очистки записи не перебираются")

		clock.Advance(time.Minute)
		require.NoError(t, c.Set(ctx, "other", []byte("v"), time.Hour))
		assert.Equal(t, 2, c.Len())
	})

	t.Run("delete and clear", func(t *testing.T) {
		c := New()
		require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
		require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Minute))

		require.NoError(t, c.Delete(ctx, "a"))
		_, ok, _ := c.Get(ctx, "a")
		assert.False(t, ok)

		require.NoError(t, c.Clear(ctx))
		_, ok, _ = c.Get(ctx, "b")
		assert.False(t, ok)
	})

	t.Run("stored value is copied", func(t *testing.T) {
		c := New()
		buf := []byte("abc")
		require.NoError(t, c.Set(ctx, "k", buf, time.Minute))
		buf[0] = 'x'

		val, ok, _ := c.Get(ctx, "k")
		require.True(t, ok)
		assert.Equal(t, "abc", string(val))
	})

	t.Run("concurrent population", func(t *testing.T) {
		c := New()
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, ok, _ := c.Get(ctx, "k"); !ok {
					_ = c.Set(ctx, "k", []byte("same"), time.Minute)
				}
			}()
		}
		wg.Wait()

		val, ok, _ := c.Get(ctx, "k")
		assert.True(t, ok)
		assert.Equal(t, "same", string(val))
	})
}
