package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisCache(t *testing.T) {
	if testing.Short() {
		t.Skip("пропуск теста с контейнером Redis в режиме -short")
	}

	ctx := context.Background()
	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Не удалось запустить контейнер Redis: %v", err)
	}
	defer redisC.Terminate(ctx)

	host, err := redisC.Host(ctx)
	require.NoError(t, err)
	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)
	addr := host + ":" + port.Port()

	c, err := New(ctx, Options{Addr: addr, Prefix: "test:"})
	require.NoError(t, err)
	defer c.Close()

	t.Run("set get delete", func(t *testing.T) {
		_, ok, err := c.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, c.Set(ctx, "index_page:1", []byte("page"), time.Minute))
		val, ok, err := c.Get(ctx, "index_page:1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "page", string(val))

		require.NoError(t, c.Delete(ctx, "index_page:1"))
		_, ok, _ = c.Get(ctx, "index_page:1")
		assert.False(t, ok)
	})

	t.Run("ttl", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "short", []byte("x"), time.Second))
		assert.Eventually(t, func() bool {
			_, ok, err := c.Get(ctx, "short")
			return err == nil && !ok
		}, 5*time.Second, 100*time.Millisecond)
	})

	t.Run("clear keeps foreign keys", func(t *testing.T) {
		raw := goredis.NewClient(&goredis.Options{Addr: addr})
		defer raw.Close()
		require.NoError(t, raw.Set(ctx, "foreign", "1", 0).Err())

		require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
		require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Minute))
		require.NoError(t, c.Clear(ctx))

		_, ok, _ := c.Get(ctx, "a")
		assert.False(t, ok)
		_, ok, _ = c.Get(ctx, "b")
		assert.False(t, ok)

		val, err := raw.Get(ctx, "foreign").Result()
		require.NoError(t, err)
		assert.Equal(t, "1", val)
	})
}
