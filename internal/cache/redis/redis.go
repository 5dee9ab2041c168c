package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/ButyrinIA/blog/internal/cache"
	goredis "github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

const defaultPrefix = "blog:"

// RedisCache хранит записи в Redis под общим префиксом,
// поэтому Clear не трогает чужие ключи базы.
type RedisCache struct {
	client *goredis.Client
	prefix string
}

var _ cache.Cache = (*RedisCache)(nil)

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

func New(ctx context.Context, opts Options) (*RedisCache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisCache{client: client, prefix: prefix}, nil
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "redis get %s", key)
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.Wrapf(c.client.Set(ctx, c.key(key), value, ttl).Err(), "redis set %s", key)
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return errors.Wrapf(c.client.Del(ctx, c.key(key)).Err(), "redis del %s", key)
}

func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return errors.Wrap(err, "redis scan")
	}
	if len(keys) == 0 {
		return nil
	}
	return errors.Wrap(c.client.Del(ctx, keys...).Err(), "redis clear")
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
