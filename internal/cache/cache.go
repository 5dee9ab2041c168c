// Package cache описывает кэш с ограниченным временем жизни записей.
package cache

import (
	"context"
	"time"
)

type Cache interface {
	// Get возвращает значение и false, если ключ отсутствует или истек.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Clear сбрасывает все записи кэша.
	Clear(ctx context.Context) error
	Close() error
}
