package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 20*time.Second, cfg.Cache.IndexTTL)
	assert.Equal(t, 10, cfg.Feed.PostsPerPage)
	assert.Equal(t, "/auth/login/", cfg.Auth.LoginURL)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9000"
storage: postgres
postgres:
  dsn: postgres://localhost/blog
  max_conns: 4
cache:
  backend: redis
  index_ttl: 5s
feed:
  posts_per_page: 3
auth:
  token_ttl: 1h
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage)
	assert.Equal(t, int32(4), cfg.Postgres.MaxConns)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 5*time.Second, cfg.Cache.IndexTTL)
	assert.Equal(t, 3, cfg.Feed.PostsPerPage)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "local", cfg.Media.Backend, "Незаданные ключи берутся по умолчанию")
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: \"9000\"\n")
	t.Setenv("BLOG_PORT", "7000")
	t.Setenv("BLOG_STORAGE", "postgres")
	t.Setenv("BLOG_POSTGRES_DSN", "postgres://env/blog")
	t.Setenv("BLOG_JWT_SECRET", "secret")
	t.Setenv("BLOG_REDIS_DB", "2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage)
	assert.Equal(t, "postgres://env/blog", cfg.Postgres.DSN)
	assert.Equal(t, "secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 2, cfg.Redis.DB)

	t.Setenv("BLOG_REDIS_DB", "two")
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"postgres without dsn", func(c *Config) { c.Storage = "postgres" }, "postgres.dsn is required for postgres storage"},
		{"unknown storage", func(c *Config) { c.Storage = "sqlite" }, `unknown storage "sqlite"`},
		{"unknown cache", func(c *Config) { c.Cache.Backend = "memcached" }, `unknown cache backend "memcached"`},
		{"s3 without bucket", func(c *Config) { c.Media.Backend = "s3" }, "media.s3_bucket is required for s3 media"},
		{"zero page size", func(c *Config) { c.Feed.PostsPerPage = 0 }, "feed.posts_per_page must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.EqualError(t, cfg.Validate(), tt.errMsg)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestLoadBadYAML(t *testing.T) {
	path := writeConfig(t, "server: [")
	_, err := Load(path)
	assert.Error(t, err)
}
