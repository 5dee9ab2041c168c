// Package config загружает настройки сервера из YAML, .env и переменных окружения.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  string         `yaml:"storage"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Cache    CacheConfig    `yaml:"cache"`
	Feed     FeedConfig     `yaml:"feed"`
	Media    MediaConfig    `yaml:"media"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type CacheConfig struct {
	Backend  string        `yaml:"backend"`
	IndexTTL time.Duration `yaml:"index_ttl"`
}

type FeedConfig struct {
	PostsPerPage int `yaml:"posts_per_page"`
}

type MediaConfig struct {
	Backend  string `yaml:"backend"`
	Root     string `yaml:"root"`
	BaseURL  string `yaml:"base_url"`
	S3Bucket string `yaml:"s3_bucket"`
	S3Region string `yaml:"s3_region"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	LoginURL  string        `yaml:"login_url"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default возвращает конфигурацию, с которой сервер стартует без файла.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080"},
		Storage:  "memory",
		Postgres: PostgresConfig{MaxConns: 10},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Cache:    CacheConfig{Backend: "memory", IndexTTL: 20 * time.Second},
		Feed:     FeedConfig{PostsPerPage: 10},
		Media:    MediaConfig{Backend: "local", Root: "media", BaseURL: "/media"},
		Auth:     AuthConfig{TokenTTL: 24 * time.Hour, LoginURL: "/auth/login/"},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load читает .env и файл path поверх значений по умолчанию, затем
// применяет переменные окружения BLOG_*. Отсутствующие файлы не ошибка.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "load .env")
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, errors.Wrapf(err, "read config %s", path)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrapf(err, "parse config %s", path)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Port, "BLOG_PORT")
	setString(&c.Postgres.DSN, "BLOG_POSTGRES_DSN")
	setString(&c.Redis.Addr, "BLOG_REDIS_ADDR")
	setString(&c.Auth.JWTSecret, "BLOG_JWT_SECRET")
	setString(&c.Storage, "BLOG_STORAGE")
	setString(&c.Cache.Backend, "BLOG_CACHE")
	if v, ok := os.LookupEnv("BLOG_REDIS_DB"); ok {
		db, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "BLOG_REDIS_DB")
		}
		c.Redis.DB = db
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func (c *Config) Validate() error {
	switch c.Storage {
	case "memory":
	case "postgres":
		if c.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for postgres storage")
		}
	default:
		return errors.Errorf("unknown storage %q", c.Storage)
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return errors.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	switch c.Media.Backend {
	case "local":
	case "s3":
		if c.Media.S3Bucket == "" {
			return errors.New("media.s3_bucket is required for s3 media")
		}
	default:
		return errors.Errorf("unknown media backend %q", c.Media.Backend)
	}
	if c.Feed.PostsPerPage <= 0 {
		return errors.New("feed.posts_per_page must be positive")
	}
	return nil
}
