package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/ButyrinIA/blog/internal/auth"
	"github.com/ButyrinIA/blog/internal/cache"
	cachememory "github.com/ButyrinIA/blog/internal/cache/memory"
	"github.com/ButyrinIA/blog/internal/cache/redis"
	"github.com/ButyrinIA/blog/internal/config"
	"github.com/ButyrinIA/blog/internal/feed"
	"github.com/ButyrinIA/blog/internal/live"
	"github.com/ButyrinIA/blog/internal/media"
	"github.com/ButyrinIA/blog/internal/server"
	"github.com/ButyrinIA/blog/internal/service"
	"github.com/ButyrinIA/blog/internal/storage"
	"github.com/ButyrinIA/blog/internal/storage/memory"
	"github.com/ButyrinIA/blog/internal/storage/postgres"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	storageType := flag.String("storage", "", "тип хранилища: memory или postgres")
	flag.Parse()

	log := logrus.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Не удалось загрузить конфигурацию: %v", err)
	}
	if *storageType != "" {
		cfg.Storage = *storageType
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Некорректная конфигурация: %v", err)
		}
	}
	setupLogger(log, cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store storage.Storage
	switch cfg.Storage {
	case "postgres":
		log.Info("Инициализация хранилища PostgreSQL")
		store, err = postgres.New(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
		if err != nil {
			log.Fatalf("Не удалось инициализировать PostgreSQL: %v", err)
		}
	default:
		log.Info("Инициализация хранилища Memory")
		store = memory.New()
	}
	defer store.Close()

	var c cache.Cache
	switch cfg.Cache.Backend {
	case "redis":
		log.WithField("addr", cfg.Redis.Addr).Info("Подключение к Redis")
		c, err = redis.New(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Fatalf("Не удалось подключиться к Redis: %v", err)
		}
	default:
		c = cachememory.New()
	}
	defer c.Close()

	var mediaStore media.Store
	switch cfg.Media.Backend {
	case "s3":
		mediaStore, err = media.NewS3Store(cfg.Media.S3Bucket, cfg.Media.S3Region, cfg.Media.BaseURL)
	default:
		mediaStore, err = media.NewLocalStore(cfg.Media.Root, cfg.Media.BaseURL)
	}
	if err != nil {
		log.Fatalf("Не удалось инициализировать хранилище изображений: %v", err)
	}

	composer := feed.New(store, c, feed.Options{
		PostsPerPage: cfg.Feed.PostsPerPage,
		IndexTTL:     cfg.Cache.IndexTTL,
	}, log)
	svc := service.New(store, composer, mediaStore, live.NewHub(), log)
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	if cfg.Auth.JWTSecret == "" {
		log.Warn("auth.jwt_secret не задан, токены подписываются пустым ключом")
	}

	gin.SetMode(gin.ReleaseMode)
	srv := server.New(cfg, svc, tokens, store, log)
	log.Info("Запуск сервера")
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("Не удалось запустить сервер: %v", err)
	}
}

func setupLogger(log *logrus.Logger, cfg config.LogConfig) {
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		log.WithError(err).Warn("Неизвестный уровень логирования, используется info")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
}
