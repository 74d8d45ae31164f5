package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"portfoliohub/internal/util"
	"portfoliohub/internal/viewcount"
	"portfoliohub/pkg/queue"
	"portfoliohub/pkg/storage"
	"portfoliohub/pkg/store"
	"portfoliohub/services/worker/internal/app"
	"portfoliohub/services/worker/internal/config"
)

func main() {
	cfg, err := config.Load(util.ConfigPath())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)
	retryDelay, err := config.RetryDelay(cfg)
	if err != nil {
		log.Fatalf("failed to parse retry delay: %v", err)
	}
	flushInterval, err := config.FlushInterval(cfg)
	if err != nil {
		log.Fatalf("failed to parse flush interval: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// the API owns the schema
	dataStore, err := store.NewGormStore(cfg.DatabaseURL, store.WithoutMigrate())
	if err != nil {
		log.Fatalf("failed to init postgres store: %v", err)
	}
	defer func() { _ = dataStore.Close() }()
	objects, err := storage.NewMinioStore(ctx, storage.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		log.Fatalf("failed to init object storage: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = redisClient.Close() }()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	prefix := cfg.RedisPrefix
	if prefix == "" {
		prefix = "portfoliohub"
	}

	jobs, err := queue.NewRedisJobQueue(redisClient, queue.Config{
		Stream:     cfg.QueueStream,
		Group:      cfg.QueueGroup,
		MaxRetries: cfg.QueueMaxRetries,
		RetryDelay: retryDelay,
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("failed to init asset queue: %v", err)
	}
	views, err := viewcount.New(redisClient, prefix+":views", 0)
	if err != nil {
		log.Fatalf("failed to init view counter: %v", err)
	}

	worker, err := app.New(app.Config{
		Store:         dataStore,
		Objects:       objects,
		Jobs:          jobs,
		Views:         views,
		Concurrency:   cfg.QueueConcurrency,
		MaxRetries:    cfg.QueueMaxRetries,
		FlushInterval: flushInterval,
		MaxProbeBytes: cfg.MaxProbeBytes,
		Logger:        logger,
	})
	if err != nil {
		log.Fatalf("failed to init worker: %v", err)
	}

	logger.Info("worker started", "concurrency", cfg.QueueConcurrency, "flush_interval", flushInterval.String())
	start := time.Now()
	if err := worker.Run(ctx); err != nil {
		logger.Error("worker error", "err", err)
		os.Exit(1)
	}
	logger.Info("worker stopped", "uptime", time.Since(start).Round(time.Second).String())
}
