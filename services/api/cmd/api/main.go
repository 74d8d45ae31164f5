package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"portfoliohub/internal/util"
	"portfoliohub/pkg/events"
	"portfoliohub/pkg/queue"
	"portfoliohub/pkg/storage"
	"portfoliohub/services/api/internal/app"
	"portfoliohub/services/api/internal/config"
	"portfoliohub/services/api/internal/security"
	"portfoliohub/services/api/internal/server"
)

func main() {
	cfg, err := config.Load(util.ConfigPath())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	var sessionTTL, refreshTTL, verifyTTL, downloadTTL, dedupeTTL, jwtLeeway time.Duration
	for name, d := range map[string]struct {
		raw string
		dst *time.Duration
	}{
		"sessionTTL":     {cfg.SessionTTL, &sessionTTL},
		"refreshTTL":     {cfg.RefreshTTL, &refreshTTL},
		"verifyTTL":      {cfg.VerifyTTL, &verifyTTL},
		"downloadURLTTL": {cfg.DownloadURLTTL, &downloadTTL},
		"viewDedupeTTL":  {cfg.ViewDedupeTTL, &dedupeTTL},
		"jwtLeeway":      {cfg.JWTLeeway, &jwtLeeway},
	} {
		if *d.dst, err = config.ParseDuration(name, d.raw); err != nil {
			log.Fatalf("failed to parse %s: %v", name, err)
		}
	}
	verifyKeys, err := config.ParseVerifyPublicKeys(cfg.JWTVerifyPublicKeys)
	if err != nil {
		log.Fatalf("failed to parse jwt verify public keys: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = redisClient.Close() }()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}

	var objects storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		minioStore, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("failed to init object storage: %v", err)
		}
		objects = minioStore
	} else {
		logger.Warn("object storage not configured; uploads are disabled")
	}

	var publisher events.Publisher = events.NewLogPublisher(logger)
	if cfg.AMQPURL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("failed to init event publisher: %v", err)
		}
		publisher = amqpPublisher
	}
	defer func() { _ = publisher.Close() }()

	jobs, err := queue.NewRedisJobQueue(redisClient, queue.Config{Stream: cfg.QueueStream})
	if err != nil {
		log.Fatalf("failed to init asset queue: %v", err)
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:         cfg.DatabaseURL,
		Redis:               redisClient,
		RedisPrefix:         cfg.RedisPrefix,
		SessionTTL:          sessionTTL,
		RefreshTTL:          refreshTTL,
		VerifyTTL:           verifyTTL,
		DownloadURLTTL:      downloadTTL,
		ViewDedupeTTL:       dedupeTTL,
		JWTPrivateKeyPath:   cfg.JWTPrivateKeyPath,
		JWTPublicKeyPath:    cfg.JWTPublicKeyPath,
		JWTKeyID:            cfg.JWTKeyID,
		JWTVerifyPublicKeys: verifyKeys,
		JWTIssuer:           cfg.JWTIssuer,
		JWTAudience:         cfg.JWTAudience,
		JWTLeeway:           jwtLeeway,
		PublicBaseURL:       cfg.PublicBaseURL,
		Objects:             objects,
		Jobs:                jobs,
		Events:              publisher,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                          appCore,
		Redis:                        redisClient,
		RedisPrefix:                  cfg.RedisPrefix,
		Alerter:                      security.NewAuditAlerter(redisClient, cfg.RedisPrefix+":alerts"),
		SignupRateLimitPerMinute:     cfg.SignupRateLimitPerMinute,
		LoginRateLimitPerMinute:      cfg.LoginRateLimitPerMinute,
		RefreshRateLimitPerMinute:    cfg.RefreshRateLimitPerMinute,
		ContactRateLimitPerMinute:    cfg.ContactRateLimitPerMinute,
		NewsletterRateLimitPerMinute: cfg.NewsletterRateLimitPerMinute,
		CommentRateLimitPerMinute:    cfg.CommentRateLimitPerMinute,
		MaxUploadBytes:               cfg.MaxUploadBytes,
		AllowedExtensions:            cfg.AllowedExtensions,
		CORSAllowedOrigins:           cfg.CORSAllowedOrigins,
		TrustedProxies:               cfg.TrustedProxies,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
	}()

	logger.Info("api server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
	logger.Info("api server stopped")
}
