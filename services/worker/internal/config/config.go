package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"portfoliohub/internal/util"
)

// FileConfig represents worker configuration loaded from YAML.
type FileConfig struct {
	LogLevel          string `yaml:"logLevel"`
	DatabaseURL       string `yaml:"databaseURL"`
	RedisAddr         string `yaml:"redisAddr"`
	RedisPassword     string `yaml:"redisPassword"`
	RedisDB           int    `yaml:"redisDB"`
	RedisPrefix       string `yaml:"redisPrefix"`
	MinioEndpoint     string `yaml:"minioEndpoint"`
	MinioAccessKey    string `yaml:"minioAccessKey"`
	MinioSecretKey    string `yaml:"minioSecretKey"`
	MinioBucket       string `yaml:"minioBucket"`
	MinioUseSSL       bool   `yaml:"minioUseSSL"`
	QueueStream       string `yaml:"queueStream"`
	QueueGroup        string `yaml:"queueGroup"`
	QueueConcurrency  int    `yaml:"queueConcurrency"`
	QueueMaxRetries   int    `yaml:"queueMaxRetries"`
	QueueRetryDelay   string `yaml:"queueRetryDelay"`
	ViewFlushInterval string `yaml:"viewFlushInterval"`
	MaxProbeBytes     int64  `yaml:"maxProbeBytes"`
}

const (
	defaultConcurrency   = 2
	defaultMaxRetries    = 3
	defaultFlushInterval = time.Minute
	defaultMaxProbeBytes = 100 << 20
)

// Load reads config from path (CONFIG_PATH or config.yaml when empty),
// loads .env, and applies environment overrides.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = util.ConfigPath()
	}
	if err := util.LoadDotEnv(); err != nil {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	if cfg.QueueConcurrency == 0 {
		cfg.QueueConcurrency = defaultConcurrency
	}
	if cfg.QueueMaxRetries == 0 {
		cfg.QueueMaxRetries = defaultMaxRetries
	}
	if cfg.MaxProbeBytes == 0 {
		cfg.MaxProbeBytes = defaultMaxProbeBytes
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	util.EnvString(&cfg.LogLevel, "LOG_LEVEL")
	util.EnvString(&cfg.DatabaseURL, "DATABASE_URL")
	util.EnvString(&cfg.RedisAddr, "REDIS_ADDR")
	util.EnvString(&cfg.RedisPassword, "REDIS_PASSWORD")
	util.EnvInt(&cfg.RedisDB, "REDIS_DB")
	util.EnvString(&cfg.RedisPrefix, "REDIS_PREFIX")
	util.EnvString(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	util.EnvString(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	util.EnvString(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	util.EnvString(&cfg.MinioBucket, "MINIO_BUCKET")
	util.EnvBool(&cfg.MinioUseSSL, "MINIO_USE_SSL")
	util.EnvString(&cfg.QueueStream, "QUEUE_STREAM")
	util.EnvString(&cfg.QueueGroup, "QUEUE_GROUP")
	util.EnvInt(&cfg.QueueConcurrency, "QUEUE_CONCURRENCY")
	util.EnvInt(&cfg.QueueMaxRetries, "QUEUE_MAX_RETRIES")
	util.EnvString(&cfg.QueueRetryDelay, "QUEUE_RETRY_DELAY")
	util.EnvString(&cfg.ViewFlushInterval, "VIEW_FLUSH_INTERVAL")
	util.EnvInt64(&cfg.MaxProbeBytes, "MAX_PROBE_BYTES")
}

func validateConfig(cfg FileConfig) error {
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for the asset queue and view counts")
	}
	if cfg.MinioEndpoint == "" || cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "" {
		return errors.New("config: minioEndpoint, minioAccessKey, minioSecretKey and minioBucket are required")
	}
	if cfg.QueueConcurrency < 0 || cfg.QueueMaxRetries < 0 {
		return errors.New("config: queueConcurrency and queueMaxRetries must be >= 0")
	}
	if cfg.MaxProbeBytes < 0 {
		return errors.New("config: maxProbeBytes must be >= 0")
	}
	if _, err := RetryDelay(cfg); err != nil {
		return err
	}
	if _, err := FlushInterval(cfg); err != nil {
		return err
	}
	return nil
}

// RetryDelay returns the pause before a failed job is retried; zero keeps the
// queue default.
func RetryDelay(cfg FileConfig) (time.Duration, error) {
	return parseDuration("queueRetryDelay", cfg.QueueRetryDelay, 0)
}

// FlushInterval returns how often buffered view counts are written.
func FlushInterval(cfg FileConfig) (time.Duration, error) {
	return parseDuration("viewFlushInterval", cfg.ViewFlushInterval, defaultFlushInterval)
}

func parseDuration(name, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", name, err)
	}
	if dur <= 0 {
		return 0, fmt.Errorf("config: %s must be positive", name)
	}
	return dur, nil
}
