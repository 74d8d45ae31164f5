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

// FileConfig represents API configuration loaded from YAML.
type FileConfig struct {
	Port                string   `yaml:"port"`
	LogLevel            string   `yaml:"logLevel"`
	DatabaseURL         string   `yaml:"databaseURL"`
	RedisAddr           string   `yaml:"redisAddr"`
	RedisPassword       string   `yaml:"redisPassword"`
	RedisDB             int      `yaml:"redisDB"`
	RedisPrefix         string   `yaml:"redisPrefix"`
	MinioEndpoint       string   `yaml:"minioEndpoint"`
	MinioAccessKey      string   `yaml:"minioAccessKey"`
	MinioSecretKey      string   `yaml:"minioSecretKey"`
	MinioBucket         string   `yaml:"minioBucket"`
	MinioUseSSL         bool     `yaml:"minioUseSSL"`
	AMQPURL             string   `yaml:"amqpURL"`
	AMQPExchange        string   `yaml:"amqpExchange"`
	QueueStream         string   `yaml:"queueStream"`
	JWTPrivateKeyPath   string   `yaml:"jwtPrivateKeyPath"`
	JWTPublicKeyPath    string   `yaml:"jwtPublicKeyPath"`
	JWTKeyID            string   `yaml:"jwtKeyId"`
	JWTVerifyPublicKeys string   `yaml:"jwtVerifyPublicKeys"`
	JWTIssuer           string   `yaml:"jwtIssuer"`
	JWTAudience         string   `yaml:"jwtAudience"`
	JWTLeeway           string   `yaml:"jwtLeeway"`
	SessionTTL          string   `yaml:"sessionTTL"`
	RefreshTTL          string   `yaml:"refreshTTL"`
	VerifyTTL           string   `yaml:"verifyTTL"`
	DownloadURLTTL      string   `yaml:"downloadURLTTL"`
	ViewDedupeTTL       string   `yaml:"viewDedupeTTL"`
	PublicBaseURL       string   `yaml:"publicBaseURL"`
	CORSAllowedOrigins  []string `yaml:"corsAllowedOrigins"`
	TrustedProxies      []string `yaml:"trustedProxies"`
	MaxUploadBytes      int64    `yaml:"maxUploadBytes"`
	AllowedExtensions   []string `yaml:"allowedExtensions"`

	SignupRateLimitPerMinute     int `yaml:"signupRateLimitPerMinute"`
	LoginRateLimitPerMinute      int `yaml:"loginRateLimitPerMinute"`
	RefreshRateLimitPerMinute    int `yaml:"refreshRateLimitPerMinute"`
	ContactRateLimitPerMinute    int `yaml:"contactRateLimitPerMinute"`
	NewsletterRateLimitPerMinute int `yaml:"newsletterRateLimitPerMinute"`
	CommentRateLimitPerMinute    int `yaml:"commentRateLimitPerMinute"`
}

const defaultMaxUploadBytes = 100 << 20

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
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	util.EnvString(&cfg.Port, "PORT")
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
	util.EnvString(&cfg.AMQPURL, "AMQP_URL")
	util.EnvString(&cfg.AMQPExchange, "AMQP_EXCHANGE")
	util.EnvString(&cfg.QueueStream, "QUEUE_STREAM")
	util.EnvString(&cfg.JWTPrivateKeyPath, "JWT_PRIVATE_KEY_PATH")
	util.EnvString(&cfg.JWTPublicKeyPath, "JWT_PUBLIC_KEY_PATH")
	util.EnvString(&cfg.JWTKeyID, "JWT_KEY_ID")
	util.EnvString(&cfg.JWTVerifyPublicKeys, "JWT_VERIFY_PUBLIC_KEYS")
	util.EnvString(&cfg.JWTIssuer, "JWT_ISSUER")
	util.EnvString(&cfg.JWTAudience, "JWT_AUDIENCE")
	util.EnvString(&cfg.JWTLeeway, "JWT_LEEWAY")
	util.EnvString(&cfg.SessionTTL, "SESSION_TTL")
	util.EnvString(&cfg.RefreshTTL, "REFRESH_TTL")
	util.EnvString(&cfg.VerifyTTL, "VERIFY_TTL")
	util.EnvString(&cfg.PublicBaseURL, "PUBLIC_BASE_URL")
	util.EnvList(&cfg.CORSAllowedOrigins, "CORS_ALLOWED_ORIGINS")
	util.EnvList(&cfg.TrustedProxies, "TRUSTED_PROXIES")
	util.EnvInt64(&cfg.MaxUploadBytes, "MAX_UPLOAD_BYTES")
	util.EnvList(&cfg.AllowedExtensions, "ALLOWED_EXTENSIONS")
	util.EnvInt(&cfg.SignupRateLimitPerMinute, "SIGNUP_RATE_LIMIT_PER_MINUTE")
	util.EnvInt(&cfg.LoginRateLimitPerMinute, "LOGIN_RATE_LIMIT_PER_MINUTE")
	util.EnvInt(&cfg.RefreshRateLimitPerMinute, "REFRESH_RATE_LIMIT_PER_MINUTE")
	util.EnvInt(&cfg.ContactRateLimitPerMinute, "CONTACT_RATE_LIMIT_PER_MINUTE")
	util.EnvInt(&cfg.NewsletterRateLimitPerMinute, "NEWSLETTER_RATE_LIMIT_PER_MINUTE")
	util.EnvInt(&cfg.CommentRateLimitPerMinute, "COMMENT_RATE_LIMIT_PER_MINUTE")
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for sessions, rate limits and the asset queue")
	}
	if cfg.JWTPrivateKeyPath == "" {
		return errors.New("config: jwtPrivateKeyPath is required (set JWT_PRIVATE_KEY_PATH)")
	}
	if cfg.MinioEndpoint != "" && (cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "") {
		return errors.New("config: minioAccessKey, minioSecretKey and minioBucket are required with minioEndpoint")
	}
	if cfg.MaxUploadBytes < 0 {
		return errors.New("config: maxUploadBytes must be >= 0")
	}
	for _, ext := range cfg.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("config: allowedExtensions entry %q must start with '.'", ext)
		}
	}
	limits := []int{
		cfg.SignupRateLimitPerMinute, cfg.LoginRateLimitPerMinute, cfg.RefreshRateLimitPerMinute,
		cfg.ContactRateLimitPerMinute, cfg.NewsletterRateLimitPerMinute, cfg.CommentRateLimitPerMinute,
	}
	for _, l := range limits {
		if l < 0 {
			return errors.New("config: rate limits must be >= 0")
		}
	}
	if _, err := util.NewTrustedProxies(cfg.TrustedProxies); err != nil {
		return fmt.Errorf("config: trustedProxies: %w", err)
	}
	for name, raw := range map[string]string{
		"sessionTTL":     cfg.SessionTTL,
		"refreshTTL":     cfg.RefreshTTL,
		"verifyTTL":      cfg.VerifyTTL,
		"downloadURLTTL": cfg.DownloadURLTTL,
		"viewDedupeTTL":  cfg.ViewDedupeTTL,
		"jwtLeeway":      cfg.JWTLeeway,
	} {
		if _, err := ParseDuration(name, raw); err != nil {
			return err
		}
	}
	if _, err := ParseVerifyPublicKeys(cfg.JWTVerifyPublicKeys); err != nil {
		return err
	}
	return nil
}

// ParseDuration parses an optional duration setting; empty means zero (use
// the default).
func ParseDuration(name, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("invalid %s duration: must not be negative", name)
	}
	return dur, nil
}

// ParseVerifyPublicKeys parses "kid=path,kid2=path2" into a map.
func ParseVerifyPublicKeys(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	out := map[string]string{}
	for _, pair := range util.SplitList(raw) {
		kid, path, ok := strings.Cut(pair, "=")
		kid, path = strings.TrimSpace(kid), strings.TrimSpace(path)
		if !ok || kid == "" || path == "" {
			return nil, fmt.Errorf("invalid jwtVerifyPublicKeys entry %q", pair)
		}
		out[kid] = path
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
