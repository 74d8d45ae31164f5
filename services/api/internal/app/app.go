package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"portfoliohub/internal/util"
	"portfoliohub/internal/viewcount"
	"portfoliohub/pkg/events"
	"portfoliohub/pkg/queue"
	"portfoliohub/pkg/storage"
	"portfoliohub/pkg/store"
)

// Config holds runtime configuration for the core application. Concrete
// dependencies may be injected; missing ones are built from the connection
// settings.
type Config struct {
	DatabaseURL         string
	Redis               *redis.Client
	RedisPrefix         string
	SessionTTL          time.Duration
	RefreshTTL          time.Duration
	VerifyTTL           time.Duration
	DownloadURLTTL      time.Duration
	ViewDedupeTTL       time.Duration
	JWTPrivateKeyPath   string
	JWTPublicKeyPath    string
	JWTKeyID            string
	JWTVerifyPublicKeys map[string]string
	JWTIssuer           string
	JWTAudience         string
	JWTLeeway           time.Duration
	// PublicBaseURL prefixes links placed in outgoing events.
	PublicBaseURL       string

	Store         store.Store
	Sessions      store.SessionStore
	RefreshTokens store.RefreshTokenStore
	Objects       storage.ObjectStore
	Jobs          queue.Enqueuer
	Events        events.Publisher
	Views         ViewRecorder
}

// ViewRecorder buffers project views; *viewcount.Counter implements it.
type ViewRecorder interface {
	Record(ctx context.Context, projectID, viewer string) (bool, error)
}

// App is the core application service wiring together storage and domain rules.
type App struct {
	store          store.Store
	sessions       store.SessionStore
	refreshTokens  store.RefreshTokenStore
	objects        storage.ObjectStore
	jobs           queue.Enqueuer
	events         events.Publisher
	views          ViewRecorder
	refreshTTL     time.Duration
	verifyTTL      time.Duration
	downloadURLTTL time.Duration
	publicBaseURL  string
	now            func() time.Time
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.VerifyTTL <= 0 {
		cfg.VerifyTTL = 24 * time.Hour
	}
	if cfg.DownloadURLTTL <= 0 {
		cfg.DownloadURLTTL = 15 * time.Minute
	}
	if cfg.ViewDedupeTTL <= 0 {
		cfg.ViewDedupeTTL = 30 * time.Minute
	}
	prefix := strings.TrimSpace(cfg.RedisPrefix)
	if prefix == "" {
		prefix = "portfoliohub"
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, errors.New("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		if strings.TrimSpace(cfg.JWTPrivateKeyPath) == "" {
			return nil, errors.New("jwtPrivateKeyPath is required")
		}
		if cfg.Redis == nil {
			return nil, errors.New("redis is required for session revocation")
		}
		keys, err := store.LoadJWTKeys(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTKeyID, cfg.JWTVerifyPublicKeys)
		if err != nil {
			return nil, fmt.Errorf("load jwt keys: %w", err)
		}
		revoker := store.NewRedisTokenRevoker(cfg.Redis, prefix+":auth", cfg.RefreshTTL)
		sessionStore, err = store.NewJWTSessionStore(keys, cfg.SessionTTL, revoker, store.JWTOptions{
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			Leeway:   cfg.JWTLeeway,
		})
		if err != nil {
			return nil, fmt.Errorf("init jwt session store: %w", err)
		}
	}

	refreshStore := cfg.RefreshTokens
	if refreshStore == nil {
		if cfg.Redis == nil {
			return nil, errors.New("redis is required for refresh tokens")
		}
		refreshStore = store.NewRedisRefreshTokenStore(cfg.Redis, prefix+":auth")
	}

	views := cfg.Views
	if views == nil && cfg.Redis != nil {
		counter, err := viewcount.New(cfg.Redis, prefix+":views", cfg.ViewDedupeTTL)
		if err != nil {
			return nil, err
		}
		views = counter
	}

	jobs := cfg.Jobs
	if jobs == nil && cfg.Redis != nil {
		q, err := queue.NewRedisJobQueue(cfg.Redis, queue.Config{Stream: queue.DefaultAssetStream})
		if err != nil {
			return nil, fmt.Errorf("init asset queue: %w", err)
		}
		jobs = q
	}

	publisher := cfg.Events
	if publisher == nil {
		publisher = events.NewLogPublisher(nil)
	}

	return &App{
		store:          dataStore,
		sessions:       sessionStore,
		refreshTokens:  refreshStore,
		objects:        cfg.Objects,
		jobs:           jobs,
		events:         publisher,
		views:          views,
		refreshTTL:     cfg.RefreshTTL,
		verifyTTL:      cfg.VerifyTTL,
		downloadURLTTL: cfg.DownloadURLTTL,
		publicBaseURL:  strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/"),
		now:            func() time.Time { return time.Now().UTC() },
	}, nil
}

// link builds an absolute URL for path when a public base URL is set.
func (a *App) link(path, token string) string {
	if a.publicBaseURL == "" {
		return ""
	}
	return a.publicBaseURL + path + "?token=" + url.QueryEscape(token)
}

// Ping checks the database when the store supports it.
func (a *App) Ping(ctx context.Context) error {
	if p, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (a *App) emit(ctx context.Context, eventType string, data map[string]any) {
	events.Emit(ctx, a.events, events.New(eventType, data))
}

// mapStoreErr turns store sentinels into app errors handlers understand.
func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrRestricted):
		return ErrInUse
	case errors.Is(err, store.ErrInvalidQuery):
		return &ValidationError{Message: err.Error()}
	case errors.Is(err, store.ErrInvalidReference):
		return &ValidationError{Field: referenceField(store.ConstraintOf(err)), Message: "referenced record does not exist"}
	case errors.Is(err, store.ErrConflict):
		switch store.ConstraintOf(err) {
		case store.ConstraintUserEmail:
			return ErrEmailAlreadyExists
		case store.ConstraintProjectSlug:
			return ErrSlugTaken
		case store.ConstraintLikeProjectUser:
			return ErrAlreadyLiked
		}
		return ErrAlreadyExists
	}
	return err
}

// checkIDs rejects references that cannot be row ids.
func checkIDs(field string, ids []string) error {
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" && !util.IsID(id) {
			return invalid(field, "must contain valid ids")
		}
	}
	return nil
}

func referenceField(constraint string) string {
	switch constraint {
	case store.ConstraintProjectAuthor:
		return "authorId"
	case store.ConstraintEmployeeUserFK:
		return "userId"
	case store.ConstraintCommentParent:
		return "parentId"
	case store.ConstraintAssetProject, store.ConstraintCommentProject, store.ConstraintLikeProject, store.ConstraintProjectTagProj:
		return "projectId"
	case store.ConstraintProjectTagTag:
		return "tagIds"
	}
	return ""
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validEmail is a shape check only: one '@', a dot in the domain, no spaces.
func validEmail(email string) bool {
	if len(email) > 254 || strings.ContainsAny(email, " \t\r\n") {
		return false
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 || strings.Count(email, "@") != 1 {
		return false
	}
	domainPart := email[at+1:]
	dot := strings.LastIndex(domainPart, ".")
	return dot > 0 && dot < len(domainPart)-1
}

func requireText(field, value string, maxLen int) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", invalid(field, "is required")
	}
	if len([]rune(value)) > maxLen {
		return "", invalid(field, "must be at most %d characters", maxLen)
	}
	return value, nil
}

func optionalText(field, value string, maxLen int) (string, error) {
	value = strings.TrimSpace(value)
	if len([]rune(value)) > maxLen {
		return "", invalid(field, "must be at most %d characters", maxLen)
	}
	return value, nil
}
