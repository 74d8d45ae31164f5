package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"portfoliohub/internal/ratelimit"
	"portfoliohub/internal/util"
	"portfoliohub/pkg/domain"
	"portfoliohub/pkg/store"
	"portfoliohub/services/api/internal/app"
	"portfoliohub/services/api/internal/security"
)

const maxJSONBody = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                          *app.App
	Redis                        *redis.Client
	RedisPrefix                  string
	Alerter                      *security.AuditAlerter
	SignupRateLimitPerMinute     int
	LoginRateLimitPerMinute      int
	RefreshRateLimitPerMinute    int
	ContactRateLimitPerMinute    int
	NewsletterRateLimitPerMinute int
	CommentRateLimitPerMinute    int
	MaxUploadBytes               int64
	AllowedExtensions            []string
	CORSAllowedOrigins           []string
	TrustedProxies               []string
}

// Server exposes the portfolio HTTP API.
type Server struct {
	app               *app.App
	mux               *http.ServeMux
	alerter           *security.AuditAlerter
	trusted           *util.TrustedProxies
	corsOrigins       []string
	maxUploadBytes    int64
	allowedExtensions map[string]struct{}
	signupLimiter     ratelimit.Limiter
	loginLimiter      ratelimit.Limiter
	refreshLimiter    ratelimit.Limiter
	contactLimiter    ratelimit.Limiter
	newsletterLimiter ratelimit.Limiter
	commentLimiter    ratelimit.Limiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	if cfg.Redis == nil {
		return nil, errors.New("server: redis is required for rate limiting")
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("server: trusted proxies: %w", err)
	}
	prefix := strings.TrimSpace(cfg.RedisPrefix)
	if prefix == "" {
		prefix = "portfoliohub"
	}
	newLimiter := func(name string, limit, fallback int) (ratelimit.Limiter, error) {
		if limit <= 0 {
			limit = fallback
		}
		limiter, err := ratelimit.NewFixedWindowLimiter(cfg.Redis, prefix+":ratelimit:"+name, limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	s := &Server{
		app:               cfg.App,
		mux:               http.NewServeMux(),
		alerter:           cfg.Alerter,
		trusted:           trusted,
		corsOrigins:       cfg.CORSAllowedOrigins,
		maxUploadBytes:    normalizeMaxBytes(cfg.MaxUploadBytes),
		allowedExtensions: normalizeExtensions(cfg.AllowedExtensions),
	}
	limiters := []struct {
		dst      *ratelimit.Limiter
		name     string
		limit    int
		fallback int
	}{
		{&s.signupLimiter, "signup", cfg.SignupRateLimitPerMinute, 5},
		{&s.loginLimiter, "login", cfg.LoginRateLimitPerMinute, 10},
		{&s.refreshLimiter, "refresh", cfg.RefreshRateLimitPerMinute, 20},
		{&s.contactLimiter, "contact", cfg.ContactRateLimitPerMinute, 5},
		{&s.newsletterLimiter, "newsletter", cfg.NewsletterRateLimitPerMinute, 5},
		{&s.commentLimiter, "comment", cfg.CommentRateLimitPerMinute, 10},
	}
	for _, l := range limiters {
		if *l.dst, err = newLimiter(l.name, l.limit, l.fallback); err != nil {
			return nil, err
		}
	}
	s.routes()
	return s, nil
}

// Router returns the handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = util.WithCORS(s.corsOrigins, h)
	h = util.WithSecurityHeaders(h)
	h = util.WithRequestLog("api", h)
	return util.WithRequestID(h)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /.well-known/jwks.json", s.handleJWKS)

	// auth
	s.mux.HandleFunc("POST /api/auth/signup", s.handleSignup)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("POST /api/auth/refresh", s.handleRefresh)
	s.mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	s.mux.HandleFunc("POST /api/auth/verify-email", s.handleVerifyEmail)
	s.mux.HandleFunc("POST /api/auth/resend-verification", s.handleResendVerification)
	s.mux.Handle("GET /api/users/me", s.authenticated(s.handleGetMe))
	s.mux.Handle("PATCH /api/users/me", s.authenticated(s.handleUpdateMe))
	s.mux.Handle("POST /api/users/me/password", s.authenticated(s.handleChangePassword))

	// public site
	s.mux.HandleFunc("GET /api/projects", s.handleListProjects)
	s.mux.HandleFunc("GET /api/projects/{slug}", s.handleGetProject)
	s.mux.HandleFunc("GET /api/projects/{slug}/comments", s.handleListComments)
	s.mux.HandleFunc("GET /api/tags", s.handleListTags)
	s.mux.HandleFunc("GET /api/settings", s.handlePublicSettings)
	s.mux.HandleFunc("POST /api/contact", s.handleContact)
	s.mux.HandleFunc("POST /api/newsletter/subscribe", s.handleSubscribe)
	s.mux.HandleFunc("POST /api/newsletter/unsubscribe", s.handleUnsubscribe)

	// signed-in users
	s.mux.Handle("POST /api/projects/{slug}/like", s.authenticated(s.handleLike))
	s.mux.Handle("DELETE /api/projects/{slug}/like", s.authenticated(s.handleUnlike))
	s.mux.Handle("POST /api/projects/{slug}/comments", s.authenticated(s.handleCreateComment))
	s.mux.Handle("DELETE /api/comments/{id}", s.authenticated(s.handleDeleteComment))

	// staff
	s.mux.Handle("GET /api/admin/dashboard", s.staffOnly(s.handleDashboard))
	s.mux.Handle("GET /api/admin/projects", s.staffOnly(s.handleAdminListProjects))
	s.mux.Handle("POST /api/admin/projects", s.staffOnly(s.handleAdminCreateProject))
	s.mux.Handle("GET /api/admin/projects/{id}", s.staffOnly(s.handleAdminGetProject))
	s.mux.Handle("PATCH /api/admin/projects/{id}", s.staffOnly(s.handleAdminUpdateProject))
	s.mux.Handle("DELETE /api/admin/projects/{id}", s.staffOnly(s.handleAdminDeleteProject))
	s.mux.Handle("PUT /api/admin/projects/{id}/tags", s.staffOnly(s.handleAdminSetProjectTags))
	s.mux.Handle("GET /api/admin/projects/{id}/assets", s.staffOnly(s.handleAdminListAssets))
	s.mux.Handle("POST /api/admin/projects/{id}/assets", s.staffOnly(s.handleAdminUploadAsset))
	s.mux.Handle("PATCH /api/admin/assets/{id}", s.staffOnly(s.handleAdminUpdateAsset))
	s.mux.Handle("DELETE /api/admin/assets/{id}", s.staffOnly(s.handleAdminDeleteAsset))
	s.mux.Handle("GET /api/admin/assets/{id}/download", s.staffOnly(s.handleAdminAssetDownload))
	s.mux.Handle("POST /api/admin/tags", s.staffOnly(s.handleAdminCreateTag))
	s.mux.Handle("DELETE /api/admin/tags/{id}", s.staffOnly(s.handleAdminDeleteTag))
	s.mux.Handle("GET /api/admin/tags/usage", s.staffOnly(s.handleAdminTagUsage))
	s.mux.Handle("GET /api/admin/comments/pending", s.staffOnly(s.handleAdminPendingComments))
	s.mux.Handle("POST /api/admin/comments/{id}/approve", s.staffOnly(s.handleAdminApproveComment))
	s.mux.Handle("POST /api/admin/comments/{id}/reject", s.staffOnly(s.handleAdminRejectComment))
	s.mux.Handle("GET /api/admin/inquiries", s.staffOnly(s.handleAdminListInquiries))
	s.mux.Handle("GET /api/admin/inquiries/counts", s.staffOnly(s.handleAdminInquiryCounts))
	s.mux.Handle("GET /api/admin/inquiries/{id}", s.staffOnly(s.handleAdminGetInquiry))
	s.mux.Handle("PATCH /api/admin/inquiries/{id}", s.staffOnly(s.handleAdminUpdateInquiry))
	s.mux.Handle("DELETE /api/admin/inquiries/{id}", s.staffOnly(s.handleAdminDeleteInquiry))
	s.mux.Handle("GET /api/admin/newsletter", s.staffOnly(s.handleAdminListSubscribers))
	s.mux.Handle("GET /api/admin/newsletter/count", s.staffOnly(s.handleAdminSubscriberCount))
	s.mux.Handle("GET /api/admin/settings", s.staffOnly(s.handleAdminListSettings))
	s.mux.Handle("PUT /api/admin/settings/{key}", s.staffOnly(s.handleAdminUpsertSetting))
	s.mux.Handle("DELETE /api/admin/settings/{key}", s.staffOnly(s.handleAdminDeleteSetting))
	s.mux.Handle("GET /api/admin/users", s.staffOnly(s.handleAdminListUsers))
	s.mux.Handle("POST /api/admin/users", s.staffOnly(s.handleAdminCreateUser))
	s.mux.Handle("PATCH /api/admin/users/{id}", s.staffOnly(s.handleAdminUpdateUser))
	s.mux.Handle("DELETE /api/admin/users/{id}", s.staffOnly(s.handleAdminDeleteUser))
	s.mux.Handle("GET /api/admin/employees", s.staffOnly(s.handleAdminListEmployees))
	s.mux.Handle("POST /api/admin/employees", s.staffOnly(s.handleAdminCreateEmployee))
	s.mux.Handle("GET /api/admin/employees/salary-stats", s.staffOnly(s.handleAdminSalaryStats))
	s.mux.Handle("GET /api/admin/employees/{id}", s.staffOnly(s.handleAdminGetEmployee))
	s.mux.Handle("PATCH /api/admin/employees/{id}", s.staffOnly(s.handleAdminUpdateEmployee))
	s.mux.Handle("DELETE /api/admin/employees/{id}", s.staffOnly(s.handleAdminDeleteEmployee))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Ping(r.Context()); err != nil {
		util.LoggerFromContext(r.Context()).Error("health_check_failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.currentUser(r)
		if !ok {
			s.audit(r, "auth.authorize", "fail")
			writeError(w, r, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}
		if !validPathID(r) {
			writeAppError(w, r, app.ErrNotFound)
			return
		}
		next(w, r, user)
	})
}

// staffOnly admits any staff role; handlers check the specific permission.
func (s *Server) staffOnly(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.currentUser(r)
		if !ok {
			s.audit(r, "admin.authorize", "fail", "reason", "unauthenticated")
			writeError(w, r, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}
		if !user.Role.IsStaff() {
			s.audit(r, "admin.authorize", "fail", "user_id", user.ID, "reason", "forbidden")
			writeError(w, r, http.StatusForbidden, "forbidden", "forbidden")
			return
		}
		if !validPathID(r) {
			writeAppError(w, r, app.ErrNotFound)
			return
		}
		next(w, r, user)
	})
}

// validPathID rejects {id} values that cannot name a row; primary keys are UUIDs.
func validPathID(r *http.Request) bool {
	id := r.PathValue("id")
	return id == "" || util.IsID(id)
}

func (s *Server) currentUser(r *http.Request) (domain.User, bool) {
	token, ok := bearerToken(r)
	if !ok {
		return domain.User{}, false
	}
	return s.app.UserFromToken(token)
}

// optionalUser resolves the caller when a valid token is present.
func (s *Server) optionalUser(r *http.Request) (domain.User, bool) {
	if _, ok := bearerToken(r); !ok {
		return domain.User{}, false
	}
	return s.currentUser(r)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	return token, token != ""
}

func (s *Server) clientIP(r *http.Request) string {
	return util.ClientIP(r, s.trusted)
}

// audit writes one audit line and feeds failures to the alerter.
func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	ctx := r.Context()
	logger := util.LoggerFromContext(ctx)
	ip := s.clientIP(r)
	logAttrs := append([]any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", ip,
	}, attrs...)
	if outcome == "success" {
		logger.Info("audit", logAttrs...)
		return
	}
	logger.Warn("audit", logAttrs...)
	result, err := s.alerter.Observe(ctx, event, outcome, ip)
	if err != nil {
		logger.Warn("security_alert_observe_failed", "event", event, "err", err)
		return
	}
	if result.Triggered {
		logger.Error("security_alert",
			"event", event,
			"outcome", outcome,
			"ip", ip,
			"count", result.Count,
			"threshold", result.Threshold,
			"window", result.Window.String(),
		)
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter ratelimit.Limiter, event, msg string) bool {
	decision := limiter.Allow(r.Context(), event+"|"+s.clientIP(r))
	if decision.Allowed {
		return true
	}
	s.audit(r, event, "rate_limited")
	retry := int(math.Ceil(decision.RetryAfter.Seconds()))
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeError(w, r, http.StatusTooManyRequests, "rate_limited", msg)
	return false
}

// decodeJSON reads a bounded JSON body into dst and reports 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return false
	}
	return true
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

type listResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func newList[T any](items []T, total int, page store.Page) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	page = page.Normalize()
	return listResponse[T]{Items: items, Total: total, Limit: page.Limit, Offset: page.Offset}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code, RequestID: util.RequestIDFromRequest(r)})
}

// writeAppError maps application errors onto HTTP responses. Unknown errors
// are logged and reported as 500 without detail.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *app.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: ve.Error(), Code: "validation_error", Field: ve.Field, RequestID: util.RequestIDFromRequest(r),
		})
	case errors.Is(err, app.ErrInvalidCredentials), errors.Is(err, app.ErrUserDisabled):
		writeError(w, r, http.StatusUnauthorized, "invalid_credentials", app.ErrInvalidCredentials.Error())
	case errors.Is(err, app.ErrUnauthenticated), errors.Is(err, app.ErrInvalidRefreshToken):
		writeError(w, r, http.StatusUnauthorized, "unauthenticated", err.Error())
	case errors.Is(err, app.ErrRefreshTokenRequired), errors.Is(err, app.ErrInvalidVerifyToken),
		errors.Is(err, app.ErrAlreadyVerified):
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, app.ErrUnsupportedFile):
		writeError(w, r, http.StatusBadRequest, "unsupported_file", err.Error())
	case errors.Is(err, app.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden", "forbidden")
	case errors.Is(err, app.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, app.ErrEmailAlreadyExists), errors.Is(err, app.ErrSlugTaken),
		errors.Is(err, app.ErrAlreadyLiked), errors.Is(err, app.ErrAlreadyExists), errors.Is(err, app.ErrInUse):
		writeError(w, r, http.StatusConflict, "conflict", unwrapMessage(err))
	case errors.Is(err, app.ErrStorageUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "unavailable", err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request_failed", "path", r.URL.Path, "err", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// unwrapMessage returns the sentinel's message without wrapping context.
func unwrapMessage(err error) string {
	for _, sentinel := range []error{app.ErrEmailAlreadyExists, app.ErrSlugTaken, app.ErrAlreadyLiked, app.ErrAlreadyExists, app.ErrInUse} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

func parsePage(r *http.Request) (store.Page, error) {
	q := r.URL.Query()
	var page store.Page
	var err error
	if v := q.Get("limit"); v != "" {
		if page.Limit, err = strconv.Atoi(v); err != nil || page.Limit < 0 {
			return page, &app.ValidationError{Field: "limit", Message: "must be a non-negative integer"}
		}
	}
	if v := q.Get("offset"); v != "" {
		if page.Offset, err = strconv.Atoi(v); err != nil || page.Offset < 0 {
			return page, &app.ValidationError{Field: "offset", Message: "must be a non-negative integer"}
		}
	}
	return page.Normalize(), nil
}

func parseOptionalBool(r *http.Request, key string) (*bool, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, &app.ValidationError{Field: key, Message: "must be true or false"}
	}
	return &b, nil
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 100 << 20
	}
	return value
}

var defaultExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".webp",
	".dwg", ".dxf", ".svg",
	".pdf", ".doc", ".docx",
	".obj", ".fbx", ".glb", ".gltf", ".stl",
	".mp4", ".mov", ".webm",
}

func normalizeExtensions(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		exts = defaultExtensions
	}
	out := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = struct{}{}
	}
	return out
}

func (s *Server) isExtensionAllowed(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	_, ok := s.allowedExtensions[ext]
	return ok
}
