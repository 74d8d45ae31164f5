package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"portfoliohub/pkg/storage"
	"portfoliohub/pkg/store"
	"portfoliohub/services/api/internal/app"
)

const testPassword = "Str0ng!Passw0rd"

type testServer struct {
	url     string
	srv     *Server
	store   *store.MemoryStore
	objects *storage.MemoryStore
}

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()
	redisSrv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: redisSrv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	keys, err := store.GenerateJWTKeys("test-kid")
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}
	sessions, err := store.NewJWTSessionStore(keys, 15*time.Minute, store.NewMemoryTokenRevoker(), store.JWTOptions{})
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	ts := &testServer{store: store.NewMemoryStore(), objects: storage.NewMemoryStore()}
	application, err := app.New(app.Config{
		Redis:         client,
		RedisPrefix:   "test",
		Store:         ts.store,
		Sessions:      sessions,
		RefreshTokens: store.NewMemoryRefreshTokenStore(),
		Objects:       ts.objects,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	cfg := Config{
		App:                          application,
		Redis:                        client,
		RedisPrefix:                  "test",
		SignupRateLimitPerMinute:     100,
		LoginRateLimitPerMinute:      100,
		RefreshRateLimitPerMinute:    100,
		ContactRateLimitPerMinute:    100,
		NewsletterRateLimitPerMinute: 100,
		CommentRateLimitPerMinute:    100,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	httpSrv := httptest.NewServer(srv.Router())
	t.Cleanup(httpSrv.Close)
	ts.url = httpSrv.URL
	ts.srv = srv
	return ts
}

type apiResponse struct {
	status int
	header http.Header
	body   map[string]any
}

func (ts *testServer) do(t *testing.T, method, path, token string, payload any) apiResponse {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.url+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return ts.send(t, req)
}

func (ts *testServer) send(t *testing.T, req *http.Request) apiResponse {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	out := apiResponse{status: resp.StatusCode, header: resp.Header}
	raw, _ := io.ReadAll(resp.Body)
	if len(bytes.TrimSpace(raw)) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &out.body); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", req.Method, req.URL.Path, err, raw)
		}
	}
	return out
}

// signup registers an account and returns its access token.
func (ts *testServer) signup(t *testing.T, email string) string {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": email, "password": testPassword, "name": "Test " + email,
	})
	if resp.status != http.StatusCreated {
		t.Fatalf("signup %s: status %d body %v", email, resp.status, resp.body)
	}
	token, _ := resp.body["accessToken"].(string)
	if token == "" {
		t.Fatalf("signup returned no token: %v", resp.body)
	}
	return token
}

func (ts *testServer) createProject(t *testing.T, token, title string) map[string]any {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/admin/projects", token, map[string]any{
		"title": title, "category": "ARCHITECTURE", "status": "PUBLISHED",
	})
	if resp.status != http.StatusCreated {
		t.Fatalf("create project: status %d body %v", resp.status, resp.body)
	}
	return resp.body
}

func TestServerRequiresAppAndRedis(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without app")
	}
	if _, err := New(Config{App: &app.App{}}); err == nil {
		t.Fatalf("expected error without redis")
	}
}

func TestSignupLoginAndProfile(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.signup(t, "owner@example.com")

	me := ts.do(t, http.MethodGet, "/api/users/me", token, nil)
	if me.status != http.StatusOK || me.body["role"] != "SUPER_ADMIN" {
		t.Fatalf("unexpected me response: %d %v", me.status, me.body)
	}
	if _, leaked := me.body["passwordHash"]; leaked {
		t.Fatalf("password hash must not be serialised")
	}

	anon := ts.do(t, http.MethodGet, "/api/users/me", "", nil)
	if anon.status != http.StatusUnauthorized || anon.body["code"] != "unauthenticated" {
		t.Fatalf("expected 401, got %d %v", anon.status, anon.body)
	}
	if anon.header.Get("X-Request-Id") == "" || anon.body["requestId"] != anon.header.Get("X-Request-Id") {
		t.Fatalf("expected request id echoed in header and body: %v %v", anon.header, anon.body)
	}

	bad := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "owner@example.com", "password": "nope"})
	if bad.status != http.StatusUnauthorized || bad.body["code"] != "invalid_credentials" {
		t.Fatalf("expected invalid credentials, got %d %v", bad.status, bad.body)
	}
	login := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "owner@example.com", "password": testPassword})
	if login.status != http.StatusOK || login.body["refreshToken"] == "" {
		t.Fatalf("login failed: %d %v", login.status, login.body)
	}

	patch := ts.do(t, http.MethodPatch, "/api/users/me", token, map[string]string{"bio": "<b>Architect</b>"})
	if patch.status != http.StatusOK || patch.body["bio"] != "Architect" {
		t.Fatalf("unexpected profile update: %d %v", patch.status, patch.body)
	}

	dup := ts.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "owner@example.com", "password": testPassword, "name": "Again",
	})
	if dup.status != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d", dup.status)
	}
}

func TestRefreshRotationAndLogout(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.signup(t, "owner@example.com")
	login := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "owner@example.com", "password": testPassword})
	refresh, _ := login.body["refreshToken"].(string)
	access, _ := login.body["accessToken"].(string)

	rotated := ts.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": refresh})
	if rotated.status != http.StatusOK {
		t.Fatalf("refresh failed: %d %v", rotated.status, rotated.body)
	}
	replay := ts.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": refresh})
	if replay.status != http.StatusUnauthorized {
		t.Fatalf("expected replayed refresh token to fail, got %d", replay.status)
	}

	if resp := ts.do(t, http.MethodPost, "/api/auth/logout", access, nil); resp.status != http.StatusNoContent {
		t.Fatalf("logout: %d %v", resp.status, resp.body)
	}
	if resp := ts.do(t, http.MethodGet, "/api/users/me", access, nil); resp.status != http.StatusUnauthorized {
		t.Fatalf("expected revoked token to be rejected, got %d", resp.status)
	}
}

func TestLoginRateLimit(t *testing.T) {
	ts := newTestServer(t, func(cfg *Config) { cfg.LoginRateLimitPerMinute = 1 })
	body := map[string]string{"email": "nobody@example.com", "password": "x"}
	first := ts.do(t, http.MethodPost, "/api/auth/login", "", body)
	if first.status != http.StatusUnauthorized {
		t.Fatalf("first request expected 401, got %d", first.status)
	}
	second := ts.do(t, http.MethodPost, "/api/auth/login", "", body)
	if second.status != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", second.status)
	}
	if second.header.Get("Retry-After") == "" || second.body["code"] != "rate_limited" {
		t.Fatalf("expected Retry-After and rate_limited code: %v %v", second.header, second.body)
	}
}

func TestAdminRoutesRequireStaff(t *testing.T) {
	ts := newTestServer(t, nil)
	admin := ts.signup(t, "owner@example.com")
	visitor := ts.signup(t, "visitor@example.com")

	if resp := ts.do(t, http.MethodGet, "/api/admin/dashboard", "", nil); resp.status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.status)
	}
	if resp := ts.do(t, http.MethodGet, "/api/admin/dashboard", visitor, nil); resp.status != http.StatusForbidden {
		t.Fatalf("expected 403 for USER, got %d", resp.status)
	}
	resp := ts.do(t, http.MethodGet, "/api/admin/dashboard", admin, nil)
	if resp.status != http.StatusOK {
		t.Fatalf("expected dashboard for admin, got %d %v", resp.status, resp.body)
	}
	if users, _ := resp.body["users"].(float64); users != 2 {
		t.Fatalf("expected 2 users on dashboard, got %v", resp.body["users"])
	}
	malformed := ts.do(t, http.MethodGet, "/api/admin/projects/not-a-uuid", admin, nil)
	if malformed.status != http.StatusNotFound || malformed.body["code"] != "not_found" {
		t.Fatalf("expected 404 for malformed id, got %d %v", malformed.status, malformed.body)
	}
}

func TestMalformedReferenceIDsAreBadRequests(t *testing.T) {
	ts := newTestServer(t, nil)
	admin := ts.signup(t, "owner@example.com")
	project := ts.createProject(t, admin, "Harbour House")
	slug, _ := project["slug"].(string)

	tests := []struct {
		name    string
		method  string
		path    string
		payload any
		field   string
	}{
		{"reply to malformed parent", http.MethodPost, "/api/projects/" + slug + "/comments", map[string]string{"content": "Nice", "parentId": "x"}, "parentId"},
		{"author filter", http.MethodGet, "/api/admin/projects?authorId=42", nil, "authorId"},
		{"pending comments filter", http.MethodGet, "/api/admin/comments/pending?projectId=abc", nil, "projectId"},
		{"project tags", http.MethodPost, "/api/admin/projects", map[string]any{"title": "Pier", "category": "ARCHITECTURE", "tagIds": []string{"timber"}}, "tagIds"},
		{"employee user", http.MethodPost, "/api/admin/employees", map[string]any{"userId": "7", "employeeId": "E-1", "department": "Design", "position": "Architect"}, "userId"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := ts.do(t, tc.method, tc.path, admin, tc.payload)
			if resp.status != http.StatusBadRequest || resp.body["field"] != tc.field {
				t.Fatalf("expected 400 on %s, got %d %v", tc.field, resp.status, resp.body)
			}
		})
	}
}

func TestProjectEngagementFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	admin := ts.signup(t, "owner@example.com")
	visitor := ts.signup(t, "visitor@example.com")
	project := ts.createProject(t, admin, "Harbour House")
	slug, _ := project["slug"].(string)
	if slug != "harbour-house" {
		t.Fatalf("unexpected slug %q", slug)
	}

	list := ts.do(t, http.MethodGet, "/api/projects?category=ARCHITECTURE", "", nil)
	if list.status != http.StatusOK || list.body["total"].(float64) != 1 {
		t.Fatalf("unexpected public list: %d %v", list.status, list.body)
	}
	if resp := ts.do(t, http.MethodGet, "/api/projects?category=CASTLES", "", nil); resp.status != http.StatusBadRequest || resp.body["field"] != "category" {
		t.Fatalf("expected validation error for category, got %d %v", resp.status, resp.body)
	}

	if resp := ts.do(t, http.MethodPost, "/api/projects/"+slug+"/like", visitor, nil); resp.status != http.StatusOK || resp.body["likeCount"].(float64) != 1 {
		t.Fatalf("like failed: %d %v", resp.status, resp.body)
	}
	if resp := ts.do(t, http.MethodPost, "/api/projects/"+slug+"/like", visitor, nil); resp.status != http.StatusConflict {
		t.Fatalf("expected 409 on second like, got %d", resp.status)
	}
	detail := ts.do(t, http.MethodGet, "/api/projects/"+slug, visitor, nil)
	if detail.status != http.StatusOK || detail.body["likedByMe"] != true {
		t.Fatalf("unexpected detail: %d %v", detail.status, detail.body)
	}
	if resp := ts.do(t, http.MethodDelete, "/api/projects/"+slug+"/like", visitor, nil); resp.status != http.StatusOK || resp.body["likeCount"].(float64) != 0 {
		t.Fatalf("unlike failed: %d %v", resp.status, resp.body)
	}

	comment := ts.do(t, http.MethodPost, "/api/projects/"+slug+"/comments", visitor, map[string]string{"content": "Lovely light"})
	if comment.status != http.StatusCreated || comment.body["isApproved"] != false {
		t.Fatalf("unexpected comment: %d %v", comment.status, comment.body)
	}
	public := ts.do(t, http.MethodGet, "/api/projects/"+slug+"/comments", "", nil)
	if public.body["total"].(float64) != 0 {
		t.Fatalf("pending comment must not be public: %v", public.body)
	}
	id, _ := comment.body["id"].(string)
	if resp := ts.do(t, http.MethodPost, "/api/admin/comments/"+id+"/approve", visitor, nil); resp.status != http.StatusForbidden {
		t.Fatalf("expected 403 for visitor moderation, got %d", resp.status)
	}
	if resp := ts.do(t, http.MethodPost, "/api/admin/comments/"+id+"/approve", admin, nil); resp.status != http.StatusNoContent {
		t.Fatalf("approve failed: %d %v", resp.status, resp.body)
	}
	public = ts.do(t, http.MethodGet, "/api/projects/"+slug+"/comments", "", nil)
	if public.body["total"].(float64) != 1 {
		t.Fatalf("approved comment must be public: %v", public.body)
	}

	if resp := ts.do(t, http.MethodGet, "/api/projects/missing", "", nil); resp.status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.status)
	}
}

func TestUploadAsset(t *testing.T) {
	ts := newTestServer(t, func(cfg *Config) {
		cfg.AllowedExtensions = []string{"png", ".pdf"}
		cfg.MaxUploadBytes = 1024
	})
	admin := ts.signup(t, "owner@example.com")
	project := ts.createProject(t, admin, "Studio")
	id, _ := project["id"].(string)

	upload := func(name string, size int) apiResponse {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		_ = mw.WriteField("title", "Front elevation")
		fw, err := mw.CreateFormFile("file", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		_, _ = fw.Write(bytes.Repeat([]byte("x"), size))
		_ = mw.Close()
		req, err := http.NewRequest(http.MethodPost, ts.url+"/api/admin/projects/"+id+"/assets", &buf)
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+admin)
		return ts.send(t, req)
	}

	if resp := upload("setup.exe", 10); resp.status != http.StatusBadRequest || resp.body["code"] != "unsupported_file" {
		t.Fatalf("expected unsupported file, got %d %v", resp.status, resp.body)
	}
	if resp := upload("huge.png", 4096); resp.status != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d %v", resp.status, resp.body)
	}
	resp := upload("elevation.png", 100)
	if resp.status != http.StatusAccepted || resp.body["type"] != "IMAGE" || resp.body["processingStatus"] != "PENDING" {
		t.Fatalf("unexpected upload response: %d %v", resp.status, resp.body)
	}
	assetID, _ := resp.body["id"].(string)
	download := ts.do(t, http.MethodGet, "/api/admin/assets/"+assetID+"/download", admin, nil)
	if download.status != http.StatusOK || download.body["url"] == "" {
		t.Fatalf("unexpected download response: %d %v", download.status, download.body)
	}
}

func TestContactAndNewsletter(t *testing.T) {
	ts := newTestServer(t, nil)
	invalid := ts.do(t, http.MethodPost, "/api/contact", "", map[string]string{"name": "Ana", "email": "not-an-email", "message": "hi"})
	if invalid.status != http.StatusBadRequest || invalid.body["field"] != "email" {
		t.Fatalf("expected email validation error, got %d %v", invalid.status, invalid.body)
	}
	ok := ts.do(t, http.MethodPost, "/api/contact", "", map[string]string{
		"name": "Ana", "email": "ana@example.com", "subject": "Extension", "message": "We would like a quote.",
	})
	if ok.status != http.StatusCreated || ok.body["status"] != "NEW" {
		t.Fatalf("unexpected contact response: %d %v", ok.status, ok.body)
	}

	sub := ts.do(t, http.MethodPost, "/api/newsletter/subscribe", "", map[string]string{"email": "Reader@Example.com"})
	if sub.status != http.StatusOK || sub.body["email"] != "reader@example.com" || sub.body["isActive"] != true {
		t.Fatalf("unexpected subscribe response: %d %v", sub.status, sub.body)
	}
	if resp := ts.do(t, http.MethodPost, "/api/newsletter/unsubscribe", "", map[string]string{"token": "unknown"}); resp.status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown token, got %d", resp.status)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)
	admin := ts.signup(t, "owner@example.com")
	put := ts.do(t, http.MethodPut, "/api/admin/settings/site.title", admin, map[string]any{"value": "Atelier", "isPublic": true})
	if put.status != http.StatusOK {
		t.Fatalf("upsert setting: %d %v", put.status, put.body)
	}
	ts.do(t, http.MethodPut, "/api/admin/settings/smtp.host", admin, map[string]any{"value": "mail.internal"})
	bad := ts.do(t, http.MethodPut, "/api/admin/settings/max.uploads", admin, map[string]any{"value": "many", "type": "NUMBER"})
	if bad.status != http.StatusBadRequest {
		t.Fatalf("expected invalid number to be rejected, got %d", bad.status)
	}
	public := ts.do(t, http.MethodGet, "/api/settings", "", nil)
	if public.body["site.title"] != "Atelier" {
		t.Fatalf("expected public setting, got %v", public.body)
	}
	if _, leaked := public.body["smtp.host"]; leaked {
		t.Fatalf("private setting leaked: %v", public.body)
	}
}

func TestWriteAppErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
		code string
	}{
		{&app.ValidationError{Field: "title", Message: "is required"}, http.StatusBadRequest, "validation_error"},
		{app.ErrUserDisabled, http.StatusUnauthorized, "invalid_credentials"},
		{app.ErrInvalidRefreshToken, http.StatusUnauthorized, "unauthenticated"},
		{app.ErrInvalidVerifyToken, http.StatusBadRequest, "bad_request"},
		{app.ErrForbidden, http.StatusForbidden, "forbidden"},
		{fmt.Errorf("fetch: %w", app.ErrNotFound), http.StatusNotFound, "not_found"},
		{fmt.Errorf("create: %w", app.ErrSlugTaken), http.StatusConflict, "conflict"},
		{app.ErrStorageUnavailable, http.StatusServiceUnavailable, "unavailable"},
		{errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range tests {
		rec := httptest.NewRecorder()
		writeAppError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
		var body errorResponse
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if rec.Code != tc.want || body.Code != tc.code {
			t.Fatalf("%v: got %d %q, want %d %q", tc.err, rec.Code, body.Code, tc.want, tc.code)
		}
		if tc.want == http.StatusInternalServerError && body.Error != "internal server error" {
			t.Fatalf("internal error leaked: %q", body.Error)
		}
	}
}
