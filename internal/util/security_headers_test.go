package util

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithSecurityHeaders(t *testing.T) {
	h := WithSecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	tests := []struct {
		name      string
		path      string
		proto     string
		wantHSTS  bool
		wantStore bool
	}{
		{"public plain http", "/api/projects", "", false, false},
		{"forwarded https", "/api/projects", "https", true, false},
		{"auth never cached", "/api/auth/login", "", false, true},
		{"admin never cached", "/api/admin/projects", "", false, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.proto != "" {
				req.Header.Set("X-Forwarded-Proto", tc.proto)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
				t.Fatalf("X-Content-Type-Options mismatch: %q", got)
			}
			if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
				t.Fatalf("X-Frame-Options mismatch: %q", got)
			}
			if got := rec.Header().Get("Strict-Transport-Security") != ""; got != tc.wantHSTS {
				t.Fatalf("HSTS present = %v, want %v", got, tc.wantHSTS)
			}
			if got := rec.Header().Get("Cache-Control") == "no-store"; got != tc.wantStore {
				t.Fatalf("no-store = %v, want %v", got, tc.wantStore)
			}
		})
	}
}
