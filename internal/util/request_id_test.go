package util

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWithRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"propagates incoming header", "req-incoming-123", true},
		{"generates when missing", "", false},
		{"replaces header with unsafe characters", "abc\"><script>", false},
		{"replaces overlong header", strings.Repeat("a", 65), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var inCtx string
			handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				inCtx = RequestIDFromRequest(r)
				LoggerFromContext(r.Context()).Debug("inside handler")
			}))
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			if tc.incoming != "" {
				req.Header.Set(RequestIDHeader, tc.incoming)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			if got == "" || got != inCtx {
				t.Fatalf("header %q and context %q must match and be set", got, inCtx)
			}
			if tc.keep && got != tc.incoming {
				t.Fatalf("expected incoming id %q, got %q", tc.incoming, got)
			}
			if !tc.keep && got == tc.incoming {
				t.Fatalf("expected a generated id, got incoming %q", got)
			}
		})
	}
}
