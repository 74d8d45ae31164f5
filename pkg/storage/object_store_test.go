package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestAssetKey(t *testing.T) {
	tests := []struct {
		file string
		want string
	}{
		{"plan.pdf", "projects/p1/assets/a1/plan.pdf"},
		{"../../etc/passwd", "projects/p1/assets/a1/passwd"},
		{`C:\drawings\site.dwg`, "projects/p1/assets/a1/site.dwg"},
		{"", "projects/p1/assets/a1/file"},
	}
	for _, tc := range tests {
		if got := AssetKey("p1", "a1", tc.file); got != tc.want {
			t.Fatalf("AssetKey(%q) = %q, want %q", tc.file, got, tc.want)
		}
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.Put(ctx, "k", strings.NewReader("hello"), 5, "text/plain"); err != nil {
		t.Fatalf("put: %v", err)
	}
	rc, info, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "hello" || info.Size != 5 || info.ContentType != "text/plain" {
		t.Fatalf("unexpected object: %q %+v", body, info)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Stat(ctx, "k"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
