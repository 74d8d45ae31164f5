package util

import (
	"strings"
	"testing"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Villa Sul Lago", "villa-sul-lago"},
		{"  Café Müller -- Renovation!  ", "cafe-muller-renovation"},
		{"2024/Urban_Plan #3", "2024-urban-plan-3"},
		{"日本", ""},
		{"---", ""},
	}
	for _, tc := range tests {
		if got := Slugify(tc.in); got != tc.want {
			t.Fatalf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if got := Slugify(strings.Repeat("ab ", 100)); len(got) > maxSlugLength || strings.HasSuffix(got, "-") {
		t.Fatalf("slug not bounded: %q", got)
	}
}

func TestValidSlug(t *testing.T) {
	if !ValidSlug("villa-sul-lago") {
		t.Fatalf("expected valid slug")
	}
	for _, bad := range []string{"", "Villa", "a--b", "-a", "a b"} {
		if ValidSlug(bad) {
			t.Fatalf("expected %q to be invalid", bad)
		}
	}
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain   text\n here", "plain text here"},
		{"<b>Great</b> project!", "Great project!"},
		{"hi<script>alert(1)</script> there", "hi there"},
		{"a &amp; b", "a & b"},
		{"<p>one</p><p>two</p>", "one two"},
	}
	for _, tc := range tests {
		if got := PlainText(tc.in); got != tc.want {
			t.Fatalf("PlainText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
