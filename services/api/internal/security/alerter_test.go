package security

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestAlerter(t *testing.T) *AuditAlerter {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	alerter := NewAuditAlerter(client, "test:alerts")
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	alerter.now = func() time.Time { return fixed }
	return alerter
}

func TestAuditAlerterObserveTriggers(t *testing.T) {
	alerter := newTestAlerter(t)
	ctx := context.Background()
	var last AlertResult
	for i := 0; i < 10; i++ {
		result, err := alerter.Observe(ctx, "auth.login", "fail", "127.0.0.1")
		if err != nil {
			t.Fatalf("observe: %v", err)
		}
		if i < 9 && result.Triggered {
			t.Fatalf("triggered early at attempt %d", i+1)
		}
		last = result
	}
	if !last.Triggered || last.Count != 10 || last.Window != 5*time.Minute {
		t.Fatalf("expected alert threshold to trigger, got %+v", last)
	}
}

func TestAuditAlerterCountsPerAddress(t *testing.T) {
	alerter := newTestAlerter(t)
	ctx := context.Background()
	for i := 0; i < 9; i++ {
		if _, err := alerter.Observe(ctx, "auth.login", "fail", "10.0.0.1"); err != nil {
			t.Fatalf("observe: %v", err)
		}
	}
	result, err := alerter.Observe(ctx, "auth.login", "fail", "10.0.0.2")
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if result.Triggered || result.Count != 1 {
		t.Fatalf("addresses must be counted separately, got %+v", result)
	}
}

func TestAuditAlerterObserveIgnoresUnknownRule(t *testing.T) {
	alerter := newTestAlerter(t)
	result, err := alerter.Observe(context.Background(), "auth.custom", "success", "127.0.0.1")
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if result.Triggered || result.Count != 0 {
		t.Fatalf("unexpected result for unknown rule: %+v", result)
	}
}

func TestNilAuditAlerter(t *testing.T) {
	var alerter *AuditAlerter
	if NewAuditAlerter(nil, "") != nil {
		t.Fatalf("expected nil alerter without client")
	}
	if _, err := alerter.Observe(context.Background(), "auth.login", "fail", "1.1.1.1"); err != nil {
		t.Fatalf("nil alerter must be a no-op: %v", err)
	}
}

func TestSanitizeSegment(t *testing.T) {
	if got := sanitizeSegment(" a:b|c d "); got != "a_b_c_d" {
		t.Fatalf("sanitizeSegment = %q", got)
	}
	if got := sanitizeSegment(""); got != "unknown" {
		t.Fatalf("sanitizeSegment(empty) = %q", got)
	}
}
