package store

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestTokenRevokersUserCutoffMonotonic(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	revokers := map[string]UserTokenRevoker{
		"memory": NewMemoryTokenRevoker(),
		"redis":  NewRedisTokenRevoker(client, "test", time.Hour),
	}
	for name, r := range revokers {
		t.Run(name, func(t *testing.T) {
			first := time.Now().UTC().Add(-time.Minute).Truncate(time.Millisecond)
			second := time.Now().UTC().Truncate(time.Millisecond)

			if err := r.RevokeUser("user-1", first); err != nil {
				t.Fatalf("revoke first: %v", err)
			}
			if err := r.RevokeUser("user-1", first.Add(-time.Minute)); err != nil {
				t.Fatalf("revoke older: %v", err)
			}
			got, err := r.RevokedAfter("user-1")
			if err != nil || !got.Equal(first) {
				t.Fatalf("expected first cutoff kept, got %v err=%v", got, err)
			}
			if err := r.RevokeUser("user-1", second); err != nil {
				t.Fatalf("revoke second: %v", err)
			}
			if got, _ := r.RevokedAfter("user-1"); !got.Equal(second) {
				t.Fatalf("expected newest cutoff, got %v", got)
			}
			if got, _ := r.RevokedAfter("nobody"); !got.IsZero() {
				t.Fatalf("expected zero cutoff for unknown user, got %v", got)
			}
		})
	}
}

func TestTokenRevokersJTI(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	revokers := map[string]TokenRevoker{
		"memory": NewMemoryTokenRevoker(),
		"redis":  NewRedisTokenRevoker(client, "test", time.Hour),
	}
	for name, r := range revokers {
		t.Run(name, func(t *testing.T) {
			if err := r.Revoke("jti-1", time.Minute); err != nil {
				t.Fatalf("revoke: %v", err)
			}
			if err := r.Revoke("jti-expired", 0); err != nil {
				t.Fatalf("revoke zero ttl: %v", err)
			}
			if ok, err := r.IsRevoked("jti-1"); err != nil || !ok {
				t.Fatalf("expected jti-1 revoked: ok=%v err=%v", ok, err)
			}
			if ok, _ := r.IsRevoked("jti-expired"); ok {
				t.Fatalf("zero ttl must not revoke")
			}
		})
	}
}
