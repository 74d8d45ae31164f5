package store

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func TestJWTSessionStoreRoundTripAndJWKS(t *testing.T) {
	privatePath, publicPath := writeRSAKeyPairFiles(t, "active")
	keys, err := LoadJWTKeys(privatePath, publicPath, "kid-active", nil)
	if err != nil {
		t.Fatalf("load keys: %v", err)
	}
	s, err := NewJWTSessionStore(keys, time.Minute, NewMemoryTokenRevoker(), JWTOptions{})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	userID, ok, err := s.GetUserIDByToken(token)
	if err != nil || !ok || userID != "user-1" {
		t.Fatalf("unexpected verify result: ok=%v userID=%q err=%v", ok, userID, err)
	}

	jwks := s.JWKS()
	if len(jwks) != 1 || jwks[0].Kid != "kid-active" {
		t.Fatalf("unexpected jwks: %+v", jwks)
	}
	if jwks[0].Kty != "RSA" || jwks[0].Alg != "RS256" || jwks[0].N == "" || jwks[0].E == "" {
		t.Fatalf("unexpected jwk fields: %+v", jwks[0])
	}
}

func TestJWTSessionStoreEnforcesAudience(t *testing.T) {
	keys := generateKeys(t, "shared")
	signing := newSessionStore(t, keys, nil, JWTOptions{Audience: "aud-a"})
	verify := newSessionStore(t, keys, nil, JWTOptions{Audience: "aud-b"})

	token, err := signing.NewSession("user-claim")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, _, err := verify.GetUserIDByToken(token); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected audience mismatch to fail, got %v", err)
	}
}

func TestJWTSessionStoreRevokesByJTI(t *testing.T) {
	s := newSessionStore(t, generateKeys(t, ""), NewMemoryTokenRevoker(), JWTOptions{})

	token, err := s.NewSession("user-revoke")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.DeleteSession(token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, ok, err := s.GetUserIDByToken(token); !errors.Is(err, ErrSessionRevoked) || ok {
		t.Fatalf("expected revoked token to fail, ok=%v err=%v", ok, err)
	}
}

func TestJWTSessionStoreRevokesByUserCutoff(t *testing.T) {
	revoker := NewMemoryTokenRevoker()
	s := newSessionStore(t, generateKeys(t, ""), revoker, JWTOptions{})

	token, err := s.NewSession("user-cutoff")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.RevokeUserSessions("user-cutoff", time.Now().Add(2*time.Second)); err != nil {
		t.Fatalf("revoke user: %v", err)
	}
	if _, ok, err := s.GetUserIDByToken(token); !errors.Is(err, ErrSessionRevoked) || ok {
		t.Fatalf("expected user-revoked token to fail, ok=%v err=%v", ok, err)
	}

	other, err := s.NewSession("someone-else")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, err := s.GetUserIDByToken(other); err != nil || !ok {
		t.Fatalf("other users must be unaffected: ok=%v err=%v", ok, err)
	}
}

func TestJWTSessionStoreSessionIssuedAtCutoffSecondSurvives(t *testing.T) {
	revoker := NewMemoryTokenRevoker()
	s := newSessionStore(t, generateKeys(t, ""), revoker, JWTOptions{})
	if err := revoker.RevokeUser("user-x", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("revoke user: %v", err)
	}
	token, err := s.NewSession("user-x")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, err := s.GetUserIDByToken(token); err != nil || !ok {
		t.Fatalf("token issued after cutoff must verify: ok=%v err=%v", ok, err)
	}
}

func TestJWTSessionStoreVerifiesPreviousKeyDuringRotation(t *testing.T) {
	oldPrivate, oldPublic := writeRSAKeyPairFiles(t, "old")
	newPrivate, newPublic := writeRSAKeyPairFiles(t, "new")

	oldKeys, err := LoadJWTKeys(oldPrivate, oldPublic, "kid-old", nil)
	if err != nil {
		t.Fatalf("load old keys: %v", err)
	}
	oldToken, err := newSessionStore(t, oldKeys, nil, JWTOptions{}).NewSession("user-2")
	if err != nil {
		t.Fatalf("old token: %v", err)
	}

	rotated, err := LoadJWTKeys(newPrivate, newPublic, "kid-new", map[string]string{"kid-old": oldPublic})
	if err != nil {
		t.Fatalf("load rotated keys: %v", err)
	}
	s := newSessionStore(t, rotated, nil, JWTOptions{})
	if userID, ok, err := s.GetUserIDByToken(oldToken); err != nil || !ok || userID != "user-2" {
		t.Fatalf("old token should verify: ok=%v userID=%q err=%v", ok, userID, err)
	}
	if got := len(s.JWKS()); got != 2 {
		t.Fatalf("expected 2 jwks entries, got %d", got)
	}

	unrotated, err := LoadJWTKeys(newPrivate, newPublic, "kid-new", nil)
	if err != nil {
		t.Fatalf("load keys: %v", err)
	}
	if _, _, err := newSessionStore(t, unrotated, nil, JWTOptions{}).GetUserIDByToken(oldToken); err == nil {
		t.Fatalf("expected error for unknown kid")
	}
}

func TestJWTSessionStoreRejectsMalformedClaims(t *testing.T) {
	keys := generateKeys(t, "jwt-active")
	s := newSessionStore(t, keys, nil, JWTOptions{})
	now := time.Now().UTC()
	base := jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    defaultJWTIssuer,
		Audience:  jwt.ClaimStrings{defaultJWTAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		ID:        "jti-1",
	}

	tests := []struct {
		name   string
		mutate func(*jwt.RegisteredClaims)
		kid    string
	}{
		{name: "future iat", mutate: func(c *jwt.RegisteredClaims) { c.IssuedAt = jwt.NewNumericDate(now.Add(2 * time.Minute)) }, kid: "jwt-active"},
		{name: "missing jti", mutate: func(c *jwt.RegisteredClaims) { c.ID = "" }, kid: "jwt-active"},
		{name: "missing exp", mutate: func(c *jwt.RegisteredClaims) { c.ExpiresAt = nil }, kid: "jwt-active"},
		{name: "wrong issuer", mutate: func(c *jwt.RegisteredClaims) { c.Issuer = "elsewhere" }, kid: "jwt-active"},
		{name: "missing kid", mutate: func(*jwt.RegisteredClaims) {}, kid: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			claims := base
			tc.mutate(&claims)
			token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
			if tc.kid != "" {
				token.Header["kid"] = tc.kid
			}
			signed, err := token.SignedString(keys.signer)
			if err != nil {
				t.Fatalf("sign token: %v", err)
			}
			if _, _, err := s.GetUserIDByToken(signed); !errors.Is(err, ErrSessionInvalid) {
				t.Fatalf("expected ErrSessionInvalid, got %v", err)
			}
		})
	}
}

func generateKeys(t *testing.T, kid string) *JWTKeys {
	t.Helper()
	keys, err := GenerateJWTKeys(kid)
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}
	return keys
}

func newSessionStore(t *testing.T, keys *JWTKeys, revoker TokenRevoker, opts JWTOptions) *JWTSessionStore {
	t.Helper()
	s, err := NewJWTSessionStore(keys, time.Minute, revoker, opts)
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	return s
}

func writeRSAKeyPairFiles(t *testing.T, prefix string) (string, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	dir := t.TempDir()
	privatePath := filepath.Join(dir, prefix+"-private.pem")
	publicPath := filepath.Join(dir, prefix+"-public.pem")

	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(privatePath, privatePEM, 0o600); err != nil {
		t.Fatalf("write private key: %v", err)
	}
	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})
	if err := os.WriteFile(publicPath, publicPEM, 0o644); err != nil {
		t.Fatalf("write public key: %v", err)
	}
	return privatePath, publicPath
}
