package store

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	defaultJWTIssuer   = "portfoliohub"
	defaultJWTAudience = "portfoliohub-api"
	defaultJWTKeyID    = "jwt-active"
)

var (
	ErrSessionInvalid = errors.New("invalid session token")
	ErrSessionRevoked = errors.New("session revoked")
)

// JWTOptions configures claim validation.
type JWTOptions struct {
	Issuer   string
	Audience string
	Leeway   time.Duration
}

func (o JWTOptions) normalize() JWTOptions {
	o.Issuer = strings.TrimSpace(o.Issuer)
	o.Audience = strings.TrimSpace(o.Audience)
	if o.Issuer == "" {
		o.Issuer = defaultJWTIssuer
	}
	if o.Audience == "" {
		o.Audience = defaultJWTAudience
	}
	if o.Leeway <= 0 {
		o.Leeway = 30 * time.Second
	}
	return o
}

// JWTKeys holds the active RS256 signing key and every public key accepted
// for verification, indexed by kid. Old kids stay verifiable during rotation.
type JWTKeys struct {
	signer    *rsa.PrivateKey
	signerKid string
	verifiers map[string]*rsa.PublicKey
}

// NewJWTKeys wraps an in-memory key pair.
func NewJWTKeys(signer *rsa.PrivateKey, kid string) *JWTKeys {
	if strings.TrimSpace(kid) == "" {
		kid = defaultJWTKeyID
	}
	return &JWTKeys{
		signer:    signer,
		signerKid: kid,
		verifiers: map[string]*rsa.PublicKey{kid: &signer.PublicKey},
	}
}

// GenerateJWTKeys creates an ephemeral 2048-bit key; tokens die with the process.
func GenerateJWTKeys(kid string) (*JWTKeys, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate jwt key: %w", err)
	}
	return NewJWTKeys(key, kid), nil
}

// LoadJWTKeys reads PEM files. verifyKeyFiles maps kid to a public key path and
// can include previous keys.
func LoadJWTKeys(privateKeyPath, publicKeyPath, kid string, verifyKeyFiles map[string]string) (*JWTKeys, error) {
	privateKey, err := loadRSAPrivateKeyFromPEMFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load jwt private key: %w", err)
	}
	keys := NewJWTKeys(privateKey, kid)
	if strings.TrimSpace(publicKeyPath) != "" {
		pub, err := loadRSAPublicKeyFromPEMFile(publicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load jwt public key: %w", err)
		}
		keys.verifiers[keys.signerKid] = pub
	}
	for vkid, path := range verifyKeyFiles {
		vkid, path = strings.TrimSpace(vkid), strings.TrimSpace(path)
		if vkid == "" || path == "" {
			continue
		}
		pub, err := loadRSAPublicKeyFromPEMFile(path)
		if err != nil {
			return nil, fmt.Errorf("load verify key %q: %w", vkid, err)
		}
		keys.verifiers[vkid] = pub
	}
	return keys, nil
}

// JWTSessionStore issues and validates RS256 access tokens.
type JWTSessionStore struct {
	keys    *JWTKeys
	ttl     time.Duration
	revoker TokenRevoker
	opts    JWTOptions
}

var (
	_ SessionStore       = (*JWTSessionStore)(nil)
	_ UserSessionRevoker = (*JWTSessionStore)(nil)
	_ JWKSProvider       = (*JWTSessionStore)(nil)
)

func NewJWTSessionStore(keys *JWTKeys, ttl time.Duration, revoker TokenRevoker, opts JWTOptions) (*JWTSessionStore, error) {
	if keys == nil || keys.signer == nil {
		return nil, errors.New("jwt signing key required")
	}
	if ttl <= 0 {
		return nil, errors.New("jwt ttl must be positive")
	}
	return &JWTSessionStore{keys: keys, ttl: ttl, revoker: revoker, opts: opts.normalize()}, nil
}

// TTL is the lifetime of issued tokens.
func (s *JWTSessionStore) TTL() time.Duration { return s.ttl }

func (s *JWTSessionStore) NewSession(userID string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    s.opts.Issuer,
		Audience:  jwt.ClaimStrings{s.opts.Audience},
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ID:        randomHexID(12),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.keys.signerKid
	return token.SignedString(s.keys.signer)
}

// GetUserIDByToken validates the token and returns its subject. Revoked
// tokens yield ErrSessionRevoked.
func (s *JWTSessionStore) GetUserIDByToken(token string) (string, bool, error) {
	claims, err := s.parse(token)
	if err != nil {
		return "", false, err
	}
	if err := s.checkRevoked(claims); err != nil {
		return "", false, err
	}
	return claims.Subject, true, nil
}

func (s *JWTSessionStore) checkRevoked(claims jwt.RegisteredClaims) error {
	if s.revoker == nil {
		return nil
	}
	revoked, err := s.revoker.IsRevoked(claims.ID)
	if err != nil {
		return err
	}
	if revoked {
		return ErrSessionRevoked
	}
	userRevoker, ok := s.revoker.(UserTokenRevoker)
	if !ok {
		return nil
	}
	cutoff, err := userRevoker.RevokedAfter(claims.Subject)
	if err != nil {
		return err
	}
	// iat has second precision, so the cutoff is compared at that precision.
	if !cutoff.IsZero() && claims.IssuedAt.Time.Before(cutoff.Truncate(time.Second)) {
		return ErrSessionRevoked
	}
	return nil
}

// DeleteSession revokes the token until it expires. Invalid tokens are ignored.
func (s *JWTSessionStore) DeleteSession(token string) error {
	if s.revoker == nil {
		return nil
	}
	claims, err := s.parse(token)
	if err != nil {
		return nil
	}
	return s.revoker.Revoke(claims.ID, time.Until(claims.ExpiresAt.Time))
}

// RevokeUserSessions invalidates every token the user was issued before since.
func (s *JWTSessionStore) RevokeUserSessions(userID string, since time.Time) error {
	if s.revoker == nil {
		return nil
	}
	userRevoker, ok := s.revoker.(UserTokenRevoker)
	if !ok {
		return errors.New("session revoker does not support user revocation")
	}
	return userRevoker.RevokeUser(userID, since)
}

// JWKS publishes the verification keys sorted by kid.
func (s *JWTSessionStore) JWKS() []JWK {
	kids := make([]string, 0, len(s.keys.verifiers))
	for kid := range s.keys.verifiers {
		kids = append(kids, kid)
	}
	sort.Strings(kids)
	out := make([]JWK, 0, len(kids))
	for _, kid := range kids {
		pub := s.keys.verifiers[kid]
		out = append(out, JWK{
			Kty: "RSA",
			Use: "sig",
			Kid: kid,
			Alg: jwt.SigningMethodRS256.Alg(),
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	return out
}

func (s *JWTSessionStore) parse(token string) (jwt.RegisteredClaims, error) {
	var claims jwt.RegisteredClaims
	token = strings.TrimSpace(token)
	if token == "" {
		return claims, ErrSessionInvalid
	}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		pub, ok := s.keys.verifiers[strings.TrimSpace(kid)]
		if !ok {
			return nil, errors.New("unknown token key")
		}
		return pub, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.opts.Leeway),
		jwt.WithIssuer(s.opts.Issuer),
		jwt.WithAudience(s.opts.Audience),
	)
	if err != nil || !parsed.Valid {
		return claims, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}
	if strings.TrimSpace(claims.ID) == "" || strings.TrimSpace(claims.Subject) == "" || claims.IssuedAt == nil {
		return claims, fmt.Errorf("%w: missing claims", ErrSessionInvalid)
	}
	return claims, nil
}

func loadRSAPrivateKeyFromPEMFile(path string) (*rsa.PrivateKey, error) {
	block, err := readPEMBlock(path)
	if err != nil {
		return nil, err
	}
	if pkcs1, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return pkcs1, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	privateKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not rsa")
	}
	return privateKey, nil
}

func loadRSAPublicKeyFromPEMFile(path string) (*rsa.PublicKey, error) {
	block, err := readPEMBlock(path)
	if err != nil {
		return nil, err
	}
	if pubAny, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		pub, ok := pubAny.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("public key is not rsa")
		}
		return pub, nil
	}
	if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
		pub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("certificate public key is not rsa")
		}
		return pub, nil
	}
	return nil, errors.New("failed to parse rsa public key")
}

func readPEMBlock(path string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("invalid pem")
	}
	return block, nil
}

func randomHexID(nBytes int) string {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
