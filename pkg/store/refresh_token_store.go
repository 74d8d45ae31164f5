package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrInvalidRefreshToken indicates token not found or expired.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrRefreshTokenReplay indicates a rotated token was presented again.
	ErrRefreshTokenReplay = errors.New("refresh token replay detected")
)

// RefreshTokenStore persists refresh tokens in families: each rotation
// replaces the family's current token, and presenting a superseded token
// revokes the whole family.
type RefreshTokenStore interface {
	NewToken(ctx context.Context, userID string, ttl time.Duration) (string, error)
	RotateToken(ctx context.Context, token string, ttl time.Duration) (userID string, newToken string, err error)
	DeleteToken(ctx context.Context, token string) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
}

type memoryFamily struct {
	userID  string
	current string
	expiry  time.Time
	hashes  []string
}

// MemoryRefreshTokenStore keeps refresh token families in memory.
type MemoryRefreshTokenStore struct {
	mu       sync.Mutex
	families map[string]*memoryFamily // familyID -> family
	byHash   map[string]string        // tokenHash -> familyID
}

func NewMemoryRefreshTokenStore() *MemoryRefreshTokenStore {
	return &MemoryRefreshTokenStore{
		families: make(map[string]*memoryFamily),
		byHash:   make(map[string]string),
	}
}

func (s *MemoryRefreshTokenStore) NewToken(_ context.Context, userID string, ttl time.Duration) (string, error) {
	token, hash, err := newRefreshToken()
	if err != nil {
		return "", err
	}
	familyID := randomHexID(16)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.families[familyID] = &memoryFamily{
		userID:  userID,
		current: hash,
		expiry:  time.Now().Add(ttl),
		hashes:  []string{hash},
	}
	s.byHash[hash] = familyID
	return token, nil
}

func (s *MemoryRefreshTokenStore) RotateToken(_ context.Context, token string, ttl time.Duration) (string, string, error) {
	hash := refreshTokenHash(token)
	s.mu.Lock()
	defer s.mu.Unlock()

	familyID, ok := s.byHash[hash]
	if !ok {
		return "", "", ErrInvalidRefreshToken
	}
	family := s.families[familyID]
	if family == nil || time.Now().After(family.expiry) {
		s.dropFamilyLocked(familyID)
		return "", "", ErrInvalidRefreshToken
	}
	if family.current != hash {
		s.dropFamilyLocked(familyID)
		return "", "", ErrRefreshTokenReplay
	}
	next, nextHash, err := newRefreshToken()
	if err != nil {
		return "", "", err
	}
	family.current = nextHash
	family.expiry = time.Now().Add(ttl)
	family.hashes = append(family.hashes, nextHash)
	s.byHash[nextHash] = familyID
	return family.userID, next, nil
}

func (s *MemoryRefreshTokenStore) DeleteToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if familyID, ok := s.byHash[refreshTokenHash(token)]; ok {
		s.dropFamilyLocked(familyID)
	}
	return nil
}

func (s *MemoryRefreshTokenStore) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for familyID, family := range s.families {
		if family.userID == userID {
			s.dropFamilyLocked(familyID)
		}
	}
	return nil
}

func (s *MemoryRefreshTokenStore) dropFamilyLocked(familyID string) {
	if family, ok := s.families[familyID]; ok {
		for _, h := range family.hashes {
			delete(s.byHash, h)
		}
	}
	delete(s.families, familyID)
}

// RedisRefreshTokenStore stores refresh token families in Redis.
//
// Keys: <p>:refresh:token:<hash> -> familyID, <p>:refresh:family:<id> hash
// {userId,currentHash}, <p>:refresh:family_tokens:<id> set of hashes,
// <p>:refresh:user:<userID> set of family IDs.
type RedisRefreshTokenStore struct {
	client *redis.Client
	prefix string
}

func NewRedisRefreshTokenStore(client *redis.Client, prefix string) *RedisRefreshTokenStore {
	if prefix == "" {
		prefix = "portfolio"
	}
	return &RedisRefreshTokenStore{client: client, prefix: prefix + ":refresh"}
}

func (s *RedisRefreshTokenStore) tokenKey(hash string) string { return s.prefix + ":token:" + hash }
func (s *RedisRefreshTokenStore) familyKey(id string) string  { return s.prefix + ":family:" + id }
func (s *RedisRefreshTokenStore) familyTokensKey(id string) string {
	return s.prefix + ":family_tokens:" + id
}
func (s *RedisRefreshTokenStore) userKey(userID string) string { return s.prefix + ":user:" + userID }

// linkToken records hash as the family's current token and refreshes TTLs.
func (s *RedisRefreshTokenStore) linkToken(ctx context.Context, pipe redis.Pipeliner, familyID, userID, hash string, ttl time.Duration) {
	pipe.Set(ctx, s.tokenKey(hash), familyID, ttl)
	pipe.HSet(ctx, s.familyKey(familyID), "userId", userID, "currentHash", hash)
	pipe.Expire(ctx, s.familyKey(familyID), ttl)
	pipe.SAdd(ctx, s.familyTokensKey(familyID), hash)
	pipe.Expire(ctx, s.familyTokensKey(familyID), ttl)
	pipe.SAdd(ctx, s.userKey(userID), familyID)
	pipe.Expire(ctx, s.userKey(userID), ttl)
}

func (s *RedisRefreshTokenStore) NewToken(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	token, hash, err := newRefreshToken()
	if err != nil {
		return "", err
	}
	familyID := randomHexID(16)
	pipe := s.client.TxPipeline()
	s.linkToken(ctx, pipe, familyID, userID, hash, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	return token, nil
}

// RotateToken swaps the family's current token under WATCH; a concurrent
// rotation of the same token retries and then sees a replay.
func (s *RedisRefreshTokenStore) RotateToken(ctx context.Context, token string, ttl time.Duration) (string, string, error) {
	hash := refreshTokenHash(token)
	for {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}
		familyID, err := s.client.Get(ctx, s.tokenKey(hash)).Result()
		if err == redis.Nil {
			return "", "", ErrInvalidRefreshToken
		}
		if err != nil {
			return "", "", err
		}

		var userID, next string
		familyKey := s.familyKey(familyID)
		err = s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.HGetAll(ctx, familyKey).Result()
			if err != nil {
				return err
			}
			userID = data["userId"]
			if userID == "" || data["currentHash"] == "" {
				return ErrInvalidRefreshToken
			}
			if data["currentHash"] != hash {
				return ErrRefreshTokenReplay
			}
			var nextHash string
			next, nextHash, err = newRefreshToken()
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				s.linkToken(ctx, pipe, familyID, userID, nextHash, ttl)
				return nil
			})
			return err
		}, familyKey)

		switch {
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrRefreshTokenReplay), errors.Is(err, ErrInvalidRefreshToken):
			_ = s.dropFamily(ctx, familyID, userID)
			return "", "", err
		case err != nil:
			return "", "", err
		}
		return userID, next, nil
	}
}

func (s *RedisRefreshTokenStore) DeleteToken(ctx context.Context, token string) error {
	familyID, err := s.client.Get(ctx, s.tokenKey(refreshTokenHash(token))).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	return s.dropFamily(ctx, familyID, "")
}

func (s *RedisRefreshTokenStore) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	familyIDs, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	for _, familyID := range familyIDs {
		if err := s.dropFamily(ctx, familyID, userID); err != nil {
			return err
		}
	}
	return s.client.Del(ctx, s.userKey(userID)).Err()
}

func (s *RedisRefreshTokenStore) dropFamily(ctx context.Context, familyID, userID string) error {
	if userID == "" {
		var err error
		userID, err = s.client.HGet(ctx, s.familyKey(familyID), "userId").Result()
		if err != nil && err != redis.Nil {
			return err
		}
	}
	hashes, err := s.client.SMembers(ctx, s.familyTokensKey(familyID)).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	pipe := s.client.TxPipeline()
	for _, h := range hashes {
		pipe.Del(ctx, s.tokenKey(h))
	}
	pipe.Del(ctx, s.familyTokensKey(familyID), s.familyKey(familyID))
	if userID != "" {
		pipe.SRem(ctx, s.userKey(userID), familyID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func newRefreshToken() (token, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(buf)
	return token, refreshTokenHash(token), nil
}

func refreshTokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
