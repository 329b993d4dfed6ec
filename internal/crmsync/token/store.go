package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilang-desa-murni/crm/pkg/database"
	"github.com/kilang-desa-murni/crm/pkg/logger"
)

// Kind distinguishes the two token families held per (user, provider).
type Kind string

const (
	KindAccess  Kind = "access_token"
	KindRefresh Kind = "refresh_token"
)

const (
	// DefaultAccessTTL is the default lifetime of a cached access token.
	DefaultAccessTTL = 30 * time.Minute
	// DefaultRefreshTTL is the default lifetime of a cached refresh token.
	DefaultRefreshTTL = 180 * 24 * time.Hour

	// ProviderBitrix24 is the only provider this store currently serves.
	ProviderBitrix24 = "b24"
)

// ErrConnection is returned when the backing store is unreachable; the
// caller should surface this as a distinct connection-error kind rather
// than a generic lookup miss.
var ErrConnection = errors.New("token store: connection error")

// Store is the encrypted, TTL-backed key-value token store (component A).
type Store struct {
	redis  *database.RedisClient
	cipher *Cipher
	log    *logger.Logger
}

// NewStore builds a Store over a Redis backend and an already self-tested cipher.
func NewStore(redis *database.RedisClient, cipher *Cipher, log *logger.Logger) *Store {
	return &Store{redis: redis, cipher: cipher, log: log}
}

func buildKey(kind Kind, userID, provider string) string {
	return fmt.Sprintf("token:%s:user:%s:provider:%s", kind, userID, provider)
}

func defaultTTL(kind Kind) time.Duration {
	if kind == KindRefresh {
		return DefaultRefreshTTL
	}
	return DefaultAccessTTL
}

// Save encrypts and stores a token under (kind, userID, provider) with the
// given TTL, or the kind's default TTL when ttl <= 0.
func (s *Store) Save(ctx context.Context, token, userID, provider string, kind Kind, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = defaultTTL(kind)
	}
	ciphertext, err := s.cipher.Encrypt(string(kind), userID, provider, token)
	if err != nil {
		return fmt.Errorf("token store: encrypt: %w", err)
	}
	key := buildKey(kind, userID, provider)
	if err := s.redis.Set(ctx, key, ciphertext, ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return nil
}

// Get retrieves and decrypts a token. It returns ("", nil) both when the
// key is absent and when the stored ciphertext fails to decrypt — a
// decrypt failure is logged as a warning and never propagated, matching
// the source system's tolerance for stale or rotated keys.
func (s *Store) Get(ctx context.Context, userID, provider string, kind Kind) (string, error) {
	key := buildKey(kind, userID, provider)
	var ciphertext string
	if err := s.redis.Get(ctx, key, &ciphertext); err != nil {
		if errors.Is(err, database.ErrKeyNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrConnection, err)
	}
	plain, err := s.cipher.Decrypt(string(kind), userID, provider, ciphertext)
	if err != nil {
		s.log.Warn().Err(err).Str("kind", string(kind)).Str("user_id", userID).
			Msg("token store: decrypt failed, treating as absent")
		return "", nil
	}
	return plain, nil
}

// Delete removes a token, reporting whether a key was actually present.
func (s *Store) Delete(ctx context.Context, userID, provider string, kind Kind) (bool, error) {
	key := buildKey(kind, userID, provider)
	existed, err := s.redis.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if !existed {
		return false, nil
	}
	if err := s.redis.Delete(ctx, key); err != nil {
		return false, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return true, nil
}

// TTL returns the remaining lifetime of a token, or -1 if absent.
func (s *Store) TTL(ctx context.Context, userID, provider string, kind Kind) (time.Duration, error) {
	key := buildKey(kind, userID, provider)
	ttl, err := s.redis.TTL(ctx, key)
	if err != nil {
		return -1, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if ttl < 0 {
		return -1, nil
	}
	return ttl, nil
}

// Exists reports whether a token is currently stored for (kind, userID, provider).
func (s *Store) Exists(ctx context.Context, userID, provider string, kind Kind) (bool, error) {
	key := buildKey(kind, userID, provider)
	ok, err := s.redis.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return ok, nil
}
