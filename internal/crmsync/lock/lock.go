// Package lock implements the distributed lock service (component H)
// used by the webhook pipeline to serialize concurrent processing of the
// same entity id.
package lock

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/kilang-desa-murni/crm/pkg/database"
	"github.com/kilang-desa-murni/crm/pkg/errors"
	"github.com/kilang-desa-murni/crm/pkg/logger"
)

const (
	DefaultLease      = 300 * time.Second
	DefaultMaxRetries = 4
	DefaultBaseDelay  = 1 * time.Second
	DefaultMaxDelay   = 30 * time.Second

	lockPrefix = "deal_lock:"
)

// Options configures one Acquire call; zero values fall back to the
// package defaults.
type Options struct {
	Lease      time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     bool
}

func (o Options) withDefaults() Options {
	if o.Lease <= 0 {
		o.Lease = DefaultLease
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	return o
}

// Handle represents a held lock; release it when the critical section ends.
type Handle struct {
	key     string
	token   string
	service *Service
}

// Service is a Redis-backed distributed lock with retrying acquisition.
type Service struct {
	redis *database.RedisClient
	log   *logger.Logger
	rand  func() float64
}

// New builds a lock Service over the shared Redis connection.
func New(redis *database.RedisClient, log *logger.Logger) *Service {
	return &Service{redis: redis, log: log, rand: rand.Float64}
}

func lockKey(entityID string) string { return lockPrefix + entityID }

// Acquire attempts to set the lock key with a TTL equal to the lease. If
// the key is already present, it waits min(base*2^attempt, max) (times
// random(0.5, 1.5) when opts.Jitter is set) and retries, up to
// max_retries+1 total attempts.
func (s *Service) Acquire(ctx context.Context, entityID string, opts Options) (*Handle, error) {
	opts = opts.withDefaults()
	key := lockKey(entityID)
	token := fmt.Sprintf("%d", time.Now().UnixNano())

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		acquired, err := s.redis.Client().SetNX(ctx, key, token, opts.Lease).Result()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeLockAcquisition, "lock acquisition transport error")
		}
		if acquired {
			s.log.Info().Str("entity_id", entityID).Int("attempt", attempt+1).Msg("lock acquired")
			return &Handle{key: key, token: token, service: s}, nil
		}

		if attempt == opts.MaxRetries {
			break
		}

		delay := s.calculateDelay(attempt, opts.BaseDelay, opts.MaxDelay, opts.Jitter)
		remaining, _ := s.RemainingLockTime(ctx, entityID)
		s.log.Warn().Str("entity_id", entityID).Dur("retry_in", delay).Dur("remaining_lock", remaining).
			Int("attempt", attempt+1).Msg("lock busy, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, errors.Newf(errors.ErrCodeMaxRetries, "failed to acquire lock for %s after %d attempts", entityID, opts.MaxRetries+1)
}

// calculateDelay implements min(base*2^attempt, max), multiplied by
// random(0.5, 1.5) when jitter is true.
func (s *Service) calculateDelay(attempt int, base, max time.Duration, jitter bool) time.Duration {
	exp := base * time.Duration(1<<uint(attempt))
	if exp > max {
		exp = max
	}
	if !jitter {
		return exp
	}
	factor := 0.5 + s.rand()
	return time.Duration(float64(exp) * factor)
}

// Release best-effort unsets the lock; a failure to release is logged,
// never propagated.
func (h *Handle) Release(ctx context.Context) {
	removed, err := h.service.redis.Client().Eval(ctx, releaseScript, []string{h.key}, h.token).Result()
	if err != nil {
		h.service.log.Warn().Err(err).Str("key", h.key).Msg("lock release failed")
		return
	}
	if n, ok := removed.(int64); !ok || n == 0 {
		h.service.log.Warn().Str("key", h.key).Msg("lock release: token mismatch or already expired")
	}
}

// releaseScript only deletes the key if it still holds this handle's
// token, avoiding releasing a lock some other holder has since acquired
// after this one's lease expired.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// RemainingLockTime reads the TTL of the given entity's lock key.
func (s *Service) RemainingLockTime(ctx context.Context, entityID string) (time.Duration, error) {
	ttl, err := s.redis.TTL(ctx, lockKey(entityID))
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeLockAcquisition, "read lock ttl")
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// IsLocked reports whether the given entity currently holds a lock.
func (s *Service) IsLocked(ctx context.Context, entityID string) bool {
	ok, err := s.redis.Exists(ctx, lockKey(entityID))
	if err != nil {
		s.log.Error().Err(err).Str("entity_id", entityID).Msg("error checking lock status")
		return false
	}
	return ok
}
