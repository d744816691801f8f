package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"kiosk/internal/insurance/models"
	"kiosk/pkg/domain"
	"kiosk/pkg/platform/tx"
)

// Backend is the persistent registry behind the cache.
type Backend interface {
	Create(ctx context.Context, ins *models.Insurance) error
	FindByCitizen(ctx context.Context, citizenID domain.CitizenID) (*models.Insurance, error)
	Delete(ctx context.Context, citizenID domain.CitizenID) error
	ListValid(ctx context.Context, asOf domain.Day) ([]*models.Insurance, error)
	ListExpired(ctx context.Context, asOf domain.Day) ([]*models.Insurance, error)
	ListExpiringSoon(ctx context.Context, asOf domain.Day, days int) ([]*models.Insurance, error)
}

// Cache holds serialized cards keyed by citizen id. Get returns ok=false on a miss.
type Cache interface {
	Get(ctx context.Context, citizenID domain.CitizenID) (*models.Insurance, bool, error)
	Set(ctx context.Context, ins *models.Insurance) error
	Delete(ctx context.Context, citizenID domain.CitizenID) error
}

// CachedStore is a read-through cache in front of a Backend. Only hits are
// cached; writes drop the entry. Concurrent misses for one citizen share a
// single backend read, which runs outside any caller's transaction. Reads made
// inside a transaction go straight to the backend and are not cached.
type CachedStore struct {
	Backend
	cache       Cache
	group       singleflight.Group
	readTimeout time.Duration
	logger      *slog.Logger
}

type CachedOption func(*CachedStore)

func WithCacheLogger(logger *slog.Logger) CachedOption {
	return func(s *CachedStore) {
		s.logger = logger
	}
}

// WithSharedReadTimeout bounds the detached backend read behind a cache miss.
func WithSharedReadTimeout(d time.Duration) CachedOption {
	return func(s *CachedStore) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

// DefaultSharedReadTimeout applies when no WithSharedReadTimeout option is given.
const DefaultSharedReadTimeout = 5 * time.Second

func NewCached(backend Backend, cache Cache, opts ...CachedOption) *CachedStore {
	s := &CachedStore{Backend: backend, cache: cache, readTimeout: DefaultSharedReadTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CachedStore) FindByCitizen(ctx context.Context, citizenID domain.CitizenID) (*models.Insurance, error) {
	if tx.InTx(ctx) {
		return s.Backend.FindByCitizen(ctx, citizenID)
	}
	if ins, ok, err := s.cache.Get(ctx, citizenID); err == nil && ok {
		return ins, nil
	} else if err != nil {
		s.warn(ctx, "insurance cache read failed", citizenID, err)
	}

	ch := s.group.DoChan(citizenID.String(), func() (any, error) {
		shared, cancel := context.WithTimeout(tx.Detach(ctx), s.readTimeout)
		defer cancel()
		ins, err := s.Backend.FindByCitizen(shared, citizenID)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(shared, ins); err != nil {
			s.warn(shared, "insurance cache write failed", citizenID, err)
		}
		return ins, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		cp := *res.Val.(*models.Insurance)
		return &cp, nil
	}
}

func (s *CachedStore) Create(ctx context.Context, ins *models.Insurance) error {
	if err := s.Backend.Create(ctx, ins); err != nil {
		return err
	}
	s.Invalidate(ctx, ins.CitizenID)
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, citizenID domain.CitizenID) error {
	if err := s.Backend.Delete(ctx, citizenID); err != nil {
		return err
	}
	s.Invalidate(ctx, citizenID)
	return nil
}

// Invalidate drops the entry. Services call it again after commit so a read
// racing the transaction cannot leave a stale card behind.
func (s *CachedStore) Invalidate(ctx context.Context, citizenID domain.CitizenID) {
	if err := s.cache.Delete(ctx, citizenID); err != nil {
		s.warn(ctx, "insurance cache invalidation failed", citizenID, err)
	}
}

func (s *CachedStore) warn(ctx context.Context, msg string, citizenID domain.CitizenID, err error) {
	if s.logger != nil {
		s.logger.WarnContext(ctx, msg, "citizen_id", citizenID.String(), "error", err)
	}
}

const insuranceKeyPrefix = "insurance:citizen:"

// DefaultCacheTTL bounds how long a cached card may outlive an invalidation that failed.
const DefaultCacheTTL = 10 * time.Minute

// RedisCache stores cards as JSON strings with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, citizenID domain.CitizenID) (*models.Insurance, bool, error) {
	raw, err := c.client.Get(ctx, insuranceKeyPrefix+citizenID.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var ins models.Insurance
	if err := json.Unmarshal(raw, &ins); err != nil {
		return nil, false, fmt.Errorf("decode cached insurance: %w", err)
	}
	return &ins, true, nil
}

func (c *RedisCache) Set(ctx context.Context, ins *models.Insurance) error {
	raw, err := json.Marshal(ins)
	if err != nil {
		return fmt.Errorf("encode insurance: %w", err)
	}
	return c.client.Set(ctx, insuranceKeyPrefix+ins.CitizenID.String(), raw, c.ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, citizenID domain.CitizenID) error {
	return c.client.Del(ctx, insuranceKeyPrefix+citizenID.String()).Err()
}
