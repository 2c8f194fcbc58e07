package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheServiceParams groups constructor dependencies.
type CacheServiceParams struct {
	Repo       CacheRepository
	Metrics    *MetricsService
	Logger     *zap.Logger
	DefaultTTL time.Duration
	// Cooldown is how long the cache is bypassed after a backend failure.
	Cooldown time.Duration
	Now      func() time.Time
}

// CacheService fronts the dashboard cache. Backend failures never fail a
// request; they put the cache into a cooldown during which every read is a
// miss and writes are skipped.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	logger     *zap.Logger
	defaultTTL time.Duration
	cooldown   time.Duration
	now        func() time.Time

	mu            sync.Mutex
	degradedUntil time.Time
}

// NewCacheService constructs a cache service. A nil repo disables caching.
func NewCacheService(params CacheServiceParams) *CacheService {
	s := &CacheService{
		repo:       params.Repo,
		metrics:    params.Metrics,
		logger:     params.Logger,
		defaultTTL: params.DefaultTTL,
		cooldown:   params.Cooldown,
		now:        params.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.defaultTTL <= 0 {
		s.defaultTTL = 5 * time.Minute
	}
	if s.cooldown <= 0 {
		s.cooldown = 30 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Enabled reports whether a backend is configured.
func (s *CacheService) Enabled() bool {
	return s != nil && s.repo != nil
}

// Degraded reports whether the cache is cooling down after a backend failure.
func (s *CacheService) Degraded() bool {
	if !s.Enabled() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Before(s.degradedUntil)
}

func (s *CacheService) usable() bool {
	return s.Enabled() && !s.Degraded()
}

func (s *CacheService) trip(op, key string, err error) {
	s.mu.Lock()
	s.degradedUntil = s.now().Add(s.cooldown)
	s.mu.Unlock()
	s.logger.Warn("cache backend failed, bypassing",
		zap.String("op", op), zap.String("key", key),
		zap.Duration("cooldown", s.cooldown), zap.Error(err))
}

// Get reads key into dest and reports whether it was a hit. Misses, backend
// errors and a degraded cache all yield false.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) bool {
	if !s.usable() {
		return false
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	switch {
	case err == nil:
		return true
	case errors.Is(err, appErrors.ErrCacheMiss):
	default:
		s.trip("get", key, err)
	}
	return false
}

// Set stores value under key. ttl <= 0 uses the default TTL.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if !s.usable() {
		return
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.trip("set", key, err)
	}
}

// Invalidate removes every key matching pattern. It is attempted even while
// degraded so a recovering backend never serves entries older than a write.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.trip("invalidate", pattern, err)
		return err
	}
	return nil
}

// Remember returns the cached value for key, or computes it with load and
// caches the result. The bool reports a cache hit.
func Remember[T any](ctx context.Context, s *CacheService, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, bool, error) {
	var cached T
	if s.Get(ctx, key, &cached) {
		return cached, true, nil
	}
	value, err := load(ctx)
	if err != nil {
		return value, false, err
	}
	s.Set(ctx, key, value, ttl)
	return value, false, nil
}
