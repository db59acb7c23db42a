package repository

import (
	"context"
	"sync/atomic"
	"time"

	"parish/internal/domain"
	"parish/internal/models"

	"github.com/rs/zerolog"
)

// CacheStore is what both cache backends provide.
type CacheStore interface {
	domain.StatsCache
	domain.RateLimiter
}

const recoveryInterval = time.Minute

// FailoverCacheRepository routes calls to the primary store and switches to
// the fallback on the first error. The primary is retried once per minute.
type FailoverCacheRepository struct {
	primary   CacheStore
	fallback  CacheStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverCacheRepository(primary, fallback CacheStore, logger *zerolog.Logger) *FailoverCacheRepository {
	return &FailoverCacheRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverCacheRepository) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary cache failed, falling back to memory")
	}
	r.lastCheck.Store(time.Now().UnixNano())
}

// usePrimary reports whether the primary should be tried for this call.
func (r *FailoverCacheRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverCacheRepository) recovered() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary cache recovered")
	}
}

func (r *FailoverCacheRepository) Get(ctx context.Context) (*models.Statistics, error) {
	if r.usePrimary() {
		stats, err := r.primary.Get(ctx)
		if err == nil {
			r.recovered()
			return stats, nil
		}
		r.markDown(err)
	}
	return r.fallback.Get(ctx)
}

func (r *FailoverCacheRepository) Set(ctx context.Context, stats *models.Statistics, ttl time.Duration) error {
	if r.usePrimary() {
		err := r.primary.Set(ctx, stats, ttl)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.Set(ctx, stats, ttl)
}

// Invalidate clears both stores so a recovered primary cannot serve
// a snapshot older than the fallback's.
func (r *FailoverCacheRepository) Invalidate(ctx context.Context) error {
	fbErr := r.fallback.Invalidate(ctx)
	if r.usePrimary() {
		if err := r.primary.Invalidate(ctx); err != nil {
			r.markDown(err)
		} else {
			r.recovered()
		}
	}
	return fbErr
}

func (r *FailoverCacheRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.recovered()
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
