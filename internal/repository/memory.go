package repository

import (
	"context"
	"sync"
	"time"

	"parish/internal/models"
)

type MemoryCacheRepository struct {
	mu         sync.RWMutex
	stats      *models.Statistics
	expiresAt  time.Time
	rateLimits sync.Map
	now        func() time.Time
}

func NewMemoryCacheRepository() *MemoryCacheRepository {
	return &MemoryCacheRepository{now: time.Now}
}

func (r *MemoryCacheRepository) Get(_ context.Context) (*models.Statistics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stats == nil || (!r.expiresAt.IsZero() && r.now().After(r.expiresAt)) {
		return nil, nil
	}
	cp := *r.stats
	return &cp, nil
}

func (r *MemoryCacheRepository) Set(_ context.Context, stats *models.Statistics, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *stats
	r.stats = &cp
	r.expiresAt = time.Time{}
	if ttl > 0 {
		r.expiresAt = r.now().Add(ttl)
	}
	return nil
}

func (r *MemoryCacheRepository) Invalidate(_ context.Context) error {
	r.mu.Lock()
	r.stats = nil
	r.mu.Unlock()
	return nil
}

type rateLimitEntry struct {
	mu        sync.Mutex
	count     int
	expiresAt time.Time
}

func (r *MemoryCacheRepository) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := r.now()
	val, _ := r.rateLimits.LoadOrStore(key, &rateLimitEntry{expiresAt: now.Add(window)})
	entry := val.(*rateLimitEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if now.After(entry.expiresAt) {
		entry.count = 0
		entry.expiresAt = now.Add(window)
	}
	entry.count++
	return entry.count <= limit, nil
}
