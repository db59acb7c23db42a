package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"parish/internal/database"
	"parish/internal/domain"
	"parish/internal/models"

	"github.com/rs/zerolog"
)

// ResourceService keeps an in-memory copy of the resource catalogue.
type ResourceService struct {
	repo      domain.ResourceRepository
	logger    *zerolog.Logger
	resources map[int64]models.Resource
	loaded    bool
	mu        sync.RWMutex
}

func NewResourceService(repo domain.ResourceRepository, logger *zerolog.Logger) *ResourceService {
	return &ResourceService{
		repo:      repo,
		logger:    logger,
		resources: make(map[int64]models.Resource),
	}
}

// Reload replaces the cache with what is stored.
func (s *ResourceService) Reload(ctx context.Context) error {
	list, err := s.repo.ListResources(ctx)
	if err != nil {
		return err
	}

	m := make(map[int64]models.Resource, len(list))
	for _, r := range list {
		m[r.ID] = r
	}

	s.mu.Lock()
	s.resources = m
	s.loaded = true
	s.mu.Unlock()
	return nil
}

func (s *ResourceService) ensureLoaded(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}
	return s.Reload(ctx)
}

func (s *ResourceService) List(ctx context.Context) ([]models.Resource, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]models.Resource, 0, len(s.resources))
	for _, r := range s.resources {
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *ResourceService) Get(ctx context.Context, id int64) (*models.Resource, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	r, ok := s.resources[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("resource %d: %w", id, database.ErrNotFound)
	}
	return &r, nil
}

func (s *ResourceService) Create(ctx context.Context, r *models.Resource) error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return fmt.Errorf("resource name is required: %w", ErrValidation)
	}
	if r.Capacity < 0 {
		return fmt.Errorf("negative capacity: %w", ErrValidation)
	}
	if r.Status == "" {
		r.Status = models.ResourceAvailable
	}
	if _, err := models.ParseResourceStatus(string(r.Status)); err != nil {
		return fmt.Errorf("%v: %w", err, ErrValidation)
	}

	if err := s.repo.CreateResource(ctx, r); err != nil {
		return err
	}

	s.mu.Lock()
	s.resources[r.ID] = *r
	s.mu.Unlock()

	s.logger.Info().Int64("resource_id", r.ID).Str("name", r.Name).Msg("resource created")
	return nil
}

func (s *ResourceService) SetStatus(ctx context.Context, id int64, raw string) (*models.Resource, error) {
	status, err := models.ParseResourceStatus(raw)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrValidation)
	}
	if err := s.repo.UpdateResourceStatus(ctx, id, status); err != nil {
		return nil, err
	}

	r, err := s.repo.GetResource(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.resources[id] = *r
	s.mu.Unlock()

	s.logger.Info().Int64("resource_id", id).Str("status", string(status)).Msg("resource status changed")
	return r, nil
}

// Sync upserts the configured catalogue and reloads the cache.
func (s *ResourceService) Sync(ctx context.Context, resources []models.Resource) error {
	if len(resources) == 0 {
		return s.Reload(ctx)
	}
	if err := s.repo.SyncResources(ctx, resources); err != nil {
		return err
	}
	s.logger.Info().Int("count", len(resources)).Msg("resources synced from config")
	return s.Reload(ctx)
}
