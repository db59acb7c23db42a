package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"parish/internal/database"
	"parish/internal/domain"
	"parish/internal/events"
	"parish/internal/metrics"
	"parish/internal/models"
	"parish/internal/recurrence"
	"parish/internal/stats"

	"github.com/rs/zerolog"
)

type ProgrammeService struct {
	repo     domain.Repository
	cache    domain.StatsCache
	eventBus domain.EventPublisher
	cacheTTL time.Duration
	loc      *time.Location
	now      func() time.Time
	logger   *zerolog.Logger

	// generation is bumped by every write so that a Refresh which read
	// storage before the write does not store its snapshot.
	genMu      sync.Mutex
	generation uint64
}

func NewProgrammeService(
	repo domain.Repository,
	cache domain.StatsCache,
	eventBus domain.EventPublisher,
	cacheTTL time.Duration,
	loc *time.Location,
	logger *zerolog.Logger,
) *ProgrammeService {
	if cacheTTL <= 0 {
		cacheTTL = models.DefaultStatsCacheTTL * time.Second
	}
	if loc == nil {
		loc = time.Local
	}
	return &ProgrammeService{
		repo:     repo,
		cache:    cache,
		eventBus: eventBus,
		cacheTTL: cacheTTL,
		loc:      loc,
		now:      time.Now,
		logger:   logger,
	}
}

// clock is the current time in the parish zone. Trend months are
// bucketed in its location.
func (s *ProgrammeService) clock() time.Time {
	return s.now().In(s.loc)
}

func (s *ProgrammeService) validate(p *models.Programme) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return fmt.Errorf("programme name is required: %w", ErrValidation)
	}
	if p.Status == "" {
		p.Status = models.ProgrammePlanning
	}
	if _, err := models.ParseProgrammeStatus(string(p.Status)); err != nil {
		return fmt.Errorf("%v: %w", err, ErrValidation)
	}
	if !p.Start.IsZero() && !p.End.IsZero() && p.End.Before(p.Start) {
		return fmt.Errorf("programme ends before it starts: %w", ErrValidation)
	}
	if err := recurrence.Validate(*p); err != nil {
		return fmt.Errorf("%v: %w", err, ErrValidation)
	}
	return nil
}

func (s *ProgrammeService) Create(ctx context.Context, p *models.Programme) error {
	if err := s.validate(p); err != nil {
		return err
	}
	if err := s.repo.CreateProgramme(ctx, p); err != nil {
		return err
	}
	s.changed(ctx, p, "created")
	return nil
}

// Update replaces the programme details and reloads p from storage. An
// empty status keeps the stored one. Attendees are not touched here, they
// change only through AddAttendee.
func (s *ProgrammeService) Update(ctx context.Context, p *models.Programme) error {
	current, err := s.repo.GetProgramme(ctx, p.ID)
	if err != nil {
		return err
	}
	if p.Status == "" {
		p.Status = current.Status
	}
	if err := s.validate(p); err != nil {
		return err
	}
	if err := s.repo.UpdateProgramme(ctx, p); err != nil {
		return err
	}

	stored, err := s.repo.GetProgramme(ctx, p.ID)
	if err != nil {
		return err
	}
	*p = *stored
	s.changed(ctx, p, "updated")
	return nil
}

func (s *ProgrammeService) Delete(ctx context.Context, id int64) error {
	p, err := s.repo.GetProgramme(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteProgramme(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, p, "deleted")
	return nil
}

func (s *ProgrammeService) Get(ctx context.Context, id int64) (*models.Programme, error) {
	return s.repo.GetProgramme(ctx, id)
}

func (s *ProgrammeService) List(ctx context.Context) ([]models.Programme, error) {
	return s.repo.ListProgrammes(ctx)
}

func (s *ProgrammeService) AddAttendee(ctx context.Context, programmeID, memberID int64) error {
	if _, err := s.repo.GetMember(ctx, memberID); err != nil {
		return err
	}
	if err := s.repo.AddAttendee(ctx, programmeID, memberID); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *ProgrammeService) RecordAttendance(ctx context.Context, rec *models.AttendanceRecord) error {
	if rec.Date.IsZero() {
		return fmt.Errorf("attendance date is required: %w", ErrValidation)
	}
	if rec.Date.After(s.clock()) {
		return fmt.Errorf("attendance in the future: %w", database.ErrInvalidWindow)
	}
	if _, err := s.repo.GetProgramme(ctx, rec.ProgrammeID); err != nil {
		return err
	}
	if _, err := s.repo.GetMember(ctx, rec.MemberID); err != nil {
		return err
	}
	if err := s.repo.RecordAttendance(ctx, rec); err != nil {
		return err
	}
	s.invalidate(ctx)

	if s.eventBus != nil {
		payload := events.AttendanceEventPayload{
			ProgrammeID: rec.ProgrammeID,
			MemberID:    rec.MemberID,
			Date:        rec.Date,
			Present:     rec.Present,
		}
		if err := s.eventBus.PublishJSON(events.EventAttendanceRecorded, payload); err != nil {
			s.logger.Error().Err(err).Int64("programme_id", rec.ProgrammeID).Msg("publish event error")
		}
	}
	return nil
}

// Statistics returns the cached snapshot when there is one, otherwise
// computes and stores a fresh one.
func (s *ProgrammeService) Statistics(ctx context.Context) (*models.Statistics, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("statistics cache read failed")
		}
		if cached != nil {
			metrics.IncStatsCache(true)
			return cached, nil
		}
		metrics.IncStatsCache(false)
	}
	return s.Refresh(ctx)
}

// Refresh recomputes statistics from storage regardless of the cache.
func (s *ProgrammeService) Refresh(ctx context.Context) (*models.Statistics, error) {
	started := time.Now()
	gen := s.currentGeneration()

	programmes, err := s.repo.ListProgrammes(ctx)
	if err != nil {
		return nil, err
	}
	records, err := s.repo.ListAttendance(ctx)
	if err != nil {
		return nil, err
	}

	result := stats.Calculate(programmes, records, s.clock())
	metrics.ObserveStatistics(time.Since(started))

	s.store(ctx, &result, gen)
	return &result, nil
}

func (s *ProgrammeService) currentGeneration() uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generation
}

// store caches st unless a write happened after it was read from storage.
func (s *ProgrammeService) store(ctx context.Context, st *models.Statistics, gen uint64) {
	if s.cache == nil {
		return
	}
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.generation != gen {
		s.logger.Debug().Msg("statistics changed during refresh, not caching")
		return
	}
	if err := s.cache.Set(ctx, st, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Msg("statistics cache write failed")
	}
}

// AttendanceSummaries returns per-programme attendance, keyed by programme ID.
func (s *ProgrammeService) AttendanceSummaries(ctx context.Context) (map[int64]models.AttendanceSummary, error) {
	records, err := s.repo.ListAttendance(ctx)
	if err != nil {
		return nil, err
	}
	return stats.SummarizeAttendance(records), nil
}

func (s *ProgrammeService) Sessions(ctx context.Context, id int64, from, to time.Time) ([]models.Session, error) {
	if !from.Before(to) {
		return nil, database.ErrInvalidWindow
	}
	p, err := s.repo.GetProgramme(ctx, id)
	if err != nil {
		return nil, err
	}
	return recurrence.Sessions(*p, from, to)
}

func (s *ProgrammeService) changed(ctx context.Context, p *models.Programme, action string) {
	s.invalidate(ctx)
	s.logger.Info().Int64("programme_id", p.ID).Str("action", action).Msg("programme changed")

	if s.eventBus == nil {
		return
	}
	payload := events.ProgrammeEventPayload{
		ProgrammeID: p.ID,
		Name:        p.Name,
		Type:        p.TypeLabel(),
		Status:      string(p.Status),
		Action:      action,
	}
	if err := s.eventBus.PublishJSON(events.EventProgrammeChanged, payload); err != nil {
		s.logger.Error().Err(err).Int64("programme_id", p.ID).Msg("publish event error")
	}
}

func (s *ProgrammeService) invalidate(ctx context.Context) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.generation++

	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("statistics cache invalidation failed")
	}
}
