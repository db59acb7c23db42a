package service

import (
	"context"
	"fmt"
	"time"

	"parish/internal/availability"
	"parish/internal/database"
	"parish/internal/domain"
	"parish/internal/events"
	"parish/internal/metrics"
	"parish/internal/models"
	"parish/internal/worker"

	"github.com/rs/zerolog"
)

// BookingRules are the limits applied to new reservations.
type BookingRules struct {
	MaxAdvanceDays int
	MinDuration    time.Duration
	SlotStep       time.Duration
	// per member, inside RateWindow
	RateLimit  int
	RateWindow time.Duration
}

type BookingService struct {
	repo         domain.Repository
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	limiter      domain.RateLimiter
	rules        BookingRules
	now          func() time.Time
	logger       *zerolog.Logger
}

func NewBookingService(
	repo domain.Repository,
	eventBus domain.EventPublisher,
	sheetsWorker domain.SyncWorker,
	limiter domain.RateLimiter,
	rules BookingRules,
	logger *zerolog.Logger,
) *BookingService {
	if rules.MaxAdvanceDays <= 0 {
		rules.MaxAdvanceDays = models.DefaultMaxAdvanceDays
	}
	if rules.SlotStep <= 0 {
		rules.SlotStep = models.DefaultSlotStepMinutes * time.Minute
	}
	if rules.RateLimit > 0 && rules.RateWindow <= 0 {
		rules.RateWindow = time.Hour
	}
	return &BookingService{
		repo:         repo,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		limiter:      limiter,
		rules:        rules,
		now:          time.Now,
		logger:       logger,
	}
}

// ValidateWindow checks a requested window against the booking rules.
func (s *BookingService) ValidateWindow(start, end time.Time) error {
	if !start.Before(end) {
		return database.ErrInvalidWindow
	}
	if s.rules.MinDuration > 0 && end.Sub(start) < s.rules.MinDuration {
		return fmt.Errorf("window shorter than %s: %w", s.rules.MinDuration, database.ErrInvalidWindow)
	}

	now := s.now()
	if start.Before(now) {
		return database.ErrPastDate
	}
	if start.After(now.AddDate(0, 0, s.rules.MaxAdvanceDays)) {
		return database.ErrDateTooFar
	}
	return nil
}

// CheckAvailability reports whether the resource is free in [start, end)
// and returns the bookings that block it.
func (s *BookingService) CheckAvailability(ctx context.Context, resourceID int64, start, end time.Time) (bool, []models.Booking, error) {
	if !start.Before(end) {
		return false, nil, database.ErrInvalidWindow
	}

	resource, bookings, err := s.load(ctx, resourceID)
	if err != nil {
		return false, nil, err
	}

	free := availability.IsResourceAvailable(*resource, bookings, start, end)
	metrics.IncAvailability(free)
	if free {
		return true, nil, nil
	}
	return false, availability.Conflicts(*resource, bookings, start, end), nil
}

// FreeSlots lists start times on the given day at which a booking of the
// given duration would be accepted.
func (s *BookingService) FreeSlots(ctx context.Context, resourceID int64, day time.Time, duration time.Duration) ([]time.Time, error) {
	if duration <= 0 {
		return nil, database.ErrInvalidWindow
	}
	resource, bookings, err := s.load(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	slots := availability.FreeSlots(*resource, bookings, dayStart, dayStart.AddDate(0, 0, 1), duration, s.rules.SlotStep)

	// прошедшие слоты не предлагаем
	now := s.now()
	out := slots[:0]
	for _, slot := range slots {
		if !slot.Before(now) {
			out = append(out, slot)
		}
	}
	return out, nil
}

func (s *BookingService) load(ctx context.Context, resourceID int64) (*models.Resource, []models.Booking, error) {
	resource, err := s.repo.GetResource(ctx, resourceID)
	if err != nil {
		return nil, nil, err
	}
	bookings, err := s.repo.ListBookingsForResource(ctx, resourceID)
	if err != nil {
		return nil, nil, err
	}
	return resource, bookings, nil
}

func (s *BookingService) CreateBooking(ctx context.Context, booking *models.Booking) error {
	if err := s.ValidateWindow(booking.Start, booking.End); err != nil {
		metrics.IncBooking("invalid")
		return err
	}

	if s.limiter != nil && s.rules.RateLimit > 0 && booking.MemberID != 0 {
		key := fmt.Sprintf("booking:member:%d", booking.MemberID)
		allowed, err := s.limiter.CheckRateLimit(ctx, key, s.rules.RateLimit, s.rules.RateWindow)
		if err != nil {
			s.logger.Warn().Err(err).Int64("member_id", booking.MemberID).Msg("rate limit check failed")
		} else if !allowed {
			metrics.IncBooking("rate_limited")
			return ErrTooManyRequests
		}
	}

	if booking.MemberID != 0 && booking.MemberName == "" {
		if m, err := s.repo.GetMember(ctx, booking.MemberID); err == nil {
			booking.MemberName = m.FullName()
		}
	}

	booking.Status = models.BookingPending
	if err := s.repo.CreateBookingWithLock(ctx, booking); err != nil {
		metrics.IncBooking("rejected")
		return err
	}
	metrics.IncBooking("created")

	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("resource_id", booking.ResourceID).
		Time("start", booking.Start).
		Time("end", booking.End).
		Msg("booking created")

	s.publishEvent(events.EventBookingCreated, booking, "member")
	s.enqueueSync(ctx, booking, worker.TaskUpsert)
	return nil
}

func (s *BookingService) ApproveBooking(ctx context.Context, bookingID, version int64, actor string) (*models.Booking, error) {
	return s.transition(ctx, bookingID, version, models.BookingApproved, events.EventBookingApproved, actor)
}

func (s *BookingService) DeclineBooking(ctx context.Context, bookingID, version int64, actor string) (*models.Booking, error) {
	return s.transition(ctx, bookingID, version, models.BookingDeclined, events.EventBookingDeclined, actor)
}

func (s *BookingService) CompleteBooking(ctx context.Context, bookingID, version int64, actor string) (*models.Booking, error) {
	return s.transition(ctx, bookingID, version, models.BookingCompleted, events.EventBookingCompleted, actor)
}

// transition moves a booking to the target status. A zero version means
// "the version currently stored".
func (s *BookingService) transition(
	ctx context.Context,
	bookingID, version int64,
	to models.BookingStatus,
	eventType, actor string,
) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.Status.CanTransition(to) {
		return nil, fmt.Errorf("%s -> %s: %w", booking.Status, to, database.ErrInvalidTransition)
	}
	if version == 0 {
		version = booking.Version
	}

	if err := s.repo.UpdateBookingStatusWithVersion(ctx, bookingID, version, to); err != nil {
		return nil, err
	}
	metrics.IncBooking(string(to))

	updated, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	s.publishEvent(eventType, updated, actor)
	s.enqueueSync(ctx, updated, worker.TaskUpdateStatus)
	return updated, nil
}

// CompleteElapsed marks approved bookings that have ended as completed.
func (s *BookingService) CompleteElapsed(ctx context.Context) (int, error) {
	done, err := s.repo.CompleteElapsedBookings(ctx, s.now())
	if err != nil {
		return 0, err
	}
	for i := range done {
		s.publishEvent(events.EventBookingCompleted, &done[i], "scheduler")
		s.enqueueSync(ctx, &done[i], worker.TaskUpdateStatus)
	}
	return len(done), nil
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

func (s *BookingService) ListBookings(ctx context.Context, from, to time.Time) ([]models.Booking, error) {
	if !from.Before(to) {
		return nil, database.ErrInvalidWindow
	}
	return s.repo.ListBookingsByRange(ctx, from, to)
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking, changedBy string) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, events.NewBookingPayload(booking, changedBy)); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", booking.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, booking *models.Booking, taskType string) {
	if s.sheetsWorker == nil {
		return
	}

	var status string
	if taskType == worker.TaskUpdateStatus {
		status = string(booking.Status)
	}

	if err := s.sheetsWorker.EnqueueTask(ctx, taskType, booking.ID, booking, status); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}
