package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"parish/internal/database"
	"parish/internal/domain"
	"parish/internal/events"
	"parish/internal/models"
	"parish/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newBookingService(repo *mockRepo, bus *mockEventBus, w *mockWorker, lim *mockLimiter) *BookingService {
	// nil моки не должны превращаться в ненулевые интерфейсы
	var (
		publisher domain.EventPublisher
		syncer    domain.SyncWorker
		limiter   domain.RateLimiter
	)
	if bus != nil {
		publisher = bus
	}
	if w != nil {
		syncer = w
	}
	if lim != nil {
		limiter = lim
	}

	s := NewBookingService(repo, publisher, syncer, limiter, BookingRules{
		MaxAdvanceDays: 30,
		MinDuration:    15 * time.Minute,
		SlotStep:       time.Hour,
		RateLimit:      3,
		RateWindow:     time.Hour,
	}, &testLogger)
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestBookingService_ValidateWindow(t *testing.T) {
	s := newBookingService(new(mockRepo), nil, nil, nil)

	tests := []struct {
		name       string
		start, end time.Time
		want       error
	}{
		{"ok", fixedNow.Add(time.Hour), fixedNow.Add(2 * time.Hour), nil},
		{"end before start", fixedNow.Add(2 * time.Hour), fixedNow.Add(time.Hour), database.ErrInvalidWindow},
		{"empty", fixedNow.Add(time.Hour), fixedNow.Add(time.Hour), database.ErrInvalidWindow},
		{"too short", fixedNow.Add(time.Hour), fixedNow.Add(70 * time.Minute), database.ErrInvalidWindow},
		{"past", fixedNow.Add(-time.Hour), fixedNow.Add(time.Hour), database.ErrPastDate},
		{"too far", fixedNow.AddDate(0, 0, 31), fixedNow.AddDate(0, 0, 31).Add(time.Hour), database.ErrDateTooFar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ValidateWindow(tt.start, tt.end)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBookingService_CreateBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		repo, bus, w, lim := new(mockRepo), new(mockEventBus), new(mockWorker), new(mockLimiter)
		s := newBookingService(repo, bus, w, lim)

		b := &models.Booking{
			ResourceID: 1,
			MemberID:   7,
			Purpose:    "Choir rehearsal",
			Start:      fixedNow.Add(24 * time.Hour),
			End:        fixedNow.Add(26 * time.Hour),
		}

		lim.On("CheckRateLimit", ctx, "booking:member:7", 3, time.Hour).Return(true, nil)
		repo.On("GetMember", ctx, int64(7)).Return(&models.Member{ID: 7, FirstName: "Anna", LastName: "Ivanova"}, nil)
		repo.On("CreateBookingWithLock", ctx, b).Run(func(args mock.Arguments) {
			args.Get(1).(*models.Booking).ID = 42
		}).Return(nil)
		bus.On("PublishJSON", events.EventBookingCreated, mock.Anything).Return(nil)
		w.On("EnqueueTask", ctx, worker.TaskUpsert, int64(42), b, "").Return(nil)

		require.NoError(t, s.CreateBooking(ctx, b))
		assert.Equal(t, models.BookingPending, b.Status)
		assert.Equal(t, "Anna Ivanova", b.MemberName)

		repo.AssertExpectations(t)
		bus.AssertExpectations(t)
		w.AssertExpectations(t)
	})

	t.Run("conflict", func(t *testing.T) {
		repo, bus, w := new(mockRepo), new(mockEventBus), new(mockWorker)
		s := newBookingService(repo, bus, w, nil)

		b := &models.Booking{ResourceID: 1, Start: fixedNow.Add(time.Hour), End: fixedNow.Add(2 * time.Hour)}
		repo.On("CreateBookingWithLock", ctx, b).Return(database.ErrNotAvailable)

		err := s.CreateBooking(ctx, b)
		assert.ErrorIs(t, err, database.ErrNotAvailable)
		bus.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
		w.AssertNotCalled(t, "EnqueueTask", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rate limited", func(t *testing.T) {
		repo, lim := new(mockRepo), new(mockLimiter)
		s := newBookingService(repo, nil, nil, lim)

		b := &models.Booking{ResourceID: 1, MemberID: 7, Start: fixedNow.Add(time.Hour), End: fixedNow.Add(2 * time.Hour)}
		lim.On("CheckRateLimit", ctx, "booking:member:7", 3, time.Hour).Return(false, nil)

		err := s.CreateBooking(ctx, b)
		assert.ErrorIs(t, err, ErrTooManyRequests)
		repo.AssertNotCalled(t, "CreateBookingWithLock", mock.Anything, mock.Anything)
	})

	t.Run("limiter failure does not block", func(t *testing.T) {
		repo, lim := new(mockRepo), new(mockLimiter)
		s := newBookingService(repo, nil, nil, lim)

		b := &models.Booking{ResourceID: 1, MemberID: 7, MemberName: "Anna", Start: fixedNow.Add(time.Hour), End: fixedNow.Add(2 * time.Hour)}
		lim.On("CheckRateLimit", ctx, mock.Anything, 3, time.Hour).Return(false, errors.New("redis down"))
		repo.On("CreateBookingWithLock", ctx, b).Return(nil)

		assert.NoError(t, s.CreateBooking(ctx, b))
	})

	t.Run("invalid window", func(t *testing.T) {
		repo := new(mockRepo)
		s := newBookingService(repo, nil, nil, nil)

		err := s.CreateBooking(ctx, &models.Booking{ResourceID: 1, Start: fixedNow.Add(time.Hour), End: fixedNow})
		assert.ErrorIs(t, err, database.ErrInvalidWindow)
		repo.AssertNotCalled(t, "CreateBookingWithLock", mock.Anything, mock.Anything)
	})
}

func TestBookingService_Transitions(t *testing.T) {
	ctx := context.Background()

	t.Run("approve pending", func(t *testing.T) {
		repo, bus, w := new(mockRepo), new(mockEventBus), new(mockWorker)
		s := newBookingService(repo, bus, w, nil)

		pending := &models.Booking{ID: 1, Status: models.BookingPending, Version: 3}
		approved := &models.Booking{ID: 1, Status: models.BookingApproved, Version: 4}

		repo.On("GetBooking", ctx, int64(1)).Return(pending, nil).Once()
		repo.On("UpdateBookingStatusWithVersion", ctx, int64(1), int64(3), models.BookingApproved).Return(nil)
		repo.On("GetBooking", ctx, int64(1)).Return(approved, nil).Once()
		bus.On("PublishJSON", events.EventBookingApproved, mock.Anything).Return(nil)
		w.On("EnqueueTask", ctx, worker.TaskUpdateStatus, int64(1), approved, "approved").Return(nil)

		got, err := s.ApproveBooking(ctx, 1, 0, "admin")
		require.NoError(t, err)
		assert.Equal(t, models.BookingApproved, got.Status)
		w.AssertExpectations(t)
	})

	t.Run("stale version", func(t *testing.T) {
		repo := new(mockRepo)
		s := newBookingService(repo, nil, nil, nil)

		repo.On("GetBooking", ctx, int64(1)).Return(&models.Booking{ID: 1, Status: models.BookingPending, Version: 3}, nil)
		repo.On("UpdateBookingStatusWithVersion", ctx, int64(1), int64(2), models.BookingDeclined).
			Return(database.ErrConcurrentModification)

		_, err := s.DeclineBooking(ctx, 1, 2, "admin")
		assert.ErrorIs(t, err, database.ErrConcurrentModification)
	})

	t.Run("complete pending is rejected", func(t *testing.T) {
		repo := new(mockRepo)
		s := newBookingService(repo, nil, nil, nil)

		repo.On("GetBooking", ctx, int64(1)).Return(&models.Booking{ID: 1, Status: models.BookingPending, Version: 1}, nil)

		_, err := s.CompleteBooking(ctx, 1, 1, "admin")
		assert.ErrorIs(t, err, database.ErrInvalidTransition)
		repo.AssertNotCalled(t, "UpdateBookingStatusWithVersion", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestBookingService_CheckAvailability(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	s := newBookingService(repo, nil, nil, nil)

	start := fixedNow.Add(24 * time.Hour)
	existing := []models.Booking{
		{ID: 1, ResourceID: 5, Status: models.BookingApproved, Start: start, End: start.Add(time.Hour)},
		{ID: 2, ResourceID: 5, Status: models.BookingDeclined, Start: start.Add(time.Hour), End: start.Add(2 * time.Hour)},
	}
	repo.On("GetResource", ctx, int64(5)).Return(&models.Resource{ID: 5, Status: models.ResourceAvailable}, nil)
	repo.On("ListBookingsForResource", ctx, int64(5)).Return(existing, nil)

	free, conflicts, err := s.CheckAvailability(ctx, 5, start.Add(30*time.Minute), start.Add(90*time.Minute))
	require.NoError(t, err)
	assert.False(t, free)
	require.Len(t, conflicts, 1)
	assert.Equal(t, int64(1), conflicts[0].ID)

	free, conflicts, err = s.CheckAvailability(ctx, 5, start.Add(time.Hour), start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, free)
	assert.Empty(t, conflicts)

	_, _, err = s.CheckAvailability(ctx, 5, start, start)
	assert.ErrorIs(t, err, database.ErrInvalidWindow)
}

func TestBookingService_FreeSlots(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	s := newBookingService(repo, nil, nil, nil)

	// день бронирования совпадает с "сегодня": слоты до 09:00 отбрасываются
	day := fixedNow
	busy := models.Booking{
		ID: 1, ResourceID: 5, Status: models.BookingPending,
		Start: time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	repo.On("GetResource", ctx, int64(5)).Return(&models.Resource{ID: 5, Status: models.ResourceAvailable}, nil)
	repo.On("ListBookingsForResource", ctx, int64(5)).Return([]models.Booking{busy}, nil)

	slots, err := s.FreeSlots(ctx, 5, day, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, slots)
	assert.Equal(t, fixedNow, slots[0])
	for _, slot := range slots {
		assert.False(t, slot.Before(fixedNow))
		assert.False(t, slot.Equal(busy.Start) || slot.Equal(busy.Start.Add(time.Hour)))
	}
}

func TestBookingService_CompleteElapsed(t *testing.T) {
	ctx := context.Background()
	repo, bus, w := new(mockRepo), new(mockEventBus), new(mockWorker)
	s := newBookingService(repo, bus, w, nil)

	done := []models.Booking{
		{ID: 1, Status: models.BookingCompleted},
		{ID: 2, Status: models.BookingCompleted},
	}
	repo.On("CompleteElapsedBookings", ctx, fixedNow).Return(done, nil)
	bus.On("PublishJSON", events.EventBookingCompleted, mock.Anything).Return(nil).Twice()
	w.On("EnqueueTask", ctx, worker.TaskUpdateStatus, mock.Anything, mock.Anything, "completed").Return(nil).Twice()

	n, err := s.CompleteElapsed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	bus.AssertExpectations(t)
	w.AssertExpectations(t)
}

func TestBookingService_ListBookings(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	s := newBookingService(repo, nil, nil, nil)

	from, to := fixedNow, fixedNow.Add(48*time.Hour)
	repo.On("ListBookingsByRange", ctx, from, to).Return([]models.Booking{{ID: 1}}, nil)

	list, err := s.ListBookings(ctx, from, to)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = s.ListBookings(ctx, to, from)
	assert.ErrorIs(t, err, database.ErrInvalidWindow)
}
