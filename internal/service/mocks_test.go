package service

import (
	"context"
	"io"
	"time"

	"parish/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
)

var testLogger = zerolog.New(io.Discard)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) CreateResource(ctx context.Context, r *models.Resource) error {
	return m.Called(ctx, r).Error(0)
}
func (m *mockRepo) GetResource(ctx context.Context, id int64) (*models.Resource, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Resource), args.Error(1)
}
func (m *mockRepo) ListResources(ctx context.Context) ([]models.Resource, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Resource), args.Error(1)
}
func (m *mockRepo) UpdateResourceStatus(ctx context.Context, id int64, s models.ResourceStatus) error {
	return m.Called(ctx, id, s).Error(0)
}
func (m *mockRepo) SyncResources(ctx context.Context, r []models.Resource) error {
	return m.Called(ctx, r).Error(0)
}
func (m *mockRepo) CreateBookingWithLock(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}
func (m *mockRepo) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockRepo) ListBookingsForResource(ctx context.Context, id int64) ([]models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}
func (m *mockRepo) ListBookingsByRange(ctx context.Context, from, to time.Time) ([]models.Booking, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}
func (m *mockRepo) UpdateBookingStatusWithVersion(ctx context.Context, id, v int64, s models.BookingStatus) error {
	return m.Called(ctx, id, v, s).Error(0)
}
func (m *mockRepo) CompleteElapsedBookings(ctx context.Context, now time.Time) ([]models.Booking, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}
func (m *mockRepo) CreateProgramme(ctx context.Context, p *models.Programme) error {
	return m.Called(ctx, p).Error(0)
}
func (m *mockRepo) UpdateProgramme(ctx context.Context, p *models.Programme) error {
	return m.Called(ctx, p).Error(0)
}
func (m *mockRepo) DeleteProgramme(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}
func (m *mockRepo) GetProgramme(ctx context.Context, id int64) (*models.Programme, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Programme), args.Error(1)
}
func (m *mockRepo) ListProgrammes(ctx context.Context) ([]models.Programme, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Programme), args.Error(1)
}
func (m *mockRepo) AddAttendee(ctx context.Context, programmeID, memberID int64) error {
	return m.Called(ctx, programmeID, memberID).Error(0)
}
func (m *mockRepo) RecordAttendance(ctx context.Context, rec *models.AttendanceRecord) error {
	return m.Called(ctx, rec).Error(0)
}
func (m *mockRepo) ListAttendance(ctx context.Context) ([]models.AttendanceRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.AttendanceRecord), args.Error(1)
}
func (m *mockRepo) ListAttendanceForProgramme(ctx context.Context, id int64) ([]models.AttendanceRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.AttendanceRecord), args.Error(1)
}
func (m *mockRepo) CreateMember(ctx context.Context, mem *models.Member) error {
	return m.Called(ctx, mem).Error(0)
}
func (m *mockRepo) GetMember(ctx context.Context, id int64) (*models.Member, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Member), args.Error(1)
}
func (m *mockRepo) ListMembers(ctx context.Context) ([]models.Member, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Member), args.Error(1)
}

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(t string, p interface{}) error {
	return m.Called(t, p).Error(0)
}

type mockWorker struct {
	mock.Mock
}

func (m *mockWorker) EnqueueTask(ctx context.Context, t string, id int64, b *models.Booking, s string) error {
	return m.Called(ctx, t, id, b, s).Error(0)
}

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Get(ctx context.Context) (*models.Statistics, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Statistics), args.Error(1)
}
func (m *mockCache) Set(ctx context.Context, s *models.Statistics, ttl time.Duration) error {
	return m.Called(ctx, s, ttl).Error(0)
}
func (m *mockCache) Invalidate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
