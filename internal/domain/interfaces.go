package domain

import (
	"context"
	"time"

	"parish/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type ResourceRepository interface {
	CreateResource(ctx context.Context, r *models.Resource) error
	GetResource(ctx context.Context, id int64) (*models.Resource, error)
	ListResources(ctx context.Context) ([]models.Resource, error)
	UpdateResourceStatus(ctx context.Context, id int64, status models.ResourceStatus) error
	SyncResources(ctx context.Context, resources []models.Resource) error
}

type BookingRepository interface {
	CreateBookingWithLock(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ListBookingsForResource(ctx context.Context, resourceID int64) ([]models.Booking, error)
	ListBookingsByRange(ctx context.Context, from, to time.Time) ([]models.Booking, error)
	UpdateBookingStatusWithVersion(ctx context.Context, id, version int64, status models.BookingStatus) error
	CompleteElapsedBookings(ctx context.Context, now time.Time) ([]models.Booking, error)
}

type ProgrammeRepository interface {
	CreateProgramme(ctx context.Context, p *models.Programme) error
	UpdateProgramme(ctx context.Context, p *models.Programme) error
	DeleteProgramme(ctx context.Context, id int64) error
	GetProgramme(ctx context.Context, id int64) (*models.Programme, error)
	ListProgrammes(ctx context.Context) ([]models.Programme, error)
	AddAttendee(ctx context.Context, programmeID, memberID int64) error
	RecordAttendance(ctx context.Context, rec *models.AttendanceRecord) error
	ListAttendance(ctx context.Context) ([]models.AttendanceRecord, error)
	ListAttendanceForProgramme(ctx context.Context, programmeID int64) ([]models.AttendanceRecord, error)
}

type MemberRepository interface {
	CreateMember(ctx context.Context, m *models.Member) error
	GetMember(ctx context.Context, id int64) (*models.Member, error)
	ListMembers(ctx context.Context) ([]models.Member, error)
}

// Repository is everything the services need from storage.
type Repository interface {
	ResourceRepository
	BookingRepository
	ProgrammeRepository
	MemberRepository
}

// StatsCache stores the last computed statistics snapshot.
// Get returns nil without error on a miss.
type StatsCache interface {
	Get(ctx context.Context) (*models.Statistics, error)
	Set(ctx context.Context, stats *models.Statistics, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, bookingID int64, booking *models.Booking, status string) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}
