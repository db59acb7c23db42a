package events

import (
	"encoding/json"
	"sync"
	"time"

	"parish/internal/models"
)

const (
	EventBookingCreated     = "booking_created"
	EventBookingApproved    = "booking_approved"
	EventBookingDeclined    = "booking_declined"
	EventBookingCompleted   = "booking_completed"
	EventProgrammeChanged   = "programme_changed"
	EventAttendanceRecorded = "attendance_recorded"
)

// AllTypes lists every event type emitted by the services.
var AllTypes = []string{
	EventBookingCreated,
	EventBookingApproved,
	EventBookingDeclined,
	EventBookingCompleted,
	EventProgrammeChanged,
	EventAttendanceRecorded,
}

// BookingEventPayload is the booking snapshot sent to consumers.
type BookingEventPayload struct {
	BookingID    int64     `json:"booking_id"`
	ResourceID   int64     `json:"resource_id"`
	ResourceName string    `json:"resource_name"`
	MemberID     int64     `json:"member_id,omitempty"`
	MemberName   string    `json:"member_name"`
	Purpose      string    `json:"purpose,omitempty"`
	Status       string    `json:"status"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	ChangedBy    string    `json:"changed_by,omitempty"`
}

func NewBookingPayload(b *models.Booking, changedBy string) BookingEventPayload {
	return BookingEventPayload{
		BookingID:    b.ID,
		ResourceID:   b.ResourceID,
		ResourceName: b.ResourceName,
		MemberID:     b.MemberID,
		MemberName:   b.MemberName,
		Purpose:      b.Purpose,
		Status:       string(b.Status),
		Start:        b.Start,
		End:          b.End,
		ChangedBy:    changedBy,
	}
}

type ProgrammeEventPayload struct {
	ProgrammeID int64  `json:"programme_id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Action      string `json:"action"`
}

type AttendanceEventPayload struct {
	ProgrammeID int64     `json:"programme_id"`
	MemberID    int64     `json:"member_id"`
	Date        time.Time `json:"date"`
	Present     bool      `json:"present"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// ErrorHook is called when a handler fails.
type ErrorHook func(event *Event, err error)

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	onError     ErrorHook
	mu          sync.RWMutex
	seq         int64
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// OnError sets the hook receiving handler failures.
func (b *EventBus) OnError(hook ErrorHook) {
	b.mu.Lock()
	b.onError = hook
	b.mu.Unlock()
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers the handler for every known event type.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	for _, t := range AllTypes {
		b.Subscribe(t, handler)
	}
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.Lock()
	b.seq++
	if event.ID == 0 {
		event.ID = b.seq
	}
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	hook := b.onError
	b.mu.Unlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	// Handlers run synchronously; caller decides concurrency model.
	for _, handler := range handlers {
		if err := handler(event); err != nil && hook != nil {
			hook(event, err)
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}

	b.Publish(&event)
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
