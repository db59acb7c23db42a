package models

import (
	"fmt"
	"strings"
	"time"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingApproved  BookingStatus = "approved"
	BookingDeclined  BookingStatus = "declined"
	BookingCompleted BookingStatus = "completed"
)

// BlockingStatuses are the statuses that hold a resource.
var BlockingStatuses = []BookingStatus{BookingPending, BookingApproved}

// ParseBookingStatus accepts the legacy "rejected" spelling as declined.
func ParseBookingStatus(raw string) (BookingStatus, error) {
	switch s := BookingStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case BookingPending, BookingApproved, BookingDeclined, BookingCompleted:
		return s, nil
	case "rejected":
		return BookingDeclined, nil
	default:
		return "", fmt.Errorf("unknown booking status %q", raw)
	}
}

// Blocking reports whether a booking in this status conflicts with new requests.
func (s BookingStatus) Blocking() bool {
	return s == BookingPending || s == BookingApproved
}

// CanTransition describes the allowed moderation flow.
func (s BookingStatus) CanTransition(to BookingStatus) bool {
	switch s {
	case BookingPending:
		return to == BookingApproved || to == BookingDeclined
	case BookingApproved:
		return to == BookingCompleted || to == BookingDeclined
	default:
		return false
	}
}

type Booking struct {
	ID           int64         `json:"id"`
	ResourceID   int64         `json:"resource_id"`
	ResourceName string        `json:"resource_name"`
	MemberID     int64         `json:"member_id"`
	MemberName   string        `json:"member_name"`
	Purpose      string        `json:"purpose"`
	Start        time.Time     `json:"start"`
	End          time.Time     `json:"end"`
	Status       BookingStatus `json:"status"`
	Notes        string        `json:"notes,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Version      int64         `json:"version"`
}
