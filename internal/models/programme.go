package models

import (
	"fmt"
	"strings"
	"time"
)

type ProgrammeStatus string

const (
	ProgrammePlanning  ProgrammeStatus = "planning"
	ProgrammeActive    ProgrammeStatus = "active"
	ProgrammeOngoing   ProgrammeStatus = "ongoing"
	ProgrammeUpcoming  ProgrammeStatus = "upcoming"
	ProgrammeCompleted ProgrammeStatus = "completed"
	ProgrammeCancelled ProgrammeStatus = "cancelled"
)

func ParseProgrammeStatus(raw string) (ProgrammeStatus, error) {
	switch s := ProgrammeStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case ProgrammePlanning, ProgrammeActive, ProgrammeOngoing, ProgrammeUpcoming,
		ProgrammeCompleted, ProgrammeCancelled:
		return s, nil
	case "canceled":
		return ProgrammeCancelled, nil
	default:
		return "", fmt.Errorf("unknown programme status %q", raw)
	}
}

// Active reports whether the programme counts as running for statistics.
func (s ProgrammeStatus) Active() bool {
	return s == ProgrammeActive || s == ProgrammeOngoing || s == ProgrammeUpcoming
}

type Programme struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Type          string          `json:"type"`
	Description   string          `json:"description,omitempty"`
	Status        ProgrammeStatus `json:"status"`
	Start         time.Time       `json:"start"`
	End           time.Time       `json:"end"`
	Location      string          `json:"location,omitempty"`
	Coordinator   string          `json:"coordinator,omitempty"`
	Attendees     []int64         `json:"attendees"`
	AttendeeCount int             `json:"attendee_count"`
	Recurrence    string          `json:"recurrence,omitempty"` // RRULE
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TypeLabel returns the category label used for grouping.
func (p *Programme) TypeLabel() string {
	if t := strings.TrimSpace(p.Type); t != "" {
		return t
	}
	return UndefinedProgrammeType
}

// Session is one concrete occurrence of a programme.
type Session struct {
	ProgrammeID int64     `json:"programme_id"`
	Name        string    `json:"name"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Location    string    `json:"location,omitempty"`
}
