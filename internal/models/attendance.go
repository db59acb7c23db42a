package models

import "time"

type AttendanceRecord struct {
	ID          int64     `json:"id"`
	ProgrammeID int64     `json:"programme_id"`
	MemberID    int64     `json:"member_id"`
	Date        time.Time `json:"date"`
	Present     bool      `json:"present"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AttendanceSummary aggregates records of a single programme.
type AttendanceSummary struct {
	ProgrammeID int64   `json:"programme_id"`
	Present     int     `json:"present"`
	Total       int     `json:"total"`
	Rate        float64 `json:"rate"`
}
