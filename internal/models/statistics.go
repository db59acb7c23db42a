package models

import "time"

type Statistics struct {
	TotalProgrammes     int            `json:"total_programmes"`
	ActiveProgrammes    int            `json:"active_programmes"`
	CompletedProgrammes int            `json:"completed_programmes"`
	TotalParticipants   int            `json:"total_participants"`
	AttendanceRate      float64        `json:"attendance_rate"`
	ProgrammesByType    map[string]int `json:"programmes_by_type"`
	ParticipantsTrend   []TrendPoint   `json:"participants_trend"`
	GeneratedAt         time.Time      `json:"generated_at"`
}

type TrendPoint struct {
	Label string    `json:"label"`
	Month time.Time `json:"month"`
	Count int       `json:"count"`
}
