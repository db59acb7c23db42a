// Package stats aggregates programme and attendance data into the summary
// shown on the parish dashboard.
package stats

import (
	"time"

	"parish/internal/models"
)

// Calculate builds the dashboard statistics. The participants trend covers
// the models.TrendMonths calendar months ending with the month of now,
// bucketed in now's location. Empty inputs yield zero values and a trend of
// zero counts.
func Calculate(programmes []models.Programme, records []models.AttendanceRecord, now time.Time) models.Statistics {
	out := models.Statistics{
		TotalProgrammes:  len(programmes),
		ProgrammesByType: make(map[string]int),
		GeneratedAt:      now,
	}

	for i := range programmes {
		p := &programmes[i]
		if p.Status.Active() {
			out.ActiveProgrammes++
		}
		if p.Status == models.ProgrammeCompleted {
			out.CompletedProgrammes++
		}
		out.TotalParticipants += len(p.Attendees)
		out.ProgrammesByType[p.TypeLabel()]++
	}

	present := 0
	for i := range records {
		if records[i].Present {
			present++
		}
	}
	out.AttendanceRate = rate(present, len(records))
	out.ParticipantsTrend = trend(records, now)

	return out
}

func rate(present, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(present) / float64(total) * 100
}

func trend(records []models.AttendanceRecord, now time.Time) []models.TrendPoint {
	loc := now.Location()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)

	points := make([]models.TrendPoint, models.TrendMonths)
	index := make(map[monthKey]int, models.TrendMonths)
	for i := 0; i < models.TrendMonths; i++ {
		month := current.AddDate(0, i-(models.TrendMonths-1), 0)
		points[i] = models.TrendPoint{
			Label: month.Format(models.TrendLabelLayout),
			Month: month,
		}
		index[keyOf(month)] = i
	}

	for i := range records {
		r := &records[i]
		if !r.Present || r.Date.IsZero() {
			continue
		}
		if idx, ok := index[keyOf(r.Date.In(loc))]; ok {
			points[idx].Count++
		}
	}
	return points
}

type monthKey struct {
	year  int
	month time.Month
}

func keyOf(t time.Time) monthKey {
	return monthKey{year: t.Year(), month: t.Month()}
}

// SummarizeAttendance groups records by programme.
func SummarizeAttendance(records []models.AttendanceRecord) map[int64]models.AttendanceSummary {
	out := make(map[int64]models.AttendanceSummary)
	for i := range records {
		r := &records[i]
		s := out[r.ProgrammeID]
		s.ProgrammeID = r.ProgrammeID
		s.Total++
		if r.Present {
			s.Present++
		}
		out[r.ProgrammeID] = s
	}
	for id, s := range out {
		s.Rate = rate(s.Present, s.Total)
		out[id] = s
	}
	return out
}
