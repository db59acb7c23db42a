// Package recurrence expands programme schedules into concrete sessions.
//
// A recurring programme stores an RFC 5545 RRULE in Recurrence. Its Start and
// End describe the first session: Start anchors the rule (DTSTART) and
// End-Start is the length of every session.
package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"parish/internal/models"

	"github.com/teambition/rrule-go"
)

const defaultSessionLength = time.Hour

var ErrNoStart = errors.New("recurring programme needs a start time")

// Parse normalizes and parses a rule. An optional "RRULE:" prefix is accepted.
func Parse(rule string) (*rrule.RRule, error) {
	rule = strings.TrimSpace(rule)
	rule = strings.TrimPrefix(rule, "RRULE:")
	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, fmt.Errorf("parse rrule %q: %w", rule, err)
	}
	return r, nil
}

// Validate checks that a programme's recurrence, if any, can be expanded.
func Validate(p models.Programme) error {
	if strings.TrimSpace(p.Recurrence) == "" {
		return nil
	}
	if p.Start.IsZero() {
		return ErrNoStart
	}
	_, err := Parse(p.Recurrence)
	return err
}

// SessionLength is the duration of one occurrence of the programme.
func SessionLength(p models.Programme) time.Duration {
	if d := p.End.Sub(p.Start); !p.End.IsZero() && d > 0 {
		return d
	}
	return defaultSessionLength
}

// Sessions returns the occurrences of p that intersect [from, to), oldest
// first. At most models.MaxSessionsPerProgramme sessions are returned.
func Sessions(p models.Programme, from, to time.Time) ([]models.Session, error) {
	if p.Start.IsZero() || !from.Before(to) {
		return nil, nil
	}
	length := SessionLength(p)

	if strings.TrimSpace(p.Recurrence) == "" {
		end := p.Start.Add(length)
		if p.Start.Before(to) && end.After(from) {
			return []models.Session{newSession(p, p.Start, length)}, nil
		}
		return nil, nil
	}

	r, err := Parse(p.Recurrence)
	if err != nil {
		return nil, err
	}
	r.DTStart(p.Start)

	// exclusive bounds: start > from-length keeps sessions still running at from
	starts := r.Between(from.Add(-length), to, false)
	if len(starts) > models.MaxSessionsPerProgramme {
		starts = starts[:models.MaxSessionsPerProgramme]
	}

	sessions := make([]models.Session, 0, len(starts))
	for _, s := range starts {
		sessions = append(sessions, newSession(p, s, length))
	}
	return sessions, nil
}

func newSession(p models.Programme, start time.Time, length time.Duration) models.Session {
	return models.Session{
		ProgrammeID: p.ID,
		Name:        p.Name,
		Start:       start,
		End:         start.Add(length),
		Location:    p.Location,
	}
}
