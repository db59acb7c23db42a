package export

import (
	"fmt"
	"strings"
	"time"

	"parish/internal/models"
	"parish/internal/recurrence"

	ical "github.com/arran4/golang-ical"
)

const productID = "-//parish//programmes//EN"

// ProgrammeCalendar renders programmes as an iCalendar feed. Recurring
// programmes keep their RRULE so calendar clients expand them; programmes
// without a start time are skipped.
func ProgrammeCalendar(programmes []models.Programme, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName("Parish programmes")

	for i := range programmes {
		p := &programmes[i]
		if p.Start.IsZero() {
			continue
		}

		ev := cal.AddEvent(fmt.Sprintf("programme-%d@parish", p.ID))
		ev.SetDtStampTime(stamp)
		ev.SetSummary(p.Name)
		ev.SetStartAt(p.Start)
		ev.SetEndAt(p.Start.Add(recurrence.SessionLength(*p)))
		if p.Location != "" {
			ev.SetLocation(p.Location)
		}
		if desc := description(p); desc != "" {
			ev.SetDescription(desc)
		}
		if rule := strings.TrimPrefix(strings.TrimSpace(p.Recurrence), "RRULE:"); rule != "" {
			ev.SetProperty(ical.ComponentPropertyRrule, rule)
		}
		if p.Status == models.ProgrammeCancelled {
			ev.SetProperty(ical.ComponentPropertyStatus, "CANCELLED")
		}
		ev.SetProperty(ical.ComponentPropertyCategories, p.TypeLabel())
	}
	return cal.Serialize()
}

func description(p *models.Programme) string {
	var parts []string
	if p.Description != "" {
		parts = append(parts, p.Description)
	}
	if p.Coordinator != "" {
		parts = append(parts, "Coordinator: "+p.Coordinator)
	}
	return strings.Join(parts, "\n")
}

// SessionsCalendar renders already expanded sessions, one event each.
func SessionsCalendar(sessions []models.Session, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, s := range sessions {
		ev := cal.AddEvent(fmt.Sprintf("programme-%d-%d@parish", s.ProgrammeID, s.Start.Unix()))
		ev.SetDtStampTime(stamp)
		ev.SetSummary(s.Name)
		ev.SetStartAt(s.Start)
		ev.SetEndAt(s.End)
		if s.Location != "" {
			ev.SetLocation(s.Location)
		}
	}
	return cal.Serialize()
}
