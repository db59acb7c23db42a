// Package availability decides whether a resource can be reserved for a
// requested time window given the reservations that already exist.
//
// All functions are pure: they never mutate their inputs and hold no state,
// so they are safe to call from any number of goroutines.
package availability

import (
	"time"

	"parish/internal/models"
)

// IsResourceAvailable reports whether resource is bookable for [start, end).
//
// A resource that is not in the available status is never bookable. Otherwise
// only pending and approved bookings of the same resource are considered, and
// the window is free when none of them overlaps it. End before start is not
// rejected here; callers validate windows upstream.
func IsResourceAvailable(resource models.Resource, bookings []models.Booking, start, end time.Time) bool {
	if !resource.Status.Bookable() {
		return false
	}
	for i := range bookings {
		if conflicts(resource.ID, &bookings[i], start, end) {
			return false
		}
	}
	return true
}

// Conflicts returns the bookings that block [start, end) on resource,
// regardless of the resource status.
func Conflicts(resource models.Resource, bookings []models.Booking, start, end time.Time) []models.Booking {
	var out []models.Booking
	for i := range bookings {
		if conflicts(resource.ID, &bookings[i], start, end) {
			out = append(out, bookings[i])
		}
	}
	return out
}

func conflicts(resourceID int64, b *models.Booking, start, end time.Time) bool {
	if b.ResourceID != resourceID || !b.Status.Blocking() {
		return false
	}
	return Overlaps(start, end, b.Start, b.End)
}

// Overlaps reports whether the requested window [start, end) collides with
// an existing window [bStart, bEnd). It matches when the requested start
// falls inside the existing window, when the requested end falls inside it,
// or when the request covers it entirely. Touching windows do not overlap.
func Overlaps(start, end, bStart, bEnd time.Time) bool {
	startInside := !start.Before(bStart) && start.Before(bEnd)
	endInside := end.After(bStart) && !end.After(bEnd)
	covers := !start.After(bStart) && !end.Before(bEnd)
	return startInside || endInside || covers
}

// FreeSlots returns slot starts within [windowStart, windowEnd) where a
// reservation of the given duration would be accepted.
func FreeSlots(
	resource models.Resource,
	bookings []models.Booking,
	windowStart, windowEnd time.Time,
	duration, step time.Duration,
) []time.Time {
	if duration <= 0 || step <= 0 || !windowEnd.After(windowStart) {
		return nil
	}
	if !resource.Status.Bookable() {
		return nil
	}

	var slots []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		if IsResourceAvailable(resource, bookings, t, t.Add(duration)) {
			slots = append(slots, t)
		}
	}
	return slots
}
