package availability

import (
	"testing"
	"time"

	"parish/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func hall(status models.ResourceStatus) models.Resource {
	return models.Resource{ID: 1, Name: "Main hall", Status: status}
}

func booking(resourceID int64, status models.BookingStatus, start, end time.Time) models.Booking {
	return models.Booking{ResourceID: resourceID, Status: status, Start: start, End: end}
}

func TestIsResourceAvailable_StatusGate(t *testing.T) {
	for _, status := range []models.ResourceStatus{
		models.ResourceInUse, models.ResourceMaintenance, models.ResourceReserved,
	} {
		t.Run(string(status), func(t *testing.T) {
			assert.False(t, IsResourceAvailable(hall(status), nil, at(9, 0), at(10, 0)))
			assert.False(t, IsResourceAvailable(hall(status), nil, at(23, 0), at(1, 0)))
		})
	}
}

func TestIsResourceAvailable_NoBookings(t *testing.T) {
	assert.True(t, IsResourceAvailable(hall(models.ResourceAvailable), nil, at(9, 0), at(10, 0)))
	assert.True(t, IsResourceAvailable(hall(models.ResourceAvailable), []models.Booking{}, at(0, 0), at(23, 59)))
}

func TestIsResourceAvailable_NonBlockingStatuses(t *testing.T) {
	r := hall(models.ResourceAvailable)
	for _, status := range []models.BookingStatus{models.BookingDeclined, models.BookingCompleted} {
		bookings := []models.Booking{booking(r.ID, status, at(10, 0), at(11, 0))}
		assert.True(t, IsResourceAvailable(r, bookings, at(10, 0), at(11, 0)), status)
		assert.True(t, IsResourceAvailable(r, bookings, at(10, 30), at(10, 45)), status)
	}
}

func TestIsResourceAvailable_Windows(t *testing.T) {
	r := hall(models.ResourceAvailable)
	existing := []models.Booking{booking(r.ID, models.BookingApproved, at(10, 0), at(11, 0))}

	tests := []struct {
		name      string
		start     time.Time
		end       time.Time
		available bool
	}{
		{"contained", at(10, 30), at(10, 45), false},
		{"adjacent before", at(9, 0), at(10, 0), true},
		{"adjacent after", at(11, 0), at(12, 0), true},
		{"overlaps start", at(9, 30), at(10, 30), false},
		{"overlaps end", at(10, 30), at(11, 30), false},
		{"covers", at(9, 0), at(12, 0), false},
		{"identical", at(10, 0), at(11, 0), false},
		{"far away", at(14, 0), at(15, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.available, IsResourceAvailable(r, existing, tt.start, tt.end))
		})
	}
}

func TestIsResourceAvailable_PendingBlocks(t *testing.T) {
	r := hall(models.ResourceAvailable)
	existing := []models.Booking{booking(r.ID, models.BookingPending, at(10, 0), at(11, 0))}
	assert.False(t, IsResourceAvailable(r, existing, at(10, 15), at(10, 30)))
}

func TestIsResourceAvailable_OtherResourceIgnored(t *testing.T) {
	r := hall(models.ResourceAvailable)
	existing := []models.Booking{booking(2, models.BookingApproved, at(10, 0), at(11, 0))}
	assert.True(t, IsResourceAvailable(r, existing, at(10, 0), at(11, 0)))
}

func TestIsResourceAvailable_InvertedWindowDoesNotPanic(t *testing.T) {
	r := hall(models.ResourceAvailable)
	existing := []models.Booking{booking(r.ID, models.BookingApproved, at(10, 0), at(11, 0))}
	assert.NotPanics(t, func() {
		IsResourceAvailable(r, existing, at(12, 0), at(9, 0))
	})
}

func TestConflicts(t *testing.T) {
	r := hall(models.ResourceAvailable)
	existing := []models.Booking{
		booking(r.ID, models.BookingApproved, at(8, 0), at(9, 0)),
		booking(r.ID, models.BookingPending, at(9, 30), at(10, 30)),
		booking(r.ID, models.BookingDeclined, at(9, 30), at(10, 30)),
		booking(3, models.BookingApproved, at(9, 30), at(10, 30)),
	}

	got := Conflicts(r, existing, at(9, 0), at(10, 0))
	require.Len(t, got, 1)
	assert.Equal(t, models.BookingPending, got[0].Status)
}

func TestFreeSlots(t *testing.T) {
	r := hall(models.ResourceAvailable)
	existing := []models.Booking{booking(r.ID, models.BookingApproved, at(10, 0), at(11, 0))}

	slots := FreeSlots(r, existing, at(9, 0), at(12, 0), time.Hour, 30*time.Minute)
	assert.Equal(t, []time.Time{at(9, 0), at(11, 0)}, slots)

	assert.Nil(t, FreeSlots(hall(models.ResourceMaintenance), nil, at(9, 0), at(12, 0), time.Hour, time.Hour))
	assert.Nil(t, FreeSlots(r, nil, at(12, 0), at(9, 0), time.Hour, time.Hour))
	assert.Nil(t, FreeSlots(r, nil, at(9, 0), at(12, 0), 0, time.Hour))
}
