package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatuses(t *testing.T) {
	t.Run("Resource", func(t *testing.T) {
		s, err := ParseResourceStatus(" Available ")
		require.NoError(t, err)
		assert.Equal(t, ResourceAvailable, s)

		s, err = ParseResourceStatus("in_use")
		require.NoError(t, err)
		assert.Equal(t, ResourceInUse, s)

		_, err = ParseResourceStatus("")
		assert.Error(t, err)
	})

	t.Run("Booking", func(t *testing.T) {
		s, err := ParseBookingStatus("rejected")
		require.NoError(t, err)
		assert.Equal(t, BookingDeclined, s)

		s, err = ParseBookingStatus("APPROVED")
		require.NoError(t, err)
		assert.Equal(t, BookingApproved, s)

		_, err = ParseBookingStatus("lost")
		assert.Error(t, err)
	})

	t.Run("Programme", func(t *testing.T) {
		s, err := ParseProgrammeStatus("canceled")
		require.NoError(t, err)
		assert.Equal(t, ProgrammeCancelled, s)

		_, err = ParseProgrammeStatus("draft")
		assert.Error(t, err)
	})
}

func TestBookingStatus_Blocking(t *testing.T) {
	assert.True(t, BookingPending.Blocking())
	assert.True(t, BookingApproved.Blocking())
	assert.False(t, BookingDeclined.Blocking())
	assert.False(t, BookingCompleted.Blocking())
}

func TestBookingStatus_CanTransition(t *testing.T) {
	assert.True(t, BookingPending.CanTransition(BookingApproved))
	assert.True(t, BookingPending.CanTransition(BookingDeclined))
	assert.False(t, BookingPending.CanTransition(BookingCompleted))
	assert.True(t, BookingApproved.CanTransition(BookingCompleted))
	assert.False(t, BookingDeclined.CanTransition(BookingApproved))
	assert.False(t, BookingCompleted.CanTransition(BookingPending))
}

func TestProgramme_TypeLabel(t *testing.T) {
	p := &Programme{Type: "  "}
	assert.Equal(t, UndefinedProgrammeType, p.TypeLabel())

	p.Type = "worship"
	assert.Equal(t, "worship", p.TypeLabel())
}

func TestProgrammeStatus_Active(t *testing.T) {
	for _, s := range []ProgrammeStatus{ProgrammeActive, ProgrammeOngoing, ProgrammeUpcoming} {
		assert.True(t, s.Active(), s)
	}
	for _, s := range []ProgrammeStatus{ProgrammePlanning, ProgrammeCompleted, ProgrammeCancelled} {
		assert.False(t, s.Active(), s)
	}
}

func TestMember_FullName(t *testing.T) {
	m := &Member{FirstName: "Anna", LastName: ""}
	assert.Equal(t, "Anna", m.FullName())
}
