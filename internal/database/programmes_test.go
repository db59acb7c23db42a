package database

import (
	"context"
	"testing"
	"time"

	"parish/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgrammeLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	start := time.Date(2025, 1, 5, 10, 0, 0, 0, time.UTC)
	p := &models.Programme{
		Name:       "Sunday School",
		Type:       "education",
		Status:     models.ProgrammeActive,
		Start:      start,
		End:        start.Add(90 * time.Minute),
		Recurrence: "FREQ=WEEKLY;BYDAY=SU",
		Attendees:  []int64{1, 2, 2},
	}
	require.NoError(t, db.CreateProgramme(ctx, p))
	assert.Equal(t, []int64{1, 2}, p.Attendees)
	assert.Equal(t, 2, p.AttendeeCount)

	require.NoError(t, db.AddAttendee(ctx, p.ID, 3))
	require.NoError(t, db.AddAttendee(ctx, p.ID, 3))

	got, err := db.GetProgramme(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, got.Attendees)
	assert.Equal(t, 3, got.AttendeeCount)
	assert.True(t, got.Start.Equal(start))
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=SU", got.Recurrence)

	got.Status = models.ProgrammeCompleted
	require.NoError(t, db.UpdateProgramme(ctx, got))

	list, err := db.ListProgrammes(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.ProgrammeCompleted, list[0].Status)
	assert.Equal(t, 3, list[0].AttendeeCount)

	require.NoError(t, db.DeleteProgramme(ctx, p.ID))
	_, err = db.GetProgramme(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, db.DeleteProgramme(ctx, p.ID), ErrNotFound)
}

func TestProgrammeWithoutDates(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	p := &models.Programme{Name: "Choir"}
	require.NoError(t, db.CreateProgramme(ctx, p))
	assert.Equal(t, models.ProgrammePlanning, p.Status)

	got, err := db.GetProgramme(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Start.IsZero())
	assert.Empty(t, got.Attendees)
}

func TestAddAttendee_UnknownProgramme(t *testing.T) {
	db := setupTestDB(t)
	assert.ErrorIs(t, db.AddAttendee(context.Background(), 77, 1), ErrNotFound)
	assert.ErrorIs(t, db.UpdateProgramme(context.Background(), &models.Programme{ID: 77}), ErrNotFound)
}

func TestAttendance(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	p := &models.Programme{Name: "Bible Study"}
	require.NoError(t, db.CreateProgramme(ctx, p))
	other := &models.Programme{Name: "Youth"}
	require.NoError(t, db.CreateProgramme(ctx, other))

	day := time.Date(2025, 3, 2, 19, 0, 0, 0, time.UTC)
	records := []*models.AttendanceRecord{
		{ProgrammeID: p.ID, MemberID: 1, Date: day, Present: true},
		{ProgrammeID: p.ID, MemberID: 2, Date: day, Present: false, Notes: "sick"},
		{ProgrammeID: other.ID, MemberID: 1, Date: day.AddDate(0, 0, 1), Present: true},
	}
	for _, r := range records {
		require.NoError(t, db.RecordAttendance(ctx, r))
		assert.NotZero(t, r.ID)
	}

	all, err := db.ListAttendance(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	forP, err := db.ListAttendanceForProgramme(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, forP, 2)
	assert.True(t, forP[0].Present)
	assert.False(t, forP[1].Present)
	assert.Equal(t, "sick", forP[1].Notes)
	assert.True(t, forP[0].Date.Equal(day))

	// deleting a programme removes its attendance
	require.NoError(t, db.DeleteProgramme(ctx, p.ID))
	all, err = db.ListAttendance(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMembers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	joined := time.Date(2020, 9, 1, 0, 0, 0, 0, time.UTC)
	m := &models.Member{FirstName: "Anna", LastName: "Smirnova", Email: "anna@example.org", JoinedAt: joined}
	require.NoError(t, db.CreateMember(ctx, m))
	require.NoError(t, db.CreateMember(ctx, &models.Member{FirstName: "Boris", LastName: "Abramov"}))

	got, err := db.GetMember(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Anna Smirnova", got.FullName())
	assert.Equal(t, models.MemberActive, got.Status)
	assert.True(t, got.JoinedAt.Equal(joined))

	list, err := db.ListMembers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Abramov", list[0].LastName)
	assert.Empty(t, list[0].Email)

	_, err = db.GetMember(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}
