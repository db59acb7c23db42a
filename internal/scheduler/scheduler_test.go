package scheduler

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"parish/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = zerolog.New(io.Discard)

type completer struct{ n int }

func (c *completer) CompleteElapsed(context.Context) (int, error) { return c.n, nil }

type refresher struct {
	st  *models.Statistics
	err error
}

func (r *refresher) Refresh(context.Context) (*models.Statistics, error) { return r.st, r.err }

type statsWriter struct{ got *models.Statistics }

func (w *statsWriter) WriteStatistics(_ context.Context, st *models.Statistics) error {
	w.got = st
	return nil
}

type failedSource struct{ tasks []models.SyncTask }

func (f *failedSource) GetFailedSyncTasks(context.Context) ([]models.SyncTask, error) {
	return f.tasks, nil
}

type notifier struct{ texts []string }

func (n *notifier) Notify(text string) error {
	n.texts = append(n.texts, text)
	return nil
}

func TestScheduler_Add(t *testing.T) {
	s := New(time.UTC, &testLogger)

	require.NoError(t, s.Add(CompleteBookingsJob("*/15 * * * *", &completer{}, &testLogger)))
	require.NoError(t, s.Add(Job{Name: "disabled", Spec: "", Run: func(context.Context) error { return nil }}))
	assert.Error(t, s.Add(Job{Name: "broken", Spec: "every tuesday", Run: func(context.Context) error { return nil }}))

	assert.Equal(t, 1, s.Entries())
}

func TestScheduler_RunNowAndStop(t *testing.T) {
	s := New(time.UTC, &testLogger)
	s.Start()

	var sawDeadline bool
	err := s.RunNow(Job{Name: "probe", Timeout: time.Second, Run: func(ctx context.Context) error {
		_, sawDeadline = ctx.Deadline()
		return errors.New("boom")
	}})
	assert.EqualError(t, err, "boom")
	assert.True(t, sawDeadline)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestWarmStatisticsJob(t *testing.T) {
	st := &models.Statistics{TotalProgrammes: 4}
	w := &statsWriter{}
	s := New(time.UTC, &testLogger)

	require.NoError(t, s.RunNow(WarmStatisticsJob("0 * * * *", &refresher{st: st}, w)))
	assert.Same(t, st, w.got)

	require.NoError(t, s.RunNow(WarmStatisticsJob("0 * * * *", &refresher{st: st}, nil)))
	assert.Error(t, s.RunNow(WarmStatisticsJob("0 * * * *", &refresher{err: errors.New("db")}, w)))
}

func TestFailedSyncReportJob(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	old := now.Add(-48 * time.Hour)
	recent := now.Add(-time.Hour)

	src := &failedSource{tasks: []models.SyncTask{
		{ID: 1, ProcessedAt: &old},
		{ID: 2, ProcessedAt: &recent},
	}}
	n := &notifier{}

	var reported [][]models.SyncTask
	report := func(tasks []models.SyncTask) string {
		reported = append(reported, tasks)
		return "report"
	}

	clock := now
	job := FailedSyncReportJob("0 8 * * *", src, n, report, func() time.Time { return clock })
	s := New(time.UTC, &testLogger)

	require.NoError(t, s.RunNow(job))
	require.Len(t, reported, 1)
	require.Len(t, reported[0], 1)
	assert.Equal(t, int64(2), reported[0][0].ID)
	assert.Equal(t, []string{"report"}, n.texts)

	// на следующий день старые задачи уже не попадают в отчёт
	clock = now.Add(24 * time.Hour)
	require.NoError(t, s.RunNow(job))
	assert.Len(t, n.texts, 1)
}

func TestCompleteBookingsJob(t *testing.T) {
	s := New(time.UTC, &testLogger)
	assert.NoError(t, s.RunNow(CompleteBookingsJob("*/15 * * * *", &completer{n: 3}, &testLogger)))
}
