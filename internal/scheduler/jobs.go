package scheduler

import (
	"context"
	"time"

	"parish/internal/models"

	"github.com/rs/zerolog"
)

const (
	JobCompleteBookings = "complete_elapsed_bookings"
	JobWarmStatistics   = "warm_statistics"
	JobFailedSyncReport = "sync_failed_report"
	JobBackup           = "backup"
)

type BookingCompleter interface {
	CompleteElapsed(ctx context.Context) (int, error)
}

type StatisticsRefresher interface {
	Refresh(ctx context.Context) (*models.Statistics, error)
}

type StatisticsWriter interface {
	WriteStatistics(ctx context.Context, st *models.Statistics) error
}

type FailedTaskSource interface {
	GetFailedSyncTasks(ctx context.Context) ([]models.SyncTask, error)
}

type Notifier interface {
	Notify(text string) error
}

type BackupRunner interface {
	Run(ctx context.Context) error
}

func CompleteBookingsJob(spec string, svc BookingCompleter, logger *zerolog.Logger) Job {
	return Job{
		Name: JobCompleteBookings,
		Spec: spec,
		Run: func(ctx context.Context) error {
			n, err := svc.CompleteElapsed(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info().Int("count", n).Msg("elapsed bookings completed")
			}
			return nil
		},
	}
}

// WarmStatisticsJob recomputes the cached statistics and, when a writer is
// given, mirrors them to the spreadsheet.
func WarmStatisticsJob(spec string, svc StatisticsRefresher, writer StatisticsWriter) Job {
	return Job{
		Name: JobWarmStatistics,
		Spec: spec,
		Run: func(ctx context.Context) error {
			st, err := svc.Refresh(ctx)
			if err != nil {
				return err
			}
			if writer == nil {
				return nil
			}
			return writer.WriteStatistics(ctx, st)
		},
	}
}

// FailedSyncReportJob notifies about sync tasks that failed since the
// previous run. The first run looks back one day.
func FailedSyncReportJob(spec string, src FailedTaskSource, n Notifier, report func([]models.SyncTask) string, now func() time.Time) Job {
	var since time.Time
	return Job{
		Name: JobFailedSyncReport,
		Spec: spec,
		Run: func(ctx context.Context) error {
			current := now()
			if since.IsZero() {
				since = current.Add(-24 * time.Hour)
			}

			tasks, err := src.GetFailedSyncTasks(ctx)
			if err != nil {
				return err
			}

			var fresh []models.SyncTask
			for _, t := range tasks {
				if t.ProcessedAt == nil || t.ProcessedAt.After(since) {
					fresh = append(fresh, t)
				}
			}
			since = current

			if len(fresh) == 0 {
				return nil
			}
			return n.Notify(report(fresh))
		},
	}
}

func BackupJob(spec string, b BackupRunner) Job {
	return Job{
		Name:    JobBackup,
		Spec:    spec,
		Timeout: 30 * time.Minute,
		Run:     b.Run,
	}
}
