package app

import (
	"context"
	"time"

	pkgcron "github.com/newsroom/core/internal/pkg/cron"
	"github.com/newsroom/core/internal/pkg/session"
	"github.com/newsroom/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	JobPurgeSessions = "purge_sessions"
	JobPurgeTasks    = "purge_tasks"

	finishedTaskRetention = 7 * 24 * time.Hour
)

// registerCronJobs registers the periodic maintenance jobs.
func registerCronJobs(sched *pkgcron.Scheduler, db *gorm.DB, tasks *taskqueue.Service, logger *zap.Logger) {
	cronLogger := logger.Named("CronService")

	mustRegister(sched, pkgcron.Job{
		Name:        JobPurgeSessions,
		Description: "remove expired and revoked login sessions",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			n, err := session.PurgeExpired(db.WithContext(ctx), time.Now())
			if err != nil {
				cronLogger.Warn("purge sessions failed", zap.Error(err))
				return err
			}
			cronLogger.Info("purged sessions", zap.Int64("removed", n))
			return nil
		},
	})

	mustRegister(sched, pkgcron.Job{
		Name:        JobPurgeTasks,
		Description: "remove finished background tasks older than a week",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			before := time.Now().Add(-finishedTaskRetention).UnixMilli()
			n, err := tasks.DeleteCompleted(ctx, before)
			if err != nil {
				cronLogger.Warn("purge tasks failed", zap.Error(err))
				return err
			}
			cronLogger.Info("purged tasks", zap.Int("removed", n))
			return nil
		},
	})
}

func mustRegister(sched *pkgcron.Scheduler, job pkgcron.Job) {
	if err := sched.Register(job); err != nil {
		panic(err)
	}
}
