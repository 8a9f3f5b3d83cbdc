package jobs

import (
	"context"

	"tripbuilder/crmsync/internal/config"
	"tripbuilder/crmsync/internal/logging"
)

// InitializeJobs starts the scheduled full sync and the pending-push sweep in
// the background. Both stop when ctx is cancelled.
func InitializeJobs(ctx context.Context, cfg config.SyncConfig, fullSync *FullSyncJob, pending *PushPendingJob) {
	if cfg.Interval > 0 {
		go fullSync.RunScheduled(ctx, cfg.Interval)
		logging.Info("Scheduled full sync", "interval", cfg.Interval)
	}

	if cfg.PendingInterval > 0 {
		go pending.RunScheduled(ctx, cfg.PendingInterval)
		logging.Info("Scheduled pending push sweep", "interval", cfg.PendingInterval)
	}
}
