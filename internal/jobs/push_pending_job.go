package jobs

import (
	"context"
	"time"

	gormlib "gorm.io/gorm"

	"tripbuilder/crmsync/internal/constants"
	"tripbuilder/crmsync/internal/db/repositories"
	"tripbuilder/crmsync/internal/logging"
	"tripbuilder/crmsync/internal/models/gorm"
	"tripbuilder/crmsync/internal/services"
)

const pendingBatchLimit = 500

// PushBatchResult summarises one ledgered push batch.
type PushBatchResult struct {
	RunID  string             `json:"run_id"`
	Status string             `json:"status"`
	Counts services.RunCounts `json:"counts"`
}

// RecordReplay folds one replay outcome into counts.
func RecordReplay(counts *services.RunCounts, result services.ReplayResult, err error) {
	counts.Fetched++
	if err != nil {
		counts.Failed++
		return
	}
	switch result {
	case services.ReplayCreated:
		counts.Created++
	case services.ReplayAdopted:
		counts.Created++
		counts.Bump("adopted", 1)
	case services.ReplayUpdated:
		counts.Updated++
	case services.ReplayDeleted:
		counts.Bump("deleted", 1)
	default:
		counts.Skipped++
	}
}

// PushPendingJob sweeps rows whose push never completed: bookings without a
// remote id, provisional members, and rows waiting for a remote delete.
type PushPendingJob struct {
	db     *gormlib.DB
	pusher *services.PushSyncer
	ledger *services.SyncLedger
}

func NewPushPendingJob(db *gormlib.DB, pusher *services.PushSyncer, ledger *services.SyncLedger) *PushPendingJob {
	return &PushPendingJob{db: db, pusher: pusher, ledger: ledger}
}

// Run replays every pending row as one push_batch run.
func (j *PushPendingJob) Run(ctx context.Context) (*PushBatchResult, error) {
	start := time.Now()
	log := logging.ForJob("PushPendingJob")

	runID, err := j.ledger.Begin(ctx, constants.SyncKindPushBatch)
	if err != nil {
		return nil, err
	}
	result := &PushBatchResult{RunID: runID}
	lctx := context.WithoutCancel(ctx)

	bookings := repositories.NewBookingRepo(j.db)
	members := repositories.NewMemberRepo(j.db)

	unpushed, err := bookings.ListUnpushed(ctx, pendingBatchLimit)
	if err == nil {
		var deletes []gorm.Booking
		deletes, err = bookings.ListPendingDelete(ctx, pendingBatchLimit)
		unpushed = append(unpushed, deletes...)
	}
	if err != nil {
		result.Status = constants.SyncStatusFailed
		if lerr := j.ledger.Fail(lctx, runID, err); lerr != nil {
			log.Errorw("Failed to record push batch failure", "run_id", runID, "error", lerr)
		}
		return result, err
	}

	provisional, err := members.ListProvisional(ctx, pendingBatchLimit)
	if err == nil {
		var deletes []gorm.Member
		deletes, err = members.ListPendingDelete(ctx, pendingBatchLimit)
		provisional = append(provisional, deletes...)
	}
	if err != nil {
		result.Status = constants.SyncStatusFailed
		if lerr := j.ledger.Fail(lctx, runID, err); lerr != nil {
			log.Errorw("Failed to record push batch failure", "run_id", runID, "error", lerr)
		}
		return result, err
	}

	for i := range unpushed {
		if ctx.Err() != nil {
			break
		}
		res, err := j.pusher.ReplayBooking(ctx, &unpushed[i])
		if err != nil {
			log.Warnw("Pending booking push failed", "booking_id", unpushed[i].ID, "error", err)
		}
		RecordReplay(&result.Counts, res, err)
	}
	for i := range provisional {
		if ctx.Err() != nil {
			break
		}
		res, err := j.pusher.ReplayMember(ctx, &provisional[i])
		if err != nil {
			log.Warnw("Pending member push failed", "member_id", provisional[i].ID, "error", err)
		}
		RecordReplay(&result.Counts, res, err)
	}

	if cerr := ctx.Err(); cerr != nil {
		result.Status = constants.SyncStatusPartial
		if lerr := j.ledger.Partial(lctx, runID, result.Counts, cerr); lerr != nil {
			log.Errorw("Failed to record cancelled push batch", "run_id", runID, "error", lerr)
		}
		return result, nil
	}

	if err := j.ledger.Complete(lctx, runID, result.Counts); err != nil {
		return result, err
	}
	result.Status = constants.SyncStatusSuccess
	if result.Counts.Failed > 0 {
		result.Status = constants.SyncStatusPartial
	}

	log.Infow("Push batch finished",
		"status", result.Status,
		"attempted", result.Counts.Fetched,
		"failed", result.Counts.Failed,
		"duration", time.Since(start).Truncate(time.Millisecond),
	)
	return result, nil
}

// RunScheduled sweeps pending pushes on a ticker until ctx is cancelled.
func (j *PushPendingJob) RunScheduled(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := j.Run(ctx); err != nil {
				logging.Error("Scheduled push sweep failed", "error", err)
			}
		case <-ctx.Done():
			logging.Info("Shutting down push sweep")
			return
		}
	}
}
