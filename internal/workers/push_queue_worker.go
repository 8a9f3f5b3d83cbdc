package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tripbuilder/crmsync/internal/common"
	"tripbuilder/crmsync/internal/constants"
	"tripbuilder/crmsync/internal/jobs"
	"tripbuilder/crmsync/internal/logging"
	"tripbuilder/crmsync/internal/providers"
	"tripbuilder/crmsync/internal/services"
)

const (
	dequeueCount  = 20
	dequeueBlock  = 5 * time.Second
	staleIdle     = 5 * time.Minute
	claimInterval = 2 * time.Minute
)

// PushQueue is the stream the worker consumes.
type PushQueue interface {
	EnsureGroup(ctx context.Context) error
	DequeueBatch(ctx context.Context, consumer string, count int64, block time.Duration) ([]common.QueuedPush, error)
	ClaimStale(ctx context.Context, consumer string, minIdle time.Duration, count int64) ([]common.QueuedPush, error)
	Ack(ctx context.Context, messageIDs ...string) error
}

// Replayer retries the push of one local row.
type Replayer interface {
	Replay(ctx context.Context, kind constants.ResourceKind, localID string) (services.ReplayResult, error)
}

// PushQueueWorker drains deferred pushes from the queue. Every batch is one
// push_batch ledger run.
type PushQueueWorker struct {
	workerID string
	queue    PushQueue
	pusher   Replayer
	ledger   *services.SyncLedger
}

func NewPushQueueWorker(workerID string, queue PushQueue, pusher Replayer, ledger *services.SyncLedger) *PushQueueWorker {
	return &PushQueueWorker{
		workerID: workerID,
		queue:    queue,
		pusher:   pusher,
		ledger:   ledger,
	}
}

// Start runs numWorkers consumers plus a stale-message claimer until ctx is
// cancelled.
func (w *PushQueueWorker) Start(ctx context.Context, numWorkers int) error {
	log := logging.ForJob("PushQueueWorker")

	if err := w.queue.EnsureGroup(ctx); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	log.Infow("Starting push queue workers", "workers", numWorkers, "id", w.workerID)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		consumer := fmt.Sprintf("%s-%d", w.workerID, i)
		go func() {
			defer wg.Done()
			w.consume(ctx, consumer)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.claimStale(ctx)
	}()

	wg.Wait()
	log.Infow("All push queue workers stopped")
	return nil
}

func (w *PushQueueWorker) consume(ctx context.Context, consumer string) {
	log := logging.ForJob("PushQueueWorker").With("consumer", consumer)
	processed, failed := 0, 0

	for {
		select {
		case <-ctx.Done():
			log.Infow("Shutting down", "processed", processed, "failed", failed)
			return
		default:
		}

		batch, err := w.queue.DequeueBatch(ctx, consumer, dequeueCount, dequeueBlock)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Warnw("Dequeue failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if len(batch) == 0 {
			continue
		}

		res, err := w.ProcessBatch(ctx, batch)
		if err != nil {
			log.Errorw("Push batch failed", "error", err)
			continue
		}
		processed += res.Counts.Fetched - res.Counts.Failed
		failed += res.Counts.Failed
	}
}

func (w *PushQueueWorker) claimStale(ctx context.Context) {
	ticker := time.NewTicker(claimInterval)
	defer ticker.Stop()
	claimer := w.workerID + "-claimer"

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch, err := w.queue.ClaimStale(ctx, claimer, staleIdle, dequeueCount)
			if err != nil {
				logging.Warn("Failed to claim stale push tasks", "error", err)
				continue
			}
			if len(batch) == 0 {
				continue
			}
			logging.Info("Claimed stale push tasks", "count", len(batch))
			if _, err := w.ProcessBatch(ctx, batch); err != nil {
				logging.Error("Stale push batch failed", "error", err)
			}
		}
	}
}

// ProcessBatch replays every task of batch under one ledger run. A task is
// acked once it succeeded, its row is gone or the CRM rejected it for good;
// transient failures stay pending and are claimed again later.
func (w *PushQueueWorker) ProcessBatch(ctx context.Context, batch []common.QueuedPush) (*jobs.PushBatchResult, error) {
	runID, err := w.ledger.Begin(ctx, constants.SyncKindPushBatch)
	if err != nil {
		return nil, err
	}
	result := &jobs.PushBatchResult{RunID: runID}
	lctx := context.WithoutCancel(ctx)

	var ack []string
	for _, item := range batch {
		task := item.Task
		res, err := w.pusher.Replay(ctx, task.Kind, task.LocalID)
		switch {
		case errors.Is(err, services.ErrRowGone):
			result.Counts.Fetched++
			result.Counts.Skipped++
			ack = append(ack, item.MessageID)
			continue
		case err != nil && (providers.IsTransient(err) || errors.Is(err, services.ErrFieldMapNotLoaded)):
			logging.Warn("Deferred push still failing, leaving it pending",
				"kind", task.Kind, "local_id", task.LocalID, "op", task.Op, "error", err)
		case err != nil:
			logging.Error("Deferred push rejected",
				"kind", task.Kind, "local_id", task.LocalID, "op", task.Op, "error", err)
			ack = append(ack, item.MessageID)
		default:
			ack = append(ack, item.MessageID)
		}
		jobs.RecordReplay(&result.Counts, res, err)
	}

	if err := w.queue.Ack(lctx, ack...); err != nil {
		logging.Error("Failed to ack push tasks", "count", len(ack), "error", err)
	}

	if err := w.ledger.Complete(lctx, runID, result.Counts); err != nil {
		return result, err
	}
	result.Status = constants.SyncStatusSuccess
	if result.Counts.Failed > 0 {
		result.Status = constants.SyncStatusPartial
	}
	return result, nil
}
