package workers

import (
	"context"
	"time"

	"tripbuilder/crmsync/internal/common"
	"tripbuilder/crmsync/internal/logging"
	"tripbuilder/crmsync/internal/services"
)

const (
	pushWorkers     = 2
	monitorInterval = 30 * time.Second
	queueMaxLen     = 10000
)

type WorkersContainer struct {
	PushQueue *PushQueueWorker
	Monitor   *PushQueueMonitor
}

// InitWorkers starts the push queue consumers and monitor. queue may be nil
// when the push queue is disabled, in which case nothing is started.
func InitWorkers(ctx context.Context, queue *common.PushQueueService, pusher *services.PushSyncer, ledger *services.SyncLedger) *WorkersContainer {
	if queue == nil {
		logging.Info("Push queue disabled, deferred pushes are swept by the pending job")
		return &WorkersContainer{}
	}

	worker := NewPushQueueWorker("push-worker", queue, pusher, ledger)
	monitor := NewPushQueueMonitor(queue, queueMaxLen)

	go func() {
		if err := worker.Start(ctx, pushWorkers); err != nil {
			logging.Error("Push queue worker stopped", "error", err)
		}
	}()
	go monitor.Start(ctx, monitorInterval)

	return &WorkersContainer{PushQueue: worker, Monitor: monitor}
}
