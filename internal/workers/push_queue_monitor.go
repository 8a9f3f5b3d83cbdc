package workers

import (
	"context"
	"fmt"
	"time"

	"tripbuilder/crmsync/internal/logging"
)

// QueueLength reports the size of the push stream.
type QueueLength interface {
	Length(ctx context.Context) (int64, error)
	Trim(ctx context.Context, maxLen int64) error
}

const highQueueLength = 1000

// PushQueueMonitor logs the push stream length and trims it.
type PushQueueMonitor struct {
	queue  QueueLength
	maxLen int64
}

func NewPushQueueMonitor(queue QueueLength, maxLen int64) *PushQueueMonitor {
	return &PushQueueMonitor{queue: queue, maxLen: maxLen}
}

// Start checks the queue on every tick until ctx is cancelled.
func (m *PushQueueMonitor) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			logging.Info("Push queue monitor shutting down")
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check logs the current length, warning above highQueueLength, and trims
// the stream to maxLen entries.
func (m *PushQueueMonitor) Check(ctx context.Context) (int64, error) {
	n, err := m.queue.Length(ctx)
	if err != nil {
		logging.Warn("Failed to read push queue length", "error", err)
		return 0, err
	}

	if n > highQueueLength {
		logging.Warn("Push queue is backing up", "length", n)
	} else {
		logging.Info("Push queue health", "length", n)
	}

	if m.maxLen > 0 && n > m.maxLen {
		if err := m.queue.Trim(ctx, m.maxLen); err != nil {
			return n, fmt.Errorf("failed to trim push queue: %w", err)
		}
	}
	return n, nil
}
