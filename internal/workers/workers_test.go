package workers

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripbuilder/crmsync/internal/common"
	"tripbuilder/crmsync/internal/constants"
	"tripbuilder/crmsync/internal/db"
	"tripbuilder/crmsync/internal/db/repositories"
	"tripbuilder/crmsync/internal/providers"
	"tripbuilder/crmsync/internal/services"
)

type fakeQueue struct {
	mu     sync.Mutex
	acked  []string
	length int64
	trimTo int64
}

func (q *fakeQueue) EnsureGroup(context.Context) error { return nil }

func (q *fakeQueue) DequeueBatch(context.Context, string, int64, time.Duration) ([]common.QueuedPush, error) {
	return nil, nil
}

func (q *fakeQueue) ClaimStale(context.Context, string, time.Duration, int64) ([]common.QueuedPush, error) {
	return nil, nil
}

func (q *fakeQueue) Ack(_ context.Context, ids ...string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, ids...)
	return nil
}

func (q *fakeQueue) Length(context.Context) (int64, error) { return q.length, nil }

func (q *fakeQueue) Trim(_ context.Context, maxLen int64) error {
	q.trimTo = maxLen
	return nil
}

type scriptedReplayer map[string]struct {
	result services.ReplayResult
	err    error
}

func (r scriptedReplayer) Replay(_ context.Context, _ constants.ResourceKind, localID string) (services.ReplayResult, error) {
	s := r[localID]
	return s.result, s.err
}

func task(msgID, localID string) common.QueuedPush {
	return common.QueuedPush{
		MessageID: msgID,
		Task:      common.PushTask{Kind: constants.ResourceBooking, Op: common.PushOpCreate, LocalID: localID},
	}
}

func TestPushQueueWorker_ProcessBatch(t *testing.T) {
	ctx := context.Background()
	gdb, err := db.InitSQLiteORM(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	ledger := services.NewSyncLedger(repositories.NewSyncRunRepo(gdb), nil)

	queue := &fakeQueue{}
	replayer := scriptedReplayer{
		"1": {result: services.ReplayCreated},
		"2": {result: services.ReplayAdopted},
		"3": {err: services.ErrRowGone},
		"4": {err: &providers.ProviderError{Code: constants.ErrCodeRemoteUnavailable, StatusCode: http.StatusBadGateway, Transient: true}},
		"5": {err: &providers.ProviderError{Code: constants.ErrCodeValidationFailed, StatusCode: http.StatusUnprocessableEntity}},
	}
	worker := NewPushQueueWorker("test", queue, replayer, ledger)

	res, err := worker.ProcessBatch(ctx, []common.QueuedPush{
		task("m1", "1"), task("m2", "2"), task("m3", "3"), task("m4", "4"), task("m5", "5"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"m1", "m2", "m3", "m5"}, queue.acked, "transient failures stay pending")
	assert.Equal(t, 5, res.Counts.Fetched)
	assert.Equal(t, 2, res.Counts.Created)
	assert.Equal(t, 1, res.Counts.ByKind["adopted"])
	assert.Equal(t, 1, res.Counts.Skipped)
	assert.Equal(t, 2, res.Counts.Failed)
	assert.Equal(t, constants.SyncStatusPartial, res.Status)

	run, err := ledger.Get(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, constants.SyncKindPushBatch, run.Kind)
	assert.Equal(t, 2, run.RecordsFailed)
}

func TestPushQueueWorker_StartStopsOnCancel(t *testing.T) {
	gdb, err := db.InitSQLiteORM(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	ctx, cancel := context.WithCancel(context.Background())
	worker := NewPushQueueWorker("test", &fakeQueue{}, scriptedReplayer{}, services.NewSyncLedger(repositories.NewSyncRunRepo(gdb), nil))

	done := make(chan error, 1)
	go func() { done <- worker.Start(ctx, 2) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestPushQueueMonitor_TrimsAboveMax(t *testing.T) {
	queue := &fakeQueue{length: 50}
	m := NewPushQueueMonitor(queue, 10)

	n, err := m.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(50), n)
	assert.Equal(t, int64(10), queue.trimTo)

	queue.trimTo = 0
	queue.length = 5
	_, err = m.Check(context.Background())
	require.NoError(t, err)
	assert.Zero(t, queue.trimTo)
}


func TestPushQueueWorker_FieldMapNotLoadedStaysPending(t *testing.T) {
	ctx := context.Background()
	gdb, err := db.InitSQLiteORM(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	ledger := services.NewSyncLedger(repositories.NewSyncRunRepo(gdb), nil)

	queue := &fakeQueue{}
	replayer := scriptedReplayer{
		"1": {err: fmt.Errorf("bookings 1: %w", services.ErrFieldMapNotLoaded)},
		"2": {result: services.ReplayUpdated},
	}
	worker := NewPushQueueWorker("test", queue, replayer, ledger)

	res, err := worker.ProcessBatch(ctx, []common.QueuedPush{task("m1", "1"), task("m2", "2")})
	require.NoError(t, err)
	assert.Equal(t, []string{"m2"}, queue.acked)
	assert.Equal(t, 1, res.Counts.Failed)
	assert.Equal(t, 1, res.Counts.Updated)
}
