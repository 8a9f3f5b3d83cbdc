package services

import (
	"context"
	"fmt"
	"time"

	"tripbuilder/crmsync/internal/constants"
	"tripbuilder/crmsync/internal/db/repositories"
	"tripbuilder/crmsync/internal/logging"
	"tripbuilder/crmsync/internal/metrics"
	"tripbuilder/crmsync/internal/models/gorm"
)

// RunCounts are the tallies written to a ledger row when a run finishes.
type RunCounts struct {
	Pages   int            `json:"pages"`
	Fetched int            `json:"fetched"`
	Created int            `json:"created"`
	Updated int            `json:"updated"`
	Failed  int            `json:"failed"`
	Skipped int            `json:"skipped"`
	ByKind  map[string]int `json:"by_kind,omitempty"`
}

// Add accumulates other into c.
func (c *RunCounts) Add(other RunCounts) {
	c.Pages += other.Pages
	c.Fetched += other.Fetched
	c.Created += other.Created
	c.Updated += other.Updated
	c.Failed += other.Failed
	c.Skipped += other.Skipped
	for k, v := range other.ByKind {
		c.Bump(k, v)
	}
}

// Bump adds n to a named counter.
func (c *RunCounts) Bump(key string, n int) {
	if c.ByKind == nil {
		c.ByKind = make(map[string]int)
	}
	c.ByKind[key] += n
}

// SyncLedger records one audit row per bulk import and scheduled push batch.
// Rows are created in_progress and finished exactly once.
type SyncLedger struct {
	repo    *repositories.SyncRunRepo
	metrics *metrics.MetricsRegistry
}

func NewSyncLedger(repo *repositories.SyncRunRepo, m *metrics.MetricsRegistry) *SyncLedger {
	return &SyncLedger{repo: repo, metrics: m}
}

// Begin opens a run and returns its id.
func (l *SyncLedger) Begin(ctx context.Context, kind string) (string, error) {
	run := &gorm.SyncRun{
		Kind:      kind,
		Status:    constants.SyncStatusInProgress,
		StartedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, run); err != nil {
		return "", fmt.Errorf("failed to begin %s run: %w", kind, err)
	}
	logging.Info("Sync run started", "run_id", run.ID, "kind", kind)
	return run.ID, nil
}

// Complete finishes a run as success, or partial when any record failed.
func (l *SyncLedger) Complete(ctx context.Context, runID string, counts RunCounts) error {
	status := constants.SyncStatusSuccess
	if counts.Failed > 0 {
		status = constants.SyncStatusPartial
	}
	return l.finish(ctx, runID, status, &counts, nil)
}

// Partial finishes a run that stopped early but committed some work.
func (l *SyncLedger) Partial(ctx context.Context, runID string, counts RunCounts, cause error) error {
	return l.finish(ctx, runID, constants.SyncStatusPartial, &counts, cause)
}

// Fail finishes a run that committed nothing.
func (l *SyncLedger) Fail(ctx context.Context, runID string, cause error) error {
	return l.finish(ctx, runID, constants.SyncStatusFailed, nil, cause)
}

func (l *SyncLedger) finish(ctx context.Context, runID, status string, counts *RunCounts, cause error) error {
	run, err := l.repo.FindByID(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	if run == nil {
		return fmt.Errorf("sync run %s not found", runID)
	}
	if run.Status != constants.SyncStatusInProgress {
		return fmt.Errorf("sync run %s already finished as %s", runID, run.Status)
	}

	now := time.Now().UTC()
	run.Status = status
	run.CompletedAt = &now
	run.DurationMs = now.Sub(run.StartedAt).Milliseconds()
	if counts != nil {
		run.Pages = counts.Pages
		run.RecordsFetched = counts.Fetched
		run.RecordsCreated = counts.Created
		run.RecordsUpdated = counts.Updated
		run.RecordsFailed = counts.Failed
		run.RecordsSkipped = counts.Skipped
		run.Counts = counts.ByKind
	}
	if cause != nil {
		msg := cause.Error()
		run.ErrorText = &msg
	}

	if err := l.repo.Save(ctx, run); err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}

	l.metrics.RunFinished(run.Kind, status)
	logging.Info("Sync run finished",
		"run_id", runID,
		"kind", run.Kind,
		"status", status,
		"duration", time.Duration(run.DurationMs)*time.Millisecond,
	)
	return nil
}

// Recent returns the newest runs; kind may be empty for all kinds.
func (l *SyncLedger) Recent(ctx context.Context, kind string, limit int) ([]gorm.SyncRun, error) {
	return l.repo.GetRecent(ctx, kind, limit)
}

// Get returns nil, nil for an unknown id.
func (l *SyncLedger) Get(ctx context.Context, runID string) (*gorm.SyncRun, error) {
	return l.repo.FindByID(ctx, runID)
}

func (l *SyncLedger) LastSuccess(ctx context.Context, kind string) (*gorm.SyncRun, error) {
	return l.repo.GetLastWithStatus(ctx, kind, constants.SyncStatusSuccess)
}
