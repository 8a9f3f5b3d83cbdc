package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"tripbuilder/crmsync/internal/common"
	"tripbuilder/crmsync/internal/db/repositories"
	"tripbuilder/crmsync/internal/jobs"
	"tripbuilder/crmsync/internal/logging"
	"tripbuilder/crmsync/internal/services"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type Handlers struct {
	ledger   *services.SyncLedger
	report   *repositories.LinkReportRepo
	fullSync *jobs.FullSyncJob
	pending  *jobs.PushPendingJob
	queue    *common.PushQueueService

	// triggered syncs outlive the request that started them
	background context.Context
}

// NewHandlers creates a new handlers instance with injected dependencies.
// Syncs triggered over HTTP stop when ctx is cancelled.
func NewHandlers(ctx context.Context, deps *Dependencies) *Handlers {
	return &Handlers{
		ledger:     deps.Services.Ledger,
		report:     deps.Repo.LinkReport,
		fullSync:   deps.Jobs.FullSync,
		pending:    deps.Jobs.Pending,
		queue:      deps.Services.PushQueue,
		background: ctx,
	}
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}

// ListSyncRuns handles GET /api/v1/sync/runs?kind=&limit=
func (h *Handlers) ListSyncRuns() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		runs, err := h.ledger.Recent(r.Context(), r.URL.Query().Get("kind"), queryLimit(r))
		if err != nil {
			common.RespondError(w, start, err, "Failed to load sync runs")
			return
		}
		common.RespondSuccess(w, start, "Sync runs", runs)
	}
}

// GetSyncRun handles GET /api/v1/sync/runs/{id}
func (h *Handlers) GetSyncRun() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		run, err := h.ledger.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			common.RespondError(w, start, err, "Failed to load sync run")
			return
		}
		if run == nil {
			common.RespondError(w, start, nil, "Sync run not found", http.StatusNotFound)
			return
		}
		common.RespondSuccess(w, start, "Sync run", run)
	}
}

// UnlinkedReport is the body of GET /api/v1/sync/report.
type UnlinkedReport struct {
	Unlinked              []repositories.UnlinkedMemberRow `json:"unlinked"`
	MembersWithoutContact int                              `json:"members_without_contact"`
	RunsLastDay           []repositories.RunStatusCount    `json:"runs_last_day"`
}

// SyncReport handles GET /api/v1/sync/report?limit=
func (h *Handlers) SyncReport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()

		unlinked, err := h.report.UnlinkedMembers(ctx, queryLimit(r))
		if err != nil {
			common.RespondError(w, start, err, "Failed to load unlinked members")
			return
		}
		gaps, err := h.report.MembersWithoutContact(ctx)
		if err != nil {
			common.RespondError(w, start, err, "Failed to count contact gaps")
			return
		}
		runs, err := h.report.RunStatusSince(ctx, time.Now().Add(-24*time.Hour))
		if err != nil {
			common.RespondError(w, start, err, "Failed to summarise sync runs")
			return
		}

		common.RespondSuccess(w, start, "Sync report", UnlinkedReport{
			Unlinked:              unlinked,
			MembersWithoutContact: gaps,
			RunsLastDay:           runs,
		})
	}
}

// TriggerFullSync handles POST /api/v1/sync/full. The sync runs in the
// background; progress is visible through the run ledger.
func (h *Handlers) TriggerFullSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		err := h.fullSync.Start(h.background)
		if errors.Is(err, jobs.ErrSyncRunning) {
			common.RespondError(w, start, err, "", http.StatusConflict)
			return
		}
		if err != nil {
			common.RespondError(w, start, err, "Failed to start full sync")
			return
		}
		logging.Info("Full sync triggered over HTTP", "remote_addr", r.RemoteAddr)
		common.RespondSuccess(w, start, "Full sync started", nil, http.StatusAccepted)
	}
}

// TriggerPushPending handles POST /api/v1/sync/push-pending and waits for
// the sweep to finish.
func (h *Handlers) TriggerPushPending() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		res, err := h.pending.Run(r.Context())
		if err != nil {
			common.RespondError(w, start, err, "Push sweep failed")
			return
		}
		common.RespondSuccess(w, start, "Push sweep finished", res)
	}
}

// QueueStatus handles GET /api/v1/sync/queue.
func (h *Handlers) QueueStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if h.queue == nil {
			common.RespondSuccess(w, start, "Push queue disabled", map[string]interface{}{"enabled": false})
			return
		}
		n, err := h.queue.Length(r.Context())
		if err != nil {
			common.RespondError(w, start, err, "Failed to read push queue", http.StatusServiceUnavailable)
			return
		}
		common.RespondSuccess(w, start, "Push queue", map[string]interface{}{"enabled": true, "length": n})
	}
}
