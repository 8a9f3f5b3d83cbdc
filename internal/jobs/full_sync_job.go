package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tripbuilder/crmsync/internal/constants"
	"tripbuilder/crmsync/internal/logging"
	"tripbuilder/crmsync/internal/metrics"
	"tripbuilder/crmsync/internal/services"
)

// ErrSyncRunning is returned when a full sync is already in progress.
var ErrSyncRunning = errors.New("a full sync is already running")

// StepResult is the outcome of one full sync step.
type StepResult struct {
	Name     string `json:"name"`
	RunID    string `json:"run_id,omitempty"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Critical bool   `json:"critical"`
}

// FullSyncReport is what an operator sees after a full sync.
type FullSyncReport struct {
	StartedAt time.Time                  `json:"started_at"`
	Duration  time.Duration              `json:"duration"`
	Steps     []StepResult               `json:"steps"`
	Counts    services.RunCounts         `json:"counts"`
	Discovery *DiscoveryResult           `json:"discovery,omitempty"`
	Vendors   *services.VendorSyncResult `json:"vendors,omitempty"`
	Link      *LinkReport                `json:"link,omitempty"`
}

// ExitCode is 0 only when every critical step succeeded.
func (r *FullSyncReport) ExitCode() int {
	for _, s := range r.Steps {
		if s.Critical && s.Status != constants.SyncStatusSuccess {
			return 1
		}
	}
	return 0
}

func (r *FullSyncReport) add(step StepResult) {
	r.Steps = append(r.Steps, step)
}

func stepFromImport(name string, res *ImportResult, err error) StepResult {
	step := StepResult{Name: name, Critical: true, Status: constants.SyncStatusFailed}
	if res != nil {
		step.RunID = res.RunID
		step.Status = res.Status
	}
	if err != nil {
		step.Error = err.Error()
	}
	return step
}

// FullSyncJob runs discovery, the imports, vendor sync and the link pass in
// order.
type FullSyncJob struct {
	discovery  *DiscoveryJob
	contacts   *ContactImportJob
	importer   *BulkImporter
	vendors    *services.VendorSyncService
	linker     *LinkResolver
	concurrent bool
	metrics    *metrics.MetricsRegistry

	running sync.Mutex
}

func NewFullSyncJob(
	discovery *DiscoveryJob,
	contacts *ContactImportJob,
	importer *BulkImporter,
	vendors *services.VendorSyncService,
	linker *LinkResolver,
	concurrent bool,
	m *metrics.MetricsRegistry,
) *FullSyncJob {
	return &FullSyncJob{
		discovery:  discovery,
		contacts:   contacts,
		importer:   importer,
		vendors:    vendors,
		linker:     linker,
		concurrent: concurrent,
		metrics:    m,
	}
}

// Run executes one full sync. Only a discovery failure stops the sequence;
// other step failures are recorded in the report.
func (j *FullSyncJob) Run(ctx context.Context) (*FullSyncReport, error) {
	if !j.running.TryLock() {
		return nil, ErrSyncRunning
	}
	defer j.running.Unlock()
	return j.run(ctx)
}

// Start launches a full sync in the background and returns at once. It fails
// with ErrSyncRunning while another sync holds the lock.
func (j *FullSyncJob) Start(ctx context.Context) error {
	if !j.running.TryLock() {
		return ErrSyncRunning
	}
	go func() {
		defer j.running.Unlock()
		if _, err := j.run(ctx); err != nil {
			logging.Error("Triggered full sync failed", "error", err)
		}
	}()
	return nil
}

func (j *FullSyncJob) run(ctx context.Context) (*FullSyncReport, error) {
	start := time.Now()
	log := logging.ForJob("FullSyncJob")
	report := &FullSyncReport{StartedAt: start.UTC()}
	defer func() {
		report.Duration = time.Since(start).Truncate(time.Millisecond)
		j.metrics.ObserveJob("full_sync", time.Since(start))
	}()

	log.Infow("Starting full sync", "concurrent_imports", j.concurrent)

	// 1. discovery
	disc, err := j.discovery.Run(ctx)
	report.Discovery = disc
	if err != nil {
		report.add(StepResult{Name: "discovery", Status: constants.SyncStatusFailed, Error: err.Error(), Critical: true})
		log.Errorw("Discovery failed, aborting full sync", "error", err)
		return report, err
	}
	report.add(StepResult{Name: "discovery", Status: constants.SyncStatusSuccess, Critical: true})

	// 2. contacts
	cres, err := j.contacts.Run(ctx)
	report.add(stepFromImport(constants.SyncKindImportContacts, cres, err))
	if cres != nil {
		report.Counts.Add(cres.Counts)
	}

	// 3. bookings and members
	booking, member := j.runImports(ctx)
	report.add(stepFromImport(constants.SyncKindImportBooking, booking.result, booking.err))
	report.add(stepFromImport(constants.SyncKindImportMember, member.result, member.err))
	for _, o := range []importOutcome{booking, member} {
		if o.result != nil {
			report.Counts.Add(o.result.Counts)
		}
	}

	// 4. vendors, never fatal
	vres, err := j.vendors.Sync(ctx)
	if err != nil {
		log.Warnw("Vendor sync failed", "error", err)
		report.add(StepResult{Name: "vendor_sync", Status: constants.SyncStatusFailed, Error: err.Error()})
	} else {
		report.Vendors = vres
		report.add(StepResult{Name: "vendor_sync", Status: constants.SyncStatusSuccess})
	}

	// 5. link
	link, err := j.linker.Run(ctx)
	if err != nil {
		report.add(StepResult{Name: "link", Status: constants.SyncStatusFailed, Error: err.Error(), Critical: true})
	} else {
		report.Link = link
		status := constants.SyncStatusSuccess
		if link.Errors > 0 {
			status = constants.SyncStatusPartial
		}
		report.add(StepResult{Name: "link", Status: status, Critical: true})
	}

	log.Infow("Full sync finished",
		"exit_code", report.ExitCode(),
		"fetched", report.Counts.Fetched,
		"failed", report.Counts.Failed,
		"duration", time.Since(start).Truncate(time.Millisecond),
	)
	return report, nil
}

type importOutcome struct {
	result *ImportResult
	err    error
}

func (j *FullSyncJob) runImports(ctx context.Context) (booking, member importOutcome) {
	if !j.concurrent {
		booking.result, booking.err = j.importer.Run(ctx, PipelineBooking)
		member.result, member.err = j.importer.Run(ctx, PipelineMember)
		return booking, member
	}

	// A failed import must not cancel the other, so no group context.
	var g errgroup.Group
	g.Go(func() error {
		booking.result, booking.err = j.importer.Run(ctx, PipelineBooking)
		return nil
	})
	g.Go(func() error {
		member.result, member.err = j.importer.Run(ctx, PipelineMember)
		return nil
	})
	_ = g.Wait()
	return booking, member
}

// RunScheduled runs a full sync immediately and then on every tick until ctx
// is cancelled.
func (j *FullSyncJob) RunScheduled(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := j.Run(ctx); err != nil {
		logging.Error("Initial full sync failed", "error", err)
	}

	for {
		select {
		case <-ticker.C:
			if _, err := j.Run(ctx); err != nil {
				logging.Error("Scheduled full sync failed", "error", err)
			}
		case <-ctx.Done():
			logging.Info("Shutting down scheduled full sync")
			return
		}
	}
}
