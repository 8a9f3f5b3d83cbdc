package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	gormlib "gorm.io/gorm"

	"tripbuilder/crmsync/internal/coercion"
	"tripbuilder/crmsync/internal/constants"
	"tripbuilder/crmsync/internal/db/repositories"
	"tripbuilder/crmsync/internal/fieldmap"
	"tripbuilder/crmsync/internal/logging"
	"tripbuilder/crmsync/internal/metrics"
	"tripbuilder/crmsync/internal/providers"
	"tripbuilder/crmsync/internal/services"
)

// ImportState is the lifecycle of one import run.
type ImportState string

const (
	StateNotStarted ImportState = "not_started"
	StatePaging     ImportState = "paging"
	StateDone       ImportState = "done"
	StateFailed     ImportState = "failed"
)

// Pipeline selects which remote pipeline an import mirrors.
type Pipeline string

const (
	PipelineBooking Pipeline = "booking"
	PipelineMember  Pipeline = "member"
)

const defaultPageSize = 100

// SyncFailure aborts an import run. Pages committed before it stay committed.
type SyncFailure struct {
	Kind string
	Page int
	Err  error
}

func (f *SyncFailure) Error() string {
	return fmt.Sprintf("%s failed on page %d: %v", f.Kind, f.Page, f.Err)
}

func (f *SyncFailure) Unwrap() error {
	return f.Err
}

// ImportResult summarises one run.
type ImportResult struct {
	State     ImportState
	Pages     int
	Counts    services.RunCounts
	Status    string
	RunID     string
	Cancelled bool
}

// columns the importer never overwrites on an existing row
var preservedOnUpdate = map[string]bool{
	"id":               true,
	"remote_record_id": true,
	"public_id":        true,
	"created_at":       true,
	"pending_delete":   true,
	"booking_id":       true,
	"booking_name":     true,
}

type pipelineDef struct {
	kind     string
	resource constants.ResourceKind
	table    string
}

var pipelineDefs = map[Pipeline]pipelineDef{
	PipelineBooking: {constants.SyncKindImportBooking, constants.ResourceBooking, constants.TableBookings},
	PipelineMember:  {constants.SyncKindImportMember, constants.ResourceMember, constants.TableMembers},
}

// BulkImporter pulls a whole remote pipeline into its local table, one
// committed page at a time.
type BulkImporter struct {
	db        *gormlib.DB
	client    providers.RemoteClient
	registry  *fieldmap.Holder
	ledger    *services.SyncLedger
	pipelines map[constants.ResourceKind]string
	pageSize  int
	metrics   *metrics.MetricsRegistry
}

func NewBulkImporter(
	db *gormlib.DB,
	client providers.RemoteClient,
	registry *fieldmap.Holder,
	ledger *services.SyncLedger,
	pipelines map[constants.ResourceKind]string,
	pageSize int,
	m *metrics.MetricsRegistry,
) *BulkImporter {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &BulkImporter{
		db:        db,
		client:    client,
		registry:  registry,
		ledger:    ledger,
		pipelines: pipelines,
		pageSize:  pageSize,
		metrics:   m,
	}
}

// Run imports every record of the pipeline. The returned error is a
// *SyncFailure when a page could not be fetched or committed.
func (b *BulkImporter) Run(ctx context.Context, pipeline Pipeline) (*ImportResult, error) {
	def, ok := pipelineDefs[pipeline]
	if !ok {
		return nil, fmt.Errorf("unknown pipeline %q", pipeline)
	}
	pipelineID := b.pipelines[def.resource]
	if pipelineID == "" {
		return nil, fmt.Errorf("no pipeline configured for %s", def.resource)
	}

	start := time.Now()
	log := logging.ForJob("BulkImporter").With("pipeline", pipeline)
	result := &ImportResult{State: StateNotStarted}

	runID, err := b.ledger.Begin(ctx, def.kind)
	if err != nil {
		return nil, err
	}
	result.RunID = runID
	result.State = StatePaging

	// cancellation is honoured between pages; a fetched page is always
	// committed and the ledger row always finished
	lctx := context.WithoutCancel(ctx)

	var cursor *providers.Cursor
	for {
		if err := ctx.Err(); err != nil {
			return cancelRun(lctx, b.ledger, result, err, log, start), nil
		}

		page, err := b.client.SearchRecords(ctx, pipelineID, cursor, b.pageSize)
		if err != nil {
			if cancelled(ctx, err) {
				return cancelRun(lctx, b.ledger, result, err, log, start), nil
			}
			return b.fail(lctx, result, def.kind, err)
		}
		if len(page.Records) == 0 {
			break
		}

		counts, err := b.commitPage(lctx, def, page.Records)
		if err != nil {
			return b.fail(lctx, result, def.kind, err)
		}
		result.Pages++
		counts.Pages = 1
		result.Counts.Add(counts)

		log.Infow("Committed page",
			"page", result.Pages,
			"records", len(page.Records),
			"created", counts.Created,
			"updated", counts.Updated,
			"failed", counts.Failed,
		)

		if page.Next == nil {
			break
		}
		cursor = page.Next
	}

	result.State = StateDone
	if def.resource == constants.ResourceMember {
		b.logContactGaps(ctx, log)
	}

	if err := b.ledger.Complete(lctx, runID, result.Counts); err != nil {
		return result, err
	}
	result.Status = constants.SyncStatusSuccess
	if result.Counts.Failed > 0 {
		result.Status = constants.SyncStatusPartial
	}

	elapsed := time.Since(start)
	b.metrics.ObserveJob("import_"+string(pipeline), elapsed)
	log.Infow("Import finished",
		"status", result.Status,
		"pages", result.Pages,
		"fetched", result.Counts.Fetched,
		"duration", elapsed.Truncate(time.Millisecond),
	)
	return result, nil
}

// PullOne refreshes a single remote record into its local table through the
// same translation and upsert as a page import. No ledger run is written.
func (b *BulkImporter) PullOne(ctx context.Context, pipeline Pipeline, remoteID string) (services.RunCounts, error) {
	def, ok := pipelineDefs[pipeline]
	if !ok {
		return services.RunCounts{}, fmt.Errorf("unknown pipeline %q", pipeline)
	}

	rec, err := b.client.GetRecord(ctx, remoteID)
	if err != nil {
		return services.RunCounts{}, fmt.Errorf("failed to fetch %s %s: %w", pipeline, remoteID, err)
	}
	if rec == nil {
		return services.RunCounts{}, fmt.Errorf("remote %s %s not found", pipeline, remoteID)
	}
	if want := b.pipelines[def.resource]; rec.PipelineID != "" && rec.PipelineID != want {
		return services.RunCounts{}, fmt.Errorf("record %s is in pipeline %s, not the %s pipeline", remoteID, rec.PipelineID, pipeline)
	}
	if rec.ID == "" {
		rec.ID = remoteID
	}

	counts, err := b.commitPage(context.WithoutCancel(ctx), def, []providers.RemoteRecord{*rec})
	if err != nil {
		return counts, err
	}
	if counts.Failed > 0 {
		return counts, fmt.Errorf("failed to store %s %s", pipeline, remoteID)
	}
	logging.Info("Pulled record", "pipeline", pipeline, "remote_id", remoteID, "created", counts.Created == 1)
	return counts, nil
}

// BackfillBookingNames re-pulls members stored without a booking name so the
// link pass can place them. One failed pull does not stop the rest.
func (b *BulkImporter) BackfillBookingNames(ctx context.Context, limit int) (services.RunCounts, error) {
	ids, err := repositories.NewMemberRepo(b.db).ListMissingBookingName(ctx, limit)
	if err != nil {
		return services.RunCounts{}, err
	}

	var total services.RunCounts
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		counts, err := b.PullOne(ctx, PipelineMember, id)
		if err != nil {
			logging.Warn("Booking name backfill failed", "member_id", id, "error", err)
			total.Fetched++
			total.Failed++
			continue
		}
		total.Add(counts)
	}
	logging.Info("Booking name backfill finished", "members", len(ids), "failed", total.Failed)
	return total, ctx.Err()
}

func (b *BulkImporter) fail(ctx context.Context, result *ImportResult, kind string, cause error) (*ImportResult, error) {
	failure := &SyncFailure{Kind: kind, Page: result.Pages + 1, Err: cause}
	result.State = StateFailed

	var lerr error
	if result.Pages > 0 {
		result.Status = constants.SyncStatusPartial
		lerr = b.ledger.Partial(ctx, result.RunID, result.Counts, failure)
	} else {
		result.Status = constants.SyncStatusFailed
		lerr = b.ledger.Fail(ctx, result.RunID, failure)
	}
	if lerr != nil {
		logging.Error("Failed to record import failure", "run_id", result.RunID, "error", lerr)
	}

	logging.Error("Import aborted", "kind", kind, "page", failure.Page, "error", cause)
	return result, failure
}

// commitPage upserts one page in a single transaction. Each record runs under
// its own savepoint so one bad row does not lose the page.
func (b *BulkImporter) commitPage(ctx context.Context, def pipelineDef, records []providers.RemoteRecord) (services.RunCounts, error) {
	counts := services.RunCounts{Fetched: len(records)}
	registry := b.registry.Load()
	mapped := registry.Columns(def.table)

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.ID != "" {
			ids = append(ids, rec.ID)
		}
	}

	err := b.db.WithContext(ctx).Transaction(func(tx *gormlib.DB) error {
		existing, err := b.existing(ctx, tx, def.resource, ids)
		if err != nil {
			return fmt.Errorf("failed to load existing ids: %w", err)
		}

		for i, rec := range records {
			if rec.ID == "" {
				logging.Warn("Skipping record without id", "kind", def.kind, "name", rec.Name)
				counts.Failed++
				continue
			}

			row, updateColumns := b.translate(registry, def, mapped, rec)

			recErr, fatal := withSavepoint(tx, fmt.Sprintf("rec_%d", i), func() error {
				return b.upsert(ctx, tx, def.resource, row, updateColumns)
			})
			if fatal != nil {
				return fatal
			}
			if recErr != nil {
				logging.Warn("Record upsert failed", "kind", def.kind, "remote_id", rec.ID, "error", recErr)
				counts.Failed++
				continue
			}

			if existing[rec.ID] {
				counts.Updated++
			} else {
				counts.Created++
				existing[rec.ID] = true
			}
		}
		return nil
	})
	if err != nil {
		return services.RunCounts{}, err
	}

	b.metrics.AddRecords(def.kind, "created", counts.Created)
	b.metrics.AddRecords(def.kind, "updated", counts.Updated)
	b.metrics.AddRecords(def.kind, "failed", counts.Failed)
	return counts, nil
}

func (b *BulkImporter) existing(ctx context.Context, tx *gormlib.DB, kind constants.ResourceKind, ids []string) (map[string]bool, error) {
	if kind == constants.ResourceBooking {
		return repositories.NewBookingRepo(tx).ExistingRemoteIDs(ctx, ids)
	}
	return repositories.NewMemberRepo(tx).ExistingIDs(ctx, ids)
}

func (b *BulkImporter) upsert(ctx context.Context, tx *gormlib.DB, kind constants.ResourceKind, row map[string]interface{}, updateColumns []string) error {
	if kind == constants.ResourceBooking {
		return repositories.NewBookingRepo(tx).UpsertByRemoteID(ctx, row, updateColumns)
	}
	return repositories.NewMemberRepo(tx).UpsertByID(ctx, row, updateColumns)
}

// translate builds the full column set of one record. Every mapped column is
// present; a field missing from the record is written as NULL.
func (b *BulkImporter) translate(registry *fieldmap.Registry, def pipelineDef, mapped []string, rec providers.RemoteRecord) (map[string]interface{}, []string) {
	now := time.Now().UTC()
	row := make(map[string]interface{}, len(mapped)+12)
	for _, column := range mapped {
		row[column] = nil
	}

	for _, cf := range rec.CustomFields {
		entry, ok := registry.Resolve(cf.ID)
		if !ok || entry.LocalTable != def.table {
			continue
		}
		v, err := coercion.ToLocal(entry.ValueType, cf.Raw())
		if err != nil {
			logging.Warn("Storing null for unconvertible field",
				"kind", def.kind,
				"remote_id", rec.ID,
				"column", entry.LocalColumn,
				"error", err,
			)
			v = nil
		}
		row[entry.LocalColumn] = v
	}

	row["name"] = rec.Name
	row["stage_id"] = nullable(rec.PipelineStageID)
	row["contact_id"] = nullable(rec.ContactID)
	row["remote_status"] = nullable(rec.Status)
	row["last_synced_at"] = now
	row["updated_at"] = now
	row["created_at"] = now
	row["pending_delete"] = false

	if def.resource == constants.ResourceBooking {
		row["remote_record_id"] = rec.ID
		row["public_id"] = uuid.NewString()
	} else {
		row["id"] = rec.ID
	}

	updateColumns := make([]string, 0, len(row))
	for column := range row {
		if !preservedOnUpdate[column] {
			updateColumns = append(updateColumns, column)
		}
	}
	return row, updateColumns
}

func (b *BulkImporter) logContactGaps(ctx context.Context, log *zap.SugaredLogger) {
	n, err := repositories.NewMemberRepo(b.db).CountWithoutContact(ctx)
	if err != nil {
		logging.Warn("Failed to count members without contact", "error", err)
		return
	}
	if n > 0 {
		log.Infow("Members imported without a cached contact", "count", n)
	}
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// cancelled reports whether a fetch error came from the run's own context
// rather than from the remote.
func cancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

// cancelRun finishes a cancelled run as partial. Pages already committed stay.
func cancelRun(ctx context.Context, ledger *services.SyncLedger, result *ImportResult, cause error, log *zap.SugaredLogger, start time.Time) *ImportResult {
	result.Cancelled = true
	result.State = StateDone
	result.Status = constants.SyncStatusPartial
	if lerr := ledger.Partial(ctx, result.RunID, result.Counts, cause); lerr != nil {
		log.Errorw("Failed to record cancelled run", "run_id", result.RunID, "error", lerr)
	}
	log.Warnw("Import cancelled", "pages", result.Pages, "duration", time.Since(start).Truncate(time.Millisecond))
	return result
}

// IsSyncFailure reports whether err aborted an import run.
func IsSyncFailure(err error) bool {
	var f *SyncFailure
	return errors.As(err, &f)
}
