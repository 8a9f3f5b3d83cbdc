package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gormlib "gorm.io/gorm"

	"tripbuilder/crmsync/internal/coercion"
	"tripbuilder/crmsync/internal/common"
	"tripbuilder/crmsync/internal/constants"
	"tripbuilder/crmsync/internal/db"
	"tripbuilder/crmsync/internal/db/repositories"
	"tripbuilder/crmsync/internal/fieldmap"
	"tripbuilder/crmsync/internal/logging"
	"tripbuilder/crmsync/internal/metrics"
	"tripbuilder/crmsync/internal/models/gorm"
	"tripbuilder/crmsync/internal/providers"
)

const sourcePrefix = "crmsync"

// Pushable is a local row that mirrors one remote record.
type Pushable interface {
	ResourceKind() constants.ResourceKind
	LocalID() string
	RemoteID() string
	RecordName() string
	Stage() string
	Contact() string
}

// PushEnqueuer receives pushes that failed interactively.
type PushEnqueuer interface {
	Enqueue(ctx context.Context, task common.PushTask) error
}

// PushOutcome is what a collaborator-facing mutation reports. The local
// change is committed even when Warning is set.
type PushOutcome struct {
	RemoteID string
	Warning  error
	Queued   bool
}

// ReplayResult names what a deferred push ended up doing.
type ReplayResult string

const (
	ReplayCreated ReplayResult = "created"
	ReplayAdopted ReplayResult = "adopted"
	ReplayUpdated ReplayResult = "updated"
	ReplayDeleted ReplayResult = "deleted"
	ReplaySkipped ReplayResult = "skipped"
)

// PushSyncer sends local mutations to the CRM.
type PushSyncer struct {
	db          *gormlib.DB
	client      providers.RemoteClient
	registry    *fieldmap.Holder
	stages      *PipelineStageService
	queue       PushEnqueuer
	pushTimeout time.Duration
	metrics     *metrics.MetricsRegistry
}

// NewPushSyncer wires the syncer. queue and m may be nil.
func NewPushSyncer(
	gdb *gormlib.DB,
	client providers.RemoteClient,
	registry *fieldmap.Holder,
	stages *PipelineStageService,
	queue PushEnqueuer,
	pushTimeout time.Duration,
	m *metrics.MetricsRegistry,
) *PushSyncer {
	if pushTimeout <= 0 {
		pushTimeout = 10 * time.Second
	}
	return &PushSyncer{
		db:          gdb,
		client:      client,
		registry:    registry,
		stages:      stages,
		queue:       queue,
		pushTimeout: pushTimeout,
		metrics:     m,
	}
}

// SourceTag marks remote records created by this engine so an interrupted
// create can be found again.
func SourceTag(kind constants.ResourceKind, localID string) string {
	return fmt.Sprintf("%s:%s:%s", sourcePrefix, kind, localID)
}

// ErrFieldMapNotLoaded is returned by every push while the registry has no
// entries for the entity's table. A push without custom fields would blank
// the remote record, so the push is deferred instead.
var ErrFieldMapNotLoaded = errors.New("field map not loaded, run discovery")

// BuildPayload reverse-maps every registered column of the entity's table.
// A value that cannot be coerced is sent as null.
func (s *PushSyncer) BuildPayload(e Pushable) (*providers.RecordPayload, error) {
	table := constants.TableFor(e.ResourceKind())
	entries := s.registry.Load().Entries(table)
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s %s: %w", table, e.LocalID(), ErrFieldMapNotLoaded)
	}

	columns := make([]string, 0, len(entries))
	for _, entry := range entries {
		columns = append(columns, entry.LocalColumn)
	}
	values, err := db.ColumnValues(e, columns)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s columns: %w", table, err)
	}

	fields := make([]providers.FieldWrite, 0, len(entries))
	for _, entry := range entries {
		v, err := coercion.ToRemote(entry.ValueType, values[entry.LocalColumn])
		if err != nil {
			logging.Warn("Sending null for unconvertible column",
				"table", table,
				"column", entry.LocalColumn,
				"local_id", e.LocalID(),
				"error", err,
			)
			v = nil
		}
		fields = append(fields, providers.FieldWrite{
			ID:         entry.RemoteFieldID,
			Key:        entry.RemoteFieldKey,
			FieldValue: v,
		})
	}

	return &providers.RecordPayload{
		Name:            e.RecordName(),
		PipelineStageID: e.Stage(),
		ContactID:       e.Contact(),
		Source:          SourceTag(e.ResourceKind(), e.LocalID()),
		CustomFields:    fields,
	}, nil
}

// PushCreate creates the remote record. An entity that already has a remote
// id is returned as is, without a remote call.
func (s *PushSyncer) PushCreate(ctx context.Context, e Pushable) (string, error) {
	if id := e.RemoteID(); id != "" {
		s.metrics.Push(string(e.ResourceKind()), common.PushOpCreate, "skipped")
		return id, nil
	}

	payload, err := s.BuildPayload(e)
	if err != nil {
		return "", err
	}
	if payload.PipelineStageID == "" {
		stage, err := s.stages.FirstStage(ctx, e.ResourceKind())
		if err != nil {
			return "", err
		}
		payload.PipelineStageID = stage
	}
	payload.Status = "open"

	remoteID, err := s.client.CreateRecord(ctx, e.ResourceKind(), payload)
	if err != nil {
		s.metrics.Push(string(e.ResourceKind()), common.PushOpCreate, "failed")
		return "", fmt.Errorf("failed to create remote %s %s: %w", e.ResourceKind(), e.LocalID(), err)
	}

	s.metrics.Push(string(e.ResourceKind()), common.PushOpCreate, "ok")
	logging.Info("Created remote record", "kind", e.ResourceKind(), "local_id", e.LocalID(), "remote_id", remoteID)
	return remoteID, nil
}

// PushUpdate overwrites the remote record with every mapped field. Without a
// remote id it first adopts a record an earlier create left behind, and
// creates only when there is none; the returned id is the one in effect.
func (s *PushSyncer) PushUpdate(ctx context.Context, e Pushable) (string, error) {
	payload, err := s.BuildPayload(e)
	if err != nil {
		return "", err
	}

	remoteID := e.RemoteID()
	if remoteID == "" {
		orphan, err := s.FindOrphan(ctx, e)
		if err != nil {
			return "", fmt.Errorf("failed to look up earlier create of %s %s: %w", e.ResourceKind(), e.LocalID(), err)
		}
		if orphan == "" {
			return s.PushCreate(ctx, e)
		}
		logging.Info("Adopting remote record from an earlier create", "kind", e.ResourceKind(), "local_id", e.LocalID(), "remote_id", orphan)
		remoteID = orphan
	}

	if err := s.client.UpdateRecord(ctx, remoteID, payload); err != nil {
		s.metrics.Push(string(e.ResourceKind()), common.PushOpUpdate, "failed")
		return "", fmt.Errorf("failed to update remote %s %s: %w", e.ResourceKind(), remoteID, err)
	}

	s.metrics.Push(string(e.ResourceKind()), common.PushOpUpdate, "ok")
	return remoteID, nil
}

// PushDelete removes the remote record. A 404 counts as already deleted.
func (s *PushSyncer) PushDelete(ctx context.Context, e Pushable) error {
	remoteID := e.RemoteID()
	if remoteID == "" {
		return nil
	}

	err := s.client.DeleteRecord(ctx, remoteID)
	if err != nil && !providers.IsNotFound(err) {
		s.metrics.Push(string(e.ResourceKind()), common.PushOpDelete, "failed")
		return fmt.Errorf("failed to delete remote %s %s: %w", e.ResourceKind(), remoteID, err)
	}

	s.metrics.Push(string(e.ResourceKind()), common.PushOpDelete, "ok")
	return nil
}

// FindOrphan looks for a remote record created for e whose id never made it
// back into the local row.
func (s *PushSyncer) FindOrphan(ctx context.Context, e Pushable) (string, error) {
	pipelineID := s.stages.PipelineID(e.ResourceKind())
	records, err := s.client.LookupRecords(ctx, pipelineID, e.RecordName())
	if err != nil {
		return "", err
	}

	tag := SourceTag(e.ResourceKind(), e.LocalID())
	for _, rec := range records {
		if rec.Source == tag {
			return rec.ID, nil
		}
	}
	return "", nil
}

func (s *PushSyncer) withTimeout(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error) {
	pctx, cancel := context.WithTimeout(ctx, s.pushTimeout)
	defer cancel()
	return fn(pctx)
}

func (s *PushSyncer) deferPush(ctx context.Context, out *PushOutcome, kind constants.ResourceKind, op, localID string) {
	logging.Warn("Push deferred",
		"kind", kind,
		"op", op,
		"local_id", localID,
		"error", out.Warning,
	)
	if s.queue == nil {
		return
	}

	err := s.queue.Enqueue(ctx, common.PushTask{
		Kind:    kind,
		Op:      op,
		LocalID: localID,
		Reason:  out.Warning.Error(),
	})
	if err != nil {
		logging.Error("Failed to enqueue pending push", "kind", kind, "local_id", localID, "error", err)
		return
	}
	out.Queued = true
}

// resolveStage picks the stage before a transaction opens, so the lookup
// never waits on a connection the transaction holds.
func (s *PushSyncer) resolveStage(ctx context.Context, e Pushable) (string, error) {
	if stage := e.Stage(); stage != "" {
		return stage, nil
	}
	return s.stages.FirstStage(ctx, e.ResourceKind())
}

// CreateBooking inserts the booking, pushes it and writes back the remote id
// in one transaction. A push failure leaves the row committed without a
// remote id.
func (s *PushSyncer) CreateBooking(ctx context.Context, b *gorm.Booking) (*PushOutcome, error) {
	out := &PushOutcome{}
	stage, stageErr := s.resolveStage(ctx, b)
	if stageErr == nil {
		b.StageID = &stage
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gormlib.DB) error {
		repo := repositories.NewBookingRepo(tx)
		if err := repo.Create(ctx, b); err != nil {
			return fmt.Errorf("failed to insert booking: %w", err)
		}
		if stageErr != nil {
			out.Warning = stageErr
			return nil
		}

		remoteID, perr := s.withTimeout(ctx, func(pctx context.Context) (string, error) {
			return s.PushCreate(pctx, b)
		})
		if perr != nil {
			out.Warning = perr
			return nil
		}

		if err := repo.SetRemoteID(ctx, b.ID, remoteID); err != nil {
			return fmt.Errorf("failed to write back remote id: %w", err)
		}
		b.RemoteRecordID = &remoteID
		out.RemoteID = remoteID
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.Warning != nil {
		s.deferPush(ctx, out, constants.ResourceBooking, common.PushOpCreate, b.LocalID())
	}
	return out, nil
}

// UpdateBooking saves the booking and pushes a full overwrite.
func (s *PushSyncer) UpdateBooking(ctx context.Context, b *gorm.Booking) (*PushOutcome, error) {
	out := &PushOutcome{}
	if b.RemoteID() == "" && b.StageID == nil {
		if stage, err := s.resolveStage(ctx, b); err == nil {
			b.StageID = &stage
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gormlib.DB) error {
		repo := repositories.NewBookingRepo(tx)
		if err := repo.Save(ctx, b); err != nil {
			return fmt.Errorf("failed to save booking: %w", err)
		}

		hadRemote := b.RemoteID() != ""
		remoteID, perr := s.withTimeout(ctx, func(pctx context.Context) (string, error) {
			return s.PushUpdate(pctx, b)
		})
		if perr != nil {
			out.Warning = perr
			return nil
		}

		out.RemoteID = remoteID
		if hadRemote {
			return repo.MarkPushed(ctx, b.ID)
		}
		if err := repo.SetRemoteID(ctx, b.ID, remoteID); err != nil {
			return fmt.Errorf("failed to write back remote id: %w", err)
		}
		b.RemoteRecordID = &remoteID
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.Warning != nil {
		s.deferPush(ctx, out, constants.ResourceBooking, common.PushOpUpdate, b.LocalID())
	}
	return out, nil
}

// DeleteBooking deletes remotely first. On failure the row is kept and
// flagged pending_delete.
func (s *PushSyncer) DeleteBooking(ctx context.Context, b *gorm.Booking) (*PushOutcome, error) {
	out := &PushOutcome{RemoteID: b.RemoteID()}
	repo := repositories.NewBookingRepo(s.db)

	_, perr := s.withTimeout(ctx, func(pctx context.Context) (string, error) {
		return "", s.PushDelete(pctx, b)
	})
	if perr != nil {
		out.Warning = perr
		if err := repo.MarkPendingDelete(ctx, b.ID); err != nil {
			return nil, fmt.Errorf("failed to mark booking pending delete: %w", err)
		}
		b.PendingDelete = true
		s.deferPush(ctx, out, constants.ResourceBooking, common.PushOpDelete, b.LocalID())
		return out, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gormlib.DB) error {
		return repositories.NewBookingRepo(tx).Delete(ctx, b.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete booking: %w", err)
	}
	return out, nil
}

// CreateMember inserts the member under a provisional id, pushes it and swaps
// in the remote id in one transaction.
func (s *PushSyncer) CreateMember(ctx context.Context, m *gorm.Member) (*PushOutcome, error) {
	out := &PushOutcome{}
	stage, stageErr := s.resolveStage(ctx, m)
	if stageErr == nil {
		m.StageID = &stage
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gormlib.DB) error {
		repo := repositories.NewMemberRepo(tx)
		if err := repo.Create(ctx, m); err != nil {
			return fmt.Errorf("failed to insert member: %w", err)
		}
		if stageErr != nil {
			out.Warning = stageErr
			return nil
		}

		remoteID, perr := s.withTimeout(ctx, func(pctx context.Context) (string, error) {
			return s.PushCreate(pctx, m)
		})
		if perr != nil {
			out.Warning = perr
			return nil
		}

		if remoteID != m.ID {
			if err := repo.ReplaceID(ctx, m.ID, remoteID); err != nil {
				return fmt.Errorf("failed to write back remote id: %w", err)
			}
			m.ID = remoteID
		}
		out.RemoteID = remoteID
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.Warning != nil {
		s.deferPush(ctx, out, constants.ResourceMember, common.PushOpCreate, m.ID)
	}
	return out, nil
}

// UpdateMember saves the member and pushes a full overwrite. A provisional
// member is created remotely instead.
func (s *PushSyncer) UpdateMember(ctx context.Context, m *gorm.Member) (*PushOutcome, error) {
	out := &PushOutcome{}
	if m.IsProvisional() && m.StageID == nil {
		if stage, err := s.resolveStage(ctx, m); err == nil {
			m.StageID = &stage
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gormlib.DB) error {
		repo := repositories.NewMemberRepo(tx)
		if err := repo.Save(ctx, m); err != nil {
			return fmt.Errorf("failed to save member: %w", err)
		}

		remoteID, perr := s.withTimeout(ctx, func(pctx context.Context) (string, error) {
			return s.PushUpdate(pctx, m)
		})
		if perr != nil {
			out.Warning = perr
			return nil
		}

		out.RemoteID = remoteID
		if remoteID == m.ID {
			return repo.MarkPushed(ctx, m.ID)
		}
		if err := repo.ReplaceID(ctx, m.ID, remoteID); err != nil {
			return fmt.Errorf("failed to write back remote id: %w", err)
		}
		m.ID = remoteID
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.Warning != nil {
		s.deferPush(ctx, out, constants.ResourceMember, common.PushOpUpdate, m.ID)
	}
	return out, nil
}

// DeleteMember deletes remotely first. On failure the row is kept and
// flagged pending_delete.
func (s *PushSyncer) DeleteMember(ctx context.Context, m *gorm.Member) (*PushOutcome, error) {
	out := &PushOutcome{RemoteID: m.RemoteID()}
	repo := repositories.NewMemberRepo(s.db)

	_, perr := s.withTimeout(ctx, func(pctx context.Context) (string, error) {
		return "", s.PushDelete(pctx, m)
	})
	if perr != nil {
		out.Warning = perr
		if err := repo.MarkPendingDelete(ctx, m.ID); err != nil {
			return nil, fmt.Errorf("failed to mark member pending delete: %w", err)
		}
		m.PendingDelete = true
		s.deferPush(ctx, out, constants.ResourceMember, common.PushOpDelete, m.ID)
		return out, nil
	}

	if err := repo.Delete(ctx, m.ID); err != nil {
		return nil, fmt.Errorf("failed to delete member: %w", err)
	}
	return out, nil
}

// ErrRowGone is returned by Replay when the local row no longer exists.
var ErrRowGone = errors.New("local row no longer exists")

// Replay completes a deferred push for one local row. The row is reloaded,
// so whatever state it is in now is what gets pushed.
func (s *PushSyncer) Replay(ctx context.Context, kind constants.ResourceKind, localID string) (ReplayResult, error) {
	switch kind {
	case constants.ResourceBooking:
		id, err := strconv.ParseUint(localID, 10, 64)
		if err != nil {
			return ReplaySkipped, fmt.Errorf("invalid booking id %q: %w", localID, err)
		}
		b, err := repositories.NewBookingRepo(s.db).FindByID(ctx, uint(id))
		if err != nil {
			return ReplaySkipped, err
		}
		if b == nil {
			return ReplaySkipped, ErrRowGone
		}
		return s.replayBooking(ctx, b)

	case constants.ResourceMember:
		m, err := repositories.NewMemberRepo(s.db).FindByID(ctx, localID)
		if err != nil {
			return ReplaySkipped, err
		}
		if m == nil {
			return ReplaySkipped, ErrRowGone
		}
		return s.replayMember(ctx, m)
	}
	return ReplaySkipped, fmt.Errorf("unsupported push kind %q", kind)
}

// ReplayBooking and ReplayMember are used by the pending sweep, which already
// holds the row.
func (s *PushSyncer) ReplayBooking(ctx context.Context, b *gorm.Booking) (ReplayResult, error) {
	return s.replayBooking(ctx, b)
}

func (s *PushSyncer) ReplayMember(ctx context.Context, m *gorm.Member) (ReplayResult, error) {
	return s.replayMember(ctx, m)
}

func (s *PushSyncer) replayBooking(ctx context.Context, b *gorm.Booking) (ReplayResult, error) {
	repo := repositories.NewBookingRepo(s.db)

	if b.PendingDelete {
		if err := s.PushDelete(ctx, b); err != nil {
			return ReplaySkipped, err
		}
		if err := repo.Delete(ctx, b.ID); err != nil {
			return ReplaySkipped, err
		}
		return ReplayDeleted, nil
	}

	if b.RemoteID() != "" {
		if _, err := s.PushUpdate(ctx, b); err != nil {
			return ReplaySkipped, err
		}
		return ReplayUpdated, repo.MarkPushed(ctx, b.ID)
	}

	result := ReplayCreated
	remoteID, err := s.FindOrphan(ctx, b)
	if err != nil {
		return ReplaySkipped, err
	}
	if remoteID != "" {
		result = ReplayAdopted
	} else if remoteID, err = s.PushCreate(ctx, b); err != nil {
		return ReplaySkipped, err
	}

	if err := repo.SetRemoteID(ctx, b.ID, remoteID); err != nil {
		return ReplaySkipped, err
	}
	b.RemoteRecordID = &remoteID
	return result, nil
}

func (s *PushSyncer) replayMember(ctx context.Context, m *gorm.Member) (ReplayResult, error) {
	repo := repositories.NewMemberRepo(s.db)

	if m.PendingDelete {
		if err := s.PushDelete(ctx, m); err != nil {
			return ReplaySkipped, err
		}
		if err := repo.Delete(ctx, m.ID); err != nil {
			return ReplaySkipped, err
		}
		return ReplayDeleted, nil
	}

	if !m.IsProvisional() {
		if _, err := s.PushUpdate(ctx, m); err != nil {
			return ReplaySkipped, err
		}
		return ReplayUpdated, repo.MarkPushed(ctx, m.ID)
	}

	result := ReplayCreated
	remoteID, err := s.FindOrphan(ctx, m)
	if err != nil {
		return ReplaySkipped, err
	}
	if remoteID != "" {
		result = ReplayAdopted
	} else if remoteID, err = s.PushCreate(ctx, m); err != nil {
		return ReplaySkipped, err
	}

	if err := repo.ReplaceID(ctx, m.ID, remoteID); err != nil {
		return ReplaySkipped, err
	}
	m.ID = remoteID
	return result, nil
}
