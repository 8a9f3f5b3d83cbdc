package jobs

import (
	"context"
	"fmt"
	"time"

	gormlib "gorm.io/gorm"

	"tripbuilder/crmsync/internal/constants"
	"tripbuilder/crmsync/internal/db/repositories"
	"tripbuilder/crmsync/internal/logging"
	"tripbuilder/crmsync/internal/providers"
	"tripbuilder/crmsync/internal/services"
)

// ContactImportJob mirrors every remote contact into the contacts table.
type ContactImportJob struct {
	db       *gormlib.DB
	client   providers.RemoteClient
	ledger   *services.SyncLedger
	pageSize int
}

func NewContactImportJob(db *gormlib.DB, client providers.RemoteClient, ledger *services.SyncLedger, pageSize int) *ContactImportJob {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &ContactImportJob{db: db, client: client, ledger: ledger, pageSize: pageSize}
}

// Run pages through the contact search. Failure semantics match BulkImporter.
func (j *ContactImportJob) Run(ctx context.Context) (*ImportResult, error) {
	start := time.Now()
	log := logging.ForJob("ContactImportJob")
	kind := constants.SyncKindImportContacts

	runID, err := j.ledger.Begin(ctx, kind)
	if err != nil {
		return nil, err
	}
	result := &ImportResult{State: StatePaging, RunID: runID}
	lctx := context.WithoutCancel(ctx)

	var cursor *providers.Cursor
	for {
		if err := ctx.Err(); err != nil {
			return cancelRun(lctx, j.ledger, result, err, log, start), nil
		}

		page, err := j.client.SearchProfiles(ctx, "", cursor, j.pageSize)
		if err != nil {
			if cancelled(ctx, err) {
				return cancelRun(lctx, j.ledger, result, err, log, start), nil
			}
			return j.fail(lctx, result, err)
		}
		if len(page.Profiles) == 0 {
			break
		}

		counts, err := j.commitPage(lctx, page.Profiles)
		if err != nil {
			return j.fail(lctx, result, err)
		}
		result.Pages++
		counts.Pages = 1
		result.Counts.Add(counts)

		if page.Next == nil {
			break
		}
		cursor = page.Next
	}

	result.State = StateDone
	if err := j.ledger.Complete(lctx, runID, result.Counts); err != nil {
		return result, err
	}
	result.Status = constants.SyncStatusSuccess
	if result.Counts.Failed > 0 {
		result.Status = constants.SyncStatusPartial
	}

	log.Infow("Contact import finished",
		"pages", result.Pages,
		"contacts", result.Counts.Fetched,
		"duration", time.Since(start).Truncate(time.Millisecond),
	)
	return result, nil
}

func (j *ContactImportJob) fail(ctx context.Context, result *ImportResult, cause error) (*ImportResult, error) {
	failure := &SyncFailure{Kind: constants.SyncKindImportContacts, Page: result.Pages + 1, Err: cause}
	result.State = StateFailed

	var lerr error
	if result.Pages > 0 {
		result.Status = constants.SyncStatusPartial
		lerr = j.ledger.Partial(ctx, result.RunID, result.Counts, failure)
	} else {
		result.Status = constants.SyncStatusFailed
		lerr = j.ledger.Fail(ctx, result.RunID, failure)
	}
	if lerr != nil {
		logging.Error("Failed to record import failure", "run_id", result.RunID, "error", lerr)
	}
	return result, failure
}

func (j *ContactImportJob) commitPage(ctx context.Context, profiles []providers.RemoteProfile) (services.RunCounts, error) {
	counts := services.RunCounts{Fetched: len(profiles)}

	ids := make([]string, 0, len(profiles))
	for _, p := range profiles {
		if p.ID != "" {
			ids = append(ids, p.ID)
		}
	}

	err := j.db.WithContext(ctx).Transaction(func(tx *gormlib.DB) error {
		repo := repositories.NewContactRepo(tx)
		existing, err := repo.ExistingIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("failed to load existing contact ids: %w", err)
		}

		for i, p := range profiles {
			if p.ID == "" {
				counts.Failed++
				continue
			}
			recErr, fatal := withSavepoint(tx, fmt.Sprintf("contact_%d", i), func() error {
				return repo.Upsert(ctx, services.ContactFromProfile(p))
			})
			if fatal != nil {
				return fatal
			}
			if recErr != nil {
				logging.Warn("Contact upsert failed", "contact_id", p.ID, "error", recErr)
				counts.Failed++
				continue
			}
			if existing[p.ID] {
				counts.Updated++
			} else {
				counts.Created++
				existing[p.ID] = true
			}
		}
		return nil
	})
	if err != nil {
		return services.RunCounts{}, err
	}
	return counts, nil
}
