package api

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	gormlib "gorm.io/gorm"

	"tripbuilder/crmsync/internal/common"
	"tripbuilder/crmsync/internal/config"
	"tripbuilder/crmsync/internal/constants"
	"tripbuilder/crmsync/internal/db"
	"tripbuilder/crmsync/internal/db/repositories"
	"tripbuilder/crmsync/internal/fieldmap"
	"tripbuilder/crmsync/internal/jobs"
	"tripbuilder/crmsync/internal/logging"
	"tripbuilder/crmsync/internal/metrics"
	"tripbuilder/crmsync/internal/providers"
	"tripbuilder/crmsync/internal/services"
)

const (
	cacheDefaultTTL = 30 * time.Minute
	cacheCleanup    = 10 * time.Minute
	redisKeyPrefix  = "crmsync:"
)

type Repositories struct {
	Bookings   *repositories.BookingRepo
	Members    *repositories.MemberRepo
	Contacts   *repositories.ContactRepo
	FieldMap   *repositories.FieldMapRepo
	SyncRuns   *repositories.SyncRunRepo
	Pipelines  *repositories.PipelineRepo
	Vendors    *repositories.VendorRepo
	LinkReport *repositories.LinkReportRepo
}

type Services struct {
	Cache     common.CacheInterface
	PushQueue *common.PushQueueService
	Remote    providers.RemoteClient
	Registry  *fieldmap.Holder
	Ledger    *services.SyncLedger
	Stages    *services.PipelineStageService
	Contacts  *services.ContactService
	Vendors   *services.VendorSyncService
	Pusher    *services.PushSyncer
}

type Jobs struct {
	Discovery *jobs.DiscoveryJob
	Contacts  *jobs.ContactImportJob
	Importer  *jobs.BulkImporter
	Linker    *jobs.LinkResolver
	Pending   *jobs.PushPendingJob
	FullSync  *jobs.FullSyncJob
}

type Dependencies struct {
	Config   *config.Config
	DB       *gormlib.DB
	Sqlx     *sqlx.DB
	Redis    *redis.Client
	Metrics  *metrics.MetricsRegistry
	Repo     *Repositories
	Services *Services
	Jobs     *Jobs

	// RegistryErr is why the field map could not be loaded at startup. While
	// it is set the registry is empty and every push is deferred.
	RegistryErr error
}

// InitDependencies opens the stores and wires every repository, service and
// job. reg receives the Prometheus collectors; pass nil to skip metrics.
func InitDependencies(cfg *config.Config, reg prometheus.Registerer) (*Dependencies, error) {
	var m *metrics.MetricsRegistry
	if reg != nil {
		m = metrics.NewMetricsRegistry(reg)
	}

	gdb, err := db.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gdb); err != nil {
		return nil, err
	}

	var sx *sqlx.DB
	if cfg.Database.Driver == "sqlite" {
		sx, err = db.SqlxFromGorm(gdb, "sqlite3")
	} else {
		sx, err = db.InitPostgres(cfg.Database.DSN())
	}
	if err != nil {
		return nil, err
	}

	deps := &Dependencies{Config: cfg, DB: gdb, Sqlx: sx, Metrics: m}

	deps.Repo = &Repositories{
		Bookings:   repositories.NewBookingRepo(gdb),
		Members:    repositories.NewMemberRepo(gdb),
		Contacts:   repositories.NewContactRepo(gdb),
		FieldMap:   repositories.NewFieldMapRepo(gdb),
		SyncRuns:   repositories.NewSyncRunRepo(gdb),
		Pipelines:  repositories.NewPipelineRepo(gdb),
		Vendors:    repositories.NewVendorRepo(gdb),
		LinkReport: repositories.NewLinkReportRepo(sx),
	}

	if cfg.Sync.CacheBackend == "redis" || cfg.Sync.PushQueueEnabled {
		deps.Redis = common.NewRedisClient(cfg.Redis)
	}

	var cache common.CacheInterface
	if cfg.Sync.CacheBackend == "redis" {
		cache = common.NewRedisCacheService(deps.Redis, redisKeyPrefix, m)
		logging.Info("Using Redis lookup cache")
	} else {
		cache = common.NewCacheService(cacheDefaultTTL, cacheCleanup, m)
		logging.Info("Using in-memory lookup cache")
	}

	registry := fieldmap.NewHolder(nil)
	if r, err := jobs.LoadRegistry(context.Background(), gdb); err != nil {
		deps.RegistryErr = err
		logging.Error("Field map not usable, pushes are deferred until discovery succeeds", "error", err)
	} else {
		registry.Store(r)
		logging.Info("Field map loaded", "entries", r.Len())
	}

	remote := providers.NewCRMProvider(cfg.Remote, m)
	pipelines := map[constants.ResourceKind]string{
		constants.ResourceBooking: cfg.Remote.BookingPipelineID,
		constants.ResourceMember:  cfg.Remote.MemberPipelineID,
	}
	ledger := services.NewSyncLedger(deps.Repo.SyncRuns, m)
	stages := services.NewPipelineStageService(deps.Repo.Pipelines, remote, cache, pipelines)

	svc := &Services{
		Cache:    cache,
		Remote:   remote,
		Registry: registry,
		Ledger:   ledger,
		Stages:   stages,
		Contacts: services.NewContactService(deps.Repo.Contacts, remote, cache),
		Vendors:  services.NewVendorSyncService(deps.Repo.Vendors, remote),
	}

	var enqueuer services.PushEnqueuer
	if cfg.Sync.PushQueueEnabled {
		svc.PushQueue = common.NewPushQueueService(deps.Redis)
		enqueuer = svc.PushQueue
	}
	svc.Pusher = services.NewPushSyncer(gdb, remote, registry, stages, enqueuer, cfg.Sync.PushTimeout, m)
	deps.Services = svc

	discovery := jobs.NewDiscoveryJob(gdb, remote, registry)
	contacts := jobs.NewContactImportJob(gdb, remote, ledger, cfg.Sync.PageSize)
	importer := jobs.NewBulkImporter(gdb, remote, registry, ledger, pipelines, cfg.Sync.PageSize, m)
	linker := jobs.NewLinkResolver(gdb, m)

	deps.Jobs = &Jobs{
		Discovery: discovery,
		Contacts:  contacts,
		Importer:  importer,
		Linker:    linker,
		Pending:   jobs.NewPushPendingJob(gdb, svc.Pusher, ledger),
		FullSync:  jobs.NewFullSyncJob(discovery, contacts, importer, svc.Vendors, linker, cfg.Sync.ConcurrentImports, m),
	}

	return deps, nil
}

// Close releases the database and Redis connections.
func (d *Dependencies) Close() error {
	var firstErr error
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			firstErr = err
		}
	}
	if d.Sqlx != nil && d.Config.Database.Driver != "sqlite" {
		if err := d.Sqlx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if sqlDB, err := d.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close database: %w", err)
		}
	}
	return firstErr
}
