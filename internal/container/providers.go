package container

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/application/catalog"
	"github.com/garyjia/excise-workflow/internal/application/dispatcher"
	"github.com/garyjia/excise-workflow/internal/application/port"
	"github.com/garyjia/excise-workflow/internal/application/workflow"
	"github.com/garyjia/excise-workflow/internal/auth"
	"github.com/garyjia/excise-workflow/internal/domain/event"
	domainwf "github.com/garyjia/excise-workflow/internal/domain/workflow"
	"github.com/garyjia/excise-workflow/internal/infrastructure/cache"
	"github.com/garyjia/excise-workflow/internal/infrastructure/metrics"
	"github.com/garyjia/excise-workflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/excise-workflow/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/excise-workflow/internal/infrastructure/report"
	"github.com/garyjia/excise-workflow/internal/infrastructure/worker"
	httpserver "github.com/garyjia/excise-workflow/internal/interfaces/http"
	"github.com/garyjia/excise-workflow/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn *database.DB
	DB   *sqldb.DB
}

// CacheBundle holds the Redis client and the snapshot cache on top of it.
type CacheBundle struct {
	Client *redis.Client
	Cache  port.SnapshotCache
}

// ServiceBundle groups the application services.
type ServiceBundle struct {
	Catalog  catalog.Service
	Workflow workflow.Service
	Registry *workflow.Registry
}

// ProvideDatabase opens the configured database and applies pending migrations.
func ProvideDatabase(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	conn, err := database.New(database.Config{
		Driver:          cfg.Driver,
		Path:            cfg.Path,
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if _, err := database.NewMigrator(conn, logger).Up(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	dialect, err := sqldb.ParseDialect(conn.Driver)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &DatabaseBundle{
		Conn: conn,
		DB:   sqldb.NewDB(conn.DB, dialect, logger),
	}, nil
}

// ProvideRepositories creates every repository over db.
func ProvideRepositories(db *sqldb.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}

	return &RepositoryBundle{
		Workflows:    repository.NewWorkflowRepository(db, logger),
		Stages:       repository.NewStageRepository(db, logger),
		Transitions:  repository.NewTransitionRepository(db, logger),
		Permissions:  repository.NewPermissionRepository(db, logger),
		Roles:        repository.NewRoleRepository(db, logger),
		Transactions: repository.NewTransactionLogRepository(db, logger),
		Objections:   repository.NewObjectionRepository(db, logger),
		Snapshots:    repository.NewSnapshotLoader(db, logger),
	}, nil
}

// dispatchInFlight caps background event handlers
const dispatchInFlight = 64

// ProvideDispatcher creates the event dispatcher with an event log subscriber.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	disp := dispatcher.NewDispatcher(dispatcher.WithLogger(logger), dispatcher.WithMaxInFlight(dispatchInFlight))
	eventLog := logger.Named("events")
	disp.SubscribeNamed(dispatcher.AnyType, "event_log", func(_ context.Context, evt *event.Event) error {
		eventLog.Info("Event",
			zap.String("type", evt.Type.String()),
			zap.String("event_id", evt.ID),
			zap.String("application_type", evt.Application.Type),
			zap.Int64("application_id", evt.Application.ID),
			zap.String("correlation_id", evt.CorrelationID),
			zap.Any("payload", evt.Payload))
		return nil
	})
	return disp, nil
}

// ProvideCache connects to Redis. It returns nil when the cache is disabled.
func ProvideCache(ctx context.Context, cfg *CacheConfig, logger *zap.Logger) (*CacheBundle, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	cacheCfg := cache.Config{
		Addr:      cfg.Addr,
		Password:  cfg.Password,
		DB:        cfg.DB,
		TTL:       cfg.TTL,
		KeyPrefix: cfg.KeyPrefix,
	}
	client, err := cache.NewRedisClient(ctx, cacheCfg)
	if err != nil {
		return nil, err
	}
	logger.Info("Snapshot cache connected", zap.String("addr", cfg.Addr))

	return &CacheBundle{
		Client: client,
		Cache:  cache.NewRedisSnapshotCache(client, cacheCfg, logger),
	}, nil
}

// ProvideMetrics creates the Prometheus recorder. It returns nil when metrics are disabled.
func ProvideMetrics(cfg *MetricsConfig) *metrics.Recorder {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return metrics.NewRecorder(metrics.Config{Namespace: cfg.Namespace})
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	DB         *sqldb.DB
	Repos      *RepositoryBundle
	Dispatcher dispatcher.Dispatcher
	// Cache and Metrics are optional
	Cache    port.SnapshotCache
	Metrics  *metrics.Recorder
	Workflow *WorkflowConfig
	Logger   *zap.Logger
}

// ProvideServices creates the catalog and workflow services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil || deps.DB == nil {
		return nil, fmt.Errorf("service dependencies are incomplete")
	}
	repos := deps.Repos
	wfCfg := deps.Workflow
	if wfCfg == nil {
		wfCfg = &WorkflowConfig{}
	}

	catalogOpts := []catalog.Option{catalog.WithDispatcher(deps.Dispatcher)}
	var reads port.SnapshotSource = repos.Snapshots
	if deps.Cache != nil {
		catalogOpts = append(catalogOpts, catalog.WithCache(deps.Cache))
		reads = cache.NewCachedSource(repos.Snapshots, deps.Cache, deps.Logger)
	}

	catalogSvc := catalog.NewService(catalog.Repositories{
		Workflows:   repos.Workflows,
		Stages:      repos.Stages,
		Transitions: repos.Transitions,
		Permissions: repos.Permissions,
		Roles:       repos.Roles,
	}, repos.Snapshots, deps.DB, deps.Logger, catalogOpts...)

	registry := workflow.NewRegistry(repos.Transactions, repos.Objections)
	for _, spec := range workflow.DefaultRecordSpecs() {
		recordRepo := repository.NewRecordRepository(deps.DB, spec.Tag, spec.Table, deps.Logger)
		if err := registry.Register(spec, recordRepo); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", spec.Tag, err)
		}
	}

	opts := []workflow.Option{
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithReadSource(reads),
		workflow.WithEvaluator(domainwf.NewEvaluator(wfCfg.DocumentaryConditionKeys)),
		workflow.WithFamilyResolver(domainwf.NewFamilyResolver(wfCfg.RoleFamilies)),
		workflow.WithActionTable(workflow.NewActionTable(wfCfg.ActionConfigs)),
	}
	if deps.Metrics != nil {
		opts = append(opts, workflow.WithObserver(deps.Metrics))
	}

	workflowSvc := workflow.NewService(registry, repos.Workflows, repos.Snapshots,
		repos.Transactions, repos.Objections, deps.DB, deps.Logger, opts...)

	return &ServiceBundle{
		Catalog:  catalogSvc,
		Workflow: workflowSvc,
		Registry: registry,
	}, nil
}

// SeedCatalog imports the catalog document at path.
func SeedCatalog(ctx context.Context, svc catalog.Service, path string, logger *zap.Logger) error {
	doc, err := catalog.LoadDocument(path)
	if err != nil {
		return err
	}
	rep, err := svc.Import(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to import %s: %w", path, err)
	}
	logger.Info("Catalog seeded",
		zap.String("file", path),
		zap.Int("roles", rep.Roles),
		zap.Int("workflows", rep.Workflows),
		zap.Int("stages", rep.Stages),
		zap.Int("transitions", rep.Transitions),
		zap.Int("permissions", rep.Permissions))
	return nil
}

// WorkerDeps holds dependencies for creating workers.
type WorkerDeps struct {
	Repos    *RepositoryBundle
	Cache    port.SnapshotCache
	CacheCfg *CacheConfig
	Logger   *zap.Logger
}

// ProvideWorkers creates the worker manager and registers the background loops.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil || deps.Logger == nil {
		return nil, fmt.Errorf("worker dependencies are incomplete")
	}

	manager := worker.NewWorkerManager(deps.Logger)
	if deps.Cache != nil && deps.CacheCfg != nil && deps.CacheCfg.WarmInterval > 0 {
		cfg := worker.DefaultCacheWarmerConfig()
		cfg.Interval = deps.CacheCfg.WarmInterval
		manager.Register(worker.NewCacheWarmer(cfg, deps.Repos.Workflows, deps.Repos.Snapshots, deps.Cache, deps.Logger))
	}
	return manager, nil
}

// HTTPDeps holds dependencies for the HTTP server.
type HTTPDeps struct {
	Server   *ServerConfig
	Auth     *AuthConfig
	Metrics  *MetricsConfig
	Services *ServiceBundle
	Repos    *RepositoryBundle
	Recorder *metrics.Recorder
	Logger   *zap.Logger
}

// ProvideHTTPServer creates the token issuer and the HTTP server.
func ProvideHTTPServer(deps *HTTPDeps) (*httpserver.Server, *auth.Issuer, error) {
	if deps == nil || deps.Services == nil || deps.Server == nil || deps.Auth == nil {
		return nil, nil, fmt.Errorf("http dependencies are incomplete")
	}

	issuer, err := auth.NewIssuer(deps.Auth.JWTSecret, deps.Auth.Issuer, deps.Auth.TokenTTL)
	if err != nil {
		return nil, nil, err
	}

	serverCfg := httpserver.ServerConfig{
		Host:            deps.Server.Host,
		Port:            deps.Server.Port,
		ReadTimeout:     deps.Server.ReadTimeout,
		WriteTimeout:    deps.Server.WriteTimeout,
		ShutdownTimeout: deps.Server.ShutdownTimeout,
	}
	httpDeps := httpserver.Dependencies{
		Workflow: deps.Services.Workflow,
		Catalog:  deps.Services.Catalog,
		Roles:    deps.Repos.Roles,
		Issuer:   issuer,
		Exporter: report.NewHistoryExporter(deps.Logger),
	}
	if deps.Recorder != nil {
		httpDeps.Metrics = deps.Recorder.Handler()
		if deps.Metrics != nil {
			serverCfg.MetricsPath = deps.Metrics.Path
		}
	}

	return httpserver.NewServer(serverCfg, httpDeps, deps.Logger), issuer, nil
}
