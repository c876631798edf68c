package container

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/application/catalog"
	"github.com/garyjia/excise-workflow/internal/application/dispatcher"
	"github.com/garyjia/excise-workflow/internal/application/port"
	"github.com/garyjia/excise-workflow/internal/application/workflow"
	"github.com/garyjia/excise-workflow/internal/auth"
	"github.com/garyjia/excise-workflow/internal/infrastructure/metrics"
	"github.com/garyjia/excise-workflow/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/excise-workflow/internal/infrastructure/worker"
	httpserver "github.com/garyjia/excise-workflow/internal/interfaces/http"
	"github.com/garyjia/excise-workflow/pkg/database"
)

// healthTimeout bounds each probe in Health
const healthTimeout = 2 * time.Second

// Container owns the service's components. Start brings them up in
// dependency order; Close tears down whatever was started, newest first.
type Container struct {
	config *Config
	logger *zap.Logger

	conn         *database.DB
	db           *sqldb.DB
	repositories *RepositoryBundle

	redisClient *redis.Client
	cache       port.SnapshotCache
	recorder    *metrics.Recorder

	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle

	issuer *auth.Issuer
	server *httpserver.Server

	workers *worker.WorkerManager

	mu       sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
	teardown []closer
	ready    atomic.Bool
	closed   atomic.Bool
}

// closer releases one started component
type closer struct {
	name string
	fn   func() error
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Workflows    port.WorkflowRepository
	Stages       port.StageRepository
	Transitions  port.TransitionRepository
	Permissions  port.PermissionRepository
	Roles        port.RoleRepository
	Transactions port.TransactionLogRepository
	Objections   port.ObjectionRepository
	Snapshots    port.SnapshotSource
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer validates cfg. Nothing is opened until Start.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	switch {
	case cfg == nil:
		return nil, fmt.Errorf("config is required")
	case logger == nil:
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Container{config: cfg, logger: logger}, nil
}

// Start opens the database, then the dispatcher, cache and metrics, the
// services (seeding the catalog when a seed file is configured), the
// workers and finally builds the HTTP server. The server is not listening
// until Server().Start is called.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.closed.Load():
		return fmt.Errorf("container has been closed")
	case c.ready.Load():
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	steps := []struct {
		name string
		run  func() error
	}{
		{"database", c.initDatabase},
		{"dispatcher", c.initDispatcher},
		{"cache", c.initCacheAndMetrics},
		{"services", c.initServices},
		{"workers", c.initWorkers},
		{"http server", c.initServer},
	}
	for _, step := range steps {
		began := time.Now()
		if err := step.run(); err != nil {
			c.logger.Error("Startup step failed", zap.String("step", step.name), zap.Error(err))
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		c.logger.Info("Startup step done",
			zap.String("step", step.name),
			zap.Duration("took", time.Since(began)))
	}

	c.ready.Store(true)
	c.logger.Info("Container started")
	return nil
}

// onClose registers fn to run during Close
func (c *Container) onClose(name string, fn func() error) {
	c.teardown = append(c.teardown, closer{name: name, fn: fn})
}

// Close releases every started component in reverse start order, including
// after a failed Start. A second Close is an error.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("container already closed")
	}
	c.ready.Store(false)
	if c.cancel != nil {
		c.cancel()
	}

	var errs []error
	for i := len(c.teardown) - 1; i >= 0; i-- {
		cl := c.teardown[i]
		if err := cl.fn(); err != nil {
			c.logger.Error("Shutdown step failed", zap.String("component", cl.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", cl.name, err))
			continue
		}
		c.logger.Debug("Component closed", zap.String("component", cl.name))
	}
	c.teardown = nil

	if err := errors.Join(errs...); err != nil {
		return err
	}
	c.logger.Info("Container closed")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, h ComponentHealth) {
		status.Components[name] = h
		if !h.Healthy {
			status.Overall = false
		}
	}
	notInitialized := ComponentHealth{Healthy: false, Message: "not initialized"}

	if c.conn != nil {
		pingCtx, cancel := context.WithTimeout(ctx, healthTimeout)
		err := c.conn.PingContext(pingCtx)
		cancel()
		if err != nil {
			set("database", ComponentHealth{Healthy: false, Message: fmt.Sprintf("ping failed: %v", err)})
		} else {
			set("database", ComponentHealth{Healthy: true, Message: c.conn.Driver})
		}
	} else {
		set("database", notInitialized)
	}

	if c.config.Cache.Enabled {
		if c.redisClient == nil {
			set("cache", notInitialized)
		} else {
			pingCtx, cancel := context.WithTimeout(ctx, healthTimeout)
			err := c.redisClient.Ping(pingCtx).Err()
			cancel()
			if err != nil {
				set("cache", ComponentHealth{Healthy: false, Message: fmt.Sprintf("ping failed: %v", err)})
			} else {
				set("cache", ComponentHealth{Healthy: true})
			}
		}
	}

	if c.workers != nil {
		healthy := c.workers.IsRunning()
		var stopped []string
		for _, st := range c.workers.Statuses() {
			if !st.Running {
				healthy = false
				stopped = append(stopped, st.Name)
			}
		}
		msg := fmt.Sprintf("worker count: %d", c.workers.GetWorkerCount())
		if len(stopped) > 0 {
			msg += ", not running: " + strings.Join(stopped, ", ")
		}
		set("workers", ComponentHealth{Healthy: healthy, Message: msg})
	} else {
		set("workers", notInitialized)
	}

	if c.dispatcher != nil {
		st := c.dispatcher.Stats()
		set("dispatcher", ComponentHealth{
			Healthy: true,
			Message: fmt.Sprintf("delivered %d, failed %d", st.Delivered, st.Failed),
		})
	} else {
		set("dispatcher", notInitialized)
	}

	if c.services != nil {
		set("services", ComponentHealth{Healthy: true})
	} else {
		set("services", notInitialized)
	}

	return status
}

func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(c.ctx, &c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.conn = dbBundle.Conn
	c.db = dbBundle.DB
	c.onClose("database", c.conn.Close)

	repos, err := ProvideRepositories(c.db, c.logger)
	if err != nil {
		return err
	}
	c.repositories = repos
	return nil
}

func (c *Container) initDispatcher() error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp
	c.onClose("dispatcher", disp.Close)
	return nil
}

func (c *Container) initCacheAndMetrics() error {
	bundle, err := ProvideCache(c.ctx, &c.config.Cache, c.logger)
	if err != nil {
		return err
	}
	if bundle != nil {
		c.redisClient = bundle.Client
		c.cache = bundle.Cache
		c.onClose("redis", bundle.Client.Close)
	}

	c.recorder = ProvideMetrics(&c.config.Metrics)
	return nil
}

func (c *Container) initServices() error {
	services, err := ProvideServices(&ServiceDeps{
		DB:         c.db,
		Repos:      c.repositories,
		Dispatcher: c.dispatcher,
		Cache:      c.cache,
		Metrics:    c.recorder,
		Workflow:   &c.config.Workflow,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.services = services

	if path := c.config.Workflow.SeedFile; path != "" {
		if err := SeedCatalog(c.ctx, services.Catalog, path, c.logger); err != nil {
			return err
		}
	}
	return nil
}

func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(&WorkerDeps{
		Repos:    c.repositories,
		Cache:    c.cache,
		CacheCfg: &c.config.Cache,
		Logger:   c.logger,
	})
	if err != nil {
		return err
	}
	c.workers = workers
	c.onClose("workers", workers.StopAll)
	return workers.StartAll(c.ctx)
}

func (c *Container) initServer() error {
	server, issuer, err := ProvideHTTPServer(&HTTPDeps{
		Server:   &c.config.Server,
		Auth:     &c.config.Auth,
		Metrics:  &c.config.Metrics,
		Services: c.services,
		Repos:    c.repositories,
		Recorder: c.recorder,
		Logger:   c.logger,
	})
	if err != nil {
		return err
	}
	c.server = server
	c.issuer = issuer
	return nil
}

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Catalog returns the catalog service.
func (c *Container) Catalog() catalog.Service {
	if c.services == nil {
		return nil
	}
	return c.services.Catalog
}

// Workflow returns the workflow service.
func (c *Container) Workflow() workflow.Service {
	if c.services == nil {
		return nil
	}
	return c.services.Workflow
}

// Issuer returns the bearer token issuer.
func (c *Container) Issuer() *auth.Issuer {
	return c.issuer
}

// Server returns the HTTP server.
func (c *Container) Server() *httpserver.Server {
	return c.server
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}
