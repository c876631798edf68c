// Package http exposes the workflow and catalog services over a gin router
// authenticated with bearer tokens.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/application/catalog"
	"github.com/garyjia/excise-workflow/internal/application/port"
	"github.com/garyjia/excise-workflow/internal/application/workflow"
	"github.com/garyjia/excise-workflow/internal/auth"
	"github.com/garyjia/excise-workflow/internal/infrastructure/report"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// MetricsPath is where Dependencies.Metrics is mounted
	MetricsPath string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MetricsPath:     "/metrics",
	}
}

// Dependencies are the services the handlers delegate to
type Dependencies struct {
	Workflow workflow.Service
	Catalog  catalog.Service
	Roles    port.RoleRepository
	Issuer   *auth.Issuer
	Exporter *report.HistoryExporter
	// Metrics is optional; nil leaves the metrics path unrouted
	Metrics http.Handler
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	deps       Dependencies
	logger     *zap.Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, deps Dependencies, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	server := &Server{
		config: config,
		router: router,
		deps:   deps,
		logger: logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())
	s.router.Use(loggingMiddleware(s.logger))
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := NewHandlers(s.deps, s.logger)

	s.router.GET("/health", h.HealthCheck)
	if s.deps.Metrics != nil {
		path := s.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.router.GET(path, gin.WrapH(s.deps.Metrics))
	}

	api := s.router.Group("/api")
	api.Use(authMiddleware(s.deps.Issuer, s.deps.Roles, s.logger))

	apps := api.Group("/applications/:type")
	{
		apps.POST("", h.CreateApplication)
		apps.GET("", h.ListApplications)
		apps.GET("/:id", h.GetApplication)
		apps.DELETE("/:id", h.DeleteApplication)
		apps.GET("/:id/next-stages", h.NextStages)
		apps.POST("/:id/submit", h.Submit)
		apps.POST("/:id/advance/:stage_id", h.Advance)
		apps.POST("/:id/raise-objection", h.RaiseObjection)
		apps.POST("/:id/resolve-objections", h.ResolveObjections)
		apps.GET("/:id/history", h.History)
		apps.GET("/:id/history.xlsx", h.HistoryWorkbook)
	}

	cat := api.Group("/catalog")
	cat.Use(requireManager())
	{
		cat.GET("/workflows", h.ListWorkflows)
		cat.POST("/workflows", h.CreateWorkflow)
		cat.GET("/workflows/:id", h.GetWorkflow)
		cat.PUT("/workflows/:id", h.UpdateWorkflow)
		cat.DELETE("/workflows/:id", h.DeleteWorkflow)
		cat.GET("/workflows/:id/snapshot", h.WorkflowSnapshot)
		cat.GET("/workflows/:id/check", h.CheckWorkflow)
		cat.GET("/workflows/:id/stages", h.ListStages)
		cat.GET("/workflows/:id/transitions", h.ListTransitions)

		cat.POST("/stages", h.CreateStage)
		cat.GET("/stages/:id", h.GetStage)
		cat.PUT("/stages/:id", h.UpdateStage)
		cat.DELETE("/stages/:id", h.DeleteStage)
		cat.GET("/stages/:id/transitions", h.ListTransitionsFrom)
		cat.GET("/stages/:id/permissions", h.ListPermissions)

		cat.POST("/transitions", h.CreateTransition)
		cat.GET("/transitions/:id", h.GetTransition)
		cat.PUT("/transitions/:id", h.UpdateTransition)
		cat.DELETE("/transitions/:id", h.DeleteTransition)

		cat.POST("/permissions", h.CreatePermission)
		cat.GET("/permissions/:id", h.GetPermission)
		cat.PUT("/permissions/:id", h.UpdatePermission)
		cat.DELETE("/permissions/:id", h.DeletePermission)

		cat.GET("/roles", h.ListRoles)
		cat.POST("/roles", h.CreateRole)
		cat.GET("/roles/:id", h.GetRole)
		cat.PUT("/roles/:id", h.UpdateRole)
		cat.DELETE("/roles/:id", h.DeleteRole)
	}
}

// Start listens on the configured address and serves until ctx is done
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Address())
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve handles requests on ln until ctx is done, then drains in-flight
// requests for at most ShutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.logger.Info("HTTP server listening", zap.String("address", ln.Addr().String()))

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	select {
	case err := <-served:
		s.logger.Error("HTTP server stopped unexpectedly", zap.Error(err))
		return err
	case <-ctx.Done():
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown incomplete", zap.Error(err))
		return err
	}
	if err := <-served; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the gin engine
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address is the configured host:port
func (s *Server) Address() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}
