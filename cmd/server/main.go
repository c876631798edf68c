package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/config"
	"github.com/garyjia/excise-workflow/internal/container"
	httpserver "github.com/garyjia/excise-workflow/internal/interfaces/http"
	"github.com/garyjia/excise-workflow/pkg/utils"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := os.Getenv("EXCISE_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    "excise-workflow",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting excise workflow service",
		zap.String("version", httpserver.Version),
		zap.String("database_driver", cfg.Database.Driver),
		zap.Int("port", cfg.Server.Port))

	if err := cfg.EnsureDataDir(); err != nil {
		logger.Fatal("Failed to create data directory", zap.Error(err))
	}

	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		logger.Fatal("Failed to create container", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		logger.Fatal("Failed to start container", zap.Error(err))
	}

	// Blocks until a signal arrives, then shuts the listener down
	if err := c.Server().Start(ctx); err != nil {
		logger.Error("HTTP server stopped", zap.Error(err))
	}

	if err := c.Close(); err != nil {
		logger.Error("Container closed with errors", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}
