// Package cli implements excisectl, the operator tool for the excise
// workflow service.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/config"
	"github.com/garyjia/excise-workflow/internal/container"
	"github.com/garyjia/excise-workflow/pkg/utils"
)

// globals holds the persistent flags
type globals struct {
	configPath string
	verbose    bool
}

// NewRootCmd builds the excisectl command tree
func NewRootCmd(version string) *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:     "excisectl",
		Short:   "Operate the excise workflow service",
		Version: version,
		Long: `excisectl manages the database and the workflow catalog of the excise
workflow service: apply migrations, import catalog documents, inspect
workflows and mint bearer tokens for testing.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "configs/config.yaml", "configuration file")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log at info level")

	root.AddCommand(migrateCmd(g))
	root.AddCommand(seedCmd(g))
	root.AddCommand(catalogCmd(g))
	root.AddCommand(tokenCmd(g))

	return root
}

func (g *globals) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	level := "warn"
	if g.verbose {
		level = "info"
	}
	logger, err := utils.NewLogger(utils.LoggerConfig{Level: level, OutputPath: "stderr", Format: "console"})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

// stack is the part of the service a command needs: the migrated database,
// its repositories and the application services, without cache or server.
type stack struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       *container.DatabaseBundle
	repos    *container.RepositoryBundle
	services *container.ServiceBundle
}

func (g *globals) open(ctx context.Context) (*stack, error) {
	cfg, logger, err := g.load()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}

	cc := cfg.ToContainerConfig()
	db, err := container.ProvideDatabase(ctx, &cc.Database, logger)
	if err != nil {
		return nil, err
	}
	repos, err := container.ProvideRepositories(db.DB, logger)
	if err != nil {
		_ = db.Conn.Close()
		return nil, err
	}
	services, err := container.ProvideServices(&container.ServiceDeps{
		DB:       db.DB,
		Repos:    repos,
		Workflow: &cc.Workflow,
		Logger:   logger,
	})
	if err != nil {
		_ = db.Conn.Close()
		return nil, err
	}

	return &stack{cfg: cfg, logger: logger, db: db, repos: repos, services: services}, nil
}

func (s *stack) Close() error {
	_ = s.logger.Sync()
	return s.db.Conn.Close()
}
