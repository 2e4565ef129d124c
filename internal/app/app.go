// Package app assembles the dkr components and dispatches between the
// two ways the binary runs: the launcher CLI on the host, and the
// bootstrap entrypoint inside a container.
package app

import (
	"context"

	"github.com/rs/xid"

	"github.com/ujohnny/dkr/internal/cli"
	"github.com/ujohnny/dkr/internal/config"
	"github.com/ujohnny/dkr/internal/container"
	"github.com/ujohnny/dkr/internal/db"
	"github.com/ujohnny/dkr/internal/git"
	"github.com/ujohnny/dkr/internal/image"
	"github.com/ujohnny/dkr/internal/logger"
	"github.com/ujohnny/dkr/internal/operations"
)

// App represents the main application
type App struct {
	Config  *config.GlobalConfig
	Git     *git.Manager
	Runtime *container.DockerRuntime
	Index   *image.Index
	DB      *db.DB
	CLI     *cli.Manager
}

// New creates a new application instance
func New() *App {
	return &App{}
}

// Run starts the application
func (a *App) Run(args []string) error {
	return a.RunWithContext(context.Background(), args)
}

// RunWithContext starts the application with a context for cancellation
func (a *App) RunWithContext(ctx context.Context, args []string) error {
	// Inside a container the binary is the entrypoint. That path must not
	// touch the host-side state (global config file, ledger database), so
	// it gets a minimal assembly.
	if len(args) > 0 && args[0] == "bootstrap" {
		return a.runBootstrap(ctx, args)
	}
	return a.runLauncher(ctx, args)
}

// runLauncher wires the full host-side component set.
func (a *App) runLauncher(ctx context.Context, args []string) error {
	runID := xid.New().String()
	logger.WithFields(logger.Fields{"run_id": runID, "args": args}).Debug("dkr invoked")

	cfg, err := config.LoadGlobalConfig()
	if err != nil {
		return err
	}
	a.Config = cfg

	a.Git = git.New(nil)
	a.Runtime = container.NewDockerRuntime(nil)
	a.Index = image.NewIndex(a.Runtime)

	if !a.Runtime.IsAvailable(ctx) {
		logger.Warn("docker not found on PATH; build and start commands will fail")
	}

	// The ledger is informational; a broken database degrades to warnings
	// instead of blocking builds.
	var builds *db.BuildRepository
	dbConfig := db.DefaultConfig()
	if cfg.Storage.DatabasePath != "" {
		dbConfig.DSN = cfg.Storage.DatabasePath
	}
	database, err := db.New(dbConfig)
	if err != nil {
		logger.WithError(err).Warn("build history unavailable")
	} else if err := database.Migrate(); err != nil {
		logger.WithError(err).Warn("build history unavailable")
		database.Close()
	} else {
		a.DB = database
		defer a.DB.Close()
		builds = db.NewBuildRepository(database)
	}

	ops := operations.New(cfg, a.Git, a.Runtime, a.Index, builds, nil)
	a.CLI = cli.New(ops)

	if len(args) == 0 {
		return a.CLI.ExecuteWithContext(ctx, []string{"--help"})
	}
	return a.CLI.ExecuteWithContext(ctx, args)
}

// runBootstrap wires only what the in-container entrypoint needs.
func (a *App) runBootstrap(ctx context.Context, args []string) error {
	a.Config = config.DefaultGlobalConfig()
	a.Git = git.New(nil)
	a.Runtime = container.NewDockerRuntime(nil)
	a.Index = image.NewIndex(a.Runtime)

	ops := operations.New(a.Config, a.Git, a.Runtime, a.Index, nil, nil)
	a.CLI = cli.New(ops)
	return a.CLI.ExecuteWithContext(ctx, args)
}
