// Package cleanup provides the adapter that runs the file expiration sweep.
package cleanup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/htpdf/htpdf/config"
	"github.com/htpdf/htpdf/internal/core"
	"github.com/htpdf/htpdf/internal/data"
	"github.com/htpdf/htpdf/internal/observability/statsd"
	"github.com/htpdf/htpdf/internal/service"
)

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB      *sql.DB
	Storage core.BlobStorage
	Config  config.CleanupConfig
	Logger  *slog.Logger

	// Optional dependency injection for testing/decoupling
	Repo    core.JobRepository
	Metrics statsd.Sink
}

// Runner runs the expired file cleanup loop.
type Runner struct {
	cleanup *service.CleanupService
	logger  *slog.Logger
}

// NewRunner creates a new cleanup runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && opts.Repo == nil {
		return nil, errors.New("either DB or Repo must be provided")
	}
	if opts.Storage == nil {
		return nil, errors.New("storage is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	repo := opts.Repo
	if repo == nil {
		repo = data.NewJobRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}

	svc, err := service.NewCleanupService(service.CleanupServiceOptions{
		Repo:    repo,
		Storage: opts.Storage,
		Config:  opts.Config,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire cleanup service: %w", err)
	}

	return &Runner{cleanup: svc, logger: opts.Logger}, nil
}

// Run starts the cleanup loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting cleanup runner")
	return r.cleanup.Run(ctx)
}
