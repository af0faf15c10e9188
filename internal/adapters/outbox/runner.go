// Package outbox provides the adapter that runs the outbox email poller.
package outbox

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
	DB     *sql.DB
	Sender core.EmailSender
	Config config.OutboxConfig
	Logger *slog.Logger

	// Lock serializes passes across instances. Optional; without it the
	// single-processor deployment assumption applies.
	Lock core.PassLock

	// Optional dependency injection for testing/decoupling
	Repo    core.OutboxRepository
	Metrics statsd.Sink
}

// Runner runs the outbox delivery loop.
type Runner struct {
	outbox *service.OutboxService
	logger *slog.Logger
}

// NewRunner creates a new outbox runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && opts.Repo == nil {
		return nil, errors.New("either DB or Repo must be provided")
	}
	if opts.Sender == nil {
		return nil, errors.New("email sender is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	repo := opts.Repo
	if repo == nil {
		repo = data.NewOutboxRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}

	svc, err := service.NewOutboxService(service.OutboxServiceOptions{
		Repo:    repo,
		Sender:  opts.Sender,
		Config:  opts.Config,
		Lock:    opts.Lock,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire outbox service: %w", err)
	}

	return &Runner{outbox: svc, logger: opts.Logger}, nil
}

// Run starts the outbox loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting outbox runner")
	return r.outbox.Run(ctx)
}
