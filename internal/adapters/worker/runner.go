// Package worker provides the adapter that consumes the job queue and
// renders PDFs.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/htpdf/htpdf/config"
	"github.com/htpdf/htpdf/internal/core"
	"github.com/htpdf/htpdf/internal/data"
	"github.com/htpdf/htpdf/internal/domain/queue"
	"github.com/htpdf/htpdf/internal/observability/statsd"
	"github.com/htpdf/htpdf/internal/service"
	"golang.org/x/sync/semaphore"
)

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB       *sql.DB
	Queue    *queue.Queue
	Renderer core.Renderer
	Storage  core.BlobStorage
	Worker   config.WorkerConfig
	Outbox   config.OutboxConfig
	Limits   config.LimitsConfig
	Retain   config.StorageConfig
	Logger   *slog.Logger

	// Optional dependency injection for testing/decoupling
	Repo    core.JobRepository
	Metrics statsd.Sink
}

// Runner reconciles the persisted pending backlog into the queue, then
// consumes job ids and fans renders out to a bounded set of goroutines.
type Runner struct {
	jobs        *service.JobService
	processor   *service.ProcessorService
	queue       *queue.Queue
	concurrency int64
	logger      *slog.Logger
}

// NewRunner creates a new worker runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	repo := opts.Repo
	if repo == nil {
		repo = data.NewJobRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:      repo,
		Queue:     opts.Queue,
		Storage:   opts.Storage,
		Limits:    opts.Limits,
		Retention: opts.Retain,
		Logger:    opts.Logger,
		Metrics:   opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire job service: %w", err)
	}

	processor, err := service.NewProcessorService(service.ProcessorServiceOptions{
		Repo:     repo,
		Renderer: opts.Renderer,
		Storage:  opts.Storage,
		Worker:   opts.Worker,
		Outbox:   opts.Outbox,
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire processor service: %w", err)
	}

	concurrency := int64(opts.Worker.Concurrency)
	if concurrency < 1 {
		concurrency = 1
	}

	return &Runner{
		jobs:        jobs,
		processor:   processor,
		queue:       opts.Queue,
		concurrency: concurrency,
		logger:      opts.Logger,
	}, nil
}

func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.DB == nil && opts.Repo == nil {
		return errors.New("either DB or Repo must be provided")
	}
	if opts.Queue == nil {
		return errors.New("queue is required")
	}
	if opts.Renderer == nil {
		return errors.New("renderer is required")
	}
	if opts.Storage == nil {
		return errors.New("storage is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

// Run reconciles the pending backlog and then consumes the queue until the
// context is cancelled. Returns nil on graceful shutdown.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting worker runner", "concurrency", r.concurrency)

	if _, err := r.jobs.RequeuePending(ctx); err != nil {
		// A failed reconciliation only delays jobs submitted before the
		// restart; new submissions still flow.
		r.logger.ErrorContext(ctx, "failed to requeue pending jobs", "error", err)
	}

	sem := semaphore.NewWeighted(r.concurrency)
	var wg sync.WaitGroup

	for {
		jobID, err := r.queue.Dequeue(ctx)
		if err != nil {
			break
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			// Shutdown while waiting for a render slot; the job stays
			// pending and is requeued on the next start.
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			if err := r.processor.Process(ctx, jobID); err != nil {
				r.logger.ErrorContext(ctx, "job processing failed", "id", jobID, "error", err)
			}
		}()
	}

	wg.Wait()

	if errors.Is(ctx.Err(), context.Canceled) {
		r.logger.InfoContext(ctx, "worker runner stopped")
		return nil
	}
	return ctx.Err()
}
