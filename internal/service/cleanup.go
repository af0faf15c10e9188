package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/htpdf/htpdf/config"
	"github.com/htpdf/htpdf/internal/core"
	"github.com/htpdf/htpdf/internal/data"
	obserrors "github.com/htpdf/htpdf/internal/observability/errors"
	"github.com/htpdf/htpdf/internal/observability/metrics"
	"github.com/htpdf/htpdf/internal/observability/statsd"
)

// CleanupServiceOptions groups dependencies for CleanupService.
type CleanupServiceOptions struct {
	Repo         core.JobRepository   // Required: job repository
	Storage      core.BlobStorage     // Required: blob storage holding generated files
	Config       config.CleanupConfig // Required: cleanup configuration
	TimeProvider data.TimeProvider    // Optional: defaults to real time
	Logger       *slog.Logger         // Optional: structured logger
	Metrics      statsd.Sink          // Optional: metrics sink
}

// CleanupService removes expired generated files.
//
// This service manages:
// - Periodic sweeps over jobs whose retention window has passed.
// - Deleting the stored blob and clearing file_path on success.
// - Leaving file_path intact on delete failure so the next sweep retries.
type CleanupService struct {
	repo         core.JobRepository
	storage      core.BlobStorage
	config       config.CleanupConfig
	timeProvider data.TimeProvider
	logger       *slog.Logger
	metrics      statsd.Sink
}

// NewCleanupService constructs a new CleanupService.
func NewCleanupService(opts CleanupServiceOptions) (*CleanupService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Storage == nil {
		return nil, errors.New("BlobStorage is required")
	}

	timeProvider := opts.TimeProvider
	if timeProvider == nil {
		timeProvider = data.RealTimeProvider{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "cleanup_service")
		logger.Debug("CleanupService initialized",
			"interval", opts.Config.Interval,
			"batch_size", opts.Config.BatchSize,
		)
	}

	return &CleanupService{
		repo:         opts.Repo,
		storage:      opts.Storage,
		config:       opts.Config,
		timeProvider: timeProvider,
		logger:       logger,
		metrics:      opts.Metrics,
	}, nil
}

// Run starts the cleanup loop and runs until the context is cancelled.
// One sweep runs immediately so a long interval does not delay expiry
// after a restart. Returns nil on graceful shutdown (context.Canceled).
func (s *CleanupService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting cleanup service", "interval", s.config.Interval)
	}

	// Jitter prevents synchronized sweeps when multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if _, err := s.RunSweep(ctx); err != nil {
		s.logSweepError(err, "initial cleanup sweep")
	}

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "cleanup service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if _, err := s.RunSweep(ctx); err != nil {
				s.logSweepError(err, "cleanup sweep")
				// Keep sweeping despite errors
			}
		}
	}
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (s *CleanupService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

// RunSweep deletes expired files in batches until none remain. Returns the
// number of files removed. A job whose blob could not be deleted keeps its
// file_path so a later sweep retries it.
func (s *CleanupService) RunSweep(ctx context.Context) (int64, error) {
	start := time.Now()
	var removed, failed int64

	for {
		if ctx.Err() != nil {
			s.emitSweepMetrics(removed, failed, time.Since(start), ctx.Err())
			return removed, ctx.Err()
		}

		jobs, err := s.repo.FindExpired(ctx, s.timeProvider.Now(), s.config.BatchSize)
		if err != nil {
			s.emitSweepMetrics(removed, failed, time.Since(start), err)
			return removed, fmt.Errorf("find expired jobs: %w", err)
		}
		if len(jobs) == 0 {
			break
		}

		batchFailed := int64(0)
		for _, job := range jobs {
			if job.FilePath == nil {
				continue
			}
			if s.expireFile(ctx, job.ID, *job.FilePath) {
				removed++
			} else {
				batchFailed++
			}
		}
		failed += batchFailed

		// Every remaining row in this batch failed to delete; stop rather
		// than reselecting the same rows forever.
		if batchFailed == int64(len(jobs)) {
			break
		}
	}

	if s.logger != nil && (removed > 0 || failed > 0) {
		s.logger.InfoContext(ctx, "cleanup sweep finished",
			"removed", removed, "failed", failed, "elapsed", time.Since(start))
	}
	s.emitSweepMetrics(removed, failed, time.Since(start), nil)

	return removed, nil
}

// expireFile deletes one stored blob and clears the job's file path.
// Returns true when the row no longer references the file.
func (s *CleanupService) expireFile(ctx context.Context, jobID, filePath string) bool {
	ok, err := s.storage.Delete(ctx, filePath)
	if !ok {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to delete expired file, will retry next sweep",
				"id", jobID, "path", filePath, "error", err)
		}
		return false
	}

	if err := s.repo.ClearFilePath(ctx, jobID); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "deleted file but failed to clear file path",
				"id", jobID, "path", filePath, "error", err)
		}
		return false
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "expired file removed", "id", jobID, "path", filePath)
	}
	return true
}

func (s *CleanupService) emitSweepMetrics(removed, failed int64, elapsed time.Duration, err error) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	switch {
	case err != nil:
		result = metrics.ResultError
	case removed == 0 && failed == 0:
		result = metrics.ResultNoop
	}

	tags := map[string]string{"result": result}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("cleanup.sweep", 1, tags)
	if removed > 0 {
		s.metrics.Count("cleanup.files_removed", removed, metrics.CloneTags(tags))
	}
	if failed > 0 {
		s.metrics.Count("cleanup.delete_failures", failed, metrics.CloneTags(tags))
	}
	if elapsed > 0 {
		s.metrics.Timing("cleanup.sweep_duration", elapsed, metrics.CloneTags(tags))
	}
}

func (s *CleanupService) logSweepError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}

	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}

	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
