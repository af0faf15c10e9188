package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/htpdf/htpdf/config"
	"github.com/htpdf/htpdf/internal/core"
	"github.com/htpdf/htpdf/internal/data"
	"github.com/htpdf/htpdf/internal/domain/model"
	"github.com/htpdf/htpdf/internal/domain/queue"
	"github.com/htpdf/htpdf/internal/observability/statsd"
)

// ErrTooManyActiveJobs is returned when an owner already holds the maximum
// number of pending plus processing jobs.
var ErrTooManyActiveJobs = errors.New("too many active jobs for owner")

// ErrFileNotAvailable is returned when a job's generated file cannot be
// downloaded: the job never completed, or the file has expired.
var ErrFileNotAvailable = errors.New("file not available")

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo         core.JobRepository  // Required: job repository
	Queue        *queue.Queue        // Required: in-process job queue
	Storage      core.BlobStorage    // Required: blob storage for downloads
	Limits       config.LimitsConfig // Required: submission limits
	Retention    config.StorageConfig
	TimeProvider data.TimeProvider // Optional: defaults to real time
	Logger       *slog.Logger      // Optional: structured logger
	Metrics      statsd.Sink       // Optional: metrics sink
}

// JobService provides business logic for PDF job operations.
//
// This service manages:
// - Job submission with validation and per-owner quota enforcement
// - Guarded cancellation of pending jobs
// - Status, download, and stats queries
// - Startup reconciliation of persisted pending jobs into the queue.
type JobService struct {
	repo         core.JobRepository
	queue        *queue.Queue
	storage      core.BlobStorage
	limits       config.LimitsConfig
	retention    config.StorageConfig
	timeProvider data.TimeProvider
	logger       *slog.Logger
	metrics      statsd.Sink
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("Queue is required")
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
		logger = opts.Logger.With("component", "job_service")
		logger.Debug("JobService initialized",
			"max_html_size_bytes", opts.Limits.MaxHTMLSizeBytes,
			"max_concurrent_jobs_per_owner", opts.Limits.MaxConcurrentJobsPerOwner,
			"retention_days", opts.Retention.RetentionDays,
		)
	}

	return &JobService{
		repo:         opts.Repo,
		queue:        opts.Queue,
		storage:      opts.Storage,
		limits:       opts.Limits,
		retention:    opts.Retention,
		timeProvider: timeProvider,
		logger:       logger,
		metrics:      opts.Metrics,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Submit validates the request, enforces the per-owner quota, persists the
// job as pending, and enqueues its id for processing. The enqueue never
// blocks, so submission latency is independent of worker load.
func (s *JobService) Submit(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if err := req.Validate(s.limits.MaxHTMLSizeBytes); err != nil {
		return nil, fmt.Errorf("validate job request: %w", err)
	}

	active, err := s.repo.CountActive(ctx, req.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("count active jobs for owner %s: %w", req.OwnerID, err)
	}
	if active >= s.limits.MaxConcurrentJobsPerOwner {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "submission rejected, owner quota reached",
				"owner_id", req.OwnerID,
				"active", active,
				"limit", s.limits.MaxConcurrentJobsPerOwner,
			)
		}
		s.countSubmission("rejected_quota")
		return nil, fmt.Errorf("%w: %d active, limit %d",
			ErrTooManyActiveJobs, active, s.limits.MaxConcurrentJobsPerOwner)
	}

	expiresAt := s.timeProvider.Now().Add(s.retention.Retention())
	job, err := s.repo.Create(ctx, req, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.queue.Enqueue(job.ID)
	s.countSubmission("accepted")

	if s.logger != nil {
		s.logger.InfoContext(ctx, "job submitted",
			"id", job.ID,
			"owner_id", job.OwnerID,
			"filename", job.Filename,
			"expires_at", expiresAt,
		)
	}

	return job, nil
}

// Cancel transitions a pending job to cancelled. Returns false when the job
// is missing, belongs to another owner, or was already picked up; a job that
// started processing runs to completion.
func (s *JobService) Cancel(ctx context.Context, id, ownerID string) (bool, error) {
	cancelled, err := s.repo.Cancel(ctx, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("cancel job %s: %w", id, err)
	}

	if s.logger != nil {
		if cancelled {
			s.logger.InfoContext(ctx, "job cancelled", "id", id, "owner_id", ownerID)
		} else {
			s.logger.DebugContext(ctx, "cancel had no effect, job not pending for owner",
				"id", id, "owner_id", ownerID)
		}
	}

	return cancelled, nil
}

// GetStatus returns the status information for a specific job.
func (s *JobService) GetStatus(ctx context.Context, id, ownerID string) (*model.JobStatusResponse, error) {
	job, err := s.repo.GetForOwner(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}

	return &model.JobStatusResponse{
		Status:       job.Status,
		CompletedAt:  job.CompletedAt,
		ErrorMessage: job.ErrorMessage,
	}, nil
}

const (
	// defaultListLimit is the page size used when the caller does not ask
	// for one.
	defaultListLimit = 20
	// maxListLimit caps the page size a caller may request.
	maxListLimit = 100
)

// ListForOwner returns one page of an owner's jobs as listing summaries,
// newest first, along with the total count matching the filter.
func (s *JobService) ListForOwner(ctx context.Context, params core.ListJobsParams) ([]model.JobSummary, int, error) {
	if params.OwnerID == "" {
		return nil, 0, errors.New("owner id is required")
	}
	if params.Status != "" && !params.Status.Valid() {
		return nil, 0, fmt.Errorf("invalid status filter %q", params.Status)
	}
	if params.Limit <= 0 {
		params.Limit = defaultListLimit
	}
	if params.Limit > maxListLimit {
		params.Limit = maxListLimit
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	jobs, total, err := s.repo.ListForOwner(ctx, params)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs for owner %s: %w", params.OwnerID, err)
	}

	now := s.timeProvider.Now().UTC()
	summaries := make([]model.JobSummary, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, job.Summary(now))
	}
	return summaries, total, nil
}

// GetByID returns a job by its ID.
func (s *JobService) GetByID(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job by id %s: %w", id, err)
	}
	return job, nil
}

// Download returns the generated PDF bytes and the download filename for a
// completed job. Returns ErrFileNotAvailable when the job is not completed
// or the stored file has already been expired by the cleanup sweeper.
func (s *JobService) Download(ctx context.Context, id, ownerID string) ([]byte, string, error) {
	job, err := s.repo.GetForOwner(ctx, id, ownerID)
	if err != nil {
		return nil, "", fmt.Errorf("get job %s: %w", id, err)
	}

	if job.Status != model.JobStatusCompleted || job.FilePath == nil {
		return nil, "", fmt.Errorf("job %s: %w", id, ErrFileNotAvailable)
	}

	content, err := s.storage.Read(ctx, *job.FilePath)
	if err != nil {
		return nil, "", fmt.Errorf("read stored file for job %s: %w", id, err)
	}
	if content == nil {
		// Row says completed but the blob is gone, most likely swept
		// between the status check and the read.
		return nil, "", fmt.Errorf("job %s: %w", id, ErrFileNotAvailable)
	}

	return content, job.Filename, nil
}

// RequeuePending reloads all persisted pending jobs into the in-process
// queue in submission order. Called once at startup so jobs accepted before
// a restart are not lost.
func (s *JobService) RequeuePending(ctx context.Context) (int, error) {
	ids, err := s.repo.ListPendingIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending jobs: %w", err)
	}

	for _, id := range ids {
		s.queue.Enqueue(id)
	}

	if s.logger != nil && len(ids) > 0 {
		s.logger.InfoContext(ctx, "requeued pending jobs after startup", "count", len(ids))
	}

	return len(ids), nil
}

// Stats returns counts of jobs in each state.
func (s *JobService) Stats(ctx context.Context) (*model.JobStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get job stats: %w", err)
	}
	return stats, nil
}

func (s *JobService) countSubmission(result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.Count("job.submission", 1, map[string]string{"result": result})
}
