package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/htpdf/htpdf/config"
	"github.com/htpdf/htpdf/internal/core"
	"github.com/htpdf/htpdf/internal/data"
	"github.com/htpdf/htpdf/internal/domain/model"
	"github.com/htpdf/htpdf/internal/observability/metrics"
	"github.com/htpdf/htpdf/internal/observability/statsd"
)

const (
	completedSubject = "Your PDF Is Ready!"
	failedSubject    = "PDF Generation Failed"
)

// ProcessorServiceOptions groups dependencies for ProcessorService.
type ProcessorServiceOptions struct {
	Repo         core.JobRepository  // Required: job repository
	Renderer     core.Renderer       // Required: HTML to PDF renderer
	Storage      core.BlobStorage    // Required: blob storage for rendered files
	Worker       config.WorkerConfig // Required: render timeout
	Outbox       config.OutboxConfig // Required: retry budget stamped on outbox rows
	TimeProvider data.TimeProvider   // Optional: defaults to real time
	Logger       *slog.Logger        // Optional: structured logger
	Metrics      statsd.Sink         // Optional: metrics sink
}

// ProcessorService renders a single job: pick up, convert, store, and
// record the terminal outcome together with its notification in one
// transaction.
type ProcessorService struct {
	repo         core.JobRepository
	renderer     core.Renderer
	storage      core.BlobStorage
	worker       config.WorkerConfig
	outbox       config.OutboxConfig
	timeProvider data.TimeProvider
	logger       *slog.Logger
	metrics      statsd.Sink
}

// NewProcessorService constructs a new ProcessorService.
func NewProcessorService(opts ProcessorServiceOptions) (*ProcessorService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Renderer == nil {
		return nil, errors.New("Renderer is required")
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
		logger = opts.Logger.With("component", "processor_service")
		logger.Debug("ProcessorService initialized",
			"render_timeout", opts.Worker.RenderTimeout,
		)
	}

	return &ProcessorService{
		repo:         opts.Repo,
		renderer:     opts.Renderer,
		storage:      opts.Storage,
		worker:       opts.Worker,
		outbox:       opts.Outbox,
		timeProvider: timeProvider,
		logger:       logger,
		metrics:      opts.Metrics,
	}, nil
}

// Process handles one dequeued job id from pickup to terminal state.
// A job that is no longer pending (cancelled, or a duplicate queue entry)
// is dropped silently. Errors are returned only for infrastructure
// failures where the job's state could not be recorded.
func (s *ProcessorService) Process(ctx context.Context, jobID string) error {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, data.ErrJobNotFound) {
			if s.logger != nil {
				s.logger.WarnContext(ctx, "queued job no longer exists", "id", jobID)
			}
			return nil
		}
		return fmt.Errorf("load job %s: %w", jobID, err)
	}

	picked, err := s.repo.MarkProcessing(ctx, jobID)
	if err != nil {
		return fmt.Errorf("mark job %s processing: %w", jobID, err)
	}
	if !picked {
		// Cancelled between enqueue and pickup, or already handled.
		if s.logger != nil {
			s.logger.DebugContext(ctx, "job not pending at pickup, skipping",
				"id", jobID, "status", job.Status)
		}
		return nil
	}

	start := s.timeProvider.Now()
	content, err := s.render(ctx, job)
	if err != nil {
		return s.fail(ctx, job, fmt.Sprintf("render failed: %v", err), err, start)
	}

	filePath, err := s.storage.Save(ctx, job.Filename, content)
	if err != nil {
		return s.fail(ctx, job, fmt.Sprintf("store file failed: %v", err), err, start)
	}

	return s.complete(ctx, job, filePath, start)
}

func (s *ProcessorService) render(ctx context.Context, job *model.Job) ([]byte, error) {
	renderCtx := ctx
	if s.worker.RenderTimeout > 0 {
		var cancel context.CancelFunc
		renderCtx, cancel = context.WithTimeout(ctx, s.worker.RenderTimeout)
		defer cancel()
	}

	return s.renderer.Render(renderCtx, core.RenderRequest{
		HTML:        job.HTMLContent,
		Orientation: job.Orientation,
		PaperSize:   job.PaperSize,
	})
}

func (s *ProcessorService) complete(
	ctx context.Context,
	job *model.Job,
	filePath string,
	start time.Time,
) error {
	msg := s.buildMessage(job, model.MessageTypePdfCompleted, completedSubject,
		fmt.Sprintf("Your PDF '%s' Has Been Generated Successfully.", job.Filename))
	msg.AttachmentPath = &filePath
	msg.AttachmentFilename = &job.Filename

	err := s.repo.CompleteWithOutbox(ctx, core.CompleteJobParams{
		JobID:    job.ID,
		FilePath: filePath,
		Message:  msg,
	})
	if err != nil {
		// The rendered file is orphaned until the state is recorded; best
		// effort delete so a later retry does not leak blobs.
		if ok, delErr := s.storage.Delete(ctx, filePath); !ok && s.logger != nil {
			s.logger.WarnContext(ctx, "failed to remove orphaned file",
				"id", job.ID, "path", filePath, "error", delErr)
		}
		return fmt.Errorf("complete job %s: %w", job.ID, err)
	}

	duration := s.timeProvider.Now().Sub(start)
	if s.logger != nil {
		s.logger.InfoContext(ctx, "job completed",
			"id", job.ID, "path", filePath, "duration", duration)
	}
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Transition: "completed",
		Result:     metrics.ResultSuccess,
		Duration:   duration,
	})

	return nil
}

func (s *ProcessorService) fail(
	ctx context.Context,
	job *model.Job,
	message string,
	cause error,
	start time.Time,
) error {
	msg := s.buildMessage(job, model.MessageTypePdfFailed, failedSubject,
		"Your PDF Generation Failed With Error: "+message)

	err := s.repo.FailWithOutbox(ctx, core.FailJobParams{
		JobID:        job.ID,
		ErrorMessage: message,
		Message:      msg,
	})
	if err != nil {
		return fmt.Errorf("fail job %s: %w", job.ID, err)
	}

	duration := s.timeProvider.Now().Sub(start)
	if s.logger != nil {
		s.logger.ErrorContext(ctx, "job failed",
			"id", job.ID, "error", message, "duration", duration)
	}
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Transition: "failed",
		Result:     metrics.ResultError,
		Duration:   duration,
		Err:        cause,
	})

	return nil
}

func (s *ProcessorService) buildMessage(
	job *model.Job,
	messageType model.MessageType,
	subject, body string,
) *model.OutboxMessage {
	return &model.OutboxMessage{
		MessageType:      messageType,
		JobID:            job.ID,
		OwnerID:          job.OwnerID,
		EmailTo:          job.OwnerEmail,
		Subject:          subject,
		Body:             body,
		MaxRetryAttempts: s.outbox.MaxRetryAttempts,
	}
}
