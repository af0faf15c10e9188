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
	"github.com/htpdf/htpdf/internal/domain/outbox"
	obserrors "github.com/htpdf/htpdf/internal/observability/errors"
	"github.com/htpdf/htpdf/internal/observability/metrics"
	"github.com/htpdf/htpdf/internal/observability/statsd"
)

// OutboxServiceOptions groups dependencies for OutboxService.
type OutboxServiceOptions struct {
	Repo         core.OutboxRepository // Required: outbox repository
	Sender       core.EmailSender      // Required: email delivery
	Config       config.OutboxConfig   // Required: outbox configuration
	Lock         core.PassLock         // Optional: pass lease for multi-instance deployments
	TimeProvider data.TimeProvider     // Optional: defaults to real time
	Logger       *slog.Logger          // Optional: structured logger
	Metrics      statsd.Sink           // Optional: metrics sink
}

// OutboxService delivers pending notification emails.
//
// This service manages:
// - Periodic polling of due outbox messages, oldest first.
// - Email delivery with the canonical per-type HTML body.
// - Bounded exponential backoff on delivery failure.
// - An optional distributed pass lease so only one instance polls at a time.
type OutboxService struct {
	repo         core.OutboxRepository
	sender       core.EmailSender
	config       config.OutboxConfig
	policy       outbox.RetryPolicy
	lock         core.PassLock
	timeProvider data.TimeProvider
	logger       *slog.Logger
	metrics      statsd.Sink
}

// NewOutboxService constructs a new OutboxService.
func NewOutboxService(opts OutboxServiceOptions) (*OutboxService, error) {
	if opts.Repo == nil {
		return nil, errors.New("OutboxRepository is required")
	}
	if opts.Sender == nil {
		return nil, errors.New("EmailSender is required")
	}

	timeProvider := opts.TimeProvider
	if timeProvider == nil {
		timeProvider = data.RealTimeProvider{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "outbox_service")
		logger.Debug("OutboxService initialized",
			"interval", opts.Config.Interval,
			"batch_size", opts.Config.BatchSize,
			"max_retry_attempts", opts.Config.MaxRetryAttempts,
			"base_retry_delay", opts.Config.BaseRetryDelay,
			"backoff_multiplier", opts.Config.BackoffMultiplier,
		)
	}

	return &OutboxService{
		repo:   opts.Repo,
		sender: opts.Sender,
		config: opts.Config,
		policy: outbox.RetryPolicy{
			BaseDelay:   opts.Config.BaseRetryDelay,
			Multiplier:  opts.Config.BackoffMultiplier,
			MaxAttempts: opts.Config.MaxRetryAttempts,
		},
		lock:         opts.Lock,
		timeProvider: timeProvider,
		logger:       logger,
		metrics:      opts.Metrics,
	}, nil
}

// Run starts the outbox polling loop and runs until the context is
// cancelled. Returns nil on graceful shutdown (context.Canceled).
func (s *OutboxService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting outbox service", "interval", s.config.Interval)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.RunPass(ctx); err != nil {
		s.logPassError(err, "initial outbox pass")
	}

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "outbox service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.RunPass(ctx); err != nil {
				s.logPassError(err, "outbox pass")
				// Keep polling despite errors
			}
		}
	}
}

// RunPass performs one delivery pass: select due messages and attempt each
// in order. A send failure affects only that message's own retry schedule.
func (s *OutboxService) RunPass(ctx context.Context) error {
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, s.config.LeaseTTL)
		if err != nil {
			return fmt.Errorf("acquire outbox pass lease: %w", err)
		}
		if !acquired {
			if s.logger != nil {
				s.logger.DebugContext(ctx, "outbox pass lease held elsewhere, skipping pass")
			}
			return nil
		}
		defer func() {
			if err := s.lock.Release(ctx); err != nil && s.logger != nil {
				s.logger.WarnContext(ctx, "failed to release outbox pass lease", "error", err)
			}
		}()
	}

	now := s.timeProvider.Now()
	messages, err := s.repo.SelectDue(ctx, now, s.config.BatchSize)
	if err != nil {
		return fmt.Errorf("select due outbox messages: %w", err)
	}

	for _, msg := range messages {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.deliver(ctx, msg)
	}

	return nil
}

// deliver attempts one message and records the outcome. Delivery errors are
// absorbed into the message's retry schedule, never propagated.
func (s *OutboxService) deliver(ctx context.Context, msg *model.OutboxMessage) {
	start := s.timeProvider.Now()
	err := s.sender.Send(ctx, core.Email{
		To:                 msg.EmailTo,
		Subject:            msg.Subject,
		Body:               outbox.BuildEmailBody(msg),
		AttachmentPath:     msg.AttachmentPath,
		AttachmentFilename: msg.AttachmentFilename,
	})
	elapsed := s.timeProvider.Now().Sub(start)

	if err == nil {
		if markErr := s.repo.MarkCompleted(ctx, msg.ID); markErr != nil {
			// The mail went out but the row still says pending; the unique
			// delivery guarantee is at-least-once, the next pass retries.
			if s.logger != nil {
				s.logger.ErrorContext(ctx, "sent but failed to mark outbox message completed",
					"id", msg.ID, "error", markErr)
			}
			s.emitDelivery(msg, "mark_failed", elapsed, markErr)
			return
		}
		if s.logger != nil {
			s.logger.InfoContext(ctx, "outbox message delivered",
				"id", msg.ID, "job_id", msg.JobID, "type", msg.MessageType,
				"attempt", msg.AttemptCount+1)
		}
		s.emitDelivery(msg, metrics.ResultSuccess, elapsed, nil)
		return
	}

	s.recordFailure(ctx, msg, err)
	s.emitDelivery(msg, metrics.ResultError, elapsed, err)
}

func (s *OutboxService) recordFailure(ctx context.Context, msg *model.OutboxMessage, sendErr error) {
	attempts := msg.AttemptCount + 1
	params := core.OutboxFailureParams{
		MessageID:    msg.ID,
		ErrorMessage: sendErr.Error(),
	}

	maxAttempts := msg.MaxRetryAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.policy.MaxAttempts
	}

	if attempts >= maxAttempts {
		params.PermanentlyFailed = true
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "outbox message permanently failed",
				"id", msg.ID, "job_id", msg.JobID,
				"attempts", attempts, "error", sendErr)
		}
	} else {
		next := s.policy.NextRetryAt(s.timeProvider.Now(), attempts)
		params.NextRetryAt = &next
		if s.logger != nil {
			s.logger.WarnContext(ctx, "outbox delivery failed, retry scheduled",
				"id", msg.ID, "job_id", msg.JobID,
				"attempt", attempts, "next_retry_at", next, "error", sendErr)
		}
	}

	if err := s.repo.MarkFailed(ctx, params); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to record outbox delivery failure",
			"id", msg.ID, "error", err)
	}
}

// Stats returns counts of outbox messages in each state.
func (s *OutboxService) Stats(ctx context.Context) (*model.OutboxStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get outbox stats: %w", err)
	}
	return stats, nil
}

func (s *OutboxService) emitDelivery(
	msg *model.OutboxMessage,
	result string,
	elapsed time.Duration,
	err error,
) {
	if s.metrics == nil {
		return
	}

	tags := map[string]string{
		"message_type": string(msg.MessageType),
		"result":       result,
	}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("outbox.delivery", 1, tags)
	if elapsed > 0 {
		s.metrics.Timing("outbox.delivery_duration", elapsed, metrics.CloneTags(tags))
	}
}

func (s *OutboxService) logPassError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}

	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}

	s.logger.Error(label+" failed", "error", err)
}
