package core

import (
	"context"
	"time"

	"github.com/htpdf/htpdf/internal/domain/model"
)

// This file contains the interface definitions (ports in hexagonal
// architecture) between the service layer and the data layer plus the
// external collaborators. Service implementations should depend on these
// interfaces, not concrete implementations.

// CompleteJobParams groups parameters for JobRepository.CompleteWithOutbox
// to keep param count ≤3.
type CompleteJobParams struct {
	JobID    string
	FilePath string
	// Message is the pdf_completed notification inserted in the same
	// transaction as the job update.
	Message *model.OutboxMessage
}

// ListJobsParams filters and pages a per-owner job listing.
type ListJobsParams struct {
	OwnerID string
	// Status narrows the listing to one state. Empty means all states.
	Status model.JobStatus
	Limit  int
	Offset int
}

// FailJobParams groups parameters for JobRepository.FailWithOutbox.
type FailJobParams struct {
	JobID        string
	ErrorMessage string
	// Message is the pdf_failed notification inserted in the same
	// transaction as the job update.
	Message *model.OutboxMessage
}

// JobRepository defines the interface for PDF job data operations.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest, expiresAt time.Time) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	// GetForOwner returns the job only when it belongs to ownerID.
	GetForOwner(ctx context.Context, id, ownerID string) (*model.Job, error)

	// MarkProcessing transitions the job from pending to processing and
	// increments attempt_count. Returns false when the job is missing or
	// no longer pending.
	MarkProcessing(ctx context.Context, id string) (bool, error)

	// CompleteWithOutbox marks the job completed, records the stored file
	// path, and inserts the completion outbox message in one transaction.
	CompleteWithOutbox(ctx context.Context, params CompleteJobParams) error

	// FailWithOutbox marks the job failed, records the error, and inserts
	// the failure outbox message in one transaction.
	FailWithOutbox(ctx context.Context, params FailJobParams) error

	// Cancel transitions the job to cancelled only while it is pending.
	// Returns false when the job is missing, owned by someone else, or
	// already picked up.
	Cancel(ctx context.Context, id, ownerID string) (bool, error)

	// CountActive returns the number of pending plus processing jobs for
	// an owner. Used to enforce the per-owner concurrency quota.
	CountActive(ctx context.Context, ownerID string) (int, error)

	// ListForOwner returns one page of an owner's jobs, newest first,
	// along with the total number of rows matching the filter.
	ListForOwner(ctx context.Context, params ListJobsParams) ([]*model.Job, int, error)

	// ListPendingIDs returns ids of all pending jobs in submission order.
	// Used at startup to rebuild the in-process queue.
	ListPendingIDs(ctx context.Context) ([]string, error)

	// FindExpired returns up to limit jobs whose expires_at has passed and
	// whose file_path is still set.
	FindExpired(ctx context.Context, now time.Time, limit int) ([]*model.Job, error)

	// ClearFilePath clears file_path after the stored blob was deleted.
	// The row itself is retained.
	ClearFilePath(ctx context.Context, id string) error

	Stats(ctx context.Context) (*model.JobStats, error)
}

// OutboxFailureParams groups parameters for OutboxRepository.MarkFailed.
type OutboxFailureParams struct {
	MessageID    string
	ErrorMessage string
	// NextRetryAt schedules the next delivery attempt. Ignored when
	// PermanentlyFailed is set.
	NextRetryAt       *time.Time
	PermanentlyFailed bool
}

// OutboxRepository defines the interface for outbox message data operations.
type OutboxRepository interface {
	// SelectDue returns up to limit pending messages whose next_retry_at
	// is null or has passed, oldest first.
	SelectDue(ctx context.Context, now time.Time, limit int) ([]*model.OutboxMessage, error)

	// MarkCompleted records a successful delivery.
	MarkCompleted(ctx context.Context, id string) error

	// MarkFailed records a failed delivery attempt: attempt_count++,
	// error_message, last_attempted_at, and either next_retry_at or the
	// permanently_failed status.
	MarkFailed(ctx context.Context, params OutboxFailureParams) error

	GetByID(ctx context.Context, id string) (*model.OutboxMessage, error)
	Stats(ctx context.Context) (*model.OutboxStats, error)
}

// RenderRequest groups parameters for Renderer.Render.
type RenderRequest struct {
	HTML        string
	Orientation model.Orientation
	PaperSize   model.PaperSize
}

// Renderer converts HTML into PDF bytes.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) ([]byte, error)
}

// BlobStorage persists generated PDF files.
type BlobStorage interface {
	// Save writes data under a unique name derived from baseName and
	// returns the stored path.
	Save(ctx context.Context, baseName string, data []byte) (string, error)

	// Read returns the stored bytes, or nil with no error when the file
	// does not exist.
	Read(ctx context.Context, path string) ([]byte, error)

	// Delete removes the stored file. Returns false when deletion failed;
	// a missing file counts as a successful delete.
	Delete(ctx context.Context, path string) (bool, error)
}

// Email is an outbound email message.
type Email struct {
	To                 string
	Subject            string
	Body               string
	AttachmentPath     *string
	AttachmentFilename *string
}

// EmailSender delivers outbound email. A returned error means the delivery
// failed and should be retried by the outbox.
type EmailSender interface {
	Send(ctx context.Context, email Email) error
}

// PassLock serializes outbox passes across instances sharing one database.
type PassLock interface {
	// Acquire takes the lease. Returns false when another holder has it.
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}
