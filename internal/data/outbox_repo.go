package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/htpdf/htpdf/internal/core"
	"github.com/htpdf/htpdf/internal/domain/model"
)

// OutboxRepo provides database operations for outbox message management.
type OutboxRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewOutboxRepo creates a new OutboxRepo instance with the given database connection and configuration.
func NewOutboxRepo(db *sql.DB, cfg RepoConfig) *OutboxRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &OutboxRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const outboxColumns = `
  id,
  message_type,
  job_id,
  owner_id,
  email_to,
  subject,
  body,
  attachment_path,
  attachment_filename,
  status,
  attempt_count,
  max_retry_attempts,
  error_message,
  created_at,
  last_attempted_at,
  next_retry_at,
  processed_at
`

// insertOutboxMessageInPgxTx inserts a pending outbox message within a pgx
// transaction. It is shared with JobRepo so job transitions and their
// notifications commit together. A collision on the (job_id, message_type)
// unique index maps to ErrDuplicateOutboxMessage.
func insertOutboxMessageInPgxTx(ctx context.Context, tx pgx.Tx, msg *model.OutboxMessage, now time.Time) error {
	if msg == nil {
		return errors.New("outbox message is required")
	}

	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_messages(
			id, message_type, job_id, owner_id, email_to, subject, body,
			attachment_path, attachment_filename, status, attempt_count,
			max_retry_attempts, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,'pending',0,$10,$11)
	`,
		id,
		msg.MessageType,
		msg.JobID,
		msg.OwnerID,
		msg.EmailTo,
		msg.Subject,
		msg.Body,
		msg.AttachmentPath,
		msg.AttachmentFilename,
		msg.MaxRetryAttempts,
		now.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert outbox message for job %s type %s: %w",
				msg.JobID, msg.MessageType, ErrDuplicateOutboxMessage)
		}
		return fmt.Errorf("insert outbox message: %w", err)
	}

	msg.ID = id
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

type outboxRowScanner interface {
	Scan(dest ...any) error
}

func scanOutboxFromRow(scanner outboxRowScanner) (*model.OutboxMessage, error) {
	msg := &model.OutboxMessage{}
	var attachmentPath, attachmentFilename, errorMessage sql.NullString
	var lastAttemptedAt, nextRetryAt, processedAt sql.NullTime

	err := scanner.Scan(
		&msg.ID,
		&msg.MessageType,
		&msg.JobID,
		&msg.OwnerID,
		&msg.EmailTo,
		&msg.Subject,
		&msg.Body,
		&attachmentPath,
		&attachmentFilename,
		&msg.Status,
		&msg.AttemptCount,
		&msg.MaxRetryAttempts,
		&errorMessage,
		&msg.CreatedAt,
		&lastAttemptedAt,
		&nextRetryAt,
		&processedAt,
	)
	if err != nil {
		return nil, err
	}

	msg.AttachmentPath = cloneNullableString(attachmentPath)
	msg.AttachmentFilename = cloneNullableString(attachmentFilename)
	msg.ErrorMessage = cloneNullableString(errorMessage)
	msg.LastAttemptedAt = cloneNullableTime(lastAttemptedAt)
	msg.NextRetryAt = cloneNullableTime(nextRetryAt)
	msg.ProcessedAt = cloneNullableTime(processedAt)
	return msg, nil
}

// SelectDue returns up to limit pending messages whose next_retry_at is null
// or has passed, oldest first.
func (r *OutboxRepo) SelectDue(ctx context.Context, now time.Time, limit int) ([]*model.OutboxMessage, error) {
	if limit < 1 {
		limit = 1
	}

	query := `
		SELECT ` + outboxColumns + `
		FROM outbox_messages
		WHERE status = 'pending'
		  AND (next_retry_at IS NULL OR next_retry_at <= $1)
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.DB.QueryContext(ctx, query, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("select due outbox messages: %w", err)
	}
	defer rows.Close()

	var messages []*model.OutboxMessage
	for rows.Next() {
		msg, scanErr := scanOutboxFromRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan outbox message: %w", scanErr)
		}
		messages = append(messages, msg)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate outbox messages: %w", rowsErr)
	}
	return messages, nil
}

// MarkCompleted records a successful delivery.
func (r *OutboxRepo) MarkCompleted(ctx context.Context, id string) error {
	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE outbox_messages
		SET status = 'completed',
		    processed_at = $2
		WHERE id = $1 AND status = 'pending'
	`, id, currentTime)
	if err != nil {
		return fmt.Errorf("mark outbox message completed: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark completed rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrOutboxMessageNotFound
	}
	return nil
}

// MarkFailed records a failed delivery attempt: attempt_count++,
// error_message, last_attempted_at, and either the next retry schedule or
// the permanently_failed status.
func (r *OutboxRepo) MarkFailed(ctx context.Context, params core.OutboxFailureParams) error {
	currentTime := r.timeProvider.Now().UTC()

	status := model.OutboxStatusPending
	var nextRetryAt *time.Time
	if params.PermanentlyFailed {
		status = model.OutboxStatusPermanentlyFailed
	} else if params.NextRetryAt != nil {
		t := params.NextRetryAt.UTC()
		nextRetryAt = &t
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE outbox_messages
		SET attempt_count = attempt_count + 1,
		    error_message = $2,
		    last_attempted_at = $3,
		    next_retry_at = $4,
		    status = $5
		WHERE id = $1 AND status = 'pending'
	`, params.MessageID, params.ErrorMessage, currentTime, nextRetryAt, status)
	if err != nil {
		return fmt.Errorf("mark outbox message failed: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark failed rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrOutboxMessageNotFound
	}
	return nil
}

// GetByID returns the outbox message with the given id.
func (r *OutboxRepo) GetByID(ctx context.Context, id string) (*model.OutboxMessage, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox_messages WHERE id = $1`

	msg, err := scanOutboxFromRow(r.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOutboxMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get outbox message: %w", err)
	}
	return msg, nil
}

// Stats returns counts of outbox messages in each state.
func (r *OutboxRepo) Stats(ctx context.Context) (*model.OutboxStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'permanently_failed')
		FROM outbox_messages
	`

	stats := &model.OutboxStats{}
	err := r.DB.QueryRowContext(ctx, query).Scan(
		&stats.Pending,
		&stats.Completed,
		&stats.PermanentlyFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("outbox stats: %w", err)
	}
	return stats, nil
}
