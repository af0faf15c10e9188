package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/htpdf/htpdf/internal/core"
	"github.com/htpdf/htpdf/internal/data/pgxutil"
	"github.com/htpdf/htpdf/internal/domain/model"
)

// Create inserts a new pending job and returns the stored row.
func (r *JobRepo) Create(
	ctx context.Context,
	req *model.CreateJobRequest,
	expiresAt time.Time,
) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}

	query := `
      INSERT INTO pdf_jobs(id, owner_id, owner_email, html_content, orientation, paper_size, filename, status, created_at, expires_at)
      VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',$8,$9)
      RETURNING ` + jobColumns

	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, query,
		uuid.NewString(),
		req.OwnerID,
		req.OwnerEmail,
		req.HTMLContent,
		req.Orientation,
		req.PaperSize,
		req.Filename,
		now,
		expiresAt.UTC(),
	)

	job, err := scanJobFromRow(row)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// GetByID returns the job with the given id.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM pdf_jobs WHERE id = $1`

	job, err := scanJobFromRow(r.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// GetForOwner returns the job only when it belongs to ownerID.
func (r *JobRepo) GetForOwner(ctx context.Context, id, ownerID string) (*model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM pdf_jobs WHERE id = $1 AND owner_id = $2`

	job, err := scanJobFromRow(r.DB.QueryRowContext(ctx, query, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job for owner: %w", err)
	}
	return job, nil
}

// MarkProcessing transitions a job from pending to processing and increments
// attempt_count. The WHERE status guard makes concurrent pickups and races
// with cancellation resolve to a single winner.
func (r *JobRepo) MarkProcessing(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE pdf_jobs
		SET status = 'processing',
		    attempt_count = attempt_count + 1
		WHERE id = $1 AND status = 'pending'
	`

	res, err := r.DB.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("mark job processing: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark processing rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// CompleteWithOutbox marks the job completed and inserts its completion
// notification in a single transaction. A crash cannot leave a completed job
// without a pending notification.
func (r *JobRepo) CompleteWithOutbox(ctx context.Context, params core.CompleteJobParams) error {
	currentTime := r.timeProvider.Now().UTC()

	return pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, `
				UPDATE pdf_jobs
				SET status = 'completed',
				    file_path = $2,
				    completed_at = $3,
				    error_message = NULL
				WHERE id = $1 AND status = 'processing'
			`, params.JobID, params.FilePath, currentTime)
			if err != nil {
				return fmt.Errorf("complete job: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("complete job %s: %w", params.JobID, ErrJobNotFound)
			}

			return insertOutboxMessageInPgxTx(ctx, tx, params.Message, currentTime)
		},
	})
}

// FailWithOutbox marks the job failed and inserts its failure notification in
// a single transaction.
func (r *JobRepo) FailWithOutbox(ctx context.Context, params core.FailJobParams) error {
	currentTime := r.timeProvider.Now().UTC()

	return pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, `
				UPDATE pdf_jobs
				SET status = 'failed',
				    error_message = $2,
				    completed_at = $3
				WHERE id = $1 AND status = 'processing'
			`, params.JobID, params.ErrorMessage, currentTime)
			if err != nil {
				return fmt.Errorf("fail job: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("fail job %s: %w", params.JobID, ErrJobNotFound)
			}

			return insertOutboxMessageInPgxTx(ctx, tx, params.Message, currentTime)
		},
	})
}

// Cancel transitions a job to cancelled while it is still pending. The
// status guard loses the race against a processor that has already picked
// the job up, in which case Cancel returns false.
func (r *JobRepo) Cancel(ctx context.Context, id, ownerID string) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	query := `
		UPDATE pdf_jobs
		SET status = 'cancelled',
		    error_message = 'cancelled by user',
		    completed_at = $3
		WHERE id = $1 AND owner_id = $2 AND status = 'pending'
	`

	res, err := r.DB.ExecContext(ctx, query, id, ownerID, currentTime)
	if err != nil {
		return false, fmt.Errorf("cancel job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// CountActive returns the number of pending plus processing jobs for an owner.
func (r *JobRepo) CountActive(ctx context.Context, ownerID string) (int, error) {
	query := `
		SELECT COUNT(*) FROM pdf_jobs
		WHERE owner_id = $1 AND status IN ('pending', 'processing')
	`

	var count int
	if err := r.DB.QueryRowContext(ctx, query, ownerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active jobs: %w", err)
	}
	return count, nil
}

// ListForOwner returns one page of an owner's jobs, newest first, with the
// total count matching the filter. An empty Status lists all states.
func (r *JobRepo) ListForOwner(ctx context.Context, params core.ListJobsParams) ([]*model.Job, int, error) {
	where := `WHERE owner_id = $1`
	args := []any{params.OwnerID}
	if params.Status != "" {
		where += ` AND status = $2`
		args = append(args, params.Status)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM pdf_jobs ` + where
	if err := r.DB.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs for owner: %w", err)
	}

	query := fmt.Sprintf(`SELECT `+jobColumns+` FROM pdf_jobs %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, params.Limit, params.Offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs for owner: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, scanErr := scanJobFromRow(rows)
		if scanErr != nil {
			return nil, 0, fmt.Errorf("scan job for owner: %w", scanErr)
		}
		jobs = append(jobs, job)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, 0, fmt.Errorf("iterate jobs for owner: %w", rowsErr)
	}
	return jobs, total, nil
}

// ListPendingIDs returns the ids of all pending jobs in submission order.
func (r *JobRepo) ListPendingIDs(ctx context.Context) ([]string, error) {
	query := `SELECT id FROM pdf_jobs WHERE status = 'pending' ORDER BY created_at ASC`

	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if scanErr := rows.Scan(&id); scanErr != nil {
			return nil, fmt.Errorf("scan pending job id: %w", scanErr)
		}
		ids = append(ids, id)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate pending jobs: %w", rowsErr)
	}
	return ids, nil
}

// Stats returns counts of jobs in each state.
func (r *JobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'cancelled')
		FROM pdf_jobs
	`

	stats := &model.JobStats{}
	err := r.DB.QueryRowContext(ctx, query).Scan(
		&stats.Pending,
		&stats.Processing,
		&stats.Completed,
		&stats.Failed,
		&stats.Cancelled,
	)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	return stats, nil
}
