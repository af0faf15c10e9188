package data

import (
	"context"
	"fmt"
	"time"

	"github.com/htpdf/htpdf/internal/domain/model"
)

// FindExpired returns up to limit jobs whose retention window has passed and
// whose file is still stored, oldest expiry first. Batching prevents long
// locks and I/O spikes on large tables.
func (r *JobRepo) FindExpired(ctx context.Context, now time.Time, limit int) ([]*model.Job, error) {
	if limit < 1 {
		limit = 1
	}

	query := `
		SELECT ` + jobColumns + `
		FROM pdf_jobs
		WHERE expires_at IS NOT NULL
		  AND expires_at < $1
		  AND file_path IS NOT NULL
		ORDER BY expires_at ASC
		LIMIT $2
	`

	rows, err := r.DB.QueryContext(ctx, query, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("find expired jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, scanErr := scanJobFromRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan expired job: %w", scanErr)
		}
		jobs = append(jobs, job)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate expired jobs: %w", rowsErr)
	}
	return jobs, nil
}

// ClearFilePath clears file_path after the stored blob was deleted. The row
// itself is retained so status and history stay queryable.
func (r *JobRepo) ClearFilePath(ctx context.Context, id string) error {
	if _, err := r.DB.ExecContext(ctx, `UPDATE pdf_jobs SET file_path = NULL WHERE id = $1`, id); err != nil {
		return fmt.Errorf("clear file path: %w", err)
	}
	return nil
}
