// Package data provides the PostgreSQL repositories for PDF jobs and the
// notification outbox.
package data

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/htpdf/htpdf/internal/domain/model"
)

// RepoConfig holds shared configuration options for the repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for PDF job management.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  id,
  owner_id,
  owner_email,
  html_content,
  orientation,
  paper_size,
  filename,
  status,
  file_path,
  error_message,
  attempt_count,
  created_at,
  completed_at,
  expires_at
`

type jobRowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	filePath, errorMessage sql.NullString
	completedAt, expiresAt sql.NullTime
}

func (d *jobRowData) scanInto(scanner jobRowScanner, job *model.Job) error {
	return scanner.Scan(
		&job.ID,
		&job.OwnerID,
		&job.OwnerEmail,
		&job.HTMLContent,
		&job.Orientation,
		&job.PaperSize,
		&job.Filename,
		&job.Status,
		&d.filePath,
		&d.errorMessage,
		&job.AttemptCount,
		&job.CreatedAt,
		&d.completedAt,
		&d.expiresAt,
	)
}

func (d *jobRowData) apply(job *model.Job) {
	job.FilePath = cloneNullableString(d.filePath)
	job.ErrorMessage = cloneNullableString(d.errorMessage)
	job.CompletedAt = cloneNullableTime(d.completedAt)
	job.ExpiresAt = cloneNullableTime(d.expiresAt)
}

func scanJobFromRow(scanner jobRowScanner) (*model.Job, error) {
	job := &model.Job{}
	var data jobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}

	data.apply(job)
	return job, nil
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
