// Package model defines the core data types and structures used throughout the htpdf job pipeline.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the current status of a PDF job.
type JobStatus string

// Orientation represents the page orientation of a rendered PDF.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type Orientation string

// PaperSize represents the paper size of a rendered PDF.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type PaperSize string

const (
	// JobStatusPending indicates a job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing indicates a job is currently being rendered.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusCompleted indicates a job has finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job has failed to complete.
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled indicates a job was cancelled before processing began.
	JobStatusCancelled JobStatus = "cancelled"

	// OrientationPortrait renders pages upright.
	OrientationPortrait Orientation = "portrait"
	// OrientationLandscape renders pages sideways.
	OrientationLandscape Orientation = "landscape"

	// PaperSizeA4 is ISO A4.
	PaperSizeA4 PaperSize = "a4"
	// PaperSizeA3 is ISO A3.
	PaperSizeA3 PaperSize = "a3"
	// PaperSizeLetter is US Letter.
	PaperSizeLetter PaperSize = "letter"
	// PaperSizeLegal is US Legal.
	PaperSizeLegal PaperSize = "legal"
)

// ErrNoJobsAvailable is returned when no jobs are available.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusProcessing || s == JobStatusCompleted ||
		s == JobStatusFailed || s == JobStatusCancelled
}

// Terminal returns true when no further transitions are possible from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Valid returns true if the Orientation is valid.
func (o Orientation) Valid() bool {
	return o == OrientationPortrait || o == OrientationLandscape
}

// UnmarshalText implements encoding.TextUnmarshaler for Orientation.
func (o *Orientation) UnmarshalText(text []byte) error {
	v := Orientation(strings.ToLower(strings.TrimSpace(string(text))))
	if v.Valid() {
		*o = v
		return nil
	}
	return fmt.Errorf("invalid Orientation: %q", v)
}

// Valid returns true if the PaperSize is valid.
func (p PaperSize) Valid() bool {
	return p == PaperSizeA4 || p == PaperSizeA3 || p == PaperSizeLetter || p == PaperSizeLegal
}

// UnmarshalText implements encoding.TextUnmarshaler for PaperSize.
func (p *PaperSize) UnmarshalText(text []byte) error {
	v := PaperSize(strings.ToLower(strings.TrimSpace(string(text))))
	if v.Valid() {
		*p = v
		return nil
	}
	return fmt.Errorf("invalid PaperSize: %q", v)
}

// Job represents a PDF generation job with all its metadata and status information.
type Job struct {
	ID           string      `json:"id"                      db:"id"`
	OwnerID      string      `json:"owner_id"                db:"owner_id"`
	OwnerEmail   string      `json:"owner_email"             db:"owner_email"`
	HTMLContent  string      `json:"html_content"            db:"html_content"`
	Orientation  Orientation `json:"orientation"             db:"orientation"`
	PaperSize    PaperSize   `json:"paper_size"              db:"paper_size"`
	Filename     string      `json:"filename"                db:"filename"`
	Status       JobStatus   `json:"status"                  db:"status"`
	FilePath     *string     `json:"file_path,omitempty"     db:"file_path"`
	ErrorMessage *string     `json:"error_message,omitempty" db:"error_message"`
	AttemptCount int         `json:"attempt_count"           db:"attempt_count"`
	CreatedAt    time.Time   `json:"created_at"              db:"created_at"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"  db:"completed_at"`
	ExpiresAt    *time.Time  `json:"expires_at,omitempty"    db:"expires_at"`
}

// CreateJobRequest represents a request to submit a new PDF job.
type CreateJobRequest struct {
	OwnerID     string      `json:"owner_id"`
	OwnerEmail  string      `json:"owner_email"`
	HTMLContent string      `json:"html_content"`
	Orientation Orientation `json:"orientation"`
	PaperSize   PaperSize   `json:"paper_size"`
	Filename    string      `json:"filename"`
}

// maxFilenameLength bounds the requested output filename.
const maxFilenameLength = 200

// Validate validates the CreateJobRequest fields. maxHTMLSize is the
// configured upper bound on the submitted HTML in bytes.
func (r *CreateJobRequest) Validate(maxHTMLSize int) error {
	if r.OwnerID == "" {
		return errors.New("owner id is required")
	}
	if r.OwnerEmail == "" || !strings.Contains(r.OwnerEmail, "@") {
		return errors.New("a valid owner email is required")
	}
	if strings.TrimSpace(r.HTMLContent) == "" {
		return errors.New("html content is required")
	}
	if len(r.HTMLContent) > maxHTMLSize {
		return fmt.Errorf("html content exceeds maximum size of %d bytes", maxHTMLSize)
	}
	if !r.Orientation.Valid() {
		return errors.New("invalid orientation")
	}
	if !r.PaperSize.Valid() {
		return errors.New("invalid paper size")
	}
	if r.Filename == "" {
		return errors.New("filename is required")
	}
	if len(r.Filename) > maxFilenameLength {
		return fmt.Errorf("filename exceeds maximum length of %d characters", maxFilenameLength)
	}
	return nil
}

// JobSummary is the listing view of a job: no HTML payload, plus flags
// derived from the row at read time.
type JobSummary struct {
	ID           string     `json:"id"`
	Filename     string     `json:"filename"`
	Status       JobStatus  `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	IsExpired    bool       `json:"is_expired"`
	CanDownload  bool       `json:"can_download"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}

// Summary derives the listing view of the job as of now.
func (j *Job) Summary(now time.Time) JobSummary {
	expired := j.ExpiresAt != nil && j.ExpiresAt.Before(now)
	canDownload := j.Status == JobStatusCompleted &&
		j.ExpiresAt != nil && j.ExpiresAt.After(now) &&
		j.FilePath != nil

	return JobSummary{
		ID:           j.ID,
		Filename:     j.Filename,
		Status:       j.Status,
		CreatedAt:    j.CreatedAt,
		CompletedAt:  j.CompletedAt,
		ExpiresAt:    j.ExpiresAt,
		IsExpired:    expired,
		CanDownload:  canDownload,
		ErrorMessage: j.ErrorMessage,
	}
}

// JobStats represents counts of jobs in each state.
type JobStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// JobStatusResponse represents the status information for a specific job.
type JobStatusResponse struct {
	Status       JobStatus  `json:"status"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}
