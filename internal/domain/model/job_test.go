package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMaxHTMLSize = 2097152

func validRequest() CreateJobRequest {
	return CreateJobRequest{
		OwnerID:     "owner-1",
		OwnerEmail:  "owner@example.com",
		HTMLContent: "<p>hello</p>",
		Orientation: OrientationPortrait,
		PaperSize:   PaperSizeA4,
		Filename:    "report.pdf",
	}
}

func TestJobStatus_Valid(t *testing.T) {
	assert.True(t, JobStatusPending.Valid())
	assert.True(t, JobStatusProcessing.Valid())
	assert.True(t, JobStatusCompleted.Valid())
	assert.True(t, JobStatusFailed.Valid())
	assert.True(t, JobStatusCancelled.Valid())
	assert.False(t, JobStatus("unknown").Valid())
}

func TestJobStatus_Terminal(t *testing.T) {
	assert.False(t, JobStatusPending.Terminal())
	assert.False(t, JobStatusProcessing.Terminal())
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
	assert.True(t, JobStatusCancelled.Terminal())
}

func TestOrientation_UnmarshalText(t *testing.T) {
	var o Orientation
	err := o.UnmarshalText([]byte(" Landscape "))
	require.NoError(t, err)
	assert.Equal(t, OrientationLandscape, o)

	err = o.UnmarshalText([]byte("diagonal"))
	assert.Error(t, err)
}

func TestPaperSize_UnmarshalText(t *testing.T) {
	var p PaperSize
	err := p.UnmarshalText([]byte("Letter"))
	require.NoError(t, err)
	assert.Equal(t, PaperSizeLetter, p)

	err = p.UnmarshalText([]byte("a5"))
	assert.Error(t, err)
}

func TestCreateJobRequest_Validate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*CreateJobRequest)
		errorMsg string
	}{
		{
			name:   "valid request",
			mutate: func(r *CreateJobRequest) {},
		},
		{
			name:     "missing owner id",
			mutate:   func(r *CreateJobRequest) { r.OwnerID = "" },
			errorMsg: "owner id is required",
		},
		{
			name:     "missing owner email",
			mutate:   func(r *CreateJobRequest) { r.OwnerEmail = "" },
			errorMsg: "a valid owner email is required",
		},
		{
			name:     "malformed owner email",
			mutate:   func(r *CreateJobRequest) { r.OwnerEmail = "not-an-email" },
			errorMsg: "a valid owner email is required",
		},
		{
			name:     "empty html",
			mutate:   func(r *CreateJobRequest) { r.HTMLContent = "   " },
			errorMsg: "html content is required",
		},
		{
			name:     "oversized html",
			mutate:   func(r *CreateJobRequest) { r.HTMLContent = strings.Repeat("a", testMaxHTMLSize+1) },
			errorMsg: "exceeds maximum size",
		},
		{
			name:     "invalid orientation",
			mutate:   func(r *CreateJobRequest) { r.Orientation = "diagonal" },
			errorMsg: "invalid orientation",
		},
		{
			name:     "invalid paper size",
			mutate:   func(r *CreateJobRequest) { r.PaperSize = "a5" },
			errorMsg: "invalid paper size",
		},
		{
			name:     "missing filename",
			mutate:   func(r *CreateJobRequest) { r.Filename = "" },
			errorMsg: "filename is required",
		},
		{
			name:     "overlong filename",
			mutate:   func(r *CreateJobRequest) { r.Filename = strings.Repeat("x", maxFilenameLength+1) },
			errorMsg: "exceeds maximum length",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			err := req.Validate(testMaxHTMLSize)
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestOutboxStatus_Valid(t *testing.T) {
	assert.True(t, OutboxStatusPending.Valid())
	assert.True(t, OutboxStatusCompleted.Valid())
	assert.True(t, OutboxStatusPermanentlyFailed.Valid())
	assert.False(t, OutboxStatus("retrying").Valid())
}

func TestJob_Summary(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)
	filePath := "report_x.pdf"

	t.Run("completed with stored file is downloadable", func(t *testing.T) {
		job := Job{
			ID:        "job-1",
			Status:    JobStatusCompleted,
			FilePath:  &filePath,
			ExpiresAt: &future,
		}
		s := job.Summary(now)
		assert.True(t, s.CanDownload)
		assert.False(t, s.IsExpired)
	})

	t.Run("swept file is no longer downloadable", func(t *testing.T) {
		job := Job{
			ID:        "job-2",
			Status:    JobStatusCompleted,
			ExpiresAt: &future,
		}
		assert.False(t, job.Summary(now).CanDownload)
	})

	t.Run("past expiry marks expired and blocks download", func(t *testing.T) {
		job := Job{
			ID:        "job-3",
			Status:    JobStatusCompleted,
			FilePath:  &filePath,
			ExpiresAt: &past,
		}
		s := job.Summary(now)
		assert.True(t, s.IsExpired)
		assert.False(t, s.CanDownload)
	})

	t.Run("pending job is neither", func(t *testing.T) {
		job := Job{ID: "job-4", Status: JobStatusPending}
		s := job.Summary(now)
		assert.False(t, s.IsExpired)
		assert.False(t, s.CanDownload)
	})
}
