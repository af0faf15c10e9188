package main

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/htpdf/htpdf/internal/domain/model"
)

func captureStdout(t *testing.T, fn func() error) string {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)

	defer func() {
		os.Stdout = oldStdout
	}()

	os.Stdout = w
	require.NoError(t, fn())
	require.NoError(t, w.Close())
	os.Stdout = oldStdout

	output, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	return string(output)
}

func TestPrintJobStatusCompleted(t *testing.T) {
	completedAt := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	out := captureStdout(t, func() error {
		return printJobStatus("job-123", &model.JobStatusResponse{
			Status:      model.JobStatusCompleted,
			CompletedAt: &completedAt,
		})
	})

	require.Contains(t, out, "Job:    job-123")
	require.Contains(t, out, "Status: completed")
	require.Contains(t, out, "Completed at: 2025-01-01T12:00:00Z")
	require.NotContains(t, out, "Error:")
}

func TestPrintJobStatusFailedIncludesError(t *testing.T) {
	errMsg := "render timed out"
	out := captureStdout(t, func() error {
		return printJobStatus("job-9", &model.JobStatusResponse{
			Status:       model.JobStatusFailed,
			ErrorMessage: &errMsg,
		})
	})

	require.Contains(t, out, "Status: failed")
	require.Contains(t, out, "Error: render timed out")
}

func TestPrintStatsListsAllStates(t *testing.T) {
	out := captureStdout(t, func() error {
		return printStats(
			&model.JobStats{Pending: 2, Completed: 5, Cancelled: 1},
			&model.OutboxStats{Pending: 1, PermanentlyFailed: 3},
		)
	})

	require.Contains(t, out, "SECTION")
	require.Contains(t, out, "processing")
	require.Contains(t, out, "permanently_failed")
}

func TestParseSubmitJobFlagsRequiresOwnerEmailAndFile(t *testing.T) {
	_, err := parseSubmitJobFlags([]string{"-owner", "u1"})
	require.Error(t, err)

	opts, err := parseSubmitJobFlags([]string{
		"-owner", "u1",
		"-email", "u1@example.com",
		"-file", "report.html",
		"-orientation", "landscape",
	})
	require.NoError(t, err)
	require.Equal(t, "landscape", opts.Orientation)
	require.Equal(t, "a4", opts.PaperSize)
	require.Equal(t, "document.pdf", opts.Filename)
}

func TestParseJobRefFlagsRequiresIDAndOwner(t *testing.T) {
	_, err := parseJobRefFlags("job-status", []string{"-id", "job-1"})
	require.Error(t, err)

	opts, err := parseJobRefFlags("job-status", []string{"-id", "job-1", "-owner", "u1"})
	require.NoError(t, err)
	require.Equal(t, "job-1", opts.ID)
	require.Equal(t, "u1", opts.OwnerID)
}

func TestPrintJobListShowsExpiryAndTotal(t *testing.T) {
	created := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	expires := time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC)
	out := captureStdout(t, func() error {
		return printJobList([]model.JobSummary{
			{
				ID:          "job-1",
				Filename:    "report.pdf",
				Status:      model.JobStatusCompleted,
				CreatedAt:   created,
				ExpiresAt:   &expires,
				CanDownload: true,
			},
			{
				ID:        "job-2",
				Filename:  "old.pdf",
				Status:    model.JobStatusCompleted,
				CreatedAt: created,
				ExpiresAt: &created,
				IsExpired: true,
			},
		}, 5)
	})

	require.Contains(t, out, "job-1")
	require.Contains(t, out, "2025-01-08T10:00:00Z")
	require.Contains(t, out, "(expired)")
	require.Contains(t, out, "showing 2 of 5 jobs")
}

func TestParseListJobsFlagsRequiresOwner(t *testing.T) {
	_, err := parseListJobsFlags([]string{"-status", "completed"})
	require.Error(t, err)

	opts, err := parseListJobsFlags([]string{"-owner", "u1", "-limit", "50"})
	require.NoError(t, err)
	require.Equal(t, "u1", opts.OwnerID)
	require.Equal(t, 50, opts.Limit)
	require.Zero(t, opts.Offset)
}
