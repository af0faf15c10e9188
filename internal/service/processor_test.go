package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/htpdf/htpdf/config"
	"github.com/htpdf/htpdf/internal/core"
	"github.com/htpdf/htpdf/internal/data"
	"github.com/htpdf/htpdf/internal/domain/model"
	"github.com/htpdf/htpdf/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingJob() *model.Job {
	return &model.Job{
		ID:          "job-1",
		OwnerID:     "owner-1",
		OwnerEmail:  "owner@example.com",
		HTMLContent: "<p>hello</p>",
		Orientation: model.OrientationLandscape,
		PaperSize:   model.PaperSizeLetter,
		Filename:    "report.pdf",
		Status:      model.JobStatusPending,
	}
}

func newTestProcessor(
	t *testing.T,
	repo *mockJobRepo,
	renderer *mockRenderer,
	storage *mockStorage,
) *ProcessorService {
	t.Helper()

	svc, err := NewProcessorService(ProcessorServiceOptions{
		Repo:         repo,
		Renderer:     renderer,
		Storage:      storage,
		Worker:       config.WorkerConfig{RenderTimeout: time.Minute},
		Outbox:       config.OutboxConfig{MaxRetryAttempts: 3},
		TimeProvider: data.NewFixedTimeProvider(testutil.TestTime()),
	})
	require.NoError(t, err)
	return svc
}

func TestNewProcessorService(t *testing.T) {
	t.Run("returns error when renderer is nil", func(t *testing.T) {
		_, err := NewProcessorService(ProcessorServiceOptions{
			Repo:    &mockJobRepo{},
			Storage: &mockStorage{},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Renderer is required")
	})
}

func TestProcessorService_Process(t *testing.T) {
	t.Run("completes the job with a pdf_completed message", func(t *testing.T) {
		repo := &mockJobRepo{
			getByIDFn: func(ctx context.Context, id string) (*model.Job, error) {
				return pendingJob(), nil
			},
		}
		renderer := &mockRenderer{
			renderFn: func(ctx context.Context, req core.RenderRequest) ([]byte, error) {
				assert.Equal(t, "<p>hello</p>", req.HTML)
				assert.Equal(t, model.OrientationLandscape, req.Orientation)
				assert.Equal(t, model.PaperSizeLetter, req.PaperSize)
				return []byte("%PDF-1.4"), nil
			},
		}
		storage := &mockStorage{
			saveFn: func(ctx context.Context, baseName string, content []byte) (string, error) {
				assert.Equal(t, "report.pdf", baseName)
				return "/tmp/pdfs/report_1.pdf", nil
			},
		}
		svc := newTestProcessor(t, repo, renderer, storage)

		err := svc.Process(context.Background(), "job-1")

		require.NoError(t, err)
		require.Len(t, repo.completeCalls, 1)
		require.Empty(t, repo.failCalls)

		params := repo.completeCalls[0]
		assert.Equal(t, "job-1", params.JobID)
		assert.Equal(t, "/tmp/pdfs/report_1.pdf", params.FilePath)

		msg := params.Message
		require.NotNil(t, msg)
		assert.Equal(t, model.MessageTypePdfCompleted, msg.MessageType)
		assert.Equal(t, "owner@example.com", msg.EmailTo)
		assert.Equal(t, "Your PDF Is Ready!", msg.Subject)
		assert.Contains(t, msg.Body, "report.pdf")
		require.NotNil(t, msg.AttachmentPath)
		assert.Equal(t, "/tmp/pdfs/report_1.pdf", *msg.AttachmentPath)
		require.NotNil(t, msg.AttachmentFilename)
		assert.Equal(t, "report.pdf", *msg.AttachmentFilename)
		assert.Equal(t, 3, msg.MaxRetryAttempts)
	})

	t.Run("render failure records a pdf_failed message", func(t *testing.T) {
		repo := &mockJobRepo{
			getByIDFn: func(ctx context.Context, id string) (*model.Job, error) {
				return pendingJob(), nil
			},
		}
		renderer := &mockRenderer{
			renderFn: func(ctx context.Context, req core.RenderRequest) ([]byte, error) {
				return nil, errors.New("engine crashed")
			},
		}
		svc := newTestProcessor(t, repo, renderer, &mockStorage{})

		err := svc.Process(context.Background(), "job-1")

		require.NoError(t, err)
		require.Empty(t, repo.completeCalls)
		require.Len(t, repo.failCalls, 1)

		params := repo.failCalls[0]
		assert.Equal(t, "job-1", params.JobID)
		assert.Contains(t, params.ErrorMessage, "engine crashed")

		msg := params.Message
		require.NotNil(t, msg)
		assert.Equal(t, model.MessageTypePdfFailed, msg.MessageType)
		assert.Equal(t, "PDF Generation Failed", msg.Subject)
		assert.Contains(t, msg.Body, "engine crashed")
		assert.Nil(t, msg.AttachmentPath)
	})

	t.Run("storage failure records a pdf_failed message", func(t *testing.T) {
		repo := &mockJobRepo{
			getByIDFn: func(ctx context.Context, id string) (*model.Job, error) {
				return pendingJob(), nil
			},
		}
		storage := &mockStorage{
			saveFn: func(ctx context.Context, baseName string, content []byte) (string, error) {
				return "", errors.New("disk full")
			},
		}
		svc := newTestProcessor(t, repo, &mockRenderer{}, storage)

		err := svc.Process(context.Background(), "job-1")

		require.NoError(t, err)
		require.Empty(t, repo.completeCalls)
		require.Len(t, repo.failCalls, 1)
		assert.Contains(t, repo.failCalls[0].ErrorMessage, "disk full")
	})

	t.Run("drops silently when the job is no longer pending", func(t *testing.T) {
		repo := &mockJobRepo{
			getByIDFn: func(ctx context.Context, id string) (*model.Job, error) {
				job := pendingJob()
				job.Status = model.JobStatusCancelled
				return job, nil
			},
			markProcessingFn: func(ctx context.Context, id string) (bool, error) {
				return false, nil
			},
		}
		renderer := &mockRenderer{}
		svc := newTestProcessor(t, repo, renderer, &mockStorage{})

		err := svc.Process(context.Background(), "job-1")

		require.NoError(t, err)
		assert.Zero(t, renderer.calls)
		assert.Empty(t, repo.completeCalls)
		assert.Empty(t, repo.failCalls)
	})

	t.Run("drops silently when the job row is gone", func(t *testing.T) {
		renderer := &mockRenderer{}
		svc := newTestProcessor(t, &mockJobRepo{}, renderer, &mockStorage{})

		err := svc.Process(context.Background(), "missing")

		require.NoError(t, err)
		assert.Zero(t, renderer.calls)
	})

	t.Run("returns infra errors so the worker can surface them", func(t *testing.T) {
		repo := &mockJobRepo{
			getByIDFn: func(ctx context.Context, id string) (*model.Job, error) {
				return nil, errors.New("connection refused")
			},
		}
		svc := newTestProcessor(t, repo, &mockRenderer{}, &mockStorage{})

		err := svc.Process(context.Background(), "job-1")

		require.Error(t, err)
	})

	t.Run("removes the orphaned file when completion cannot be recorded", func(t *testing.T) {
		repo := &mockJobRepo{
			getByIDFn: func(ctx context.Context, id string) (*model.Job, error) {
				return pendingJob(), nil
			},
			completeFn: func(ctx context.Context, params core.CompleteJobParams) error {
				return errors.New("connection reset")
			},
		}
		storage := &mockStorage{
			saveFn: func(ctx context.Context, baseName string, content []byte) (string, error) {
				return "/tmp/pdfs/report_1.pdf", nil
			},
		}
		svc := newTestProcessor(t, repo, &mockRenderer{}, storage)

		err := svc.Process(context.Background(), "job-1")

		require.Error(t, err)
		assert.Equal(t, []string{"/tmp/pdfs/report_1.pdf"}, storage.deletedPaths)
	})
}
