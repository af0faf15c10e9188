package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/htpdf/htpdf/config"
	"github.com/htpdf/htpdf/internal/core"
	"github.com/htpdf/htpdf/internal/data"
	"github.com/htpdf/htpdf/internal/domain/model"
	"github.com/htpdf/htpdf/internal/domain/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubJobRepo backs the runner test with an in-memory job table.
type stubJobRepo struct {
	mu         sync.Mutex
	jobs       map[string]*model.Job
	pendingIDs []string
	completed  []string
	failed     []string
}

var _ core.JobRepository = (*stubJobRepo)(nil)

func newStubJobRepo(jobs ...*model.Job) *stubJobRepo {
	r := &stubJobRepo{jobs: make(map[string]*model.Job)}
	for _, j := range jobs {
		r.jobs[j.ID] = j
		if j.Status == model.JobStatusPending {
			r.pendingIDs = append(r.pendingIDs, j.ID)
		}
	}
	return r
}

func (r *stubJobRepo) Create(
	ctx context.Context,
	req *model.CreateJobRequest,
	expiresAt time.Time,
) (*model.Job, error) {
	return nil, nil
}

func (r *stubJobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, data.ErrJobNotFound
	}
	clone := *job
	return &clone, nil
}

func (r *stubJobRepo) GetForOwner(ctx context.Context, id, ownerID string) (*model.Job, error) {
	return r.GetByID(ctx, id)
}

func (r *stubJobRepo) MarkProcessing(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status != model.JobStatusPending {
		return false, nil
	}
	job.Status = model.JobStatusProcessing
	job.AttemptCount++
	return true, nil
}

func (r *stubJobRepo) CompleteWithOutbox(ctx context.Context, params core.CompleteJobParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[params.JobID].Status = model.JobStatusCompleted
	r.completed = append(r.completed, params.JobID)
	return nil
}

func (r *stubJobRepo) FailWithOutbox(ctx context.Context, params core.FailJobParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[params.JobID].Status = model.JobStatusFailed
	r.failed = append(r.failed, params.JobID)
	return nil
}

func (r *stubJobRepo) Cancel(ctx context.Context, id, ownerID string) (bool, error) {
	return false, nil
}

func (r *stubJobRepo) CountActive(ctx context.Context, ownerID string) (int, error) {
	return 0, nil
}

func (r *stubJobRepo) ListForOwner(
	ctx context.Context,
	params core.ListJobsParams,
) ([]*model.Job, int, error) {
	return nil, 0, nil
}

func (r *stubJobRepo) ListPendingIDs(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.pendingIDs...), nil
}

func (r *stubJobRepo) FindExpired(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*model.Job, error) {
	return nil, nil
}

func (r *stubJobRepo) ClearFilePath(ctx context.Context, id string) error { return nil }

func (r *stubJobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	return &model.JobStats{}, nil
}

func (r *stubJobRepo) completedJobs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.completed...)
}

type stubRenderer struct{}

func (stubRenderer) Render(ctx context.Context, req core.RenderRequest) ([]byte, error) {
	return []byte("%PDF-1.4"), nil
}

type stubStorage struct{}

func (stubStorage) Save(ctx context.Context, baseName string, content []byte) (string, error) {
	return "stored/" + baseName, nil
}

func (stubStorage) Read(ctx context.Context, path string) ([]byte, error) { return nil, nil }

func (stubStorage) Delete(ctx context.Context, path string) (bool, error) { return true, nil }

func testJob(id string) *model.Job {
	return &model.Job{
		ID:          id,
		OwnerID:     "owner-1",
		OwnerEmail:  "owner@example.com",
		HTMLContent: "<p>hi</p>",
		Orientation: model.OrientationPortrait,
		PaperSize:   model.PaperSizeA4,
		Filename:    "doc.pdf",
		Status:      model.JobStatusPending,
	}
}

func newTestRunner(t *testing.T, repo core.JobRepository, q *queue.Queue) *Runner {
	t.Helper()

	runner, err := NewRunner(RunnerOptions{
		Repo:     repo,
		Queue:    q,
		Renderer: stubRenderer{},
		Storage:  stubStorage{},
		Worker:   config.WorkerConfig{Concurrency: 2, RenderTimeout: time.Second},
		Outbox:   config.OutboxConfig{MaxRetryAttempts: 3},
	})
	require.NoError(t, err)
	return runner
}

func TestNewRunner(t *testing.T) {
	t.Run("requires a repo or database", func(t *testing.T) {
		_, err := NewRunner(RunnerOptions{
			Queue:    queue.New(),
			Renderer: stubRenderer{},
			Storage:  stubStorage{},
		})
		require.Error(t, err)
	})
}

func TestRunner_Run(t *testing.T) {
	t.Run("requeues the persisted backlog and processes it", func(t *testing.T) {
		repo := newStubJobRepo(testJob("job-1"), testJob("job-2"))
		q := queue.New()
		runner := newTestRunner(t, repo, q)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- runner.Run(ctx)
		}()

		require.Eventually(t, func() bool {
			return len(repo.completedJobs()) == 2
		}, 2*time.Second, 10*time.Millisecond)

		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("Run did not stop after context cancellation")
		}

		assert.ElementsMatch(t, []string{"job-1", "job-2"}, repo.completedJobs())
	})

	t.Run("processes jobs enqueued while running", func(t *testing.T) {
		repo := newStubJobRepo()
		q := queue.New()
		runner := newTestRunner(t, repo, q)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		done := make(chan error, 1)
		go func() {
			done <- runner.Run(ctx)
		}()

		repo.mu.Lock()
		repo.jobs["job-3"] = testJob("job-3")
		repo.mu.Unlock()
		q.Enqueue("job-3")

		require.Eventually(t, func() bool {
			return len(repo.completedJobs()) == 1
		}, 2*time.Second, 10*time.Millisecond)

		cancel()
		require.NoError(t, <-done)
	})
}
