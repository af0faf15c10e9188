package service

import (
	"context"
	"sync"
	"time"

	"github.com/htpdf/htpdf/internal/core"
	"github.com/htpdf/htpdf/internal/data"
	"github.com/htpdf/htpdf/internal/domain/model"
)

// mockJobRepo is a function-field mock so each test overrides only the
// calls it cares about. Unset funcs return zero values.
type mockJobRepo struct {
	mu sync.Mutex

	createFn         func(ctx context.Context, req *model.CreateJobRequest, expiresAt time.Time) (*model.Job, error)
	getByIDFn        func(ctx context.Context, id string) (*model.Job, error)
	getForOwnerFn    func(ctx context.Context, id, ownerID string) (*model.Job, error)
	markProcessingFn func(ctx context.Context, id string) (bool, error)
	completeFn       func(ctx context.Context, params core.CompleteJobParams) error
	failFn           func(ctx context.Context, params core.FailJobParams) error
	cancelFn         func(ctx context.Context, id, ownerID string) (bool, error)
	countActiveFn    func(ctx context.Context, ownerID string) (int, error)
	listForOwnerFn   func(ctx context.Context, params core.ListJobsParams) ([]*model.Job, int, error)
	listPendingFn    func(ctx context.Context) ([]string, error)
	findExpiredFn    func(ctx context.Context, now time.Time, limit int) ([]*model.Job, error)
	clearFilePathFn  func(ctx context.Context, id string) error
	statsFn          func(ctx context.Context) (*model.JobStats, error)

	completeCalls      []core.CompleteJobParams
	failCalls          []core.FailJobParams
	clearFilePathCalls []string
	findExpiredCalls   int
}

var _ core.JobRepository = (*mockJobRepo)(nil)

func (m *mockJobRepo) Create(
	ctx context.Context,
	req *model.CreateJobRequest,
	expiresAt time.Time,
) (*model.Job, error) {
	if m.createFn != nil {
		return m.createFn(ctx, req, expiresAt)
	}
	return &model.Job{
		ID:          "job-1",
		OwnerID:     req.OwnerID,
		OwnerEmail:  req.OwnerEmail,
		HTMLContent: req.HTMLContent,
		Orientation: req.Orientation,
		PaperSize:   req.PaperSize,
		Filename:    req.Filename,
		Status:      model.JobStatusPending,
		ExpiresAt:   &expiresAt,
	}, nil
}

func (m *mockJobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, data.ErrJobNotFound
}

func (m *mockJobRepo) GetForOwner(ctx context.Context, id, ownerID string) (*model.Job, error) {
	if m.getForOwnerFn != nil {
		return m.getForOwnerFn(ctx, id, ownerID)
	}
	return nil, data.ErrJobNotFound
}

func (m *mockJobRepo) MarkProcessing(ctx context.Context, id string) (bool, error) {
	if m.markProcessingFn != nil {
		return m.markProcessingFn(ctx, id)
	}
	return true, nil
}

func (m *mockJobRepo) CompleteWithOutbox(ctx context.Context, params core.CompleteJobParams) error {
	m.mu.Lock()
	m.completeCalls = append(m.completeCalls, params)
	m.mu.Unlock()
	if m.completeFn != nil {
		return m.completeFn(ctx, params)
	}
	return nil
}

func (m *mockJobRepo) FailWithOutbox(ctx context.Context, params core.FailJobParams) error {
	m.mu.Lock()
	m.failCalls = append(m.failCalls, params)
	m.mu.Unlock()
	if m.failFn != nil {
		return m.failFn(ctx, params)
	}
	return nil
}

func (m *mockJobRepo) Cancel(ctx context.Context, id, ownerID string) (bool, error) {
	if m.cancelFn != nil {
		return m.cancelFn(ctx, id, ownerID)
	}
	return false, nil
}

func (m *mockJobRepo) CountActive(ctx context.Context, ownerID string) (int, error) {
	if m.countActiveFn != nil {
		return m.countActiveFn(ctx, ownerID)
	}
	return 0, nil
}

func (m *mockJobRepo) ListForOwner(
	ctx context.Context,
	params core.ListJobsParams,
) ([]*model.Job, int, error) {
	if m.listForOwnerFn != nil {
		return m.listForOwnerFn(ctx, params)
	}
	return nil, 0, nil
}

func (m *mockJobRepo) ListPendingIDs(ctx context.Context) ([]string, error) {
	if m.listPendingFn != nil {
		return m.listPendingFn(ctx)
	}
	return nil, nil
}

func (m *mockJobRepo) FindExpired(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*model.Job, error) {
	m.mu.Lock()
	m.findExpiredCalls++
	m.mu.Unlock()
	if m.findExpiredFn != nil {
		return m.findExpiredFn(ctx, now, limit)
	}
	return nil, nil
}

func (m *mockJobRepo) ClearFilePath(ctx context.Context, id string) error {
	m.mu.Lock()
	m.clearFilePathCalls = append(m.clearFilePathCalls, id)
	m.mu.Unlock()
	if m.clearFilePathFn != nil {
		return m.clearFilePathFn(ctx, id)
	}
	return nil
}

func (m *mockJobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx)
	}
	return &model.JobStats{}, nil
}

// mockOutboxRepo mocks core.OutboxRepository.
type mockOutboxRepo struct {
	mu sync.Mutex

	selectDueFn     func(ctx context.Context, now time.Time, limit int) ([]*model.OutboxMessage, error)
	markCompletedFn func(ctx context.Context, id string) error
	markFailedFn    func(ctx context.Context, params core.OutboxFailureParams) error

	completedIDs []string
	failedCalls  []core.OutboxFailureParams
}

var _ core.OutboxRepository = (*mockOutboxRepo)(nil)

func (m *mockOutboxRepo) SelectDue(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*model.OutboxMessage, error) {
	if m.selectDueFn != nil {
		return m.selectDueFn(ctx, now, limit)
	}
	return nil, nil
}

func (m *mockOutboxRepo) MarkCompleted(ctx context.Context, id string) error {
	m.mu.Lock()
	m.completedIDs = append(m.completedIDs, id)
	m.mu.Unlock()
	if m.markCompletedFn != nil {
		return m.markCompletedFn(ctx, id)
	}
	return nil
}

func (m *mockOutboxRepo) MarkFailed(ctx context.Context, params core.OutboxFailureParams) error {
	m.mu.Lock()
	m.failedCalls = append(m.failedCalls, params)
	m.mu.Unlock()
	if m.markFailedFn != nil {
		return m.markFailedFn(ctx, params)
	}
	return nil
}

func (m *mockOutboxRepo) GetByID(ctx context.Context, id string) (*model.OutboxMessage, error) {
	return nil, data.ErrOutboxMessageNotFound
}

func (m *mockOutboxRepo) Stats(ctx context.Context) (*model.OutboxStats, error) {
	return &model.OutboxStats{}, nil
}

// mockRenderer mocks core.Renderer.
type mockRenderer struct {
	renderFn func(ctx context.Context, req core.RenderRequest) ([]byte, error)
	calls    int
}

var _ core.Renderer = (*mockRenderer)(nil)

func (m *mockRenderer) Render(ctx context.Context, req core.RenderRequest) ([]byte, error) {
	m.calls++
	if m.renderFn != nil {
		return m.renderFn(ctx, req)
	}
	return []byte("%PDF-1.4"), nil
}

// mockStorage mocks core.BlobStorage.
type mockStorage struct {
	mu sync.Mutex

	saveFn   func(ctx context.Context, baseName string, data []byte) (string, error)
	readFn   func(ctx context.Context, path string) ([]byte, error)
	deleteFn func(ctx context.Context, path string) (bool, error)

	deletedPaths []string
}

var _ core.BlobStorage = (*mockStorage)(nil)

func (m *mockStorage) Save(ctx context.Context, baseName string, data []byte) (string, error) {
	if m.saveFn != nil {
		return m.saveFn(ctx, baseName, data)
	}
	return "/tmp/pdfs/" + baseName, nil
}

func (m *mockStorage) Read(ctx context.Context, path string) ([]byte, error) {
	if m.readFn != nil {
		return m.readFn(ctx, path)
	}
	return nil, nil
}

func (m *mockStorage) Delete(ctx context.Context, path string) (bool, error) {
	m.mu.Lock()
	m.deletedPaths = append(m.deletedPaths, path)
	m.mu.Unlock()
	if m.deleteFn != nil {
		return m.deleteFn(ctx, path)
	}
	return true, nil
}

// mockSender mocks core.EmailSender.
type mockSender struct {
	mu sync.Mutex

	sendFn func(ctx context.Context, email core.Email) error
	sent   []core.Email
}

var _ core.EmailSender = (*mockSender)(nil)

func (m *mockSender) Send(ctx context.Context, email core.Email) error {
	m.mu.Lock()
	m.sent = append(m.sent, email)
	m.mu.Unlock()
	if m.sendFn != nil {
		return m.sendFn(ctx, email)
	}
	return nil
}

// mockLock mocks core.PassLock.
type mockLock struct {
	acquireFn func(ctx context.Context, ttl time.Duration) (bool, error)

	acquireCalls int
	releaseCalls int
}

var _ core.PassLock = (*mockLock)(nil)

func (m *mockLock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	m.acquireCalls++
	if m.acquireFn != nil {
		return m.acquireFn(ctx, ttl)
	}
	return true, nil
}

func (m *mockLock) Release(ctx context.Context) error {
	m.releaseCalls++
	return nil
}
