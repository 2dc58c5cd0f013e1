package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/wanderplan/planner-api/internal/core"
	"github.com/wanderplan/planner-api/internal/domain/model"
)

// jobRepoMock is a hand-rolled core.JobRepository. Behavior is overridden per
// test via the function fields; every state-changing call is recorded.
type jobRepoMock struct {
	mu sync.Mutex

	createFn     func(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	getByIDFn    func(ctx context.Context, id string) (*model.Job, error)
	findActiveFn func(ctx context.Context, inputRef string) (*model.Job, error)
	markFn       func(ctx context.Context, id string) (bool, error)
	resetFn      func(ctx context.Context, id string) (bool, error)
	failFn       func(ctx context.Context, params core.FailJobParams) (bool, error)
	failProcFn   func(ctx context.Context, params core.FailJobParams) (bool, error)
	statsFn      func(ctx context.Context, kind model.JobKind) (*model.JobStats, error)

	markCalls  []string
	resetCalls []string
	failCalls  []core.FailJobParams
}

var _ core.JobRepository = (*jobRepoMock)(nil)

func (m *jobRepoMock) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if m.createFn != nil {
		return m.createFn(ctx, req)
	}
	return &model.Job{
		ID:       "job-1",
		Kind:     req.Kind,
		Status:   model.JobStatusPending,
		OwnerID:  req.OwnerID,
		InputRef: req.InputRef,
	}, nil
}

func (m *jobRepoMock) GetByID(ctx context.Context, id string) (*model.Job, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *jobRepoMock) FindActiveByInputRef(ctx context.Context, inputRef string) (*model.Job, error) {
	if m.findActiveFn != nil {
		return m.findActiveFn(ctx, inputRef)
	}
	return nil, nil
}

func (m *jobRepoMock) MarkProcessing(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	m.markCalls = append(m.markCalls, id)
	m.mu.Unlock()
	if m.markFn != nil {
		return m.markFn(ctx, id)
	}
	return true, nil
}

func (m *jobRepoMock) ResetForRetry(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	m.resetCalls = append(m.resetCalls, id)
	m.mu.Unlock()
	if m.resetFn != nil {
		return m.resetFn(ctx, id)
	}
	return true, nil
}

func (m *jobRepoMock) FailFromProcessing(ctx context.Context, params core.FailJobParams) (bool, error) {
	m.mu.Lock()
	m.failCalls = append(m.failCalls, params)
	m.mu.Unlock()
	if m.failProcFn != nil {
		return m.failProcFn(ctx, params)
	}
	return true, nil
}

func (m *jobRepoMock) FailNonTerminal(ctx context.Context, params core.FailJobParams) (bool, error) {
	m.mu.Lock()
	m.failCalls = append(m.failCalls, params)
	m.mu.Unlock()
	if m.failFn != nil {
		return m.failFn(ctx, params)
	}
	return true, nil
}

func (m *jobRepoMock) Stats(ctx context.Context, kind model.JobKind) (*model.JobStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx, kind)
	}
	return &model.JobStats{}, nil
}

// publisherMock records published dispatch tasks.
type publisherMock struct {
	mu        sync.Mutex
	err       error
	published []model.DispatchTask
}

var _ core.TaskPublisher = (*publisherMock)(nil)

func (m *publisherMock) Publish(_ context.Context, task model.DispatchTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, task)
	return nil
}

// plannerMock records planner submissions.
type plannerMock struct {
	mu        sync.Mutex
	err       error
	submitted []model.PlannerRequest
}

var _ core.PlannerClient = (*plannerMock)(nil)

func (m *plannerMock) Submit(_ context.Context, req model.PlannerRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.submitted = append(m.submitted, req)
	return nil
}

// notifierMock records terminal notifications.
type notifierMock struct {
	mu    sync.Mutex
	err   error
	notes []model.JobNotification
}

var _ core.TerminalNotifier = (*notifierMock)(nil)

func (m *notifierMock) PublishTerminal(_ context.Context, n model.JobNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes = append(m.notes, n)
	return m.err
}

// strategyStub is a configurable JobKindStrategy.
type strategyStub struct {
	kind        model.JobKind
	validateErr error
	payload     json.RawMessage
	payloadErr  error
	applyRef    string
	applyErr    error
	resultVal   any
	resultErr   error

	applyCalls []json.RawMessage
}

var _ JobKindStrategy = (*strategyStub)(nil)

func (s *strategyStub) Kind() model.JobKind { return s.kind }

func (s *strategyStub) ValidateInput(context.Context, string, string) error {
	return s.validateErr
}

func (s *strategyStub) BuildPayload(context.Context, *model.Job) (json.RawMessage, error) {
	return s.payload, s.payloadErr
}

func (s *strategyStub) ApplyResult(_ context.Context, _ *model.Job, payload json.RawMessage) (string, error) {
	s.applyCalls = append(s.applyCalls, payload)
	return s.applyRef, s.applyErr
}

func (s *strategyStub) Result(context.Context, *model.Job) (any, error) {
	return s.resultVal, s.resultErr
}

// sweepsMock is a hand-rolled core.ReaperRepository. The pending and delete
// counters return their configured batches one at a time, then zero.
type sweepsMock struct {
	stale    []*model.Job
	staleErr error

	pendingBatches []int64
	pendingErr     error

	deleteBatches []int64
	deleteErr     error
	deleteCalls   []core.DeleteOldJobsParams
}

var _ core.ReaperRepository = (*sweepsMock)(nil)

func (m *sweepsMock) ListStaleProcessing(context.Context, time.Duration, int) ([]*model.Job, error) {
	return m.stale, m.staleErr
}

func (m *sweepsMock) FailStalePendingJobs(context.Context, time.Duration, int) (int64, error) {
	if m.pendingErr != nil {
		return 0, m.pendingErr
	}
	if len(m.pendingBatches) == 0 {
		return 0, nil
	}
	count := m.pendingBatches[0]
	m.pendingBatches = m.pendingBatches[1:]
	return count, nil
}

func (m *sweepsMock) DeleteOldJobs(_ context.Context, params core.DeleteOldJobsParams) (int64, error) {
	m.deleteCalls = append(m.deleteCalls, params)
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	if len(m.deleteBatches) == 0 {
		return 0, nil
	}
	count := m.deleteBatches[0]
	m.deleteBatches = m.deleteBatches[1:]
	return count, nil
}
