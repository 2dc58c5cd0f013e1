package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderplan/planner-api/internal/data"
	"github.com/wanderplan/planner-api/internal/domain/model"
	apperrors "github.com/wanderplan/planner-api/internal/errors"
	"github.com/wanderplan/planner-api/internal/testutil"
)

func newJobService(t *testing.T, repo *jobRepoMock, pub *publisherMock, notifier *notifierMock, strategies ...JobKindStrategy) *JobService {
	t.Helper()
	if len(strategies) == 0 {
		strategies = []JobKindStrategy{&strategyStub{kind: model.JobKindGeneration}}
	}
	reg, err := NewStrategyRegistry(strategies...)
	require.NoError(t, err)

	svc, err := NewJobService(JobServiceOptions{
		Jobs:       repo,
		Publisher:  pub,
		Strategies: reg,
		Notifier:   notifier,
	})
	require.NoError(t, err)
	return svc
}

func TestNewJobServiceRequiresDeps(t *testing.T) {
	reg := StrategyRegistry{model.JobKindGeneration: &strategyStub{kind: model.JobKindGeneration}}

	_, err := NewJobService(JobServiceOptions{Publisher: &publisherMock{}, Strategies: reg})
	assert.Error(t, err)

	_, err = NewJobService(JobServiceOptions{Jobs: &jobRepoMock{}, Strategies: reg})
	assert.Error(t, err)

	_, err = NewJobService(JobServiceOptions{Jobs: &jobRepoMock{}, Publisher: &publisherMock{}})
	assert.Error(t, err)
}

func TestEnqueueCreatesJobAndPublishesTask(t *testing.T) {
	repo := &jobRepoMock{}
	pub := &publisherMock{}
	svc := newJobService(t, repo, pub, nil)

	req := &model.CreateJobRequest{
		Kind:     model.JobKindGeneration,
		OwnerID:  uuid.NewString(),
		InputRef: uuid.NewString(),
	}
	job, err := svc.Enqueue(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, model.JobStatusPending, job.Status)

	require.Len(t, pub.published, 1)
	assert.Equal(t, job.ID, pub.published[0].JobID)
	assert.Equal(t, req.InputRef, pub.published[0].InputRef)
	assert.Equal(t, model.JobKindGeneration, pub.published[0].Kind)
}

func TestEnqueueRejectsInvalidRequest(t *testing.T) {
	svc := newJobService(t, &jobRepoMock{}, &publisherMock{}, nil)

	_, err := svc.Enqueue(context.Background(), nil)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))

	_, err = svc.Enqueue(context.Background(), &model.CreateJobRequest{Kind: "bogus"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
}

func TestEnqueueRejectsInputFromAnotherOwner(t *testing.T) {
	strategy := &strategyStub{
		kind:        model.JobKindGeneration,
		validateErr: apperrors.Forbidden("trip survey belongs to another user"),
	}
	svc := newJobService(t, &jobRepoMock{}, &publisherMock{}, nil, strategy)

	_, err := svc.Enqueue(context.Background(), &model.CreateJobRequest{
		Kind:     model.JobKindGeneration,
		OwnerID:  uuid.NewString(),
		InputRef: uuid.NewString(),
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))
}

func TestEnqueueConflictsOnActiveJobForSameInput(t *testing.T) {
	active := testutil.NewJob().WithStatus(model.JobStatusProcessing).Build()
	repo := &jobRepoMock{
		findActiveFn: func(context.Context, string) (*model.Job, error) {
			return active, nil
		},
	}
	pub := &publisherMock{}
	svc := newJobService(t, repo, pub, nil)

	_, err := svc.Enqueue(context.Background(), &model.CreateJobRequest{
		Kind:     model.JobKindGeneration,
		OwnerID:  uuid.NewString(),
		InputRef: active.InputRef,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConflict))
	assert.Contains(t, err.Error(), active.ID)
	assert.Empty(t, pub.published)
}

func TestEnqueueFinalizesJobWhenPublishFails(t *testing.T) {
	repo := &jobRepoMock{}
	pub := &publisherMock{err: errors.New("broker unreachable")}
	notifier := &notifierMock{}
	svc := newJobService(t, repo, pub, notifier)

	_, err := svc.Enqueue(context.Background(), &model.CreateJobRequest{
		Kind:     model.JobKindGeneration,
		OwnerID:  uuid.NewString(),
		InputRef: uuid.NewString(),
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInternal))

	require.Len(t, repo.failCalls, 1)
	assert.Equal(t, model.ErrCodeEnqueueFailed, repo.failCalls[0].Code)

	require.Len(t, notifier.notes, 1)
	assert.Equal(t, model.JobStatusFailed, notifier.notes[0].Status)
	require.NotNil(t, notifier.notes[0].ErrorCode)
	assert.Equal(t, model.ErrCodeEnqueueFailed, *notifier.notes[0].ErrorCode)
}

func TestGetJobChecksOwnership(t *testing.T) {
	job := testutil.NewJob().Build()
	repo := &jobRepoMock{
		getByIDFn: func(_ context.Context, id string) (*model.Job, error) {
			if id == job.ID {
				return job, nil
			}
			return nil, data.ErrJobNotFound
		},
	}
	svc := newJobService(t, repo, &publisherMock{}, nil)

	got, err := svc.GetJob(context.Background(), job.OwnerID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	_, err = svc.GetJob(context.Background(), uuid.NewString(), job.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))

	_, err = svc.GetJob(context.Background(), job.OwnerID, uuid.NewString())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}

func TestGetStatusReturnsPollingView(t *testing.T) {
	job := testutil.NewJob().WithStatus(model.JobStatusProcessing).WithAttemptCount(2).Build()
	repo := &jobRepoMock{
		getByIDFn: func(context.Context, string) (*model.Job, error) { return job, nil },
	}
	svc := newJobService(t, repo, &publisherMock{}, nil)

	status, err := svc.GetStatus(context.Background(), job.OwnerID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, status.Status)
	assert.Equal(t, 2, status.AttemptCount)
	assert.NotNil(t, status.StartedAt)
	assert.Nil(t, status.CompletedAt)
}

func TestGetResult(t *testing.T) {
	itinerary := &model.Itinerary{ID: uuid.NewString(), Title: "Lisbon"}
	strategy := &strategyStub{kind: model.JobKindGeneration, resultVal: itinerary}

	resultRef := itinerary.ID
	succeeded := testutil.NewJob().WithStatus(model.JobStatusSuccess).Build()
	succeeded.ResultRef = &resultRef

	t.Run("success returns materialized aggregate", func(t *testing.T) {
		repo := &jobRepoMock{
			getByIDFn: func(context.Context, string) (*model.Job, error) { return succeeded, nil },
		}
		svc := newJobService(t, repo, &publisherMock{}, nil, strategy)

		result, err := svc.GetResult(context.Background(), succeeded.OwnerID, succeeded.ID)
		require.NoError(t, err)
		assert.Equal(t, itinerary, result)
	})

	t.Run("failed surfaces recorded error", func(t *testing.T) {
		msg := "planner did not report a result in time"
		failed := testutil.NewJob().WithStatus(model.JobStatusFailed).Build()
		failed.ErrorMessage = &msg
		repo := &jobRepoMock{
			getByIDFn: func(context.Context, string) (*model.Job, error) { return failed, nil },
		}
		svc := newJobService(t, repo, &publisherMock{}, nil, strategy)

		_, err := svc.GetResult(context.Background(), failed.OwnerID, failed.ID)
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConflict))
		assert.Contains(t, err.Error(), msg)
	})

	t.Run("non-terminal is a conflict", func(t *testing.T) {
		pending := testutil.NewJob().Build()
		repo := &jobRepoMock{
			getByIDFn: func(context.Context, string) (*model.Job, error) { return pending, nil },
		}
		svc := newJobService(t, repo, &publisherMock{}, nil, strategy)

		_, err := svc.GetResult(context.Background(), pending.OwnerID, pending.ID)
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConflict))
		assert.Contains(t, err.Error(), "still pending")
	})
}

func TestStatsRejectsInvalidKind(t *testing.T) {
	svc := newJobService(t, &jobRepoMock{}, &publisherMock{}, nil)

	_, err := svc.Stats(context.Background(), "bogus")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))

	stats, err := svc.Stats(context.Background(), model.JobKindGeneration)
	require.NoError(t, err)
	assert.NotNil(t, stats)
}
