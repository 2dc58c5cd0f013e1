package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wanderplan/planner-api/internal/core"
	"github.com/wanderplan/planner-api/internal/data"
	"github.com/wanderplan/planner-api/internal/domain/model"
	apperrors "github.com/wanderplan/planner-api/internal/errors"
	"github.com/wanderplan/planner-api/internal/observability/metrics"
	"github.com/wanderplan/planner-api/internal/observability/statsd"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Jobs       core.JobRepository // Required: job repository
	Publisher  core.TaskPublisher // Required: dispatch queue publisher
	Strategies StrategyRegistry   // Required: one strategy per job kind
	Notifier   core.TerminalNotifier
	Logger     *slog.Logger
	Metrics    statsd.Sink
}

// JobService is the API-facing half of the job lifecycle: it accepts work,
// guards against duplicate submissions, and serves status and result reads.
type JobService struct {
	jobs       core.JobRepository
	publisher  core.TaskPublisher
	strategies StrategyRegistry
	notifier   core.TerminalNotifier
	logger     *slog.Logger
	metrics    statsd.Sink
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Publisher == nil {
		return nil, errors.New("TaskPublisher is required")
	}
	if len(opts.Strategies) == 0 {
		return nil, errors.New("strategy registry is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &JobService{
		jobs:       opts.Jobs,
		publisher:  opts.Publisher,
		strategies: opts.Strategies,
		notifier:   opts.Notifier,
		logger:     logger.With("component", "job_service"),
		metrics:    opts.Metrics,
	}, nil
}

// Enqueue validates the input, creates a pending job, and pushes its dispatch
// task. The caller gets the job back immediately; everything after runs
// asynchronously.
//
// One active job per input: a pending or processing job for the same input
// reference is a conflict, and the caller is told which job to poll instead.
func (s *JobService) Enqueue(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	strategy, err := s.strategies.ForKind(req.Kind)
	if err != nil {
		return nil, err
	}
	if err := strategy.ValidateInput(ctx, req.OwnerID, req.InputRef); err != nil {
		return nil, err
	}

	if active, err := s.jobs.FindActiveByInputRef(ctx, req.InputRef); err != nil {
		return nil, apperrors.Internal("check active jobs", err)
	} else if active != nil {
		return nil, apperrors.Conflictf("job %s is already in flight for this input", active.ID)
	}

	job, err := s.jobs.Create(ctx, req)
	if err != nil {
		return nil, apperrors.Internal("create job", err)
	}

	task := model.DispatchTask{JobID: job.ID, InputRef: job.InputRef, Kind: job.Kind}
	if err := s.publisher.Publish(ctx, task); err != nil {
		// The record exists but will never be picked up. Finalize it now so
		// the caller is not left polling a job that cannot progress.
		s.logger.ErrorContext(ctx, "publish dispatch task failed", "job_id", job.ID, "err", err)
		s.failAndNotify(ctx, job.ID, model.ErrCodeEnqueueFailed, "could not enqueue dispatch task")
		metrics.EmitJobEvent(s.metrics, metrics.JobEvent{
			Kind: job.Kind, Transition: metrics.TransitionEnqueue, Result: metrics.ResultError,
		})
		return nil, apperrors.Internal("enqueue dispatch task", err)
	}

	s.logger.InfoContext(ctx, "job enqueued", "job_id", job.ID, "kind", job.Kind, "input_ref", job.InputRef)
	metrics.EmitJobEvent(s.metrics, metrics.JobEvent{
		Kind: job.Kind, Transition: metrics.TransitionEnqueue, Result: metrics.ResultSuccess,
	})
	return job, nil
}

// GetJob returns a job after checking ownership.
func (s *JobService) GetJob(ctx context.Context, ownerID, jobID string) (*model.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if errors.Is(err, data.ErrJobNotFound) {
		return nil, apperrors.NotFound("job not found")
	}
	if err != nil {
		return nil, apperrors.Internal("load job", err)
	}
	if job.OwnerID != ownerID {
		return nil, apperrors.Forbidden("job belongs to another user")
	}
	return job, nil
}

// GetStatus returns the polling view of a job.
func (s *JobService) GetStatus(ctx context.Context, ownerID, jobID string) (*model.JobStatusResponse, error) {
	job, err := s.GetJob(ctx, ownerID, jobID)
	if err != nil {
		return nil, err
	}
	return &model.JobStatusResponse{
		Status:       job.Status,
		AttemptCount: job.AttemptCount,
		ErrorCode:    job.ErrorCode,
		ErrorMessage: job.ErrorMessage,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
	}, nil
}

// GetResult returns the materialized result aggregate of a successful job.
// Non-terminal jobs are a conflict (poll the status endpoint instead), failed
// jobs surface their recorded error.
func (s *JobService) GetResult(ctx context.Context, ownerID, jobID string) (any, error) {
	job, err := s.GetJob(ctx, ownerID, jobID)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case model.JobStatusSuccess:
		strategy, err := s.strategies.ForKind(job.Kind)
		if err != nil {
			return nil, err
		}
		result, err := strategy.Result(ctx, job)
		if err != nil {
			return nil, err
		}
		return result, nil
	case model.JobStatusFailed:
		msg := "job failed"
		if job.ErrorMessage != nil {
			msg = *job.ErrorMessage
		}
		return nil, apperrors.Conflict(msg)
	default:
		return nil, apperrors.Conflictf("job is still %s", job.Status)
	}
}

// Stats returns per-status job counts for one kind.
func (s *JobService) Stats(ctx context.Context, kind model.JobKind) (*model.JobStats, error) {
	if !kind.Valid() {
		return nil, apperrors.Validation(fmt.Sprintf("invalid job kind: %q", kind))
	}
	stats, err := s.jobs.Stats(ctx, kind)
	if err != nil {
		return nil, apperrors.Internal("load job stats", err)
	}
	return stats, nil
}

// failAndNotify finalizes a job as failed and announces the transition.
// Used on paths where the failure itself must not fail the caller twice.
func (s *JobService) failAndNotify(ctx context.Context, jobID, code, message string) {
	applied, err := s.jobs.FailNonTerminal(ctx, core.FailJobParams{
		ID:      jobID,
		Code:    code,
		Message: message,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "finalize job as failed", "job_id", jobID, "err", err)
		return
	}
	if applied {
		notifyTerminal(ctx, s.notifier, s.logger, model.JobNotification{
			JobID:     jobID,
			Status:    model.JobStatusFailed,
			ErrorCode: &code,
		})
	}
}

// notifyTerminal announces a terminal transition. Failures are logged and
// swallowed; pub/sub is a convenience on top of polling, never a dependency.
func notifyTerminal(ctx context.Context, notifier core.TerminalNotifier, logger *slog.Logger, n model.JobNotification) {
	if notifier == nil {
		return
	}
	if err := notifier.PublishTerminal(ctx, n); err != nil && logger != nil {
		logger.WarnContext(ctx, "terminal notification failed", "job_id", n.JobID, "err", err)
	}
}
