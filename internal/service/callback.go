package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wanderplan/planner-api/internal/core"
	"github.com/wanderplan/planner-api/internal/data"
	"github.com/wanderplan/planner-api/internal/domain/model"
	apperrors "github.com/wanderplan/planner-api/internal/errors"
	"github.com/wanderplan/planner-api/internal/observability/metrics"
	"github.com/wanderplan/planner-api/internal/observability/statsd"
)

// CallbackServiceOptions groups dependencies for CallbackService.
type CallbackServiceOptions struct {
	Jobs       core.JobRepository // Required: job repository
	Publisher  core.TaskPublisher // Required: dispatch queue publisher, for retry grants
	Strategies StrategyRegistry   // Required: one strategy per job kind
	Notifier   core.TerminalNotifier
	Logger     *slog.Logger
	Metrics    statsd.Sink
}

// CallbackService settles jobs when the planner reports back. It is the only
// component that applies results, and it must stay idempotent: the planner
// may deliver the same callback twice, and the reaper may have reset or
// failed the job in the meantime.
type CallbackService struct {
	jobs       core.JobRepository
	publisher  core.TaskPublisher
	strategies StrategyRegistry
	notifier   core.TerminalNotifier
	logger     *slog.Logger
	metrics    statsd.Sink
}

// NewCallbackService constructs a new CallbackService.
func NewCallbackService(opts CallbackServiceOptions) (*CallbackService, error) {
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

	return &CallbackService{
		jobs:       opts.Jobs,
		publisher:  opts.Publisher,
		strategies: opts.Strategies,
		notifier:   opts.Notifier,
		logger:     logger.With("component", "callback_service"),
		metrics:    opts.Metrics,
	}, nil
}

// HandleCallback processes one planner callback for a job. Duplicate
// deliveries and callbacks for already-finalized jobs are acknowledged as
// no-ops so the planner never retries them.
//
// A late success callback may still land on a pending job: if the reaper
// reset the job for retry and the original result then arrives, the result
// is applied rather than discarded.
func (s *CallbackService) HandleCallback(ctx context.Context, jobID string, req *model.CallbackRequest) error {
	if req == nil {
		return apperrors.Validation("callback body is required")
	}
	if err := req.Validate(); err != nil {
		return apperrors.Validation(err.Error())
	}

	start := time.Now()
	logger := s.logger.With("job_id", jobID, "callback_status", req.Status)

	job, err := s.jobs.GetByID(ctx, jobID)
	if errors.Is(err, data.ErrJobNotFound) {
		return apperrors.NotFound("job not found")
	}
	if err != nil {
		return apperrors.Internal("load job", err)
	}

	if job.Status.Terminal() {
		logger.InfoContext(ctx, "callback for finalized job, ignoring", "status", job.Status)
		s.emit(job.Kind, metrics.ResultNoop, 0)
		return nil
	}

	if req.Status == model.CallbackStatusSuccess {
		return s.applySuccess(ctx, logger, job, req, start)
	}
	return s.applyFailure(ctx, logger, job, req, start)
}

func (s *CallbackService) applySuccess(
	ctx context.Context,
	logger *slog.Logger,
	job *model.Job,
	req *model.CallbackRequest,
	start time.Time,
) error {
	strategy, err := s.strategies.ForKind(job.Kind)
	if err != nil {
		return err
	}

	resultRef, err := strategy.ApplyResult(ctx, job, req.Data)
	if errors.Is(err, data.ErrTerminalRace) {
		// Another writer finalized the job while the result transaction ran.
		// Everything was rolled back; acknowledge the duplicate.
		logger.InfoContext(ctx, "lost finalize race, ignoring callback")
		s.emit(job.Kind, metrics.ResultNoop, time.Since(start))
		return nil
	}
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeValidation) {
			// The planner sent an unusable result. Surface the rejection so
			// it can fix the payload; the job stays as it was.
			logger.WarnContext(ctx, "rejecting malformed result payload", "err", err)
			return err
		}
		s.emit(job.Kind, metrics.ResultError, time.Since(start))
		return apperrors.Internal("apply job result", err)
	}

	logger.InfoContext(ctx, "job succeeded", "result_ref", resultRef)
	s.emit(job.Kind, metrics.ResultSuccess, time.Since(start))
	notifyTerminal(ctx, s.notifier, s.logger, model.JobNotification{
		JobID:  job.ID,
		Status: model.JobStatusSuccess,
	})
	return nil
}

func (s *CallbackService) applyFailure(
	ctx context.Context,
	logger *slog.Logger,
	job *model.Job,
	req *model.CallbackRequest,
	start time.Time,
) error {
	// A pending job reporting failure means the reaper already reset it for
	// another attempt. That attempt owns the job now; the stale verdict is
	// acknowledged and discarded.
	if job.Status == model.JobStatusPending {
		logger.InfoContext(ctx, "failure callback for reset job, ignoring")
		s.emit(job.Kind, metrics.ResultNoop, time.Since(start))
		return nil
	}

	if job.RetryBudgetLeft() {
		granted, err := s.jobs.ResetForRetry(ctx, job.ID)
		if err != nil {
			return apperrors.Internal("reset job for retry", err)
		}
		if granted {
			task := model.DispatchTask{JobID: job.ID, InputRef: job.InputRef, Kind: job.Kind}
			if err := s.publisher.Publish(ctx, task); err != nil {
				// The retry was recorded but cannot be delivered. Fail the
				// job rather than leaving it pending forever.
				logger.ErrorContext(ctx, "publish retry task failed", "err", err)
				s.finalizeFailed(ctx, job, model.ErrCodeEnqueueFailed, "could not enqueue retry")
				s.emit(job.Kind, metrics.ResultError, time.Since(start))
				return nil
			}
			logger.InfoContext(ctx, "retry granted", "attempt", job.AttemptCount+1)
			metrics.EmitJobEvent(s.metrics, metrics.JobEvent{
				Kind: job.Kind, Transition: metrics.TransitionRetry, Result: metrics.ResultSuccess,
			})
			return nil
		}
		// Reset raced with another writer; fall through to a fresh read of
		// what actually happened.
		current, err := s.jobs.GetByID(ctx, job.ID)
		if err != nil {
			return apperrors.Internal("load job", err)
		}
		if current.Status != model.JobStatusProcessing {
			logger.InfoContext(ctx, "job moved on during failure callback, ignoring", "status", current.Status)
			s.emit(job.Kind, metrics.ResultNoop, time.Since(start))
			return nil
		}
		job = current
	}

	code := model.ErrCodeTimeout
	message := "planner reported failure"
	if req.Error != nil {
		code = req.Error.Code
		if req.Error.Message != "" {
			message = req.Error.Message
		}
	}

	// The guard in FailFromProcessing keeps this verdict from clobbering a
	// job the reaper reset between our read and now.
	applied, err := s.jobs.FailFromProcessing(ctx, core.FailJobParams{
		ID:      job.ID,
		Code:    code,
		Message: message,
	})
	if err != nil {
		return apperrors.Internal("finalize job as failed", err)
	}
	if !applied {
		logger.InfoContext(ctx, "job moved on during failure callback, ignoring")
		s.emit(job.Kind, metrics.ResultNoop, time.Since(start))
		return nil
	}

	notifyTerminal(ctx, s.notifier, s.logger, model.JobNotification{
		JobID:     job.ID,
		Status:    model.JobStatusFailed,
		ErrorCode: &code,
	})
	logger.InfoContext(ctx, "job failed", "error_code", code)
	s.emit(job.Kind, metrics.ResultError, time.Since(start))
	return nil
}

func (s *CallbackService) finalizeFailed(ctx context.Context, job *model.Job, code, message string) {
	applied, err := s.jobs.FailNonTerminal(ctx, core.FailJobParams{
		ID:      job.ID,
		Code:    code,
		Message: message,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "finalize job as failed", "job_id", job.ID, "err", err)
		return
	}
	if applied {
		notifyTerminal(ctx, s.notifier, s.logger, model.JobNotification{
			JobID:     job.ID,
			Status:    model.JobStatusFailed,
			ErrorCode: &code,
		})
	}
}

func (s *CallbackService) emit(kind model.JobKind, result string, d time.Duration) {
	metrics.EmitJobEvent(s.metrics, metrics.JobEvent{
		Kind:       kind,
		Transition: metrics.TransitionCallback,
		Result:     result,
		Duration:   d,
	})
}
