package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wanderplan/planner-api/internal/core"
	"github.com/wanderplan/planner-api/internal/data"
	"github.com/wanderplan/planner-api/internal/domain/model"
	"github.com/wanderplan/planner-api/internal/observability/metrics"
	"github.com/wanderplan/planner-api/internal/observability/statsd"
)

// DispatchServiceOptions groups dependencies for DispatchService.
type DispatchServiceOptions struct {
	Jobs       core.JobRepository // Required: job repository
	Planner    core.PlannerClient // Required: external planner client
	Strategies StrategyRegistry   // Required: one strategy per job kind
	Notifier   core.TerminalNotifier
	Logger     *slog.Logger
	Metrics    statsd.Sink
}

// DispatchService consumes dispatch tasks: it claims the job, assembles the
// planner payload, and submits the work. The submit call only confirms
// acceptance; the result arrives later through the callback endpoint.
type DispatchService struct {
	jobs       core.JobRepository
	planner    core.PlannerClient
	strategies StrategyRegistry
	notifier   core.TerminalNotifier
	logger     *slog.Logger
	metrics    statsd.Sink
}

// NewDispatchService constructs a new DispatchService.
func NewDispatchService(opts DispatchServiceOptions) (*DispatchService, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Planner == nil {
		return nil, errors.New("PlannerClient is required")
	}
	if len(opts.Strategies) == 0 {
		return nil, errors.New("strategy registry is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &DispatchService{
		jobs:       opts.Jobs,
		planner:    opts.Planner,
		strategies: opts.Strategies,
		notifier:   opts.Notifier,
		logger:     logger.With("component", "dispatch_service"),
		metrics:    opts.Metrics,
	}, nil
}

// HandleTask processes one dispatch delivery. Returning an error routes the
// message through the broker's retry cycle; nil acknowledges it. A delivery
// for a job that is already terminal, or that vanished, is acknowledged as a
// no-op rather than retried.
func (s *DispatchService) HandleTask(ctx context.Context, task model.DispatchTask) error {
	start := time.Now()
	logger := s.logger.With("job_id", task.JobID, "kind", task.Kind)

	job, err := s.jobs.GetByID(ctx, task.JobID)
	if errors.Is(err, data.ErrJobNotFound) {
		logger.WarnContext(ctx, "dispatch task for unknown job, dropping")
		s.emit(task.Kind, metrics.ResultNoop, 0)
		return nil
	}
	if err != nil {
		return err
	}

	if job.Status.Terminal() {
		logger.DebugContext(ctx, "job already terminal, dropping dispatch task", "status", job.Status)
		s.emit(job.Kind, metrics.ResultNoop, 0)
		return nil
	}

	if job.Status == model.JobStatusPending {
		applied, err := s.jobs.MarkProcessing(ctx, job.ID)
		if err != nil {
			return err
		}
		if !applied {
			// Lost the claim race. Re-read and decide from current state.
			current, err := s.jobs.GetByID(ctx, job.ID)
			if err != nil {
				return err
			}
			if current.Status != model.JobStatusProcessing {
				logger.DebugContext(ctx, "job claimed elsewhere, dropping dispatch task", "status", current.Status)
				s.emit(job.Kind, metrics.ResultNoop, 0)
				return nil
			}
		}
	}
	// A processing job on a redelivery is resubmitted: the previous submit
	// may never have reached the planner, and submits are keyed by job id.

	strategy, err := s.strategies.ForKind(job.Kind)
	if err != nil {
		logger.ErrorContext(ctx, "no strategy for job kind, failing job", "err", err)
		s.failAndNotify(ctx, job.ID, model.ErrCodeInputMissing, "unsupported job kind")
		s.emit(job.Kind, metrics.ResultError, time.Since(start))
		return nil
	}

	payload, err := strategy.BuildPayload(ctx, job)
	if err != nil {
		// The input aggregate is gone or unreadable; retrying cannot help.
		logger.ErrorContext(ctx, "build planner payload failed, failing job", "err", err)
		s.failAndNotify(ctx, job.ID, model.ErrCodeInputMissing, "job input could not be loaded")
		s.emit(job.Kind, metrics.ResultError, time.Since(start))
		return nil
	}

	req := model.PlannerRequest{
		JobID:   job.ID,
		Kind:    job.Kind,
		Payload: payload,
	}
	if err := s.planner.Submit(ctx, req); err != nil {
		// Transient by assumption: leave the job processing and let the
		// broker redeliver. The reaper reconciles if deliveries run out.
		logger.WarnContext(ctx, "planner submit failed", "err", err)
		s.emit(job.Kind, metrics.ResultError, time.Since(start))
		return err
	}

	logger.InfoContext(ctx, "job submitted to planner", "attempt", job.AttemptCount)
	s.emit(job.Kind, metrics.ResultSuccess, time.Since(start))
	return nil
}

// HandleDrop reconciles a job whose dispatch message was removed from the
// queue without being processed.
func (s *DispatchService) HandleDrop(ctx context.Context, jobID, reason string) {
	if jobID == "" {
		return
	}
	s.logger.WarnContext(ctx, "dispatch task dropped, failing job", "job_id", jobID, "reason", reason)
	s.failAndNotify(ctx, jobID, model.ErrCodeQueueStalled, "dispatch task could not be delivered")
}

func (s *DispatchService) failAndNotify(ctx context.Context, jobID, code, message string) {
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

func (s *DispatchService) emit(kind model.JobKind, result string, d time.Duration) {
	metrics.EmitJobEvent(s.metrics, metrics.JobEvent{
		Kind:       kind,
		Transition: metrics.TransitionDispatch,
		Result:     result,
		Duration:   d,
	})
}
