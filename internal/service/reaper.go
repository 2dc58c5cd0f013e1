package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wanderplan/planner-api/config"
	"github.com/wanderplan/planner-api/internal/core"
	"github.com/wanderplan/planner-api/internal/data"
	"github.com/wanderplan/planner-api/internal/domain/model"
	"github.com/wanderplan/planner-api/internal/observability/metrics"
	"github.com/wanderplan/planner-api/internal/observability/statsd"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Jobs      core.JobRepository    // Required: job repository
	Sweeps    core.ReaperRepository // Required: reaper sweep queries
	Publisher core.TaskPublisher    // Required: dispatch queue publisher, for retry grants
	Config    config.ReaperConfig   // Required: reaper configuration
	Notifier  core.TerminalNotifier
	Logger    *slog.Logger
	Metrics   statsd.Sink
}

// ReaperService reconciles jobs the happy path lost track of:
//   - processing jobs whose callback never arrived get one retry, then fail
//     with TIMEOUT
//   - pending jobs that were never picked up fail with QUEUE_STALLED
//   - terminal jobs past the retention window are pruned, when enabled
type ReaperService struct {
	jobs      core.JobRepository
	sweeps    core.ReaperRepository
	publisher core.TaskPublisher
	config    config.ReaperConfig
	notifier  core.TerminalNotifier
	logger    *slog.Logger
	metrics   statsd.Sink
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Sweeps == nil {
		return nil, errors.New("ReaperRepository is required")
	}
	if opts.Publisher == nil {
		return nil, errors.New("TaskPublisher is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ReaperService{
		jobs:      opts.Jobs,
		sweeps:    opts.Sweeps,
		publisher: opts.Publisher,
		config:    opts.Config,
		notifier:  opts.Notifier,
		logger:    logger.With("component", "reaper_service"),
		metrics:   opts.Metrics,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown.
func (s *ReaperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting reaper",
		"interval", s.config.Interval,
		"processing_timeout", s.config.ProcessingTimeout,
		"pending_max_age", s.config.PendingMaxAge,
	)

	// Jitter the first sweep so parallel instances do not start in lockstep.
	s.waitWithJitter(ctx)

	if err := s.sweep(ctx); err != nil {
		s.logSweepError(ctx, err)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reaper stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				s.logSweepError(ctx, err)
			}
		}
	}
}

func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)))

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

// sweep runs all reconciliation passes once. Each pass runs even when an
// earlier one failed; errors are joined for the caller.
func (s *ReaperService) sweep(ctx context.Context) error {
	start := time.Now()
	var errs []error

	staleCount, err := s.reapStaleProcessing(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("reap stale processing jobs: %w", err))
	}

	pendingCount, err := s.failStalePending(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("fail stale pending jobs: %w", err))
	}

	prunedCount, err := s.pruneOldJobs(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("prune old jobs: %w", err))
	}

	s.emitSweepMetrics(staleCount+pendingCount+prunedCount, time.Since(start), errs)
	return errors.Join(errs...)
}

// reapStaleProcessing handles processing jobs whose callback never arrived.
// Candidates are re-fetched before any decision: the callback may have won
// the race between the listing and now.
func (s *ReaperService) reapStaleProcessing(ctx context.Context) (int64, error) {
	candidates, err := s.sweeps.ListStaleProcessing(ctx, s.config.ProcessingTimeout, s.config.BatchSize)
	if err != nil {
		return 0, err
	}

	var handled int64
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			return handled, ctx.Err()
		}
		acted, err := s.reapOne(ctx, candidate.ID)
		if err != nil {
			s.logger.ErrorContext(ctx, "reap job failed", "job_id", candidate.ID, "err", err)
			continue
		}
		if acted {
			handled++
		}
	}
	return handled, nil
}

func (s *ReaperService) reapOne(ctx context.Context, jobID string) (bool, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if errors.Is(err, data.ErrJobNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if job.Status != model.JobStatusProcessing {
		return false, nil
	}
	if job.StartedAt == nil || time.Since(*job.StartedAt) < s.config.ProcessingTimeout {
		return false, nil
	}

	if job.RetryBudgetLeft() {
		granted, err := s.jobs.ResetForRetry(ctx, job.ID)
		if err != nil {
			return false, err
		}
		if !granted {
			// The callback settled the job between the read and the reset.
			return false, nil
		}

		task := model.DispatchTask{JobID: job.ID, InputRef: job.InputRef, Kind: job.Kind}
		if err := s.publisher.Publish(ctx, task); err != nil {
			// The reset stands; the pending sweep will eventually fail the
			// job if no later publish succeeds either.
			s.logger.ErrorContext(ctx, "publish retry task failed", "job_id", job.ID, "err", err)
			return true, nil
		}

		s.logger.InfoContext(ctx, "stale job reset for retry",
			"job_id", job.ID, "kind", job.Kind, "attempt", job.AttemptCount+1)
		metrics.EmitJobEvent(s.metrics, metrics.JobEvent{
			Kind: job.Kind, Transition: metrics.TransitionRetry, Result: metrics.ResultSuccess,
		})
		return true, nil
	}

	code := model.ErrCodeTimeout
	applied, err := s.jobs.FailFromProcessing(ctx, core.FailJobParams{
		ID:      job.ID,
		Code:    code,
		Message: "planner did not report a result in time",
	})
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	s.logger.InfoContext(ctx, "stale job failed", "job_id", job.ID, "kind", job.Kind)
	notifyTerminal(ctx, s.notifier, s.logger, model.JobNotification{
		JobID:     job.ID,
		Status:    model.JobStatusFailed,
		ErrorCode: &code,
	})
	metrics.EmitJobEvent(s.metrics, metrics.JobEvent{
		Kind: job.Kind, Transition: metrics.TransitionReap, Result: metrics.ResultError,
	})
	return true, nil
}

// failStalePending loops in batches until a sweep comes back empty.
func (s *ReaperService) failStalePending(ctx context.Context) (int64, error) {
	var total int64
	for {
		count, err := s.sweeps.FailStalePendingJobs(ctx, s.config.PendingMaxAge, s.config.BatchSize)
		if err != nil {
			return total, err
		}
		total += count
		if count == 0 {
			break
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}

	if total > 0 {
		s.logger.InfoContext(ctx, "failed stale pending jobs",
			"count", total, "max_age", s.config.PendingMaxAge)
	}
	return total, nil
}

func (s *ReaperService) pruneOldJobs(ctx context.Context) (int64, error) {
	if s.config.RetentionMaxAge <= 0 {
		return 0, nil
	}

	var total int64
	for _, status := range []model.JobStatus{model.JobStatusSuccess, model.JobStatusFailed} {
		for {
			count, err := s.sweeps.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
				Status:    status,
				MaxAge:    s.config.RetentionMaxAge,
				BatchSize: s.config.BatchSize,
			})
			if err != nil {
				return total, err
			}
			total += count
			if count == 0 {
				break
			}
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
		}
	}

	if total > 0 {
		s.logger.InfoContext(ctx, "pruned old jobs",
			"count", total, "max_age", s.config.RetentionMaxAge)
	}
	return total, nil
}

func (s *ReaperService) emitSweepMetrics(count int64, elapsed time.Duration, errs []error) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if len(errs) > 0 {
		result = metrics.ResultError
	} else if count == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{"result": result}
	s.metrics.Count("reaper.sweep", 1, tags)
	s.metrics.Timing("reaper.sweep_duration", elapsed, tags)
	if count > 0 {
		s.metrics.Count("reaper.jobs_reconciled", count, nil)
	}
}

func (s *ReaperService) logSweepError(ctx context.Context, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.logger.DebugContext(ctx, "sweep cancelled", "err", err)
		return
	}
	s.logger.ErrorContext(ctx, "sweep failed", "err", err)
}
