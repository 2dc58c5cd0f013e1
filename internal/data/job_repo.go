package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/wanderplan/planner-api/internal/core"
	"github.com/wanderplan/planner-api/internal/domain/model"
)

// JobRepo provides database operations for planner job records.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// JobRepoConfig holds optional configuration for JobRepo.
type JobRepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// NewJobRepo creates a new JobRepo instance.
func NewJobRepo(db *sql.DB, cfg JobRepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = RealTimeProvider{}
	}
	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

var _ core.JobRepository = (*JobRepo)(nil)

const jobColumns = `
  id,
  kind,
  status,
  owner_id,
  input_ref,
  result_ref,
  attempt_count,
  error_code,
  error_message,
  started_at,
  completed_at,
  created_at,
  updated_at
`

type jobRowScanner interface {
	Scan(dest ...any) error
}

func scanJob(scanner jobRowScanner) (*model.Job, error) {
	var (
		job                            model.Job
		resultRef, errCode, errMessage sql.NullString
		startedAt, completedAt         sql.NullTime
	)
	if err := scanner.Scan(
		&job.ID,
		&job.Kind,
		&job.Status,
		&job.OwnerID,
		&job.InputRef,
		&resultRef,
		&job.AttemptCount,
		&errCode,
		&errMessage,
		&startedAt,
		&completedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}

	job.ResultRef = cloneNullableString(resultRef)
	job.ErrorCode = cloneNullableString(errCode)
	job.ErrorMessage = cloneNullableString(errMessage)
	job.StartedAt = cloneNullableTime(startedAt)
	job.CompletedAt = cloneNullableTime(completedAt)
	return &job, nil
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// Create inserts a new job record in pending status.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	currentTime := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO planner_jobs (id, kind, status, owner_id, input_ref, attempt_count, created_at, updated_at)
		VALUES ($1, $2, 'pending', $3, $4, 0, $5, $5)
		RETURNING `+jobColumns,
		uuid.NewString(), req.Kind, req.OwnerID, req.InputRef, currentTime,
	)

	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM planner_jobs
		WHERE id = $1
	`, id)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// FindActiveByInputRef returns the non-terminal job for an input reference,
// or nil when there is none. This is the lookup half of the lookup-then-insert
// duplicate guard at enqueue time.
func (r *JobRepo) FindActiveByInputRef(ctx context.Context, inputRef string) (*model.Job, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM planner_jobs
		WHERE input_ref = $1
		  AND status IN ('pending', 'processing')
		ORDER BY created_at DESC
		LIMIT 1
	`, inputRef)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active job by input ref: %w", err)
	}
	return job, nil
}

// MarkProcessing transitions a pending job to processing. The attempt counter
// tracks the 1-based number of the current delivery attempt: the first
// dispatch raises it from 0 to 1, while a redispatch after a retry grant
// leaves the value the retry grant already assigned.
func (r *JobRepo) MarkProcessing(ctx context.Context, id string) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE planner_jobs
		SET status = 'processing',
		    started_at = $2,
		    attempt_count = GREATEST(attempt_count, 1),
		    updated_at = $2
		WHERE id = $1 AND status = 'pending'
	`, id, currentTime)
	if err != nil {
		return false, fmt.Errorf("mark job processing: %w", err)
	}
	return oneRowAffected(res)
}

// ResetForRetry transitions a processing job back to pending for one more
// attempt, incrementing attempt_count and clearing error fields.
func (r *JobRepo) ResetForRetry(ctx context.Context, id string) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE planner_jobs
		SET status = 'pending',
		    attempt_count = attempt_count + 1,
		    error_code = NULL,
		    error_message = NULL,
		    started_at = NULL,
		    updated_at = $2
		WHERE id = $1 AND status = 'processing'
	`, id, currentTime)
	if err != nil {
		return false, fmt.Errorf("reset job for retry: %w", err)
	}
	return oneRowAffected(res)
}

// FailFromProcessing finalizes a processing job as failed. The status guard
// keeps a stale failure verdict from clobbering a job the reaper already
// reset for another attempt.
func (r *JobRepo) FailFromProcessing(ctx context.Context, params core.FailJobParams) (bool, error) {
	if params.Code == "" {
		return false, errors.New("error code is required")
	}

	currentTime := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE planner_jobs
		SET status = 'failed',
		    error_code = $2,
		    error_message = $3,
		    completed_at = $4,
		    updated_at = $4
		WHERE id = $1 AND status = 'processing'
	`, params.ID, params.Code, params.Message, currentTime)
	if err != nil {
		return false, fmt.Errorf("fail job: %w", err)
	}
	return oneRowAffected(res)
}

// FailNonTerminal finalizes any non-terminal job as failed. Terminal states
// are sticky: a job already in success or failed is left untouched and the
// method reports false.
func (r *JobRepo) FailNonTerminal(ctx context.Context, params core.FailJobParams) (bool, error) {
	if params.Code == "" {
		return false, errors.New("error code is required")
	}

	currentTime := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE planner_jobs
		SET status = 'failed',
		    error_code = $2,
		    error_message = $3,
		    completed_at = $4,
		    updated_at = $4
		WHERE id = $1 AND status IN ('pending', 'processing')
	`, params.ID, params.Code, params.Message, currentTime)
	if err != nil {
		return false, fmt.Errorf("fail job: %w", err)
	}
	return oneRowAffected(res)
}

// Stats returns counts of jobs per status for one kind.
func (r *JobRepo) Stats(ctx context.Context, kind model.JobKind) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
	  SELECT
	    count(*) FILTER (WHERE status = 'pending')    AS pending,
	    count(*) FILTER (WHERE status = 'processing') AS processing,
	    count(*) FILTER (WHERE status = 'success')    AS success,
	    count(*) FILTER (WHERE status = 'failed')     AS failed
	  FROM planner_jobs
	  WHERE kind = $1
	`, kind).Scan(&s.Pending, &s.Processing, &s.Success, &s.Failed)
	if err != nil {
		return nil, fmt.Errorf("get job stats: %w", err)
	}
	return &s, nil
}

func oneRowAffected(res sql.Result) (bool, error) {
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// completeJobInTx performs the conditional success transition inside a
// side-effect write transaction. It is the sole path to the success state,
// and its WHERE clause is what makes duplicate callback deliveries and
// reaper races safe: zero rows affected means another writer finalized the
// job first, and the caller must roll back.
func completeJobInTx(ctx context.Context, tx *sql.Tx, params completeJobParams) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE planner_jobs
		SET status = 'success',
		    result_ref = $2,
		    error_code = NULL,
		    error_message = NULL,
		    completed_at = $3,
		    updated_at = $3
		WHERE id = $1 AND status IN ('pending', 'processing')
	`, params.JobID, params.ResultRef, params.Now)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}

	applied, err := oneRowAffected(res)
	if err != nil {
		return err
	}
	if !applied {
		return ErrTerminalRace
	}
	return nil
}

type completeJobParams struct {
	JobID     string
	ResultRef string
	Now       time.Time
}
