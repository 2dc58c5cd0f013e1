package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wanderplan/planner-api/internal/core"
	"github.com/wanderplan/planner-api/internal/data/pgxutil"
	"github.com/wanderplan/planner-api/internal/domain/model"
)

// Advisory lock namespace for reaper operations, two-arg
// pg_try_advisory_xact_lock(major, minor). Major key 2000 is reserved for
// the planner reaper.
const (
	advisoryLockReaperMajor       = 2000
	advisoryLockReaperFailPending = 1 // minor key for FailStalePendingJobs
	advisoryLockReaperDelete      = 2 // minor key for DeleteOldJobs
)

var _ core.ReaperRepository = (*JobRepo)(nil)

// ListStaleProcessing returns processing jobs whose started_at is older than
// the timeout. The listing is a candidate scan only: by the time the reaper
// acts on a row the callback may have finalized it, so every decision is
// made against a fresh GetByID read, never against this snapshot.
func (r *JobRepo) ListStaleProcessing(
	ctx context.Context,
	olderThan time.Duration,
	limit int,
) ([]*model.Job, error) {
	cutoffTime := r.timeProvider.Now().Add(-olderThan).UTC()

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM planner_jobs
		WHERE status = 'processing'
		  AND started_at IS NOT NULL
		  AND started_at < $1
		ORDER BY started_at
		LIMIT $2
	`, cutoffTime, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale processing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan stale job: %w", scanErr)
		}
		jobs = append(jobs, job)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate stale jobs: %w", rowsErr)
	}
	return jobs, nil
}

// FailStalePendingJobs fails pending jobs older than maxAge that were never
// picked up. Uses advisory locks so concurrent reaper instances do not
// duplicate the sweep, and batches to prevent long locks.
func (r *JobRepo) FailStalePendingJobs(
	ctx context.Context,
	maxAge time.Duration,
	batchSize int,
) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)",
				advisoryLockReaperMajor, advisoryLockReaperFailPending).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now().UTC()
			cutoffTime := currentTime.Add(-maxAge)

			res, err := tx.ExecContext(ctx, `
				UPDATE planner_jobs
				SET status = 'failed',
				    error_code = $1,
				    error_message = 'job was never picked up from the queue',
				    completed_at = $2,
				    updated_at = $2
				WHERE id IN (
					SELECT id FROM planner_jobs
					WHERE status = 'pending'
					  AND created_at < $3
					ORDER BY created_at
					LIMIT $4
				)
			`, model.ErrCodeQueueStalled, currentTime, cutoffTime, batchSize)
			if err != nil {
				return fmt.Errorf("fail stale pending jobs: %w", err)
			}

			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// DeleteOldJobs prunes terminal jobs older than maxAge. Job records are an
// audit trail; this only runs when retention is explicitly configured.
func (r *JobRepo) DeleteOldJobs(ctx context.Context, params core.DeleteOldJobsParams) (int64, error) {
	if !params.Status.Terminal() {
		return 0, fmt.Errorf("only terminal jobs may be pruned, got status %q", params.Status)
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)",
				advisoryLockReaperMajor, advisoryLockReaperDelete).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			cutoffTime := r.timeProvider.Now().Add(-params.MaxAge).UTC()
			res, err := tx.ExecContext(ctx, `
				DELETE FROM planner_jobs
				WHERE id IN (
					SELECT id FROM planner_jobs
					WHERE status = $1
					  AND completed_at < $2
					ORDER BY completed_at
					LIMIT $3
				)
			`, params.Status, cutoffTime, params.BatchSize)
			if err != nil {
				return fmt.Errorf("delete old jobs: %w", err)
			}

			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}
