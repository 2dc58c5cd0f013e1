package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wanderplan/planner-api/internal/domain/model"
)

// stubClock pins repository time for deterministic staleness checks.
type stubClock struct {
	now time.Time
}

func (c stubClock) Now() time.Time { return c.now }

func seedSurvey(t *testing.T, db *sql.DB, ownerID string) string {
	t.Helper()
	id := uuid.NewString()
	_, err := db.Exec(`
		INSERT INTO trip_surveys (id, owner_id, destination, start_date, end_date, party_size, pace, interests)
		VALUES ($1, $2, 'Lisbon', '2026-05-01', '2026-05-03', 2, 'relaxed', '["food","history"]'::jsonb)
	`, id, ownerID)
	require.NoError(t, err)
	return id
}

func seedPreference(t *testing.T, db *sql.DB, ownerID string) string {
	t.Helper()
	id := uuid.NewString()
	_, err := db.Exec(`
		INSERT INTO preference_sets (id, owner_id, themes, budget, season, companions)
		VALUES ($1, $2, '["beach","culture"]'::jsonb, 'medium', 'summer', 'partner')
	`, id, ownerID)
	require.NoError(t, err)
	return id
}

func createJob(t *testing.T, repo *JobRepo, kind model.JobKind, ownerID, inputRef string) *model.Job {
	t.Helper()
	job, err := repo.Create(context.Background(), &model.CreateJobRequest{
		Kind:     kind,
		OwnerID:  ownerID,
		InputRef: inputRef,
	})
	require.NoError(t, err)
	return job
}

func claimJob(t *testing.T, repo *JobRepo, id string) {
	t.Helper()
	applied, err := repo.MarkProcessing(context.Background(), id)
	require.NoError(t, err)
	require.True(t, applied)
}
