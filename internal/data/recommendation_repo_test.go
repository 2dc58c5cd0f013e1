package data

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderplan/planner-api/internal/core"
	"github.com/wanderplan/planner-api/internal/domain/model"
	"github.com/wanderplan/planner-api/internal/testutil"
)

func TestReplaceRecommendationsFromResult(t *testing.T) {
	db := testutil.SetupTestDB(t)
	jobs := NewJobRepo(db, JobRepoConfig{})
	recommendations := NewRecommendationRepo(db, RecommendationRepoConfig{})
	ctx := context.Background()

	ownerID := uuid.NewString()
	prefID := seedPreference(t, db, ownerID)
	job := createJob(t, jobs, model.JobKindRecommendation, ownerID, prefID)
	claimJob(t, jobs, job.ID)

	result := testutil.RecommendationResultFixture()
	setID, err := recommendations.ReplaceFromResult(ctx, core.ReplaceRecommendationParams{
		Job:           job,
		PreferenceRef: prefID,
		Result:        result,
	})
	require.NoError(t, err)
	require.NotEmpty(t, setID)

	loaded, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSuccess, loaded.Status)
	require.NotNil(t, loaded.ResultRef)
	assert.Equal(t, setID, *loaded.ResultRef)

	set, err := recommendations.GetByID(ctx, setID)
	require.NoError(t, err)
	assert.Equal(t, prefID, set.PreferenceRef)
	require.Len(t, set.Places, len(result.Places))
	assert.Equal(t, 1, set.Places[0].Rank)
	assert.Equal(t, result.Places[0].PlaceName, set.Places[0].PlaceName)
	assert.Equal(t, 2, set.Places[1].Rank)
}

func TestReplaceRecommendationsOverwritesPreviousList(t *testing.T) {
	db := testutil.SetupTestDB(t)
	jobs := NewJobRepo(db, JobRepoConfig{})
	recommendations := NewRecommendationRepo(db, RecommendationRepoConfig{})
	ctx := context.Background()

	ownerID := uuid.NewString()
	prefID := seedPreference(t, db, ownerID)

	first := createJob(t, jobs, model.JobKindRecommendation, ownerID, prefID)
	claimJob(t, jobs, first.ID)
	firstSetID, err := recommendations.ReplaceFromResult(ctx, core.ReplaceRecommendationParams{
		Job:           first,
		PreferenceRef: prefID,
		Result:        testutil.RecommendationResultFixture(),
	})
	require.NoError(t, err)

	// A later job for the same preference set replaces the list in place.
	second := createJob(t, jobs, model.JobKindRecommendation, ownerID, prefID)
	claimJob(t, jobs, second.ID)
	secondSetID, err := recommendations.ReplaceFromResult(ctx, core.ReplaceRecommendationParams{
		Job:           second,
		PreferenceRef: prefID,
		Result: &model.RecommendationResult{
			Places: []model.PlaceResult{
				{PlaceName: "Hokkaido", Country: "Japan", Score: 0.91, Reason: "powder snow"},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, firstSetID, secondSetID)

	set, err := recommendations.GetByID(ctx, secondSetID)
	require.NoError(t, err)
	require.Len(t, set.Places, 1)
	assert.Equal(t, "Hokkaido", set.Places[0].PlaceName)
}

func TestReplaceRecommendationsDuplicateCallbackRollsBack(t *testing.T) {
	db := testutil.SetupTestDB(t)
	jobs := NewJobRepo(db, JobRepoConfig{})
	recommendations := NewRecommendationRepo(db, RecommendationRepoConfig{})
	ctx := context.Background()

	ownerID := uuid.NewString()
	prefID := seedPreference(t, db, ownerID)
	job := createJob(t, jobs, model.JobKindRecommendation, ownerID, prefID)
	claimJob(t, jobs, job.ID)

	setID, err := recommendations.ReplaceFromResult(ctx, core.ReplaceRecommendationParams{
		Job:           job,
		PreferenceRef: prefID,
		Result:        testutil.RecommendationResultFixture(),
	})
	require.NoError(t, err)

	_, err = recommendations.ReplaceFromResult(ctx, core.ReplaceRecommendationParams{
		Job:           job,
		PreferenceRef: prefID,
		Result: &model.RecommendationResult{
			Places: []model.PlaceResult{{PlaceName: "Nowhere"}},
		},
	})
	assert.ErrorIs(t, err, ErrTerminalRace)

	// The rollback preserved the applied list.
	set, err := recommendations.GetByID(ctx, setID)
	require.NoError(t, err)
	require.Len(t, set.Places, 2)
	assert.NotEqual(t, "Nowhere", set.Places[0].PlaceName)
}

func TestRecommendationGetByIDNotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	recommendations := NewRecommendationRepo(db, RecommendationRepoConfig{})

	_, err := recommendations.GetByID(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrRecommendationNotFound)
}
