package data

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderplan/planner-api/internal/core"
	"github.com/wanderplan/planner-api/internal/domain/model"
	"github.com/wanderplan/planner-api/internal/testutil"
)

func TestCreateFromResult(t *testing.T) {
	db := testutil.SetupTestDB(t)
	jobs := NewJobRepo(db, JobRepoConfig{})
	itineraries := NewItineraryRepo(db, ItineraryRepoConfig{})
	ctx := context.Background()

	ownerID := uuid.NewString()
	surveyID := seedSurvey(t, db, ownerID)
	job := createJob(t, jobs, model.JobKindGeneration, ownerID, surveyID)
	claimJob(t, jobs, job.ID)

	result := testutil.ItineraryResultFixture()
	itineraryID, err := itineraries.CreateFromResult(ctx, core.CreateItineraryParams{
		Job:    job,
		Result: result,
	})
	require.NoError(t, err)
	require.NotEmpty(t, itineraryID)

	// The job finalized in the same transaction.
	loaded, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSuccess, loaded.Status)
	require.NotNil(t, loaded.ResultRef)
	assert.Equal(t, itineraryID, *loaded.ResultRef)
	assert.NotNil(t, loaded.CompletedAt)

	it, err := itineraries.GetByID(ctx, itineraryID)
	require.NoError(t, err)
	assert.Equal(t, result.Title, it.Title)
	assert.Equal(t, ownerID, it.OwnerID)
	assert.Equal(t, surveyID, it.SurveyRef)
	assert.Equal(t, len(result.Days), it.DayCount)
	assert.ElementsMatch(t, result.Tags, it.Tags)

	require.Len(t, it.Days, len(result.Days))
	require.Len(t, it.Days[0].Visits, len(result.Days[0].Visits))
	assert.Equal(t, result.Days[0].Visits[0].PlaceName, it.Days[0].Visits[0].PlaceName)
	assert.Equal(t, 0, it.Days[0].DayIndex)
	assert.Equal(t, 1, it.Days[0].Visits[1].VisitIndex)
}

func TestCreateFromResultDuplicateCallbackRollsBack(t *testing.T) {
	db := testutil.SetupTestDB(t)
	jobs := NewJobRepo(db, JobRepoConfig{})
	itineraries := NewItineraryRepo(db, ItineraryRepoConfig{})
	ctx := context.Background()

	ownerID := uuid.NewString()
	surveyID := seedSurvey(t, db, ownerID)
	job := createJob(t, jobs, model.JobKindGeneration, ownerID, surveyID)
	claimJob(t, jobs, job.ID)

	_, err := itineraries.CreateFromResult(ctx, core.CreateItineraryParams{
		Job:    job,
		Result: testutil.ItineraryResultFixture(),
	})
	require.NoError(t, err)

	// Second delivery of the same callback: the job is already terminal, so
	// the whole write rolls back and nothing new is persisted.
	dupID, err := itineraries.CreateFromResult(ctx, core.CreateItineraryParams{
		Job:    job,
		Result: testutil.ItineraryResultFixture(),
	})
	assert.ErrorIs(t, err, ErrTerminalRace)
	assert.Empty(t, dupID)

	var count int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM itineraries`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestCreateFromResultRejectsInvalidPayload(t *testing.T) {
	db := testutil.SetupTestDB(t)
	itineraries := NewItineraryRepo(db, ItineraryRepoConfig{})

	job := testutil.NewJob().Build()
	_, err := itineraries.CreateFromResult(context.Background(), core.CreateItineraryParams{
		Job:    job,
		Result: &model.ItineraryResult{Title: "no days"},
	})
	assert.Error(t, err)
}

func TestReplaceFromResult(t *testing.T) {
	db := testutil.SetupTestDB(t)
	jobs := NewJobRepo(db, JobRepoConfig{})
	itineraries := NewItineraryRepo(db, ItineraryRepoConfig{})
	ctx := context.Background()

	ownerID := uuid.NewString()
	surveyID := seedSurvey(t, db, ownerID)
	genJob := createJob(t, jobs, model.JobKindGeneration, ownerID, surveyID)
	claimJob(t, jobs, genJob.ID)

	itineraryID, err := itineraries.CreateFromResult(ctx, core.CreateItineraryParams{
		Job:    genJob,
		Result: testutil.ItineraryResultFixture(),
	})
	require.NoError(t, err)

	modJob := createJob(t, jobs, model.JobKindModification, ownerID, itineraryID)
	claimJob(t, jobs, modJob.ID)

	replacement := &model.ItineraryResult{
		Title:     "Lisbon, slower",
		StartDate: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC),
		Tags:      []string{"slow-travel"},
		Days: []model.DayResult{
			{
				Date:    time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
				Summary: "Belém",
				Visits: []model.VisitResult{
					{PlaceName: "Mosteiro dos Jerónimos", Category: "sight"},
				},
			},
			{
				Date:    time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC),
				Summary: "Sintra day trip",
				Visits: []model.VisitResult{
					{PlaceName: "Palácio da Pena", Category: "sight"},
					{PlaceName: "Quinta da Regaleira", Category: "sight"},
				},
			},
		},
	}

	replacedID, err := itineraries.ReplaceFromResult(ctx, core.ReplaceItineraryParams{
		Job:         modJob,
		ItineraryID: itineraryID,
		Result:      replacement,
	})
	require.NoError(t, err)
	assert.Equal(t, itineraryID, replacedID)

	it, err := itineraries.GetByID(ctx, itineraryID)
	require.NoError(t, err)
	assert.Equal(t, "Lisbon, slower", it.Title)
	assert.Equal(t, 2, it.DayCount)
	assert.Equal(t, []string{"slow-travel"}, it.Tags)
	require.Len(t, it.Days, 2)
	assert.Equal(t, "Sintra day trip", it.Days[1].Summary)
	require.Len(t, it.Days[1].Visits, 2)

	loaded, err := jobs.GetByID(ctx, modJob.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSuccess, loaded.Status)
}

func TestReplaceFromResultUnknownItinerary(t *testing.T) {
	db := testutil.SetupTestDB(t)
	itineraries := NewItineraryRepo(db, ItineraryRepoConfig{})

	job := testutil.NewJob().WithKind(model.JobKindModification).Build()
	_, err := itineraries.ReplaceFromResult(context.Background(), core.ReplaceItineraryParams{
		Job:         job,
		ItineraryID: uuid.NewString(),
		Result:      testutil.ItineraryResultFixture(),
	})
	assert.ErrorIs(t, err, ErrItineraryNotFound)
}

func TestItineraryGetByIDNotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	itineraries := NewItineraryRepo(db, ItineraryRepoConfig{})

	_, err := itineraries.GetByID(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrItineraryNotFound)
}
