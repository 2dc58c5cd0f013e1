package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/wanderplan/planner-api/internal/domain/model"
)

// JobBuilder builds Job fixtures with sensible defaults.
type JobBuilder struct {
	job model.Job
}

// NewJob creates a JobBuilder for a pending generation job.
func NewJob() *JobBuilder {
	now := time.Now().UTC()
	return &JobBuilder{job: model.Job{
		ID:        uuid.NewString(),
		Kind:      model.JobKindGeneration,
		Status:    model.JobStatusPending,
		OwnerID:   uuid.NewString(),
		InputRef:  uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}}
}

// WithKind sets the job kind.
func (b *JobBuilder) WithKind(kind model.JobKind) *JobBuilder {
	b.job.Kind = kind
	return b
}

// WithStatus sets the job status, stamping started_at or completed_at as the
// status implies.
func (b *JobBuilder) WithStatus(status model.JobStatus) *JobBuilder {
	b.job.Status = status
	now := time.Now().UTC()
	switch status {
	case model.JobStatusProcessing:
		b.job.StartedAt = &now
		if b.job.AttemptCount == 0 {
			b.job.AttemptCount = 1
		}
	case model.JobStatusSuccess, model.JobStatusFailed:
		b.job.CompletedAt = &now
	case model.JobStatusPending:
	}
	return b
}

// WithOwner sets the owner id.
func (b *JobBuilder) WithOwner(ownerID string) *JobBuilder {
	b.job.OwnerID = ownerID
	return b
}

// WithInputRef sets the input reference.
func (b *JobBuilder) WithInputRef(inputRef string) *JobBuilder {
	b.job.InputRef = inputRef
	return b
}

// WithAttemptCount sets the attempt counter.
func (b *JobBuilder) WithAttemptCount(n int) *JobBuilder {
	b.job.AttemptCount = n
	return b
}

// WithStartedAt sets started_at.
func (b *JobBuilder) WithStartedAt(t time.Time) *JobBuilder {
	b.job.StartedAt = &t
	return b
}

// Build returns the job.
func (b *JobBuilder) Build() *model.Job {
	job := b.job
	return &job
}

// ItineraryResultFixture returns a minimal valid itinerary result.
func ItineraryResultFixture() *model.ItineraryResult {
	return &model.ItineraryResult{
		Title:     "Three days in Lisbon",
		StartDate: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC),
		Tags:      []string{"food", "history"},
		Days: []model.DayResult{
			{
				Date:    time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
				Summary: "Alfama and the castle",
				Visits: []model.VisitResult{
					{PlaceName: "Castelo de São Jorge", Category: "sight", Latitude: 38.7139, Longitude: -9.1335},
					{PlaceName: "Miradouro de Santa Luzia", Category: "viewpoint", Latitude: 38.7118, Longitude: -9.1301},
				},
			},
		},
	}
}

// RecommendationResultFixture returns a minimal valid recommendation result.
func RecommendationResultFixture() *model.RecommendationResult {
	return &model.RecommendationResult{
		Places: []model.PlaceResult{
			{PlaceName: "Kyoto", Country: "Japan", Score: 0.94, Reason: "temples and autumn foliage"},
			{PlaceName: "Porto", Country: "Portugal", Score: 0.88, Reason: "river views and wine cellars"},
		},
	}
}
