// Package core contains the repository and adapter interfaces (ports) of the
// planner service. Services depend on these contracts, not on concrete
// implementations.
package core

import (
	"context"
	"time"

	"github.com/wanderplan/planner-api/internal/domain/model"
)

// FailJobParams groups parameters for finalizing a job as failed.
type FailJobParams struct {
	ID      string
	Code    string
	Message string
}

// JobRepository defines persistence for job records. Every state-changing
// method is a conditional update keyed on the expected prior status and
// reports via its bool result whether the transition was actually applied;
// false means another writer got there first and the caller must treat the
// call as a no-op.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)

	// FindActiveByInputRef returns the non-terminal job for an input
	// reference, or nil when there is none.
	FindActiveByInputRef(ctx context.Context, inputRef string) (*model.Job, error)

	// MarkProcessing transitions pending → processing, stamps started_at and
	// ensures attempt_count is at least 1.
	MarkProcessing(ctx context.Context, id string) (bool, error)

	// ResetForRetry transitions processing → pending for one more attempt,
	// incrementing attempt_count and clearing error fields.
	ResetForRetry(ctx context.Context, id string) (bool, error)

	// FailFromProcessing finalizes a processing job as failed. A job that is
	// pending (reset for another attempt) or already terminal is left
	// untouched.
	FailFromProcessing(ctx context.Context, params FailJobParams) (bool, error)

	// FailNonTerminal finalizes any non-terminal job as failed.
	FailNonTerminal(ctx context.Context, params FailJobParams) (bool, error)

	Stats(ctx context.Context, kind model.JobKind) (*model.JobStats, error)
}

// SurveyRepository reads trip surveys (generation inputs).
type SurveyRepository interface {
	GetByID(ctx context.Context, id string) (*model.TripSurvey, error)
}

// PreferenceRepository reads preference sets (recommendation inputs).
type PreferenceRepository interface {
	GetByID(ctx context.Context, id string) (*model.PreferenceSet, error)
}

// CreateItineraryParams groups parameters for materializing a generated
// itinerary.
type CreateItineraryParams struct {
	Job    *model.Job
	Result *model.ItineraryResult
}

// ReplaceItineraryParams groups parameters for replacing an existing
// itinerary's graph on a modification job.
type ReplaceItineraryParams struct {
	Job         *model.Job
	ItineraryID string
	Result      *model.ItineraryResult
}

// ItineraryRepository is the side-effect writer for itinerary results. Both
// write methods run a single transaction spanning the nested graph write,
// the owning aggregate's summary fields, and the job's conditional success
// transition; when that transition affects no row the whole transaction is
// rolled back and ErrTerminalRace is returned.
type ItineraryRepository interface {
	GetByID(ctx context.Context, id string) (*model.Itinerary, error)

	// CreateFromResult inserts a new itinerary graph for a generation job
	// and returns the new itinerary id.
	CreateFromResult(ctx context.Context, params CreateItineraryParams) (string, error)

	// ReplaceFromResult deletes the itinerary's previous nested graph and
	// inserts the replacement for a modification job.
	ReplaceFromResult(ctx context.Context, params ReplaceItineraryParams) (string, error)
}

// ReplaceRecommendationParams groups parameters for replacing a preference
// set's recommendations.
type ReplaceRecommendationParams struct {
	Job           *model.Job
	PreferenceRef string
	Result        *model.RecommendationResult
}

// RecommendationRepository is the side-effect writer for recommendation
// results, with the same transactional contract as ItineraryRepository.
type RecommendationRepository interface {
	GetByID(ctx context.Context, id string) (*model.RecommendationSet, error)

	// ReplaceFromResult upserts the recommendation set for a preference
	// reference, replaces its places, and returns the set id.
	ReplaceFromResult(ctx context.Context, params ReplaceRecommendationParams) (string, error)
}

// DeleteOldJobsParams groups parameters for retention pruning.
type DeleteOldJobsParams struct {
	Status    model.JobStatus
	MaxAge    time.Duration
	BatchSize int
}

// ReaperRepository defines the sweep queries of the stale-job reaper. The
// listing is only a candidate scan: callers must re-fetch each job and
// re-check its status before deciding anything.
type ReaperRepository interface {
	// ListStaleProcessing returns processing jobs whose started_at is older
	// than the timeout.
	ListStaleProcessing(ctx context.Context, olderThan time.Duration, limit int) ([]*model.Job, error)

	// FailStalePendingJobs fails pending jobs older than maxAge that were
	// never picked up. Returns the number of jobs failed.
	FailStalePendingJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)

	// DeleteOldJobs prunes terminal jobs older than maxAge. Returns the
	// number of jobs deleted.
	DeleteOldJobs(ctx context.Context, params DeleteOldJobsParams) (int64, error)
}

// TaskPublisher pushes dispatch tasks onto the durable queue.
type TaskPublisher interface {
	Publish(ctx context.Context, task model.DispatchTask) error
}

// PlannerClient submits work to the external planner service. The call only
// confirms acceptance; the result arrives later via the callback endpoint.
type PlannerClient interface {
	Submit(ctx context.Context, req model.PlannerRequest) error
}

// TerminalNotifier broadcasts terminal transitions for real-time listeners.
// Delivery is best effort; callers log and swallow errors.
type TerminalNotifier interface {
	PublishTerminal(ctx context.Context, n model.JobNotification) error
}
