package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wanderplan/planner-api/internal/core"
	"github.com/wanderplan/planner-api/internal/data"
	"github.com/wanderplan/planner-api/internal/domain/model"
	apperrors "github.com/wanderplan/planner-api/internal/errors"
)

// JobKindStrategy captures everything that differs between job kinds: input
// validation at enqueue, payload assembly at dispatch, and result
// materialization at callback. The job lifecycle itself is kind-agnostic.
type JobKindStrategy interface {
	Kind() model.JobKind

	// ValidateInput checks that the input aggregate exists and belongs to
	// the owner before a job is accepted.
	ValidateInput(ctx context.Context, ownerID, inputRef string) error

	// BuildPayload assembles the planner request payload for a job.
	BuildPayload(ctx context.Context, job *model.Job) (json.RawMessage, error)

	// ApplyResult decodes and persists a success payload. The write includes
	// the job's success transition; data.ErrTerminalRace means another writer
	// finalized the job first and nothing was persisted.
	ApplyResult(ctx context.Context, job *model.Job, payload json.RawMessage) (string, error)

	// Result loads the materialized result aggregate of a successful job.
	Result(ctx context.Context, job *model.Job) (any, error)
}

// StrategyRegistry resolves a strategy by job kind.
type StrategyRegistry map[model.JobKind]JobKindStrategy

// NewStrategyRegistry builds a registry from the given strategies.
func NewStrategyRegistry(strategies ...JobKindStrategy) (StrategyRegistry, error) {
	reg := make(StrategyRegistry, len(strategies))
	for _, s := range strategies {
		if s == nil {
			return nil, errors.New("nil strategy")
		}
		if _, dup := reg[s.Kind()]; dup {
			return nil, fmt.Errorf("duplicate strategy for kind %q", s.Kind())
		}
		reg[s.Kind()] = s
	}
	return reg, nil
}

// ForKind returns the strategy for a kind.
func (r StrategyRegistry) ForKind(kind model.JobKind) (JobKindStrategy, error) {
	s, ok := r[kind]
	if !ok {
		return nil, apperrors.Validation(fmt.Sprintf("unsupported job kind: %q", kind))
	}
	return s, nil
}

// GenerationStrategy handles generation jobs: a trip survey in, a fresh
// itinerary out.
type GenerationStrategy struct {
	Surveys     core.SurveyRepository
	Itineraries core.ItineraryRepository
}

var _ JobKindStrategy = (*GenerationStrategy)(nil)

// Kind implements JobKindStrategy.
func (s *GenerationStrategy) Kind() model.JobKind { return model.JobKindGeneration }

// ValidateInput implements JobKindStrategy.
func (s *GenerationStrategy) ValidateInput(ctx context.Context, ownerID, inputRef string) error {
	survey, err := s.Surveys.GetByID(ctx, inputRef)
	if errors.Is(err, data.ErrSurveyNotFound) {
		return apperrors.NotFound("trip survey not found")
	}
	if err != nil {
		return apperrors.Internal("load trip survey", err)
	}
	if survey.OwnerID != ownerID {
		return apperrors.Forbidden("trip survey belongs to another user")
	}
	return nil
}

type generationPayload struct {
	Survey *model.TripSurvey `json:"survey"`
}

// BuildPayload implements JobKindStrategy.
func (s *GenerationStrategy) BuildPayload(ctx context.Context, job *model.Job) (json.RawMessage, error) {
	survey, err := s.Surveys.GetByID(ctx, job.InputRef)
	if err != nil {
		return nil, fmt.Errorf("load trip survey %s: %w", job.InputRef, err)
	}
	return json.Marshal(generationPayload{Survey: survey})
}

// ApplyResult implements JobKindStrategy.
func (s *GenerationStrategy) ApplyResult(ctx context.Context, job *model.Job, payload json.RawMessage) (string, error) {
	var result model.ItineraryResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return "", apperrors.Validation("malformed itinerary result: " + err.Error())
	}
	return s.Itineraries.CreateFromResult(ctx, core.CreateItineraryParams{
		Job:    job,
		Result: &result,
	})
}

// Result implements JobKindStrategy.
func (s *GenerationStrategy) Result(ctx context.Context, job *model.Job) (any, error) {
	if job.ResultRef == nil {
		return nil, apperrors.NotFound("job has no result")
	}
	return s.Itineraries.GetByID(ctx, *job.ResultRef)
}

// ModificationStrategy handles modification jobs: an existing itinerary is
// sent out and its replacement graph swapped in.
type ModificationStrategy struct {
	Itineraries core.ItineraryRepository
}

var _ JobKindStrategy = (*ModificationStrategy)(nil)

// Kind implements JobKindStrategy.
func (s *ModificationStrategy) Kind() model.JobKind { return model.JobKindModification }

// ValidateInput implements JobKindStrategy.
func (s *ModificationStrategy) ValidateInput(ctx context.Context, ownerID, inputRef string) error {
	itinerary, err := s.Itineraries.GetByID(ctx, inputRef)
	if errors.Is(err, data.ErrItineraryNotFound) {
		return apperrors.NotFound("itinerary not found")
	}
	if err != nil {
		return apperrors.Internal("load itinerary", err)
	}
	if itinerary.OwnerID != ownerID {
		return apperrors.Forbidden("itinerary belongs to another user")
	}
	return nil
}

type modificationPayload struct {
	Itinerary *model.Itinerary `json:"itinerary"`
}

// BuildPayload implements JobKindStrategy.
func (s *ModificationStrategy) BuildPayload(ctx context.Context, job *model.Job) (json.RawMessage, error) {
	itinerary, err := s.Itineraries.GetByID(ctx, job.InputRef)
	if err != nil {
		return nil, fmt.Errorf("load itinerary %s: %w", job.InputRef, err)
	}
	return json.Marshal(modificationPayload{Itinerary: itinerary})
}

// ApplyResult implements JobKindStrategy.
func (s *ModificationStrategy) ApplyResult(ctx context.Context, job *model.Job, payload json.RawMessage) (string, error) {
	var result model.ItineraryResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return "", apperrors.Validation("malformed itinerary result: " + err.Error())
	}
	return s.Itineraries.ReplaceFromResult(ctx, core.ReplaceItineraryParams{
		Job:         job,
		ItineraryID: job.InputRef,
		Result:      &result,
	})
}

// Result implements JobKindStrategy.
func (s *ModificationStrategy) Result(ctx context.Context, job *model.Job) (any, error) {
	if job.ResultRef == nil {
		return nil, apperrors.NotFound("job has no result")
	}
	return s.Itineraries.GetByID(ctx, *job.ResultRef)
}

// RecommendationStrategy handles recommendation jobs: a preference set in, a
// ranked destination list out.
type RecommendationStrategy struct {
	Preferences     core.PreferenceRepository
	Recommendations core.RecommendationRepository
}

var _ JobKindStrategy = (*RecommendationStrategy)(nil)

// Kind implements JobKindStrategy.
func (s *RecommendationStrategy) Kind() model.JobKind { return model.JobKindRecommendation }

// ValidateInput implements JobKindStrategy.
func (s *RecommendationStrategy) ValidateInput(ctx context.Context, ownerID, inputRef string) error {
	pref, err := s.Preferences.GetByID(ctx, inputRef)
	if errors.Is(err, data.ErrPreferenceNotFound) {
		return apperrors.NotFound("preference set not found")
	}
	if err != nil {
		return apperrors.Internal("load preference set", err)
	}
	if pref.OwnerID != ownerID {
		return apperrors.Forbidden("preference set belongs to another user")
	}
	return nil
}

type recommendationPayload struct {
	Preferences *model.PreferenceSet `json:"preferences"`
}

// BuildPayload implements JobKindStrategy.
func (s *RecommendationStrategy) BuildPayload(ctx context.Context, job *model.Job) (json.RawMessage, error) {
	pref, err := s.Preferences.GetByID(ctx, job.InputRef)
	if err != nil {
		return nil, fmt.Errorf("load preference set %s: %w", job.InputRef, err)
	}
	return json.Marshal(recommendationPayload{Preferences: pref})
}

// ApplyResult implements JobKindStrategy.
func (s *RecommendationStrategy) ApplyResult(ctx context.Context, job *model.Job, payload json.RawMessage) (string, error) {
	var result model.RecommendationResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return "", apperrors.Validation("malformed recommendation result: " + err.Error())
	}
	return s.Recommendations.ReplaceFromResult(ctx, core.ReplaceRecommendationParams{
		Job:           job,
		PreferenceRef: job.InputRef,
		Result:        &result,
	})
}

// Result implements JobKindStrategy.
func (s *RecommendationStrategy) Result(ctx context.Context, job *model.Job) (any, error) {
	if job.ResultRef == nil {
		return nil, apperrors.NotFound("job has no result")
	}
	return s.Recommendations.GetByID(ctx, *job.ResultRef)
}
