package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wanderplan/planner-api/internal/core"
	"github.com/wanderplan/planner-api/internal/domain/model"
)

// SurveyRepo reads trip surveys. Survey CRUD belongs to the main travel API;
// the planner only validates ownership and assembles dispatch payloads.
type SurveyRepo struct {
	DB *sql.DB
}

// NewSurveyRepo creates a new SurveyRepo.
func NewSurveyRepo(db *sql.DB) *SurveyRepo {
	return &SurveyRepo{DB: db}
}

var _ core.SurveyRepository = (*SurveyRepo)(nil)

// ErrSurveyNotFound is returned when a trip survey is not found.
var ErrSurveyNotFound = errors.New("trip survey not found")

// ErrPreferenceNotFound is returned when a preference set is not found.
var ErrPreferenceNotFound = errors.New("preference set not found")

func decodeStringList(raw []byte, dest *[]string) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

// GetByID retrieves a trip survey by its ID.
func (r *SurveyRepo) GetByID(ctx context.Context, id string) (*model.TripSurvey, error) {
	var (
		survey       model.TripSurvey
		rawInterests []byte
	)
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, owner_id, destination, start_date, end_date, party_size, pace, interests, created_at
		FROM trip_surveys
		WHERE id = $1
	`, id).Scan(
		&survey.ID,
		&survey.OwnerID,
		&survey.Destination,
		&survey.StartDate,
		&survey.EndDate,
		&survey.PartySize,
		&survey.Pace,
		&rawInterests,
		&survey.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSurveyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trip survey: %w", err)
	}
	if err := decodeStringList(rawInterests, &survey.Interests); err != nil {
		return nil, fmt.Errorf("decode survey interests: %w", err)
	}
	return &survey, nil
}

// PreferenceRepo reads preference sets for recommendation jobs.
type PreferenceRepo struct {
	DB *sql.DB
}

// NewPreferenceRepo creates a new PreferenceRepo.
func NewPreferenceRepo(db *sql.DB) *PreferenceRepo {
	return &PreferenceRepo{DB: db}
}

var _ core.PreferenceRepository = (*PreferenceRepo)(nil)

// GetByID retrieves a preference set by its ID.
func (r *PreferenceRepo) GetByID(ctx context.Context, id string) (*model.PreferenceSet, error) {
	var (
		pref      model.PreferenceSet
		rawThemes []byte
	)
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, owner_id, themes, budget, season, companions, created_at
		FROM preference_sets
		WHERE id = $1
	`, id).Scan(
		&pref.ID,
		&pref.OwnerID,
		&rawThemes,
		&pref.Budget,
		&pref.Season,
		&pref.Companions,
		&pref.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPreferenceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get preference set: %w", err)
	}
	if err := decodeStringList(rawThemes, &pref.Themes); err != nil {
		return nil, fmt.Errorf("decode preference themes: %w", err)
	}
	return &pref, nil
}
