package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/wanderplan/planner-api/internal/core"
	"github.com/wanderplan/planner-api/internal/data/pgxutil"
	"github.com/wanderplan/planner-api/internal/domain/model"
)

// RecommendationRepo is the side-effect writer for recommendation results,
// with the same one-transaction contract as ItineraryRepo.
type RecommendationRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// RecommendationRepoConfig holds optional configuration for RecommendationRepo.
type RecommendationRepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// NewRecommendationRepo creates a new RecommendationRepo instance.
func NewRecommendationRepo(db *sql.DB, cfg RecommendationRepoConfig) *RecommendationRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = RealTimeProvider{}
	}
	return &RecommendationRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

var _ core.RecommendationRepository = (*RecommendationRepo)(nil)

// GetByID retrieves a recommendation set with its ranked places.
func (r *RecommendationRepo) GetByID(ctx context.Context, id string) (*model.RecommendationSet, error) {
	var set model.RecommendationSet
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, owner_id, preference_ref, created_at, updated_at
		FROM recommendation_sets
		WHERE id = $1
	`, id).Scan(&set.ID, &set.OwnerID, &set.PreferenceRef, &set.CreatedAt, &set.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecommendationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recommendation set: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, rank, place_name, country, score, reason
		FROM recommended_places
		WHERE set_id = $1
		ORDER BY rank
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list recommended places: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var place model.RecommendedPlace
		if err := rows.Scan(
			&place.ID,
			&place.Rank,
			&place.PlaceName,
			&place.Country,
			&place.Score,
			&place.Reason,
		); err != nil {
			return nil, fmt.Errorf("scan recommended place: %w", err)
		}
		set.Places = append(set.Places, place)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recommended places: %w", err)
	}
	return &set, nil
}

// ReplaceFromResult upserts the recommendation set for a preference reference,
// replaces its ranked places with the planner's list, and finalizes the job
// in the same transaction. A repeat recommendation for the same preference
// set overwrites the previous list rather than accumulating.
func (r *RecommendationRepo) ReplaceFromResult(ctx context.Context, params core.ReplaceRecommendationParams) (string, error) {
	if params.Job == nil {
		return "", errors.New("job is required")
	}
	if params.PreferenceRef == "" {
		return "", errors.New("preference ref is required")
	}
	if params.Result == nil {
		return "", errors.New("recommendation result is required")
	}
	if err := params.Result.Validate(); err != nil {
		return "", err
	}

	currentTime := r.timeProvider.Now().UTC()
	var setID string

	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			err := tx.QueryRowContext(ctx, `
				INSERT INTO recommendation_sets (id, owner_id, preference_ref, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $4)
				ON CONFLICT (preference_ref) DO UPDATE SET updated_at = EXCLUDED.updated_at
				RETURNING id
			`, uuid.NewString(), params.Job.OwnerID, params.PreferenceRef, currentTime).Scan(&setID)
			if err != nil {
				return fmt.Errorf("upsert recommendation set: %w", err)
			}

			if _, err := tx.ExecContext(ctx,
				`DELETE FROM recommended_places WHERE set_id = $1`, setID); err != nil {
				return fmt.Errorf("delete recommended places: %w", err)
			}

			for i, place := range params.Result.Places {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO recommended_places (id, set_id, rank, place_name, country, score, reason)
					VALUES ($1, $2, $3, $4, $5, $6, $7)
				`, uuid.NewString(), setID, i+1,
					place.PlaceName, place.Country, place.Score, place.Reason); err != nil {
					return fmt.Errorf("insert recommended place: %w", err)
				}
			}

			return completeJobInTx(ctx, tx, completeJobParams{
				JobID:     params.Job.ID,
				ResultRef: setID,
				Now:       currentTime,
			})
		},
	})
	if err != nil {
		return "", err
	}
	return setID, nil
}
