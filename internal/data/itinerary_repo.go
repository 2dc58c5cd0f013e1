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

// ItineraryRepo is the side-effect writer for itinerary results. Writes span
// the nested day/visit graph, the itinerary summary fields, and the job's
// success transition in one transaction, so a reader polling the job never
// sees success without the rows behind it.
type ItineraryRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// ItineraryRepoConfig holds optional configuration for ItineraryRepo.
type ItineraryRepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// NewItineraryRepo creates a new ItineraryRepo instance.
func NewItineraryRepo(db *sql.DB, cfg ItineraryRepoConfig) *ItineraryRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = RealTimeProvider{}
	}
	return &ItineraryRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

var _ core.ItineraryRepository = (*ItineraryRepo)(nil)

// GetByID retrieves an itinerary with its full day/visit graph and tags.
func (r *ItineraryRepo) GetByID(ctx context.Context, id string) (*model.Itinerary, error) {
	var it model.Itinerary
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, owner_id, survey_ref, title, start_date, end_date, day_count, created_at, updated_at
		FROM itineraries
		WHERE id = $1
	`, id).Scan(
		&it.ID,
		&it.OwnerID,
		&it.SurveyRef,
		&it.Title,
		&it.StartDate,
		&it.EndDate,
		&it.DayCount,
		&it.CreatedAt,
		&it.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItineraryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get itinerary: %w", err)
	}

	if err := r.loadTags(ctx, &it); err != nil {
		return nil, err
	}
	if err := r.loadDays(ctx, &it); err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *ItineraryRepo) loadTags(ctx context.Context, it *model.Itinerary) error {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT tag FROM itinerary_tags WHERE itinerary_id = $1 ORDER BY tag
	`, it.ID)
	if err != nil {
		return fmt.Errorf("list itinerary tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return fmt.Errorf("scan itinerary tag: %w", err)
		}
		it.Tags = append(it.Tags, tag)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate itinerary tags: %w", err)
	}
	return nil
}

func (r *ItineraryRepo) loadDays(ctx context.Context, it *model.Itinerary) error {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, day_index, date, summary
		FROM itinerary_days
		WHERE itinerary_id = $1
		ORDER BY day_index
	`, it.ID)
	if err != nil {
		return fmt.Errorf("list itinerary days: %w", err)
	}
	defer rows.Close()

	dayIdx := make(map[string]int)
	for rows.Next() {
		var day model.ItineraryDay
		if err := rows.Scan(&day.ID, &day.DayIndex, &day.Date, &day.Summary); err != nil {
			return fmt.Errorf("scan itinerary day: %w", err)
		}
		dayIdx[day.ID] = len(it.Days)
		it.Days = append(it.Days, day)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate itinerary days: %w", err)
	}
	if len(it.Days) == 0 {
		return nil
	}

	visitRows, err := r.DB.QueryContext(ctx, `
		SELECT v.id, v.day_id, v.visit_index, v.place_name, v.category, v.latitude, v.longitude, v.note
		FROM itinerary_visits v
		JOIN itinerary_days d ON d.id = v.day_id
		WHERE d.itinerary_id = $1
		ORDER BY d.day_index, v.visit_index
	`, it.ID)
	if err != nil {
		return fmt.Errorf("list itinerary visits: %w", err)
	}
	defer visitRows.Close()

	for visitRows.Next() {
		var (
			visit model.ItineraryVisit
			dayID string
		)
		if err := visitRows.Scan(
			&visit.ID,
			&dayID,
			&visit.VisitIndex,
			&visit.PlaceName,
			&visit.Category,
			&visit.Latitude,
			&visit.Longitude,
			&visit.Note,
		); err != nil {
			return fmt.Errorf("scan itinerary visit: %w", err)
		}
		idx, ok := dayIdx[dayID]
		if !ok {
			continue
		}
		it.Days[idx].Visits = append(it.Days[idx].Visits, visit)
	}
	if err := visitRows.Err(); err != nil {
		return fmt.Errorf("iterate itinerary visits: %w", err)
	}
	return nil
}

// CreateFromResult inserts the itinerary graph for a successful generation job
// and finalizes the job in the same transaction. Returns ErrTerminalRace
// (with everything rolled back) when the job was already finalized.
func (r *ItineraryRepo) CreateFromResult(ctx context.Context, params core.CreateItineraryParams) (string, error) {
	if params.Job == nil {
		return "", errors.New("job is required")
	}
	if params.Result == nil {
		return "", errors.New("itinerary result is required")
	}
	if err := params.Result.Validate(); err != nil {
		return "", err
	}

	currentTime := r.timeProvider.Now().UTC()
	itineraryID := uuid.NewString()

	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO itineraries (id, owner_id, survey_ref, title, start_date, end_date, day_count, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
			`, itineraryID, params.Job.OwnerID, params.Job.InputRef,
				params.Result.Title, params.Result.StartDate, params.Result.EndDate,
				len(params.Result.Days), currentTime)
			if err != nil {
				return fmt.Errorf("insert itinerary: %w", err)
			}

			if err := insertItineraryGraphTx(ctx, tx, itineraryID, params.Result); err != nil {
				return err
			}

			return completeJobInTx(ctx, tx, completeJobParams{
				JobID:     params.Job.ID,
				ResultRef: itineraryID,
				Now:       currentTime,
			})
		},
	})
	if err != nil {
		return "", err
	}
	return itineraryID, nil
}

// ReplaceFromResult swaps an existing itinerary's nested graph for the
// replacement a modification job produced, updates the summary fields, and
// finalizes the job, all in one transaction.
func (r *ItineraryRepo) ReplaceFromResult(ctx context.Context, params core.ReplaceItineraryParams) (string, error) {
	if params.Job == nil {
		return "", errors.New("job is required")
	}
	if params.ItineraryID == "" {
		return "", errors.New("itinerary id is required")
	}
	if params.Result == nil {
		return "", errors.New("itinerary result is required")
	}
	if err := params.Result.Validate(); err != nil {
		return "", err
	}

	currentTime := r.timeProvider.Now().UTC()

	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, `
				UPDATE itineraries
				SET title = $2, start_date = $3, end_date = $4, day_count = $5, updated_at = $6
				WHERE id = $1
			`, params.ItineraryID, params.Result.Title, params.Result.StartDate,
				params.Result.EndDate, len(params.Result.Days), currentTime)
			if err != nil {
				return fmt.Errorf("update itinerary: %w", err)
			}
			updated, err := oneRowAffected(res)
			if err != nil {
				return err
			}
			if !updated {
				return ErrItineraryNotFound
			}

			// Visits go with their days via ON DELETE CASCADE.
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM itinerary_days WHERE itinerary_id = $1`, params.ItineraryID); err != nil {
				return fmt.Errorf("delete itinerary days: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM itinerary_tags WHERE itinerary_id = $1`, params.ItineraryID); err != nil {
				return fmt.Errorf("delete itinerary tags: %w", err)
			}

			if err := insertItineraryGraphTx(ctx, tx, params.ItineraryID, params.Result); err != nil {
				return err
			}

			return completeJobInTx(ctx, tx, completeJobParams{
				JobID:     params.Job.ID,
				ResultRef: params.ItineraryID,
				Now:       currentTime,
			})
		},
	})
	if err != nil {
		return "", err
	}
	return params.ItineraryID, nil
}

func insertItineraryGraphTx(ctx context.Context, tx *sql.Tx, itineraryID string, result *model.ItineraryResult) error {
	for _, tag := range result.Tags {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO itinerary_tags (itinerary_id, tag)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, itineraryID, tag); err != nil {
			return fmt.Errorf("insert itinerary tag: %w", err)
		}
	}

	for dayIndex, day := range result.Days {
		dayID := uuid.NewString()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO itinerary_days (id, itinerary_id, day_index, date, summary)
			VALUES ($1, $2, $3, $4, $5)
		`, dayID, itineraryID, dayIndex, day.Date, day.Summary); err != nil {
			return fmt.Errorf("insert itinerary day: %w", err)
		}

		for visitIndex, visit := range day.Visits {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO itinerary_visits (id, day_id, visit_index, place_name, category, latitude, longitude, note)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, uuid.NewString(), dayID, visitIndex,
				visit.PlaceName, visit.Category, visit.Latitude, visit.Longitude, visit.Note); err != nil {
				return fmt.Errorf("insert itinerary visit: %w", err)
			}
		}
	}
	return nil
}
