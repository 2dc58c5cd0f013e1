// Package testutil provides test helpers: an env-gated Postgres connection
// and builders for common fixtures.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver

	"github.com/wanderplan/planner-api/internal/migrate"
)

// SetupTestDB opens the database named by TEST_DATABASE_URL, applies the
// schema migrations, and truncates the planner tables. Tests that call it
// are skipped when no test database is configured.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		t.Skipf("test database not available: %v", err)
	}

	if err := migrate.Run(context.Background(), db); err != nil {
		_ = db.Close()
		t.Fatalf("migrate test database: %v", err)
	}

	CleanTables(t, db)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// CleanTables truncates all planner tables so each test starts empty.
func CleanTables(t *testing.T, db *sql.DB) {
	t.Helper()

	_, err := db.Exec(`
		TRUNCATE planner_jobs,
		         recommended_places, recommendation_sets,
		         itinerary_visits, itinerary_days, itinerary_tags, itineraries,
		         preference_sets, trip_surveys
		CASCADE
	`)
	if err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}
