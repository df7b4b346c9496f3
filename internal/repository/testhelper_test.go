package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/jmylchreest/companion-api/internal/database/migrations"
	"github.com/jmylchreest/companion-api/internal/models"
)

// testNow is a fixed reference time for repository tests.
var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// setupTestDB creates an in-memory database with migrations applied.
// A single connection keeps every statement on the same in-memory database.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// setupTestRepos creates all repositories using a test database.
func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()
	return NewRepositories(setupTestDB(t))
}

// createTestUser inserts a user row so foreign keys are satisfied.
func createTestUser(t *testing.T, repos *Repositories, id string) {
	t.Helper()
	if _, err := repos.User.GetOrCreate(context.Background(), id, models.UserProfile{}, testNow); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
}

// newTestSubscription builds a subscription row activated at activatedAt.
func newTestSubscription(userID string, tier models.Tier, status models.SubscriptionStatus, activatedAt time.Time, expiresAt *time.Time) *models.Subscription {
	return &models.Subscription{
		UserID:      userID,
		Tier:        tier,
		Status:      status,
		ActivatedAt: activatedAt,
		ExpiresAt:   expiresAt,
		CreatedAt:   activatedAt,
		UpdatedAt:   activatedAt,
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
