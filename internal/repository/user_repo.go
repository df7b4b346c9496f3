package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/companion-api/internal/models"
)

// SQLiteUserRepository implements UserRepository for SQLite.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewSQLiteUserRepository creates a new SQLite user repository.
func NewSQLiteUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT id, username, first_name, language_code, created_at, updated_at FROM users WHERE id = ?`

	var user models.User
	var createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Username, &user.FirstName, &user.LanguageCode, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if user.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return nil, fmt.Errorf("user %s: %w", id, err)
	}
	if user.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return nil, fmt.Errorf("user %s: %w", id, err)
	}
	return &user, nil
}

func (r *SQLiteUserRepository) GetOrCreate(ctx context.Context, id string, profile models.UserProfile, now time.Time) (*models.User, error) {
	ts := formatTime(now)
	query := `INSERT INTO users (id, username, first_name, language_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = CASE WHEN excluded.username != '' THEN excluded.username ELSE users.username END,
			first_name = CASE WHEN excluded.first_name != '' THEN excluded.first_name ELSE users.first_name END,
			language_code = CASE WHEN excluded.language_code != '' THEN excluded.language_code ELSE users.language_code END,
			updated_at = CASE
				WHEN excluded.username != '' OR excluded.first_name != '' OR excluded.language_code != ''
				THEN excluded.updated_at ELSE users.updated_at END`

	if _, err := r.db.ExecContext(ctx, query, id, profile.Username, profile.FirstName, profile.LanguageCode, ts, ts); err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return r.GetByID(ctx, id)
}
