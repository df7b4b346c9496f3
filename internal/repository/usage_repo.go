package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/companion-api/internal/models"
)

// SQLiteUsageRepository implements UsageRepository for SQLite.
type SQLiteUsageRepository struct {
	db *sql.DB
}

// NewSQLiteUsageRepository creates a new SQLite usage repository.
func NewSQLiteUsageRepository(db *sql.DB) *SQLiteUsageRepository {
	return &SQLiteUsageRepository{db: db}
}

func (r *SQLiteUsageRepository) Get(ctx context.Context, userID string) (*models.UserUsage, error) {
	query := `SELECT user_id, daily_messages_used, last_message_date, bonus_messages_total,
		bonus_messages_remaining, bonus_expires_at, updated_at
		FROM user_usage WHERE user_id = ?`

	var usage models.UserUsage
	var lastMessageDate, bonusExpiresAt sql.NullString
	var updatedAt string
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&usage.UserID, &usage.DailyMessagesUsed, &lastMessageDate, &usage.BonusMessagesTotal,
		&usage.BonusMessagesRemaining, &bonusExpiresAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}

	if usage.LastMessageDate, err = parseDate("last_message_date", lastMessageDate); err != nil {
		return nil, fmt.Errorf("usage %s: %w", userID, err)
	}
	if usage.BonusExpiresAt, err = parseTimePtr("bonus_expires_at", bonusExpiresAt); err != nil {
		return nil, fmt.Errorf("usage %s: %w", userID, err)
	}
	if usage.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return nil, fmt.Errorf("usage %s: %w", userID, err)
	}
	return &usage, nil
}

func (r *SQLiteUsageRepository) Ensure(ctx context.Context, userID, today string, now time.Time) (*models.UserUsage, error) {
	query := `INSERT INTO user_usage (user_id, daily_messages_used, last_message_date, updated_at)
		VALUES (?, 0, ?, ?)
		ON CONFLICT(user_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, userID, today, formatTime(now)); err != nil {
		return nil, fmt.Errorf("failed to create usage: %w", err)
	}
	return r.Get(ctx, userID)
}

func (r *SQLiteUsageRepository) ResetDaily(ctx context.Context, userID, today string, now time.Time) error {
	query := `UPDATE user_usage SET daily_messages_used = 0, last_message_date = ?, updated_at = ? WHERE user_id = ?`
	if _, err := r.db.ExecContext(ctx, query, today, formatTime(now), userID); err != nil {
		return fmt.Errorf("failed to reset daily usage: %w", err)
	}
	return nil
}

func (r *SQLiteUsageRepository) ClearBonus(ctx context.Context, userID string, now time.Time) error {
	query := `UPDATE user_usage
		SET bonus_messages_total = 0, bonus_messages_remaining = 0, bonus_expires_at = NULL, updated_at = ?
		WHERE user_id = ?`
	if _, err := r.db.ExecContext(ctx, query, formatTime(now), userID); err != nil {
		return fmt.Errorf("failed to clear bonus: %w", err)
	}
	return nil
}

// Increment applies the rollover and consumes bonus before the daily quota
// in a single statement. An expired bonus counts as zero.
func (r *SQLiteUsageRepository) Increment(ctx context.Context, userID string, count int, today string, now time.Time) (*models.UserUsage, error) {
	if _, err := r.Ensure(ctx, userID, today, now); err != nil {
		return nil, err
	}

	ts := formatTime(now)
	const bonus = `(CASE WHEN bonus_expires_at IS NOT NULL AND bonus_expires_at < ? THEN 0 ELSE bonus_messages_remaining END)`
	query := `UPDATE user_usage SET
		daily_messages_used = (CASE WHEN last_message_date = ? THEN daily_messages_used ELSE 0 END)
			+ MAX(0, ? - ` + bonus + `),
		bonus_messages_remaining = MAX(0, ` + bonus + ` - ?),
		last_message_date = ?,
		updated_at = ?
		WHERE user_id = ?`

	if _, err := r.db.ExecContext(ctx, query, today, count, ts, ts, count, today, ts, userID); err != nil {
		return nil, fmt.Errorf("failed to increment usage: %w", err)
	}
	return r.Get(ctx, userID)
}

func (r *SQLiteUsageRepository) AddBonus(ctx context.Context, userID string, amount int, expiresAt *time.Time, now time.Time) (*models.UserUsage, error) {
	query := `UPDATE user_usage SET
		bonus_messages_total = bonus_messages_total + ?,
		bonus_messages_remaining = bonus_messages_remaining + ?,
		bonus_expires_at = ?,
		updated_at = ?
		WHERE user_id = ?`
	result, err := r.db.ExecContext(ctx, query, amount, amount, formatTimePtr(expiresAt), formatTime(now), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to add bonus: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("usage row for %s not found", userID)
	}
	return r.Get(ctx, userID)
}
