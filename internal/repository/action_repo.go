package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLiteActionRepository implements ActionRepository for SQLite.
type SQLiteActionRepository struct {
	db *sql.DB
}

// NewSQLiteActionRepository creates a new action timestamp repository.
func NewSQLiteActionRepository(db *sql.DB) *SQLiteActionRepository {
	return &SQLiteActionRepository{db: db}
}

func (r *SQLiteActionRepository) Record(ctx context.Context, userID, actionKey string, tsMs int64) error {
	query := `INSERT INTO user_action_timestamps (user_id, action_key, ts_ms) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, userID, actionKey, tsMs); err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}
	return nil
}

func (r *SQLiteActionRepository) Count(ctx context.Context, userID, actionKey string, sinceMs int64) (int, error) {
	query := `SELECT COUNT(*) FROM user_action_timestamps WHERE user_id = ? AND action_key = ? AND ts_ms >= ?`
	var count int
	if err := r.db.QueryRowContext(ctx, query, userID, actionKey, sinceMs).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count actions: %w", err)
	}
	return count, nil
}

func (r *SQLiteActionRepository) ListSince(ctx context.Context, userID, actionKey string, sinceMs int64) ([]int64, error) {
	query := `SELECT ts_ms FROM user_action_timestamps
		WHERE user_id = ? AND action_key = ? AND ts_ms >= ?
		ORDER BY ts_ms ASC`
	rows, err := r.db.QueryContext(ctx, query, userID, actionKey, sinceMs)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []int64
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

func (r *SQLiteActionRepository) DeleteBefore(ctx context.Context, userID, actionKey string, beforeMs int64) error {
	query := `DELETE FROM user_action_timestamps WHERE user_id = ? AND action_key = ? AND ts_ms < ?`
	if _, err := r.db.ExecContext(ctx, query, userID, actionKey, beforeMs); err != nil {
		return fmt.Errorf("failed to prune actions: %w", err)
	}
	return nil
}

func (r *SQLiteActionRepository) PruneBefore(ctx context.Context, beforeMs int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM user_action_timestamps WHERE ts_ms < ?`, beforeMs)
	if err != nil {
		return 0, fmt.Errorf("failed to prune actions: %w", err)
	}
	return result.RowsAffected()
}
