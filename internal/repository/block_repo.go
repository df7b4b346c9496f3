package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/companion-api/internal/models"
)

// SQLiteBlockRepository implements BlockRepository for SQLite.
type SQLiteBlockRepository struct {
	db *sql.DB
}

// NewSQLiteBlockRepository creates a new temporary block repository.
func NewSQLiteBlockRepository(db *sql.DB) *SQLiteBlockRepository {
	return &SQLiteBlockRepository{db: db}
}

func (r *SQLiteBlockRepository) Create(ctx context.Context, block *models.TemporaryBlock) error {
	if block.ID == "" {
		block.ID = ulid.Make().String()
	}
	query := `INSERT INTO temporary_blocks (id, user_id, block_type, blocked_until, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		block.ID, block.UserID, block.BlockType, formatTime(block.BlockedUntil), block.Reason, formatTime(block.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create block: %w", err)
	}
	return nil
}

func (r *SQLiteBlockRepository) GetActive(ctx context.Context, userID, blockType string, now time.Time) (*models.TemporaryBlock, error) {
	query := `SELECT id, user_id, block_type, blocked_until, reason, created_at
		FROM temporary_blocks
		WHERE user_id = ? AND block_type = ? AND blocked_until > ?
		ORDER BY blocked_until DESC
		LIMIT 1`

	var block models.TemporaryBlock
	var blockedUntil, createdAt string
	err := r.db.QueryRowContext(ctx, query, userID, blockType, formatTime(now)).Scan(
		&block.ID, &block.UserID, &block.BlockType, &blockedUntil, &block.Reason, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get block: %w", err)
	}

	if block.BlockedUntil, err = parseTime("blocked_until", blockedUntil); err != nil {
		return nil, fmt.Errorf("block %s: %w", block.ID, err)
	}
	if block.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return nil, fmt.Errorf("block %s: %w", block.ID, err)
	}
	return &block, nil
}

func (r *SQLiteBlockRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM temporary_blocks WHERE blocked_until <= ?`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired blocks: %w", err)
	}
	return result.RowsAffected()
}
