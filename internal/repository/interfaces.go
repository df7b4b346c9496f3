// Package repository defines repository interfaces for data access.
// Timestamps are stored as fixed-width UTC text with nanoseconds, so they
// order correctly as strings.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/companion-api/internal/models"
)

// ErrDuplicateChargeID is returned when a subscription row reuses a charge id.
var ErrDuplicateChargeID = errors.New("charge id already recorded")

// ErrCorruptValue is returned when a stored column cannot be decoded.
var ErrCorruptValue = errors.New("corrupt stored value")

// UserRepository defines methods for user data access.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	// GetOrCreate returns the user, inserting it on first contact.
	// Non-empty profile fields overwrite stored values.
	GetOrCreate(ctx context.Context, id string, profile models.UserProfile, now time.Time) (*models.User, error)
}

// SubscriptionRepository defines methods for subscription data access.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *models.Subscription) error
	GetByID(ctx context.Context, id string) (*models.Subscription, error)
	GetByChargeID(ctx context.Context, chargeID string) (*models.Subscription, error)
	// GetCurrent returns the most recently activated live row whose expiry
	// is nil or after notExpiredBefore.
	GetCurrent(ctx context.Context, userID string, notExpiredBefore time.Time) (*models.Subscription, error)
	// GetLatestFree returns the most recently activated free row in any status.
	GetLatestFree(ctx context.Context, userID string) (*models.Subscription, error)
	// ListLive returns every live row for a user, newest first.
	ListLive(ctx context.Context, userID string) ([]*models.Subscription, error)
	// ListByUser returns the full history for a user, newest first.
	ListByUser(ctx context.Context, userID string) ([]*models.Subscription, error)
	// ListLapsed returns live paid rows whose expiry is at or before the cutoff.
	ListLapsed(ctx context.Context, cutoff time.Time, limit int) ([]*models.Subscription, error)
	// Update persists tier, status, expiry and original tier of an existing row.
	Update(ctx context.Context, sub *models.Subscription) error
	// Replace closes the given rows and inserts next in one transaction.
	Replace(ctx context.Context, closed []*models.Subscription, next *models.Subscription) error
	// CountLiveByTier counts live rows per tier.
	CountLiveByTier(ctx context.Context) (map[models.Tier]int, error)
}

// UsageRepository defines methods for per-user usage counters.
type UsageRepository interface {
	Get(ctx context.Context, userID string) (*models.UserUsage, error)
	// Ensure inserts an empty usage row if none exists and returns the row.
	Ensure(ctx context.Context, userID, today string, now time.Time) (*models.UserUsage, error)
	// ResetDaily zeroes the daily counter and stamps today.
	ResetDaily(ctx context.Context, userID, today string, now time.Time) error
	// ClearBonus zeroes both bonus counters and clears the expiry.
	ClearBonus(ctx context.Context, userID string, now time.Time) error
	// Increment consumes count messages, bonus first, then daily, applying
	// the daily rollover in the same statement.
	Increment(ctx context.Context, userID string, count int, today string, now time.Time) (*models.UserUsage, error)
	// AddBonus adds amount to both bonus counters and sets the expiry.
	AddBonus(ctx context.Context, userID string, amount int, expiresAt *time.Time, now time.Time) (*models.UserUsage, error)
}

// ActionRepository stores action timestamps for sliding-window rate limits.
// Timestamps are unix milliseconds.
type ActionRepository interface {
	Record(ctx context.Context, userID, actionKey string, tsMs int64) error
	Count(ctx context.Context, userID, actionKey string, sinceMs int64) (int, error)
	// ListSince returns timestamps at or after sinceMs in ascending order.
	ListSince(ctx context.Context, userID, actionKey string, sinceMs int64) ([]int64, error)
	DeleteBefore(ctx context.Context, userID, actionKey string, beforeMs int64) error
	// PruneBefore deletes entries older than beforeMs across all users.
	PruneBefore(ctx context.Context, beforeMs int64) (int64, error)
}

// BlockRepository stores temporary blocks.
type BlockRepository interface {
	Create(ctx context.Context, block *models.TemporaryBlock) error
	// GetActive returns the block of the given type with the latest expiry after now.
	GetActive(ctx context.Context, userID, blockType string, now time.Time) (*models.TemporaryBlock, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Repositories holds all repository instances.
type Repositories struct {
	User         UserRepository
	Subscription SubscriptionRepository
	Usage        UsageRepository
	Action       ActionRepository
	Block        BlockRepository
}

// NewRepositories creates all repository instances.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		User:         NewSQLiteUserRepository(db),
		Subscription: NewSQLiteSubscriptionRepository(db),
		Usage:        NewSQLiteUsageRepository(db),
		Action:       NewSQLiteActionRepository(db),
		Block:        NewSQLiteBlockRepository(db),
	}
}

// timeLayout is fixed width; RFC3339Nano trims trailing zeros and would not sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

// parseTime decodes a stored timestamp. go-libsql hands timestamp-looking
// text back as a time.Time, which database/sql renders as RFC3339Nano.
func parseTime(column, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q", ErrCorruptValue, column, value)
	}
	return t.UTC(), nil
}

func parseTimePtr(column string, ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(column, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseDate decodes a stored calendar day (models.DateLayout). The driver
// returns date-looking text as a time at midnight, so both shapes are accepted.
func parseDate(column string, ns sql.NullString) (string, error) {
	if !ns.Valid || ns.String == "" {
		return "", nil
	}
	if _, err := time.Parse(models.DateLayout, ns.String); err == nil {
		return ns.String, nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return "", fmt.Errorf("%w: %s %q", ErrCorruptValue, column, ns.String)
	}
	return t.Format(models.DateLayout), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
