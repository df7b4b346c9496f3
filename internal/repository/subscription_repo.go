package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/companion-api/internal/models"
)

const subscriptionColumns = `id, user_id, tier, status, activated_at, expires_at, is_trial, trial_source,
	payment_provider, charge_id, payment_amount, auto_renewal, original_tier_before_expiry,
	created_at, updated_at`

// liveStatusList is the SQL list of live statuses.
const liveStatusList = `('active', 'grace_period', 'trial')`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// SQLiteSubscriptionRepository implements SubscriptionRepository for SQLite.
type SQLiteSubscriptionRepository struct {
	db *sql.DB
}

// NewSQLiteSubscriptionRepository creates a new SQLite subscription repository.
func NewSQLiteSubscriptionRepository(db *sql.DB) *SQLiteSubscriptionRepository {
	return &SQLiteSubscriptionRepository{db: db}
}

func (r *SQLiteSubscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	return insertSubscription(ctx, r.db, sub)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSubscription(ctx context.Context, db execer, sub *models.Subscription) error {
	if sub.ID == "" {
		sub.ID = ulid.Make().String()
	}

	var chargeID *string
	if sub.ChargeID != "" {
		chargeID = &sub.ChargeID
	}
	var originalTier *string
	if sub.OriginalTierBeforeExpiry != nil {
		s := string(*sub.OriginalTierBeforeExpiry)
		originalTier = &s
	}

	query := `INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		sub.ID, sub.UserID, string(sub.Tier), string(sub.Status),
		formatTime(sub.ActivatedAt), formatTimePtr(sub.ExpiresAt),
		boolToInt(sub.IsTrial), sub.TrialSource, sub.PaymentProvider, chargeID,
		sub.PaymentAmount, boolToInt(sub.AutoRenewal), originalTier,
		formatTime(sub.CreatedAt), formatTime(sub.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrDuplicateChargeID, sub.ChargeID)
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

func (r *SQLiteSubscriptionRepository) GetByID(ctx context.Context, id string) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLiteSubscriptionRepository) GetByChargeID(ctx context.Context, chargeID string) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE charge_id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, chargeID))
}

func (r *SQLiteSubscriptionRepository) GetCurrent(ctx context.Context, userID string, notExpiredBefore time.Time) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE user_id = ? AND status IN ` + liveStatusList + `
		AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY activated_at DESC, rowid DESC
		LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID, formatTime(notExpiredBefore)))
}

func (r *SQLiteSubscriptionRepository) GetLatestFree(ctx context.Context, userID string) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE user_id = ? AND tier = 'free'
		ORDER BY activated_at DESC, rowid DESC
		LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID))
}

func (r *SQLiteSubscriptionRepository) ListLive(ctx context.Context, userID string) ([]*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE user_id = ? AND status IN ` + liveStatusList + `
		ORDER BY activated_at DESC, rowid DESC`
	return r.queryMany(ctx, query, userID)
}

func (r *SQLiteSubscriptionRepository) ListByUser(ctx context.Context, userID string) ([]*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE user_id = ?
		ORDER BY activated_at DESC, rowid DESC`
	return r.queryMany(ctx, query, userID)
}

func (r *SQLiteSubscriptionRepository) ListLapsed(ctx context.Context, cutoff time.Time, limit int) ([]*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE status IN ` + liveStatusList + ` AND tier != 'free'
		AND expires_at IS NOT NULL AND expires_at <= ?
		ORDER BY expires_at ASC
		LIMIT ?`
	return r.queryMany(ctx, query, formatTime(cutoff), limit)
}

func (r *SQLiteSubscriptionRepository) Update(ctx context.Context, sub *models.Subscription) error {
	return updateSubscription(ctx, r.db, sub)
}

func updateSubscription(ctx context.Context, db execer, sub *models.Subscription) error {
	var originalTier *string
	if sub.OriginalTierBeforeExpiry != nil {
		s := string(*sub.OriginalTierBeforeExpiry)
		originalTier = &s
	}

	query := `UPDATE subscriptions
		SET tier = ?, status = ?, expires_at = ?, original_tier_before_expiry = ?, updated_at = ?
		WHERE id = ?`
	result, err := db.ExecContext(ctx, query,
		string(sub.Tier), string(sub.Status), formatTimePtr(sub.ExpiresAt), originalTier,
		formatTime(sub.UpdatedAt), sub.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("subscription %s not found", sub.ID)
	}
	return nil
}

func (r *SQLiteSubscriptionRepository) Replace(ctx context.Context, closed []*models.Subscription, next *models.Subscription) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, sub := range closed {
		if err := updateSubscription(ctx, tx, sub); err != nil {
			return err
		}
	}
	if err := insertSubscription(ctx, tx, next); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteSubscriptionRepository) CountLiveByTier(ctx context.Context) (map[models.Tier]int, error) {
	query := `SELECT tier, COUNT(*) FROM subscriptions
		WHERE status IN ` + liveStatusList + `
		GROUP BY tier`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[models.Tier]int)
	for rows.Next() {
		var tierStr string
		var n int
		if err := rows.Scan(&tierStr, &n); err != nil {
			return nil, err
		}
		tier, err := models.ParseTier(tierStr)
		if err != nil {
			return nil, err
		}
		counts[tier] = n
	}
	return counts, rows.Err()
}

func (r *SQLiteSubscriptionRepository) queryMany(ctx context.Context, query string, args ...any) ([]*models.Subscription, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (r *SQLiteSubscriptionRepository) scanOne(row *sql.Row) (*models.Subscription, error) {
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sub, err
}

// scanSubscription decodes a row. Unknown tier or status values are decode errors.
func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var sub models.Subscription
	var tierStr, statusStr, activatedAt, createdAt, updatedAt string
	var expiresAt, chargeID, originalTier sql.NullString
	var isTrial, autoRenewal int

	err := row.Scan(
		&sub.ID, &sub.UserID, &tierStr, &statusStr, &activatedAt, &expiresAt,
		&isTrial, &sub.TrialSource, &sub.PaymentProvider, &chargeID,
		&sub.PaymentAmount, &autoRenewal, &originalTier, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if sub.Tier, err = models.ParseTier(tierStr); err != nil {
		return nil, fmt.Errorf("subscription %s: %w", sub.ID, err)
	}
	if sub.Status, err = models.ParseSubscriptionStatus(statusStr); err != nil {
		return nil, fmt.Errorf("subscription %s: %w", sub.ID, err)
	}
	if originalTier.Valid && originalTier.String != "" {
		t, err := models.ParseTier(originalTier.String)
		if err != nil {
			return nil, fmt.Errorf("subscription %s: %w", sub.ID, err)
		}
		sub.OriginalTierBeforeExpiry = &t
	}

	if sub.ActivatedAt, err = parseTime("activated_at", activatedAt); err != nil {
		return nil, fmt.Errorf("subscription %s: %w", sub.ID, err)
	}
	if sub.ExpiresAt, err = parseTimePtr("expires_at", expiresAt); err != nil {
		return nil, fmt.Errorf("subscription %s: %w", sub.ID, err)
	}
	if sub.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return nil, fmt.Errorf("subscription %s: %w", sub.ID, err)
	}
	if sub.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return nil, fmt.Errorf("subscription %s: %w", sub.ID, err)
	}
	sub.IsTrial = isTrial != 0
	sub.AutoRenewal = autoRenewal != 0
	sub.ChargeID = chargeID.String
	return &sub, nil
}
