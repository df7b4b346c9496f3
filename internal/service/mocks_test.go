package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/jmylchreest/companion-api/internal/config"
	"github.com/jmylchreest/companion-api/internal/database/migrations"
	"github.com/jmylchreest/companion-api/internal/models"
	"github.com/jmylchreest/companion-api/internal/plans"
	"github.com/jmylchreest/companion-api/internal/repository"
)

// testNow is the fixed starting time of every mock clock.
var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

var errMockStore = errors.New("mock store failure")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClock() *clock.Mock {
	clk := clock.NewMock()
	clk.Set(testNow)
	return clk
}

// mockActionRepository implements repository.ActionRepository for testing.
type mockActionRepository struct {
	mu       sync.RWMutex
	entries  map[string][]int64
	records  int
	countErr error
}

func newMockActionRepository() *mockActionRepository {
	return &mockActionRepository{entries: make(map[string][]int64)}
}

func actionKey(userID, actionKey string) string {
	return userID + "|" + actionKey
}

func (m *mockActionRepository) Record(ctx context.Context, userID, key string, tsMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := actionKey(userID, key)
	m.entries[k] = append(m.entries[k], tsMs)
	slices.Sort(m.entries[k])
	m.records++
	return nil
}

func (m *mockActionRepository) Count(ctx context.Context, userID, key string, sinceMs int64) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	list, _ := m.ListSince(ctx, userID, key, sinceMs)
	return len(list), nil
}

func (m *mockActionRepository) ListSince(ctx context.Context, userID, key string, sinceMs int64) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []int64
	for _, ts := range m.entries[actionKey(userID, key)] {
		if ts >= sinceMs {
			out = append(out, ts)
		}
	}
	return out, nil
}

func (m *mockActionRepository) DeleteBefore(ctx context.Context, userID, key string, beforeMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := actionKey(userID, key)
	m.entries[k] = slices.DeleteFunc(m.entries[k], func(ts int64) bool { return ts < beforeMs })
	return nil
}

func (m *mockActionRepository) PruneBefore(ctx context.Context, beforeMs int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, list := range m.entries {
		kept := slices.DeleteFunc(list, func(ts int64) bool { return ts < beforeMs })
		n += int64(len(list) - len(kept))
		m.entries[k] = kept
	}
	return n, nil
}

func (m *mockActionRepository) recordCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.records
}

// mockBlockRepository implements repository.BlockRepository for testing.
type mockBlockRepository struct {
	mu        sync.RWMutex
	blocks    []*models.TemporaryBlock
	createErr error
}

func newMockBlockRepository() *mockBlockRepository {
	return &mockBlockRepository{}
}

func (m *mockBlockRepository) Create(ctx context.Context, block *models.TemporaryBlock) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks = append(m.blocks, block)
	return nil
}

func (m *mockBlockRepository) GetActive(ctx context.Context, userID, blockType string, now time.Time) (*models.TemporaryBlock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *models.TemporaryBlock
	for _, b := range m.blocks {
		if b.UserID != userID || b.BlockType != blockType || !b.BlockedUntil.After(now) {
			continue
		}
		if latest == nil || b.BlockedUntil.After(latest.BlockedUntil) {
			latest = b
		}
	}
	return latest, nil
}

func (m *mockBlockRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.blocks)
	m.blocks = slices.DeleteFunc(m.blocks, func(b *models.TemporaryBlock) bool { return !b.BlockedUntil.After(now) })
	return int64(before - len(m.blocks)), nil
}

func (m *mockBlockRepository) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blocks)
}

// setupTestRepos creates repositories over an in-memory database with
// migrations applied. A single connection keeps every statement on it.
func setupTestRepos(t *testing.T) *repository.Repositories {
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
	return repository.NewRepositories(db)
}

// testEnv bundles the services under test with their clock and stores.
type testEnv struct {
	clock    *clock.Mock
	repos    *repository.Repositories
	plans    *plans.Plans
	subs     *SubscriptionService
	antiSpam *AntiSpamService
	valid    *LimitsValidator
	actions  *mockActionRepository
	blocks   *mockBlockRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clk := newTestClock()
	logger := testLogger()
	repos := setupTestRepos(t)
	p := plans.New(nil, logger)
	actions := newMockActionRepository()
	blocks := newMockBlockRepository()

	subs := NewSubscriptionService(repos, p, nil, 0, config.DefaultLimitsConfig(), clk, logger)
	antiSpam := NewAntiSpamService(NewRateLimiter(actions, clk, logger), blocks, config.DefaultAntiSpamConfig(), clk, logger)

	return &testEnv{
		clock:    clk,
		repos:    repos,
		plans:    p,
		subs:     subs,
		antiSpam: antiSpam,
		valid:    NewLimitsValidator(antiSpam, subs, config.DefaultLimitsConfig(), clk, logger),
		actions:  actions,
		blocks:   blocks,
	}
}

// seedSubscription inserts a user and a subscription row directly.
func (e *testEnv) seedSubscription(t *testing.T, userID string, tier models.Tier, status models.SubscriptionStatus, activatedAt time.Time, expiresAt *time.Time) *models.Subscription {
	t.Helper()
	ctx := context.Background()
	if _, err := e.repos.User.GetOrCreate(ctx, userID, models.UserProfile{}, activatedAt); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	sub := &models.Subscription{
		UserID:      userID,
		Tier:        tier,
		Status:      status,
		ActivatedAt: activatedAt,
		ExpiresAt:   expiresAt,
		CreatedAt:   activatedAt,
		UpdatedAt:   activatedAt,
	}
	if err := e.repos.Subscription.Create(ctx, sub); err != nil {
		t.Fatalf("failed to create subscription: %v", err)
	}
	return sub
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func intPtr(v int) *int {
	return &v
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
