package migrations

import (
	"database/sql"
	"testing"

	_ "github.com/tursodatabase/go-libsql"
)

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRun_AppliesAllMigrations(t *testing.T) {
	db := openMemoryDB(t)

	if err := Run(db, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	pending, err := Pending(db)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("len(Pending()) = %d, want 0", len(pending))
	}

	applied, err := Applied(db)
	if err != nil {
		t.Fatalf("Applied() error = %v", err)
	}
	if len(applied) != len(registry) {
		t.Errorf("len(Applied()) = %d, want %d", len(applied), len(registry))
	}

	for _, table := range []string{"users", "subscriptions", "user_usage", "user_action_timestamps", "temporary_blocks"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestRun_Idempotent(t *testing.T) {
	db := openMemoryDB(t)

	if err := Run(db, nil); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if err := Run(db, nil); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	latest, err := LatestVersion(db)
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	want := sorted()[len(registry)-1].Timestamp
	if latest != want {
		t.Errorf("LatestVersion() = %q, want %q", latest, want)
	}
}

func TestLatestVersion_Empty(t *testing.T) {
	db := openMemoryDB(t)
	if _, err := db.Exec(`CREATE TABLE schema_migrations (version TEXT PRIMARY KEY, description TEXT NOT NULL, applied_at TEXT NOT NULL)`); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}

	latest, err := LatestVersion(db)
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	if latest != "" {
		t.Errorf("LatestVersion() = %q, want empty", latest)
	}
}
