package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/j-veylop/agent-profiles/internal/models"
)

func TestNew(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	if db.Path() != dbPath {
		t.Errorf("Expected path %s, got %s", dbPath, db.Path())
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestNew_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database with nested path: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Dir(dbPath)); os.IsNotExist(err) {
		t.Error("Nested directories were not created")
	}
}

func TestSchema_TablesExist(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	for _, table := range []string{"usage_samples", "rate_limit_events", "switch_events"} {
		var name string
		err := db.QueryRowContext(context.Background(), "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s does not exist: %v", table, err)
		}
	}

	var version int
	if err := db.QueryRowContext(context.Background(), "PRAGMA user_version").Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version != len(migrations) {
		t.Errorf("user_version = %d, want %d", version, len(migrations))
	}
}

func TestNew_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.InsertUsageSample(&models.UsageSample{ProfileID: "work", SessionPercent: 10}); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = New(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()

	series, err := db.GetUsageSeries("work", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(series.Samples) != 1 {
		t.Errorf("expected 1 sample after reopen, got %d", len(series.Samples))
	}
}

func TestNew_NewerSchemaRejected(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(context.Background(), "PRAGMA user_version = 99"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	if db, err := New(dbPath); err == nil {
		db.Close()
		t.Error("expected error for a schema from a newer version")
	}
}

func TestVacuum(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	if err := db.Vacuum(); err != nil {
		t.Errorf("Vacuum failed: %v", err)
	}
}

func TestPruneBefore(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -40)

	mustInsertSample(t, db, "work", old, 10)
	mustInsertSample(t, db, "work", now, 20)
	if _, err := db.InsertRateLimitEvent("work", models.RateLimitEvent{Type: models.RateLimitSession, ResetAt: old.Add(time.Hour), RecordedAt: old}); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertSwitchEvent(&models.SwitchEvent{Timestamp: old, To: models.OAuthAccount("work"), Reason: models.SwitchManual}); err != nil {
		t.Fatal(err)
	}

	n, err := db.PruneBefore(now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("PruneBefore failed: %v", err)
	}
	if n != 3 {
		t.Errorf("PruneBefore removed %d rows, want 3", n)
	}

	series, _ := db.GetUsageSeries("work", time.Time{})
	if len(series.Samples) != 1 || series.Samples[0].SessionPercent != 20 {
		t.Errorf("unexpected remaining samples: %+v", series.Samples)
	}
}

func TestClose(t *testing.T) {
	db := newTestDB(t)

	if err := db.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	_, err := db.QueryContext(context.Background(), "SELECT 1")
	if err == nil {
		t.Error("Expected error querying closed database")
	}
}

// Helper to create a test database
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	return db
}

func mustInsertSample(t *testing.T, db *DB, profileID string, at time.Time, session float64) {
	t.Helper()
	if err := db.InsertUsageSample(&models.UsageSample{ProfileID: profileID, Timestamp: at, SessionPercent: session}); err != nil {
		t.Fatalf("InsertUsageSample() failed: %v", err)
	}
}
