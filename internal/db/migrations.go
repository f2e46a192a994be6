package db

import (
	"context"
	"fmt"
)

// migrations are applied in order; entry i moves the schema from version i to i+1.
var migrations = []string{
	`
	CREATE TABLE IF NOT EXISTS usage_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		profile_id TEXT NOT NULL,
		session_percent REAL NOT NULL DEFAULT 0,
		weekly_percent REAL NOT NULL DEFAULT 0,
		opus_percent REAL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_samples_profile_time ON usage_samples(profile_id, timestamp);

	CREATE TABLE IF NOT EXISTS rate_limit_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		profile_id TEXT NOT NULL,
		type TEXT NOT NULL,
		reset_at TEXT NOT NULL,
		recorded_at TEXT NOT NULL,
		reset_text TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_rate_limit_events_profile ON rate_limit_events(profile_id, recorded_at);

	CREATE TABLE IF NOT EXISTS switch_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		from_account TEXT,
		to_account TEXT NOT NULL,
		reason TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_switch_events_timestamp ON switch_events(timestamp);
	`,
}

// migrate brings the schema up to schemaVersion, tracking progress in PRAGMA user_version.
func (db *DB) migrate() error {
	ctx := context.Background()

	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, len(migrations))
	}

	for i := version; i < len(migrations); i++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
