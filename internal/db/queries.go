package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/j-veylop/agent-profiles/internal/logger"
	"github.com/j-veylop/agent-profiles/internal/models"
)

// InsertUsageSample records a usage observation. A zero timestamp means now.
func (db *DB) InsertUsageSample(sample *models.UsageSample) error {
	query := `
		INSERT INTO usage_samples (timestamp, profile_id, session_percent, weekly_percent, opus_percent)
		VALUES (?, ?, ?, ?, ?)
	`

	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}

	result, err := db.ExecContext(context.Background(), query,
		formatTime(sample.Timestamp),
		sample.ProfileID,
		sample.SessionPercent,
		sample.WeeklyPercent,
		nullFloat(sample.OpusPercent),
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage sample: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		sample.ID = id
	}
	return nil
}

// GetUsageSeries returns the samples of a profile recorded at or after since, oldest first.
func (db *DB) GetUsageSeries(profileID string, since time.Time) (models.UsageSeries, error) {
	query := `
		SELECT id, timestamp, profile_id, session_percent, weekly_percent, opus_percent
		FROM usage_samples
		WHERE profile_id = ? AND timestamp >= ?
		ORDER BY timestamp ASC, id ASC
	`

	series := models.UsageSeries{ProfileID: profileID}

	rows, err := db.QueryContext(context.Background(), query, profileID, formatTime(since))
	if err != nil {
		return series, fmt.Errorf("failed to query usage series: %w", err)
	}
	defer closeRows(rows)

	for rows.Next() {
		var s models.UsageSample
		var ts string
		var opus sql.NullFloat64

		if err := rows.Scan(&s.ID, &ts, &s.ProfileID, &s.SessionPercent, &s.WeeklyPercent, &opus); err != nil {
			return series, fmt.Errorf("failed to scan usage sample: %w", err)
		}
		if s.Timestamp, err = parseTime(ts); err != nil {
			return series, err
		}
		if opus.Valid {
			v := opus.Float64
			s.OpusPercent = &v
		}
		series.Samples = append(series.Samples, s)
	}

	return series, rows.Err()
}

// InsertRateLimitEvent records a rate-limit event of a profile.
func (db *DB) InsertRateLimitEvent(profileID string, event models.RateLimitEvent) (int64, error) {
	query := `
		INSERT INTO rate_limit_events (profile_id, type, reset_at, recorded_at, reset_text)
		VALUES (?, ?, ?, ?, ?)
	`

	recordedAt := event.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	result, err := db.ExecContext(context.Background(), query,
		profileID,
		string(event.Type),
		formatTime(event.ResetAt),
		formatTime(recordedAt),
		nullString(event.ResetText),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert rate limit event: %w", err)
	}
	return result.LastInsertId()
}

// RecentRateLimitEvents returns the newest rate-limit events, newest first.
// An empty profileID returns events of every profile.
func (db *DB) RecentRateLimitEvents(profileID string, limit int) ([]models.RateLimitRecord, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	query := `
		SELECT id, profile_id, type, reset_at, recorded_at, reset_text
		FROM rate_limit_events
		WHERE (? = '' OR profile_id = ?)
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`

	rows, err := db.QueryContext(context.Background(), query, profileID, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rate limit events: %w", err)
	}
	defer closeRows(rows)

	var records []models.RateLimitRecord
	for rows.Next() {
		var r models.RateLimitRecord
		var typ, resetAt, recordedAt string
		var resetText sql.NullString

		if err := rows.Scan(&r.ID, &r.ProfileID, &typ, &resetAt, &recordedAt, &resetText); err != nil {
			return nil, fmt.Errorf("failed to scan rate limit event: %w", err)
		}
		r.Type = models.RateLimitType(typ)
		r.ResetText = resetText.String
		if r.ResetAt, err = parseTime(resetAt); err != nil {
			return nil, err
		}
		if r.RecordedAt, err = parseTime(recordedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// InsertSwitchEvent records a change of the active account. A zero timestamp means now.
func (db *DB) InsertSwitchEvent(event *models.SwitchEvent) error {
	query := `
		INSERT INTO switch_events (timestamp, from_account, to_account, reason)
		VALUES (?, ?, ?, ?)
	`

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	var from string
	if !event.From.IsZero() {
		from = event.From.String()
	}

	result, err := db.ExecContext(context.Background(), query,
		formatTime(event.Timestamp),
		nullString(from),
		event.To.String(),
		string(event.Reason),
	)
	if err != nil {
		return fmt.Errorf("failed to insert switch event: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		event.ID = id
	}
	return nil
}

// RecentSwitchEvents returns the newest switch events, newest first.
func (db *DB) RecentSwitchEvents(limit int) ([]models.SwitchEvent, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	query := `
		SELECT id, timestamp, from_account, to_account, reason
		FROM switch_events
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`

	rows, err := db.QueryContext(context.Background(), query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query switch events: %w", err)
	}
	defer closeRows(rows)

	var events []models.SwitchEvent
	for rows.Next() {
		var e models.SwitchEvent
		var ts, to, reason string
		var from sql.NullString

		if err := rows.Scan(&e.ID, &ts, &from, &to, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan switch event: %w", err)
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		if from.Valid && from.String != "" {
			if e.From, err = models.ParseAccountID(from.String); err != nil {
				return nil, err
			}
		}
		if e.To, err = models.ParseAccountID(to); err != nil {
			return nil, err
		}
		e.Reason = models.SwitchReason(reason)
		events = append(events, e)
	}

	return events, rows.Err()
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		logger.Error("failed to close rows", "error", err)
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
