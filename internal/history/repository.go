package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// idPrefix marks history identifiers.
const idPrefix = "hist-"

const (
	insertRecordSQL = `INSERT INTO device_status_history
		(id, device_id, status, mode, threshold, temperature, humidity, topic)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	listRecordsSQL = `SELECT id, device_id, status, mode, threshold, temperature, humidity, topic, created_at
		FROM device_status_history
		ORDER BY created_at DESC, rowid DESC`
)

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open connection whose
// schema has been migrated.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// NewID returns a fresh history identifier.
func NewID() string {
	return idPrefix + uuid.NewString()
}

// Record inserts a history row.
func (r *SQLiteRepository) Record(ctx context.Context, rec Record) error {
	if rec.DeviceID == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidRecord)
	}
	if rec.ID == "" {
		rec.ID = NewID()
	}

	_, err := r.db.ExecContext(ctx, insertRecordSQL,
		rec.ID,
		rec.DeviceID,
		rec.Status,
		rec.Mode,
		rec.Threshold,
		rec.Temperature,
		rec.Humidity,
		rec.Topic,
	)
	if err != nil {
		return fmt.Errorf("%w: inserting status history: %w", ErrPersistence, err)
	}

	return nil
}

// List returns history rows ordered newest first. Rows inserted within the
// same millisecond keep insertion order (newest first).
func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]Record, error) {
	query := listRecordsSQL
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying status history: %w", ErrPersistence, err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var rec Record
		var createdAt string

		if err := rows.Scan(
			&rec.ID,
			&rec.DeviceID,
			&rec.Status,
			&rec.Mode,
			&rec.Threshold,
			&rec.Temperature,
			&rec.Humidity,
			&rec.Topic,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("%w: scanning status history: %w", ErrPersistence, err)
		}

		ts, err := parseTimestamp(createdAt)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		rec.CreatedAt = ts

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating status history: %w", ErrPersistence, err)
	}

	return records, nil
}

// parseTimestamp parses a created_at value written by SQLite.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}

	ts, err := time.Parse(time.RFC3339Nano, value)
	if err == nil {
		return ts.UTC(), nil
	}

	// datetime('now') format, for rows inserted by hand.
	fallback, fallbackErr := time.Parse(time.DateTime, value)
	if fallbackErr == nil {
		return fallback.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("parsing created_at %q: %w", value, err)
}
