package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// =============================================================================
// Helper Functions
// =============================================================================

// parseTimestamp parses a timestamp stored as SQLite TEXT.
// Returns nil if the value is empty or in an unknown format.
func parseTimestamp(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}

	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, ns.String); err == nil {
			return &t
		}
	}
	return nil
}

// timestampLayout is fixed width so stored values compare correctly as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// =============================================================================
// Lookup Queries
// =============================================================================

// GetLookup returns the cached lookup for a location key.
// Returns ErrNotFound if nothing is cached.
func (db *DB) GetLookup(ctx context.Context, key string) (*Lookup, error) {
	query := `
		SELECT id, location_key, latitude, longitude, payload, record_count, fetched_at
		FROM location_lookups
		WHERE location_key = ?
	`

	var l Lookup
	var payload string
	var fetchedAt sql.NullString

	err := db.QueryRowContext(ctx, query, key).Scan(
		&l.ID,
		&l.LocationKey,
		&l.Latitude,
		&l.Longitude,
		&payload,
		&l.RecordCount,
		&fetchedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query lookup: %w", err)
	}

	ts := parseTimestamp(fetchedAt)
	if ts == nil {
		return nil, fmt.Errorf("lookup %s has invalid fetched_at %q", key, fetchedAt.String)
	}
	l.FetchedAt = *ts
	l.Payload = []byte(payload)

	return &l, nil
}

// SaveLookup inserts or replaces the cached lookup for l.LocationKey and
// sets l.ID.
func (db *DB) SaveLookup(ctx context.Context, l *Lookup) error {
	if l.FetchedAt.IsZero() {
		l.FetchedAt = time.Now()
	}

	query := `
		INSERT INTO location_lookups (
			location_key, latitude, longitude, payload, record_count, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(location_key) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			payload = excluded.payload,
			record_count = excluded.record_count,
			fetched_at = excluded.fetched_at,
			updated_at = datetime('now')
		RETURNING id
	`

	err := db.QueryRowContext(ctx, query,
		l.LocationKey,
		l.Latitude,
		l.Longitude,
		string(l.Payload),
		l.RecordCount,
		formatTimestamp(l.FetchedAt),
	).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("save lookup: %w", err)
	}

	return nil
}

// DeleteLookup removes one cached lookup.
// Returns ErrNotFound if the key isn't cached.
func (db *DB) DeleteLookup(ctx context.Context, key string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM location_lookups WHERE location_key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete lookup: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeLookups deletes lookups fetched before olderThan and returns the
// number removed. A zero olderThan removes everything.
func (db *DB) PurgeLookups(ctx context.Context, olderThan time.Time) (int64, error) {
	var (
		result sql.Result
		err    error
	)
	if olderThan.IsZero() {
		result, err = db.ExecContext(ctx, `DELETE FROM location_lookups`)
	} else {
		result, err = db.ExecContext(ctx,
			`DELETE FROM location_lookups WHERE fetched_at < ?`,
			formatTimestamp(olderThan),
		)
	}
	if err != nil {
		return 0, fmt.Errorf("purge lookups: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}

	db.logger.Info("purged cached lookups", slog.Int64("removed", rows))
	return rows, nil
}

// GetCacheStats returns the number of cached lookups and their age range.
func (db *DB) GetCacheStats(ctx context.Context) (*CacheStats, error) {
	var stats CacheStats
	var oldest, newest sql.NullString

	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(fetched_at), MAX(fetched_at)
		FROM location_lookups
	`).Scan(&stats.Lookups, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("query cache stats: %w", err)
	}

	stats.Oldest = parseTimestamp(oldest)
	stats.Newest = parseTimestamp(newest)
	return &stats, nil
}
