package database

// migrationsSQL contains all database migrations, applied in version order.
var migrationsSQL = map[int]string{
	1: migrationV1LocationLookups,
}

// migrationV1LocationLookups creates the lookup cache.
//
// location_key is the rounded "lat,long" string used by the pickup service.
// payload holds the validated JSON array exactly as the portal returned it.
const migrationV1LocationLookups = `
CREATE TABLE IF NOT EXISTS location_lookups (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    location_key TEXT NOT NULL UNIQUE,
    latitude REAL NOT NULL,
    longitude REAL NOT NULL,
    payload TEXT NOT NULL,
    record_count INTEGER NOT NULL DEFAULT 0,

    -- RFC3339, UTC
    fetched_at TEXT NOT NULL,

    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Purges scan by age
CREATE INDEX IF NOT EXISTS idx_location_lookups_fetched
    ON location_lookups(fetched_at);
`
