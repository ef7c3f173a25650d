package database

import (
	"encoding/json"
	"time"
)

// Lookup is a cached portal response for one location.
type Lookup struct {
	ID          int64           `json:"id"`
	LocationKey string          `json:"location_key"`
	Latitude    float64         `json:"latitude"`
	Longitude   float64         `json:"longitude"`
	Payload     json.RawMessage `json:"payload"`
	RecordCount int             `json:"record_count"`
	FetchedAt   time.Time       `json:"fetched_at"`
}

// Age returns how long ago the lookup was fetched.
func (l *Lookup) Age(now time.Time) time.Duration {
	return now.Sub(l.FetchedAt)
}

// CacheStats summarises the cache contents.
type CacheStats struct {
	Lookups int        `json:"lookups"`
	Oldest  *time.Time `json:"oldest,omitempty"`
	Newest  *time.Time `json:"newest,omitempty"`
}
