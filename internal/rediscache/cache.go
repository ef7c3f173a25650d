// Package rediscache stores location lookups in Redis as an alternative
// to the SQLite cache when several API instances share one cache.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/zapponejosh/bincollect/internal/database"
)

// DefaultPrefix namespaces lookup keys.
const DefaultPrefix = "bincollect:lookup:"

// Config holds Redis cache settings.
type Config struct {
	URL    string        // redis://[:password@]host:port/db
	Prefix string        // Key prefix, DefaultPrefix when empty
	Expiry time.Duration // Key expiry; 0 keeps keys until purged
}

// Cache is a lookup cache backed by Redis.
type Cache struct {
	client *redis.Client
	prefix string
	expiry time.Duration
	logger *slog.Logger
}

// Open connects to Redis and verifies the connection.
// The caller is responsible for calling Close() when done.
func Open(cfg Config, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	logger.Info("redis cache connected",
		slog.String("addr", opts.Addr),
		slog.Int("db", opts.DB),
	)

	return &Cache{client: client, prefix: prefix, expiry: cfg.Expiry, logger: logger}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Health verifies Redis is reachable.
func (c *Cache) Health(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func (c *Cache) key(locationKey string) string {
	return c.prefix + locationKey
}

// GetLookup returns the cached lookup for a location key.
// Returns database.ErrNotFound if the key isn't cached.
func (c *Cache) GetLookup(ctx context.Context, key string) (*database.Lookup, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lookup: %w", err)
	}

	var l database.Lookup
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("decode lookup: %w", err)
	}
	return &l, nil
}

// SaveLookup stores a lookup, replacing any earlier entry for the key.
func (c *Cache) SaveLookup(ctx context.Context, l *database.Lookup) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode lookup: %w", err)
	}
	if err := c.client.Set(ctx, c.key(l.LocationKey), data, c.expiry).Err(); err != nil {
		return fmt.Errorf("save lookup: %w", err)
	}
	return nil
}

// PurgeLookups deletes lookups fetched before olderThan and returns the
// number removed. A zero olderThan removes everything under the prefix.
func (c *Cache) PurgeLookups(ctx context.Context, olderThan time.Time) (int64, error) {
	var removed int64

	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		if !olderThan.IsZero() {
			data, err := c.client.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return removed, fmt.Errorf("get %s: %w", key, err)
			}

			var l database.Lookup
			if err := json.Unmarshal(data, &l); err == nil && !l.FetchedAt.Before(olderThan) {
				continue
			}
		}

		n, err := c.client.Del(ctx, key).Result()
		if err != nil {
			return removed, fmt.Errorf("delete %s: %w", key, err)
		}
		removed += n
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scan lookups: %w", err)
	}

	c.logger.Info("purged cached lookups", slog.Int64("removed", removed))
	return removed, nil
}

// GetCacheStats returns the number of cached lookups and their age range.
func (c *Cache) GetCacheStats(ctx context.Context) (*database.CacheStats, error) {
	var stats database.CacheStats

	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := c.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", iter.Val(), err)
		}

		var l database.Lookup
		if err := json.Unmarshal(data, &l); err != nil {
			continue
		}

		stats.Lookups++
		fetched := l.FetchedAt
		if stats.Oldest == nil || fetched.Before(*stats.Oldest) {
			stats.Oldest = &fetched
		}
		if stats.Newest == nil || fetched.After(*stats.Newest) {
			stats.Newest = &fetched
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan lookups: %w", err)
	}
	return &stats, nil
}
