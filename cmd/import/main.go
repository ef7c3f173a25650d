// Command import seeds the lookup cache from a saved Open Data export.
//
// Usage:
//
//	go run ./cmd/import --json data/export.json --lat 51.0447 --long -114.0719 --db data/bincollect.db
//
// This tool:
// 1. Reads and validates the JSON export (same checks as a live fetch)
// 2. Creates/opens the SQLite database and runs migrations
// 3. Stores the export as the cached lookup for the location
//
// Importing the same location again replaces the earlier entry.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/zapponejosh/bincollect/internal/config"
	"github.com/zapponejosh/bincollect/internal/database"
	"github.com/zapponejosh/bincollect/internal/pickup"
)

func main() {
	jsonPath := flag.String("json", "", "Path to a saved Open Data JSON response")
	lat := flag.Float64("lat", 0, "Latitude the export was fetched for")
	long := flag.Float64("long", 0, "Longitude the export was fetched for")
	dbPath := flag.String("db", config.DefaultDatabasePath, "Path to SQLite database")
	verbose := flag.BoolP("verbose", "v", false, "Verbose output")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))

	if *jsonPath == "" || !flag.CommandLine.Changed("lat") || !flag.CommandLine.Changed("long") {
		fmt.Fprintln(os.Stderr, "usage: import --json FILE --lat LAT --long LONG [--db PATH] [-v]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(*jsonPath, *dbPath, *lat, *long, logger); err != nil {
		logger.Error("import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("import complete")
}

func run(jsonPath, dbPath string, lat, long float64, logger *slog.Logger) error {
	ctx := context.Background()
	startTime := time.Now()

	if !pickup.ValidCoordinates(lat, long) {
		return fmt.Errorf("invalid coordinates %v, %v", lat, long)
	}

	// =========================================================================
	// Step 1: Read JSON
	// =========================================================================
	logger.Info("reading JSON file", slog.String("path", jsonPath))

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return fmt.Errorf("read JSON file: %w", err)
	}

	// =========================================================================
	// Step 2: Open database and run migrations
	// =========================================================================
	logger.Info("opening database", slog.String("path", dbPath))

	db, err := database.Open(database.DefaultConfig(dbPath), logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	migrated, err := db.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("migrations complete", slog.Int("applied", migrated))

	// =========================================================================
	// Step 3: Validate and store
	// =========================================================================
	svc := pickup.NewService(nil, db, 0, logger)

	count, err := svc.Import(ctx, lat, long, data)
	if err != nil {
		return fmt.Errorf("import lookup: %w", err)
	}

	// =========================================================================
	// Step 4: Verify import
	// =========================================================================
	key := pickup.LocationKey(lat, long)
	if _, err := db.GetLookup(ctx, key); err != nil {
		return fmt.Errorf("verify import: %w", err)
	}

	stats, err := db.GetCacheStats(ctx)
	if err != nil {
		return fmt.Errorf("cache stats: %w", err)
	}

	logger.Info("import summary",
		slog.String("location", key),
		slog.Int("records", count),
		slog.Int("cached_lookups", stats.Lookups),
		slog.Duration("duration", time.Since(startTime)),
	)

	return nil
}
