// Package main is the entry point for the bin collection API server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zapponejosh/bincollect/internal/api"
	"github.com/zapponejosh/bincollect/internal/config"
	"github.com/zapponejosh/bincollect/internal/database"
	"github.com/zapponejosh/bincollect/internal/logger"
	"github.com/zapponejosh/bincollect/internal/pickup"
	"github.com/zapponejosh/bincollect/internal/rediscache"
	"github.com/zapponejosh/bincollect/internal/source"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Setup structured logging
	log := logger.Setup(cfg)

	log.Info("starting bin collection API",
		slog.String("env", cfg.Env),
		slog.Int("port", cfg.Port),
		slog.String("log_level", cfg.LogLevel),
		slog.Duration("cache_ttl", cfg.CacheTTL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	client := source.NewClient(source.ClientConfig{
		BaseURL:      cfg.SourceURL,
		RadiusMeters: cfg.SourceRadiusMeters,
		Timeout:      cfg.SourceTimeout,
		RateLimit:    cfg.SourceRateLimit,
	}, log)
	service := pickup.NewService(client, store, cfg.CacheTTL, log)

	if cfg.CachePurgeSchedule != "" && cfg.CacheTTL > 0 {
		janitor, err := pickup.NewJanitor(store, cfg.CachePurgeSchedule, cfg.CacheTTL, log)
		if err != nil {
			return err
		}
		log.Info("cache purge scheduled",
			slog.String("schedule", cfg.CachePurgeSchedule),
			slog.Time("next", janitor.Next(time.Now())))
		go janitor.Run(ctx)
	}

	handlers := api.NewHandlers(store, service, cfg, log)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.SetupRoutes(handlers, cfg, log),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.SourceTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("server is shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// openStore opens the Redis cache when REDIS_URL is set and the SQLite
// cache otherwise.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (pickup.Store, func(), error) {
	if cfg.RedisURL != "" {
		cache, err := rediscache.Open(rediscache.Config{URL: cfg.RedisURL, Expiry: cfg.CacheTTL}, log)
		if err != nil {
			return nil, nil, err
		}
		return cache, func() { cache.Close() }, nil
	}

	db, err := database.Open(database.DefaultConfig(cfg.DatabasePath), log)
	if err != nil {
		return nil, nil, err
	}
	if _, err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, func() { db.Close() }, nil
}
