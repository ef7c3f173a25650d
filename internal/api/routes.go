package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zapponejosh/bincollect/internal/config"
)

// SetupRoutes configures all HTTP routes and returns the router.
//
// Route structure:
//
//	GET    /health
//	GET    /api/v1/next?day=&frequency=&date=&weeks=
//	GET    /api/v1/schedules?lat=&long=&date=&weeks=
//	GET    /api/v1/schedules/calendar.ics?lat=&long=&weeks=
//	DELETE /api/v1/admin/cache?older_than=   (X-API-Key)
func SetupRoutes(handlers *Handlers, cfg *config.Config, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		RecoveryMiddleware(logger),
		RequestIDMiddleware(),
		LoggingMiddleware(logger),
		CORSMiddleware(),
	)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteNotFound(w, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", "METHOD_NOT_ALLOWED")
	})

	// ==========================================================================
	// Public routes
	// ==========================================================================
	r.Get("/health", handlers.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/next", handlers.GetNext)
		r.Get("/schedules", handlers.GetSchedules)
		r.Get("/schedules/calendar.ics", handlers.GetCalendarICS)

		// ======================================================================
		// Admin routes (API key)
		// ======================================================================
		r.With(AuthMiddleware(cfg, logger)).Delete("/admin/cache", handlers.PurgeCache)
	})

	return r
}
