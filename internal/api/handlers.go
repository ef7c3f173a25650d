package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zapponejosh/bincollect/internal/config"
	"github.com/zapponejosh/bincollect/internal/database"
	"github.com/zapponejosh/bincollect/internal/logger"
	"github.com/zapponejosh/bincollect/internal/pickup"
	"github.com/zapponejosh/bincollect/internal/schedule"
	"github.com/zapponejosh/bincollect/internal/source"
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	store   pickup.Store
	service *pickup.Service
	cfg     *config.Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandlers creates a new Handlers instance. store is the lookup cache
// the service reads from; it backs health checks and purging.
func NewHandlers(store pickup.Store, service *pickup.Service, cfg *config.Config, logger *slog.Logger) *Handlers {
	return &Handlers{
		store:   store,
		service: service,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

type healthChecker interface {
	Health(ctx context.Context) error
}

type statsReporter interface {
	GetCacheStats(ctx context.Context) (*database.CacheStats, error)
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx, h.logger)

	if hc, ok := h.store.(healthChecker); ok {
		if err := hc.Health(ctx); err != nil {
			log.Warn("health check failed", slog.Any("error", err))
			WriteError(w, http.StatusServiceUnavailable, "Cache unhealthy", CodeHealthCheckFailed)
			return
		}
	}

	data := map[string]any{"status": "healthy"}

	if sr, ok := h.store.(statsReporter); ok {
		stats, err := sr.GetCacheStats(ctx)
		if err != nil {
			log.Warn("cache stats failed", slog.Any("error", err))
			WriteError(w, http.StatusServiceUnavailable, "Cache unhealthy", CodeHealthCheckFailed)
			return
		}
		data["cache"] = stats
	}

	WriteSuccess(w, data)
}

// NextResponse is the calculator result for one weekday and frequency.
type NextResponse struct {
	Day       string             `json:"day"`
	Weekday   schedule.Weekday   `json:"weekday"`
	Frequency schedule.Frequency `json:"frequency"`
	Date      string             `json:"date"`
	Message   string             `json:"message"`
	NextDate  string             `json:"next_date"`
	Today     bool               `json:"today"`
	Following string             `json:"following,omitempty"`
	Upcoming  []string           `json:"upcoming"`
}

// GetNext handles GET /api/v1/next?day=&frequency=&date=&weeks=
func (h *Handlers) GetNext(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	weekday, err := parseWeekdayParam(q.Get("day"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), CodeInvalidWeekday)
		return
	}

	frequency, err := schedule.ParseFrequency(strings.ToUpper(q.Get("frequency")))
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), CodeInvalidFrequency)
		return
	}

	date, ok := h.dateParam(w, r)
	if !ok {
		return
	}
	weeks, ok := weeksParam(w, r)
	if !ok {
		return
	}

	occ := schedule.Resolve(date, weekday, frequency)
	upcoming, err := schedule.Upcoming(date, weekday, frequency, weeks)
	if err != nil {
		logger.FromContext(r.Context(), h.logger).Error("failed to expand upcoming dates", slog.Any("error", err))
		WriteInternalError(w, "Failed to compute upcoming dates")
		return
	}

	resp := NextResponse{
		Day:       weekday.String(),
		Weekday:   weekday,
		Frequency: frequency,
		Date:      pickup.FormatDate(date),
		Message:   occ.String(),
		NextDate:  pickup.FormatDate(occ.Date),
		Today:     occ.Today,
		Upcoming:  make([]string, 0, len(upcoming)),
	}
	if occ.Today {
		resp.Following = pickup.FormatDate(occ.Following)
	}
	for _, d := range upcoming {
		resp.Upcoming = append(resp.Upcoming, pickup.FormatDate(d))
	}

	WriteSuccess(w, resp)
}

// GetSchedules handles GET /api/v1/schedules?lat=&long=&date=&weeks=
func (h *Handlers) GetSchedules(w http.ResponseWriter, r *http.Request) {
	lat, long, ok := coordinateParams(w, r)
	if !ok {
		return
	}
	date, ok := h.dateParam(w, r)
	if !ok {
		return
	}
	weeks, ok := weeksParam(w, r)
	if !ok {
		return
	}

	reports, err := h.service.Reports(r.Context(), lat, long, date, weeks)
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}

	WriteSuccess(w, map[string]any{
		"location":  pickup.LocationKey(lat, long),
		"date":      pickup.FormatDate(date),
		"schedules": reports,
	})
}

// GetCalendarICS handles GET /api/v1/schedules/calendar.ics?lat=&long=&weeks=
func (h *Handlers) GetCalendarICS(w http.ResponseWriter, r *http.Request) {
	lat, long, ok := coordinateParams(w, r)
	if !ok {
		return
	}
	weeks, ok := weeksParam(w, r)
	if !ok {
		return
	}

	now := h.now()
	reports, err := h.service.Reports(r.Context(), lat, long, now, weeks)
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="bincollect.ics"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(pickup.Calendar(reports, now))); err != nil {
		logger.FromContext(r.Context(), h.logger).Warn("failed to write calendar", slog.Any("error", err))
	}
}

// PurgeCache handles DELETE /api/v1/admin/cache?older_than=
// Without older_than every cached lookup is removed.
func (h *Handlers) PurgeCache(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var cutoff time.Time
	if s := r.URL.Query().Get("older_than"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d < 0 {
			WriteBadRequest(w, fmt.Sprintf("Invalid older_than: %s. Use a duration like 24h", s))
			return
		}
		cutoff = h.now().Add(-d)
	}

	removed, err := h.store.PurgeLookups(ctx, cutoff)
	if err != nil {
		logger.FromContext(ctx, h.logger).Error("failed to purge cache", slog.Any("error", err))
		WriteInternalError(w, "Failed to purge cache")
		return
	}

	WriteSuccess(w, map[string]int64{"removed": removed})
}

// writeLookupError maps service errors to API error codes.
func (h *Handlers) writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context(), h.logger)

	switch {
	case errors.Is(err, source.ErrSchemaMismatch):
		log.Warn("upstream schema mismatch", slog.Any("error", err))
		WriteBadGateway(w, "Unexpected response from the schedule portal", CodeSchemaMismatch)
	case errors.Is(err, source.ErrMissingCommodity):
		log.Warn("upstream missing commodity", slog.Any("error", err))
		WriteBadGateway(w, err.Error(), CodeMissingCommodity)
	case errors.Is(err, schedule.ErrInvalidWeekdayName), errors.Is(err, schedule.ErrInvalidFrequency):
		log.Warn("upstream returned invalid schedule", slog.Any("error", err))
		WriteBadGateway(w, err.Error(), CodeSchemaMismatch)
	case errors.Is(err, source.ErrUpstream):
		log.Error("schedule portal unavailable", slog.Any("error", err))
		WriteBadGateway(w, "Schedule portal unavailable", CodeUpstream)
	default:
		log.Error("failed to look up schedules", slog.Any("error", err))
		WriteInternalError(w, "Failed to look up schedules")
	}
}

// parseWeekdayParam accepts a day name or a code from 0 (Sunday) to 6.
func parseWeekdayParam(s string) (schedule.Weekday, error) {
	if n, err := strconv.Atoi(s); err == nil {
		wd := schedule.Weekday(n)
		if !wd.IsValid() {
			return 0, fmt.Errorf("%w: %q", schedule.ErrInvalidWeekdayName, s)
		}
		return wd, nil
	}
	return schedule.ParseWeekday(s)
}

// dateParam reads date=YYYY-MM-DD, defaulting to now.
func (h *Handlers) dateParam(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	s := r.URL.Query().Get("date")
	if s == "" {
		return h.now(), true
	}
	date, err := pickup.ParseDate(s)
	if err != nil {
		WriteBadRequest(w, fmt.Sprintf("Invalid date format: %s. Use YYYY-MM-DD", s))
		return time.Time{}, false
	}
	return date, true
}

func weeksParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	s := r.URL.Query().Get("weeks")
	if s == "" {
		return pickup.DefaultWeeks, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > schedule.MaxUpcoming {
		WriteBadRequest(w, fmt.Sprintf("weeks must be between 1 and %d", schedule.MaxUpcoming))
		return 0, false
	}
	return n, true
}

func coordinateParams(w http.ResponseWriter, r *http.Request) (float64, float64, bool) {
	q := r.URL.Query()
	if q.Get("lat") == "" || q.Get("long") == "" {
		WriteBadRequest(w, "Both lat and long parameters are required")
		return 0, 0, false
	}

	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	long, errLong := strconv.ParseFloat(q.Get("long"), 64)
	if errLat != nil || errLong != nil || !pickup.ValidCoordinates(lat, long) {
		WriteBadRequest(w, "Invalid coordinates")
		return 0, 0, false
	}
	return lat, long, true
}
