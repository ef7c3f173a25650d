// Package pickup answers "when is my next bin pickup" for a location by
// combining cached or freshly fetched schedules with the calculator.
package pickup

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/zapponejosh/bincollect/internal/database"
	"github.com/zapponejosh/bincollect/internal/logger"
	"github.com/zapponejosh/bincollect/internal/schedule"
	"github.com/zapponejosh/bincollect/internal/source"
)

// DefaultWeeks is how many upcoming dates a report lists by default.
const DefaultWeeks = 4

// Fetcher retrieves validated records for a location.
type Fetcher interface {
	FetchRecords(ctx context.Context, lat, long float64) ([]source.Record, []byte, error)
}

// Cache stores raw upstream responses by location key.
// *database.DB satisfies it.
type Cache interface {
	GetLookup(ctx context.Context, key string) (*database.Lookup, error)
	SaveLookup(ctx context.Context, l *database.Lookup) error
}

// Service resolves schedules for locations.
type Service struct {
	fetcher Fetcher
	cache   Cache
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a service. cache may be nil to always fetch; a ttl of
// zero also disables cache reads.
func NewService(fetcher Fetcher, cache Cache, ttl time.Duration, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		fetcher: fetcher,
		cache:   cache,
		ttl:     ttl,
		logger:  log,
		now:     time.Now,
	}
}

// LocationKey rounds coordinates to four decimals (about 10 m), well
// inside the portal's search radius.
func LocationKey(lat, long float64) string {
	return roundCoord(lat) + "," + roundCoord(long)
}

func roundCoord(v float64) string {
	r := math.Round(v*1e4) / 1e4
	if r == 0 {
		r = 0 // normalise -0
	}
	return strconv.FormatFloat(r, 'f', 4, 64)
}

// ValidCoordinates reports whether lat/long are usable.
func ValidCoordinates(lat, long float64) bool {
	return !math.IsNaN(lat) && !math.IsNaN(long) &&
		lat >= -90 && lat <= 90 && long >= -180 && long <= 180
}

// Schedules returns the three cart schedules for a location.
func (s *Service) Schedules(ctx context.Context, lat, long float64) ([]source.Schedule, error) {
	records, err := s.records(ctx, lat, long)
	if err != nil {
		return nil, err
	}
	return source.Aggregate(records)
}

func (s *Service) records(ctx context.Context, lat, long float64) ([]source.Record, error) {
	log := logger.FromContext(ctx, s.logger)
	key := LocationKey(lat, long)

	if records, ok := s.cached(ctx, key); ok {
		log.Debug("schedule cache hit", slog.String("location", key))
		return records, nil
	}

	records, raw, err := s.fetcher.FetchRecords(ctx, lat, long)
	if err != nil {
		return nil, fmt.Errorf("fetch schedules for %s: %w", key, err)
	}

	if s.cache != nil {
		lookup := &database.Lookup{
			LocationKey: key,
			Latitude:    lat,
			Longitude:   long,
			Payload:     raw,
			RecordCount: len(records),
			FetchedAt:   s.now(),
		}
		if err := s.cache.SaveLookup(ctx, lookup); err != nil {
			log.Warn("failed to cache schedule lookup",
				slog.String("location", key),
				slog.Any("error", err))
		}
	}

	return records, nil
}

// cached returns records from a fresh cache entry.
func (s *Service) cached(ctx context.Context, key string) ([]source.Record, bool) {
	if s.cache == nil || s.ttl <= 0 {
		return nil, false
	}

	log := logger.FromContext(ctx, s.logger)

	lookup, err := s.cache.GetLookup(ctx, key)
	if err != nil {
		if !database.IsNotFound(err) {
			log.Warn("schedule cache read failed", slog.String("location", key), slog.Any("error", err))
		}
		return nil, false
	}

	if lookup.Age(s.now()) >= s.ttl {
		return nil, false
	}

	records, err := source.Decode(lookup.Payload)
	if err != nil {
		log.Warn("discarding invalid cached lookup", slog.String("location", key), slog.Any("error", err))
		return nil, false
	}
	return records, true
}

// Reports returns one report per cart for a location as seen from today.
func (s *Service) Reports(ctx context.Context, lat, long float64, today time.Time, weeks int) ([]Report, error) {
	schedules, err := s.Schedules(ctx, lat, long)
	if err != nil {
		return nil, err
	}

	reports := make([]Report, 0, len(schedules))
	for _, sch := range schedules {
		r, err := BuildReport(sch, today, weeks)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// Import validates a saved portal response and stores it as the cached
// lookup for the location. It returns the number of records stored.
func (s *Service) Import(ctx context.Context, lat, long float64, raw []byte) (int, error) {
	if s.cache == nil {
		return 0, fmt.Errorf("import requires a cache")
	}

	records, err := source.Decode(raw)
	if err != nil {
		return 0, err
	}
	if _, err := source.Aggregate(records); err != nil {
		return 0, err
	}

	lookup := &database.Lookup{
		LocationKey: LocationKey(lat, long),
		Latitude:    lat,
		Longitude:   long,
		Payload:     raw,
		RecordCount: len(records),
		FetchedAt:   s.now(),
	}
	if err := s.cache.SaveLookup(ctx, lookup); err != nil {
		return 0, fmt.Errorf("store imported lookup: %w", err)
	}
	return len(records), nil
}

// Report is a cart's schedule with its next pickup resolved.
type Report struct {
	Commodity source.Commodity   `json:"commodity"`
	Label     string             `json:"label"`
	Day       string             `json:"day"`
	Weekday   schedule.Weekday   `json:"weekday"`
	Frequency schedule.Frequency `json:"frequency"`
	Season    source.Season      `json:"season"`
	Message   string             `json:"message"`
	NextDate  string             `json:"next_date"`
	Today     bool               `json:"today"`
	Following string             `json:"following,omitempty"`
	Upcoming  []string           `json:"upcoming"`

	upcoming []time.Time
}

// UpcomingDates returns the upcoming pickups as times.
func (r Report) UpcomingDates() []time.Time {
	return r.upcoming
}

// BuildReport resolves one schedule against today.
func BuildReport(sch source.Schedule, today time.Time, weeks int) (Report, error) {
	occ := schedule.Resolve(today, sch.Weekday, sch.Frequency)

	upcoming, err := schedule.Upcoming(today, sch.Weekday, sch.Frequency, weeks)
	if err != nil {
		return Report{}, fmt.Errorf("%s cart: %w", sch.Commodity, err)
	}

	r := Report{
		Commodity: sch.Commodity,
		Label:     sch.Commodity.Label(),
		Day:       sch.DayName,
		Weekday:   sch.Weekday,
		Frequency: sch.Frequency,
		Season:    sch.Season,
		Message:   occ.String(),
		NextDate:  FormatDate(occ.Date),
		Today:     occ.Today,
		Upcoming:  make([]string, 0, len(upcoming)),
		upcoming:  upcoming,
	}
	if occ.Today {
		r.Following = FormatDate(occ.Following)
	}
	for _, d := range upcoming {
		r.Upcoming = append(r.Upcoming, FormatDate(d))
	}
	return r, nil
}

// FormatDate formats a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(time.DateOnly)
}

// ParseDate parses YYYY-MM-DD in the host's local calendar.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, s, time.Local)
}
