package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/zapponejosh/bincollect/internal/config"
	"github.com/zapponejosh/bincollect/internal/database"
	"github.com/zapponejosh/bincollect/internal/pickup"
	"github.com/zapponejosh/bincollect/internal/rediscache"
	"github.com/zapponejosh/bincollect/internal/source"
)

// =============================================================================
// TEST SETUP HELPERS
// =============================================================================

const winterResponse = `[
  {"commodity":"Black","current_season":"WINTER","clect_int_winter":"EVERY","collection_day_winter":"Monday","clect_int_summer":"EVERY","collection_day_summer":"Monday","clect_day_code":"1"},
  {"commodity":"Blue","current_season":"WINTER","clect_int_winter":"ODD","collection_day_winter":"Wednesday","clect_int_summer":"EVERY","collection_day_summer":"Wednesday","clect_day_code":"3"},
  {"commodity":"Green","current_season":"WINTER","clect_int_winter":"EVEN","collection_day_winter":"Monday","clect_int_summer":"EVERY","collection_day_summer":"Monday","clect_day_code":"1"}
]`

// testEnv sets up a complete test environment with database, a fake
// portal, config, and the router.
type testEnv struct {
	db       *database.DB
	cfg      *config.Config
	handlers *Handlers
	router   http.Handler
	apiKey   string

	upstreamStatus int
	upstreamBody   string
	upstreamCalls  atomic.Int32
}

// setupTest creates a fresh test environment
func setupTest(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Quiet during tests
	}))

	db, err := database.Open(database.DefaultConfig(":memory:"), logger)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if _, err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		db:             db,
		apiKey:         "admin-test-key-32-characters-minimum-length",
		upstreamStatus: http.StatusOK,
		upstreamBody:   winterResponse,
	}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.upstreamCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(env.upstreamStatus)
		w.Write([]byte(env.upstreamBody))
	}))
	t.Cleanup(upstream.Close)

	env.cfg = &config.Config{
		Port:               8080,
		Env:                config.EnvDevelopment,
		DatabasePath:       ":memory:",
		CacheTTL:           time.Hour,
		APIKey:             env.apiKey,
		SourceURL:          upstream.URL,
		SourceRadiusMeters: 50,
		SourceTimeout:      5 * time.Second,
		LogLevel:           "error",
		LogFormat:          "text",
	}

	client := source.NewClient(source.ClientConfig{
		BaseURL:      env.cfg.SourceURL,
		RadiusMeters: env.cfg.SourceRadiusMeters,
		Timeout:      env.cfg.SourceTimeout,
	}, logger)
	service := pickup.NewService(client, db, env.cfg.CacheTTL, logger)

	env.handlers = NewHandlers(db, service, env.cfg, logger)
	env.handlers.now = func() time.Time {
		return time.Date(2017, time.July, 17, 9, 30, 0, 0, time.Local)
	}
	env.router = SetupRoutes(env.handlers, env.cfg, logger)

	return env
}

// envelope mirrors Response with the data left raw for typed decoding.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorInfo      `json:"error"`
}

func (env *testEnv) do(t *testing.T, method, path, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

// parseResponse parses the JSON envelope and optionally its data.
func parseResponse(t *testing.T, rr *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v, body: %s", err, rr.Body.String())
	}
	if data != nil {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data: %v, data: %s", err, env.Data)
		}
	}
	return env
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Errorf("Status = %d, want %d, body: %s", rr.Code, status, rr.Body.String())
	}
	resp := parseResponse(t, rr, nil)
	if resp.Success {
		t.Error("Success = true, want false")
	}
	if resp.Error == nil || resp.Error.Code != code {
		t.Errorf("Error = %+v, want code %s", resp.Error, code)
	}
}

// =============================================================================
// MIDDLEWARE TESTS
// =============================================================================

func TestAuthMiddleware(t *testing.T) {
	env := setupTest(t)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name   string
		cfgKey string
		key    string
		want   int
	}{
		{"valid key", env.apiKey, env.apiKey, http.StatusOK},
		{"missing key", env.apiKey, "", http.StatusUnauthorized},
		{"wrong key", env.apiKey, "not-the-key", http.StatusUnauthorized},
		{"development without key", "", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *env.cfg
			cfg.APIKey = tt.cfgKey

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rr := httptest.NewRecorder()
			AuthMiddleware(&cfg, slog.Default())(ok).ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Errorf("Status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestAuthMiddleware_ProductionRequiresKey(t *testing.T) {
	cfg := &config.Config{Env: config.EnvProduction}
	handler := AuthMiddleware(cfg, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-API-Key", "anything")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	env := setupTest(t)

	rr := env.do(t, http.MethodGet, "/health", "")
	if rr.Header().Get(RequestIDHeader) == "" {
		t.Error("missing generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	if got := rr.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q, want abc-123", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	expectError(t, rr, http.StatusInternalServerError, CodeInternal)
}

func TestCORSPreflight(t *testing.T) {
	env := setupTest(t)

	rr := env.do(t, http.MethodOptions, "/api/v1/next", "")
	if rr.Code != http.StatusNoContent {
		t.Errorf("Status = %d, want %d", rr.Code, http.StatusNoContent)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

// =============================================================================
// HEALTH
// =============================================================================

func TestHealthCheck(t *testing.T) {
	env := setupTest(t)

	rr := env.do(t, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", rr.Code, http.StatusOK)
	}

	var data struct {
		Status string `json:"status"`
	}
	resp := parseResponse(t, rr, &data)
	if !resp.Success || data.Status != "healthy" {
		t.Errorf("response = %+v, data = %+v", resp, data)
	}
}

func TestNotFound(t *testing.T) {
	env := setupTest(t)
	expectError(t, env.do(t, http.MethodGet, "/api/v1/nope", ""), http.StatusNotFound, CodeNotFound)
}

// =============================================================================
// CALCULATOR
// =============================================================================

func TestGetNext(t *testing.T) {
	env := setupTest(t)

	tests := []struct {
		name    string
		query   string
		message string
		next    string
		today   bool
	}{
		{
			name:    "weekly, day already passed",
			query:   "day=Monday&frequency=EVERY&date=2017-07-18",
			message: "In 6 days, on Monday, July 24th",
			next:    "2017-07-24",
		},
		{
			name:    "numeric day, lowercase frequency, off week",
			query:   "day=3&frequency=odd&date=2017-07-17",
			message: "Next week, on Wednesday, July 26th",
			next:    "2017-07-26",
		},
		{
			name:    "today on an even week",
			query:   "day=Monday&frequency=EVEN&date=2017-07-17",
			message: "Today. Next collection will be: In 2 weeks, on Monday, July 31st",
			next:    "2017-07-17",
			today:   true,
		},
		{
			name:    "tomorrow",
			query:   "day=Tuesday&frequency=EVERY&date=2017-07-17",
			message: "Tomorrow",
			next:    "2017-07-18",
		},
		{
			name:    "defaults to now",
			query:   "day=Monday&frequency=EVERY",
			message: "Today. Next collection will be: Next week, on Monday, July 24th",
			next:    "2017-07-17",
			today:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodGet, "/api/v1/next?"+tt.query, "")
			if rr.Code != http.StatusOK {
				t.Fatalf("Status = %d, want %d, body: %s", rr.Code, http.StatusOK, rr.Body.String())
			}

			var data NextResponse
			parseResponse(t, rr, &data)

			if data.Message != tt.message {
				t.Errorf("Message = %q, want %q", data.Message, tt.message)
			}
			if data.NextDate != tt.next {
				t.Errorf("NextDate = %q, want %q", data.NextDate, tt.next)
			}
			if data.Today != tt.today {
				t.Errorf("Today = %v, want %v", data.Today, tt.today)
			}
			if len(data.Upcoming) != pickup.DefaultWeeks {
				t.Errorf("len(Upcoming) = %d, want %d", len(data.Upcoming), pickup.DefaultWeeks)
			}
		})
	}
}

func TestGetNext_Upcoming(t *testing.T) {
	env := setupTest(t)

	rr := env.do(t, http.MethodGet, "/api/v1/next?day=Wednesday&frequency=ODD&date=2017-07-17&weeks=3", "")
	var data NextResponse
	parseResponse(t, rr, &data)

	want := "2017-07-26,2017-08-09,2017-08-23"
	if got := strings.Join(data.Upcoming, ","); got != want {
		t.Errorf("Upcoming = %s, want %s", got, want)
	}
}

func TestGetNext_Errors(t *testing.T) {
	env := setupTest(t)

	tests := []struct {
		name  string
		query string
		code  string
	}{
		{"unknown day", "day=Funday&frequency=EVERY", CodeInvalidWeekday},
		{"day code out of range", "day=7&frequency=EVERY", CodeInvalidWeekday},
		{"missing day", "frequency=EVERY", CodeInvalidWeekday},
		{"unknown frequency", "day=Monday&frequency=MONTHLY", CodeInvalidFrequency},
		{"bad date", "day=Monday&frequency=EVERY&date=17-07-2017", CodeBadRequest},
		{"weeks too large", "day=Monday&frequency=EVERY&weeks=100", CodeBadRequest},
		{"weeks zero", "day=Monday&frequency=EVERY&weeks=0", CodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectError(t, env.do(t, http.MethodGet, "/api/v1/next?"+tt.query, ""), http.StatusBadRequest, tt.code)
		})
	}
}

// =============================================================================
// LOCATION SCHEDULES
// =============================================================================

func TestGetSchedules(t *testing.T) {
	env := setupTest(t)

	path := "/api/v1/schedules?lat=51.04473&long=-114.07189&date=2017-07-17&weeks=2"
	rr := env.do(t, http.MethodGet, path, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d, body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var data struct {
		Location  string          `json:"location"`
		Schedules []pickup.Report `json:"schedules"`
	}
	parseResponse(t, rr, &data)

	if data.Location != "51.0447,-114.0719" {
		t.Errorf("Location = %q", data.Location)
	}
	if len(data.Schedules) != 3 {
		t.Fatalf("len(Schedules) = %d, want 3", len(data.Schedules))
	}

	wantMessages := []string{
		"Today. Next collection will be: Next week, on Monday, July 24th",
		"Next week, on Wednesday, July 26th",
		"Today. Next collection will be: In 2 weeks, on Monday, July 31st",
	}
	for i, r := range data.Schedules {
		if r.Message != wantMessages[i] {
			t.Errorf("%s message = %q, want %q", r.Commodity, r.Message, wantMessages[i])
		}
		if len(r.Upcoming) != 2 {
			t.Errorf("%s upcoming = %v", r.Commodity, r.Upcoming)
		}
	}

	// Second request is served from the cache.
	env.do(t, http.MethodGet, path, "")
	if n := env.upstreamCalls.Load(); n != 1 {
		t.Errorf("upstream calls = %d, want 1", n)
	}
}

func TestGetSchedules_BadParams(t *testing.T) {
	env := setupTest(t)

	for _, query := range []string{
		"",
		"lat=51.04",
		"lat=abc&long=-114",
		"lat=95&long=-114",
		"lat=51.04&long=-114.07&date=tomorrow",
	} {
		t.Run(query, func(t *testing.T) {
			expectError(t, env.do(t, http.MethodGet, "/api/v1/schedules?"+query, ""), http.StatusBadRequest, CodeBadRequest)
		})
	}
	if n := env.upstreamCalls.Load(); n != 0 {
		t.Errorf("upstream calls = %d, want 0", n)
	}
}

func TestGetSchedules_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   string
	}{
		{"portal down", http.StatusServiceUnavailable, `{}`, CodeUpstream},
		{"unexpected shape", http.StatusOK, `{"error":true}`, CodeSchemaMismatch},
		{"missing field", http.StatusOK, `[{"commodity":"Black"}]`, CodeSchemaMismatch},
		{"no records", http.StatusOK, `[]`, CodeMissingCommodity},
		{"unknown weekday", http.StatusOK, strings.Replace(winterResponse, `"collection_day_winter":"Wednesday"`, `"collection_day_winter":"Funday"`, 1), CodeSchemaMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTest(t)
			env.upstreamStatus = tt.status
			env.upstreamBody = tt.body

			rr := env.do(t, http.MethodGet, "/api/v1/schedules?lat=51.0447&long=-114.0719", "")
			expectError(t, rr, http.StatusBadGateway, tt.code)
		})
	}
}

func TestGetCalendarICS(t *testing.T) {
	env := setupTest(t)

	rr := env.do(t, http.MethodGet, "/api/v1/schedules/calendar.ics?lat=51.0447&long=-114.0719&weeks=2", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d, body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("Content-Type = %q", ct)
	}

	body := rr.Body.String()
	if !strings.Contains(body, "BEGIN:VCALENDAR") {
		t.Errorf("not a calendar: %s", body)
	}
	if got := strings.Count(body, "BEGIN:VEVENT"); got != 6 {
		t.Errorf("event count = %d, want 6", got)
	}
	if !strings.Contains(body, "DTSTART;VALUE=DATE:20170717") {
		t.Error("missing today's pickup")
	}
}

// brokenWriter accepts headers but fails every body write.
type brokenWriter struct {
	header http.Header
	status int
}

func (w *brokenWriter) Header() http.Header { return w.header }
func (w *brokenWriter) WriteHeader(status int) { w.status = status }
func (w *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestGetCalendarICS_WriteFailureIsLogged(t *testing.T) {
	env := setupTest(t)

	var logs bytes.Buffer
	h := *env.handlers
	h.logger = slog.New(slog.NewTextHandler(&logs, nil))

	w := &brokenWriter{header: http.Header{}}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/schedules/calendar.ics?lat=51.0447&long=-114.0719&weeks=2", nil)
	h.GetCalendarICS(w, req)

	if w.status != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.status, http.StatusOK)
	}
	if !strings.Contains(logs.String(), "failed to write calendar") || !strings.Contains(logs.String(), "connection reset") {
		t.Errorf("write failure not logged: %s", logs.String())
	}
}

// =============================================================================
// ADMIN
// =============================================================================

func TestPurgeCache(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	seed := func(key string, fetched time.Time) {
		t.Helper()
		err := env.db.SaveLookup(ctx, &database.Lookup{
			LocationKey: key,
			Payload:     json.RawMessage(winterResponse),
			RecordCount: 3,
			FetchedAt:   fetched,
		})
		if err != nil {
			t.Fatalf("SaveLookup() error = %v", err)
		}
	}

	now := env.handlers.now()
	seed("1.0000,1.0000", now.Add(-48*time.Hour))
	seed("2.0000,2.0000", now.Add(-time.Hour))

	expectError(t, env.do(t, http.MethodDelete, "/api/v1/admin/cache", ""), http.StatusUnauthorized, CodeUnauthorized)
	expectError(t, env.do(t, http.MethodDelete, "/api/v1/admin/cache?older_than=soon", env.apiKey), http.StatusBadRequest, CodeBadRequest)

	rr := env.do(t, http.MethodDelete, "/api/v1/admin/cache?older_than=24h", env.apiKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d, body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	var data struct {
		Removed int64 `json:"removed"`
	}
	parseResponse(t, rr, &data)
	if data.Removed != 1 {
		t.Errorf("removed = %d, want 1", data.Removed)
	}

	rr = env.do(t, http.MethodDelete, "/api/v1/admin/cache", env.apiKey)
	parseResponse(t, rr, &data)
	if data.Removed != 1 {
		t.Errorf("removed = %d, want 1", data.Removed)
	}
}

func TestGetSchedules_RedisStore(t *testing.T) {
	env := setupTest(t)

	mr := miniredis.RunT(t)
	store, err := rediscache.Open(rediscache.Config{URL: "redis://" + mr.Addr(), Expiry: time.Hour}, nil)
	if err != nil {
		t.Fatalf("open redis cache: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	client := source.NewClient(source.ClientConfig{
		BaseURL:      env.cfg.SourceURL,
		RadiusMeters: env.cfg.SourceRadiusMeters,
		Timeout:      env.cfg.SourceTimeout,
	}, nil)
	handlers := NewHandlers(store, pickup.NewService(client, store, time.Hour, nil), env.cfg, nil)
	handlers.now = env.handlers.now
	router := SetupRoutes(handlers, env.cfg, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/schedules?lat=51.0447&long=-114.0719&date=2017-07-17", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d, body: %s", rr.Code, http.StatusOK, rr.Body.String())
		}
	}

	if n := env.upstreamCalls.Load(); n != 1 {
		t.Errorf("upstream calls = %d, want 1", n)
	}
	if !mr.Exists(rediscache.DefaultPrefix + "51.0447,-114.0719") {
		t.Error("lookup not stored in redis")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	var data struct {
		Cache database.CacheStats `json:"cache"`
	}
	parseResponse(t, rr, &data)
	if data.Cache.Lookups != 1 {
		t.Errorf("cache lookups = %d, want 1", data.Cache.Lookups)
	}
}
