// Command apitest runs smoke tests against a running bin collection API.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/zapponejosh/bincollect/internal/api"
	"github.com/zapponejosh/bincollect/internal/pickup"
)

// =============================================================================
// Response Types
// =============================================================================

type APIResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *api.ErrorInfo  `json:"error,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type SchedulesResponse struct {
	Location  string          `json:"location"`
	Date      string          `json:"date"`
	Schedules []pickup.Report `json:"schedules"`
}

// =============================================================================
// Test Runner
// =============================================================================

type TestRunner struct {
	baseURL      string
	apiKey       string
	lat, long    string
	client       *http.Client
	verbose      bool
	successCount int
	errorCount   int
	errors       []string
}

func NewTestRunner(baseURL, apiKey, lat, long string, verbose bool) *TestRunner {
	return &TestRunner{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		lat:     lat,
		long:    long,
		client: &http.Client{
			Timeout: 20 * time.Second,
		},
		verbose: verbose,
	}
}

func (tr *TestRunner) Run() {
	fmt.Println("==============================================")
	fmt.Println("Bin Collection API Test Suite")
	fmt.Println("==============================================")
	fmt.Printf("Base URL: %s\n", tr.baseURL)
	fmt.Println()

	tr.testHealth()
	tr.testCalculator()
	tr.testCalculatorErrors()
	if tr.lat != "" && tr.long != "" {
		tr.testSchedules()
		tr.testCalendar()
	}
	if tr.apiKey != "" {
		tr.testAdmin()
	}

	tr.printSummary()
}

// =============================================================================
// Test Groups
// =============================================================================

func (tr *TestRunner) testHealth() {
	tr.printSection("Health Check")

	resp, err := tr.get("/health")
	if err != nil {
		tr.recordError("Health", err.Error())
		return
	}

	var health HealthResponse
	if err := json.Unmarshal(resp.Data, &health); err != nil {
		tr.recordError("Health", err.Error())
		return
	}

	if health.Status == "healthy" {
		tr.recordSuccess("Health check passed")
	} else {
		tr.recordError("Health", fmt.Sprintf("Unexpected status: %s", health.Status))
	}
}

func (tr *TestRunner) testCalculator() {
	tr.printSection("Next Pickup Calculator")

	cases := []struct {
		query string
		want  string
	}{
		{"day=Monday&frequency=EVERY&date=2017-07-18", "In 6 days, on Monday, July 24th"},
		{"day=Tuesday&frequency=EVERY&date=2017-07-17", "Tomorrow"},
		{"day=Wednesday&frequency=ODD&date=2017-07-17", "Next week, on Wednesday, July 26th"},
		{"day=Monday&frequency=EVEN&date=2017-07-17", "Today. Next collection will be: In 2 weeks, on Monday, July 31st"},
	}

	for _, c := range cases {
		resp, err := tr.get("/api/v1/next?" + c.query)
		if err != nil {
			tr.recordError(c.query, err.Error())
			continue
		}

		var next api.NextResponse
		if err := json.Unmarshal(resp.Data, &next); err != nil {
			tr.recordError(c.query, err.Error())
			continue
		}

		if next.Message != c.want {
			tr.recordError(c.query, fmt.Sprintf("got %q, want %q", next.Message, c.want))
			continue
		}
		tr.recordSuccess(fmt.Sprintf("%s → %s", c.query, next.Message))
		if tr.verbose {
			fmt.Printf("    Upcoming: %v\n", next.Upcoming)
		}
	}
}

func (tr *TestRunner) testCalculatorErrors() {
	tr.printSection("Calculator Validation")

	cases := []struct {
		query string
		code  string
	}{
		{"day=Funday&frequency=EVERY", api.CodeInvalidWeekday},
		{"day=Monday&frequency=MONTHLY", api.CodeInvalidFrequency},
		{"day=Monday&frequency=EVERY&date=bad", api.CodeBadRequest},
	}

	for _, c := range cases {
		tr.expectErrorCode("GET", "/api/v1/next?"+c.query, http.StatusBadRequest, c.code)
	}
}

func (tr *TestRunner) testSchedules() {
	tr.printSection("Location Schedules")

	path := fmt.Sprintf("/api/v1/schedules?lat=%s&long=%s", url.QueryEscape(tr.lat), url.QueryEscape(tr.long))
	resp, err := tr.get(path)
	if err != nil {
		tr.recordError("Schedules", err.Error())
		return
	}

	var data SchedulesResponse
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		tr.recordError("Schedules", err.Error())
		return
	}

	if len(data.Schedules) != 3 {
		tr.recordError("Schedules", fmt.Sprintf("got %d carts, want 3", len(data.Schedules)))
		return
	}

	tr.recordSuccess(fmt.Sprintf("Schedules for %s", data.Location))
	for _, r := range data.Schedules {
		fmt.Printf("    %-34s %s\n", r.Label, r.Message)
		if tr.verbose {
			fmt.Printf("      %s %s, upcoming %v\n", r.Day, r.Frequency, r.Upcoming)
		}
	}
}

func (tr *TestRunner) testCalendar() {
	tr.printSection("Calendar Feed")

	path := fmt.Sprintf("/api/v1/schedules/calendar.ics?lat=%s&long=%s&weeks=2", url.QueryEscape(tr.lat), url.QueryEscape(tr.long))
	resp, err := tr.getRaw(path, "")
	if err != nil {
		tr.recordError("Calendar", err.Error())
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		tr.recordError("Calendar", fmt.Sprintf("status %d", resp.StatusCode))
		return
	}
	if !strings.HasPrefix(string(body), "BEGIN:VCALENDAR") {
		tr.recordError("Calendar", "response is not an iCalendar document")
		return
	}

	tr.recordSuccess(fmt.Sprintf("Calendar with %d events", strings.Count(string(body), "BEGIN:VEVENT")))
}

func (tr *TestRunner) testAdmin() {
	tr.printSection("Admin")

	tr.expectErrorCode("DELETE", "/api/v1/admin/cache?older_than=bogus", http.StatusBadRequest, api.CodeBadRequest)

	// Only purge entries older than a year so a smoke run keeps the cache warm.
	resp, err := tr.do("DELETE", "/api/v1/admin/cache?older_than=8760h", tr.apiKey)
	if err != nil {
		tr.recordError("Purge cache", err.Error())
		return
	}

	var data struct {
		Removed int64 `json:"removed"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		tr.recordError("Purge cache", err.Error())
		return
	}
	tr.recordSuccess(fmt.Sprintf("Purged %d stale lookups", data.Removed))
}

// =============================================================================
// Helpers
// =============================================================================

func (tr *TestRunner) get(path string) (*APIResponse, error) {
	return tr.do("GET", path, "")
}

func (tr *TestRunner) do(method, path, apiKey string) (*APIResponse, error) {
	resp, err := tr.send(method, path, apiKey)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	apiResp, err := decode(resp)
	if err != nil {
		return nil, err
	}

	if !apiResp.Success {
		errMsg := "unknown error"
		if apiResp.Error != nil {
			errMsg = apiResp.Error.Message
		}
		return nil, fmt.Errorf("API error: %s", errMsg)
	}

	return apiResp, nil
}

func (tr *TestRunner) expectErrorCode(method, path string, status int, code string) {
	resp, err := tr.send(method, path, tr.apiKey)
	if err != nil {
		tr.recordError(path, err.Error())
		return
	}
	defer resp.Body.Close()

	apiResp, err := decode(resp)
	if err != nil {
		tr.recordError(path, err.Error())
		return
	}

	if resp.StatusCode != status || apiResp.Error == nil || apiResp.Error.Code != code {
		tr.recordError(path, fmt.Sprintf("got %d %+v, want %d %s", resp.StatusCode, apiResp.Error, status, code))
		return
	}
	tr.recordSuccess(fmt.Sprintf("%s rejected with %s", path, code))
}

func (tr *TestRunner) getRaw(path, apiKey string) (*http.Response, error) {
	return tr.send("GET", path, apiKey)
}

func (tr *TestRunner) send(method, path, apiKey string) (*http.Response, error) {
	req, err := http.NewRequest(method, tr.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	return tr.client.Do(req)
}

func decode(resp *http.Response) (*APIResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var apiResp APIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("parse JSON (status %d): %w", resp.StatusCode, err)
	}
	return &apiResp, nil
}

func (tr *TestRunner) printSection(name string) {
	fmt.Println()
	fmt.Printf("--- %s ---\n", name)
	fmt.Println()
}

func (tr *TestRunner) recordSuccess(msg string) {
	tr.successCount++
	fmt.Printf("  ✓ %s\n", msg)
}

func (tr *TestRunner) recordError(context, msg string) {
	tr.errorCount++
	errStr := fmt.Sprintf("%s: %s", context, msg)
	tr.errors = append(tr.errors, errStr)
	fmt.Printf("  ✗ %s\n", errStr)
}

func (tr *TestRunner) printSummary() {
	fmt.Println()
	fmt.Println("==============================================")
	fmt.Println("Summary")
	fmt.Println("==============================================")
	fmt.Printf("  Passed: %d\n", tr.successCount)
	fmt.Printf("  Failed: %d\n", tr.errorCount)
	fmt.Println()

	if tr.errorCount > 0 {
		fmt.Println("Failures:")
		for _, err := range tr.errors {
			fmt.Printf("  • %s\n", err)
		}
		fmt.Println()
	}

	if tr.errorCount == 0 {
		fmt.Println("All tests passed! ✓")
	} else {
		fmt.Printf("Tests completed with %d failure(s)\n", tr.errorCount)
	}
}

// =============================================================================
// Main
// =============================================================================

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Base URL of the API")
	apiKey := flag.String("api-key", os.Getenv("API_KEY"), "API key for admin checks (skipped when empty)")
	lat := flag.String("lat", "", "Latitude for location checks (skipped when empty)")
	long := flag.String("long", "", "Longitude for location checks")
	verbose := flag.BoolP("verbose", "v", false, "Verbose output")
	flag.Parse()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(*baseURL + "/health")
	if err != nil {
		fmt.Printf("Error: Cannot connect to %s\n", *baseURL)
		fmt.Println("Make sure the API server is running.")
		os.Exit(1)
	}
	resp.Body.Close()

	runner := NewTestRunner(*baseURL, *apiKey, *lat, *long, *verbose)
	runner.Run()

	if runner.errorCount > 0 {
		os.Exit(1)
	}
}
