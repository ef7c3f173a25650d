// Command coverage sweeps the next-pickup endpoint over a date range for
// every weekday and frequency and checks each answer against the
// calendar rules: right weekday, right week parity, nothing skipped.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/zapponejosh/bincollect/internal/api"
	"github.com/zapponejosh/bincollect/internal/pickup"
	"github.com/zapponejosh/bincollect/internal/schedule"
)

// APIResponse matches the API response structure
type APIResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *api.ErrorInfo  `json:"error,omitempty"`
}

// TestResult holds the result for a single date, weekday and frequency
type TestResult struct {
	Date      string             `json:"date"`
	Weekday   schedule.Weekday   `json:"weekday"`
	Frequency schedule.Frequency `json:"frequency"`
	NextDate  string             `json:"next_date,omitempty"`
	Message   string             `json:"message,omitempty"`
	Success   bool               `json:"success"`
	Error     string             `json:"error,omitempty"`
}

// FrequencyStats tracks statistics for each frequency
type FrequencyStats struct {
	Frequency   schedule.Frequency `json:"frequency"`
	Total       int                `json:"total"`
	Success     int                `json:"success"`
	Failed      int                `json:"failed"`
	FailedDates []string           `json:"failed_dates,omitempty"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Base URL of the API")
	start := flag.String("start", "2017-01-01", "First reference date (YYYY-MM-DD)")
	days := flag.Int("days", 365, "Number of days to test")
	verbose := flag.BoolP("verbose", "v", false, "Verbose output (show each check)")
	outputFile := flag.StringP("output", "o", "", "Output results to JSON file")
	flag.Parse()

	startDate, err := pickup.ParseDate(*start)
	if err != nil || *days < 1 {
		fmt.Println("Error: --start must be YYYY-MM-DD and --days positive")
		os.Exit(2)
	}
	endDate := startDate.AddDate(0, 0, *days-1)

	fmt.Println("================================================================")
	fmt.Println("Bin Collection API - Calendar Coverage Test")
	fmt.Println("================================================================")
	fmt.Printf("Base URL:    %s\n", *baseURL)
	fmt.Printf("Date Range:  %s to %s\n", pickup.FormatDate(startDate), pickup.FormatDate(endDate))
	fmt.Printf("Checks:      %d\n", *days*7*len(schedule.ValidFrequencies()))
	fmt.Println()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*baseURL + "/health")
	if err != nil {
		fmt.Printf("Error: Cannot connect to %s\n", *baseURL)
		fmt.Println("Make sure the API server is running.")
		os.Exit(1)
	}
	resp.Body.Close()

	results := testAllDates(client, *baseURL, startDate, *days, *verbose)

	analysis := analyzeResults(results)
	printSummary(analysis)
	printAllFailures(analysis)

	if *outputFile != "" {
		saveResults(*outputFile, analysis)
	}

	if analysis.Failed > 0 {
		os.Exit(1)
	}
}

func testAllDates(client *http.Client, baseURL string, start time.Time, days int, verbose bool) []TestResult {
	var results []TestResult
	total := days * 7 * len(schedule.ValidFrequencies())

	tested := 0
	failed := 0
	lastProgress := -1

	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i)
		for wd := schedule.Sunday; wd <= schedule.Saturday; wd++ {
			for _, f := range schedule.ValidFrequencies() {
				result := testDate(client, baseURL, date, wd, f)
				results = append(results, result)

				tested++
				if !result.Success {
					failed++
				}

				progress := (tested * 100) / total
				if progress != lastProgress && progress%10 == 0 {
					fmt.Printf("  Progress: %d%% (%d/%d) - Failures: %d\n", progress, tested, total, failed)
					lastProgress = progress
				}

				if verbose {
					status := "✓"
					if !result.Success {
						status = "✗"
					}
					fmt.Printf("  %s %s %-9s %-5s → %s\n", status, result.Date, wd, f, result.Message)
					if !result.Success {
						fmt.Printf("      Error: %s\n", result.Error)
					}
				}
			}
		}
	}

	fmt.Println()
	return results
}

func testDate(client *http.Client, baseURL string, date time.Time, wd schedule.Weekday, f schedule.Frequency) TestResult {
	result := TestResult{Date: pickup.FormatDate(date), Weekday: wd, Frequency: f}

	url := fmt.Sprintf("%s/api/v1/next?day=%d&frequency=%s&date=%s&weeks=2", baseURL, wd, f, result.Date)
	resp, err := client.Get(url)
	if err != nil {
		result.Error = fmt.Sprintf("Connection error: %v", err)
		return result
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		result.Error = fmt.Sprintf("Read error: %v", err)
		return result
	}

	var apiResp APIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		result.Error = fmt.Sprintf("Parse error: %v", err)
		return result
	}
	if !apiResp.Success {
		errMsg := "Unknown error"
		if apiResp.Error != nil {
			errMsg = apiResp.Error.Message
		}
		result.Error = errMsg
		return result
	}

	var next api.NextResponse
	if err := json.Unmarshal(apiResp.Data, &next); err != nil {
		result.Error = fmt.Sprintf("Data parse error: %v", err)
		return result
	}

	result.NextDate = next.NextDate
	result.Message = next.Message
	if problem := checkNext(date, wd, f, next); problem != "" {
		result.Error = problem
		return result
	}

	result.Success = true
	return result
}

// checkNext returns a description of the first rule the answer breaks,
// or "" if it is consistent.
func checkNext(date time.Time, wd schedule.Weekday, f schedule.Frequency, next api.NextResponse) string {
	nextDate, err := pickup.ParseDate(next.NextDate)
	if err != nil {
		return fmt.Sprintf("bad next_date %q", next.NextDate)
	}

	days := schedule.CalendarDaysBetween(date, nextDate)
	maxAhead := 7*f.Interval() - 1

	switch {
	case schedule.Weekday(nextDate.Weekday()) != wd:
		return fmt.Sprintf("next date falls on %s", nextDate.Weekday())
	case days < 0:
		return "next date is in the past"
	case days > maxAhead:
		return fmt.Sprintf("next date is %d days ahead, at most %d expected", days, maxAhead)
	case !schedule.Matches(nextDate, f):
		return "next date is in an off week"
	case next.Today != (days == 0):
		return fmt.Sprintf("today flag %v for a pickup %d days ahead", next.Today, days)
	case next.Message != schedule.NextOccurrence(date, wd, f):
		return fmt.Sprintf("message %q does not match the calendar", next.Message)
	}

	if len(next.Upcoming) == 0 || next.Upcoming[0] != next.NextDate {
		return "upcoming does not start at the next date"
	}
	for i := 1; i < len(next.Upcoming); i++ {
		prev, _ := pickup.ParseDate(next.Upcoming[i-1])
		cur, _ := pickup.ParseDate(next.Upcoming[i])
		if gap := schedule.CalendarDaysBetween(prev, cur); gap != 7*f.Interval() {
			return fmt.Sprintf("upcoming dates %d days apart", gap)
		}
	}
	return ""
}

// Analysis holds the analyzed results
type Analysis struct {
	Total       int
	Success     int
	Failed      int
	ByFrequency map[schedule.Frequency]*FrequencyStats
	ByMonth     map[string]*FrequencyStats
	AllFailures []TestResult
}

func analyzeResults(results []TestResult) *Analysis {
	analysis := &Analysis{
		ByFrequency: make(map[schedule.Frequency]*FrequencyStats),
		ByMonth:     make(map[string]*FrequencyStats),
	}

	for _, r := range results {
		analysis.Total++

		if _, ok := analysis.ByFrequency[r.Frequency]; !ok {
			analysis.ByFrequency[r.Frequency] = &FrequencyStats{Frequency: r.Frequency}
		}
		stats := analysis.ByFrequency[r.Frequency]
		stats.Total++

		month := r.Date[:7]
		if _, ok := analysis.ByMonth[month]; !ok {
			analysis.ByMonth[month] = &FrequencyStats{}
		}
		monthStats := analysis.ByMonth[month]
		monthStats.Total++

		if r.Success {
			analysis.Success++
			stats.Success++
			monthStats.Success++
		} else {
			analysis.Failed++
			stats.Failed++
			stats.FailedDates = append(stats.FailedDates, r.Date)
			monthStats.Failed++
			analysis.AllFailures = append(analysis.AllFailures, r)
		}
	}

	return analysis
}

func rate(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func printSummary(analysis *Analysis) {
	fmt.Println("================================================================")
	fmt.Println("SUMMARY")
	fmt.Println("================================================================")
	fmt.Printf("Total Checks: %d\n", analysis.Total)
	fmt.Printf("Successful:   %d (%.1f%%)\n", analysis.Success, rate(analysis.Success, analysis.Total))
	fmt.Printf("Failed:       %d (%.1f%%)\n", analysis.Failed, rate(analysis.Failed, analysis.Total))
	fmt.Println()

	fmt.Println("By Frequency:")
	for _, f := range schedule.ValidFrequencies() {
		stats, ok := analysis.ByFrequency[f]
		if !ok {
			continue
		}
		status := "✓"
		if stats.Failed > 0 {
			status = "✗"
		}
		fmt.Printf("  %s %-5s %d/%d (%.1f%% success)\n",
			status, f, stats.Success, stats.Total, rate(stats.Success, stats.Total))
	}
	fmt.Println()

	months := make([]string, 0, len(analysis.ByMonth))
	for m := range analysis.ByMonth {
		months = append(months, m)
	}
	sort.Strings(months)

	fmt.Println("By Month:")
	for _, m := range months {
		stats := analysis.ByMonth[m]
		status := "✓"
		if stats.Failed > 0 {
			status = "✗"
		}
		fmt.Printf("  %s %s: %d/%d\n", status, m, stats.Success, stats.Total)
	}
	fmt.Println()
}

func printAllFailures(analysis *Analysis) {
	if analysis.Failed == 0 {
		return
	}

	if analysis.Failed > 50 {
		fmt.Printf("(Showing first 50 of %d failures)\n\n", analysis.Failed)
	}

	fmt.Println("================================================================")
	fmt.Println("ALL FAILURES (Date | Weekday | Frequency | Error)")
	fmt.Println("================================================================")

	for i, f := range analysis.AllFailures {
		if i >= 50 {
			break
		}
		fmt.Printf("  %s | %-9s | %-5s | %s\n", f.Date, f.Weekday, f.Frequency, f.Error)
	}
	fmt.Println()
}

func saveResults(filename string, analysis *Analysis) {
	byFrequency := make([]*FrequencyStats, 0, len(analysis.ByFrequency))
	for _, f := range schedule.ValidFrequencies() {
		if stats, ok := analysis.ByFrequency[f]; ok {
			byFrequency = append(byFrequency, stats)
		}
	}

	output := struct {
		GeneratedAt string            `json:"generated_at"`
		Summary     map[string]any    `json:"summary"`
		ByFrequency []*FrequencyStats `json:"by_frequency"`
		Failures    []TestResult      `json:"failures"`
	}{
		GeneratedAt: time.Now().Format(time.RFC3339),
		Summary: map[string]any{
			"total_checks":  analysis.Total,
			"total_success": analysis.Success,
			"total_failed":  analysis.Failed,
			"success_rate":  fmt.Sprintf("%.2f%%", rate(analysis.Success, analysis.Total)),
		},
		ByFrequency: byFrequency,
		Failures:    analysis.AllFailures,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling results: %v\n", err)
		return
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		fmt.Printf("Error writing file: %v\n", err)
		return
	}

	fmt.Printf("Results saved to: %s\n", filename)
}
