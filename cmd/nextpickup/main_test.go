package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2017, time.July, 17, 8, 0, 0, 0, time.Local)
}

func TestRun_Offline(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "today with following",
			args: []string{"--day", "Monday", "--frequency", "EVEN", "--weeks", "2"},
			want: []string{
				"Today. Next collection will be: In 2 weeks, on Monday, July 31st",
				"2017-07-17  Monday, July 17th",
				"2017-07-31  Monday, July 31st",
			},
		},
		{
			name: "explicit date",
			args: []string{"-d", "Friday", "-f", "every", "--date", "2017-07-18", "-n", "1"},
			want: []string{"In 3 days, on Friday, July 21st", "2017-07-21"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := run(tt.args, &out, fixedNow); err != nil {
				t.Fatalf("run() error = %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(out.String(), want) {
					t.Errorf("output missing %q:\n%s", want, out.String())
				}
			}
		})
	}
}

func TestRun_Errors(t *testing.T) {
	tests := [][]string{
		{},
		{"--day", "Funday"},
		{"--day", "Monday", "--frequency", "MONTHLY"},
		{"--day", "Monday", "--date", "yesterday"},
		{"--day", "Monday", "--weeks", "0"},
		{"--day", "Monday", "--lat", "51"},
		{"--lat", "100", "--long", "0"},
		{"stray"},
	}

	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			var out bytes.Buffer
			if err := run(args, &out, fixedNow); err == nil {
				t.Errorf("run(%v) error = nil, want error", args)
			}
		})
	}
}

func TestRun_NoArgsPrintsUsage(t *testing.T) {
	var out bytes.Buffer
	err := run(nil, &out, fixedNow)
	if err == nil || !strings.Contains(err.Error(), "--day or --lat/--long") {
		t.Fatalf("run() error = %v, want missing mode error", err)
	}
	for _, flag := range []string{"--day", "--frequency", "--lat", "--long"} {
		if !strings.Contains(out.String(), flag) {
			t.Errorf("usage missing %s:\n%s", flag, out.String())
		}
	}
}

func TestRun_Location(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
  {"commodity":"Black","current_season":"SUMMER","clect_int_winter":"EVERY","collection_day_winter":"Monday","clect_int_summer":"EVERY","collection_day_summer":"Tuesday","clect_day_code":2},
  {"commodity":"Blue","current_season":"SUMMER","clect_int_winter":"EVERY","collection_day_winter":"Monday","clect_int_summer":"EVERY","collection_day_summer":"Tuesday","clect_day_code":2},
  {"commodity":"Green","current_season":"SUMMER","clect_int_winter":"EVEN","collection_day_winter":"Monday","clect_int_summer":"ODD","collection_day_summer":"Tuesday","clect_day_code":2}
]`))
	}))
	defer upstream.Close()

	var out bytes.Buffer
	args := []string{"--lat", "51.0447", "--long", "-114.0719", "--source-url", upstream.URL}
	if err := run(args, &out, fixedNow); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[0], "Black cart (garbage)") || !strings.Contains(lines[0], "Tomorrow") {
		t.Errorf("black line = %q", lines[0])
	}
	if !strings.Contains(lines[2], "Next week, on Tuesday, July 25th") {
		t.Errorf("green line = %q", lines[2])
	}
}
