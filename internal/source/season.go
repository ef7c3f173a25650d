package source

import (
	"fmt"

	"github.com/zapponejosh/bincollect/internal/schedule"
)

// Season selects which set of schedule fields is in effect.
type Season int

const (
	SeasonWinter Season = iota
	SeasonSummer
)

// ParseSeason reads current_season. Only "SUMMER" selects the summer
// fields; every other value falls back to winter.
func ParseSeason(flag string) Season {
	if flag == "SUMMER" {
		return SeasonSummer
	}
	return SeasonWinter
}

func (s Season) String() string {
	if s == SeasonSummer {
		return "summer"
	}
	return "winter"
}

// MarshalText writes the season name.
func (s Season) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names written by MarshalText.
func (s *Season) UnmarshalText(text []byte) error {
	switch string(text) {
	case "winter":
		*s = SeasonWinter
	case "summer":
		*s = SeasonSummer
	default:
		return fmt.Errorf("unknown season %q", text)
	}
	return nil
}

// Fields is the day and frequency in effect for one season.
type Fields struct {
	Day       string
	Frequency string
}

// Seasons returns the record's field sets keyed by season.
func (r Record) Seasons() map[Season]Fields {
	return map[Season]Fields{
		SeasonWinter: {Day: deref(r.DayWinter), Frequency: deref(r.FrequencyWinter)},
		SeasonSummer: {Day: deref(r.DaySummer), Frequency: deref(r.FrequencySummer)},
	}
}

// Season returns the season the record says is current.
func (r Record) Season() Season {
	return ParseSeason(deref(r.CurrentSeason))
}

// Select returns the fields for season.
func (r Record) Select(season Season) Fields {
	return r.Seasons()[season]
}

// Schedule is one cart's pickup rule after season selection.
type Schedule struct {
	Commodity Commodity          `json:"commodity"`
	Season    Season             `json:"season"`
	DayName   string             `json:"day"`
	Weekday   schedule.Weekday   `json:"weekday"`
	Frequency schedule.Frequency `json:"frequency"`
	DayCode   int                `json:"source_day_code"`
}

// Schedule maps the record's current-season fields to calculator inputs.
// An unrecognised day name returns schedule.ErrInvalidWeekdayName.
func (r Record) Schedule() (Schedule, error) {
	season := r.Season()
	fields := r.Select(season)

	weekday, err := schedule.ParseWeekday(fields.Day)
	if err != nil {
		return Schedule{}, fmt.Errorf("%s cart: %w", r.CommodityName(), err)
	}

	frequency, err := schedule.ParseFrequency(fields.Frequency)
	if err != nil {
		return Schedule{}, fmt.Errorf("%s cart: %w", r.CommodityName(), err)
	}

	var code int
	if r.DayCode != nil {
		code = int(*r.DayCode)
	}

	return Schedule{
		Commodity: r.CommodityName(),
		Season:    season,
		DayName:   fields.Day,
		Weekday:   weekday,
		Frequency: frequency,
		DayCode:   code,
	}, nil
}

// Aggregate returns the Black, Blue and Green schedules in that order.
// The first record for each cart wins. If any cart is missing the whole
// batch fails.
func Aggregate(records []Record) ([]Schedule, error) {
	byCommodity := make(map[Commodity]Record, 3)
	for _, r := range records {
		c := r.CommodityName()
		if _, seen := byCommodity[c]; !seen {
			byCommodity[c] = r
		}
	}

	var missing []string
	for _, c := range Commodities() {
		if _, ok := byCommodity[c]; !ok {
			missing = append(missing, string(c))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrMissingCommodity, missing)
	}

	schedules := make([]Schedule, 0, 3)
	for _, c := range Commodities() {
		s, err := byCommodity[c].Schedule()
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
