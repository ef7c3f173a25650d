// Package schedule computes the next pickup date for a weekly or
// biweekly collection schedule and describes it in plain language.
package schedule

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidWeekdayName is returned when a weekday name is not one of
	// the seven English day names.
	ErrInvalidWeekdayName = errors.New("invalid weekday name")

	// ErrInvalidFrequency is returned for frequencies other than EVERY, ODD or EVEN.
	ErrInvalidFrequency = errors.New("invalid collection frequency")
)

// Frequency describes which weeks, counted from the epoch, a pickup happens on.
type Frequency string

const (
	FrequencyEvery Frequency = "EVERY"
	FrequencyOdd   Frequency = "ODD"
	FrequencyEven  Frequency = "EVEN"
)

// ValidFrequencies returns all recognised frequencies.
func ValidFrequencies() []Frequency {
	return []Frequency{FrequencyEvery, FrequencyOdd, FrequencyEven}
}

// IsValid checks if a frequency is one of the recognised values.
func (f Frequency) IsValid() bool {
	for _, valid := range ValidFrequencies() {
		if f == valid {
			return true
		}
	}
	return false
}

// ParityConstrained reports whether the frequency only matches every other week.
func (f Frequency) ParityConstrained() bool {
	return f == FrequencyOdd || f == FrequencyEven
}

// Interval returns the number of weeks between two pickups.
func (f Frequency) Interval() int {
	if f.ParityConstrained() {
		return 2
	}
	return 1
}

// ParseFrequency converts an upstream frequency string. Matching is exact.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(s)
	if !f.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidFrequency, s)
	}
	return f, nil
}

// Weekday is a day code from 0 (Sunday) to 6 (Saturday).
type Weekday int

const (
	Sunday Weekday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

// weekdayNames is keyed by the exact names the city data uses.
var weekdayNames = map[string]Weekday{
	"Sunday":    Sunday,
	"Monday":    Monday,
	"Tuesday":   Tuesday,
	"Wednesday": Wednesday,
	"Thursday":  Thursday,
	"Friday":    Friday,
	"Saturday":  Saturday,
}

// ParseWeekday maps a day name to its code. Unknown names are rejected.
func ParseWeekday(name string) (Weekday, error) {
	wd, ok := weekdayNames[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWeekdayName, name)
	}
	return wd, nil
}

// IsValid checks the code is within 0-6.
func (w Weekday) IsValid() bool {
	return w >= Sunday && w <= Saturday
}

// String returns the English day name.
func (w Weekday) String() string {
	return time.Weekday(w).String()
}
