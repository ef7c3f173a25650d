package schedule

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// MaxUpcoming caps how many dates Upcoming expands.
const MaxUpcoming = 52

// Rule returns the weekly recurrence starting at the resolved occurrence.
// count is clamped to [1, MaxUpcoming].
func Rule(reference time.Time, weekday Weekday, frequency Frequency, count int) (*rrule.RRule, error) {
	count = min(max(count, 1), MaxUpcoming)

	first := Resolve(reference, weekday, frequency).Date
	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Interval:  frequency.Interval(),
		Count:     count,
		Dtstart:   first,
		Wkst:      rrule.SU,
		Byweekday: []rrule.Weekday{rruleWeekday(weekday)},
	})
	if err != nil {
		return nil, fmt.Errorf("build recurrence rule: %w", err)
	}
	return rule, nil
}

// Upcoming lists the next count pickup dates, starting with the one Resolve
// returns (which may be the reference date itself).
func Upcoming(reference time.Time, weekday Weekday, frequency Frequency, count int) ([]time.Time, error) {
	rule, err := Rule(reference, weekday, frequency, count)
	if err != nil {
		return nil, err
	}
	return rule.All(), nil
}

func rruleWeekday(w Weekday) rrule.Weekday {
	switch w {
	case Sunday:
		return rrule.SU
	case Monday:
		return rrule.MO
	case Tuesday:
		return rrule.TU
	case Wednesday:
		return rrule.WE
	case Thursday:
		return rrule.TH
	case Friday:
		return rrule.FR
	default:
		return rrule.SA
	}
}
