package schedule

import "time"

// Occurrence is the resolved next pickup relative to a reference date.
type Occurrence struct {
	Reference time.Time
	Date      time.Time

	// Today is set when the pickup falls on the reference date itself.
	// Following then holds the pickup after it.
	Today     bool
	Following time.Time
}

// Resolve finds the next pickup on or after reference for the given weekday
// and frequency. Inputs are assumed valid; see ParseWeekday and ParseFrequency.
func Resolve(reference time.Time, weekday Weekday, frequency Frequency) Occurrence {
	target := ThisWeekTarget(reference, weekday)
	matches := Matches(reference, frequency)

	step := 1
	if matches && frequency.ParityConstrained() {
		step = 2
	}
	next := addWeeks(target, step)

	occ := Occurrence{Reference: reference}
	current := Weekday(reference.Weekday())

	switch {
	case matches && current == weekday:
		occ.Date = target
		occ.Today = true
		occ.Following = next
	case matches && current < weekday:
		occ.Date = target
	default:
		occ.Date = next
	}

	return occ
}

// String renders the occurrence relative to its reference date.
func (o Occurrence) String() string {
	if o.Today {
		return "Today. Next collection will be: " + DistancePhrase(o.Reference, o.Following)
	}
	return DistancePhrase(o.Reference, o.Date)
}

// NextOccurrence describes the next pickup for weekday and frequency as seen
// from reference, e.g. "Tomorrow" or "In 3 days, on Friday, July 21st".
func NextOccurrence(reference time.Time, weekday Weekday, frequency Frequency) string {
	return Resolve(reference, weekday, frequency).String()
}
