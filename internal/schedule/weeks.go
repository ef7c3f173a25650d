package schedule

import (
	"time"

	"github.com/jinzhu/now"
)

// Epoch year/month/day. Week parity is counted from the calendar week
// containing this date.
const (
	EpochYear  = 2017
	EpochMonth = time.July
	EpochDay   = 17
)

// weekConfig pins the week start to Sunday regardless of package defaults.
var weekConfig = &now.Config{WeekStartDay: time.Sunday}

// Epoch returns the parity origin in the given location.
func Epoch(loc *time.Location) time.Time {
	return time.Date(EpochYear, EpochMonth, EpochDay, 0, 0, 0, 0, loc)
}

// StartOfWeek returns midnight of the Sunday starting t's calendar week.
func StartOfWeek(t time.Time) time.Time {
	return weekConfig.With(t).BeginningOfWeek()
}

// civil drops the clock and location so day arithmetic is not skewed by
// DST transitions.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CalendarDaysBetween counts calendar days from a to b, ignoring time of day.
// The result is negative when b is before a.
func CalendarDaysBetween(a, b time.Time) int {
	return int(civil(b).Sub(civil(a)).Hours() / 24)
}

// WeeksBetween counts calendar week boundaries crossed from a to b.
// Two dates in the same Sunday-started week are 0 weeks apart.
func WeeksBetween(a, b time.Time) int {
	return CalendarDaysBetween(StartOfWeek(a), StartOfWeek(b)) / 7
}

// WeekParity returns 0 for even weeks and 1 for odd weeks since the epoch.
// Weeks before the epoch continue the same alternation.
func WeekParity(t time.Time) int {
	weeks := WeeksBetween(Epoch(t.Location()), t)
	if weeks%2 == 0 {
		return 0
	}
	return 1
}

// Matches reports whether t's calendar week is a pickup week for f.
func Matches(t time.Time, f Frequency) bool {
	switch f {
	case FrequencyOdd:
		return WeekParity(t) == 1
	case FrequencyEven:
		return WeekParity(t) == 0
	default:
		return true
	}
}

// ThisWeekTarget returns the date in t's calendar week that falls on weekday.
// It may be before or after t.
func ThisWeekTarget(t time.Time, weekday Weekday) time.Time {
	return StartOfWeek(t).AddDate(0, 0, int(weekday))
}

// addWeeks moves t forward by whole calendar weeks.
func addWeeks(t time.Time, weeks int) time.Time {
	return t.AddDate(0, 0, 7*weeks)
}
