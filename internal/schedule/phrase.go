package schedule

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatDay formats a date as "Monday, July 24th".
func FormatDay(t time.Time) string {
	return fmt.Sprintf("%s, %s %s", t.Weekday(), t.Month(), humanize.Ordinal(t.Day()))
}

// DistancePhrase describes target relative to base in whole calendar days.
// target is expected to be on or after base.
func DistancePhrase(base, target time.Time) string {
	days := CalendarDaysBetween(base, target)
	day := FormatDay(target)

	switch {
	case days == 0:
		return "Today"
	case days == 1:
		return "Tomorrow"
	case days < 7:
		return fmt.Sprintf("In %d days, on %s", days, day)
	case days < 14:
		return fmt.Sprintf("Next week, on %s", day)
	default:
		return fmt.Sprintf("In %d weeks, on %s", WeeksBetween(base, target), day)
	}
}
