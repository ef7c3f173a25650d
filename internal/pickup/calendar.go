package pickup

import (
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
)

// ICS identifiers
const (
	ICSProductID = "-//bincollect//Calgary Bin Collection//EN"
	ICSName      = "Bin collection"
	icsUIDDomain = "bincollect"
)

// Calendar renders the upcoming pickups of all reports as an iCalendar
// document with one all-day event per cart per date.
func Calendar(reports []Report, stamp time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(ICSProductID)
	cal.SetXWRCalName(ICSName)

	for _, r := range reports {
		for _, day := range r.UpcomingDates() {
			uid := fmt.Sprintf("%s-%s@%s", FormatDate(day), strings.ToLower(string(r.Commodity)), icsUIDDomain)

			event := cal.AddEvent(uid)
			event.SetDtStampTime(stamp)
			event.SetAllDayStartAt(day)
			event.SetAllDayEndAt(day.AddDate(0, 0, 1))
			event.SetSummary(r.Label)
			event.SetDescription(fmt.Sprintf("%s pickup (%s, %s)", r.Label, strings.ToLower(string(r.Frequency)), r.Season))
		}
	}

	return cal.Serialize()
}
