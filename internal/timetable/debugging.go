package timetable

import (
	"fmt"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

var dumpConfig = spew.ConfigState{
	Indent:                  "  ",
	DisableMethods:          true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// DumpGroup renders a variant group for troubleshooting endpoints and test
// failure output. Calendars are summarized as active-day lists instead of
// raw bitset words.
func DumpGroup(g *TripVariantGroup) string {
	var b strings.Builder
	fmt.Fprintf(&b, "group %s\n", g.ID)
	for _, t := range g.Members() {
		fmt.Fprintf(&b, "  %s trip %s", t.Level, t.ID)
		for lvl := ScheduleLevel(0); lvl < NumLevels; lvl++ {
			days := t.Calendars[lvl].ActiveDays()
			if len(days) > 0 {
				fmt.Fprintf(&b, " %s=%v", lvl, days)
			}
		}
		b.WriteByte('\n')
		b.WriteString(dumpConfig.Sdump(t.StopTimes))
	}
	return b.String()
}
