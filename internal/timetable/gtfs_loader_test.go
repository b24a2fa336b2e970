package timetable

import (
	"log/slog"
	"testing"
	"time"

	"github.com/OneBusAway/go-gtfs"
	"github.com/stretchr/testify/assert"

	"wayfarer.opentransit.org/internal/calendar"
)

func TestServiceCalendarDropsOutOfRangeDates(t *testing.T) {
	epoch := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c := calendar.New(epoch)
	svc := &gtfs.Service{
		Id:        "svc:1",
		StartDate: epoch,
		EndDate:   epoch.AddDate(0, 0, 2),
		Sunday:    true,
		Monday:    true,
		Tuesday:   true,
		Wednesday: true,
		Thursday:  true,
		Friday:    true,
		Saturday:  true,
		// One exception beyond the calendar capacity, one before the epoch.
		AddedDates:   []time.Time{epoch.AddDate(0, 0, calendar.MaxDays+5)},
		RemovedDates: []time.Time{epoch.AddDate(0, 0, -10)},
	}

	serviceCalendar(slog.Default(), "trip:1", c, svc)

	assert.True(t, c.CheckDate(epoch))
	assert.True(t, c.CheckDate(epoch.AddDate(0, 0, 2)))
	assert.False(t, c.Check(calendar.MaxDays+5))
	assert.Equal(t, []int{0, 1, 2}, c.ActiveDays(), "only in-range dates survive")
}
