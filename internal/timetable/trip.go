package timetable

import (
	"time"

	"wayfarer.opentransit.org/internal/calendar"
)

// InsertedStop marks a stop time with no base counterpart.
const InsertedStop = -1

// StopTime is one scheduled call of a trip at a stop point. Times are
// seconds since midnight of the service day and may exceed 24h for trips
// running past midnight.
type StopTime struct {
	StopPoint         int
	Arrival           int32
	Departure         int32
	BoardingDuration  int32
	AlightingDuration int32
	PickupAllowed     bool
	DropOffAllowed    bool
	Skipped           bool
	// BaseIndex points back to the stop time this one overrides in the
	// base sequence, or InsertedStop for stops added by a realtime edit.
	BaseIndex int
}

// Trip is one run of a vehicle along a route. A trip carries one calendar
// per schedule level; the level calendars of a freshly built base trip are
// identical, and realtime operations move bits between sibling variants
// without ever touching the base level.
type Trip struct {
	ID           string
	GroupID      string
	Level        ScheduleLevel
	Route        int
	Company      int
	PhysicalMode int
	Dataset      int
	Headsign     string
	ShortName    string
	Accessible   bool
	StopTimes    []StopTime
	Calendars    [NumLevels]*calendar.ValidityCalendar
}

// NewTrip returns a trip with empty calendars anchored to the given epoch.
func NewTrip(id, groupID string, level ScheduleLevel, epoch time.Time) *Trip {
	t := &Trip{ID: id, GroupID: groupID, Level: level}
	for i := range t.Calendars {
		t.Calendars[i] = calendar.New(epoch)
	}
	return t
}

// ActivateAllLevels copies the base-level calendar onto every level. Called
// once after building a base trip, before any overlay is applied.
func (t *Trip) ActivateAllLevels() {
	for lvl := 1; lvl < NumLevels; lvl++ {
		_ = t.Calendars[lvl].CopyFrom(t.Calendars[LevelBase])
	}
}

// RunsOn reports whether the trip is visible on the given day at the given
// level.
func (t *Trip) RunsOn(day int, level ScheduleLevel) bool {
	return t.Calendars[level].Check(day)
}

// LastStopTime returns the final call of the sequence, or nil when empty.
func (t *Trip) LastStopTime() *StopTime {
	if len(t.StopTimes) == 0 {
		return nil
	}
	return &t.StopTimes[len(t.StopTimes)-1]
}

// DaySpan is the number of extra service days the trip's times spill into.
// A trip arriving at 31:10 (07:10 the next day) has a span of 1.
func (t *Trip) DaySpan() int {
	last := t.LastStopTime()
	if last == nil {
		return 0
	}
	end := last.Arrival
	if last.Departure > end {
		end = last.Departure
	}
	return int(end / 86400)
}

// Clone copies the trip. The stop-time slice is copied when owned is true;
// base trips share their immutable sequence across snapshots instead.
func (t *Trip) Clone(owned bool) *Trip {
	out := *t
	for i := range out.Calendars {
		out.Calendars[i] = t.Calendars[i].Clone()
	}
	if owned {
		out.StopTimes = make([]StopTime, len(t.StopTimes))
		copy(out.StopTimes, t.StopTimes)
	}
	return &out
}
