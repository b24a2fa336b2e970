// Package disruption owns disruptions and their impacts. The store is the
// single owner of every impact; all other entities keep non-owning
// references that are resolved through the store, never assumed alive.
package disruption

import (
	"fmt"
	"time"

	"wayfarer.opentransit.org/internal/calendar"
	"wayfarer.opentransit.org/internal/timetable"
)

// Effect classifies what an impact does to the service.
type Effect uint8

const (
	EffectUnknown Effect = iota
	EffectNoService
	EffectSignificantDelays
	EffectReducedService
	EffectDetour
	EffectAdditionalService
	EffectModifiedService
	EffectOtherEffect
)

func (e Effect) String() string {
	switch e {
	case EffectNoService:
		return "no-service"
	case EffectSignificantDelays:
		return "significant-delays"
	case EffectReducedService:
		return "reduced-service"
	case EffectDetour:
		return "detour"
	case EffectAdditionalService:
		return "additional-service"
	case EffectModifiedService:
		return "modified-service"
	case EffectOtherEffect:
		return "other-effect"
	default:
		return "unknown"
	}
}

// ParseEffect converts the wire representation of an effect tag.
func ParseEffect(s string) (Effect, error) {
	switch s {
	case "no-service", "NO_SERVICE":
		return EffectNoService, nil
	case "significant-delays", "SIGNIFICANT_DELAYS":
		return EffectSignificantDelays, nil
	case "reduced-service", "REDUCED_SERVICE":
		return EffectReducedService, nil
	case "detour", "DETOUR":
		return EffectDetour, nil
	case "additional-service", "ADDITIONAL_SERVICE":
		return EffectAdditionalService, nil
	case "modified-service", "MODIFIED_SERVICE":
		return EffectModifiedService, nil
	case "other-effect", "OTHER_EFFECT":
		return EffectOtherEffect, nil
	case "", "unknown", "UNKNOWN_EFFECT":
		return EffectUnknown, nil
	default:
		return EffectUnknown, fmt.Errorf("unknown effect %q", s)
	}
}

// Severity ranks impacts for display; lower priority sorts first.
type Severity struct {
	Name     string
	Priority int
	Effect   Effect
}

// Period is a half-open time window [Start, End).
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Intersects reports whether two periods overlap.
func (p Period) Intersects(o Period) bool {
	return p.Start.Before(o.End) && o.Start.Before(p.End)
}

// clip returns the overlap of two periods; ok is false when disjoint.
func (p Period) clip(o Period) (Period, bool) {
	start := p.Start
	if o.Start.After(start) {
		start = o.Start
	}
	end := p.End
	if o.End.Before(end) {
		end = o.End
	}
	if !start.Before(end) {
		return Period{}, false
	}
	return Period{Start: start, End: end}, true
}

// TimeSlot is an intraday window in seconds since midnight.
type TimeSlot struct {
	Begin int32
	End   int32
}

// WeeklyPattern refines application periods with a coarse date range, a
// day-of-week mask and one or more intraday slots. An instant is covered
// only if its date's weekday is in the mask and its time-of-day falls in a
// slot.
type WeeklyPattern struct {
	Start     time.Time
	End       time.Time
	Weekdays  [7]bool // indexed by time.Weekday
	TimeSlots []TimeSlot
}

func (p *WeeklyPattern) covers(t time.Time) bool {
	day := calendar.Midnight(t)
	if day.Before(calendar.Midnight(p.Start)) || day.After(calendar.Midnight(p.End)) {
		return false
	}
	if !p.Weekdays[int(t.Weekday())] {
		return false
	}
	secs := int32(t.Hour()*3600 + t.Minute()*60 + t.Second())
	for _, slot := range p.TimeSlots {
		if secs >= slot.Begin && secs < slot.End {
			return true
		}
	}
	return false
}

// EntityKind enumerates the closed set of informed-entity targets.
type EntityKind uint8

const (
	KindNetwork EntityKind = iota
	KindLine
	KindRoute
	KindStopArea
	KindStopPoint
	KindTrip
	KindLineSection
	KindRailSection
)

func (k EntityKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindLine:
		return "line"
	case KindRoute:
		return "route"
	case KindStopArea:
		return "stop-area"
	case KindStopPoint:
		return "stop-point"
	case KindTrip:
		return "trip"
	case KindLineSection:
		return "line-section"
	case KindRailSection:
		return "rail-section"
	default:
		return fmt.Sprintf("entity-kind(%d)", uint8(k))
	}
}

// LineSection targets a contiguous stop range of a line instead of a
// single object. Start and End are stop area ids; Routes optionally
// restricts the affected routes of the line.
type LineSection struct {
	Line   string
	Start  string
	End    string
	Routes []string
	// Stops optionally lists intermediate stop areas with per-stop
	// attributes carried through to reports.
	Stops []string
}

// InformedEntity is the closed tagged variant of everything an impact can
// reference. Section is set only for the section kinds.
type InformedEntity struct {
	Kind    EntityKind
	ID      string
	Section *LineSection
}

// ActiveStatus classifies an impact relative to a query window.
type ActiveStatus uint8

const (
	StatusPast ActiveStatus = iota
	StatusActive
	StatusFuture
)

func (s ActiveStatus) String() string {
	switch s {
	case StatusPast:
		return "past"
	case StatusActive:
		return "active"
	default:
		return "future"
	}
}

// ParseActiveStatus converts the wire form of an active status filter.
func ParseActiveStatus(s string) (ActiveStatus, error) {
	switch s {
	case "past":
		return StatusPast, nil
	case "active":
		return StatusActive, nil
	case "future":
		return StatusFuture, nil
	default:
		return StatusActive, fmt.Errorf("unknown active status %q", s)
	}
}

// Impact is one concrete effect with its time windows and targets. For
// feed-originated trip edits it also carries the per-stop delta list that
// recomputation replays against the base sequence.
type Impact struct {
	ID                 string
	DisruptionURI      string
	Severity           Severity
	Messages           []string
	PublishPeriod      Period
	ApplicationPeriods []Period
	Pattern            *WeeklyPattern
	Entities           []InformedEntity
	Level              timetable.ScheduleLevel

	// Realtime trip-edit payload. FeedID distinguishes independent
	// impacts editing the same trip and day.
	FeedID     string
	ServiceDay int // day offset, -1 when not a per-day trip edit
	Deltas     []timetable.StopDelta

	// TripTemplate carries route, company and mode attribution for trips
	// that exist only because this impact created them. Nil for edits of
	// scheduled trips.
	TripTemplate *timetable.Trip

	seq uint64
}

// Seq is the receipt order assigned by the store; later impacts replay
// after earlier ones during recomputation.
func (im *Impact) Seq() uint64 { return im.seq }

// coversInstant reports whether the impact applies at the given instant,
// honoring the weekly-pattern refinement when present.
func (im *Impact) coversInstant(t time.Time) bool {
	for _, p := range im.ApplicationPeriods {
		if !p.Contains(t) {
			continue
		}
		if im.Pattern == nil || im.Pattern.covers(t) {
			return true
		}
	}
	return false
}

// intersectsWindow reports whether any applicable instant falls inside the
// window.
func (im *Impact) intersectsWindow(window Period) bool {
	for _, p := range im.ApplicationPeriods {
		clipped, ok := p.clip(window)
		if !ok {
			continue
		}
		if im.Pattern == nil {
			return true
		}
		// Walk the clipped range day by day against the weekly pattern.
		for day := calendar.Midnight(clipped.Start); day.Before(clipped.End); day = day.AddDate(0, 0, 1) {
			if !im.Pattern.Weekdays[int(day.Weekday())] {
				continue
			}
			if day.Before(calendar.Midnight(im.Pattern.Start)) || day.After(calendar.Midnight(im.Pattern.End)) {
				continue
			}
			for _, slot := range im.Pattern.TimeSlots {
				slotPeriod := Period{
					Start: day.Add(time.Duration(slot.Begin) * time.Second),
					End:   day.Add(time.Duration(slot.End) * time.Second),
				}
				if slotPeriod.Intersects(clipped) {
					return true
				}
			}
		}
	}
	return false
}

// IsApplicable reports whether the impact is publishable at now and has
// applicable instants inside the window.
func (im *Impact) IsApplicable(now time.Time, window Period) bool {
	if !im.PublishPeriod.Contains(now) {
		return false
	}
	return im.intersectsWindow(window)
}

// boundInstants returns the first and last possible application instants.
func (im *Impact) boundInstants() (time.Time, time.Time) {
	var first, last time.Time
	for _, p := range im.ApplicationPeriods {
		if first.IsZero() || p.Start.Before(first) {
			first = p.Start
		}
		if last.IsZero() || p.End.After(last) {
			last = p.End
		}
	}
	return first, last
}

// ActiveStatusFor classifies the impact against [since, until]. Ties
// resolve to active, favoring visibility.
func (im *Impact) ActiveStatusFor(since, until time.Time) ActiveStatus {
	first, last := im.boundInstants()
	if first.IsZero() {
		return StatusActive
	}
	if last.Before(since) {
		return StatusPast
	}
	if first.After(until) {
		return StatusFuture
	}
	return StatusActive
}

// AffectedDays maps the impact's application windows and pattern onto day
// offsets of the shared epoch. A day is affected if any applicable instant
// falls on it. Days outside the calendar capacity are dropped.
func (im *Impact) AffectedDays(epoch time.Time) []int {
	if im.ServiceDay >= 0 {
		return []int{im.ServiceDay}
	}
	seen := make(map[int]bool)
	var days []int
	ref := calendar.New(epoch)
	for _, p := range im.ApplicationPeriods {
		for day := calendar.Midnight(p.Start); day.Before(p.End); day = day.AddDate(0, 0, 1) {
			off, err := ref.DayOffset(day)
			if err != nil || seen[off] {
				continue
			}
			if im.Pattern != nil {
				if !im.Pattern.Weekdays[int(day.Weekday())] {
					continue
				}
				if day.Before(calendar.Midnight(im.Pattern.Start)) || day.After(calendar.Midnight(im.Pattern.End)) {
					continue
				}
			}
			seen[off] = true
			days = append(days, off)
		}
	}
	return days
}

// IsTripEdit reports whether the impact carries a per-stop delta payload.
func (im *Impact) IsTripEdit() bool {
	return len(im.Deltas) > 0 && im.ServiceDay >= 0
}

// Disruption is a named, tagged container of impacts, keyed by URI.
type Disruption struct {
	URI       string
	Title     string
	Cause     string
	Tags      []string
	Impacts   []*Impact
	UpdatedAt time.Time
}
