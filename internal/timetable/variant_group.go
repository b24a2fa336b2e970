package timetable

import "fmt"

// TripVariantGroup is the family of schedule versions of one logical trip:
// at most one base trip, plus adjusted and realtime variants. For a given
// (level, day) at most one member's calendar bit is set, so resolving the
// running version is a lookup, never a choice.
type TripVariantGroup struct {
	ID       string
	Base     *Trip
	Adjusted []*Trip
	Realtime []*Trip
}

// Resolve returns the member visible on the given day at the given level,
// or nil. Levels are independently authoritative: no fallback to a coarser
// level happens here.
func (g *TripVariantGroup) Resolve(day int, level ScheduleLevel) *Trip {
	if g.Base != nil && g.Base.RunsOn(day, level) {
		return g.Base
	}
	for _, t := range g.Adjusted {
		if t.RunsOn(day, level) {
			return t
		}
	}
	for _, t := range g.Realtime {
		if t.RunsOn(day, level) {
			return t
		}
	}
	return nil
}

// Activate sets the variant's calendar bit for the day at the variant's
// own level. Only the target variant is mutated.
func (g *TripVariantGroup) Activate(t *Trip, level ScheduleLevel, day int) error {
	if level == LevelBase && t != g.Base {
		return fmt.Errorf("group %s: only the base trip may be activated at the base level", g.ID)
	}
	return t.Calendars[level].SetActiveDay(day)
}

// Deactivate clears the variant's calendar bit for the day at the level.
func (g *TripVariantGroup) Deactivate(t *Trip, level ScheduleLevel, day int) error {
	return t.Calendars[level].SetInactiveDay(day)
}

// AddVariant attaches a non-base trip at its level.
func (g *TripVariantGroup) AddVariant(t *Trip) error {
	switch t.Level {
	case LevelAdjusted:
		g.Adjusted = append(g.Adjusted, t)
	case LevelRealtime:
		g.Realtime = append(g.Realtime, t)
	default:
		return fmt.Errorf("group %s: cannot attach a variant at level %s", g.ID, t.Level)
	}
	return nil
}

// DropVariants removes every variant at the given level. Used when a level
// is recomputed from the set of remaining impacts.
func (g *TripVariantGroup) DropVariants(level ScheduleLevel) {
	switch level {
	case LevelAdjusted:
		g.Adjusted = nil
	case LevelRealtime:
		g.Realtime = nil
	}
}

// Members returns base plus every variant, base first.
func (g *TripVariantGroup) Members() []*Trip {
	out := make([]*Trip, 0, 1+len(g.Adjusted)+len(g.Realtime))
	if g.Base != nil {
		out = append(out, g.Base)
	}
	out = append(out, g.Adjusted...)
	out = append(out, g.Realtime...)
	return out
}

// Clone deep-copies the group. The base stop-time sequence is shared (it
// is immutable once built); variant sequences and all calendars are owned
// by the copy.
func (g *TripVariantGroup) Clone() *TripVariantGroup {
	out := &TripVariantGroup{ID: g.ID}
	if g.Base != nil {
		out.Base = g.Base.Clone(false)
	}
	for _, t := range g.Adjusted {
		out.Adjusted = append(out.Adjusted, t.Clone(true))
	}
	for _, t := range g.Realtime {
		out.Realtime = append(out.Realtime, t.Clone(true))
	}
	return out
}
