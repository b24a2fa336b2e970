package disruption

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"wayfarer.opentransit.org/internal/timetable"
)

type refKey struct {
	Kind EntityKind
	ID   string
}

// Store is the arena owning every disruption and impact. Entities never
// hold impact pointers of their own: they are looked up here by (kind, id)
// so that deleting a disruption can never leave a dangling reference.
//
// The store is not safe for concurrent mutation; batches clone it, mutate
// the clone and publish atomically.
type Store struct {
	epoch time.Time
	byURI map[string]*Disruption
	order []string
	refs  map[refKey][]*Impact
	seq   uint64
}

// NewStore returns an empty store anchored to the dataset epoch.
func NewStore(epoch time.Time) *Store {
	return &Store{
		epoch: epoch,
		byURI: make(map[string]*Disruption),
		refs:  make(map[refKey][]*Impact),
	}
}

// Len returns the disruption count.
func (s *Store) Len() int { return len(s.order) }

// Get looks up a disruption by URI.
func (s *Store) Get(uri string) (*Disruption, bool) {
	d, ok := s.byURI[uri]
	return d, ok
}

// Each visits disruptions in receipt order.
func (s *Store) Each(fn func(*Disruption) bool) {
	for _, uri := range s.order {
		if !fn(s.byURI[uri]) {
			return
		}
	}
}

// ImpactsFor returns the impacts referencing the entity, in receipt order.
// The returned slice is shared; callers must not mutate it.
func (s *Store) ImpactsFor(kind EntityKind, id string) []*Impact {
	return s.refs[refKey{Kind: kind, ID: id}]
}

// Apply stages a disruption. Re-applying an existing URI supersedes the
// previous version atomically. Calendar side effects on trip entities are
// recomputed from the full set of remaining impacts, so overlapping
// impacts stay correct under any apply/delete ordering.
func (s *Store) Apply(g *timetable.Graph, vs *timetable.VariantStore, d *Disruption) error {
	if d.URI == "" {
		return fmt.Errorf("disruption has no URI")
	}
	if len(d.Impacts) == 0 {
		return fmt.Errorf("disruption %s has no impacts", d.URI)
	}
	for _, im := range d.Impacts {
		if err := s.validateImpact(g, vs, im); err != nil {
			return fmt.Errorf("disruption %s: %w", d.URI, err)
		}
	}

	affected := make(map[string]bool)

	if old, ok := s.byURI[d.URI]; ok {
		s.collectTripGroups(old, affected)
		s.unregister(old)
	} else {
		s.order = append(s.order, d.URI)
	}

	for _, im := range d.Impacts {
		if im.ID == "" {
			im.ID = uuid.NewString()
		}
		im.DisruptionURI = d.URI
		s.seq++
		im.seq = s.seq
	}
	s.byURI[d.URI] = d
	s.register(d)
	s.collectTripGroups(d, affected)

	return s.recomputeGroups(g, vs, affected)
}

// Delete removes a disruption and recomputes the calendars of every trip
// group it had side effects on from the remaining impacts.
func (s *Store) Delete(g *timetable.Graph, vs *timetable.VariantStore, uri string) error {
	d, ok := s.byURI[uri]
	if !ok {
		return fmt.Errorf("unknown disruption %s", uri)
	}
	affected := make(map[string]bool)
	s.collectTripGroups(d, affected)

	s.unregister(d)
	delete(s.byURI, uri)
	for i, u := range s.order {
		if u == uri {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	return s.recomputeGroups(g, vs, affected)
}

// Clone deep-copies the store for a mutation batch. Impact values are
// copied so that a batch can supersede them without touching the
// committed snapshot.
func (s *Store) Clone() *Store {
	out := NewStore(s.epoch)
	out.seq = s.seq
	for _, uri := range s.order {
		d := s.byURI[uri]
		nd := &Disruption{
			URI:       d.URI,
			Title:     d.Title,
			Cause:     d.Cause,
			Tags:      append([]string(nil), d.Tags...),
			UpdatedAt: d.UpdatedAt,
		}
		for _, im := range d.Impacts {
			ni := *im
			ni.Messages = append([]string(nil), im.Messages...)
			ni.ApplicationPeriods = append([]Period(nil), im.ApplicationPeriods...)
			ni.Entities = append([]InformedEntity(nil), im.Entities...)
			ni.Deltas = append([]timetable.StopDelta(nil), im.Deltas...)
			nd.Impacts = append(nd.Impacts, &ni)
		}
		out.order = append(out.order, uri)
		out.byURI[uri] = nd
		out.register(nd)
	}
	return out
}

func (s *Store) validateImpact(g *timetable.Graph, vs *timetable.VariantStore, im *Impact) error {
	for _, e := range im.Entities {
		switch e.Kind {
		case KindNetwork:
			if _, ok := g.NetworkIndex(e.ID); !ok {
				return fmt.Errorf("impact references unknown network %s", e.ID)
			}
		case KindLine:
			if _, ok := g.LineIndex(e.ID); !ok {
				return fmt.Errorf("impact references unknown line %s", e.ID)
			}
		case KindRoute:
			if _, ok := g.RouteIndex(e.ID); !ok {
				return fmt.Errorf("impact references unknown route %s", e.ID)
			}
		case KindStopArea:
			if _, ok := g.StopAreaIndex(e.ID); !ok {
				return fmt.Errorf("impact references unknown stop area %s", e.ID)
			}
		case KindStopPoint:
			if _, ok := g.StopPointIndex(e.ID); !ok {
				return fmt.Errorf("impact references unknown stop point %s", e.ID)
			}
		case KindTrip:
			if _, ok := vs.Group(e.ID); !ok {
				// A trip created by this very impact is allowed.
				if im.TripTemplate == nil {
					return fmt.Errorf("impact references unknown trip %s", e.ID)
				}
			}
		case KindLineSection, KindRailSection:
			if e.Section == nil {
				return fmt.Errorf("%s entity without section payload", e.Kind)
			}
			if _, ok := g.LineIndex(e.Section.Line); !ok {
				return fmt.Errorf("impact references unknown line %s in section", e.Section.Line)
			}
		default:
			return fmt.Errorf("unknown informed entity kind %d", e.Kind)
		}
	}
	return nil
}

func (s *Store) register(d *Disruption) {
	for _, im := range d.Impacts {
		for _, e := range im.Entities {
			k := refKey{Kind: e.Kind, ID: e.ID}
			s.refs[k] = append(s.refs[k], im)
		}
	}
}

func (s *Store) unregister(d *Disruption) {
	for _, im := range d.Impacts {
		for _, e := range im.Entities {
			k := refKey{Kind: e.Kind, ID: e.ID}
			kept := s.refs[k][:0]
			for _, ref := range s.refs[k] {
				if ref.DisruptionURI != d.URI {
					kept = append(kept, ref)
				}
			}
			if len(kept) == 0 {
				delete(s.refs, k)
			} else {
				s.refs[k] = kept
			}
		}
	}
}

func (s *Store) collectTripGroups(d *Disruption, into map[string]bool) {
	for _, im := range d.Impacts {
		for _, e := range im.Entities {
			if e.Kind == KindTrip {
				into[e.ID] = true
			}
		}
	}
}

func (s *Store) recomputeGroups(g *timetable.Graph, vs *timetable.VariantStore, groups map[string]bool) error {
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := s.recomputeGroup(g, vs, id); err != nil {
			return err
		}
	}
	return nil
}

// recomputeGroup rebuilds a trip group's adjusted and realtime overlays
// from scratch using every remaining impact, in receipt order. It never
// inverts a single impact's diff.
func (s *Store) recomputeGroup(g *timetable.Graph, vs *timetable.VariantStore, groupID string) error {
	group, ok := vs.Group(groupID)
	if !ok {
		// Group created by a now-deleted additional-service impact; it may
		// be recreated below if another impact still carries a template.
		group = &timetable.TripVariantGroup{ID: groupID}
		vs.Add(group)
	}

	impacts := append([]*Impact(nil), s.refs[refKey{Kind: KindTrip, ID: groupID}]...)
	sort.Slice(impacts, func(i, j int) bool { return impacts[i].seq < impacts[j].seq })

	for _, level := range []timetable.ScheduleLevel{timetable.LevelAdjusted, timetable.LevelRealtime} {
		s.resetLevel(group, level)
		if err := s.applyLevel(g, vs, group, impacts, level); err != nil {
			return err
		}
	}
	return nil
}

// resetLevel restores a level to its pre-overlay state: adjusted starts
// from the base calendar, realtime starts from the adjusted view.
func (s *Store) resetLevel(group *timetable.TripVariantGroup, level timetable.ScheduleLevel) {
	group.DropVariants(level)
	from := timetable.LevelBase
	if level == timetable.LevelRealtime {
		from = timetable.LevelAdjusted
	}
	for _, t := range group.Members() {
		_ = t.Calendars[level].CopyFrom(t.Calendars[from])
	}
}

func (s *Store) applyLevel(g *timetable.Graph, vs *timetable.VariantStore, group *timetable.TripVariantGroup, impacts []*Impact, level timetable.ScheduleLevel) error {
	// Per-day walk in receipt order: a trip edit stacks a delta layer, a
	// no-service wipes the layers staged so far and cancels the day. The
	// last word on each day wins, whatever its effect class.
	type dayState struct {
		edits     []*Impact
		cancelled bool
	}
	days := make(map[int]*dayState)
	var dayOrder []int
	stateOf := func(day int) *dayState {
		st, ok := days[day]
		if !ok {
			st = &dayState{}
			days[day] = st
			dayOrder = append(dayOrder, day)
		}
		return st
	}

	for _, im := range impacts {
		if im.Level != level {
			continue
		}
		if im.IsTripEdit() {
			st := stateOf(im.ServiceDay)
			st.edits = append(st.edits, im)
			st.cancelled = false
			continue
		}
		if im.Severity.Effect == EffectNoService {
			for _, day := range im.AffectedDays(s.epoch) {
				st := stateOf(day)
				st.edits = st.edits[:0]
				st.cancelled = true
			}
		}
	}

	sort.Ints(dayOrder)
	for _, day := range dayOrder {
		st := days[day]
		if st.cancelled {
			if v := group.Resolve(day, level); v != nil {
				if err := group.Deactivate(v, level, day); err != nil {
					return err
				}
			}
			continue
		}
		if len(st.edits) == 0 {
			continue
		}
		if err := s.rebuildEditedDay(g, vs, group, level, day, st.edits); err != nil {
			return err
		}
	}
	return nil
}

// rebuildEditedDay composes every still-active trip edit for one day
// against the base sequence and installs the result as the day's variant.
func (s *Store) rebuildEditedDay(g *timetable.Graph, vs *timetable.VariantStore, group *timetable.TripVariantGroup, level timetable.ScheduleLevel, day int, edits []*Impact) error {
	var base []timetable.StopTime
	var template *timetable.Trip
	if group.Base != nil {
		base = group.Base.StopTimes
		template = group.Base
	}
	layers := make([][]timetable.StopDelta, 0, len(edits))
	for _, im := range edits {
		if im.TripTemplate != nil {
			template = im.TripTemplate
		}
		layers = append(layers, im.Deltas)
	}
	if template == nil {
		return fmt.Errorf("group %s day %d: trip edit without base or template", group.ID, day)
	}

	seq, err := timetable.ComposeDeltas(base, layers...)
	if err != nil {
		return fmt.Errorf("group %s day %d: %w", group.ID, day, err)
	}

	variant := timetable.NewTrip(
		fmt.Sprintf("%s:%s:%d", group.ID, level, day),
		group.ID, level, g.Epoch,
	)
	variant.Route = template.Route
	variant.Company = template.Company
	variant.PhysicalMode = template.PhysicalMode
	variant.Dataset = template.Dataset
	variant.Headsign = template.Headsign
	variant.ShortName = template.ShortName
	variant.Accessible = template.Accessible
	variant.StopTimes = seq

	if owner := group.Resolve(day, level); owner != nil {
		if err := group.Deactivate(owner, level, day); err != nil {
			return err
		}
	}
	if err := group.AddVariant(variant); err != nil {
		return err
	}
	vs.IndexTrip(variant, group)
	return group.Activate(variant, level, day)
}
