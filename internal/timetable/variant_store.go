package timetable

// VariantStore groups every trip variant family of the dataset. Groups are
// iterated in insertion order so that derived structures (search patterns,
// reports) are deterministic across rebuilds.
type VariantStore struct {
	groups map[string]*TripVariantGroup
	order  []string
	byTrip map[string]*TripVariantGroup
}

// NewVariantStore returns an empty store.
func NewVariantStore() *VariantStore {
	return &VariantStore{
		groups: make(map[string]*TripVariantGroup),
		byTrip: make(map[string]*TripVariantGroup),
	}
}

// Add registers a group. The group id must be unique.
func (s *VariantStore) Add(g *TripVariantGroup) {
	if _, ok := s.groups[g.ID]; !ok {
		s.order = append(s.order, g.ID)
	}
	s.groups[g.ID] = g
	for _, t := range g.Members() {
		s.byTrip[t.ID] = g
	}
}

// IndexTrip records a trip-id-to-group mapping for a variant added after
// the group was registered.
func (s *VariantStore) IndexTrip(t *Trip, g *TripVariantGroup) {
	s.byTrip[t.ID] = g
}

// Group looks a group up by its id.
func (s *VariantStore) Group(id string) (*TripVariantGroup, bool) {
	g, ok := s.groups[id]
	return g, ok
}

// ByTripID resolves the group owning any member trip id.
func (s *VariantStore) ByTripID(tripID string) (*TripVariantGroup, bool) {
	g, ok := s.byTrip[tripID]
	return g, ok
}

// Len returns the group count.
func (s *VariantStore) Len() int {
	return len(s.order)
}

// Each visits groups in insertion order.
func (s *VariantStore) Each(fn func(*TripVariantGroup) bool) {
	for _, id := range s.order {
		if !fn(s.groups[id]) {
			return
		}
	}
}

// Clone deep-copies every group so a batch can mutate freely.
func (s *VariantStore) Clone() *VariantStore {
	out := NewVariantStore()
	for _, id := range s.order {
		out.Add(s.groups[id].Clone())
	}
	return out
}
