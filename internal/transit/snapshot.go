// Package transit assembles the schedule graph, trip variants and
// disruptions into immutable snapshots and publishes them atomically.
// Readers always see a fully consistent version; writers stage changes on
// a private clone and swap it in on commit.
package transit

import (
	"log/slog"
	"sync"
	"time"

	"wayfarer.opentransit.org/internal/disruption"
	"wayfarer.opentransit.org/internal/timetable"
)

// Snapshot is one immutable, self-consistent version of the transit data.
type Snapshot struct {
	Version     uint64
	BuiltAt     time.Time
	Graph       *timetable.Graph
	Variants    *timetable.VariantStore
	Disruptions *disruption.Store

	// MaxDayShift is the largest number of midnights any trip crosses.
	// Search uses it to bound how many earlier service days can still have
	// running trips at a given instant.
	MaxDayShift int
}

// NewSnapshot wraps freshly built data as version 1.
func NewSnapshot(g *timetable.Graph, vs *timetable.VariantStore, ds *disruption.Store) *Snapshot {
	return &Snapshot{
		Version:     1,
		BuiltAt:     time.Now().UTC(),
		Graph:       g,
		Variants:    vs,
		Disruptions: ds,
		MaxDayShift: maxDayShift(vs),
	}
}

func maxDayShift(vs *timetable.VariantStore) int {
	shift := 0
	vs.Each(func(g *timetable.TripVariantGroup) bool {
		for _, t := range g.Members() {
			if s := t.DaySpan(); s > shift {
				shift = s
			}
		}
		return true
	})
	return shift
}

// Store publishes snapshots. Reads are lock-free on the hot path apart
// from one RLock; mutation goes through Begin/Commit and is serialized to
// a single writer at a time.
type Store struct {
	mu       sync.RWMutex
	writerMu sync.Mutex
	current  *Snapshot
	logger   *slog.Logger
}

// NewStore returns a store with no snapshot published yet.
func NewStore() *Store {
	return &Store{
		logger: slog.Default().With(slog.String("component", "transit_store")),
	}
}

// Publish installs a snapshot directly, bypassing the batch path. Used for
// the initial dataset load and for restores from disk.
func (s *Store) Publish(snap *Snapshot) {
	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()
	s.logger.Info("published snapshot",
		slog.Uint64("version", snap.Version),
		slog.Int("trip_groups", snap.Variants.Len()),
		slog.Int("disruptions", snap.Disruptions.Len()))
}

// Current returns the committed snapshot, or nil before the first publish.
func (s *Store) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Begin opens a mutation batch on a deep clone of the current snapshot.
// The batch holds the writer lock until Commit or Discard; exactly one of
// the two must be called.
func (s *Store) Begin() *Batch {
	s.writerMu.Lock()
	cur := s.Current()
	return &Batch{
		store: s,
		base:  cur,
		snap: &Snapshot{
			Version:     cur.Version + 1,
			Graph:       cur.Graph.Clone(),
			Variants:    cur.Variants.Clone(),
			Disruptions: cur.Disruptions.Clone(),
		},
	}
}

// Batch is a staged snapshot under construction. Until Commit, readers
// keep seeing the previous version; a discarded batch leaves no trace.
type Batch struct {
	store *Store
	base  *Snapshot
	snap  *Snapshot
	done  bool
}

func (b *Batch) Graph() *timetable.Graph           { return b.snap.Graph }
func (b *Batch) Variants() *timetable.VariantStore { return b.snap.Variants }
func (b *Batch) Disruptions() *disruption.Store    { return b.snap.Disruptions }

// Commit publishes the staged snapshot and releases the writer lock.
func (b *Batch) Commit() *Snapshot {
	if b.done {
		return b.store.Current()
	}
	b.done = true
	b.snap.BuiltAt = time.Now().UTC()
	b.snap.MaxDayShift = maxDayShift(b.snap.Variants)
	b.store.mu.Lock()
	b.store.current = b.snap
	b.store.mu.Unlock()
	b.store.writerMu.Unlock()
	b.store.logger.Debug("committed snapshot", slog.Uint64("version", b.snap.Version))
	return b.snap
}

// Discard drops the staged snapshot and releases the writer lock. The
// previously committed version stays published untouched.
func (b *Batch) Discard() {
	if b.done {
		return
	}
	b.done = true
	b.snap = nil
	b.store.writerMu.Unlock()
}
