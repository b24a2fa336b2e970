// Package routing implements round-based journey search over a committed
// snapshot. An Engine precomputes pattern adjacency for one snapshot
// version and can be reused across queries until the snapshot is swapped.
package routing

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"wayfarer.opentransit.org/internal/timetable"
	"wayfarer.opentransit.org/internal/transit"
)

// A pattern is a maximal set of trips sharing one exact stop sequence.
// Trips are sorted by their departure at the first stop so the earliest
// boardable trip is found by a forward scan.
type pattern struct {
	route int
	stops []int
	trips []*timetable.Trip
}

type patternRef struct {
	pattern int
	pos     int
}

// Engine answers journey queries against one snapshot. It is safe for
// concurrent use by multiple readers; Rebuild must not race with Search.
type Engine struct {
	snap     *transit.Snapshot
	patterns []pattern
	atStop   [][]patternRef
	// transfersTo mirrors Graph.TransfersFrom for arrive-before scans.
	transfersTo [][]timetable.Transfer
	logger      *slog.Logger
}

func NewEngine(snap *transit.Snapshot) *Engine {
	e := &Engine{
		snap:   snap,
		logger: slog.Default().With(slog.String("component", "routing")),
	}
	e.buildAdjacency()
	return e
}

// Snapshot returns the snapshot this engine was built against.
func (e *Engine) Snapshot() *transit.Snapshot { return e.snap }

// Rebuild swaps the engine onto a newer snapshot, recomputing adjacency.
// A no-op when the version is unchanged.
func (e *Engine) Rebuild(snap *transit.Snapshot) {
	if e.snap != nil && snap.Version == e.snap.Version {
		return
	}
	e.snap = snap
	e.buildAdjacency()
}

// buildAdjacency groups every trip variant into patterns and indexes the
// patterns serving each stop. Variants with detoured sequences form their
// own patterns, so search never needs to special-case them.
func (e *Engine) buildAdjacency() {
	byKey := make(map[string]int)
	e.patterns = e.patterns[:0]

	e.snap.Variants.Each(func(group *timetable.TripVariantGroup) bool {
		for _, t := range group.Members() {
			if len(t.StopTimes) == 0 {
				continue
			}
			key := patternKey(t)
			idx, ok := byKey[key]
			if !ok {
				stops := make([]int, len(t.StopTimes))
				for i, st := range t.StopTimes {
					stops[i] = st.StopPoint
				}
				e.patterns = append(e.patterns, pattern{route: t.Route, stops: stops})
				idx = len(e.patterns) - 1
				byKey[key] = idx
			}
			e.patterns[idx].trips = append(e.patterns[idx].trips, t)
		}
		return true
	})

	for i := range e.patterns {
		trips := e.patterns[i].trips
		sort.SliceStable(trips, func(a, b int) bool {
			da, db := trips[a].StopTimes[0].Departure, trips[b].StopTimes[0].Departure
			if da != db {
				return da < db
			}
			return trips[a].ID < trips[b].ID
		})
	}

	e.atStop = make([][]patternRef, len(e.snap.Graph.StopPoints))
	for pi := range e.patterns {
		for pos, sp := range e.patterns[pi].stops {
			e.atStop[sp] = append(e.atStop[sp], patternRef{pattern: pi, pos: pos})
		}
	}

	e.transfersTo = make([][]timetable.Transfer, len(e.snap.Graph.StopPoints))
	for _, ts := range e.snap.Graph.TransfersFrom {
		for _, tr := range ts {
			e.transfersTo[tr.To] = append(e.transfersTo[tr.To], tr)
		}
	}

	e.logger.Debug("built search adjacency",
		slog.Uint64("snapshot", e.snap.Version),
		slog.Int("patterns", len(e.patterns)))
}

func patternKey(t *timetable.Trip) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d", t.Route)
	for _, st := range t.StopTimes {
		fmt.Fprintf(&b, ":%d", st.StopPoint)
	}
	return b.String()
}
