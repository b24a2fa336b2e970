// Package proximity answers nearby-stop queries with an R-tree over the
// stop points of a snapshot's graph.
package proximity

import (
	"math"
	"sort"

	"github.com/tidwall/rtree"

	"wayfarer.opentransit.org/internal/timetable"
)

const earthRadiusMeters = 6371000.0

// Result is one stop point with its distance from the query origin.
type Result struct {
	StopPoint int
	Meters    float64
}

// Index is an immutable spatial index over one graph's stop points. Build
// a new one when the snapshot changes.
type Index struct {
	tree    rtree.RTree
	g       *timetable.Graph
	version uint64
}

// NewIndex indexes every stop point that appears in at least one trip of
// the variant store. Unused stop points stay out so queries only surface
// served stops.
func NewIndex(g *timetable.Graph, vs *timetable.VariantStore, version uint64) *Index {
	served := make([]bool, len(g.StopPoints))
	vs.Each(func(group *timetable.TripVariantGroup) bool {
		for _, t := range group.Members() {
			for _, st := range t.StopTimes {
				if st.StopPoint >= 0 && st.StopPoint < len(served) {
					served[st.StopPoint] = true
				}
			}
		}
		return true
	})

	idx := &Index{g: g, version: version}
	for i, sp := range g.StopPoints {
		if !served[i] {
			continue
		}
		idx.tree.Insert(
			[2]float64{sp.Lat, sp.Lon},
			[2]float64{sp.Lat, sp.Lon},
			i,
		)
	}
	return idx
}

// Version reports which snapshot version the index was built from.
func (idx *Index) Version() uint64 { return idx.version }

// Nearby returns the stop points within radiusMeters of the origin,
// closest first, capped at limit when limit is positive.
func (idx *Index) Nearby(lat, lon, radiusMeters float64, limit int) []Result {
	latPad := radiusMeters / 111320.0
	lonPad := latPad
	if cos := math.Cos(lat * math.Pi / 180); cos > 0.01 {
		lonPad = latPad / cos
	}

	var out []Result
	idx.tree.Search(
		[2]float64{lat - latPad, lon - lonPad},
		[2]float64{lat + latPad, lon + lonPad},
		func(min, max [2]float64, data interface{}) bool {
			i := data.(int)
			sp := idx.g.StopPoints[i]
			d := haversineMeters(lat, lon, sp.Lat, sp.Lon)
			if d <= radiusMeters {
				out = append(out, Result{StopPoint: i, Meters: d})
			}
			return true
		},
	)

	sort.Slice(out, func(i, j int) bool {
		if out[i].Meters != out[j].Meters {
			return out[i].Meters < out[j].Meters
		}
		return out[i].StopPoint < out[j].StopPoint
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const rad = math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(a))
}
