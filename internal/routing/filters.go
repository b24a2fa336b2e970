package routing

import (
	"fmt"
	"sort"
	"time"

	"wayfarer.opentransit.org/internal/timetable"
)

// truncateBacktracking shortens journeys that come back to a stop area
// they already left: the journey is cut at its first arrival in the
// repeated area. Consecutive boundaries in one area (a platform change)
// are fine. A cut journey survives only when it still ends in a
// destination area; a loop back to the origin leaves nothing to keep.
func truncateBacktracking(g *timetable.Graph, journeys []Journey, destinations []WeightedStop) []Journey {
	destAreas := make(map[int]bool, len(destinations))
	for _, d := range destinations {
		destAreas[g.StopAreaOf(d.StopPoint)] = true
	}
	kept := journeys[:0]
	for _, j := range journeys {
		if out, ok := truncateAtRepeat(g, j, destAreas); ok {
			kept = append(kept, out)
		}
	}
	return kept
}

func truncateAtRepeat(g *timetable.Graph, j Journey, destAreas map[int]bool) (Journey, bool) {
	if len(j.Sections) == 0 {
		return j, false
	}
	origin := g.StopAreaOf(j.Sections[0].FromStop)
	firstEnd := make(map[int]int) // area -> index of the section first arriving there
	cut := -1
	prev := origin
	for i, s := range j.Sections {
		area := g.StopAreaOf(s.ToStop)
		if area == prev {
			continue
		}
		if area == origin {
			return Journey{}, false
		}
		if at, seen := firstEnd[area]; seen {
			cut = at
			break
		}
		firstEnd[area] = i
		prev = area
	}
	if cut < 0 {
		return j, true
	}

	sections := j.Sections[:cut+1]
	last := &sections[len(sections)-1]
	if !destAreas[g.StopAreaOf(last.ToStop)] {
		return Journey{}, false
	}
	transfers := 0
	for i := range sections {
		if sections[i].Kind == SectionPublicTransport {
			transfers++
		}
	}
	if transfers == 0 {
		return Journey{}, false
	}
	j.Sections = sections
	j.Arrival = last.Arrival
	j.Transfers = transfers - 1
	return j, true
}

// dropOverLate applies the over-lateness filter: alternatives whose
// duration exceeds best*maxFactor + baseFactor are discarded. Disabled
// when maxFactor is not positive.
func dropOverLate(journeys []Journey, maxFactor float64, baseFactor time.Duration) []Journey {
	if maxFactor <= 0 || len(journeys) < 2 {
		return journeys
	}
	best := journeys[0].Duration()
	for _, j := range journeys[1:] {
		if d := j.Duration(); d < best {
			best = d
		}
	}
	limit := time.Duration(float64(best)*maxFactor) + baseFactor
	kept := journeys[:0]
	for _, j := range journeys {
		if j.Duration() <= limit {
			kept = append(kept, j)
		}
	}
	return kept
}

func sortJourneys(journeys []Journey) {
	sort.SliceStable(journeys, func(i, j int) bool {
		a, b := &journeys[i], &journeys[j]
		if !a.Arrival.Equal(b.Arrival) {
			return a.Arrival.Before(b.Arrival)
		}
		if a.Transfers != b.Transfers {
			return a.Transfers < b.Transfers
		}
		if !a.Departure.Equal(b.Departure) {
			// Later departure wins: same arrival with less waiting.
			return a.Departure.After(b.Departure)
		}
		return journeyKey(a) < journeyKey(b)
	})
}

func mergeJourneys(into, more []Journey) []Journey {
	seen := make(map[string]bool, len(into))
	for i := range into {
		seen[journeyKey(&into[i])] = true
	}
	for i := range more {
		if k := journeyKey(&more[i]); !seen[k] {
			seen[k] = true
			into = append(into, more[i])
		}
	}
	return into
}

func journeyKey(j *Journey) string {
	tripID := ""
	for _, s := range j.Sections {
		if s.Kind == SectionPublicTransport && s.Trip != nil {
			tripID = s.Trip.ID
			break
		}
	}
	return fmt.Sprintf("%d:%d:%d:%s", j.Departure.Unix(), j.Arrival.Unix(), j.Transfers, tripID)
}

// nextProbe picks the next departure instant to widen the search window
// with: one minute past the earliest departure at or after the previous
// probe.
func nextProbe(journeys []Journey, after time.Time) time.Time {
	var next time.Time
	for _, j := range journeys {
		if j.Departure.Before(after) {
			continue
		}
		if next.IsZero() || j.Departure.Before(next) {
			next = j.Departure
		}
	}
	if next.IsZero() {
		return time.Time{}
	}
	return next.Add(time.Minute)
}
