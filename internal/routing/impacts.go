package routing

import (
	"sort"
	"time"

	"wayfarer.opentransit.org/internal/disruption"
)

// attachImpacts annotates every section with the disruption impacts that
// apply while the leg is traversed, then rolls the union up on the
// journey. An impact qualifies when its publication window covers now
// and one of its application periods intersects the section.
func (e *Engine) attachImpacts(journeys []Journey, now time.Time) {
	if e.snap.Disruptions == nil {
		return
	}
	for ji := range journeys {
		j := &journeys[ji]
		var all []*disruption.Impact
		for si := range j.Sections {
			s := &j.Sections[si]
			s.Impacts = e.sectionImpacts(s, now)
			all = append(all, s.Impacts...)
		}
		j.Impacts = dedupeImpacts(all)
	}
}

// sectionImpacts gathers candidates from every entity the leg touches:
// the trip and its route, line, section ranges and network, plus both
// endpoint stop points and their areas.
func (e *Engine) sectionImpacts(s *Section, now time.Time) []*disruption.Impact {
	ds := e.snap.Disruptions
	g := e.snap.Graph
	window := disruption.Period{Start: s.Departure, End: s.Arrival}

	var candidates []*disruption.Impact
	add := func(kind disruption.EntityKind, id string) {
		candidates = append(candidates, ds.ImpactsFor(kind, id)...)
	}
	if s.Kind == SectionPublicTransport && s.Trip != nil {
		add(disruption.KindTrip, s.Trip.GroupID)
		if ri := s.Trip.Route; ri >= 0 && ri < len(g.Routes) {
			add(disruption.KindRoute, g.Routes[ri].ID)
			if li := g.Routes[ri].Line; li >= 0 && li < len(g.Lines) {
				line := g.Lines[li]
				add(disruption.KindLine, line.ID)
				add(disruption.KindLineSection, line.ID)
				add(disruption.KindRailSection, line.ID)
				if ni := line.Network; ni >= 0 && ni < len(g.Networks) {
					add(disruption.KindNetwork, g.Networks[ni].ID)
				}
			}
		}
	}
	for _, sp := range [2]int{s.FromStop, s.ToStop} {
		if sp < 0 || sp >= len(g.StopPoints) {
			continue
		}
		add(disruption.KindStopPoint, g.StopPoints[sp].ID)
		if sa := g.StopAreaOf(sp); sa >= 0 && sa < len(g.StopAreas) {
			add(disruption.KindStopArea, g.StopAreas[sa].ID)
		}
	}

	var out []*disruption.Impact
	for _, im := range candidates {
		if im.IsApplicable(now, window) {
			out = append(out, im)
		}
	}
	return dedupeImpacts(out)
}

func dedupeImpacts(impacts []*disruption.Impact) []*disruption.Impact {
	if len(impacts) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(impacts))
	out := impacts[:0]
	for _, im := range impacts {
		if seen[im.ID] {
			continue
		}
		seen[im.ID] = true
		out = append(out, im)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq() < out[j].Seq() })
	return out
}
