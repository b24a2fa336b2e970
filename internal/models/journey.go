package models

import (
	"time"

	"github.com/twpayne/go-polyline"

	"wayfarer.opentransit.org/internal/routing"
	"wayfarer.opentransit.org/internal/timetable"
)

// JourneyModel is one itinerary of a journeys response.
type JourneyModel struct {
	Departure string         `json:"departureDateTime"`
	Arrival   string         `json:"arrivalDateTime"`
	Duration  int64          `json:"duration"`
	Transfers int            `json:"nbTransfers"`
	Level     string         `json:"dataFreshness"`
	Sections  []SectionModel `json:"sections"`
	Impacts   []ImpactModel  `json:"impacts,omitempty"`
}

// SectionModel is one leg. Geometry is a Google encoded polyline over the
// traversed stop points.
type SectionModel struct {
	Type      string   `json:"type"`
	From      StopRef  `json:"from"`
	To        StopRef  `json:"to"`
	Departure string   `json:"departureDateTime"`
	Arrival   string   `json:"arrivalDateTime"`
	Duration  int64    `json:"duration"`
	TripID    string   `json:"tripId,omitempty"`
	LineID    string   `json:"lineId,omitempty"`
	LineCode  string   `json:"lineCode,omitempty"`
	Headsign  string   `json:"headsign,omitempty"`
	StopIDs   []string `json:"stopIds,omitempty"`
	Geometry  string   `json:"geometry,omitempty"`

	Impacts []ImpactModel `json:"impacts,omitempty"`
}

// StopRef is a stop point reference with display fields.
type StopRef struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

const apiTimeLayout = time.RFC3339

// NewJourneyModels converts search results to their response shape. Now
// anchors the status string of the attached impacts.
func NewJourneyModels(g *timetable.Graph, journeys []routing.Journey, now time.Time) []JourneyModel {
	out := make([]JourneyModel, 0, len(journeys))
	for i := range journeys {
		out = append(out, newJourneyModel(g, &journeys[i], now))
	}
	return out
}

func newJourneyModel(g *timetable.Graph, j *routing.Journey, now time.Time) JourneyModel {
	m := JourneyModel{
		Departure: j.Departure.Format(apiTimeLayout),
		Arrival:   j.Arrival.Format(apiTimeLayout),
		Duration:  int64(j.Duration() / time.Second),
		Transfers: j.Transfers,
		Level:     j.Level.String(),
		Sections:  make([]SectionModel, 0, len(j.Sections)),
		Impacts:   newImpactModels(j.Impacts, now),
	}
	if len(m.Impacts) == 0 {
		m.Impacts = nil
	}
	for i := range j.Sections {
		m.Sections = append(m.Sections, newSectionModel(g, &j.Sections[i], now))
	}
	return m
}

func newSectionModel(g *timetable.Graph, s *routing.Section, now time.Time) SectionModel {
	m := SectionModel{
		From:      stopRef(g, s.FromStop),
		To:        stopRef(g, s.ToStop),
		Departure: s.Departure.Format(apiTimeLayout),
		Arrival:   s.Arrival.Format(apiTimeLayout),
		Duration:  int64(s.Arrival.Sub(s.Departure) / time.Second),
	}
	if len(s.Impacts) > 0 {
		m.Impacts = newImpactModels(s.Impacts, now)
	}

	switch s.Kind {
	case routing.SectionPublicTransport:
		m.Type = "public_transport"
		if s.Trip != nil {
			m.TripID = s.Trip.ID
			m.Headsign = s.Trip.Headsign
			if s.Trip.Route >= 0 && s.Trip.Route < len(g.Routes) {
				li := g.Routes[s.Trip.Route].Line
				if li >= 0 && li < len(g.Lines) {
					m.LineID = g.Lines[li].ID
					m.LineCode = g.Lines[li].Code
				}
			}
			m.StopIDs, m.Geometry = sectionPath(g, s)
		}
	case routing.SectionTransfer:
		m.Type = "transfer"
		m.Geometry = encodePath(g, []int{s.FromStop, s.ToStop})
	}
	return m
}

// sectionPath walks the trip's stop sequence between the boarding and
// alighting stops.
func sectionPath(g *timetable.Graph, s *routing.Section) ([]string, string) {
	from, to := -1, -1
	for i, st := range s.Trip.StopTimes {
		if st.StopPoint == s.FromStop && from < 0 {
			from = i
		}
		if st.StopPoint == s.ToStop && from >= 0 {
			to = i
			break
		}
	}
	if from < 0 || to < 0 {
		return nil, ""
	}
	ids := make([]string, 0, to-from+1)
	path := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		sp := s.Trip.StopTimes[i].StopPoint
		ids = append(ids, g.StopPoints[sp].ID)
		path = append(path, sp)
	}
	return ids, encodePath(g, path)
}

func encodePath(g *timetable.Graph, stopPoints []int) string {
	coords := make([][]float64, 0, len(stopPoints))
	for _, sp := range stopPoints {
		if sp < 0 || sp >= len(g.StopPoints) {
			continue
		}
		coords = append(coords, []float64{g.StopPoints[sp].Lat, g.StopPoints[sp].Lon})
	}
	if len(coords) < 2 {
		return ""
	}
	return string(polyline.EncodeCoords(coords))
}

func stopRef(g *timetable.Graph, sp int) StopRef {
	if sp < 0 || sp >= len(g.StopPoints) {
		return StopRef{}
	}
	p := g.StopPoints[sp]
	return StopRef{ID: p.ID, Name: p.Name, Lat: p.Lat, Lon: p.Lon}
}
