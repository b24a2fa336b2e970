package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-polyline"

	"wayfarer.opentransit.org/internal/disruption"
	"wayfarer.opentransit.org/internal/routing"
	"wayfarer.opentransit.org/internal/timetable"
)

var testEpoch = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func newGraph() (*timetable.Graph, *timetable.Trip) {
	g := timetable.NewGraph(testEpoch)
	nw := g.AddNetwork(timetable.Network{ID: "network:a", Name: "A"})
	line := g.AddLine(timetable.Line{ID: "line:1", Code: "T1", Name: "Tram 1", Network: nw})
	route := g.AddRoute(timetable.Route{ID: "route:1:0", Name: "outbound", Line: line})
	sa := g.AddStopArea(timetable.StopArea{ID: "stop_area:x", Name: "X"})
	a := g.AddStopPoint(timetable.StopPoint{ID: "stop_point:a", Name: "A", Lat: 43.29, Lon: 5.37, StopArea: sa})
	b := g.AddStopPoint(timetable.StopPoint{ID: "stop_point:b", Name: "B", Lat: 43.30, Lon: 5.38, StopArea: sa})
	c := g.AddStopPoint(timetable.StopPoint{ID: "stop_point:c", Name: "C", Lat: 43.31, Lon: 5.39, StopArea: sa})

	trip := timetable.NewTrip("trip:1", "trip:1", timetable.LevelBase, testEpoch)
	trip.Route = route
	trip.Headsign = "Terminus"
	trip.StopTimes = []timetable.StopTime{
		{StopPoint: a, Arrival: 8 * 3600, Departure: 8 * 3600},
		{StopPoint: b, Arrival: 8*3600 + 600, Departure: 8*3600 + 600},
		{StopPoint: c, Arrival: 8*3600 + 1200, Departure: 8*3600 + 1200},
	}
	return g, trip
}

func TestNewJourneyModels(t *testing.T) {
	g, trip := newGraph()
	dep := testEpoch.Add(8 * time.Hour)
	arr := dep.Add(20 * time.Minute)

	journeys := []routing.Journey{{
		Departure: dep,
		Arrival:   arr,
		Transfers: 0,
		Level:     timetable.LevelRealtime,
		Sections: []routing.Section{{
			Kind:      routing.SectionPublicTransport,
			Trip:      trip,
			FromStop:  0,
			ToStop:    2,
			Departure: dep,
			Arrival:   arr,
		}},
	}}

	ms := NewJourneyModels(g, journeys, dep)
	require.Len(t, ms, 1)
	m := ms[0]

	assert.Equal(t, dep.Format(time.RFC3339), m.Departure)
	assert.Equal(t, int64(1200), m.Duration)
	assert.Equal(t, "realtime", m.Level)
	require.Len(t, m.Sections, 1)

	s := m.Sections[0]
	assert.Equal(t, "public_transport", s.Type)
	assert.Equal(t, "trip:1", s.TripID)
	assert.Equal(t, "line:1", s.LineID)
	assert.Equal(t, "T1", s.LineCode)
	assert.Equal(t, "Terminus", s.Headsign)
	assert.Equal(t, []string{"stop_point:a", "stop_point:b", "stop_point:c"}, s.StopIDs)

	coords, _, err := polyline.DecodeCoords([]byte(s.Geometry))
	require.NoError(t, err)
	require.Len(t, coords, 3)
	assert.InDelta(t, 43.29, coords[0][0], 0.0001)
	assert.InDelta(t, 5.39, coords[2][1], 0.0001)
}

func TestJourneyModelCarriesImpacts(t *testing.T) {
	g, trip := newGraph()
	dep := testEpoch.Add(8 * time.Hour)
	arr := dep.Add(20 * time.Minute)

	im := &disruption.Impact{
		ID:                 "impact:1",
		DisruptionURI:      "disruption:delay",
		Severity:           disruption.Severity{Name: "delayed", Priority: 40, Effect: disruption.EffectSignificantDelays},
		ApplicationPeriods: []disruption.Period{{Start: dep, End: arr}},
	}
	journeys := []routing.Journey{{
		Departure: dep,
		Arrival:   arr,
		Level:     timetable.LevelRealtime,
		Impacts:   []*disruption.Impact{im},
		Sections: []routing.Section{{
			Kind:      routing.SectionPublicTransport,
			Trip:      trip,
			FromStop:  0,
			ToStop:    2,
			Departure: dep,
			Arrival:   arr,
			Impacts:   []*disruption.Impact{im},
		}},
	}}

	ms := NewJourneyModels(g, journeys, dep)
	require.Len(t, ms, 1)
	require.Len(t, ms[0].Impacts, 1)
	assert.Equal(t, "disruption:delay", ms[0].Impacts[0].DisruptionURI)
	assert.Equal(t, "active", ms[0].Impacts[0].Status)
	require.Len(t, ms[0].Sections[0].Impacts, 1)
	assert.Equal(t, "impact:1", ms[0].Sections[0].Impacts[0].ID)
}

func TestTransferSectionGeometry(t *testing.T) {
	g, _ := newGraph()
	dep := testEpoch.Add(9 * time.Hour)

	s := routing.Section{
		Kind:      routing.SectionTransfer,
		FromStop:  0,
		ToStop:    1,
		Departure: dep,
		Arrival:   dep.Add(3 * time.Minute),
	}
	m := newSectionModel(g, &s, dep)

	assert.Equal(t, "transfer", m.Type)
	assert.Equal(t, "stop_point:a", m.From.ID)
	assert.Equal(t, "stop_point:b", m.To.ID)
	assert.Empty(t, m.TripID)

	coords, _, err := polyline.DecodeCoords([]byte(m.Geometry))
	require.NoError(t, err)
	assert.Len(t, coords, 2)
}
