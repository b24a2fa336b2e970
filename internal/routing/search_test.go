package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayfarer.opentransit.org/internal/disruption"
	"wayfarer.opentransit.org/internal/timetable"
	"wayfarer.opentransit.org/internal/transit"
)

var testEpoch = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

// fixture: two lines meeting at a hub.
//
//	line:1  s0 --(08:01->09:01)--> s1
//	line:2  s2 --(09:10->10:00)--> s3, with a 300s footpath s1 -> s2
type fixture struct {
	g  *timetable.Graph
	vs *timetable.VariantStore
	ds *disruption.Store
}

func addTrip(t *testing.T, f *fixture, id string, route int, stops []int, times []int32, days ...int) *timetable.Trip {
	t.Helper()
	trip := timetable.NewTrip(id, id, timetable.LevelBase, testEpoch)
	trip.Route = route
	trip.Accessible = true
	for i, sp := range stops {
		trip.StopTimes = append(trip.StopTimes, timetable.StopTime{
			StopPoint: sp, Arrival: times[i], Departure: times[i],
			PickupAllowed: true, DropOffAllowed: true, BaseIndex: i,
		})
	}
	for _, d := range days {
		require.NoError(t, trip.Calendars[timetable.LevelBase].SetActiveDay(d))
	}
	trip.ActivateAllLevels()
	f.vs.Add(&timetable.TripVariantGroup{ID: id, Base: trip})
	return trip
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		g:  timetable.NewGraph(testEpoch),
		vs: timetable.NewVariantStore(),
		ds: disruption.NewStore(testEpoch),
	}
	nw := f.g.AddNetwork(timetable.Network{ID: "network:a", Name: "A"})
	cm := f.g.AddCommercialMode(timetable.CommercialMode{ID: "commercial_mode:bus", Name: "Bus"})
	l1 := f.g.AddLine(timetable.Line{ID: "line:1", Code: "1", Network: nw, CommercialMode: cm})
	l2 := f.g.AddLine(timetable.Line{ID: "line:2", Code: "2", Network: nw, CommercialMode: cm})
	r1 := f.g.AddRoute(timetable.Route{ID: "route:1:0", Line: l1})
	r2 := f.g.AddRoute(timetable.Route{ID: "route:2:0", Line: l2})

	for i := 0; i < 4; i++ {
		sa := f.g.AddStopArea(timetable.StopArea{ID: "stop_area:" + string(rune('a'+i))})
		f.g.AddStopPoint(timetable.StopPoint{ID: "stop_point:" + string(rune('a'+i)), StopArea: sa})
	}
	require.NoError(t, f.g.AddTransfer(timetable.Transfer{From: 1, To: 2, Duration: 300}))

	addTrip(t, f, "trip:vj:1", r1, []int{0, 1}, []int32{8*3600 + 60, 9*3600 + 60}, 0, 1, 2, 3, 4, 5, 6)
	addTrip(t, f, "trip:vj:2", r2, []int{2, 3}, []int32{9*3600 + 600, 10 * 3600}, 0, 1, 2, 3, 4, 5, 6)
	return f
}

func (f *fixture) engine() *Engine {
	return NewEngine(transit.NewSnapshot(f.g, f.vs, f.ds))
}

func departAfter(sp int, when time.Time, level timetable.ScheduleLevel) Request {
	return Request{
		Origins:      []WeightedStop{{StopPoint: sp}},
		Destinations: []WeightedStop{{StopPoint: 3}},
		When:         when,
		Level:        level,
	}
}

func TestSearchSingleLeg(t *testing.T) {
	f := newFixture(t)
	e := f.engine()

	req := Request{
		Origins:      []WeightedStop{{StopPoint: 0}},
		Destinations: []WeightedStop{{StopPoint: 1}},
		When:         testEpoch.Add(7 * time.Hour),
		Level:        timetable.LevelBase,
	}
	journeys, err := e.Search(req)
	require.NoError(t, err)
	require.Len(t, journeys, 1)

	j := journeys[0]
	assert.Equal(t, 0, j.Transfers)
	assert.Equal(t, testEpoch.Add(8*time.Hour+time.Minute), j.Departure)
	assert.Equal(t, testEpoch.Add(9*time.Hour+time.Minute), j.Arrival)
	require.Len(t, j.Sections, 1)
	assert.Equal(t, "trip:vj:1", j.Sections[0].Trip.ID)
}

func TestSearchWithFootpathTransfer(t *testing.T) {
	f := newFixture(t)
	e := f.engine()

	journeys, err := e.Search(departAfter(0, testEpoch.Add(7*time.Hour), timetable.LevelBase))
	require.NoError(t, err)
	require.Len(t, journeys, 1)

	j := journeys[0]
	assert.Equal(t, 1, j.Transfers)
	assert.Equal(t, testEpoch.Add(10*time.Hour), j.Arrival)
	require.Len(t, j.Sections, 3)
	assert.Equal(t, SectionPublicTransport, j.Sections[0].Kind)
	assert.Equal(t, SectionTransfer, j.Sections[1].Kind)
	assert.Equal(t, SectionPublicTransport, j.Sections[2].Kind)
}

func TestSearchNoSolution(t *testing.T) {
	f := newFixture(t)
	e := f.engine()

	// After the last departure of the day and past the last service day.
	_, err := e.Search(departAfter(0, testEpoch.AddDate(0, 0, 6).Add(12*time.Hour), timetable.LevelBase))
	assert.ErrorIs(t, err, ErrNoSolution)
}

func TestSearchRejectsBadRequest(t *testing.T) {
	f := newFixture(t)
	e := f.engine()

	_, err := e.Search(Request{Destinations: []WeightedStop{{StopPoint: 3}}, When: testEpoch})
	var badReq *BadRequestError
	require.ErrorAs(t, err, &badReq)
	assert.Equal(t, "origins", badReq.Field)

	_, err = e.Search(Request{
		Origins:      []WeightedStop{{StopPoint: 99}},
		Destinations: []WeightedStop{{StopPoint: 3}},
		When:         testEpoch,
	})
	require.ErrorAs(t, err, &badReq)
}

func TestCancellationVisibleOnlyAtRealtimeLevel(t *testing.T) {
	f := newFixture(t)
	cancel := &disruption.Disruption{
		URI: "disruption:cancel",
		Impacts: []*disruption.Impact{{
			Severity:           disruption.Severity{Name: "blocking", Effect: disruption.EffectNoService},
			Level:              timetable.LevelRealtime,
			ServiceDay:         1,
			PublishPeriod:      disruption.Period{Start: testEpoch, End: testEpoch.AddDate(0, 0, 30)},
			ApplicationPeriods: []disruption.Period{{Start: testEpoch.AddDate(0, 0, 1), End: testEpoch.AddDate(0, 0, 2)}},
			Entities:           []disruption.InformedEntity{{Kind: disruption.KindTrip, ID: "trip:vj:1"}},
		}},
	}
	require.NoError(t, f.ds.Apply(f.g, f.vs, cancel))
	e := f.engine()

	day1 := testEpoch.AddDate(0, 0, 1).Add(7 * time.Hour)

	_, err := e.Search(departAfter(0, day1, timetable.LevelRealtime))
	assert.ErrorIs(t, err, ErrNoSolution, "canceled trip is invisible to realtime search")

	journeys, err := e.Search(departAfter(0, day1, timetable.LevelBase))
	require.NoError(t, err)
	assert.Len(t, journeys, 1, "base level is unaffected")
}

func TestDelayPastMidnightFoundOnNextDay(t *testing.T) {
	f := newFixture(t)
	delay := &disruption.Disruption{
		URI: "disruption:delay",
		Impacts: []*disruption.Impact{{
			Severity:           disruption.Severity{Name: "delayed", Priority: 40, Effect: disruption.EffectSignificantDelays},
			Level:              timetable.LevelRealtime,
			FeedID:             "feed-a",
			ServiceDay:         0,
			PublishPeriod:      disruption.Period{Start: testEpoch, End: testEpoch.AddDate(0, 0, 30)},
			ApplicationPeriods: []disruption.Period{{Start: testEpoch, End: testEpoch.AddDate(0, 0, 2)}},
			Entities:           []disruption.InformedEntity{{Kind: disruption.KindTrip, ID: "trip:vj:1"}},
			Deltas: []timetable.StopDelta{
				{Kind: timetable.DeltaDelay, StopPoint: 0, ArrivalDelay: 23 * 3600, DepartureDelay: 23 * 3600},
				{Kind: timetable.DeltaDelay, StopPoint: 1, ArrivalDelay: 23 * 3600, DepartureDelay: 23 * 3600},
			},
		}},
	}
	require.NoError(t, f.ds.Apply(f.g, f.vs, delay))
	e := f.engine()
	require.Equal(t, 1, e.Snapshot().MaxDayShift)

	day1Morning := testEpoch.AddDate(0, 0, 1).Add(6 * time.Hour)
	req := Request{
		Origins:      []WeightedStop{{StopPoint: 0}},
		Destinations: []WeightedStop{{StopPoint: 1}},
		When:         day1Morning,
		Level:        timetable.LevelRealtime,
	}
	journeys, err := e.Search(req)
	require.NoError(t, err)
	require.Len(t, journeys, 1)
	assert.Equal(t, testEpoch.AddDate(0, 0, 1).Add(7*time.Hour+time.Minute), journeys[0].Departure,
		"day-0 trip shifted past midnight is boardable on day 1")

	// The base schedule still runs at its nominal hour that morning.
	journeys, err = e.Search(departAfter(0, day1Morning, timetable.LevelBase))
	require.NoError(t, err)
	assert.Equal(t, testEpoch.AddDate(0, 0, 1).Add(8*time.Hour+time.Minute), journeys[0].Sections[0].Departure)
}

func TestJourneyListsImpactsFromEveryFeed(t *testing.T) {
	f := newFixture(t)
	delayFrom := func(uri, feed string) *disruption.Disruption {
		return &disruption.Disruption{
			URI: uri,
			Impacts: []*disruption.Impact{{
				Severity:           disruption.Severity{Name: "delayed", Priority: 40, Effect: disruption.EffectSignificantDelays},
				Level:              timetable.LevelRealtime,
				FeedID:             feed,
				ServiceDay:         0,
				PublishPeriod:      disruption.Period{Start: testEpoch, End: testEpoch.AddDate(0, 0, 30)},
				ApplicationPeriods: []disruption.Period{{Start: testEpoch, End: testEpoch.AddDate(0, 0, 1)}},
				Entities:           []disruption.InformedEntity{{Kind: disruption.KindTrip, ID: "trip:vj:1"}},
				Deltas: []timetable.StopDelta{
					{Kind: timetable.DeltaUnchanged, StopPoint: 0},
					{Kind: timetable.DeltaDelay, StopPoint: 1, ArrivalDelay: 120, DepartureDelay: 120},
				},
			}},
		}
	}
	require.NoError(t, f.ds.Apply(f.g, f.vs, delayFrom("disruption:feed-a:trip:vj:1", "feed-a")))
	require.NoError(t, f.ds.Apply(f.g, f.vs, delayFrom("disruption:feed-b:trip:vj:1", "feed-b")))
	e := f.engine()

	journeys, err := e.Search(departAfter(0, testEpoch.Add(7*time.Hour), timetable.LevelRealtime))
	require.NoError(t, err)
	require.NotEmpty(t, journeys)

	j := journeys[0]
	require.Len(t, j.Impacts, 2, "updates from two feeds stay distinct")
	assert.ElementsMatch(t,
		[]string{"disruption:feed-a:trip:vj:1", "disruption:feed-b:trip:vj:1"},
		[]string{j.Impacts[0].DisruptionURI, j.Impacts[1].DisruptionURI})

	require.Equal(t, SectionPublicTransport, j.Sections[0].Kind)
	assert.Len(t, j.Sections[0].Impacts, 2, "the delayed leg carries both")
	last := j.Sections[len(j.Sections)-1]
	assert.Empty(t, last.Impacts, "the unaffected leg carries none")
}

func TestImpactOutsidePublishWindowIsOmitted(t *testing.T) {
	f := newFixture(t)
	works := &disruption.Disruption{
		URI: "disruption:works",
		Impacts: []*disruption.Impact{{
			Severity:           disruption.Severity{Name: "reduced", Priority: 30, Effect: disruption.EffectReducedService},
			Level:              timetable.LevelRealtime,
			ServiceDay:         -1,
			PublishPeriod:      disruption.Period{Start: testEpoch.AddDate(0, 0, 10), End: testEpoch.AddDate(0, 0, 30)},
			ApplicationPeriods: []disruption.Period{{Start: testEpoch, End: testEpoch.AddDate(0, 0, 30)}},
			Entities:           []disruption.InformedEntity{{Kind: disruption.KindLine, ID: "line:1"}},
		}},
	}
	require.NoError(t, f.ds.Apply(f.g, f.vs, works))
	e := f.engine()

	journeys, err := e.Search(departAfter(0, testEpoch.Add(7*time.Hour), timetable.LevelRealtime))
	require.NoError(t, err)
	assert.Empty(t, journeys[0].Impacts, "not yet published")

	req := departAfter(0, testEpoch.Add(7*time.Hour), timetable.LevelRealtime)
	req.Now = testEpoch.AddDate(0, 0, 12)
	journeys, err = e.Search(req)
	require.NoError(t, err)
	require.Len(t, journeys[0].Impacts, 1)
	assert.Equal(t, "disruption:works", journeys[0].Impacts[0].DisruptionURI)
}

func TestTruncateBacktrackingKeepsPrefix(t *testing.T) {
	f := newFixture(t)
	at := func(h int) time.Time { return testEpoch.Add(time.Duration(h) * time.Hour) }
	leg := func(from, to, dep, arr int) Section {
		return Section{Kind: SectionPublicTransport, FromStop: from, ToStop: to, Departure: at(dep), Arrival: at(arr)}
	}

	// Out to area c and back: the first arrival in area b is the journey.
	looping := Journey{
		Sections:  []Section{leg(0, 1, 8, 9), leg(1, 2, 9, 10), leg(2, 1, 10, 11)},
		Departure: at(8),
		Arrival:   at(11),
		Transfers: 2,
	}
	kept := truncateBacktracking(f.g, []Journey{looping}, []WeightedStop{{StopPoint: 1}})
	require.Len(t, kept, 1, "a truncation survives where a drop would lose the itinerary")
	assert.Len(t, kept[0].Sections, 1)
	assert.Equal(t, at(9), kept[0].Arrival)
	assert.Equal(t, 0, kept[0].Transfers)

	// A loop back to the origin leaves nothing worth keeping.
	loop := Journey{
		Sections:  []Section{leg(0, 1, 8, 9), leg(1, 0, 9, 10)},
		Departure: at(8),
		Arrival:   at(10),
	}
	assert.Empty(t, truncateBacktracking(f.g, []Journey{loop}, []WeightedStop{{StopPoint: 0}}))

	// Truncating away the destination invalidates the journey.
	elsewhere := Journey{
		Sections:  []Section{leg(0, 1, 8, 9), leg(1, 2, 9, 10), leg(2, 1, 10, 11)},
		Departure: at(8),
		Arrival:   at(11),
	}
	assert.Empty(t, truncateBacktracking(f.g, []Journey{elsewhere}, []WeightedStop{{StopPoint: 3}}))

	// Distinct areas all the way through pass untouched.
	straight := Journey{
		Sections:  []Section{leg(0, 1, 8, 9), leg(1, 2, 9, 10), leg(2, 3, 10, 11)},
		Departure: at(8),
		Arrival:   at(11),
		Transfers: 2,
	}
	kept = truncateBacktracking(f.g, []Journey{straight}, []WeightedStop{{StopPoint: 3}})
	require.Len(t, kept, 1)
	assert.Len(t, kept[0].Sections, 3)
}

func TestForbiddenLineIsAvoided(t *testing.T) {
	f := newFixture(t)
	e := f.engine()

	req := departAfter(0, testEpoch.Add(7*time.Hour), timetable.LevelBase)
	req.Forbidden = map[string]bool{"line:2": true}
	_, err := e.Search(req)
	assert.ErrorIs(t, err, ErrNoSolution)

	req.Forbidden = map[string]bool{"line:9": true}
	journeys, err := e.Search(req)
	require.NoError(t, err)
	assert.Len(t, journeys, 1)
}

func TestAccessibilityFilter(t *testing.T) {
	f := newFixture(t)
	group, _ := f.vs.Group("trip:vj:2")
	group.Base.Accessible = false
	e := f.engine()

	req := departAfter(0, testEpoch.Add(7*time.Hour), timetable.LevelBase)
	req.RequireAccessible = true
	_, err := e.Search(req)
	assert.ErrorIs(t, err, ErrNoSolution)
}

func TestPickupFlagHonoredAtBoarding(t *testing.T) {
	f := newFixture(t)
	group, _ := f.vs.Group("trip:vj:1")
	group.Base.StopTimes[0].PickupAllowed = false
	e := f.engine()

	_, err := e.Search(Request{
		Origins:      []WeightedStop{{StopPoint: 0}},
		Destinations: []WeightedStop{{StopPoint: 1}},
		When:         testEpoch.Add(7 * time.Hour),
		Level:        timetable.LevelBase,
	})
	assert.ErrorIs(t, err, ErrNoSolution)
}

func TestArriveBefore(t *testing.T) {
	f := newFixture(t)
	e := f.engine()

	req := departAfter(0, testEpoch.Add(12*time.Hour), timetable.LevelBase)
	req.ArriveBy = true
	journeys, err := e.Search(req)
	require.NoError(t, err)
	require.NotEmpty(t, journeys)

	j := journeys[0]
	assert.False(t, j.Arrival.After(testEpoch.Add(12*time.Hour)))
	assert.Equal(t, testEpoch.Add(8*time.Hour+time.Minute), j.Departure)
	assert.Equal(t, testEpoch.Add(10*time.Hour), j.Arrival)
}

func TestSearchIsDeterministic(t *testing.T) {
	f := newFixture(t)
	e := f.engine()
	req := departAfter(0, testEpoch.Add(7*time.Hour), timetable.LevelBase)

	first, err := e.Search(req)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := e.Search(req)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRebuildTracksSnapshotVersion(t *testing.T) {
	f := newFixture(t)
	store := transit.NewStore()
	store.Publish(transit.NewSnapshot(f.g, f.vs, f.ds))
	e := NewEngine(store.Current())

	batch := store.Begin()
	cancel := &disruption.Disruption{
		URI: "disruption:cancel",
		Impacts: []*disruption.Impact{{
			Severity:           disruption.Severity{Name: "blocking", Effect: disruption.EffectNoService},
			Level:              timetable.LevelRealtime,
			ServiceDay:         0,
			PublishPeriod:      disruption.Period{Start: testEpoch, End: testEpoch.AddDate(0, 0, 30)},
			ApplicationPeriods: []disruption.Period{{Start: testEpoch, End: testEpoch.AddDate(0, 0, 1)}},
			Entities:           []disruption.InformedEntity{{Kind: disruption.KindTrip, ID: "trip:vj:1"}},
		}},
	}
	require.NoError(t, batch.Disruptions().Apply(batch.Graph(), batch.Variants(), cancel))
	batch.Commit()

	// The engine still answers against its old snapshot until rebuilt.
	journeys, err := e.Search(departAfter(0, testEpoch.Add(7*time.Hour), timetable.LevelRealtime))
	require.NoError(t, err)
	assert.Len(t, journeys, 1)

	e.Rebuild(store.Current())
	_, err = e.Search(departAfter(0, testEpoch.Add(7*time.Hour), timetable.LevelRealtime))
	assert.ErrorIs(t, err, ErrNoSolution)
}
