package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayfarer.opentransit.org/internal/disruption"
	"wayfarer.opentransit.org/internal/timetable"
	"wayfarer.opentransit.org/internal/transit"
)

var testEpoch = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *transit.Store {
	t.Helper()
	g := timetable.NewGraph(testEpoch)
	nw := g.AddNetwork(timetable.Network{ID: "network:a", Name: "A"})
	cm := g.AddCommercialMode(timetable.CommercialMode{ID: "commercial_mode:bus", Name: "Bus"})
	line := g.AddLine(timetable.Line{ID: "line:1", Code: "1", Network: nw, CommercialMode: cm})
	route := g.AddRoute(timetable.Route{ID: "route:1:0", Line: line})
	sa := g.AddStopArea(timetable.StopArea{ID: "stop_area:x", Name: "X"})
	g.AddStopPoint(timetable.StopPoint{ID: "stop_point:stop1", Name: "First Street", StopArea: sa})
	g.AddStopPoint(timetable.StopPoint{ID: "stop_point:stop2", Name: "Last Avenue", StopArea: sa})

	trip := timetable.NewTrip("trip:vj:1", "trip:vj:1", timetable.LevelBase, testEpoch)
	trip.Route = route
	trip.StopTimes = []timetable.StopTime{
		{StopPoint: 0, Arrival: 8*3600 + 60, Departure: 8*3600 + 60, PickupAllowed: true, DropOffAllowed: true, BaseIndex: 0},
		{StopPoint: 1, Arrival: 9*3600 + 60, Departure: 9*3600 + 60, PickupAllowed: true, DropOffAllowed: true, BaseIndex: 1},
	}
	for d := 0; d < 7; d++ {
		require.NoError(t, trip.Calendars[timetable.LevelBase].SetActiveDay(d))
	}
	trip.ActivateAllLevels()

	vs := timetable.NewVariantStore()
	vs.Add(&timetable.TripVariantGroup{ID: "trip:vj:1", Base: trip})

	store := transit.NewStore()
	store.Publish(transit.NewSnapshot(g, vs, disruption.NewStore(testEpoch)))
	return store
}

func newTestIngestor(store *transit.Store) *Ingestor {
	return NewIngestor(store, DefaultConfig(), NewMetrics())
}

func delayUpdate(delay int32) TripUpdate {
	return TripUpdate{
		FeedID:      "feed-a",
		TripID:      "vj:1",
		ServiceDate: testEpoch,
		Effect:      disruption.EffectSignificantDelays,
		Timestamp:   testEpoch.Add(6 * time.Hour),
		StopEdits: []StopEdit{
			{StopID: "stop1", Kind: timetable.DeltaDelay, ArrivalDelay: delay, DepartureDelay: delay},
			{StopID: "stop2", Kind: timetable.DeltaDelay, ArrivalDelay: delay, DepartureDelay: delay},
		},
	}
}

func TestDelayPastMidnightCreatesRolloverVariant(t *testing.T) {
	store := newStore(t)
	in := newTestIngestor(store)

	// +23h pushes both stops past midnight of the service day.
	rejections, err := in.Ingest(context.Background(), []TripUpdate{delayUpdate(23 * 3600)})
	require.NoError(t, err)
	assert.Empty(t, rejections)

	snap := store.Current()
	group, ok := snap.Variants.Group("trip:vj:1")
	require.True(t, ok)

	live := group.Resolve(0, timetable.LevelRealtime)
	require.NotNil(t, live)
	assert.Equal(t, timetable.LevelRealtime, live.Level)
	assert.Equal(t, int32(31*3600+60), live.StopTimes[0].Arrival, "07:01 the next day")
	assert.Equal(t, int32(32*3600+60), live.StopTimes[1].Arrival)
	assert.Equal(t, 1, live.DaySpan())
	assert.Equal(t, 1, snap.MaxDayShift)

	base := group.Resolve(0, timetable.LevelBase)
	assert.Equal(t, int32(9*3600+60), base.StopTimes[1].Arrival, "base schedule is untouched")
	assert.Same(t, base, group.Resolve(0, timetable.LevelAdjusted))
}

func TestResentUpdateSupersedesPreviousOne(t *testing.T) {
	store := newStore(t)
	in := newTestIngestor(store)

	_, err := in.Ingest(context.Background(), []TripUpdate{delayUpdate(300)})
	require.NoError(t, err)
	_, err = in.Ingest(context.Background(), []TripUpdate{delayUpdate(600)})
	require.NoError(t, err)

	snap := store.Current()
	assert.Equal(t, 1, snap.Disruptions.Len(), "same feed and day owns one disruption")
	group, _ := snap.Variants.Group("trip:vj:1")
	live := group.Resolve(0, timetable.LevelRealtime)
	require.NotNil(t, live)
	assert.Equal(t, int32(9*3600+60+600), live.StopTimes[1].Arrival, "re-send replaces, does not stack")
}

func TestIndependentFeedsCompose(t *testing.T) {
	store := newStore(t)
	in := newTestIngestor(store)

	a := delayUpdate(300)
	b := delayUpdate(300)
	b.FeedID = "feed-b"
	_, err := in.Ingest(context.Background(), []TripUpdate{a, b})
	require.NoError(t, err)

	snap := store.Current()
	group, _ := snap.Variants.Group("trip:vj:1")
	live := group.Resolve(0, timetable.LevelRealtime)
	require.NotNil(t, live)
	assert.Equal(t, int32(9*3600+60+600), live.StopTimes[1].Arrival, "independent feeds stack")
}

func TestBackToNormalRestoresBaseVisibility(t *testing.T) {
	store := newStore(t)
	in := newTestIngestor(store)

	_, err := in.Ingest(context.Background(), []TripUpdate{delayUpdate(300)})
	require.NoError(t, err)

	normal := delayUpdate(0)
	normal.Effect = disruption.EffectUnknown
	normal.StopEdits = nil
	_, err = in.Ingest(context.Background(), []TripUpdate{normal})
	require.NoError(t, err)

	snap := store.Current()
	assert.Equal(t, 0, snap.Disruptions.Len())
	group, _ := snap.Variants.Group("trip:vj:1")
	assert.Same(t, group.Base, group.Resolve(0, timetable.LevelRealtime))
}

func TestUnscheduledTripIsRejectedNotWithdrawn(t *testing.T) {
	store := newStore(t)
	in := newTestIngestor(store)

	_, err := in.Ingest(context.Background(), []TripUpdate{delayUpdate(300)})
	require.NoError(t, err)

	unscheduled := delayUpdate(0)
	unscheduled.Unscheduled = true
	unscheduled.StopEdits = nil
	rejections, err := in.Ingest(context.Background(), []TripUpdate{unscheduled})
	require.NoError(t, err)
	require.Len(t, rejections, 1)
	assert.Equal(t, RejectUnscheduledTrip, rejections[0].Cause)

	snap := store.Current()
	assert.Equal(t, 1, snap.Disruptions.Len(), "the earlier delay stays in force")
	group, _ := snap.Variants.Group("trip:vj:1")
	live := group.Resolve(0, timetable.LevelRealtime)
	require.NotNil(t, live)
	assert.Equal(t, int32(9*3600+60+300), live.StopTimes[1].Arrival)
}

func TestCancellationHidesTripAtRealtimeOnly(t *testing.T) {
	store := newStore(t)
	in := newTestIngestor(store)

	cancel := TripUpdate{
		FeedID:      "feed-a",
		TripID:      "vj:1",
		ServiceDate: testEpoch.AddDate(0, 0, 2),
		Effect:      disruption.EffectNoService,
		Timestamp:   testEpoch.Add(time.Hour),
	}
	rejections, err := in.Ingest(context.Background(), []TripUpdate{cancel})
	require.NoError(t, err)
	assert.Empty(t, rejections)

	group, _ := store.Current().Variants.Group("trip:vj:1")
	assert.Nil(t, group.Resolve(2, timetable.LevelRealtime))
	assert.NotNil(t, group.Resolve(2, timetable.LevelAdjusted))
	assert.NotNil(t, group.Resolve(2, timetable.LevelBase))
	assert.NotNil(t, group.Resolve(1, timetable.LevelRealtime), "other days unaffected")
}

func TestRejectionsDoNotBlockSiblings(t *testing.T) {
	store := newStore(t)
	in := newTestIngestor(store)

	bogus := delayUpdate(300)
	bogus.TripID = "vj:missing"
	good := delayUpdate(300)

	rejections, err := in.Ingest(context.Background(), []TripUpdate{bogus, good})
	require.NoError(t, err)
	require.Len(t, rejections, 1)
	assert.Equal(t, RejectUnknownTrip, rejections[0].Cause)

	group, _ := store.Current().Variants.Group("trip:vj:1")
	assert.NotNil(t, group.Resolve(0, timetable.LevelRealtime), "valid sibling still applied")
}

func TestRejectsDecreasingStopTimes(t *testing.T) {
	store := newStore(t)
	in := newTestIngestor(store)
	before := store.Current()

	u := delayUpdate(0)
	u.StopEdits[1].ArrivalDelay = -7200
	u.StopEdits[1].DepartureDelay = -7200

	rejections, err := in.Ingest(context.Background(), []TripUpdate{u})
	require.NoError(t, err)
	require.Len(t, rejections, 1)
	assert.Equal(t, RejectInvalidStopSequence, rejections[0].Cause)
	assert.Same(t, before, store.Current(), "nothing committed")
}

func TestRejectsExcessiveLookBack(t *testing.T) {
	store := newStore(t)
	in := newTestIngestor(store)

	u := delayUpdate(-33 * 3600)
	rejections, err := in.Ingest(context.Background(), []TripUpdate{u})
	require.NoError(t, err)
	require.Len(t, rejections, 1)
	assert.Equal(t, RejectLookBackExceeded, rejections[0].Cause)
}

func TestRejectsUnknownStop(t *testing.T) {
	store := newStore(t)
	in := newTestIngestor(store)

	u := delayUpdate(300)
	u.StopEdits[1].StopID = "stop99"
	rejections, err := in.Ingest(context.Background(), []TripUpdate{u})
	require.NoError(t, err)
	require.Len(t, rejections, 1)
	assert.Equal(t, RejectUnknownStop, rejections[0].Cause)
}

func additionalServiceUpdate() TripUpdate {
	day := testEpoch.Unix()
	return TripUpdate{
		FeedID:      "feed-a",
		TripID:      "extra:1",
		ServiceDate: testEpoch,
		Effect:      disruption.EffectAdditionalService,
		Timestamp:   testEpoch.Add(5 * time.Hour),
		StopEdits: []StopEdit{
			{StopID: "stop1", Kind: timetable.DeltaAdd, ArrivalTime: day + 10*3600, DepartureTime: day + 10*3600 + 60},
			{StopID: "stop2", Kind: timetable.DeltaAdd, ArrivalTime: day + 11*3600, DepartureTime: day + 11*3600 + 60},
		},
	}
}

func TestAdditionalServiceCreatesTrip(t *testing.T) {
	store := newStore(t)
	in := newTestIngestor(store)

	rejections, err := in.Ingest(context.Background(), []TripUpdate{additionalServiceUpdate()})
	require.NoError(t, err)
	assert.Empty(t, rejections)

	snap := store.Current()
	group, ok := snap.Variants.Group("trip:extra:1")
	require.True(t, ok)
	require.Nil(t, group.Base)

	live := group.Resolve(0, timetable.LevelRealtime)
	require.NotNil(t, live)
	assert.Equal(t, int32(10*3600), live.StopTimes[0].Arrival)
	assert.Equal(t, int32(11*3600), live.StopTimes[1].Arrival)
	assert.Nil(t, group.Resolve(0, timetable.LevelBase), "feed trips never exist at base level")

	// Entities are derived deterministically from the endpoint stop names.
	_, ok = snap.Graph.LineIndex("line:rt:first-street-last-avenue")
	assert.True(t, ok)
	assert.Equal(t, "Last Avenue", live.Headsign)
}

func TestAdditionalServiceRejectsUnknownReference(t *testing.T) {
	store := newStore(t)
	in := newTestIngestor(store)
	before := store.Current()

	u := additionalServiceUpdate()
	u.LineID = "missing"
	rejections, err := in.Ingest(context.Background(), []TripUpdate{u})
	require.NoError(t, err)
	require.Len(t, rejections, 1)
	assert.Equal(t, RejectMissingReference, rejections[0].Cause)

	_, ok := store.Current().Variants.Group("trip:extra:1")
	assert.False(t, ok, "nothing is created on rejection")
	assert.Same(t, before, store.Current())
}

func TestAdditionalServiceRejectedWhenCreationDisabled(t *testing.T) {
	store := newStore(t)
	cfg := DefaultConfig()
	cfg.AllowTripCreation = false
	in := NewIngestor(store, cfg, NewMetrics())

	rejections, err := in.Ingest(context.Background(), []TripUpdate{additionalServiceUpdate()})
	require.NoError(t, err)
	require.Len(t, rejections, 1)
	assert.Equal(t, RejectUnknownTrip, rejections[0].Cause)
}

func TestRejectsServiceDateOutsideCalendar(t *testing.T) {
	store := newStore(t)
	in := newTestIngestor(store)

	u := delayUpdate(300)
	u.ServiceDate = testEpoch.AddDate(2, 0, 0)
	rejections, err := in.Ingest(context.Background(), []TripUpdate{u})
	require.NoError(t, err)
	require.Len(t, rejections, 1)
	assert.Equal(t, RejectBadServiceDate, rejections[0].Cause)
}
