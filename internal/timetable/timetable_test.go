package timetable

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func newBaseTrip(t *testing.T, id string, days ...int) *Trip {
	t.Helper()
	trip := NewTrip(id, id, LevelBase, testEpoch)
	trip.StopTimes = []StopTime{
		{StopPoint: 0, Arrival: 8 * 3600, Departure: 8*3600 + 60, PickupAllowed: true, DropOffAllowed: true, BaseIndex: 0},
		{StopPoint: 1, Arrival: 9 * 3600, Departure: 9*3600 + 60, PickupAllowed: true, DropOffAllowed: true, BaseIndex: 1},
	}
	for _, d := range days {
		require.NoError(t, trip.Calendars[LevelBase].SetActiveDay(d))
	}
	trip.ActivateAllLevels()
	return trip
}

func TestResolveReturnsBaseWhenNoOverride(t *testing.T) {
	base := newBaseTrip(t, "trip:1", 0, 1, 2)
	g := &TripVariantGroup{ID: "trip:1", Base: base}

	for _, lvl := range []ScheduleLevel{LevelBase, LevelAdjusted, LevelRealtime} {
		assert.Same(t, base, g.Resolve(1, lvl), "level %s", lvl)
	}
	assert.Nil(t, g.Resolve(3, LevelBase))
}

func TestResolveIsUnambiguousAfterOverride(t *testing.T) {
	base := newBaseTrip(t, "trip:1", 0, 1)
	g := &TripVariantGroup{ID: "trip:1", Base: base}

	live := NewTrip("trip:1:rt:day1", "trip:1", LevelRealtime, testEpoch)
	live.StopTimes = append([]StopTime(nil), base.StopTimes...)
	require.NoError(t, g.AddVariant(live))

	// Move day 1 realtime visibility from base to the live variant.
	require.NoError(t, g.Deactivate(base, LevelRealtime, 1))
	require.NoError(t, g.Activate(live, LevelRealtime, 1))

	assert.Same(t, live, g.Resolve(1, LevelRealtime))
	assert.Same(t, base, g.Resolve(1, LevelBase), "base level must be unaffected")
	assert.Same(t, base, g.Resolve(1, LevelAdjusted))
	assert.Same(t, base, g.Resolve(0, LevelRealtime))
}

func TestActivateRejectsNonBaseAtBaseLevel(t *testing.T) {
	base := newBaseTrip(t, "trip:1", 0)
	g := &TripVariantGroup{ID: "trip:1", Base: base}
	live := NewTrip("trip:1:rt", "trip:1", LevelRealtime, testEpoch)
	require.NoError(t, g.AddVariant(live))

	assert.Error(t, g.Activate(live, LevelBase, 0))
}

func TestCloneSharesBaseSequenceButNotCalendars(t *testing.T) {
	base := newBaseTrip(t, "trip:1", 0)
	g := &TripVariantGroup{ID: "trip:1", Base: base}

	clone := g.Clone()
	require.NoError(t, clone.Base.Calendars[LevelRealtime].SetInactiveDay(0))

	assert.True(t, base.Calendars[LevelRealtime].Check(0), "original calendar must not change")
	assert.Same(t, &base.StopTimes[0], &clone.Base.StopTimes[0], "base sequence backing array is shared")
}

func TestDaySpan(t *testing.T) {
	trip := NewTrip("t", "t", LevelBase, testEpoch)
	trip.StopTimes = []StopTime{
		{Arrival: 8 * 3600, Departure: 8 * 3600},
		{Arrival: 31 * 3600, Departure: 31 * 3600}, // 07:00 next day
	}
	assert.Equal(t, 1, trip.DaySpan())
}

func TestApplyDeltasDelay(t *testing.T) {
	base := newBaseTrip(t, "trip:1").StopTimes

	out, err := ApplyDeltas(base, []StopDelta{
		{Kind: DeltaDelay, StopPoint: 0, ArrivalDelay: 600, DepartureDelay: 600},
		{Kind: DeltaUnchanged, StopPoint: 1},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int32(8*3600+600), out[0].Arrival)
	assert.Equal(t, int32(9*3600), out[1].Arrival)
	assert.Equal(t, int32(8*3600), base[0].Arrival, "input sequence is immutable")
}

func TestApplyDeltasSkipKeepsSlot(t *testing.T) {
	base := newBaseTrip(t, "trip:1").StopTimes

	out, err := ApplyDeltas(base, []StopDelta{
		{Kind: DeltaUnchanged, StopPoint: 0},
		{Kind: DeltaSkip, StopPoint: 1},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[1].Skipped)
	assert.False(t, out[1].PickupAllowed)
	assert.False(t, out[1].DropOffAllowed)
}

func TestApplyDeltasDetour(t *testing.T) {
	base := newBaseTrip(t, "trip:1").StopTimes

	out, err := ApplyDeltas(base, []StopDelta{
		{Kind: DeltaUnchanged, StopPoint: 0},
		{Kind: DeltaDeleteForDetour, StopPoint: 1},
		{Kind: DeltaAddForDetour, StopPoint: 7, Arrival: 9*3600 + 300, Departure: 9*3600 + 360},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 7, out[1].StopPoint)
	assert.Equal(t, InsertedStop, out[1].BaseIndex)
}

func TestApplyDeltasPositionMismatch(t *testing.T) {
	base := newBaseTrip(t, "trip:1").StopTimes

	_, err := ApplyDeltas(base, []StopDelta{
		{Kind: DeltaDelay, StopPoint: 5, ArrivalDelay: 60, DepartureDelay: 60},
		{Kind: DeltaUnchanged, StopPoint: 1},
	})
	assert.Error(t, err)
}

func TestComposeDeltasStaggeredDelays(t *testing.T) {
	base := newBaseTrip(t, "trip:1").StopTimes

	first := []StopDelta{
		{Kind: DeltaUnchanged, StopPoint: 0},
		{Kind: DeltaDelay, StopPoint: 1, ArrivalDelay: 300, DepartureDelay: 300},
	}
	second := []StopDelta{
		{Kind: DeltaUnchanged, StopPoint: 0},
		{Kind: DeltaDelay, StopPoint: 1, ArrivalDelay: 300, DepartureDelay: 300},
	}
	third := []StopDelta{
		{Kind: DeltaUnchanged, StopPoint: 0},
		{Kind: DeltaDelay, StopPoint: 1, ArrivalDelay: 120, DepartureDelay: 120},
	}

	all, err := ComposeDeltas(base, first, second, third)
	require.NoError(t, err)
	assert.Equal(t, int32(9*3600+720), all[1].Arrival)

	// Dropping the first layer must preserve the second and third.
	rest, err := ComposeDeltas(base, second, third)
	require.NoError(t, err)
	assert.Equal(t, int32(9*3600+420), rest[1].Arrival)
}

func TestGraphCloneIsIndependent(t *testing.T) {
	g := NewGraph(testEpoch)
	nw := g.AddNetwork(Network{ID: "network:a", Name: "A"})
	cm := g.AddCommercialMode(CommercialMode{ID: "commercial_mode:bus", Name: "Bus"})
	line := g.AddLine(Line{ID: "line:1", Code: "1", Network: nw, CommercialMode: cm})
	g.AddRoute(Route{ID: "route:1:0", Line: line})
	sa := g.AddStopArea(StopArea{ID: "stop_area:x", Name: "X"})
	g.AddStopPoint(StopPoint{ID: "stop_point:x", Name: "X", StopArea: sa})

	clone := g.Clone()
	clone.AddNetwork(Network{ID: "network:b", Name: "B"})
	clone.AddStopPoint(StopPoint{ID: "stop_point:y", Name: "Y", StopArea: sa})

	assert.Len(t, g.Networks, 1)
	assert.Len(t, clone.Networks, 2)
	_, ok := g.StopPointIndex("stop_point:y")
	assert.False(t, ok)
	_, ok = clone.StopPointIndex("stop_point:y")
	assert.True(t, ok)
}

func TestVariantStoreLookups(t *testing.T) {
	vs := NewVariantStore()
	base := newBaseTrip(t, "trip:1", 0)
	g := &TripVariantGroup{ID: "trip:1", Base: base}
	vs.Add(g)

	got, ok := vs.Group("trip:1")
	require.True(t, ok)
	assert.Same(t, g, got)

	got, ok = vs.ByTripID("trip:1")
	require.True(t, ok)
	assert.Same(t, g, got)

	live := NewTrip("trip:1:rt", "trip:1", LevelRealtime, testEpoch)
	require.NoError(t, g.AddVariant(live))
	vs.IndexTrip(live, g)

	got, ok = vs.ByTripID("trip:1:rt")
	require.True(t, ok)
	assert.Same(t, g, got)
}
