package restapi

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wayfarer.opentransit.org/internal/app"
	"wayfarer.opentransit.org/internal/appconf"
	"wayfarer.opentransit.org/internal/clock"
	"wayfarer.opentransit.org/internal/disruption"
	"wayfarer.opentransit.org/internal/realtime"
	"wayfarer.opentransit.org/internal/timetable"
	"wayfarer.opentransit.org/internal/transit"
)

var testEpoch = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

// newTestAPI builds an API over a two-stop, one-line dataset. The fixed
// clock sits at 07:00 on the second service day.
func newTestAPI(t *testing.T) *RestAPI {
	t.Helper()

	g := timetable.NewGraph(testEpoch)
	nw := g.AddNetwork(timetable.Network{ID: "network:a", Name: "Metro A"})
	cm := g.AddCommercialMode(timetable.CommercialMode{ID: "commercial_mode:metro", Name: "Metro"})
	pm := g.AddPhysicalMode(timetable.PhysicalMode{ID: "physical_mode:metro", Name: "Metro"})
	co := g.AddCompany(timetable.Company{ID: "company:a", Name: "Operator"})
	ds := g.AddDataset(timetable.Dataset{ID: "dataset:a", Name: "Base"})
	line := g.AddLine(timetable.Line{ID: "line:1", Code: "M1", Name: "Metro 1", Network: nw, CommercialMode: cm})
	route := g.AddRoute(timetable.Route{ID: "route:1:0", Name: "outbound", Line: line})
	saA := g.AddStopArea(timetable.StopArea{ID: "stop_area:alpha", Name: "Alpha", Lat: 43.29, Lon: 5.37})
	saB := g.AddStopArea(timetable.StopArea{ID: "stop_area:beta", Name: "Beta", Lat: 43.31, Lon: 5.39})
	spA := g.AddStopPoint(timetable.StopPoint{ID: "stop_point:alpha", Name: "Alpha", Lat: 43.29, Lon: 5.37, StopArea: saA})
	spB := g.AddStopPoint(timetable.StopPoint{ID: "stop_point:beta", Name: "Beta", Lat: 43.31, Lon: 5.39, StopArea: saB})

	trip := timetable.NewTrip("trip:vj:1", "trip:vj:1", timetable.LevelBase, testEpoch)
	trip.Route = route
	trip.Company = co
	trip.PhysicalMode = pm
	trip.Dataset = ds
	trip.Headsign = "Beta"
	trip.StopTimes = []timetable.StopTime{
		{StopPoint: spA, Arrival: 8 * 3600, Departure: 8 * 3600, PickupAllowed: true, DropOffAllowed: true, BaseIndex: 0},
		{StopPoint: spB, Arrival: 9 * 3600, Departure: 9 * 3600, PickupAllowed: true, DropOffAllowed: true, BaseIndex: 1},
	}
	for d := 0; d < 7; d++ {
		require.NoError(t, trip.Calendars[timetable.LevelBase].SetActiveDay(d))
	}
	trip.ActivateAllLevels()

	vs := timetable.NewVariantStore()
	vs.Add(&timetable.TripVariantGroup{ID: "trip:vj:1", Base: trip})

	store := transit.NewStore()
	store.Publish(transit.NewSnapshot(g, vs, disruption.NewStore(testEpoch)))

	metrics := realtime.NewMetrics()
	application := &app.Application{
		Config: appconf.Config{
			ApiKeys:   []string{"test"},
			RateLimit: 1000,
		},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:    clock.FixedClock{T: testEpoch.Add(24*time.Hour + 7*time.Hour)},
		Transit:  store,
		Metrics:  metrics,
		Ingestor: realtime.NewIngestor(store, realtime.DefaultConfig(), metrics),
	}
	return NewRestAPI(application)
}

// serveRequest routes one request through the full mux.
func serveRequest(api *RestAPI, r *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	api.SetRoutes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, r)
	return rec
}
