package timetable

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/OneBusAway/go-gtfs"

	"wayfarer.opentransit.org/internal/calendar"
)

// defaultBoardingDuration is applied when the feed carries no boarding or
// alighting information.
const defaultBoardingDuration = 0

// LoadGTFS builds a schedule graph and its variant store from a parsed
// GTFS static feed. Every trip becomes the base member of a variant group;
// agencies map to networks and companies, GTFS routes map to lines, and
// (line, direction) pairs map to routes.
func LoadGTFS(static *gtfs.Static) (*Graph, *VariantStore, error) {
	epoch := datasetEpoch(static)
	g := NewGraph(epoch)
	vs := NewVariantStore()

	logger := slog.Default().With(slog.String("component", "gtfs_loader"))

	datasetIdx := g.AddDataset(Dataset{ID: "dataset:default", Name: "default"})

	for _, agency := range static.Agencies {
		g.AddNetwork(Network{ID: "network:" + agency.Id, Name: agency.Name})
		g.AddCompany(Company{ID: "company:" + agency.Id, Name: agency.Name})
	}

	for i := range static.Stops {
		stop := &static.Stops[i]
		if stop.Type == gtfs.StopType_Station {
			g.AddStopArea(StopArea{
				ID:   "stop_area:" + stop.Id,
				Name: stop.Name,
				Lat:  floatOrZero(stop.Latitude),
				Lon:  floatOrZero(stop.Longitude),
			})
		}
	}

	for i := range static.Stops {
		stop := &static.Stops[i]
		if stop.Type == gtfs.StopType_Station {
			continue
		}
		areaIdx := -1
		if stop.Parent != nil {
			areaIdx, _ = g.StopAreaIndex("stop_area:" + stop.Parent.Root().Id)
		}
		if areaIdx < 0 {
			// Parentless platforms get a synthetic one-stop area.
			areaIdx = g.AddStopArea(StopArea{
				ID:   "stop_area:" + stop.Id,
				Name: stop.Name,
				Lat:  floatOrZero(stop.Latitude),
				Lon:  floatOrZero(stop.Longitude),
			})
		}
		g.AddStopPoint(StopPoint{
			ID:       "stop_point:" + stop.Id,
			Name:     stop.Name,
			Lat:      floatOrZero(stop.Latitude),
			Lon:      floatOrZero(stop.Longitude),
			StopArea: areaIdx,
		})
	}

	for i := range static.Routes {
		route := &static.Routes[i]
		networkIdx := 0
		if route.Agency != nil {
			networkIdx, _ = g.NetworkIndex("network:" + route.Agency.Id)
		}
		modeName := fmt.Sprintf("%v", route.Type)
		cmIdx := g.AddCommercialMode(CommercialMode{ID: "commercial_mode:" + modeName, Name: modeName})
		g.AddPhysicalMode(PhysicalMode{ID: "physical_mode:" + modeName, Name: modeName})
		name := route.LongName
		if name == "" {
			name = route.ShortName
		}
		g.AddLine(Line{
			ID:             "line:" + route.Id,
			Code:           route.ShortName,
			Name:           name,
			Network:        networkIdx,
			CommercialMode: cmIdx,
			SortOrder:      int(int32OrZero(route.SortOrder)),
		})
	}

	skipped := 0
	for i := range static.Trips {
		trip := &static.Trips[i]
		if trip.Route == nil || trip.Service == nil || len(trip.StopTimes) == 0 {
			skipped++
			continue
		}
		lineIdx, ok := g.LineIndex("line:" + trip.Route.Id)
		if !ok {
			skipped++
			continue
		}

		routeID := fmt.Sprintf("route:%s:%v", trip.Route.Id, trip.DirectionId)
		routeIdx, ok := g.RouteIndex(routeID)
		if !ok {
			routeIdx = g.AddRoute(Route{ID: routeID, Name: g.Lines[lineIdx].Name, Line: lineIdx})
		}

		companyIdx := 0
		physIdx := 0
		if trip.Route.Agency != nil {
			companyIdx, _ = g.CompanyIndex("company:" + trip.Route.Agency.Id)
		}
		modeName := fmt.Sprintf("%v", trip.Route.Type)
		physIdx, _ = g.PhysicalModeIndex("physical_mode:" + modeName)

		t := NewTrip("trip:"+trip.ID, "trip:"+trip.ID, LevelBase, epoch)
		t.Route = routeIdx
		t.Company = companyIdx
		t.PhysicalMode = physIdx
		t.Dataset = datasetIdx
		t.Headsign = trip.Headsign
		t.ShortName = trip.ShortName
		t.Accessible = trip.WheelchairAccessible == gtfs.WheelchairBoarding_Possible

		bad := false
		for j := range trip.StopTimes {
			st := &trip.StopTimes[j]
			if st.Stop == nil {
				bad = true
				break
			}
			spIdx, ok := g.StopPointIndex("stop_point:" + st.Stop.Id)
			if !ok {
				bad = true
				break
			}
			t.StopTimes = append(t.StopTimes, StopTime{
				StopPoint:         spIdx,
				Arrival:           int32(st.ArrivalTime / time.Second),
				Departure:         int32(st.DepartureTime / time.Second),
				BoardingDuration:  defaultBoardingDuration,
				AlightingDuration: defaultBoardingDuration,
				PickupAllowed:     st.PickupType != gtfs.PickupDropOffPolicy_No,
				DropOffAllowed:    st.DropOffType != gtfs.PickupDropOffPolicy_No,
				BaseIndex:         j,
			})
		}
		if bad {
			skipped++
			continue
		}

		serviceCalendar(logger, trip.ID, t.Calendars[LevelBase], trip.Service)
		t.ActivateAllLevels()

		vs.Add(&TripVariantGroup{ID: t.GroupID, Base: t})
	}

	for _, tr := range static.Transfers {
		if tr.From == nil || tr.To == nil {
			continue
		}
		from, okFrom := g.StopPointIndex("stop_point:" + tr.From.Id)
		to, okTo := g.StopPointIndex("stop_point:" + tr.To.Id)
		if !okFrom || !okTo {
			continue
		}
		duration := int32(120)
		if tr.MinTransferTime != nil {
			duration = *tr.MinTransferTime
		}
		_ = g.AddTransfer(Transfer{From: from, To: to, Duration: duration})
	}

	logger.Info("loaded GTFS static data",
		slog.Int("stop_points", len(g.StopPoints)),
		slog.Int("lines", len(g.Lines)),
		slog.Int("trip_groups", vs.Len()),
		slog.Int("skipped_trips", skipped))

	return g, vs, nil
}

// serviceCalendar projects a GTFS service definition onto a validity
// calendar. Dates outside the calendar capacity are dropped with a log
// line rather than failing the whole import.
func serviceCalendar(logger *slog.Logger, tripID string, c *calendar.ValidityCalendar, svc *gtfs.Service) {
	weekdays := [7]bool{
		svc.Sunday, svc.Monday, svc.Tuesday, svc.Wednesday,
		svc.Thursday, svc.Friday, svc.Saturday,
	}
	dropped := 0
	for d := calendar.Midnight(svc.StartDate); !d.After(svc.EndDate); d = d.AddDate(0, 0, 1) {
		if !weekdays[int(d.Weekday())] {
			continue
		}
		if err := c.SetActive(d); err != nil {
			dropped++
		}
	}
	for _, d := range svc.AddedDates {
		if err := c.SetActive(d); err != nil {
			dropped++
		}
	}
	for _, d := range svc.RemovedDates {
		if err := c.SetInactive(d); err != nil {
			dropped++
		}
	}
	if dropped > 0 {
		logger.Warn("dropped service dates outside the calendar range",
			slog.String("trip", tripID),
			slog.Int("dates", dropped))
	}
}

// datasetEpoch picks the anchor date every calendar in the dataset shares.
func datasetEpoch(static *gtfs.Static) time.Time {
	var epoch time.Time
	for i := range static.Services {
		start := static.Services[i].StartDate
		if epoch.IsZero() || start.Before(epoch) {
			epoch = start
		}
	}
	if epoch.IsZero() {
		epoch = time.Now().UTC()
	}
	return calendar.Midnight(epoch)
}

func floatOrZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func int32OrZero(i *int32) int32 {
	if i == nil {
		return 0
	}
	return *i
}
