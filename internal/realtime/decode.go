package realtime

import (
	"fmt"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"wayfarer.opentransit.org/internal/disruption"
	"wayfarer.opentransit.org/internal/timetable"
)

// DecodeFeed parses a binary GTFS-RT feed message into trip updates.
// Entities without a trip update are skipped; a trip without an id is a
// feed defect and is skipped as well.
func DecodeFeed(data []byte, feedID string) ([]TripUpdate, error) {
	feed := &gtfsrt.FeedMessage{}
	if err := proto.Unmarshal(data, feed); err != nil {
		return nil, fmt.Errorf("unmarshaling feed: %w", err)
	}

	headerTime := time.Unix(int64(feed.GetHeader().GetTimestamp()), 0).UTC()

	var updates []TripUpdate
	for _, entity := range feed.GetEntity() {
		tu := entity.GetTripUpdate()
		if tu == nil {
			continue
		}
		trip := tu.GetTrip()
		if trip.GetTripId() == "" {
			continue
		}

		u := TripUpdate{
			FeedID:      feedID,
			TripID:      trip.GetTripId(),
			Effect:      effectFromRelationship(trip.GetScheduleRelationship()),
			Unscheduled: trip.GetScheduleRelationship() == gtfsrt.TripDescriptor_UNSCHEDULED,
			Timestamp:   headerTime,
			RouteID:     trip.GetRouteId(),
		}
		if ts := tu.GetTimestamp(); ts != 0 {
			u.Timestamp = time.Unix(int64(ts), 0).UTC()
		}
		if sd := trip.GetStartDate(); sd != "" {
			day, err := time.ParseInLocation("20060102", sd, time.UTC)
			if err != nil {
				return nil, fmt.Errorf("trip %s: bad start date %q: %w", u.TripID, sd, err)
			}
			u.ServiceDate = day
		}

		for _, stu := range tu.GetStopTimeUpdate() {
			edit := StopEdit{
				StopID:         stu.GetStopId(),
				Kind:           timetable.DeltaUnchanged,
				ArrivalDelay:   stu.GetArrival().GetDelay(),
				DepartureDelay: stu.GetDeparture().GetDelay(),
				ArrivalTime:    stu.GetArrival().GetTime(),
				DepartureTime:  stu.GetDeparture().GetTime(),
			}
			switch stu.GetScheduleRelationship() {
			case gtfsrt.TripUpdate_StopTimeUpdate_SKIPPED:
				edit.Kind = timetable.DeltaSkip
			case gtfsrt.TripUpdate_StopTimeUpdate_NO_DATA:
				edit.Kind = timetable.DeltaUnchanged
				edit.ArrivalDelay, edit.DepartureDelay = 0, 0
				edit.ArrivalTime, edit.DepartureTime = 0, 0
			default:
				if u.Effect == disruption.EffectAdditionalService {
					edit.Kind = timetable.DeltaAdd
				} else if edit.ArrivalDelay != 0 || edit.DepartureDelay != 0 ||
					edit.ArrivalTime != 0 || edit.DepartureTime != 0 {
					edit.Kind = timetable.DeltaDelay
				}
			}
			u.StopEdits = append(u.StopEdits, edit)
		}

		// A scheduled trip without stop edits runs as planned: the feed
		// withdraws whatever override it sent before.
		if len(u.StopEdits) == 0 && !u.Unscheduled && u.Effect == disruption.EffectSignificantDelays {
			u.Effect = disruption.EffectUnknown
		}

		updates = append(updates, u)
	}
	return updates, nil
}

func effectFromRelationship(rel gtfsrt.TripDescriptor_ScheduleRelationship) disruption.Effect {
	switch rel {
	case gtfsrt.TripDescriptor_CANCELED:
		return disruption.EffectNoService
	case gtfsrt.TripDescriptor_ADDED:
		return disruption.EffectAdditionalService
	default:
		return disruption.EffectSignificantDelays
	}
}
