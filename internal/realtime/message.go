// Package realtime turns inbound trip-update feeds into disruption
// overlays on the published snapshot. Each update either produces a Live
// variant for one trip and service day or is rejected whole; a bad update
// never blocks its batch siblings.
package realtime

import (
	"fmt"
	"time"

	"wayfarer.opentransit.org/internal/disruption"
	"wayfarer.opentransit.org/internal/timetable"
)

// StopEdit is one per-stop instruction of a trip update, in message order.
// Delays are relative to the base schedule; ArrivalTime/DepartureTime are
// absolute unix seconds and take effect when no delay is given.
type StopEdit struct {
	StopID         string
	Kind           timetable.DeltaKind
	ArrivalDelay   int32
	DepartureDelay int32
	ArrivalTime    int64
	DepartureTime  int64
}

// TripUpdate is the feed-independent form of one inbound trip update,
// identified by (feed, trip, service date).
type TripUpdate struct {
	FeedID      string
	TripID      string
	ServiceDate time.Time
	Effect      disruption.Effect
	Timestamp   time.Time
	StopEdits   []StopEdit

	// Unscheduled marks a frequency-based run without any schedule to
	// override. Such updates are rejected, never mistaken for a withdrawal.
	Unscheduled bool

	// Identity overrides, used only when the update creates a new trip.
	Headsign         string
	ShortName        string
	CompanyID        string
	PhysicalModeID   string
	NetworkID        string
	CommercialModeID string
	LineID           string
	RouteID          string
	DatasetID        string
}

// DisruptionURI derives the stable identity of the overlay this update
// owns. Re-sending the same (feed, trip, day) supersedes the previous
// version instead of stacking on it.
func (u *TripUpdate) DisruptionURI() string {
	return fmt.Sprintf("disruption:feed:%s:%s:%s", u.FeedID, u.TripID, u.ServiceDate.Format("20060102"))
}

// RejectionCause classifies why an update was discarded.
type RejectionCause uint8

const (
	RejectInvalidStopSequence RejectionCause = iota
	RejectLookBackExceeded
	RejectUnknownTrip
	RejectUnknownStop
	RejectMissingReference
	RejectBadServiceDate
	RejectUnscheduledTrip
)

func (c RejectionCause) String() string {
	switch c {
	case RejectInvalidStopSequence:
		return "invalid_stop_sequence"
	case RejectLookBackExceeded:
		return "look_back_exceeded"
	case RejectUnknownTrip:
		return "unknown_trip"
	case RejectUnknownStop:
		return "unknown_stop"
	case RejectMissingReference:
		return "missing_reference"
	case RejectBadServiceDate:
		return "bad_service_date"
	case RejectUnscheduledTrip:
		return "unscheduled_trip"
	default:
		return fmt.Sprintf("rejection_cause(%d)", uint8(c))
	}
}

// Rejection reports one discarded update back to the caller. It is not an
// error: committed state is unchanged and sibling updates proceed.
type Rejection struct {
	FeedID      string
	TripID      string
	ServiceDate time.Time
	Cause       RejectionCause
	Detail      string
}

func (r Rejection) String() string {
	return fmt.Sprintf("update %s/%s@%s rejected (%s): %s",
		r.FeedID, r.TripID, r.ServiceDate.Format("2006-01-02"), r.Cause, r.Detail)
}
