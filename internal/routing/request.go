package routing

import (
	"errors"
	"fmt"
	"time"

	"wayfarer.opentransit.org/internal/disruption"
	"wayfarer.opentransit.org/internal/timetable"
)

// ErrNoSolution means the request was valid but no itinerary exists. It is
// an expected outcome, not a failure.
var ErrNoSolution = errors.New("no journey satisfies the request")

// BadRequestError reports an invalid query parameter. The API layer maps
// it to a client error instead of a server fault.
type BadRequestError struct {
	Field  string
	Reason string
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("bad request: %s: %s", e.Field, e.Reason)
}

// WeightedStop is a search endpoint: a stop point plus the seconds needed
// to reach it from (or leave it toward) the true origin or destination.
type WeightedStop struct {
	StopPoint int
	Penalty   int32
}

// Request describes one journey query. Zero values select the defaults.
type Request struct {
	Origins      []WeightedStop
	Destinations []WeightedStop

	// When is the target instant; ArriveBy flips its meaning from
	// depart-after to arrive-before.
	When     time.Time
	ArriveBy bool

	// Now anchors publication-window checks when annotating results with
	// disruption impacts. Zero means When.
	Now time.Time

	Level timetable.ScheduleLevel

	MaxTransfers    int
	TransferPenalty int32
	WalkingCap      int32

	// MinJourneys with a Timeframe widens the search window until enough
	// alternatives are found or the timeframe is exhausted.
	MinJourneys int
	Timeframe   time.Duration

	// Forbidden and Allowed hold entity ids (trips, routes, lines,
	// networks, physical modes). A non-empty Allowed set is exclusive.
	Forbidden map[string]bool
	Allowed   map[string]bool

	RequireAccessible bool

	// Over-lateness filter: an alternative is dropped when its duration
	// exceeds best*MaxFactor + BaseFactor. MaxFactor <= 0 disables it.
	MaxFactor  float64
	BaseFactor time.Duration
}

const (
	defaultMaxTransfers = 10
	defaultWalkingCap   = 30 * 60
)

func (r *Request) withDefaults() Request {
	out := *r
	if out.MaxTransfers <= 0 {
		out.MaxTransfers = defaultMaxTransfers
	}
	if out.WalkingCap <= 0 {
		out.WalkingCap = defaultWalkingCap
	}
	if out.Now.IsZero() {
		out.Now = out.When
	}
	return out
}

func (r *Request) validate(stopCount int) error {
	if len(r.Origins) == 0 {
		return &BadRequestError{Field: "origins", Reason: "at least one origin stop is required"}
	}
	if len(r.Destinations) == 0 {
		return &BadRequestError{Field: "destinations", Reason: "at least one destination stop is required"}
	}
	if r.When.IsZero() {
		return &BadRequestError{Field: "when", Reason: "a target instant is required"}
	}
	if r.Level >= timetable.NumLevels {
		return &BadRequestError{Field: "level", Reason: fmt.Sprintf("unknown schedule level %d", r.Level)}
	}
	for _, s := range append(append([]WeightedStop(nil), r.Origins...), r.Destinations...) {
		if s.StopPoint < 0 || s.StopPoint >= stopCount {
			return &BadRequestError{Field: "stop", Reason: fmt.Sprintf("stop point %d does not exist", s.StopPoint)}
		}
	}
	return nil
}

// SectionKind discriminates journey legs.
type SectionKind uint8

const (
	SectionPublicTransport SectionKind = iota
	SectionTransfer
)

// Section is one leg of a journey with absolute instants. Impacts holds
// the disruption impacts active while the leg is traversed.
type Section struct {
	Kind      SectionKind
	Trip      *timetable.Trip
	FromStop  int
	ToStop    int
	Departure time.Time
	Arrival   time.Time
	Impacts   []*disruption.Impact
}

// Journey is one itinerary, ordered by section. Impacts is the union of
// the section impacts, deduplicated and in receipt order.
type Journey struct {
	Sections  []Section
	Departure time.Time
	Arrival   time.Time
	Transfers int
	Level     timetable.ScheduleLevel
	Impacts   []*disruption.Impact
}

// Duration is total travel time including initial and final penalties.
func (j *Journey) Duration() time.Duration {
	return j.Arrival.Sub(j.Departure)
}
