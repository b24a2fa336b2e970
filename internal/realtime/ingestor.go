package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"wayfarer.opentransit.org/internal/calendar"
	"wayfarer.opentransit.org/internal/disruption"
	"wayfarer.opentransit.org/internal/timetable"
	"wayfarer.opentransit.org/internal/transit"
)

// Config tunes how inbound updates are admitted.
type Config struct {
	// AllowTripCreation enables brand-new trips from additional-service
	// updates. When off, such updates are rejected as unknown trips.
	AllowTripCreation bool
	// LookBack bounds how far before its nominal service day a trip's
	// first stop may be shifted.
	LookBack time.Duration
}

// DefaultConfig matches the common feed contract: creation on, one day of
// look-back.
func DefaultConfig() Config {
	return Config{AllowTripCreation: true, LookBack: 24 * time.Hour}
}

// Ingestor folds trip updates into the published snapshot. One Ingest call
// stages every update of a feed poll in a single batch; rejected updates
// are reported and skipped without blocking the rest.
type Ingestor struct {
	store   *transit.Store
	cfg     Config
	metrics *Metrics
	logger  *slog.Logger
}

func NewIngestor(store *transit.Store, cfg Config, metrics *Metrics) *Ingestor {
	return &Ingestor{
		store:   store,
		cfg:     cfg,
		metrics: metrics,
		logger:  slog.Default().With(slog.String("component", "realtime_ingestor")),
	}
}

// Ingest applies a poll's worth of updates and commits one new snapshot
// version if anything changed. The returned rejections are per-update
// diagnostics, not errors.
func (in *Ingestor) Ingest(ctx context.Context, updates []TripUpdate) ([]Rejection, error) {
	batch := in.store.Begin()

	var rejections []Rejection
	mutated := 0
	for i := range updates {
		if err := ctx.Err(); err != nil {
			batch.Discard()
			return rejections, err
		}
		u := &updates[i]
		changed, rej := in.applyUpdate(batch, u)
		if rej != nil {
			rejections = append(rejections, *rej)
			in.metrics.observeUpdate(u.FeedID, "rejected")
			in.metrics.observeRejection(rej.Cause)
			in.logger.Warn("rejected trip update", slog.String("rejection", rej.String()))
			continue
		}
		in.metrics.observeUpdate(u.FeedID, "applied")
		if changed {
			mutated++
		}
	}

	if mutated == 0 {
		batch.Discard()
		return rejections, nil
	}
	snap := batch.Commit()
	in.metrics.observeCommit(snap.Version)
	in.logger.Info("committed realtime batch",
		slog.Uint64("version", snap.Version),
		slog.Int("applied", mutated),
		slog.Int("rejected", len(rejections)))
	return rejections, nil
}

func (in *Ingestor) applyUpdate(batch *transit.Batch, u *TripUpdate) (bool, *Rejection) {
	g := batch.Graph()
	vs := batch.Variants()
	ds := batch.Disruptions()

	day, err := calendar.New(g.Epoch).DayOffset(u.ServiceDate)
	if err != nil {
		return false, reject(u, RejectBadServiceDate, err.Error())
	}

	if u.Unscheduled {
		return false, reject(u, RejectUnscheduledTrip, "unscheduled trips carry no schedule to override")
	}

	// Back to normal: the feed withdraws its previous override.
	if u.Effect == disruption.EffectUnknown {
		if _, ok := ds.Get(u.DisruptionURI()); !ok {
			return false, nil
		}
		if err := ds.Delete(g, vs, u.DisruptionURI()); err != nil {
			return false, reject(u, RejectUnknownTrip, err.Error())
		}
		return true, nil
	}

	tripID := "trip:" + u.TripID
	group, found := vs.ByTripID(tripID)

	var template *timetable.Trip
	if !found {
		if u.Effect != disruption.EffectAdditionalService || !in.cfg.AllowTripCreation {
			return false, reject(u, RejectUnknownTrip, fmt.Sprintf("no trip %s", u.TripID))
		}
		template, err = in.buildTemplate(g, u, tripID)
		if err != nil {
			return false, reject(u, RejectMissingReference, err.Error())
		}
	} else if group.Base == nil {
		// Re-sent update for a trip this feed created earlier.
		template, err = in.buildTemplate(g, u, tripID)
		if err != nil {
			return false, reject(u, RejectMissingReference, err.Error())
		}
	}

	im := &disruption.Impact{
		Severity:     severityFor(u.Effect),
		Level:        timetable.LevelRealtime,
		FeedID:       u.FeedID,
		ServiceDay:   day,
		Entities:     []disruption.InformedEntity{{Kind: disruption.KindTrip, ID: tripID}},
		TripTemplate: template,
	}
	dayStart := g.Epoch.AddDate(0, 0, day)
	im.ApplicationPeriods = []disruption.Period{{Start: dayStart, End: dayStart.AddDate(0, 0, 2)}}
	im.PublishPeriod = disruption.Period{Start: updateInstant(u), End: dayStart.AddDate(0, 0, 2)}

	if u.Effect != disruption.EffectNoService {
		var baseSeq []timetable.StopTime
		if found && group.Base != nil {
			baseSeq = group.Base.StopTimes
		}
		deltas, rej := in.buildDeltas(g, u, baseSeq, dayStart)
		if rej != nil {
			return false, rej
		}
		im.Deltas = deltas
	}

	d := &disruption.Disruption{
		URI:       u.DisruptionURI(),
		Title:     fmt.Sprintf("%s on trip %s", im.Severity.Name, u.TripID),
		Cause:     "realtime feed " + u.FeedID,
		Impacts:   []*disruption.Impact{im},
		UpdatedAt: updateInstant(u),
	}
	if err := ds.Apply(g, vs, d); err != nil {
		if found {
			in.logger.Debug("group state at rejection", slog.String("dump", timetable.DumpGroup(group)))
		}
		return false, reject(u, RejectInvalidStopSequence, err.Error())
	}
	return true, nil
}

// buildDeltas resolves the message's stop edits against the base sequence
// and validates the resulting schedule before anything is staged.
func (in *Ingestor) buildDeltas(g *timetable.Graph, u *TripUpdate, base []timetable.StopTime, dayStart time.Time) ([]timetable.StopDelta, *Rejection) {
	dayStartUnix := dayStart.Unix()
	basePos := 0
	deltas := make([]timetable.StopDelta, 0, len(u.StopEdits))
	for i := range u.StopEdits {
		e := &u.StopEdits[i]
		spIdx, ok := g.StopPointIndex("stop_point:" + e.StopID)
		if !ok {
			return nil, reject(u, RejectUnknownStop, fmt.Sprintf("no stop %s", e.StopID))
		}
		delta := timetable.StopDelta{Kind: e.Kind, StopPoint: spIdx}
		switch e.Kind {
		case timetable.DeltaDelay:
			if basePos >= len(base) {
				return nil, reject(u, RejectInvalidStopSequence, "more stop edits than scheduled stops")
			}
			delta.ArrivalDelay = e.ArrivalDelay
			delta.DepartureDelay = e.DepartureDelay
			if delta.ArrivalDelay == 0 && e.ArrivalTime != 0 {
				delta.ArrivalDelay = int32(e.ArrivalTime - dayStartUnix - int64(base[basePos].Arrival))
			}
			if delta.DepartureDelay == 0 && e.DepartureTime != 0 {
				delta.DepartureDelay = int32(e.DepartureTime - dayStartUnix - int64(base[basePos].Departure))
			}
		case timetable.DeltaAdd, timetable.DeltaAddForDetour:
			if e.ArrivalTime == 0 || e.DepartureTime == 0 {
				return nil, reject(u, RejectInvalidStopSequence, fmt.Sprintf("added stop %s without absolute times", e.StopID))
			}
			delta.Arrival = int32(e.ArrivalTime - dayStartUnix)
			delta.Departure = int32(e.DepartureTime - dayStartUnix)
		}
		if consumesBaseSlot(e.Kind) {
			basePos++
		}
		deltas = append(deltas, delta)
	}

	merged, err := timetable.ApplyDeltas(base, deltas)
	if err != nil {
		return nil, reject(u, RejectInvalidStopSequence, err.Error())
	}
	prev := int32(-1 << 30)
	for _, st := range merged {
		if st.Skipped {
			continue
		}
		if st.Departure < st.Arrival {
			return nil, reject(u, RejectInvalidStopSequence,
				fmt.Sprintf("stop %d departs before it arrives", st.StopPoint))
		}
		if st.Arrival < prev {
			return nil, reject(u, RejectInvalidStopSequence, "stop times decrease along the trip")
		}
		prev = st.Departure
	}
	if len(merged) > 0 && int64(merged[0].Arrival) < -int64(in.cfg.LookBack/time.Second) {
		return nil, reject(u, RejectLookBackExceeded,
			fmt.Sprintf("first stop shifted %ds before the service day", -merged[0].Arrival))
	}
	return deltas, nil
}

// buildTemplate resolves or synthesizes the referential entities for a
// feed-created trip. Explicit references must exist; anything unreferenced
// is derived deterministically from the endpoint stop names so re-sent
// updates map to the same synthetic entities.
func (in *Ingestor) buildTemplate(g *timetable.Graph, u *TripUpdate, tripID string) (*timetable.Trip, error) {
	if len(u.StopEdits) < 2 {
		return nil, fmt.Errorf("trip creation needs at least two stops")
	}
	firstIdx, ok := g.StopPointIndex("stop_point:" + u.StopEdits[0].StopID)
	if !ok {
		return nil, fmt.Errorf("unknown first stop %s", u.StopEdits[0].StopID)
	}
	lastIdx, ok := g.StopPointIndex("stop_point:" + u.StopEdits[len(u.StopEdits)-1].StopID)
	if !ok {
		return nil, fmt.Errorf("unknown last stop %s", u.StopEdits[len(u.StopEdits)-1].StopID)
	}
	firstName := g.StopPoints[firstIdx].Name
	lastName := g.StopPoints[lastIdx].Name
	slug := slugify(firstName + "-" + lastName)
	derivedName := firstName + " - " + lastName

	// Every explicit reference must resolve before anything is synthesized,
	// so a rejected creation leaves no partial entities behind.
	for _, ref := range []struct{ id, prefix string }{
		{u.NetworkID, "network:"},
		{u.CommercialModeID, "commercial_mode:"},
		{u.LineID, "line:"},
		{u.RouteID, "route:"},
		{u.CompanyID, "company:"},
		{u.PhysicalModeID, "physical_mode:"},
		{u.DatasetID, "dataset:"},
	} {
		if ref.id == "" {
			continue
		}
		var ok bool
		switch ref.prefix {
		case "network:":
			_, ok = g.NetworkIndex(ref.prefix + ref.id)
		case "commercial_mode:":
			_, ok = g.CommercialModeIndex(ref.prefix + ref.id)
		case "line:":
			_, ok = g.LineIndex(ref.prefix + ref.id)
		case "route:":
			_, ok = g.RouteIndex(ref.prefix + ref.id)
		case "company:":
			_, ok = g.CompanyIndex(ref.prefix + ref.id)
		case "physical_mode:":
			_, ok = g.PhysicalModeIndex(ref.prefix + ref.id)
		case "dataset:":
			_, ok = g.DatasetIndex(ref.prefix + ref.id)
		}
		if !ok {
			return nil, fmt.Errorf("unknown %s%s", ref.prefix, ref.id)
		}
	}

	networkIdx, err := resolveOrSynthesize(u.NetworkID, "network:",
		g.NetworkIndex,
		func() int {
			return g.AddNetwork(timetable.Network{ID: "network:rt:" + slug, Name: derivedName})
		})
	if err != nil {
		return nil, err
	}
	cmIdx, err := resolveOrSynthesize(u.CommercialModeID, "commercial_mode:",
		g.CommercialModeIndex,
		func() int {
			return g.AddCommercialMode(timetable.CommercialMode{ID: "commercial_mode:rt:" + slug, Name: derivedName})
		})
	if err != nil {
		return nil, err
	}
	lineIdx, err := resolveOrSynthesize(u.LineID, "line:",
		g.LineIndex,
		func() int {
			return g.AddLine(timetable.Line{
				ID: "line:rt:" + slug, Name: derivedName,
				Network: networkIdx, CommercialMode: cmIdx,
			})
		})
	if err != nil {
		return nil, err
	}
	routeIdx, err := resolveOrSynthesize(u.RouteID, "route:",
		g.RouteIndex,
		func() int {
			return g.AddRoute(timetable.Route{ID: "route:rt:" + slug, Name: derivedName, Line: lineIdx})
		})
	if err != nil {
		return nil, err
	}
	companyIdx, err := resolveOrSynthesize(u.CompanyID, "company:",
		g.CompanyIndex,
		func() int {
			return g.AddCompany(timetable.Company{ID: "company:rt:" + slug, Name: derivedName})
		})
	if err != nil {
		return nil, err
	}
	physIdx, err := resolveOrSynthesize(u.PhysicalModeID, "physical_mode:",
		g.PhysicalModeIndex,
		func() int {
			return g.AddPhysicalMode(timetable.PhysicalMode{ID: "physical_mode:rt:" + slug, Name: derivedName})
		})
	if err != nil {
		return nil, err
	}
	datasetIdx, err := resolveOrSynthesize(u.DatasetID, "dataset:",
		g.DatasetIndex,
		func() int {
			return g.AddDataset(timetable.Dataset{ID: "dataset:realtime", Name: "realtime"})
		})
	if err != nil {
		return nil, err
	}

	t := timetable.NewTrip(tripID, tripID, timetable.LevelRealtime, g.Epoch)
	t.Route = routeIdx
	t.Company = companyIdx
	t.PhysicalMode = physIdx
	t.Dataset = datasetIdx
	t.Headsign = u.Headsign
	t.ShortName = u.ShortName
	if t.Headsign == "" {
		t.Headsign = lastName
	}
	return t, nil
}

// resolveOrSynthesize enforces the creation contract: an explicitly
// referenced id must already exist, an absent reference is synthesized.
func resolveOrSynthesize(id, prefix string, lookup func(string) (int, bool), synth func() int) (int, error) {
	if id == "" {
		return synth(), nil
	}
	if idx, ok := lookup(prefix + id); ok {
		return idx, nil
	}
	return 0, fmt.Errorf("unknown %s%s", prefix, id)
}

func consumesBaseSlot(k timetable.DeltaKind) bool {
	switch k {
	case timetable.DeltaAdd, timetable.DeltaAddForDetour:
		return false
	default:
		return true
	}
}

func severityFor(e disruption.Effect) disruption.Severity {
	switch e {
	case disruption.EffectNoService:
		return disruption.Severity{Name: "trip canceled", Priority: 0, Effect: e}
	case disruption.EffectReducedService:
		return disruption.Severity{Name: "reduced service", Priority: 20, Effect: e}
	case disruption.EffectDetour:
		return disruption.Severity{Name: "detour", Priority: 30, Effect: e}
	case disruption.EffectAdditionalService:
		return disruption.Severity{Name: "additional service", Priority: 60, Effect: e}
	default:
		return disruption.Severity{Name: "trip delayed", Priority: 40, Effect: disruption.EffectSignificantDelays}
	}
}

func updateInstant(u *TripUpdate) time.Time {
	if u.Timestamp.IsZero() {
		return time.Now().UTC()
	}
	return u.Timestamp
}

func reject(u *TripUpdate, cause RejectionCause, detail string) *Rejection {
	return &Rejection{
		FeedID:      u.FeedID,
		TripID:      u.TripID,
		ServiceDate: u.ServiceDate,
		Cause:       cause,
		Detail:      detail,
	}
}

func slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
