package transit

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"

	"wayfarer.opentransit.org/internal/disruption"
	"wayfarer.opentransit.org/internal/timetable"
)

// formatVersion guards against reading files written by an incompatible
// build. Bump on any record layout change.
const formatVersion = 1

// The on-disk form keeps base schedule data plus the raw disruption feed.
// Overlays are not stored: Decode replays every disruption through the
// store, so a restored snapshot satisfies the same invariants as a live
// one instead of trusting the file.
type snapshotFile struct {
	FormatVersion int
	Version       uint64
	BuiltAt       time.Time
	Epoch         time.Time

	Networks        []timetable.Network
	CommercialModes []timetable.CommercialMode
	PhysicalModes   []timetable.PhysicalMode
	Companies       []timetable.Company
	Datasets        []timetable.Dataset
	Lines           []timetable.Line
	Routes          []timetable.Route
	StopAreas       []timetable.StopArea
	StopPoints      []timetable.StopPoint
	Transfers       []timetable.Transfer

	Trips       []tripRecord
	Disruptions []disruptionRecord
}

type tripRecord struct {
	ID            string
	GroupID       string
	Level         timetable.ScheduleLevel
	Route         int
	Company       int
	PhysicalMode  int
	Dataset       int
	Headsign      string
	ShortName     string
	Accessible    bool
	StopTimes     []timetable.StopTime
	CalendarWords []uint64
}

type impactRecord struct {
	ID                 string
	Severity           disruption.Severity
	Messages           []string
	PublishPeriod      disruption.Period
	ApplicationPeriods []disruption.Period
	Pattern            *disruption.WeeklyPattern
	Entities           []disruption.InformedEntity
	Level              timetable.ScheduleLevel
	FeedID             string
	ServiceDay         int
	Deltas             []timetable.StopDelta
	Template           *tripRecord
}

type disruptionRecord struct {
	URI       string
	Title     string
	Cause     string
	Tags      []string
	UpdatedAt time.Time
	Impacts   []impactRecord
}

// Encode writes the snapshot as zstd-compressed gob.
func Encode(w io.Writer, snap *Snapshot) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	if err := gob.NewEncoder(zw).Encode(buildFile(snap)); err != nil {
		zw.Close()
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return zw.Close()
}

// Decode reads an Encode'd snapshot and rebuilds it by replaying the
// stored disruptions against the base schedule.
func Decode(r io.Reader) (*Snapshot, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer zr.Close()

	var f snapshotFile
	if err := gob.NewDecoder(zr).Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if f.FormatVersion != formatVersion {
		return nil, fmt.Errorf("snapshot format version %d, want %d", f.FormatVersion, formatVersion)
	}
	return rebuild(&f)
}

// Save writes the snapshot to path atomically via a temp file rename.
func Save(path string, snap *Snapshot) error {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}
	if err := Encode(file, snap); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

// Load reads a snapshot written by Save.
func Load(path string) (*Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()
	return Decode(file)
}

func buildFile(snap *Snapshot) *snapshotFile {
	g := snap.Graph
	f := &snapshotFile{
		FormatVersion:   formatVersion,
		Version:         snap.Version,
		BuiltAt:         snap.BuiltAt,
		Epoch:           g.Epoch,
		Networks:        g.Networks,
		CommercialModes: g.CommercialModes,
		PhysicalModes:   g.PhysicalModes,
		Companies:       g.Companies,
		Datasets:        g.Datasets,
		Lines:           g.Lines,
		Routes:          g.Routes,
		StopAreas:       g.StopAreas,
		StopPoints:      g.StopPoints,
	}
	for _, ts := range g.TransfersFrom {
		f.Transfers = append(f.Transfers, ts...)
	}

	snap.Variants.Each(func(group *timetable.TripVariantGroup) bool {
		if group.Base != nil {
			f.Trips = append(f.Trips, tripToRecord(group.Base, true))
		}
		return true
	})

	snap.Disruptions.Each(func(d *disruption.Disruption) bool {
		rec := disruptionRecord{
			URI:       d.URI,
			Title:     d.Title,
			Cause:     d.Cause,
			Tags:      d.Tags,
			UpdatedAt: d.UpdatedAt,
		}
		for _, im := range d.Impacts {
			ir := impactRecord{
				ID:                 im.ID,
				Severity:           im.Severity,
				Messages:           im.Messages,
				PublishPeriod:      im.PublishPeriod,
				ApplicationPeriods: im.ApplicationPeriods,
				Pattern:            im.Pattern,
				Entities:           im.Entities,
				Level:              im.Level,
				FeedID:             im.FeedID,
				ServiceDay:         im.ServiceDay,
				Deltas:             im.Deltas,
			}
			if im.TripTemplate != nil {
				tr := tripToRecord(im.TripTemplate, false)
				ir.Template = &tr
			}
			rec.Impacts = append(rec.Impacts, ir)
		}
		f.Disruptions = append(f.Disruptions, rec)
		return true
	})

	return f
}

func tripToRecord(t *timetable.Trip, withCalendar bool) tripRecord {
	rec := tripRecord{
		ID:           t.ID,
		GroupID:      t.GroupID,
		Level:        t.Level,
		Route:        t.Route,
		Company:      t.Company,
		PhysicalMode: t.PhysicalMode,
		Dataset:      t.Dataset,
		Headsign:     t.Headsign,
		ShortName:    t.ShortName,
		Accessible:   t.Accessible,
		StopTimes:    t.StopTimes,
	}
	if withCalendar {
		rec.CalendarWords = t.Calendars[timetable.LevelBase].Words()
	}
	return rec
}

func recordToTrip(rec *tripRecord, epoch time.Time) (*timetable.Trip, error) {
	t := timetable.NewTrip(rec.ID, rec.GroupID, rec.Level, epoch)
	t.Route = rec.Route
	t.Company = rec.Company
	t.PhysicalMode = rec.PhysicalMode
	t.Dataset = rec.Dataset
	t.Headsign = rec.Headsign
	t.ShortName = rec.ShortName
	t.Accessible = rec.Accessible
	t.StopTimes = rec.StopTimes
	if rec.CalendarWords != nil {
		if err := t.Calendars[rec.Level].SetWords(rec.CalendarWords); err != nil {
			return nil, fmt.Errorf("trip %s: %w", rec.ID, err)
		}
	}
	return t, nil
}

func rebuild(f *snapshotFile) (*Snapshot, error) {
	g := timetable.NewGraph(f.Epoch)
	for _, n := range f.Networks {
		g.AddNetwork(n)
	}
	for _, m := range f.CommercialModes {
		g.AddCommercialMode(m)
	}
	for _, m := range f.PhysicalModes {
		g.AddPhysicalMode(m)
	}
	for _, c := range f.Companies {
		g.AddCompany(c)
	}
	for _, d := range f.Datasets {
		g.AddDataset(d)
	}
	for _, l := range f.Lines {
		// AddRoute re-links routes into lines below.
		l.Routes = nil
		g.AddLine(l)
	}
	for _, r := range f.Routes {
		g.AddRoute(r)
	}
	for _, sa := range f.StopAreas {
		sa.StopPoints = nil
		g.AddStopArea(sa)
	}
	for _, sp := range f.StopPoints {
		g.AddStopPoint(sp)
	}
	for _, tr := range f.Transfers {
		if err := g.AddTransfer(tr); err != nil {
			return nil, err
		}
	}

	vs := timetable.NewVariantStore()
	for i := range f.Trips {
		t, err := recordToTrip(&f.Trips[i], f.Epoch)
		if err != nil {
			return nil, err
		}
		t.ActivateAllLevels()
		vs.Add(&timetable.TripVariantGroup{ID: t.GroupID, Base: t})
	}

	ds := disruption.NewStore(f.Epoch)
	for _, rec := range f.Disruptions {
		d := &disruption.Disruption{
			URI:       rec.URI,
			Title:     rec.Title,
			Cause:     rec.Cause,
			Tags:      rec.Tags,
			UpdatedAt: rec.UpdatedAt,
		}
		for _, ir := range rec.Impacts {
			im := &disruption.Impact{
				ID:                 ir.ID,
				Severity:           ir.Severity,
				Messages:           ir.Messages,
				PublishPeriod:      ir.PublishPeriod,
				ApplicationPeriods: ir.ApplicationPeriods,
				Pattern:            ir.Pattern,
				Entities:           ir.Entities,
				Level:              ir.Level,
				FeedID:             ir.FeedID,
				ServiceDay:         ir.ServiceDay,
				Deltas:             ir.Deltas,
			}
			if ir.Template != nil {
				tpl, err := recordToTrip(ir.Template, f.Epoch)
				if err != nil {
					return nil, err
				}
				im.TripTemplate = tpl
			}
			d.Impacts = append(d.Impacts, im)
		}
		if err := ds.Apply(g, vs, d); err != nil {
			return nil, fmt.Errorf("replaying disruption %s: %w", rec.URI, err)
		}
	}

	return &Snapshot{
		Version:     f.Version,
		BuiltAt:     f.BuiltAt,
		Graph:       g,
		Variants:    vs,
		Disruptions: ds,
		MaxDayShift: maxDayShift(vs),
	}, nil
}
