package restapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"wayfarer.opentransit.org/internal/disruption"
	"wayfarer.opentransit.org/internal/models"
	"wayfarer.opentransit.org/internal/timetable"
)

// maxDisruptionBody caps disruption payloads at 5MB.
const maxDisruptionBody = 5 << 20

// DisruptionRequest is the JSON body of a disruption submission.
type DisruptionRequest struct {
	URI     string          `json:"uri" validate:"required"`
	Title   string          `json:"title"`
	Cause   string          `json:"cause"`
	Tags    []string        `json:"tags"`
	Impacts []ImpactRequest `json:"impacts" validate:"required,min=1,dive"`
}

type ImpactRequest struct {
	Severity           SeverityRequest `json:"severity" validate:"required"`
	Level              string          `json:"level"`
	Messages           []string        `json:"messages"`
	PublishPeriod      PeriodRequest   `json:"publishPeriod" validate:"required"`
	ApplicationPeriods []PeriodRequest `json:"applicationPeriods" validate:"required,min=1,dive"`
	Pattern            *PatternRequest `json:"pattern"`
	Entities           []EntityRequest `json:"entities" validate:"required,min=1,dive"`
}

type SeverityRequest struct {
	Name     string `json:"name" validate:"required"`
	Priority int    `json:"priority"`
	Effect   string `json:"effect" validate:"required"`
}

type PeriodRequest struct {
	Begin time.Time `json:"begin" validate:"required"`
	End   time.Time `json:"end" validate:"required,gtfield=Begin"`
}

type PatternRequest struct {
	Start     time.Time         `json:"start" validate:"required"`
	End       time.Time         `json:"end" validate:"required"`
	Weekdays  []string          `json:"weekdays" validate:"required,min=1"`
	TimeSlots []TimeSlotRequest `json:"timeSlots" validate:"required,min=1,dive"`
}

type TimeSlotRequest struct {
	Begin string `json:"begin" validate:"required"`
	End   string `json:"end" validate:"required"`
}

type EntityRequest struct {
	Type    string          `json:"type" validate:"required,oneof=network line route stop_area stop_point trip line_section rail_section"`
	ID      string          `json:"id"`
	Section *SectionRequest `json:"section"`
}

type SectionRequest struct {
	Line   string   `json:"line" validate:"required"`
	Start  string   `json:"start" validate:"required"`
	End    string   `json:"end" validate:"required"`
	Routes []string `json:"routes"`
	Stops  []string `json:"stops"`
}

func (api *RestAPI) applyDisruptionHandler(w http.ResponseWriter, r *http.Request) {
	var body DisruptionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDisruptionBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		api.badRequestResponse(w, r, "malformed JSON body: "+err.Error())
		return
	}
	if err := api.validate.Struct(&body); err != nil {
		api.badRequestResponse(w, r, "invalid disruption: "+err.Error())
		return
	}

	d, err := body.toDisruption(api.Clock.Now())
	if err != nil {
		api.badRequestResponse(w, r, err.Error())
		return
	}

	batch := api.Transit.Begin()
	if err := batch.Disruptions().Apply(batch.Graph(), batch.Variants(), d); err != nil {
		batch.Discard()
		api.badRequestResponse(w, r, err.Error())
		return
	}
	snap := batch.Commit()

	api.Logger.Info("disruption applied", "uri", d.URI, "version", snap.Version)
	data := map[string]interface{}{"uri": d.URI, "snapshotVersion": snap.Version}
	api.sendResponse(w, r, models.NewOKResponse(data, api.Clock))
}

func (api *RestAPI) deleteDisruptionHandler(w http.ResponseWriter, r *http.Request) {
	uri := r.PathValue("uri")
	if uri == "" {
		api.badRequestResponse(w, r, "a disruption URI is required")
		return
	}

	batch := api.Transit.Begin()
	if err := batch.Disruptions().Delete(batch.Graph(), batch.Variants(), uri); err != nil {
		batch.Discard()
		api.notFoundResponse(w, r, err.Error())
		return
	}
	snap := batch.Commit()

	api.Logger.Info("disruption deleted", "uri", uri, "version", snap.Version)
	data := map[string]interface{}{"uri": uri, "snapshotVersion": snap.Version}
	api.sendResponse(w, r, models.NewOKResponse(data, api.Clock))
}

func (b *DisruptionRequest) toDisruption(now time.Time) (*disruption.Disruption, error) {
	d := &disruption.Disruption{
		URI:       b.URI,
		Title:     b.Title,
		Cause:     b.Cause,
		Tags:      b.Tags,
		UpdatedAt: now,
	}
	for i, ir := range b.Impacts {
		im, err := ir.toImpact()
		if err != nil {
			return nil, fmt.Errorf("impacts[%d]: %w", i, err)
		}
		d.Impacts = append(d.Impacts, im)
	}
	return d, nil
}

func (ir *ImpactRequest) toImpact() (*disruption.Impact, error) {
	effect, err := disruption.ParseEffect(ir.Severity.Effect)
	if err != nil {
		return nil, err
	}
	level, err := timetable.ParseLevel(ir.Level)
	if err != nil {
		return nil, err
	}
	if level == timetable.LevelBase {
		level = timetable.LevelAdjusted
	}

	im := &disruption.Impact{
		Severity: disruption.Severity{
			Name:     ir.Severity.Name,
			Priority: ir.Severity.Priority,
			Effect:   effect,
		},
		Level:         level,
		Messages:      ir.Messages,
		PublishPeriod: disruption.Period{Start: ir.PublishPeriod.Begin, End: ir.PublishPeriod.End},
		ServiceDay:    -1,
	}
	for _, p := range ir.ApplicationPeriods {
		im.ApplicationPeriods = append(im.ApplicationPeriods, disruption.Period{Start: p.Begin, End: p.End})
	}

	if ir.Pattern != nil {
		pattern, err := ir.Pattern.toPattern()
		if err != nil {
			return nil, err
		}
		im.Pattern = pattern
	}

	for _, er := range ir.Entities {
		entity, err := er.toEntity()
		if err != nil {
			return nil, err
		}
		im.Entities = append(im.Entities, entity)
	}
	return im, nil
}

func (pr *PatternRequest) toPattern() (*disruption.WeeklyPattern, error) {
	p := &disruption.WeeklyPattern{Start: pr.Start, End: pr.End}
	for _, name := range pr.Weekdays {
		day, err := parseWeekday(name)
		if err != nil {
			return nil, err
		}
		p.Weekdays[day] = true
	}
	for _, slot := range pr.TimeSlots {
		begin, err := parseTimeOfDay(slot.Begin)
		if err != nil {
			return nil, err
		}
		end, err := parseTimeOfDay(slot.End)
		if err != nil {
			return nil, err
		}
		if end <= begin {
			return nil, fmt.Errorf("time slot %s-%s is empty", slot.Begin, slot.End)
		}
		p.TimeSlots = append(p.TimeSlots, disruption.TimeSlot{Begin: begin, End: end})
	}
	return p, nil
}

func (er *EntityRequest) toEntity() (disruption.InformedEntity, error) {
	kinds := map[string]disruption.EntityKind{
		"network":      disruption.KindNetwork,
		"line":         disruption.KindLine,
		"route":        disruption.KindRoute,
		"stop_area":    disruption.KindStopArea,
		"stop_point":   disruption.KindStopPoint,
		"trip":         disruption.KindTrip,
		"line_section": disruption.KindLineSection,
		"rail_section": disruption.KindRailSection,
	}
	kind := kinds[er.Type]
	entity := disruption.InformedEntity{Kind: kind, ID: er.ID}

	switch kind {
	case disruption.KindLineSection, disruption.KindRailSection:
		if er.Section == nil {
			return entity, fmt.Errorf("%s entity requires a section payload", er.Type)
		}
		entity.Section = &disruption.LineSection{
			Line:   er.Section.Line,
			Start:  er.Section.Start,
			End:    er.Section.End,
			Routes: er.Section.Routes,
			Stops:  er.Section.Stops,
		}
		// Section impacts are indexed under their owning line.
		entity.ID = er.Section.Line
	default:
		if er.ID == "" {
			return entity, fmt.Errorf("%s entity requires an id", er.Type)
		}
	}
	return entity, nil
}

func parseWeekday(name string) (time.Weekday, error) {
	days := map[string]time.Weekday{
		"sunday":    time.Sunday,
		"monday":    time.Monday,
		"tuesday":   time.Tuesday,
		"wednesday": time.Wednesday,
		"thursday":  time.Thursday,
		"friday":    time.Friday,
		"saturday":  time.Saturday,
	}
	day, ok := days[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", name)
	}
	return day, nil
}

// parseTimeOfDay converts "HH:MM" or "HH:MM:SS" to seconds since
// midnight.
func parseTimeOfDay(s string) (int32, error) {
	var h, m, sec int
	switch strings.Count(s, ":") {
	case 1:
		if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
			return 0, fmt.Errorf("bad time of day %q", s)
		}
	case 2:
		if _, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); err != nil {
			return 0, fmt.Errorf("bad time of day %q", s)
		}
	default:
		return 0, fmt.Errorf("bad time of day %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("bad time of day %q", s)
	}
	return int32(h*3600 + m*60 + sec), nil
}
