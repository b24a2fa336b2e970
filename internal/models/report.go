package models

import (
	"time"

	"wayfarer.opentransit.org/internal/disruption"
	"wayfarer.opentransit.org/internal/report"
	"wayfarer.opentransit.org/internal/timetable"
)

// ImpactModel is the JSON shape of one disruption impact.
type ImpactModel struct {
	ID                 string        `json:"id"`
	DisruptionURI      string        `json:"disruptionUri"`
	Severity           SeverityModel `json:"severity"`
	Status             string        `json:"status"`
	Messages           []string      `json:"messages,omitempty"`
	ApplicationPeriods []PeriodModel `json:"applicationPeriods"`
}

type SeverityModel struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Effect   string `json:"effect"`
}

type PeriodModel struct {
	Begin string `json:"begin"`
	End   string `json:"end"`
}

// TrafficReportModel groups impacts by network.
type TrafficReportModel struct {
	Networks   []NetworkReportModel `json:"networks"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"pageSize"`
	TotalCount int                  `json:"totalCount"`
}

type NetworkReportModel struct {
	Network   EntityRef             `json:"network"`
	Impacts   []ImpactModel         `json:"impacts,omitempty"`
	Lines     []LineReportModel     `json:"lines,omitempty"`
	StopAreas []StopAreaReportModel `json:"stopAreas,omitempty"`
	Trips     []TripReportModel     `json:"trips,omitempty"`
}

type LineReportModel struct {
	Line    EntityRef     `json:"line"`
	Code    string        `json:"code,omitempty"`
	Routes  []EntityRef   `json:"routes,omitempty"`
	Impacts []ImpactModel `json:"impacts"`
}

type StopAreaReportModel struct {
	StopArea EntityRef     `json:"stopArea"`
	Impacts  []ImpactModel `json:"impacts"`
}

type TripReportModel struct {
	TripID  string        `json:"tripId"`
	Impacts []ImpactModel `json:"impacts"`
}

// LineReportsModel is the line-keyed listing.
type LineReportsModel struct {
	Lines      []LineReportModel `json:"lineReports"`
	Page       int               `json:"page"`
	PageSize   int               `json:"pageSize"`
	TotalCount int               `json:"totalCount"`
}

// EntityRef is a minimal id/name pair.
type EntityRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NewTrafficReportModel converts a built report to its response shape.
func NewTrafficReportModel(g *timetable.Graph, rep *report.TrafficReport, now time.Time) TrafficReportModel {
	out := TrafficReportModel{
		Networks:   make([]NetworkReportModel, 0, len(rep.Networks)),
		Page:       rep.Page,
		PageSize:   rep.PageSize,
		TotalCount: rep.TotalCount,
	}
	for _, ns := range rep.Networks {
		nm := NetworkReportModel{
			Network: EntityRef{ID: g.Networks[ns.Network].ID, Name: g.Networks[ns.Network].Name},
			Impacts: newImpactModels(ns.Impacts, now),
		}
		for _, ls := range ns.Lines {
			nm.Lines = append(nm.Lines, newLineReportModel(g, ls, now))
		}
		for _, st := range ns.StopAreas {
			nm.StopAreas = append(nm.StopAreas, StopAreaReportModel{
				StopArea: EntityRef{ID: g.StopAreas[st.StopArea].ID, Name: g.StopAreas[st.StopArea].Name},
				Impacts:  newImpactModels(st.Impacts, now),
			})
		}
		for _, ts := range ns.Trips {
			nm.Trips = append(nm.Trips, TripReportModel{
				TripID:  ts.GroupID,
				Impacts: newImpactModels(ts.Impacts, now),
			})
		}
		out.Networks = append(out.Networks, nm)
	}
	return out
}

// NewLineReportsModel converts a line report to its response shape.
func NewLineReportsModel(g *timetable.Graph, rep *report.LineReport, now time.Time) LineReportsModel {
	out := LineReportsModel{
		Lines:      make([]LineReportModel, 0, len(rep.Lines)),
		Page:       rep.Page,
		PageSize:   rep.PageSize,
		TotalCount: rep.TotalCount,
	}
	for _, ls := range rep.Lines {
		out.Lines = append(out.Lines, newLineReportModel(g, ls, now))
	}
	return out
}

func newLineReportModel(g *timetable.Graph, ls report.LineStatus, now time.Time) LineReportModel {
	line := g.Lines[ls.Line]
	m := LineReportModel{
		Line:    EntityRef{ID: line.ID, Name: line.Name},
		Code:    line.Code,
		Impacts: newImpactModels(ls.Impacts, now),
	}
	for _, ri := range ls.Routes {
		m.Routes = append(m.Routes, EntityRef{ID: g.Routes[ri].ID, Name: g.Routes[ri].Name})
	}
	return m
}

func newImpactModels(impacts []*disruption.Impact, now time.Time) []ImpactModel {
	out := make([]ImpactModel, 0, len(impacts))
	for _, im := range impacts {
		m := ImpactModel{
			ID:            im.ID,
			DisruptionURI: im.DisruptionURI,
			Severity: SeverityModel{
				Name:     im.Severity.Name,
				Priority: im.Severity.Priority,
				Effect:   im.Severity.Effect.String(),
			},
			Status:   im.ActiveStatusFor(now, now).String(),
			Messages: im.Messages,
		}
		for _, p := range im.ApplicationPeriods {
			m.ApplicationPeriods = append(m.ApplicationPeriods, PeriodModel{
				Begin: p.Start.Format(apiTimeLayout),
				End:   p.End.Format(apiTimeLayout),
			})
		}
		out = append(out, m)
	}
	return out
}
