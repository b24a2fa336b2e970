package models

import (
	"wayfarer.opentransit.org/internal/proximity"
	"wayfarer.opentransit.org/internal/timetable"
)

// NearbyStopModel is one result of a nearby-stops query.
type NearbyStopModel struct {
	StopRef
	StopAreaID string  `json:"stopAreaId,omitempty"`
	Distance   float64 `json:"distance"`
}

// NewNearbyStopModels converts proximity results to their response shape.
func NewNearbyStopModels(g *timetable.Graph, results []proximity.Result) []NearbyStopModel {
	out := make([]NearbyStopModel, 0, len(results))
	for _, r := range results {
		sp := g.StopPoints[r.StopPoint]
		m := NearbyStopModel{
			StopRef:  StopRef{ID: sp.ID, Name: sp.Name, Lat: sp.Lat, Lon: sp.Lon},
			Distance: r.Meters,
		}
		if sp.StopArea >= 0 && sp.StopArea < len(g.StopAreas) {
			m.StopAreaID = g.StopAreas[sp.StopArea].ID
		}
		out = append(out, m)
	}
	return out
}
