package timetable

import (
	"fmt"
	"time"
)

// Graph is the base timetable's entity universe. It is built once and then
// treated as immutable; realtime trip creation extends a batch-local copy
// which becomes visible only when the batch commits.
type Graph struct {
	Epoch time.Time

	Networks        []Network
	CommercialModes []CommercialMode
	PhysicalModes   []PhysicalMode
	Companies       []Company
	Datasets        []Dataset
	Lines           []Line
	Routes          []Route
	StopAreas       []StopArea
	StopPoints      []StopPoint

	// TransfersFrom[i] lists the walkable connections leaving stop point i.
	TransfersFrom [][]Transfer

	networkIdx        map[string]int
	commercialModeIdx map[string]int
	physicalModeIdx   map[string]int
	companyIdx        map[string]int
	datasetIdx        map[string]int
	lineIdx           map[string]int
	routeIdx          map[string]int
	stopAreaIdx       map[string]int
	stopPointIdx      map[string]int
}

// NewGraph returns an empty graph anchored to the given epoch date.
func NewGraph(epoch time.Time) *Graph {
	return &Graph{
		Epoch:             epoch,
		networkIdx:        make(map[string]int),
		commercialModeIdx: make(map[string]int),
		physicalModeIdx:   make(map[string]int),
		companyIdx:        make(map[string]int),
		datasetIdx:        make(map[string]int),
		lineIdx:           make(map[string]int),
		routeIdx:          make(map[string]int),
		stopAreaIdx:       make(map[string]int),
		stopPointIdx:      make(map[string]int),
	}
}

// AddNetwork inserts or returns the existing index for the id.
func (g *Graph) AddNetwork(n Network) int {
	if i, ok := g.networkIdx[n.ID]; ok {
		return i
	}
	g.Networks = append(g.Networks, n)
	i := len(g.Networks) - 1
	g.networkIdx[n.ID] = i
	return i
}

func (g *Graph) AddCommercialMode(m CommercialMode) int {
	if i, ok := g.commercialModeIdx[m.ID]; ok {
		return i
	}
	g.CommercialModes = append(g.CommercialModes, m)
	i := len(g.CommercialModes) - 1
	g.commercialModeIdx[m.ID] = i
	return i
}

func (g *Graph) AddPhysicalMode(m PhysicalMode) int {
	if i, ok := g.physicalModeIdx[m.ID]; ok {
		return i
	}
	g.PhysicalModes = append(g.PhysicalModes, m)
	i := len(g.PhysicalModes) - 1
	g.physicalModeIdx[m.ID] = i
	return i
}

func (g *Graph) AddCompany(c Company) int {
	if i, ok := g.companyIdx[c.ID]; ok {
		return i
	}
	g.Companies = append(g.Companies, c)
	i := len(g.Companies) - 1
	g.companyIdx[c.ID] = i
	return i
}

func (g *Graph) AddDataset(d Dataset) int {
	if i, ok := g.datasetIdx[d.ID]; ok {
		return i
	}
	g.Datasets = append(g.Datasets, d)
	i := len(g.Datasets) - 1
	g.datasetIdx[d.ID] = i
	return i
}

func (g *Graph) AddLine(l Line) int {
	if i, ok := g.lineIdx[l.ID]; ok {
		return i
	}
	g.Lines = append(g.Lines, l)
	i := len(g.Lines) - 1
	g.lineIdx[l.ID] = i
	return i
}

// AddRoute inserts a route and links it to its line.
func (g *Graph) AddRoute(r Route) int {
	if i, ok := g.routeIdx[r.ID]; ok {
		return i
	}
	g.Routes = append(g.Routes, r)
	i := len(g.Routes) - 1
	g.routeIdx[r.ID] = i
	if r.Line >= 0 && r.Line < len(g.Lines) {
		g.Lines[r.Line].Routes = append(g.Lines[r.Line].Routes, i)
	}
	return i
}

func (g *Graph) AddStopArea(sa StopArea) int {
	if i, ok := g.stopAreaIdx[sa.ID]; ok {
		return i
	}
	g.StopAreas = append(g.StopAreas, sa)
	i := len(g.StopAreas) - 1
	g.stopAreaIdx[sa.ID] = i
	return i
}

// AddStopPoint inserts a stop point and links it to its stop area.
func (g *Graph) AddStopPoint(sp StopPoint) int {
	if i, ok := g.stopPointIdx[sp.ID]; ok {
		return i
	}
	g.StopPoints = append(g.StopPoints, sp)
	i := len(g.StopPoints) - 1
	g.stopPointIdx[sp.ID] = i
	g.TransfersFrom = append(g.TransfersFrom, nil)
	if sp.StopArea >= 0 && sp.StopArea < len(g.StopAreas) {
		g.StopAreas[sp.StopArea].StopPoints = append(g.StopAreas[sp.StopArea].StopPoints, i)
	}
	return i
}

// AddTransfer records a walkable connection between two stop points.
func (g *Graph) AddTransfer(t Transfer) error {
	if t.From < 0 || t.From >= len(g.StopPoints) || t.To < 0 || t.To >= len(g.StopPoints) {
		return fmt.Errorf("transfer references unknown stop point (%d -> %d)", t.From, t.To)
	}
	g.TransfersFrom[t.From] = append(g.TransfersFrom[t.From], t)
	return nil
}

func (g *Graph) NetworkIndex(id string) (int, bool)        { i, ok := g.networkIdx[id]; return i, ok }
func (g *Graph) CommercialModeIndex(id string) (int, bool) { i, ok := g.commercialModeIdx[id]; return i, ok }
func (g *Graph) PhysicalModeIndex(id string) (int, bool)   { i, ok := g.physicalModeIdx[id]; return i, ok }
func (g *Graph) CompanyIndex(id string) (int, bool)        { i, ok := g.companyIdx[id]; return i, ok }
func (g *Graph) DatasetIndex(id string) (int, bool)        { i, ok := g.datasetIdx[id]; return i, ok }
func (g *Graph) LineIndex(id string) (int, bool)           { i, ok := g.lineIdx[id]; return i, ok }
func (g *Graph) RouteIndex(id string) (int, bool)          { i, ok := g.routeIdx[id]; return i, ok }
func (g *Graph) StopAreaIndex(id string) (int, bool)       { i, ok := g.stopAreaIdx[id]; return i, ok }
func (g *Graph) StopPointIndex(id string) (int, bool)      { i, ok := g.stopPointIdx[id]; return i, ok }

// StopAreaOf returns the stop area index for a stop point index.
func (g *Graph) StopAreaOf(stopPoint int) int {
	if stopPoint < 0 || stopPoint >= len(g.StopPoints) {
		return -1
	}
	return g.StopPoints[stopPoint].StopArea
}

// Clone returns a copy whose entity slices and index maps can be extended
// without affecting the original. Entity values themselves are copied by
// value; nested index slices (line routes, area stop points) are copied
// shallowly and only appended to.
func (g *Graph) Clone() *Graph {
	out := NewGraph(g.Epoch)
	out.Networks = append([]Network(nil), g.Networks...)
	out.CommercialModes = append([]CommercialMode(nil), g.CommercialModes...)
	out.PhysicalModes = append([]PhysicalMode(nil), g.PhysicalModes...)
	out.Companies = append([]Company(nil), g.Companies...)
	out.Datasets = append([]Dataset(nil), g.Datasets...)
	out.Lines = make([]Line, len(g.Lines))
	for i, l := range g.Lines {
		l.Routes = append([]int(nil), l.Routes...)
		out.Lines[i] = l
	}
	out.Routes = append([]Route(nil), g.Routes...)
	out.StopAreas = make([]StopArea, len(g.StopAreas))
	for i, sa := range g.StopAreas {
		sa.StopPoints = append([]int(nil), sa.StopPoints...)
		out.StopAreas[i] = sa
	}
	out.StopPoints = append([]StopPoint(nil), g.StopPoints...)
	out.TransfersFrom = make([][]Transfer, len(g.TransfersFrom))
	for i, ts := range g.TransfersFrom {
		out.TransfersFrom[i] = append([]Transfer(nil), ts...)
	}
	for id, i := range g.networkIdx {
		out.networkIdx[id] = i
	}
	for id, i := range g.commercialModeIdx {
		out.commercialModeIdx[id] = i
	}
	for id, i := range g.physicalModeIdx {
		out.physicalModeIdx[id] = i
	}
	for id, i := range g.companyIdx {
		out.companyIdx[id] = i
	}
	for id, i := range g.datasetIdx {
		out.datasetIdx[id] = i
	}
	for id, i := range g.lineIdx {
		out.lineIdx[id] = i
	}
	for id, i := range g.routeIdx {
		out.routeIdx[id] = i
	}
	for id, i := range g.stopAreaIdx {
		out.stopAreaIdx[id] = i
	}
	for id, i := range g.stopPointIdx {
		out.stopPointIdx[id] = i
	}
	return out
}
