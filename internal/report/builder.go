package report

import (
	"errors"
	"sort"
	"time"

	"wayfarer.opentransit.org/internal/disruption"
	"wayfarer.opentransit.org/internal/timetable"
	"wayfarer.opentransit.org/internal/transit"
)

// ErrNoResult means a non-trivial filter resolved to nothing. It is
// distinct from a valid page that happens to be empty.
var ErrNoResult = errors.New("filter matched no reportable entity")

// Params selects and pages a report.
type Params struct {
	Filter        string
	ForbiddenURIs map[string]bool
	Since         *time.Time
	Until         *time.Time
	// Statuses restricts impacts by active status; empty means all.
	Statuses map[disruption.ActiveStatus]bool
	Now      time.Time
	Page     int
	PageSize int
}

// LineStatus is a line with its routes and every impact touching it,
// including section impacts walked back to the owning line.
type LineStatus struct {
	Line    int
	Routes  []int
	Impacts []*disruption.Impact
}

// StopAreaStatus aggregates an area's own impacts with its members'.
type StopAreaStatus struct {
	StopArea int
	Impacts  []*disruption.Impact
}

// TripStatus lists a trip group whose worst applicable effect is
// no-service.
type TripStatus struct {
	GroupID string
	Impacts []*disruption.Impact
}

// NetworkStatus is one network's slice of a traffic report.
type NetworkStatus struct {
	Network   int
	Impacts   []*disruption.Impact
	Lines     []LineStatus
	StopAreas []StopAreaStatus
	Trips     []TripStatus
}

// TrafficReport is the grouped-by-network listing, paged over networks.
type TrafficReport struct {
	Networks   []NetworkStatus
	Page       int
	PageSize   int
	TotalCount int
}

// LineReport is the same material keyed by line, paged over lines.
type LineReport struct {
	Lines      []LineStatus
	Page       int
	PageSize   int
	TotalCount int
}

// Builder assembles reports against one snapshot.
type Builder struct {
	snap *transit.Snapshot
	eval Evaluator
}

func NewBuilder(snap *transit.Snapshot, eval Evaluator) *Builder {
	if eval == nil {
		eval = DefaultEvaluator{}
	}
	return &Builder{snap: snap, eval: eval}
}

// TrafficReport builds the network-grouped listing. Networks keep their
// stable graph order; lines within a network sort by most severe impact
// first, then code, then name.
func (b *Builder) TrafficReport(p Params) (*TrafficReport, error) {
	sel, err := b.eval.Evaluate(b.snap.Graph, p.Filter)
	if err != nil {
		return nil, err
	}
	if sel.Empty() {
		return nil, ErrNoResult
	}
	ctx := b.newQuery(p)

	var statuses []NetworkStatus
	for ni := range b.snap.Graph.Networks {
		if sel.Networks != nil && !sel.Networks[ni] {
			continue
		}
		ns := b.networkStatus(ctx, sel, ni)
		if !ns.empty() {
			statuses = append(statuses, ns)
		}
	}

	if len(statuses) == 0 && !sel.Unrestricted() {
		return nil, ErrNoResult
	}

	total := len(statuses)
	statuses = page(statuses, p.Page, p.PageSize)
	return &TrafficReport{
		Networks:   statuses,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalCount: total,
	}, nil
}

// LineReport builds the line-keyed listing over every matched line.
func (b *Builder) LineReport(p Params) (*LineReport, error) {
	sel, err := b.eval.Evaluate(b.snap.Graph, p.Filter)
	if err != nil {
		return nil, err
	}
	if sel.Empty() {
		return nil, ErrNoResult
	}
	ctx := b.newQuery(p)

	var lines []LineStatus
	for li := range b.snap.Graph.Lines {
		if !lineSelected(sel, b.snap.Graph, li) {
			continue
		}
		ls := b.lineStatus(ctx, li)
		if len(ls.Impacts) > 0 {
			lines = append(lines, ls)
		}
	}
	if len(lines) == 0 && !sel.Unrestricted() {
		return nil, ErrNoResult
	}

	b.sortLines(lines)
	total := len(lines)
	lines = page(lines, p.Page, p.PageSize)
	return &LineReport{
		Lines:      lines,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalCount: total,
	}, nil
}

type query struct {
	now      time.Time
	window   disruption.Period
	since    time.Time
	until    time.Time
	statuses map[disruption.ActiveStatus]bool
	banned   map[string]bool
}

// distantPast and distantFuture bound open-ended report windows.
var (
	distantPast   = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	distantFuture = time.Date(2200, 1, 1, 0, 0, 0, 0, time.UTC)
)

func (b *Builder) newQuery(p Params) *query {
	q := &query{
		now:      p.Now,
		since:    distantPast,
		until:    distantFuture,
		statuses: p.Statuses,
		banned:   p.ForbiddenURIs,
	}
	if q.now.IsZero() {
		q.now = time.Now().UTC()
	}
	if p.Since != nil {
		q.since = *p.Since
	}
	if p.Until != nil {
		q.until = *p.Until
	}
	q.window = disruption.Period{Start: q.since, End: q.until}
	return q
}

// visible applies the applicability window, status filter and forbidden
// set to one impact.
func (q *query) visible(im *disruption.Impact) bool {
	if q.banned[im.DisruptionURI] {
		return false
	}
	if !im.IsApplicable(q.now, q.window) {
		return false
	}
	// Status classifies against now, not the window: a tomorrow-only
	// impact inside the window is future, not active.
	if len(q.statuses) > 0 && !q.statuses[im.ActiveStatusFor(q.now, q.now)] {
		return false
	}
	return true
}

func (b *Builder) collect(q *query, kind disruption.EntityKind, id string) []*disruption.Impact {
	var out []*disruption.Impact
	for _, im := range b.snap.Disruptions.ImpactsFor(kind, id) {
		if q.visible(im) {
			out = append(out, im)
		}
	}
	return out
}

func (b *Builder) networkStatus(q *query, sel *Selection, ni int) NetworkStatus {
	g := b.snap.Graph
	ns := NetworkStatus{Network: ni}
	ns.Impacts = b.collect(q, disruption.KindNetwork, g.Networks[ni].ID)

	for li, line := range g.Lines {
		if line.Network != ni {
			continue
		}
		if !lineSelected(sel, g, li) {
			continue
		}
		ls := b.lineStatus(q, li)
		if len(ls.Impacts) > 0 {
			ns.Lines = append(ns.Lines, ls)
		}
	}
	b.sortLines(ns.Lines)

	for sa := range b.areasOfNetwork(ni) {
		if sel.StopAreas != nil && !sel.StopAreas[sa] {
			continue
		}
		st := b.stopAreaStatus(q, sa)
		if len(st.Impacts) > 0 {
			ns.StopAreas = append(ns.StopAreas, st)
		}
	}
	sort.Slice(ns.StopAreas, func(i, j int) bool { return ns.StopAreas[i].StopArea < ns.StopAreas[j].StopArea })

	ns.Trips = b.noServiceTrips(q, ni)
	return ns
}

func (ns *NetworkStatus) empty() bool {
	return len(ns.Impacts) == 0 && len(ns.Lines) == 0 && len(ns.StopAreas) == 0 && len(ns.Trips) == 0
}

// lineStatus gathers a line's impacts: its own, its sections' (walked
// back to the line) and its routes'.
func (b *Builder) lineStatus(q *query, li int) LineStatus {
	g := b.snap.Graph
	line := g.Lines[li]
	ls := LineStatus{Line: li, Routes: line.Routes}

	ls.Impacts = append(ls.Impacts, b.collect(q, disruption.KindLine, line.ID)...)
	ls.Impacts = append(ls.Impacts, b.collect(q, disruption.KindLineSection, line.ID)...)
	ls.Impacts = append(ls.Impacts, b.collect(q, disruption.KindRailSection, line.ID)...)
	for _, ri := range line.Routes {
		ls.Impacts = append(ls.Impacts, b.collect(q, disruption.KindRoute, g.Routes[ri].ID)...)
	}
	ls.Impacts = dedupeImpacts(ls.Impacts)
	return ls
}

func (b *Builder) stopAreaStatus(q *query, sa int) StopAreaStatus {
	g := b.snap.Graph
	st := StopAreaStatus{StopArea: sa}
	st.Impacts = append(st.Impacts, b.collect(q, disruption.KindStopArea, g.StopAreas[sa].ID)...)
	for _, spi := range g.StopAreas[sa].StopPoints {
		st.Impacts = append(st.Impacts, b.collect(q, disruption.KindStopPoint, g.StopPoints[spi].ID)...)
	}
	st.Impacts = dedupeImpacts(st.Impacts)
	return st
}

// noServiceTrips lists the network's trip groups whose worst applicable
// effect is a full stop.
func (b *Builder) noServiceTrips(q *query, ni int) []TripStatus {
	g := b.snap.Graph
	var out []TripStatus
	b.snap.Variants.Each(func(group *timetable.TripVariantGroup) bool {
		trip := group.Base
		if trip == nil {
			if len(group.Realtime) == 0 {
				return true
			}
			trip = group.Realtime[0]
		}
		if networkOfTrip(g, trip) != ni {
			return true
		}
		impacts := b.collect(q, disruption.KindTrip, group.ID)
		if len(impacts) == 0 {
			return true
		}
		worst := impacts[0]
		for _, im := range impacts[1:] {
			if im.Severity.Priority < worst.Severity.Priority {
				worst = im
			}
		}
		if worst.Severity.Effect == disruption.EffectNoService {
			out = append(out, TripStatus{GroupID: group.ID, Impacts: impacts})
		}
		return true
	})
	return out
}

func networkOfTrip(g *timetable.Graph, t *timetable.Trip) int {
	if t.Route < 0 || t.Route >= len(g.Routes) {
		return -1
	}
	line := g.Routes[t.Route].Line
	if line < 0 || line >= len(g.Lines) {
		return -1
	}
	return g.Lines[line].Network
}

// areasOfNetwork derives which stop areas a network serves from its
// trips' stop sequences.
func (b *Builder) areasOfNetwork(ni int) map[int]bool {
	g := b.snap.Graph
	areas := make(map[int]bool)
	b.snap.Variants.Each(func(group *timetable.TripVariantGroup) bool {
		for _, t := range group.Members() {
			if networkOfTrip(g, t) != ni {
				continue
			}
			for _, st := range t.StopTimes {
				if a := g.StopAreaOf(st.StopPoint); a >= 0 {
					areas[a] = true
				}
			}
		}
		return true
	})
	return areas
}

// sortLines orders by most severe impact first, then code, then name.
func (b *Builder) sortLines(lines []LineStatus) {
	g := b.snap.Graph
	minPriority := func(ls *LineStatus) int {
		min := int(^uint(0) >> 1)
		for _, im := range ls.Impacts {
			if im.Severity.Priority < min {
				min = im.Severity.Priority
			}
		}
		return min
	}
	sort.SliceStable(lines, func(i, j int) bool {
		pi, pj := minPriority(&lines[i]), minPriority(&lines[j])
		if pi != pj {
			return pi < pj
		}
		li, lj := g.Lines[lines[i].Line], g.Lines[lines[j].Line]
		if li.Code != lj.Code {
			return li.Code < lj.Code
		}
		return li.Name < lj.Name
	})
}

func lineSelected(sel *Selection, g *timetable.Graph, li int) bool {
	if sel.Lines != nil {
		return sel.Lines[li]
	}
	if sel.Routes != nil {
		for _, ri := range g.Lines[li].Routes {
			if sel.Routes[ri] {
				return true
			}
		}
		return false
	}
	return true
}

func dedupeImpacts(impacts []*disruption.Impact) []*disruption.Impact {
	seen := make(map[string]bool, len(impacts))
	out := impacts[:0]
	for _, im := range impacts {
		if seen[im.ID] {
			continue
		}
		seen[im.ID] = true
		out = append(out, im)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq() < out[j].Seq() })
	return out
}

func page[T any](items []T, pageIdx, size int) []T {
	if size <= 0 {
		return items
	}
	start := pageIdx * size
	if start >= len(items) {
		return nil
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
