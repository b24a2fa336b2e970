package routing

import (
	"sort"
	"time"

	"wayfarer.opentransit.org/internal/timetable"
)

const (
	infinity  = int64(1) << 62
	secPerDay = 86400
)

type label struct {
	set      bool
	transfer bool
	at       int64 // unix seconds: arrival (forward) or departure (backward)
	depAt    int64 // when the leg producing this label left fromStop
	fromStop int
	trip     *timetable.Trip
}

func newLabels(n int) []label {
	out := make([]label, n)
	for i := range out {
		out[i].at = infinity
		out[i].fromStop = -1
	}
	return out
}

func newBackwardLabels(n int) []label {
	out := make([]label, n)
	for i := range out {
		out[i].at = -infinity
		out[i].fromStop = -1
	}
	return out
}

func cloneLabels(src []label) []label {
	out := make([]label, len(src))
	copy(out, src)
	return out
}

// Search runs the round-based relaxation and returns the Pareto set of
// journeys ordered by arrival time. Identical requests against the same
// snapshot always return identical results.
func (e *Engine) Search(req Request) ([]Journey, error) {
	rq := req.withDefaults()
	if err := rq.validate(len(e.snap.Graph.StopPoints)); err != nil {
		return nil, err
	}

	var journeys []Journey
	if rq.ArriveBy {
		journeys = e.searchBackward(&rq)
	} else {
		journeys = e.searchForward(&rq, rq.When)
		if rq.MinJourneys > 0 && rq.Timeframe > 0 {
			horizon := rq.When.Add(rq.Timeframe)
			next := nextProbe(journeys, rq.When)
			for len(journeys) < rq.MinJourneys && !next.IsZero() && next.Before(horizon) {
				more := e.searchForward(&rq, next)
				if len(more) == 0 {
					break
				}
				journeys = mergeJourneys(journeys, more)
				next = nextProbe(more, next)
			}
		}
	}

	journeys = truncateBacktracking(e.snap.Graph, journeys, rq.Destinations)
	journeys = dropOverLate(journeys, rq.MaxFactor, rq.BaseFactor)
	sortJourneys(journeys)
	e.attachImpacts(journeys, rq.Now)

	if len(journeys) == 0 {
		return nil, ErrNoSolution
	}
	return journeys, nil
}

func (e *Engine) searchForward(rq *Request, departAt time.Time) []Journey {
	g := e.snap.Graph
	n := len(g.StopPoints)
	rounds := rq.MaxTransfers + 1
	depart := departAt.Unix()

	labels := make([][]label, rounds+1)
	labels[0] = newLabels(n)
	marked := make([]bool, n)
	for _, o := range rq.Origins {
		at := depart + int64(o.Penalty)
		if at < labels[0][o.StopPoint].at {
			labels[0][o.StopPoint] = label{set: true, at: at, depAt: depart, fromStop: -1}
			marked[o.StopPoint] = true
		}
	}
	e.relaxForward(labels[0], marked, rq)

	for r := 1; r <= rounds; r++ {
		labels[r] = cloneLabels(labels[r-1])
		newMarked := make([]bool, n)

		for _, pi := range e.touchedPatterns(marked) {
			e.scanPatternForward(pi.pattern, pi.pos, labels[r-1], labels[r], newMarked, rq)
		}
		e.relaxForward(labels[r], newMarked, rq)

		marked = newMarked
		if !anyMarked(marked) {
			labels = labels[:r+1]
			break
		}
	}

	return e.collectForward(labels, rq)
}

// touchedPatterns returns, in stable pattern order, every pattern serving
// a marked stop with the smallest marked position.
func (e *Engine) touchedPatterns(marked []bool) []patternRef {
	minPos := make(map[int]int)
	for sp, ok := range marked {
		if !ok {
			continue
		}
		for _, ref := range e.atStop[sp] {
			if cur, seen := minPos[ref.pattern]; !seen || ref.pos < cur {
				minPos[ref.pattern] = ref.pos
			}
		}
	}
	out := make([]patternRef, 0, len(minPos))
	for pi, pos := range minPos {
		out = append(out, patternRef{pattern: pi, pos: pos})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].pattern < out[j].pattern })
	return out
}

func (e *Engine) scanPatternForward(pi, startPos int, prev, cur []label, newMarked []bool, rq *Request) {
	p := &e.patterns[pi]
	epochUnix := e.snap.Graph.Epoch.Unix()

	var onTrip *timetable.Trip
	var onDay, boardPos int
	var boardDep int64

	for pos := startPos; pos < len(p.stops); pos++ {
		sp := p.stops[pos]

		if onTrip != nil {
			st := &onTrip.StopTimes[pos]
			if !st.Skipped && st.DropOffAllowed {
				arr := epochUnix + int64(onDay)*secPerDay + int64(st.Arrival) + int64(st.AlightingDuration)
				if arr < cur[sp].at {
					cur[sp] = label{
						set: true, at: arr, depAt: boardDep,
						fromStop: p.stops[boardPos], trip: onTrip,
					}
					newMarked[sp] = true
				}
			}
		}

		if prev[sp].set {
			t, day, dep := e.earliestTrip(p, pos, prev[sp].at, rq)
			if t != nil && (onTrip == nil || dep < e.depAt(onTrip, onDay, pos)) {
				onTrip, onDay, boardPos, boardDep = t, day, pos, dep
			}
		}
	}
}

func (e *Engine) depAt(t *timetable.Trip, day, pos int) int64 {
	return e.snap.Graph.Epoch.Unix() + int64(day)*secPerDay + int64(t.StopTimes[pos].Departure)
}

// earliestTrip finds the first boardable run of the pattern at the
// position, probing every day offset the dataset's longest trip can span.
func (e *Engine) earliestTrip(p *pattern, pos int, readyAt int64, rq *Request) (*timetable.Trip, int, int64) {
	epochUnix := e.snap.Graph.Epoch.Unix()
	startDay := int((readyAt - epochUnix) / secPerDay)

	var best *timetable.Trip
	bestDep := infinity
	bestDay := 0
	for day := startDay - e.snap.MaxDayShift; day <= startDay+1; day++ {
		if day < 0 {
			continue
		}
		dayBase := epochUnix + int64(day)*secPerDay
		for _, t := range p.trips {
			st := &t.StopTimes[pos]
			if st.Skipped || !st.PickupAllowed {
				continue
			}
			dep := dayBase + int64(st.Departure)
			if dep-int64(st.BoardingDuration) < readyAt || dep >= bestDep {
				continue
			}
			if !t.RunsOn(day, rq.Level) || !e.tripAllowed(t, rq) {
				continue
			}
			best, bestDep, bestDay = t, dep, day
		}
	}
	return best, bestDay, bestDep
}

func (e *Engine) tripAllowed(t *timetable.Trip, rq *Request) bool {
	if rq.RequireAccessible && !t.Accessible {
		return false
	}
	if len(rq.Allowed) == 0 && len(rq.Forbidden) == 0 {
		return true
	}
	g := e.snap.Graph
	ids := make([]string, 0, 6)
	ids = append(ids, t.ID, t.GroupID)
	if t.Route >= 0 && t.Route < len(g.Routes) {
		route := g.Routes[t.Route]
		ids = append(ids, route.ID)
		if route.Line >= 0 && route.Line < len(g.Lines) {
			line := g.Lines[route.Line]
			ids = append(ids, line.ID)
			if line.Network >= 0 && line.Network < len(g.Networks) {
				ids = append(ids, g.Networks[line.Network].ID)
			}
		}
	}
	if t.PhysicalMode >= 0 && t.PhysicalMode < len(g.PhysicalModes) {
		ids = append(ids, g.PhysicalModes[t.PhysicalMode].ID)
	}

	if len(rq.Allowed) > 0 {
		allowed := false
		for _, id := range ids {
			if rq.Allowed[id] {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	for _, id := range ids {
		if rq.Forbidden[id] {
			return false
		}
	}
	return true
}

func (e *Engine) relaxForward(cur []label, marked []bool, rq *Request) {
	g := e.snap.Graph
	for sp := range marked {
		if !marked[sp] || !cur[sp].set || cur[sp].transfer {
			continue
		}
		for _, tr := range g.TransfersFrom[sp] {
			if tr.Duration > rq.WalkingCap {
				continue
			}
			at := cur[sp].at + int64(tr.Duration) + int64(rq.TransferPenalty)
			if at < cur[tr.To].at {
				cur[tr.To] = label{
					set: true, transfer: true, at: at,
					depAt: cur[sp].at, fromStop: sp,
				}
				marked[tr.To] = true
			}
		}
	}
}

// collectForward extracts the per-round Pareto frontier at the
// destinations: a journey survives only if it arrives strictly earlier
// than every journey using fewer transfers.
func (e *Engine) collectForward(labels [][]label, rq *Request) []Journey {
	var journeys []Journey
	bestArrival := infinity
	for r := 1; r < len(labels); r++ {
		bestStop, bestAt := -1, infinity
		var penalty int64
		for _, d := range rq.Destinations {
			lbl := labels[r][d.StopPoint]
			if !lbl.set || lbl.fromStop < 0 {
				continue
			}
			at := lbl.at + int64(d.Penalty)
			if at < bestAt {
				bestStop, bestAt, penalty = d.StopPoint, at, int64(d.Penalty)
			}
		}
		if bestStop < 0 || bestAt >= bestArrival {
			continue
		}
		bestArrival = bestAt
		if j, ok := e.reconstructForward(labels, r, bestStop, penalty, rq); ok {
			journeys = append(journeys, j)
		}
	}
	return journeys
}

func (e *Engine) reconstructForward(labels [][]label, round, stop int, penalty int64, rq *Request) (Journey, bool) {
	var sections []Section
	cur := labels[round][stop]
	r := round
	at := stop
	for cur.fromStop >= 0 {
		sec := Section{
			FromStop:  cur.fromStop,
			ToStop:    at,
			Departure: time.Unix(cur.depAt, 0).UTC(),
			Arrival:   time.Unix(cur.at, 0).UTC(),
		}
		if cur.transfer {
			sec.Kind = SectionTransfer
		} else {
			sec.Kind = SectionPublicTransport
			sec.Trip = cur.trip
			r--
		}
		sections = append(sections, sec)
		at = cur.fromStop
		if r < 0 || len(sections) > len(labels)*8 {
			return Journey{}, false
		}
		cur = labels[r][at]
	}
	if len(sections) == 0 {
		return Journey{}, false
	}
	for i, j := 0, len(sections)-1; i < j; i, j = i+1, j-1 {
		sections[i], sections[j] = sections[j], sections[i]
	}
	transfers := 0
	for _, s := range sections {
		if s.Kind == SectionPublicTransport {
			transfers++
		}
	}
	return Journey{
		Sections:  sections,
		Departure: sections[0].Departure,
		Arrival:   sections[len(sections)-1].Arrival.Add(time.Duration(penalty) * time.Second),
		Transfers: transfers - 1,
		Level:     rq.Level,
	}, true
}

// searchBackward mirrors the forward scan with latest-departure labels:
// a stop's label is the latest instant one can leave it and still reach a
// destination by the target time.
func (e *Engine) searchBackward(rq *Request) []Journey {
	g := e.snap.Graph
	n := len(g.StopPoints)
	rounds := rq.MaxTransfers + 1
	arriveBy := rq.When.Unix()

	labels := make([][]label, rounds+1)
	labels[0] = newBackwardLabels(n)
	marked := make([]bool, n)
	for _, d := range rq.Destinations {
		at := arriveBy - int64(d.Penalty)
		if at > labels[0][d.StopPoint].at {
			labels[0][d.StopPoint] = label{set: true, at: at, depAt: arriveBy, fromStop: -1}
			marked[d.StopPoint] = true
		}
	}
	e.relaxBackward(labels[0], marked, rq)

	for r := 1; r <= rounds; r++ {
		labels[r] = cloneLabels(labels[r-1])
		newMarked := make([]bool, n)
		for _, pi := range e.touchedPatterns(marked) {
			e.scanPatternBackward(pi.pattern, labels[r-1], labels[r], newMarked, rq)
		}
		e.relaxBackward(labels[r], newMarked, rq)
		marked = newMarked
		if !anyMarked(marked) {
			labels = labels[:r+1]
			break
		}
	}

	return e.collectBackward(labels, rq)
}

func (e *Engine) scanPatternBackward(pi int, prev, cur []label, newMarked []bool, rq *Request) {
	p := &e.patterns[pi]
	epochUnix := e.snap.Graph.Epoch.Unix()

	var onTrip *timetable.Trip
	var onDay, alightPos int
	var alightArr int64

	for pos := len(p.stops) - 1; pos >= 0; pos-- {
		sp := p.stops[pos]

		if onTrip != nil {
			st := &onTrip.StopTimes[pos]
			if !st.Skipped && st.PickupAllowed {
				dep := epochUnix + int64(onDay)*secPerDay + int64(st.Departure) - int64(st.BoardingDuration)
				if dep > cur[sp].at {
					cur[sp] = label{
						set: true, at: dep, depAt: alightArr,
						fromStop: p.stops[alightPos], trip: onTrip,
					}
					newMarked[sp] = true
				}
			}
		}

		if prev[sp].set {
			t, day, arr := e.latestTrip(p, pos, prev[sp].at, rq)
			if t != nil && (onTrip == nil || arr > e.arrAt(onTrip, onDay, pos)) {
				onTrip, onDay, alightPos, alightArr = t, day, pos, arr
			}
		}
	}
}

func (e *Engine) arrAt(t *timetable.Trip, day, pos int) int64 {
	return e.snap.Graph.Epoch.Unix() + int64(day)*secPerDay + int64(t.StopTimes[pos].Arrival)
}

func (e *Engine) latestTrip(p *pattern, pos int, leaveBy int64, rq *Request) (*timetable.Trip, int, int64) {
	epochUnix := e.snap.Graph.Epoch.Unix()
	startDay := int((leaveBy - epochUnix) / secPerDay)

	var best *timetable.Trip
	bestArr := -infinity
	bestDay := 0
	for day := startDay - e.snap.MaxDayShift; day <= startDay+1; day++ {
		if day < 0 {
			continue
		}
		dayBase := epochUnix + int64(day)*secPerDay
		for _, t := range p.trips {
			st := &t.StopTimes[pos]
			if st.Skipped || !st.DropOffAllowed {
				continue
			}
			arr := dayBase + int64(st.Arrival)
			if arr+int64(st.AlightingDuration) > leaveBy || arr <= bestArr {
				continue
			}
			if !t.RunsOn(day, rq.Level) || !e.tripAllowed(t, rq) {
				continue
			}
			best, bestArr, bestDay = t, arr, day
		}
	}
	return best, bestDay, bestArr
}

func (e *Engine) relaxBackward(cur []label, marked []bool, rq *Request) {
	for sp := range marked {
		if !marked[sp] || !cur[sp].set || cur[sp].transfer {
			continue
		}
		for _, tr := range e.transfersTo[sp] {
			if tr.Duration > rq.WalkingCap {
				continue
			}
			at := cur[sp].at - int64(tr.Duration) - int64(rq.TransferPenalty)
			if at > cur[tr.From].at {
				cur[tr.From] = label{
					set: true, transfer: true, at: at,
					depAt: cur[sp].at, fromStop: sp,
				}
				marked[tr.From] = true
			}
		}
	}
}

func (e *Engine) collectBackward(labels [][]label, rq *Request) []Journey {
	var journeys []Journey
	bestDeparture := -infinity
	for r := 1; r < len(labels); r++ {
		bestStop, bestAt := -1, -infinity
		for _, o := range rq.Origins {
			lbl := labels[r][o.StopPoint]
			if !lbl.set || lbl.fromStop < 0 {
				continue
			}
			at := lbl.at - int64(o.Penalty)
			if at > bestAt {
				bestStop, bestAt = o.StopPoint, at
			}
		}
		if bestStop < 0 || bestAt <= bestDeparture {
			continue
		}
		bestDeparture = bestAt
		if j, ok := e.reconstructBackward(labels, r, bestStop, rq); ok {
			journeys = append(journeys, j)
		}
	}
	return journeys
}

func (e *Engine) reconstructBackward(labels [][]label, round, stop int, rq *Request) (Journey, bool) {
	var sections []Section
	cur := labels[round][stop]
	r := round
	at := stop
	for cur.fromStop >= 0 {
		sec := Section{
			FromStop:  at,
			ToStop:    cur.fromStop,
			Departure: time.Unix(cur.at, 0).UTC(),
			Arrival:   time.Unix(cur.depAt, 0).UTC(),
		}
		if cur.transfer {
			sec.Kind = SectionTransfer
		} else {
			sec.Kind = SectionPublicTransport
			sec.Trip = cur.trip
			r--
		}
		sections = append(sections, sec)
		at = cur.fromStop
		if r < 0 || len(sections) > len(labels)*8 {
			return Journey{}, false
		}
		cur = labels[r][at]
	}
	if len(sections) == 0 {
		return Journey{}, false
	}
	transfers := 0
	for _, s := range sections {
		if s.Kind == SectionPublicTransport {
			transfers++
		}
	}
	return Journey{
		Sections:  sections,
		Departure: sections[0].Departure,
		Arrival:   sections[len(sections)-1].Arrival,
		Transfers: transfers - 1,
		Level:     rq.Level,
	}, true
}

func anyMarked(marked []bool) bool {
	for _, m := range marked {
		if m {
			return true
		}
	}
	return false
}
