// Package report builds disruption listings grouped by network or line,
// filtered through entity predicates and applicability windows.
package report

import (
	"fmt"
	"strings"

	"wayfarer.opentransit.org/internal/timetable"
)

// FilterErrorKind separates "could not parse" from "parsed but invalid",
// so the API layer can word the two differently.
type FilterErrorKind uint8

const (
	FilterParse FilterErrorKind = iota
	FilterBadPredicate
)

func (k FilterErrorKind) String() string {
	if k == FilterParse {
		return "parse"
	}
	return "bad_predicate"
}

// FilterError is the typed failure of an entity filter.
type FilterError struct {
	Kind   FilterErrorKind
	Filter string
	Reason string
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("filter %q: %s error: %s", e.Filter, e.Kind, e.Reason)
}

// Selection is the resolved index sets of a filter. A nil set means the
// object type is unrestricted.
type Selection struct {
	Networks   map[int]bool
	Lines      map[int]bool
	Routes     map[int]bool
	StopAreas  map[int]bool
	StopPoints map[int]bool
}

// Unrestricted reports whether the selection constrains nothing.
func (s *Selection) Unrestricted() bool {
	return s.Networks == nil && s.Lines == nil && s.Routes == nil &&
		s.StopAreas == nil && s.StopPoints == nil
}

// Empty reports whether some clause resolved to zero objects.
func (s *Selection) Empty() bool {
	for _, set := range []map[int]bool{s.Networks, s.Lines, s.Routes, s.StopAreas, s.StopPoints} {
		if set != nil && len(set) == 0 {
			return true
		}
	}
	return false
}

// Evaluator resolves an entity-filter expression against a graph. An
// external implementation can be plugged in; the built-in one handles
// conjunctions of object.attribute=value clauses.
type Evaluator interface {
	Evaluate(g *timetable.Graph, filter string) (*Selection, error)
}

// DefaultEvaluator implements the built-in predicate grammar:
//
//	line.code=12 and network.name=RTM
//
// Objects: network, line, route, stop_area, stop_point.
// Attributes: id, code, name. Clauses are conjunctive per object type.
type DefaultEvaluator struct{}

func (DefaultEvaluator) Evaluate(g *timetable.Graph, filter string) (*Selection, error) {
	sel := &Selection{}
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return sel, nil
	}

	for _, clause := range strings.Split(filter, " and ") {
		clause = strings.TrimSpace(clause)
		eq := strings.IndexByte(clause, '=')
		if eq < 0 {
			return nil, &FilterError{Kind: FilterParse, Filter: filter, Reason: fmt.Sprintf("clause %q has no comparison", clause)}
		}
		lhs, value := strings.TrimSpace(clause[:eq]), strings.TrimSpace(clause[eq+1:])
		value = strings.Trim(value, `"`)
		dot := strings.IndexByte(lhs, '.')
		if dot < 0 {
			return nil, &FilterError{Kind: FilterParse, Filter: filter, Reason: fmt.Sprintf("predicate %q is not object.attribute", lhs)}
		}
		object, attr := lhs[:dot], lhs[dot+1:]

		switch attr {
		case "id", "uri", "code", "name":
		default:
			return nil, &FilterError{Kind: FilterBadPredicate, Filter: filter, Reason: fmt.Sprintf("unknown attribute %q", attr)}
		}

		switch object {
		case "network":
			sel.Networks = intersect(sel.Networks, matchNetworks(g, attr, value))
		case "line":
			sel.Lines = intersect(sel.Lines, matchLines(g, attr, value))
		case "route":
			sel.Routes = intersect(sel.Routes, matchRoutes(g, attr, value))
		case "stop_area":
			sel.StopAreas = intersect(sel.StopAreas, matchStopAreas(g, attr, value))
		case "stop_point":
			sel.StopPoints = intersect(sel.StopPoints, matchStopPoints(g, attr, value))
		default:
			return nil, &FilterError{Kind: FilterBadPredicate, Filter: filter, Reason: fmt.Sprintf("unknown object %q", object)}
		}
	}
	return sel, nil
}

func intersect(cur, add map[int]bool) map[int]bool {
	if cur == nil {
		return add
	}
	out := make(map[int]bool)
	for i := range cur {
		if add[i] {
			out[i] = true
		}
	}
	return out
}

func matchNetworks(g *timetable.Graph, attr, value string) map[int]bool {
	out := make(map[int]bool)
	for i, n := range g.Networks {
		if attrValue(attr, n.ID, "", n.Name) == value {
			out[i] = true
		}
	}
	return out
}

func matchLines(g *timetable.Graph, attr, value string) map[int]bool {
	out := make(map[int]bool)
	for i, l := range g.Lines {
		if attrValue(attr, l.ID, l.Code, l.Name) == value {
			out[i] = true
		}
	}
	return out
}

func matchRoutes(g *timetable.Graph, attr, value string) map[int]bool {
	out := make(map[int]bool)
	for i, r := range g.Routes {
		if attrValue(attr, r.ID, "", r.Name) == value {
			out[i] = true
		}
	}
	return out
}

func matchStopAreas(g *timetable.Graph, attr, value string) map[int]bool {
	out := make(map[int]bool)
	for i, sa := range g.StopAreas {
		if attrValue(attr, sa.ID, "", sa.Name) == value {
			out[i] = true
		}
	}
	return out
}

func matchStopPoints(g *timetable.Graph, attr, value string) map[int]bool {
	out := make(map[int]bool)
	for i, sp := range g.StopPoints {
		if attrValue(attr, sp.ID, "", sp.Name) == value {
			out[i] = true
		}
	}
	return out
}

func attrValue(attr, id, code, name string) string {
	switch attr {
	case "id", "uri":
		return id
	case "code":
		return code
	default:
		return name
	}
}
