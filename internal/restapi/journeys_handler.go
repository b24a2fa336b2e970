package restapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"wayfarer.opentransit.org/internal/models"
	"wayfarer.opentransit.org/internal/routing"
	"wayfarer.opentransit.org/internal/timetable"
)

func (api *RestAPI) journeysHandler(w http.ResponseWriter, r *http.Request) {
	snap := api.Transit.Current()
	if snap == nil {
		api.sendError(w, r, http.StatusServiceUnavailable, "no dataset loaded")
		return
	}

	req, errText := api.parseJourneyRequest(r, snap.Graph)
	if errText != "" {
		api.badRequestResponse(w, r, errText)
		return
	}

	journeys, err := api.Router().Search(req)
	if err != nil {
		var badReq *routing.BadRequestError
		switch {
		case errors.As(err, &badReq):
			api.badRequestResponse(w, r, badReq.Error())
		case errors.Is(err, routing.ErrNoSolution):
			api.notFoundResponse(w, r, "no journey found")
		default:
			api.serverErrorResponse(w, r, err)
		}
		return
	}

	api.sendResponse(w, r, models.NewListResponse(models.NewJourneyModels(snap.Graph, journeys, api.Clock.Now()), api.Clock))
}

func (api *RestAPI) parseJourneyRequest(r *http.Request, g *timetable.Graph) (routing.Request, string) {
	q := r.URL.Query()
	var req routing.Request
	req.Now = api.Clock.Now()

	var errText string
	req.Origins, errText = resolveStops(g, q.Get("from"))
	if errText != "" {
		return req, "from: " + errText
	}
	req.Destinations, errText = resolveStops(g, q.Get("to"))
	if errText != "" {
		return req, "to: " + errText
	}

	when := q.Get("datetime")
	if when == "" {
		req.When = api.Clock.Now()
	} else {
		t, err := time.Parse(time.RFC3339, when)
		if err != nil {
			return req, "datetime: expected RFC 3339 format"
		}
		req.When = t
	}
	switch q.Get("datetime_represents") {
	case "", "departure":
	case "arrival":
		req.ArriveBy = true
	default:
		return req, "datetime_represents: expected departure or arrival"
	}

	level, err := timetable.ParseLevel(q.Get("data_freshness"))
	if err != nil {
		return req, "data_freshness: " + err.Error()
	}
	req.Level = level

	if v := q.Get("max_transfers"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return req, "max_transfers: expected a non-negative integer"
		}
		req.MaxTransfers = n
	}
	if v := q.Get("walking_cap"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return req, "walking_cap: expected a non-negative integer of seconds"
		}
		req.WalkingCap = int32(n)
	}
	if v := q.Get("transfer_penalty"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return req, "transfer_penalty: expected a non-negative integer of seconds"
		}
		req.TransferPenalty = int32(n)
	}
	if v := q.Get("min_nb_journeys"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return req, "min_nb_journeys: expected a positive integer"
		}
		req.MinJourneys = n
	}
	if v := q.Get("timeframe_duration"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return req, "timeframe_duration: expected a non-negative integer of seconds"
		}
		req.Timeframe = time.Duration(n) * time.Second
	}
	if v := q.Get("max_duration_factor"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return req, "max_duration_factor: expected a non-negative number"
		}
		req.MaxFactor = f
	}
	if v := q.Get("max_duration_base"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return req, "max_duration_base: expected a non-negative integer of seconds"
		}
		req.BaseFactor = time.Duration(n) * time.Second
	}
	req.RequireAccessible = q.Get("wheelchair") == "true"

	if ids := q["forbidden_uris[]"]; len(ids) > 0 {
		req.Forbidden = make(map[string]bool, len(ids))
		for _, id := range ids {
			req.Forbidden[id] = true
		}
	}
	if ids := q["allowed_id[]"]; len(ids) > 0 {
		req.Allowed = make(map[string]bool, len(ids))
		for _, id := range ids {
			req.Allowed[id] = true
		}
	}
	return req, ""
}

// resolveStops expands a comma-separated list of stop point or stop area
// ids into weighted search endpoints. Stop areas contribute all of their
// member stop points.
func resolveStops(g *timetable.Graph, raw string) ([]routing.WeightedStop, string) {
	if strings.TrimSpace(raw) == "" {
		return nil, "at least one stop id is required"
	}
	var out []routing.WeightedStop
	for _, id := range strings.Split(raw, ",") {
		id = strings.TrimSpace(id)
		if sp, ok := g.StopPointIndex(id); ok {
			out = append(out, routing.WeightedStop{StopPoint: sp})
			continue
		}
		if sa, ok := g.StopAreaIndex(id); ok {
			for _, sp := range g.StopAreas[sa].StopPoints {
				out = append(out, routing.WeightedStop{StopPoint: sp})
			}
			continue
		}
		return nil, "unknown stop " + id
	}
	return out, ""
}
