package restapi

import (
	"net/http"
	"strconv"

	"wayfarer.opentransit.org/internal/models"
)

func (api *RestAPI) nearbyStopsHandler(w http.ResponseWriter, r *http.Request) {
	snap := api.Transit.Current()
	if snap == nil {
		api.sendError(w, r, http.StatusServiceUnavailable, "no dataset loaded")
		return
	}
	q := r.URL.Query()

	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		api.badRequestResponse(w, r, "lat: expected a latitude between -90 and 90")
		return
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil || lon < -180 || lon > 180 {
		api.badRequestResponse(w, r, "lon: expected a longitude between -180 and 180")
		return
	}

	radius := 500.0
	if v := q.Get("distance"); v != "" {
		radius, err = strconv.ParseFloat(v, 64)
		if err != nil || radius <= 0 || radius > 50000 {
			api.badRequestResponse(w, r, "distance: expected meters between 1 and 50000")
			return
		}
	}
	limit := 0
	if v := q.Get("count"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 {
			api.badRequestResponse(w, r, "count: expected a positive integer")
			return
		}
	}

	results := api.NearbyIndex().Nearby(lat, lon, radius, limit)
	api.sendResponse(w, r, models.NewListResponse(
		models.NewNearbyStopModels(snap.Graph, results), api.Clock))
}
