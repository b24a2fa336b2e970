package restapi

import (
	"net/http"

	"wayfarer.opentransit.org/internal/models"
)

// rateLimitAndValidateAPIKey chains API key validation and rate limiting
// in front of a handler.
func rateLimitAndValidateAPIKey(api *RestAPI, finalHandler http.HandlerFunc) http.Handler {
	limited := api.rateLimiter(finalHandler)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.RequestHasInvalidAPIKey(r) {
			api.invalidAPIKeyResponse(w, r)
			return
		}
		limited.ServeHTTP(w, r)
	})
}

// SetRoutes registers all API endpoints.
func (api *RestAPI) SetRoutes(mux *http.ServeMux) {
	// Health and metrics carry no authentication.
	mux.HandleFunc("GET /healthz", api.healthHandler)
	mux.Handle("GET /metrics", api.Metrics.Handler())

	mux.Handle("GET /api/journeys", rateLimitAndValidateAPIKey(api, api.journeysHandler))
	mux.Handle("GET /api/traffic-reports", rateLimitAndValidateAPIKey(api, api.trafficReportsHandler))
	mux.Handle("GET /api/line-reports", rateLimitAndValidateAPIKey(api, api.lineReportsHandler))
	mux.Handle("GET /api/stops-nearby", rateLimitAndValidateAPIKey(api, api.nearbyStopsHandler))

	mux.Handle("POST /api/realtime/trip-updates", rateLimitAndValidateAPIKey(api, api.tripUpdatesHandler))
	mux.Handle("POST /api/disruptions", rateLimitAndValidateAPIKey(api, api.applyDisruptionHandler))
	mux.Handle("DELETE /api/disruptions/{uri}", rateLimitAndValidateAPIKey(api, api.deleteDisruptionHandler))
}

func (api *RestAPI) healthHandler(w http.ResponseWriter, r *http.Request) {
	snap := api.Transit.Current()
	data := map[string]interface{}{"status": "ok", "datasetLoaded": snap != nil}
	if snap != nil {
		data["snapshotVersion"] = snap.Version
		data["tripGroups"] = snap.Variants.Len()
	}
	api.sendResponse(w, r, models.NewOKResponse(data, api.Clock))
}
