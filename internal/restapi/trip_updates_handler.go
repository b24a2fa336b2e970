package restapi

import (
	"io"
	"net/http"

	"wayfarer.opentransit.org/internal/models"
	"wayfarer.opentransit.org/internal/realtime"
)

// maxFeedBody caps pushed feed payloads at 50MB.
const maxFeedBody = 50 << 20

// RejectionModel is one discarded update of a pushed feed.
type RejectionModel struct {
	FeedID      string `json:"feedId"`
	TripID      string `json:"tripId"`
	ServiceDate string `json:"serviceDate"`
	Cause       string `json:"cause"`
	Detail      string `json:"detail,omitempty"`
}

// tripUpdatesHandler accepts a GTFS-RT FeedMessage over POST and applies
// it like a polled feed. The feed query parameter scopes the updates'
// identity so pushes and polls from the same producer supersede each
// other.
func (api *RestAPI) tripUpdatesHandler(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" && ct != "application/x-protobuf" && ct != "application/octet-stream" {
		api.sendError(w, r, http.StatusUnsupportedMediaType, "expected a protobuf FeedMessage body")
		return
	}
	feedID := r.URL.Query().Get("feed")
	if feedID == "" {
		feedID = "push"
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFeedBody))
	if err != nil {
		api.badRequestResponse(w, r, "failed to read request body")
		return
	}

	updates, err := realtime.DecodeFeed(body, feedID)
	if err != nil {
		api.badRequestResponse(w, r, "malformed GTFS-RT payload: "+err.Error())
		return
	}

	rejections, err := api.Ingestor.Ingest(r.Context(), updates)
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}

	rms := make([]RejectionModel, 0, len(rejections))
	for _, rej := range rejections {
		rms = append(rms, RejectionModel{
			FeedID:      rej.FeedID,
			TripID:      rej.TripID,
			ServiceDate: rej.ServiceDate.Format("2006-01-02"),
			Cause:       rej.Cause.String(),
			Detail:      rej.Detail,
		})
	}
	data := map[string]interface{}{
		"received":   len(updates),
		"applied":    len(updates) - len(rejections),
		"rejections": rms,
	}
	api.sendResponse(w, r, models.NewOKResponse(data, api.Clock))
}
