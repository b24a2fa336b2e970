package restapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"wayfarer.opentransit.org/internal/disruption"
	"wayfarer.opentransit.org/internal/models"
	"wayfarer.opentransit.org/internal/report"
)

func (api *RestAPI) trafficReportsHandler(w http.ResponseWriter, r *http.Request) {
	snap := api.Transit.Current()
	if snap == nil {
		api.sendError(w, r, http.StatusServiceUnavailable, "no dataset loaded")
		return
	}
	params, errText := api.parseReportParams(r)
	if errText != "" {
		api.badRequestResponse(w, r, errText)
		return
	}

	rep, err := report.NewBuilder(snap, nil).TrafficReport(params)
	if err != nil {
		api.reportErrorResponse(w, r, err)
		return
	}
	api.sendResponse(w, r, models.NewOKResponse(
		models.NewTrafficReportModel(snap.Graph, rep, params.Now), api.Clock))
}

func (api *RestAPI) lineReportsHandler(w http.ResponseWriter, r *http.Request) {
	snap := api.Transit.Current()
	if snap == nil {
		api.sendError(w, r, http.StatusServiceUnavailable, "no dataset loaded")
		return
	}
	params, errText := api.parseReportParams(r)
	if errText != "" {
		api.badRequestResponse(w, r, errText)
		return
	}

	rep, err := report.NewBuilder(snap, nil).LineReport(params)
	if err != nil {
		api.reportErrorResponse(w, r, err)
		return
	}
	api.sendResponse(w, r, models.NewOKResponse(
		models.NewLineReportsModel(snap.Graph, rep, params.Now), api.Clock))
}

func (api *RestAPI) reportErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var ferr *report.FilterError
	switch {
	case errors.As(err, &ferr):
		api.badRequestResponse(w, r, ferr.Error())
	case errors.Is(err, report.ErrNoResult):
		api.notFoundResponse(w, r, "no disruption matches the filter")
	default:
		api.serverErrorResponse(w, r, err)
	}
}

func (api *RestAPI) parseReportParams(r *http.Request) (report.Params, string) {
	q := r.URL.Query()
	params := report.Params{
		Filter: q.Get("filter"),
		Now:    api.Clock.Now(),
	}

	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return params, "since: expected RFC 3339 format"
		}
		params.Since = &t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return params, "until: expected RFC 3339 format"
		}
		params.Until = &t
	}
	if params.Since != nil && params.Until != nil && params.Until.Before(*params.Since) {
		return params, "until: must not precede since"
	}

	if uris := q["forbidden_uris[]"]; len(uris) > 0 {
		params.ForbiddenURIs = make(map[string]bool, len(uris))
		for _, uri := range uris {
			params.ForbiddenURIs[uri] = true
		}
	}
	if statuses := q["status[]"]; len(statuses) > 0 {
		params.Statuses = make(map[disruption.ActiveStatus]bool, len(statuses))
		for _, s := range statuses {
			st, err := disruption.ParseActiveStatus(s)
			if err != nil {
				return params, "status[]: " + err.Error()
			}
			params.Statuses[st] = true
		}
	}

	if v := q.Get("start_page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return params, "start_page: expected a non-negative integer"
		}
		params.Page = n
	}
	params.PageSize = 10
	if v := q.Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			return params, "count: expected an integer between 1 and 100"
		}
		params.PageSize = n
	}
	return params, ""
}
