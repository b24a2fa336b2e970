package app

import "net/http"

// IsInvalidAPIKey reports whether the key is absent from the configured
// set. Comparison is exact; no trimming or case folding.
func (a *Application) IsInvalidAPIKey(key string) bool {
	if key == "" {
		return true
	}
	for _, configured := range a.Config.ApiKeys {
		if key == configured {
			return false
		}
	}
	return true
}

// RequestHasInvalidAPIKey checks the key query parameter of a request.
func (a *Application) RequestHasInvalidAPIKey(r *http.Request) bool {
	return a.IsInvalidAPIKey(r.URL.Query().Get("key"))
}
