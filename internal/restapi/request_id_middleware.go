package restapi

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// requestIDHeader carries the id in both directions so a caller can
// correlate a response with the server's request log line.
const requestIDHeader = "X-Request-ID"

// maxRequestIDLength caps inbound ids; anything longer is replaced so a
// client cannot stuff arbitrary payloads into the logs.
const maxRequestIDLength = 64

// RequestIDMiddleware tags every request with an id, honoring a sane
// inbound X-Request-ID and minting a UUID otherwise. The id is echoed on
// the response and stored on the context for the request logger.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(
			context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// RequestIDFromContext returns the id assigned by RequestIDMiddleware,
// or "" when the middleware did not run.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
