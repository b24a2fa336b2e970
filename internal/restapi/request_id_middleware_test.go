package restapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runRequestID(t *testing.T, inbound string) (seen string, rec *httptest.ResponseRecorder) {
	t.Helper()
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/journeys", nil)
	if inbound != "" {
		req.Header.Set(requestIDHeader, inbound)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return seen, rec
}

func TestRequestIDMintedWhenAbsent(t *testing.T) {
	seen, rec := runRequestID(t, "")

	require.NotEmpty(t, seen)
	_, err := uuid.Parse(seen)
	assert.NoError(t, err, "minted ids are UUIDs")
	assert.Equal(t, seen, rec.Header().Get(requestIDHeader), "context and response agree")
}

func TestRequestIDHonorsInboundHeader(t *testing.T) {
	seen, rec := runRequestID(t, "trace-42")

	assert.Equal(t, "trace-42", seen)
	assert.Equal(t, "trace-42", rec.Header().Get(requestIDHeader))
}

func TestRequestIDRejectsOversizedHeader(t *testing.T) {
	oversized := strings.Repeat("x", maxRequestIDLength+1)
	seen, rec := runRequestID(t, oversized)

	assert.NotEqual(t, oversized, seen)
	assert.NotEqual(t, oversized, rec.Header().Get(requestIDHeader))
	assert.NotEmpty(t, seen)
}

func TestRequestIDFromContextWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/journeys", nil)
	assert.Empty(t, RequestIDFromContext(req.Context()))
}
