// Package restapi exposes journey planning, disruption management and
// traffic reports over HTTP.
package restapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"wayfarer.opentransit.org/internal/app"
)

type RestAPI struct {
	*app.Application
	rateLimiter func(http.Handler) http.Handler
	validate    *validator.Validate
}

// NewRestAPI creates a RestAPI with a shared per-key rate limiter and a
// request validator.
func NewRestAPI(application *app.Application) *RestAPI {
	return &RestAPI{
		Application: application,
		rateLimiter: NewRateLimitMiddleware(application.Config.RateLimit, time.Second),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}
