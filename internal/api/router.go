package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/Deharath/prompt-lab-sub000/internal/api/middleware"
	"github.com/Deharath/prompt-lab-sub000/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	CreateJobHandler http.HandlerFunc
	ListJobsHandler  http.HandlerFunc
	GetJobHandler    http.HandlerFunc
	DeleteJobHandler http.HandlerFunc
	StreamJobHandler http.HandlerFunc
	CancelJobHandler http.HandlerFunc
	RetryJobHandler  http.HandlerFunc
	DiffJobHandler   http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/health", orNotImplemented(deps.HealthHandler))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/jobs", func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Post("/", orNotImplemented(deps.CreateJobHandler))
		r.Get("/", orNotImplemented(deps.ListJobsHandler))

		r.Get("/{id}", orNotImplemented(deps.GetJobHandler))
		r.Delete("/{id}", orNotImplemented(deps.DeleteJobHandler))
		r.Get("/{id}/stream", orNotImplemented(deps.StreamJobHandler))
		r.Put("/{id}/cancel", orNotImplemented(deps.CancelJobHandler))
		r.Post("/{id}/retry", orNotImplemented(deps.RetryJobHandler))
		r.Get("/{id}/diff", orNotImplemented(deps.DiffJobHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "Endpoint not yet implemented")
	}
}
