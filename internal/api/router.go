package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/orgcal/internal/entryservice"
	"github.com/starford/orgcal/internal/metrics"
)

// NewRouter creates a chi router with the /api routes.
// authEnabled controls whether Bearer token auth is enforced. A non-nil
// events handler is served at /events.
func NewRouter(svc *entryservice.Service, authEnabled bool, token string, events http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/entries", h.ListEntries)
	r.Get("/entries/{id}", h.GetEntry)
	r.Get("/search", h.Search)
	r.Get("/status", h.Status)
	r.Post("/sync", h.Sync)
	if events != nil {
		r.Get("/events", events.ServeHTTP)
	}

	return r
}

// NewServerRouter builds the full HTTP surface: health probes and metrics
// (unauthenticated) plus the API mounted under /api.
func NewServerRouter(svc *entryservice.Service, authEnabled bool, token string, events http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware())
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", h.Ready)
	r.Handle("/metrics", metrics.Handler())

	r.Mount("/api", NewRouter(svc, authEnabled, token, events))
	return r
}
