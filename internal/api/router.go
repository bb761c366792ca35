// Package api exposes the centres HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/familyhub/centres-api/internal/centre"
	"github.com/familyhub/centres-api/internal/ckan"
	"github.com/familyhub/centres-api/pkg/geocode"
)

// CatalogFetcher performs a live catalog fetch.
type CatalogFetcher interface {
	FetchCentres(ctx context.Context) (*ckan.FetchResult, error)
}

// CacheService refreshes and reads the cached catalog document.
type CacheService interface {
	Refresh(ctx context.Context) (json.RawMessage, error)
	Read(ctx context.Context) (json.RawMessage, error)
}

// CentreService answers centre queries.
type CentreService interface {
	FindNearest(ctx context.Context, q centre.NearestQuery) ([]centre.Centre, error)
	FindByID(ctx context.Context, locID string) (*centre.Centre, error)
	IndexReady(ctx context.Context) (bool, error)
}

// Deps are the collaborators behind the handlers.
type Deps struct {
	Catalog  CatalogFetcher
	Cache    CacheService
	Centres  CentreService
	Geocoder geocode.Client
}

// Options tunes the router.
type Options struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
func NewRouter(deps Deps, opts Options) http.Handler {
	h := &handlers{deps: deps}

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r.Get("/health", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/centres", h.listCentres)
		r.Get("/centres/loc/{locId}", h.centreByLocID)
		r.Post("/centres/refresh", h.refreshCache)
		r.Get("/centres/cached", h.cachedCentres)
		r.Post("/centres/near", h.nearestCentres)
		r.Post("/geocode", h.geocode)
	})

	return r
}
