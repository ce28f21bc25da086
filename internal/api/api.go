// Package api exposes the coordination core over HTTP: entity CRUD, geocode
// lookups, radius search, and the live mutation event stream.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/reliefgrid/reliefgrid/internal/bus"
	"github.com/reliefgrid/reliefgrid/internal/config"
	"github.com/reliefgrid/reliefgrid/internal/model"
	"github.com/reliefgrid/reliefgrid/internal/store"
	"github.com/reliefgrid/reliefgrid/pkg/geocode"
)

// Resolver is the location-resolution dependency of the API. Satisfied by
// *geocode.Resolver; tests substitute deterministic fakes.
type Resolver interface {
	Resolve(ctx context.Context, locationName string) (*model.Coordinates, error)
}

// Server holds the API dependencies.
type Server struct {
	store    store.Store
	resolver Resolver
	bus      *bus.Bus
	cfg      config.ServerConfig
}

// New creates a Server.
func New(st store.Store, resolver Resolver, b *bus.Bus, cfg config.ServerConfig) *Server {
	return &Server{store: st, resolver: resolver, bus: b, cfg: cfg}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/geocode", s.handleGeocode)
		r.Get("/stream", s.handleStream)

		r.Route("/{kind:resources|disasters}", func(r chi.Router) {
			r.Get("/", s.handleList)
			r.Post("/", s.handleCreate)
			r.Get("/nearby", s.handleNearby)
			r.Get("/{id}", s.handleGet)
			r.Put("/{id}", s.handleUpdate)
			r.Delete("/{id}", s.handleDelete)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGeocode resolves a free-text place name and returns the resolver
// output contract.
func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		respondError(w, http.StatusBadRequest, "q is required")
		return
	}

	coord, err := s.resolver.Resolve(r.Context(), q)
	if err != nil {
		if eris.Is(err, geocode.ErrNotFound) {
			respondError(w, http.StatusNotFound, "location not found, please try again")
			return
		}
		zap.L().Error("api: geocode failed", zap.String("q", q), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "geocoding failed, please try again")
		return
	}

	respondJSON(w, http.StatusOK, geocode.ToResult(*coord))
}

// kindFromRequest maps the route segment to the entity kind.
func kindFromRequest(r *http.Request) (model.EntityKind, bool) {
	switch chi.URLParam(r, "kind") {
	case "resources":
		return model.KindResource, true
	case "disasters":
		return model.KindDisaster, true
	default:
		return "", false
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondStoreError maps store errors onto HTTP statuses.
func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case eris.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case eris.Is(err, store.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		zap.L().Error("api: store error", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error, please try again")
	}
}
