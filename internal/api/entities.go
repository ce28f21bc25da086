package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reliefgrid/reliefgrid/internal/model"
	"github.com/reliefgrid/reliefgrid/internal/store"
)

// defaultRadiusKm applies when a nearby request omits the radius parameter.
const defaultRadiusKm = 10

// entityRequest is the create/update payload.
type entityRequest struct {
	Name         string         `json:"name"`
	LocationName string         `json:"location_name"`
	Type         string         `json:"type"`
	Meta         model.Metadata `json:"meta"`
}

func (req *entityRequest) validate() string {
	if req.Name == "" {
		return "name is required"
	}
	if req.LocationName == "" {
		return "location_name is required"
	}
	if req.Type == "" {
		return "type is required"
	}
	return ""
}

// handleCreate persists a new entity, resolving its location name first, and
// publishes exactly one create event after the write is committed.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromRequest(r)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown entity kind")
		return
	}

	var req entityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	now := time.Now().UTC()
	entity := &model.Entity{
		ID:           uuid.New().String(),
		Kind:         kind,
		Name:         req.Name,
		LocationName: req.LocationName,
		Type:         req.Type,
		Meta:         req.Meta,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	entity.Coord = s.resolveLocation(r, req.LocationName)

	if err := s.store.CreateEntity(r.Context(), entity); err != nil {
		respondStoreError(w, err)
		return
	}

	s.bus.Publish(model.MutationEvent{
		Kind:   kind,
		Action: model.ActionCreate,
		Entity: entity,
	})

	respondJSON(w, http.StatusCreated, entity)
}

// handleUpdate replaces an entity's fields. The location is re-resolved only
// when the location name changed; exactly one update event follows the
// committed write.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromRequest(r)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown entity kind")
		return
	}
	id := chi.URLParam(r, "id")

	var req entityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	existing, err := s.store.GetEntity(r.Context(), kind, id)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	existing.Name = req.Name
	existing.Type = req.Type
	existing.Meta = req.Meta
	if req.LocationName != existing.LocationName {
		existing.LocationName = req.LocationName
		existing.Coord = s.resolveLocation(r, req.LocationName)
	}
	existing.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateEntity(r.Context(), existing); err != nil {
		respondStoreError(w, err)
		return
	}

	s.bus.Publish(model.MutationEvent{
		Kind:   kind,
		Action: model.ActionUpdate,
		Entity: existing,
	})

	respondJSON(w, http.StatusOK, existing)
}

// handleDelete removes an entity and publishes exactly one delete event
// carrying only the ID.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromRequest(r)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown entity kind")
		return
	}
	id := chi.URLParam(r, "id")

	if err := s.store.DeleteEntity(r.Context(), kind, id); err != nil {
		respondStoreError(w, err)
		return
	}

	s.bus.Publish(model.MutationEvent{
		Kind:     kind,
		Action:   model.ActionDelete,
		EntityID: id,
	})

	respondJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromRequest(r)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown entity kind")
		return
	}

	entity, err := s.store.GetEntity(r.Context(), kind, chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entity)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromRequest(r)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown entity kind")
		return
	}

	entities, err := s.store.ListEntities(r.Context(), store.ListFilter{
		Kind: kind,
		Type: r.URL.Query().Get("type"),
	})
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if entities == nil {
		entities = []model.Entity{}
	}
	respondJSON(w, http.StatusOK, entities)
}

// handleNearby serves the radius search. With no center it degrades to a
// type-only listing, which also surfaces entities that have no resolved
// point yet.
func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromRequest(r)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown entity kind")
		return
	}

	query := r.URL.Query()
	latStr, lngStr := query.Get("lat"), query.Get("lng")

	if latStr == "" && lngStr == "" {
		s.handleList(w, r)
		return
	}
	if latStr == "" || lngStr == "" {
		respondError(w, http.StatusBadRequest, "lat and lng must be provided together")
		return
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid lat")
		return
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid lng")
		return
	}

	radiusKm := float64(defaultRadiusKm)
	if radiusStr := query.Get("radius"); radiusStr != "" {
		radiusKm, err = strconv.ParseFloat(radiusStr, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid radius")
			return
		}
	}

	entities, err := s.store.FindNear(r.Context(), store.NearQuery{
		Kind:           kind,
		Center:         model.Coordinates{Lat: lat, Lng: lng},
		RadiusMeters:   radiusKm * 1000,
		Type:           query.Get("type"),
		SortByDistance: query.Get("sort") == "distance",
	})
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if entities == nil {
		entities = []model.Entity{}
	}
	respondJSON(w, http.StatusOK, entities)
}

// resolveLocation resolves a location name to coordinates for the write path.
// Failure leaves the entity unresolved (invisible to radius search until a
// later update resolves it) rather than failing the write.
func (s *Server) resolveLocation(r *http.Request, locationName string) *model.Coordinates {
	coord, err := s.resolver.Resolve(r.Context(), locationName)
	if err != nil {
		zap.L().Warn("api: location resolution failed, storing unresolved",
			zap.String("location", locationName),
			zap.Error(err),
		)
		return nil
	}
	return coord
}
