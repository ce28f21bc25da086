// Package store persists point-tagged entities and serves the radius-bounded
// proximity queries behind geospatial discovery. Two drivers exist: Postgres
// (pgx) and SQLite (modernc), selected by configuration.
package store

import (
	"context"
	"math"

	"github.com/rotisserie/eris"

	"github.com/reliefgrid/reliefgrid/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = eris.New("store: entity not found")

// ErrInvalidInput marks malformed numeric or location input. Handlers map it
// to a client error; it is never retried.
var ErrInvalidInput = eris.New("store: invalid input")

// ListFilter selects entities by kind and optional type, with pagination.
// Entities without a resolved coordinate are included: type-only listing must
// still see them.
type ListFilter struct {
	Kind   model.EntityKind
	Type   string
	Limit  int
	Offset int
}

// NearQuery is a radius-bounded proximity query. Distances are great-circle.
// A RadiusMeters of zero matches only entities whose point is identical to
// the center within floating-point tolerance. Result order is unspecified
// unless SortByDistance is set.
type NearQuery struct {
	Kind           model.EntityKind
	Center         model.Coordinates
	RadiusMeters   float64
	Type           string
	SortByDistance bool
	Limit          int
}

// Store is the persistence contract for entities.
type Store interface {
	CreateEntity(ctx context.Context, e *model.Entity) error
	GetEntity(ctx context.Context, kind model.EntityKind, id string) (*model.Entity, error)
	UpdateEntity(ctx context.Context, e *model.Entity) error
	DeleteEntity(ctx context.Context, kind model.EntityKind, id string) error
	ListEntities(ctx context.Context, f ListFilter) ([]model.Entity, error)

	// FindNear returns entities within the query radius. Entities with no
	// resolved point never appear in the result.
	FindNear(ctx context.Context, q NearQuery) ([]model.Entity, error)

	Migrate(ctx context.Context) error
	Close() error
}

// ValidateNearQuery rejects malformed centers and radii before any store
// work happens.
func ValidateNearQuery(q NearQuery) error {
	if !q.Kind.Valid() {
		return eris.Wrapf(ErrInvalidInput, "unknown entity kind %q", q.Kind)
	}
	if math.IsNaN(q.RadiusMeters) || math.IsInf(q.RadiusMeters, 0) || q.RadiusMeters < 0 {
		return eris.Wrapf(ErrInvalidInput, "radius %v out of range", q.RadiusMeters)
	}
	if math.IsNaN(q.Center.Lat) || q.Center.Lat < -90 || q.Center.Lat > 90 {
		return eris.Wrapf(ErrInvalidInput, "latitude %v out of range", q.Center.Lat)
	}
	if math.IsNaN(q.Center.Lng) || q.Center.Lng < -180 || q.Center.Lng > 180 {
		return eris.Wrapf(ErrInvalidInput, "longitude %v out of range", q.Center.Lng)
	}
	return nil
}
