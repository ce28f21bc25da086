package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/reliefgrid/reliefgrid/internal/db"
	"github.com/reliefgrid/reliefgrid/internal/model"
)

// PostgresStore implements Store on a pgx pool. Radius queries run in the
// database over the geography type; the point is always constructed
// longitude-first (ST_MakePoint(lng, lat)).
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS entities (
	id            UUID PRIMARY KEY,
	kind          TEXT NOT NULL,
	name          TEXT NOT NULL,
	location_name TEXT NOT NULL,
	latitude      DOUBLE PRECISION,
	longitude     DOUBLE PRECISION,
	display_name  TEXT,
	type          TEXT NOT NULL,
	meta          JSONB NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(kind);
CREATE INDEX IF NOT EXISTS idx_entities_kind_type ON entities(kind, type);
`

// Migrate creates the entities table and indexes.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const entityColumns = `id, kind, name, location_name, latitude, longitude, display_name, type, meta, created_at, updated_at`

// CreateEntity inserts a new entity.
func (s *PostgresStore) CreateEntity(ctx context.Context, e *model.Entity) error {
	metaJSON, err := json.Marshal(e.Meta)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal meta")
	}

	var lat, lng *float64
	var displayName *string
	if e.Coord != nil {
		lat, lng = &e.Coord.Lat, &e.Coord.Lng
		displayName = &e.Coord.DisplayName
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO entities (id, kind, name, location_name, latitude, longitude, display_name, type, meta, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, string(e.Kind), e.Name, e.LocationName, lat, lng, displayName, e.Type, metaJSON, e.CreatedAt, e.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert entity %s", e.ID)
}

// GetEntity retrieves one entity by kind and ID.
func (s *PostgresStore) GetEntity(ctx context.Context, kind model.EntityKind, id string) (*model.Entity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE kind = $1 AND id = $2`,
		string(kind), id,
	)
	e, err := scanEntity(row)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get entity %s", id)
	}
	return e, nil
}

// UpdateEntity replaces the mutable fields of an existing entity.
func (s *PostgresStore) UpdateEntity(ctx context.Context, e *model.Entity) error {
	metaJSON, err := json.Marshal(e.Meta)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal meta")
	}

	var lat, lng *float64
	var displayName *string
	if e.Coord != nil {
		lat, lng = &e.Coord.Lat, &e.Coord.Lng
		displayName = &e.Coord.DisplayName
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE entities
		SET name = $3, location_name = $4, latitude = $5, longitude = $6,
		    display_name = $7, type = $8, meta = $9, updated_at = $10
		WHERE kind = $1 AND id = $2`,
		string(e.Kind), e.ID, e.Name, e.LocationName, lat, lng, displayName, e.Type, metaJSON, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update entity %s", e.ID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteEntity removes an entity. Absent entities return ErrNotFound so the
// write path can decide whether an event is due.
func (s *PostgresStore) DeleteEntity(ctx context.Context, kind model.EntityKind, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM entities WHERE kind = $1 AND id = $2`,
		string(kind), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete entity %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListEntities returns entities by kind and optional type, unresolved points
// included.
func (s *PostgresStore) ListEntities(ctx context.Context, f ListFilter) ([]model.Entity, error) {
	sql := `SELECT ` + entityColumns + ` FROM entities WHERE kind = $1`
	args := []any{string(f.Kind)}

	if f.Type != "" {
		sql += fmt.Sprintf(` AND type = $%d`, len(args)+1)
		args = append(args, f.Type)
	}
	sql += ` ORDER BY created_at`
	if f.Limit > 0 {
		sql += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, f.Limit)
	}
	if f.Offset > 0 {
		sql += fmt.Sprintf(` OFFSET $%d`, len(args)+1)
		args = append(args, f.Offset)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entities")
	}
	return collectEntities(rows)
}

// FindNear runs the radius query in the database using geography distance.
func (s *PostgresStore) FindNear(ctx context.Context, q NearQuery) ([]model.Entity, error) {
	if err := ValidateNearQuery(q); err != nil {
		return nil, err
	}

	sql := `SELECT ` + entityColumns + ` FROM entities
		WHERE kind = $1 AND latitude IS NOT NULL AND longitude IS NOT NULL`
	args := []any{string(q.Kind), q.Center.Lng, q.Center.Lat}

	if q.RadiusMeters == 0 {
		sql += ` AND abs(longitude - $2) <= 1e-9 AND abs(latitude - $3) <= 1e-9`
	} else {
		sql += fmt.Sprintf(` AND ST_DWithin(
			ST_SetSRID(ST_MakePoint(longitude, latitude), 4326)::geography,
			ST_SetSRID(ST_MakePoint($2, $3), 4326)::geography,
			$%d)`, len(args)+1)
		args = append(args, q.RadiusMeters)
	}
	if q.Type != "" {
		sql += fmt.Sprintf(` AND type = $%d`, len(args)+1)
		args = append(args, q.Type)
	}
	if q.SortByDistance {
		sql += ` ORDER BY ST_SetSRID(ST_MakePoint(longitude, latitude), 4326) <-> ST_SetSRID(ST_MakePoint($2, $3), 4326)`
	}
	if q.Limit > 0 {
		sql += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, q.Limit)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find near")
	}
	return collectEntities(rows)
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*model.Entity, error) {
	var e model.Entity
	var kind string
	var lat, lng *float64
	var displayName *string
	var metaJSON []byte

	err := row.Scan(
		&e.ID, &kind, &e.Name, &e.LocationName, &lat, &lng, &displayName,
		&e.Type, &metaJSON, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Kind = model.EntityKind(kind)
	if lat != nil && lng != nil {
		coord := &model.Coordinates{Lat: *lat, Lng: *lng}
		if displayName != nil {
			coord.DisplayName = *displayName
		}
		e.Coord = coord
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &e.Meta); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal meta")
		}
	}
	return &e, nil
}

func collectEntities(rows pgx.Rows) ([]model.Entity, error) {
	defer rows.Close()

	var entities []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan entity row")
		}
		entities = append(entities, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate entity rows")
	}
	return entities, nil
}
