package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/reliefgrid/reliefgrid/internal/geo"
	"github.com/reliefgrid/reliefgrid/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. SQLite has no
// geography type, so radius queries scan candidate rows and filter with
// great-circle distance in Go.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given DSN and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS entities (
	id            TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	name          TEXT NOT NULL,
	location_name TEXT NOT NULL,
	latitude      REAL,
	longitude     REAL,
	display_name  TEXT,
	type          TEXT NOT NULL,
	meta          TEXT NOT NULL DEFAULT '{}',
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(kind);
CREATE INDEX IF NOT EXISTS idx_entities_kind_type ON entities(kind, type);
`

// Migrate creates the entities table and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateEntity inserts a new entity.
func (s *SQLiteStore) CreateEntity(ctx context.Context, e *model.Entity) error {
	metaJSON, err := json.Marshal(e.Meta)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal meta")
	}

	var lat, lng *float64
	var displayName *string
	if e.Coord != nil {
		lat, lng = &e.Coord.Lat, &e.Coord.Lng
		displayName = &e.Coord.DisplayName
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entities (id, kind, name, location_name, latitude, longitude, display_name, type, meta, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.Name, e.LocationName, lat, lng, displayName, e.Type, string(metaJSON), e.CreatedAt, e.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert entity %s", e.ID)
}

// GetEntity retrieves one entity by kind and ID.
func (s *SQLiteStore) GetEntity(ctx context.Context, kind model.EntityKind, id string) (*model.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE kind = ? AND id = ?`,
		string(kind), id,
	)
	e, err := scanEntity(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get entity %s", id)
	}
	return e, nil
}

// UpdateEntity replaces the mutable fields of an existing entity.
func (s *SQLiteStore) UpdateEntity(ctx context.Context, e *model.Entity) error {
	metaJSON, err := json.Marshal(e.Meta)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal meta")
	}

	var lat, lng *float64
	var displayName *string
	if e.Coord != nil {
		lat, lng = &e.Coord.Lat, &e.Coord.Lng
		displayName = &e.Coord.DisplayName
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE entities
		SET name = ?, location_name = ?, latitude = ?, longitude = ?,
		    display_name = ?, type = ?, meta = ?, updated_at = ?
		WHERE kind = ? AND id = ?`,
		e.Name, e.LocationName, lat, lng, displayName, e.Type, string(metaJSON), time.Now().UTC(),
		string(e.Kind), e.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update entity %s", e.ID)
	}
	return checkAffected(res)
}

// DeleteEntity removes an entity, returning ErrNotFound when absent.
func (s *SQLiteStore) DeleteEntity(ctx context.Context, kind model.EntityKind, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entities WHERE kind = ? AND id = ?`,
		string(kind), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete entity %s", id)
	}
	return checkAffected(res)
}

// ListEntities returns entities by kind and optional type.
func (s *SQLiteStore) ListEntities(ctx context.Context, f ListFilter) ([]model.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE kind = ?`
	args := []any{string(f.Kind)}

	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, f.Type)
	}
	query += ` ORDER BY created_at`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, f.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entities")
	}
	defer rows.Close()

	var entities []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity row")
		}
		entities = append(entities, *e)
	}
	return entities, eris.Wrap(rows.Err(), "sqlite: iterate entity rows")
}

// FindNear scans resolved candidates and filters by great-circle distance.
func (s *SQLiteStore) FindNear(ctx context.Context, q NearQuery) ([]model.Entity, error) {
	if err := ValidateNearQuery(q); err != nil {
		return nil, err
	}

	query := `SELECT ` + entityColumns + ` FROM entities
		WHERE kind = ? AND latitude IS NOT NULL AND longitude IS NOT NULL`
	args := []any{string(q.Kind)}
	if q.Type != "" {
		query += ` AND type = ?`
		args = append(args, q.Type)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find near")
	}
	defer rows.Close()

	var matched []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity row")
		}
		if geo.WithinRadius(q.Center.Lat, q.Center.Lng, e.Coord.Lat, e.Coord.Lng, q.RadiusMeters) {
			matched = append(matched, *e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate entity rows")
	}

	if q.SortByDistance {
		sort.Slice(matched, func(i, j int) bool {
			di := geo.Haversine(q.Center.Lat, q.Center.Lng, matched[i].Coord.Lat, matched[i].Coord.Lng)
			dj := geo.Haversine(q.Center.Lat, q.Center.Lng, matched[j].Coord.Lat, matched[j].Coord.Lng)
			return di < dj
		})
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
