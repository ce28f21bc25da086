package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reliefgrid/reliefgrid/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgres(mock), mock
}

func entityRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "kind", "name", "location_name", "latitude", "longitude",
		"display_name", "type", "meta", "created_at", "updated_at",
	})
}

func TestPostgres_FindNear_LngFirstArgs(t *testing.T) {
	s, mock := newMockStore(t)

	lat, lng := 40.7128, -74.006
	display := "Manhattan"
	now := time.Now().UTC()
	mock.ExpectQuery(`ST_DWithin`).
		WithArgs("resource", -74.006, 40.7128, 10000.0).
		WillReturnRows(entityRows().AddRow(
			"id-1", "resource", "Shelter A", "Manhattan", &lat, &lng,
			&display, "shelter", []byte(`{}`), now, now,
		))

	results, err := s.FindNear(context.Background(), NearQuery{
		Kind:         model.KindResource,
		Center:       model.Coordinates{Lat: 40.7128, Lng: -74.006},
		RadiusMeters: 10000,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Shelter A", results[0].Name)
	require.NotNil(t, results[0].Coord)
	assert.Equal(t, 40.7128, results[0].Coord.Lat)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindNear_ZeroRadiusExactMatch(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`abs\(longitude - \$2\) <= 1e-9 AND abs\(latitude - \$3\) <= 1e-9`).
		WithArgs("resource", -74.0, 40.0).
		WillReturnRows(entityRows())

	_, err := s.FindNear(context.Background(), NearQuery{
		Kind:   model.KindResource,
		Center: model.Coordinates{Lat: 40.0, Lng: -74.0},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindNear_RejectsInvalidQuery(t *testing.T) {
	s, _ := newMockStore(t)

	_, err := s.FindNear(context.Background(), NearQuery{
		Kind:         model.KindResource,
		Center:       model.Coordinates{Lat: 95, Lng: 0},
		RadiusMeters: 100,
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPostgres_GetEntity_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM entities WHERE kind = \$1 AND id = \$2`).
		WithArgs("resource", "missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetEntity(context.Background(), model.KindResource, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateEntity(t *testing.T) {
	s, mock := newMockStore(t)

	now := time.Now().UTC()
	e := &model.Entity{
		ID:           "id-1",
		Kind:         model.KindDisaster,
		Name:         "Riverbank flood",
		LocationName: "riverbank district",
		Coord:        &model.Coordinates{Lat: 40.1, Lng: -74.2, DisplayName: "Riverbank"},
		Type:         "flood",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	mock.ExpectExec(`INSERT INTO entities`).
		WithArgs("id-1", "disaster", "Riverbank flood", "riverbank district",
			&e.Coord.Lat, &e.Coord.Lng, &e.Coord.DisplayName, "flood",
			pgxmock.AnyArg(), now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.CreateEntity(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateEntity_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE entities`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	e := &model.Entity{ID: "ghost", Kind: model.KindResource, Name: "x", LocationName: "x", Type: "shelter"}
	err := s.UpdateEntity(context.Background(), e)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeleteEntity(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM entities WHERE kind = \$1 AND id = \$2`).
		WithArgs("resource", "id-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM entities WHERE kind = \$1 AND id = \$2`).
		WithArgs("resource", "id-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	ctx := context.Background()
	require.NoError(t, s.DeleteEntity(ctx, model.KindResource, "id-1"))
	assert.ErrorIs(t, s.DeleteEntity(ctx, model.KindResource, "id-1"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListEntities_TypeFilter(t *testing.T) {
	s, mock := newMockStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .+ FROM entities WHERE kind = \$1 AND type = \$2 ORDER BY created_at`).
		WithArgs("resource", "medical").
		WillReturnRows(entityRows().AddRow(
			"id-2", "resource", "Field clinic", "midtown", nil, nil,
			nil, "medical", []byte(`{"description":"triage"}`), now, now,
		))

	results, err := s.ListEntities(context.Background(), ListFilter{Kind: model.KindResource, Type: "medical"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Field clinic", results[0].Name)
	assert.Nil(t, results[0].Coord, "unresolved entities list without a point")
	assert.Equal(t, "triage", results[0].Meta.Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}
