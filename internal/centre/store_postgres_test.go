package centre

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nearestColumns = []string{"id", "loc_id", "longitude", "latitude", "attributes", "distance"}

func TestPostgresStore_FindNearest(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`ST_DWithin\(c\.geom::geography, q\.pt, \$3, false\)`).
		WithArgs(-79.4, 43.7, 1000.0, 50).
		WillReturnRows(pgxmock.NewRows(nearestColumns).
			AddRow("1", "1", -79.401, 43.701, []byte(`{"loc_id": 1, "program_name": "A"}`), 136.2).
			AddRow("2", "2", -79.405, 43.705, []byte(`{"loc_id": 2}`), 680.9))

	s := NewPostgresStore(mock)
	got, err := s.FindNearest(context.Background(), NearestQuery{Lat: 43.7, Lng: -79.4, MaxDistance: 1000, Limit: 50})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, Point{Lng: -79.401, Lat: 43.701}, got[0].Location)
	require.NotNil(t, got[0].Distance)
	assert.InDelta(t, 136.2, *got[0].Distance, 1e-9)
	assert.JSONEq(t, `"A"`, string(got[0].Attributes["program_name"]))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindNearest_Empty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM centres\.centres c, q`).
		WithArgs(-79.4, 43.7, 5000.0, 50).
		WillReturnRows(pgxmock.NewRows(nearestColumns))

	got, err := NewPostgresStore(mock).FindNearest(context.Background(), NearestQuery{Lat: 43.7, Lng: -79.4, MaxDistance: 5000, Limit: 50})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindNearest_MissingTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM centres\.centres c, q`).
		WithArgs(-79.4, 43.7, 5000.0, 50).
		WillReturnError(&pgconn.PgError{Code: "42P01", Message: `relation "centres.centres" does not exist`})

	_, err = NewPostgresStore(mock).FindNearest(context.Background(), NearestQuery{Lat: 43.7, Lng: -79.4, MaxDistance: 5000, Limit: 50})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIndexUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindNearest_DBError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM centres\.centres c, q`).
		WillReturnError(fmt.Errorf("connection refused"))
	mock.ExpectQuery(`FROM pg_indexes`).
		WithArgs(spatialIndexName).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	_, err = NewPostgresStore(mock).FindNearest(context.Background(), NearestQuery{Lat: 1, Lng: 1, MaxDistance: 1, Limit: 1})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrIndexUnavailable)
	assert.Contains(t, err.Error(), "find nearest")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindNearest_SpatialIndexDropped(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM centres\.centres c, q`).
		WillReturnError(&pgconn.PgError{Code: "57014", Message: "canceling statement due to statement timeout"})
	mock.ExpectQuery(`FROM pg_indexes`).
		WithArgs(spatialIndexName).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	_, err = NewPostgresStore(mock).FindNearest(context.Background(), NearestQuery{Lat: 43.7, Lng: -79.4, MaxDistance: 5000, Limit: 50})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIndexUnavailable)
	assert.Contains(t, err.Error(), spatialIndexName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindNearest_IndexCheckFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM centres\.centres c, q`).
		WillReturnError(fmt.Errorf("connection reset"))
	mock.ExpectQuery(`FROM pg_indexes`).
		WillReturnError(fmt.Errorf("connection reset"))

	_, err = NewPostgresStore(mock).FindNearest(context.Background(), NearestQuery{Lat: 1, Lng: 1, MaxDistance: 1, Limit: 1})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrIndexUnavailable)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindByLocID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM centres\.centres WHERE loc_id = \$1`).
		WithArgs("42").
		WillReturnRows(pgxmock.NewRows([]string{"id", "loc_id", "longitude", "latitude", "attributes"}).
			AddRow("42", "42", -79.3, 43.6, []byte(`{"loc_id": 42, "full_address": "1 Main St"}`)))

	c, err := NewPostgresStore(mock).FindByLocID(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "42", c.LocID)
	assert.Nil(t, c.Distance)
	assert.JSONEq(t, `"1 Main St"`, string(c.Attributes["full_address"]))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindByLocID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM centres\.centres WHERE loc_id = \$1`).
		WithArgs("404").
		WillReturnError(pgx.ErrNoRows)

	_, err = NewPostgresStore(mock).FindByLocID(context.Background(), "404")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Replace(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	centres := []Centre{
		{ID: "1", LocID: "1", Location: Point{Lng: -79.4, Lat: 43.7}, Attributes: RawRecord{"loc_id": json.RawMessage(`1`)}},
		{ID: "2", LocID: "2", Location: Point{Lng: -79.5, Lat: 43.8}},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WithArgs(replaceLockKey).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`DROP TABLE IF EXISTS "centres"\."centres_staging"`).
		WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(`CREATE TABLE "centres"\."centres_staging"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"centres", "centres_staging"}, centreColumns).
		WillReturnResult(2)
	mock.ExpectExec(`DROP TABLE "centres"\."centres"`).
		WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(`RENAME TO "centres"`).
		WillReturnResult(pgxmock.NewResult("ALTER", 0))
	mock.ExpectExec(`ADD CONSTRAINT centres_pkey`).WillReturnResult(pgxmock.NewResult("ALTER", 0))
	mock.ExpectExec(`CREATE UNIQUE INDEX centres_loc_id_idx`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE INDEX centres_location_gix .* USING GIST`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`ANALYZE centres\.centres`).WillReturnResult(pgxmock.NewResult("ANALYZE", 0))
	mock.ExpectCommit()

	n, err := NewPostgresStore(mock).Replace(context.Background(), centres)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Replace_RejectsInvalidLocation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPostgresStore(mock).Replace(context.Background(), []Centre{
		{ID: "1", LocID: "1", Location: Point{Lng: 500, Lat: 0}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid location")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_IndexReady(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM pg_indexes`).
		WithArgs(spatialIndexName).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := NewPostgresStore(mock).IndexReady(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMapStoreError(t *testing.T) {
	assert.ErrorIs(t, mapStoreError(&pgconn.PgError{Code: "42883"}), ErrIndexUnavailable)
	other := fmt.Errorf("boom")
	assert.Equal(t, other, mapStoreError(other))
}
