package centre

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/familyhub/centres-api/internal/db"
)

const (
	centresTable     = "centres.centres"
	spatialIndexName = "centres_location_gix"

	// replaceLockKey serializes concurrent rebuilds of the centres table.
	replaceLockKey int64 = 7211990
)

var centreColumns = []string{"id", "loc_id", "longitude", "latitude", "attributes"}

// afterSwap rebuilds the constraints and indexes dropped with the old table.
var afterSwap = []string{
	`ALTER TABLE centres.centres ADD CONSTRAINT centres_pkey PRIMARY KEY (id)`,
	`CREATE UNIQUE INDEX centres_loc_id_idx ON centres.centres (loc_id)`,
	`CREATE INDEX ` + spatialIndexName + ` ON centres.centres USING GIST ((geom::geography))`,
	`ANALYZE centres.centres`,
}

// PostgresStore implements Store on PostGIS.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Replace implements Store.
func (s *PostgresStore) Replace(ctx context.Context, centres []Centre) (int64, error) {
	rows := make([][]any, len(centres))
	for i, c := range centres {
		if !c.Location.Valid() {
			return 0, eris.Errorf("centre: replace: centre %s has invalid location", c.ID)
		}
		attrs, err := json.Marshal(normalizeAttributes(c.Attributes))
		if err != nil {
			return 0, eris.Wrapf(err, "centre: replace: encode attributes for %s", c.ID)
		}
		rows[i] = []any{c.ID, c.LocID, c.Location.Lng, c.Location.Lat, attrs}
	}

	n, err := db.SwapTable(ctx, s.pool, db.SwapConfig{
		Table:     centresTable,
		Columns:   centreColumns,
		LockKey:   replaceLockKey,
		AfterSwap: afterSwap,
	}, rows)
	if err != nil {
		return 0, eris.Wrap(mapStoreError(err), "centre: replace")
	}
	return n, nil
}

// FindNearest implements Store. Distances use the sphere model
// (use_spheroid = false) on both the filter and the ordering.
func (s *PostgresStore) FindNearest(ctx context.Context, q NearestQuery) ([]Centre, error) {
	sql := `
		WITH q AS (SELECT ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography AS pt)
		SELECT c.id, c.loc_id, c.longitude, c.latitude, c.attributes,
		       ST_Distance(c.geom::geography, q.pt, false) AS distance
		FROM centres.centres c, q
		WHERE ST_DWithin(c.geom::geography, q.pt, $3, false)
		ORDER BY distance
		LIMIT $4
	`
	rows, err := s.pool.Query(ctx, sql, q.Lng, q.Lat, q.MaxDistance, q.Limit)
	if err != nil {
		return nil, eris.Wrap(s.nearestError(ctx, err), "centre: find nearest")
	}
	defer rows.Close()

	centres := make([]Centre, 0)
	for rows.Next() {
		var (
			c     Centre
			attrs []byte
			dist  float64
		)
		if err := rows.Scan(&c.ID, &c.LocID, &c.Location.Lng, &c.Location.Lat, &attrs, &dist); err != nil {
			return nil, eris.Wrap(err, "centre: scan nearest row")
		}
		if err := json.Unmarshal(attrs, &c.Attributes); err != nil {
			return nil, eris.Wrapf(err, "centre: decode attributes for %s", c.ID)
		}
		c.Distance = &dist
		centres = append(centres, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(s.nearestError(ctx, err), "centre: iterate nearest rows")
	}
	return centres, nil
}

// FindByLocID implements Store.
func (s *PostgresStore) FindByLocID(ctx context.Context, locID string) (*Centre, error) {
	sql := `
		SELECT id, loc_id, longitude, latitude, attributes
		FROM centres.centres WHERE loc_id = $1
	`
	var (
		c     Centre
		attrs []byte
	)
	err := s.pool.QueryRow(ctx, sql, locID).Scan(&c.ID, &c.LocID, &c.Location.Lng, &c.Location.Lat, &attrs)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "loc_id %s", locID)
		}
		return nil, eris.Wrap(mapStoreError(err), "centre: find by loc_id")
	}
	if err := json.Unmarshal(attrs, &c.Attributes); err != nil {
		return nil, eris.Wrapf(err, "centre: decode attributes for %s", c.ID)
	}
	return &c, nil
}

// IndexReady implements Store.
func (s *PostgresStore) IndexReady(ctx context.Context) (bool, error) {
	sql := `
		SELECT EXISTS (
			SELECT 1 FROM pg_indexes
			WHERE schemaname = 'centres' AND tablename = 'centres' AND indexname = $1
		)
	`
	var ok bool
	if err := s.pool.QueryRow(ctx, sql, spatialIndexName).Scan(&ok); err != nil {
		return false, eris.Wrap(err, "centre: check spatial index")
	}
	return ok, nil
}

// nearestError classifies a failed proximity query. Errors that do not name
// a missing relation are checked against IndexReady so a dropped spatial
// index still surfaces as ErrIndexUnavailable.
func (s *PostgresStore) nearestError(ctx context.Context, err error) error {
	mapped := mapStoreError(err)
	if eris.Is(mapped, ErrIndexUnavailable) {
		return mapped
	}
	if ready, rerr := s.IndexReady(ctx); rerr == nil && !ready {
		return eris.Wrapf(ErrIndexUnavailable, "%s missing: %v", spatialIndexName, err)
	}
	return mapped
}

// mapStoreError translates "relation/function does not exist" into
// ErrIndexUnavailable and leaves other errors untouched.
func mapStoreError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42P01", "42883", "3F000":
			return eris.Wrapf(ErrIndexUnavailable, "%s (%s)", pgErr.Message, pgErr.Code)
		}
	}
	return err
}

// normalizeAttributes returns an empty record for nil attributes.
func normalizeAttributes(attrs RawRecord) RawRecord {
	if attrs == nil {
		return RawRecord{}
	}
	return attrs
}
