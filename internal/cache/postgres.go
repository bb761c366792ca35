package cache

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/familyhub/centres-api/internal/db"
)

// PostgresStore implements Store on centres.cache_documents. The payload
// column is JSON rather than JSONB so the stored text is kept verbatim.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore. The table comes from the centre
// migrations.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Put implements Store.
func (s *PostgresStore) Put(ctx context.Context, key string, payload json.RawMessage) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO centres.cache_documents (key, payload, refreshed_at)
		VALUES ($1, $2::json, now())
		ON CONFLICT (key) DO UPDATE
		SET payload = EXCLUDED.payload, refreshed_at = EXCLUDED.refreshed_at`,
		key, string(payload),
	)
	return eris.Wrapf(err, "cache: postgres: put %s", key)
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, key string) (json.RawMessage, error) {
	var payload string
	err := s.pool.QueryRow(ctx,
		`SELECT payload::text FROM centres.cache_documents WHERE key = $1`, key,
	).Scan(&payload)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "key %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "cache: postgres: get %s", key)
	}
	return json.RawMessage(payload), nil
}
