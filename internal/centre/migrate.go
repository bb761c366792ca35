package centre

import (
	"context"
	"embed"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/familyhub/centres-api/internal/db"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationLockKey keeps overlapping deploys from migrating concurrently.
const migrationLockKey int64 = 7211989

// querier is the part of a pool or transaction the migrator needs.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Migrate runs all pending SQL migrations in lexicographic order.
// It creates the centres schema and schema_migrations tracking table if
// needed, then applies any .sql files not yet recorded. The whole run is one
// transaction holding an advisory lock, so a failed migration leaves nothing
// behind.
func Migrate(ctx context.Context, pool db.Pool) error {
	log := zap.L().With(zap.String("component", "centre.migrate"))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "centre: begin migration tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
		return eris.Wrap(err, "centre: acquire migration advisory lock")
	}

	if err := ensureMigrationTable(ctx, tx); err != nil {
		return err
	}

	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return eris.Wrap(err, "centre: read migration dir")
	}

	// Lexicographic = numeric order with zero-padded names.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	applied, err := appliedMigrations(ctx, tx)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if applied[name] {
			continue
		}

		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return eris.Wrapf(err, "centre: read migration %s", name)
		}

		log.Info("applying migration", zap.String("file", name))

		if _, err := tx.Exec(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "centre: apply migration %s", name)
		}

		if _, err := tx.Exec(ctx,
			"INSERT INTO centres.schema_migrations (filename, applied_at) VALUES ($1, now())",
			name,
		); err != nil {
			return eris.Wrapf(err, "centre: record migration %s", name)
		}

		log.Info("migration applied", zap.String("file", name))
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "centre: commit migrations")
	}
	return nil
}

// ensureMigrationTable creates the centres schema and migration tracking table.
func ensureMigrationTable(ctx context.Context, q querier) error {
	sql := `
		CREATE SCHEMA IF NOT EXISTS centres;
		CREATE TABLE IF NOT EXISTS centres.schema_migrations (
			id         SERIAL PRIMARY KEY,
			filename   TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`
	if _, err := q.Exec(ctx, sql); err != nil {
		return eris.Wrap(err, "centre: ensure migration table")
	}
	return nil
}

// appliedMigrations returns the set of already-applied migration filenames.
func appliedMigrations(ctx context.Context, q querier) (map[string]bool, error) {
	rows, err := q.Query(ctx, "SELECT filename FROM centres.schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "centre: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "centre: scan migration row")
		}
		applied[name] = true
	}
	return applied, rows.Err()
}
