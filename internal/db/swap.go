package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// SwapConfig defines a staged full-table replacement.
type SwapConfig struct {
	Table   string   // live table, schema-qualified (e.g. "centres.centres")
	Columns []string // columns written by COPY; generated columns are omitted
	LockKey int64    // advisory lock serializing concurrent swaps of Table
	// AfterSwap statements run inside the transaction once the staging table
	// has taken the live name (constraints, indexes).
	AfterSwap []string
}

// stagingName returns the schema-qualified staging table for cfg.Table.
func (cfg SwapConfig) stagingName() string {
	return cfg.Table + "_staging"
}

// SwapTable replaces the full contents of cfg.Table with rows.
//  1. Takes a transaction-scoped advisory lock on cfg.LockKey
//  2. Creates a staging table shaped like the live table
//  3. COPY rows into staging
//  4. Drops the live table and renames staging into its place
//  5. Runs cfg.AfterSwap
//
// Everything happens in one transaction, so readers see either the old
// contents or the new ones.
func SwapTable(ctx context.Context, pool Pool, cfg SwapConfig, rows [][]any) (int64, error) {
	if cfg.Table == "" {
		return 0, eris.New("db: swap: no table specified")
	}
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: swap: no columns specified")
	}

	live := sanitizeTable(cfg.Table)
	staging := cfg.stagingName()
	stagingIdent := sanitizeTable(staging)
	liveName := identifier(cfg.Table)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: swap: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", cfg.LockKey); err != nil {
		return 0, eris.Wrapf(err, "db: swap: lock %s", cfg.Table)
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", stagingIdent)); err != nil {
		return 0, eris.Wrapf(err, "db: swap: drop stale staging for %s", cfg.Table)
	}

	createSQL := fmt.Sprintf(
		"CREATE TABLE %s (LIKE %s INCLUDING DEFAULTS INCLUDING GENERATED INCLUDING CONSTRAINTS)",
		stagingIdent, live,
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: swap: create staging for %s", cfg.Table)
	}

	n, err := CopyFrom(ctx, tx, staging, cfg.Columns, rows)
	if err != nil {
		return 0, eris.Wrap(err, "db: swap: load staging")
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf("DROP TABLE %s", live)); err != nil {
		return 0, eris.Wrapf(err, "db: swap: drop %s", cfg.Table)
	}

	renameSQL := fmt.Sprintf(
		"ALTER TABLE %s RENAME TO %s",
		stagingIdent, liveName[len(liveName)-1:].Sanitize(),
	)
	if _, err := tx.Exec(ctx, renameSQL); err != nil {
		return 0, eris.Wrapf(err, "db: swap: rename staging to %s", cfg.Table)
	}

	for _, stmt := range cfg.AfterSwap {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return 0, eris.Wrapf(err, "db: swap: after-swap %q", firstWords(stmt, 4))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: swap: commit tx")
	}

	return n, nil
}

// firstWords returns up to n leading words of s for error messages.
func firstWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}
