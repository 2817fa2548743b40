package storage

import (
	"context"
	"database/sql"
	"fmt"
)

type column struct {
	table    string
	name     string
	postgres string
	sqlite   string
}

var baseSchema = map[Dialect][]string{
	Postgres: {
		`CREATE TABLE IF NOT EXISTS offers (
			id BIGSERIAL PRIMARY KEY,
			dedup_key TEXT NOT NULL UNIQUE,
			canonical_url TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			normalized_title TEXT NOT NULL,
			store TEXT NOT NULL DEFAULT '',
			source_name TEXT NOT NULL DEFAULT '',
			product_url TEXT NOT NULL,
			image_url TEXT NOT NULL DEFAULT '',
			price NUMERIC(12,2),
			original_price NUMERIC(12,2),
			affiliate_url TEXT NOT NULL DEFAULT '',
			resolution_method TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'queued',
			observed_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS scheduled_jobs (
			id TEXT PRIMARY KEY,
			function_name TEXT NOT NULL,
			schedule TEXT NOT NULL,
			status TEXT NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			run_count INTEGER NOT NULL DEFAULT 0,
			retry_count INTEGER NOT NULL DEFAULT 0,
			max_retries INTEGER NOT NULL DEFAULT 0,
			next_run_at TIMESTAMPTZ,
			last_run_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS price_aggregates (
			store TEXT PRIMARY KEY,
			offer_count INTEGER NOT NULL,
			min_price NUMERIC(12,2) NOT NULL,
			max_price NUMERIC(12,2) NOT NULL,
			avg_price NUMERIC(12,2) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	},
	SQLite: {
		`CREATE TABLE IF NOT EXISTS offers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			dedup_key TEXT NOT NULL UNIQUE,
			canonical_url TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			normalized_title TEXT NOT NULL,
			store TEXT NOT NULL DEFAULT '',
			source_name TEXT NOT NULL DEFAULT '',
			product_url TEXT NOT NULL,
			image_url TEXT NOT NULL DEFAULT '',
			price TEXT,
			original_price TEXT,
			affiliate_url TEXT NOT NULL DEFAULT '',
			resolution_method TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'queued',
			observed_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS scheduled_jobs (
			id TEXT PRIMARY KEY,
			function_name TEXT NOT NULL,
			schedule TEXT NOT NULL,
			status TEXT NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT 1,
			run_count INTEGER NOT NULL DEFAULT 0,
			retry_count INTEGER NOT NULL DEFAULT 0,
			max_retries INTEGER NOT NULL DEFAULT 0,
			next_run_at TIMESTAMP,
			last_run_at TIMESTAMP,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS price_aggregates (
			store TEXT PRIMARY KEY,
			offer_count INTEGER NOT NULL,
			min_price TEXT NOT NULL,
			max_price TEXT NOT NULL,
			avg_price TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	},
}

// addedColumns are applied after the base schema, each only when missing.
var addedColumns = []column{
	{table: "offers", name: "blocked_reason", postgres: "TEXT NOT NULL DEFAULT ''", sqlite: "TEXT NOT NULL DEFAULT ''"},
	{table: "offers", name: "publish_attempts", postgres: "INTEGER NOT NULL DEFAULT 0", sqlite: "INTEGER NOT NULL DEFAULT 0"},
	{table: "offers", name: "discount_percent", postgres: "NUMERIC(6,2)", sqlite: "TEXT"},
	{table: "offers", name: "published_at", postgres: "TIMESTAMPTZ", sqlite: "TIMESTAMP"},
	{table: "scheduled_jobs", name: "last_error", postgres: "TEXT NOT NULL DEFAULT ''", sqlite: "TEXT NOT NULL DEFAULT ''"},
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_offers_status_created ON offers (status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_offers_store ON offers (store)`,
}

// Migrate creates missing tables, columns and indexes. Running it again is
// a no-op.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	stmts, ok := baseSchema[dialect]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedDriver, dialect)
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	for _, col := range addedColumns {
		exists, err := columnExists(ctx, db, dialect, col.table, col.name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		def := col.sqlite
		if dialect == Postgres {
			def = col.postgres
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", col.table, col.name, def)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s.%s: %w", col.table, col.name, err)
		}
	}

	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

func columnExists(ctx context.Context, db *sql.DB, dialect Dialect, table, name string) (bool, error) {
	b := dialect.builder().Select("COUNT(*)")
	if dialect == Postgres {
		b = b.From("information_schema.columns").
			Where("table_schema = current_schema() AND table_name = ? AND column_name = ?", table, name)
	} else {
		// table names come from addedColumns, never from input
		b = b.From(fmt.Sprintf("pragma_table_info('%s')", table)).Where("name = ?", name)
	}

	query, args, err := b.ToSql()
	if err != nil {
		return false, fmt.Errorf("build column check: %w", err)
	}
	var count int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("check column %s.%s: %w", table, name, err)
	}
	return count > 0, nil
}
