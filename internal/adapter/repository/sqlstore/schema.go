package sqlstore

import (
	"context"
	"fmt"
)

// Monetary values are stored as TEXT and parsed with decimal.NewFromString
var schema = []string{
	`CREATE TABLE IF NOT EXISTS raw_records (
		table_name      TEXT NOT NULL,
		kind            TEXT NOT NULL,
		source          TEXT NOT NULL,
		target          TEXT NOT NULL,
		value           TEXT NOT NULL,
		record_date     TEXT NOT NULL,
		pool            TEXT NOT NULL DEFAULT '',
		asset_class     TEXT NOT NULL DEFAULT '',
		sub_asset_class TEXT NOT NULL DEFAULT '',
		sleeve          TEXT NOT NULL DEFAULT '',
		family_branch   TEXT NOT NULL DEFAULT '',
		classification  TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_raw_records_table ON raw_records (table_name)`,
	`CREATE TABLE IF NOT EXISTS calculation_rows (
		pool               TEXT NOT NULL,
		investor           TEXT NOT NULL,
		fund               TEXT NOT NULL,
		month              TEXT NOT NULL,
		family_branch      TEXT NOT NULL DEFAULT '',
		asset_class        TEXT NOT NULL DEFAULT '',
		sub_asset_class    TEXT NOT NULL DEFAULT '',
		sleeve             TEXT NOT NULL DEFAULT '',
		data_type          TEXT NOT NULL,
		nav                TEXT NOT NULL,
		gain               TEXT NOT NULL,
		denominator        TEXT NOT NULL,
		return_pct         TEXT NOT NULL,
		ownership          TEXT NOT NULL,
		commitment         TEXT NOT NULL,
		unfunded           TEXT NOT NULL,
		irr_eligible       INTEGER NOT NULL DEFAULT 0,
		ownership_adjusted INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (pool, investor, fund, month)
	)`,
	`CREATE TABLE IF NOT EXISTS change_cursor (
		pool   TEXT PRIMARY KEY,
		month  TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS run_log (
		id          TEXT PRIMARY KEY,
		started_at  TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		state       TEXT NOT NULL,
		pools       INTEGER NOT NULL,
		rows_count  INTEGER NOT NULL,
		message     TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS funds (
		fund            TEXT PRIMARY KEY,
		pool            TEXT NOT NULL DEFAULT '',
		asset_class     TEXT NOT NULL DEFAULT '',
		sub_asset_class TEXT NOT NULL DEFAULT '',
		sleeve          TEXT NOT NULL DEFAULT '',
		consolidator    TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS benchmarks (
		name       TEXT NOT NULL,
		month      TEXT NOT NULL,
		return_pct TEXT NOT NULL,
		itd        TEXT,
		PRIMARY KEY (name, month)
	)`,
	`CREATE TABLE IF NOT EXISTS benchmark_links (
		benchmark TEXT NOT NULL,
		level     TEXT NOT NULL,
		value     TEXT NOT NULL,
		PRIMARY KEY (benchmark, level, value)
	)`,
}

// Migrate creates the schema if it does not exist
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}
