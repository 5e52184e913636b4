package kvstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// migrations is the fixed, ordered list of schema scripts applied to a
// freshly opened database. The applied count is tracked in migration_state
// so reopening an existing database only runs what's missing.
var migrations = []string{
	// 1: data-version singleton + kv table.
	`
CREATE TABLE data_version (
	k INTEGER PRIMARY KEY,
	version INTEGER NOT NULL
);
INSERT INTO data_version (k, version) VALUES (0, 0);
CREATE TABLE kv (
	k BLOB PRIMARY KEY,
	v BLOB NOT NULL,
	v_encoding INTEGER NOT NULL,
	version INTEGER NOT NULL
);
`,
	// 2: queue + queue_running tables.
	`
CREATE TABLE queue (
	ts INTEGER NOT NULL,
	id TEXT NOT NULL,
	data BLOB NOT NULL,
	backoff_schedule TEXT NOT NULL,
	keys_if_undelivered TEXT NOT NULL,
	PRIMARY KEY (ts, id)
);
CREATE TABLE queue_running (
	deadline INTEGER NOT NULL,
	id TEXT NOT NULL,
	data BLOB NOT NULL,
	backoff_schedule TEXT NOT NULL,
	keys_if_undelivered TEXT NOT NULL,
	PRIMARY KEY (deadline, id)
);
`,
	// 3: sequence + expiration columns, and the expiration index.
	`
ALTER TABLE kv ADD COLUMN seq INTEGER NOT NULL DEFAULT 0;
ALTER TABLE data_version ADD COLUMN seq INTEGER NOT NULL DEFAULT 0;
ALTER TABLE kv ADD COLUMN expiration_ms INTEGER NOT NULL DEFAULT -1;
CREATE INDEX kv_expiration_ms_idx ON kv (expiration_ms);
`,
}

const createMigrationTableStmt = `
CREATE TABLE IF NOT EXISTS migration_state (
	k INTEGER NOT NULL PRIMARY KEY,
	version INTEGER NOT NULL
)
`

// applyPragmas configures the SQLite connection the way a single-writer
// embedded store needs: WAL journaling for concurrent readers, a generous
// busy timeout as a second line of defense behind the connection guard,
// and a single open connection since SQLite allows only one writer.
func applyPragmas(db *sql.DB) error {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}
	return nil
}

// applyMigrations runs every migration script beyond the currently
// recorded schema version, recording the new version after each.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, createMigrationTableStmt); err != nil {
		return fmt.Errorf("create migration_state: %w", err)
	}

	var current int
	row := tx.QueryRowContext(ctx, "SELECT version FROM migration_state WHERE k = 0")
	if err := row.Scan(&current); err != nil {
		if err != sql.ErrNoRows {
			return fmt.Errorf("read migration_state: %w", err)
		}
		current = 0
	}

	for i, script := range migrations {
		version := i + 1
		if version <= current {
			continue
		}
		if _, err := tx.ExecContext(ctx, script); err != nil {
			return fmt.Errorf("apply migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"REPLACE INTO migration_state (k, version) VALUES (0, ?)", version); err != nil {
			return fmt.Errorf("record migration %d: %w", version, err)
		}
	}

	return tx.Commit()
}

// openSQLite opens (and migrates) the SQLite file at path, or an in-memory
// database for ":memory:". Callers resolve default-storage-dir placement
// (the empty path) before calling this.
func openSQLite(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applyMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
