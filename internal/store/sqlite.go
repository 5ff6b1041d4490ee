// Package store implements the Chunk, Edge, Cluster, Vector and Keyword
// stores (C2-C6) on top of a single SQLite database file, following the
// same WAL/single-writer idiom the teacher's BM25 index used for
// concurrent-safe access.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, no CGO

	"github.com/causantic/causantic/internal/causanticerr"
)

// DB wraps the shared *sql.DB handle and the database file path; every
// concrete store holds a *DB so they all operate on the same connection
// pool and transaction semantics.
type DB struct {
	conn *sql.DB
	path string
}

// OpenOptions configures the shared database connection.
type OpenOptions struct {
	// Path is the SQLite file path. Empty means an in-memory database,
	// useful for tests.
	Path string

	// CacheSizeMB sets the SQLite page cache size. 0 uses the default (64MB).
	CacheSizeMB int
}

// Open opens (creating if needed) the shared SQLite database and applies
// the schema migrations.
func Open(opts OpenOptions) (*DB, error) {
	dsn := ":memory:"
	if opts.Path != "" {
		dsn = opts.Path
		if dir := filepath.Dir(opts.Path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, causanticerr.StoreUnavailable("failed to create database directory", err)
			}
		}
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, causanticerr.StoreUnavailable("failed to open database", err)
	}

	// Single writer connection to avoid SQLITE_BUSY from the Go pool itself;
	// WAL + busy_timeout handle the remaining cross-process contention.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	cacheMB := opts.CacheSizeMB
	if cacheMB == 0 {
		cacheMB = 64
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA cache_size = -%d", cacheMB*1024),
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			_ = conn.Close()
			return nil, causanticerr.StoreUnavailable("failed to set pragma "+p, err)
		}
	}

	db := &DB{conn: conn, path: opts.Path}
	if err := db.migrate(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *DB) migrate() error {
	if _, err := db.conn.Exec(schemaDDL); err != nil {
		return causanticerr.StoreUnavailable("failed to apply schema", err)
	}

	var current int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return causanticerr.StoreUnavailable("failed to read schema version", err)
	}

	if current < schemaVersion {
		_, err := db.conn.Exec(
			"INSERT INTO schema_version(version, applied_at) VALUES (?, ?)",
			schemaVersion, time.Now().UTC().Format(time.RFC3339),
		)
		if err != nil {
			return causanticerr.StoreUnavailable("failed to record schema version", err)
		}
	}

	return nil
}

// Close releases the underlying connection after checkpointing the WAL.
func (db *DB) Close() error {
	_, _ = db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return db.conn.Close()
}

// Conn exposes the underlying *sql.DB for stores built on top of DB.
func (db *DB) Conn() *sql.DB {
	return db.conn
}
