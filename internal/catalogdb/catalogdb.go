// Package catalogdb holds the on-disk show catalog: schema management,
// ingestion (Indexer), and the read paths (channels/topics/query/fetch).
//
// The database is a single modernc.org/sqlite file named "database" inside
// the configured data directory, opened in WAL mode with synchronous=NORMAL.
// database/sql's own connection pool stands in for the private-cache,
// single-writer mode the schema otherwise assumes; DB.conn is capped at one
// open connection so two goroutines never race the same file.
package catalogdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// expectedUserVersion is bumped whenever the shows/blobs row layout changes.
// A mismatch against the on-disk PRAGMA user_version wipes and rebuilds.
const expectedUserVersion = 1

// URL mask bits recorded in shows.url_mask, per the blob layout in schema.go.
const (
	URLSmall = 0b01
	URLLarge = 0b10
)

// DB is an open catalog database.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (creating if needed) the catalog database under dir. needsUpdate
// reports whether the on-disk schema was missing or at the wrong version and
// had to be rebuilt from scratch, in which case the caller should run a full
// update before serving reads.
func Open(dir string) (db *DB, needsUpdate bool, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, false, fmt.Errorf("catalogdb: create data dir: %w", err)
	}
	path := filepath.Join(dir, "database")

	needsUpdate, err = resetIfStale(path)
	if err != nil {
		return nil, false, err
	}

	conn, err := openConn(path)
	if err != nil {
		return nil, false, err
	}

	if needsUpdate {
		if err := createSchema(conn); err != nil {
			conn.Close()
			return nil, false, err
		}
	}

	return &DB{conn: conn, path: path}, needsUpdate, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Checkpoint truncates the WAL file, folding its contents back into the main
// database file. Call after an update's transaction commits.
func (db *DB) Checkpoint() error {
	if _, err := db.conn.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("catalogdb: wal checkpoint: %w", err)
	}
	return nil
}

// Begin starts a write transaction on db's connection.
func (db *DB) Begin() (*sql.Tx, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("catalogdb: begin transaction: %w", err)
	}
	return tx, nil
}

// OpenExisting opens a second connection to an already-initialized catalog
// database, skipping the user_version check Open performs. An update
// coordinator uses this for its writer connection while a long-lived reader
// connection (opened via Open at startup) keeps serving queries.
func OpenExisting(dir string) (*DB, error) {
	path := filepath.Join(dir, "database")
	conn, err := openConn(path)
	if err != nil {
		return nil, err
	}
	return &DB{conn: conn, path: path}, nil
}

// openConn opens the sqlite file with the pragmas the schema relies on.
func openConn(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("catalogdb: open %s: %w", path, err)
	}
	// Emulates sqlite's private-cache mode: one physical connection, so
	// readers inside the same process never see another goroutine's
	// half-written row via a shared cache.
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA synchronous = NORMAL`,
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("catalogdb: %s: %w", pragma, err)
		}
	}
	return conn, nil
}

// resetIfStale checks path's user_version and, if it is missing or does not
// match expectedUserVersion, deletes the file (and its WAL/SHM sidecars) so
// the caller creates a fresh schema.
func resetIfStale(path string) (reset bool, err error) {
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return true, nil
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return false, fmt.Errorf("catalogdb: open %s for version check: %w", path, err)
	}
	var version int
	scanErr := conn.QueryRow(`PRAGMA user_version`).Scan(&version)
	conn.Close()
	if scanErr != nil {
		return false, fmt.Errorf("catalogdb: read user_version: %w", scanErr)
	}

	if version == expectedUserVersion {
		return false, nil
	}

	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
			return false, fmt.Errorf("catalogdb: remove stale %s%s: %w", path, suffix, err)
		}
	}
	return true, nil
}
