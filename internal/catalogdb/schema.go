package catalogdb

import (
	"database/sql"
	"fmt"
)

// createSchema runs the full DDL in a transaction and records
// expectedUserVersion. Called only when resetIfStale reported a rebuild.
func createSchema(conn *sql.DB) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("catalogdb: begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range schemaStatements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("catalogdb: create schema: %w", err)
		}
	}

	if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, expectedUserVersion)); err != nil {
		return fmt.Errorf("catalogdb: set user_version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalogdb: commit schema: %w", err)
	}
	return nil
}

// schemaStatements mirrors spec §3's entity list, with shows addressing its
// text and url blobs by a single (blob_id, offset) pair each plus a mask
// selecting which optional url suffix strings are present, rather than one
// offset column per optional field.
var schemaStatements = []string{
	`CREATE TABLE channels (
		id INTEGER PRIMARY KEY,
		channel TEXT NOT NULL,
		UNIQUE(channel)
	)`,
	`CREATE TABLE topics (
		id INTEGER PRIMARY KEY,
		topic TEXT NOT NULL,
		channel_id INTEGER NOT NULL,
		UNIQUE(topic, channel_id)
	)`,
	`CREATE INDEX topics_by_channel ON topics(channel_id)`,
	`CREATE TABLE shows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		topic_id INTEGER NOT NULL,
		text_blob_id INTEGER NOT NULL,
		text_offset INTEGER NOT NULL,
		url_blob_id INTEGER NOT NULL,
		url_offset INTEGER NOT NULL,
		url_mask INTEGER NOT NULL,
		date INTEGER NOT NULL,
		time INTEGER NOT NULL,
		duration INTEGER NOT NULL
	)`,
	`CREATE INDEX shows_by_topic ON shows(topic_id ASC, date DESC, time DESC)`,
	`CREATE VIRTUAL TABLE shows_by_title USING FTS5(title, content='', detail=none)`,
	`CREATE TABLE blobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		blob BLOB NOT NULL
	)`,
	`INSERT INTO sqlite_sequence (name, seq) VALUES ('shows', 0)`,
	`INSERT INTO sqlite_sequence (name, seq) VALUES ('blobs', 0)`,
}

// nextBlobID pre-allocates a blob id by bumping the blobs sequence counter
// and reading it back, before any row or blob content references it.
func nextBlobID(exec execer) (int64, error) {
	if _, err := exec.Exec(`UPDATE sqlite_sequence SET seq = seq + 1 WHERE name = 'blobs'`); err != nil {
		return 0, fmt.Errorf("catalogdb: allocate blob id: %w", err)
	}
	var id int64
	if err := exec.QueryRow(`SELECT seq FROM sqlite_sequence WHERE name = 'blobs'`).Scan(&id); err != nil {
		return 0, fmt.Errorf("catalogdb: read allocated blob id: %w", err)
	}
	return id, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}
