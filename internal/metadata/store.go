// Package metadata holds the output of the last project scan in an
// in-memory SQLite database: references grouped by source file, the doc
// blocks they point at, and the not-found list.
//
// Nothing persists across sessions. Every scan replaces the whole database
// content in one transaction.
package metadata

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrDocNotFound is returned by DocBlock for a markdown file the last
	// scan did not read.
	ErrDocNotFound = errors.New("md file not found")
	// ErrRefNotFound is returned by DocBlock when no reference starts on
	// the requested line.
	ErrRefNotFound = errors.New("reference not found")
)

// Store is the SQLite data access layer for scan metadata.
type Store struct {
	db *sql.DB
}

// Open creates an in-memory database and migrates it. The pool is pinned
// to one connection because each :memory: connection is its own database.
func Open() (*Store, error) {
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("metadata: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("metadata: ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database. Its contents are gone afterwards.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("metadata: migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS docs (
  path            TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS blocks (
  doc_path        TEXT NOT NULL REFERENCES docs(path),
  line            INTEGER NOT NULL,
  body            TEXT NOT NULL,
  PRIMARY KEY (doc_path, line)
);

CREATE TABLE IF NOT EXISTS files (
  path            TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS refs (
  file            TEXT NOT NULL REFERENCES files(path),
  id              TEXT NOT NULL,
  ordinal         INTEGER NOT NULL,
  found           BOOLEAN NOT NULL,
  span_from       INTEGER NOT NULL,
  span_to         INTEGER NOT NULL,
  directive       TEXT,
  query_file      TEXT NOT NULL,
  query_selector  TEXT,
  query_kind      TEXT NOT NULL,
  locations       TEXT NOT NULL,
  PRIMARY KEY (file, id)
);

CREATE TABLE IF NOT EXISTS not_found (
  ordinal         INTEGER PRIMARY KEY,
  id              TEXT NOT NULL,
  query_file      TEXT NOT NULL,
  query_selector  TEXT,
  query_kind      TEXT NOT NULL,
  reason          TEXT NOT NULL,
  locations       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_refs_file_ordinal ON refs(file, ordinal);
`
