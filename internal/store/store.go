// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store is the pipeline state store. It exclusively owns
// persistence of canonical records, acquisition records, and the attempt
// log, and maintains full-text indexes over titles and abstracts.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DBFile is the database file name under the data directory.
const DBFile = "harvest.db"

// authorSep joins author names in the authors column.
const authorSep = "; "

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrInvalidOutcome is returned when an acquisition outcome carries both or
// neither of a resolved URL and an error description.
var ErrInvalidOutcome = errors.New("acquisition outcome must carry exactly one of resolved URL or error")

// Store manages the pipeline SQLite database. A Store is owned by one
// sequential worker at a time; the metadata worker pool shares it for
// canonical upserts only.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer keeps last-write-wins semantics simple and avoids
	// SQLITE_BUSY between the metadata workers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS canonical_records (
			identifier TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			authors TEXT NOT NULL,
			year INTEGER NOT NULL,
			journal_id TEXT NOT NULL,
			journal_name TEXT NOT NULL,
			publisher TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_canonical_year ON canonical_records(year)`,
		`CREATE INDEX IF NOT EXISTS idx_canonical_journal_year ON canonical_records(journal_id, year)`,
		`CREATE TABLE IF NOT EXISTS acquisition_records (
			identifier TEXT PRIMARY KEY REFERENCES canonical_records(identifier) ON DELETE CASCADE,
			resolved_url TEXT,
			confidence REAL,
			abstract TEXT,
			artifact_url TEXT,
			artifact_downloaded INTEGER NOT NULL DEFAULT 0,
			artifact_path TEXT,
			page_path TEXT,
			error TEXT,
			attempted_at TEXT NOT NULL,
			CHECK ((resolved_url IS NULL) <> (error IS NULL))
		)`,
		`CREATE TABLE IF NOT EXISTS attempt_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			identifier TEXT NOT NULL,
			stage TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			run_id TEXT,
			logged_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attempt_log_identifier ON attempt_log(identifier)`,
		`CREATE INDEX IF NOT EXISTS idx_attempt_log_stage ON attempt_log(stage)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	return s.createFTS()
}

// createFTS creates the external-content FTS5 tables over titles and
// abstracts with triggers that keep them in sync. RebuildIndex re-derives
// both from scratch.
func (s *Store) createFTS() error {
	indexes := []struct {
		name       string
		statements []string
	}{
		{
			name: "canonical_fts",
			statements: []string{
				`CREATE VIRTUAL TABLE canonical_fts USING fts5(title, content=canonical_records, content_rowid=rowid)`,
				`CREATE TRIGGER canonical_ai AFTER INSERT ON canonical_records BEGIN
					INSERT INTO canonical_fts(rowid, title) VALUES (new.rowid, new.title);
				END`,
				`CREATE TRIGGER canonical_ad AFTER DELETE ON canonical_records BEGIN
					INSERT INTO canonical_fts(canonical_fts, rowid, title) VALUES('delete', old.rowid, old.title);
				END`,
				`CREATE TRIGGER canonical_au AFTER UPDATE OF title ON canonical_records BEGIN
					INSERT INTO canonical_fts(canonical_fts, rowid, title) VALUES('delete', old.rowid, old.title);
					INSERT INTO canonical_fts(rowid, title) VALUES (new.rowid, new.title);
				END`,
			},
		},
		{
			name: "abstract_fts",
			statements: []string{
				`CREATE VIRTUAL TABLE abstract_fts USING fts5(abstract, content=acquisition_records, content_rowid=rowid)`,
				`CREATE TRIGGER abstract_ai AFTER INSERT ON acquisition_records BEGIN
					INSERT INTO abstract_fts(rowid, abstract) VALUES (new.rowid, new.abstract);
				END`,
				`CREATE TRIGGER abstract_ad AFTER DELETE ON acquisition_records BEGIN
					INSERT INTO abstract_fts(abstract_fts, rowid, abstract) VALUES('delete', old.rowid, old.abstract);
				END`,
				`CREATE TRIGGER abstract_au AFTER UPDATE OF abstract ON acquisition_records BEGIN
					INSERT INTO abstract_fts(abstract_fts, rowid, abstract) VALUES('delete', old.rowid, old.abstract);
					INSERT INTO abstract_fts(rowid, abstract) VALUES (new.rowid, new.abstract);
				END`,
			},
		},
	}

	for _, idx := range indexes {
		var exists int
		if err := s.db.QueryRow(
			`SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, idx.name,
		).Scan(&exists); err != nil {
			return fmt.Errorf("checking %s: %w", idx.name, err)
		}
		if exists > 0 {
			continue
		}
		for _, stmt := range idx.statements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating %s: %w", idx.name, err)
			}
		}
	}
	return nil
}

// RebuildIndex rebuilds both full-text indexes from their content tables.
// Stages call it after bulk writes.
func (s *Store) RebuildIndex(ctx context.Context) error {
	for _, stmt := range []string{
		`INSERT INTO canonical_fts(canonical_fts) VALUES('rebuild')`,
		`INSERT INTO abstract_fts(abstract_fts) VALUES('rebuild')`,
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("rebuilding index: %w", err)
		}
	}
	return nil
}

// nullable maps the empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func joinAuthors(authors []string) string {
	return strings.Join(authors, authorSep)
}

func splitAuthors(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, authorSep)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
