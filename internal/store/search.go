// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/paper-harvest/pkg/types"
)

const defaultSearchLimit = 20

// SearchTitle runs a full-text query over canonical titles, best match
// first.
func (s *Store) SearchTitle(ctx context.Context, query string, limit int) ([]types.SearchHit, error) {
	return s.search(ctx,
		`SELECT c.identifier, c.title, c.authors, c.year, c.journal_name,
			snippet(canonical_fts, 0, '[', ']', '...', 16), bm25(canonical_fts) AS rank
		 FROM canonical_fts
		 JOIN canonical_records c ON c.rowid = canonical_fts.rowid
		 WHERE canonical_fts MATCH ?
		 ORDER BY rank LIMIT ?`, query, limit)
}

// SearchAbstract runs a full-text query over extracted abstracts, best
// match first.
func (s *Store) SearchAbstract(ctx context.Context, query string, limit int) ([]types.SearchHit, error) {
	return s.search(ctx,
		`SELECT c.identifier, c.title, c.authors, c.year, c.journal_name,
			snippet(abstract_fts, 0, '[', ']', '...', 24), bm25(abstract_fts) AS rank
		 FROM abstract_fts
		 JOIN acquisition_records a ON a.rowid = abstract_fts.rowid
		 JOIN canonical_records c ON c.identifier = a.identifier
		 WHERE abstract_fts MATCH ?
		 ORDER BY rank LIMIT ?`, query, limit)
}

func (s *Store) search(ctx context.Context, q, query string, limit int) ([]types.SearchHit, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	rows, err := s.db.QueryContext(ctx, q, match, limit)
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}
	defer rows.Close()

	var hits []types.SearchHit
	for rows.Next() {
		var (
			h    types.SearchHit
			rank float64
		)
		if err := rows.Scan(&h.Identifier, &h.Title, &h.Authors, &h.Year, &h.JournalName, &h.Snippet, &rank); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		// bm25 is lower-is-better; flip it so callers sort descending.
		h.Score = -rank
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// ftsQuery quotes each whitespace-separated term so punctuation in user
// input cannot break FTS5 query syntax. Terms are ANDed.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, "")
		if f == "" {
			continue
		}
		terms = append(terms, `"`+f+`"`)
	}
	return strings.Join(terms, " ")
}
