// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"fmt"
	"strings"
)

// Error classes recorded in acquisition records. Reset filters match them
// as case-insensitive substrings.
const (
	ClassSearchFailed   = "failed to search"
	ClassOpenFailed     = "failed to open page"
	ClassNoResults      = "no search results"
	ClassBelowThreshold = "no match above threshold"
	ClassBlocked        = "blocked by bot verification"
)

// FailureFilter selects acquisition records for ResetFailures.
type FailureFilter struct {
	// Patterns are error classes; a record matches when its error contains
	// any of them, ignoring case. At least one is required.
	Patterns []string

	// YearCutoff keeps records older than this year untouched. Zero
	// matches every year.
	YearCutoff int

	// DryRun reports the matching identifiers without deleting anything.
	DryRun bool
}

// ResetFailures deletes acquisition records whose error matches the filter
// and returns the affected identifiers, which re-enter the search pending
// set. Audit entries are kept. Callers must confirm with the operator
// before invoking it without DryRun.
func (s *Store) ResetFailures(ctx context.Context, f FailureFilter) ([]string, error) {
	var (
		conds []string
		args  []any
	)
	for _, p := range f.Patterns {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		conds = append(conds, `instr(lower(a.error), lower(?)) > 0`)
		args = append(args, p)
	}
	if len(conds) == 0 {
		return nil, fmt.Errorf("reset requires at least one error pattern")
	}
	where := `a.error IS NOT NULL AND (` + strings.Join(conds, ` OR `) + `) AND c.year >= ?`
	args = append(args, f.YearCutoff)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT a.identifier FROM acquisition_records a
		 JOIN canonical_records c ON c.identifier = a.identifier
		 WHERE `+where+` ORDER BY c.year DESC, a.identifier`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying failures: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning failure: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading failures: %w", err)
	}

	if f.DryRun || len(ids) == 0 {
		return ids, nil
	}

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM acquisition_records WHERE identifier = ?`)
	if err != nil {
		return nil, fmt.Errorf("preparing delete: %w", err)
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return nil, fmt.Errorf("deleting %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing reset: %w", err)
	}
	return ids, nil
}
