// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pdiddy/paper-harvest/pkg/types"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// AppendLog appends one audit entry. Entries are never updated or deleted.
func (s *Store) AppendLog(ctx context.Context, entry types.AttemptLogEntry) error {
	return s.appendLog(ctx, s.db, entry)
}

func (s *Store) appendLog(ctx context.Context, db execer, entry types.AttemptLogEntry) error {
	if entry.LoggedAt.IsZero() {
		entry.LoggedAt = s.now()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO attempt_log (identifier, stage, status, error, run_id, logged_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Identifier, string(entry.Stage), string(entry.Status),
		nullable(entry.Error), nullable(entry.RunID), formatTime(entry.LoggedAt))
	if err != nil {
		return fmt.Errorf("appending log for %s: %w", entry.Identifier, err)
	}
	return nil
}

// Log returns the audit entries for identifier in insertion order.
func (s *Store) Log(ctx context.Context, identifier string) ([]types.AttemptLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, identifier, stage, status, error, run_id, logged_at
		 FROM attempt_log WHERE identifier = ? ORDER BY id`, identifier)
	if err != nil {
		return nil, fmt.Errorf("querying log: %w", err)
	}
	defer rows.Close()

	var entries []types.AttemptLogEntry
	for rows.Next() {
		var (
			e            types.AttemptLogEntry
			stage, state string
			errText, run sql.NullString
			logged       string
		)
		if err := rows.Scan(&e.ID, &e.Identifier, &stage, &state, &errText, &run, &logged); err != nil {
			return nil, fmt.Errorf("scanning log entry: %w", err)
		}
		e.Stage = types.Stage(stage)
		e.Status = types.Status(state)
		e.Error = errText.String
		e.RunID = run.String
		e.LoggedAt = parseTime(logged)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AttemptedSet returns the identifiers that have at least one audit entry
// for stage.
func (s *Store) AttemptedSet(ctx context.Context, stage types.Stage) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT identifier FROM attempt_log WHERE stage = ?`, string(stage))
	if err != nil {
		return nil, fmt.Errorf("querying attempted set: %w", err)
	}
	defer rows.Close()

	set := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning identifier: %w", err)
		}
		set[id] = struct{}{}
	}
	return set, rows.Err()
}
