// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/paper-harvest/pkg/types"
)

const canonicalCols = `c.identifier, c.title, c.authors, c.year, c.journal_id, c.journal_name,
	c.publisher, c.created_at, c.updated_at`

const acquisitionCols = `a.identifier, a.resolved_url, a.confidence, a.abstract, a.artifact_url,
	a.artifact_downloaded, a.artifact_path, a.page_path, a.error, a.attempted_at`

// PendingForStage returns the records a stage still has to process,
// most recent year first and by identifier within a year. A limit of zero
// or less returns the whole set.
//
//   - search: canonical records without an acquisition record.
//   - download: records with a resolved URL and no downloaded artifact.
//   - reprocess: records with a stored raw page and no abstract.
func (s *Store) PendingForStage(ctx context.Context, stage types.Stage, limit int) ([]types.PendingRecord, error) {
	var q string
	switch stage {
	case types.StageSearch:
		q = `SELECT ` + canonicalCols + `
			FROM canonical_records c
			LEFT JOIN acquisition_records a ON a.identifier = c.identifier
			WHERE a.identifier IS NULL`
	case types.StageDownload:
		q = `SELECT ` + canonicalCols + `, ` + acquisitionCols + `
			FROM canonical_records c
			JOIN acquisition_records a ON a.identifier = c.identifier
			WHERE a.resolved_url IS NOT NULL AND a.artifact_downloaded = 0`
	case types.StageReprocess:
		q = `SELECT ` + canonicalCols + `, ` + acquisitionCols + `
			FROM canonical_records c
			JOIN acquisition_records a ON a.identifier = c.identifier
			WHERE a.page_path IS NOT NULL AND (a.abstract IS NULL OR a.abstract = '')`
	default:
		return nil, fmt.Errorf("no pending set for stage %q", stage)
	}

	var b strings.Builder
	b.WriteString(q)
	b.WriteString(` ORDER BY c.year DESC, c.identifier ASC`)
	var args []any
	if limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying pending %s: %w", stage, err)
	}
	defer rows.Close()

	withAcq := stage != types.StageSearch
	var out []types.PendingRecord
	for rows.Next() {
		rec, err := scanPending(rows, withAcq)
		if err != nil {
			return nil, fmt.Errorf("scanning pending %s: %w", stage, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// scanPending reads a canonical row, optionally joined with its
// acquisition columns.
func scanPending(row scanner, withAcq bool) (types.PendingRecord, error) {
	var c canonicalRow
	if !withAcq {
		if err := row.Scan(c.dest()...); err != nil {
			return types.PendingRecord{}, err
		}
		return types.PendingRecord{CanonicalRecord: c.record()}, nil
	}

	var a acquisitionRow
	if err := row.Scan(append(c.dest(), a.dest()...)...); err != nil {
		return types.PendingRecord{}, err
	}
	acq := a.record()
	return types.PendingRecord{CanonicalRecord: c.record(), Acquisition: &acq}, nil
}
