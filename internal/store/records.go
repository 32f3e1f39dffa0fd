// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pdiddy/paper-harvest/pkg/types"
)

const upsertCanonicalSQL = `INSERT INTO canonical_records
	(identifier, title, authors, year, journal_id, journal_name, publisher, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(identifier) DO UPDATE SET
		title=excluded.title, authors=excluded.authors, updated_at=excluded.updated_at`

// UpsertCanonical inserts a canonical record or, when the identifier
// already exists, refreshes its title and authors and stamps the update
// time. The identifier and creation time never change.
func (s *Store) UpsertCanonical(ctx context.Context, rec types.CanonicalRecord) error {
	_, err := s.UpsertCanonicalBatch(ctx, []types.CanonicalRecord{rec})
	return err
}

// UpsertCanonicalBatch upserts records in one transaction and returns how
// many rows were written.
func (s *Store) UpsertCanonicalBatch(ctx context.Context, recs []types.CanonicalRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertCanonicalSQL)
	if err != nil {
		return 0, fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	now := formatTime(s.now())
	for _, rec := range recs {
		if rec.Identifier == "" {
			return 0, fmt.Errorf("upserting canonical record: empty identifier")
		}
		publisher := rec.Publisher
		if publisher == "" {
			publisher = types.UnknownPublisher
		}
		authors := rec.Authors
		if len(authors) == 0 {
			authors = []string{types.UnknownAuthor}
		}
		if _, err := stmt.ExecContext(ctx,
			rec.Identifier, rec.Title, joinAuthors(authors), rec.Year,
			rec.JournalID, rec.JournalName, publisher, now, now,
		); err != nil {
			return 0, fmt.Errorf("upserting %s: %w", rec.Identifier, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing upserts: %w", err)
	}
	return len(recs), nil
}

// Canonical returns the canonical record for identifier.
func (s *Store) Canonical(ctx context.Context, identifier string) (types.CanonicalRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT identifier, title, authors, year, journal_id, journal_name, publisher, created_at, updated_at
		 FROM canonical_records WHERE identifier = ?`, identifier)
	rec, err := scanCanonical(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.CanonicalRecord{}, ErrNotFound
	}
	return rec, err
}

// CountForJournalYear returns how many canonical records exist for a
// journal and year. The metadata acquirer uses it to skip pairs that a
// previous run already collected.
func (s *Store) CountForJournalYear(ctx context.Context, journalID string, year int) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM canonical_records WHERE journal_id = ? AND year = ?`,
		journalID, year).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting records for %s/%d: %w", journalID, year, err)
	}
	return n, nil
}

const upsertAcquisitionSQL = `INSERT INTO acquisition_records
	(identifier, resolved_url, confidence, abstract, artifact_url, artifact_downloaded,
	 artifact_path, page_path, error, attempted_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(identifier) DO UPDATE SET
		resolved_url=excluded.resolved_url, confidence=excluded.confidence,
		abstract=excluded.abstract, artifact_url=excluded.artifact_url,
		artifact_downloaded=excluded.artifact_downloaded, artifact_path=excluded.artifact_path,
		page_path=excluded.page_path, error=excluded.error, attempted_at=excluded.attempted_at`

// RecordAcquisitionOutcome inserts or replaces the acquisition record for
// rec.Identifier. The new outcome supersedes any prior attempt.
func (s *Store) RecordAcquisitionOutcome(ctx context.Context, rec types.AcquisitionRecord) error {
	return s.CommitAttempt(ctx, rec, nil)
}

// CommitAttempt writes an acquisition outcome and, when entry is non-nil,
// its audit entry in one transaction. Either both are visible afterwards
// or neither is.
func (s *Store) CommitAttempt(ctx context.Context, rec types.AcquisitionRecord, entry *types.AttemptLogEntry) error {
	if (rec.ResolvedURL == "") == (rec.Error == "") {
		return fmt.Errorf("%s: %w", rec.Identifier, ErrInvalidOutcome)
	}
	if rec.AttemptedAt.IsZero() {
		rec.AttemptedAt = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var confidence any
	if rec.Confidence != nil {
		confidence = *rec.Confidence
	}
	if _, err := tx.ExecContext(ctx, upsertAcquisitionSQL,
		rec.Identifier, nullable(rec.ResolvedURL), confidence, nullable(rec.Abstract),
		nullable(rec.ArtifactURL), rec.ArtifactDownloaded, nullable(rec.ArtifactPath),
		nullable(rec.PagePath), nullable(rec.Error), formatTime(rec.AttemptedAt),
	); err != nil {
		return fmt.Errorf("recording outcome for %s: %w", rec.Identifier, err)
	}

	if entry != nil {
		if err := s.appendLog(ctx, tx, *entry); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Acquisition returns the acquisition record for identifier.
func (s *Store) Acquisition(ctx context.Context, identifier string) (types.AcquisitionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT identifier, resolved_url, confidence, abstract, artifact_url, artifact_downloaded,
			artifact_path, page_path, error, attempted_at
		 FROM acquisition_records WHERE identifier = ?`, identifier)
	rec, err := scanAcquisition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.AcquisitionRecord{}, ErrNotFound
	}
	return rec, err
}

// MarkArtifact records the artifact URL and local path for a resolved
// record. It leaves the resolved URL and error untouched.
func (s *Store) MarkArtifact(ctx context.Context, identifier, artifactURL, path string, downloaded bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE acquisition_records
		 SET artifact_url = COALESCE(?, artifact_url), artifact_path = ?, artifact_downloaded = ?
		 WHERE identifier = ?`,
		nullable(artifactURL), nullable(path), downloaded, identifier)
	if err != nil {
		return fmt.Errorf("marking artifact for %s: %w", identifier, err)
	}
	return requireRow(res, identifier)
}

// UpdateExtraction stores re-extracted content for a record without
// touching its resolution outcome. Empty values keep the stored ones.
func (s *Store) UpdateExtraction(ctx context.Context, identifier, abstract, artifactURL string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE acquisition_records
		 SET abstract = COALESCE(?, abstract), artifact_url = COALESCE(?, artifact_url)
		 WHERE identifier = ?`,
		nullable(abstract), nullable(artifactURL), identifier)
	if err != nil {
		return fmt.Errorf("updating extraction for %s: %w", identifier, err)
	}
	return requireRow(res, identifier)
}

func requireRow(res sql.Result, identifier string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update for %s: %w", identifier, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", identifier, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// canonicalRow holds scan destinations for canonical_records columns.
type canonicalRow struct {
	rec              types.CanonicalRecord
	authors          string
	created, updated string
}

func (r *canonicalRow) dest() []any {
	return []any{&r.rec.Identifier, &r.rec.Title, &r.authors, &r.rec.Year,
		&r.rec.JournalID, &r.rec.JournalName, &r.rec.Publisher, &r.created, &r.updated}
}

func (r *canonicalRow) record() types.CanonicalRecord {
	rec := r.rec
	rec.Authors = splitAuthors(r.authors)
	rec.CreatedAt = parseTime(r.created)
	rec.UpdatedAt = parseTime(r.updated)
	return rec
}

// acquisitionRow holds scan destinations for acquisition_records columns.
type acquisitionRow struct {
	identifier                             string
	resolved, abstract, artifactURL, apath sql.NullString
	ppath, errText                         sql.NullString
	confidence                             sql.NullFloat64
	downloaded                             bool
	attempted                              string
}

func (r *acquisitionRow) dest() []any {
	return []any{&r.identifier, &r.resolved, &r.confidence, &r.abstract, &r.artifactURL,
		&r.downloaded, &r.apath, &r.ppath, &r.errText, &r.attempted}
}

func (r *acquisitionRow) record() types.AcquisitionRecord {
	rec := types.AcquisitionRecord{
		Identifier:         r.identifier,
		ResolvedURL:        r.resolved.String,
		Abstract:           r.abstract.String,
		ArtifactURL:        r.artifactURL.String,
		ArtifactDownloaded: r.downloaded,
		ArtifactPath:       r.apath.String,
		PagePath:           r.ppath.String,
		Error:              r.errText.String,
		AttemptedAt:        parseTime(r.attempted),
	}
	if r.confidence.Valid {
		c := r.confidence.Float64
		rec.Confidence = &c
	}
	return rec
}

func scanCanonical(row scanner) (types.CanonicalRecord, error) {
	var r canonicalRow
	if err := row.Scan(r.dest()...); err != nil {
		return types.CanonicalRecord{}, err
	}
	return r.record(), nil
}

func scanAcquisition(row scanner) (types.AcquisitionRecord, error) {
	var r acquisitionRow
	if err := row.Scan(r.dest()...); err != nil {
		return types.AcquisitionRecord{}, err
	}
	return r.record(), nil
}
