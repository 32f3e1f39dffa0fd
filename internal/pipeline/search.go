// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/pdiddy/paper-harvest/internal/extract"
	"github.com/pdiddy/paper-harvest/internal/fetch"
	"github.com/pdiddy/paper-harvest/internal/match"
	"github.com/pdiddy/paper-harvest/pkg/types"
)

// SearchStage resolves canonical records to pages on the secondary
// source, one record at a time over a single session.
type SearchStage struct {
	store   Store
	fetcher *fetch.Fetcher
	engine  *match.Engine
	pages   *fetch.PageStore
	pacer   *fetch.Pacer
	runID   string
	w       io.Writer
}

// NewSearchStage returns a search stage. pages may be nil to skip storing
// raw pages.
func NewSearchStage(store Store, fetcher *fetch.Fetcher, engine *match.Engine, pages *fetch.PageStore, pacer *fetch.Pacer, runID string, w io.Writer) *SearchStage {
	return &SearchStage{store: store, fetcher: fetcher, engine: engine, pages: pages, pacer: pacer, runID: runID, w: w}
}

// Run processes up to limit records that have never been attempted (all
// of them when limit is zero). Records already attempted are not pending,
// so a rerun repeats no network work. Cancellation discards the record in
// flight and returns the summary so far with ctx.Err().
func (s *SearchStage) Run(ctx context.Context, limit int) (Summary, error) {
	sum := Summary{Stage: types.StageSearch}
	pending, err := s.store.PendingForStage(ctx, types.StageSearch, limit)
	if err != nil {
		return sum, fmt.Errorf("listing pending records: %w", err)
	}
	fmt.Fprintf(s.w, "searching %d records (threshold %.0f)\n", len(pending), s.engine.Threshold())

	var runErr error
	for i, rec := range pending {
		if i > 0 {
			if err := s.pacer.Wait(ctx); err != nil {
				runErr = err
				break
			}
		}
		status, err := s.process(ctx, rec.CanonicalRecord)
		if err != nil {
			runErr = err
			break
		}
		sum.Add(status)
	}

	if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
		sum.Interrupted = true
	}
	if sum.Attempted > 0 {
		if err := rebuild(ctx, s.store); err != nil && runErr == nil {
			runErr = err
		}
	}
	sum.Print(s.w)
	return sum, runErr
}

// process runs one record through search, resolution, fetch, and
// extraction, then commits the outcome and its audit entry together. It
// returns an error only for cancellation or a store failure.
func (s *SearchStage) process(ctx context.Context, rec types.CanonicalRecord) (types.Status, error) {
	acq, entry := s.attempt(ctx, rec)
	if err := ctx.Err(); err != nil {
		slog.Info("discarding in-flight record", "identifier", rec.Identifier)
		return "", err
	}

	if err := s.store.CommitAttempt(ctx, acq, &entry); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("committing %s: %w", rec.Identifier, err)
	}
	s.report(rec, acq, entry)
	return entry.Status, nil
}

// attempt produces the acquisition record and audit entry for rec.
// Exactly one of ResolvedURL and Error is set on the record.
func (s *SearchStage) attempt(ctx context.Context, rec types.CanonicalRecord) (types.AcquisitionRecord, types.AttemptLogEntry) {
	acq := types.AcquisitionRecord{Identifier: rec.Identifier}
	entry := types.AttemptLogEntry{Identifier: rec.Identifier, Stage: types.StageSearch, RunID: s.runID}
	fail := func(status types.Status, reason string) (types.AcquisitionRecord, types.AttemptLogEntry) {
		acq.Error = reason
		entry.Status = status
		entry.Error = reason
		return acq, entry
	}

	candidates, err := s.fetcher.Search(ctx, rec.Title)
	if err != nil {
		return fail(failureStatus(err), err.Error())
	}

	res := s.engine.Resolve(rec.Title, candidates)
	acq.Confidence = res.Confidence()
	if res.Outcome != match.Matched {
		return fail(types.StatusNoMatch, res.Reason())
	}

	page, err := s.fetcher.Open(ctx, res.Best.URL)
	if err != nil {
		return fail(failureStatus(err), err.Error())
	}

	acq.ResolvedURL = res.Best.URL
	if s.pages != nil {
		if path, err := s.pages.SavePage(rec.Identifier, page.HTML); err != nil {
			slog.Warn("raw page not saved", "identifier", rec.Identifier, "error", err)
		} else {
			acq.PagePath = path
		}
	}

	abstract, artifact := extractPage(page.HTML, page.URL)
	acq.Abstract = abstract
	acq.ArtifactURL = artifact
	if abstract == "" {
		entry.Status = types.StatusPartial
		entry.Error = ExtractionError
		return acq, entry
	}
	entry.Status = types.StatusSuccess
	return acq, entry
}

func (s *SearchStage) report(rec types.CanonicalRecord, acq types.AcquisitionRecord, entry types.AttemptLogEntry) {
	switch entry.Status {
	case types.StatusSuccess:
		fmt.Fprintf(s.w, "matched: %s (%.1f) %s\n", rec.Identifier, *acq.Confidence, acq.ResolvedURL)
	case types.StatusPartial:
		fmt.Fprintf(s.w, "partial: %s (%.1f) %s (%s)\n", rec.Identifier, *acq.Confidence, acq.ResolvedURL, entry.Error)
	default:
		fmt.Fprintf(s.w, "%-8s %s (%s)\n", string(entry.Status)+":", rec.Identifier, entry.Error)
	}
}

// extractPage runs the abstract cascade and the artifact link search.
// Either result may be empty.
func extractPage(html, pageURL string) (abstract, artifactURL string) {
	doc, err := extract.Parse(html, pageURL)
	if err != nil {
		slog.Debug("page did not parse", "url", pageURL, "error", err)
		return "", ""
	}
	if text, strategy, ok := doc.Abstract(); ok {
		slog.Debug("abstract extracted", "url", pageURL, "strategy", strategy)
		abstract = text
	}
	if link, ok := doc.ArtifactLink(); ok {
		artifactURL = link
	}
	return abstract, artifactURL
}
