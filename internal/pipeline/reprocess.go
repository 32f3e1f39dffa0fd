// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/pdiddy/paper-harvest/internal/fetch"
	"github.com/pdiddy/paper-harvest/pkg/types"
)

// ReprocessStage re-runs extraction over stored raw pages of resolved
// records that have no abstract. It makes no network requests.
type ReprocessStage struct {
	store Store
	pages *fetch.PageStore
	runID string
	w     io.Writer
}

// NewReprocessStage returns a reprocess stage.
func NewReprocessStage(store Store, pages *fetch.PageStore, runID string, w io.Writer) *ReprocessStage {
	return &ReprocessStage{store: store, pages: pages, runID: runID, w: w}
}

// Run reprocesses up to limit records (all when limit is zero).
func (s *ReprocessStage) Run(ctx context.Context, limit int) (Summary, error) {
	sum := Summary{Stage: types.StageReprocess}
	pending, err := s.store.PendingForStage(ctx, types.StageReprocess, limit)
	if err != nil {
		return sum, fmt.Errorf("listing pages to reprocess: %w", err)
	}
	fmt.Fprintf(s.w, "reprocessing %d stored pages\n", len(pending))

	var runErr error
	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			sum.Interrupted = true
			runErr = err
			break
		}
		status, err := s.process(ctx, rec)
		if err != nil {
			runErr = err
			break
		}
		sum.Add(status)
	}

	if sum.Succeeded > 0 {
		if err := rebuild(ctx, s.store); err != nil && runErr == nil {
			runErr = err
		}
	}
	sum.Print(s.w)
	return sum, runErr
}

func (s *ReprocessStage) process(ctx context.Context, rec types.PendingRecord) (types.Status, error) {
	acq := rec.Acquisition
	entry := types.AttemptLogEntry{Identifier: rec.Identifier, Stage: types.StageReprocess, RunID: s.runID}

	html, err := s.pages.LoadPage(acq.PagePath)
	switch {
	case err != nil:
		entry.Status = types.StatusFailed
		entry.Error = err.Error()
	default:
		abstract, artifact := extractPage(html, acq.ResolvedURL)
		if abstract == "" {
			entry.Status = types.StatusPartial
			entry.Error = ExtractionError
			break
		}
		if acq.ArtifactURL != "" {
			artifact = ""
		}
		if err := s.store.UpdateExtraction(ctx, rec.Identifier, abstract, artifact); err != nil {
			return "", fmt.Errorf("updating %s: %w", rec.Identifier, err)
		}
		entry.Status = types.StatusSuccess
	}

	if err := s.store.AppendLog(ctx, entry); err != nil {
		return "", fmt.Errorf("logging %s: %w", rec.Identifier, err)
	}
	if entry.Error != "" {
		fmt.Fprintf(s.w, "%-10s %s (%s)\n", string(entry.Status)+":", rec.Identifier, entry.Error)
	} else {
		fmt.Fprintf(s.w, "extracted: %s\n", rec.Identifier)
	}
	return entry.Status, nil
}
