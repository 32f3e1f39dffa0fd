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
	"github.com/pdiddy/paper-harvest/pkg/types"
)

// errNoArtifact means no download link could be found or constructed.
var errNoArtifact = errors.New("no artifact link found")

// DownloadStage fetches artifacts for resolved records.
type DownloadStage struct {
	store      Store
	downloader *fetch.Downloader
	fetcher    *fetch.Fetcher
	pages      *fetch.PageStore
	pacer      *fetch.Pacer
	runID      string
	w          io.Writer
}

// NewDownloadStage returns a download stage. fetcher may be nil, in which
// case the live page is never revisited to look for a link.
func NewDownloadStage(store Store, downloader *fetch.Downloader, fetcher *fetch.Fetcher, pages *fetch.PageStore, pacer *fetch.Pacer, runID string, w io.Writer) *DownloadStage {
	return &DownloadStage{store: store, downloader: downloader, fetcher: fetcher, pages: pages, pacer: pacer, runID: runID, w: w}
}

// Run downloads up to limit pending artifacts (all when limit is zero).
// A failed download is logged and the record stays pending.
func (s *DownloadStage) Run(ctx context.Context, limit int) (Summary, error) {
	sum := Summary{Stage: types.StageDownload}
	pending, err := s.store.PendingForStage(ctx, types.StageDownload, limit)
	if err != nil {
		return sum, fmt.Errorf("listing pending downloads: %w", err)
	}
	fmt.Fprintf(s.w, "downloading %d artifacts\n", len(pending))

	var runErr error
	for i, rec := range pending {
		if i > 0 {
			if err := s.pacer.Wait(ctx); err != nil {
				runErr = err
				break
			}
		}
		status, err := s.process(ctx, rec)
		if err != nil {
			runErr = err
			break
		}
		sum.Add(status)
	}

	if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
		sum.Interrupted = true
	}
	sum.Print(s.w)
	return sum, runErr
}

func (s *DownloadStage) process(ctx context.Context, rec types.PendingRecord) (types.Status, error) {
	id := rec.Identifier
	entry := types.AttemptLogEntry{Identifier: id, Stage: types.StageDownload, RunID: s.runID}

	link, err := s.artifactURL(ctx, rec)
	if err == nil {
		dest := s.pages.ArtifactPath(id)
		if err = s.downloader.Download(ctx, link, dest); err == nil {
			if err := s.store.MarkArtifact(ctx, id, link, s.pages.Portable(dest), true); err != nil {
				return "", fmt.Errorf("marking %s: %w", id, err)
			}
			entry.Status = types.StatusSuccess
			fmt.Fprintf(s.w, "downloaded: %s\n", id)
		}
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		entry.Status = failureStatus(err)
		entry.Error = err.Error()
		if fetch.KindOf(err) == "" {
			entry.Error = fmt.Sprintf("%s: %v", fetch.KindDownload, err)
		}
		fmt.Fprintf(s.w, "failed:     %s (%s)\n", id, entry.Error)
	}

	if err := s.store.AppendLog(ctx, entry); err != nil {
		return "", fmt.Errorf("logging %s: %w", id, err)
	}
	return entry.Status, nil
}

// artifactURL finds the download link: the one stored on the record, one
// extracted from the stored page, one from the live page, or finally one
// constructed from the page's abstract id.
func (s *DownloadStage) artifactURL(ctx context.Context, rec types.PendingRecord) (string, error) {
	acq := rec.Acquisition
	if acq == nil {
		return "", errNoArtifact
	}
	if acq.ArtifactURL != "" {
		return acq.ArtifactURL, nil
	}
	if acq.PagePath != "" {
		if html, err := s.pages.LoadPage(acq.PagePath); err == nil {
			if link, ok := extract.ArtifactLink(html, acq.ResolvedURL); ok {
				return link, nil
			}
		} else {
			slog.Debug("stored page unavailable", "identifier", rec.Identifier, "error", err)
		}
	}
	if s.fetcher != nil {
		page, err := s.fetcher.Open(ctx, acq.ResolvedURL)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			slog.Warn("reopening page failed", "identifier", rec.Identifier, "error", err)
		} else if link, ok := extract.ArtifactLink(page.HTML, page.URL); ok {
			return link, nil
		}
	}
	if link, ok := extract.DeliveryURL(acq.ResolvedURL); ok {
		return link, nil
	}
	return "", errNoArtifact
}
