// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metadata builds the canonical record set from an authoritative
// bibliographic API. It fetches one (journal, year) page set at a time
// through a local cache, filters out non-article items, normalizes the
// rest, and upserts them into the state store.
package metadata

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/pdiddy/paper-harvest/internal/httputil"
)

// RawAuthor is an author as listed by the source. Sources that give a
// single display name fill Name only.
type RawAuthor struct {
	Given  string `json:"given,omitempty"`
	Family string `json:"family,omitempty"`
	Name   string `json:"name,omitempty"`
}

// RawItem is a bibliographic item as returned by a Source, before
// filtering and normalization. Absent fields are zero values.
type RawItem struct {
	DOI       string      `json:"doi"`
	Title     []string    `json:"title,omitempty"`
	Type      string      `json:"type,omitempty"`
	Authors   []RawAuthor `json:"authors,omitempty"`
	Year      int         `json:"year,omitempty"`
	Publisher string      `json:"publisher,omitempty"`
	ISSN      []string    `json:"issn,omitempty"`
}

// Source is an authoritative metadata API.
type Source interface {
	// Name identifies the source in logs and cache directories.
	Name() string

	// FetchYear returns every item the source lists for the journal with
	// the given ISSN published in year.
	FetchYear(ctx context.Context, issn string, year int) ([]RawItem, error)
}

// getJSON issues a GET with throttling retries and checks the status.
// Client errors other than 429 are permanent.
func getJSON(ctx context.Context, client *http.Client, apiURL, userAgent string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := httputil.DoWithRetry(ctx, client, req, 0)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		err := fmt.Errorf("HTTP %d from %s", resp.StatusCode, req.URL.Host)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, httputil.Permanent(err)
		}
		return nil, err
	}
	return resp.Body, nil
}
