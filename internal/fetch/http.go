// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"github.com/pdiddy/paper-harvest/pkg/types"
)

// maxPageBytes caps how much of a page body is read.
const maxPageBytes = 16 << 20

// HTTPSession talks to the source with plain HTTP requests and a cookie
// jar. It cannot run JavaScript, so a bot-verification page is an
// immediate block rather than something to wait out.
type HTTPSession struct {
	client    *http.Client
	searchURL string
	identity  Identity
}

// NewHTTPSession returns a session that submits searches to
// cfg.SearchURL with the query in the "term" parameter.
func NewHTTPSession(cfg types.FetchConfig) (*HTTPSession, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	return &HTTPSession{
		client:    &http.Client{Jar: jar, Timeout: cfg.PageTimeout},
		searchURL: cfg.SearchURL,
		identity:  RandomIdentity(),
	}, nil
}

// Search fetches the results page for query.
func (s *HTTPSession) Search(ctx context.Context, query string) ([]types.Candidate, error) {
	u, err := url.Parse(s.searchURL)
	if err != nil {
		return nil, fmt.Errorf("parsing search URL: %w", err)
	}
	q := u.Query()
	q.Set("term", query)
	u.RawQuery = q.Encode()

	page, err := s.Open(ctx, u.String())
	if err != nil {
		return nil, err
	}
	return ParseSearchResults(page.HTML, page.URL)
}

// Open fetches url and returns its body.
func (s *HTTPSession) Open(ctx context.Context, rawURL string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", s.identity.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return Page{}, Transient(fmt.Errorf("HTTP request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return Page{}, Transient(fmt.Errorf("reading body: %w", err))
	}
	html := string(body)

	switch {
	case IsChallenge(html):
		return Page{}, fmt.Errorf("%w (HTTP %d)", ErrChallenge, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Page{}, Transient(fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL))
	case resp.StatusCode != http.StatusOK:
		return Page{}, fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	return Page{URL: resp.Request.URL.String(), HTML: html}, nil
}

// Close is a no-op; idle connections are released with the client.
func (s *HTTPSession) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
