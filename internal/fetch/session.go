// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch is the transport to the adversarial secondary source. It
// wraps a browser or plain-HTTP session with bounded retries, pacing,
// bot-verification handling, failure classification, and local storage of
// raw pages and artifacts.
package fetch

import (
	"context"
	"math/rand/v2"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pdiddy/paper-harvest/pkg/types"
)

// Page is a fetched document.
type Page struct {
	// URL is the final URL after redirects.
	URL string
	// HTML is the rendered page source.
	HTML string
}

// Session drives one stateful connection to the secondary source. A
// Session is owned by a single worker and is not safe for concurrent use.
type Session interface {
	// Search submits query to the source's search form and returns the
	// results in page order.
	Search(ctx context.Context, query string) ([]types.Candidate, error)

	// Open navigates to url and returns the page once any bot-verification
	// challenge has cleared.
	Open(ctx context.Context, url string) (Page, error)

	// Close releases the session's resources.
	Close() error
}

// Selectors for the source's markup. Declared as vars so tests and
// configuration can follow layout changes.
var (
	CookieAcceptSelector  = "#onetrust-accept-btn-handler"
	SearchInputSelector   = "#txtKeywords"
	SearchButtonSelector  = "#searchForm1 > div.big-search > div"
	ResultsSelector       = "#maincontent > div > div:nth-child(2) > div"
	ResultTitleSelector   = "h3[data-component='Typography'] a"
	ResultFallbackSel     = "h3 a[href*='abstract'], a.title[href], .title a[href]"
	challengeMarkers      = []string{"just a moment", "cf-challenge", "challenge-platform", "verify you are human", "checking your browser", "attention required! | cloudflare"}
	maxChallengeHTMLBytes = 64 << 10
)

// IsChallenge reports whether html is a bot-verification interstitial.
// Only the head of the page is scanned, and a page carrying the abstract
// container is never a challenge.
func IsChallenge(html string) bool {
	if len(html) > maxChallengeHTMLBytes {
		html = html[:maxChallengeHTMLBytes]
	}
	lower := strings.ToLower(html)
	if strings.Contains(lower, "abstract-text") {
		return false
	}
	for _, m := range challengeMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// ParseSearchResults reads candidates from a search-results page.
// Relative links are resolved against base.
func ParseSearchResults(html, base string) ([]types.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	baseURL, _ := url.Parse(base)

	links := doc.Find(ResultTitleSelector)
	if links.Length() == 0 {
		links = doc.Find(ResultFallbackSel)
	}

	var out []types.Candidate
	seen := make(map[string]bool)
	links.Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		title := strings.Join(strings.Fields(s.Text()), " ")
		if !ok || href == "" || title == "" {
			return
		}
		if ref, err := url.Parse(href); err == nil && baseURL != nil {
			href = baseURL.ResolveReference(ref).String()
		}
		if seen[href] {
			return
		}
		seen[href] = true
		out = append(out, types.Candidate{Index: len(out), URL: href, Title: title})
	})
	return out, nil
}

// Viewport is a browser window size.
type Viewport struct {
	Width, Height int
}

// UserAgents and Viewports are rotated per session.
var (
	UserAgents = []string{
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:131.0) Gecko/20100101 Firefox/131.0",
	}
	Viewports = []Viewport{
		{1920, 1080}, {1680, 1050}, {1536, 864}, {1440, 900}, {1366, 768},
	}
)

// Identity is the user agent and viewport a session presents.
type Identity struct {
	UserAgent string
	Viewport  Viewport
}

// RandomIdentity picks a user agent and viewport for a new session.
func RandomIdentity() Identity {
	return Identity{
		UserAgent: UserAgents[rand.IntN(len(UserAgents))],
		Viewport:  Viewports[rand.IntN(len(Viewports))],
	}
}
