// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/pdiddy/paper-harvest/pkg/types"
)

// stealthScript hides the common automation tells before any page script
// runs.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
window.chrome = window.chrome || {runtime: {}};
Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']});
Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4, 5]});
`

// netErrorPrefix marks Chrome's network-level navigation failures.
const netErrorPrefix = "net::ERR_"

// pollInterval is how often a page is re-read while waiting.
var pollInterval = time.Second

// BrowserSession drives a single headless Chrome tab.
type BrowserSession struct {
	cfg      types.FetchConfig
	identity Identity

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	cookiesHandled bool
}

// NewBrowserSession launches Chrome with a rotated identity and the
// automation flags suppressed.
func NewBrowserSession(cfg types.FetchConfig) (*BrowserSession, error) {
	id := RandomIdentity()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-infobars", true),
		chromedp.UserAgent(id.UserAgent),
		chromedp.WindowSize(id.Viewport.Width, id.Viewport.Height),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &BrowserSession{
		cfg:           cfg,
		identity:      id,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}

	err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
		return err
	}))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	slog.Debug("browser session started", "user_agent", id.UserAgent,
		"width", id.Viewport.Width, "height", id.Viewport.Height)
	return s, nil
}

// opContext derives a context bounded by timeout on the browser tab that
// is also cancelled when the caller's ctx is.
func (s *BrowserSession) opContext(ctx context.Context, timeout time.Duration) (context.Context, func()) {
	opCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

// Search loads the landing page, submits query, and parses the results.
func (s *BrowserSession) Search(ctx context.Context, query string) ([]types.Candidate, error) {
	if _, _, err := s.navigate(ctx, s.cfg.BaseURL); err != nil {
		return nil, err
	}

	opCtx, done := s.opContext(ctx, s.cfg.PageTimeout)
	defer done()
	err := chromedp.Run(opCtx,
		chromedp.WaitVisible(SearchInputSelector, chromedp.ByQuery),
		chromedp.SendKeys(SearchInputSelector, query, chromedp.ByQuery),
	)
	if err != nil {
		return nil, s.opError(ctx, "typing search", err)
	}
	if err := chromedp.Run(opCtx, chromedp.Click(SearchButtonSelector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		// The button markup moves around; Enter in the box submits too.
		slog.Debug("search button click failed, pressing enter", "error", err)
		if err := chromedp.Run(opCtx, chromedp.SendKeys(SearchInputSelector, kb.Enter, chromedp.ByQuery)); err != nil {
			return nil, s.opError(ctx, "submitting search", err)
		}
	}

	// Results render asynchronously. Poll until candidates appear, the
	// page settles with none, or a challenge fails to clear.
	var (
		html, loc string
		found     []types.Candidate
	)
	deadline := time.Now().Add(s.cfg.PageTimeout)
	for {
		html, loc, err = s.snapshot(ctx)
		if err != nil {
			return nil, err
		}
		if IsChallenge(html) {
			if html, loc, err = s.awaitChallenge(ctx); err != nil {
				return nil, err
			}
		}
		found, err = ParseSearchResults(html, loc)
		if err != nil {
			return nil, fmt.Errorf("parsing results: %w", err)
		}
		if len(found) > 0 || time.Now().After(deadline) || s.resultsSettled(ctx) {
			return found, nil
		}
		if err := sleepCtx(ctx, pollInterval); err != nil {
			return nil, err
		}
	}
}

// resultsSettled reports whether the results container is present, which
// means an empty parse is a genuine empty result.
func (s *BrowserSession) resultsSettled(ctx context.Context) bool {
	opCtx, done := s.opContext(ctx, pollInterval)
	defer done()
	var nodes []*cdp.Node
	err := chromedp.Run(opCtx, chromedp.Nodes(ResultsSelector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0)))
	return err == nil && len(nodes) > 0
}

// Open navigates to url and returns the page after any challenge clears.
func (s *BrowserSession) Open(ctx context.Context, url string) (Page, error) {
	html, loc, err := s.navigate(ctx, url)
	if err != nil {
		return Page{}, err
	}
	return Page{URL: loc, HTML: html}, nil
}

// navigate loads url, waits out any challenge, and accepts the cookie
// banner once per session.
func (s *BrowserSession) navigate(ctx context.Context, url string) (string, string, error) {
	opCtx, done := s.opContext(ctx, s.cfg.PageTimeout)
	err := chromedp.Run(opCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	done()
	if err != nil {
		return "", "", s.opError(ctx, "navigating to "+url, err)
	}

	html, loc, err := s.snapshot(ctx)
	if err != nil {
		return "", "", err
	}
	if IsChallenge(html) {
		if html, loc, err = s.awaitChallenge(ctx); err != nil {
			return "", "", err
		}
	}

	if !s.cookiesHandled {
		s.acceptCookies(ctx)
	}
	return html, loc, nil
}

func (s *BrowserSession) acceptCookies(ctx context.Context) {
	opCtx, done := s.opContext(ctx, 5*time.Second)
	defer done()
	var nodes []*cdp.Node
	if err := chromedp.Run(opCtx, chromedp.Nodes(CookieAcceptSelector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
		return
	}
	s.cookiesHandled = true
	if len(nodes) == 0 {
		return
	}
	if err := chromedp.Run(opCtx, chromedp.Click(CookieAcceptSelector, chromedp.ByQuery)); err != nil {
		slog.Debug("cookie banner click failed", "error", err)
	}
}

// awaitChallenge polls until the page is no longer a bot-verification
// interstitial or ChallengeTimeout elapses.
func (s *BrowserSession) awaitChallenge(ctx context.Context) (string, string, error) {
	slog.Info("bot verification detected, waiting", "timeout", s.cfg.ChallengeTimeout)
	deadline := time.Now().Add(s.cfg.ChallengeTimeout)
	for time.Now().Before(deadline) {
		if err := sleepCtx(ctx, pollInterval); err != nil {
			return "", "", err
		}
		html, loc, err := s.snapshot(ctx)
		if err != nil {
			return "", "", err
		}
		if !IsChallenge(html) {
			return html, loc, nil
		}
	}
	return "", "", fmt.Errorf("%w within %s", ErrChallenge, s.cfg.ChallengeTimeout)
}

// snapshot reads the current document and location.
func (s *BrowserSession) snapshot(ctx context.Context) (string, string, error) {
	opCtx, done := s.opContext(ctx, s.cfg.PageTimeout)
	defer done()
	var html, loc string
	if err := chromedp.Run(opCtx,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&loc),
	); err != nil {
		return "", "", s.opError(ctx, "reading page", err)
	}
	return html, loc, nil
}

// opError classifies a browser failure. Operation timeouts and Chrome
// network errors (net::ERR_*) are transient; anything else, such as an
// invalid URL or a missing node, is returned as is and not retried. The
// caller's own cancellation is returned unwrapped.
func (s *BrowserSession) opError(ctx context.Context, what string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Transient(fmt.Errorf("%s: timed out after %s", what, s.cfg.PageTimeout))
	}
	if strings.Contains(err.Error(), netErrorPrefix) {
		return Transient(fmt.Errorf("%s: %w", what, err))
	}
	return fmt.Errorf("%s: %w", what, err)
}

// Close shuts the tab and the browser process.
func (s *BrowserSession) Close() error {
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
