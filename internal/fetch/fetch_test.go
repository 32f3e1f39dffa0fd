// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-harvest/pkg/types"
)

const challengePage = `<html><head><title>Just a moment...</title></head><body><div id="challenge-platform"></div></body></html>`

const resultsPage = `<html><body><div id="maincontent"><div>
<div></div>
<div>
  <h3 data-component="Typography"><a href="/sol3/papers.cfm?abstract_id=111">Real Earnings   Management</a></h3>
  <h3 data-component="Typography"><a href="/sol3/papers.cfm?abstract_id=222">Accrual Quality</a></h3>
  <h3 data-component="Typography"><a href="/sol3/papers.cfm?abstract_id=111">Real Earnings Management</a></h3>
  <h3 data-component="Typography"><a href="">Empty link</a></h3>
</div>
</div></div></body></html>`

func testFetchConfig() types.FetchConfig {
	cfg := types.DefaultConfig().Fetch
	cfg.CrawlDelay = time.Millisecond
	cfg.PageTimeout = 5 * time.Second
	cfg.MaxRetries = 2
	return cfg
}

func TestIsChallenge(t *testing.T) {
	tests := []struct {
		name string
		html string
		want bool
	}{
		{"interstitial", challengePage, true},
		{"turnstile", `<div class="cf-challenge">x</div>`, true},
		{"human check", `<p>Please verify you are human</p>`, true},
		{"ordinary page", `<html><body><h1>Paper</h1></body></html>`, false},
		{"cdn reference only", `<script src="https://cdnjs.cloudflare.com/x.js"></script>`, false},
		{"abstract page wins", `<div class="abstract-text">Just a moment of insight</div>`, false},
		{"marker past scan window", strings.Repeat("a", maxChallengeHTMLBytes) + "just a moment", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsChallenge(tt.html))
		})
	}
}

func TestParseSearchResults(t *testing.T) {
	got, err := ParseSearchResults(resultsPage, "https://papers.example.com/sol3/results.cfm")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, types.Candidate{Index: 0, URL: "https://papers.example.com/sol3/papers.cfm?abstract_id=111", Title: "Real Earnings Management"}, got[0])
	assert.Equal(t, 1, got[1].Index)
	assert.Equal(t, "Accrual Quality", got[1].Title)
}

func TestParseSearchResults_Fallback(t *testing.T) {
	html := `<div><h3><a href="https://x.test/papers.cfm?abstract_id=9">Fallback Title</a></h3></div>`
	got, err := ParseSearchResults(html, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Fallback Title", got[0].Title)
}

func TestParseSearchResults_Empty(t *testing.T) {
	got, err := ParseSearchResults(`<html><body>No results</body></html>`, "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(Transient(errors.New("timeout"))))
	assert.True(t, Retryable(fmt.Errorf("op: %w", context.DeadlineExceeded)))
	assert.False(t, Retryable(ErrChallenge))
	assert.False(t, Retryable(Transient(ErrChallenge)))
	assert.False(t, Retryable(context.Canceled))
	assert.False(t, Retryable(errors.New("HTTP 404")))
	assert.False(t, Retryable(nil))
}

func TestBrowserOpError(t *testing.T) {
	s := &BrowserSession{cfg: types.FetchConfig{PageTimeout: 30 * time.Second}}
	ctx := context.Background()

	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"operation timeout", fmt.Errorf("wait: %w", context.DeadlineExceeded), true},
		{"connection reset", errors.New("page load error net::ERR_CONNECTION_RESET"), true},
		{"invalid url", errors.New("Cannot navigate to invalid URL (-32000)"), false},
		{"missing node", errors.New("could not find node with given id (-32000)"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.opError(ctx, "navigating", tt.err)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "navigating: ")
			assert.Equal(t, tt.retryable, Retryable(err))
		})
	}
}

func TestBrowserOpError_CallerCancelled(t *testing.T) {
	s := &BrowserSession{cfg: types.FetchConfig{PageTimeout: time.Second}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.opError(ctx, "navigating", errors.New("net::ERR_ABORTED"))
	assert.Equal(t, context.Canceled, err)
	assert.False(t, Retryable(err))
}

func TestFetcher_StructuralOpenFailureIsNotRetried(t *testing.T) {
	s := &BrowserSession{cfg: types.FetchConfig{PageTimeout: time.Second}}
	sess := &fakeSession{openErrs: []error{
		s.opError(context.Background(), "navigating to ::bad", errors.New("Cannot navigate to invalid URL (-32000)")),
	}}
	f := NewFetcher(sess, testFetchConfig())

	_, err := f.Open(context.Background(), "::bad")
	require.Error(t, err)
	assert.Equal(t, KindOpenFailed, KindOf(err))
	assert.Equal(t, 1, sess.opens)
}

func TestErrorFormat(t *testing.T) {
	err := &Error{Kind: KindOpenFailed, Op: "open", Err: errors.New("HTTP 404")}
	assert.Equal(t, "failed to open page: HTTP 404", err.Error())
	assert.Equal(t, KindOpenFailed, KindOf(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

// fakeSession replays scripted results.
type fakeSession struct {
	searchErrs []error
	openErrs   []error
	results    []types.Candidate
	page       Page
	searches   int
	opens      int
}

func (f *fakeSession) Search(_ context.Context, _ string) ([]types.Candidate, error) {
	f.searches++
	if n := f.searches - 1; n < len(f.searchErrs) && f.searchErrs[n] != nil {
		return nil, f.searchErrs[n]
	}
	return f.results, nil
}

func (f *fakeSession) Open(_ context.Context, url string) (Page, error) {
	f.opens++
	if n := f.opens - 1; n < len(f.openErrs) && f.openErrs[n] != nil {
		return Page{}, f.openErrs[n]
	}
	p := f.page
	if p.URL == "" {
		p.URL = url
	}
	return p, nil
}

func (f *fakeSession) Close() error { return nil }

func TestFetcher_RetriesTransient(t *testing.T) {
	s := &fakeSession{
		searchErrs: []error{Transient(errors.New("navigation timeout"))},
		results:    []types.Candidate{{Index: 0, URL: "u", Title: "t"}},
	}
	f := NewFetcher(s, testFetchConfig())

	got, err := f.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 2, s.searches)
}

func TestFetcher_ExhaustsRetries(t *testing.T) {
	boom := Transient(errors.New("navigation timeout"))
	s := &fakeSession{searchErrs: []error{boom, boom, boom, boom}}
	f := NewFetcher(s, testFetchConfig())

	_, err := f.Search(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, KindSearchFailed, KindOf(err))
	assert.Equal(t, 3, s.searches, "one attempt plus MaxRetries")
	assert.True(t, strings.HasPrefix(err.Error(), "failed to search: "))
}

func TestFetcher_ChallengeIsBlocked(t *testing.T) {
	s := &fakeSession{openErrs: []error{fmt.Errorf("%w within 30s", ErrChallenge)}}
	f := NewFetcher(s, testFetchConfig())

	_, err := f.Open(context.Background(), "https://x.test/p")
	require.Error(t, err)
	assert.Equal(t, KindBlocked, KindOf(err))
	assert.ErrorIs(t, err, ErrChallenge)
	assert.Equal(t, 1, s.opens, "challenges are not retried")
}

func TestFetcher_PermanentOpenFailure(t *testing.T) {
	s := &fakeSession{openErrs: []error{errors.New("HTTP 404 from x")}}
	f := NewFetcher(s, testFetchConfig())

	_, err := f.Open(context.Background(), "https://x.test/p")
	assert.Equal(t, KindOpenFailed, KindOf(err))
	assert.Equal(t, 1, s.opens)
}

func TestFetcher_CancelledRun(t *testing.T) {
	s := &fakeSession{}
	f := NewFetcher(s, testFetchConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Open(ctx, "https://x.test/p")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Kind(""), KindOf(err))
	assert.Equal(t, 0, s.opens)
}

func TestFetcher_RobotsDisallowed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /private\nCrawl-delay: 7\n")
	}))
	defer ts.Close()

	robots, err := LoadRobots(context.Background(), ts.Client(), ts.URL+"/index", "paper-harvest")
	require.NoError(t, err)

	s := &fakeSession{}
	f := NewFetcher(s, testFetchConfig()).WithRobots(robots)

	_, err = f.Open(context.Background(), ts.URL+"/private/paper")
	assert.Equal(t, KindOpenFailed, KindOf(err))
	assert.Equal(t, 0, s.opens)

	_, err = f.Open(context.Background(), ts.URL+"/public/paper")
	assert.NoError(t, err)
	assert.Equal(t, 1, s.opens)
}

func TestRobots(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /private\nCrawl-delay: 7\n")
	}))
	defer ts.Close()

	r, err := LoadRobots(context.Background(), ts.Client(), ts.URL, "paper-harvest")
	require.NoError(t, err)

	assert.False(t, r.Allowed(ts.URL+"/private/x"))
	assert.True(t, r.Allowed(ts.URL+"/papers.cfm?abstract_id=1"))
	assert.True(t, r.Allowed("https://elsewhere.test/private/x"))
	assert.Equal(t, 7*time.Second, r.CrawlDelay())

	var none *Robots
	assert.True(t, none.Allowed("https://x.test/private"))
	assert.Zero(t, none.CrawlDelay())
}

func TestRobots_Missing(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	r, err := LoadRobots(context.Background(), ts.Client(), ts.URL, "paper-harvest")
	require.NoError(t, err)
	assert.True(t, r.Allowed(ts.URL+"/anything"))
}

func TestPacer(t *testing.T) {
	var slept []time.Duration
	p := NewPacer(5 * time.Second)
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	require.NoError(t, p.Wait(context.Background()))
	p.SetFloor(2 * time.Second)
	require.NoError(t, p.Wait(context.Background()))
	p.SetFloor(7 * time.Second)
	require.NoError(t, p.Wait(context.Background()))

	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 7 * time.Second}, slept)
}

func TestPacer_Cancelled(t *testing.T) {
	p := NewPacer(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Wait(ctx), context.Canceled)
}

func TestHTTPSession_Search(t *testing.T) {
	var gotTerm string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTerm = r.URL.Query().Get("term")
		fmt.Fprint(w, resultsPage)
	}))
	defer ts.Close()

	cfg := testFetchConfig()
	cfg.SearchURL = ts.URL + "/sol3/results.cfm"
	s, err := NewHTTPSession(cfg)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Search(context.Background(), "real earnings management")
	require.NoError(t, err)
	assert.Equal(t, "real earnings management", gotTerm)
	require.Len(t, got, 2)
	assert.Equal(t, ts.URL+"/sol3/papers.cfm?abstract_id=111", got[0].URL)
}

func TestHTTPSession_OpenStatuses(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/busy":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/gone":
			w.WriteHeader(http.StatusNotFound)
		case "/wall":
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, challengePage)
		default:
			fmt.Fprint(w, "<html><body>ok</body></html>")
		}
	}))
	defer ts.Close()

	s, err := NewHTTPSession(testFetchConfig())
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	page, err := s.Open(ctx, ts.URL+"/ok")
	require.NoError(t, err)
	assert.Contains(t, page.HTML, "ok")
	assert.Equal(t, ts.URL+"/ok", page.URL)

	_, err = s.Open(ctx, ts.URL+"/busy")
	assert.True(t, Retryable(err))

	_, err = s.Open(ctx, ts.URL+"/gone")
	require.Error(t, err)
	assert.False(t, Retryable(err))

	_, err = s.Open(ctx, ts.URL+"/wall")
	assert.ErrorIs(t, err, ErrChallenge)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "10.1016-j.jacceco.2006.01.002", Slug("10.1016/j.jacceco.2006.01.002"))
	assert.Equal(t, "doi-10.1-x", Slug("doi:10.1/x"))
}

func TestPageStore(t *testing.T) {
	home := t.TempDir()
	ps, err := NewPageStore(filepath.Join(home, "data"))
	require.NoError(t, err)
	ps.home = home

	stored, err := ps.SavePage("10.1/abc", "<html>page</html>")
	require.NoError(t, err)
	assert.Equal(t, "$HOME/data/pages/10.1-abc.html", stored)

	html, err := ps.LoadPage(stored)
	require.NoError(t, err)
	assert.Equal(t, "<html>page</html>", html)

	assert.Equal(t, filepath.Join(home, "data", "artifacts", "10.1-abc.pdf"), ps.ArtifactPath("10.1/abc"))

	outside := filepath.Join(string(filepath.Separator), "srv", "x.html")
	assert.Equal(t, outside, ps.Portable(outside))
	assert.Equal(t, outside, ps.Expand(outside))

	_, err = ps.LoadPage("$HOME/data/pages/missing.html")
	assert.Error(t, err)
}

func TestDownloader(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/paper.pdf":
			w.Header().Set("Content-Type", "application/octet-stream")
			fmt.Fprint(w, "%PDF-1.7\nbody")
		case "/html":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<html><body>Sign in to download</body></html>")
		case "/wall":
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, challengePage)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	d := NewDownloader(ts.Client(), "paper-harvest")
	dir := t.TempDir()
	ctx := context.Background()

	dest := filepath.Join(dir, "artifacts", "ok.pdf")
	require.NoError(t, d.Download(ctx, ts.URL+"/paper.pdf", dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7\nbody", string(data))

	tests := []struct {
		path     string
		wantKind Kind
		wantErr  error
	}{
		{"/html", KindDownload, ErrNotPDF},
		{"/wall", KindBlocked, ErrChallenge},
		{"/missing", KindDownload, nil},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			dest := filepath.Join(dir, "artifacts", strings.Trim(tt.path, "/")+".pdf")
			err := d.Download(ctx, ts.URL+tt.path, dest)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, KindOf(err))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.NoFileExists(t, dest)
		})
	}

	entries, err := os.ReadDir(filepath.Join(dir, "artifacts"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestDownloader_RetriesTransient(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, "%PDF-1.4")
	}))
	defer ts.Close()

	d := NewDownloader(ts.Client(), "paper-harvest").WithPolicy(RetryPolicy(testFetchConfig()))
	dest := filepath.Join(t.TempDir(), "a.pdf")
	require.NoError(t, d.Download(context.Background(), ts.URL, dest))
	assert.Equal(t, 2, calls)
	assert.FileExists(t, dest)
}
