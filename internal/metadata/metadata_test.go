// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metadata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-harvest/internal/httputil"
	"github.com/pdiddy/paper-harvest/pkg/types"
)

var tar = types.Journal{Name: "The Accounting Review", ISSN: "0001-4826", Field: "accounting"}

func testMetadataConfig() types.MetadataConfig {
	cfg := types.DefaultConfig().Metadata
	cfg.BackoffBase = time.Millisecond
	cfg.Workers = 2
	return cfg
}

func TestIsValidArticle(t *testing.T) {
	tests := []struct {
		name string
		item RawItem
		want bool
	}{
		{"research article", RawItem{DOI: "10.1/a", Type: "journal-article", Title: []string{"Real Earnings Management"}}, true},
		{"legacy cache without type", RawItem{DOI: "10.1/a", Title: []string{"Accrual Quality"}}, true},
		{"preprint", RawItem{DOI: "10.1/a", Type: "posted-content", Title: []string{"Audit Fees"}}, true},
		{"missing DOI", RawItem{Type: "journal-article", Title: []string{"Accrual Quality"}}, false},
		{"book chapter", RawItem{DOI: "10.1/a", Type: "book-chapter", Title: []string{"Accrual Quality"}}, false},
		{"front matter", RawItem{DOI: "10.1/a", Type: "journal-article", Title: []string{"Front Matter"}}, false},
		{"issue information", RawItem{DOI: "10.1/a", Type: "journal-article", Title: []string{"Issue Information"}}, false},
		{"erratum", RawItem{DOI: "10.1/a", Type: "journal-article", Title: []string{"Erratum: Accrual Quality"}}, false},
		{"volume header", RawItem{DOI: "10.1/a", Type: "journal-article", Title: []string{"Volume 12, Issue 3"}}, false},
		{"bare editorial", RawItem{DOI: "10.1/a", Type: "journal-article", Title: []string{"Editorial"}}, false},
		{"announcements section", RawItem{DOI: "10.1/a", Type: "journal-article", Title: []string{"Announcements and Notices"}}, false},
		{"article about announcements", RawItem{DOI: "10.1/a", Type: "journal-article", Title: []string{"Earnings Announcements and Returns"}}, true},
		{"word containing cover", RawItem{DOI: "10.1/a", Type: "journal-article", Title: []string{"Discovery and Recovery of Losses"}}, true},
		{"editorial in title body", RawItem{DOI: "10.1/a", Type: "journal-article", Title: []string{"Editorial Independence of Analysts"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidArticle(tt.item))
		})
	}
}

func TestTransform(t *testing.T) {
	item := RawItem{
		DOI:   " 10.2308/accr-1 ",
		Title: []string{"<i>Real</i> earnings\n  management &amp; accruals"},
		Year:  2020,
		Authors: []RawAuthor{
			{Given: "Sugata", Family: "Roychowdhury"},
			{Family: "Dechow"},
			{Name: "A. Consortium"},
			{},
		},
	}
	rec, ok := Transform(item, tar)
	require.True(t, ok)

	assert.Equal(t, "10.2308/accr-1", rec.Identifier)
	assert.Equal(t, "Real earnings management & accruals", rec.Title)
	assert.Equal(t, []string{"Sugata Roychowdhury", "Dechow", "A. Consortium"}, rec.Authors)
	assert.Equal(t, 2020, rec.Year)
	assert.Equal(t, "0001-4826", rec.JournalID)
	assert.Equal(t, "The Accounting Review", rec.JournalName)
	assert.Equal(t, types.UnknownPublisher, rec.Publisher)
}

func TestTransform_Defaults(t *testing.T) {
	rec, ok := Transform(RawItem{DOI: "10.1/x", Year: 2019, Publisher: "AAA"}, tar)
	require.True(t, ok)
	assert.Equal(t, UntitledTitle, rec.Title)
	assert.Equal(t, []string{types.UnknownAuthor}, rec.Authors)
	assert.Equal(t, "AAA", rec.Publisher)
}

func TestTransform_Drops(t *testing.T) {
	_, ok := Transform(RawItem{DOI: "10.1/x"}, tar)
	assert.False(t, ok, "missing year")
	_, ok = Transform(RawItem{Year: 2020}, tar)
	assert.False(t, ok, "missing DOI")
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "H2O markets", cleanText("H<sub>2</sub>O markets"))
	assert.Equal(t, "Title Subtitle", cleanText("<jats:title>Title</jats:title><jats:subtitle>Subtitle</jats:subtitle>"))
	assert.Equal(t, "a b", cleanText("  a \n\t b "))
	assert.Equal(t, "R&D spending", cleanText("R&amp;D spending"))
}

func TestCache(t *testing.T) {
	c, err := NewCache(t.TempDir())
	require.NoError(t, err)

	_, ok := c.Load("0001-4826", 2020)
	assert.False(t, ok)

	items := []RawItem{{DOI: "10.1/a", Year: 2020, Title: []string{"A"}}}
	require.NoError(t, c.Store("0001-4826", 2020, items))

	got, ok := c.Load("0001-4826", 2020)
	require.True(t, ok)
	assert.Equal(t, items, got)

	require.NoError(t, c.Store("0001-4826", 2021, nil))
	got, ok = c.Load("0001-4826", 2021)
	assert.False(t, ok, "an empty response is refetched")
	assert.Empty(t, got)
	assert.NoFileExists(t, c.Path("0001-4826", 2021))
}

func TestCache_CorruptIsMiss(t *testing.T) {
	c, err := NewCache(t.TempDir())
	require.NoError(t, err)

	for _, body := range []string{"", "[{\"doi\": "} {
		path := c.Path("0001-4826", 2020)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

		_, ok := c.Load("0001-4826", 2020)
		assert.False(t, ok)
		assert.NoFileExists(t, path)
	}
}

func TestCrossRefSource_Paging(t *testing.T) {
	var calls []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		calls = append(calls, q.Get("cursor"))
		assert.Equal(t, "issn:0001-4826,from-pub-date:2020-01-01,until-pub-date:2020-12-31", q.Get("filter"))
		assert.Equal(t, "me@example.com", q.Get("mailto"))
		assert.Contains(t, r.Header.Get("User-Agent"), "mailto:me@example.com")

		switch q.Get("cursor") {
		case "*":
			fmt.Fprint(w, `{"status":"ok","message":{"next-cursor":"c2","total-results":3,"items":[
				{"DOI":"10.1/a","title":["A"],"type":"journal-article","issued":{"date-parts":[[2020,3,1]]},
				 "author":[{"given":"Ann","family":"Lee"}],"publisher":"AAA","ISSN":["0001-4826"]},
				{"DOI":"10.1/b","title":["B"],"type":"journal-article","issued":{"date-parts":[[2020]]}}]}}`)
		default:
			fmt.Fprint(w, `{"status":"ok","message":{"next-cursor":"c3","total-results":3,"items":[
				{"DOI":"10.1/c","title":["C"],"issued":{"date-parts":[[null]]}}]}}`)
		}
	}))
	defer ts.Close()

	old := crossRefAPIBase
	crossRefAPIBase = ts.URL
	defer func() { crossRefAPIBase = old }()

	cfg := testMetadataConfig()
	cfg.Email = "me@example.com"
	src := NewCrossRefSource(ts.Client(), cfg)

	items, err := src.FetchYear(context.Background(), "0001-4826", 2020)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"*", "c2"}, calls)

	assert.Equal(t, RawItem{
		DOI: "10.1/a", Title: []string{"A"}, Type: "journal-article", Year: 2020,
		Authors: []RawAuthor{{Given: "Ann", Family: "Lee"}}, Publisher: "AAA", ISSN: []string{"0001-4826"},
	}, items[0])
	assert.Equal(t, 2020, items[1].Year)
	assert.Zero(t, items[2].Year)
	assert.Equal(t, "crossref", src.Name())
}

func TestCrossRefSource_ClientErrorIsPermanent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	old := crossRefAPIBase
	crossRefAPIBase = ts.URL
	defer func() { crossRefAPIBase = old }()

	_, err := NewCrossRefSource(ts.Client(), testMetadataConfig()).FetchYear(context.Background(), "x", 2020)
	require.Error(t, err)
	assert.ErrorIs(t, err, httputil.ErrPermanent)
}

func TestOpenAlexSource(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "primary_location.source.issn:0001-4826,publication_year:2020", r.URL.Query().Get("filter"))
		fmt.Fprint(w, `{"meta":{"count":1,"next_cursor":null},"results":[{
			"doi":"https://doi.org/10.2308/accr-1","title":"Real Earnings Management","type":"article",
			"publication_year":2020,
			"authorships":[{"author":{"display_name":"Sugata Roychowdhury"}}],
			"primary_location":{"source":{"issn":["0001-4826"],"host_organization_name":"American Accounting Association"}}}]}`)
	}))
	defer ts.Close()

	old := openAlexAPIBase
	openAlexAPIBase = ts.URL
	defer func() { openAlexAPIBase = old }()

	items, err := NewOpenAlexSource(ts.Client(), testMetadataConfig()).FetchYear(context.Background(), "0001-4826", 2020)
	require.NoError(t, err)
	require.Len(t, items, 1)

	it := items[0]
	assert.Equal(t, "10.2308/accr-1", it.DOI)
	assert.Equal(t, "journal-article", it.Type)
	assert.Equal(t, []RawAuthor{{Name: "Sugata Roychowdhury"}}, it.Authors)
	assert.Equal(t, "American Accounting Association", it.Publisher)
	assert.True(t, IsValidArticle(it))

	rec, ok := Transform(it, tar)
	require.True(t, ok)
	assert.Equal(t, []string{"Sugata Roychowdhury"}, rec.Authors)
}

// fakeSource fails the first failures calls for every pair.
type fakeSource struct {
	mu       sync.Mutex
	failures int
	calls    map[string]int
	items    map[string][]RawItem
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchYear(_ context.Context, issn string, year int) ([]RawItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	key := PairKey(issn, year)
	f.calls[key]++
	if f.calls[key] <= f.failures {
		return nil, errors.New("HTTP 502 from api.test")
	}
	return f.items[key], nil
}

// fakeStore records writes in memory.
type fakeStore struct {
	mu       sync.Mutex
	existing map[string]int
	records  []types.CanonicalRecord
	logs     []types.AttemptLogEntry
	rebuilt  int
}

func (s *fakeStore) AppendLog(_ context.Context, e types.AttemptLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, e)
	return nil
}

func (s *fakeStore) CountForJournalYear(_ context.Context, issn string, year int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existing[PairKey(issn, year)], nil
}

func (s *fakeStore) UpsertCanonicalBatch(_ context.Context, recs []types.CanonicalRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, recs...)
	return len(recs), nil
}

func (s *fakeStore) RebuildIndex(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rebuilt++
	return nil
}

func TestFetcher_CacheHit(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, cache.Store(tar.ISSN, 2020, []RawItem{{DOI: "10.1/cached"}}))

	src := &fakeSource{}
	f := NewFetcher(src, cache, &fakeStore{}, testMetadataConfig())

	items, err := f.FetchYear(context.Background(), tar, 2020)
	require.NoError(t, err)
	assert.Equal(t, "10.1/cached", items[0].DOI)
	assert.Empty(t, src.calls)
}

func TestFetcher_CachedEmptyIsRefetched(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, cache.Store(tar.ISSN, 2020, nil))

	src := &fakeSource{items: map[string][]RawItem{"0001-4826_2020": {{DOI: "10.1/late"}}}}
	f := NewFetcher(src, cache, &fakeStore{}, testMetadataConfig())

	items, err := f.FetchYear(context.Background(), tar, 2020)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "10.1/late", items[0].DOI)
	assert.Equal(t, 1, src.calls["0001-4826_2020"])

	cached, ok := cache.Load(tar.ISSN, 2020)
	require.True(t, ok)
	assert.Equal(t, items, cached)
}

func TestFetcher_EmptyResultIsNotCached(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	require.NoError(t, err)
	src := &fakeSource{}
	f := NewFetcher(src, cache, &fakeStore{}, testMetadataConfig())

	for range 2 {
		items, err := f.FetchYear(context.Background(), tar, 2021)
		require.NoError(t, err)
		assert.Empty(t, items)
	}
	assert.Equal(t, 2, src.calls["0001-4826_2021"])
	assert.NoFileExists(t, cache.Path(tar.ISSN, 2021))
}

func TestFetcher_RetriesThenCaches(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	require.NoError(t, err)
	src := &fakeSource{failures: 2, items: map[string][]RawItem{"0001-4826_2020": {{DOI: "10.1/a"}}}}
	f := NewFetcher(src, cache, &fakeStore{}, testMetadataConfig())

	items, err := f.FetchYear(context.Background(), tar, 2020)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 3, src.calls["0001-4826_2020"])
	assert.FileExists(t, cache.Path(tar.ISSN, 2020))
}

func TestFetcher_ExhaustedIsLoggedAsEmpty(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	require.NoError(t, err)
	src := &fakeSource{failures: 10}
	st := &fakeStore{}
	f := NewFetcher(src, cache, st, testMetadataConfig()).WithRunID("run-1")

	items, err := f.FetchYear(context.Background(), tar, 2020)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 3, src.calls["0001-4826_2020"], "attempt ceiling")
	assert.NoFileExists(t, cache.Path(tar.ISSN, 2020), "failures are never cached")

	require.Len(t, st.logs, 1)
	assert.Equal(t, "0001-4826_2020", st.logs[0].Identifier)
	assert.Equal(t, types.StageMetadata, st.logs[0].Stage)
	assert.Equal(t, types.StatusFailed, st.logs[0].Status)
	assert.Equal(t, "run-1", st.logs[0].RunID)
	assert.Contains(t, st.logs[0].Error, "HTTP 502")
}

func TestFetcher_Cancelled(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	require.NoError(t, err)
	st := &fakeStore{}
	f := NewFetcher(&fakeSource{}, cache, st, testMetadataConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = f.FetchYear(ctx, tar, 2020)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, st.logs)
}

func TestCollector_Run(t *testing.T) {
	jae := types.Journal{Name: "Journal of Accounting and Economics", ISSN: "0165-4101"}
	src := &fakeSource{items: map[string][]RawItem{
		"0001-4826_2020": {
			{DOI: "10.1/a", Type: "journal-article", Title: []string{"Real Earnings Management"}, Year: 2020},
			{DOI: "10.1/fm", Type: "journal-article", Title: []string{"Front Matter"}, Year: 2020},
			{DOI: "10.1/noyear", Type: "journal-article", Title: []string{"Accruals"}},
		},
		"0165-4101_2020": {
			{DOI: "10.1/b", Type: "journal-article", Title: []string{"Audit Fees"}, Year: 2020},
		},
	}}
	st := &fakeStore{existing: map[string]int{"0001-4826_2021": 12}}
	cache, err := NewCache(t.TempDir())
	require.NoError(t, err)

	cfg := testMetadataConfig()
	var out bytes.Buffer
	c := NewCollector(st, NewFetcher(src, cache, st, cfg), cfg, &out)

	res, err := c.Run(context.Background(), []types.Journal{tar, jae}, []int{2020, 2021})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Pairs)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Empty, "jae 2021 returns nothing")
	assert.Equal(t, 2, res.Filtered)
	assert.Equal(t, map[string]int{"The Accounting Review": 1, "Journal of Accounting and Economics": 1}, res.Counts)
	assert.Equal(t, 2, res.Stored())
	assert.Equal(t, []string{"Journal of Accounting and Economics", "The Accounting Review"}, res.Journals())

	assert.Len(t, st.records, 2)
	assert.Equal(t, 1, st.rebuilt)
	assert.NotContains(t, src.calls, "0001-4826_2021", "skipped pair is never fetched")
	assert.Contains(t, out.String(), "skipped: The Accounting Review 2021 (12 records already stored)")
	assert.Contains(t, out.String(), "Collection summary: 2 records stored")

	successes := 0
	for _, e := range st.logs {
		if e.Status == types.StatusSuccess {
			successes++
		}
	}
	assert.Equal(t, 2, successes)
}

func TestCollector_Refresh(t *testing.T) {
	src := &fakeSource{items: map[string][]RawItem{
		"0001-4826_2021": {{DOI: "10.1/a", Type: "journal-article", Title: []string{"A new title"}, Year: 2021}},
	}}
	st := &fakeStore{existing: map[string]int{"0001-4826_2021": 12}}
	cache, err := NewCache(t.TempDir())
	require.NoError(t, err)

	cfg := testMetadataConfig()
	cfg.Refresh = true
	var out bytes.Buffer
	c := NewCollector(st, NewFetcher(src, cache, st, cfg), cfg, &out)

	res, err := c.Run(context.Background(), []types.Journal{tar}, []int{2021})
	require.NoError(t, err)
	assert.Zero(t, res.Skipped)
	assert.Equal(t, 1, res.Stored())
}
