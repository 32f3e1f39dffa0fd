// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metadata

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/paper-harvest/pkg/types"
)

// batchSize bounds how many records one upsert transaction carries.
const batchSize = 500

// Store is the slice of the state store the collector writes to.
type Store interface {
	AttemptLogger
	CountForJournalYear(ctx context.Context, journalID string, year int) (int, error)
	UpsertCanonicalBatch(ctx context.Context, recs []types.CanonicalRecord) (int, error)
	RebuildIndex(ctx context.Context) error
}

// Result summarizes a collection run.
type Result struct {
	// Counts maps journal name to records stored this run.
	Counts map[string]int

	Pairs    int // (journal, year) pairs considered
	Skipped  int // pairs already in the store
	Empty    int // pairs that produced no items, including failed fetches
	Filtered int // items rejected as non-articles or incomplete
}

// Stored returns the number of records written.
func (r Result) Stored() int {
	n := 0
	for _, c := range r.Counts {
		n += c
	}
	return n
}

// Journals returns the journal names in Counts, sorted.
func (r Result) Journals() []string {
	names := make([]string, 0, len(r.Counts))
	for name := range r.Counts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Collector fetches (journal, year) pairs in parallel and upserts the
// resulting canonical records.
type Collector struct {
	store   Store
	fetcher *Fetcher
	workers int
	refresh bool
	w       io.Writer

	mu sync.Mutex
}

// NewCollector returns a Collector. Progress lines go to w.
func NewCollector(store Store, fetcher *Fetcher, cfg types.MetadataConfig, w io.Writer) *Collector {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Collector{store: store, fetcher: fetcher, workers: workers, refresh: cfg.Refresh, w: w}
}

// Run collects every (journal, year) pair with at most the configured
// number of fetches in flight. Pairs that already have records are
// skipped unless refresh is set. Store errors and cancellation stop the
// run; the title index is rebuilt whenever anything was written.
func (c *Collector) Run(ctx context.Context, journals []types.Journal, years []int) (Result, error) {
	res := Result{Counts: make(map[string]int, len(journals))}
	for _, j := range journals {
		res.Counts[j.Name] = 0
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, j := range journals {
		for _, y := range years {
			g.Go(func() error {
				return c.collectPair(gctx, j, y, &res)
			})
		}
	}
	err := g.Wait()

	if res.Stored() > 0 {
		// Use the parent context's values but not its cancellation, so
		// records committed before an interrupt are still searchable.
		if rerr := c.store.RebuildIndex(context.WithoutCancel(ctx)); rerr != nil && err == nil {
			err = fmt.Errorf("rebuilding index: %w", rerr)
		}
	}
	if err != nil {
		return res, err
	}

	fmt.Fprintf(c.w, "\nCollection summary: %d records stored, %d pairs skipped, %d empty, %d items filtered (pairs: %d)\n",
		res.Stored(), res.Skipped, res.Empty, res.Filtered, res.Pairs)
	return res, nil
}

func (c *Collector) collectPair(ctx context.Context, j types.Journal, year int, res *Result) error {
	c.tally(func() { res.Pairs++ })

	if !c.refresh {
		n, err := c.store.CountForJournalYear(ctx, j.ISSN, year)
		if err != nil {
			return fmt.Errorf("checking %s %d: %w", j.ISSN, year, err)
		}
		if n > 0 {
			c.progress(func() { res.Skipped++ }, "skipped: %s %d (%d records already stored)\n", j.Name, year, n)
			return nil
		}
	}

	items, err := c.fetcher.FetchYear(ctx, j, year)
	if err != nil {
		return err
	}

	var recs []types.CanonicalRecord
	filtered := 0
	for _, item := range items {
		if !IsValidArticle(item) {
			filtered++
			continue
		}
		rec, ok := Transform(item, j)
		if !ok {
			filtered++
			continue
		}
		recs = append(recs, rec)
	}
	if len(recs) == 0 {
		c.progress(func() { res.Empty++; res.Filtered += filtered },
			"empty:   %s %d (%d items, none kept)\n", j.Name, year, len(items))
		return nil
	}

	stored := 0
	for start := 0; start < len(recs); start += batchSize {
		end := min(start+batchSize, len(recs))
		n, err := c.store.UpsertCanonicalBatch(ctx, recs[start:end])
		if err != nil {
			return fmt.Errorf("storing %s %d: %w", j.ISSN, year, err)
		}
		stored += n
	}

	if err := c.store.AppendLog(ctx, types.AttemptLogEntry{
		Identifier: PairKey(j.ISSN, year),
		Stage:      types.StageMetadata,
		Status:     types.StatusSuccess,
		RunID:      c.fetcher.runID,
	}); err != nil {
		return fmt.Errorf("logging %s %d: %w", j.ISSN, year, err)
	}

	c.progress(func() { res.Counts[j.Name] += stored; res.Filtered += filtered },
		"stored:  %s %d (%d records, %d filtered)\n", j.Name, year, stored, filtered)
	return nil
}

func (c *Collector) tally(update func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	update()
}

// progress applies update and prints one line under the same lock so
// counts and output stay consistent across workers.
func (c *Collector) progress(update func(), format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	update()
	fmt.Fprintf(c.w, format, args...)
}
