// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pdiddy/paper-harvest/internal/httputil"
	"github.com/pdiddy/paper-harvest/pkg/types"
)

// maxBackoff caps the delay between metadata attempts.
const maxBackoff = 10 * time.Second

// AttemptLogger records audit entries.
type AttemptLogger interface {
	AppendLog(ctx context.Context, entry types.AttemptLogEntry) error
}

// Fetcher reads (journal, year) item sets through the cache, calling the
// source with bounded retries on a miss.
type Fetcher struct {
	source Source
	cache  *Cache
	log    AttemptLogger
	policy httputil.Policy
	runID  string
}

// NewFetcher returns a Fetcher. Failures that exhaust cfg.MaxAttempts are
// written to log.
func NewFetcher(source Source, cache *Cache, log AttemptLogger, cfg types.MetadataConfig) *Fetcher {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Fetcher{
		source: source,
		cache:  cache,
		log:    log,
		policy: httputil.Policy{
			MaxRetries:    attempts - 1,
			BaseDelay:     cfg.BackoffBase,
			BackoffFactor: 2,
			MaxDelay:      maxBackoff,
			OnRetry: func(attempt int, delay time.Duration, err error) {
				slog.Warn("retrying metadata fetch", "source", source.Name(),
					"attempt", attempt, "delay", delay, "error", err)
			},
		},
	}
}

// WithRunID stamps audit entries with id.
func (f *Fetcher) WithRunID(id string) *Fetcher {
	f.runID = id
	return f
}

// FetchYear returns the raw items for journal in year. The result is
// cached only when the source call succeeds with at least one item. A source failure that
// survives every retry is logged under "<issn>_<year>" and reported as
// zero items; only cancellation and audit-log failures are returned.
func (f *Fetcher) FetchYear(ctx context.Context, journal types.Journal, year int) ([]RawItem, error) {
	if items, ok := f.cache.Load(journal.ISSN, year); ok {
		return items, nil
	}

	var items []RawItem
	err := f.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		items, err = f.source.FetchYear(ctx, journal.ISSN, year)
		return err
	})
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		slog.Error("metadata fetch failed", "journal", journal.Name, "issn", journal.ISSN, "year", year, "error", err)
		logErr := f.log.AppendLog(ctx, types.AttemptLogEntry{
			Identifier: PairKey(journal.ISSN, year),
			Stage:      types.StageMetadata,
			Status:     types.StatusFailed,
			Error:      err.Error(),
			RunID:      f.runID,
		})
		if logErr != nil {
			return nil, fmt.Errorf("logging metadata failure: %w", logErr)
		}
		return nil, nil
	}

	if len(items) == 0 {
		return nil, nil
	}
	if err := f.cache.Store(journal.ISSN, year, items); err != nil {
		slog.Warn("caching metadata failed", "issn", journal.ISSN, "year", year, "error", err)
	}
	return items, nil
}

// PairKey is the audit identifier for a (journal, year) fetch.
func PairKey(issn string, year int) string {
	return fmt.Sprintf("%s_%d", issn, year)
}
