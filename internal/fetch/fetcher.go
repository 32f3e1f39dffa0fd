// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pdiddy/paper-harvest/internal/httputil"
	"github.com/pdiddy/paper-harvest/pkg/types"
)

// Fetcher wraps a Session with the retry policy and classifies terminal
// failures.
type Fetcher struct {
	session Session
	policy  httputil.Policy
	robots  *Robots
}

// NewFetcher returns a Fetcher over session. Recoverable failures are
// retried up to cfg.MaxRetries times with delay CrawlDelay *
// BackoffFactor^attempt.
func NewFetcher(session Session, cfg types.FetchConfig) *Fetcher {
	return &Fetcher{
		session: session,
		policy:  RetryPolicy(cfg),
	}
}

// RetryPolicy builds the fetch retry policy from cfg.
func RetryPolicy(cfg types.FetchConfig) httputil.Policy {
	return httputil.Policy{
		MaxRetries:    cfg.MaxRetries,
		BaseDelay:     cfg.CrawlDelay,
		BackoffFactor: cfg.BackoffFactor,
		Retryable:     Retryable,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			slog.Warn("retrying fetch", "attempt", attempt, "delay", delay, "error", err)
		},
	}
}

// WithRobots makes Open refuse URLs the robots rules disallow.
func (f *Fetcher) WithRobots(r *Robots) *Fetcher {
	f.robots = r
	return f
}

// Session returns the underlying session.
func (f *Fetcher) Session() Session { return f.session }

// Search runs a search with retries. An empty result is not an error.
func (f *Fetcher) Search(ctx context.Context, query string) ([]types.Candidate, error) {
	var out []types.Candidate
	err := f.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = f.session.Search(ctx, query)
		return err
	})
	if err != nil {
		return nil, classify(ctx, "search", KindSearchFailed, err)
	}
	return out, nil
}

// Open navigates to url with retries.
func (f *Fetcher) Open(ctx context.Context, url string) (Page, error) {
	if f.robots != nil && !f.robots.Allowed(url) {
		return Page{}, &Error{Kind: KindOpenFailed, Op: "open", Err: errors.New("disallowed by robots.txt")}
	}
	var page Page
	err := f.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		page, err = f.session.Open(ctx, url)
		return err
	})
	if err != nil {
		return Page{}, classify(ctx, "open", KindOpenFailed, err)
	}
	return page, nil
}

// classify maps a terminal error to a Kind. Cancellation of the run is
// returned unwrapped so callers can discard the in-flight record.
func classify(ctx context.Context, op string, fallback Kind, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	kind := fallback
	if errors.Is(err, ErrChallenge) {
		kind = KindBlocked
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
