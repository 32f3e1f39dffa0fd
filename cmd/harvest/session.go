package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pdiddy/paper-harvest/internal/fetch"
	"github.com/pdiddy/paper-harvest/pkg/types"
)

// newSession starts the transport named by cfg.Transport.
func newSession(cfg types.FetchConfig) (fetch.Session, error) {
	switch cfg.Transport {
	case types.TransportBrowser, "":
		return fetch.NewBrowserSession(cfg)
	case types.TransportHTTP:
		return fetch.NewHTTPSession(cfg)
	default:
		return nil, fmt.Errorf("unknown transport %q (known: browser, http)", cfg.Transport)
	}
}

// newPacer returns the record pacer, raised to the source's robots.txt
// Crawl-delay when RespectRobots is set. The parsed rules are returned so
// the fetcher can refuse disallowed pages; they are nil otherwise.
func newPacer(ctx context.Context, cfg types.Config) (*fetch.Pacer, *fetch.Robots) {
	pacer := fetch.NewPacer(cfg.Fetch.CrawlDelay)
	if !cfg.Fetch.RespectRobots {
		return pacer, nil
	}
	client := &http.Client{Timeout: cfg.Fetch.PageTimeout}
	robots, err := fetch.LoadRobots(ctx, client, cfg.Fetch.BaseURL, cfg.Metadata.UserAgent)
	if err != nil {
		slog.Warn("robots.txt unavailable, using configured delay", "error", err)
		return pacer, nil
	}
	pacer.SetFloor(robots.CrawlDelay())
	return pacer, robots
}
