// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"
)

// Robots is the robots.txt group that applies to our user agent on one
// host. A nil *Robots allows everything.
type Robots struct {
	host  string
	group *robotstxt.Group
}

// LoadRobots fetches robots.txt from the host of siteURL and selects the
// group for userAgent. A missing file allows everything.
func LoadRobots(ctx context.Context, client *http.Client, siteURL, userAgent string) (*Robots, error) {
	u, err := url.Parse(siteURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("parsing site URL %q: invalid", siteURL)
	}
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", robotsURL, err)
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", robotsURL, err)
	}
	return &Robots{host: u.Host, group: data.FindGroup(userAgent)}, nil
}

// Allowed reports whether rawURL may be fetched. URLs on other hosts are
// not governed by these rules.
func (r *Robots) Allowed(rawURL string) bool {
	if r == nil || r.group == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Host != "" && u.Host != r.host {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return r.group.Test(path)
}

// CrawlDelay is the delay the host asks for, or zero.
func (r *Robots) CrawlDelay() time.Duration {
	if r == nil || r.group == nil {
		return 0
	}
	return r.group.CrawlDelay
}
