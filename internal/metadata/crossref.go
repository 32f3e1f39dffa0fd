// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pdiddy/paper-harvest/pkg/types"
)

// crossRefAPIBase is the CrossRef works endpoint. Declared as a var so
// tests can substitute an httptest server.
var crossRefAPIBase = "https://api.crossref.org/works"

// crossRefRows is the page size; CrossRef caps rows at 1000.
const crossRefRows = 1000

// crossRefFields limits the response to what Transform reads.
const crossRefFields = "DOI,title,author,issued,ISSN,publisher,type"

// CrossRef API JSON structures.
type crossRefResponse struct {
	Status  string          `json:"status"`
	Message crossRefMessage `json:"message"`
}

type crossRefMessage struct {
	NextCursor   string         `json:"next-cursor"`
	TotalResults int            `json:"total-results"`
	Items        []crossRefWork `json:"items"`
}

type crossRefWork struct {
	DOI       string           `json:"DOI"`
	Title     []string         `json:"title"`
	Type      string           `json:"type"`
	Author    []crossRefAuthor `json:"author"`
	Issued    crossRefDate     `json:"issued"`
	Publisher string           `json:"publisher"`
	ISSN      []string         `json:"ISSN"`
}

type crossRefAuthor struct {
	Given  string `json:"given"`
	Family string `json:"family"`
	Name   string `json:"name"`
}

type crossRefDate struct {
	DateParts [][]int `json:"date-parts"`
}

// CrossRefSource lists journal issues from the CrossRef REST API using
// deep cursor paging. Requests carry mailto so they join the polite pool.
type CrossRefSource struct {
	client    *http.Client
	email     string
	userAgent string
}

// NewCrossRefSource returns a CrossRef source using client.
func NewCrossRefSource(client *http.Client, cfg types.MetadataConfig) *CrossRefSource {
	ua := cfg.UserAgent
	if cfg.Email != "" {
		ua = fmt.Sprintf("%s (mailto:%s)", ua, cfg.Email)
	}
	return &CrossRefSource{client: client, email: cfg.Email, userAgent: ua}
}

// Name implements Source.
func (s *CrossRefSource) Name() string { return string(types.SourceCrossRef) }

// FetchYear implements Source.
func (s *CrossRefSource) FetchYear(ctx context.Context, issn string, year int) ([]RawItem, error) {
	var items []RawItem
	cursor := "*"
	for {
		page, err := s.fetchPage(ctx, issn, year, cursor)
		if err != nil {
			return nil, err
		}
		for _, w := range page.Items {
			items = append(items, w.rawItem())
		}
		if len(page.Items) == 0 || len(items) >= page.TotalResults || page.NextCursor == "" {
			return items, nil
		}
		cursor = page.NextCursor
	}
}

func (s *CrossRefSource) fetchPage(ctx context.Context, issn string, year int, cursor string) (*crossRefMessage, error) {
	q := url.Values{}
	q.Set("filter", fmt.Sprintf("issn:%s,from-pub-date:%d-01-01,until-pub-date:%d-12-31", issn, year, year))
	q.Set("select", crossRefFields)
	q.Set("rows", strconv.Itoa(crossRefRows))
	q.Set("cursor", cursor)
	if s.email != "" {
		q.Set("mailto", s.email)
	}

	body, err := getJSON(ctx, s.client, crossRefAPIBase+"?"+q.Encode(), s.userAgent)
	if err != nil {
		return nil, fmt.Errorf("CrossRef API request: %w", err)
	}
	defer body.Close()

	var cr crossRefResponse
	if err := json.NewDecoder(body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("parsing CrossRef response: %w", err)
	}
	if cr.Status != "" && cr.Status != "ok" {
		return nil, fmt.Errorf("CrossRef API status %q", cr.Status)
	}
	return &cr.Message, nil
}

func (w crossRefWork) rawItem() RawItem {
	item := RawItem{
		DOI:       w.DOI,
		Title:     w.Title,
		Type:      w.Type,
		Publisher: w.Publisher,
		ISSN:      w.ISSN,
	}
	if len(w.Issued.DateParts) > 0 && len(w.Issued.DateParts[0]) > 0 {
		item.Year = w.Issued.DateParts[0][0]
	}
	for _, a := range w.Author {
		item.Authors = append(item.Authors, RawAuthor{Given: a.Given, Family: a.Family, Name: a.Name})
	}
	return item
}
