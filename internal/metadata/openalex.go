// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pdiddy/paper-harvest/pkg/types"
)

// openAlexAPIBase is the OpenAlex works endpoint. Declared as a var so
// tests can substitute an httptest server.
var openAlexAPIBase = "https://api.openalex.org/works"

const openAlexPerPage = 200

// openAlexResponse captures the fields we need from an OpenAlex works page.
type openAlexResponse struct {
	Meta    openAlexMeta   `json:"meta"`
	Results []openAlexWork `json:"results"`
}

type openAlexMeta struct {
	Count      int    `json:"count"`
	NextCursor string `json:"next_cursor"`
}

type openAlexWork struct {
	DOI             string               `json:"doi"`
	Title           string               `json:"title"`
	DisplayName     string               `json:"display_name"`
	Type            string               `json:"type"`
	PublicationYear int                  `json:"publication_year"`
	Authorships     []openAlexAuthorship `json:"authorships"`
	PrimaryLocation *openAlexLocation    `json:"primary_location"`
}

type openAlexAuthorship struct {
	Author struct {
		DisplayName string `json:"display_name"`
	} `json:"author"`
}

// openAlexLocation represents where a work is hosted.
type openAlexLocation struct {
	Source *struct {
		ISSN                 []string `json:"issn"`
		HostOrganizationName string   `json:"host_organization_name"`
	} `json:"source"`
}

// openAlexTypes maps OpenAlex work types onto the CrossRef vocabulary
// IsValidArticle filters on.
var openAlexTypes = map[string]string{
	"article":     "journal-article",
	"preprint":    "posted-content",
	"report":      "report",
	"editorial":   "editorial",
	"erratum":     "erratum",
	"letter":      "letter",
	"review":      "journal-article",
	"paratext":    "component",
	"book-review": "book-review",
}

// OpenAlexSource lists journal issues from the OpenAlex API. It is the
// fallback when CrossRef is unavailable or incomplete for a journal.
type OpenAlexSource struct {
	client    *http.Client
	email     string
	userAgent string
}

// NewOpenAlexSource returns an OpenAlex source using client.
func NewOpenAlexSource(client *http.Client, cfg types.MetadataConfig) *OpenAlexSource {
	return &OpenAlexSource{client: client, email: cfg.Email, userAgent: cfg.UserAgent}
}

// Name implements Source.
func (s *OpenAlexSource) Name() string { return string(types.SourceOpenAlex) }

// FetchYear implements Source.
func (s *OpenAlexSource) FetchYear(ctx context.Context, issn string, year int) ([]RawItem, error) {
	var items []RawItem
	cursor := "*"
	for {
		q := url.Values{}
		q.Set("filter", fmt.Sprintf("primary_location.source.issn:%s,publication_year:%d", issn, year))
		q.Set("per-page", fmt.Sprint(openAlexPerPage))
		q.Set("cursor", cursor)
		if s.email != "" {
			q.Set("mailto", s.email)
		}

		body, err := getJSON(ctx, s.client, openAlexAPIBase+"?"+q.Encode(), s.userAgent)
		if err != nil {
			return nil, fmt.Errorf("OpenAlex API request: %w", err)
		}
		var oa openAlexResponse
		err = json.NewDecoder(body).Decode(&oa)
		body.Close()
		if err != nil {
			return nil, fmt.Errorf("parsing OpenAlex response: %w", err)
		}

		for _, w := range oa.Results {
			items = append(items, w.rawItem())
		}
		if len(oa.Results) == 0 || len(items) >= oa.Meta.Count || oa.Meta.NextCursor == "" {
			return items, nil
		}
		cursor = oa.Meta.NextCursor
	}
}

func (w openAlexWork) rawItem() RawItem {
	title := w.Title
	if title == "" {
		title = w.DisplayName
	}
	item := RawItem{
		DOI:  strings.TrimPrefix(strings.TrimPrefix(w.DOI, "https://doi.org/"), "http://doi.org/"),
		Type: w.Type,
		Year: w.PublicationYear,
	}
	if mapped, ok := openAlexTypes[w.Type]; ok {
		item.Type = mapped
	}
	if title != "" {
		item.Title = []string{title}
	}
	for _, a := range w.Authorships {
		if a.Author.DisplayName != "" {
			item.Authors = append(item.Authors, RawAuthor{Name: a.Author.DisplayName})
		}
	}
	if w.PrimaryLocation != nil && w.PrimaryLocation.Source != nil {
		item.Publisher = w.PrimaryLocation.Source.HostOrganizationName
		item.ISSN = w.PrimaryLocation.Source.ISSN
	}
	return item
}
