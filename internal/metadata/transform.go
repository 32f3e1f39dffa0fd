// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metadata

import (
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/pdiddy/paper-harvest/pkg/types"
)

// UntitledTitle stands in for an item the source lists without a title.
const UntitledTitle = "No Title Available"

// Transform turns a raw item into a canonical record for journal. Items
// without a DOI or a publication year are dropped.
func Transform(item RawItem, journal types.Journal) (types.CanonicalRecord, bool) {
	doi := strings.TrimSpace(item.DOI)
	if doi == "" || item.Year <= 0 {
		return types.CanonicalRecord{}, false
	}

	title := cleanText(strings.Join(item.Title, " "))
	if title == "" {
		title = UntitledTitle
	}

	publisher := strings.TrimSpace(item.Publisher)
	if publisher == "" {
		publisher = types.UnknownPublisher
	}

	return types.CanonicalRecord{
		Identifier:  doi,
		Title:       title,
		Authors:     authorNames(item.Authors),
		Year:        item.Year,
		JournalID:   journal.ISSN,
		JournalName: journal.Name,
		Publisher:   publisher,
	}, true
}

// authorNames renders authors as "Given Family", falling back to the
// family name or display name. An empty list becomes UnknownAuthor.
func authorNames(authors []RawAuthor) []string {
	var names []string
	for _, a := range authors {
		given, family := cleanText(a.Given), cleanText(a.Family)
		switch {
		case given != "" && family != "":
			names = append(names, given+" "+family)
		case family != "":
			names = append(names, family)
		case cleanText(a.Name) != "":
			names = append(names, cleanText(a.Name))
		}
	}
	if len(names) == 0 {
		return []string{types.UnknownAuthor}
	}
	return names
}

// cleanText strips markup (CrossRef titles carry JATS tags such as
// <i> and <sub>), decodes entities, and collapses whitespace.
func cleanText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return strings.Join(strings.Fields(b.String()), " ")
			}
			return strings.Join(strings.Fields(s), " ")
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			// Block-level breaks become spaces; inline markup joins.
			if name, _ := z.TagName(); isBlock(string(name)) {
				b.WriteByte(' ')
			}
		}
	}
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "br", "div", "title", "subtitle", "jats:p", "jats:title", "li":
		return true
	}
	return false
}
