// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract pulls abstract text and artifact download links out of
// paper pages whose markup is unversioned and changes without notice.
// Each concern is an ordered cascade of independent strategies; stricter
// strategies run first and the first usable result wins.
package extract

import (
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

// MinAbstractLength is the length an abstract must exceed to be accepted.
const MinAbstractLength = 50

// abstractLabel is the heading text stripped from the front of results.
const abstractLabel = "Abstract"

// ContainerSelector locates the source's dedicated abstract container.
var ContainerSelector = "div.abstract-text"

// Document is a parsed page handed to strategies.
type Document struct {
	Doc *goquery.Document
	Raw string
	URL *url.URL
}

// Parse builds a Document from raw HTML. pageURL may be empty.
func Parse(raw, pageURL string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing page: %w", err)
	}
	d := &Document{Doc: doc, Raw: raw}
	if pageURL != "" {
		if u, err := url.Parse(pageURL); err == nil {
			d.URL = u
		}
	}
	return d, nil
}

// Strategy extracts a candidate string from a document. It reports false
// when it finds nothing.
type Strategy struct {
	Name string
	Fn   func(*Document) (string, bool)
}

// AbstractStrategies is the abstract cascade in priority order.
var AbstractStrategies = []Strategy{
	{"container-paragraphs", containerParagraphs},
	{"container-text", containerText},
	{"heading-siblings", headingSiblings},
	{"class-contains-abstract", classContainsAbstract},
	{"readability-excerpt", readabilityExcerpt},
}

// Abstract runs the abstract cascade over raw HTML.
func Abstract(raw, pageURL string) (string, bool) {
	d, err := Parse(raw, pageURL)
	if err != nil {
		return "", false
	}
	text, _, ok := d.Abstract()
	return text, ok
}

// Abstract runs the cascade and returns the accepted text and the name of
// the strategy that produced it.
func (d *Document) Abstract() (string, string, bool) {
	for _, s := range AbstractStrategies {
		text, ok := run(s, d)
		if !ok {
			continue
		}
		text = stripLabel(text)
		if len(text) > MinAbstractLength {
			return text, s.Name, true
		}
	}
	return "", "", false
}

// run invokes one strategy and converts a panic into a miss.
func run(s Strategy, d *Document) (text string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("extraction strategy panicked", "strategy", s.Name, "panic", r)
			text, ok = "", false
		}
	}()
	return s.Fn(d)
}

var spaceRe = regexp.MustCompile(`\s+`)

func clean(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// labelRe matches the label as a whole word, so "Abstracting ..." keeps
// its first word.
var labelRe = regexp.MustCompile(`^` + abstractLabel + `\b[\s:.\-]*`)

func stripLabel(s string) string {
	return labelRe.ReplaceAllString(clean(s), "")
}

func joinParagraphs(sel *goquery.Selection) string {
	var parts []string
	sel.Each(func(_ int, p *goquery.Selection) {
		if t := clean(p.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, " ")
}

func containerParagraphs(d *Document) (string, bool) {
	c := d.Doc.Find(ContainerSelector).First()
	if c.Length() == 0 {
		return "", false
	}
	text := joinParagraphs(c.Find("p"))
	return text, text != ""
}

func containerText(d *Document) (string, bool) {
	c := d.Doc.Find(ContainerSelector).First()
	if c.Length() == 0 {
		return "", false
	}
	text := clean(c.Text())
	return text, text != ""
}

var headingSel = "h1, h2, h3, h4"

// headingSiblings finds a heading reading "Abstract" and joins the
// paragraphs that follow it up to the next heading. When the heading has
// no paragraph siblings it falls back to paragraphs within its parent.
func headingSiblings(d *Document) (string, bool) {
	var text string
	d.Doc.Find(headingSel).EachWithBreak(func(_ int, h *goquery.Selection) bool {
		if !strings.Contains(strings.ToLower(h.Text()), "abstract") {
			return true
		}
		text = joinParagraphs(h.NextUntil(headingSel).Filter("p"))
		if text == "" {
			text = joinParagraphs(h.Parent().Find("p"))
		}
		return text == ""
	})
	return text, text != ""
}

func classContainsAbstract(d *Document) (string, bool) {
	var text string
	d.Doc.Find("div[class]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		if !strings.Contains(strings.ToLower(class), "abstract") {
			return true
		}
		t := stripLabel(s.Text())
		if len(t) > MinAbstractLength {
			text = t
			return false
		}
		return true
	})
	return text, text != ""
}

// readabilityExcerpt is the loosest strategy: the readability excerpt,
// which often comes from the page's description metadata.
func readabilityExcerpt(d *Document) (string, bool) {
	u := d.URL
	if u == nil {
		u = &url.URL{Scheme: "https", Host: "localhost"}
	}
	article, err := readability.FromReader(strings.NewReader(d.Raw), u)
	if err != nil {
		return "", false
	}
	text := clean(article.Excerpt)
	return text, text != ""
}
