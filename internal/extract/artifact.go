// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DeliveryPathToken marks the source's artifact delivery endpoint in hrefs.
const DeliveryPathToken = "Delivery.cfm"

// artifactSelectors are tried in order; the first element yielding a
// usable link wins.
var artifactSelectors = []string{
	"a[href*='" + DeliveryPathToken + "']",
	"a[href*='download']",
	".download-button",
	".btn-download",
	"button[data-action='download']",
	"a[href*='.pdf']",
	"a[title*='Download']",
	"a[aria-label*='Download']",
}

// artifactLinkTexts match anchor text, case-insensitively, as a last resort.
var artifactLinkTexts = []string{"download", "full text", "view pdf", "pdf"}

// linkAttrs are read in order from a matched element.
var linkAttrs = []string{"href", "data-href", "data-url", "data-link"}

// ArtifactLink runs the artifact cascade over raw HTML and returns an
// absolute URL.
func ArtifactLink(raw, pageURL string) (string, bool) {
	d, err := Parse(raw, pageURL)
	if err != nil {
		return "", false
	}
	return d.ArtifactLink()
}

// ArtifactLink returns the first download affordance on the page,
// resolved against the page URL.
func (d *Document) ArtifactLink() (string, bool) {
	for _, sel := range artifactSelectors {
		var link string
		d.Doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			link = d.resolve(s)
			return link == ""
		})
		if link != "" {
			return link, true
		}
	}

	var link string
	d.Doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.ToLower(clean(s.Text()))
		if text == "" {
			return true
		}
		for _, pattern := range artifactLinkTexts {
			if strings.Contains(text, pattern) {
				link = d.resolve(s)
				break
			}
		}
		return link == ""
	})
	return link, link != ""
}

func (d *Document) resolve(s *goquery.Selection) string {
	for _, attr := range linkAttrs {
		v, ok := s.Attr(attr)
		v = strings.TrimSpace(v)
		if !ok || v == "" || strings.HasPrefix(v, "#") || strings.HasPrefix(strings.ToLower(v), "javascript:") {
			continue
		}
		ref, err := url.Parse(v)
		if err != nil {
			continue
		}
		if d.URL != nil {
			ref = d.URL.ResolveReference(ref)
		}
		if !ref.IsAbs() {
			continue
		}
		return ref.String()
	}
	return ""
}

// DeliveryURLTemplate builds a direct artifact URL from an abstract id.
// Both %s verbs receive the id.
var DeliveryURLTemplate = "https://papers.ssrn.com/sol3/Delivery.cfm/%s.pdf?abstractid=%s&mirid=1"

var abstractIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`abstract_id=(\d+)`),
	regexp.MustCompile(`abstract=(\d+)`),
	regexp.MustCompile(`/abstract/(\d+)`),
	regexp.MustCompile(`abstractid=(\d+)`),
}

// AbstractID returns the numeric paper id embedded in a page URL.
func AbstractID(pageURL string) (string, bool) {
	for _, re := range abstractIDPatterns {
		if m := re.FindStringSubmatch(pageURL); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// DeliveryURL constructs the artifact URL for a resolved page when the
// page itself exposes no usable link.
func DeliveryURL(pageURL string) (string, bool) {
	id, ok := AbstractID(pageURL)
	if !ok {
		return "", false
	}
	return fmt.Sprintf(DeliveryURLTemplate, id, id), true
}
