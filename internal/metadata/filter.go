// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metadata

import (
	"regexp"
	"strings"
)

// articleTypes are the source work types kept. Items cached before the
// type field was requested have an empty type and are kept too.
var articleTypes = map[string]bool{
	"":                    true,
	"journal-article":     true,
	"proceedings-article": true,
	"posted-content":      true,
	"report":              true,
}

// nonArticlePhrases mark structural items (covers, indexes, errata)
// wherever they appear in a title as whole words.
var nonArticlePhrases = []string{
	"front matter", "back matter",
	"cover", "covers",
	"book review", "books received",
	"editorial board", "editorial note",
	"erratum", "corrigendum", "correction",
	"retraction",
	"index to volume", "subject index", "author index",
	"table of contents",
	"masthead", "issue information",
	"title pages", "copyright page",
}

var nonArticlePhraseRE = regexp.MustCompile(`\b(?:` + strings.Join(nonArticlePhrases, "|") + `)\b`)

// nonArticlePatterns match titles that are structural only as a whole or
// at the start. "Earnings Announcements and ..." is a real article, so
// these stay anchored.
var nonArticlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^volume \d+`),
	regexp.MustCompile(`^issue \d+`),
	regexp.MustCompile(`^contents`),
	regexp.MustCompile(`^editorial$`),
	regexp.MustCompile(`^announcements$`),
	regexp.MustCompile(`^announcements and`),
}

// IsValidArticle reports whether item is a research article worth
// acquiring.
func IsValidArticle(item RawItem) bool {
	if strings.TrimSpace(item.DOI) == "" {
		return false
	}
	if !articleTypes[strings.ToLower(item.Type)] {
		return false
	}
	title := strings.ToLower(cleanText(strings.Join(item.Title, " ")))
	if nonArticlePhraseRE.MatchString(title) {
		return false
	}
	for _, re := range nonArticlePatterns {
		if re.MatchString(title) {
			return false
		}
	}
	return true
}
