// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package match decides whether a candidate page on the secondary source
// is the same work as a canonical record, by weighted fuzzy title
// similarity.
package match

import (
	"math"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DefaultLengthWeight is the weight of word-count similarity in the
// combined score.
const DefaultLengthWeight = 0.3

// Normalize NFKC-normalizes s, folds case, and collapses whitespace.
func Normalize(s string) string {
	// Casers are stateful, so each call gets its own.
	s = cases.Fold().String(norm.NFKC.String(s))
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// PartialRatio returns the best alignment score in [0,100] of the shorter
// normalized string against every same-length window of the longer one.
// A score of 100 means the shorter string occurs verbatim in the longer.
func PartialRatio(a, b string) float64 {
	a, b = Normalize(a), Normalize(b)
	if a == "" || b == "" {
		return 0
	}

	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if strings.Contains(string(long), string(short)) {
		return 100
	}

	s := string(short)
	n := len(short)
	best := 0.0
	for i := 0; i+n <= len(long); i++ {
		d := levenshtein.ComputeDistance(s, string(long[i:i+n]))
		r := 100 * (1 - float64(d)/float64(n))
		if r > best {
			best = r
			if best == 100 {
				break
			}
		}
	}
	return best
}

// LengthSimilarity is 100 * min(words) / max(words), or 0 when either
// title has no words.
func LengthSimilarity(a, b string) float64 {
	wa, wb := len(strings.Fields(a)), len(strings.Fields(b))
	if wa == 0 || wb == 0 {
		return 0
	}
	lo, hi := wa, wb
	if lo > hi {
		lo, hi = hi, lo
	}
	return 100 * float64(lo) / float64(hi)
}

// CombinedSimilarity is (1-w)*PartialRatio + w*LengthSimilarity. Weights
// outside [0,1] are clamped.
func CombinedSimilarity(a, b string, w float64) float64 {
	switch {
	case w < 0:
		w = 0
	case w > 1:
		w = 1
	}
	v := (1-w)*PartialRatio(a, b) + w*LengthSimilarity(a, b)
	// Round away float noise so identical titles score exactly 100.
	return math.Round(v*1e6) / 1e6
}
