// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-harvest/pkg/types"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "real earnings management", Normalize("  Real\tEarnings\n MANAGEMENT "))
	// NFKC expands the ligature before case folding.
	assert.Equal(t, "financial reporting", Normalize("ﬁnancial REPORTING"))
}

func TestPartialRatio(t *testing.T) {
	assert.Equal(t, 100.0, PartialRatio("Real Earnings Management", "Real Earnings Management Activities"))
	assert.Equal(t, 100.0, PartialRatio("real earnings management activities", "REAL EARNINGS MANAGEMENT"))
	assert.Equal(t, 0.0, PartialRatio("", "anything"))

	// One substitution in a 10-rune window.
	assert.InDelta(t, 90.0, PartialRatio("abcdefghij", "xxabcdefghiXxx"), 1e-9)

	low := PartialRatio("Real Earnings Management", "Unrelated Paper")
	assert.Less(t, low, 60.0)
}

func TestLengthSimilarity(t *testing.T) {
	assert.InDelta(t, 75.0, LengthSimilarity("Real Earnings Management", "Real Earnings Management Activities"), 1e-9)
	assert.Equal(t, 100.0, LengthSimilarity("a b", "c d"))
	assert.Equal(t, 0.0, LengthSimilarity("", "c d"))
	assert.Equal(t, 0.0, LengthSimilarity("a", "   "))
}

func TestCombinedSimilarity_Identical(t *testing.T) {
	for _, title := range []string{
		"Real Earnings Management",
		"The Cross-Section of Expected Stock Returns",
		"x",
		"Über die Bilanzierung von Rückstellungen",
	} {
		assert.Equal(t, 100.0, CombinedSimilarity(title, title, DefaultLengthWeight), title)
	}
}

func TestCombinedSimilarity_WeightClamped(t *testing.T) {
	a, b := "Real Earnings Management", "Real Earnings Management Activities"
	assert.Equal(t, CombinedSimilarity(a, b, 0), CombinedSimilarity(a, b, -1))
	assert.InDelta(t, 75.0, CombinedSimilarity(a, b, 2), 1e-9)
}

func TestResolve_RealEarningsManagement(t *testing.T) {
	e := NewEngine(types.MatchConfig{SimilarityThreshold: 85, LengthWeight: 0.3})
	res := e.Resolve("Real Earnings Management", []types.Candidate{
		{Index: 0, URL: "https://papers.example/1", Title: "Real Earnings Management Activities"},
		{Index: 1, URL: "https://papers.example/2", Title: "Unrelated Paper"},
	})

	require.Equal(t, Matched, res.Outcome)
	require.NotNil(t, res.Best)
	assert.Equal(t, "https://papers.example/1", res.Best.URL)
	assert.GreaterOrEqual(t, res.Best.Score, 85.0)
	assert.InDelta(t, 92.5, res.Best.Score, 1e-6)
	assert.Equal(t, "", res.Reason())
	require.Len(t, res.Ranked, 2)
	assert.Equal(t, 1, res.Ranked[1].Index)
	assert.Less(t, res.Ranked[1].Score, 85.0)
}

func TestRank_TieBreaksOnIndex(t *testing.T) {
	e := NewEngine(types.MatchConfig{})
	// Indices 0 and 1 carry identical titles so they score the same;
	// index 2 scores lower.
	candidates := []types.Candidate{
		{Index: 0, URL: "u0", Title: "Audit Fees and Auditor Independence"},
		{Index: 1, URL: "u1", Title: "Audit Fees and Auditor Independence"},
		{Index: 2, URL: "u2", Title: "Corporate Bond Spreads"},
	}
	ranked := e.Rank("Audit Fees and Auditor Independence", candidates)
	require.Len(t, ranked, 3)
	assert.Equal(t, ranked[0].Score, ranked[1].Score)
	assert.Equal(t, 0, ranked[0].Index)
	assert.Equal(t, 1, ranked[1].Index)
	assert.Equal(t, 2, ranked[2].Index)

	// Input order does not matter; Index decides ties.
	reversed := []types.Candidate{candidates[2], candidates[1], candidates[0]}
	res := e.Resolve("Audit Fees and Auditor Independence", reversed)
	require.Equal(t, Matched, res.Outcome)
	assert.Equal(t, 0, res.Best.Index)
}

func TestResolve_BelowThresholdKeepsScore(t *testing.T) {
	e := NewEngine(types.MatchConfig{SimilarityThreshold: 85})
	res := e.Resolve("Real Earnings Management", []types.Candidate{
		{Index: 0, URL: "u0", Title: "Unrelated Paper"},
	})
	assert.Equal(t, BelowThreshold, res.Outcome)
	require.NotNil(t, res.Confidence())
	assert.Less(t, *res.Confidence(), 85.0)
	assert.Contains(t, res.Reason(), "no match above threshold (best score ")
}

func TestResolve_NoCandidates(t *testing.T) {
	e := NewEngine(types.MatchConfig{})
	res := e.Resolve("Real Earnings Management", nil)
	assert.Equal(t, NoCandidates, res.Outcome)
	assert.Nil(t, res.Best)
	assert.Nil(t, res.Confidence())
	assert.Equal(t, "no search results found", res.Reason())
	assert.Equal(t, "no_candidates", res.Outcome.String())
}

func TestRank_MaxCandidates(t *testing.T) {
	e := NewEngine(types.MatchConfig{MaxCandidates: 2})
	ranked := e.Rank("Title", []types.Candidate{
		{Index: 0, Title: "A"}, {Index: 1, Title: "B"}, {Index: 2, Title: "Title"},
	})
	assert.Len(t, ranked, 2)
	for _, r := range ranked {
		assert.NotEqual(t, 2, r.Index)
	}
}

func TestNewEngine_Defaults(t *testing.T) {
	e := NewEngine(types.MatchConfig{})
	assert.Equal(t, 85.0, e.Threshold())
	assert.Equal(t, DefaultLengthWeight, e.lengthWeight)
}
