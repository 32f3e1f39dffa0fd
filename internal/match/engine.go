// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package match

import (
	"fmt"
	"sort"

	"github.com/pdiddy/paper-harvest/pkg/types"
)

// Outcome classifies a resolution.
type Outcome int

const (
	// NoCandidates means the search returned nothing to score.
	NoCandidates Outcome = iota
	// BelowThreshold means the best candidate scored under the threshold.
	BelowThreshold
	// Matched means the best candidate was accepted.
	Matched
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case BelowThreshold:
		return "below_threshold"
	default:
		return "no_candidates"
	}
}

// Scored is a candidate with its combined similarity score.
type Scored struct {
	types.Candidate
	Score float64
}

// Resolution is the engine's decision for one canonical title. Best is
// set for Matched and BelowThreshold.
type Resolution struct {
	Outcome Outcome
	Best    *Scored
	Ranked  []Scored
}

// Confidence returns the best score, or nil when nothing was scored.
func (r Resolution) Confidence() *float64 {
	if r.Best == nil {
		return nil
	}
	s := r.Best.Score
	return &s
}

// Reason returns the error description recorded for an unmatched
// resolution, or "" when matched.
func (r Resolution) Reason() string {
	switch r.Outcome {
	case Matched:
		return ""
	case BelowThreshold:
		return fmt.Sprintf("no match above threshold (best score %.1f)", r.Best.Score)
	default:
		return "no search results found"
	}
}

// Engine ranks candidates against a canonical title.
type Engine struct {
	threshold     float64
	lengthWeight  float64
	maxCandidates int
}

// NewEngine returns an Engine configured from cfg, with defaults filled
// in for zero values.
func NewEngine(cfg types.MatchConfig) *Engine {
	e := &Engine{
		threshold:     cfg.SimilarityThreshold,
		lengthWeight:  cfg.LengthWeight,
		maxCandidates: cfg.MaxCandidates,
	}
	if e.threshold <= 0 {
		e.threshold = 85
	}
	if e.lengthWeight <= 0 {
		e.lengthWeight = DefaultLengthWeight
	}
	return e
}

// Threshold returns the acceptance threshold.
func (e *Engine) Threshold() float64 { return e.threshold }

// Rank scores candidates and sorts them by descending score, keeping
// results-page order among equal scores. Only the first maxCandidates
// entries are considered when a cap is configured.
func (e *Engine) Rank(title string, candidates []types.Candidate) []Scored {
	if e.maxCandidates > 0 && len(candidates) > e.maxCandidates {
		candidates = candidates[:e.maxCandidates]
	}
	ranked := make([]Scored, len(candidates))
	for i, c := range candidates {
		ranked[i] = Scored{Candidate: c, Score: CombinedSimilarity(title, c.Title, e.lengthWeight)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Index < ranked[j].Index
	})
	return ranked
}

// Resolve picks the best candidate and accepts it when its score reaches
// the threshold. An empty candidate list resolves to NoCandidates.
func (e *Engine) Resolve(title string, candidates []types.Candidate) Resolution {
	ranked := e.Rank(title, candidates)
	if len(ranked) == 0 {
		return Resolution{Outcome: NoCandidates}
	}
	best := ranked[0]
	res := Resolution{Best: &best, Ranked: ranked, Outcome: BelowThreshold}
	if best.Score >= e.threshold {
		res.Outcome = Matched
	}
	return res
}
