// Package matcher ranks enrolled identities against a query embedding and
// turns the best aggregate similarity into a match / no-match decision.
package matcher

import (
	"sort"

	"github.com/facein/facein/internal/config"
	"github.com/facein/facein/internal/face"
	"github.com/facein/facein/internal/quality"
	"github.com/facein/facein/internal/store"
)

// Source provides read access to identity pools. Satisfied by
// *store.Store and by the approximate index's candidate view.
type Source interface {
	Scan(fn func(name string, entries []store.Entry))
}

// Confidence is one identity's aggregate similarity to the query.
type Confidence struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"` // mean of the top-K weighted similarities
	Best       float64 `json:"best"`       // single best similarity, used for tie-breaks
}

// Result is the outcome of a recognition query. Ephemeral.
type Result struct {
	Matched    bool         `json:"matched"`
	Name       string       `json:"name,omitempty"`
	Confidence float64      `json:"confidence"`
	Threshold  float64      `json:"threshold"` // effective threshold applied
	Candidates []Confidence `json:"candidates,omitempty"`
}

// Matcher holds threshold configuration. Stateless otherwise, so a single
// instance serves concurrent queries.
type Matcher struct {
	cfg config.MatcherConfig
}

// New creates a matcher with the given configuration.
func New(cfg config.MatcherConfig) *Matcher {
	m := &Matcher{cfg: cfg}
	if m.cfg.TopK <= 0 {
		m.cfg.TopK = 3
	}
	return m
}

// Match scores the query against every identity in src using the
// configured base threshold.
func (m *Matcher) Match(src Source, query face.Embedding, q quality.Record) Result {
	return m.MatchThreshold(src, query, q, m.cfg.Threshold)
}

// MatchThreshold is Match with a per-call base threshold override.
//
// Per identity, each stored embedding's cosine similarity is weighted by
// its enrollment quality (0.7 + 0.3*q) and the top-K results are
// averaged; one atypical enrollment photo cannot dominate, while several
// consistent matches are rewarded. Ties on the aggregate are broken by
// the higher single best similarity, then lexicographic name order, so
// the result is deterministic for a frozen store.
func (m *Matcher) MatchThreshold(src Source, query face.Embedding, q quality.Record, base float64) Result {
	tau := m.effectiveThreshold(base, q.Score)
	result := Result{Threshold: tau}

	var candidates []Confidence
	src.Scan(func(name string, entries []store.Entry) {
		if len(entries) == 0 {
			return
		}
		candidates = append(candidates, m.scoreIdentity(name, entries, query))
	})
	if len(candidates) == 0 {
		return result // empty store: immediate no-match
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		if candidates[i].Best != candidates[j].Best {
			return candidates[i].Best > candidates[j].Best
		}
		return candidates[i].Name < candidates[j].Name
	})

	result.Candidates = candidates
	top := candidates[0]
	result.Confidence = top.Confidence
	if top.Confidence >= tau {
		result.Matched = true
		result.Name = top.Name
	}
	return result
}

// scoreIdentity aggregates the query's similarity to one identity's pool.
func (m *Matcher) scoreIdentity(name string, entries []store.Entry, query face.Embedding) Confidence {
	sims := make([]float64, 0, len(entries))
	best := -1.0
	for _, e := range entries {
		sim := face.CosineSimilarity(query, e.Embedding)
		weighted := sim * (0.7 + 0.3*e.Quality)
		sims = append(sims, weighted)
		if weighted > best {
			best = weighted
		}
	}

	sort.Sort(sort.Reverse(sort.Float64Slice(sims)))
	k := m.cfg.TopK
	if len(sims) < k {
		k = len(sims)
	}
	var sum float64
	for _, s := range sims[:k] {
		sum += s
	}
	return Confidence{Name: name, Confidence: sum / float64(k), Best: best}
}

// effectiveThreshold shifts the base similarity floor by the query's
// quality: a blurry or poorly posed query is more likely to spuriously
// resemble the wrong identity, so low quality tightens the floor; high
// quality may relax it slightly. The shift is bounded by QualityBand and
// with TightenOnly set the floor never drops below the base.
func (m *Matcher) effectiveThreshold(base, queryQuality float64) float64 {
	shift := (0.5 - clamp01(queryQuality)) * 2 * m.cfg.QualityBand
	tau := base + shift
	if m.cfg.TightenOnly && tau < base {
		tau = base
	}
	return tau
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
