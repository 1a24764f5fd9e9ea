// Package match scores remote candidates against canonical titles and picks
// the winning canonical entry.
package match

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"unicode"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/JakeFAU/catalog-linker/internal/linker"
)

// DefaultThreshold is the minimum score accepted as a match.
const DefaultThreshold = 0.6

// Engine selects matches from ranked candidates.
type Engine struct {
	threshold          float64
	ambiguityThreshold float64
}

// NewEngine builds an Engine. A runner-up scoring at or above
// ambiguityThreshold marks the winner as ambiguous; zero means use threshold.
func NewEngine(threshold, ambiguityThreshold float64) *Engine {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	if ambiguityThreshold <= 0 || ambiguityThreshold > 1 {
		ambiguityThreshold = threshold
	}
	return &Engine{threshold: threshold, ambiguityThreshold: ambiguityThreshold}
}

// Threshold returns the acceptance threshold.
func (e *Engine) Threshold() float64 { return e.threshold }

// Select returns the highest scoring candidate. ok is false when the list is
// empty or the best score is below the threshold. On equal scores the
// earlier candidate wins.
func (e *Engine) Select(scored []linker.ScoredCandidate) (linker.MatchResult, bool) {
	if len(scored) == 0 {
		return linker.MatchResult{}, false
	}
	best, runnerUp := -1, -1
	for i, c := range scored {
		switch {
		case best < 0 || c.Score > scored[best].Score:
			runnerUp = best
			best = i
		case runnerUp < 0 || c.Score > scored[runnerUp].Score:
			runnerUp = i
		}
	}
	winner := scored[best]
	if winner.Score < e.threshold {
		return linker.MatchResult{}, false
	}
	return linker.MatchResult{
		CanonicalID: winner.CanonicalID,
		Score:       Round(winner.Score),
		Ambiguous:   runnerUp >= 0 && scored[runnerUp].Score >= e.ambiguityThreshold,
	}, true
}

// Rank scores every candidate title against search and sorts best first.
func (e *Engine) Rank(search string, candidates []linker.ScoredCandidate) []linker.ScoredCandidate {
	out := make([]linker.ScoredCandidate, len(candidates))
	for i, c := range candidates {
		c.Score = Similarity(search, c.Title)
		out[i] = c
	}
	SortByScore(out)
	return out
}

// SortByScore orders candidates by descending score, keeping input order on ties.
func SortByScore(scored []linker.ScoredCandidate) {
	slices.SortStableFunc(scored, func(a, b linker.ScoredCandidate) int {
		return cmp.Compare(b.Score, a.Score)
	})
}

// Merge combines result lists keeping the best score per canonical id.
func Merge(lists ...[]linker.ScoredCandidate) []linker.ScoredCandidate {
	index := make(map[int]int)
	var out []linker.ScoredCandidate
	for _, list := range lists {
		for _, c := range list {
			if i, ok := index[c.CanonicalID]; ok {
				if c.Score > out[i].Score {
					out[i] = c
				}
				continue
			}
			index[c.CanonicalID] = len(out)
			out = append(out, c)
		}
	}
	SortByScore(out)
	return out
}

// Similarity returns a 0..1 score for two titles. Titles are compared both as
// normalized text and with their tokens sorted, and the higher score wins.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	lev := metrics.NewLevenshtein()
	direct := strutil.Similarity(na, nb, lev)
	sorted := strutil.Similarity(sortTokens(na), sortTokens(nb), lev)
	return math.Max(direct, sorted)
}

// Normalize lowercases s, replaces anything that is not a letter or digit
// with a space and collapses runs of spaces.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

// Round truncates a score to 10 decimal places.
func Round(score float64) float64 {
	return math.Round(score*1e10) / 1e10
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	slices.Sort(tokens)
	return strings.Join(tokens, " ")
}
