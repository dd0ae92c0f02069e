// Package rank scores curated devotional candidates against free text.
//
// Scoring is deliberately lexical: lowercase token overlap between the query
// and each candidate's precomputed search text, normalized by candidate
// length so long entries do not dominate. Ties keep corpus order, so results
// are stable across runs with identical input.
package rank

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/creativcreature/euongelion-sub003/pkg/domain"
)

// Scored pairs a candidate with its lexical score.
type Scored struct {
	Candidate domain.CuratedCandidate
	Score     float64
	Matches   []string
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9\s-]`)

type semanticHint struct {
	trigger *regexp.Regexp
	inject  string
}

var semanticHints = []semanticHint{
	{regexp.MustCompile(`\btoo much on my plate\b`), "busy overwhelmed exhausted"},
	{regexp.MustCompile(`\boverloaded\b|\boverwhelm(ed|ing)?\b`), "busy anxiety"},
	{regexp.MustCompile(`\bburn(ed|out)?\b`), "exhausted rest peace"},
	{regexp.MustCompile(`\banxious|anxiety|panic|stress(ed)?\b`), "peace control worry"},
	{regexp.MustCompile(`\blonely|alone|isolated\b`), "community relationships"},
	{regexp.MustCompile(`\bconfused|uncertain|misinformation|truth\b`), "truth discern"},
	{regexp.MustCompile(`\bguilty|shame|sin\b`), "grace mercy forgiveness"},
	{regexp.MustCompile(`\bdoubt|skeptic|skeptical\b`), "belief trust gospel"},
}

// ExpandSemanticHints appends theme keywords for common phrasings so that a
// submission like "too much on my plate" still reaches the "busy" series.
func ExpandSemanticHints(input string) string {
	lower := strings.ToLower(input)
	var sb strings.Builder
	sb.WriteString(lower)
	for _, hint := range semanticHints {
		if hint.trigger.MatchString(lower) {
			sb.WriteString(" ")
			sb.WriteString(hint.inject)
		}
	}
	return sb.String()
}

// Keywords extracts up to 20 distinct lowercase query tokens of length >= 4.
func Keywords(input string) []string {
	cleaned := nonAlnum.ReplaceAllString(strings.ToLower(input), " ")
	seen := make(map[string]struct{})
	out := make([]string, 0, 20)
	for _, token := range strings.Fields(cleaned) {
		if len(token) < 4 {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
		if len(out) >= 20 {
			break
		}
	}
	return out
}

// Rank scores every candidate against the query and returns them ordered by
// descending score. Empty or very short queries rank everything near zero
// without error; callers treat that as the fallback path.
func Rank(query string, candidates []domain.CuratedCandidate) []Scored {
	keywords := Keywords(ExpandSemanticHints(query))
	scored := make([]Scored, 0, len(candidates))
	for _, candidate := range candidates {
		matches := matchKeywords(candidate.SearchText, keywords)
		score := 0.0
		if len(matches) > 0 {
			// Normalize by candidate length so verbose entries do not win on bulk.
			length := float64(len(strings.Fields(candidate.SearchText)))
			if length < 1 {
				length = 1
			}
			score = float64(len(matches)) / math.Sqrt(length)
		}
		scored = append(scored, Scored{
			Candidate: candidate,
			Score:     score,
			Matches:   matches,
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

func matchKeywords(searchText string, keywords []string) []string {
	if searchText == "" || len(keywords) == 0 {
		return nil
	}
	var matches []string
	for _, keyword := range keywords {
		if strings.Contains(searchText, keyword) {
			matches = append(matches, keyword)
		}
	}
	return matches
}
