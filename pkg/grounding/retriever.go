// Package grounding retrieves reference-volume excerpts that anchor generated
// devotional copy in known content. A retrieval call never returns an empty
// set: weak lexical overlap degrades to a deterministic fallback hit keyed by
// the scripture reference.
package grounding

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/creativcreature/euongelion-sub003/pkg/corpus"
	"github.com/creativcreature/euongelion-sub003/pkg/domain"
)

const (
	defaultLimit    = 3
	maxKeywords     = 18
	maxExcerptChars = 280
	// fallbackSource labels the synthesized hit used when the reference
	// corpus itself is empty.
	fallbackSource = "fallback"
)

var stopWords = map[string]struct{}{
	"about": {}, "after": {}, "again": {}, "against": {}, "because": {},
	"before": {}, "being": {}, "between": {}, "could": {}, "doing": {},
	"every": {}, "first": {}, "from": {}, "have": {}, "just": {},
	"more": {}, "should": {}, "their": {}, "there": {}, "these": {},
	"they": {}, "this": {}, "through": {}, "what": {}, "when": {},
	"where": {}, "with": {}, "would": {}, "your": {},
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9\s]`)

// Query identifies one grounding retrieval.
type Query struct {
	UserResponse       string
	ScriptureReference string
	Limit              int
}

// Retriever ranks the reference-volume corpus for grounding hits.
type Retriever struct {
	corpus *corpus.Corpus
}

// New builds a retriever over the shared corpus.
func New(c *corpus.Corpus) *Retriever {
	return &Retriever{corpus: c}
}

// Retrieve returns the top hits for the query, best first. For limit >= 1 the
// result always holds at least one hit with a non-empty excerpt.
func (r *Retriever) Retrieve(q Query) []domain.GroundingHit {
	limit := q.Limit
	if limit < 1 {
		limit = defaultLimit
	}
	lines := r.corpus.Snapshot().Reference

	keywords := keywordsFromInput(q.UserResponse + " " + q.ScriptureReference)
	if len(keywords) == 0 {
		keywords = keywordsFromInput(q.ScriptureReference)
	}
	scriptureTokens := tokenizeReference(q.ScriptureReference)

	type scoredLine struct {
		line          corpus.ReferenceLine
		score         int
		keywordHits   int
		scriptureHits int
		deterministic int
	}
	scored := make([]scoredLine, 0, len(lines))
	for _, line := range lines {
		keywordHits := countContained(line.Normalized, keywords)
		scriptureHits := countContained(line.Normalized, scriptureTokens)
		if len(keywords) > 0 {
			if keywordHits == 0 && scriptureHits == 0 {
				continue
			}
		} else if scriptureHits == 0 {
			continue
		}
		scored = append(scored, scoredLine{
			line:          line,
			score:         line.Priority*4 + keywordHits*5 + scriptureHits*3,
			keywordHits:   keywordHits,
			scriptureHits: scriptureHits,
			deterministic: charSum(line.Source + "|" + line.Text),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].deterministic < scored[j].deterministic
	})

	hits := make([]domain.GroundingHit, 0, limit)
	seen := make(map[string]struct{})
	for _, entry := range scored {
		key := entry.line.Source + "|" + entry.line.Normalized
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		hits = append(hits, domain.GroundingHit{
			Source:  entry.line.Source,
			Excerpt: clampExcerpt(entry.line.Text),
			Score:   float64(entry.score),
		})
		if len(hits) >= limit {
			break
		}
	}
	if len(hits) > 0 {
		return hits
	}
	return []domain.GroundingHit{fallbackHit(q.ScriptureReference, lines)}
}

// fallbackHit prefers a commentary line, then any corpus line, then a
// synthesized excerpt keyed by the scripture reference so the invariant
// "at least one non-empty hit" holds even with no corpus at all.
func fallbackHit(scriptureReference string, lines []corpus.ReferenceLine) domain.GroundingHit {
	for _, line := range lines {
		if strings.Contains(line.Source, "commentaries/") {
			return domain.GroundingHit{Source: line.Source, Excerpt: clampExcerpt(line.Text)}
		}
	}
	if len(lines) > 0 {
		return domain.GroundingHit{Source: lines[0].Source, Excerpt: clampExcerpt(lines[0].Text)}
	}
	reference := strings.TrimSpace(scriptureReference)
	if reference == "" {
		reference = "the day's passage"
	}
	return domain.GroundingHit{
		Source:  fallbackSource,
		Excerpt: "Sit with " + reference + " slowly and let the text name what you are carrying before you respond.",
	}
}

func keywordsFromInput(input string) []string {
	cleaned := nonAlnum.ReplaceAllString(strings.ToLower(input), " ")
	seen := make(map[string]struct{})
	out := make([]string, 0, maxKeywords)
	for _, token := range strings.Fields(cleaned) {
		if len(token) < 3 {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
		if len(out) >= maxKeywords {
			break
		}
	}
	return out
}

// tokenizeReference keeps up to five short tokens from a scripture reference
// ("John 14:27" -> "john", "14", "27").
func tokenizeReference(reference string) []string {
	cleaned := nonAlnum.ReplaceAllString(strings.ToLower(reference), " ")
	out := make([]string, 0, 5)
	for _, token := range strings.Fields(cleaned) {
		if len(token) < 2 {
			continue
		}
		out = append(out, token)
		if len(out) >= 5 {
			break
		}
	}
	return out
}

func countContained(line string, tokens []string) int {
	hits := 0
	for _, token := range tokens {
		if strings.Contains(line, token) {
			hits++
		}
	}
	return hits
}

func charSum(s string) int {
	sum := 0
	for _, r := range s {
		sum += int(r)
	}
	return sum
}

// clampExcerpt caps excerpt length on a rune boundary so a multibyte
// character at the cut never leaves invalid UTF-8 in the hit.
func clampExcerpt(text string) string {
	if len(text) <= maxExcerptChars {
		return text
	}
	cut := maxExcerptChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
