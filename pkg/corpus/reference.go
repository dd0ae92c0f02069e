package corpus

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// referencePrefix is where reference-volume documents live under the corpus root.
const referencePrefix = "reference/"

// Limits that keep the in-memory reference corpus small; this is a curated
// excerpt pool, not a search index.
const (
	maxLinesPerFile = 220
	maxCorpusLines  = 24000
)

// ReferenceLine is one usable excerpt from the reference-volume corpus.
type ReferenceLine struct {
	Source     string
	Priority   int
	Text       string
	Normalized string
}

var (
	referenceExt = regexp.MustCompile(`(?i)\.(md|markdown|txt|json)$`)
	alphaChar    = regexp.MustCompile(`[a-zA-Z]`)
	spaceRun     = regexp.MustCompile(`\s+`)
)

// loadReference builds the reference excerpt pool from every reference
// document reachable from the source. Unreadable files are skipped.
func loadReference(ctx context.Context, source Source, paths []string) ([]ReferenceLine, error) {
	var docPaths []string
	for _, path := range paths {
		if strings.HasPrefix(path, referencePrefix) && referenceExt.MatchString(path) {
			docPaths = append(docPaths, path)
		}
	}
	sort.Strings(docPaths)

	corpus := make([]ReferenceLine, 0, 256)
	for _, path := range docPaths {
		if len(corpus) >= maxCorpusLines {
			break
		}
		data, err := source.Read(ctx, path)
		if err != nil {
			continue
		}
		priority := sourcePriority(path)
		accepted := 0
		for _, rawLine := range strings.Split(string(data), "\n") {
			if accepted >= maxLinesPerFile || len(corpus) >= maxCorpusLines {
				break
			}
			line := spaceRun.ReplaceAllString(rawLine, " ")
			line = strings.TrimSpace(line)
			if !lineLooksUsable(line) {
				continue
			}
			corpus = append(corpus, ReferenceLine{
				Source:     path,
				Priority:   priority,
				Text:       line,
				Normalized: strings.ToLower(line),
			})
			accepted++
		}
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("load reference corpus: %w", ctx.Err())
	}
	return corpus, nil
}

// lineLooksUsable filters for prose excerpts worth citing: long enough to
// carry meaning, short enough to show, and mostly alphabetic.
func lineLooksUsable(line string) bool {
	if len(line) < 48 || len(line) > 420 {
		return false
	}
	if len(strings.Fields(line)) < 7 {
		return false
	}
	alpha := len(alphaChar.FindAllString(line, -1))
	return alpha >= len(line)*45/100
}

// sourcePriority biases retrieval toward commentaries over raw text dumps.
func sourcePriority(path string) int {
	switch {
	case strings.Contains(path, "/commentaries/") || strings.HasPrefix(path, referencePrefix+"commentaries/"):
		if strings.HasSuffix(strings.ToLower(path), ".txt") {
			return 5
		}
		return 3
	case strings.Contains(path, "bibles/"), strings.Contains(path, "lexicons/"), strings.Contains(path, "dictionaries/"):
		return 2
	default:
		return 1
	}
}
