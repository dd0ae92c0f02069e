package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/creativcreature/euongelion-sub003/pkg/domain"
)

// seriesPrefix is where devotional series documents live under the corpus root.
const seriesPrefix = "series/"

// SeriesMeta is the per-series metadata surfaced on audit options.
type SeriesMeta struct {
	Slug     string
	Title    string
	Question string
	Keywords []string
}

// seriesDocument is the on-disk shape of one devotional series.
// Field names mirror the content repository's JSON exports.
type seriesDocument struct {
	Slug     string        `json:"slug"`
	Title    string        `json:"title"`
	Question string        `json:"question"`
	Keywords []string      `json:"keywords"`
	Days     []dayDocument `json:"days"`
}

type dayDocument struct {
	Day                int    `json:"day"`
	Title              string `json:"title"`
	ScriptureReference string `json:"scriptureReference"`
	ScriptureText      string `json:"scriptureText"`
	Teaching           string `json:"teaching"`
	ReflectionPrompt   string `json:"reflectionPrompt"`
	Prayer             string `json:"prayer"`
	Takeaway           string `json:"takeaway"`
}

// loadCatalog parses every series document reachable from the source.
// Malformed documents and incomplete day records are skipped, never fatal:
// downstream components treat an empty candidate list as a valid
// low-confidence state.
func loadCatalog(ctx context.Context, source Source, paths []string) ([]seriesEntry, error) {
	var docPaths []string
	for _, path := range paths {
		if strings.HasPrefix(path, seriesPrefix) && strings.HasSuffix(strings.ToLower(path), ".json") {
			docPaths = append(docPaths, path)
		}
	}
	sort.Strings(docPaths)

	entries := make([]seriesEntry, 0, len(docPaths))
	seen := make(map[string]struct{})
	for _, path := range docPaths {
		data, err := source.Read(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("read series document %q: %w", path, err)
		}
		var doc seriesDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			slog.Warn("skipping malformed series document", "path", path, "err", err)
			continue
		}
		doc.Slug = strings.TrimSpace(doc.Slug)
		if doc.Slug == "" || strings.TrimSpace(doc.Title) == "" {
			slog.Warn("skipping series document without slug/title", "path", path)
			continue
		}
		if _, dup := seen[doc.Slug]; dup {
			slog.Warn("skipping duplicate series slug", "path", path, "slug", doc.Slug)
			continue
		}
		seen[doc.Slug] = struct{}{}
		entries = append(entries, seriesEntry{doc: doc, sourcePath: path})
	}
	return entries, nil
}

type seriesEntry struct {
	doc        seriesDocument
	sourcePath string
}

// candidatesFromEntries flattens series documents into ranked-ready
// candidates. A day missing any core module fails closed at candidate level:
// it is dropped instead of padded with placeholder text.
func candidatesFromEntries(entries []seriesEntry) ([]CandidateList, []SeriesMeta) {
	lists := make([]CandidateList, 0, len(entries))
	metas := make([]SeriesMeta, 0, len(entries))
	for _, entry := range entries {
		doc := entry.doc
		meta := SeriesMeta{
			Slug:     doc.Slug,
			Title:    strings.TrimSpace(doc.Title),
			Question: strings.TrimSpace(doc.Question),
			Keywords: doc.Keywords,
		}
		list := CandidateList{Meta: meta}
		seenDays := make(map[int]struct{})
		for _, day := range doc.Days {
			if day.Day < 1 {
				continue
			}
			if _, dup := seenDays[day.Day]; dup {
				continue
			}
			candidate := candidateFromDay(doc, day, entry.sourcePath)
			if candidate == nil {
				continue
			}
			seenDays[day.Day] = struct{}{}
			list.Candidates = append(list.Candidates, *candidate)
		}
		sort.Slice(list.Candidates, func(i, j int) bool {
			return list.Candidates[i].DayNumber < list.Candidates[j].DayNumber
		})
		metas = append(metas, meta)
		lists = append(lists, list)
	}
	return lists, metas
}

func candidateFromDay(doc seriesDocument, day dayDocument, sourcePath string) *domain.CuratedCandidate {
	reference := strings.TrimSpace(day.ScriptureReference)
	scripture := strings.TrimSpace(day.ScriptureText)
	teaching := strings.TrimSpace(day.Teaching)
	reflection := strings.TrimSpace(day.ReflectionPrompt)
	prayer := strings.TrimSpace(day.Prayer)
	takeaway := strings.TrimSpace(day.Takeaway)
	title := strings.TrimSpace(day.Title)
	if title == "" {
		title = fmt.Sprintf("Day %d", day.Day)
	}
	if reference == "" || scripture == "" || teaching == "" || reflection == "" || prayer == "" || takeaway == "" {
		return nil
	}

	searchParts := []string{
		doc.Slug, doc.Title, title, reference, scripture,
		teaching, reflection, prayer, takeaway,
	}
	searchParts = append(searchParts, doc.Keywords...)

	return &domain.CuratedCandidate{
		Key:                fmt.Sprintf("%s:%d", doc.Slug, day.Day),
		SeriesSlug:         doc.Slug,
		SeriesTitle:        strings.TrimSpace(doc.Title),
		SourcePath:         sourcePath,
		DayNumber:          day.Day,
		DayTitle:           title,
		ScriptureReference: reference,
		ScriptureText:      scripture,
		TeachingText:       teaching,
		ReflectionPrompt:   reflection,
		PrayerText:         prayer,
		TakeawayText:       takeaway,
		SearchText:         strings.ToLower(strings.Join(searchParts, " ")),
	}
}
