package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/creativcreature/euongelion-sub003/pkg/corpus"
	"github.com/creativcreature/euongelion-sub003/pkg/domain"
)

type mapSource struct {
	docs map[string][]byte
}

func (s *mapSource) List(context.Context) ([]string, error) {
	paths := make([]string, 0, len(s.docs))
	for path := range s.docs {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *mapSource) Read(_ context.Context, path string) ([]byte, error) {
	return s.docs[path], nil
}

type fakeGenerator struct {
	reply string
	err   error
}

func (g *fakeGenerator) GenerateText(context.Context, string, string) (string, error) {
	return g.reply, g.err
}

func seriesDoc(t *testing.T, slug, title string, keywords ...string) []byte {
	t.Helper()
	doc := map[string]any{
		"slug":     slug,
		"title":    title,
		"question": "What is stirring under " + slug + "?",
		"keywords": keywords,
		"days": []map[string]any{
			{
				"day":                1,
				"title":              "Day One of " + title,
				"scriptureReference": "Psalm 46:10",
				"scriptureText":      "Be still, and know that I am God.",
				"teaching":           "Stillness is an act of trust in the middle of " + slug + ".",
				"reflectionPrompt":   "Where does " + slug + " press on you most?",
				"prayer":             "Meet me in this.",
				"takeaway":           "One small step.",
			},
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal series doc: %v", err)
	}
	return data
}

func loadedCorpus(t *testing.T, docs map[string][]byte) *corpus.Corpus {
	t.Helper()
	c := corpus.New(&mapSource{docs: docs})
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("load corpus: %v", err)
	}
	return c
}

func assertShape(t *testing.T, options []domain.AuditOption) {
	t.Helper()
	if len(options) != domain.TotalOptionCount {
		t.Fatalf("got %d options, want %d", len(options), domain.TotalOptionCount)
	}
	ids := make(map[string]struct{})
	for i, option := range options {
		wantKind := domain.KindAIPrimary
		if i >= domain.AIPrimaryCount {
			wantKind = domain.KindCuratedPrefab
		}
		if option.Kind != wantKind {
			t.Fatalf("option %d kind = %s, want %s", i, option.Kind, wantKind)
		}
		if option.Rank != i+1 {
			t.Fatalf("option %d rank = %d", i, option.Rank)
		}
		if option.ID == "" {
			t.Fatalf("option %d has empty id", i)
		}
		if _, dup := ids[option.ID]; dup {
			t.Fatalf("duplicate option id %s", option.ID)
		}
		ids[option.ID] = struct{}{}
		if option.Title == "" || option.Question == "" {
			t.Fatalf("option %d missing copy: %+v", i, option)
		}
		if option.Preview == nil || option.Preview.Verse == "" || option.Preview.Paragraph == "" {
			t.Fatalf("option %d missing preview", i)
		}
	}
}

func TestBuildAuditOptionsEmptyCorpusNilGenerator(t *testing.T) {
	b := NewBuilder(loadedCorpus(t, nil), nil, 0)
	options := b.BuildAuditOptions(context.Background(), "I feel restless and tired")
	assertShape(t, options)
	for i, option := range options {
		if !option.Degraded {
			t.Fatalf("option %d not degraded with empty corpus and no generator", i)
		}
	}
}

func TestBuildAuditOptionsFromCorpusFallback(t *testing.T) {
	c := loadedCorpus(t, map[string][]byte{
		"series/busy.json":      seriesDoc(t, "busy", "Margins", "busy", "overwhelmed", "exhausted"),
		"series/community.json": seriesDoc(t, "community", "Together", "community", "relationships", "isolated"),
		"series/money.json":     seriesDoc(t, "money", "Treasure", "money", "generosity"),
	})
	b := NewBuilder(c, nil, 0)
	options := b.BuildAuditOptions(context.Background(), "I feel overwhelmed, isolated, and far from everyone I love")
	assertShape(t, options)

	slugs := make(map[string]struct{})
	for _, option := range options[:domain.AIPrimaryCount] {
		if option.SeriesSlug == "" {
			continue
		}
		if _, dup := slugs[option.SeriesSlug]; dup {
			t.Fatalf("series %s reused across AI slots", option.SeriesSlug)
		}
		slugs[option.SeriesSlug] = struct{}{}
	}
	if _, ok := slugs["busy"]; !ok {
		t.Fatalf("overwhelmed input did not reach the busy series, slots = %v", slugs)
	}
	if _, ok := slugs["community"]; !ok {
		t.Fatalf("isolated input did not reach the community series, slots = %v", slugs)
	}
}

func TestBuildAuditOptionsWithGeneratedDrafts(t *testing.T) {
	c := loadedCorpus(t, map[string][]byte{
		"series/busy.json":  seriesDoc(t, "busy", "Margins", "busy"),
		"series/rest.json":  seriesDoc(t, "rest", "Sabbath", "rest"),
		"series/truth.json": seriesDoc(t, "truth", "Grounded", "truth"),
	})
	reply := "```json\n" + `[
		{"title":"Name the Overwhelmed Feeling","question":"What fuels the overwhelmed pace?","verse":"Matthew 11:28","paragraph":"You said you are overwhelmed; rest starts with honesty."},
		{"title":"Trade Hurry for Rest","question":"Where could rest actually fit?","verse":"Psalm 127:2","paragraph":"The overwhelmed heart needs granted sleep."},
		{"title":"One Honest Prayer","question":"What would you tell God first?","verse":"Philippians 4:6","paragraph":"Bring the overwhelmed list into prayer."}
	]` + "\n```"
	b := NewBuilder(c, &fakeGenerator{reply: reply}, 0)
	options := b.BuildAuditOptions(context.Background(), "I am so overwhelmed at work")
	assertShape(t, options)

	for i, option := range options[:domain.AIPrimaryCount] {
		if option.Degraded {
			t.Fatalf("generated option %d marked degraded", i)
		}
	}
	if options[0].Title != "Name the Overwhelmed Feeling" {
		t.Fatalf("first option title = %q", options[0].Title)
	}
	for _, option := range options[domain.AIPrimaryCount:] {
		if option.Kind != domain.KindCuratedPrefab {
			t.Fatalf("prefab slot has kind %s", option.Kind)
		}
		if option.Degraded {
			t.Fatalf("corpus-backed prefab marked degraded: %+v", option)
		}
	}
}

func TestBuildAuditOptionsGeneratorFailure(t *testing.T) {
	c := loadedCorpus(t, map[string][]byte{
		"series/rest.json": seriesDoc(t, "rest", "Sabbath", "rest"),
	})
	b := NewBuilder(c, &fakeGenerator{err: errors.New("upstream timeout")}, 0)
	options := b.BuildAuditOptions(context.Background(), "I need rest")
	assertShape(t, options)
}

func TestBuildAuditOptionsGeneratorGarbage(t *testing.T) {
	c := loadedCorpus(t, map[string][]byte{
		"series/rest.json": seriesDoc(t, "rest", "Sabbath", "rest"),
	})
	b := NewBuilder(c, &fakeGenerator{reply: "sorry, I cannot produce JSON today"}, 0)
	options := b.BuildAuditOptions(context.Background(), "I need rest")
	assertShape(t, options)
}

func TestBuildAuditOptionsRejectsUnanchoredDrafts(t *testing.T) {
	c := loadedCorpus(t, nil)
	reply := `[
		{"title":"Generic Title","question":"Generic question?","verse":"John 3:16","paragraph":"Nothing from the reader here."},
		{"title":"Another Generic","question":"Also generic?","verse":"Romans 8:1","paragraph":"Still nothing echoed."},
		{"title":"Third Generic","question":"Generic again?","verse":"Psalm 23:1","paragraph":"No echo at all."}
	]`
	b := NewBuilder(c, &fakeGenerator{reply: reply}, 0)
	options := b.BuildAuditOptions(context.Background(), "wrestling with forgiveness after betrayal")
	assertShape(t, options)
	for i, option := range options[:domain.AIPrimaryCount] {
		if !option.Degraded {
			t.Fatalf("unanchored draft %d accepted", i)
		}
	}
}

func TestParseOptionDraftsStripsFences(t *testing.T) {
	drafts, err := parseOptionDrafts("```json\n[{\"title\":\"T\",\"question\":\"Q\",\"verse\":\"V\",\"paragraph\":\"P\"}]\n```")
	if err != nil {
		t.Fatalf("parseOptionDrafts: %v", err)
	}
	if len(drafts) != 1 || drafts[0].Title != "T" {
		t.Fatalf("drafts = %+v", drafts)
	}
}

func TestClampParagraphCutsOnRuneBoundary(t *testing.T) {
	text := strings.Repeat("x", maxPreviewParagraph-4) + "é" + strings.Repeat("y", 20)
	got := clampParagraph(text)
	if len(got) > maxPreviewParagraph {
		t.Fatalf("len = %d, want <= %d", len(got), maxPreviewParagraph)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected ellipsis suffix, got %q", got)
	}
	if !utf8.ValidString(got) {
		t.Fatal("clamped paragraph is not valid UTF-8")
	}
}
