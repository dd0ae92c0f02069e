// Package audit turns a free-text Soul Audit submission into exactly five
// devotional pathway options: three AI-primary and two curated prefab.
//
// "Degraded" only ever changes how an option was produced. Generation or
// corpus failure substitutes deterministic placeholders; the 3/2 split and
// the five-option count hold unconditionally.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/creativcreature/euongelion-sub003/pkg/ai"
	"github.com/creativcreature/euongelion-sub003/pkg/corpus"
	"github.com/creativcreature/euongelion-sub003/pkg/domain"
	"github.com/creativcreature/euongelion-sub003/pkg/rank"
)

const (
	defaultGenerationTimeout = 12 * time.Second
	maxPreviewParagraph      = 280
)

const optionSystemPrompt = `You draft devotional pathway options for a Christian reading app. ` +
	`Reply with a JSON array of exactly 3 objects, each with keys "title", "question", "verse", "paragraph". ` +
	`Each option must echo the reader's own words, name a real scripture reference in "verse", and keep "paragraph" under two sentences. ` +
	`Reply with JSON only, no prose.`

// Builder produces audit options from the corpus, the ranker, and an
// optional generation collaborator.
type Builder struct {
	corpus    *corpus.Corpus
	generator ai.TextGenerator
	timeout   time.Duration
}

// NewBuilder wires the option builder. generator may be nil; the builder then
// always takes the deterministic fallback path for AI slots.
func NewBuilder(c *corpus.Corpus, generator ai.TextGenerator, timeout time.Duration) *Builder {
	if timeout <= 0 {
		timeout = defaultGenerationTimeout
	}
	return &Builder{corpus: c, generator: generator, timeout: timeout}
}

// BuildAuditOptions returns exactly five options for the submission:
// three ai_primary followed by two curated_prefab.
func (b *Builder) BuildAuditOptions(ctx context.Context, userResponse string) []domain.AuditOption {
	input := SanitizeInput(userResponse)
	ranked := rank.Rank(input, b.corpus.Candidates())

	aiOptions := b.generatedOptions(ctx, input)
	usedSeries := make(map[string]struct{})
	if len(aiOptions) < domain.AIPrimaryCount {
		aiOptions = append(aiOptions, b.placeholderAIOptions(input, ranked, domain.AIPrimaryCount-len(aiOptions), usedSeries)...)
	}
	aiOptions = aiOptions[:domain.AIPrimaryCount]

	prefabs := b.prefabOptions(ranked, usedSeries)

	options := append(aiOptions, prefabs...)
	for i := range options {
		options[i].Rank = i + 1
		if options[i].ID == "" {
			options[i].ID = fmt.Sprintf("%s:%s:%d", options[i].Kind, optionSlugOrFallback(options[i]), i+1)
		}
	}
	return options
}

// generatedOptions asks the collaborator for drafts and keeps only those
// anchored to the reader's language with a complete scripture preview.
func (b *Builder) generatedOptions(ctx context.Context, input string) []domain.AuditOption {
	if b.generator == nil || input == "" {
		return nil
	}
	genCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	raw, err := b.generator.GenerateText(genCtx, optionSystemPrompt, "The reader shared:\n\n"+input)
	if err != nil {
		slog.Warn("option generation unavailable, using fallback", "err", err)
		return nil
	}
	drafts, err := parseOptionDrafts(raw)
	if err != nil {
		slog.Warn("option generation returned unusable drafts", "err", err)
		return nil
	}

	keywords := rank.Keywords(input)
	options := make([]domain.AuditOption, 0, domain.AIPrimaryCount)
	for i, draft := range drafts {
		if !draftUsable(draft, keywords) {
			continue
		}
		options = append(options, domain.AuditOption{
			Kind:     domain.KindAIPrimary,
			Title:    draft.Title,
			Question: draft.Question,
			Preview: &domain.OptionPreview{
				Verse:     draft.Verse,
				Paragraph: clampParagraph(draft.Paragraph),
			},
			Confidence: 0.75 - float64(i)*0.05,
		})
		if len(options) >= domain.AIPrimaryCount {
			break
		}
	}
	return options
}

type optionDraft struct {
	Title     string `json:"title"`
	Question  string `json:"question"`
	Verse     string `json:"verse"`
	Paragraph string `json:"paragraph"`
}

func parseOptionDrafts(raw string) ([]optionDraft, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	var drafts []optionDraft
	if err := json.Unmarshal([]byte(strings.TrimSpace(cleaned)), &drafts); err != nil {
		return nil, fmt.Errorf("parse option drafts: %w", err)
	}
	return drafts, nil
}

// draftUsable requires a full preview and lexical overlap with the
// submission so generated options stay anchored to user-supplied language.
func draftUsable(draft optionDraft, keywords []string) bool {
	if strings.TrimSpace(draft.Title) == "" || strings.TrimSpace(draft.Question) == "" {
		return false
	}
	if strings.TrimSpace(draft.Verse) == "" || strings.TrimSpace(draft.Paragraph) == "" {
		return false
	}
	if len(keywords) == 0 {
		return true
	}
	haystack := strings.ToLower(draft.Title + " " + draft.Question + " " + draft.Paragraph)
	for _, keyword := range keywords {
		if strings.Contains(haystack, keyword) {
			return true
		}
	}
	return false
}

// placeholderAIOptions fills missing AI slots from the top-ranked candidates,
// still tagged ai_primary, so the split survives total generation failure.
func (b *Builder) placeholderAIOptions(input string, ranked []rank.Scored, needed int, usedSeries map[string]struct{}) []domain.AuditOption {
	options := make([]domain.AuditOption, 0, needed)
	for _, entry := range ranked {
		if len(options) >= needed {
			break
		}
		candidate := entry.Candidate
		if _, used := usedSeries[candidate.SeriesSlug]; used {
			continue
		}
		usedSeries[candidate.SeriesSlug] = struct{}{}
		question := candidate.ReflectionPrompt
		if meta, ok := b.corpus.SeriesMetaFor(candidate.SeriesSlug); ok && meta.Question != "" {
			question = meta.Question
		}
		options = append(options, domain.AuditOption{
			Kind:         domain.KindAIPrimary,
			SeriesSlug:   candidate.SeriesSlug,
			CandidateKey: candidate.Key,
			Title:        candidate.DayTitle,
			Question:     question,
			Preview: &domain.OptionPreview{
				Verse:     candidate.ScriptureReference,
				Paragraph: clampParagraph(candidate.ScriptureText),
			},
			Confidence: 0.55,
			Degraded:   true,
		})
	}
	// Empty or exhausted corpus: synthesize deterministic placeholders so the
	// response shape never shrinks.
	for i := len(options); i < needed; i++ {
		options = append(options, syntheticOption(domain.KindAIPrimary, input, i))
	}
	return options
}

// prefabOptions picks the top two distinct series not already claimed by the
// AI slots, falling back to deterministic placeholders under corpus scarcity.
func (b *Builder) prefabOptions(ranked []rank.Scored, usedSeries map[string]struct{}) []domain.AuditOption {
	options := make([]domain.AuditOption, 0, domain.CuratedPrefabCount)
	seen := make(map[string]struct{})
	for _, entry := range ranked {
		if len(options) >= domain.CuratedPrefabCount {
			break
		}
		candidate := entry.Candidate
		if _, used := usedSeries[candidate.SeriesSlug]; used {
			continue
		}
		if _, dup := seen[candidate.SeriesSlug]; dup {
			continue
		}
		seen[candidate.SeriesSlug] = struct{}{}
		title := candidate.SeriesTitle
		question := candidate.ReflectionPrompt
		if meta, ok := b.corpus.SeriesMetaFor(candidate.SeriesSlug); ok {
			if meta.Title != "" {
				title = meta.Title
			}
			if meta.Question != "" {
				question = meta.Question
			}
		}
		options = append(options, domain.AuditOption{
			Kind:         domain.KindCuratedPrefab,
			SeriesSlug:   candidate.SeriesSlug,
			CandidateKey: candidate.Key,
			Title:        title,
			Question:     question,
			Preview: &domain.OptionPreview{
				Verse:     candidate.ScriptureReference,
				Paragraph: clampParagraph(candidate.ScriptureText),
			},
			Confidence: maxFloat(0.35, 0.75-float64(len(options))*0.1),
		})
	}
	for i := len(options); i < domain.CuratedPrefabCount; i++ {
		options = append(options, syntheticOption(domain.KindCuratedPrefab, "", i))
	}
	return options
}

// syntheticOption is the last-resort deterministic placeholder used when the
// corpus cannot supply a slot. Text depends only on kind and index.
func syntheticOption(kind domain.AuditOptionKind, input string, index int) domain.AuditOption {
	titles := []string{"Begin with Stillness", "Walk in Truth", "Anchored Hope"}
	questions := []string{
		"What is one honest thing you want to bring before God this week?",
		"Where do you most need steady ground right now?",
		"What would faithfulness look like in your next small step?",
	}
	verses := []string{"Psalm 46:10", "John 14:27", "Romans 15:13"}
	title := titles[index%len(titles)]
	if kind == domain.KindCuratedPrefab {
		title = "Guided Path: " + title
	}
	paragraph := "A steady starting place while your devotional library is being prepared."
	if snippet := clampParagraph(input); snippet != "" {
		paragraph = "A starting place shaped around what you shared: " + snippet
	}
	return domain.AuditOption{
		Kind:     kind,
		Title:    title,
		Question: questions[index%len(questions)],
		Preview: &domain.OptionPreview{
			Verse:     verses[index%len(verses)],
			Paragraph: paragraph,
		},
		Confidence: 0.45,
		Degraded:   true,
	}
}

func optionSlugOrFallback(option domain.AuditOption) string {
	if option.SeriesSlug != "" {
		return option.SeriesSlug
	}
	return "fallback"
}

func clampParagraph(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= maxPreviewParagraph {
		return text
	}
	return strings.TrimSpace(truncateRunes(text, maxPreviewParagraph-3)) + "..."
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
