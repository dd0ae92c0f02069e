package domain

import "time"

// AuditOptionKind distinguishes how an audit option was produced.
type AuditOptionKind string

const (
	KindAIPrimary     AuditOptionKind = "ai_primary"
	KindCuratedPrefab AuditOptionKind = "curated_prefab"
)

// Fixed option split for one audit response: 3 AI-primary, 2 curated prefab.
const (
	AIPrimaryCount     = 3
	CuratedPrefabCount = 2
	TotalOptionCount   = AIPrimaryCount + CuratedPrefabCount
)

// CuratedCandidate is one devotional day drawn from the static corpus.
// Candidates are built once at corpus load and never mutated.
type CuratedCandidate struct {
	Key                string `json:"key"`
	SeriesSlug         string `json:"seriesSlug"`
	SeriesTitle        string `json:"seriesTitle"`
	SourcePath         string `json:"sourcePath"`
	DayNumber          int    `json:"dayNumber"`
	DayTitle           string `json:"dayTitle"`
	ScriptureReference string `json:"scriptureReference"`
	ScriptureText      string `json:"scriptureText"`
	TeachingText       string `json:"teachingText"`
	ReflectionPrompt   string `json:"reflectionPrompt"`
	PrayerText         string `json:"prayerText"`
	TakeawayText       string `json:"takeawayText"`
	SearchText         string `json:"-"`
}

// OptionPreview is the scripture preview attached to an audit option.
type OptionPreview struct {
	Verse     string `json:"verse"`
	Paragraph string `json:"paragraph"`
}

// AuditOption is one of the five choices surfaced after a submission.
type AuditOption struct {
	ID           string          `json:"id"`
	Kind         AuditOptionKind `json:"kind"`
	Rank         int             `json:"rank"`
	SeriesSlug   string          `json:"slug,omitempty"`
	CandidateKey string          `json:"candidateKey,omitempty"`
	Title        string          `json:"title"`
	Question     string          `json:"question"`
	Preview      *OptionPreview  `json:"preview,omitempty"`
	Confidence   float64         `json:"confidence"`
	Degraded     bool            `json:"degraded,omitempty"`
}

// GroundingHit is one retrieved excerpt supporting a grounded generation.
type GroundingHit struct {
	Source  string  `json:"source"`
	Excerpt string  `json:"excerpt"`
	Score   float64 `json:"-"`
}

// ConsentClaim is the verified content of a consent token.
type ConsentClaim struct {
	AuditRunID         string    `json:"auditRunId"`
	EssentialAccepted  bool      `json:"essentialAccepted"`
	AnalyticsOptIn     bool      `json:"analyticsOptIn"`
	CrisisAcknowledged bool      `json:"crisisAcknowledged"`
	IssuedAt           time.Time `json:"issuedAt"`
	SessionBound       bool      `json:"sessionBound"`
}

// CrisisResource is one crisis support contact shown with the ack prompt.
type CrisisResource struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

// CrisisRequirement reports whether a submission needs crisis acknowledgment.
type CrisisRequirement struct {
	Required     bool             `json:"required"`
	Acknowledged bool             `json:"acknowledged"`
	Resources    []CrisisResource `json:"resources,omitempty"`
	Prompt       string           `json:"prompt,omitempty"`
}

// ChatMessage is one turn of a guardrailed conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest carries the validation inputs for one chat call.
type ChatRequest struct {
	DevotionalSlug      string        `json:"devotionalSlug,omitempty"`
	HighlightedText     string        `json:"highlightedText,omitempty"`
	OpenWebMode         bool          `json:"openWebMode,omitempty"`
	OpenWebAcknowledged bool          `json:"openWebAcknowledged,omitempty"`
	Messages            []ChatMessage `json:"messages"`
}

// Citation is one scripture reference extracted from a generated reply.
type Citation struct {
	ID     int    `json:"id"`
	Source string `json:"source"`
}

// GuardrailScopeLocal is the only scope accepted replies may carry.
const GuardrailScopeLocal = "local-corpus-only"

// GuardrailMetadata is returned alongside every accepted chat reply.
type GuardrailMetadata struct {
	Scope                string `json:"scope"`
	InternetSearch       bool   `json:"internetSearch"`
	HasHighlightedText   bool   `json:"hasHighlightedText"`
	HasDevotionalContext bool   `json:"hasDevotionalContext"`
}

// RunStatus tracks the lifecycle of a persisted audit run.
type RunStatus string

const (
	RunStatusOpen     RunStatus = "open"
	RunStatusSelected RunStatus = "selected"
	RunStatusArchived RunStatus = "archived"
)

// AuditRun is one user-initiated matching session.
type AuditRun struct {
	ID           string        `json:"id"`
	SessionID    string        `json:"sessionId"`
	UserResponse string        `json:"userResponse"`
	Options      []AuditOption `json:"options"`
	SelectedID   string        `json:"selectedId,omitempty"`
	Status       RunStatus     `json:"status"`
	CrisisFlag   bool          `json:"crisisFlag"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// ConsentEvent records one consent capture for an audit run.
type ConsentEvent struct {
	ID                 string    `json:"id"`
	RunID              string    `json:"runId"`
	EssentialAccepted  bool      `json:"essentialAccepted"`
	AnalyticsOptIn     bool      `json:"analyticsOptIn"`
	CrisisAcknowledged bool      `json:"crisisAcknowledged"`
	SessionBound       bool      `json:"sessionBound"`
	CreatedAt          time.Time `json:"createdAt"`
}
