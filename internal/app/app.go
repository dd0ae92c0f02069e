// Package app wires the soul-audit pipeline: session issuance, submission
// matching, consent capture, resume, guardrailed chat and corpus reindex.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/creativcreature/euongelion-sub003/internal/util"
	"github.com/creativcreature/euongelion-sub003/pkg/ai"
	"github.com/creativcreature/euongelion-sub003/pkg/audit"
	"github.com/creativcreature/euongelion-sub003/pkg/auth"
	"github.com/creativcreature/euongelion-sub003/pkg/consent"
	"github.com/creativcreature/euongelion-sub003/pkg/corpus"
	"github.com/creativcreature/euongelion-sub003/pkg/domain"
	"github.com/creativcreature/euongelion-sub003/pkg/grounding"
	"github.com/creativcreature/euongelion-sub003/pkg/guardrail"
	"github.com/creativcreature/euongelion-sub003/pkg/session"
	"github.com/creativcreature/euongelion-sub003/pkg/store"
)

const defaultGroundingLimit = 3

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL       string
	Store             store.Store
	Corpus            *corpus.Corpus
	Generator         ai.TextGenerator
	ConsentSecret     string
	SessionSecret     string
	AdminPasswordHash string
	GenerationTimeout time.Duration
}

// App is the core application service.
type App struct {
	store     store.Store
	corpus    *corpus.Corpus
	builder   *audit.Builder
	retriever *grounding.Retriever
	consent   *consent.Service
	sessions  *session.Store
	enforcer  *guardrail.Enforcer
	generator ai.TextGenerator
	adminHash string
}

// New constructs the application. When cfg.Store is nil a Postgres store is
// opened from DatabaseURL, falling back to in-memory storage with no DSN.
func New(cfg Config) (*App, error) {
	if cfg.Corpus == nil {
		return nil, fmt.Errorf("corpus required")
	}
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			dataStore = store.NewMemoryStore()
		} else {
			var err error
			dataStore, err = store.NewGormStore(cfg.DatabaseURL)
			if err != nil {
				return nil, fmt.Errorf("init postgres store: %w", err)
			}
		}
	}
	consentSvc, err := consent.NewService(cfg.ConsentSecret, 0)
	if err != nil {
		return nil, fmt.Errorf("init consent service: %w", err)
	}
	sessions, err := session.NewStore(cfg.SessionSecret, 0)
	if err != nil {
		return nil, fmt.Errorf("init session store: %w", err)
	}
	return &App{
		store:     dataStore,
		corpus:    cfg.Corpus,
		builder:   audit.NewBuilder(cfg.Corpus, cfg.Generator, cfg.GenerationTimeout),
		retriever: grounding.New(cfg.Corpus),
		consent:   consentSvc,
		sessions:  sessions,
		enforcer:  guardrail.NewEnforcer(cfg.Corpus),
		generator: cfg.Generator,
		adminHash: cfg.AdminPasswordHash,
	}, nil
}

// EnsureSession verifies the presented session token, minting a fresh
// session when the token is absent or unverifiable. It returns the token to
// use, the session ID, and whether a new session was created.
func (a *App) EnsureSession(token string) (string, string, bool, error) {
	token = strings.TrimSpace(token)
	if token != "" {
		if sessionID, err := a.sessions.SessionID(token); err == nil {
			return token, sessionID, false, nil
		}
	}
	newToken, sessionID, err := a.sessions.NewSession()
	if err != nil {
		return "", "", false, fmt.Errorf("mint session: %w", err)
	}
	return newToken, sessionID, true, nil
}

// SubmitParams carries one audit submission.
type SubmitParams struct {
	SessionToken string
	UserResponse string
}

// SubmitResult is the outcome of one audit submission.
type SubmitResult struct {
	Run       domain.AuditRun
	Crisis    domain.CrisisRequirement
	Grounding []domain.GroundingHit
}

// Submit sanitizes the response, builds the five-option set, retrieves
// grounding excerpts and persists the run.
func (a *App) Submit(ctx context.Context, params SubmitParams) (SubmitResult, error) {
	sessionID, err := a.sessions.SessionID(params.SessionToken)
	if err != nil {
		return SubmitResult{}, ErrSessionInvalid
	}
	sanitized := audit.SanitizeInput(params.UserResponse)
	if sanitized == "" {
		return SubmitResult{}, fmt.Errorf("user response required")
	}
	crisisDetected := audit.DetectCrisis(sanitized)
	options := a.builder.BuildAuditOptions(ctx, sanitized)

	scriptureRef := ""
	if len(options) > 0 && options[0].Preview != nil {
		scriptureRef = options[0].Preview.Verse
	}
	hits := a.retriever.Retrieve(grounding.Query{
		UserResponse:       sanitized,
		ScriptureReference: scriptureRef,
		Limit:              defaultGroundingLimit,
	})

	now := time.Now().UTC()
	run := domain.AuditRun{
		ID:           util.NewID(),
		SessionID:    sessionID,
		UserResponse: sanitized,
		Options:      options,
		Status:       domain.RunStatusOpen,
		CrisisFlag:   crisisDetected,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveRun(run); err != nil {
		return SubmitResult{}, fmt.Errorf("save run: %w", err)
	}
	return SubmitResult{
		Run:       run,
		Crisis:    audit.CrisisRequirement(crisisDetected),
		Grounding: hits,
	}, nil
}

// ConsentParams carries one consent capture.
type ConsentParams struct {
	SessionToken       string
	RunID              string
	EssentialAccepted  bool
	AnalyticsOptIn     bool
	CrisisAcknowledged bool
}

// Consent records a consent event for a run and issues the signed token.
// Crisis-flagged runs refuse consent without the acknowledgement bit.
func (a *App) Consent(params ConsentParams) (string, error) {
	sessionID, err := a.sessions.SessionID(params.SessionToken)
	if err != nil {
		return "", ErrSessionInvalid
	}
	run, ok, err := a.store.GetRun(params.RunID)
	if err != nil {
		return "", fmt.Errorf("load run: %w", err)
	}
	if !ok {
		return "", ErrRunNotFound
	}
	if run.SessionID != sessionID {
		return "", ErrRunForbidden
	}
	if !params.EssentialAccepted {
		return "", fmt.Errorf("essential consent is required")
	}
	if run.CrisisFlag && !params.CrisisAcknowledged {
		return "", ErrCrisisAckRequired
	}
	token, err := a.consent.Create(consent.CreateParams{
		AuditRunID:         run.ID,
		EssentialAccepted:  params.EssentialAccepted,
		AnalyticsOptIn:     params.AnalyticsOptIn,
		CrisisAcknowledged: params.CrisisAcknowledged,
		SessionToken:       params.SessionToken,
	})
	if err != nil {
		return "", fmt.Errorf("issue consent token: %w", err)
	}
	if err := a.store.AppendConsentEvent(domain.ConsentEvent{
		ID:                 util.NewID(),
		RunID:              run.ID,
		EssentialAccepted:  params.EssentialAccepted,
		AnalyticsOptIn:     params.AnalyticsOptIn,
		CrisisAcknowledged: params.CrisisAcknowledged,
		SessionBound:       true,
		CreatedAt:          time.Now().UTC(),
	}); err != nil {
		return "", fmt.Errorf("record consent event: %w", err)
	}
	return token, nil
}

// ResumeParams carries one resume attempt.
type ResumeParams struct {
	SessionToken string
	RunID        string
	ConsentToken string
}

// Resume returns a previously created run when the consent token verifies.
// Tokens minted under another session are accepted with reduced trust, but
// never for crisis-flagged runs.
func (a *App) Resume(params ResumeParams) (domain.AuditRun, error) {
	if _, err := a.sessions.SessionID(params.SessionToken); err != nil {
		return domain.AuditRun{}, ErrSessionInvalid
	}
	claim := a.consent.Verify(consent.VerifyParams{
		Token:                params.ConsentToken,
		ExpectedRunID:        params.RunID,
		SessionToken:         params.SessionToken,
		AllowSessionMismatch: true,
	})
	if claim == nil {
		return domain.AuditRun{}, ErrConsentInvalid
	}
	run, ok, err := a.store.GetRun(params.RunID)
	if err != nil {
		return domain.AuditRun{}, fmt.Errorf("load run: %w", err)
	}
	if !ok {
		return domain.AuditRun{}, ErrRunNotFound
	}
	if run.CrisisFlag && (!claim.CrisisAcknowledged || !claim.SessionBound) {
		return domain.AuditRun{}, ErrCrisisAckRequired
	}
	return run, nil
}

// SelectParams carries one option selection.
type SelectParams struct {
	SessionToken string
	RunID        string
	OptionID     string
}

// SelectOption marks one of the run's five options as chosen.
func (a *App) SelectOption(params SelectParams) (domain.AuditRun, error) {
	sessionID, err := a.sessions.SessionID(params.SessionToken)
	if err != nil {
		return domain.AuditRun{}, ErrSessionInvalid
	}
	run, ok, err := a.store.GetRun(params.RunID)
	if err != nil {
		return domain.AuditRun{}, fmt.Errorf("load run: %w", err)
	}
	if !ok {
		return domain.AuditRun{}, ErrRunNotFound
	}
	if run.SessionID != sessionID {
		return domain.AuditRun{}, ErrRunForbidden
	}
	optionID := strings.TrimSpace(params.OptionID)
	found := false
	for _, option := range run.Options {
		if option.ID == optionID {
			found = true
			break
		}
	}
	if !found {
		return domain.AuditRun{}, ErrOptionNotFound
	}
	if err := a.store.SetRunSelection(run.ID, optionID); err != nil {
		return domain.AuditRun{}, fmt.Errorf("save selection: %w", err)
	}
	run.SelectedID = optionID
	run.Status = domain.RunStatusSelected
	run.UpdatedAt = time.Now().UTC()
	return run, nil
}

// ChatResult is one accepted chat reply with its scope contract.
type ChatResult struct {
	Reply     string                   `json:"reply"`
	Citations []domain.Citation        `json:"citations,omitempty"`
	Metadata  domain.GuardrailMetadata `json:"metadata"`
	Degraded  bool                     `json:"degraded,omitempty"`
}

// Chat validates the request against the guardrail and, when accepted,
// generates a reply grounded in the resolved devotional. The decision is
// returned in both cases; callers must check Allowed before using the result.
func (a *App) Chat(ctx context.Context, req domain.ChatRequest) (ChatResult, guardrail.Decision) {
	decision := a.enforcer.Validate(req)
	if !decision.Allowed {
		return ChatResult{}, decision
	}
	candidate := decision.Context
	lastMessage := req.Messages[len(req.Messages)-1].Content
	hits := a.retriever.Retrieve(grounding.Query{
		UserResponse:       audit.SanitizeInput(lastMessage),
		ScriptureReference: candidate.ScriptureReference,
		Limit:              defaultGroundingLimit,
	})

	reply, degraded := a.generateReply(ctx, req, candidate, hits)
	return ChatResult{
		Reply:     reply,
		Citations: guardrail.ExtractCitations(reply),
		Metadata:  decision.Metadata,
		Degraded:  degraded,
	}, decision
}

const chatSystemPrompt = "You are a devotional companion for a Christian reading app. " +
	"Answer only from the devotional day and the excerpts provided. " +
	"Never draw on outside sources or current events. " +
	"Cite scripture with book and chapter:verse when you reference it."

func (a *App) generateReply(ctx context.Context, req domain.ChatRequest, candidate domain.CuratedCandidate, hits []domain.GroundingHit) (string, bool) {
	if a.generator == nil {
		return fallbackReply(candidate, hits), true
	}
	userPrompt := buildChatPrompt(req, candidate, hits)
	reply, err := a.generator.GenerateText(ctx, chatSystemPrompt, userPrompt)
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			util.LoggerFromContext(ctx).Warn("chat generation failed, serving fallback", "err", err)
		}
		return fallbackReply(candidate, hits), true
	}
	return strings.TrimSpace(reply), false
}

func buildChatPrompt(req domain.ChatRequest, candidate domain.CuratedCandidate, hits []domain.GroundingHit) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Devotional: %s, day %d (%s)\n", candidate.SeriesTitle, candidate.DayNumber, candidate.DayTitle)
	fmt.Fprintf(&sb, "Scripture: %s %s\n", candidate.ScriptureReference, candidate.ScriptureText)
	fmt.Fprintf(&sb, "Teaching: %s\n", candidate.TeachingText)
	if highlighted := strings.TrimSpace(req.HighlightedText); highlighted != "" {
		fmt.Fprintf(&sb, "The reader highlighted: %q\n", highlighted)
	}
	if len(hits) > 0 {
		sb.WriteString("Supporting excerpts:\n")
		for i, hit := range hits {
			fmt.Fprintf(&sb, "[%d] (%s) %s\n", i+1, hit.Source, hit.Excerpt)
		}
	}
	sb.WriteString("\nConversation:\n")
	for _, msg := range req.Messages {
		fmt.Fprintf(&sb, "%s: %s\n", msg.Role, msg.Content)
	}
	return sb.String()
}

func fallbackReply(candidate domain.CuratedCandidate, hits []domain.GroundingHit) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Today's reading rests on %s: %s ", candidate.ScriptureReference, candidate.ScriptureText)
	fmt.Fprintf(&sb, "From the teaching: %s", candidate.TeachingText)
	if len(hits) > 0 {
		fmt.Fprintf(&sb, " A companion volume adds: %s", hits[0].Excerpt)
	}
	return sb.String()
}

// Reindex rebuilds the corpus after verifying admin credentials.
func (a *App) Reindex(ctx context.Context, password string) error {
	if a.adminHash == "" {
		return ErrAdminUnauthorized
	}
	if !auth.CheckPassword(password, a.adminHash) {
		return ErrAdminUnauthorized
	}
	return a.corpus.Reindex(ctx)
}

// CorpusEmpty reports whether the corpus currently has no candidates.
func (a *App) CorpusEmpty() bool {
	return a.corpus.Empty()
}
