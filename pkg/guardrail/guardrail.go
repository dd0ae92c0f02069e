// Package guardrail validates chat requests against the local-corpus
// contract before any generation runs, and extracts scripture citations
// from replies after it does.
package guardrail

import (
	"net/http"
	"strings"

	"github.com/creativcreature/euongelion-sub003/pkg/corpus"
	"github.com/creativcreature/euongelion-sub003/pkg/domain"
)

// CodeOpenWebAckRequired is returned when open-web mode is requested
// without the explicit acknowledgement flag.
const CodeOpenWebAckRequired = "OPEN_WEB_ACK_REQUIRED"

// Decision is the outcome of validating one chat request. When Allowed is
// false, Status, Code and Message describe the rejection; when true,
// Context holds the resolved devotional and Metadata the scope contract
// the reply must carry.
type Decision struct {
	Allowed  bool
	Status   int
	Code     string
	Message  string
	Context  domain.CuratedCandidate
	Metadata domain.GuardrailMetadata
}

// Enforcer runs the chat request state machine over the local corpus.
type Enforcer struct {
	corpus *corpus.Corpus
}

// NewEnforcer builds an enforcer over the given corpus.
func NewEnforcer(c *corpus.Corpus) *Enforcer {
	return &Enforcer{corpus: c}
}

// Validate walks the request through the guardrail states in order:
// message shape, devotional context presence, context resolution, then
// the open-web acknowledgement gate. The first failing state wins and
// later states are never evaluated.
func (e *Enforcer) Validate(req domain.ChatRequest) Decision {
	if len(req.Messages) == 0 {
		return reject(http.StatusBadRequest, "", "at least one chat message is required")
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != "user" || strings.TrimSpace(last.Content) == "" {
		return reject(http.StatusBadRequest, "", "last chat message must be a non-empty user turn")
	}

	slug := strings.TrimSpace(req.DevotionalSlug)
	if slug == "" {
		return reject(http.StatusBadRequest, "", "devotional context is required for chat")
	}

	candidate, ok := e.corpus.ResolveDevotional(slug)
	if !ok {
		if e.corpus.Empty() {
			return reject(http.StatusServiceUnavailable, "", "devotional corpus is unavailable")
		}
		return reject(http.StatusBadRequest, "", "requested devotional context is unavailable")
	}

	if req.OpenWebMode && !req.OpenWebAcknowledged {
		return reject(http.StatusBadRequest, CodeOpenWebAckRequired,
			"open web mode requires explicit acknowledgement before use")
	}

	return Decision{
		Allowed: true,
		Status:  http.StatusOK,
		Context: candidate,
		Metadata: domain.GuardrailMetadata{
			Scope:                domain.GuardrailScopeLocal,
			InternetSearch:       false,
			HasHighlightedText:   strings.TrimSpace(req.HighlightedText) != "",
			HasDevotionalContext: true,
		},
	}
}

func reject(status int, code, message string) Decision {
	return Decision{Status: status, Code: code, Message: message}
}
