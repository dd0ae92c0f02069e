// Package server exposes the soul-audit HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/creativcreature/euongelion-sub003/internal/app"
	"github.com/creativcreature/euongelion-sub003/internal/util"
	"github.com/creativcreature/euongelion-sub003/pkg/corpus"
	"github.com/creativcreature/euongelion-sub003/pkg/domain"
)

// sessionHeader carries the opaque session token on every audit call.
const sessionHeader = "X-Audit-Session"

// Limiter bounds request rates per client key.
type Limiter interface {
	Allow(key string) bool
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App               *app.App
	Limiter           Limiter
	TrustProxyHeaders bool
}

// Server exposes HTTP endpoints for the soul-audit service.
type Server struct {
	app        *app.App
	limiter    Limiter
	trustProxy bool
	mux        *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:        cfg.App,
		limiter:    cfg.Limiter,
		trustProxy: cfg.TrustProxyHeaders,
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("soulaudit",
		util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/soul-audit/submit", s.handleSubmit)
	s.mux.HandleFunc("/soul-audit/consent", s.handleConsent)
	s.mux.HandleFunc("/soul-audit/resume", s.handleResume)
	s.mux.HandleFunc("/soul-audit/select", s.handleSelect)
	s.mux.HandleFunc("/chat", s.handleChat)
	s.mux.HandleFunc("/admin/reindex", s.handleReindex)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	if s.app.CorpusEmpty() {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

type submitRequest struct {
	UserResponse string `json:"userResponse"`
}

type submitResponse struct {
	RunID        string                   `json:"runId"`
	SessionToken string                   `json:"sessionToken,omitempty"`
	Options      []domain.AuditOption     `json:"options"`
	Crisis       domain.CrisisRequirement `json:"crisis"`
	Grounding    []domain.GroundingHit    `json:"grounding"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sessionToken, sessionID, created, err := s.app.EnsureSession(r.Header.Get(sessionHeader))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}
	// Keyed by session so one caller cannot spread submissions across IPs.
	// A freshly minted session has no history, so those fall back to the IP.
	limitKey := "submit:session:" + sessionID
	if created {
		limitKey = "submit:ip:" + util.ClientIP(r, s.trustProxy)
	}
	if s.limiter != nil && !s.limiter.Allow(limitKey) {
		writeError(w, http.StatusTooManyRequests, "too many submissions, slow down")
		return
	}
	result, err := s.app.Submit(r.Context(), app.SubmitParams{
		SessionToken: sessionToken,
		UserResponse: req.UserResponse,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	resp := submitResponse{
		RunID:     result.Run.ID,
		Options:   result.Run.Options,
		Crisis:    result.Crisis,
		Grounding: result.Grounding,
	}
	if created {
		resp.SessionToken = sessionToken
		w.Header().Set(sessionHeader, sessionToken)
	}
	writeJSON(w, http.StatusOK, resp)
}

type consentRequest struct {
	RunID              string `json:"runId"`
	EssentialAccepted  bool   `json:"essentialAccepted"`
	AnalyticsOptIn     bool   `json:"analyticsOptIn"`
	CrisisAcknowledged bool   `json:"crisisAcknowledged"`
}

func (s *Server) handleConsent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req consentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	token, err := s.app.Consent(app.ConsentParams{
		SessionToken:       r.Header.Get(sessionHeader),
		RunID:              req.RunID,
		EssentialAccepted:  req.EssentialAccepted,
		AnalyticsOptIn:     req.AnalyticsOptIn,
		CrisisAcknowledged: req.CrisisAcknowledged,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"consentToken": token})
}

type resumeRequest struct {
	RunID        string `json:"runId"`
	ConsentToken string `json:"consentToken"`
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req resumeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	run, err := s.app.Resume(app.ResumeParams{
		SessionToken: r.Header.Get(sessionHeader),
		RunID:        req.RunID,
		ConsentToken: req.ConsentToken,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type selectRequest struct {
	RunID    string `json:"runId"`
	OptionID string `json:"optionId"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req selectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	run, err := s.app.SelectOption(app.SelectParams{
		SessionToken: r.Header.Get(sessionHeader),
		RunID:        req.RunID,
		OptionID:     req.OptionID,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.limiter != nil && !s.limiter.Allow("chat:"+util.ClientIP(r, s.trustProxy)) {
		writeError(w, http.StatusTooManyRequests, "too many chat requests, slow down")
		return
	}
	var req domain.ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, decision := s.app.Chat(r.Context(), req)
	if !decision.Allowed {
		writeErrorCode(w, decision.Status, decision.Code, decision.Message)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type reindexRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req reindexRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.Reindex(r.Context(), req.Password); err != nil {
		switch {
		case errors.Is(err, app.ErrAdminUnauthorized):
			writeError(w, http.StatusUnauthorized, "unauthorized")
		case errors.Is(err, corpus.ErrReindexInFlight):
			writeError(w, http.StatusConflict, "reindex already in flight")
		default:
			writeError(w, http.StatusInternalServerError, "reindex failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reindexed"})
}

func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrSessionInvalid):
		writeError(w, http.StatusUnauthorized, "session token invalid")
	case errors.Is(err, app.ErrConsentInvalid):
		writeError(w, http.StatusUnauthorized, "consent token invalid")
	case errors.Is(err, app.ErrRunForbidden):
		writeError(w, http.StatusForbidden, "audit run forbidden")
	case errors.Is(err, app.ErrCrisisAckRequired):
		writeErrorCode(w, http.StatusForbidden, "CRISIS_ACK_REQUIRED", "crisis acknowledgement required")
	case errors.Is(err, app.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "audit run not found")
	case errors.Is(err, app.ErrOptionNotFound):
		writeError(w, http.StatusNotFound, "audit option not found")
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeErrorCode(w http.ResponseWriter, status int, code, msg string) {
	payload := map[string]string{"error": msg}
	if code != "" {
		payload["code"] = code
	}
	writeJSON(w, status, payload)
}
