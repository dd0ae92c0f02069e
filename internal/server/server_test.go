package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/creativcreature/euongelion-sub003/internal/app"
	"github.com/creativcreature/euongelion-sub003/pkg/auth"
	"github.com/creativcreature/euongelion-sub003/pkg/corpus"
	"github.com/creativcreature/euongelion-sub003/pkg/domain"
	"github.com/creativcreature/euongelion-sub003/pkg/store"
)

const (
	testConsentSecret = "consent-secret-0123456789abcdefgh"
	testSessionSecret = "session-secret-0123456789abcdefgh"
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

func seriesDoc(t *testing.T, slug string) []byte {
	t.Helper()
	doc := map[string]any{
		"slug":     slug,
		"title":    "Series " + slug,
		"question": "Where are you with " + slug + "?",
		"keywords": []string{slug},
		"days": []map[string]any{
			{
				"day":                1,
				"title":              "Day One",
				"scriptureReference": "Psalm 46:10",
				"scriptureText":      "Be still, and know that I am God.",
				"teaching":           "Stillness is an act of trust.",
				"reflectionPrompt":   "What would stillness cost you?",
				"prayer":             "Quiet my heart.",
				"takeaway":           "Stillness before striving.",
			},
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal series doc: %v", err)
	}
	return data
}

type serverOptions struct {
	docs      map[string][]byte
	adminHash string
	limiter   Limiter
}

func newTestServer(t *testing.T, opts serverOptions) http.Handler {
	t.Helper()
	c := corpus.New(&mapSource{docs: opts.docs})
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("load corpus: %v", err)
	}
	appCore, err := app.New(app.Config{
		Store:             store.NewMemoryStore(),
		Corpus:            c,
		ConsentSecret:     testConsentSecret,
		SessionSecret:     testSessionSecret,
		AdminPasswordHash: opts.adminHash,
	})
	if err != nil {
		t.Fatalf("init app: %v", err)
	}
	return New(Config{App: appCore, Limiter: opts.limiter}).Router()
}

func defaultDocs(t *testing.T) map[string][]byte {
	return map[string][]byte{
		"series/rest.json":    seriesDoc(t, "rest"),
		"series/anxiety.json": seriesDoc(t, "anxiety"),
		"series/truth.json":   seriesDoc(t, "truth"),
	}
}

func doJSON(t *testing.T, handler http.Handler, method, path, session string, body any) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if session != "" {
		req.Header.Set(sessionHeader, session)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	payload := map[string]json.RawMessage{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("%s %s: invalid JSON response %q", method, path, rec.Body.String())
		}
	}
	return rec, payload
}

func submit(t *testing.T, handler http.Handler, userResponse string) (runID, session string, body map[string]json.RawMessage) {
	t.Helper()
	rec, payload := doJSON(t, handler, http.MethodPost, "/soul-audit/submit", "", map[string]string{
		"userResponse": userResponse,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d body %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(payload["runId"], &runID); err != nil {
		t.Fatalf("runId missing: %v", err)
	}
	if err := json.Unmarshal(payload["sessionToken"], &session); err != nil {
		t.Fatalf("sessionToken missing: %v", err)
	}
	return runID, session, payload
}

func TestSubmitReturnsFiveOptionsAndSession(t *testing.T) {
	handler := newTestServer(t, serverOptions{docs: defaultDocs(t)})
	_, session, payload := submit(t, handler, "I feel anxious about everything lately")

	if session == "" {
		t.Fatal("no session token issued")
	}
	var options []domain.AuditOption
	if err := json.Unmarshal(payload["options"], &options); err != nil {
		t.Fatalf("options: %v", err)
	}
	if len(options) != domain.TotalOptionCount {
		t.Fatalf("got %d options, want %d", len(options), domain.TotalOptionCount)
	}
	aiCount := 0
	for _, option := range options {
		if option.Kind == domain.KindAIPrimary {
			aiCount++
		}
	}
	if aiCount != domain.AIPrimaryCount {
		t.Fatalf("ai_primary count = %d, want %d", aiCount, domain.AIPrimaryCount)
	}
	var hits []domain.GroundingHit
	if err := json.Unmarshal(payload["grounding"], &hits); err != nil {
		t.Fatalf("grounding: %v", err)
	}
	if len(hits) == 0 || hits[0].Excerpt == "" {
		t.Fatalf("grounding = %+v, want at least one non-empty hit", hits)
	}
}

func TestSubmitReusesSessionHeader(t *testing.T) {
	handler := newTestServer(t, serverOptions{docs: defaultDocs(t)})
	_, session, _ := submit(t, handler, "first submission about rest")

	rec, payload := doJSON(t, handler, http.MethodPost, "/soul-audit/submit", session, map[string]string{
		"userResponse": "second submission about truth",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if _, present := payload["sessionToken"]; present {
		t.Fatal("existing session should not mint a new token")
	}
}

func TestConsentResumeRoundTrip(t *testing.T) {
	handler := newTestServer(t, serverOptions{docs: defaultDocs(t)})
	runID, session, _ := submit(t, handler, "I feel anxious about work")

	rec, payload := doJSON(t, handler, http.MethodPost, "/soul-audit/consent", session, map[string]any{
		"runId":             runID,
		"essentialAccepted": true,
		"analyticsOptIn":    true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("consent status = %d body %s", rec.Code, rec.Body.String())
	}
	var consentToken string
	if err := json.Unmarshal(payload["consentToken"], &consentToken); err != nil || consentToken == "" {
		t.Fatalf("consentToken missing: %v", err)
	}

	rec, _ = doJSON(t, handler, http.MethodPost, "/soul-audit/resume", session, map[string]string{
		"runId":        runID,
		"consentToken": consentToken,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("resume status = %d body %s", rec.Code, rec.Body.String())
	}

	rec, _ = doJSON(t, handler, http.MethodPost, "/soul-audit/resume", session, map[string]string{
		"runId":        runID,
		"consentToken": consentToken + "tampered",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("tampered resume status = %d, want 401", rec.Code)
	}
}

func TestConsentRequiresEssential(t *testing.T) {
	handler := newTestServer(t, serverOptions{docs: defaultDocs(t)})
	runID, session, _ := submit(t, handler, "thinking about generosity")

	rec, _ := doJSON(t, handler, http.MethodPost, "/soul-audit/consent", session, map[string]any{
		"runId":             runID,
		"essentialAccepted": false,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCrisisFlowRequiresAcknowledgement(t *testing.T) {
	handler := newTestServer(t, serverOptions{docs: defaultDocs(t)})
	runID, session, payload := submit(t, handler, "some days I want to end my life")

	var crisis domain.CrisisRequirement
	if err := json.Unmarshal(payload["crisis"], &crisis); err != nil {
		t.Fatalf("crisis: %v", err)
	}
	if !crisis.Required || len(crisis.Resources) == 0 {
		t.Fatalf("crisis requirement = %+v", crisis)
	}

	rec, body := doJSON(t, handler, http.MethodPost, "/soul-audit/consent", session, map[string]any{
		"runId":             runID,
		"essentialAccepted": true,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("consent without ack status = %d", rec.Code)
	}
	var code string
	if err := json.Unmarshal(body["code"], &code); err != nil || code != "CRISIS_ACK_REQUIRED" {
		t.Fatalf("code = %q", code)
	}

	rec, body = doJSON(t, handler, http.MethodPost, "/soul-audit/consent", session, map[string]any{
		"runId":              runID,
		"essentialAccepted":  true,
		"crisisAcknowledged": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("acknowledged consent status = %d", rec.Code)
	}
	var consentToken string
	if err := json.Unmarshal(body["consentToken"], &consentToken); err != nil {
		t.Fatalf("consentToken: %v", err)
	}

	// A different session resumes with the same token: accepted for normal
	// runs, refused for crisis-flagged ones.
	_, otherSession, _ := submit(t, handler, "a separate browser submission")
	rec, _ = doJSON(t, handler, http.MethodPost, "/soul-audit/resume", otherSession, map[string]string{
		"runId":        runID,
		"consentToken": consentToken,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("cross-session crisis resume status = %d, want 403", rec.Code)
	}
}

func TestSelectOption(t *testing.T) {
	handler := newTestServer(t, serverOptions{docs: defaultDocs(t)})
	runID, session, payload := submit(t, handler, "I need rest")

	var options []domain.AuditOption
	if err := json.Unmarshal(payload["options"], &options); err != nil {
		t.Fatalf("options: %v", err)
	}
	rec, body := doJSON(t, handler, http.MethodPost, "/soul-audit/select", session, map[string]string{
		"runId":    runID,
		"optionId": options[0].ID,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("select status = %d body %s", rec.Code, rec.Body.String())
	}
	var status string
	if err := json.Unmarshal(body["status"], &status); err != nil || status != string(domain.RunStatusSelected) {
		t.Fatalf("run status = %q", status)
	}

	rec, _ = doJSON(t, handler, http.MethodPost, "/soul-audit/select", session, map[string]string{
		"runId":    runID,
		"optionId": "not-an-option",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown option status = %d, want 404", rec.Code)
	}
}

func TestChatGuardrailContract(t *testing.T) {
	handler := newTestServer(t, serverOptions{docs: defaultDocs(t)})
	messages := []map[string]string{{"role": "user", "content": "What does stillness mean here?"}}

	rec, body := doJSON(t, handler, http.MethodPost, "/chat", "", map[string]any{
		"messages": messages,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing context status = %d", rec.Code)
	}
	var errMsg string
	if err := json.Unmarshal(body["error"], &errMsg); err != nil || !strings.Contains(errMsg, "devotional context") {
		t.Fatalf("error = %q", errMsg)
	}

	rec, _ = doJSON(t, handler, http.MethodPost, "/chat", "", map[string]any{
		"devotionalSlug": "no-such-series",
		"messages":       messages,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unresolvable slug status = %d", rec.Code)
	}

	rec, body = doJSON(t, handler, http.MethodPost, "/chat", "", map[string]any{
		"devotionalSlug": "rest",
		"openWebMode":    true,
		"messages":       messages,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("open web without ack status = %d", rec.Code)
	}
	var code string
	if err := json.Unmarshal(body["code"], &code); err != nil || code != "OPEN_WEB_ACK_REQUIRED" {
		t.Fatalf("code = %q", code)
	}

	rec, body = doJSON(t, handler, http.MethodPost, "/chat", "", map[string]any{
		"devotionalSlug":      "rest-day-1",
		"highlightedText":     "Be still",
		"openWebMode":         true,
		"openWebAcknowledged": true,
		"messages":            messages,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("accepted chat status = %d body %s", rec.Code, rec.Body.String())
	}
	var metadata domain.GuardrailMetadata
	if err := json.Unmarshal(body["metadata"], &metadata); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if metadata.Scope != domain.GuardrailScopeLocal {
		t.Fatalf("scope = %q", metadata.Scope)
	}
	if metadata.InternetSearch {
		t.Fatal("internetSearch must be false even in acknowledged open-web mode")
	}
	if !metadata.HasHighlightedText || !metadata.HasDevotionalContext {
		t.Fatalf("metadata flags = %+v", metadata)
	}
	var citations []domain.Citation
	if err := json.Unmarshal(body["citations"], &citations); err != nil {
		t.Fatalf("citations: %v", err)
	}
	if len(citations) == 0 || citations[0].Source != "Psalm 46:10" {
		t.Fatalf("citations = %+v", citations)
	}
}

func TestChatEmptyCorpusUnavailable(t *testing.T) {
	handler := newTestServer(t, serverOptions{docs: nil})
	rec, _ := doJSON(t, handler, http.MethodPost, "/chat", "", map[string]any{
		"devotionalSlug": "rest",
		"messages":       []map[string]string{{"role": "user", "content": "hello"}},
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestReindexAuth(t *testing.T) {
	hash, err := auth.HashPassword("letmein")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	handler := newTestServer(t, serverOptions{docs: defaultDocs(t), adminHash: hash})

	rec, _ := doJSON(t, handler, http.MethodPost, "/admin/reindex", "", map[string]string{
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d", rec.Code)
	}

	rec, _ = doJSON(t, handler, http.MethodPost, "/admin/reindex", "", map[string]string{
		"password": "letmein",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("reindex status = %d body %s", rec.Code, rec.Body.String())
	}
}

func TestReindexDisabledWithoutHash(t *testing.T) {
	handler := newTestServer(t, serverOptions{docs: defaultDocs(t)})
	rec, _ := doJSON(t, handler, http.MethodPost, "/admin/reindex", "", map[string]string{
		"password": "anything",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

type denyLimiter struct{}

func (denyLimiter) Allow(string) bool { return false }

type recordLimiter struct {
	keys []string
}

func (l *recordLimiter) Allow(key string) bool {
	l.keys = append(l.keys, key)
	return true
}

func TestSubmitRateLimited(t *testing.T) {
	handler := newTestServer(t, serverOptions{docs: defaultDocs(t), limiter: denyLimiter{}})
	rec, _ := doJSON(t, handler, http.MethodPost, "/soul-audit/submit", "", map[string]string{
		"userResponse": "hello",
	})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
}

func TestSubmitRateLimitKeyedBySession(t *testing.T) {
	limiter := &recordLimiter{}
	handler := newTestServer(t, serverOptions{docs: defaultDocs(t), limiter: limiter})

	_, session, _ := submit(t, handler, "I feel anxious about everything")
	if len(limiter.keys) != 1 || !strings.HasPrefix(limiter.keys[0], "submit:ip:") {
		t.Fatalf("fresh session should limit by IP, got keys %v", limiter.keys)
	}

	rec, _ := doJSON(t, handler, http.MethodPost, "/soul-audit/submit", session, map[string]string{
		"userResponse": "still anxious",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("second submit status = %d", rec.Code)
	}
	if len(limiter.keys) != 2 || !strings.HasPrefix(limiter.keys[1], "submit:session:") {
		t.Fatalf("established session should limit by session, got keys %v", limiter.keys)
	}
}

func TestChatRateLimited(t *testing.T) {
	handler := newTestServer(t, serverOptions{docs: defaultDocs(t), limiter: denyLimiter{}})
	rec, _ := doJSON(t, handler, http.MethodPost, "/chat", "", map[string]any{
		"devotionalSlug": "rest-day-1",
		"messages":       []map[string]string{{"role": "user", "content": "What does stillness mean?"}},
	})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	handler := newTestServer(t, serverOptions{docs: defaultDocs(t)})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestServer(t, serverOptions{docs: defaultDocs(t)})
	req := httptest.NewRequest(http.MethodGet, "/soul-audit/submit", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}
