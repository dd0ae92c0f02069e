// Package consent issues and verifies signed, session-scoped consent tokens
// for Soul Audit runs.
//
// A token is base64url(JSON payload) + "." + hex HMAC-SHA256 signature, safe
// for cookie and header transport. Verification fails closed: any parse,
// signature, run, session, or expiry problem yields a uniform nil result with
// no indication of which check failed. The service performs no I/O.
package consent

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/creativcreature/euongelion-sub003/pkg/domain"
)

const (
	tokenVersion   = 1
	defaultMaxAge  = 30 * time.Minute
	minSecretChars = 32
)

// Service signs and verifies consent tokens with a process-wide secret.
type Service struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewService builds the token service. The secret must be at least 32
// characters; shorter secrets are refused rather than silently weakened.
func NewService(secret string, maxAge time.Duration) (*Service, error) {
	secret = strings.TrimSpace(secret)
	if len(secret) < minSecretChars {
		return nil, errors.New("consent token secret must be at least 32 characters")
	}
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	return &Service{
		secret: []byte(secret),
		maxAge: maxAge,
		now:    time.Now,
	}, nil
}

type tokenPayload struct {
	Version            int    `json:"version"`
	AuditRunID         string `json:"auditRunId"`
	EssentialAccepted  bool   `json:"essentialAccepted"`
	AnalyticsOptIn     bool   `json:"analyticsOptIn"`
	CrisisAcknowledged bool   `json:"crisisAcknowledged"`
	SessionFingerprint string `json:"sessionFingerprint"`
	IssuedAt           string `json:"issuedAt"`
}

// CreateParams carries the claim content for one issued token.
type CreateParams struct {
	AuditRunID         string
	EssentialAccepted  bool
	AnalyticsOptIn     bool
	CrisisAcknowledged bool
	SessionToken       string
}

// Create serializes and signs a consent claim. Consent state is never
// updated in place; a changed state means a new token.
func (s *Service) Create(params CreateParams) (string, error) {
	if strings.TrimSpace(params.AuditRunID) == "" {
		return "", errors.New("audit run id required")
	}
	if strings.TrimSpace(params.SessionToken) == "" {
		return "", errors.New("session token required")
	}
	payload := tokenPayload{
		Version:            tokenVersion,
		AuditRunID:         params.AuditRunID,
		EssentialAccepted:  params.EssentialAccepted,
		AnalyticsOptIn:     params.AnalyticsOptIn,
		CrisisAcknowledged: params.CrisisAcknowledged,
		SessionFingerprint: s.fingerprintSession(params.SessionToken),
		IssuedAt:           s.now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	encoded := base64.RawURLEncoding.EncodeToString(data)
	return encoded + "." + s.sign(encoded), nil
}

// VerifyParams carries the verification inputs for one token.
type VerifyParams struct {
	Token         string
	ExpectedRunID string
	SessionToken  string
	// AllowSessionMismatch accepts a token bound to a different session.
	// The returned claim then carries SessionBound=false and callers must
	// treat it as lower trust.
	AllowSessionMismatch bool
}

// Verify checks the token and returns its claim, or nil on any failure.
func (s *Service) Verify(params VerifyParams) *domain.ConsentClaim {
	token := strings.TrimSpace(params.Token)
	if token == "" {
		return nil
	}
	encoded, signature, ok := strings.Cut(token, ".")
	if !ok || encoded == "" || signature == "" {
		return nil
	}
	if !safeEqualHex(signature, s.sign(encoded)) {
		return nil
	}
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil
	}
	var payload tokenPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	if payload.Version != tokenVersion {
		return nil
	}
	if payload.AuditRunID != params.ExpectedRunID {
		return nil
	}
	sessionBound := safeEqualHex(payload.SessionFingerprint, s.fingerprintSession(params.SessionToken))
	if !sessionBound && !params.AllowSessionMismatch {
		return nil
	}
	issuedAt, err := time.Parse(time.RFC3339, payload.IssuedAt)
	if err != nil {
		return nil
	}
	if s.now().Sub(issuedAt) > s.maxAge {
		return nil
	}
	return &domain.ConsentClaim{
		AuditRunID:         payload.AuditRunID,
		EssentialAccepted:  payload.EssentialAccepted,
		AnalyticsOptIn:     payload.AnalyticsOptIn,
		CrisisAcknowledged: payload.CrisisAcknowledged,
		IssuedAt:           issuedAt,
		SessionBound:       sessionBound,
	}
}

// fingerprintSession hashes the session token instead of embedding it, so a
// leaked consent token never exposes the session itself.
func (s *Service) fingerprintSession(sessionToken string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte("session:" + sessionToken))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Service) sign(encodedPayload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(encodedPayload))
	return hex.EncodeToString(mac.Sum(nil))
}

func safeEqualHex(a, b string) bool {
	aBytes, errA := hex.DecodeString(a)
	bBytes, errB := hex.DecodeString(b)
	if errA != nil || errB != nil {
		return false
	}
	return hmac.Equal(aBytes, bBytes)
}
