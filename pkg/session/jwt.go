// Package session issues the audit session tokens that consent tokens bind
// to. Sessions are HS256 JWTs carrying a random subject; losing one only
// costs the resume convenience, never consent state.
package session

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer   = "soulaudit"
	defaultAudience = "soulaudit-api"
	defaultTTL      = 30 * 24 * time.Hour
	defaultLeeway   = 30 * time.Second
	minSecretChars  = 32
)

// Store issues and validates audit session tokens.
type Store struct {
	secret   []byte
	ttl      time.Duration
	issuer   string
	audience string
	leeway   time.Duration
}

// NewStore builds an HS256 session store from a process-wide secret.
func NewStore(secret string, ttl time.Duration) (*Store, error) {
	secret = strings.TrimSpace(secret)
	if len(secret) < minSecretChars {
		return nil, errors.New("session token secret must be at least 32 characters")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{
		secret:   []byte(secret),
		ttl:      ttl,
		issuer:   defaultIssuer,
		audience: defaultAudience,
		leeway:   defaultLeeway,
	}, nil
}

// NewSession mints a signed session token and returns it with its session id.
func (s *Store) NewSession() (string, string, error) {
	now := time.Now().UTC()
	sessionID := uuid.NewString()
	claims := jwt.RegisteredClaims{
		Subject:   sessionID,
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{s.audience},
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", "", err
	}
	return token, sessionID, nil
}

// SessionID validates a session token and returns its session id.
// Failures are uniform; callers only learn that the session is invalid.
func (s *Store) SessionID(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("invalid session token")
	}
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unsupported signing method")
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(s.leeway),
	)
	if err != nil || !parsed.Valid {
		return "", errors.New("invalid session token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("invalid session token")
	}
	return claims.Subject, nil
}
