package app

import "errors"

var (
	// ErrRunNotFound indicates the referenced audit run does not exist.
	ErrRunNotFound = errors.New("audit run not found")
	// ErrRunForbidden indicates the run belongs to a different session.
	ErrRunForbidden = errors.New("audit run forbidden")
	// ErrConsentInvalid indicates a missing, tampered, expired or
	// mismatched consent token. All failure modes share this error.
	ErrConsentInvalid = errors.New("consent token invalid")
	// ErrCrisisAckRequired indicates a crisis-flagged run without a
	// session-bound crisis acknowledgement.
	ErrCrisisAckRequired = errors.New("crisis acknowledgement required")
	// ErrOptionNotFound indicates a selection of an option the run does not carry.
	ErrOptionNotFound = errors.New("audit option not found")
	// ErrSessionInvalid indicates a missing or unverifiable session token.
	ErrSessionInvalid = errors.New("session token invalid")
	// ErrAdminUnauthorized indicates a failed admin credential check.
	ErrAdminUnauthorized = errors.New("admin credentials invalid")
)
