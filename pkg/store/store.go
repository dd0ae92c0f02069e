// Package store persists audit runs and consent events.
package store

import "github.com/creativcreature/euongelion-sub003/pkg/domain"

// Store defines persistence operations for audit runs and consent events.
type Store interface {
	// runs
	SaveRun(domain.AuditRun) error
	GetRun(id string) (domain.AuditRun, bool, error)
	ListRunsBySession(sessionID string, limit int) ([]domain.AuditRun, error)
	SetRunSelection(id, optionID string) error

	// consent
	AppendConsentEvent(domain.ConsentEvent) error
	ListConsentEvents(runID string) ([]domain.ConsentEvent, error)
}
