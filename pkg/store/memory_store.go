package store

import (
	"sort"
	"sync"
	"time"

	"github.com/creativcreature/euongelion-sub003/pkg/domain"
)

// MemoryStore is an in-memory Store used in tests and single-node dev setups.
type MemoryStore struct {
	mu      sync.RWMutex
	runs    map[string]domain.AuditRun
	consent map[string][]domain.ConsentEvent
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:    make(map[string]domain.AuditRun),
		consent: make(map[string][]domain.ConsentEvent),
	}
}

func (s *MemoryStore) SaveRun(run domain.AuditRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(id string) (domain.AuditRun, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) ListRunsBySession(sessionID string, limit int) ([]domain.AuditRun, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var runs []domain.AuditRun
	for _, run := range s.runs {
		if run.SessionID == sessionID {
			runs = append(runs, run)
		}
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *MemoryStore) SetRunSelection(id, optionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil
	}
	run.SelectedID = optionID
	run.Status = domain.RunStatusSelected
	run.UpdatedAt = time.Now().UTC()
	s.runs[id] = run
	return nil
}

func (s *MemoryStore) AppendConsentEvent(event domain.ConsentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consent[event.RunID] = append(s.consent[event.RunID], event)
	return nil
}

func (s *MemoryStore) ListConsentEvents(runID string) ([]domain.ConsentEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.consent[runID]
	out := make([]domain.ConsentEvent, len(events))
	copy(out, events)
	return out, nil
}
