package store

import (
	"testing"
	"time"

	"github.com/creativcreature/euongelion-sub003/pkg/domain"
)

func TestMemoryStoreRunLifecycle(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()

	run := domain.AuditRun{
		ID:           "run-1",
		SessionID:    "sess-1",
		UserResponse: "I feel restless",
		Status:       domain.RunStatusOpen,
		Options: []domain.AuditOption{
			{ID: "ai_primary:identity:1", Kind: domain.KindAIPrimary, Rank: 1},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.SaveRun(run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, ok, err := s.GetRun("run-1")
	if err != nil || !ok {
		t.Fatalf("GetRun = %v, %v", ok, err)
	}
	if got.UserResponse != run.UserResponse || len(got.Options) != 1 {
		t.Fatalf("unexpected run %+v", got)
	}

	if err := s.SetRunSelection("run-1", "ai_primary:identity:1"); err != nil {
		t.Fatalf("SetRunSelection: %v", err)
	}
	got, _, _ = s.GetRun("run-1")
	if got.Status != domain.RunStatusSelected || got.SelectedID != "ai_primary:identity:1" {
		t.Fatalf("selection not applied: %+v", got)
	}

	if _, ok, _ := s.GetRun("missing"); ok {
		t.Fatal("expected missing run lookup to report not found")
	}
}

func TestMemoryStoreListRunsBySession(t *testing.T) {
	s := NewMemoryStore()
	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		run := domain.AuditRun{
			ID:        "run-" + string(rune('a'+i)),
			SessionID: "sess-1",
			Status:    domain.RunStatusOpen,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.SaveRun(run); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}
	if err := s.SaveRun(domain.AuditRun{ID: "other", SessionID: "sess-2", CreatedAt: base}); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	runs, err := s.ListRunsBySession("sess-1", 2)
	if err != nil {
		t.Fatalf("ListRunsBySession: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].ID != "run-c" || runs[1].ID != "run-b" {
		t.Fatalf("runs out of order: %s, %s", runs[0].ID, runs[1].ID)
	}
}

func TestMemoryStoreConsentEvents(t *testing.T) {
	s := NewMemoryStore()
	event := domain.ConsentEvent{
		ID:                "evt-1",
		RunID:             "run-1",
		EssentialAccepted: true,
		SessionBound:      true,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.AppendConsentEvent(event); err != nil {
		t.Fatalf("AppendConsentEvent: %v", err)
	}
	events, err := s.ListConsentEvents("run-1")
	if err != nil {
		t.Fatalf("ListConsentEvents: %v", err)
	}
	if len(events) != 1 || events[0].ID != "evt-1" || !events[0].EssentialAccepted {
		t.Fatalf("unexpected events %+v", events)
	}
	if events, _ := s.ListConsentEvents("other"); len(events) != 0 {
		t.Fatalf("expected no events for other run, got %+v", events)
	}
}
