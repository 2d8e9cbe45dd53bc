package store

import (
	"context"
	"testing"
	"time"

	"github.com/opsdeck/deskflow/internal/notify"
	"github.com/opsdeck/deskflow/internal/testutil"
	"github.com/opsdeck/deskflow/internal/workflow"
)

func TestRecordExecution_RoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	entry := workflow.ExecutionEntry{
		ID:                "exec-1",
		TenantID:          "acme",
		RuleID:            "r1",
		RuleName:          "escalate sev1",
		EntityType:        workflow.EntityIssue,
		EntityID:          "i-1",
		Trigger:           workflow.TriggerOnCreate,
		ConditionsMatched: true,
		Actions:           []workflow.ActionType{workflow.ActionChangePriority, workflow.ActionSendNotification},
		Duration:          1500 * time.Microsecond,
		Error:             "escalate sev1: send_notification failed: sink closed",
	}
	if err := s.RecordExecution(ctx, entry); err != nil {
		t.Fatalf("RecordExecution() failed: %v", err)
	}

	got, err := s.ListExecutions(ctx, "acme", workflow.EntityIssue, "i-1")
	if err != nil {
		t.Fatalf("ListExecutions() failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("entries = %d, want 1", len(got))
	}

	e := got[0]
	if e.RuleID != "r1" || e.RuleName != "escalate sev1" || !e.ConditionsMatched {
		t.Errorf("entry header mismatch: %+v", e)
	}
	if len(e.Actions) != 2 || e.Actions[0] != workflow.ActionChangePriority {
		t.Errorf("actions = %v", e.Actions)
	}
	if e.Duration != 1500*time.Microsecond {
		t.Errorf("duration = %v, want 1.5ms", e.Duration)
	}
	if e.Error != entry.Error {
		t.Errorf("error = %q, want %q", e.Error, entry.Error)
	}
}

func TestListExecutions_ScopedToEntity(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, e := range []workflow.ExecutionEntry{
		{ID: "e1", TenantID: "acme", RuleID: "r1", EntityType: workflow.EntityIssue, EntityID: "i-1", Trigger: workflow.TriggerOnCreate, ConditionsMatched: true},
		{ID: "e2", TenantID: "acme", RuleID: "r1", EntityType: workflow.EntityIssue, EntityID: "i-2", Trigger: workflow.TriggerOnCreate, ConditionsMatched: true},
		{ID: "e3", TenantID: "globex", RuleID: "r1", EntityType: workflow.EntityIssue, EntityID: "i-1", Trigger: workflow.TriggerOnCreate, ConditionsMatched: true},
	} {
		if err := s.RecordExecution(ctx, e); err != nil {
			t.Fatalf("RecordExecution(%s) failed: %v", e.ID, err)
		}
	}

	got, err := s.ListExecutions(ctx, "acme", workflow.EntityIssue, "i-1")
	if err != nil {
		t.Fatalf("ListExecutions() failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "e1" {
		t.Errorf("got %+v, want only e1", got)
	}
}

func TestListExecutions_OldestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// Stamp each insert with a distinct, increasing created_at. The
	// IDs sort against insertion order, so this catches a listing that
	// falls back to id order.
	clock := testutil.NewSteppingClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), time.Second)
	s.SetClock(clock.Now)

	for _, id := range []string{"z-late-id", "m-mid-id", "a-early-id"} {
		entry := workflow.ExecutionEntry{
			ID: id, TenantID: "acme", RuleID: "r1",
			EntityType: workflow.EntityIssue, EntityID: "i-1",
			Trigger: workflow.TriggerOnCreate, ConditionsMatched: true,
		}
		if err := s.RecordExecution(ctx, entry); err != nil {
			t.Fatalf("RecordExecution(%s) failed: %v", id, err)
		}
	}

	got, err := s.ListExecutions(ctx, "acme", workflow.EntityIssue, "i-1")
	if err != nil {
		t.Fatalf("ListExecutions() failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("entries = %d, want 3", len(got))
	}
	want := []string{"z-late-id", "m-mid-id", "a-early-id"}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("entry[%d].ID = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestNotificationOutbox_RoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	job := notify.Job{
		ID:   "j-1",
		Type: "workflow_notification",
		Payload: workflow.Params{
			"recipient_id": workflow.String("u-9"),
			"message":      workflow.String("issue escalated"),
		},
	}
	if err := s.InsertNotificationJob(ctx, job); err != nil {
		t.Fatalf("InsertNotificationJob() failed: %v", err)
	}

	// Duplicate insert is a no-op, not an error.
	if err := s.InsertNotificationJob(ctx, job); err != nil {
		t.Fatalf("duplicate InsertNotificationJob() failed: %v", err)
	}

	jobs, err := s.ListNotificationJobs(ctx, "pending")
	if err != nil {
		t.Fatalf("ListNotificationJobs() failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs))
	}
	if jobs[0].Payload.GetString("recipient_id") != "u-9" {
		t.Errorf("payload = %v", jobs[0].Payload)
	}

	jobs, err = s.ListNotificationJobs(ctx, "sent")
	if err != nil {
		t.Fatalf("ListNotificationJobs(sent) failed: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("sent jobs = %d, want 0", len(jobs))
	}
}
