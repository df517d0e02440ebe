package agent

import (
	"context"
	"regexp"
	"testing"

	"github.com/halaclinic/intake/internal/clinic"
	"github.com/halaclinic/intake/internal/llm"
)

// TestFullIntakeWorkflow walks one patient through triage, lookup,
// registration, queueing, and summary across several user turns, the
// way a real session unfolds.
func TestFullIntakeWorkflow(t *testing.T) {
	ic := "880505-14-5678"

	client := &scriptedClient{}
	f := newFixture(t, client, 4, 4000)

	if err := f.clinic.SeedDoctors([]clinic.Doctor{
		{Name: "Dr. Lim", Room: "1", OnDuty: true},
	}); err != nil {
		t.Fatalf("SeedDoctors: %v", err)
	}

	ctx := context.Background()

	// Turn 1: symptoms arrive, triage runs.
	client.responses = []*llm.ChatResponse{
		{Calls: []llm.FunctionCall{{
			Name: "triage_classify",
			Args: map[string]any{"symptoms": "fever and vomiting since last night"},
		}}},
		{Text: "Thank you. May I have your IC number?"},
	}
	result, err := f.loop.Run(ctx, &Request{ConversationID: "visit-1", Text: "I have fever and vomiting since last night"})
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if result.Severity != "moderate" {
		t.Fatalf("severity = %q, want moderate", result.Severity)
	}

	// Turn 2: lookup misses, model asks to register, registration and
	// re-lookup happen, then the queue is assigned.
	client.responses = []*llm.ChatResponse{
		{Calls: []llm.FunctionCall{{
			Name: "patient_lookup",
			Args: map[string]any{"ic": ic},
		}}},
		{Calls: []llm.FunctionCall{{
			Name: "patient_register",
			Args: map[string]any{
				"name": "Daniel Tan", "phone": "+60198765432",
				"dob": "1988-05-05", "gender": "male", "ic": ic,
			},
		}}},
		{Calls: []llm.FunctionCall{{
			Name: "patient_lookup",
			Args: map[string]any{"ic": ic},
		}}},
		{Text: "You are registered, Daniel."},
	}
	client.payloads = nil
	if _, err := f.loop.Run(ctx, &Request{ConversationID: "visit-1", Text: "My IC is " + ic}); err != nil {
		t.Fatalf("turn 2: %v", err)
	}

	patient, err := f.clinic.LookupPatient(ic, "", "")
	if err != nil || patient == nil {
		t.Fatalf("patient not registered: %v", err)
	}

	// Turn 3: queue assignment and summary.
	client.responses = []*llm.ChatResponse{
		{Calls: []llm.FunctionCall{{
			Name: "assign_queue",
			Args: map[string]any{
				"patient_id": patient.ID, "category": "moderate",
				"notes": "fever and vomiting since last night",
			},
		}}},
		{Calls: []llm.FunctionCall{{
			Name: "record_summary",
			Args: map[string]any{
				"patient_id": patient.ID, "category": "moderate",
				"notes": "fever and vomiting since last night, onset ~12h",
			},
		}}},
		{Text: "Your queue number is C-001 with Dr. Lim in room 1."},
	}
	client.payloads = nil
	result, err = f.loop.Run(ctx, &Request{ConversationID: "visit-1", Text: "ok"})
	if err != nil {
		t.Fatalf("turn 3: %v", err)
	}
	if result.ToolCallCount != 2 {
		t.Fatalf("turn 3 tool calls = %d, want 2", result.ToolCallCount)
	}

	queue, err := f.clinic.TodayQueue()
	if err != nil {
		t.Fatalf("TodayQueue: %v", err)
	}
	if len(queue) != 1 {
		t.Fatalf("expected 1 visit, got %d", len(queue))
	}
	if matched := regexp.MustCompile(`^C-\d{3}$`).MatchString(queue[0].QueueNumber); !matched {
		t.Errorf("queue number %q has wrong shape for a moderate case", queue[0].QueueNumber)
	}
	if queue[0].DoctorName != "Dr. Lim" {
		t.Errorf("doctor = %q, want Dr. Lim", queue[0].DoctorName)
	}
}
