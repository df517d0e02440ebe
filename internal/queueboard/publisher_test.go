package queueboard

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/halaclinic/intake/internal/clinic"
	"github.com/halaclinic/intake/internal/config"
)

func TestBuildSnapshot(t *testing.T) {
	visits := []clinic.Visit{
		{
			ID: "v-1", PatientID: "p-1", QueueNumber: "B-001",
			Category: "urgent", DoctorName: "Dr. Lim", Room: "2",
		},
		{
			ID: "v-2", PatientID: "p-2", QueueNumber: "D-001",
			Category: "mild", DoctorName: "Dr. Wong", Room: "3",
		},
	}

	snap := buildSnapshot(visits)
	if snap.Waiting != 2 || len(snap.Entries) != 2 {
		t.Fatalf("snapshot = %+v, want 2 entries", snap)
	}
	if snap.Entries[0].QueueNumber != "B-001" || snap.Entries[0].Room != "2" {
		t.Errorf("first entry = %+v", snap.Entries[0])
	}
}

func TestSnapshotOmitsPatientIdentity(t *testing.T) {
	visits := []clinic.Visit{{
		ID: "v-1", PatientID: "p-secret", QueueNumber: "A-001",
		Category: "critical", DoctorName: "Dr. Lim", Room: "1",
	}}

	payload, err := json.Marshal(buildSnapshot(visits))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(payload), "p-secret") {
		t.Errorf("patient id leaked into board payload: %s", payload)
	}
}

func TestBuildSnapshotEmpty(t *testing.T) {
	snap := buildSnapshot(nil)
	if snap.Waiting != 0 {
		t.Errorf("waiting = %d, want 0", snap.Waiting)
	}
	if snap.Entries == nil {
		t.Error("entries should be an empty slice, not null, for the display")
	}
}

func TestPublishQueueBeforeStart(t *testing.T) {
	p := New(config.QueueBoardConfig{Broker: "mqtt://localhost:1883", Topic: "clinic/queue"}, nil)
	if err := p.PublishQueue(context.Background(), nil); err == nil {
		t.Error("expected error before Start")
	}
}
