package triage

import (
	"encoding/json"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		symptoms string
		want     Severity
	}{
		{"severe chest pain, short of breath", SeverityCritical},
		{"my father is UNCONSCIOUS", SeverityCritical},
		{"slurred speech and numb face since morning", SeverityCritical},
		{"sakit dada sejak pagi", SeverityCritical},
		{"high fever for three days", SeverityUrgent},
		{"I think my arm is broken", SeverityUrgent},
		{"mild fever and runny nose", SeverityModerate},
		{"vomiting since last night", SeverityModerate},
		{"need a medical checkup for work", SeverityMild},
		{"", SeverityMild},
	}

	for _, tt := range tests {
		got := Classify(tt.symptoms)
		if got.Category != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.symptoms, got.Category, tt.want)
		}
		if got.Rationale == "" {
			t.Errorf("Classify(%q) returned empty rationale", tt.symptoms)
		}
	}
}

func TestClassificationJSON(t *testing.T) {
	c := Classify("chest pain")

	var decoded struct {
		Category  string `json:"category"`
		Rationale string `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(c.JSON()), &decoded); err != nil {
		t.Fatalf("JSON() is not valid JSON: %v", err)
	}
	if decoded.Category != "critical" {
		t.Errorf("category = %q", decoded.Category)
	}
}

func TestParseSeverity(t *testing.T) {
	for _, valid := range []string{"critical", "urgent", "moderate", "mild"} {
		if _, ok := ParseSeverity(valid); !ok {
			t.Errorf("ParseSeverity(%q) rejected a valid category", valid)
		}
	}
	for _, invalid := range []string{"", "CRITICAL", "severe", "low", "emergency"} {
		if _, ok := ParseSeverity(invalid); ok {
			t.Errorf("ParseSeverity(%q) accepted an invalid category", invalid)
		}
	}
}

func TestQueuePrefix(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityCritical, "A"},
		{SeverityUrgent, "B"},
		{SeverityModerate, "C"},
		{SeverityMild, "D"},
	}
	for _, tt := range tests {
		if got := tt.severity.QueuePrefix(); got != tt.want {
			t.Errorf("%s.QueuePrefix() = %q, want %q", tt.severity, got, tt.want)
		}
	}
}
