package triage

import (
	"encoding/json"
	"strings"
)

// Classification is the outcome of one symptom assessment.
type Classification struct {
	Category  Severity `json:"category"`
	Rationale string   `json:"rationale"`
}

// JSON renders the classification as the structured payload local and
// downstream consumers parse. Marshal of this shape cannot fail.
func (c Classification) JSON() string {
	data, _ := json.Marshal(c)
	return string(data)
}

// Keyword rules, checked most-severe first. Matching is substring,
// case-insensitive, so "SEVERE chest pain" and "chest pains" both hit.
var severityRules = []struct {
	category  Severity
	rationale string
	keywords  []string
}{
	{
		category:  SeverityCritical,
		rationale: "red-flag symptom requiring immediate attention",
		keywords: []string{
			"chest pain", "short of breath", "shortness of breath",
			"difficulty breathing", "not breathing", "unconscious",
			"unresponsive", "severe bleeding", "stroke", "seizure",
			"numb face", "slurred speech", "anaphyla", "sesak nafas",
			"sakit dada",
		},
	},
	{
		category:  SeverityUrgent,
		rationale: "needs assessment within the hour",
		keywords: []string{
			"high fever", "broken", "fracture", "deep cut", "head injury",
			"severe pain", "dehydrat", "blood in", "fainted", "demam panas",
		},
	},
	{
		category:  SeverityModerate,
		rationale: "same-day consultation advised",
		keywords: []string{
			"fever", "vomit", "diarrhea", "diarrhoea", "migraine",
			"persistent cough", "rash", "earache", "demam", "muntah",
		},
	},
}

// Classify maps free-text symptoms to a severity category. The rules
// are deliberately conservative keyword matches; this is an intake
// ordering aid, not a medical device.
func Classify(symptoms string) Classification {
	text := strings.ToLower(symptoms)

	for _, rule := range severityRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return Classification{Category: rule.category, Rationale: rule.rationale}
			}
		}
	}

	return Classification{
		Category:  SeverityMild,
		Rationale: "no urgency indicators found, routine visit",
	}
}
