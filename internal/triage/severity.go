// Package triage classifies presenting symptoms into a coarse urgency
// category and extracts that category back out of tool-result text.
package triage

// Severity is the coarse urgency category assigned at triage. The set
// is closed: anything else found in a payload is treated as no signal.
type Severity string

const (
	// SeverityCritical requires immediate attention.
	SeverityCritical Severity = "critical"

	// SeverityUrgent should be seen within the hour.
	SeverityUrgent Severity = "urgent"

	// SeverityModerate is a same-day consultation.
	SeverityModerate Severity = "moderate"

	// SeverityMild is routine; the only category from which the
	// feedback step is reachable.
	SeverityMild Severity = "mild"
)

// ParseSeverity validates a raw category string against the closed set.
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(s) {
	case SeverityCritical, SeverityUrgent, SeverityModerate, SeverityMild:
		return Severity(s), true
	}
	return "", false
}

// QueuePrefix returns the queue-lane letter for ticket numbers
// (A-001 for critical through D-001 for mild).
func (s Severity) QueuePrefix() string {
	switch s {
	case SeverityCritical:
		return "A"
	case SeverityUrgent:
		return "B"
	case SeverityModerate:
		return "C"
	default:
		return "D"
	}
}
