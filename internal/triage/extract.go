package triage

import (
	"encoding/json"
	"strings"
)

// ExtractSignal scans tool-result text for the first well-formed
// classification payload and returns its category. It is best-effort
// by contract: malformed JSON, a category outside the closed set, or
// no payload at all yield ok=false, never an error.
func ExtractSignal(text string) (Severity, bool) {
	payload, ok := firstJSONObject(text)
	if !ok {
		return "", false
	}

	var c struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return "", false
	}

	return ParseSeverity(strings.ToLower(strings.TrimSpace(c.Category)))
}

// firstJSONObject isolates the first balanced {...} span, so payloads
// wrapped in model prose still parse. Braces inside JSON strings are
// accounted for.
func firstJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}

	return "", false
}
