// Package llm defines the model function-calling boundary.
package llm

import (
	"log/slog"
	"time"
)

// LevelTrace mirrors config.LevelTrace without the import. Providers
// log full wire payloads at this level.
const LevelTrace = slog.Level(-8)

// Role identifies whose voice a message carries.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// FunctionCall is a model-issued request to invoke a named capability.
type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// FunctionResponse reports a capability result back to the model.
type FunctionResponse struct {
	Name   string         `json:"name"`
	Result map[string]any `json:"result,omitempty"`
}

// Message is one conversation turn. Text, FunctionCall, and
// FunctionResponse may each be absent; a message carrying none of the
// three is noise and is filtered out before submission to the model.
//
// Invariant: a FunctionCall message is immediately followed by exactly
// one FunctionResponse message for the same name before any further
// user input.
type Message struct {
	Role             Role              `json:"role"`
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"function_call,omitempty"`
	FunctionResponse *FunctionResponse `json:"function_response,omitempty"`
}

// Empty reports whether the message carries no usable content.
func (m Message) Empty() bool {
	return m.Text == "" && m.FunctionCall == nil && m.FunctionResponse == nil
}

// ToolDeclaration describes one callable capability to the model.
// Parameters is a harmonized, restricted JSON-Schema object (see the
// tools package); declarations are immutable once a session starts.
type ToolDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ChatResponse is the unified response from the model. Text and Calls
// may both be present; Calls is empty for a plain-text turn.
type ChatResponse struct {
	Model     string
	CreatedAt time.Time
	Text      string
	Calls     []FunctionCall

	InputTokens  int
	OutputTokens int
}
