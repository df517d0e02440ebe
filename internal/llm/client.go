package llm

import "context"

// Client is the interface the turn loop drives. Implementations convert
// to and from their provider wire format; the rest of the system only
// sees Message, ToolDeclaration, and ChatResponse.
type Client interface {
	// Chat sends the ordered prompt content plus tool declarations and
	// returns the model's response. Function calling mode is automatic:
	// the model decides whether to answer in text or request a call.
	Chat(ctx context.Context, messages []Message, tools []ToolDeclaration) (*ChatResponse, error)

	// Ping checks whether the provider is reachable.
	Ping(ctx context.Context) error
}
