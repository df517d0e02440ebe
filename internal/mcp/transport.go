package mcp

import "context"

// Transport delivers JSON-RPC messages to the tool-server process.
// The stdio implementation is the only one intake ships; the interface
// exists so client tests can script exchanges without a subprocess.
type Transport interface {
	// Send sends a request and returns the matching response. The
	// transport handles framing, encoding, and ID correlation.
	Send(ctx context.Context, req *Request) (*Response, error)

	// Notify sends a notification (no response expected).
	Notify(ctx context.Context, notif *Notification) error

	// Close shuts down the transport and releases resources. For the
	// stdio transport this terminates the subprocess.
	Close() error
}
