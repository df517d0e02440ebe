package mcp

import (
	"encoding/json"
	"fmt"
)

// The tool-server speaks JSON-RPC 2.0, one message per line on its
// stdio pipes. Only the message shapes the client actually exchanges
// live here; framing is the transport's business.

const jsonrpcVersion = "2.0"

// Request carries one call to the tool-server. The ID ties the
// eventual Response back to it.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

func NewRequest(id int64, method string, params any) *Request {
	return &Request{
		JSONRPC: jsonrpcVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// Notification is a one-way message. It carries no ID and the
// tool-server must not answer it.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

func NewNotification(method string, params any) *Notification {
	return &Notification{
		JSONRPC: jsonrpcVersion,
		Method:  method,
		Params:  params,
	}
}

// Response is the tool-server's answer to a Request. A well-formed
// response carries exactly one of Result or Error; Result stays raw
// so each caller can decode its own method-specific shape.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error member of a failed Response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("tool-server rpc error %d: %s", e.Code, e.Message)
}
