package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// scriptedTransport answers each method from a canned result map.
type scriptedTransport struct {
	results map[string]string // method -> raw JSON result
	errs    map[string]error  // method -> transport error
	notifs  []string
	calls   []string
}

func (s *scriptedTransport) Send(_ context.Context, req *Request) (*Response, error) {
	s.calls = append(s.calls, req.Method)
	if err := s.errs[req.Method]; err != nil {
		return nil, err
	}
	raw, ok := s.results[req.Method]
	if !ok {
		return &Response{
			JSONRPC: jsonrpcVersion,
			ID:      req.ID,
			Error:   &RPCError{Code: -32601, Message: "method not found"},
		}, nil
	}
	return &Response{
		JSONRPC: jsonrpcVersion,
		ID:      req.ID,
		Result:  json.RawMessage(raw),
	}, nil
}

func (s *scriptedTransport) Notify(_ context.Context, notif *Notification) error {
	s.notifs = append(s.notifs, notif.Method)
	return nil
}

func (s *scriptedTransport) Close() error { return nil }

func newTestClient(tr Transport) *Client {
	return NewClient(tr, nil)
}

func TestClientInitialize(t *testing.T) {
	tr := &scriptedTransport{
		results: map[string]string{
			"initialize": `{"protocolVersion":"2024-11-05","serverInfo":{"name":"sqlite","version":"1.0"}}`,
		},
	}
	c := newTestClient(tr)

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	if len(tr.notifs) != 1 || tr.notifs[0] != "notifications/initialized" {
		t.Errorf("notifications sent = %v", tr.notifs)
	}

	// Second call is a no-op.
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("second Initialize() error: %v", err)
	}
	if len(tr.calls) != 1 {
		t.Errorf("initialize sent %d times, want 1", len(tr.calls))
	}
}

func TestClientListToolsCached(t *testing.T) {
	tr := &scriptedTransport{
		results: map[string]string{
			"tools/list": `{"tools":[
				{"name":"read_query","description":"Run a SELECT","inputSchema":{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}},
				{"name":"describe_table","description":"Describe a table","inputSchema":{"type":"object","properties":{"table_name":{"type":"string"}},"required":["table_name"]}}
			]}`,
		},
	}
	c := newTestClient(tr)

	tools, err := c.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools() error: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("got %d tools, want 2", len(tools))
	}
	if tools[0].Name != "read_query" {
		t.Errorf("tools[0].Name = %q", tools[0].Name)
	}
	if tools[0].InputSchema["type"] != "object" {
		t.Errorf("inputSchema not decoded: %v", tools[0].InputSchema)
	}

	// Discovery happens once; the second call hits the cache.
	if _, err := c.ListTools(context.Background()); err != nil {
		t.Fatalf("second ListTools() error: %v", err)
	}
	if len(tr.calls) != 1 {
		t.Errorf("tools/list sent %d times, want 1", len(tr.calls))
	}
}

func TestClientCallTool(t *testing.T) {
	tr := &scriptedTransport{
		results: map[string]string{
			"tools/call": `{"content":[{"type":"text","text":"2 rows"},{"type":"text","text":"extra"}]}`,
		},
	}
	c := newTestClient(tr)

	result, err := c.CallTool(context.Background(), "read_query", map[string]any{"query": "SELECT 1"})
	if err != nil {
		t.Fatalf("CallTool() error: %v", err)
	}
	if got := result.FirstText(); got != "2 rows" {
		t.Errorf("FirstText() = %q", got)
	}
	if len(result.Content) != 2 {
		t.Errorf("all content parts must be preserved, got %d", len(result.Content))
	}
}

func TestClientCallToolIsError(t *testing.T) {
	tr := &scriptedTransport{
		results: map[string]string{
			"tools/call": `{"content":[{"type":"text","text":"no such table: visits\ndetail line"}],"isError":true}`,
		},
	}
	c := newTestClient(tr)

	_, err := c.CallTool(context.Background(), "read_query", nil)
	if err == nil {
		t.Fatal("CallTool() should surface isError results")
	}
	if !strings.Contains(err.Error(), "no such table: visits") {
		t.Errorf("error = %v, want first line of result text", err)
	}
	if strings.Contains(err.Error(), "detail line") {
		t.Errorf("error should be trimmed to the first line, got %v", err)
	}
}

func TestClientTransportError(t *testing.T) {
	wantErr := errors.New("broken pipe")
	tr := &scriptedTransport{errs: map[string]error{"tools/call": wantErr}}
	c := newTestClient(tr)

	_, err := c.CallTool(context.Background(), "read_query", nil)
	if !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want wrapped %v", err, wantErr)
	}
}

func TestClientRPCError(t *testing.T) {
	tr := &scriptedTransport{} // no results: everything is method-not-found
	c := newTestClient(tr)

	_, err := c.CallTool(context.Background(), "nope", nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("error = %v, want *RPCError", err)
	}
	if rpcErr.Code != -32601 {
		t.Errorf("code = %d", rpcErr.Code)
	}
}

func TestToolResultFirstText(t *testing.T) {
	tests := []struct {
		name   string
		result ToolResult
		want   string
	}{
		{"empty", ToolResult{}, ""},
		{"text first", ToolResult{Content: []ContentBlock{{Type: "text", Text: "hello"}}}, "hello"},
		{"non-text only", ToolResult{Content: []ContentBlock{{Type: "image"}}}, "[image]"},
		{"text after non-text", ToolResult{Content: []ContentBlock{{Type: "image"}, {Type: "text", Text: "caption"}}}, "caption"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.FirstText(); got != tt.want {
				t.Errorf("FirstText() = %q, want %q", got, tt.want)
			}
		})
	}
}
