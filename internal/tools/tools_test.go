package tools

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/halaclinic/intake/internal/mcp"
)

type recordedCall struct {
	name string
	args map[string]any
}

// fakeRemote scripts the tool-server side of discovery and dispatch.
type fakeRemote struct {
	tools   []mcp.ToolDefinition
	listErr error
	callFn  func(name string, args map[string]any) (*mcp.ToolResult, error)
	calls   []recordedCall
}

func (f *fakeRemote) ListTools(ctx context.Context) ([]mcp.ToolDefinition, error) {
	return f.tools, f.listErr
}

func (f *fakeRemote) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.ToolResult, error) {
	f.calls = append(f.calls, recordedCall{name: name, args: args})
	if f.callFn != nil {
		return f.callFn(name, args)
	}
	return &mcp.ToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: "ok"}}}, nil
}

func noopTool(name string) *Tool {
	return &Tool{
		Name:        name,
		Description: name,
		Parameters:  map[string]any{"type": "object"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "ok", nil
		},
	}
}

func TestDiscoverMergesSources(t *testing.T) {
	remote := &fakeRemote{tools: []mcp.ToolDefinition{
		{Name: "read_query", Description: "run a query", InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"query": map[string]any{"type": "string"}},
			"required":   []any{"query"},
		}},
	}}

	r := NewRegistry(remote, "describe_table", "patients", nil)
	r.Register(noopTool("triage_classify"))

	if err := r.Discover(context.Background()); err != nil {
		t.Fatalf("Discover: %v", err)
	}

	decls := r.Declarations()
	if len(decls) != 2 {
		t.Fatalf("expected 2 declarations, got %d", len(decls))
	}
	if !r.IsRemote("read_query") {
		t.Error("read_query should be marked remote")
	}
	if r.IsRemote("triage_classify") {
		t.Error("triage_classify should not be marked remote")
	}
}

func TestDiscoverNameCollision(t *testing.T) {
	remote := &fakeRemote{tools: []mcp.ToolDefinition{
		{Name: "triage_classify", InputSchema: map[string]any{"type": "object"}},
	}}

	r := NewRegistry(remote, "describe_table", "patients", nil)
	r.Register(noopTool("triage_classify"))

	err := r.Discover(context.Background())
	if !errors.Is(err, ErrNameCollision) {
		t.Fatalf("expected ErrNameCollision, got %v", err)
	}
}

func TestDiscoverDropsMalformedRemote(t *testing.T) {
	remote := &fakeRemote{tools: []mcp.ToolDefinition{
		{Name: "good", InputSchema: map[string]any{"type": "object"}},
		{Name: "bad", InputSchema: map[string]any{"type": 42}},
		{Name: "", InputSchema: map[string]any{"type": "object"}},
	}}

	r := NewRegistry(remote, "describe_table", "patients", nil)
	if err := r.Discover(context.Background()); err != nil {
		t.Fatalf("Discover: %v", err)
	}

	decls := r.Declarations()
	if len(decls) != 1 || decls[0].Name != "good" {
		t.Fatalf("expected only the well-formed tool to survive, got %+v", decls)
	}
}

func TestDiscoverRemoteListFailure(t *testing.T) {
	remote := &fakeRemote{listErr: fmt.Errorf("server gone")}
	r := NewRegistry(remote, "describe_table", "patients", nil)
	if err := r.Discover(context.Background()); err == nil {
		t.Fatal("expected error when remote discovery fails")
	}
}

func TestDiscoverDeclarationOrderStable(t *testing.T) {
	names := []string{"triage_classify", "patient_lookup", "patient_register", "assign_queue"}

	r := NewRegistry(nil, "describe_table", "patients", nil)
	for _, name := range names {
		r.Register(noopTool(name))
	}
	if err := r.Discover(context.Background()); err != nil {
		t.Fatalf("Discover: %v", err)
	}

	decls := r.Declarations()
	if len(decls) != len(names) {
		t.Fatalf("expected %d declarations, got %d", len(names), len(decls))
	}
	for i, want := range names {
		if decls[i].Name != want {
			t.Errorf("declaration %d = %q, want %q (registration order must hold)", i, decls[i].Name, want)
		}
	}
}

func TestDiscoverWithoutRemote(t *testing.T) {
	r := NewRegistry(nil, "describe_table", "patients", nil)
	r.Register(noopTool("patient_lookup"))

	if err := r.Discover(context.Background()); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(r.Declarations()) != 1 {
		t.Fatalf("expected 1 declaration, got %d", len(r.Declarations()))
	}
}
