// Package tools defines the capabilities available to the agent and
// the dispatch boundary that executes them.
//
// Capabilities come from two sources: a fixed set of local clinic
// operations implemented here, and a dynamically discovered set from
// the remote tool-server. Both are cleaned into one declaration list
// the model can consume (see schema.go).
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/halaclinic/intake/internal/llm"
	"github.com/halaclinic/intake/internal/mcp"
)

// ErrNameCollision means a remote tool shares a name with a local one.
// This is a configuration error, not a runtime condition to paper over.
var ErrNameCollision = errors.New("tool name collision between local and remote sets")

// Tool represents one locally implemented capability.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     func(ctx context.Context, args map[string]any) (string, error)
}

// RemoteServer is the slice of the tool-server client the registry and
// dispatcher need. *mcp.Client satisfies it.
type RemoteServer interface {
	ListTools(ctx context.Context) ([]mcp.ToolDefinition, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.ToolResult, error)
}

// Registry holds the merged capability set. Declarations are built once
// by Discover and are immutable afterward.
type Registry struct {
	local      map[string]*Tool
	localOrder []string
	remote     RemoteServer
	logger     *slog.Logger

	remoteNames  map[string]bool
	declarations []llm.ToolDeclaration

	describeTool string
	defaultTable string
}

// NewRegistry creates a registry. remote may be nil when no tool-server
// is configured; describeTool and defaultTable configure the schema
// introspection default (see Dispatcher).
func NewRegistry(remote RemoteServer, describeTool, defaultTable string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		local:        make(map[string]*Tool),
		remote:       remote,
		logger:       logger.With("component", "tools"),
		remoteNames:  make(map[string]bool),
		describeTool: describeTool,
		defaultTable: defaultTable,
	}
}

// Register adds a local tool. Call before Discover. Registration
// order is the order tools are declared to the model, so the prompt
// stays stable run to run.
func (r *Registry) Register(t *Tool) {
	if _, exists := r.local[t.Name]; !exists {
		r.localOrder = append(r.localOrder, t.Name)
	}
	r.local[t.Name] = t
}

// Get retrieves a local tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.local[name]
}

// IsRemote reports whether name was discovered from the tool-server.
func (r *Registry) IsRemote(name string) bool {
	return r.remoteNames[name]
}

// Discover builds the merged declaration list: local tools first, then
// the remote set from tools/list. A declaration whose schema cannot be
// cleaned is dropped with a warning; a remote name that shadows a local
// one fails discovery outright.
func (r *Registry) Discover(ctx context.Context) error {
	decls := make([]llm.ToolDeclaration, 0, len(r.local))

	for _, name := range r.localOrder {
		t := r.local[name]
		cleaned, err := CleanSchema(t.Parameters)
		if err != nil {
			r.logger.Warn("dropping local tool with invalid schema", "tool", t.Name, "error", err)
			continue
		}
		decls = append(decls, llm.ToolDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  cleaned,
		})
	}

	if r.remote != nil {
		defs, err := r.remote.ListTools(ctx)
		if err != nil {
			return fmt.Errorf("discover remote tools: %w", err)
		}
		for _, def := range defs {
			if def.Name == "" {
				r.logger.Warn("dropping unnamed remote tool")
				continue
			}
			if _, exists := r.local[def.Name]; exists {
				return fmt.Errorf("%w: %s", ErrNameCollision, def.Name)
			}
			cleaned, err := CleanSchema(def.InputSchema)
			if err != nil {
				r.logger.Warn("dropping remote tool with invalid schema", "tool", def.Name, "error", err)
				continue
			}
			r.remoteNames[def.Name] = true
			decls = append(decls, llm.ToolDeclaration{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  cleaned,
			})
		}
	}

	r.declarations = decls
	r.logger.Info("capability set assembled",
		"local", len(r.local), "remote", len(r.remoteNames), "declared", len(decls))
	return nil
}

// Declarations returns the merged, cleaned declaration list. Empty
// until Discover has run.
func (r *Registry) Declarations() []llm.ToolDeclaration {
	return r.declarations
}
