package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/halaclinic/intake/internal/llm"
)

// apologyText is the only execution-fault wording the model ever sees.
// The technical detail goes to the operator log.
const apologyText = "Sorry, that step did not work just now. Please continue, or ask the patient for the details again."

// MissingArgsError reports which required arguments a call omitted. Its
// text is fed back to the model verbatim so it can self-correct.
type MissingArgsError struct {
	Fields []string
}

func (e *MissingArgsError) Error() string {
	return "missing: " + strings.Join(e.Fields, ", ")
}

// Result is the dispatch outcome folded back into the conversation.
type Result struct {
	Text    string
	IsError bool
}

// Dispatcher executes model-issued function calls. It never returns an
// error to its caller; every fault becomes a Result the model can read.
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over the given registry. timeout
// bounds each individual call; zero means no per-call bound.
func NewDispatcher(registry *Registry, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		timeout:  timeout,
		logger:   logger.With("component", "dispatch"),
	}
}

// Dispatch runs one function call. Local tools are matched first; any
// other name is forwarded to the tool-server. Argument faults come back
// as a "missing: ..." text, execution faults as a short apology.
func (d *Dispatcher) Dispatch(ctx context.Context, call llm.FunctionCall) Result {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	result := d.dispatch(ctx, call)
	d.logger.Debug("tool dispatched",
		"tool", call.Name,
		"error", result.IsError,
		"duration", time.Since(start),
	)
	return result
}

func (d *Dispatcher) dispatch(ctx context.Context, call llm.FunctionCall) Result {
	if tool := d.registry.Get(call.Name); tool != nil {
		return d.runLocal(ctx, tool, call.Args)
	}

	if d.registry.remote != nil && d.registry.IsRemote(call.Name) {
		return d.runRemote(ctx, call)
	}

	d.logger.Warn("call to unknown tool", "tool", call.Name)
	return Result{
		Text:    fmt.Sprintf("There is no capability named %q.", call.Name),
		IsError: true,
	}
}

func (d *Dispatcher) runLocal(ctx context.Context, tool *Tool, args map[string]any) Result {
	text, err := tool.Handler(ctx, args)
	if err != nil {
		var missing *MissingArgsError
		if errors.As(err, &missing) {
			return Result{Text: missing.Error(), IsError: true}
		}
		d.logger.Error("local tool failed", "tool", tool.Name, "error", err)
		return Result{Text: apologyText, IsError: true}
	}
	return Result{Text: text}
}

func (d *Dispatcher) runRemote(ctx context.Context, call llm.FunctionCall) Result {
	args := call.Args
	// The schema introspection call fails outright without a table
	// argument, and the model omits it often enough that we default it.
	// The caller's map stays untouched so the recorded call carries
	// only what the model actually issued.
	if call.Name == d.registry.describeTool {
		if _, ok := args["table_name"]; !ok {
			copied := make(map[string]any, len(args)+1)
			maps.Copy(copied, args)
			copied["table_name"] = d.registry.defaultTable
			args = copied
		}
	}

	result, err := d.registry.remote.CallTool(ctx, call.Name, args)
	if err != nil {
		d.logger.Error("remote tool failed", "tool", call.Name, "error", err)
		return Result{Text: apologyText, IsError: true}
	}
	return Result{Text: result.FirstText()}
}
