// Package agent implements the core intake loop.
//
// One Run call is one user turn: the loop assembles the conversation,
// lets the model call tools a bounded number of times, folds each
// (truncated) result back in as a synthetic turn pair, and returns the
// model's final text together with tool provenance and any severity
// signal seen along the way.
package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/halaclinic/intake/internal/llm"
	"github.com/halaclinic/intake/internal/memory"
	"github.com/halaclinic/intake/internal/tools"
	"github.com/halaclinic/intake/internal/triage"
)

const (
	// fallbackText is returned when the model itself fails or produces
	// nothing usable. It must always be safe to show a patient.
	fallbackText = "I'm sorry, I'm having trouble right now. Please see the front desk and a staff member will help you."

	// truncationMarker tells the model a clipped result has more data.
	truncationMarker = "\n[truncated; ask for the rest if needed]"
)

// Request is one user turn.
type Request struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Text           string `json:"text"`
}

// Result is what one Run call produced.
type Result struct {
	ConversationID string   `json:"conversation_id"`
	Text           string   `json:"text"`
	Model          string   `json:"model,omitempty"`
	Severity       string   `json:"severity,omitempty"`
	UsedTools      bool     `json:"used_tools"`
	ToolCallCount  int      `json:"tool_call_count"`
	ToolsInvoked   []string `json:"tools_invoked,omitempty"`
}

// Loop drives bounded tool-use conversations with the model.
type Loop struct {
	logger     *slog.Logger
	client     llm.Client
	registry   *tools.Registry
	dispatcher *tools.Dispatcher
	store      *memory.Store

	clinicName    string
	maxIterations int
	outputBudget  int
}

// NewLoop creates the intake loop. maxIterations bounds tool executions
// per request; outputBudget is the character cap on each tool result
// folded back into the conversation.
func NewLoop(
	logger *slog.Logger,
	client llm.Client,
	registry *tools.Registry,
	dispatcher *tools.Dispatcher,
	store *memory.Store,
	clinicName string,
	maxIterations, outputBudget int,
) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if maxIterations <= 0 {
		maxIterations = 4
	}
	if outputBudget <= 0 {
		outputBudget = 4000
	}
	return &Loop{
		logger:        logger.With("component", "agent"),
		client:        client,
		registry:      registry,
		dispatcher:    dispatcher,
		store:         store,
		clinicName:    clinicName,
		maxIterations: maxIterations,
		outputBudget:  outputBudget,
	}
}

// Run processes one user turn to completion.
func (l *Loop) Run(ctx context.Context, req *Request) (*Result, error) {
	convID := req.ConversationID
	if convID == "" {
		convID = uuid.New().String()
	}

	logger := l.logger.With("conversation", convID)
	logger.Info("turn started", "text_len", len(req.Text))

	// The stored log is the audit record; the prompt is assembled from
	// a filtered projection of it, never the other way around.
	log := []llm.Message{{Role: llm.RoleSystem, Text: systemPrompt(l.clinicName)}}
	history, err := l.store.GetMessages(convID)
	if err != nil {
		logger.Error("loading history failed, continuing without", "error", err)
	}
	log = append(log, history...)

	userMsg := llm.Message{Role: llm.RoleUser, Text: req.Text}
	log = append(log, userMsg)
	l.persist(convID, userMsg, logger)

	result := &Result{ConversationID: convID}
	decls := l.registry.Declarations()

	lastText := ""
	for iteration := 0; ; iteration++ {
		start := time.Now()
		resp, err := l.client.Chat(ctx, filterEmpty(log), decls)
		if err != nil {
			// A model fault is terminal for the request. One safe
			// message, no retry storm.
			logger.Error("model call failed", "iteration", iteration, "error", err)
			result.Text = fallbackText
			l.persist(convID, llm.Message{Role: llm.RoleAssistant, Text: fallbackText}, logger)
			return result, nil
		}

		result.Model = resp.Model
		if resp.Text != "" {
			lastText = resp.Text
		}

		if len(resp.Calls) == 0 {
			result.Text = resp.Text
			if result.Text == "" {
				result.Text = fallbackText
			}
			break
		}

		if iteration >= l.maxIterations {
			logger.Warn("iteration bound reached", "bound", l.maxIterations)
			result.Text = lastText
			if result.Text == "" {
				result.Text = fallbackText
			}
			break
		}

		// Only the first requested call runs this iteration. The model
		// re-requests the rest after seeing this one's result.
		call := resp.Calls[0]
		if len(resp.Calls) > 1 {
			logger.Debug("discarding extra function calls", "count", len(resp.Calls)-1)
		}
		logger.Info("executing tool", "iteration", iteration, "tool", call.Name,
			"model_latency", time.Since(start))

		toolResult := l.execute(ctx, convID, call, logger)

		if call.Name == "triage_classify" && !toolResult.IsError {
			if severity, ok := triage.ExtractSignal(toolResult.Text); ok {
				result.Severity = string(severity)
			}
		}

		result.UsedTools = true
		result.ToolCallCount++
		result.ToolsInvoked = append(result.ToolsInvoked, call.Name)

		folded := truncate(toolResult.Text, l.outputBudget)
		callMsg := llm.Message{
			Role:         llm.RoleAssistant,
			FunctionCall: &llm.FunctionCall{Name: call.Name, Args: call.Args},
		}
		responseMsg := llm.Message{
			Role: llm.RoleUser,
			FunctionResponse: &llm.FunctionResponse{
				Name:   call.Name,
				Result: map[string]any{"content": folded},
			},
		}
		log = append(log, callMsg, responseMsg)
		l.persist(convID, callMsg, logger)
		l.persist(convID, responseMsg, logger)

		// Cancellation is observed between iterations so the tool call
		// that was already in flight has finished cleanly.
		if ctx.Err() != nil {
			logger.Warn("request cancelled", "iteration", iteration)
			result.Text = lastText
			if result.Text == "" {
				result.Text = fallbackText
			}
			l.persist(convID, llm.Message{Role: llm.RoleAssistant, Text: result.Text}, logger)
			return result, nil
		}
	}

	l.persist(convID, llm.Message{Role: llm.RoleAssistant, Text: result.Text}, logger)

	logger.Info("turn completed",
		"tool_calls", result.ToolCallCount,
		"severity", result.Severity,
	)
	return result, nil
}

// execute runs one tool call with audit bookkeeping. The call keeps its
// own timeout but is detached from the request's cancellation so an
// abort never interrupts a write in progress.
func (l *Loop) execute(ctx context.Context, convID string, call llm.FunctionCall, logger *slog.Logger) tools.Result {
	argsJSON, _ := json.Marshal(call.Args)
	auditID, err := l.store.RecordToolCall(convID, call.Name, string(argsJSON))
	if err != nil {
		logger.Error("recording tool call failed", "tool", call.Name, "error", err)
	}

	toolResult := l.dispatcher.Dispatch(context.WithoutCancel(ctx), call)

	if auditID != "" {
		errText := ""
		if toolResult.IsError {
			errText = toolResult.Text
		}
		if err := l.store.CompleteToolCall(auditID, toolResult.Text, errText); err != nil {
			logger.Error("completing tool call failed", "tool", call.Name, "error", err)
		}
	}
	return toolResult
}

// persist appends to the stored log; storage trouble is logged, never
// allowed to break the conversation.
func (l *Loop) persist(convID string, msg llm.Message, logger *slog.Logger) {
	if err := l.store.AppendMessage(convID, msg); err != nil {
		logger.Error("storing message failed", "role", msg.Role, "error", err)
	}
}

// filterEmpty projects the log down to messages the model can use. The
// underlying slice is never modified.
func filterEmpty(log []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(log))
	for _, m := range log {
		if !m.Empty() {
			out = append(out, m)
		}
	}
	return out
}

// truncate clips s to at most budget bytes, ending with the truncation
// marker when anything was cut. The cut backs up to a rune boundary so
// a multi-byte character is never split into invalid UTF-8.
func truncate(s string, budget int) string {
	if len(s) <= budget {
		return s
	}
	keep := budget - len(truncationMarker)
	if keep < 0 {
		keep = 0
	}
	for keep > 0 && !utf8.RuneStart(s[keep]) {
		keep--
	}
	return s[:keep] + truncationMarker
}
