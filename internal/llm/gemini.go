package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/halaclinic/intake/internal/httpkit"
)

// GeminiClient talks to the Gemini generateContent API. Only the
// non-streaming endpoint is used; one request per loop iteration.
type GeminiClient struct {
	model      string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGeminiClient creates a Gemini client. timeout bounds each model
// call; zero means 60 seconds.
func NewGeminiClient(model, baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *GeminiClient {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiClient{
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpkit.NewClient(httpkit.WithTimeout(timeout)),
		logger:     logger.With("provider", "gemini", "model", model),
	}
}

// Wire format. System messages fold into systemInstruction, assistant
// turns use role "model", and function responses ride a "user" content
// per the Gemini tool-calling contract.

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	Tools             []geminiTool    `json:"tools,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations"`
}

type geminiFunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Chat implements Client.
func (c *GeminiClient) Chat(ctx context.Context, messages []Message, tools []ToolDeclaration) (*ChatResponse, error) {
	payload := geminiRequest{
		Tools: toGeminiTools(tools),
	}

	system, contents := toGeminiContents(messages)
	payload.Contents = contents
	if strings.TrimSpace(system) != "" {
		payload.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: system}},
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Log(ctx, LevelTrace, "request payload", "json", string(raw))

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.baseURL, c.model, url.QueryEscape(c.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("model request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Log(ctx, LevelTrace, "response payload", "status", resp.StatusCode, "json", string(body))

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("model API error", "status", resp.StatusCode, "body", truncateForLog(body))
		return nil, fmt.Errorf("model API error %d", resp.StatusCode)
	}

	var out geminiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Candidates) == 0 {
		return nil, fmt.Errorf("model returned no candidates")
	}

	chat := &ChatResponse{
		Model:        c.model,
		CreatedAt:    time.Now(),
		InputTokens:  out.UsageMetadata.PromptTokenCount,
		OutputTokens: out.UsageMetadata.CandidatesTokenCount,
	}

	var textParts []string
	for _, part := range out.Candidates[0].Content.Parts {
		if strings.TrimSpace(part.Text) != "" {
			textParts = append(textParts, part.Text)
		}
		if part.FunctionCall != nil {
			chat.Calls = append(chat.Calls, FunctionCall{
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			})
		}
	}
	chat.Text = strings.TrimSpace(strings.Join(textParts, "\n"))

	return chat, nil
}

// Ping implements Client by listing the configured model.
func (c *GeminiClient) Ping(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/models/%s?key=%s", c.baseURL, c.model, url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model API error %d", resp.StatusCode)
	}
	return nil
}

// toGeminiContents splits out system text and converts the remaining
// turns to wire contents. Messages with nothing usable are skipped
// here rather than mutated upstream.
func toGeminiContents(messages []Message) (string, []geminiContent) {
	var systemLines []string
	out := make([]geminiContent, 0, len(messages))

	for _, m := range messages {
		if m.Empty() {
			continue
		}
		switch m.Role {
		case RoleSystem:
			if strings.TrimSpace(m.Text) != "" {
				systemLines = append(systemLines, m.Text)
			}
		case RoleUser:
			if m.FunctionResponse != nil {
				out = append(out, geminiContent{
					Role: "user",
					Parts: []geminiPart{{
						FunctionResponse: &geminiFunctionResponse{
							Name:     m.FunctionResponse.Name,
							Response: m.FunctionResponse.Result,
						},
					}},
				})
				continue
			}
			out = append(out, geminiContent{
				Role:  "user",
				Parts: []geminiPart{{Text: m.Text}},
			})
		case RoleAssistant:
			parts := make([]geminiPart, 0, 2)
			if strings.TrimSpace(m.Text) != "" {
				parts = append(parts, geminiPart{Text: m.Text})
			}
			if m.FunctionCall != nil {
				args := m.FunctionCall.Args
				if args == nil {
					args = map[string]any{}
				}
				parts = append(parts, geminiPart{
					FunctionCall: &geminiFunctionCall{
						Name: m.FunctionCall.Name,
						Args: args,
					},
				})
			}
			if len(parts) > 0 {
				out = append(out, geminiContent{Role: "model", Parts: parts})
			}
		}
	}

	return strings.Join(systemLines, "\n\n"), out
}

func toGeminiTools(tools []ToolDeclaration) []geminiTool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]geminiFunctionDecl, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, geminiFunctionDecl{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return []geminiTool{{FunctionDeclarations: decls}}
}

// truncateForLog keeps error bodies readable in the operator log.
func truncateForLog(b []byte) string {
	const max = 500
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
