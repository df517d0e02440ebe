// Package memory persists conversations and tool-call provenance.
//
// The stored message log is append-only: prompt assembly reads a
// bounded projection of it, and nothing ever rewrites or reorders what
// was recorded, so any request can be replayed for audit.
package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/halaclinic/intake/internal/llm"
)

const dsnOptions = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// ToolCall is one recorded capability invocation.
type ToolCall struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	ToolName       string     `json:"tool_name"`
	Arguments      string     `json:"arguments"`
	Result         string     `json:"result,omitempty"`
	Error          string     `json:"error,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Store is the SQLite-backed conversation store.
type Store struct {
	db          *sql.DB
	maxMessages int
}

// NewStore opens (creating if needed) the conversation database.
// maxMessages caps how much history GetMessages returns; zero or
// negative means the default of 100.
func NewStore(path string, maxMessages int) (*Store, error) {
	if maxMessages <= 0 {
		maxMessages = 100
	}

	db, err := sql.Open("sqlite", path+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("open conversation database: %w", err)
	}

	s := &Store{db: db, maxMessages: maxMessages}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate conversation database: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		function_call TEXT,
		function_response TEXT,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);

	CREATE TABLE IF NOT EXISTS tool_calls (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		tool_name TEXT NOT NULL,
		arguments TEXT NOT NULL,
		result TEXT,
		error TEXT,
		started_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_conversation ON tool_calls(conversation_id, started_at);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_tool ON tool_calls(tool_name);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// AppendMessage records one turn at the end of the conversation.
func (s *Store) AppendMessage(conversationID string, msg llm.Message) error {
	now := time.Now()

	if _, err := s.db.Exec(`
		INSERT INTO conversations (id, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at
	`, conversationID, now, now); err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}

	var callJSON, respJSON any
	if msg.FunctionCall != nil {
		data, err := json.Marshal(msg.FunctionCall)
		if err != nil {
			return fmt.Errorf("marshal function call: %w", err)
		}
		callJSON = string(data)
	}
	if msg.FunctionResponse != nil {
		data, err := json.Marshal(msg.FunctionResponse)
		if err != nil {
			return fmt.Errorf("marshal function response: %w", err)
		}
		respJSON = string(data)
	}

	_, err := s.db.Exec(`
		INSERT INTO messages (id, conversation_id, seq, role, text, function_call, function_response, created_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = ?), ?, ?, ?, ?, ?)
	`, uuid.New().String(), conversationID, conversationID, string(msg.Role), msg.Text, callJSON, respJSON, now)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetMessages returns the most recent turns of a conversation in
// order, capped at the store's message limit. The cap is the
// operational bound on prompt growth across many user turns.
func (s *Store) GetMessages(conversationID string) ([]llm.Message, error) {
	rows, err := s.db.Query(`
		SELECT role, text, function_call, function_response FROM (
			SELECT seq, role, text, function_call, function_response
			FROM messages WHERE conversation_id = ?
			ORDER BY seq DESC LIMIT ?
		) ORDER BY seq
	`, conversationID, s.maxMessages)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []llm.Message
	for rows.Next() {
		var role, text string
		var callJSON, respJSON sql.NullString
		if err := rows.Scan(&role, &text, &callJSON, &respJSON); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		msg := llm.Message{Role: llm.Role(role), Text: text}
		if callJSON.Valid {
			var fc llm.FunctionCall
			if err := json.Unmarshal([]byte(callJSON.String), &fc); err == nil {
				msg.FunctionCall = &fc
			}
		}
		if respJSON.Valid {
			var fr llm.FunctionResponse
			if err := json.Unmarshal([]byte(respJSON.String), &fr); err == nil {
				msg.FunctionResponse = &fr
			}
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The cap can slice between a functionCall and its response. A
	// window must never open with a response whose call fell outside
	// it, so trim the leading edge past any orphan responses.
	for len(out) > 0 && out[0].FunctionResponse != nil {
		out = out[1:]
	}
	return out, nil
}

// RecordToolCall records the start of a capability invocation and
// returns its audit ID.
func (s *Store) RecordToolCall(conversationID, toolName, arguments string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(`
		INSERT INTO tool_calls (id, conversation_id, tool_name, arguments, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, conversationID, toolName, arguments, time.Now())
	if err != nil {
		return "", fmt.Errorf("record tool call: %w", err)
	}
	return id, nil
}

// CompleteToolCall records the outcome of a capability invocation.
func (s *Store) CompleteToolCall(id, result, errMsg string) error {
	_, err := s.db.Exec(`
		UPDATE tool_calls SET result = ?, error = ?, completed_at = ? WHERE id = ?
	`, result, errMsg, time.Now(), id)
	if err != nil {
		return fmt.Errorf("complete tool call: %w", err)
	}
	return nil
}

// GetToolCalls returns recorded calls, most recent first. An empty
// conversationID means all conversations.
func (s *Store) GetToolCalls(conversationID string, limit int) ([]ToolCall, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, conversation_id, tool_name, arguments,
		       COALESCE(result, ''), COALESCE(error, ''), started_at, completed_at
		FROM tool_calls`
	args := []any{}
	if conversationID != "" {
		query += ` WHERE conversation_id = ?`
		args = append(args, conversationID)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	return s.queryToolCalls(query, args...)
}

// GetToolCallsByName returns recorded calls for one tool, most recent first.
func (s *Store) GetToolCallsByName(toolName string, limit int) ([]ToolCall, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryToolCalls(`
		SELECT id, conversation_id, tool_name, arguments,
		       COALESCE(result, ''), COALESCE(error, ''), started_at, completed_at
		FROM tool_calls WHERE tool_name = ?
		ORDER BY started_at DESC LIMIT ?
	`, toolName, limit)
}

func (s *Store) queryToolCalls(query string, args ...any) ([]ToolCall, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tool calls: %w", err)
	}
	defer rows.Close()

	var out []ToolCall
	for rows.Next() {
		var tc ToolCall
		var completed sql.NullTime
		if err := rows.Scan(&tc.ID, &tc.ConversationID, &tc.ToolName, &tc.Arguments,
			&tc.Result, &tc.Error, &tc.StartedAt, &completed); err != nil {
			return nil, fmt.Errorf("scan tool call: %w", err)
		}
		if completed.Valid {
			tc.CompletedAt = &completed.Time
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// Stats reports aggregate counts for the ops endpoint.
func (s *Store) Stats() map[string]any {
	stats := map[string]any{}

	var conversations, messages, toolCalls int
	s.db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&conversations)
	s.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&messages)
	s.db.QueryRow(`SELECT COUNT(*) FROM tool_calls`).Scan(&toolCalls)

	stats["conversations"] = conversations
	stats["messages"] = messages
	stats["tool_calls"] = toolCalls
	return stats
}
