// Package types holds the shared data model for simplecoder: conversation
// messages, tool calls and results, and the LLM client interface. Keeping
// these in one leaf package avoids import cycles between the agent loop,
// the tool registry, and the perception clients.
package types

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in the conversation history. Messages are immutable
// once appended; conversation order is causal order.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls is set on assistant messages that request tool use.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool-role message back to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall represents a tool invocation requested by the LLM.
type ToolCall struct {
	ID    string                 `json:"id"`    // Unique ID for this tool use
	Name  string                 `json:"name"`  // Tool name to invoke
	Input map[string]interface{} `json:"input"` // Tool arguments
}

// ToolResult represents the outcome of executing a tool call.
// Error results are fed back to the LLM as observations, never raised.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
}

// ToolDefinition describes a tool in the form the LLM tool-calling
// protocol consumes.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"` // JSON Schema for parameters
}

// UsageMetadata captures token usage metrics from the LLM.
type UsageMetadata struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// LLMToolResponse is the tagged result of one reasoning call: either a
// final text answer (no tool calls) or a batch of tool invocations.
type LLMToolResponse struct {
	Text       string        `json:"text"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	StopReason string        `json:"stop_reason"` // "end_turn", "tool_use"
	Usage      UsageMetadata `json:"usage"`
}

// IsFinal reports whether the response is a final answer rather than a
// request for tool execution.
func (r *LLMToolResponse) IsFinal() bool {
	return len(r.ToolCalls) == 0
}

// Session owns the state of one agent invocation: the conversation history
// and the iteration counter. It is mutated only by the single active loop.
// Planning mode runs every subtask against the same Session, so subtasks
// share history budget accounting and permission memory.
type Session struct {
	ID          string
	History     []Message
	AutoApprove bool
	Iterations  int
	StartedAt   time.Time
}

// NewSession creates an empty session.
func NewSession(autoApprove bool) *Session {
	return &Session{
		ID:          uuid.New().String()[:8],
		AutoApprove: autoApprove,
		StartedAt:   time.Now(),
	}
}

// Append adds a message to the history.
func (s *Session) Append(msg Message) {
	s.History = append(s.History, msg)
}

// Reset clears the history for a fresh loop invocation while keeping
// session identity and the auto-approve setting.
func (s *Session) Reset() {
	s.History = nil
	s.Iterations = 0
}
