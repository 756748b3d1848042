package types

import "context"

// LLMClient defines the interface for the reasoning backend.
type LLMClient interface {
	// Complete sends a single prompt and returns the raw completion text.
	Complete(ctx context.Context, prompt string) (string, error)

	// Chat sends the full conversation with tool definitions and returns
	// either a final answer or tool calls.
	Chat(ctx context.Context, messages []Message, tools []ToolDefinition) (*LLMToolResponse, error)
}
