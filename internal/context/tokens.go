package context

import (
	"simplecoder/internal/types"
)

// =============================================================================
// Token Counting Utilities
// =============================================================================
// Token estimation for context budget management. The heuristic is ~4
// characters per token, rounded up so an estimate never undercounts to zero.

// TokenCounter provides token counting functionality.
type TokenCounter struct {
	// Calibration factor (characters per token)
	charsPerToken int
}

// NewTokenCounter creates a new token counter with default calibration.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{charsPerToken: 4}
}

// CountString estimates tokens in a string, rounding up.
func (tc *TokenCounter) CountString(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + tc.charsPerToken - 1) / tc.charsPerToken
}

// CountMessage estimates tokens for a single message, including its tool
// call payloads.
func (tc *TokenCounter) CountMessage(msg types.Message) int {
	tokens := tc.CountString(msg.Content)
	for _, tc2 := range msg.ToolCalls {
		tokens += 4 // call framing overhead
		tokens += (len(tc2.Name) + 3) / 4
		for k, v := range tc2.Input {
			tokens += (len(k) + 3) / 4
			if s, ok := v.(string); ok {
				tokens += (len(s) + 3) / 4
			} else {
				tokens += 2
			}
		}
	}
	return tokens
}

// CountHistory estimates tokens for a full conversation history.
func (tc *TokenCounter) CountHistory(history []types.Message) int {
	total := 0
	for _, msg := range history {
		total += tc.CountMessage(msg)
	}
	return total
}
