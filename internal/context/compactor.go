// Package context manages the conversation history budget. When the
// estimated token count of the history approaches the model's context
// window, older turns are dropped while the system prompt and the most
// recent exchanges are preserved.
package context

import (
	"fmt"

	"simplecoder/internal/logging"
	"simplecoder/internal/types"
)

// =============================================================================
// History Compactor
// =============================================================================

const (
	// DefaultKeepRecent is how many trailing messages survive compaction.
	DefaultKeepRecent = 10

	// DefaultCompactThreshold is the fraction of the budget at which
	// compaction kicks in. Below it the history passes through untouched.
	DefaultCompactThreshold = 0.8
)

// Compactor trims conversation history to fit a token budget.
type Compactor struct {
	maxTokens  int
	keepRecent int
	threshold  float64
	counter    *TokenCounter
}

// NewCompactor creates a compactor for the given token budget. Non-positive
// keepRecent falls back to DefaultKeepRecent; a threshold outside (0, 1]
// falls back to DefaultCompactThreshold.
func NewCompactor(maxTokens, keepRecent int, threshold float64) *Compactor {
	if keepRecent <= 0 {
		keepRecent = DefaultKeepRecent
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultCompactThreshold
	}
	return &Compactor{
		maxTokens:  maxTokens,
		keepRecent: keepRecent,
		threshold:  threshold,
		counter:    NewTokenCounter(),
	}
}

// Result describes a compaction pass.
type Result struct {
	// Compacted is the (possibly reduced) history. When no compaction was
	// needed it is the input slice unchanged.
	Compacted []types.Message

	// Dropped is the number of messages removed.
	Dropped int

	// TokensBefore and TokensAfter are estimates around the pass.
	TokensBefore int
	TokensAfter  int

	// Overflow is true when even the compacted history exceeds the budget.
	// The caller decides whether to proceed or abort; it is not an error.
	Overflow bool
}

// Compact reduces history to fit the token budget. The first message
// (system prompt) and the last keepRecent messages are always preserved.
// Under the threshold the history is returned as-is. Compact is
// idempotent: compacting an already-compacted history changes nothing
// further.
func (c *Compactor) Compact(history []types.Message) Result {
	before := c.counter.CountHistory(history)
	res := Result{
		Compacted:    history,
		TokensBefore: before,
		TokensAfter:  before,
	}

	if float64(before) < c.threshold*float64(c.maxTokens) {
		return res
	}

	// Nothing to gain: dropping would be offset by the marker message, and
	// an already-compacted history (first + marker + keepRecent) must pass
	// through unchanged.
	if len(history) <= c.keepRecent+2 {
		res.Overflow = before > c.maxTokens
		if res.Overflow {
			logging.Context("History overflows budget (%d > %d) with nothing left to drop", before, c.maxTokens)
		}
		return res
	}

	// Advance the cut past any tool-role messages at the tail boundary:
	// a tool result whose assistant tool call was dropped is an orphan the
	// backend protocol rejects.
	start := len(history) - c.keepRecent
	for start < len(history) && history[start].Role == types.RoleTool {
		start++
	}

	head := history[:1]
	tail := history[start:]
	dropped := start - 1

	compacted := make([]types.Message, 0, 1+1+len(tail))
	compacted = append(compacted, head...)
	compacted = append(compacted, types.Message{
		Role:    types.RoleUser,
		Content: fmt.Sprintf("[%d earlier messages were removed to stay within the context window]", dropped),
	})
	compacted = append(compacted, tail...)

	after := c.counter.CountHistory(compacted)
	res.Compacted = compacted
	res.Dropped = dropped
	res.TokensAfter = after
	res.Overflow = after > c.maxTokens

	logging.Context("Compacted history: %d -> %d messages, %d -> %d tokens", len(history), len(compacted), before, after)
	if res.Overflow {
		logging.Context("Compacted history still exceeds budget (%d > %d)", after, c.maxTokens)
	}
	return res
}
