// Package agent implements the ReAct loop: reason about the task, act by
// calling tools, observe the results, and repeat until the model produces a
// final answer or the iteration cap is hit. The loop is a small state
// machine so the halting bound (max iterations plus retry budget reasoning
// calls) is enforced structurally rather than by scattered checks.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	ctxwin "simplecoder/internal/context"
	"simplecoder/internal/logging"
	"simplecoder/internal/perception"
	"simplecoder/internal/tools"
	"simplecoder/internal/types"
)

// =============================================================================
// Loop States
// =============================================================================

// State is one phase of the ReAct loop.
type State int

const (
	StateReason State = iota // Ask the model for the next step
	StateAct                 // Execute the requested tool calls in order
	StateObserve             // Feed tool results back into the history
	StateDone                // Model returned a final answer
	StateFailed              // Iteration cap or unrecoverable backend error
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateReason:
		return "REASON"
	case StateAct:
		return "ACT"
	case StateObserve:
		return "OBSERVE"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// =============================================================================
// Configuration
// =============================================================================

const (
	// DefaultMaxIterations bounds the reasoning/acting cycles per task.
	DefaultMaxIterations = 10

	// DefaultRetryBudget is how many transient backend failures the loop
	// absorbs before giving up. Each retry is one extra reasoning call, so
	// the loop always halts within MaxIterations+RetryBudget calls.
	DefaultRetryBudget = 3

	// DefaultRetryBackoff is the base delay before the first retry; it
	// doubles on each subsequent one.
	DefaultRetryBackoff = 2 * time.Second
)

// Config holds the loop parameters.
type Config struct {
	MaxIterations int
	RetryBudget   int
	RetryBackoff  time.Duration
	Verbose       bool
}

// DefaultConfig returns the standard loop parameters.
func DefaultConfig() Config {
	return Config{
		MaxIterations: DefaultMaxIterations,
		RetryBudget:   DefaultRetryBudget,
		RetryBackoff:  DefaultRetryBackoff,
	}
}

// Result is the outcome of one loop invocation. Failed results still carry
// a best-effort answer describing how far the loop got; incompleteness is
// always signaled, never silently truncated away.
type Result struct {
	Answer     string
	Failed     bool
	Iterations int
	Retries    int

	// Err records the backend error that forced a FAILED transition.
	// It is nil for iteration-cap exhaustion.
	Err error
}

// =============================================================================
// Agent
// =============================================================================

// Agent drives the ReAct loop over a shared tool dispatcher and compactor.
type Agent struct {
	client     types.LLMClient
	dispatcher *tools.Dispatcher
	compactor  *ctxwin.Compactor
	config     Config
	out        io.Writer
}

// New creates an agent. Zero config fields fall back to defaults.
func New(client types.LLMClient, dispatcher *tools.Dispatcher, compactor *ctxwin.Compactor, config Config) *Agent {
	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultMaxIterations
	}
	if config.RetryBudget < 0 {
		config.RetryBudget = DefaultRetryBudget
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = DefaultRetryBackoff
	}
	return &Agent{
		client:     client,
		dispatcher: dispatcher,
		compactor:  compactor,
		config:     config,
		out:        os.Stdout,
	}
}

// SetOutput redirects progress output, mainly for tests.
func (a *Agent) SetOutput(w io.Writer) {
	a.out = w
}

// Run executes one task through the ReAct loop. The session's history is
// reset at the start; permission memory lives in the dispatcher's manager
// and survives across runs, so planning-mode subtasks share approvals.
func (a *Agent) Run(ctx context.Context, task string, session *types.Session) Result {
	session.Reset()
	session.Append(types.Message{Role: types.RoleSystem, Content: SystemPrompt})
	session.Append(types.Message{Role: types.RoleUser, Content: task})

	if a.config.Verbose {
		fmt.Fprintf(a.out, "Starting task: %s\n", task)
	} else {
		fmt.Fprintf(a.out, "* %s\n", preview(task, 60))
	}
	logging.Agent("Run started: %s", preview(task, 120))

	var (
		state       = StateReason
		retriesUsed = 0
		resp        *types.LLMToolResponse
		results     []types.ToolResult
		res         Result
	)

	for {
		logging.AgentDebug("State: %s (iteration %d, retries %d)", state, session.Iterations, retriesUsed)

		switch state {
		case StateReason:
			if session.Iterations >= a.config.MaxIterations {
				res.Failed = true
				res.Answer = a.bestEffort(session, fmt.Sprintf("Reached maximum iterations (%d) without a final answer.", a.config.MaxIterations))
				state = StateFailed
				continue
			}

			a.compact(session)

			if a.config.Verbose {
				fmt.Fprintf(a.out, "--- Iteration %d/%d ---\n", session.Iterations+1, a.config.MaxIterations)
			}

			r, err := a.client.Chat(ctx, session.History, a.dispatcher.Definitions())
			if err != nil {
				if transient(err) && retriesUsed < a.config.RetryBudget && ctx.Err() == nil {
					retriesUsed++
					backoff := a.config.RetryBackoff * time.Duration(1<<uint(retriesUsed-1))
					logging.Agent("Transient backend error (retry %d/%d, backing off %v): %v", retriesUsed, a.config.RetryBudget, backoff, err)
					if a.config.Verbose {
						fmt.Fprintf(a.out, "Backend busy, retrying in %v...\n", backoff)
					}
					if !sleep(ctx, backoff) {
						err = ctx.Err()
					} else {
						continue
					}
				}
				logging.Agent("Backend error is fatal: %v", err)
				res.Failed = true
				res.Err = err
				res.Answer = a.bestEffort(session, fmt.Sprintf("The reasoning backend failed: %v.", err))
				state = StateFailed
				continue
			}

			session.Iterations++
			resp = r
			if resp.IsFinal() {
				state = StateDone
			} else {
				state = StateAct
			}

		case StateAct:
			if a.config.Verbose {
				for _, call := range resp.ToolCalls {
					fmt.Fprintf(a.out, "Tool: %s %v\n", call.Name, call.Input)
				}
			}
			// Calls run strictly in order: a later call may depend on an
			// earlier call's side effects (write then read).
			results = a.dispatcher.DispatchAll(ctx, resp.ToolCalls)
			state = StateObserve

		case StateObserve:
			session.Append(types.Message{
				Role:      types.RoleAssistant,
				Content:   resp.Text,
				ToolCalls: resp.ToolCalls,
			})
			for _, result := range results {
				if a.config.Verbose {
					fmt.Fprintf(a.out, "Result: %s\n", preview(result.Content, 200))
				}
				session.Append(types.Message{
					Role:       types.RoleTool,
					Content:    result.Content,
					ToolCallID: result.ToolCallID,
				})
			}
			state = StateReason

		case StateDone:
			res.Answer = resp.Text
			res.Iterations = session.Iterations
			res.Retries = retriesUsed
			logging.Agent("Run finished after %d iterations (%d retries)", res.Iterations, res.Retries)
			return res

		case StateFailed:
			res.Iterations = session.Iterations
			res.Retries = retriesUsed
			logging.Agent("Run failed after %d iterations (%d retries): %s", res.Iterations, res.Retries, preview(res.Answer, 120))
			return res
		}
	}
}

// compact trims the session history before a reasoning call. Overflow is a
// signal, not an error: the loop proceeds with the best achievable history.
func (a *Agent) compact(session *types.Session) {
	cr := a.compactor.Compact(session.History)
	if cr.Dropped > 0 && a.config.Verbose {
		fmt.Fprintf(a.out, "Compacted history: dropped %d messages (%d -> %d tokens)\n", cr.Dropped, cr.TokensBefore, cr.TokensAfter)
	}
	if cr.Overflow {
		fmt.Fprintf(a.out, "Warning: history still exceeds the context budget after compaction\n")
	}
	session.History = cr.Compacted
}

// bestEffort builds the partial answer for a FAILED termination from the
// most recent assistant output, if any.
func (a *Agent) bestEffort(session *types.Session, reason string) string {
	for i := len(session.History) - 1; i >= 0; i-- {
		msg := session.History[i]
		if msg.Role == types.RoleAssistant && msg.Content != "" {
			return fmt.Sprintf("%s The task is incomplete. Last progress: %s", reason, msg.Content)
		}
	}
	return fmt.Sprintf("%s The task is incomplete.", reason)
}

// transient reports whether a backend error is worth retrying: rate limits
// and timeouts. Everything else (auth failures, malformed requests,
// cancellation) is fatal immediately.
func transient(err error) bool {
	if errors.Is(err, perception.ErrRateLimited) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// sleep waits for d or until the context is done; it reports whether the
// full wait completed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
