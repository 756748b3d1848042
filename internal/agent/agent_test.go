package agent

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	ctxwin "simplecoder/internal/context"
	"simplecoder/internal/perception"
	"simplecoder/internal/permissions"
	"simplecoder/internal/tools"
	"simplecoder/internal/types"
)

// chatStep is one scripted backend response: either a response or an error.
type chatStep struct {
	resp *types.LLMToolResponse
	err  error
}

// mockClient replays scripted steps; the last step repeats forever so an
// adversarial backend can be expressed as a single never-final step.
type mockClient struct {
	steps   []chatStep
	calls   int
	history []types.Message
}

func (m *mockClient) Complete(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("not used")
}

func (m *mockClient) Chat(ctx context.Context, messages []types.Message, defs []types.ToolDefinition) (*types.LLMToolResponse, error) {
	m.calls++
	m.history = append([]types.Message(nil), messages...)
	if len(m.steps) == 0 {
		return &types.LLMToolResponse{Text: "done", StopReason: "end_turn"}, nil
	}
	step := m.steps[0]
	if len(m.steps) > 1 {
		m.steps = m.steps[1:]
	}
	return step.resp, step.err
}

func final(text string) chatStep {
	return chatStep{resp: &types.LLMToolResponse{Text: text, StopReason: "end_turn"}}
}

func callTool(id, name string, input map[string]any) chatStep {
	return chatStep{resp: &types.LLMToolResponse{
		StopReason: "tool_use",
		ToolCalls:  []types.ToolCall{{ID: id, Name: name, Input: input}},
	}}
}

type denyPrompter struct{}

func (denyPrompter) Prompt(operationKind, detail string) (permissions.Decision, error) {
	return permissions.Denied, nil
}

func newTestAgent(t *testing.T, client types.LLMClient, autoApprove bool) *Agent {
	t.Helper()

	registry := tools.NewRegistry()
	registry.MustRegister(&tools.Tool{
		Name:        "echo",
		Description: "Echoes back the input text.",
		Schema: tools.ToolSchema{
			Required: []string{"text"},
			Properties: map[string]tools.Property{
				"text": {Type: "string", Description: "Text to echo"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			text, _ := args["text"].(string)
			return "echo: " + text, nil
		},
	})
	registry.MustRegister(&tools.Tool{
		Name:          "write_file",
		Description:   "Pretends to write a file.",
		Mutating:      true,
		OperationKind: "write_file",
		Schema: tools.ToolSchema{
			Required: []string{"filepath"},
			Properties: map[string]tools.Property{
				"filepath": {Type: "string", Description: "Path to write"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "written", nil
		},
	})

	perms := permissions.NewManager(autoApprove, denyPrompter{})
	dispatcher := tools.NewDispatcher(registry, perms, 0)
	compactor := ctxwin.NewCompactor(128000, 10, 0)

	agent := New(client, dispatcher, compactor, Config{
		MaxIterations: 5,
		RetryBudget:   2,
		RetryBackoff:  time.Millisecond,
	})
	agent.SetOutput(io.Discard)
	return agent
}

func TestRunFinalAnswer(t *testing.T) {
	client := &mockClient{steps: []chatStep{final("All done.")}}
	agent := newTestAgent(t, client, true)

	session := types.NewSession(true)
	res := agent.Run(context.Background(), "say hello", session)

	if res.Failed {
		t.Fatalf("Run failed: %+v", res)
	}
	if res.Answer != "All done." {
		t.Errorf("Answer = %q, want %q", res.Answer, "All done.")
	}
	if res.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", res.Iterations)
	}
	if client.history[0].Role != types.RoleSystem {
		t.Errorf("first message role = %s, want system", client.history[0].Role)
	}
	if client.history[1].Content != "say hello" {
		t.Errorf("task message = %q", client.history[1].Content)
	}
}

func TestRunToolCallThenAnswer(t *testing.T) {
	client := &mockClient{steps: []chatStep{
		callTool("call_0", "echo", map[string]any{"text": "hi"}),
		final("Echoed."),
	}}
	agent := newTestAgent(t, client, true)

	session := types.NewSession(true)
	res := agent.Run(context.Background(), "echo hi", session)

	if res.Failed {
		t.Fatalf("Run failed: %+v", res)
	}
	if res.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", res.Iterations)
	}

	// The second reasoning call must see the tool result as an observation.
	var observed *types.Message
	for i := range client.history {
		if client.history[i].Role == types.RoleTool {
			observed = &client.history[i]
		}
	}
	if observed == nil {
		t.Fatal("no tool-role message in history sent to backend")
	}
	if observed.Content != "echo: hi" {
		t.Errorf("observation = %q, want %q", observed.Content, "echo: hi")
	}
	if observed.ToolCallID != "call_0" {
		t.Errorf("observation ToolCallID = %q, want call_0", observed.ToolCallID)
	}
}

func TestRunUnknownToolContinues(t *testing.T) {
	client := &mockClient{steps: []chatStep{
		callTool("call_0", "rm_rf", nil),
		final("Recovered."),
	}}
	agent := newTestAgent(t, client, true)

	session := types.NewSession(true)
	res := agent.Run(context.Background(), "do something", session)

	if res.Failed {
		t.Fatalf("unknown tool must not fail the run: %+v", res)
	}
	if res.Answer != "Recovered." {
		t.Errorf("Answer = %q", res.Answer)
	}

	var observation string
	for _, msg := range client.history {
		if msg.Role == types.RoleTool {
			observation = msg.Content
		}
	}
	if !strings.Contains(observation, "rm_rf") {
		t.Errorf("observation %q does not name the unknown tool", observation)
	}
}

func TestRunPermissionDenialContinues(t *testing.T) {
	client := &mockClient{steps: []chatStep{
		callTool("call_0", "write_file", map[string]any{"filepath": "hello.py"}),
		final("Could not write the file."),
	}}
	agent := newTestAgent(t, client, false)

	session := types.NewSession(false)
	res := agent.Run(context.Background(), "create hello.py", session)

	if res.Failed {
		t.Fatalf("denial must not fail the run: %+v", res)
	}

	var observation string
	for _, msg := range client.history {
		if msg.Role == types.RoleTool {
			observation = msg.Content
		}
	}
	if !strings.Contains(observation, "permission denied") {
		t.Errorf("observation = %q, want permission denial text", observation)
	}
}

func TestRunHaltsAtIterationCap(t *testing.T) {
	// Adversarial backend: always asks for another tool call, never final.
	client := &mockClient{steps: []chatStep{
		callTool("call_0", "echo", map[string]any{"text": "again"}),
	}}
	agent := newTestAgent(t, client, true)

	session := types.NewSession(true)
	res := agent.Run(context.Background(), "never finish", session)

	if !res.Failed {
		t.Fatal("expected FAILED termination")
	}
	if !strings.Contains(res.Answer, "maximum iterations") {
		t.Errorf("Answer = %q, want iteration-cap mention", res.Answer)
	}
	if !strings.Contains(res.Answer, "incomplete") {
		t.Errorf("Answer = %q, must signal incompleteness", res.Answer)
	}
	if client.calls != 5 {
		t.Errorf("backend calls = %d, want 5 (max iterations)", client.calls)
	}
}

func TestRunRetriesTransientThenSucceeds(t *testing.T) {
	client := &mockClient{steps: []chatStep{
		{err: perception.ErrRateLimited},
		{err: perception.ErrRateLimited},
		final("Eventually."),
	}}
	agent := newTestAgent(t, client, true)

	session := types.NewSession(true)
	res := agent.Run(context.Background(), "patience", session)

	if res.Failed {
		t.Fatalf("Run failed: %+v", res)
	}
	if res.Answer != "Eventually." {
		t.Errorf("Answer = %q", res.Answer)
	}
	if res.Retries != 2 {
		t.Errorf("Retries = %d, want 2", res.Retries)
	}
	if res.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1 (retries do not consume iterations)", res.Iterations)
	}
}

func TestRunRetryBudgetExhausted(t *testing.T) {
	client := &mockClient{steps: []chatStep{
		{err: perception.ErrRateLimited},
	}}
	agent := newTestAgent(t, client, true)

	session := types.NewSession(true)
	res := agent.Run(context.Background(), "doomed", session)

	if !res.Failed {
		t.Fatal("expected FAILED termination")
	}
	if !errors.Is(res.Err, perception.ErrRateLimited) {
		t.Errorf("Err = %v, want ErrRateLimited", res.Err)
	}
	// One initial call plus the retry budget.
	if client.calls != 3 {
		t.Errorf("backend calls = %d, want 3", client.calls)
	}
}

func TestRunNonTransientErrorIsFatalImmediately(t *testing.T) {
	client := &mockClient{steps: []chatStep{
		{err: errors.New("API key not valid")},
	}}
	agent := newTestAgent(t, client, true)

	session := types.NewSession(true)
	res := agent.Run(context.Background(), "bad key", session)

	if !res.Failed {
		t.Fatal("expected FAILED termination")
	}
	if client.calls != 1 {
		t.Errorf("backend calls = %d, want 1 (no retries for fatal errors)", client.calls)
	}
	if !strings.Contains(res.Answer, "incomplete") {
		t.Errorf("Answer = %q, must signal incompleteness", res.Answer)
	}
}

func TestRunHaltingBoundWithRetries(t *testing.T) {
	// Worst case: the backend rate-limits forever. Total reasoning calls
	// must stay within max iterations plus retry budget.
	client := &mockClient{steps: []chatStep{{err: perception.ErrRateLimited}}}
	agent := newTestAgent(t, client, true)

	session := types.NewSession(true)
	agent.Run(context.Background(), "bound check", session)

	if client.calls > 5+2 {
		t.Errorf("backend calls = %d, exceeds max_iterations+retry_budget = 7", client.calls)
	}
}

func TestRunCancelledContextStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &mockClient{steps: []chatStep{{err: perception.ErrRateLimited}}}
	agent := newTestAgent(t, client, true)

	session := types.NewSession(true)
	res := agent.Run(ctx, "cancelled", session)

	if !res.Failed {
		t.Fatal("expected FAILED termination")
	}
	if client.calls != 1 {
		t.Errorf("backend calls = %d, want 1 after cancellation", client.calls)
	}
}
