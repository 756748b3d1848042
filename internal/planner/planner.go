// Package planner decomposes a task into subtasks and drives the ReAct
// loop once per subtask. A failed subtask does not abort the rest of the
// plan; the aggregated answer names every failure.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"simplecoder/internal/agent"
	"simplecoder/internal/logging"
	"simplecoder/internal/types"
)

// ErrMalformedPlan is returned when the model's decomposition cannot be
// parsed. The planner never guesses a plan from malformed output.
var ErrMalformedPlan = errors.New("malformed plan output")

// Status tracks a subtask through the plan lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Subtask is one independently executable unit of a plan.
type Subtask struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
	Status      Status `json:"status"`
}

// Plan is an ordered decomposition of a task.
type Plan struct {
	Task     string
	Subtasks []Subtask
}

// IsComplete reports whether every subtask finished successfully.
func (p *Plan) IsComplete() bool {
	for _, s := range p.Subtasks {
		if s.Status != StatusDone {
			return false
		}
	}
	return true
}

// Failed returns the subtasks that ended in StatusFailed.
func (p *Plan) Failed() []Subtask {
	var failed []Subtask
	for _, s := range p.Subtasks {
		if s.Status == StatusFailed {
			failed = append(failed, s)
		}
	}
	return failed
}

const planPrompt = `Break down this task into 3-7 clear, actionable subtasks.

Task: %s

IMPORTANT:
- Combine related actions into single steps (e.g., "Create file.py with content X" not "Create file.py" then "Add content")
- Each subtask should be independently executable
- Be specific about what content goes in each file

Return ONLY a JSON array of subtasks.
Example: ["Create app.py with Flask imports and routes", "Create test.py with print('test')"]

JSON array:`

// Runner executes one task through the ReAct loop. Satisfied by
// *agent.Agent; an interface so plan execution is testable without a
// backend.
type Runner interface {
	Run(ctx context.Context, task string, session *types.Session) agent.Result
}

// Planner creates and executes plans.
type Planner struct {
	client types.LLMClient
	out    io.Writer
}

// New creates a planner over the given reasoning backend.
func New(client types.LLMClient) *Planner {
	return &Planner{client: client, out: os.Stdout}
}

// SetOutput redirects progress output, mainly for tests.
func (p *Planner) SetOutput(w io.Writer) {
	p.out = w
}

// CreatePlan asks the model to decompose the task. Malformed output is a
// hard error; no partial plan is returned.
func (p *Planner) CreatePlan(ctx context.Context, task string) (*Plan, error) {
	logging.Planner("Creating plan for: %s", task)
	fmt.Fprintf(p.out, "Creating plan for: %s\n", task)

	raw, err := p.client.Complete(ctx, fmt.Sprintf(planPrompt, task))
	if err != nil {
		return nil, fmt.Errorf("plan request failed: %w", err)
	}

	descriptions, err := parseSubtasks(raw)
	if err != nil {
		logging.Planner("Plan parse failed: %v", err)
		return nil, err
	}

	plan := &Plan{Task: task}
	for i, desc := range descriptions {
		plan.Subtasks = append(plan.Subtasks, Subtask{
			ID:          i + 1,
			Description: desc,
			Status:      StatusPending,
		})
	}

	fmt.Fprintln(p.out, "Plan created:")
	for _, s := range plan.Subtasks {
		fmt.Fprintf(p.out, "  %d. %s\n", s.ID, s.Description)
	}
	logging.Planner("Plan has %d subtasks", len(plan.Subtasks))
	return plan, nil
}

// parseSubtasks extracts the JSON array of subtask descriptions, tolerating
// a markdown code fence around it.
func parseSubtasks(raw string) ([]string, error) {
	text := strings.TrimSpace(raw)
	if strings.Contains(text, "```") {
		parts := strings.Split(text, "```")
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: unterminated code fence", ErrMalformedPlan)
		}
		text = parts[1]
		text = strings.TrimPrefix(text, "json")
		text = strings.TrimSpace(text)
	}

	var descriptions []string
	if err := json.Unmarshal([]byte(text), &descriptions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}
	if len(descriptions) == 0 {
		return nil, fmt.Errorf("%w: empty subtask list", ErrMalformedPlan)
	}
	for _, d := range descriptions {
		if strings.TrimSpace(d) == "" {
			return nil, fmt.Errorf("%w: blank subtask description", ErrMalformedPlan)
		}
	}
	return descriptions, nil
}

// Execute runs every subtask in order through the runner. All subtasks
// share the session, so approvals granted during one carry into the next.
// A failed subtask does not stop the rest; the aggregated answer lists
// every failure. The boolean reports whether any subtask failed.
func (p *Planner) Execute(ctx context.Context, plan *Plan, runner Runner, session *types.Session) (string, bool) {
	for i := range plan.Subtasks {
		subtask := &plan.Subtasks[i]
		subtask.Status = StatusInProgress
		logging.Planner("Subtask %d/%d: %s", subtask.ID, len(plan.Subtasks), subtask.Description)
		fmt.Fprintf(p.out, "[%d/%d] %s\n", subtask.ID, len(plan.Subtasks), subtask.Description)

		res := runner.Run(ctx, subtask.Description, session)
		if res.Failed {
			subtask.Status = StatusFailed
			logging.Planner("Subtask %d failed: %s", subtask.ID, res.Answer)
			fmt.Fprintf(p.out, "  failed: %s\n", res.Answer)
			continue
		}
		subtask.Status = StatusDone
	}

	failed := plan.Failed()
	if len(failed) == 0 {
		return fmt.Sprintf("All %d subtasks completed. Task finished successfully.", len(plan.Subtasks)), false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Completed %d of %d subtasks. The following subtasks failed:\n", len(plan.Subtasks)-len(failed), len(plan.Subtasks))
	for _, s := range failed {
		fmt.Fprintf(&b, "  %d. %s\n", s.ID, s.Description)
	}
	return strings.TrimRight(b.String(), "\n"), true
}
