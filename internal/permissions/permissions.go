// Package permissions gates mutating tool operations behind user approval.
//
// Decisions are keyed by operation kind (e.g. "write_file"), not by path:
// approving write_file for the session approves all future writes in that
// session. Session means one CLI invocation; planning-mode subtasks run
// under the same manager and share its memory.
package permissions

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"simplecoder/internal/logging"
)

// Decision is the outcome of a permission check.
type Decision int

const (
	// Denied means the operation must not proceed.
	Denied Decision = iota

	// ApprovedOnce allows this single operation; not remembered.
	ApprovedOnce

	// ApprovedSession allows this and all future operations of the same
	// kind within the session.
	ApprovedSession
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case ApprovedOnce:
		return "approved_once"
	case ApprovedSession:
		return "approved_session"
	default:
		return "denied"
	}
}

// Approved reports whether the operation may proceed.
func (d Decision) Approved() bool {
	return d != Denied
}

// Prompter asks the user for a permission decision. Implementations must
// offer three choices: approve once, approve for session, deny.
type Prompter interface {
	Prompt(operationKind, detail string) (Decision, error)
}

// Manager tracks permission decisions for one session.
type Manager struct {
	mu          sync.Mutex
	autoApprove bool
	prompter    Prompter

	// memory holds only approved_session decisions. ApprovedOnce and
	// Denied are never cached: a denial must not suppress a later prompt
	// for the same kind.
	memory map[string]Decision
}

// NewManager creates a permission manager. A nil prompter makes every
// non-cached, non-auto-approved check deny (non-interactive mode).
func NewManager(autoApprove bool, prompter Prompter) *Manager {
	if autoApprove {
		logging.Permissions("Auto-approve enabled - mutating operations will not prompt")
	}
	return &Manager{
		autoApprove: autoApprove,
		prompter:    prompter,
		memory:      make(map[string]Decision),
	}
}

// Check decides whether an operation of the given kind may proceed.
// detail is advisory context for the prompt (typically the target path);
// it never participates in memory lookup.
func (m *Manager) Check(operationKind, detail string) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.autoApprove {
		logging.PermissionsDebug("Auto-approved %s", operationKind)
		return ApprovedSession
	}

	if d, ok := m.memory[operationKind]; ok && d == ApprovedSession {
		logging.PermissionsDebug("Session approval cached for %s", operationKind)
		return ApprovedSession
	}

	if m.prompter == nil {
		logging.Permissions("No prompter configured, denying %s", operationKind)
		return Denied
	}

	decision, err := m.prompter.Prompt(operationKind, detail)
	if err != nil {
		logging.Get(logging.CategoryPermissions).Error("Prompt failed for %s: %v", operationKind, err)
		return Denied
	}

	if decision == ApprovedSession {
		m.memory[operationKind] = ApprovedSession
		logging.Permissions("Recorded session approval for %s", operationKind)
	} else {
		logging.Permissions("Decision for %s: %s (not cached)", operationKind, decision)
	}

	return decision
}

// Reset clears all session approvals.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memory = make(map[string]Decision)
	logging.Permissions("Session permissions cleared")
}

// TerminalPrompter asks for decisions on a terminal.
type TerminalPrompter struct {
	In  io.Reader
	Out io.Writer
}

// NewTerminalPrompter creates a prompter bound to stdin/stderr. Prompts go
// to stderr so piped stdout stays clean.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{In: os.Stdin, Out: os.Stderr}
}

// Prompt asks the user to approve once, approve for the session, or deny.
func (p *TerminalPrompter) Prompt(operationKind, detail string) (Decision, error) {
	msg := fmt.Sprintf("Allow agent to %s", operationKind)
	if detail != "" {
		msg += fmt.Sprintf(" on %s", detail)
	}
	fmt.Fprintf(p.Out, "\n%s? [y]es once / [a]lways this session / [n]o: ", msg)

	reader := bufio.NewReader(p.In)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return Denied, err
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return ApprovedOnce, nil
	case "a", "always":
		return ApprovedSession, nil
	default:
		return Denied, nil
	}
}
