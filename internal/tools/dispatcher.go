package tools

import (
	"context"
	"fmt"
	"time"

	"simplecoder/internal/logging"
	"simplecoder/internal/permissions"
	"simplecoder/internal/types"
)

// Dispatcher routes tool calls from the LLM to registered tools. Every
// failure mode produces an error ToolResult fed back to the model, never a
// Go error: an unknown tool name, bad arguments, a denied permission, or a
// runtime failure are all information the model can react to.
type Dispatcher struct {
	registry *Registry
	perms    *permissions.Manager
	timeout  time.Duration
}

// NewDispatcher creates a dispatcher over the given registry. A zero
// timeout disables the per-call deadline.
func NewDispatcher(registry *Registry, perms *permissions.Manager, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		perms:    perms,
		timeout:  timeout,
	}
}

// Definitions returns the tool declarations for the LLM request.
func (d *Dispatcher) Definitions() []types.ToolDefinition {
	return d.registry.Definitions()
}

// Dispatch executes one tool call and returns its result. The result's
// ToolCallID always matches the call so the conversation stays coherent.
func (d *Dispatcher) Dispatch(ctx context.Context, call types.ToolCall) types.ToolResult {
	tool := d.registry.Get(call.Name)
	if tool == nil {
		logging.Tools("Unknown tool requested: %s", call.Name)
		return errorResult(call.ID, fmt.Sprintf("%v: %s. Available tools: %v", ErrToolNotFound, call.Name, d.registry.Names()))
	}

	args := call.Input
	if args == nil {
		args = map[string]any{}
	}

	if err := validateArgs(tool, args); err != nil {
		logging.Tools("Argument validation failed for %s: %v", call.Name, err)
		return errorResult(call.ID, err.Error())
	}

	if tool.Mutating && d.perms != nil {
		detail, _ := args["filepath"].(string)
		if detail == "" {
			detail, _ = args["path"].(string)
		}
		if decision := d.perms.Check(tool.PermissionKey(), detail); !decision.Approved() {
			logging.Tools("Permission denied for %s", call.Name)
			return errorResult(call.ID, fmt.Sprintf("%v: %s", ErrPermissionDenied, tool.PermissionKey()))
		}
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	logging.ToolsDebug("Executing tool: %s", call.Name)
	output, err := tool.Execute(ctx, args)
	duration := time.Since(start)

	if err != nil {
		logging.Tools("Tool %s failed after %v: %v", call.Name, duration, err)
		return errorResult(call.ID, err.Error())
	}

	logging.ToolsDebug("Tool %s completed in %v (%d bytes)", call.Name, duration, len(output))
	return types.ToolResult{
		ToolCallID: call.ID,
		Content:    output,
	}
}

// DispatchAll executes a batch of tool calls in order.
func (d *Dispatcher) DispatchAll(ctx context.Context, calls []types.ToolCall) []types.ToolResult {
	results := make([]types.ToolResult, len(calls))
	for i, call := range calls {
		results[i] = d.Dispatch(ctx, call)
	}
	return results
}

func errorResult(callID, msg string) types.ToolResult {
	return types.ToolResult{
		ToolCallID: callID,
		Content:    msg,
		IsError:    true,
	}
}
