// Package tools provides the tool registry and dispatcher for the agent
// loop. Each tool is standalone; the dispatcher validates arguments against
// the tool's schema and gates mutating tools behind the permission manager.
package tools

import (
	"context"

	"simplecoder/internal/types"
)

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
	// Items describes array element schema (required for type="array")
	Items *PropertyItems `json:"items,omitempty"`
}

// PropertyItems describes the schema for array elements.
type PropertyItems struct {
	Type string `json:"type"`
}

// ToolSchema defines the JSON schema for tool arguments.
type ToolSchema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution.
// Returns the result string and any error.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool defines a modular tool the agent can invoke.
type Tool struct {
	// Name is the unique identifier for the tool.
	Name string

	// Description explains what the tool does.
	// Sent to the LLM as part of the function declaration.
	Description string

	// Mutating marks tools that change workspace state. Mutating tools
	// require a permission check before execution.
	Mutating bool

	// OperationKind is the permission memory key for mutating tools.
	// Defaults to Name when empty.
	OperationKind string

	// Execute runs the tool with the given arguments.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema ToolSchema
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// PermissionKey returns the key used for permission memory lookups.
func (t *Tool) PermissionKey() string {
	if t.OperationKind != "" {
		return t.OperationKind
	}
	return t.Name
}

// Definition converts the tool to the wire-level declaration sent to the LLM.
func (t *Tool) Definition() types.ToolDefinition {
	props := make(map[string]interface{}, len(t.Schema.Properties))
	for name, p := range t.Schema.Properties {
		prop := map[string]interface{}{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Items != nil {
			prop["items"] = map[string]interface{}{"type": p.Items.Type}
		}
		props[name] = prop
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(t.Schema.Required) > 0 {
		schema["required"] = t.Schema.Required
	}
	return types.ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: schema,
	}
}
