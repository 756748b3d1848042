package core

import (
	"simplecoder/internal/tools"
)

// RegisterAll registers all filesystem tools rooted at the workspace.
func RegisterAll(registry *tools.Registry, workspace string) error {
	allTools := []*tools.Tool{
		ListFilesTool(workspace),
		ReadFileTool(workspace),
		WriteFileTool(workspace),
		EditFileTool(workspace),
		SearchFilesTool(workspace),
		GrepTool(workspace),
	}

	for _, tool := range allTools {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}
