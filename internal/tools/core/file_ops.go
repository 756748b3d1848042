package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"simplecoder/internal/logging"
	"simplecoder/internal/tools"
)

// resolvePath joins a tool-supplied path with the workspace root and
// rejects anything that escapes it.
func resolvePath(workspace, path string) (string, error) {
	if path == "" {
		path = "."
	}
	abs := filepath.Join(workspace, filepath.Clean(path))
	rel, err := filepath.Rel(workspace, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", path)
	}
	return abs, nil
}

// ListFilesTool returns a tool for listing directory contents.
func ListFilesTool(workspace string) *tools.Tool {
	return &tools.Tool{
		Name:        "list_files",
		Description: "List all files and directories in a given directory. Use this to explore the codebase structure.",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			dir, _ := args["directory"].(string)
			return executeListFiles(workspace, dir)
		},
		Schema: tools.ToolSchema{
			Required: []string{},
			Properties: map[string]tools.Property{
				"directory": {
					Type:        "string",
					Description: "The directory path to list (default: workspace root)",
				},
			},
		},
	}
}

func executeListFiles(workspace, dir string) (string, error) {
	abs, err := resolvePath(workspace, dir)
	if err != nil {
		return "", err
	}
	if dir == "" {
		dir = "."
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return "", fmt.Errorf("failed to list directory %q: %w", dir, err)
	}
	if len(entries) == 0 {
		return fmt.Sprintf("Directory %q is empty", dir), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Contents of %q:\n", dir)
	for _, entry := range entries {
		if entry.IsDir() {
			fmt.Fprintf(&sb, "%s/\n", entry.Name())
			continue
		}
		info, err := entry.Info()
		if err != nil {
			fmt.Fprintf(&sb, "%s\n", entry.Name())
			continue
		}
		fmt.Fprintf(&sb, "%s (%d bytes)\n", entry.Name(), info.Size())
	}
	logging.ToolsDebug("list_files: %s (%d entries)", dir, len(entries))
	return strings.TrimRight(sb.String(), "\n"), nil
}

// ReadFileTool returns a tool for reading file contents with line numbers.
// Numbered output lets the model reference exact lines when editing.
func ReadFileTool(workspace string) *tools.Tool {
	return &tools.Tool{
		Name:        "read_file",
		Description: "Read the complete contents of a file. Use this to understand existing code or check what's in a file.",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := args["filepath"].(string)
			return executeReadFile(workspace, path)
		},
		Schema: tools.ToolSchema{
			Required: []string{"filepath"},
			Properties: map[string]tools.Property{
				"filepath": {
					Type:        "string",
					Description: "The path to the file to read",
				},
			},
		},
	}
}

func executeReadFile(workspace, path string) (string, error) {
	abs, err := resolvePath(workspace, path)
	if err != nil {
		return "", err
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("failed to read file %q: %w", path, err)
	}

	lines := strings.Split(string(content), "\n")
	var sb strings.Builder
	fmt.Fprintf(&sb, "Contents of %q:\n", path)
	for i, line := range lines {
		fmt.Fprintf(&sb, "%d | %s\n", i+1, line)
	}
	logging.ToolsDebug("read_file: %s (%d bytes)", path, len(content))
	return strings.TrimRight(sb.String(), "\n"), nil
}

// WriteFileTool returns a tool for writing content to a file.
func WriteFileTool(workspace string) *tools.Tool {
	return &tools.Tool{
		Name:        "write_file",
		Description: "Write content to a file. This will create a new file or completely overwrite an existing file. Use this for creating new files.",
		Mutating:    true,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := args["filepath"].(string)
			content, _ := args["content"].(string)
			return executeWriteFile(workspace, path, content)
		},
		Schema: tools.ToolSchema{
			Required: []string{"filepath", "content"},
			Properties: map[string]tools.Property{
				"filepath": {
					Type:        "string",
					Description: "The path to the file to write",
				},
				"content": {
					Type:        "string",
					Description: "The content to write to the file",
				},
			},
		},
	}
}

func executeWriteFile(workspace, path, content string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("filepath is required")
	}
	abs, err := resolvePath(workspace, path)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write file %q: %w", path, err)
	}

	logging.Tools("write_file: %s (%d bytes)", path, len(content))
	return fmt.Sprintf("Wrote %d characters to %q", len(content), path), nil
}

// EditFileTool returns a tool for targeted text replacement in a file.
func EditFileTool(workspace string) *tools.Tool {
	return &tools.Tool{
		Name:        "edit_file",
		Description: "Edit an existing file by replacing specific text. Use this to make targeted changes to existing files.",
		Mutating:    true,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := args["filepath"].(string)
			oldText, _ := args["old_text"].(string)
			newText, _ := args["new_text"].(string)
			return executeEditFile(workspace, path, oldText, newText)
		},
		Schema: tools.ToolSchema{
			Required: []string{"filepath", "old_text", "new_text"},
			Properties: map[string]tools.Property{
				"filepath": {
					Type:        "string",
					Description: "The path to the file to edit",
				},
				"old_text": {
					Type:        "string",
					Description: "The exact text to find and replace",
				},
				"new_text": {
					Type:        "string",
					Description: "The text to replace with",
				},
			},
		},
	}
}

func executeEditFile(workspace, path, oldText, newText string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("filepath is required")
	}
	abs, err := resolvePath(workspace, path)
	if err != nil {
		return "", err
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("failed to read file %q: %w", path, err)
	}

	text := string(content)
	if !strings.Contains(text, oldText) {
		return "", fmt.Errorf("could not find the text to replace in %q", path)
	}

	updated := strings.ReplaceAll(text, oldText, newText)
	if err := os.WriteFile(abs, []byte(updated), 0o644); err != nil {
		return "", fmt.Errorf("failed to write file %q: %w", path, err)
	}

	logging.Tools("edit_file: %s (%d -> %d bytes)", path, len(text), len(updated))
	return fmt.Sprintf("Successfully edited %q", path), nil
}
