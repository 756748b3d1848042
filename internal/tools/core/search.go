package core

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"simplecoder/internal/logging"
	"simplecoder/internal/tools"
)

// Directories never worth descending into.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	".simplecoder": true,
}

// SearchFilesTool returns a tool for finding files by glob pattern.
func SearchFilesTool(workspace string) *tools.Tool {
	return &tools.Tool{
		Name:        "search_files",
		Description: "Search for files matching a pattern. Use glob patterns like '*.py' for Python files or '**/*.go' for all Go files recursively.",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			pattern, _ := args["pattern"].(string)
			dir, _ := args["directory"].(string)
			return executeSearchFiles(workspace, pattern, dir)
		},
		Schema: tools.ToolSchema{
			Required: []string{"pattern"},
			Properties: map[string]tools.Property{
				"pattern": {
					Type:        "string",
					Description: "Glob pattern to match files (e.g., '*.py', '**/*.go')",
				},
				"directory": {
					Type:        "string",
					Description: "Directory to search in (default: workspace root)",
				},
			},
		},
	}
}

const maxSearchResults = 200

func executeSearchFiles(workspace, pattern, dir string) (string, error) {
	if pattern == "" {
		return "", fmt.Errorf("pattern is required")
	}
	base, err := resolvePath(workspace, dir)
	if err != nil {
		return "", err
	}
	if dir == "" {
		dir = "."
	}

	matches, err := globMatch(base, pattern)
	if err != nil {
		return "", err
	}

	logging.ToolsDebug("search_files: pattern=%s dir=%s matches=%d", pattern, dir, len(matches))
	if len(matches) == 0 {
		return fmt.Sprintf("No files matching %q found in %q", pattern, dir), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d file(s) matching pattern %q:\n", len(matches), pattern)
	for _, m := range matches {
		fmt.Fprintf(&sb, " -- %s\n", m)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// globMatch resolves a glob pattern under base. Patterns with ** walk the
// tree and match the trailing segment; simple patterns use filepath.Glob.
func globMatch(base, pattern string) ([]string, error) {
	var matches []string

	if strings.Contains(pattern, "**") {
		parts := strings.SplitN(pattern, "**", 2)
		prefix := strings.TrimSuffix(parts[0], "/")
		suffix := strings.TrimPrefix(parts[1], "/")

		searchPath := base
		if prefix != "" {
			searchPath = filepath.Join(base, prefix)
		}

		err := filepath.WalkDir(searchPath, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if len(matches) >= maxSearchResults {
				return filepath.SkipAll
			}
			if d.IsDir() {
				if skipDirs[d.Name()] {
					return filepath.SkipDir
				}
				return nil
			}
			matched := suffix == ""
			if !matched {
				matched, _ = filepath.Match(suffix, d.Name())
			}
			if !matched {
				rel, _ := filepath.Rel(searchPath, path)
				matched, _ = filepath.Match(suffix, rel)
			}
			if matched {
				rel, _ := filepath.Rel(base, path)
				matches = append(matches, rel)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk directory: %w", err)
		}
		return matches, nil
	}

	globMatches, err := filepath.Glob(filepath.Join(base, pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	for _, m := range globMatches {
		if len(matches) >= maxSearchResults {
			break
		}
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		rel, _ := filepath.Rel(base, m)
		matches = append(matches, rel)
	}
	return matches, nil
}

// GrepTool returns a tool for regex search over file contents.
func GrepTool(workspace string) *tools.Tool {
	return &tools.Tool{
		Name:        "grep",
		Description: "Search file contents for a regular expression. Returns matching lines with file and line number.",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			pattern, _ := args["pattern"].(string)
			dir, _ := args["directory"].(string)
			include, _ := args["include"].(string)
			return executeGrep(workspace, pattern, dir, include)
		},
		Schema: tools.ToolSchema{
			Required: []string{"pattern"},
			Properties: map[string]tools.Property{
				"pattern": {
					Type:        "string",
					Description: "Regular expression to search for",
				},
				"directory": {
					Type:        "string",
					Description: "Directory to search in (default: workspace root)",
				},
				"include": {
					Type:        "string",
					Description: "Only search files matching this glob (e.g. '*.go')",
				},
			},
		},
	}
}

const maxGrepMatches = 100

func executeGrep(workspace, pattern, dir, include string) (string, error) {
	if pattern == "" {
		return "", fmt.Errorf("pattern is required")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("invalid regex %q: %w", pattern, err)
	}
	base, err := resolvePath(workspace, dir)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	total := 0
	err = filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if total >= maxGrepMatches {
			return filepath.SkipAll
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if include != "" {
			if ok, _ := filepath.Match(include, d.Name()); !ok {
				return nil
			}
		}
		rel, _ := filepath.Rel(base, path)
		matches, err := grepFile(path, re, maxGrepMatches-total)
		if err != nil {
			return nil
		}
		for _, m := range matches {
			fmt.Fprintf(&sb, "%s:%d: %s\n", rel, m.line, m.text)
			total++
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to walk directory: %w", err)
	}

	logging.ToolsDebug("grep: pattern=%s matches=%d", pattern, total)
	if total == 0 {
		return fmt.Sprintf("No matches for %q", pattern), nil
	}
	return fmt.Sprintf("Found %d match(es) for %q:\n%s", total, pattern, strings.TrimRight(sb.String(), "\n")), nil
}

type grepMatch struct {
	line int
	text string
}

func grepFile(path string, re *regexp.Regexp, limit int) ([]grepMatch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var matches []grepMatch
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		// Binary files will not match line-oriented regexes usefully.
		if strings.ContainsRune(line, '\x00') {
			return nil, nil
		}
		if re.MatchString(line) {
			matches = append(matches, grepMatch{line: lineNo, text: line})
			if len(matches) >= limit {
				break
			}
		}
	}
	return matches, scanner.Err()
}
