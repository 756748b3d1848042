package core

import (
	"context"
	"strings"
	"testing"
)

func TestSearchFilesSimpleGlob(t *testing.T) {
	ws := t.TempDir()
	writeTestFile(t, ws, "main.go", "package main\n")
	writeTestFile(t, ws, "readme.md", "# hi\n")

	tool := SearchFilesTool(ws)
	out, err := tool.Execute(context.Background(), map[string]any{"pattern": "*.go"})
	if err != nil {
		t.Fatalf("search_files error: %v", err)
	}
	if !strings.Contains(out, "main.go") {
		t.Errorf("missing match: %q", out)
	}
	if strings.Contains(out, "readme.md") {
		t.Errorf("unexpected match: %q", out)
	}
}

func TestSearchFilesRecursiveGlob(t *testing.T) {
	ws := t.TempDir()
	writeTestFile(t, ws, "a/b/deep.go", "package b\n")
	writeTestFile(t, ws, "top.go", "package top\n")
	writeTestFile(t, ws, ".git/junk.go", "ignored\n")

	tool := SearchFilesTool(ws)
	out, err := tool.Execute(context.Background(), map[string]any{"pattern": "**/*.go"})
	if err != nil {
		t.Fatalf("search_files error: %v", err)
	}
	if !strings.Contains(out, "deep.go") || !strings.Contains(out, "top.go") {
		t.Errorf("recursive matches missing: %q", out)
	}
	if strings.Contains(out, "junk.go") {
		t.Errorf(".git should be skipped: %q", out)
	}
}

func TestSearchFilesNoMatches(t *testing.T) {
	tool := SearchFilesTool(t.TempDir())
	out, err := tool.Execute(context.Background(), map[string]any{"pattern": "*.rs"})
	if err != nil {
		t.Fatalf("search_files error: %v", err)
	}
	if !strings.Contains(out, "No files matching") {
		t.Errorf("expected no-match message, got %q", out)
	}
}

func TestGrep(t *testing.T) {
	ws := t.TempDir()
	writeTestFile(t, ws, "a.go", "package main\n\nfunc Handler() {}\n")
	writeTestFile(t, ws, "b.txt", "handler in prose\n")

	tool := GrepTool(ws)
	out, err := tool.Execute(context.Background(), map[string]any{
		"pattern": "func Handler",
		"include": "*.go",
	})
	if err != nil {
		t.Fatalf("grep error: %v", err)
	}
	if !strings.Contains(out, "a.go:3") {
		t.Errorf("expected file:line match, got %q", out)
	}
	if strings.Contains(out, "b.txt") {
		t.Errorf("include filter ignored: %q", out)
	}
}

func TestGrepInvalidRegex(t *testing.T) {
	tool := GrepTool(t.TempDir())
	_, err := tool.Execute(context.Background(), map[string]any{"pattern": "("})
	if err == nil {
		t.Fatal("expected error for invalid regex")
	}
}
