package core

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestListFiles(t *testing.T) {
	ws := t.TempDir()
	writeTestFile(t, ws, "main.go", "package main\n")
	if err := os.Mkdir(filepath.Join(ws, "internal"), 0o755); err != nil {
		t.Fatal(err)
	}

	tool := ListFilesTool(ws)
	out, err := tool.Execute(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("list_files error: %v", err)
	}
	if !strings.Contains(out, "main.go (13 bytes)") {
		t.Errorf("missing file with size: %q", out)
	}
	if !strings.Contains(out, "internal/") {
		t.Errorf("directory not marked with trailing slash: %q", out)
	}
}

func TestListFilesMissingDir(t *testing.T) {
	tool := ListFilesTool(t.TempDir())
	_, err := tool.Execute(context.Background(), map[string]any{"directory": "nope"})
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestReadFileNumbersLines(t *testing.T) {
	ws := t.TempDir()
	writeTestFile(t, ws, "a.txt", "first\nsecond\nthird")

	tool := ReadFileTool(ws)
	out, err := tool.Execute(context.Background(), map[string]any{"filepath": "a.txt"})
	if err != nil {
		t.Fatalf("read_file error: %v", err)
	}
	for _, want := range []string{"1 | first", "2 | second", "3 | third"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteFileCreatesParents(t *testing.T) {
	ws := t.TempDir()
	tool := WriteFileTool(ws)

	out, err := tool.Execute(context.Background(), map[string]any{
		"filepath": "deep/nested/file.txt",
		"content":  "hello",
	})
	if err != nil {
		t.Fatalf("write_file error: %v", err)
	}
	if !strings.Contains(out, "5 characters") {
		t.Errorf("unexpected output: %q", out)
	}
	data, err := os.ReadFile(filepath.Join(ws, "deep/nested/file.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("file content = %q, want hello", data)
	}
}

func TestEditFile(t *testing.T) {
	ws := t.TempDir()
	writeTestFile(t, ws, "a.go", "package main\n\nfunc old() {}\n")

	tool := EditFileTool(ws)
	_, err := tool.Execute(context.Background(), map[string]any{
		"filepath": "a.go",
		"old_text": "func old()",
		"new_text": "func renamed()",
	})
	if err != nil {
		t.Fatalf("edit_file error: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(ws, "a.go"))
	if !strings.Contains(string(data), "func renamed()") {
		t.Errorf("edit not applied: %q", data)
	}
}

func TestEditFileTextNotFound(t *testing.T) {
	ws := t.TempDir()
	writeTestFile(t, ws, "a.go", "package main\n")

	tool := EditFileTool(ws)
	_, err := tool.Execute(context.Background(), map[string]any{
		"filepath": "a.go",
		"old_text": "does not appear",
		"new_text": "x",
	})
	if err == nil {
		t.Fatal("expected error when old_text missing")
	}
}

func TestPathEscapeRejected(t *testing.T) {
	ws := t.TempDir()
	for _, p := range []string{"../outside.txt", "../../etc/passwd", "a/../../b"} {
		if _, err := resolvePath(ws, p); err == nil {
			t.Errorf("resolvePath(%q) should fail", p)
		}
	}
	if _, err := resolvePath(ws, "sub/inside.txt"); err != nil {
		t.Errorf("resolvePath inside workspace failed: %v", err)
	}
}
