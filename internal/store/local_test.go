package store

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestReplaceFileChunksAndSearch(t *testing.T) {
	s := newTestStore(t)

	chunks := []Chunk{
		{Name: "Login", Kind: "function", StartLine: 10, Content: "func Login() {}", Embedding: []float32{1, 0, 0}},
		{Name: "Logout", Kind: "function", StartLine: 30, Content: "func Logout() {}", Embedding: []float32{0, 1, 0}},
	}
	if err := s.ReplaceFileChunks("auth.go", "hash1", chunks); err != nil {
		t.Fatalf("ReplaceFileChunks failed: %v", err)
	}

	hits, err := s.Search([]float32{0.9, 0.1, 0}, 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %d, want 1", len(hits))
	}
	if hits[0].Name != "Login" {
		t.Errorf("best hit = %q, want Login", hits[0].Name)
	}
	if hits[0].Similarity <= 0 {
		t.Errorf("similarity = %v, want > 0", hits[0].Similarity)
	}
}

func TestReplaceFileChunksIsAtomic(t *testing.T) {
	s := newTestStore(t)

	first := []Chunk{{Name: "Old", Kind: "function", Content: "old", Embedding: []float32{1, 0}}}
	if err := s.ReplaceFileChunks("a.go", "h1", first); err != nil {
		t.Fatal(err)
	}
	second := []Chunk{{Name: "New", Kind: "function", Content: "new", Embedding: []float32{1, 0}}}
	if err := s.ReplaceFileChunks("a.go", "h2", second); err != nil {
		t.Fatal(err)
	}

	_, chunks, err := s.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if chunks != 1 {
		t.Errorf("chunks = %d, want 1 (old chunks replaced)", chunks)
	}

	hashes, err := s.FileHashes()
	if err != nil {
		t.Fatal(err)
	}
	if hashes["a.go"] != "h2" {
		t.Errorf("hash = %q, want h2", hashes["a.go"])
	}
}

func TestDeleteFile(t *testing.T) {
	s := newTestStore(t)

	if err := s.ReplaceFileChunks("gone.go", "h", []Chunk{
		{Name: "F", Kind: "function", Content: "f", Embedding: []float32{1}},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteFile("gone.go"); err != nil {
		t.Fatalf("DeleteFile failed: %v", err)
	}

	files, chunks, err := s.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if files != 0 || chunks != 0 {
		t.Errorf("files=%d chunks=%d after delete, want 0/0", files, chunks)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	s := newTestStore(t)
	hits, err := s.Search([]float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("hits = %d, want 0", len(hits))
	}
}
