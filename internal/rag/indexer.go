package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"simplecoder/internal/embedding"
	"simplecoder/internal/logging"
	"simplecoder/internal/store"
)

// Directories never indexed.
var skipDirs = map[string]bool{
	".git":          true,
	"node_modules":  true,
	"__pycache__":   true,
	".venv":         true,
	"venv":          true,
	"site-packages": true,
	".simplecoder":  true,
	"vendor":        true,
	"testdata":      true,
}

// Indexer builds and queries the semantic code index.
type Indexer struct {
	workspace string
	store     *store.LocalStore
	engine    embedding.Engine
	chunkers  map[string]Chunker // keyed by extension
}

// NewIndexer creates an indexer over the workspace with Go and Python
// chunkers registered.
func NewIndexer(workspace string, s *store.LocalStore, engine embedding.Engine) *Indexer {
	idx := &Indexer{
		workspace: workspace,
		store:     s,
		engine:    engine,
		chunkers:  make(map[string]Chunker),
	}
	for _, c := range []Chunker{NewGoChunker(), NewPythonChunker()} {
		for _, ext := range c.Extensions() {
			idx.chunkers[ext] = c
		}
	}
	return idx
}

// IndexStats summarizes one indexing pass.
type IndexStats struct {
	FilesScanned int
	FilesIndexed int
	FilesSkipped int
	Chunks       int
}

// IndexAll walks the workspace and (re)indexes every supported source
// file whose content hash changed since the last pass.
func (idx *Indexer) IndexAll(ctx context.Context) (IndexStats, error) {
	timer := logging.StartTimer(logging.CategoryRAG, "IndexAll")
	defer timer.Stop()

	var stats IndexStats

	known, err := idx.store.FileHashes()
	if err != nil {
		return stats, fmt.Errorf("failed to load file hashes: %w", err)
	}
	seen := make(map[string]bool)

	err = filepath.WalkDir(idx.workspace, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skipDirs[d.Name()] || strings.HasPrefix(d.Name(), "_") {
				return filepath.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, ok := idx.chunkers[filepath.Ext(path)]; !ok {
			return nil
		}

		rel, _ := filepath.Rel(idx.workspace, path)
		seen[rel] = true
		stats.FilesScanned++

		content, err := os.ReadFile(path)
		if err != nil {
			logging.RAGDebug("Skipping unreadable file %s: %v", rel, err)
			stats.FilesSkipped++
			return nil
		}

		hash := contentHash(content)
		if known[rel] == hash {
			stats.FilesSkipped++
			return nil
		}

		n, err := idx.indexContent(ctx, rel, hash, content)
		if err != nil {
			logging.Get(logging.CategoryRAG).Error("Failed to index %s: %v", rel, err)
			stats.FilesSkipped++
			return nil
		}
		stats.FilesIndexed++
		stats.Chunks += n
		return nil
	})
	if err != nil {
		return stats, err
	}

	// Drop index entries for files that no longer exist.
	for path := range known {
		if !seen[path] {
			if err := idx.store.DeleteFile(path); err != nil {
				logging.Get(logging.CategoryRAG).Error("Failed to prune %s: %v", path, err)
			}
		}
	}

	logging.RAG("Index pass: scanned=%d indexed=%d skipped=%d chunks=%d",
		stats.FilesScanned, stats.FilesIndexed, stats.FilesSkipped, stats.Chunks)
	return stats, nil
}

// IndexFile (re)indexes a single file given as a workspace-relative path.
func (idx *Indexer) IndexFile(ctx context.Context, rel string) error {
	if _, ok := idx.chunkers[filepath.Ext(rel)]; !ok {
		return nil
	}
	content, err := os.ReadFile(filepath.Join(idx.workspace, rel))
	if err != nil {
		if os.IsNotExist(err) {
			return idx.store.DeleteFile(rel)
		}
		return err
	}
	_, err = idx.indexContent(ctx, rel, contentHash(content), content)
	return err
}

// RemoveFile drops a file from the index.
func (idx *Indexer) RemoveFile(rel string) error {
	return idx.store.DeleteFile(rel)
}

func (idx *Indexer) indexContent(ctx context.Context, rel, hash string, content []byte) (int, error) {
	chunker := idx.chunkers[filepath.Ext(rel)]
	chunks, err := chunker.Chunk(rel, content)
	if err != nil {
		return 0, fmt.Errorf("chunking failed: %w", err)
	}

	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			// Embed the identifier along with the code so name matches rank well
			texts[i] = fmt.Sprintf("%s %s\n%s", c.Kind, c.Name, c.Content)
		}
		vectors, err := idx.engine.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embedding failed: %w", err)
		}
		for i := range chunks {
			chunks[i].Embedding = vectors[i]
		}
	}

	if err := idx.store.ReplaceFileChunks(rel, hash, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// Search embeds the query and returns the topK most similar chunks.
func (idx *Indexer) Search(ctx context.Context, query string, topK int) ([]store.SearchHit, error) {
	queryVec, err := idx.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return idx.store.Search(queryVec, topK)
}

// Stats reports the current index size.
func (idx *Indexer) Stats() (files, chunks int, err error) {
	return idx.store.Stats()
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
