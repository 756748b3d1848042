// Package store persists indexed code chunks and their embeddings in
// SQLite. Embeddings are stored as JSON arrays and ranked with cosine
// similarity in Go, which is fast enough for single-project indexes.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"simplecoder/internal/embedding"
	"simplecoder/internal/logging"
)

// Chunk is one indexed unit of code: a function, method, type or class.
type Chunk struct {
	ID        int64
	File      string
	Name      string
	Kind      string // "function", "method", "type", "class"
	StartLine int
	Content   string
	Embedding []float32
}

// SearchHit is a chunk with its similarity to the query.
type SearchHit struct {
	Chunk
	Similarity float64
}

// LocalStore is the SQLite-backed chunk index.
type LocalStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewLocalStore initializes the SQLite database at the given path.
func NewLocalStore(path string) (*LocalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewLocalStore")
	defer timer.Stop()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	// synchronous=NORMAL is safe with WAL and much faster than FULL
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	store := &LocalStore{db: db, dbPath: path}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Store("Initialized chunk store at %s", path)
	return store, nil
}

func (s *LocalStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file TEXT NOT NULL,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		start_line INTEGER NOT NULL,
		content TEXT NOT NULL,
		embedding TEXT NOT NULL,
		indexed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file);

	CREATE TABLE IF NOT EXISTS files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		indexed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`
	_, err := s.db.Exec(schema)
	return err
}

// ReplaceFileChunks atomically replaces all chunks for a file and records
// its content hash for incremental re-indexing.
func (s *LocalStore) ReplaceFileChunks(file, hash string, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM chunks WHERE file = ?", file); err != nil {
		return fmt.Errorf("failed to clear old chunks: %w", err)
	}

	for _, c := range chunks {
		embJSON, err := json.Marshal(c.Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		if _, err := tx.Exec(
			"INSERT INTO chunks (file, name, kind, start_line, content, embedding) VALUES (?, ?, ?, ?, ?, ?)",
			file, c.Name, c.Kind, c.StartLine, c.Content, string(embJSON),
		); err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}

	if _, err := tx.Exec(
		"INSERT INTO files (path, hash, indexed_at) VALUES (?, ?, ?) ON CONFLICT(path) DO UPDATE SET hash=excluded.hash, indexed_at=excluded.indexed_at",
		file, hash, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("failed to record file hash: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	logging.StoreDebug("Indexed %s: %d chunks", file, len(chunks))
	return nil
}

// DeleteFile removes a file and its chunks from the index.
func (s *LocalStore) DeleteFile(file string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM chunks WHERE file = ?", file); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM files WHERE path = ?", file)
	return err
}

// FileHashes returns the recorded content hash per indexed file.
func (s *LocalStore) FileHashes() (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT path, hash FROM files")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, err
		}
		hashes[path] = hash
	}
	return hashes, rows.Err()
}

// Search returns the topK chunks most similar to the query embedding.
func (s *LocalStore) Search(queryEmbedding []float32, topK int) ([]SearchHit, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Search")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if topK <= 0 {
		topK = 5
	}

	rows, err := s.db.Query("SELECT id, file, name, kind, start_line, content, embedding FROM chunks")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	var vectors [][]float32
	for rows.Next() {
		var c Chunk
		var embJSON string
		if err := rows.Scan(&c.ID, &c.File, &c.Name, &c.Kind, &c.StartLine, &c.Content, &embJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(embJSON), &c.Embedding); err != nil {
			logging.StoreDebug("Skipping chunk %d with bad embedding: %v", c.ID, err)
			continue
		}
		chunks = append(chunks, c)
		vectors = append(vectors, c.Embedding)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	top := embedding.FindTopK(queryEmbedding, vectors, topK)
	hits := make([]SearchHit, len(top))
	for i, r := range top {
		hits[i] = SearchHit{Chunk: chunks[r.Index], Similarity: r.Similarity}
	}
	return hits, nil
}

// Stats reports index size.
func (s *LocalStore) Stats() (files, chunks int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err = s.db.QueryRow("SELECT COUNT(*) FROM files").Scan(&files); err != nil {
		return 0, 0, err
	}
	if err = s.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&chunks); err != nil {
		return 0, 0, err
	}
	return files, chunks, nil
}

// Close closes the underlying database.
func (s *LocalStore) Close() error {
	return s.db.Close()
}
