package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"simplecoder/internal/config"
	"simplecoder/internal/logging"
)

// indexCmd builds the semantic search index ahead of time
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build or refresh the semantic code search index",
	Long: `Walks the workspace, chunks Go and Python sources into functions,
methods, and types, embeds each chunk, and stores the vectors in
.simplecoder/index.db. Unchanged files are skipped, so re-running is
cheap. Run this before "run --rag" to avoid indexing at task time.`,
	RunE: runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ws, err := resolveWorkspace()
	if err != nil {
		return err
	}

	cfg, err := config.Load(ws)
	if err != nil {
		return err
	}
	if apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("no API key: pass --api-key or set GEMINI_API_KEY")
	}

	if err := logging.Initialize(ws); err != nil {
		return err
	}

	indexer, closeStore, err := buildIndexer(ws, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	logger.Info("Indexing workspace", zap.String("workspace", ws))
	stats, err := indexer.IndexAll(ctx)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Printf("Scanned %d files: %d indexed, %d unchanged, %d chunks embedded\n",
		stats.FilesScanned, stats.FilesIndexed, stats.FilesSkipped, stats.Chunks)

	files, chunks, err := indexer.Stats()
	if err != nil {
		return fmt.Errorf("failed to read index stats: %w", err)
	}
	fmt.Printf("Index now holds %d files and %d chunks\n", files, chunks)
	return nil
}
