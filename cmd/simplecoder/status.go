package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"simplecoder/internal/config"
	"simplecoder/internal/store"
)

// statusCmd shows workspace configuration and index state
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show simplecoder configuration and index status",
	RunE:  showStatus,
}

func showStatus(cmd *cobra.Command, args []string) error {
	ws, err := resolveWorkspace()
	if err != nil {
		return err
	}

	cfg, err := config.Load(ws)
	if err != nil {
		return err
	}

	fmt.Printf("Workspace:      %s\n", ws)
	fmt.Printf("Model:          %s\n", cfg.LLM.Model)
	fmt.Printf("Max iterations: %d\n", cfg.Agent.MaxIterations)
	fmt.Printf("Context budget: %d tokens (keep %d recent)\n",
		cfg.ContextWindow.MaxTokens, cfg.ContextWindow.KeepRecent)

	if cfg.LLM.APIKey != "" || os.Getenv("GEMINI_API_KEY") != "" {
		fmt.Printf("API key:        configured\n")
	} else {
		fmt.Printf("API key:        missing (set GEMINI_API_KEY)\n")
	}

	dbPath := cfg.RAG.DatabasePath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(ws, dbPath)
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Printf("Search index:   not built (run \"simplecoder index\")\n")
		return nil
	}

	st, err := store.NewLocalStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open index database: %w", err)
	}
	defer st.Close()

	files, chunks, err := st.Stats()
	if err != nil {
		return fmt.Errorf("failed to read index stats: %w", err)
	}
	fmt.Printf("Search index:   %d files, %d chunks (%s)\n", files, chunks, dbPath)
	return nil
}
