package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"simplecoder/internal/agent"
	"simplecoder/internal/config"
	ctxwin "simplecoder/internal/context"
	"simplecoder/internal/embedding"
	"simplecoder/internal/logging"
	"simplecoder/internal/perception"
	"simplecoder/internal/permissions"
	"simplecoder/internal/planner"
	"simplecoder/internal/rag"
	"simplecoder/internal/store"
	"simplecoder/internal/tools"
	"simplecoder/internal/tools/core"
	"simplecoder/internal/tools/research"
	"simplecoder/internal/types"
)

var (
	usePlan       bool
	useRAG        bool
	autoApprove   bool
	interactive   bool
	maxIterations int
)

// errTaskFailed maps a FAILED loop termination onto a non-zero exit code.
var errTaskFailed = errors.New("task did not complete")

// runCmd executes a single task through the ReAct loop
var runCmd = &cobra.Command{
	Use:   "run [task]",
	Short: "Execute a task through the ReAct loop",
	Long: `Runs a natural-language task through the reason/act/observe loop:
  1. Reason: the model decides the next step given the conversation so far
  2. Act: requested tool calls are validated, permission-gated, and executed
  3. Observe: results are appended as observations and the loop repeats
  4. Done: the model answers without tool calls, or the iteration cap is hit

With --plan the task is first decomposed into 3-7 subtasks, each driven
through its own loop invocation. With --rag the workspace is indexed and
the search_codebase tool becomes available.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

func init() {
	runCmd.Flags().BoolVar(&usePlan, "plan", false, "Decompose the task into subtasks first")
	runCmd.Flags().BoolVar(&useRAG, "rag", false, "Index the workspace and enable semantic code search")
	runCmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "Approve all mutating operations without prompting")
	runCmd.Flags().BoolVar(&interactive, "interactive", true, "Prompt for permission on mutating operations")
	runCmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "Override the reasoning iteration cap")
}

func runTask(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

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
	if cmd.Flags().Changed("max-iterations") {
		cfg.Agent.MaxIterations = maxIterations
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("no API key: pass --api-key or set GEMINI_API_KEY")
	}

	if err := logging.Initialize(ws); err != nil {
		return err
	}

	task := strings.Join(args, " ")
	logger.Info("Processing task",
		zap.String("task", task),
		zap.String("workspace", ws),
		zap.Bool("plan", usePlan),
		zap.Bool("rag", useRAG))

	client := perception.NewGeminiClientWithConfig(perception.GeminiConfig{
		APIKey:          cfg.LLM.APIKey,
		BaseURL:         cfg.LLM.BaseURL,
		Model:           cfg.LLM.Model,
		Timeout:         cfg.LLM.Timeout,
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		MaxRetries:      cfg.LLM.MaxRetries,
		RetryBackoff:    cfg.LLM.RetryBackoff,
	})

	registry := tools.NewRegistry()
	if err := core.RegisterAll(registry, ws); err != nil {
		return fmt.Errorf("failed to register core tools: %w", err)
	}
	if err := registry.Register(research.WebSearchTool()); err != nil {
		return fmt.Errorf("failed to register web search: %w", err)
	}

	if useRAG {
		indexer, closeStore, err := buildIndexer(ws, cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		fmt.Fprintln(os.Stderr, "Indexing workspace...")
		stats, err := indexer.IndexAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to index workspace: %w", err)
		}
		logger.Info("Workspace indexed",
			zap.Int("scanned", stats.FilesScanned),
			zap.Int("indexed", stats.FilesIndexed),
			zap.Int("chunks", stats.Chunks))

		if err := registry.Register(rag.SearchCodebaseTool(indexer)); err != nil {
			return fmt.Errorf("failed to register semantic search: %w", err)
		}

		if cfg.RAG.WatchChanges {
			watcher, err := rag.NewWatcher(indexer)
			if err != nil {
				return fmt.Errorf("failed to create file watcher: %w", err)
			}
			if err := watcher.Start(ctx); err != nil {
				return fmt.Errorf("failed to start file watcher: %w", err)
			}
			defer watcher.Stop()
		}
	}

	var prompter permissions.Prompter
	if interactive && !autoApprove {
		prompter = permissions.NewTerminalPrompter()
	}
	perms := permissions.NewManager(autoApprove, prompter)

	dispatcher := tools.NewDispatcher(registry, perms, cfg.Agent.ToolTimeout)
	compactor := ctxwin.NewCompactor(cfg.ContextWindow.MaxTokens, cfg.ContextWindow.KeepRecent, cfg.ContextWindow.CompactThreshold)

	ag := agent.New(client, dispatcher, compactor, agent.Config{
		MaxIterations: cfg.Agent.MaxIterations,
		RetryBudget:   cfg.Agent.RetryBudget,
		RetryBackoff:  cfg.Agent.RetryBackoff,
		Verbose:       verbose,
	})

	session := types.NewSession(autoApprove)

	var (
		answer string
		failed bool
	)
	if usePlan {
		pl := planner.New(client)
		plan, err := pl.CreatePlan(ctx, task)
		if err != nil {
			return fmt.Errorf("planning failed: %w", err)
		}
		answer, failed = pl.Execute(ctx, plan, ag, session)
	} else {
		res := ag.Run(ctx, task, session)
		answer, failed = res.Answer, res.Failed
	}

	fmt.Println(answer)
	if failed {
		return errTaskFailed
	}
	return nil
}

// buildIndexer wires the SQLite store and embedding engine behind the
// semantic search indexer. The returned func closes the store.
func buildIndexer(ws string, cfg *config.Config) (*rag.Indexer, func(), error) {
	dbPath := cfg.RAG.DatabasePath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(ws, dbPath)
	}
	st, err := store.NewLocalStore(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open index database: %w", err)
	}

	engine, err := embedding.NewEngine(embeddingConfig(cfg))
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("failed to create embedding engine: %w", err)
	}

	return rag.NewIndexer(ws, st, engine), func() { st.Close() }, nil
}

// embeddingConfig maps the rag config section onto the embedding engine
// settings. The embedding_model knob names the model for whichever provider
// is selected.
func embeddingConfig(cfg *config.Config) embedding.Config {
	embedCfg := embedding.DefaultConfig(cfg.LLM.APIKey)
	if cfg.RAG.EmbeddingProvider != "" {
		embedCfg.Provider = cfg.RAG.EmbeddingProvider
	}
	if cfg.RAG.OllamaEndpoint != "" {
		embedCfg.OllamaEndpoint = cfg.RAG.OllamaEndpoint
	}
	if cfg.RAG.EmbeddingModel != "" {
		if embedCfg.Provider == "ollama" {
			embedCfg.OllamaModel = cfg.RAG.EmbeddingModel
		} else {
			embedCfg.GenAIModel = cfg.RAG.EmbeddingModel
		}
	}
	return embedCfg
}
