package rag

import (
	"context"
	"fmt"
	"strings"

	"simplecoder/internal/tools"
)

const previewLimit = 300

// SearchCodebaseTool returns the semantic search tool backed by the indexer.
func SearchCodebaseTool(indexer *Indexer) *tools.Tool {
	return &tools.Tool{
		Name:        "search_codebase",
		Description: "Semantically search the codebase for functions, classes, or code by PURPOSE. Use this to find code by what it DOES (e.g., 'authentication logic', 'database queries'), not by filename.",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			query, _ := args["query"].(string)
			if query == "" {
				return "", fmt.Errorf("query is required")
			}
			topK := 5
			if mr, ok := args["max_results"].(float64); ok && mr > 0 {
				topK = int(mr)
			}

			hits, err := indexer.Search(ctx, query, topK)
			if err != nil {
				return "", fmt.Errorf("codebase search failed: %w", err)
			}
			if len(hits) == 0 {
				return "No code found matching: " + query, nil
			}

			var sb strings.Builder
			fmt.Fprintf(&sb, "Semantic search results for %q:\n", query)
			for i, hit := range hits {
				preview := hit.Content
				if len(preview) > previewLimit {
					preview = preview[:previewLimit] + "..."
				}
				fmt.Fprintf(&sb, "\n%d. %s: %s\n   File: %s:%d (similarity %.2f)\n   Code preview:\n%s\n",
					i+1, strings.ToUpper(hit.Kind), hit.Name, hit.File, hit.StartLine, hit.Similarity, preview)
			}
			return sb.String(), nil
		},
		Schema: tools.ToolSchema{
			Required: []string{"query"},
			Properties: map[string]tools.Property{
				"query": {
					Type:        "string",
					Description: "What you're looking for (e.g., 'permission checking functions', 'file writing code')",
				},
				"max_results": {
					Type:        "integer",
					Description: "Number of results to return (default: 5)",
					Default:     5,
				},
			},
		},
	}
}
