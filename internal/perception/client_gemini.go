// Package perception holds the LLM client. The agent talks to Google Gemini
// over its REST API; all other packages see only the types.LLMClient
// interface so tests can substitute a mock.
package perception

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"simplecoder/internal/logging"
	"simplecoder/internal/types"
)

// ErrRateLimited is returned when the API keeps responding 429 after all
// retries. Callers can distinguish it from hard failures.
var ErrRateLimited = errors.New("rate limit exceeded")

// GeminiClient implements types.LLMClient for the Google Gemini API.
type GeminiClient struct {
	apiKey          string
	baseURL         string
	model           string
	maxOutputTokens int
	maxRetries      int
	retryBackoff    time.Duration
	httpClient      *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

// DefaultGeminiConfig returns sensible defaults.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:          apiKey,
		BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
		Model:           "gemini-3-flash-preview",
		Timeout:         5 * time.Minute,
		MaxOutputTokens: 8192,
		MaxRetries:      3,
		RetryBackoff:    time.Second,
	}
}

// NewGeminiClient creates a new Gemini client with default configuration.
func NewGeminiClient(apiKey string) *GeminiClient {
	return NewGeminiClientWithConfig(DefaultGeminiConfig(apiKey))
}

// NewGeminiClientWithConfig creates a new Gemini client with custom config.
func NewGeminiClientWithConfig(config GeminiConfig) *GeminiClient {
	defaults := DefaultGeminiConfig(config.APIKey)
	if strings.TrimSpace(config.Model) == "" {
		config.Model = defaults.Model
	}
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxOutputTokens <= 0 {
		config.MaxOutputTokens = defaults.MaxOutputTokens
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = defaults.RetryBackoff
	}

	return &GeminiClient{
		apiKey:          config.APIKey,
		baseURL:         config.BaseURL,
		model:           config.Model,
		maxOutputTokens: config.MaxOutputTokens,
		maxRetries:      config.MaxRetries,
		retryBackoff:    config.RetryBackoff,
		httpClient:      &http.Client{Timeout: config.Timeout},
	}
}

// GetModel returns the configured model name.
func (c *GeminiClient) GetModel() string {
	return c.model
}

// SetModel changes the model at runtime.
func (c *GeminiClient) SetModel(model string) {
	if strings.TrimSpace(model) != "" {
		c.model = model
	}
}

// Complete sends a single prompt and returns the text completion.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.Chat(ctx, []types.Message{{Role: types.RoleUser, Content: prompt}}, nil)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Chat sends a full conversation history with optional tool declarations
// and returns the model's response. Tool results in the history are encoded
// as functionResponse parts per the Gemini function-calling protocol.
func (c *GeminiClient) Chat(ctx context.Context, messages []types.Message, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	// Auto-apply timeout if context has no deadline
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	if c.apiKey == "" {
		return nil, fmt.Errorf("API key not configured")
	}

	startTime := time.Now()
	logging.APIDebug("[Gemini] Chat: model=%s messages=%d tools=%d", c.model, len(messages), len(tools))

	reqBody, err := c.buildRequest(messages, tools)
	if err != nil {
		return nil, err
	}

	// Pace requests slightly to be polite to the API
	c.mu.Lock()
	if elapsed := time.Since(c.lastRequest); elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	geminiResp, err := c.doRequest(ctx, reqBody)
	if err != nil {
		logging.Get(logging.CategoryAPI).Error("[Gemini] Chat failed after %v: %v", time.Since(startTime), err)
		return nil, err
	}

	result := parseResponse(geminiResp)
	logging.API("[Gemini] Chat: completed in %v text_len=%d tool_calls=%d stop_reason=%s",
		time.Since(startTime), len(result.Text), len(result.ToolCalls), result.StopReason)
	return result, nil
}

// buildRequest converts conversation history to Gemini wire format. A
// leading system message becomes systemInstruction; assistant tool calls
// become functionCall parts and tool-role messages become functionResponse
// parts.
func (c *GeminiClient) buildRequest(messages []types.Message, tools []types.ToolDefinition) (*GeminiRequest, error) {
	req := &GeminiRequest{
		GenerationConfig: GeminiGenerationConfig{
			Temperature:     1.0,
			MaxOutputTokens: c.maxOutputTokens,
		},
	}

	// callNames maps tool call IDs to function names so results can be
	// attributed. Gemini matches responses by name, not ID.
	callNames := make(map[string]string)

	for i, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			if i == 0 {
				req.SystemInstruction = &GeminiContent{
					Parts: []GeminiPart{{Text: msg.Content}},
				}
				continue
			}
			// Mid-history system messages (compaction markers) go in as user text.
			req.Contents = append(req.Contents, GeminiContent{
				Role:  "user",
				Parts: []GeminiPart{{Text: msg.Content}},
			})

		case types.RoleUser:
			req.Contents = append(req.Contents, GeminiContent{
				Role:  "user",
				Parts: []GeminiPart{{Text: msg.Content}},
			})

		case types.RoleAssistant:
			var parts []GeminiPart
			if msg.Content != "" {
				parts = append(parts, GeminiPart{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				callNames[call.ID] = call.Name
				parts = append(parts, GeminiPart{
					FunctionCall: &GeminiFunctionCall{
						Name: call.Name,
						Args: call.Input,
					},
				})
			}
			if len(parts) == 0 {
				continue
			}
			req.Contents = append(req.Contents, GeminiContent{Role: "model", Parts: parts})

		case types.RoleTool:
			name := callNames[msg.ToolCallID]
			if name == "" {
				return nil, fmt.Errorf("tool result %q has no matching tool call", msg.ToolCallID)
			}
			req.Contents = append(req.Contents, GeminiContent{
				Role: "user",
				Parts: []GeminiPart{{
					FunctionResponse: &GeminiFunctionResponse{
						Name:     name,
						Response: map[string]interface{}{"result": msg.Content},
					},
				}},
			})

		default:
			return nil, fmt.Errorf("unknown message role %q", msg.Role)
		}
	}

	if len(tools) > 0 {
		decls := make([]GeminiFunctionDeclaration, len(tools))
		for i, t := range tools {
			decls[i] = GeminiFunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			}
		}
		req.Tools = []GeminiTool{{FunctionDeclarations: decls}}
	}

	return req, nil
}

// doRequest posts the request with a retry loop. 429 and transport errors
// retry with exponential backoff; other non-200 statuses fail immediately.
func (c *GeminiClient) doRequest(ctx context.Context, reqBody *GeminiRequest) (*GeminiResponse, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			backoff := c.retryBackoff * time.Duration(1<<uint(i-1))
			logging.APIDebug("[Gemini] retry %d/%d after %v: %v", i, c.maxRetries, backoff, lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = ErrRateLimited
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var geminiResp GeminiResponse
		if err := json.Unmarshal(body, &geminiResp); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if geminiResp.Error != nil {
			return nil, fmt.Errorf("API error: %s", geminiResp.Error.Message)
		}
		return &geminiResp, nil
	}

	if errors.Is(lastErr, ErrRateLimited) {
		return nil, fmt.Errorf("%w after %d retries", ErrRateLimited, c.maxRetries)
	}
	return nil, lastErr
}

// parseResponse flattens the first candidate into text plus tool calls.
func parseResponse(resp *GeminiResponse) *types.LLMToolResponse {
	result := &types.LLMToolResponse{
		Usage: types.UsageMetadata{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		},
	}

	if len(resp.Candidates) == 0 {
		return result
	}

	result.StopReason = resp.Candidates[0].FinishReason
	var textBuilder strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			textBuilder.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			result.ToolCalls = append(result.ToolCalls, types.ToolCall{
				ID:    fmt.Sprintf("call_%d", len(result.ToolCalls)),
				Name:  part.FunctionCall.Name,
				Input: part.FunctionCall.Args,
			})
		}
	}
	result.Text = strings.TrimSpace(textBuilder.String())
	return result
}
