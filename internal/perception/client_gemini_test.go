package perception

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"simplecoder/internal/types"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *GeminiClient) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewGeminiClientWithConfig(GeminiConfig{
		APIKey:       "test-key",
		BaseURL:      srv.URL,
		Model:        "test-model",
		Timeout:      5 * time.Second,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	})
	return srv, client
}

func textResponse(text string) string {
	return `{"candidates":[{"content":{"parts":[{"text":"` + text + `"}],"role":"model"},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":5,"totalTokenCount":15}}`
}

func TestChatTextResponse(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(textResponse("hello")))
	})

	resp, err := client.Chat(context.Background(), []types.Message{
		{Role: types.RoleUser, Content: "hi"},
	}, nil)
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if resp.Text != "hello" {
		t.Errorf("Text = %q, want %q", resp.Text, "hello")
	}
	if !resp.IsFinal() {
		t.Error("response with no tool calls should be final")
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", resp.Usage.TotalTokens)
	}
}

func TestChatToolCallResponse(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"functionCall":{"name":"read_file","args":{"path":"main.go"}}}],"role":"model"},"finishReason":"STOP"}]}`))
	})

	resp, err := client.Chat(context.Background(), []types.Message{
		{Role: types.RoleUser, Content: "read main.go"},
	}, []types.ToolDefinition{{Name: "read_file"}})
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %d, want 1", len(resp.ToolCalls))
	}
	call := resp.ToolCalls[0]
	if call.Name != "read_file" {
		t.Errorf("call name = %q, want read_file", call.Name)
	}
	if call.Input["path"] != "main.go" {
		t.Errorf("call input path = %v, want main.go", call.Input["path"])
	}
	if resp.IsFinal() {
		t.Error("response with tool calls should not be final")
	}
}

func TestChatWireFormat(t *testing.T) {
	var captured GeminiRequest
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(textResponse("ok")))
	})

	history := []types.Message{
		{Role: types.RoleSystem, Content: "you are a coding agent"},
		{Role: types.RoleUser, Content: "list files"},
		{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{
			{ID: "call_0", Name: "list_files", Input: map[string]interface{}{"path": "."}},
		}},
		{Role: types.RoleTool, ToolCallID: "call_0", Content: "main.go"},
	}
	if _, err := client.Chat(context.Background(), history, []types.ToolDefinition{{Name: "list_files"}}); err != nil {
		t.Fatalf("Chat() error: %v", err)
	}

	if captured.SystemInstruction == nil || captured.SystemInstruction.Parts[0].Text != "you are a coding agent" {
		t.Error("system message not mapped to systemInstruction")
	}
	if len(captured.Contents) != 3 {
		t.Fatalf("Contents = %d, want 3", len(captured.Contents))
	}
	if captured.Contents[1].Role != "model" || captured.Contents[1].Parts[0].FunctionCall == nil {
		t.Error("assistant tool call not mapped to model functionCall part")
	}
	fr := captured.Contents[2].Parts[0].FunctionResponse
	if fr == nil || fr.Name != "list_files" {
		t.Errorf("tool result not mapped to functionResponse, got %+v", captured.Contents[2])
	}
	if len(captured.Tools) != 1 || len(captured.Tools[0].FunctionDeclarations) != 1 {
		t.Error("tool declarations missing from request")
	}
}

func TestChatRateLimitRetries(t *testing.T) {
	attempts := 0
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(textResponse("recovered")))
	})

	resp, err := client.Chat(context.Background(), []types.Message{{Role: types.RoleUser, Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if resp.Text != "recovered" {
		t.Errorf("Text = %q, want recovered", resp.Text)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestChatRateLimitExhausted(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Chat(context.Background(), []types.Message{{Role: types.RoleUser, Content: "hi"}}, nil)
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("err = %v, want ErrRateLimited", err)
	}
}

func TestChatServerError(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"bad request"}}`))
	})

	_, err := client.Chat(context.Background(), []types.Message{{Role: types.RoleUser, Content: "hi"}}, nil)
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
}

func TestChatMissingAPIKey(t *testing.T) {
	client := NewGeminiClient("")
	_, err := client.Chat(context.Background(), []types.Message{{Role: types.RoleUser, Content: "hi"}}, nil)
	if err == nil {
		t.Fatal("expected error with empty API key")
	}
}

func TestComplete(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(textResponse("done")))
	})
	got, err := client.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if got != "done" {
		t.Errorf("Complete() = %q, want done", got)
	}
}
