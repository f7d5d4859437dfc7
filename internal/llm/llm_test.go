package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shiftbot/backend/internal/config"
)

func TestNewSelectsProvider(t *testing.T) {
	p, err := New(config.Config{AIProvider: config.ProviderOpenAI, OpenAIAPIKey: "sk-test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "openai" {
		t.Fatalf("expected openai provider, got %s", p.Name())
	}

	p, err = New(config.Config{AIProvider: config.ProviderAnthropic, AnthropicAPIKey: "sk-ant"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "anthropic" {
		t.Fatalf("expected anthropic provider, got %s", p.Name())
	}

	if _, err := New(config.Config{AIProvider: "gemini"}); err == nil {
		t.Fatalf("expected error for unsupported provider")
	}
}

func TestOpenAIChatParsesContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Fatalf("unexpected auth header: %s", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if _, ok := body["response_format"]; !ok {
			t.Fatalf("expected response_format for JSONOnly request")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": `{"ok":true}`}},
			},
		})
	}))
	defer srv.Close()

	p := NewOpenAI("sk-test")
	p.BaseURL = srv.URL
	resp, err := p.Chat(context.Background(), Request{
		System:   "be precise",
		Messages: []Message{{Role: "user", Content: "hello"}},
		JSONOnly: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != `{"ok":true}` {
		t.Fatalf("unexpected content: %s", resp.Content)
	}
}

func TestOpenAIChatParsesToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{
					"role":    "assistant",
					"content": "",
					"tool_calls": []map[string]any{
						{
							"id":   "call_1",
							"type": "function",
							"function": map[string]any{
								"name":      "get_schedule",
								"arguments": `{"start_date":"20251122","end_date":"20251122"}`,
							},
						},
					},
				}},
			},
		})
	}))
	defer srv.Close()

	p := NewOpenAI("sk-test")
	p.BaseURL = srv.URL
	resp, err := p.Chat(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "check tonight"}},
		Tools:    []Tool{{Name: "get_schedule", Parameters: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].Name != "get_schedule" || resp.ToolCalls[0].ID != "call_1" {
		t.Fatalf("unexpected tool call: %+v", resp.ToolCalls[0])
	}
}

func TestOpenAIChatRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAI("sk-test")
	p.BaseURL = srv.URL
	_, err := p.Chat(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	var rle RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
}

func TestAnthropicChatParsesBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "sk-ant" {
			t.Fatalf("unexpected api key header: %s", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": "checking the schedule"},
				{"type": "tool_use", "id": "toolu_1", "name": "count_active_crews", "input": map[string]any{"date": "20251122"}},
			},
		})
	}))
	defer srv.Close()

	p := NewAnthropic("sk-ant")
	p.BaseURL = srv.URL
	resp, err := p.Chat(context.Background(), Request{
		System:   "assistant",
		Messages: []Message{{Role: "user", Content: "tonight?"}},
		Tools:    []Tool{{Name: "count_active_crews", Parameters: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "checking the schedule" {
		t.Fatalf("unexpected content: %s", resp.Content)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "count_active_crews" {
		t.Fatalf("unexpected tool calls: %+v", resp.ToolCalls)
	}
}

func TestAnthropicChatSendsToolResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Role    string `json:"role"`
				Content []struct {
					Type      string `json:"type"`
					ToolUseID string `json:"tool_use_id"`
				} `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		last := body.Messages[len(body.Messages)-1]
		if last.Role != "user" || last.Content[0].Type != "tool_result" || last.Content[0].ToolUseID != "toolu_1" {
			t.Fatalf("expected trailing tool_result block, got %+v", last)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"type": "text", "text": "done"}},
		})
	}))
	defer srv.Close()

	p := NewAnthropic("sk-ant")
	p.BaseURL = srv.URL
	resp, err := p.Chat(context.Background(), Request{
		Messages: []Message{
			{Role: "user", Content: "tonight?"},
			{Role: "assistant", ToolCalls: []ToolCall{{ID: "toolu_1", Name: "get_schedule", Arguments: json.RawMessage(`{}`)}}},
			{Role: "tool", ToolCallID: "toolu_1", Content: `{"dates":[]}`},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "done" {
		t.Fatalf("unexpected content: %s", resp.Content)
	}
}
