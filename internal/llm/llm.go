// Package llm abstracts the chat-completion providers the bot can run on.
// The provider is chosen once at construction; callers only see the Provider
// interface.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shiftbot/backend/internal/config"
)

type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a provider-issued request to invoke one tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Tool describes one callable tool: name, description and a JSON-schema
// object for its parameters.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type Request struct {
	System      string
	Messages    []Message
	Tools       []Tool
	Temperature float64
	MaxTokens   int
	// JSONOnly asks the provider for a strict machine-parseable JSON object
	// where the provider supports it.
	JSONOnly bool
}

type Response struct {
	Content   string
	ToolCalls []ToolCall
}

type Provider interface {
	Chat(ctx context.Context, req Request) (Response, error)
	Name() string
}

// New selects the provider from configuration. The choice is made once here,
// not re-checked per call.
func New(cfg config.Config) (Provider, error) {
	switch cfg.AIProvider {
	case config.ProviderOpenAI:
		return NewOpenAI(cfg.OpenAIAPIKey), nil
	case config.ProviderAnthropic:
		return NewAnthropic(cfg.AnthropicAPIKey), nil
	default:
		return nil, fmt.Errorf("unsupported AI provider: %q", cfg.AIProvider)
	}
}

type RateLimitError struct {
	RetryAfter time.Duration
}

func (r RateLimitError) Error() string {
	if r.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", r.RetryAfter)
	}
	return "rate limited"
}

// requestTimeout caps an outbound provider call, shrinking to the context
// deadline when one is closer.
func requestTimeout(ctx context.Context, fallback time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < fallback {
			return remaining
		}
	}
	return fallback
}
