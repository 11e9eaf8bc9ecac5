// Package llm hosts the text-completion provider abstraction and the two
// structured clients built on it: the response-quality evaluator and the
// cross-stage comparator. Providers are opaque asynchronous text-completion
// services; all scoring and comparison semantics live in the prompts and
// response parsing here.
package llm

import "context"

// Provider defines the interface all completion providers must implement.
// It is a deliberately narrow abstraction over different LLM services
// (Anthropic Claude, OpenAI GPT, local Ollama models).
type Provider interface {
	// Name returns the provider name (e.g., "anthropic", "openai", "ollama")
	Name() string

	// Complete sends a completion request and returns the full response.
	// This is a blocking call that waits for the entire response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest is a single text-completion request.
type CompletionRequest struct {
	// System is the system prompt framing the task
	System string `json:"system,omitempty"`

	// Prompt is the user-turn content
	Prompt string `json:"prompt"`

	// Temperature controls sampling randomness; structured tasks use 0
	Temperature float64 `json:"temperature"`

	// MaxTokens caps the response length (0 = provider default)
	MaxTokens int `json:"max_tokens,omitempty"`
}

// CompletionResponse is the provider's full response text.
type CompletionResponse struct {
	Content string `json:"content"`
}
