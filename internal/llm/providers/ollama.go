package providers

import (
	"context"

	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/iffystrayer/greenlight/internal/llm"
)

// defaultOllamaModel is used when no model is configured.
const defaultOllamaModel = "llama3"

// OllamaProvider implements llm.Provider for local Ollama models.
type OllamaProvider struct {
	client *ollama.LLM
	config llm.ProviderConfig
}

// NewOllamaProvider creates a new Ollama provider. No API key is required;
// the server URL defaults to the local Ollama daemon.
func NewOllamaProvider(cfg llm.ProviderConfig) (*OllamaProvider, error) {
	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}

	opts := []ollama.Option{
		ollama.WithModel(model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}

	client, err := ollama.New(opts...)
	if err != nil {
		return nil, llm.TranslateError("ollama", err)
	}

	return &OllamaProvider{client: client, config: cfg}, nil
}

// Name returns the provider name.
func (p *OllamaProvider) Name() string {
	return "ollama"
}

// Complete sends a completion request and returns the full response.
func (p *OllamaProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return generate(ctx, p.Name(), p.client, req)
}

var _ llm.Provider = (*OllamaProvider)(nil)
