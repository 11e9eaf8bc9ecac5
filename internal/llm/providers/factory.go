package providers

import (
	"fmt"

	"github.com/iffystrayer/greenlight/internal/llm"
)

// NewProvider creates the configured provider, wrapped with the configured
// client-side rate limit.
func NewProvider(cfg llm.ProviderConfig) (llm.Provider, error) {
	var (
		p   llm.Provider
		err error
	)

	switch cfg.Provider {
	case "openai":
		p, err = NewOpenAIProvider(cfg)
	case "anthropic":
		p, err = NewAnthropicProvider(cfg)
	case "ollama":
		p, err = NewOllamaProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return llm.NewRateLimited(p, cfg.RequestsPerSecond), nil
}
