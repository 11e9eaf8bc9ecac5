package llm

import "time"

// ProviderConfig holds configuration for one completion provider.
type ProviderConfig struct {
	// Provider selects the implementation: "openai", "anthropic", or "ollama"
	Provider string `mapstructure:"provider" yaml:"provider" validate:"required,oneof=openai anthropic ollama"`

	// Model is the model identifier; empty uses the provider default
	Model string `mapstructure:"model" yaml:"model"`

	// APIKey authenticates with the provider. Falls back to the provider's
	// conventional environment variable when empty.
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`

	// BaseURL overrides the provider endpoint (local gateways, proxies)
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"`

	// RequestsPerSecond rate-limits outbound calls; 0 disables limiting
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second" validate:"min=0"`

	// Timeout bounds each completion call
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"min=1s"`
}

// DefaultProviderConfig returns a config suitable for local development.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Provider:          "anthropic",
		RequestsPerSecond: 2,
		Timeout:           30 * time.Second,
	}
}
