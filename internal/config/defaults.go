package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/iffystrayer/greenlight/internal/llm"
)

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Core: CoreConfig{
			DataDir:          dataDir,
			OperationTimeout: 2 * time.Minute,
		},
		Database: DBConfig{
			Path:           filepath.Join(dataDir, "greenlight.db"),
			MaxConnections: 10,
			BusyTimeout:    5 * time.Second,
		},
		Quality: QualityConfig{
			Threshold:   7,
			MaxAttempts: 3,
		},
		LLM: LLMConfig{
			Evaluator:  llm.DefaultProviderConfig(),
			Comparator: llm.DefaultProviderConfig(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// defaultDataDir resolves ~/.greenlight, falling back to the working
// directory when the home directory cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".greenlight"
	}
	return filepath.Join(home, ".greenlight")
}
