package config

import (
	"time"

	"github.com/iffystrayer/greenlight/internal/llm"
)

// Config is the root configuration for the Greenlight engine.
type Config struct {
	Core     CoreConfig    `mapstructure:"core" yaml:"core" validate:"required"`
	Database DBConfig      `mapstructure:"database" yaml:"database" validate:"required"`
	Quality  QualityConfig `mapstructure:"quality" yaml:"quality" validate:"required"`
	Gate     GateConfig    `mapstructure:"gate" yaml:"gate"`
	LLM      LLMConfig     `mapstructure:"llm" yaml:"llm" validate:"required"`
	Logging  LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Tracing  TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

// CoreConfig contains core application settings.
type CoreConfig struct {
	// DataDir is where the engine keeps its database and artifacts
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`

	// OperationTimeout bounds a single orchestrator operation end to end
	OperationTimeout time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout" validate:"min=1s"`

	// Debug enables verbose logging
	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// DBConfig contains database configuration.
type DBConfig struct {
	Path           string        `mapstructure:"path" yaml:"path"`
	MaxConnections int           `mapstructure:"max_connections" yaml:"max_connections" validate:"min=1,max=100"`
	BusyTimeout    time.Duration `mapstructure:"busy_timeout" yaml:"busy_timeout" validate:"min=1s"`
}

// QualityConfig parameterizes the response acceptance policy.
type QualityConfig struct {
	// Threshold is the minimum score for ordinary acceptance (0..10)
	Threshold int `mapstructure:"threshold" yaml:"threshold" validate:"min=0,max=10"`

	// MaxAttempts is the attempt count at which responses are force-accepted
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts" validate:"min=1,max=10"`
}

// GateConfig points at an optional ruleset override.
type GateConfig struct {
	// RulesetPath is a YAML file overriding the built-in stage rulesets;
	// empty uses the built-ins
	RulesetPath string `mapstructure:"ruleset_path" yaml:"ruleset_path,omitempty"`
}

// LLMConfig holds the evaluator and comparator provider configurations.
// They may point at different providers (e.g., a cheap local model for
// per-response scoring, a stronger model for the one-time consistency check).
type LLMConfig struct {
	Evaluator  llm.ProviderConfig `mapstructure:"evaluator" yaml:"evaluator" validate:"required"`
	Comparator llm.ProviderConfig `mapstructure:"comparator" yaml:"comparator" validate:"required"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=json text"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}
