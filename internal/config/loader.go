package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/iffystrayer/greenlight/internal/types"
)

// Load reads configuration from an optional YAML file layered over defaults,
// with environment overrides under the GREENLIGHT_ prefix
// (e.g. GREENLIGHT_LLM_EVALUATOR_API_KEY). An empty path loads defaults plus
// environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GREENLIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, types.WrapError(types.CONFIG_LOAD_FAILED,
				"failed to read config file", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, types.WrapError(types.CONFIG_PARSE_FAILED,
			"failed to parse config", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
