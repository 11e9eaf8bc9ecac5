package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/iffystrayer/greenlight/internal/types"
)

// Validate checks a configuration against struct-level validation tags plus
// cross-field rules that tags cannot express.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return types.WrapError(types.CONFIG_VALIDATION_FAILED,
			"config failed validation", err)
	}

	// The duress-accept path only makes sense when ordinary acceptance is
	// harder than force-acceptance.
	if cfg.Quality.Threshold == 0 && cfg.Quality.MaxAttempts > 1 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("quality.threshold 0 with max_attempts %d makes retries unreachable",
				cfg.Quality.MaxAttempts))
	}

	return nil
}
