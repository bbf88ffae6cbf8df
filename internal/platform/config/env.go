package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

const EnvPrefix = "TRAFFICCOP_"

// ParseEnv loads TRAFFICCOP_-prefixed environment variables into target.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
