package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// dotEnvFile is read before the environment is parsed. Variables already
// set in the process environment win.
var dotEnvFile = ".env"

// parseEnv overlays variables prefixed with MAILKEEPER_ onto config. Unset
// variables leave the current value untouched.
func parseEnv(config *Config) error {
	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", dotEnvFile, err)
	}
	if err := env.Parse(config); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
