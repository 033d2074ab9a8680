package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if BENCHWATCH_CONFIG is set
//  3. env (prefix BENCHWATCH_)
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("BENCHWATCH_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: BENCHWATCH_ADDR, BENCHWATCH_DRIFT_WINDOW, ...
	// Keys keep their underscores to match the koanf tags on the struct.
	envProvider := env.Provider("BENCHWATCH_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "benchwatch_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.HighThreshold <= c.LowThreshold:
		return fmt.Errorf("%w: high_threshold must exceed low_threshold", ErrInvalidConfig)
	case c.Storage != StorageMemory && c.Storage != StorageSQLite:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, c.Storage)
	case c.MaxParallelCohorts < 1:
		return fmt.Errorf("%w: max_parallel_cohorts must be positive", ErrInvalidConfig)
	}
	return nil
}
