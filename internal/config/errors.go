package config

import "errors"

// Sentinel kinds for configuration errors, checked with errors.Is.
var (
	// ErrLoadConfig wraps failures while reading the file or environment.
	ErrLoadConfig = errors.New("load config failed")

	// ErrInvalidConfig wraps values that parsed but fail validation.
	ErrInvalidConfig = errors.New("invalid config")
)
