// Package config provides configuration management for the jobcrawl
// application.
package config

import (
	"errors"
	"fmt"
)

// Common configuration errors.
var (
	// ErrConfigInvalid is returned when the configuration is invalid.
	ErrConfigInvalid = errors.New("invalid configuration")
	// ErrMissingSecret is returned when a SECRET: reference cannot be resolved.
	ErrMissingSecret = errors.New("secret reference not resolvable")
)

// ValidationError represents an error in configuration validation.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid config: field %q %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid config: field %q with value %v: %s", e.Field, e.Value, e.Reason)
}

// LoadError represents an error loading configuration.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load config from %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
