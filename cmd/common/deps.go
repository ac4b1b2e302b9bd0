// Package common provides shared dependency construction for command
// implementations.
package common

import (
	"fmt"
	"strings"

	"github.com/jonesrussell/jobcrawl/internal/config"
	"github.com/jonesrussell/jobcrawl/internal/logger"
)

// Root-command flag values, recorded by SetFlags before any subcommand
// builds its dependencies.
var (
	cfgPath   string
	debugMode bool
)

// SetFlags records the persistent flag values from the root command.
func SetFlags(configPath string, debug bool) {
	cfgPath = configPath
	debugMode = debug
}

// CommandDeps holds common dependencies for all commands.
// Use this instead of context.Value for type-safe dependency injection.
type CommandDeps struct {
	Config *config.Config
	Logger logger.Interface
}

// NewCommandDeps loads configuration and creates the logger.
func NewCommandDeps() (*CommandDeps, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if debugMode {
		cfg.App.Debug = true
		cfg.Logging.Level = "debug"
	}

	log, err := newLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	deps := &CommandDeps{Config: cfg, Logger: log}
	if validateErr := deps.Validate(); validateErr != nil {
		return nil, fmt.Errorf("validate deps: %w", validateErr)
	}
	return deps, nil
}

// Validate ensures all required dependencies are present.
func (d *CommandDeps) Validate() error {
	if d.Logger == nil {
		return ErrLoggerRequired
	}
	if d.Config == nil {
		return ErrConfigRequired
	}
	return nil
}

// newLogger creates a logger instance from the logging config.
func newLogger(cfg *config.LoggingConfig) (logger.Interface, error) {
	encoding := cfg.Format
	if encoding == "" {
		encoding = "json"
	}
	return logger.New(&logger.Config{
		Level:       logger.Level(strings.ToLower(cfg.Level)),
		Development: cfg.Development,
		Encoding:    encoding,
	})
}
