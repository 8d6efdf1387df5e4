// Package common provides shared utilities for command implementations.
package common

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/banalytics/harvester/internal/config"
	"github.com/banalytics/harvester/internal/logger"
)

// CommandDeps holds the dependencies every command starts from. Use this
// instead of context.Value for type-safe dependency injection.
type CommandDeps struct {
	Config *config.Config
	Logger logger.Interface
}

// NewCommandDeps loads the configuration bound in viper and builds the
// logger from it.
func NewCommandDeps() (CommandDeps, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return CommandDeps{}, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return CommandDeps{}, fmt.Errorf("create logger: %w", err)
	}

	return CommandDeps{Config: cfg, Logger: log}, nil
}
