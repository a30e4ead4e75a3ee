package main

import (
	"github.com/pkg/errors"

	"github.com/mcpatch-go/mcpatch/internal/config"
)

// configPath is shared across every subcommand via a persistent root flag.
var configPath string

func init() {
	rootCommand.PersistentFlags().StringVar(&configPath, "config", "mcpatch-manager.yml", "path to the manager configuration file")
}

func loadManagerConfig() (*config.ManagerConfig, error) {
	cfg, err := config.LoadManagerConfig(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load manager configuration")
	}
	return cfg, nil
}
