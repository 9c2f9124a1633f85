package main

import (
	"os"

	"github.com/naoina/toml"
	"gopkg.in/urfave/cli.v1"

	"github.com/statekit-dev/statekit/engine"
)

// fileConfig is the TOML shape read from -config; any field left zero falls
// through to the flag/env-derived default.
type fileConfig struct {
	StateDir string
	WorkDir  string
}

// loadConfig resolves an engine.Config from, in increasing priority: TOML
// config file, environment-backed CLI flags, explicit CLI flags.
func loadConfig(ctx *cli.Context) (engine.Config, error) {
	var cfg engine.Config

	if path := ctx.GlobalString(configFlag.Name); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return engine.Config{}, err
		}
		defer f.Close()

		var fc fileConfig
		if err := toml.NewDecoder(f).Decode(&fc); err != nil {
			return engine.Config{}, err
		}
		cfg.StateDir = fc.StateDir
		cfg.WorkDir = fc.WorkDir
	}

	if v := ctx.GlobalString(stateDirFlag.Name); v != "" {
		cfg.StateDir = v
	}
	if v := ctx.GlobalString(workDirFlag.Name); v != "" {
		cfg.WorkDir = v
	}
	return cfg, nil
}
