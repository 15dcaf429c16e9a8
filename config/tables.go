package config

import (
	"errors"
	"fmt"
	"os"

	"fairplay/game"

	"gopkg.in/yaml.v3"
)

// LoadTables reads the game economy from a YAML file layered over
// game.DefaultConfig: tables present in the file replace the defaults of the
// same name, absent ones keep them. An empty path returns the defaults.
func LoadTables(path string) (game.Config, error) {
	cfg := game.DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return game.Config{}, fmt.Errorf("game tables file %s not found", path)
		}
		return game.Config{}, fmt.Errorf("read game tables: %w", err)
	}

	var override game.Config
	if err := yaml.Unmarshal(b, &override); err != nil {
		return game.Config{}, fmt.Errorf("parse game tables %s: %w", path, err)
	}

	cfg = mergeTables(cfg, override)
	if err := cfg.Validate(); err != nil {
		return game.Config{}, fmt.Errorf("game tables %s: %w", path, err)
	}
	return cfg, nil
}

// mergeTables: base <- override. Plinko merges per risk and row count.
func mergeTables(base, override game.Config) game.Config {
	if override.Crash.HouseEdgeFactor != 0 {
		base.Crash.HouseEdgeFactor = override.Crash.HouseEdgeFactor
	}
	if override.Crash.MaxMultiplier != 0 {
		base.Crash.MaxMultiplier = override.Crash.MaxMultiplier
	}

	for risk, boards := range override.Plinko {
		if base.Plinko[risk] == nil {
			base.Plinko[risk] = make(map[int][]float64, len(boards))
		}
		for rows, payouts := range boards {
			base.Plinko[risk][rows] = payouts
		}
	}
	for name, entries := range override.Crates {
		base.Crates[name] = entries
	}
	for name, entries := range override.Wheels {
		base.Wheels[name] = entries
	}
	return base
}
