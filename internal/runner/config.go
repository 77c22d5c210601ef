// Package runner holds the scenario-level glue around the fuzz engine:
// config file loading and failure-artifact writing for the CLI.
package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/drivefuzz/pkg/fuzz"
)

// Config errors.
var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigInvalid      = errors.New("invalid config file")
	errSeedEmpty          = errors.New("seed cannot be empty")
	errIterationsInvalid  = errors.New("iterations must be positive")
)

// Config holds one scenario plus CLI-only settings. Config files are JSONC
// (JSON with comments and trailing commas).
type Config struct {
	fuzz.Scenario

	// ArtifactDir receives failure artifacts. Empty disables them.
	ArtifactDir string `json:"artifact_dir,omitempty"`
}

// DefaultConfig returns the default scenario configuration.
func DefaultConfig() Config {
	return Config{
		Scenario: fuzz.Scenario{
			Seed:       "hyperdrive",
			Iterations: 1000,
		},
	}
}

// LoadConfig merges defaults with an optional config file. An explicitly
// given path must exist; the empty path means defaults only.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, readErr := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return Config{}, fmt.Errorf("%w: %s", errConfigFileNotFound, path)
		}

		return Config{}, fmt.Errorf("reading config %s: %w", path, readErr)
	}

	fileCfg, parseErr := parseConfig(data)
	if parseErr != nil {
		return Config{}, fmt.Errorf("%w %s: %w", errConfigInvalid, path, parseErr)
	}

	cfg = mergeConfig(cfg, fileCfg)

	validateErr := validateConfig(cfg)
	if validateErr != nil {
		return Config{}, fmt.Errorf("%w %s: %w", errConfigInvalid, path, validateErr)
	}

	return cfg, nil
}

func parseConfig(data []byte) (Config, error) {
	// Standardize JSONC to JSON.
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	unmarshalErr := json.Unmarshal(standardized, &cfg)
	if unmarshalErr != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", unmarshalErr)
	}

	return cfg, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.Seed != "" {
		base.Seed = overlay.Seed
	}

	if overlay.Iterations != 0 {
		base.Iterations = overlay.Iterations
	}

	if overlay.Debugging {
		base.Debugging = true
	}

	if overlay.Replicated {
		base.Replicated = true
	}

	if overlay.ArtifactDir != "" {
		base.ArtifactDir = overlay.ArtifactDir
	}

	return base
}

func validateConfig(cfg Config) error {
	if cfg.Seed == "" {
		return errSeedEmpty
	}

	if cfg.Iterations <= 0 {
		return errIterationsInvalid
	}

	return nil
}
