package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Resolve picks the config file path: the explicit flag value, else
// $LOOM_CONFIG, else ./loom.yaml when it exists. An empty result means
// defaults plus environment only.
func Resolve(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if path := os.Getenv("LOOM_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat("loom.yaml"); err == nil {
		return "loom.yaml"
	}
	return ""
}

// Load builds a Config by layering defaults, the optional YAML file at path,
// and LOOM_* environment variables.
// Order of precedence (low -> high):
//  1. defaults (Default())
//  2. file (YAML) if path is non-empty
//  3. env (prefix LOOM_)
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Environment variables: LOOM_PLATFORM_BASE_URL -> platform.base_url.
	// Only the first underscore separates section from key, so key names may
	// themselves contain underscores. List-valued keys are comma-separated
	// and must be split here; koanf's unmarshal does not split strings.
	envProvider := env.ProviderWithValue("LOOM_", ".", func(key, value string) (string, any) {
		key = strings.ToLower(key)
		key = strings.TrimPrefix(key, "loom_")
		key = strings.Replace(key, "_", ".", 1)
		if key == "score.groups" {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			return key, parts
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("loading environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.Platform.BaseURL == "" {
		return Config{}, errors.New("platform.base_url must not be empty")
	}
	if cfg.Wait.Interval <= 0 {
		return Config{}, errors.New("wait.interval must be positive")
	}
	if cfg.Ingest.Workers <= 0 {
		return Config{}, errors.New("ingest.workers must be positive")
	}
	return cfg, nil
}
