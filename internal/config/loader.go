package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file and returns it with defaults applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document into a Config. ${VAR} and ${VAR:-fallback}
// references are expanded from the environment first. Unknown keys are an
// error so a misspelled section does not silently fall back to defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.Expand(string(data), lookupEnv)

	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// LoadAndValidate loads and validates the config at path. An empty path
// yields Default.
func LoadAndValidate(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Default returns a config with every default applied and the in-memory
// store selected.
func Default() *Config {
	cfg := &Config{Instance: InstanceConfig{ID: "barsync"}}
	cfg.ApplyDefaults()
	return cfg
}

// lookupEnv resolves NAME or NAME:-fallback. Unset and empty variables
// both take the fallback.
func lookupEnv(ref string) string {
	name, fallback, _ := strings.Cut(ref, ":-")
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
