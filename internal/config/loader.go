package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces lectern environment variables.
const envPrefix = "LECTERN_"

const maxConfigFileSize = 1 << 20

// Load reads configuration from a YAML file, then overrides with environment
// variables, then fills defaults and validates.
//
// Precedence (highest to lowest):
//  1. Environment variables (LECTERN_SERVER_PORT, LECTERN_ANSWER_API_KEY, ...)
//  2. YAML config file
//  3. Defaults
//
// If path is empty the default location ~/.config/lectern/config.yaml is
// used; a missing file is not an error, defaults and environment apply.
//
// Environment variables map to config keys by stripping the LECTERN_ prefix,
// lowercasing, and splitting on the first underscore:
//
//	LECTERN_SERVER_PORT           -> server.port
//	LECTERN_VECTORSTORE_PROVIDER  -> vectorstore.provider
//	LECTERN_ANSWER_API_KEY        -> answer.api_key
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		path = filepath.Join(home, ".config", "lectern", "config.yaml")
	}

	if info, err := os.Stat(path); err == nil {
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		// LECTERN_SERVER_READ_TIMEOUT -> server.read_timeout:
		// the first underscore separates section from field, the rest
		// stay as underscores within the field name.
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyDefaults(&cfg)

	// The Gemini key commonly lives in GEMINI_API_KEY outside the
	// LECTERN_ namespace.
	if cfg.Answer.APIKey == "" {
		cfg.Answer.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the built-in configuration with no file or environment
// overrides applied. Used by tests and as CLI fallback.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}
