package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads, defaults, and validates the configuration file at path.
// Malformed or self-inconsistent configuration is an error here, at
// startup; the engine never discovers configuration problems per request.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes configuration from raw YAML, applying defaults and
// validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies MERIDIAN_SECTION_FIELD environment variables on
// top of file values. Only operational knobs are overridable; routing
// structure (endpoints, pipelines) always comes from the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MERIDIAN_HTTP_LISTEN_ADDRESS"); v != "" {
		cfg.HTTP.ListenAddress = v
	}
	if v := os.Getenv("MERIDIAN_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MERIDIAN_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("MERIDIAN_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("MERIDIAN_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("MERIDIAN_OAUTH2_SIGNING_SECRET"); v != "" {
		cfg.OAuth2.SigningSecret = v
	}
	if v := os.Getenv("MERIDIAN_OAUTH2_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.OAuth2.TokenTTL = Duration(d)
		}
	}
}
