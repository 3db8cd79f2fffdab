package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/marcozac/go-jsonc"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// DefaultConfig returns a Config with every threshold/default field filled
// in, for callers running without a config file on disk yet.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a JSONC config file, strips comments, expands ${{ .Env.VAR }} templates,
// unmarshals it into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variable templates (before stripping, since templates are in strings)
	expanded := expandEnvTemplates(string(data))

	// Strip JSONC comments and unmarshal
	var cfg Config
	if err := jsonc.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
	if cfg.Events.LogLevel == "" {
		cfg.Events.LogLevel = "info"
	}

	if cfg.Kernel.MaxIterations == 0 {
		cfg.Kernel.MaxIterations = 50
	}
	if cfg.Kernel.MaxContextTokens == 0 {
		cfg.Kernel.MaxContextTokens = 8000
	}
	if cfg.Kernel.MaxHealingAttempts == 0 {
		cfg.Kernel.MaxHealingAttempts = 3
	}
	if cfg.Kernel.CoachingEveryNSteps == 0 {
		cfg.Kernel.CoachingEveryNSteps = 5
	}
	if cfg.Kernel.SoftRetryLimit == 0 {
		cfg.Kernel.SoftRetryLimit = 2
	}
	if len(cfg.Kernel.ContinuationMarkers) == 0 {
		cfg.Kernel.ContinuationMarkers = []string{"...", "to be continued"}
	}
}
