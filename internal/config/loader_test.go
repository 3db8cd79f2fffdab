package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	content := `{
	// This is a JSONC comment
	"models": {
		"default": "claude",
		"providers": {
			"claude": {
				"driver": "anthropic",
				"model": "claude-sonnet-4-20250514",
				"auth": {
					"api_key": "${{ .Env.ANTHROPIC_API_KEY }}"
				},
				"max_tokens": 4096
			}
		}
	},
	"kernel": {
		"max_iterations": 30
	}
}`

	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ANTHROPIC_API_KEY", "test-key-123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Models.Default != "claude" {
		t.Errorf("expected default claude, got %s", cfg.Models.Default)
	}

	p, ok := cfg.Models.Providers["claude"]
	if !ok {
		t.Fatal("expected claude provider")
	}
	if p.Auth.APIKey != "test-key-123" {
		t.Errorf("expected api_key test-key-123, got %s", p.Auth.APIKey)
	}
	if p.MaxTokens != 4096 {
		t.Errorf("expected max_tokens 4096, got %d", p.MaxTokens)
	}
	if cfg.Kernel.MaxIterations != 30 {
		t.Errorf("expected max_iterations 30, got %d", cfg.Kernel.MaxIterations)
	}
	// Untouched kernel thresholds still get their defaults applied.
	if cfg.Kernel.MaxContextTokens != 8000 {
		t.Errorf("expected default max_context_tokens 8000, got %d", cfg.Kernel.MaxContextTokens)
	}
}

func TestLoadDefaults(t *testing.T) {
	content := `{}`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Events.BufferSize != 1024 {
		t.Errorf("expected default buffer 1024, got %d", cfg.Events.BufferSize)
	}
	if cfg.Kernel.MaxIterations != 50 {
		t.Errorf("expected default max_iterations 50, got %d", cfg.Kernel.MaxIterations)
	}
	if cfg.Kernel.SoftRetryLimit != 2 {
		t.Errorf("expected default soft_retry_limit 2, got %d", cfg.Kernel.SoftRetryLimit)
	}
	if len(cfg.Kernel.ContinuationMarkers) == 0 {
		t.Error("expected default continuation markers to be populated")
	}
}

func TestLoadDefaults_LogLevel(t *testing.T) {
	content := `{}`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Events.LogLevel != "info" {
		t.Errorf("expected default log_level 'info', got %q", cfg.Events.LogLevel)
	}
}

func TestExpandEnvTemplates(t *testing.T) {
	t.Setenv("TEST_KEY", "my-secret")
	result := expandEnvTemplates(`{"key": "${{ .Env.TEST_KEY }}"}`)
	expected := `{"key": "my-secret"}`
	if result != expected {
		t.Errorf("expected %s, got %s", expected, result)
	}
}

func TestDefaultConfigHasUsableThresholds(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Kernel.MaxIterations != 50 {
		t.Errorf("expected default max_iterations 50, got %d", cfg.Kernel.MaxIterations)
	}
	if cfg.Events.BufferSize != 1024 {
		t.Errorf("expected default buffer 1024, got %d", cfg.Events.BufferSize)
	}
}

func TestToolsConfigIsGitPushAllowedDefaultsTrue(t *testing.T) {
	var c ToolsConfig
	if !c.IsGitPushAllowed() {
		t.Error("expected git push allowed by default")
	}
	disallowed := false
	c.AllowGitPush = &disallowed
	if c.IsGitPushAllowed() {
		t.Error("expected git push disallowed once explicitly set false")
	}
}
