package config

import "time"

// Config is the kernel's root configuration, loaded from
// $SELFWARE_HOME/config.jsonc. Trimmed to what the kernel, tool gate, and
// CLI actually consume; the gateway/skills/plugin/embedding sections of
// the multi-session system this was adapted from are out of scope (see
// DESIGN.md).
type Config struct {
	Models  ModelsConfig  `json:"models"`
	Agent   AgentConfig   `json:"agent"`
	Kernel  KernelConfig  `json:"kernel"`
	Tools   ToolsConfig   `json:"tools"`
	Events  EventsConfig  `json:"events"`
}

// KernelConfig holds the kernel's tunable thresholds, as read from config
// before being translated into kernel.Config.
type KernelConfig struct {
	MaxIterations       int      `json:"max_iterations"`
	MaxContextTokens    int      `json:"max_context_tokens"`
	MaxHealingAttempts  int      `json:"max_healing_attempts"`
	CoachingEveryNSteps int      `json:"coaching_every_n_steps"`
	SoftRetryLimit      int      `json:"soft_retry_limit"`
	ContinuationMarkers []string `json:"continuation_markers,omitempty"`
}

// ModelsConfig holds model provider configuration.
type ModelsConfig struct {
	Default   string                    `json:"default"`
	Providers map[string]ProviderConfig `json:"providers"`
}

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	Driver        string         `json:"driver"` // "anthropic", "openai", "ollama"
	Model         string         `json:"model"`
	BaseURL       string         `json:"base_url,omitempty"`
	Auth          AuthConfig     `json:"auth"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	ContextWindow int            `json:"context_window,omitempty"`
	Timeout       Duration       `json:"timeout,omitempty"`
	Options       map[string]any `json:"options,omitempty"`
}

// AuthConfig configures API key resolution.
type AuthConfig struct {
	APIKey string `json:"api_key,omitempty"` // Direct API key or ${{ .Env.VAR }} template
	Token  string `json:"token,omitempty"`   // OAuth/Bearer token
}

// ToolsConfig configures the tool gate.
type ToolsConfig struct {
	AllowedDangerous      []string `json:"allowed_dangerous"`       // tool names auto-approved for Write/Exec in AutoEdit mode
	ForbiddenOperations   []string `json:"forbidden_operations,omitempty"`
	ProtectedPaths        []string `json:"protected_paths,omitempty"`
	AllowGitPush          *bool    `json:"allow_git_push,omitempty"` // default: true
	AllowDestructiveShell bool     `json:"allow_destructive_shell,omitempty"`
	MaxOperations         int      `json:"max_operations,omitempty"`
	MaxHours              float64  `json:"max_hours,omitempty"`
}

// IsGitPushAllowed returns true if git push is allowed (default: true).
func (c ToolsConfig) IsGitPushAllowed() bool {
	if c.AllowGitPush == nil {
		return true
	}
	return *c.AllowGitPush
}

// AgentConfig holds the system prompt handed to the LLM client.
type AgentConfig struct {
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int    `json:"buffer_size"`
	LogLevel   string `json:"log_level"` // "debug" | "info" | "warn" | "error" (default: "info")
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
