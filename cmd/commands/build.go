package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/selfware-kernel/internal/config"
	"github.com/dohr-michael/selfware-kernel/internal/kernel"
	"github.com/dohr-michael/selfware-kernel/internal/kernel/engine"
	"github.com/dohr-michael/selfware-kernel/internal/kernel/healing"
	"github.com/dohr-michael/selfware-kernel/internal/kernel/store"
	"github.com/dohr-michael/selfware-kernel/internal/kernel/tools"
	"github.com/dohr-michael/selfware-kernel/internal/modelclient"
)

// root returns the top-level command, where every global flag
// (--config, -C, --yolo, --output-format, -q, --no-color) is defined.
func root(cmd *cli.Command) *cli.Command {
	if r := cmd.Root(); r != nil {
		return r
	}
	return cmd
}

// loadConfig resolves the --config flag, falling back to in-memory
// defaults when no file has been written yet (e.g. first run).
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := root(cmd).String("config")
	if _, err := os.Stat(path); err != nil {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

// resolveWorkdir returns the -C/--workdir flag value, or the process cwd.
func resolveWorkdir(cmd *cli.Command) (string, error) {
	if wd := root(cmd).String("workdir"); wd != "" {
		return wd, nil
	}
	return os.Getwd()
}

// safetyModeFor maps the --yolo global flag onto a kernel.SafetyMode,
// generalising the teacher's -y/--dangerously-accept-all switch.
func safetyModeFor(cmd *cli.Command) kernel.SafetyMode {
	if root(cmd).Bool("yolo") {
		return kernel.ModeYolo
	}
	return kernel.ModeNormal
}

// outputFormat returns the resolved --output-format global flag.
func outputFormat(cmd *cli.Command) string {
	return root(cmd).String("output-format")
}

// sinkFor builds the UI event sink per --output-format/--quiet.
func sinkFor(cmd *cli.Command) engine.Sink {
	quiet := root(cmd).Bool("quiet")
	if outputFormat(cmd) == "json" {
		return newJSONSink(os.Stdout)
	}
	return newTextSink(os.Stdout, quiet)
}

// buildEngine wires a Task Kernel from the resolved config: registry with
// the builtin filesystem/exec tools, a gate built from ToolsConfig, the
// checkpoint store rooted at the configured home directory, the
// self-healing collaborators, and an OpenAI-compatible model client for
// whichever provider is selected in Models.Default.
func buildEngine(cmd *cli.Command, cfg *config.Config, workDir string, interactive bool, prompt tools.ConfirmationPrompter) (*engine.Kernel, error) {
	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry, workDir); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	gateCfg := tools.DefaultGateConfig()
	if len(cfg.Tools.ForbiddenOperations) > 0 {
		gateCfg.ForbiddenOperations = cfg.Tools.ForbiddenOperations
	}
	if len(cfg.Tools.ProtectedPaths) > 0 {
		gateCfg.ProtectedPaths = cfg.Tools.ProtectedPaths
	}
	gateCfg.AllowGitPush = cfg.Tools.IsGitPushAllowed()
	gateCfg.AllowDestructiveShell = cfg.Tools.AllowDestructiveShell
	gateCfg.AutoEditAllowList = cfg.Tools.AllowedDangerous
	gateCfg.MaxOperations = cfg.Tools.MaxOperations
	gateCfg.MaxHours = cfg.Tools.MaxHours
	gate := tools.NewGate(gateCfg, interactive, prompt)

	st, err := store.New(config.CheckpointsDir())
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}

	detector := healing.NewPatternDetector("generic_retry")
	healer := healing.NewRecoveryExecutor(cfg.Kernel.MaxHealingAttempts)
	breaker := healing.NewCircuitBreaker(healing.DefaultCircuitBreakerConfig())

	kcfg := kernel.Config{
		MaxIterations:       cfg.Kernel.MaxIterations,
		MaxContextTokens:    cfg.Kernel.MaxContextTokens,
		MaxHealingAttempts:  cfg.Kernel.MaxHealingAttempts,
		PerMessageOverhead:  4,
		ContinuationMarkers: cfg.Kernel.ContinuationMarkers,
		CoachingEveryNSteps: cfg.Kernel.CoachingEveryNSteps,
		SoftRetryLimit:      cfg.Kernel.SoftRetryLimit,
		SystemPrompt:        cfg.Agent.SystemPrompt,
	}
	if kcfg.SystemPrompt == "" {
		kcfg.SystemPrompt = kernel.DefaultConfig().SystemPrompt
	}

	llm, err := buildLLMClient(cfg)
	if err != nil {
		return nil, err
	}

	return engine.New(kcfg, llm, sinkFor(cmd), registry, gate, safetyModeFor(cmd), st, detector, healer, breaker), nil
}

func buildLLMClient(cfg *config.Config) (*modelclient.Client, error) {
	name := cfg.Models.Default
	if name == "" {
		return nil, fmt.Errorf("no default model configured (models.default)")
	}
	p, ok := cfg.Models.Providers[name]
	if !ok {
		return nil, fmt.Errorf("model provider %q not found in config", name)
	}

	timeout := time.Duration(0)
	if p.Timeout != 0 {
		timeout = p.Timeout.Duration()
	}
	apiKey := p.Auth.APIKey
	if apiKey == "" {
		apiKey = p.Auth.Token
	}
	return modelclient.New(p.BaseURL, apiKey, p.Model, timeout), nil
}
