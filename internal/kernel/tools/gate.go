package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dohr-michael/selfware-kernel/internal/kernel"
)

// DecisionKind enumerates the Gate's possible verdicts for a pending
// ToolCall, per spec.md §4.4.
type DecisionKind string

const (
	AutoApprove         DecisionKind = "auto_approve"
	RequireConfirmation DecisionKind = "require_confirmation"
	Block               DecisionKind = "block"
)

// Decision is the Gate's verdict plus its human-readable reason.
type Decision struct {
	Kind   DecisionKind
	Reason string
}

// ErrConfirmationRequiredNonInteractive is the one class of error that must
// not be routed through self-healing (spec.md §4.4, §7): a
// RequireConfirmation verdict reached while running non-interactively.
var ErrConfirmationRequiredNonInteractive = errors.New("tool gate: confirmation required but running non-interactively")

// GateConfig holds the forbidden-pattern / protected-path / budget
// configuration driving gate decisions. Defaults mirror
// original_source/src/safety/yolo.rs's YoloConfig::default().
type GateConfig struct {
	ForbiddenOperations   []string
	ProtectedPaths        []string
	AllowGitPush          bool
	AllowDestructiveShell bool
	AutoEditAllowList     []string // tool names auto-approved for Exec/Network in AutoEdit mode
	MaxOperations         int      // 0 = unbounded
	MaxHours              float64  // 0 = unbounded
}

// DefaultGateConfig mirrors the Rust original's Default impl for YoloConfig.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		ForbiddenOperations: []string{
			"rm -rf /", "rm -rf /*", "dd if=/dev/zero", "mkfs", "> /dev/sda", "chmod -R 777 /",
		},
		ProtectedPaths:        []string{"/etc", "/usr", "/bin", "/sbin", "/boot", "/root", "~/.ssh", "~/.gnupg"},
		AllowGitPush:          true,
		AllowDestructiveShell: false,
	}
}

// AuditResultKind enumerates the outcome recorded for an audited operation.
type AuditResultKind string

const (
	ResultSuccess AuditResultKind = "success"
	ResultFailed  AuditResultKind = "failed"
	ResultBlocked AuditResultKind = "blocked"
)

// AuditEntry is one row of the gate's audit log, per spec.md §4.4.
type AuditEntry struct {
	Timestamp        time.Time
	OperationID      string
	ToolName         string
	ArgumentsSummary string
	Decision         DecisionKind
	Result           AuditResultKind
	ResultDetail     string
	DurationMs       int64
}

// ConfirmationPrompter asks the user to approve a pending call in
// interactive mode. Returns approved=true if the user confirms before
// timeout elapses.
type ConfirmationPrompter func(ctx context.Context, toolName, reason string) (approved bool, err error)

// Gate sits between the kernel and each tool's invoker, deciding
// AutoApprove / RequireConfirmation / Block per spec.md §4.4's ordered
// rule table, and recording every decision+execution to a bounded audit
// log.
type Gate struct {
	cfg         GateConfig
	interactive bool
	prompt      ConfirmationPrompter

	mu               sync.Mutex
	sessionApprovals map[string]bool // toolName -> approved-for-session
	operationCount   int
	budgetStart      time.Time
	audit            []AuditEntry
}

const maxAuditEntries = 1000

// NewGate creates a Gate. interactive controls whether
// RequireConfirmation prompts (true) or fails fatally (false), per
// spec.md §4.4.
func NewGate(cfg GateConfig, interactive bool, prompt ConfirmationPrompter) *Gate {
	return &Gate{
		cfg:              cfg,
		interactive:      interactive,
		prompt:           prompt,
		sessionApprovals: make(map[string]bool),
		budgetStart:      time.Now(),
	}
}

// AllowForSession memoizes an approval so subsequent calls to the same
// tool name in this gate's lifetime auto-approve without re-prompting.
func (g *Gate) AllowForSession(toolName string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessionApprovals[toolName] = true
}

// budgetExceeded reports whether the Yolo/Daemon operation/hour budget has
// been exceeded, per spec.md §4.4's "Time limits on autonomous runs".
func (g *Gate) budgetExceeded() bool {
	if g.cfg.MaxOperations > 0 && g.operationCount >= g.cfg.MaxOperations {
		return true
	}
	if g.cfg.MaxHours > 0 {
		if time.Since(g.budgetStart).Hours() >= g.cfg.MaxHours {
			return true
		}
	}
	return false
}

// Decide evaluates spec.md §4.4's ordered rule table for one pending
// ToolCall under mode.
func (g *Gate) Decide(mode kernel.SafetyMode, desc kernel.ToolDescriptor, call kernel.ToolCall) Decision {
	// Rule 1: Read/Verify always auto-approve.
	if desc.Classification == kernel.ClassRead || desc.Classification == kernel.ClassVerify {
		return Decision{Kind: AutoApprove}
	}

	argsSummary := summarizeArgs(call.Arguments)

	// Rule 2: forbidden list.
	for _, forbidden := range g.cfg.ForbiddenOperations {
		if strings.Contains(strings.ToLower(argsSummary), strings.ToLower(forbidden)) {
			return Decision{Kind: Block, Reason: fmt.Sprintf("matches forbidden operation %q", forbidden)}
		}
	}

	// Rule 3: protected paths.
	for _, p := range extractArgPaths(call.Arguments) {
		if match, ok := matchesProtectedPath(p, g.cfg.ProtectedPaths); ok {
			return Decision{Kind: Block, Reason: fmt.Sprintf("path %q is under protected path %q", p, match)}
		}
	}
	if cmd, ok := call.Arguments["command"].(string); ok {
		for _, p := range extractCommandPaths(cmd) {
			if match, ok := matchesProtectedPath(p, g.cfg.ProtectedPaths); ok {
				return Decision{Kind: Block, Reason: fmt.Sprintf("path %q is under protected path %q", p, match)}
			}
		}
	}

	g.mu.Lock()
	approved := g.sessionApprovals[desc.Name]
	g.mu.Unlock()
	if approved {
		return Decision{Kind: AutoApprove}
	}

	// Rule 4: mode-specific.
	switch mode {
	case kernel.ModeNormal:
		if desc.Classification == kernel.ClassWrite || desc.Classification == kernel.ClassExec || desc.Classification == kernel.ClassNetwork {
			return Decision{Kind: RequireConfirmation, Reason: "normal mode requires approval for " + string(desc.Classification)}
		}
		return Decision{Kind: AutoApprove}

	case kernel.ModeAutoEdit:
		if desc.Classification == kernel.ClassWrite {
			return Decision{Kind: AutoApprove}
		}
		for _, allowed := range g.cfg.AutoEditAllowList {
			if allowed == desc.Name {
				return Decision{Kind: AutoApprove}
			}
		}
		return Decision{Kind: RequireConfirmation, Reason: "autoedit mode requires approval for " + string(desc.Classification)}

	case kernel.ModeYolo, kernel.ModeDaemon:
		if g.budgetExceeded() {
			return Decision{Kind: RequireConfirmation, Reason: "yolo/daemon budget exceeded, downgraded to confirmation"}
		}
		if cmd, ok := call.Arguments["command"].(string); ok {
			if !g.cfg.AllowDestructiveShell {
				if reason := isDestructiveShell(cmd); reason != "" {
					return Decision{Kind: Block, Reason: "destructive shell (" + reason + ") not enabled"}
				}
			}
		}
		if desc.Name == "git_push" && !g.cfg.AllowGitPush {
			return Decision{Kind: RequireConfirmation, Reason: "git push requires approval"}
		}
		return Decision{Kind: AutoApprove}

	default:
		return Decision{Kind: RequireConfirmation, Reason: "unknown safety mode"}
	}
}

// Resolve runs the full decide -> (maybe prompt) -> invoke -> audit
// pipeline for one ToolCall against reg, returning the tool's JSON result
// or an error. ErrConfirmationRequiredNonInteractive is returned verbatim
// (never wrapped) so callers can detect it with errors.Is and route it
// around self-healing.
func (g *Gate) Resolve(ctx context.Context, reg *Registry, mode kernel.SafetyMode, call kernel.ToolCall) (map[string]any, bool, error) {
	desc, ok := reg.Descriptor(call.Name)
	if !ok {
		return nil, false, fmt.Errorf("tool gate: unknown tool %q", call.Name)
	}

	decision := g.Decide(mode, desc, call)
	opID := uuid.NewString()
	start := time.Now()
	autoApproved := decision.Kind == AutoApprove

	switch decision.Kind {
	case Block:
		g.recordAudit(opID, call.Name, call.Arguments, decision.Kind, ResultBlocked, decision.Reason, start)
		return map[string]any{"blocked": true, "reason": decision.Reason}, false, nil

	case RequireConfirmation:
		if !g.interactive {
			g.recordAudit(opID, call.Name, call.Arguments, decision.Kind, ResultFailed, "non-interactive: "+decision.Reason, start)
			return nil, false, fmt.Errorf("%w: %s", ErrConfirmationRequiredNonInteractive, decision.Reason)
		}
		approved, err := g.prompt(ctx, call.Name, decision.Reason)
		if err != nil {
			g.recordAudit(opID, call.Name, call.Arguments, decision.Kind, ResultFailed, err.Error(), start)
			return nil, false, err
		}
		if !approved {
			g.recordAudit(opID, call.Name, call.Arguments, decision.Kind, ResultBlocked, "user declined", start)
			return map[string]any{"blocked": true, "reason": "user declined confirmation"}, false, nil
		}
		g.AllowForSession(call.Name)
	}

	g.mu.Lock()
	g.operationCount++
	g.mu.Unlock()

	result, err := reg.Invoke(call.Name, call.Arguments)
	if err != nil {
		g.recordAudit(opID, call.Name, call.Arguments, decision.Kind, ResultFailed, err.Error(), start)
		return nil, autoApproved, err
	}
	g.recordAudit(opID, call.Name, call.Arguments, decision.Kind, ResultSuccess, "", start)
	return result, autoApproved, nil
}

func (g *Gate) recordAudit(opID, toolName string, args map[string]any, decision DecisionKind, result AuditResultKind, detail string, start time.Time) {
	entry := AuditEntry{
		Timestamp:        start,
		OperationID:      opID,
		ToolName:         toolName,
		ArgumentsSummary: summarizeArgs(args),
		Decision:         decision,
		Result:           result,
		ResultDetail:     detail,
		DurationMs:       time.Since(start).Milliseconds(),
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.audit = append(g.audit, entry)
	if len(g.audit) > maxAuditEntries {
		g.audit = g.audit[len(g.audit)-maxAuditEntries:]
	}
}

// AuditLog returns a copy of the bounded audit log.
func (g *Gate) AuditLog() []AuditEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]AuditEntry, len(g.audit))
	copy(out, g.audit)
	return out
}

const maxArgSummaryLen = 100

// summarizeArgs renders a tool call's arguments as a truncated string for
// the audit log, per spec.md §4.4 ("strings over 100 chars truncated with
// length marker").
func summarizeArgs(args map[string]any) string {
	s := fmt.Sprintf("%v", args)
	if len(s) <= maxArgSummaryLen {
		return s
	}
	return s[:maxArgSummaryLen] + fmt.Sprintf("...(%d chars)", len(s))
}
