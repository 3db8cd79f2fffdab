package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/dohr-michael/selfware-kernel/internal/kernel"
)

func readDesc() kernel.ToolDescriptor {
	return kernel.ToolDescriptor{Name: "read_file", Classification: kernel.ClassRead}
}

func writeDesc() kernel.ToolDescriptor {
	return kernel.ToolDescriptor{Name: "write_file", Classification: kernel.ClassWrite}
}

func execDesc() kernel.ToolDescriptor {
	return kernel.ToolDescriptor{Name: "run_shell", Classification: kernel.ClassExec}
}

func TestDecideReadAlwaysAutoApproves(t *testing.T) {
	g := NewGate(DefaultGateConfig(), false, nil)
	for _, mode := range []kernel.SafetyMode{kernel.ModeNormal, kernel.ModeAutoEdit, kernel.ModeYolo, kernel.ModeDaemon} {
		d := g.Decide(mode, readDesc(), kernel.ToolCall{Name: "read_file"})
		if d.Kind != AutoApprove {
			t.Fatalf("mode %s: expected AutoApprove for read, got %+v", mode, d)
		}
	}
}

func TestDecideForbiddenOperationBlocksRegardlessOfMode(t *testing.T) {
	g := NewGate(DefaultGateConfig(), false, nil)
	call := kernel.ToolCall{Name: "run_shell", Arguments: map[string]any{"command": "rm -rf /"}}
	d := g.Decide(kernel.ModeYolo, execDesc(), call)
	if d.Kind != Block {
		t.Fatalf("expected Block for forbidden op, got %+v", d)
	}
}

func TestDecideProtectedPathBlocks(t *testing.T) {
	g := NewGate(DefaultGateConfig(), false, nil)
	call := kernel.ToolCall{Name: "write_file", Arguments: map[string]any{"path": "/etc/passwd"}}
	d := g.Decide(kernel.ModeAutoEdit, writeDesc(), call)
	if d.Kind != Block {
		t.Fatalf("expected Block for protected path, got %+v", d)
	}
}

func TestDecideProtectedPathExpandsHome(t *testing.T) {
	g := NewGate(DefaultGateConfig(), false, nil)
	call := kernel.ToolCall{Name: "write_file", Arguments: map[string]any{"path": "~/.ssh/authorized_keys"}}
	d := g.Decide(kernel.ModeYolo, writeDesc(), call)
	if d.Kind != Block {
		t.Fatalf("expected Block for ~/.ssh path, got %+v", d)
	}
}

func TestDecideNormalModeRequiresConfirmationForWrite(t *testing.T) {
	g := NewGate(DefaultGateConfig(), false, nil)
	call := kernel.ToolCall{Name: "write_file", Arguments: map[string]any{"path": "/tmp/out.txt"}}
	d := g.Decide(kernel.ModeNormal, writeDesc(), call)
	if d.Kind != RequireConfirmation {
		t.Fatalf("expected RequireConfirmation in normal mode, got %+v", d)
	}
}

func TestDecideAutoEditAutoApprovesWriteButNotExec(t *testing.T) {
	g := NewGate(DefaultGateConfig(), false, nil)
	writeCall := kernel.ToolCall{Name: "write_file", Arguments: map[string]any{"path": "/tmp/out.txt"}}
	if d := g.Decide(kernel.ModeAutoEdit, writeDesc(), writeCall); d.Kind != AutoApprove {
		t.Fatalf("expected AutoApprove for write in autoedit, got %+v", d)
	}
	execCall := kernel.ToolCall{Name: "run_shell", Arguments: map[string]any{"command": "ls"}}
	if d := g.Decide(kernel.ModeAutoEdit, execDesc(), execCall); d.Kind != RequireConfirmation {
		t.Fatalf("expected RequireConfirmation for exec in autoedit, got %+v", d)
	}
}

func TestDecideYoloBlocksDestructiveShellUnlessEnabled(t *testing.T) {
	cfg := DefaultGateConfig()
	g := NewGate(cfg, false, nil)
	call := kernel.ToolCall{Name: "run_shell", Arguments: map[string]any{"command": "rm -rf /tmp/build && echo done"}}
	d := g.Decide(kernel.ModeYolo, execDesc(), call)
	if d.Kind != Block {
		t.Fatalf("expected Block for destructive shell in yolo, got %+v", d)
	}

	cfg.AllowDestructiveShell = true
	g2 := NewGate(cfg, false, nil)
	d2 := g2.Decide(kernel.ModeYolo, execDesc(), call)
	if d2.Kind != AutoApprove {
		t.Fatalf("expected AutoApprove once destructive shell is enabled, got %+v", d2)
	}
}

func TestDecideYoloAutoApprovesBenignExec(t *testing.T) {
	g := NewGate(DefaultGateConfig(), false, nil)
	call := kernel.ToolCall{Name: "run_shell", Arguments: map[string]any{"command": "go test ./..."}}
	d := g.Decide(kernel.ModeYolo, execDesc(), call)
	if d.Kind != AutoApprove {
		t.Fatalf("expected AutoApprove for benign command in yolo, got %+v", d)
	}
}

func TestDecideYoloDowngradesOnceBudgetExceeded(t *testing.T) {
	cfg := DefaultGateConfig()
	cfg.MaxOperations = 1
	g := NewGate(cfg, false, nil)
	g.operationCount = 1
	call := kernel.ToolCall{Name: "run_shell", Arguments: map[string]any{"command": "echo hi"}}
	d := g.Decide(kernel.ModeYolo, execDesc(), call)
	if d.Kind != RequireConfirmation {
		t.Fatalf("expected RequireConfirmation once operation budget exceeded, got %+v", d)
	}
}

func TestResolveNonInteractiveConfirmationReturnsSentinelError(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(writeDesc(), func(map[string]any) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	})
	g := NewGate(DefaultGateConfig(), false, nil)
	call := kernel.ToolCall{Name: "write_file", Arguments: map[string]any{"path": "/tmp/a.txt"}}

	_, _, err := g.Resolve(context.Background(), reg, kernel.ModeNormal, call)
	if !errors.Is(err, ErrConfirmationRequiredNonInteractive) {
		t.Fatalf("expected ErrConfirmationRequiredNonInteractive, got %v", err)
	}
	log := g.AuditLog()
	if len(log) != 1 || log[0].Result != ResultFailed {
		t.Fatalf("expected one failed audit entry, got %+v", log)
	}
}

func TestResolveInteractivePromptApprovalInvokesAndMemoizes(t *testing.T) {
	reg := NewRegistry()
	calls := 0
	_ = reg.Register(writeDesc(), func(map[string]any) (map[string]any, error) {
		calls++
		return map[string]any{"ok": true}, nil
	})
	prompts := 0
	prompt := func(ctx context.Context, toolName, reason string) (bool, error) {
		prompts++
		return true, nil
	}
	g := NewGate(DefaultGateConfig(), true, prompt)
	call := kernel.ToolCall{Name: "write_file", Arguments: map[string]any{"path": "/tmp/a.txt"}}

	result, auto, err := g.Resolve(context.Background(), reg, kernel.ModeNormal, call)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if auto {
		t.Fatal("expected first call to not be auto-approved")
	}
	if result["ok"] != true {
		t.Fatalf("unexpected result: %+v", result)
	}

	// second call to the same tool should be memoized and skip the prompt.
	_, auto2, err := g.Resolve(context.Background(), reg, kernel.ModeNormal, call)
	if err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	if !auto2 {
		t.Fatal("expected second call to be auto-approved via session memoization")
	}
	if prompts != 1 {
		t.Fatalf("expected exactly one prompt, got %d", prompts)
	}
	if calls != 2 {
		t.Fatalf("expected tool invoked twice, got %d", calls)
	}
}

func TestResolveBlockedNeverInvokesTool(t *testing.T) {
	reg := NewRegistry()
	invoked := false
	_ = reg.Register(execDesc(), func(map[string]any) (map[string]any, error) {
		invoked = true
		return nil, nil
	})
	g := NewGate(DefaultGateConfig(), false, nil)
	call := kernel.ToolCall{Name: "run_shell", Arguments: map[string]any{"command": "rm -rf /"}}

	result, auto, err := g.Resolve(context.Background(), reg, kernel.ModeYolo, call)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if auto {
		t.Fatal("blocked call must not report auto-approved")
	}
	if invoked {
		t.Fatal("blocked call must never reach the registered invoker")
	}
	if result["blocked"] != true {
		t.Fatalf("expected blocked result shape, got %+v", result)
	}
}
