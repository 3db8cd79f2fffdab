package healing

import (
	"errors"
	"testing"
	"time"

	"github.com/dohr-michael/selfware-kernel/internal/kernel"
)

type fakeStateManager struct {
	restoreCalls    []string
	restoreErr      error
	clearCacheCalls []string
	resetStateCalls []string
}

func (f *fakeStateManager) RestoreCheckpoint(id string) error {
	f.restoreCalls = append(f.restoreCalls, id)
	return f.restoreErr
}

func (f *fakeStateManager) ClearCache(scope string) error {
	f.clearCacheCalls = append(f.clearCacheCalls, scope)
	return nil
}

func (f *fakeStateManager) ResetState(scope string) error {
	f.resetStateCalls = append(f.resetStateCalls, scope)
	return nil
}

func TestExecuteRetrySleepsExponentialBackoff(t *testing.T) {
	e := NewRecoveryExecutor(10)
	var slept []time.Duration
	e.sleep = func(d time.Duration) { slept = append(slept, d) }

	strategy := kernel.RecoveryStrategy{
		Name: "retry_twice",
		Actions: []kernel.RecoveryAction{
			{Kind: kernel.ActionRetry, BaseMs: 100, MaxAttempts: 5},
		},
	}

	e.Execute(strategy, nil, "transport_timeout")
	e.Execute(strategy, nil, "transport_timeout")
	e.Execute(strategy, nil, "transport_timeout")

	if len(slept) != 3 {
		t.Fatalf("expected 3 retry sleeps, got %d", len(slept))
	}
	if slept[0] != 100*time.Millisecond {
		t.Fatalf("expected 1st retry delay 100ms, got %v", slept[0])
	}
	if slept[1] != 200*time.Millisecond {
		t.Fatalf("expected 2nd retry delay 200ms, got %v", slept[1])
	}
	if slept[2] != 400*time.Millisecond {
		t.Fatalf("expected 3rd retry delay 400ms, got %v", slept[2])
	}
}

func TestExecuteRetryCapsAt30Seconds(t *testing.T) {
	e := NewRecoveryExecutor(10)
	var slept time.Duration
	e.sleep = func(d time.Duration) { slept = d }

	strategy := kernel.RecoveryStrategy{
		Actions: []kernel.RecoveryAction{{Kind: kernel.ActionRetry, BaseMs: 100000, MaxAttempts: 20}},
	}
	for i := 0; i < 8; i++ {
		e.Execute(strategy, nil, "huge_base")
	}
	if slept != 30*time.Second {
		t.Fatalf("expected delay capped at 30s, got %v", slept)
	}
}

func TestExecuteRetryExhaustsMaxAttempts(t *testing.T) {
	e := NewRecoveryExecutor(10)
	e.sleep = func(time.Duration) {}

	strategy := kernel.RecoveryStrategy{
		Actions: []kernel.RecoveryAction{{Kind: kernel.ActionRetry, BaseMs: 10, MaxAttempts: 2}},
	}
	r1 := e.Execute(strategy, nil, "flaky")
	r2 := e.Execute(strategy, nil, "flaky")
	r3 := e.Execute(strategy, nil, "flaky")

	if !r1.Success || !r2.Success {
		t.Fatalf("expected first two attempts to succeed, got %+v %+v", r1, r2)
	}
	if r3.Success {
		t.Fatal("expected third attempt to fail once max_attempts exhausted")
	}
}

func TestResetRetryStateClearsCounter(t *testing.T) {
	e := NewRecoveryExecutor(10)
	e.sleep = func(time.Duration) {}

	retry := kernel.RecoveryStrategy{Actions: []kernel.RecoveryAction{{Kind: kernel.ActionRetry, BaseMs: 10, MaxAttempts: 5}}}
	e.Execute(retry, nil, "pattern-x")
	if got := e.RetryAttemptCount("pattern-x"); got != 1 {
		t.Fatalf("expected attempt count 1, got %d", got)
	}

	clear := kernel.RecoveryStrategy{Actions: []kernel.RecoveryAction{{Kind: kernel.ActionClearCache, Scope: "all"}}}
	e.Execute(clear, &fakeStateManager{}, "pattern-x")

	if got := e.RetryAttemptCount("pattern-x"); got != 0 {
		t.Fatalf("expected attempt count reset to 0, got %d", got)
	}
}

func TestExecuteRestartAlwaysSucceeds(t *testing.T) {
	e := NewRecoveryExecutor(10)
	sm := &fakeStateManager{restoreErr: errors.New("no checkpoint")}
	strategy := kernel.RecoveryStrategy{Actions: []kernel.RecoveryAction{{Kind: kernel.ActionRestart, Component: "kernel"}}}

	result := e.Execute(strategy, sm, "restart-test")
	if !result.Success {
		t.Fatalf("expected Restart to always report success, got %+v", result)
	}
	if len(sm.restoreCalls) != 1 {
		t.Fatal("expected Restart to attempt RestoreCheckpoint internally")
	}
}

func TestExecuteFallbackAlwaysSucceeds(t *testing.T) {
	e := NewRecoveryExecutor(10)
	strategy := kernel.RecoveryStrategy{Actions: []kernel.RecoveryAction{{Kind: kernel.ActionFallback, Target: "switch_parsing_mode"}}}
	result := e.Execute(strategy, nil, "fallback-test")
	if !result.Success {
		t.Fatalf("expected Fallback to always succeed, got %+v", result)
	}
}

func TestExecuteRestoreCheckpointRequiresStateManager(t *testing.T) {
	e := NewRecoveryExecutor(10)
	strategy := kernel.RecoveryStrategy{Actions: []kernel.RecoveryAction{{Kind: kernel.ActionRestoreCheckpoint}}}
	result := e.Execute(strategy, nil, "no-sm")
	if result.Success {
		t.Fatal("expected failure without a state manager")
	}
}

func TestExecuteCustomKnownNamesAreNoOpSuccess(t *testing.T) {
	e := NewRecoveryExecutor(10)
	for _, name := range []string{"compress_context", "reduce_tool_set", "switch_parsing_mode", "unknown_thing"} {
		strategy := kernel.RecoveryStrategy{Actions: []kernel.RecoveryAction{{Kind: kernel.ActionCustom, Name: name}}}
		result := e.Execute(strategy, nil, "custom-"+name)
		if !result.Success {
			t.Fatalf("expected custom action %q to be a no-op success, got %+v", name, result)
		}
	}
}

func TestHistoryIsBoundedFIFO(t *testing.T) {
	e := NewRecoveryExecutor(10)
	strategy := kernel.RecoveryStrategy{Actions: []kernel.RecoveryAction{{Kind: kernel.ActionFallback}}}
	for i := 0; i < 150; i++ {
		e.Execute(strategy, nil, "loop")
	}
	if len(e.History()) != maxHistorySize {
		t.Fatalf("expected history capped at %d, got %d", maxHistorySize, len(e.History()))
	}
}

func TestSummaryReflectsSuccessRate(t *testing.T) {
	e := NewRecoveryExecutor(10)
	ok := kernel.RecoveryStrategy{Actions: []kernel.RecoveryAction{{Kind: kernel.ActionFallback}}}
	bad := kernel.RecoveryStrategy{Actions: []kernel.RecoveryAction{{Kind: kernel.ActionRestoreCheckpoint}}}

	e.Execute(ok, nil, "p1")
	e.Execute(bad, nil, "p2")

	summary := e.Summary()
	if summary.Executions != 2 || summary.Successes != 1 || summary.Failures != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.SuccessRate != 0.5 {
		t.Fatalf("expected success rate 0.5, got %v", summary.SuccessRate)
	}
}

func TestPatternDetectorClassifiesAndFallsBack(t *testing.T) {
	d := NewPatternDetector("generic_retry")
	if err := d.AddRule("transport", `(?i)connection refused`, "retry_transport"); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if err := d.AddRule("", `(?i)schema`, "switch_parsing_mode"); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	if got := d.Classify(ErrorOccurrence{Kind: "transport", Message: "connection refused by host"}); got != "retry_transport" {
		t.Fatalf("expected retry_transport, got %q", got)
	}
	if got := d.Classify(ErrorOccurrence{Kind: "protocol", Message: "schema violation"}); got != "switch_parsing_mode" {
		t.Fatalf("expected switch_parsing_mode (kind-agnostic rule), got %q", got)
	}
	if got := d.Classify(ErrorOccurrence{Kind: "internal", Message: "nil pointer"}); got != "generic_retry" {
		t.Fatalf("expected fallback to default strategy, got %q", got)
	}
}
