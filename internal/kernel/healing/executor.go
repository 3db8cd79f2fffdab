// Package healing implements the self-healing engine (spec.md §4.5):
// pattern detection, an ordered-action recovery executor with exponential
// backoff, and the circuit breaker guarding flaky external calls. Ported
// from original_source/src/self_healing/executor.rs and
// original_source/src/supervision/circuit_breaker.rs.
package healing

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dohr-michael/selfware-kernel/internal/kernel"
)

const (
	maxRetryBackoffMs = 30_000
	maxHistorySize    = 100
)

// StateManager is the narrow set of kernel operations a RecoveryAction may
// invoke: restoring a checkpoint, clearing caches, resetting state. Passed
// in per-call rather than stored, per spec.md §9's "pass context into their
// methods rather than storing parent references."
type StateManager interface {
	RestoreCheckpoint(id string) error
	ClearCache(scope string) error
	ResetState(scope string) error
}

// RecoveryExecution is one record of a strategy run.
type RecoveryExecution struct {
	StrategyName    string
	ActionsExecuted int
	Success         bool
	Error           string
	Timestamp       time.Time
}

// ExecutorStats exposes atomically-updated counters for observability.
type ExecutorStats struct {
	Executions      atomic.Uint64
	Successes       atomic.Uint64
	Failures        atomic.Uint64
	RetriesPerformed atomic.Uint64
	TotalBackoffMs  atomic.Uint64
}

// ExecutorSummary is a point-in-time snapshot of ExecutorStats plus a
// derived success rate.
type ExecutorSummary struct {
	Executions  uint64
	Successes   uint64
	Failures    uint64
	SuccessRate float64
}

type retryState struct {
	attemptCount   int
	lastDelayMs    int64
	firstAttemptAt time.Time
}

// RecoveryExecutor runs a RecoveryStrategy's actions in order, up to
// max_healing_attempts, tracking per-pattern-key retry/backoff state.
type RecoveryExecutor struct {
	maxHealingAttempts int

	historyMu sync.Mutex
	history   []RecoveryExecution

	retryMu     sync.Mutex
	retryStates map[string]*retryState

	stats ExecutorStats

	sleep func(time.Duration) // overridable for tests
}

// NewRecoveryExecutor creates an executor bounded to maxHealingAttempts
// actions per strategy run.
func NewRecoveryExecutor(maxHealingAttempts int) *RecoveryExecutor {
	return &RecoveryExecutor{
		maxHealingAttempts: maxHealingAttempts,
		retryStates:        make(map[string]*retryState),
		sleep:              time.Sleep,
	}
}

// SetSleep overrides the delay function used by retry backoff, for tests
// outside this package that need to avoid real sleeps without reaching
// into the unexported field directly.
func (e *RecoveryExecutor) SetSleep(sleep func(time.Duration)) {
	e.sleep = sleep
}

// Execute runs strategy's actions in order for the given error pattern
// key, using sm to service any RestoreCheckpoint/ClearCache/ResetState
// actions. Stops (without failing the whole run) on the first action that
// itself reports success=false, per original_source's "breaks on first
// action failure" behaviour.
func (e *RecoveryExecutor) Execute(strategy kernel.RecoveryStrategy, sm StateManager, patternKey string) RecoveryExecution {
	e.stats.Executions.Add(1)

	executed := 0
	success := true
	var lastErr string

	for _, action := range strategy.Actions {
		if executed >= e.maxHealingAttempts {
			break
		}
		executed++
		if err := e.executeAction(action, sm, patternKey); err != nil {
			success = false
			lastErr = err.Error()
			break
		}
	}

	if success {
		e.stats.Successes.Add(1)
	} else {
		e.stats.Failures.Add(1)
	}

	exec := RecoveryExecution{
		StrategyName:    strategy.Name,
		ActionsExecuted: executed,
		Success:         success,
		Error:           lastErr,
		Timestamp:       time.Now(),
	}
	e.pushHistory(exec)
	return exec
}

func (e *RecoveryExecutor) pushHistory(exec RecoveryExecution) {
	e.historyMu.Lock()
	defer e.historyMu.Unlock()
	e.history = append(e.history, exec)
	if len(e.history) > maxHistorySize {
		e.history = e.history[len(e.history)-maxHistorySize:]
	}
}

// History returns a copy of the bounded execution history, oldest first.
func (e *RecoveryExecutor) History() []RecoveryExecution {
	e.historyMu.Lock()
	defer e.historyMu.Unlock()
	out := make([]RecoveryExecution, len(e.history))
	copy(out, e.history)
	return out
}

func (e *RecoveryExecutor) executeAction(action kernel.RecoveryAction, sm StateManager, patternKey string) error {
	switch action.Kind {
	case kernel.ActionRetry:
		return e.executeRetry(action.BaseMs, action.MaxAttempts, patternKey)

	case kernel.ActionRestart:
		// Try RestoreCheckpoint internally but always report success,
		// since the controller re-enters Executing from whatever step is
		// current even if no checkpoint existed to restore.
		if sm != nil {
			_ = sm.RestoreCheckpoint("")
		}
		return nil

	case kernel.ActionFallback:
		// Always a success signal; the kernel interprets action.Target.
		return nil

	case kernel.ActionRestoreCheckpoint:
		if sm == nil {
			return fmt.Errorf("healing: restore_checkpoint requires a state manager")
		}
		return sm.RestoreCheckpoint(action.CheckpointID)

	case kernel.ActionClearCache:
		if sm == nil {
			return fmt.Errorf("healing: clear_cache requires a state manager")
		}
		if err := sm.ClearCache(action.Scope); err != nil {
			return err
		}
		e.resetRetryState(patternKey)
		return nil

	case kernel.ActionResetState:
		if sm == nil {
			return fmt.Errorf("healing: reset_state requires a state manager")
		}
		if err := sm.ResetState(action.Scope); err != nil {
			return err
		}
		e.resetRetryState(patternKey)
		return nil

	case kernel.ActionCustom:
		switch action.Name {
		case "compress_context", "reduce_tool_set", "switch_parsing_mode":
			return nil
		default:
			slog.Debug("healing: unknown custom recovery action, treating as no-op", "name", action.Name)
			return nil
		}

	default:
		return fmt.Errorf("healing: unknown recovery action kind %q", action.Kind)
	}
}

// executeRetry sleeps a real, exponentially growing delay
// (min(baseMs*2^attempt, 30s)) before returning, tracking attempts per
// patternKey so the k-th retry for the same pattern key waits longer than
// the (k-1)-th. Fails once attemptCount reaches maxAttempts.
func (e *RecoveryExecutor) executeRetry(baseMs int64, maxAttempts int, patternKey string) error {
	e.retryMu.Lock()
	st, ok := e.retryStates[patternKey]
	if !ok {
		st = &retryState{firstAttemptAt: time.Now()}
		e.retryStates[patternKey] = st
	}

	if st.attemptCount >= maxAttempts {
		elapsed := time.Since(st.firstAttemptAt)
		e.retryMu.Unlock()
		return fmt.Errorf("healing: max retry attempts exhausted for %q after %v", patternKey, elapsed)
	}

	exponent := st.attemptCount
	if exponent > 5 {
		exponent = 5
	}
	delayMs := baseMs
	for i := 0; i < exponent; i++ {
		delayMs *= 2
	}
	if delayMs > maxRetryBackoffMs {
		delayMs = maxRetryBackoffMs
	}
	st.attemptCount++
	st.lastDelayMs = delayMs
	e.retryMu.Unlock()

	e.stats.RetriesPerformed.Add(1)
	e.stats.TotalBackoffMs.Add(uint64(delayMs))
	e.sleep(time.Duration(delayMs) * time.Millisecond)
	return nil
}

// resetRetryState removes the per-pattern-key retry bookkeeping, called
// after a successful non-retry observation for that pattern (spec.md §4.5).
func (e *RecoveryExecutor) resetRetryState(patternKey string) {
	e.retryMu.Lock()
	defer e.retryMu.Unlock()
	delete(e.retryStates, patternKey)
}

// RetryAttemptCount returns the current attempt count tracked for
// patternKey, for tests and observability.
func (e *RecoveryExecutor) RetryAttemptCount(patternKey string) int {
	e.retryMu.Lock()
	defer e.retryMu.Unlock()
	if st, ok := e.retryStates[patternKey]; ok {
		return st.attemptCount
	}
	return 0
}

// Summary returns a snapshot of the executor's stats.
func (e *RecoveryExecutor) Summary() ExecutorSummary {
	executions := e.stats.Executions.Load()
	successes := e.stats.Successes.Load()
	failures := e.stats.Failures.Load()
	var rate float64
	if executions > 0 {
		rate = float64(successes) / float64(executions)
	}
	return ExecutorSummary{
		Executions:  executions,
		Successes:   successes,
		Failures:    failures,
		SuccessRate: rate,
	}
}
