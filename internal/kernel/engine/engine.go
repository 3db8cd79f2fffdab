// Package engine implements the Task Kernel (spec.md §4.6): the entry
// point that drives one task from Planning through a terminal state,
// owning the loop controller, memory, checkpoint store, tool gate, and
// self-healing engine. It lives apart from package kernel (which holds
// the shared domain types every collaborator below depends on) so that
// tools/store/healing can import kernel's types without this orchestrator
// creating an import cycle back into them.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dohr-michael/selfware-kernel/internal/events"
	"github.com/dohr-michael/selfware-kernel/internal/kernel"
	"github.com/dohr-michael/selfware-kernel/internal/kernel/healing"
	"github.com/dohr-michael/selfware-kernel/internal/kernel/store"
	"github.com/dohr-michael/selfware-kernel/internal/kernel/tools"
)

// Usage is the token accounting a model turn reports, per spec.md §6's
// "complete(messages, tools) -> {assistant_message, optional tool_calls,
// usage}" client boundary.
type Usage struct {
	Prompt     int
	Completion int
}

// LLMClient is the kernel's sole dependency on a model backend. The exact
// wire protocol is the implementation's problem (spec.md §6); the kernel
// only needs one assistant turn per call, optionally carrying tool calls.
type LLMClient interface {
	Complete(ctx context.Context, messages []kernel.Message, tools []kernel.ToolDescriptor, systemPrompt string) (kernel.Message, Usage, error)
}

// Sink is the kernel's UI event boundary (spec.md §6): Started, Status,
// ToolStarted, ToolCompleted, TokenUsage, Completed, Error, Log.
// Satisfied by *events.Bus, and trivially by a discard sink in tests.
type Sink interface {
	Publish(events.Event)
}

// DiscardSink drops every event; used by tests that don't care about the
// UI stream.
type DiscardSink struct{}

// Publish implements Sink.
func (DiscardSink) Publish(events.Event) {}

// Kernel is the Task Kernel. Not safe for concurrent use across tasks —
// spec.md §5 mandates a single cooperative task at a time.
type Kernel struct {
	cfg kernel.Config

	llm      LLMClient
	sink     Sink
	registry *tools.Registry
	gate     *tools.Gate
	mode     kernel.SafetyMode

	loop    *kernel.LoopController
	memory  *kernel.Memory
	store   *store.Store
	persist store.PersistencePolicy

	detector *healing.PatternDetector
	healer   *healing.RecoveryExecutor
	breaker  *healing.CircuitBreaker

	checkpoint        kernel.TaskCheckpoint
	ranVerifyThisTask bool
}

// New creates a Kernel wired to its collaborators. Every dependency is
// passed in explicitly (spec.md §9 "pass context into their methods rather
// than storing parent references") so tests can substitute fakes for any
// of them.
func New(cfg kernel.Config, llm LLMClient, sink Sink, registry *tools.Registry, gate *tools.Gate, mode kernel.SafetyMode, st *store.Store, detector *healing.PatternDetector, healer *healing.RecoveryExecutor, breaker *healing.CircuitBreaker) *Kernel {
	if sink == nil {
		sink = DiscardSink{}
	}
	return &Kernel{
		cfg:      cfg,
		llm:      llm,
		sink:     sink,
		registry: registry,
		gate:     gate,
		mode:     mode,
		loop:     kernel.NewLoopController(cfg.MaxIterations),
		memory:   kernel.NewMemory(cfg.MaxContextTokens),
		store:    st,
		persist:  store.PersistencePolicy{},
		detector: detector,
		healer:   healer,
		breaker:  breaker,
	}
}

// RestoreCheckpoint implements healing.StateManager: reloads the task's
// persisted messages into Memory. An empty id restores the kernel's own
// in-flight checkpoint id (used by RecoveryAction Restart, which has no
// particular checkpoint to target).
func (k *Kernel) RestoreCheckpoint(id string) error {
	if id == "" {
		id = k.checkpoint.TaskID
	}
	cp, err := k.store.Load(id)
	if err != nil {
		return err
	}
	k.memory.ClearNonSystem()
	for _, msg := range cp.Messages {
		if msg.Role != kernel.RoleSystem {
			k.memory.Append(msg)
		}
	}
	return nil
}

// ClearCache implements healing.StateManager by clearing the non-system
// message history, matching "compress_context"-style recovery.
func (k *Kernel) ClearCache(scope string) error {
	k.memory.ClearNonSystem()
	return nil
}

// ResetState implements healing.StateManager identically to ClearCache;
// the kernel doesn't distinguish cache-scope from full-state-scope
// clearing since its only mutable state beyond Memory is the checkpoint,
// which recovery actions don't reset directly.
func (k *Kernel) ResetState(scope string) error {
	k.memory.ClearNonSystem()
	return nil
}

// RunTask starts a brand-new task from description, running it to a
// terminal state.
func (k *Kernel) RunTask(ctx context.Context, description string) (kernel.TaskCheckpoint, error) {
	k.loop.ResetForTask()
	k.checkpoint = kernel.TaskCheckpoint{
		TaskID:          uuid.NewString(),
		TaskDescription: description,
		CreatedAt:       time.Now(),
		Status:          kernel.StatusPlanning,
	}
	k.memory = kernel.NewMemory(k.cfg.MaxContextTokens)
	k.memory.Append(kernel.Message{Role: kernel.RoleSystem, Content: k.cfg.SystemPrompt})
	k.memory.Append(kernel.Message{Role: kernel.RoleUser, Content: description})

	k.publishStarted()
	return k.run(ctx)
}

// Resume reloads a non-terminal checkpoint for taskID and continues it
// from Executing{checkpoint.current_step}, per spec.md §8 invariant 12.
func (k *Kernel) Resume(ctx context.Context, taskID string) (kernel.TaskCheckpoint, error) {
	cp, err := k.store.LoadForResume(taskID)
	if err != nil {
		return kernel.TaskCheckpoint{}, fmt.Errorf("kernel: resume: %w", err)
	}

	k.loop.ResetForTask()
	k.loop.SetState(kernel.LoopState{Kind: kernel.StateKindExecuting, Step: cp.CurrentStep})
	k.checkpoint = cp
	k.memory = kernel.NewMemory(k.cfg.MaxContextTokens)
	for _, msg := range cp.Messages {
		k.memory.Append(msg)
	}

	k.publishStarted()
	return k.run(ctx)
}

func (k *Kernel) publishStarted() {
	k.sink.Publish(events.NewTypedEventWithSession(events.SourceKernel, startedPayload{}, k.checkpoint.TaskID))
}

// startedPayload is the zero-field payload for the Started event; kept
// distinct from StatusPayload since Started carries no message.
type startedPayload struct{}

func (startedPayload) EventType() events.EventType { return events.EventStarted }

// run drives the FSM loop until a terminal state is reached or the
// context is cancelled, per spec.md §4.6 point 5.
func (k *Kernel) run(ctx context.Context) (kernel.TaskCheckpoint, error) {
	for {
		if err := ctx.Err(); err != nil {
			k.abandon()
			return k.checkpoint, kernel.ErrCancelled
		}

		k.memory.TrimToBudget()

		state := k.loop.State()
		if state.IsTerminal() {
			return k.checkpoint, k.terminalError(state)
		}

		k.maybeInjectCoaching()

		next, _ := k.loop.NextState()
		if next.Kind == kernel.StateKindFailed {
			// NextState transitions straight to Failed on budget exhaustion.
			k.checkpoint.Status = kernel.StatusFailed
			k.checkpoint.Outcome = kernel.OutcomePartial
			k.checkpoint.OutcomeReason = "iteration budget exhausted"
			k.persistCheckpoint()
			k.sink.Publish(events.NewTypedEventWithSession(events.SourceKernel, events.ErrorPayload{Message: next.Message}, k.checkpoint.TaskID))
			return k.checkpoint, fmt.Errorf("kernel: %s", next.Message)
		}

		if err := k.step(ctx, next); err != nil {
			return k.checkpoint, err
		}

		k.persistIfDue()
	}
}

func (k *Kernel) terminalError(state kernel.LoopState) error {
	switch state.Kind {
	case kernel.StateKindCompleted:
		return nil
	case kernel.StateKindFailed:
		return fmt.Errorf("kernel: task failed: %s", state.Message)
	case kernel.StateKindAbandoned:
		return kernel.ErrCancelled
	default:
		return fmt.Errorf("kernel: unexpected terminal state %s", state)
	}
}

// step runs one FSM dispatch for state, per spec.md §4.6's state table.
func (k *Kernel) step(ctx context.Context, state kernel.LoopState) error {
	switch state.Kind {
	case kernel.StateKindPlanning, kernel.StateKindExecuting:
		return k.runModelTurn(ctx, state)
	case kernel.StateKindErrorRecovery:
		return k.runRecovery(ctx, state)
	default:
		return fmt.Errorf("kernel: unhandled state %s", state)
	}
}

func (k *Kernel) runModelTurn(ctx context.Context, state kernel.LoopState) error {
	k.sink.Publish(events.NewTypedEventWithSession(events.SourceKernel, events.StatusPayload{Message: "invoking model"}, k.checkpoint.TaskID))

	var msg kernel.Message
	var usage Usage
	err := k.breaker.Call(func() error {
		var callErr error
		msg, usage, callErr = k.llm.Complete(ctx, k.memory.ContextWindow(), k.registeredDescriptors(), k.cfg.SystemPrompt)
		return callErr
	})
	k.sink.Publish(events.NewTypedEventWithSession(events.SourceKernel, events.TokenUsagePayload{Prompt: usage.Prompt, Completion: usage.Completion}, k.checkpoint.TaskID))

	if err != nil {
		return k.handleTurnError(state, err)
	}

	k.memory.Append(msg)

	if len(msg.ToolCalls) == 0 {
		if kernel.EndsWithContinuationMarker(msg.Content, k.cfg.ContinuationMarkers) {
			return k.advanceExecuting(state)
		}
		k.loop.Complete()
		k.checkpoint.Status = kernel.StatusCompleted
		k.checkpoint.Outcome = kernel.OutcomeSuccess
		k.persistCheckpoint()
		k.sink.Publish(events.NewTypedEventWithSession(events.SourceKernel, events.CompletedPayload{Message: msg.Content}, k.checkpoint.TaskID))
		return nil
	}

	for _, call := range msg.ToolCalls {
		if ctx.Err() != nil {
			k.abandon()
			return kernel.ErrCancelled
		}
		if err := k.dispatchToolCall(ctx, call); err != nil {
			if kernel.ClassifyError(err) == kernel.ErrKindConfirmationRequired {
				k.fail("confirmation required")
				return fmt.Errorf("kernel: %w", err)
			}
			return k.handleTurnError(state, err)
		}
	}

	return k.advanceExecuting(state)
}

func (k *Kernel) advanceExecuting(state kernel.LoopState) error {
	nextStep := 1
	if state.Kind == kernel.StateKindExecuting {
		nextStep = state.Step + 1
	}
	if err := k.loop.AdvanceExecuting(nextStep); err != nil {
		return fmt.Errorf("kernel: %w", err)
	}
	k.checkpoint.CurrentStep = nextStep
	k.checkpoint.Status = kernel.StatusExecuting
	return nil
}

func (k *Kernel) dispatchToolCall(ctx context.Context, call kernel.ToolCall) error {
	k.sink.Publish(events.NewTypedEventWithSession(events.SourceKernel, events.ToolStartedPayload{Name: call.Name, Arguments: call.Arguments}, k.checkpoint.TaskID))
	start := time.Now()

	result, autoApproved, err := k.gate.Resolve(ctx, k.registry, k.mode, call)
	duration := time.Since(start)

	record := kernel.ToolCallRecord{
		ToolCall:     call,
		Timestamp:    time.Now(),
		DurationMs:   duration.Milliseconds(),
		AutoApproved: autoApproved,
	}

	if err != nil {
		record.Success = false
		record.ResultSummary = err.Error()
		k.checkpoint.ToolCalls = append(k.checkpoint.ToolCalls, record)
		k.sink.Publish(events.NewTypedEventWithSession(events.SourceKernel, events.ToolCompletedPayload{Name: call.Name, Success: false, DurationMs: duration.Milliseconds(), Summary: err.Error()}, k.checkpoint.TaskID))
		return err
	}

	if isVerifyingTool(call.Name) {
		k.ranVerifyThisTask = true
	}

	summary := summarizeResult(result)
	record.Success = true
	record.ResultSummary = summary
	k.checkpoint.ToolCalls = append(k.checkpoint.ToolCalls, record)
	k.memory.Append(kernel.Message{Role: kernel.RoleTool, Content: summary, ToolCallID: call.ID})
	k.sink.Publish(events.NewTypedEventWithSession(events.SourceKernel, events.ToolCompletedPayload{Name: call.Name, Success: true, DurationMs: duration.Milliseconds(), Summary: summary}, k.checkpoint.TaskID))
	return nil
}

// handleTurnError classifies err and either routes it to ErrorRecovery
// (recoverable kinds) or fails the task outright.
func (k *Kernel) handleTurnError(state kernel.LoopState, err error) error {
	kind := kernel.ClassifyError(err)
	if kind == kernel.ErrKindConfirmationRequired {
		k.fail("confirmation required")
		return fmt.Errorf("kernel: %w", err)
	}
	if !kind.Recoverable() {
		k.fail(err.Error())
		return err
	}
	k.checkpoint.Errors = append(k.checkpoint.Errors, kernel.ErrorRecord{
		Step:        state.Step,
		Kind:        string(kind),
		Message:     err.Error(),
		Recoverable: true,
		Timestamp:   time.Now(),
	})
	k.loop.EnterErrorRecovery(err.Error())
	return nil
}

func (k *Kernel) runRecovery(_ context.Context, state kernel.LoopState) error {
	step := 0
	errKind := string(kernel.ErrKindInternal)
	if len(k.checkpoint.Errors) > 0 {
		last := k.checkpoint.Errors[len(k.checkpoint.Errors)-1]
		step = last.Step
		errKind = last.Kind
	}

	strategyName := k.detector.Classify(healing.ErrorOccurrence{Kind: errKind, Message: state.Message})
	strategy := kernel.RecoveryStrategy{Name: strategyName, Actions: []kernel.RecoveryAction{
		{Kind: kernel.ActionRetry, BaseMs: 100, MaxAttempts: k.cfg.MaxHealingAttempts},
	}}

	result := k.healer.Execute(strategy, k, state.Message)
	if result.Success {
		k.loop.SetState(kernel.LoopState{Kind: kernel.StateKindExecuting, Step: step})
		return nil
	}

	softRetries := k.countSoftRetriesSince(step)
	if softRetries >= k.cfg.SoftRetryLimit {
		k.fail(fmt.Sprintf("recovery exhausted after %d soft retries: %s", softRetries, state.Message))
		return fmt.Errorf("kernel: recovery failed: %s", state.Message)
	}

	k.memory.Append(kernel.Message{
		Role:    kernel.RoleUser,
		Content: k.diagnosticMessage(state.Message),
	})
	k.loop.SetState(kernel.LoopState{Kind: kernel.StateKindExecuting, Step: step})
	return nil
}

func (k *Kernel) countSoftRetriesSince(step int) int {
	count := 0
	for _, e := range k.checkpoint.Errors {
		if e.Step == step {
			count++
		}
	}
	return count
}

func (k *Kernel) diagnosticMessage(lastError string) string {
	budgetPct := k.budgetUsedPercent()
	return fmt.Sprintf("[recovery] previous error: %s. budget used: %.0f%%. verification run: %v. continue from last good state.", lastError, budgetPct, k.ranVerifyThisTask)
}

func (k *Kernel) budgetUsedPercent() float64 {
	if k.cfg.MaxIterations == 0 {
		return 0
	}
	return 100 * float64(k.loop.Iterations()) / float64(k.cfg.MaxIterations)
}

// maybeInjectCoaching injects a synthetic system message every
// CoachingEveryNSteps, per spec.md §4.6 point 6.
func (k *Kernel) maybeInjectCoaching() {
	n := k.cfg.CoachingEveryNSteps
	if n <= 0 {
		return
	}
	step := k.checkpoint.CurrentStep
	if step == 0 || step%n != 0 {
		return
	}

	pct := k.budgetUsedPercent()
	bucket := "<30%"
	switch {
	case pct >= 70:
		bucket = ">=70%"
	case pct >= 30:
		bucket = "<70%"
	}

	k.memory.Append(kernel.Message{
		Role: kernel.RoleSystem,
		Content: fmt.Sprintf(
			"coaching: budget used %s, verification run: %v. %s",
			bucket, k.ranVerifyThisTask, coachingText(bucket),
		),
	})
}

func coachingText(bucket string) string {
	switch bucket {
	case ">=70%":
		return "Budget is nearly exhausted; wrap up and verify your changes now."
	case "<70%":
		return "Budget is half spent; prefer decisive action over further exploration."
	default:
		return "Plenty of budget remains; be thorough."
	}
}

func (k *Kernel) fail(reason string) {
	k.loop.Fail(reason)
	k.checkpoint.Status = kernel.StatusFailed
	k.checkpoint.Outcome = kernel.OutcomeFailure
	k.checkpoint.OutcomeReason = reason
	k.persistCheckpoint()
	k.sink.Publish(events.NewTypedEventWithSession(events.SourceKernel, events.ErrorPayload{Message: reason}, k.checkpoint.TaskID))
}

func (k *Kernel) abandon() {
	k.loop.Abandon()
	k.checkpoint.Status = kernel.StatusAbandoned
	k.checkpoint.Outcome = kernel.OutcomeAbandoned
	k.checkpoint.OutcomeReason = "cancelled"
	k.memory.Append(kernel.Message{Role: kernel.RoleUser, Content: "[Task interrupted]"})
	k.persistCheckpoint()
}

func (k *Kernel) persistIfDue() {
	if k.store == nil {
		return
	}
	if k.persist.ShouldPersist(len(k.checkpoint.ToolCalls)) {
		k.persistCheckpoint()
	}
}

func (k *Kernel) persistCheckpoint() {
	if k.store == nil {
		return
	}
	k.checkpoint.Messages = k.memory.ContextWindow()
	k.checkpoint.EstimatedTokens = k.memory.TotalTokens()
	k.checkpoint.GitCheckpoint = captureGitState()
	if err := k.store.Save(k.checkpoint); err != nil {
		slog.Warn("kernel: checkpoint save failed", "task_id", k.checkpoint.TaskID, "error", err)
		return
	}
	k.persist.RecordPersist(len(k.checkpoint.ToolCalls))
}

func (k *Kernel) registeredDescriptors() []kernel.ToolDescriptor {
	names := k.registry.Names()
	out := make([]kernel.ToolDescriptor, 0, len(names))
	for _, name := range names {
		if desc, ok := k.registry.Descriptor(name); ok {
			out = append(out, desc)
		}
	}
	return out
}

// Checkpoint returns a snapshot of the kernel's current in-flight
// checkpoint, for callers (e.g. a status command) inspecting a running
// task.
func (k *Kernel) Checkpoint() kernel.TaskCheckpoint {
	return k.checkpoint
}

func isVerifyingTool(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "test") || strings.Contains(lower, "build") || strings.Contains(lower, "verify")
}

func summarizeResult(result map[string]any) string {
	return fmt.Sprintf("%v", result)
}

// captureGitState best-effort-captures the working tree's HEAD and dirty
// status, per SPEC_FULL.md §4's git-checkpoint supplement. A git failure
// (not a repo, git not installed) yields nil rather than failing the save.
func captureGitState() *kernel.GitState {
	head, err := exec.Command("git", "rev-parse", "HEAD").Output()
	if err != nil {
		return nil
	}
	dirty := false
	if out, err := exec.Command("git", "status", "--porcelain").Output(); err == nil {
		dirty = len(strings.TrimSpace(string(out))) > 0
	}
	return &kernel.GitState{Head: strings.TrimSpace(string(head)), Dirty: dirty}
}
