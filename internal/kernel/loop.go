package kernel

import "fmt"

// StateKind identifies a Loop Controller state without its payload, for
// switch statements and logging.
type StateKind string

const (
	StateKindPlanning      StateKind = "planning"
	StateKindExecuting     StateKind = "executing"
	StateKindErrorRecovery StateKind = "error_recovery"
	StateKindCompleted     StateKind = "completed"
	StateKindFailed        StateKind = "failed"
	StateKindAbandoned     StateKind = "abandoned"
)

// LoopState is the Loop Controller's current state, as described in
// spec.md §4.1: Planning, Executing{step}, ErrorRecovery{message},
// Completed, Failed{reason}. Abandoned is added (see DESIGN.md's Open
// Question decisions) as a sixth terminal state, reachable only via
// explicit cancellation, never via NextState's transition table.
type LoopState struct {
	Kind    StateKind
	Step    int
	Message string
}

func (s LoopState) String() string {
	switch s.Kind {
	case StateKindExecuting:
		return fmt.Sprintf("Executing{%d}", s.Step)
	case StateKindErrorRecovery:
		return fmt.Sprintf("ErrorRecovery{%q}", s.Message)
	case StateKindFailed:
		return fmt.Sprintf("Failed{%q}", s.Message)
	default:
		return string(s.Kind)
	}
}

// IsTerminal reports whether the state ends the FSM.
func (s LoopState) IsTerminal() bool {
	switch s.Kind {
	case StateKindCompleted, StateKindFailed, StateKindAbandoned:
		return true
	default:
		return false
	}
}

// LoopController drives one task's state machine and enforces an
// iteration budget. It is not safe for concurrent use from more than one
// goroutine; the kernel is a single cooperative task (spec.md §5).
type LoopController struct {
	state         LoopState
	iterations    int
	maxIterations int

	// executedSteps tracks which Executing{n} values have already been
	// observed since the last ErrorRecovery or successful turn, enforcing
	// spec.md §8 invariant 11 ("never emits Executing{n} twice... without
	// an intervening ErrorRecovery or a successful model turn").
	lastExecutingStep int
	haveExecutingStep bool
}

// NewLoopController creates a controller starting in Planning, bounded to
// maxIterations total advances before it force-fails with budget
// exhaustion.
func NewLoopController(maxIterations int) *LoopController {
	return &LoopController{
		state:         LoopState{Kind: StateKindPlanning},
		maxIterations: maxIterations,
	}
}

// ResetForTask resets the iteration counter and returns the controller to
// Planning, so queued tasks don't inherit a previous task's counter.
// Grounded on original_source/src/agent/task_runner.rs's
// "self.loop_control.reset_for_task()" call.
func (c *LoopController) ResetForTask() {
	c.iterations = 0
	c.state = LoopState{Kind: StateKindPlanning}
	c.haveExecutingStep = false
}

// State returns the current state.
func (c *LoopController) State() LoopState {
	return c.state
}

// SetState forces the controller into state, used by the kernel when a
// tool-call round trip determines the next step deterministically (e.g.
// Planning -> Executing{1} once the first tool calls are dispatched) and
// by Resume to seed Executing{checkpoint.current_step}.
func (c *LoopController) SetState(s LoopState) {
	if s.Kind == StateKindExecuting {
		c.lastExecutingStep = s.Step
		c.haveExecutingStep = true
	}
	c.state = s
}

// NextState advances the controller by one logical transition and returns
// the new state, or returns the existing state unchanged with ok=false once
// a terminal state has been reached (mirrors
// "while let Some(state) = self.loop_control.next_state()" in
// original_source/src/agent/task_runner.rs, where a None return ends the
// loop).
func (c *LoopController) NextState() (LoopState, bool) {
	if c.state.IsTerminal() {
		return c.state, false
	}

	c.iterations++
	if c.maxIterations > 0 && c.iterations > c.maxIterations {
		c.state = LoopState{Kind: StateKindFailed, Message: "budget exhausted"}
		return c.state, true
	}

	return c.state, true
}

// AdvanceExecuting moves the controller to Executing{step}, enforcing that
// the same step number is never observed twice in a row without an
// intervening ErrorRecovery or a fresh Planning->Executing transition.
func (c *LoopController) AdvanceExecuting(step int) error {
	if c.haveExecutingStep && step == c.lastExecutingStep && c.state.Kind == StateKindExecuting {
		return fmt.Errorf("loop controller: repeated Executing{%d} without intervening recovery", step)
	}
	c.SetState(LoopState{Kind: StateKindExecuting, Step: step})
	return nil
}

// EnterErrorRecovery transitions to ErrorRecovery{message} and clears the
// repeated-step guard, since a recovery attempt is the one thing allowed to
// precede a repeated Executing{n}.
func (c *LoopController) EnterErrorRecovery(message string) {
	c.state = LoopState{Kind: StateKindErrorRecovery, Message: message}
	c.haveExecutingStep = false
}

// Complete transitions to Completed.
func (c *LoopController) Complete() {
	c.state = LoopState{Kind: StateKindCompleted}
}

// Fail transitions to Failed{reason}.
func (c *LoopController) Fail(reason string) {
	c.state = LoopState{Kind: StateKindFailed, Message: reason}
}

// Abandon transitions to Abandoned. Only reachable via explicit
// cancellation, never via NextState's own transition table.
func (c *LoopController) Abandon() {
	c.state = LoopState{Kind: StateKindAbandoned}
}

// Iterations returns the number of times NextState has advanced since the
// last ResetForTask.
func (c *LoopController) Iterations() int {
	return c.iterations
}
