package kernel

import "testing"

func TestLoopControllerStartsInPlanning(t *testing.T) {
	c := NewLoopController(10)
	if c.State().Kind != StateKindPlanning {
		t.Fatalf("expected initial state Planning, got %v", c.State())
	}
}

func TestLoopControllerBudgetExhausted(t *testing.T) {
	c := NewLoopController(2)
	c.SetState(LoopState{Kind: StateKindExecuting, Step: 0})

	if _, ok := c.NextState(); !ok {
		t.Fatal("expected first advance to succeed")
	}
	if _, ok := c.NextState(); !ok {
		t.Fatal("expected second advance to succeed")
	}
	state, ok := c.NextState()
	if !ok {
		t.Fatal("expected third advance to still report ok (it settles into Failed)")
	}
	if state.Kind != StateKindFailed || state.Message != "budget exhausted" {
		t.Fatalf("expected Failed{budget exhausted}, got %v", state)
	}
}

func TestLoopControllerResetForTask(t *testing.T) {
	c := NewLoopController(1)
	c.SetState(LoopState{Kind: StateKindExecuting, Step: 0})
	c.NextState()
	c.NextState() // now Failed{budget exhausted}

	c.ResetForTask()
	if c.State().Kind != StateKindPlanning {
		t.Fatalf("expected Planning after reset, got %v", c.State())
	}
	if c.Iterations() != 0 {
		t.Fatalf("expected iteration counter reset to 0, got %d", c.Iterations())
	}
}

func TestLoopControllerNoStateAfterTerminal(t *testing.T) {
	c := NewLoopController(10)
	c.Complete()
	if _, ok := c.NextState(); ok {
		t.Fatal("expected NextState to report ok=false once terminal")
	}
}

func TestLoopControllerRejectsRepeatedExecutingStep(t *testing.T) {
	c := NewLoopController(10)
	if err := c.AdvanceExecuting(1); err != nil {
		t.Fatalf("unexpected error on first advance: %v", err)
	}
	if err := c.AdvanceExecuting(1); err == nil {
		t.Fatal("expected error repeating Executing{1} without intervening recovery")
	}
}

func TestLoopControllerAllowsRepeatedStepAfterRecovery(t *testing.T) {
	c := NewLoopController(10)
	if err := c.AdvanceExecuting(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.EnterErrorRecovery("transport error")
	if err := c.AdvanceExecuting(1); err != nil {
		t.Fatalf("expected repeated step allowed after recovery, got %v", err)
	}
}

func TestLoopControllerAbandonIsTerminal(t *testing.T) {
	c := NewLoopController(10)
	c.Abandon()
	if !c.State().IsTerminal() {
		t.Fatal("expected Abandoned to be terminal")
	}
	if _, ok := c.NextState(); ok {
		t.Fatal("expected NextState to refuse to advance past Abandoned")
	}
}
