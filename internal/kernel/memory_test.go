package kernel

import "testing"

// TestTrimToBudgetPreservesSystemAndOrder mirrors the shape of spec.md §8
// scenario S7 (several messages of equal weight, a budget that forces
// evicting all but the most recent non-system message, oldest-first
// eviction, order preserved).
func TestTrimToBudgetPreservesSystemAndOrder(t *testing.T) {
	mem := NewMemory(12) // budget fits system(5) + one more message(5) = 10
	mem.Append(Message{Role: RoleSystem, Content: fill(4)})    // estimate 5
	mem.Append(Message{Role: RoleUser, Content: fill(4)})      // estimate 5
	mem.Append(Message{Role: RoleAssistant, Content: fill(4)}) // estimate 5
	lastUser := "last"
	mem.Append(Message{Role: RoleUser, Content: lastUser}) // estimate 5

	mem.TrimToBudget()

	window := mem.ContextWindow()
	if len(window) != 2 {
		t.Fatalf("expected 2 retained messages, got %d: %+v", len(window), window)
	}
	if window[0].Role != RoleSystem {
		t.Fatalf("expected first retained message to be system, got %s", window[0].Role)
	}
	if window[1].Role != RoleUser || window[1].Content != lastUser {
		t.Fatalf("expected last user message retained, got %+v", window[1])
	}
	if mem.TotalTokens() > mem.maxContextTokens {
		t.Fatalf("expected total tokens within budget, got %d", mem.TotalTokens())
	}
}

func TestTrimToBudgetNeverEvictsSystem(t *testing.T) {
	mem := NewMemory(1)
	mem.Append(Message{Role: RoleSystem, Content: fill(1000)})
	mem.Append(Message{Role: RoleUser, Content: fill(1000)})

	mem.TrimToBudget()

	window := mem.ContextWindow()
	if len(window) != 1 || window[0].Role != RoleSystem {
		t.Fatalf("expected only the system message to survive, got %+v", window)
	}
}

func TestClearNonSystemKeepsSystemOnly(t *testing.T) {
	mem := NewMemory(1000)
	mem.Append(Message{Role: RoleSystem, Content: "sys"})
	mem.Append(Message{Role: RoleUser, Content: "hello"})
	mem.Append(Message{Role: RoleAssistant, Content: "hi"})

	mem.ClearNonSystem()

	window := mem.ContextWindow()
	if len(window) != 1 || window[0].Role != RoleSystem {
		t.Fatalf("expected only system message after clear, got %+v", window)
	}
}

func TestReportedTokensTakesTightestUpperBound(t *testing.T) {
	mem := NewMemory(1000)
	mem.Append(Message{Role: RoleUser, Content: "hello"})

	got := mem.ReportedTokens(3, 9999)
	if got != 9999 {
		t.Fatalf("expected max of all three sources, got %d", got)
	}
}

func fill(n int) string {
	if n < 0 {
		n = 0
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}
