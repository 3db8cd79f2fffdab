package kernel

import (
	"sync"

	"github.com/dohr-michael/selfware-kernel/internal/kernel/tokenest"
)

// defaultPerMessageOverhead is added to every message's estimated token
// count to account for role/formatting framing the model charges for.
const defaultPerMessageOverhead = 4

// Memory holds the bounded, ordered message history used to build the next
// model prompt, and the token budget it must respect. It is owned by
// exactly one Task Kernel at a time; callers must not retain the slice
// returned by ContextWindow across a later Append/TrimToBudget call.
type Memory struct {
	mu               sync.Mutex
	messages         []Message
	maxContextTokens int
}

// NewMemory creates a Memory bounded to maxContextTokens.
func NewMemory(maxContextTokens int) *Memory {
	return &Memory{maxContextTokens: maxContextTokens}
}

// Append adds msg to the end of the history, pre-computing its estimated
// token count once so TrimToBudget never has to re-estimate it.
func (m *Memory) Append(msg Message) {
	msg.estimatedTokens = tokenest.Estimate(msg.Content, defaultPerMessageOverhead)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

// TotalTokens returns the sum of pre-computed per-message token estimates.
func (m *Memory) TotalTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalTokensLocked()
}

func (m *Memory) totalTokensLocked() int {
	total := 0
	for _, msg := range m.messages {
		total += msg.estimatedTokens
	}
	return total
}

// TrimToBudget removes the oldest non-system messages until total tokens
// are within budget or only system messages remain. System messages are
// never evicted and relative order of retained messages is preserved.
// O(N) in message count: a single forward pass computes how many leading
// non-system messages to drop, using the token counts Append already
// computed.
func (m *Memory) TrimToBudget() {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := m.totalTokensLocked()
	if total <= m.maxContextTokens {
		return
	}

	keep := make([]bool, len(m.messages))
	for i := range keep {
		keep[i] = true
	}

	for i := 0; i < len(m.messages) && total > m.maxContextTokens; i++ {
		if m.messages[i].Role == RoleSystem {
			continue
		}
		keep[i] = false
		total -= m.messages[i].estimatedTokens
	}

	trimmed := m.messages[:0:0]
	for i, msg := range m.messages {
		if keep[i] {
			trimmed = append(trimmed, msg)
		}
	}
	m.messages = trimmed
}

// ClearNonSystem drops every non-system message, preserving system message
// order. Used by self-healing's ClearCache/ResetState actions.
func (m *Memory) ClearNonSystem() {
	m.mu.Lock()
	defer m.mu.Unlock()

	trimmed := m.messages[:0:0]
	for _, msg := range m.messages {
		if msg.Role == RoleSystem {
			trimmed = append(trimmed, msg)
		}
	}
	m.messages = trimmed
}

// ContextWindow returns a snapshot copy of the current ordered history.
func (m *Memory) ContextWindow() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// ReportedTokens returns max(apiReported, memory's own estimate) so the
// tightest upper bound is used for backpressure decisions, per spec.md
// §4.2's "reported token count" rule. messageEstimate is an independently
// computed estimate (e.g. summing estimate() over the exact messages about
// to be sent) so callers can fold in a third source without this package
// needing to know about it.
func (m *Memory) ReportedTokens(apiReported, messageEstimate int) int {
	total := m.TotalTokens()
	reported := total
	if apiReported > reported {
		reported = apiReported
	}
	if messageEstimate > reported {
		reported = messageEstimate
	}
	return reported
}
