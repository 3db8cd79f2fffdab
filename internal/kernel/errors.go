package kernel

import (
	"errors"
	"strings"
)

// ErrorKind classifies a kernel-observed error per spec.md §7. Names are
// semantic, not bound to any concrete Go error type.
type ErrorKind string

const (
	ErrKindConfiguration        ErrorKind = "configuration"
	ErrKindProtocol             ErrorKind = "protocol"
	ErrKindTool                 ErrorKind = "tool"
	ErrKindTransport            ErrorKind = "transport"
	ErrKindConfirmationRequired ErrorKind = "confirmation_required"
	ErrKindBudgetExhausted      ErrorKind = "budget_exhausted"
	ErrKindCancellation         ErrorKind = "cancellation"
	ErrKindInternal             ErrorKind = "internal"
)

// Recoverable reports whether an error of this kind should be routed
// through self-healing rather than failing the task outright.
func (k ErrorKind) Recoverable() bool {
	switch k {
	case ErrKindProtocol, ErrKindTransport:
		return true
	default:
		return false
	}
}

// ClassifyError maps an arbitrary error to a kernel ErrorKind via
// substring matching on its message, generalised from
// internal/models/errors.go's HandleError provider-error classification to
// the full spec.md §7 taxonomy. Kernel code that already knows the kind
// (e.g. the gate's ErrConfirmationRequiredNonInteractive) should prefer
// errors.Is over this heuristic; ClassifyError exists for errors arriving
// from outside the kernel's own typed boundaries (tool invokers, the LLM
// client).
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ErrKindInternal
	}
	if errors.Is(err, ErrCancelled) {
		return ErrKindCancellation
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "confirmation required") || strings.Contains(msg, "non-interactive"):
		return ErrKindConfirmationRequired
	case strings.Contains(msg, "budget") || strings.Contains(msg, "exhausted") || strings.Contains(msg, "max_operations") || strings.Contains(msg, "max_iterations"):
		return ErrKindBudgetExhausted
	case strings.Contains(msg, "schema") || strings.Contains(msg, "malformed response") || strings.Contains(msg, "unexpected response shape"):
		return ErrKindProtocol
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") || strings.Contains(msg, "eof") || strings.Contains(msg, "dial") || strings.Contains(msg, "stream"):
		return ErrKindTransport
	case strings.Contains(msg, "config"):
		return ErrKindConfiguration
	default:
		return ErrKindInternal
	}
}

// ErrCancelled is returned (or wrapped) to signal user-initiated
// cancellation distinctly from an ordinary failure.
var ErrCancelled = errors.New("kernel: task cancelled")
