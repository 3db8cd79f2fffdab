package kernel

import "strings"

// Config bundles the kernel's tunable thresholds. Zero-value fields take
// the defaults from DefaultConfig, not Go's zero value, since 0 for
// MaxIterations/MaxContextTokens would make the kernel useless.
type Config struct {
	MaxIterations      int
	MaxContextTokens   int
	MaxHealingAttempts int
	PerMessageOverhead int

	// ContinuationMarkers are trailing substrings on an assistant message
	// (checked case-insensitively) that mean "more work is coming" even
	// though the turn carried no tool_calls, per spec.md §9 Open Question
	// (b). A message ending in none of these, with no tool_calls, ends the
	// task.
	ContinuationMarkers []string

	// CoachingEveryNSteps controls how often the kernel injects a synthetic
	// budget/verification coaching message, per spec.md §4.6 point 6.
	CoachingEveryNSteps int

	// SoftRetryLimit bounds how many times ErrorRecovery may return to
	// Executing{step} after a failed recovery attempt before surfacing
	// Failed, per spec.md §4.6's "bounded number of soft retries."
	SoftRetryLimit int

	SystemPrompt string
}

// DefaultConfig mirrors the teacher's TaskConfig defaults, generalised to
// the kernel's own thresholds.
func DefaultConfig() Config {
	return Config{
		MaxIterations:       50,
		MaxContextTokens:    8000,
		MaxHealingAttempts:  3,
		PerMessageOverhead:  4,
		ContinuationMarkers: []string{"...", "to be continued"},
		CoachingEveryNSteps: 5,
		SoftRetryLimit:      2,
		SystemPrompt:        "You are an autonomous coding agent. Use tools to accomplish the task, then report the result.",
	}
}

// EndsWithContinuationMarker reports whether content ends
// (case-insensitively, ignoring trailing whitespace) with one of markers.
func EndsWithContinuationMarker(content string, markers []string) bool {
	lower := strings.ToLower(strings.TrimRight(content, " \t\r\n"))
	for _, m := range markers {
		if strings.HasSuffix(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
