// Package tokenest provides a cheap, deterministic token-count
// approximation used throughout the kernel for budget accounting.
package tokenest

// Estimate returns a deterministic, monotonic approximation of the token
// count for text, plus a fixed per-message overhead. It never calls a
// tokenizer; spec.md sanctions the cheap approximation explicitly, and
// consistency across calls matters more than exactness here.
func Estimate(text string, overhead int) int {
	return len(text)/4 + overhead
}
